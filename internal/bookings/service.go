package bookings

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/poolride/carpool/internal/notifications"
	"github.com/poolride/carpool/pkg/common"
	"github.com/poolride/carpool/pkg/logger"
	"github.com/poolride/carpool/pkg/models"
	"go.uber.org/zap"
)

// RepositoryInterface defines the persistence operations for bookings
type RepositoryInterface interface {
	CreateBooking(ctx context.Context, rideID, passengerID uuid.UUID, passengerCount int) (*models.BookingRequest, error)
	AcceptBooking(ctx context.Context, bookingID, driverID uuid.UUID) (*AcceptResult, error)
	RejectBooking(ctx context.Context, bookingID, driverID uuid.UUID) (*models.BookingRequest, error)
	GetBookingByID(ctx context.Context, bookingID uuid.UUID) (*models.BookingRequest, error)
	GetUserSummary(ctx context.Context, userID uuid.UUID) (*models.UserSummary, error)
	ListForRide(ctx context.Context, rideID uuid.UUID) ([]*models.BookingResponse, error)
	ListForPassenger(ctx context.Context, passengerID uuid.UUID, limit, offset int) ([]*models.BookingRequest, int64, error)
	GetRideByID(ctx context.Context, rideID uuid.UUID) (*models.Ride, error)
}

// ConversationStarter opens the driver/passenger chat once a booking is
// accepted. Opening is idempotent per ride and pair.
type ConversationStarter interface {
	EnsureConversation(ctx context.Context, rideID uuid.UUID, userA, userB uuid.UUID) (*models.Conversation, error)
}

// Service contains the booking business logic
type Service struct {
	repo     RepositoryInterface
	chat     ConversationStarter
	notifier notifications.Sender
}

// NewService creates a new bookings service
func NewService(repo RepositoryInterface, chat ConversationStarter, notifier notifications.Sender) *Service {
	return &Service{repo: repo, chat: chat, notifier: notifier}
}

// BookRide files a pending seat request on a ride and informs the driver.
// The response carries the passenger summary the driver sees on the request.
func (s *Service) BookRide(ctx context.Context, passengerID uuid.UUID, req *models.BookRideRequest) (*models.BookingResponse, error) {
	booking, err := s.repo.CreateBooking(ctx, req.RideID, passengerID, req.PassengerCount)
	if err != nil {
		return nil, err
	}

	passenger, err := s.repo.GetUserSummary(ctx, passengerID)
	if err != nil {
		logger.Warn("failed to load passenger summary",
			zap.String("passenger_id", passengerID.String()), zap.Error(err))
	}

	if ride, err := s.repo.GetRideByID(ctx, req.RideID); err == nil {
		s.notifier.SendToUser(ctx, ride.DriverID, "New booking request",
			fmt.Sprintf("A passenger requested %d seat(s) on your ride from %s to %s.",
				req.PassengerCount, ride.StartAddress, ride.EndAddress))
	}

	logger.Info("booking request created",
		zap.String("booking_id", booking.ID.String()),
		zap.String("ride_id", req.RideID.String()),
		zap.Int("passenger_count", req.PassengerCount))

	return &models.BookingResponse{BookingRequest: booking, Passenger: passenger}, nil
}

// AcceptBooking accepts a pending request on behalf of the driver. On
// success the passenger is notified and the driver/passenger conversation is
// opened. If the acceptance filled the ride, the rejected requesters are
// notified too.
func (s *Service) AcceptBooking(ctx context.Context, driverID, bookingID uuid.UUID) (*models.BookingRequest, error) {
	result, err := s.repo.AcceptBooking(ctx, bookingID, driverID)
	if err != nil {
		return nil, err
	}
	booking := result.Booking

	ride, err := s.repo.GetRideByID(ctx, booking.RideID)
	if err != nil {
		return nil, err
	}

	if _, err := s.chat.EnsureConversation(ctx, booking.RideID, driverID, booking.PassengerID); err != nil {
		logger.Warn("failed to open booking conversation",
			zap.String("booking_id", bookingID.String()), zap.Error(err))
	}

	s.notifier.SendToUser(ctx, booking.PassengerID, "Booking accepted",
		fmt.Sprintf("Your request for the ride from %s to %s was accepted.",
			ride.StartAddress, ride.EndAddress))

	if result.RideFull {
		body := fmt.Sprintf("The ride from %s to %s is now fully booked.",
			ride.StartAddress, ride.EndAddress)
		for _, passengerID := range result.RejectedOthers {
			s.notifier.SendToUser(ctx, passengerID, "Booking rejected", body)
		}
	}

	logger.Info("booking request accepted",
		zap.String("booking_id", bookingID.String()),
		zap.String("ride_id", booking.RideID.String()),
		zap.Bool("ride_full", result.RideFull))

	return booking, nil
}

// RejectBooking rejects a pending request on behalf of the driver.
func (s *Service) RejectBooking(ctx context.Context, driverID, bookingID uuid.UUID) (*models.BookingRequest, error) {
	booking, err := s.repo.RejectBooking(ctx, bookingID, driverID)
	if err != nil {
		return nil, err
	}

	if ride, err := s.repo.GetRideByID(ctx, booking.RideID); err == nil {
		s.notifier.SendToUser(ctx, booking.PassengerID, "Booking rejected",
			fmt.Sprintf("Your request for the ride from %s to %s was rejected.",
				ride.StartAddress, ride.EndAddress))
	}

	return booking, nil
}

// ListForRide returns all requests on a ride. Only the driver may see them.
func (s *Service) ListForRide(ctx context.Context, callerID, rideID uuid.UUID) ([]*models.BookingResponse, error) {
	ride, err := s.repo.GetRideByID(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.DriverID != callerID {
		return nil, common.NewForbiddenError("only the driver may list booking requests")
	}

	return s.repo.ListForRide(ctx, rideID)
}

// ListMine returns the caller's own booking requests.
func (s *Service) ListMine(ctx context.Context, passengerID uuid.UUID, limit, offset int) ([]*models.BookingRequest, int64, error) {
	return s.repo.ListForPassenger(ctx, passengerID, limit, offset)
}
