package bookings

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/poolride/carpool/pkg/common"
	"github.com/poolride/carpool/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRepository is a simple in-memory stand-in for the database
type mockRepository struct {
	rides    map[uuid.UUID]*models.Ride
	bookings map[uuid.UUID]*models.BookingRequest
	users    map[uuid.UUID]*models.UserSummary

	createErr    error
	acceptResult *AcceptResult
	acceptErr    error
	rejectErr    error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		rides:    make(map[uuid.UUID]*models.Ride),
		bookings: make(map[uuid.UUID]*models.BookingRequest),
		users:    make(map[uuid.UUID]*models.UserSummary),
	}
}

func (m *mockRepository) CreateBooking(ctx context.Context, rideID, passengerID uuid.UUID, passengerCount int) (*models.BookingRequest, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	booking := &models.BookingRequest{
		ID:             uuid.New(),
		RideID:         rideID,
		PassengerID:    passengerID,
		PassengerCount: passengerCount,
		Status:         models.BookingStatusPending,
	}
	m.bookings[booking.ID] = booking
	return booking, nil
}

func (m *mockRepository) AcceptBooking(ctx context.Context, bookingID, driverID uuid.UUID) (*AcceptResult, error) {
	if m.acceptErr != nil {
		return nil, m.acceptErr
	}
	return m.acceptResult, nil
}

func (m *mockRepository) RejectBooking(ctx context.Context, bookingID, driverID uuid.UUID) (*models.BookingRequest, error) {
	if m.rejectErr != nil {
		return nil, m.rejectErr
	}
	booking := m.bookings[bookingID]
	booking.Status = models.BookingStatusRejected
	return booking, nil
}

func (m *mockRepository) GetBookingByID(ctx context.Context, bookingID uuid.UUID) (*models.BookingRequest, error) {
	booking, exists := m.bookings[bookingID]
	if !exists {
		return nil, common.NewNotFoundError("booking request not found", nil)
	}
	return booking, nil
}

func (m *mockRepository) ListForRide(ctx context.Context, rideID uuid.UUID) ([]*models.BookingResponse, error) {
	var out []*models.BookingResponse
	for _, booking := range m.bookings {
		if booking.RideID == rideID {
			out = append(out, &models.BookingResponse{BookingRequest: booking})
		}
	}
	return out, nil
}

func (m *mockRepository) ListForPassenger(ctx context.Context, passengerID uuid.UUID, limit, offset int) ([]*models.BookingRequest, int64, error) {
	var out []*models.BookingRequest
	for _, booking := range m.bookings {
		if booking.PassengerID == passengerID {
			out = append(out, booking)
		}
	}
	return out, int64(len(out)), nil
}

func (m *mockRepository) GetRideByID(ctx context.Context, rideID uuid.UUID) (*models.Ride, error) {
	ride, exists := m.rides[rideID]
	if !exists {
		return nil, common.NewNotFoundError("ride not found", nil)
	}
	return ride, nil
}

func (m *mockRepository) GetUserSummary(ctx context.Context, userID uuid.UUID) (*models.UserSummary, error) {
	user, exists := m.users[userID]
	if !exists {
		return nil, common.NewNotFoundError("user not found", nil)
	}
	return user, nil
}

type mockChat struct {
	opened []uuid.UUID
	err    error
}

func (m *mockChat) EnsureConversation(ctx context.Context, rideID uuid.UUID, userA, userB uuid.UUID) (*models.Conversation, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.opened = append(m.opened, rideID)
	return &models.Conversation{ID: uuid.New(), RideID: &rideID, ParticipantA: userA, ParticipantB: userB}, nil
}

type mockNotifier struct {
	sent map[uuid.UUID][]string
}

func newMockNotifier() *mockNotifier {
	return &mockNotifier{sent: make(map[uuid.UUID][]string)}
}

func (m *mockNotifier) SendToUser(ctx context.Context, userID uuid.UUID, title, body string) {
	m.sent[userID] = append(m.sent[userID], title)
}

func TestService_BookRide_NotifiesDriver(t *testing.T) {
	repo := newMockRepository()
	driverID := uuid.New()
	rideID := uuid.New()
	repo.rides[rideID] = &models.Ride{
		ID: rideID, DriverID: driverID, Status: models.RideStatusActive,
		StartAddress: "Berlin", EndAddress: "Munich", AvailableSeats: 3,
	}
	passengerID := uuid.New()
	repo.users[passengerID] = &models.UserSummary{ID: passengerID, FirstName: "Aman", LastName: "Orazov", Rating: 4.8}
	notifier := newMockNotifier()
	service := NewService(repo, &mockChat{}, notifier)

	booking, err := service.BookRide(context.Background(), passengerID, &models.BookRideRequest{
		RideID:         rideID,
		PassengerCount: 2,
	})

	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusPending, booking.Status)
	assert.Equal(t, 2, booking.PassengerCount)
	require.NotNil(t, booking.Passenger)
	assert.Equal(t, "Aman", booking.Passenger.FirstName)
	assert.Equal(t, 4.8, booking.Passenger.Rating)
	assert.Contains(t, notifier.sent[driverID], "New booking request")
}

func TestService_BookRide_SummaryLookupFailureStillBooks(t *testing.T) {
	repo := newMockRepository()
	rideID := uuid.New()
	repo.rides[rideID] = &models.Ride{
		ID: rideID, DriverID: uuid.New(), Status: models.RideStatusActive,
		StartAddress: "Berlin", EndAddress: "Munich", AvailableSeats: 3,
	}
	service := NewService(repo, &mockChat{}, newMockNotifier())

	booking, err := service.BookRide(context.Background(), uuid.New(), &models.BookRideRequest{
		RideID:         rideID,
		PassengerCount: 1,
	})

	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusPending, booking.Status)
	assert.Nil(t, booking.Passenger)
}

func TestService_BookRide_RepositoryGuardPropagates(t *testing.T) {
	repo := newMockRepository()
	repo.createErr = common.NewBusinessRuleError("not enough available seats")
	service := NewService(repo, &mockChat{}, newMockNotifier())

	_, err := service.BookRide(context.Background(), uuid.New(), &models.BookRideRequest{
		RideID:         uuid.New(),
		PassengerCount: 4,
	})

	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, 400, appErr.Code)
}

func TestService_AcceptBooking_OpensConversationAndNotifies(t *testing.T) {
	repo := newMockRepository()
	driverID := uuid.New()
	passengerID := uuid.New()
	rideID := uuid.New()
	repo.rides[rideID] = &models.Ride{
		ID: rideID, DriverID: driverID, Status: models.RideStatusActive,
		StartAddress: "Berlin", EndAddress: "Munich",
	}
	booking := &models.BookingRequest{
		ID: uuid.New(), RideID: rideID, PassengerID: passengerID,
		PassengerCount: 1, Status: models.BookingStatusAccepted,
	}
	repo.acceptResult = &AcceptResult{Booking: booking, DriverID: driverID}
	chat := &mockChat{}
	notifier := newMockNotifier()
	service := NewService(repo, chat, notifier)

	got, err := service.AcceptBooking(context.Background(), driverID, booking.ID)

	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusAccepted, got.Status)
	assert.Contains(t, chat.opened, rideID)
	assert.Contains(t, notifier.sent[passengerID], "Booking accepted")
}

func TestService_AcceptBooking_FullRideRejectsOthers(t *testing.T) {
	repo := newMockRepository()
	driverID := uuid.New()
	passengerID := uuid.New()
	rejectedA := uuid.New()
	rejectedB := uuid.New()
	rideID := uuid.New()
	repo.rides[rideID] = &models.Ride{
		ID: rideID, DriverID: driverID, Status: models.RideStatusBooked,
		StartAddress: "Berlin", EndAddress: "Munich",
	}
	booking := &models.BookingRequest{
		ID: uuid.New(), RideID: rideID, PassengerID: passengerID,
		PassengerCount: 2, Status: models.BookingStatusAccepted,
	}
	repo.acceptResult = &AcceptResult{
		Booking:        booking,
		DriverID:       driverID,
		RideFull:       true,
		RejectedOthers: []uuid.UUID{rejectedA, rejectedB},
	}
	notifier := newMockNotifier()
	service := NewService(repo, &mockChat{}, notifier)

	_, err := service.AcceptBooking(context.Background(), driverID, booking.ID)

	require.NoError(t, err)
	assert.Contains(t, notifier.sent[passengerID], "Booking accepted")
	assert.Contains(t, notifier.sent[rejectedA], "Booking rejected")
	assert.Contains(t, notifier.sent[rejectedB], "Booking rejected")
}

func TestService_AcceptBooking_SeatRaceFails(t *testing.T) {
	repo := newMockRepository()
	repo.acceptErr = common.NewBusinessRuleError("not enough available seats")
	service := NewService(repo, &mockChat{}, newMockNotifier())

	_, err := service.AcceptBooking(context.Background(), uuid.New(), uuid.New())

	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, 400, appErr.Code)
	assert.Contains(t, appErr.Message, "not enough available seats")
}

func TestService_AcceptBooking_ChatFailureDoesNotAbort(t *testing.T) {
	repo := newMockRepository()
	driverID := uuid.New()
	passengerID := uuid.New()
	rideID := uuid.New()
	repo.rides[rideID] = &models.Ride{
		ID: rideID, DriverID: driverID, StartAddress: "Berlin", EndAddress: "Munich",
	}
	booking := &models.BookingRequest{
		ID: uuid.New(), RideID: rideID, PassengerID: passengerID,
		PassengerCount: 1, Status: models.BookingStatusAccepted,
	}
	repo.acceptResult = &AcceptResult{Booking: booking, DriverID: driverID}
	chat := &mockChat{err: errors.New("db down")}
	notifier := newMockNotifier()
	service := NewService(repo, chat, notifier)

	_, err := service.AcceptBooking(context.Background(), driverID, booking.ID)

	require.NoError(t, err)
	assert.Contains(t, notifier.sent[passengerID], "Booking accepted")
}

func TestService_RejectBooking_NotifiesPassenger(t *testing.T) {
	repo := newMockRepository()
	driverID := uuid.New()
	passengerID := uuid.New()
	rideID := uuid.New()
	repo.rides[rideID] = &models.Ride{
		ID: rideID, DriverID: driverID, StartAddress: "Berlin", EndAddress: "Munich",
	}
	booking := &models.BookingRequest{
		ID: uuid.New(), RideID: rideID, PassengerID: passengerID,
		PassengerCount: 1, Status: models.BookingStatusPending,
	}
	repo.bookings[booking.ID] = booking
	notifier := newMockNotifier()
	service := NewService(repo, &mockChat{}, notifier)

	got, err := service.RejectBooking(context.Background(), driverID, booking.ID)

	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusRejected, got.Status)
	assert.Contains(t, notifier.sent[passengerID], "Booking rejected")
}

func TestService_ListForRide_DriverOnly(t *testing.T) {
	repo := newMockRepository()
	driverID := uuid.New()
	rideID := uuid.New()
	repo.rides[rideID] = &models.Ride{ID: rideID, DriverID: driverID}
	service := NewService(repo, &mockChat{}, newMockNotifier())

	_, err := service.ListForRide(context.Background(), uuid.New(), rideID)

	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, 403, appErr.Code)

	_, err = service.ListForRide(context.Background(), driverID, rideID)
	assert.NoError(t, err)
}
