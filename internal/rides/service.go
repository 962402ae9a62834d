package rides

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	geoclient "github.com/poolride/carpool/internal/geo"
	"github.com/poolride/carpool/internal/notifications"
	"github.com/poolride/carpool/pkg/common"
	"github.com/poolride/carpool/pkg/config"
	"github.com/poolride/carpool/pkg/geo"
	"github.com/poolride/carpool/pkg/logger"
	"github.com/poolride/carpool/pkg/models"
	"go.uber.org/zap"
)

// RepositoryInterface defines the persistence operations for rides
type RepositoryInterface interface {
	CreateRide(ctx context.Context, ride *models.Ride) error
	GetRideByID(ctx context.Context, id uuid.UUID) (*models.Ride, error)
	SearchRides(ctx context.Context, filter SearchFilter) ([]*models.SearchRideResult, int64, error)
	ListByDriver(ctx context.Context, driverID uuid.UUID, limit, offset int) ([]*models.Ride, int64, error)
	UpdateRide(ctx context.Context, rideID, driverID uuid.UUID, changes *RideChanges) (*models.Ride, error)
	UpdateStatus(ctx context.Context, rideID, driverID uuid.UUID, status models.RideStatus) error
	DeleteRide(ctx context.Context, rideID, driverID uuid.UUID) error
	ListPassengerIDs(ctx context.Context, rideID uuid.UUID, statuses ...models.BookingStatus) ([]uuid.UUID, error)
	GetUserByID(ctx context.Context, userID uuid.UUID) (*models.User, error)
	GetCard(ctx context.Context, cardID uuid.UUID) (*models.Card, error)
}

// Refunder reverses the settled card payments of a ride once it is
// cancelled. Refunding is best-effort; failures are logged, not propagated.
type Refunder interface {
	RefundRidePayments(ctx context.Context, rideID uuid.UUID) error
}

// Service contains the ride lifecycle business logic
type Service struct {
	repo      RepositoryInterface
	geocoder  geoclient.Geocoder
	router    geoclient.Router
	notifier  notifications.Sender
	refunder  Refunder
	fareCfg   config.FareConfig
	searchCfg config.SearchConfig
}

// NewService creates a new rides service
func NewService(repo RepositoryInterface, geocoder geoclient.Geocoder, router geoclient.Router, notifier notifications.Sender, refunder Refunder, fareCfg config.FareConfig, searchCfg config.SearchConfig) *Service {
	return &Service{
		repo:      repo,
		geocoder:  geocoder,
		router:    router,
		notifier:  notifier,
		refunder:  refunder,
		fareCfg:   fareCfg,
		searchCfg: searchCfg,
	}
}

// CreateRide publishes a new ride offer. Addresses are geocoded and the fare
// is computed from the routed distance and duration. A ride whose addresses
// cannot be geocoded is still created; it just won't be distance-ranked in
// search results.
func (s *Service) CreateRide(ctx context.Context, driverID uuid.UUID, req *models.CreateRideRequest) (*models.Ride, error) {
	driver, err := s.repo.GetUserByID(ctx, driverID)
	if err != nil {
		return nil, err
	}
	if !driver.IsActive {
		return nil, common.NewForbiddenError("inactive accounts cannot publish rides")
	}

	if !req.DepartureTime.After(time.Now()) {
		return nil, common.NewValidationError("departure time must be in the future")
	}

	if req.SelectedCardID != nil {
		if req.PaymentType == models.PaymentTypeCash {
			return nil, common.NewValidationError("a card cannot be selected for a cash-only ride")
		}
		card, err := s.repo.GetCard(ctx, *req.SelectedCardID)
		if err != nil {
			return nil, err
		}
		if card.UserID != driverID {
			return nil, common.NewForbiddenError("selected card does not belong to you")
		}
	}

	ride := &models.Ride{
		ID:             uuid.New(),
		DriverID:       driverID,
		StartAddress:   req.StartAddress,
		EndAddress:     req.EndAddress,
		DepartureTime:  req.DepartureTime,
		SeatsTotal:     req.AvailableSeats,
		AvailableSeats: req.AvailableSeats,
		VehicleType:    req.VehicleType,
		Status:         models.RideStatusActive,
		PaymentType:    req.PaymentType,
		SelectedCardID: req.SelectedCardID,
	}

	s.resolveRoute(ctx, ride)

	if err := s.repo.CreateRide(ctx, ride); err != nil {
		return nil, err
	}

	logger.Info("ride created",
		zap.String("ride_id", ride.ID.String()),
		zap.String("driver_id", driverID.String()),
		zap.Float64("fare", ride.Fare))

	return ride, nil
}

// resolveRoute geocodes both endpoints and fills in coordinates, distance,
// duration and fare. Geocoding failures leave the coordinates nil; routing
// failures fall back to the straight-line estimate.
func (s *Service) resolveRoute(ctx context.Context, ride *models.Ride) {
	start, err := s.geocoder.Geocode(ctx, ride.StartAddress)
	if err != nil {
		logger.Warn("failed to geocode start address",
			zap.String("address", ride.StartAddress), zap.Error(err))
	} else {
		ride.StartLatitude = &start.Latitude
		ride.StartLongitude = &start.Longitude
	}

	end, err := s.geocoder.Geocode(ctx, ride.EndAddress)
	if err != nil {
		logger.Warn("failed to geocode end address",
			zap.String("address", ride.EndAddress), zap.Error(err))
	} else {
		ride.EndLatitude = &end.Latitude
		ride.EndLongitude = &end.Longitude
	}

	if !ride.HasCoordinates() {
		return
	}

	route, err := s.router.RouteDistance(ctx, ride.StartAddress, ride.EndAddress)
	if err != nil {
		logger.Warn("routing failed, using straight-line estimate",
			zap.String("ride_id", ride.ID.String()), zap.Error(err))
		distance := geo.Haversine(*ride.StartLatitude, *ride.StartLongitude,
			*ride.EndLatitude, *ride.EndLongitude)
		route = &geoclient.Route{
			DistanceKm:  distance,
			DurationMin: geo.EstimateDuration(distance),
		}
	}

	ride.DistanceKm = route.DistanceKm
	ride.DurationMin = route.DurationMin
	ride.Fare = CalculateFare(route.DistanceKm, route.DurationMin,
		s.fareCfg.RatePerKm, s.fareCfg.RatePerMinute)
}

// SearchRides finds bookable rides matching the criteria, ranked by proximity
// to the requested endpoints. The total in the returned count reflects the
// candidate set before distance filtering.
func (s *Service) SearchRides(ctx context.Context, req *models.SearchRidesRequest) ([]*models.SearchRideResult, int64, error) {
	passengers := req.Passengers
	if passengers < 1 {
		passengers = 1
	}

	maxDistance := req.MaxDistanceKm
	if maxDistance <= 0 {
		maxDistance = s.searchCfg.MaxDistanceKm
	}

	window := time.Duration(s.searchCfg.WindowDays) * 24 * time.Hour
	var from, to time.Time
	if req.Date != nil {
		from = req.Date.Add(-window)
		to = req.Date.Add(window + 24*time.Hour)
	} else {
		from = time.Now()
		to = from.Add(window + 24*time.Hour)
	}

	candidates, total, err := s.repo.SearchRides(ctx, SearchFilter{
		DepartureFrom: from,
		DepartureTo:   to,
		MinSeats:      passengers,
		Limit:         req.Limit,
		Offset:        req.Offset,
	})
	if err != nil {
		return nil, 0, err
	}

	start := s.resolveQueryPoint(ctx, req.StartLatitude, req.StartLongitude, req.StartAddress)
	end := s.resolveQueryPoint(ctx, req.EndLatitude, req.EndLongitude, req.EndAddress)

	return FilterByProximity(candidates, start, end, maxDistance), total, nil
}

// resolveQueryPoint prefers explicit coordinates and falls back to geocoding
// the address. Returns nil when neither yields a point, which disables
// distance filtering for that endpoint.
func (s *Service) resolveQueryPoint(ctx context.Context, lat, lon *float64, address string) *geoclient.Coordinates {
	if lat != nil && lon != nil {
		return &geoclient.Coordinates{Latitude: *lat, Longitude: *lon}
	}
	if address == "" {
		return nil
	}

	coords, err := s.geocoder.Geocode(ctx, address)
	if err != nil {
		logger.Warn("failed to geocode search address",
			zap.String("address", address), zap.Error(err))
		return nil
	}
	return coords
}

// GetRide retrieves a single ride with its driver summary.
func (s *Service) GetRide(ctx context.Context, rideID uuid.UUID) (*models.SearchRideResult, error) {
	ride, err := s.repo.GetRideByID(ctx, rideID)
	if err != nil {
		return nil, err
	}

	result := &models.SearchRideResult{Ride: ride}
	if driver, err := s.repo.GetUserByID(ctx, ride.DriverID); err == nil {
		result.Driver = driver.Summary()
	}

	return result, nil
}

// ListMyRides returns the caller's published rides.
func (s *Service) ListMyRides(ctx context.Context, driverID uuid.UUID, limit, offset int) ([]*models.Ride, int64, error) {
	return s.repo.ListByDriver(ctx, driverID, limit, offset)
}

// UpdateRide edits a ride. Editing stays open while bookings are accepted;
// accepted passengers are notified of the change instead. Changing either
// address re-geocodes and reprices the ride. The change-set is applied by
// the repository against the row read under lock, so seat counts moved by a
// concurrent booking acceptance survive the edit.
func (s *Service) UpdateRide(ctx context.Context, driverID, rideID uuid.UUID, req *models.UpdateRideRequest) (*models.Ride, error) {
	current, err := s.repo.GetRideByID(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if current.DriverID != driverID {
		return nil, common.NewForbiddenError("only the driver may update this ride")
	}

	if req.DepartureTime != nil && !req.DepartureTime.After(time.Now()) {
		return nil, common.NewValidationError("departure time must be in the future")
	}
	if req.AvailableSeats != nil && *req.AvailableSeats < 0 {
		return nil, common.NewValidationError("available seats cannot be negative")
	}

	changes := &RideChanges{
		DepartureTime:  req.DepartureTime,
		AvailableSeats: req.AvailableSeats,
		VehicleType:    req.VehicleType,
		PaymentType:    req.PaymentType,
	}

	if req.SelectedCardID != nil {
		card, err := s.repo.GetCard(ctx, *req.SelectedCardID)
		if err != nil {
			return nil, err
		}
		if card.UserID != driverID {
			return nil, common.NewForbiddenError("selected card does not belong to you")
		}
		changes.SelectedCardID = req.SelectedCardID
	}

	startAddress, endAddress := current.StartAddress, current.EndAddress
	if req.StartAddress != nil && *req.StartAddress != current.StartAddress {
		changes.StartAddress = req.StartAddress
		startAddress = *req.StartAddress
	}
	if req.EndAddress != nil && *req.EndAddress != current.EndAddress {
		changes.EndAddress = req.EndAddress
		endAddress = *req.EndAddress
	}
	if changes.StartAddress != nil || changes.EndAddress != nil {
		draft := models.Ride{StartAddress: startAddress, EndAddress: endAddress}
		s.resolveRoute(ctx, &draft)
		changes.Rerouted = true
		changes.StartLatitude, changes.StartLongitude = draft.StartLatitude, draft.StartLongitude
		changes.EndLatitude, changes.EndLongitude = draft.EndLatitude, draft.EndLongitude
		changes.DistanceKm = draft.DistanceKm
		changes.DurationMin = draft.DurationMin
		changes.Fare = draft.Fare
	}

	updated, err := s.repo.UpdateRide(ctx, rideID, driverID, changes)
	if err != nil {
		return nil, err
	}

	s.notifyPassengers(ctx, rideID, "Ride updated",
		fmt.Sprintf("The ride from %s to %s has been updated by the driver.",
			updated.StartAddress, updated.EndAddress),
		models.BookingStatusAccepted, models.BookingStatusConfirmed)

	return updated, nil
}

// UpdateStatus transitions a ride and informs affected passengers.
// Cancelling a ride also refunds its settled card payments.
func (s *Service) UpdateStatus(ctx context.Context, driverID, rideID uuid.UUID, status models.RideStatus) (*models.Ride, error) {
	if !status.Valid() {
		return nil, common.NewValidationError("invalid ride status")
	}

	if err := s.repo.UpdateStatus(ctx, rideID, driverID, status); err != nil {
		return nil, err
	}

	ride, err := s.repo.GetRideByID(ctx, rideID)
	if err != nil {
		return nil, err
	}

	switch status {
	case models.RideStatusCompleted:
		s.notifyPassengers(ctx, rideID, "Ride completed",
			fmt.Sprintf("Your ride from %s to %s has been completed.", ride.StartAddress, ride.EndAddress),
			models.BookingStatusAccepted, models.BookingStatusConfirmed)
	case models.RideStatusCancelled:
		if s.refunder != nil {
			if err := s.refunder.RefundRidePayments(ctx, rideID); err != nil {
				logger.Error("failed to refund payments for cancelled ride",
					zap.String("ride_id", rideID.String()), zap.Error(err))
			}
		}
		s.notifyPassengers(ctx, rideID, "Ride cancelled",
			fmt.Sprintf("The ride from %s to %s has been cancelled by the driver.", ride.StartAddress, ride.EndAddress),
			models.BookingStatusPending, models.BookingStatusAccepted, models.BookingStatusConfirmed)
	}

	return ride, nil
}

// DeleteRide removes a ride and its dependent records. Pending requesters
// are informed that their request is void.
func (s *Service) DeleteRide(ctx context.Context, driverID, rideID uuid.UUID) error {
	ride, err := s.repo.GetRideByID(ctx, rideID)
	if err != nil {
		return err
	}

	// Collected before the delete cascades over booking_requests.
	pending, err := s.repo.ListPassengerIDs(ctx, rideID, models.BookingStatusPending)
	if err != nil {
		return err
	}

	if err := s.repo.DeleteRide(ctx, rideID, driverID); err != nil {
		return err
	}

	body := fmt.Sprintf("The ride from %s to %s has been removed by the driver.",
		ride.StartAddress, ride.EndAddress)
	for _, passengerID := range pending {
		s.notifier.SendToUser(ctx, passengerID, "Ride removed", body)
	}

	logger.Info("ride deleted",
		zap.String("ride_id", rideID.String()),
		zap.String("driver_id", driverID.String()))

	return nil
}

func (s *Service) notifyPassengers(ctx context.Context, rideID uuid.UUID, title, body string, statuses ...models.BookingStatus) {
	passengerIDs, err := s.repo.ListPassengerIDs(ctx, rideID, statuses...)
	if err != nil {
		logger.Warn("failed to list passengers for notification",
			zap.String("ride_id", rideID.String()), zap.Error(err))
		return
	}

	for _, passengerID := range passengerIDs {
		s.notifier.SendToUser(ctx, passengerID, title, body)
	}
}
