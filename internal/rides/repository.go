package rides

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/poolride/carpool/pkg/common"
	"github.com/poolride/carpool/pkg/database"
	"github.com/poolride/carpool/pkg/models"
)

const rideColumns = `
	id, driver_id, passenger_id, start_address, start_latitude, start_longitude,
	end_address, end_latitude, end_longitude, departure_time, seats_total,
	available_seats, vehicle_type, status, fare, distance_km, duration_min,
	payment_type, selected_card_id, created_at, updated_at`

// Repository handles database operations for rides
type Repository struct {
	db database.DB
}

// NewRepository creates a new rides repository
func NewRepository(db database.DB) *Repository {
	return &Repository{db: db}
}

func scanRide(row pgx.Row) (*models.Ride, error) {
	ride := &models.Ride{}
	err := row.Scan(
		&ride.ID,
		&ride.DriverID,
		&ride.PassengerID,
		&ride.StartAddress,
		&ride.StartLatitude,
		&ride.StartLongitude,
		&ride.EndAddress,
		&ride.EndLatitude,
		&ride.EndLongitude,
		&ride.DepartureTime,
		&ride.SeatsTotal,
		&ride.AvailableSeats,
		&ride.VehicleType,
		&ride.Status,
		&ride.Fare,
		&ride.DistanceKm,
		&ride.DurationMin,
		&ride.PaymentType,
		&ride.SelectedCardID,
		&ride.CreatedAt,
		&ride.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return ride, nil
}

// CreateRide persists a new ride offer
func (r *Repository) CreateRide(ctx context.Context, ride *models.Ride) error {
	query := `
		INSERT INTO rides (
			id, driver_id, start_address, start_latitude, start_longitude,
			end_address, end_latitude, end_longitude, departure_time, seats_total,
			available_seats, vehicle_type, status, fare, distance_km, duration_min,
			payment_type, selected_card_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		ride.ID,
		ride.DriverID,
		ride.StartAddress,
		ride.StartLatitude,
		ride.StartLongitude,
		ride.EndAddress,
		ride.EndLatitude,
		ride.EndLongitude,
		ride.DepartureTime,
		ride.SeatsTotal,
		ride.AvailableSeats,
		ride.VehicleType,
		ride.Status,
		ride.Fare,
		ride.DistanceKm,
		ride.DurationMin,
		ride.PaymentType,
		ride.SelectedCardID,
	).Scan(&ride.CreatedAt, &ride.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create ride: %w", err)
	}

	return nil
}

// GetRideByID retrieves a ride by ID
func (r *Repository) GetRideByID(ctx context.Context, id uuid.UUID) (*models.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE id = $1`

	ride, err := scanRide(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.NewNotFoundError("ride not found", nil)
		}
		return nil, fmt.Errorf("failed to get ride: %w", err)
	}

	return ride, nil
}

// SearchFilter bounds the candidate query for ride search.
type SearchFilter struct {
	DepartureFrom time.Time
	DepartureTo   time.Time
	MinSeats      int
	Limit         int
	Offset        int
}

// SearchRides returns bookable rides in the departure window with enough
// seats, joined with the driver summary. Pagination applies to this query;
// the returned total counts all matches before any distance filtering.
func (r *Repository) SearchRides(ctx context.Context, filter SearchFilter) ([]*models.SearchRideResult, int64, error) {
	baseWhere := `
		WHERE r.status IN ('active', 'booked')
		  AND r.available_seats >= $1
		  AND r.departure_time >= $2
		  AND r.departure_time < $3
	`

	var total int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM rides r`+baseWhere,
		filter.MinSeats, filter.DepartureFrom, filter.DepartureTo,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count search candidates: %w", err)
	}

	query := `
		SELECT r.id, r.driver_id, r.passenger_id, r.start_address, r.start_latitude,
			   r.start_longitude, r.end_address, r.end_latitude, r.end_longitude,
			   r.departure_time, r.seats_total, r.available_seats, r.vehicle_type,
			   r.status, r.fare, r.distance_km, r.duration_min, r.payment_type,
			   r.selected_card_id, r.created_at, r.updated_at,
			   u.id, u.first_name, u.last_name, u.rating
		FROM rides r
		JOIN users u ON u.id = r.driver_id
	` + baseWhere + `
		ORDER BY r.departure_time ASC
		LIMIT $4 OFFSET $5
	`

	rows, err := r.db.Query(ctx, query,
		filter.MinSeats, filter.DepartureFrom, filter.DepartureTo,
		filter.Limit, filter.Offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search rides: %w", err)
	}
	defer rows.Close()

	results := make([]*models.SearchRideResult, 0)
	for rows.Next() {
		ride := &models.Ride{}
		driver := &models.UserSummary{}
		err := rows.Scan(
			&ride.ID,
			&ride.DriverID,
			&ride.PassengerID,
			&ride.StartAddress,
			&ride.StartLatitude,
			&ride.StartLongitude,
			&ride.EndAddress,
			&ride.EndLatitude,
			&ride.EndLongitude,
			&ride.DepartureTime,
			&ride.SeatsTotal,
			&ride.AvailableSeats,
			&ride.VehicleType,
			&ride.Status,
			&ride.Fare,
			&ride.DistanceKm,
			&ride.DurationMin,
			&ride.PaymentType,
			&ride.SelectedCardID,
			&ride.CreatedAt,
			&ride.UpdatedAt,
			&driver.ID,
			&driver.FirstName,
			&driver.LastName,
			&driver.Rating,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan search candidate: %w", err)
		}
		results = append(results, &models.SearchRideResult{Ride: ride, Driver: driver})
	}

	return results, total, nil
}

// ListByDriver retrieves a driver's rides, newest first, with total count.
func (r *Repository) ListByDriver(ctx context.Context, driverID uuid.UUID, limit, offset int) ([]*models.Ride, int64, error) {
	var total int64
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM rides WHERE driver_id = $1`, driverID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count rides: %w", err)
	}

	query := `SELECT ` + rideColumns + `
		FROM rides
		WHERE driver_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, driverID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list rides: %w", err)
	}
	defer rows.Close()

	rides := make([]*models.Ride, 0)
	for rows.Next() {
		ride, err := scanRide(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan ride: %w", err)
		}
		rides = append(rides, ride)
	}

	return rides, total, nil
}

// RideChanges is the edit delta applied under the ride row lock. Nil fields
// keep the stored value. Seat edits rebase on the locked row, so a booking
// accepted between the caller's read and this write keeps its seats.
type RideChanges struct {
	StartAddress   *string
	EndAddress     *string
	DepartureTime  *time.Time
	AvailableSeats *int
	VehicleType    *string
	PaymentType    *models.PaymentType
	SelectedCardID *uuid.UUID

	// Rerouted carries freshly resolved coordinates and pricing when an
	// address changed. Nil coordinates mean geocoding failed.
	Rerouted       bool
	StartLatitude  *float64
	StartLongitude *float64
	EndLatitude    *float64
	EndLongitude   *float64
	DistanceKm     float64
	DurationMin    int
	Fare           float64
}

// UpdateRide applies an edit delta inside one transaction. The ride row is
// locked first and the delta is applied to the locked values, so a booking
// acceptance landing between the caller's read and this write is never
// overwritten.
func (r *Repository) UpdateRide(ctx context.Context, rideID, driverID uuid.UUID, changes *RideChanges) (*models.Ride, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, common.NewInternalError("failed to start transaction", err)
	}
	defer tx.Rollback(ctx)

	current, err := scanRide(tx.QueryRow(ctx,
		`SELECT `+rideColumns+` FROM rides WHERE id = $1 FOR UPDATE`, rideID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.NewNotFoundError("ride not found", nil)
		}
		return nil, common.NewInternalError("failed to lock ride", err)
	}

	if current.DriverID != driverID {
		return nil, common.NewForbiddenError("only the driver may update this ride")
	}
	if current.Status == models.RideStatusCompleted {
		return nil, common.NewBusinessRuleError("a completed ride cannot be updated")
	}
	if time.Until(current.DepartureTime) < 24*time.Hour {
		return nil, common.NewBusinessRuleError("rides cannot be updated less than 24 hours before departure")
	}

	if changes.StartAddress != nil {
		current.StartAddress = *changes.StartAddress
	}
	if changes.EndAddress != nil {
		current.EndAddress = *changes.EndAddress
	}
	if changes.DepartureTime != nil {
		current.DepartureTime = *changes.DepartureTime
	}
	if changes.AvailableSeats != nil {
		// Seats already booked are taken from the locked row, not from
		// whatever the caller last saw.
		booked := current.SeatsTotal - current.AvailableSeats
		current.AvailableSeats = *changes.AvailableSeats
		current.SeatsTotal = *changes.AvailableSeats + booked
	}
	if changes.VehicleType != nil {
		current.VehicleType = changes.VehicleType
	}
	if changes.PaymentType != nil {
		current.PaymentType = *changes.PaymentType
	}
	if changes.SelectedCardID != nil {
		current.SelectedCardID = changes.SelectedCardID
	}
	if changes.Rerouted {
		current.StartLatitude = changes.StartLatitude
		current.StartLongitude = changes.StartLongitude
		current.EndLatitude = changes.EndLatitude
		current.EndLongitude = changes.EndLongitude
		current.DistanceKm = changes.DistanceKm
		current.DurationMin = changes.DurationMin
		current.Fare = changes.Fare
	}
	if current.PaymentType == models.PaymentTypeCash {
		current.SelectedCardID = nil
	}

	_, err = tx.Exec(ctx, `
		UPDATE rides
		SET start_address = $1, start_latitude = $2, start_longitude = $3,
			end_address = $4, end_latitude = $5, end_longitude = $6,
			departure_time = $7, seats_total = $8, available_seats = $9,
			vehicle_type = $10, fare = $11, distance_km = $12, duration_min = $13,
			payment_type = $14, selected_card_id = $15, updated_at = NOW()
		WHERE id = $16`,
		current.StartAddress, current.StartLatitude, current.StartLongitude,
		current.EndAddress, current.EndLatitude, current.EndLongitude,
		current.DepartureTime, current.SeatsTotal, current.AvailableSeats,
		current.VehicleType, current.Fare, current.DistanceKm, current.DurationMin,
		current.PaymentType, current.SelectedCardID, current.ID,
	)
	if err != nil {
		return nil, common.NewInternalError("failed to update ride", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, common.NewInternalError("failed to commit transaction", err)
	}

	return current, nil
}

// UpdateStatus transitions a ride inside one transaction. The completed
// transition additionally requires at least one accepted booking and no
// pending digital payment on the ride; cash payments never block it.
func (r *Repository) UpdateStatus(ctx context.Context, rideID, driverID uuid.UUID, status models.RideStatus) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return common.NewInternalError("failed to start transaction", err)
	}
	defer tx.Rollback(ctx)

	current, err := scanRide(tx.QueryRow(ctx,
		`SELECT `+rideColumns+` FROM rides WHERE id = $1 FOR UPDATE`, rideID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return common.NewNotFoundError("ride not found", nil)
		}
		return common.NewInternalError("failed to lock ride", err)
	}

	if current.DriverID != driverID {
		return common.NewForbiddenError("only the driver may change the ride status")
	}
	if current.Status == models.RideStatusCompleted {
		return common.NewBusinessRuleError("a completed ride cannot change status")
	}

	if status == models.RideStatusCompleted {
		var acceptedCount int
		err = tx.QueryRow(ctx, `
			SELECT COUNT(*) FROM booking_requests
			WHERE ride_id = $1 AND status IN ('accepted', 'confirmed')`,
			rideID,
		).Scan(&acceptedCount)
		if err != nil {
			return common.NewInternalError("failed to count accepted bookings", err)
		}
		if acceptedCount == 0 {
			return common.NewBusinessRuleError("a ride without accepted bookings cannot be completed")
		}

		// Only pending card payments block completion. Failed and
		// refunded attempts freed their slot for a resubmission and no
		// longer represent money owed.
		var unpaidDigital int
		err = tx.QueryRow(ctx, `
			SELECT COUNT(*) FROM payments
			WHERE ride_id = $1 AND method <> 'cash' AND status = 'pending'`,
			rideID,
		).Scan(&unpaidDigital)
		if err != nil {
			return common.NewInternalError("failed to check ride payments", err)
		}
		if unpaidDigital > 0 {
			return common.NewBusinessRuleError("ride has unresolved digital payments")
		}
	}

	_, err = tx.Exec(ctx,
		`UPDATE rides SET status = $1, updated_at = NOW() WHERE id = $2`,
		status, rideID,
	)
	if err != nil {
		return common.NewInternalError("failed to update ride status", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return common.NewInternalError("failed to commit transaction", err)
	}

	return nil
}

// DeleteRide removes a ride and cascades over its payments, booking requests
// and conversations in one transaction. Refused while any payment on the
// ride is paid or any booking is accepted/confirmed.
func (r *Repository) DeleteRide(ctx context.Context, rideID, driverID uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return common.NewInternalError("failed to start transaction", err)
	}
	defer tx.Rollback(ctx)

	current, err := scanRide(tx.QueryRow(ctx,
		`SELECT `+rideColumns+` FROM rides WHERE id = $1 FOR UPDATE`, rideID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return common.NewNotFoundError("ride not found", nil)
		}
		return common.NewInternalError("failed to lock ride", err)
	}

	if current.DriverID != driverID {
		return common.NewForbiddenError("only the driver may delete this ride")
	}

	var paidCount int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM payments WHERE ride_id = $1 AND is_paid = true`,
		rideID,
	).Scan(&paidCount)
	if err != nil {
		return common.NewInternalError("failed to check ride payments", err)
	}
	if paidCount > 0 {
		return common.NewBusinessRuleError("a ride with paid payments cannot be deleted")
	}

	var acceptedCount int
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM booking_requests
		WHERE ride_id = $1 AND status IN ('accepted', 'confirmed')`,
		rideID,
	).Scan(&acceptedCount)
	if err != nil {
		return common.NewInternalError("failed to count accepted bookings", err)
	}
	if acceptedCount > 0 {
		return common.NewBusinessRuleError("a ride with accepted bookings cannot be deleted")
	}

	// Payments first, then bookings, then conversations, then the ride
	if _, err = tx.Exec(ctx, `DELETE FROM payments WHERE ride_id = $1`, rideID); err != nil {
		return common.NewInternalError("failed to delete ride payments", err)
	}
	if _, err = tx.Exec(ctx, `DELETE FROM booking_requests WHERE ride_id = $1`, rideID); err != nil {
		return common.NewInternalError("failed to delete booking requests", err)
	}
	if _, err = tx.Exec(ctx, `
		DELETE FROM messages WHERE conversation_id IN
			(SELECT id FROM conversations WHERE ride_id = $1)`, rideID); err != nil {
		return common.NewInternalError("failed to delete ride messages", err)
	}
	if _, err = tx.Exec(ctx, `DELETE FROM conversations WHERE ride_id = $1`, rideID); err != nil {
		return common.NewInternalError("failed to delete ride conversations", err)
	}
	if _, err = tx.Exec(ctx, `DELETE FROM rides WHERE id = $1`, rideID); err != nil {
		return common.NewInternalError("failed to delete ride", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return common.NewInternalError("failed to commit transaction", err)
	}

	return nil
}

// ListPassengerIDs returns the distinct passengers holding booking requests
// in the given statuses for a ride.
func (r *Repository) ListPassengerIDs(ctx context.Context, rideID uuid.UUID, statuses ...models.BookingStatus) ([]uuid.UUID, error) {
	query := `
		SELECT DISTINCT passenger_id FROM booking_requests
		WHERE ride_id = $1 AND status = ANY($2)
	`

	statusStrings := make([]string, len(statuses))
	for i, s := range statuses {
		statusStrings[i] = string(s)
	}

	rows, err := r.db.Query(ctx, query, rideID, statusStrings)
	if err != nil {
		return nil, fmt.Errorf("failed to list ride passengers: %w", err)
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan passenger id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, nil
}

// GetUserByID retrieves a user from the directory.
func (r *Repository) GetUserByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	query := `
		SELECT id, email, first_name, last_name, phone_number, rating,
			   is_active, stripe_customer_id, stripe_account_id, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	user := &models.User{}
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&user.ID,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&user.PhoneNumber,
		&user.Rating,
		&user.IsActive,
		&user.StripeCustomerID,
		&user.StripeAccountID,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.NewNotFoundError("user not found", nil)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// GetCard retrieves a saved card reference.
func (r *Repository) GetCard(ctx context.Context, cardID uuid.UUID) (*models.Card, error) {
	query := `
		SELECT id, user_id, stripe_payment_method_id, brand, last4, created_at
		FROM cards
		WHERE id = $1
	`

	card := &models.Card{}
	err := r.db.QueryRow(ctx, query, cardID).Scan(
		&card.ID,
		&card.UserID,
		&card.StripePaymentMethodID,
		&card.Brand,
		&card.Last4,
		&card.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.NewNotFoundError("card not found", nil)
		}
		return nil, fmt.Errorf("failed to get card: %w", err)
	}

	return card, nil
}
