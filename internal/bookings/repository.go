package bookings

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/poolride/carpool/pkg/common"
	"github.com/poolride/carpool/pkg/database"
	"github.com/poolride/carpool/pkg/models"
)

// Repository handles database operations for booking requests
type Repository struct {
	db database.DB
}

// NewRepository creates a new bookings repository
func NewRepository(db database.DB) *Repository {
	return &Repository{db: db}
}

// AcceptResult reports what the accept transaction did.
type AcceptResult struct {
	Booking        *models.BookingRequest
	RideFull       bool
	RejectedOthers []uuid.UUID
	DriverID       uuid.UUID
}

// CreateBooking inserts a pending booking request inside one transaction.
// The ride row is locked so the checks hold against concurrent acceptances.
// A passenger gets at most one request per ride, in any status.
func (r *Repository) CreateBooking(ctx context.Context, rideID, passengerID uuid.UUID, passengerCount int) (*models.BookingRequest, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, common.NewInternalError("failed to start transaction", err)
	}
	defer tx.Rollback(ctx)

	var driverID uuid.UUID
	var status models.RideStatus
	var availableSeats int
	err = tx.QueryRow(ctx,
		`SELECT driver_id, status, available_seats FROM rides WHERE id = $1 FOR UPDATE`,
		rideID,
	).Scan(&driverID, &status, &availableSeats)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.NewNotFoundError("ride not found", nil)
		}
		return nil, common.NewInternalError("failed to lock ride", err)
	}

	if driverID == passengerID {
		return nil, common.NewBusinessRuleError("drivers cannot book their own ride")
	}
	if status != models.RideStatusActive {
		return nil, common.NewBusinessRuleError("ride is not open for booking")
	}
	if availableSeats < passengerCount {
		return nil, common.NewBusinessRuleError("not enough available seats")
	}

	var existing int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM booking_requests WHERE ride_id = $1 AND passenger_id = $2`,
		rideID, passengerID,
	).Scan(&existing)
	if err != nil {
		return nil, common.NewInternalError("failed to check existing requests", err)
	}
	if existing > 0 {
		return nil, common.NewBusinessRuleError("you already have a request for this ride")
	}

	booking := &models.BookingRequest{
		ID:             uuid.New(),
		RideID:         rideID,
		PassengerID:    passengerID,
		PassengerCount: passengerCount,
		Status:         models.BookingStatusPending,
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO booking_requests (id, ride_id, passenger_id, passenger_count, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		booking.ID, booking.RideID, booking.PassengerID, booking.PassengerCount, booking.Status,
	).Scan(&booking.CreatedAt, &booking.UpdatedAt)
	if err != nil {
		return nil, common.NewInternalError("failed to create booking request", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, common.NewInternalError("failed to commit transaction", err)
	}

	return booking, nil
}

// AcceptBooking accepts a pending request and decrements the ride's seats in
// one transaction. The seat decrement is a conditional update; losing the
// race for the last seats fails the whole transaction rather than going
// negative. When the last seat is taken the ride flips to booked and all
// remaining pending requests are rejected.
func (r *Repository) AcceptBooking(ctx context.Context, bookingID, driverID uuid.UUID) (*AcceptResult, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, common.NewInternalError("failed to start transaction", err)
	}
	defer tx.Rollback(ctx)

	booking := &models.BookingRequest{ID: bookingID}
	var rideDriverID uuid.UUID
	err = tx.QueryRow(ctx, `
		SELECT b.ride_id, b.passenger_id, b.passenger_count, b.status,
			   b.created_at, b.updated_at, r.driver_id
		FROM booking_requests b
		JOIN rides r ON r.id = b.ride_id
		WHERE b.id = $1
		FOR UPDATE OF b, r`,
		bookingID,
	).Scan(
		&booking.RideID, &booking.PassengerID, &booking.PassengerCount,
		&booking.Status, &booking.CreatedAt, &booking.UpdatedAt, &rideDriverID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.NewNotFoundError("booking request not found", nil)
		}
		return nil, common.NewInternalError("failed to lock booking request", err)
	}

	if rideDriverID != driverID {
		return nil, common.NewForbiddenError("only the driver may respond to this request")
	}
	if booking.Status != models.BookingStatusPending {
		return nil, common.NewBusinessRuleError("booking request has already been resolved")
	}

	tag, err := tx.Exec(ctx, `
		UPDATE rides
		SET available_seats = available_seats - $1, updated_at = NOW()
		WHERE id = $2
		  AND status = 'active'
		  AND available_seats >= $1`,
		booking.PassengerCount, booking.RideID,
	)
	if err != nil {
		return nil, common.NewInternalError("failed to reserve seats", err)
	}
	if tag.RowsAffected() != 1 {
		return nil, common.NewBusinessRuleError("not enough available seats")
	}

	_, err = tx.Exec(ctx,
		`UPDATE booking_requests SET status = 'accepted', updated_at = NOW() WHERE id = $1`,
		bookingID,
	)
	if err != nil {
		return nil, common.NewInternalError("failed to accept booking request", err)
	}
	booking.Status = models.BookingStatusAccepted

	var remainingSeats int
	err = tx.QueryRow(ctx,
		`SELECT available_seats FROM rides WHERE id = $1`, booking.RideID,
	).Scan(&remainingSeats)
	if err != nil {
		return nil, common.NewInternalError("failed to read remaining seats", err)
	}

	result := &AcceptResult{Booking: booking, DriverID: driverID}

	if remainingSeats == 0 {
		result.RideFull = true

		_, err = tx.Exec(ctx,
			`UPDATE rides SET status = 'booked', updated_at = NOW() WHERE id = $1`,
			booking.RideID,
		)
		if err != nil {
			return nil, common.NewInternalError("failed to mark ride as booked", err)
		}

		rows, err := tx.Query(ctx, `
			UPDATE booking_requests
			SET status = 'rejected', updated_at = NOW()
			WHERE ride_id = $1 AND status = 'pending'
			RETURNING passenger_id`,
			booking.RideID,
		)
		if err != nil {
			return nil, common.NewInternalError("failed to reject remaining requests", err)
		}
		for rows.Next() {
			var passengerID uuid.UUID
			if err := rows.Scan(&passengerID); err != nil {
				rows.Close()
				return nil, common.NewInternalError("failed to scan rejected request", err)
			}
			result.RejectedOthers = append(result.RejectedOthers, passengerID)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, common.NewInternalError("failed to reject remaining requests", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, common.NewInternalError("failed to commit transaction", err)
	}

	return result, nil
}

// RejectBooking rejects a pending request. Rejection never touches seats.
func (r *Repository) RejectBooking(ctx context.Context, bookingID, driverID uuid.UUID) (*models.BookingRequest, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, common.NewInternalError("failed to start transaction", err)
	}
	defer tx.Rollback(ctx)

	booking := &models.BookingRequest{ID: bookingID}
	var rideDriverID uuid.UUID
	err = tx.QueryRow(ctx, `
		SELECT b.ride_id, b.passenger_id, b.passenger_count, b.status,
			   b.created_at, b.updated_at, r.driver_id
		FROM booking_requests b
		JOIN rides r ON r.id = b.ride_id
		WHERE b.id = $1
		FOR UPDATE OF b`,
		bookingID,
	).Scan(
		&booking.RideID, &booking.PassengerID, &booking.PassengerCount,
		&booking.Status, &booking.CreatedAt, &booking.UpdatedAt, &rideDriverID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.NewNotFoundError("booking request not found", nil)
		}
		return nil, common.NewInternalError("failed to lock booking request", err)
	}

	if rideDriverID != driverID {
		return nil, common.NewForbiddenError("only the driver may respond to this request")
	}
	if booking.Status != models.BookingStatusPending {
		return nil, common.NewBusinessRuleError("booking request has already been resolved")
	}

	_, err = tx.Exec(ctx,
		`UPDATE booking_requests SET status = 'rejected', updated_at = NOW() WHERE id = $1`,
		bookingID,
	)
	if err != nil {
		return nil, common.NewInternalError("failed to reject booking request", err)
	}
	booking.Status = models.BookingStatusRejected

	if err := tx.Commit(ctx); err != nil {
		return nil, common.NewInternalError("failed to commit transaction", err)
	}

	return booking, nil
}

// GetUserSummary retrieves the compact passenger view.
func (r *Repository) GetUserSummary(ctx context.Context, userID uuid.UUID) (*models.UserSummary, error) {
	summary := &models.UserSummary{}
	err := r.db.QueryRow(ctx,
		`SELECT id, first_name, last_name, rating FROM users WHERE id = $1`,
		userID,
	).Scan(&summary.ID, &summary.FirstName, &summary.LastName, &summary.Rating)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.NewNotFoundError("user not found", nil)
		}
		return nil, fmt.Errorf("failed to get user summary: %w", err)
	}

	return summary, nil
}

// GetBookingByID retrieves a booking request.
func (r *Repository) GetBookingByID(ctx context.Context, bookingID uuid.UUID) (*models.BookingRequest, error) {
	booking := &models.BookingRequest{}
	err := r.db.QueryRow(ctx, `
		SELECT id, ride_id, passenger_id, passenger_count, status, created_at, updated_at
		FROM booking_requests
		WHERE id = $1`,
		bookingID,
	).Scan(
		&booking.ID, &booking.RideID, &booking.PassengerID, &booking.PassengerCount,
		&booking.Status, &booking.CreatedAt, &booking.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.NewNotFoundError("booking request not found", nil)
		}
		return nil, fmt.Errorf("failed to get booking request: %w", err)
	}

	return booking, nil
}

// ListForRide retrieves all booking requests on a ride with passenger summaries.
func (r *Repository) ListForRide(ctx context.Context, rideID uuid.UUID) ([]*models.BookingResponse, error) {
	rows, err := r.db.Query(ctx, `
		SELECT b.id, b.ride_id, b.passenger_id, b.passenger_count, b.status,
			   b.created_at, b.updated_at,
			   u.id, u.first_name, u.last_name, u.rating
		FROM booking_requests b
		JOIN users u ON u.id = b.passenger_id
		WHERE b.ride_id = $1
		ORDER BY b.created_at ASC`,
		rideID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list booking requests: %w", err)
	}
	defer rows.Close()

	bookings := make([]*models.BookingResponse, 0)
	for rows.Next() {
		booking := &models.BookingRequest{}
		passenger := &models.UserSummary{}
		err := rows.Scan(
			&booking.ID, &booking.RideID, &booking.PassengerID, &booking.PassengerCount,
			&booking.Status, &booking.CreatedAt, &booking.UpdatedAt,
			&passenger.ID, &passenger.FirstName, &passenger.LastName, &passenger.Rating,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking request: %w", err)
		}
		bookings = append(bookings, &models.BookingResponse{BookingRequest: booking, Passenger: passenger})
	}

	return bookings, nil
}

// ListForPassenger retrieves a passenger's booking requests, newest first.
func (r *Repository) ListForPassenger(ctx context.Context, passengerID uuid.UUID, limit, offset int) ([]*models.BookingRequest, int64, error) {
	var total int64
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM booking_requests WHERE passenger_id = $1`, passengerID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count booking requests: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, ride_id, passenger_id, passenger_count, status, created_at, updated_at
		FROM booking_requests
		WHERE passenger_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		passengerID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list booking requests: %w", err)
	}
	defer rows.Close()

	bookings := make([]*models.BookingRequest, 0)
	for rows.Next() {
		booking := &models.BookingRequest{}
		err := rows.Scan(
			&booking.ID, &booking.RideID, &booking.PassengerID, &booking.PassengerCount,
			&booking.Status, &booking.CreatedAt, &booking.UpdatedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan booking request: %w", err)
		}
		bookings = append(bookings, booking)
	}

	return bookings, total, nil
}

// GetRideByID retrieves the ride a booking belongs to.
func (r *Repository) GetRideByID(ctx context.Context, rideID uuid.UUID) (*models.Ride, error) {
	ride := &models.Ride{}
	err := r.db.QueryRow(ctx, `
		SELECT id, driver_id, start_address, end_address, departure_time,
			   seats_total, available_seats, status, fare, payment_type
		FROM rides
		WHERE id = $1`,
		rideID,
	).Scan(
		&ride.ID, &ride.DriverID, &ride.StartAddress, &ride.EndAddress,
		&ride.DepartureTime, &ride.SeatsTotal, &ride.AvailableSeats,
		&ride.Status, &ride.Fare, &ride.PaymentType,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.NewNotFoundError("ride not found", nil)
		}
		return nil, fmt.Errorf("failed to get ride: %w", err)
	}

	return ride, nil
}
