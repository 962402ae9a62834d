package bookings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/poolride/carpool/pkg/common"
	"github.com/poolride/carpool/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func bookingLockRows(rideID, passengerID uuid.UUID, count int, status models.BookingStatus, driverID uuid.UUID) *pgxmock.Rows {
	now := time.Now()
	return pgxmock.NewRows([]string{
		"ride_id", "passenger_id", "passenger_count", "status",
		"created_at", "updated_at", "driver_id",
	}).AddRow(rideID, passengerID, count, status, now, now, driverID)
}

func TestRepository_AcceptBooking_SeatRaceRollsBack(t *testing.T) {
	pool := newMockPool(t)
	repo := NewRepository(pool)

	bookingID := uuid.New()
	rideID := uuid.New()
	driverID := uuid.New()

	pool.ExpectBegin()
	pool.ExpectQuery(`FROM booking_requests b\s+JOIN rides r ON r\.id = b\.ride_id`).
		WithArgs(bookingID).
		WillReturnRows(bookingLockRows(rideID, uuid.New(), 2, models.BookingStatusPending, driverID))
	// Another accept drained the seats between requests; the conditional
	// update matches no row.
	pool.ExpectExec(`SET available_seats = available_seats - \$1`).
		WithArgs(2, rideID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	pool.ExpectRollback()

	_, err := repo.AcceptBooking(context.Background(), bookingID, driverID)

	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, 400, appErr.Code)
	assert.Contains(t, appErr.Message, "not enough available seats")
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestRepository_AcceptBooking_LastSeatBooksRideAndRejectsOthers(t *testing.T) {
	pool := newMockPool(t)
	repo := NewRepository(pool)

	bookingID := uuid.New()
	rideID := uuid.New()
	driverID := uuid.New()
	passengerID := uuid.New()
	rejectedID := uuid.New()

	pool.ExpectBegin()
	pool.ExpectQuery(`FROM booking_requests b\s+JOIN rides r ON r\.id = b\.ride_id`).
		WithArgs(bookingID).
		WillReturnRows(bookingLockRows(rideID, passengerID, 1, models.BookingStatusPending, driverID))
	pool.ExpectExec(`SET available_seats = available_seats - \$1`).
		WithArgs(1, rideID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	pool.ExpectExec(`UPDATE booking_requests SET status = 'accepted'`).
		WithArgs(bookingID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	pool.ExpectQuery(`SELECT available_seats FROM rides WHERE id = \$1`).
		WithArgs(rideID).
		WillReturnRows(pgxmock.NewRows([]string{"available_seats"}).AddRow(0))
	pool.ExpectExec(`UPDATE rides SET status = 'booked'`).
		WithArgs(rideID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	pool.ExpectQuery(`SET status = 'rejected'.*RETURNING passenger_id`).
		WithArgs(rideID).
		WillReturnRows(pgxmock.NewRows([]string{"passenger_id"}).AddRow(rejectedID))
	pool.ExpectCommit()

	result, err := repo.AcceptBooking(context.Background(), bookingID, driverID)

	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusAccepted, result.Booking.Status)
	assert.True(t, result.RideFull)
	assert.Equal(t, []uuid.UUID{rejectedID}, result.RejectedOthers)
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestRepository_AcceptBooking_DriverOnly(t *testing.T) {
	pool := newMockPool(t)
	repo := NewRepository(pool)

	bookingID := uuid.New()

	pool.ExpectBegin()
	pool.ExpectQuery(`FROM booking_requests b\s+JOIN rides r ON r\.id = b\.ride_id`).
		WithArgs(bookingID).
		WillReturnRows(bookingLockRows(uuid.New(), uuid.New(), 1, models.BookingStatusPending, uuid.New()))
	pool.ExpectRollback()

	_, err := repo.AcceptBooking(context.Background(), bookingID, uuid.New())

	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, 403, appErr.Code)
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestRepository_CreateBooking_DuplicateRequest(t *testing.T) {
	pool := newMockPool(t)
	repo := NewRepository(pool)

	rideID := uuid.New()
	passengerID := uuid.New()

	pool.ExpectBegin()
	pool.ExpectQuery(`SELECT driver_id, status, available_seats FROM rides WHERE id = \$1 FOR UPDATE`).
		WithArgs(rideID).
		WillReturnRows(pgxmock.NewRows([]string{"driver_id", "status", "available_seats"}).
			AddRow(uuid.New(), models.RideStatusActive, 3))
	pool.ExpectQuery(`SELECT COUNT\(\*\) FROM booking_requests WHERE ride_id = \$1 AND passenger_id = \$2`).
		WithArgs(rideID, passengerID).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))
	pool.ExpectRollback()

	_, err := repo.CreateBooking(context.Background(), rideID, passengerID, 1)

	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, 400, appErr.Code)
	assert.Contains(t, appErr.Message, "already have a request")
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestRepository_CreateBooking_InsufficientSeats(t *testing.T) {
	pool := newMockPool(t)
	repo := NewRepository(pool)

	rideID := uuid.New()

	pool.ExpectBegin()
	pool.ExpectQuery(`SELECT driver_id, status, available_seats FROM rides WHERE id = \$1 FOR UPDATE`).
		WithArgs(rideID).
		WillReturnRows(pgxmock.NewRows([]string{"driver_id", "status", "available_seats"}).
			AddRow(uuid.New(), models.RideStatusActive, 1))
	pool.ExpectRollback()

	_, err := repo.CreateBooking(context.Background(), rideID, uuid.New(), 2)

	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, 400, appErr.Code)
	assert.Contains(t, appErr.Message, "not enough available seats")
	assert.NoError(t, pool.ExpectationsWereMet())
}
