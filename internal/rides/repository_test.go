package rides

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

// lockedRideRows builds the full ride row returned by the FOR UPDATE read.
func lockedRideRows(ride *models.Ride) *pgxmock.Rows {
	now := time.Now()
	return pgxmock.NewRows([]string{
		"id", "driver_id", "passenger_id", "start_address", "start_latitude", "start_longitude",
		"end_address", "end_latitude", "end_longitude", "departure_time", "seats_total",
		"available_seats", "vehicle_type", "status", "fare", "distance_km", "duration_min",
		"payment_type", "selected_card_id", "created_at", "updated_at",
	}).AddRow(
		ride.ID, ride.DriverID, ride.PassengerID, ride.StartAddress,
		ride.StartLatitude, ride.StartLongitude, ride.EndAddress,
		ride.EndLatitude, ride.EndLongitude, ride.DepartureTime,
		ride.SeatsTotal, ride.AvailableSeats, ride.VehicleType, ride.Status,
		ride.Fare, ride.DistanceKm, ride.DurationMin, ride.PaymentType,
		ride.SelectedCardID, now, now,
	)
}

func storedRide(driverID uuid.UUID, status models.RideStatus) *models.Ride {
	return &models.Ride{
		ID:             uuid.New(),
		DriverID:       driverID,
		StartAddress:   "Berlin",
		EndAddress:     "Munich",
		DepartureTime:  time.Now().Add(72 * time.Hour),
		SeatsTotal:     3,
		AvailableSeats: 1,
		Status:         status,
		Fare:           59.0,
		DistanceKm:     504.4,
		DurationMin:    378,
		PaymentType:    models.PaymentTypeCash,
	}
}

func TestRepository_UpdateRide_RebasesSeatsOnLockedRow(t *testing.T) {
	pool := newMockPool(t)
	repo := NewRepository(pool)

	driverID := uuid.New()
	// Two seats were booked since the driver last read the ride.
	ride := storedRide(driverID, models.RideStatusActive)

	pool.ExpectBegin()
	pool.ExpectQuery(`FROM rides WHERE id = \$1 FOR UPDATE`).
		WithArgs(ride.ID).
		WillReturnRows(lockedRideRows(ride))
	// The new capacity of 2 is added on top of the 2 booked seats.
	pool.ExpectExec(`UPDATE rides\s+SET start_address = \$1`).
		WithArgs(
			ride.StartAddress, ride.StartLatitude, ride.StartLongitude,
			ride.EndAddress, ride.EndLatitude, ride.EndLongitude,
			ride.DepartureTime, 4, 2,
			ride.VehicleType, ride.Fare, ride.DistanceKm, ride.DurationMin,
			ride.PaymentType, ride.SelectedCardID, ride.ID,
		).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	pool.ExpectCommit()

	seats := 2
	updated, err := repo.UpdateRide(context.Background(), ride.ID, driverID, &RideChanges{
		AvailableSeats: &seats,
	})

	require.NoError(t, err)
	assert.Equal(t, 2, updated.AvailableSeats)
	assert.Equal(t, 4, updated.SeatsTotal)
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestRepository_UpdateRide_CompletedRideRefused(t *testing.T) {
	pool := newMockPool(t)
	repo := NewRepository(pool)

	driverID := uuid.New()
	ride := storedRide(driverID, models.RideStatusCompleted)

	pool.ExpectBegin()
	pool.ExpectQuery(`FROM rides WHERE id = \$1 FOR UPDATE`).
		WithArgs(ride.ID).
		WillReturnRows(lockedRideRows(ride))
	pool.ExpectRollback()

	seats := 2
	_, err := repo.UpdateRide(context.Background(), ride.ID, driverID, &RideChanges{
		AvailableSeats: &seats,
	})

	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, 400, appErr.Code)
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestRepository_UpdateStatus_CompletedBlockedByPendingPayment(t *testing.T) {
	pool := newMockPool(t)
	repo := NewRepository(pool)

	driverID := uuid.New()
	ride := storedRide(driverID, models.RideStatusBooked)

	pool.ExpectBegin()
	pool.ExpectQuery(`FROM rides WHERE id = \$1 FOR UPDATE`).
		WithArgs(ride.ID).
		WillReturnRows(lockedRideRows(ride))
	pool.ExpectQuery(`SELECT COUNT\(\*\) FROM booking_requests\s+WHERE ride_id = \$1 AND status IN \('accepted', 'confirmed'\)`).
		WithArgs(ride.ID).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))
	pool.ExpectQuery(`SELECT COUNT\(\*\) FROM payments\s+WHERE ride_id = \$1 AND method <> 'cash' AND status = 'pending'`).
		WithArgs(ride.ID).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))
	pool.ExpectRollback()

	err := repo.UpdateStatus(context.Background(), ride.ID, driverID, models.RideStatusCompleted)

	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, 400, appErr.Code)
	assert.Contains(t, appErr.Message, "unresolved digital payments")
	assert.NoError(t, pool.ExpectationsWereMet())
}

// A failed card attempt must not block completion; the guard counts only
// pending payments, so a ride whose declined charge was never retried still
// completes.
func TestRepository_UpdateStatus_CompletedIgnoresSettledAttempts(t *testing.T) {
	pool := newMockPool(t)
	repo := NewRepository(pool)

	driverID := uuid.New()
	ride := storedRide(driverID, models.RideStatusBooked)

	pool.ExpectBegin()
	pool.ExpectQuery(`FROM rides WHERE id = \$1 FOR UPDATE`).
		WithArgs(ride.ID).
		WillReturnRows(lockedRideRows(ride))
	pool.ExpectQuery(`SELECT COUNT\(\*\) FROM booking_requests\s+WHERE ride_id = \$1 AND status IN \('accepted', 'confirmed'\)`).
		WithArgs(ride.ID).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))
	pool.ExpectQuery(`SELECT COUNT\(\*\) FROM payments\s+WHERE ride_id = \$1 AND method <> 'cash' AND status = 'pending'`).
		WithArgs(ride.ID).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	pool.ExpectExec(`UPDATE rides SET status = \$1`).
		WithArgs(models.RideStatusCompleted, ride.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	pool.ExpectCommit()

	err := repo.UpdateStatus(context.Background(), ride.ID, driverID, models.RideStatusCompleted)

	require.NoError(t, err)
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestRepository_UpdateStatus_CompletedRequiresAcceptedBooking(t *testing.T) {
	pool := newMockPool(t)
	repo := NewRepository(pool)

	driverID := uuid.New()
	ride := storedRide(driverID, models.RideStatusActive)

	pool.ExpectBegin()
	pool.ExpectQuery(`FROM rides WHERE id = \$1 FOR UPDATE`).
		WithArgs(ride.ID).
		WillReturnRows(lockedRideRows(ride))
	pool.ExpectQuery(`SELECT COUNT\(\*\) FROM booking_requests\s+WHERE ride_id = \$1 AND status IN \('accepted', 'confirmed'\)`).
		WithArgs(ride.ID).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	pool.ExpectRollback()

	err := repo.UpdateStatus(context.Background(), ride.ID, driverID, models.RideStatusCompleted)

	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, 400, appErr.Code)
	assert.Contains(t, appErr.Message, "without accepted bookings")
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestRepository_DeleteRide_RefusedWithPaidPayment(t *testing.T) {
	pool := newMockPool(t)
	repo := NewRepository(pool)

	driverID := uuid.New()
	ride := storedRide(driverID, models.RideStatusActive)

	pool.ExpectBegin()
	pool.ExpectQuery(`FROM rides WHERE id = \$1 FOR UPDATE`).
		WithArgs(ride.ID).
		WillReturnRows(lockedRideRows(ride))
	pool.ExpectQuery(`SELECT COUNT\(\*\) FROM payments WHERE ride_id = \$1 AND is_paid = true`).
		WithArgs(ride.ID).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))
	pool.ExpectRollback()

	err := repo.DeleteRide(context.Background(), ride.ID, driverID)

	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, 400, appErr.Code)
	assert.Contains(t, appErr.Message, "paid payments")
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestRepository_DeleteRide_CascadesInOrder(t *testing.T) {
	pool := newMockPool(t)
	repo := NewRepository(pool)

	driverID := uuid.New()
	ride := storedRide(driverID, models.RideStatusActive)

	pool.ExpectBegin()
	pool.ExpectQuery(`FROM rides WHERE id = \$1 FOR UPDATE`).
		WithArgs(ride.ID).
		WillReturnRows(lockedRideRows(ride))
	pool.ExpectQuery(`SELECT COUNT\(\*\) FROM payments WHERE ride_id = \$1 AND is_paid = true`).
		WithArgs(ride.ID).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	pool.ExpectQuery(`SELECT COUNT\(\*\) FROM booking_requests\s+WHERE ride_id = \$1 AND status IN \('accepted', 'confirmed'\)`).
		WithArgs(ride.ID).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	pool.ExpectExec(`DELETE FROM payments WHERE ride_id = \$1`).
		WithArgs(ride.ID).WillReturnResult(pgxmock.NewResult("DELETE", 0))
	pool.ExpectExec(`DELETE FROM booking_requests WHERE ride_id = \$1`).
		WithArgs(ride.ID).WillReturnResult(pgxmock.NewResult("DELETE", 0))
	pool.ExpectExec(`DELETE FROM messages WHERE conversation_id IN`).
		WithArgs(ride.ID).WillReturnResult(pgxmock.NewResult("DELETE", 0))
	pool.ExpectExec(`DELETE FROM conversations WHERE ride_id = \$1`).
		WithArgs(ride.ID).WillReturnResult(pgxmock.NewResult("DELETE", 0))
	pool.ExpectExec(`DELETE FROM rides WHERE id = \$1`).
		WithArgs(ride.ID).WillReturnResult(pgxmock.NewResult("DELETE", 1))
	pool.ExpectCommit()

	err := repo.DeleteRide(context.Background(), ride.ID, driverID)

	require.NoError(t, err)
	assert.NoError(t, pool.ExpectationsWereMet())
}
