package payments

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

func TestRepository_CreatePayment_DuplicateActivePayment(t *testing.T) {
	pool := newMockPool(t)
	repo := NewRepository(pool)

	payment := &models.Payment{
		ID:     uuid.New(),
		RideID: uuid.New(),
		UserID: uuid.New(),
		Method: models.PaymentMethodCash,
		Status: models.PaymentStatusPending,
	}

	pool.ExpectBegin()
	pool.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM rides WHERE id = \$1 FOR UPDATE\)`).
		WithArgs(payment.RideID).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	pool.ExpectQuery(`SELECT COUNT\(\*\) FROM payments\s+WHERE ride_id = \$1 AND user_id = \$2 AND status IN \('pending', 'succeeded'\)`).
		WithArgs(payment.RideID, payment.UserID).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))
	pool.ExpectRollback()

	err := repo.CreatePayment(context.Background(), payment)

	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, 400, appErr.Code)
	assert.Contains(t, appErr.Message, "already exists")
	assert.NoError(t, pool.ExpectationsWereMet())
}

// A failed attempt does not hold the (ride, payer) slot; only pending and
// succeeded payments count as active.
func TestRepository_CreatePayment_FailedAttemptDoesNotBlockRetry(t *testing.T) {
	pool := newMockPool(t)
	repo := NewRepository(pool)

	payment := &models.Payment{
		ID:          uuid.New(),
		RideID:      uuid.New(),
		UserID:      uuid.New(),
		AmountCents: 5900,
		Currency:    "usd",
		Method:      models.PaymentMethodCard,
		Status:      models.PaymentStatusPending,
	}

	pool.ExpectBegin()
	pool.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM rides WHERE id = \$1 FOR UPDATE\)`).
		WithArgs(payment.RideID).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	pool.ExpectQuery(`SELECT COUNT\(\*\) FROM payments\s+WHERE ride_id = \$1 AND user_id = \$2 AND status IN \('pending', 'succeeded'\)`).
		WithArgs(payment.RideID, payment.UserID).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	pool.ExpectQuery(`INSERT INTO payments`).
		WithArgs(
			payment.ID, payment.RideID, payment.UserID, payment.StripeChargeID,
			payment.AmountCents, payment.Currency, payment.Method, payment.Status,
			payment.IsPaid, payment.CommissionCents, payment.DriverAmountCents,
		).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).
			AddRow(time.Now(), time.Now()))
	pool.ExpectCommit()

	err := repo.CreatePayment(context.Background(), payment)

	require.NoError(t, err)
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestRepository_CreatePayout_RecheckRefusesOverdraw(t *testing.T) {
	pool := newMockPool(t)
	repo := NewRepository(pool)

	payout := &models.Payout{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		AmountCents: 6000,
		Currency:    "usd",
		Status:      "pending",
	}

	pool.ExpectBegin()
	pool.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM users WHERE id = \$1 FOR UPDATE\)`).
		WithArgs(payout.UserID).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	pool.ExpectQuery(`SELECT COALESCE\(SUM\(p\.driver_amount_cents\), 0\)`).
		WithArgs(payout.UserID).
		WillReturnRows(pgxmock.NewRows([]string{"coalesce"}).AddRow(int64(5015)))
	// A concurrent payout already drained part of the balance.
	pool.ExpectQuery(`SELECT COALESCE\(SUM\(amount_cents\), 0\)\s+FROM payouts\s+WHERE user_id = \$1 AND status <> 'failed'`).
		WithArgs(payout.UserID).
		WillReturnRows(pgxmock.NewRows([]string{"coalesce"}).AddRow(int64(2000)))
	pool.ExpectRollback()

	err := repo.CreatePayout(context.Background(), payout)

	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, 400, appErr.Code)
	assert.Contains(t, appErr.Message, "exceeds available balance")
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestRepository_CreatePayout_FailedPayoutsDoNotCountAsWithdrawn(t *testing.T) {
	pool := newMockPool(t)
	repo := NewRepository(pool)

	payout := &models.Payout{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		AmountCents: 5000,
		Currency:    "usd",
		Status:      "pending",
	}

	pool.ExpectBegin()
	pool.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM users WHERE id = \$1 FOR UPDATE\)`).
		WithArgs(payout.UserID).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	pool.ExpectQuery(`SELECT COALESCE\(SUM\(p\.driver_amount_cents\), 0\)`).
		WithArgs(payout.UserID).
		WillReturnRows(pgxmock.NewRows([]string{"coalesce"}).AddRow(int64(5015)))
	pool.ExpectQuery(`SELECT COALESCE\(SUM\(amount_cents\), 0\)\s+FROM payouts\s+WHERE user_id = \$1 AND status <> 'failed'`).
		WithArgs(payout.UserID).
		WillReturnRows(pgxmock.NewRows([]string{"coalesce"}).AddRow(int64(0)))
	pool.ExpectQuery(`INSERT INTO payouts`).
		WithArgs(
			payout.ID, payout.UserID, payout.StripePayoutID, payout.AmountCents,
			payout.Currency, payout.Status,
		).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).
			AddRow(time.Now(), time.Now()))
	pool.ExpectCommit()

	err := repo.CreatePayout(context.Background(), payout)

	require.NoError(t, err)
	assert.NoError(t, pool.ExpectationsWereMet())
}
