package payments

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

const paymentColumns = `
	id, ride_id, user_id, stripe_charge_id, amount_cents, currency, method,
	status, is_paid, commission_cents, driver_amount_cents, created_at, updated_at`

// Repository handles database operations for payments and payouts
type Repository struct {
	db database.DB
}

// NewRepository creates a new payments repository
func NewRepository(db database.DB) *Repository {
	return &Repository{db: db}
}

func scanPayment(row pgx.Row) (*models.Payment, error) {
	p := &models.Payment{}
	err := row.Scan(
		&p.ID, &p.RideID, &p.UserID, &p.StripeChargeID, &p.AmountCents,
		&p.Currency, &p.Method, &p.Status, &p.IsPaid, &p.CommissionCents,
		&p.DriverAmountCents, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetRideForPayment retrieves the ride fields the settlement flow needs.
func (r *Repository) GetRideForPayment(ctx context.Context, rideID uuid.UUID) (*models.Ride, error) {
	ride := &models.Ride{}
	err := r.db.QueryRow(ctx, `
		SELECT id, driver_id, start_address, end_address, status, fare, payment_type
		FROM rides
		WHERE id = $1`,
		rideID,
	).Scan(
		&ride.ID, &ride.DriverID, &ride.StartAddress, &ride.EndAddress,
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

// GetAcceptedBooking retrieves the passenger's accepted booking on a ride.
func (r *Repository) GetAcceptedBooking(ctx context.Context, rideID, passengerID uuid.UUID) (*models.BookingRequest, error) {
	booking := &models.BookingRequest{}
	err := r.db.QueryRow(ctx, `
		SELECT id, ride_id, passenger_id, passenger_count, status, created_at, updated_at
		FROM booking_requests
		WHERE ride_id = $1 AND passenger_id = $2 AND status IN ('accepted', 'confirmed')`,
		rideID, passengerID,
	).Scan(
		&booking.ID, &booking.RideID, &booking.PassengerID, &booking.PassengerCount,
		&booking.Status, &booking.CreatedAt, &booking.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.NewBusinessRuleError("no accepted booking on this ride")
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	return booking, nil
}

// CreatePayment inserts a payment inside one transaction. The ride row is
// locked so only one active payment per ride and payer can exist.
func (r *Repository) CreatePayment(ctx context.Context, payment *models.Payment) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return common.NewInternalError("failed to start transaction", err)
	}
	defer tx.Rollback(ctx)

	var rideExists bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM rides WHERE id = $1 FOR UPDATE)`,
		payment.RideID,
	).Scan(&rideExists)
	if err != nil {
		return common.NewInternalError("failed to lock ride", err)
	}
	if !rideExists {
		return common.NewNotFoundError("ride not found", nil)
	}

	var active int
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM payments
		WHERE ride_id = $1 AND user_id = $2 AND status IN ('pending', 'succeeded')`,
		payment.RideID, payment.UserID,
	).Scan(&active)
	if err != nil {
		return common.NewInternalError("failed to check existing payments", err)
	}
	if active > 0 {
		return common.NewBusinessRuleError("an active payment for this ride already exists")
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO payments (
			id, ride_id, user_id, stripe_charge_id, amount_cents, currency,
			method, status, is_paid, commission_cents, driver_amount_cents
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`,
		payment.ID, payment.RideID, payment.UserID, payment.StripeChargeID,
		payment.AmountCents, payment.Currency, payment.Method, payment.Status,
		payment.IsPaid, payment.CommissionCents, payment.DriverAmountCents,
	).Scan(&payment.CreatedAt, &payment.UpdatedAt)
	if err != nil {
		return common.NewInternalError("failed to create payment", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return common.NewInternalError("failed to commit transaction", err)
	}

	return nil
}

// GetPaymentByID retrieves a payment.
func (r *Repository) GetPaymentByID(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	payment, err := scanPayment(r.db.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, paymentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.NewNotFoundError("payment not found", nil)
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}

	return payment, nil
}

// GetPaymentByChargeID retrieves a payment by its gateway charge reference.
func (r *Repository) GetPaymentByChargeID(ctx context.Context, chargeID string) (*models.Payment, error) {
	payment, err := scanPayment(r.db.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE stripe_charge_id = $1`, chargeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.NewNotFoundError("payment not found", nil)
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}

	return payment, nil
}

// SetChargeID records the gateway reference on a payment.
func (r *Repository) SetChargeID(ctx context.Context, paymentID uuid.UUID, chargeID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE payments SET stripe_charge_id = $1, updated_at = NOW() WHERE id = $2`,
		chargeID, paymentID,
	)
	if err != nil {
		return fmt.Errorf("failed to set charge reference: %w", err)
	}
	return nil
}

// UpdatePaymentStatus sets a payment's status and paid flag.
func (r *Repository) UpdatePaymentStatus(ctx context.Context, paymentID uuid.UUID, status string, isPaid bool) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE payments SET status = $1, is_paid = $2, updated_at = NOW() WHERE id = $3`,
		status, isPaid, paymentID,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.NewNotFoundError("payment not found", nil)
	}
	return nil
}

// ConfirmCashPayment marks a cash payment as settled. Only the ride's driver
// can do this, and only once.
func (r *Repository) ConfirmCashPayment(ctx context.Context, paymentID, driverID uuid.UUID) (*models.Payment, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, common.NewInternalError("failed to start transaction", err)
	}
	defer tx.Rollback(ctx)

	payment := &models.Payment{}
	var rideDriverID uuid.UUID
	err = tx.QueryRow(ctx, `
		SELECT p.id, p.ride_id, p.user_id, p.stripe_charge_id, p.amount_cents,
			   p.currency, p.method, p.status, p.is_paid, p.commission_cents,
			   p.driver_amount_cents, p.created_at, p.updated_at, r.driver_id
		FROM payments p
		JOIN rides r ON r.id = p.ride_id
		WHERE p.id = $1
		FOR UPDATE OF p`,
		paymentID,
	).Scan(
		&payment.ID, &payment.RideID, &payment.UserID, &payment.StripeChargeID,
		&payment.AmountCents, &payment.Currency, &payment.Method, &payment.Status,
		&payment.IsPaid, &payment.CommissionCents, &payment.DriverAmountCents,
		&payment.CreatedAt, &payment.UpdatedAt, &rideDriverID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.NewNotFoundError("payment not found", nil)
		}
		return nil, common.NewInternalError("failed to lock payment", err)
	}

	if rideDriverID != driverID {
		return nil, common.NewForbiddenError("only the driver may confirm a cash payment")
	}
	if payment.Method != models.PaymentMethodCash {
		return nil, common.NewBusinessRuleError("only cash payments are confirmed manually")
	}
	if payment.IsPaid {
		return nil, common.NewBusinessRuleError("payment is already settled")
	}
	if payment.Status != models.PaymentStatusPending {
		return nil, common.NewBusinessRuleError("payment is not awaiting confirmation")
	}

	_, err = tx.Exec(ctx, `
		UPDATE payments SET status = 'succeeded', is_paid = true, updated_at = NOW()
		WHERE id = $1`,
		paymentID,
	)
	if err != nil {
		return nil, common.NewInternalError("failed to confirm payment", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, common.NewInternalError("failed to commit transaction", err)
	}

	payment.Status = models.PaymentStatusSucceeded
	payment.IsPaid = true
	return payment, nil
}

// ListSettledCardPayments retrieves the settled card payments on a ride,
// the ones a cancellation has to reverse.
func (r *Repository) ListSettledCardPayments(ctx context.Context, rideID uuid.UUID) ([]*models.Payment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE ride_id = $1 AND method <> 'cash' AND is_paid = true`,
		rideID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list settled card payments: %w", err)
	}
	defer rows.Close()

	payments := make([]*models.Payment, 0)
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, payment)
	}

	return payments, nil
}

// ListByUser retrieves payments made by a user, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Payment, int64, error) {
	var total int64
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM payments WHERE user_id = $1`, userID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count payments: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	payments := make([]*models.Payment, 0)
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, payment)
	}

	return payments, total, nil
}

// DriverBalance computes the driver's withdrawable earnings: settled driver
// shares minus everything already requested in payouts that did not fail.
func (r *Repository) DriverBalance(ctx context.Context, driverID uuid.UUID) (int64, error) {
	return r.driverBalance(ctx, r.db, driverID)
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *Repository) driverBalance(ctx context.Context, q queryRower, driverID uuid.UUID) (int64, error) {
	var earned, withdrawn int64

	err := q.QueryRow(ctx, `
		SELECT COALESCE(SUM(p.driver_amount_cents), 0)
		FROM payments p
		JOIN rides r ON r.id = p.ride_id
		WHERE r.driver_id = $1 AND p.is_paid = true`,
		driverID,
	).Scan(&earned)
	if err != nil {
		return 0, fmt.Errorf("failed to sum earnings: %w", err)
	}

	err = q.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0)
		FROM payouts
		WHERE user_id = $1 AND status <> 'failed'`,
		driverID,
	).Scan(&withdrawn)
	if err != nil {
		return 0, fmt.Errorf("failed to sum payouts: %w", err)
	}

	return earned - withdrawn, nil
}

// CreatePayout inserts a payout after re-checking the balance inside one
// transaction. The user row is locked to serialize concurrent requests.
func (r *Repository) CreatePayout(ctx context.Context, payout *models.Payout) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return common.NewInternalError("failed to start transaction", err)
	}
	defer tx.Rollback(ctx)

	var userExists bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1 FOR UPDATE)`,
		payout.UserID,
	).Scan(&userExists)
	if err != nil {
		return common.NewInternalError("failed to lock user", err)
	}
	if !userExists {
		return common.NewNotFoundError("user not found", nil)
	}

	balance, err := r.driverBalance(ctx, tx, payout.UserID)
	if err != nil {
		return common.NewInternalError("failed to compute balance", err)
	}
	if balance < payout.AmountCents {
		return common.NewBusinessRuleError("payout amount exceeds available balance")
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO payouts (id, user_id, stripe_payout_id, amount_cents, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		payout.ID, payout.UserID, payout.StripePayoutID, payout.AmountCents,
		payout.Currency, payout.Status,
	).Scan(&payout.CreatedAt, &payout.UpdatedAt)
	if err != nil {
		return common.NewInternalError("failed to create payout", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return common.NewInternalError("failed to commit transaction", err)
	}

	return nil
}

// UpdatePayout sets the gateway reference and status of a payout.
func (r *Repository) UpdatePayout(ctx context.Context, payoutID uuid.UUID, stripePayoutID, status string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE payouts SET stripe_payout_id = $1, status = $2, updated_at = NOW()
		WHERE id = $3`,
		stripePayoutID, status, payoutID,
	)
	if err != nil {
		return fmt.Errorf("failed to update payout: %w", err)
	}
	return nil
}

// UpdatePayoutStatusByStripeID sets a payout's status from a gateway event.
func (r *Repository) UpdatePayoutStatusByStripeID(ctx context.Context, stripePayoutID, status string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE payouts SET status = $1, updated_at = NOW() WHERE stripe_payout_id = $2`,
		status, stripePayoutID,
	)
	if err != nil {
		return fmt.Errorf("failed to update payout status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.NewNotFoundError("payout not found", nil)
	}
	return nil
}

// ListPayouts retrieves a user's payouts, newest first.
func (r *Repository) ListPayouts(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Payout, int64, error) {
	var total int64
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM payouts WHERE user_id = $1`, userID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count payouts: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, stripe_payout_id, amount_cents, currency, status,
			   created_at, updated_at
		FROM payouts
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list payouts: %w", err)
	}
	defer rows.Close()

	payouts := make([]*models.Payout, 0)
	for rows.Next() {
		p := &models.Payout{}
		err := rows.Scan(
			&p.ID, &p.UserID, &p.StripePayoutID, &p.AmountCents,
			&p.Currency, &p.Status, &p.CreatedAt, &p.UpdatedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan payout: %w", err)
		}
		payouts = append(payouts, p)
	}

	return payouts, total, nil
}

// GetUserByID retrieves a user with gateway references.
func (r *Repository) GetUserByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user := &models.User{}
	err := r.db.QueryRow(ctx, `
		SELECT id, email, first_name, last_name, phone_number, rating,
			   is_active, stripe_customer_id, stripe_account_id, created_at, updated_at
		FROM users
		WHERE id = $1`,
		userID,
	).Scan(
		&user.ID, &user.Email, &user.FirstName, &user.LastName, &user.PhoneNumber,
		&user.Rating, &user.IsActive, &user.StripeCustomerID, &user.StripeAccountID,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.NewNotFoundError("user not found", nil)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// SaveStripeCustomerID persists the lazily created customer reference.
func (r *Repository) SaveStripeCustomerID(ctx context.Context, userID uuid.UUID, customerID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE users SET stripe_customer_id = $1, updated_at = NOW() WHERE id = $2`,
		customerID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to save customer reference: %w", err)
	}
	return nil
}

// SaveStripeAccountID persists the lazily created connected account reference.
func (r *Repository) SaveStripeAccountID(ctx context.Context, userID uuid.UUID, accountID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE users SET stripe_account_id = $1, updated_at = NOW() WHERE id = $2`,
		accountID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to save account reference: %w", err)
	}
	return nil
}
