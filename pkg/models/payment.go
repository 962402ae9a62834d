package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentMethod represents how a payment is settled
type PaymentMethod string

const (
	PaymentMethodCash PaymentMethod = "cash"
	PaymentMethodCard PaymentMethod = "card"
)

// Payment statuses follow the gateway vocabulary; the gateway is the source
// of truth for digital payments.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusSucceeded = "succeeded"
	PaymentStatusFailed    = "failed"
	PaymentStatusRefunded  = "refunded"
)

// Payment represents a monetary charge tied to one ride and one payer.
// Amounts are in minor units (cents).
type Payment struct {
	ID                uuid.UUID     `json:"id" db:"id"`
	RideID            uuid.UUID     `json:"ride_id" db:"ride_id"`
	UserID            uuid.UUID     `json:"user_id" db:"user_id"`
	StripeChargeID    *string       `json:"stripe_charge_id,omitempty" db:"stripe_charge_id"`
	AmountCents       int64         `json:"amount_cents" db:"amount_cents"`
	Currency          string        `json:"currency" db:"currency"`
	Method            PaymentMethod `json:"method" db:"method"`
	Status            string        `json:"status" db:"status"`
	IsPaid            bool          `json:"is_paid" db:"is_paid"`
	CommissionCents   int64         `json:"commission_cents" db:"commission_cents"`
	DriverAmountCents int64         `json:"driver_amount_cents" db:"driver_amount_cents"`
	CreatedAt         time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at" db:"updated_at"`
}

// Active reports whether this payment still occupies the (ride, payer) slot.
func (p *Payment) Active() bool {
	return p.Status == PaymentStatusPending || p.Status == PaymentStatusSucceeded
}

// CreatePaymentRequest is the payload for initiating a payment.
type CreatePaymentRequest struct {
	RideID          uuid.UUID     `json:"ride_id" binding:"required"`
	Method          PaymentMethod `json:"method" binding:"required,oneof=cash card"`
	PaymentMethodID *string       `json:"payment_method_id,omitempty"` // gateway token, card only
}

// Payout represents a transfer of accumulated driver earnings.
type Payout struct {
	ID             uuid.UUID `json:"id" db:"id"`
	UserID         uuid.UUID `json:"user_id" db:"user_id"`
	StripePayoutID string    `json:"stripe_payout_id" db:"stripe_payout_id"`
	AmountCents    int64     `json:"amount_cents" db:"amount_cents"`
	Currency       string    `json:"currency" db:"currency"`
	Status         string    `json:"status" db:"status"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// RequestPayoutRequest is the payload for a driver payout.
type RequestPayoutRequest struct {
	AmountCents int64  `json:"amount_cents" binding:"required,gt=0"`
	Currency    string `json:"currency"`
}
