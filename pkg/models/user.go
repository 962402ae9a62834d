package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents an account in the directory.
type User struct {
	ID               uuid.UUID `json:"id" db:"id"`
	Email            string    `json:"email" db:"email"`
	FirstName        string    `json:"first_name" db:"first_name"`
	LastName         string    `json:"last_name" db:"last_name"`
	PhoneNumber      string    `json:"phone_number" db:"phone_number"`
	Rating           float64   `json:"rating" db:"rating"`
	IsActive         bool      `json:"is_active" db:"is_active"`
	StripeCustomerID *string   `json:"-" db:"stripe_customer_id"`
	StripeAccountID  *string   `json:"-" db:"stripe_account_id"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// FullName returns the user's display name.
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// UserSummary is the compact passenger/driver view embedded in responses.
type UserSummary struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Rating    float64   `json:"rating"`
}

// Summary returns the compact view of a user.
func (u *User) Summary() *UserSummary {
	return &UserSummary{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Rating:    u.Rating,
	}
}

// Card represents a saved payment card owned by a user. Card storage itself
// is handled by the gateway; only the reference is kept here.
type Card struct {
	ID                    uuid.UUID `json:"id" db:"id"`
	UserID                uuid.UUID `json:"user_id" db:"user_id"`
	StripePaymentMethodID string    `json:"-" db:"stripe_payment_method_id"`
	Brand                 string    `json:"brand" db:"brand"`
	Last4                 string    `json:"last4" db:"last4"`
	CreatedAt             time.Time `json:"created_at" db:"created_at"`
}
