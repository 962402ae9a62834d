package models

import (
	"time"

	"github.com/google/uuid"
)

// BookingStatus represents the status of a booking request
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusAccepted  BookingStatus = "accepted"
	BookingStatusRejected  BookingStatus = "rejected"
	BookingStatusConfirmed BookingStatus = "confirmed"
)

// CountsAgainstSeats reports whether a booking in this status occupies capacity.
func (s BookingStatus) CountsAgainstSeats() bool {
	return s == BookingStatusAccepted || s == BookingStatusConfirmed
}

// BookingRequest represents a passenger's claim on seats of a ride.
// Lifecycle: pending -> accepted | rejected, terminal thereafter.
type BookingRequest struct {
	ID             uuid.UUID     `json:"id" db:"id"`
	RideID         uuid.UUID     `json:"ride_id" db:"ride_id"`
	PassengerID    uuid.UUID     `json:"passenger_id" db:"passenger_id"`
	PassengerCount int           `json:"passenger_count" db:"passenger_count"`
	Status         BookingStatus `json:"status" db:"status"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at" db:"updated_at"`
}

// BookRideRequest is the payload for requesting seats on a ride.
type BookRideRequest struct {
	RideID         uuid.UUID `json:"ride_id" binding:"required"`
	PassengerCount int       `json:"passenger_count" binding:"required,min=1"`
}

// BookingResponse is a booking request with the passenger summary attached.
type BookingResponse struct {
	*BookingRequest
	Passenger *UserSummary `json:"passenger,omitempty"`
}
