package models

import (
	"time"

	"github.com/google/uuid"
)

// RideStatus represents the status of a ride
type RideStatus string

const (
	RideStatusActive    RideStatus = "active"
	RideStatusBooked    RideStatus = "booked"
	RideStatusCompleted RideStatus = "completed"
	RideStatusCancelled RideStatus = "cancelled"
)

// Valid reports whether s is a known ride status.
func (s RideStatus) Valid() bool {
	switch s {
	case RideStatusActive, RideStatusBooked, RideStatusCompleted, RideStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether a ride in this status can no longer change.
func (s RideStatus) Terminal() bool {
	return s == RideStatusCompleted
}

// PaymentType represents how passengers may pay for a ride
type PaymentType string

const (
	PaymentTypeCard PaymentType = "card"
	PaymentTypeCash PaymentType = "cash"
	PaymentTypeBoth PaymentType = "both"
)

// Ride represents a driver's offered trip.
type Ride struct {
	ID             uuid.UUID   `json:"id" db:"id"`
	DriverID       uuid.UUID   `json:"driver_id" db:"driver_id"`
	PassengerID    *uuid.UUID  `json:"passenger_id,omitempty" db:"passenger_id"` // legacy single-passenger slot
	StartAddress   string      `json:"start_address" db:"start_address"`
	StartLatitude  *float64    `json:"start_latitude,omitempty" db:"start_latitude"`
	StartLongitude *float64    `json:"start_longitude,omitempty" db:"start_longitude"`
	EndAddress     string      `json:"end_address" db:"end_address"`
	EndLatitude    *float64    `json:"end_latitude,omitempty" db:"end_latitude"`
	EndLongitude   *float64    `json:"end_longitude,omitempty" db:"end_longitude"`
	DepartureTime  time.Time   `json:"departure_time" db:"departure_time"`
	SeatsTotal     int         `json:"seats_total" db:"seats_total"`
	AvailableSeats int         `json:"available_seats" db:"available_seats"`
	VehicleType    *string     `json:"vehicle_type,omitempty" db:"vehicle_type"`
	Status         RideStatus  `json:"status" db:"status"`
	Fare           float64     `json:"fare" db:"fare"`
	DistanceKm     float64     `json:"distance_km" db:"distance_km"`
	DurationMin    int         `json:"duration_min" db:"duration_min"`
	PaymentType    PaymentType `json:"payment_type" db:"payment_type"`
	SelectedCardID *uuid.UUID  `json:"selected_card_id,omitempty" db:"selected_card_id"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at" db:"updated_at"`
}

// HasCoordinates reports whether both endpoints were geocoded.
func (r *Ride) HasCoordinates() bool {
	return r.StartLatitude != nil && r.StartLongitude != nil &&
		r.EndLatitude != nil && r.EndLongitude != nil
}

// CreateRideRequest is the payload for posting a ride.
type CreateRideRequest struct {
	StartAddress   string      `json:"start_address" binding:"required"`
	EndAddress     string      `json:"end_address" binding:"required"`
	DepartureTime  time.Time   `json:"departure_time" binding:"required"`
	AvailableSeats int         `json:"available_seats" binding:"required,min=1"`
	VehicleType    *string     `json:"vehicle_type,omitempty"`
	PaymentType    PaymentType `json:"payment_type" binding:"required,oneof=card cash both"`
	SelectedCardID *uuid.UUID  `json:"selected_card_id,omitempty"`
}

// UpdateRideRequest carries the editable fields of a ride. Nil means unchanged.
type UpdateRideRequest struct {
	StartAddress   *string      `json:"start_address,omitempty"`
	EndAddress     *string      `json:"end_address,omitempty"`
	DepartureTime  *time.Time   `json:"departure_time,omitempty"`
	AvailableSeats *int         `json:"available_seats,omitempty"`
	VehicleType    *string      `json:"vehicle_type,omitempty"`
	PaymentType    *PaymentType `json:"payment_type,omitempty"`
	SelectedCardID *uuid.UUID   `json:"selected_card_id,omitempty"`
}

// SearchRidesRequest is the ride search criteria.
type SearchRidesRequest struct {
	StartAddress   string     `form:"start_address"`
	EndAddress     string     `form:"end_address"`
	StartLatitude  *float64   `form:"start_latitude"`
	StartLongitude *float64   `form:"start_longitude"`
	EndLatitude    *float64   `form:"end_latitude"`
	EndLongitude   *float64   `form:"end_longitude"`
	Date           *time.Time `form:"date" time_format:"2006-01-02"`
	Passengers     int        `form:"passengers"`
	MaxDistanceKm  float64    `form:"max_distance_km"`
	Limit          int        `form:"limit"`
	Offset         int        `form:"offset"`
}

// SearchRideResult is a ranked search candidate.
type SearchRideResult struct {
	*Ride
	Driver          *UserSummary `json:"driver,omitempty"`
	StartDistanceKm *float64     `json:"start_distance_km,omitempty"`
	EndDistanceKm   *float64     `json:"end_distance_km,omitempty"`
}
