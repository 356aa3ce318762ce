package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	AddressKindPickup  = "pickup"
	AddressKindDropoff = "dropoff"
)

// BookingAddress is a pickup or dropoff location attached to a booking.
type BookingAddress struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BookingID   uuid.UUID `gorm:"column:booking_id;type:uuid;not null;index"`
	Kind        string    `gorm:"column:kind;not null"`
	Line1       string    `gorm:"column:line1;not null"`
	City        string    `gorm:"column:city"`
	Postcode    string    `gorm:"column:postcode;not null"`
	FloorNumber int       `gorm:"column:floor_number;not null;default:0"`
	HasLift     bool      `gorm:"column:has_lift;not null;default:false"`
	Latitude    float64   `gorm:"column:latitude;not null"`
	Longitude   float64   `gorm:"column:longitude;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}
