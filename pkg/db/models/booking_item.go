package models

import (
	"time"

	"github.com/google/uuid"
)

// BookingItem is a single inventory line on a booking.
type BookingItem struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BookingID uuid.UUID `gorm:"column:booking_id;type:uuid;not null;index"`
	Name      string    `gorm:"column:name;not null"`
	Quantity  int       `gorm:"column:quantity;not null;default:1"`
	VolumeM3  float64   `gorm:"column:volume_m3;not null"`
	WeightKg  float64   `gorm:"column:weight_kg;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TotalVolumeM3 returns quantity-adjusted volume.
func (i BookingItem) TotalVolumeM3() float64 {
	return i.VolumeM3 * float64(i.Quantity)
}

// TotalWeightKg returns quantity-adjusted weight.
func (i BookingItem) TotalWeightKg() float64 {
	return i.WeightKg * float64(i.Quantity)
}
