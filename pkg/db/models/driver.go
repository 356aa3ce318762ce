package models

import (
	"time"

	"github.com/google/uuid"
)

// Driver is a van driver able to receive route offers.
type Driver struct {
	ID     uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name   string    `gorm:"column:name;not null"`
	Email  string    `gorm:"column:email;not null;uniqueIndex"`
	Active bool      `gorm:"column:active;not null;default:true"`

	Performance *DriverPerformance `gorm:"foreignKey:DriverID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// DriverPerformance tracks offer-response statistics per driver.
// AcceptanceRate is a 0-100 percentage and never drops below zero.
type DriverPerformance struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	DriverID       uuid.UUID `gorm:"column:driver_id;type:uuid;not null;uniqueIndex"`
	AcceptanceRate float64   `gorm:"column:acceptance_rate;not null;default:100"`
	TotalOffers    int       `gorm:"column:total_offers;not null;default:0"`
	TotalAccepted  int       `gorm:"column:total_accepted;not null;default:0"`
	LastCalculated time.Time `gorm:"column:last_calculated"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
