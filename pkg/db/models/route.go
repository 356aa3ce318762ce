package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/speedy-van/dispatch/pkg/enums"
)

// DriverUnassigned is the sentinel driver id for routes awaiting a driver.
const DriverUnassigned = "unassigned"

// Route is an ordered set of bookings dispatched as one driver journey.
type Route struct {
	ID       uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Status   enums.RouteStatus `gorm:"column:status;type:route_status;not null;default:'planned'"`
	DriverID string            `gorm:"column:driver_id;not null;default:'unassigned'"`

	TotalDistanceKm   float64 `gorm:"column:total_distance_km;not null;default:0"`
	TotalDurationMins int     `gorm:"column:total_duration_mins;not null;default:0"`
	TotalValuePence   int     `gorm:"column:total_value_pence;not null;default:0"`
	OptimizationScore float64 `gorm:"column:optimization_score;not null;default:0"`

	StartAt  *time.Time `gorm:"column:start_at"`
	TimeBand string     `gorm:"column:time_band"`

	Bookings []Booking `gorm:"foreignKey:RouteID"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// Unassigned reports whether the route still waits for a driver.
func (r *Route) Unassigned() bool {
	return r.DriverID == DriverUnassigned
}
