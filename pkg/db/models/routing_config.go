package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/speedy-van/dispatch/pkg/enums"
)

// RoutingConfigID is the primary key of the singleton routing config row.
const RoutingConfigID = 1

// RoutingConfigAggregateID stands in for the integer singleton key on
// outbox events, which address aggregates by UUID.
var RoutingConfigAggregateID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// RoutingConfig is the singleton row controlling how routing behaves.
// Reads always hit the database so mode flips take effect immediately.
type RoutingConfig struct {
	ID                   int               `gorm:"column:id;primaryKey"`
	Mode                 enums.RoutingMode `gorm:"column:mode;type:routing_mode;not null;default:'manual'"`
	AutoRoutingEnabled   bool              `gorm:"column:auto_routing_enabled;not null;default:false"`
	IntervalMinutes      int               `gorm:"column:interval_minutes;not null;default:15"`
	MaxDropsPerRoute     int               `gorm:"column:max_drops_per_route;not null;default:10"`
	MaxRouteDistanceKm   float64           `gorm:"column:max_route_distance_km;not null;default:50"`
	AutoAssignDrivers    bool              `gorm:"column:auto_assign_drivers;not null;default:false"`
	RequireApproval      bool              `gorm:"column:require_approval;not null;default:true"`
	MinDropsForAutoRoute int               `gorm:"column:min_drops_for_auto_route;not null;default:2"`
	UpdatedBy            *string           `gorm:"column:updated_by"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// DefaultRoutingConfig returns the seed row written on first read.
func DefaultRoutingConfig() RoutingConfig {
	return RoutingConfig{
		ID:                   RoutingConfigID,
		Mode:                 enums.RoutingModeManual,
		AutoRoutingEnabled:   false,
		IntervalMinutes:      15,
		MaxDropsPerRoute:     10,
		MaxRouteDistanceKm:   50,
		AutoAssignDrivers:    false,
		RequireApproval:      true,
		MinDropsForAutoRoute: 2,
	}
}
