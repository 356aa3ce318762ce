package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/speedy-van/dispatch/pkg/enums"
)

// Assignment is one driver offer for a route. A route accumulates one row per
// invitation round; at most one row may be active (invited or claimed) at a
// time, enforced by a partial unique index.
type Assignment struct {
	ID       uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RouteID  uuid.UUID              `gorm:"column:route_id;type:uuid;not null;index"`
	DriverID uuid.UUID              `gorm:"column:driver_id;type:uuid;not null;index"`
	Status   enums.AssignmentStatus `gorm:"column:status;type:assignment_status;not null;default:'invited'"`
	Round    int                    `gorm:"column:round;not null;default:1"`

	ExpiresAt   time.Time  `gorm:"column:expires_at;not null"`
	ClaimedAt   *time.Time `gorm:"column:claimed_at"`
	RespondedAt *time.Time `gorm:"column:responded_at"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
