package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/speedy-van/dispatch/pkg/enums"
)

// RouteApproval gates a manually built route behind an admin decision.
type RouteApproval struct {
	ID          uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RouteID     uuid.UUID            `gorm:"column:route_id;type:uuid;not null;index"`
	Status      enums.ApprovalStatus `gorm:"column:status;type:approval_status;not null;default:'pending'"`
	RequestedBy string               `gorm:"column:requested_by;not null"`
	DecidedBy   *string              `gorm:"column:decided_by"`
	DecidedAt   *time.Time           `gorm:"column:decided_at"`
	Reason      *string              `gorm:"column:reason"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
