package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/speedy-van/dispatch/pkg/enums"
)

// AuditLog is an append-only record of routing decisions and failures.
type AuditLog struct {
	ID         uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventType  enums.AuditEventType `gorm:"column:event_type;type:audit_event_type;not null"`
	Severity   enums.AuditSeverity  `gorm:"column:severity;type:audit_severity;not null;default:'info'"`
	Actor      string               `gorm:"column:actor;not null"`
	EntityType *string              `gorm:"column:entity_type"`
	EntityID   *string              `gorm:"column:entity_id"`
	Details    json.RawMessage      `gorm:"column:details;type:jsonb"`
	CreatedAt  time.Time            `gorm:"column:created_at;autoCreateTime"`
}
