package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"github.com/speedy-van/dispatch/pkg/db/models"
	"github.com/speedy-van/dispatch/pkg/enums"
	"github.com/speedy-van/dispatch/pkg/logger"
)

// Entry is one audit record before persistence.
type Entry struct {
	EventType  enums.AuditEventType
	Severity   enums.AuditSeverity
	Actor      string
	EntityType string
	EntityID   string
	Details    any
}

// Writer appends audit rows inside the caller's transaction. Rows are
// never updated or deleted after insert.
type Writer struct {
	logg *logger.Logger
}

// NewWriter builds an audit writer.
func NewWriter(logg *logger.Logger) *Writer {
	return &Writer{logg: logg}
}

// Record inserts one audit row in tx. The caller's transaction boundary
// makes the audit entry atomic with the mutation it describes.
func (w *Writer) Record(ctx context.Context, tx *gorm.DB, entry Entry) error {
	if tx == nil {
		return fmt.Errorf("transaction required")
	}
	if !entry.EventType.IsValid() {
		return fmt.Errorf("invalid audit event type %q", entry.EventType)
	}
	if entry.Severity == "" {
		entry.Severity = enums.AuditSeverityInfo
	}

	row := models.AuditLog{
		EventType: entry.EventType,
		Severity:  entry.Severity,
		Actor:     entry.Actor,
	}
	if entry.EntityType != "" {
		row.EntityType = &entry.EntityType
	}
	if entry.EntityID != "" {
		row.EntityID = &entry.EntityID
	}
	if entry.Details != nil {
		raw, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("marshal audit details: %w", err)
		}
		row.Details = raw
	}

	if err := tx.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}

	if w.logg != nil {
		logCtx := w.logg.WithFields(ctx, map[string]any{
			"audit_event": string(entry.EventType),
			"severity":    string(entry.Severity),
			"actor":       entry.Actor,
		})
		w.logg.Info(logCtx, "audit entry recorded")
	}
	return nil
}
