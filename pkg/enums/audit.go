package enums

import "fmt"

// AuditEventType maps to the audit_event_type enum in Postgres.
type AuditEventType string

const (
	AuditRoutingModeChanged   AuditEventType = "routing_mode_changed"
	AuditRoutingConfigUpdated AuditEventType = "routing_config_updated"
	AuditAutoRoutingCompleted AuditEventType = "auto_routing_completed"
	AuditManualRouteCreated   AuditEventType = "manual_route_created"
	AuditRoutingError         AuditEventType = "routing_error"
	AuditBookingAutoConfirmed AuditEventType = "booking_auto_confirmed"
	AuditBookingCancelled     AuditEventType = "booking_cancelled"
	AuditRouteApproved        AuditEventType = "route_approved"
	AuditRouteRejected        AuditEventType = "route_rejected"
)

var validAuditEventTypes = []AuditEventType{
	AuditRoutingModeChanged,
	AuditRoutingConfigUpdated,
	AuditAutoRoutingCompleted,
	AuditManualRouteCreated,
	AuditRoutingError,
	AuditBookingAutoConfirmed,
	AuditBookingCancelled,
	AuditRouteApproved,
	AuditRouteRejected,
}

// IsValid reports whether the value matches the canonical audit_event_type enum.
func (e AuditEventType) IsValid() bool {
	for _, candidate := range validAuditEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseAuditEventType converts raw input into AuditEventType.
func ParseAuditEventType(value string) (AuditEventType, error) {
	for _, candidate := range validAuditEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid audit event type %q", value)
}

// AuditSeverity grades an audit entry.
type AuditSeverity string

const (
	AuditSeverityInfo    AuditSeverity = "info"
	AuditSeverityWarning AuditSeverity = "warning"
	AuditSeverityError   AuditSeverity = "error"
)

var validAuditSeverities = []AuditSeverity{
	AuditSeverityInfo,
	AuditSeverityWarning,
	AuditSeverityError,
}

// IsValid reports whether the value matches the canonical audit_severity enum.
func (s AuditSeverity) IsValid() bool {
	for _, candidate := range validAuditSeverities {
		if candidate == s {
			return true
		}
	}
	return false
}
