package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateBooking    OutboxAggregateType = "booking"
	AggregateRoute      OutboxAggregateType = "route"
	AggregateAssignment OutboxAggregateType = "assignment"
	AggregateDriver     OutboxAggregateType = "driver"
	AggregateConfig     OutboxAggregateType = "routing_config"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateBooking,
	AggregateRoute,
	AggregateAssignment,
	AggregateDriver,
	AggregateConfig,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventOfferCreated         OutboxEventType = "offer_created"
	EventOfferRevoked         OutboxEventType = "offer_revoked"
	EventOfferClaimed         OutboxEventType = "offer_claimed"
	EventOfferCompleted       OutboxEventType = "offer_completed"
	EventPerformanceUpdated   OutboxEventType = "performance_updated"
	EventBookingAvailable     OutboxEventType = "booking_available"
	EventRouteCreated         OutboxEventType = "route_created"
	EventRouteCancelled       OutboxEventType = "route_cancelled"
	EventRoutingModeChanged   OutboxEventType = "routing_mode_changed"
	EventAdminActionRequired  OutboxEventType = "admin_action_required"
	EventAutoRoutingCompleted OutboxEventType = "auto_routing_completed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOfferCreated,
	EventOfferRevoked,
	EventOfferClaimed,
	EventOfferCompleted,
	EventPerformanceUpdated,
	EventBookingAvailable,
	EventRouteCreated,
	EventRouteCancelled,
	EventRoutingModeChanged,
	EventAdminActionRequired,
	EventAutoRoutingCompleted,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
