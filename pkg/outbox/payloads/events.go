package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/speedy-van/dispatch/pkg/enums"
)

// OfferCreatedEvent tells a driver app a new route offer is waiting.
type OfferCreatedEvent struct {
	AssignmentID uuid.UUID `json:"assignment_id"`
	RouteID      uuid.UUID `json:"route_id"`
	DriverID     uuid.UUID `json:"driver_id"`
	Round        int       `json:"round"`
	ExpiresAt    time.Time `json:"expires_at"`
	DropCount    int       `json:"drop_count"`
	ValuePence   int       `json:"value_pence"`
}

// OfferRevokedEvent notifies a driver their offer is no longer live.
type OfferRevokedEvent struct {
	AssignmentID uuid.UUID              `json:"assignment_id"`
	RouteID      uuid.UUID              `json:"route_id"`
	DriverID     uuid.UUID              `json:"driver_id"`
	Status       enums.AssignmentStatus `json:"status"`
	Reason       string                 `json:"reason,omitempty"`
}

// OfferClaimedEvent confirms a driver accepted a route.
type OfferClaimedEvent struct {
	AssignmentID uuid.UUID `json:"assignment_id"`
	RouteID      uuid.UUID `json:"route_id"`
	DriverID     uuid.UUID `json:"driver_id"`
	ClaimedAt    time.Time `json:"claimed_at"`
}

// OfferCompletedEvent reports a delivered route.
type OfferCompletedEvent struct {
	AssignmentID uuid.UUID `json:"assignment_id"`
	RouteID      uuid.UUID `json:"route_id"`
	DriverID     uuid.UUID `json:"driver_id"`
	CompletedAt  time.Time `json:"completed_at"`
}

// PerformanceUpdatedEvent carries the recalculated acceptance rate.
type PerformanceUpdatedEvent struct {
	DriverID       uuid.UUID `json:"driver_id"`
	AcceptanceRate float64   `json:"acceptance_rate"`
	Delta          float64   `json:"delta"`
}

// BookingAvailableEvent signals a booking returned to the unrouted pool.
type BookingAvailableEvent struct {
	BookingID uuid.UUID `json:"booking_id"`
	RouteID   uuid.UUID `json:"route_id"`
	Reason    string    `json:"reason,omitempty"`
}

// RouteCreatedEvent announces a new planned route.
type RouteCreatedEvent struct {
	RouteID           uuid.UUID       `json:"route_id"`
	OrderType         enums.OrderType `json:"order_type"`
	BookingIDs        []uuid.UUID     `json:"booking_ids"`
	TotalDistanceKm   float64         `json:"total_distance_km"`
	TotalValuePence   int             `json:"total_value_pence"`
	OptimizationScore float64         `json:"optimization_score"`
}

// RouteCancelledEvent announces a cancelled route and its released bookings.
type RouteCancelledEvent struct {
	RouteID    uuid.UUID   `json:"route_id"`
	BookingIDs []uuid.UUID `json:"booking_ids"`
	Reason     string      `json:"reason,omitempty"`
}

// RoutingModeChangedEvent notifies admin dashboards of a mode flip.
type RoutingModeChangedEvent struct {
	Mode               enums.RoutingMode `json:"mode"`
	AutoRoutingEnabled bool              `json:"auto_routing_enabled"`
	ChangedBy          string            `json:"changed_by"`
}

// AdminActionRequiredEvent flags bookings or routes stuck without a driver.
type AdminActionRequiredEvent struct {
	RouteID    *uuid.UUID  `json:"route_id,omitempty"`
	BookingIDs []uuid.UUID `json:"booking_ids,omitempty"`
	Message    string      `json:"message"`
}

// AutoRoutingCompletedEvent summarizes a consolidation pass.
type AutoRoutingCompletedEvent struct {
	Trigger           string   `json:"trigger"`
	BookingsProcessed int      `json:"bookings_processed"`
	RoutesCreated     int      `json:"routes_created"`
	Errors            []string `json:"errors,omitempty"`
}
