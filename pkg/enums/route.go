package enums

import "fmt"

// RouteStatus maps to the route_status enum in Postgres.
type RouteStatus string

const (
	RouteStatusPlanned    RouteStatus = "planned"
	RouteStatusAssigned   RouteStatus = "assigned"
	RouteStatusInProgress RouteStatus = "in_progress"
	RouteStatusCompleted  RouteStatus = "completed"
	RouteStatusCancelled  RouteStatus = "cancelled"
)

var validRouteStatuses = []RouteStatus{
	RouteStatusPlanned,
	RouteStatusAssigned,
	RouteStatusInProgress,
	RouteStatusCompleted,
	RouteStatusCancelled,
}

// IsValid reports whether the value matches the canonical route_status enum.
func (s RouteStatus) IsValid() bool {
	for _, candidate := range validRouteStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseRouteStatus converts raw input into RouteStatus.
func ParseRouteStatus(value string) (RouteStatus, error) {
	for _, candidate := range validRouteStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid route status %q", value)
}

// ApprovalStatus maps to the approval_status enum in Postgres.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
)

var validApprovalStatuses = []ApprovalStatus{
	ApprovalStatusPending,
	ApprovalStatusApproved,
	ApprovalStatusRejected,
}

// IsValid reports whether the value matches the canonical approval_status enum.
func (s ApprovalStatus) IsValid() bool {
	for _, candidate := range validApprovalStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}
