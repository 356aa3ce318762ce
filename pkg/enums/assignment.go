package enums

import "fmt"

// AssignmentStatus maps to the assignment_status enum in Postgres.
//
// Lifecycle: invited -> claimed -> completed, with invited -> declined and
// invited -> expired as terminal failure branches.
type AssignmentStatus string

const (
	AssignmentStatusInvited   AssignmentStatus = "invited"
	AssignmentStatusClaimed   AssignmentStatus = "claimed"
	AssignmentStatusDeclined  AssignmentStatus = "declined"
	AssignmentStatusExpired   AssignmentStatus = "expired"
	AssignmentStatusCompleted AssignmentStatus = "completed"
)

var validAssignmentStatuses = []AssignmentStatus{
	AssignmentStatusInvited,
	AssignmentStatusClaimed,
	AssignmentStatusDeclined,
	AssignmentStatusExpired,
	AssignmentStatusCompleted,
}

// IsValid reports whether the value matches the canonical assignment_status enum.
func (s AssignmentStatus) IsValid() bool {
	for _, candidate := range validAssignmentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseAssignmentStatus converts raw input into AssignmentStatus.
func ParseAssignmentStatus(value string) (AssignmentStatus, error) {
	for _, candidate := range validAssignmentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid assignment status %q", value)
}

// Active reports whether the offer still occupies the booking/route slot.
func (s AssignmentStatus) Active() bool {
	return s == AssignmentStatusInvited || s == AssignmentStatusClaimed
}

// Terminal reports whether the status permits no further transitions.
func (s AssignmentStatus) Terminal() bool {
	return s == AssignmentStatusDeclined || s == AssignmentStatusExpired || s == AssignmentStatusCompleted
}
