package enums

import "fmt"

// RoutingMode selects how pending bookings get turned into routes.
type RoutingMode string

const (
	RoutingModeAuto   RoutingMode = "auto"
	RoutingModeManual RoutingMode = "manual"
)

var validRoutingModes = []RoutingMode{
	RoutingModeAuto,
	RoutingModeManual,
}

// IsValid reports whether the value matches the canonical routing_mode enum.
func (m RoutingMode) IsValid() bool {
	for _, candidate := range validRoutingModes {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseRoutingMode converts raw input into RoutingMode.
func ParseRoutingMode(value string) (RoutingMode, error) {
	for _, candidate := range validRoutingModes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid routing mode %q", value)
}
