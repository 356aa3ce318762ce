package enums

import "fmt"

// BookingStatus maps to the booking_status enum in Postgres.
type BookingStatus string

const (
	BookingStatusPendingPayment BookingStatus = "PENDING_PAYMENT"
	BookingStatusConfirmed      BookingStatus = "CONFIRMED"
	BookingStatusCancelled      BookingStatus = "CANCELLED"
	BookingStatusCompleted      BookingStatus = "COMPLETED"
)

var validBookingStatuses = []BookingStatus{
	BookingStatusPendingPayment,
	BookingStatusConfirmed,
	BookingStatusCancelled,
	BookingStatusCompleted,
}

// IsValid reports whether the value matches the canonical booking_status enum.
func (s BookingStatus) IsValid() bool {
	for _, candidate := range validBookingStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseBookingStatus converts raw input into BookingStatus.
func ParseBookingStatus(value string) (BookingStatus, error) {
	for _, candidate := range validBookingStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid booking status %q", value)
}

// OrderType classifies how a booking travels once routed.
type OrderType string

const (
	OrderTypeSingle             OrderType = "single"
	OrderTypeMultiDrop          OrderType = "multi-drop"
	OrderTypeMultiDropCandidate OrderType = "multi-drop-candidate"
)

var validOrderTypes = []OrderType{
	OrderTypeSingle,
	OrderTypeMultiDrop,
	OrderTypeMultiDropCandidate,
}

// IsValid reports whether the value matches the canonical order_type enum.
func (o OrderType) IsValid() bool {
	for _, candidate := range validOrderTypes {
		if candidate == o {
			return true
		}
	}
	return false
}
