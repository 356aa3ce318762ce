package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/speedy-van/dispatch/pkg/enums"
)

// Booking is a paid customer delivery job awaiting (or holding) a route slot.
type Booking struct {
	ID                         uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Reference                  string              `gorm:"column:reference;not null;uniqueIndex"`
	Status                     enums.BookingStatus `gorm:"column:status;type:booking_status;not null;default:'PENDING_PAYMENT'"`
	ScheduledAt                time.Time           `gorm:"column:scheduled_at;not null"`
	TotalPence                 int                 `gorm:"column:total_pence;not null"`
	PaymentIntentID            *string             `gorm:"column:payment_intent_id"`
	ConsolidationDiscountPence int                 `gorm:"column:consolidation_discount_pence;not null;default:0"`
	OrderType                  enums.OrderType     `gorm:"column:order_type;type:order_type;not null;default:'single'"`

	RouteID          *uuid.UUID `gorm:"column:route_id;type:uuid"`
	DeliverySequence *int       `gorm:"column:delivery_sequence"`

	// Eligibility verdict cached on the row; nil means never scored.
	EligibleForMultiDrop  *bool    `gorm:"column:eligible_for_multi_drop"`
	EligibilityReason     *string  `gorm:"column:eligibility_reason"`
	EstimatedLoadPercent  *float64 `gorm:"column:estimated_load_percent"`
	PotentialSavingsPence *int     `gorm:"column:potential_savings_pence"`

	Addresses []BookingAddress `gorm:"foreignKey:BookingID;constraint:OnDelete:CASCADE"`
	Items     []BookingItem    `gorm:"foreignKey:BookingID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// Pickup returns the pickup address, or nil when not loaded.
func (b *Booking) Pickup() *BookingAddress {
	return b.addressOfKind(AddressKindPickup)
}

// Dropoff returns the dropoff address, or nil when not loaded.
func (b *Booking) Dropoff() *BookingAddress {
	return b.addressOfKind(AddressKindDropoff)
}

func (b *Booking) addressOfKind(kind string) *BookingAddress {
	for i := range b.Addresses {
		if b.Addresses[i].Kind == kind {
			return &b.Addresses[i]
		}
	}
	return nil
}

// Scored reports whether the eligibility engine already ran for this booking.
func (b *Booking) Scored() bool {
	return b.EligibleForMultiDrop != nil
}
