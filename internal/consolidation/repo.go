package consolidation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/speedy-van/dispatch/internal/repo"
	"github.com/speedy-van/dispatch/pkg/db/models"
	"github.com/speedy-van/dispatch/pkg/enums"
)

// Repository is the persistence surface of the consolidation pass.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	ListUnroutedConfirmed(ctx context.Context, from, to time.Time, limit int) ([]models.Booking, error)
	SaveEligibility(ctx context.Context, b *models.Booking) error
	CreateRoute(ctx context.Context, route *models.Route) error
	LinkBooking(ctx context.Context, link BookingLink) error
}

// BookingLink binds one booking into a route slot.
type BookingLink struct {
	BookingID        uuid.UUID
	RouteID          uuid.UUID
	DeliverySequence int
	OrderType        enums.OrderType
	DiscountPence    int
}

type repository struct {
	repo.Base
}

// NewRepository builds a consolidation repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(tx)}
}

func (r *repository) ListUnroutedConfirmed(ctx context.Context, from, to time.Time, limit int) ([]models.Booking, error) {
	var bookings []models.Booking
	err := r.DB(ctx).
		Where("status = ? AND route_id IS NULL", enums.BookingStatusConfirmed).
		Where("scheduled_at >= ? AND scheduled_at < ?", from, to).
		Order("scheduled_at asc, reference asc").
		Limit(limit).
		Preload("Addresses").
		Preload("Items").
		Find(&bookings).Error
	return bookings, err
}

func (r *repository) SaveEligibility(ctx context.Context, b *models.Booking) error {
	return r.DB(ctx).
		Model(&models.Booking{}).
		Where("id = ?", b.ID).
		Updates(map[string]any{
			"eligible_for_multi_drop": b.EligibleForMultiDrop,
			"eligibility_reason":      b.EligibilityReason,
			"estimated_load_percent":  b.EstimatedLoadPercent,
			"potential_savings_pence": b.PotentialSavingsPence,
		}).Error
}

func (r *repository) CreateRoute(ctx context.Context, route *models.Route) error {
	return r.DB(ctx).Create(route).Error
}

// LinkBooking attaches the booking only while it is still unrouted, so a
// concurrent manual route cannot double-link it.
func (r *repository) LinkBooking(ctx context.Context, link BookingLink) error {
	res := r.DB(ctx).
		Model(&models.Booking{}).
		Where("id = ? AND route_id IS NULL", link.BookingID).
		Updates(map[string]any{
			"route_id":                     link.RouteID,
			"delivery_sequence":            link.DeliverySequence,
			"order_type":                   link.OrderType,
			"consolidation_discount_pence": link.DiscountPence,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
