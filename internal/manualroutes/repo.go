package manualroutes

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/speedy-van/dispatch/internal/repo"
	"github.com/speedy-van/dispatch/pkg/db/models"
	"github.com/speedy-van/dispatch/pkg/enums"
)

// Repository is the persistence surface of the manual route builder.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindBookingsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Booking, error)
	CreateRoute(ctx context.Context, route *models.Route) error
	LinkBooking(ctx context.Context, bookingID, routeID uuid.UUID, sequence int, orderType enums.OrderType) (bool, error)
	ReleaseRouteBookings(ctx context.Context, routeID uuid.UUID) ([]uuid.UUID, error)
	SetRouteStatus(ctx context.Context, routeID uuid.UUID, status enums.RouteStatus) error

	CreateApproval(ctx context.Context, approval *models.RouteApproval) error
	FindApproval(ctx context.Context, id uuid.UUID) (*models.RouteApproval, error)
	DecideApproval(ctx context.Context, id uuid.UUID, to enums.ApprovalStatus, updates map[string]any) (bool, error)
}

type repository struct {
	repo.Base
}

// NewRepository builds a manual routes repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(tx)}
}

func (r *repository) FindBookingsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Booking, error) {
	var bookings []models.Booking
	err := r.DB(ctx).
		Where("id IN ?", ids).
		Preload("Addresses").
		Preload("Items").
		Find(&bookings).Error
	return bookings, err
}

func (r *repository) CreateRoute(ctx context.Context, route *models.Route) error {
	return r.DB(ctx).Create(route).Error
}

// LinkBooking attaches the booking only while it is still unrouted.
// Reports false when another route claimed it first.
func (r *repository) LinkBooking(ctx context.Context, bookingID, routeID uuid.UUID, sequence int, orderType enums.OrderType) (bool, error) {
	res := r.DB(ctx).
		Model(&models.Booking{}).
		Where("id = ? AND route_id IS NULL AND status = ?", bookingID, enums.BookingStatusConfirmed).
		Updates(map[string]any{
			"route_id":          routeID,
			"delivery_sequence": sequence,
			"order_type":        orderType,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ReleaseRouteBookings unsets the route binding and reverts the order
// type. Returns the released booking ids.
func (r *repository) ReleaseRouteBookings(ctx context.Context, routeID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.DB(ctx).
		Model(&models.Booking{}).
		Where("route_id = ?", routeID).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	err := r.DB(ctx).
		Model(&models.Booking{}).
		Where("route_id = ?", routeID).
		Updates(map[string]any{
			"route_id":                     nil,
			"delivery_sequence":            nil,
			"order_type":                   enums.OrderTypeSingle,
			"consolidation_discount_pence": 0,
		}).Error
	return ids, err
}

func (r *repository) SetRouteStatus(ctx context.Context, routeID uuid.UUID, status enums.RouteStatus) error {
	return r.DB(ctx).
		Model(&models.Route{}).
		Where("id = ?", routeID).
		Update("status", status).Error
}

func (r *repository) CreateApproval(ctx context.Context, approval *models.RouteApproval) error {
	return r.DB(ctx).Create(approval).Error
}

func (r *repository) FindApproval(ctx context.Context, id uuid.UUID) (*models.RouteApproval, error) {
	var approval models.RouteApproval
	if err := r.DB(ctx).First(&approval, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &approval, nil
}

// DecideApproval transitions a pending approval. Reports false when the
// approval was already decided.
func (r *repository) DecideApproval(ctx context.Context, id uuid.UUID, to enums.ApprovalStatus, updates map[string]any) (bool, error) {
	if updates == nil {
		updates = map[string]any{}
	}
	updates["status"] = to

	res := r.DB(ctx).
		Model(&models.RouteApproval{}).
		Where("id = ? AND status = ?", id, enums.ApprovalStatusPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
