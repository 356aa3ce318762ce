package assignment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/speedy-van/dispatch/internal/repo"
	"github.com/speedy-van/dispatch/pkg/db/models"
	"github.com/speedy-van/dispatch/pkg/enums"
)

// Repository is the persistence surface of the offer lifecycle.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindAssignment(ctx context.Context, id uuid.UUID) (*models.Assignment, error)
	FindActiveByRoute(ctx context.Context, routeID uuid.UUID) (*models.Assignment, error)
	CreateAssignment(ctx context.Context, a *models.Assignment) error
	// TransitionStatus flips status only when the current value still
	// matches from, so concurrent sweeps cannot double-apply. Reports
	// whether this call won the transition.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.AssignmentStatus, updates map[string]any) (bool, error)
	ListExpiredInvites(ctx context.Context, now time.Time, limit int) ([]models.Assignment, error)

	FindRoute(ctx context.Context, id uuid.UUID) (*models.Route, error)
	SetRouteDriver(ctx context.Context, routeID uuid.UUID, driverID string, status enums.RouteStatus) error
	ListRouteBookingIDs(ctx context.Context, routeID uuid.UUID) ([]uuid.UUID, error)
	MarkRouteBookingsCompleted(ctx context.Context, routeID uuid.UUID) error

	FindCandidateDrivers(ctx context.Context, exclude []uuid.UUID, limit int) ([]models.Driver, error)
	GetPerformance(ctx context.Context, driverID uuid.UUID) (*models.DriverPerformance, error)
	SavePerformance(ctx context.Context, perf *models.DriverPerformance) error
}

type repository struct {
	repo.Base
}

// NewRepository builds an assignment repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(tx)}
}

func (r *repository) FindAssignment(ctx context.Context, id uuid.UUID) (*models.Assignment, error) {
	var a models.Assignment
	if err := r.DB(ctx).First(&a, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *repository) FindActiveByRoute(ctx context.Context, routeID uuid.UUID) (*models.Assignment, error) {
	var a models.Assignment
	err := r.DB(ctx).
		Where("route_id = ? AND status IN ?", routeID, []enums.AssignmentStatus{
			enums.AssignmentStatusInvited,
			enums.AssignmentStatusClaimed,
		}).
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *repository) CreateAssignment(ctx context.Context, a *models.Assignment) error {
	return r.DB(ctx).Create(a).Error
}

func (r *repository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.AssignmentStatus, updates map[string]any) (bool, error) {
	if updates == nil {
		updates = map[string]any{}
	}
	updates["status"] = to

	res := r.DB(ctx).
		Model(&models.Assignment{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListExpiredInvites(ctx context.Context, now time.Time, limit int) ([]models.Assignment, error) {
	var rows []models.Assignment
	err := r.DB(ctx).
		Where("status = ? AND expires_at <= ?", enums.AssignmentStatusInvited, now).
		Order("expires_at asc").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) FindRoute(ctx context.Context, id uuid.UUID) (*models.Route, error) {
	var route models.Route
	if err := r.DB(ctx).First(&route, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &route, nil
}

func (r *repository) SetRouteDriver(ctx context.Context, routeID uuid.UUID, driverID string, status enums.RouteStatus) error {
	return r.DB(ctx).
		Model(&models.Route{}).
		Where("id = ?", routeID).
		Updates(map[string]any{"driver_id": driverID, "status": status}).Error
}

func (r *repository) ListRouteBookingIDs(ctx context.Context, routeID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.DB(ctx).
		Model(&models.Booking{}).
		Where("route_id = ?", routeID).
		Order("delivery_sequence asc").
		Pluck("id", &ids).Error
	return ids, err
}

func (r *repository) MarkRouteBookingsCompleted(ctx context.Context, routeID uuid.UUID) error {
	return r.DB(ctx).
		Model(&models.Booking{}).
		Where("route_id = ?", routeID).
		Update("status", enums.BookingStatusCompleted).Error
}

func (r *repository) FindCandidateDrivers(ctx context.Context, exclude []uuid.UUID, limit int) ([]models.Driver, error) {
	q := r.DB(ctx).
		Model(&models.Driver{}).
		Joins("LEFT JOIN driver_performances dp ON dp.driver_id = drivers.id").
		Where("drivers.active = ?", true).
		Where(`drivers.id NOT IN (
			SELECT driver_id FROM assignments WHERE status IN ('invited', 'claimed')
		)`).
		Order("COALESCE(dp.acceptance_rate, 100) DESC, drivers.id ASC").
		Limit(limit)
	if len(exclude) > 0 {
		q = q.Where("drivers.id NOT IN ?", exclude)
	}

	var drivers []models.Driver
	err := q.Preload("Performance").Find(&drivers).Error
	return drivers, err
}

func (r *repository) GetPerformance(ctx context.Context, driverID uuid.UUID) (*models.DriverPerformance, error) {
	var perf models.DriverPerformance
	err := r.DB(ctx).First(&perf, "driver_id = ?", driverID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		perf = models.DriverPerformance{DriverID: driverID, AcceptanceRate: 100}
		if err := r.DB(ctx).Create(&perf).Error; err != nil {
			return nil, err
		}
		return &perf, nil
	}
	if err != nil {
		return nil, err
	}
	return &perf, nil
}

func (r *repository) SavePerformance(ctx context.Context, perf *models.DriverPerformance) error {
	return r.DB(ctx).Save(perf).Error
}
