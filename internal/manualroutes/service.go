package manualroutes

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/speedy-van/dispatch/internal/audit"
	"github.com/speedy-van/dispatch/internal/consolidation"
	"github.com/speedy-van/dispatch/pkg/db/models"
	"github.com/speedy-van/dispatch/pkg/enums"
	pkgerrors "github.com/speedy-van/dispatch/pkg/errors"
	"github.com/speedy-van/dispatch/pkg/logger"
	"github.com/speedy-van/dispatch/pkg/maps"
	"github.com/speedy-van/dispatch/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type auditRecorder interface {
	Record(ctx context.Context, tx *gorm.DB, entry audit.Entry) error
}

type configProvider interface {
	Get(ctx context.Context) (*models.RoutingConfig, error)
}

type driverInviter interface {
	Invite(ctx context.Context, routeID uuid.UUID) (*models.Assignment, error)
}

// Service builds routes from hand-picked bookings and runs the
// approval gate.
type Service interface {
	Preview(ctx context.Context, bookingIDs []uuid.UUID) (*Preview, error)
	Create(ctx context.Context, input CreateInput) (CreateResult, error)
	Approve(ctx context.Context, approvalID uuid.UUID, adminID string) error
	Reject(ctx context.Context, approvalID uuid.UUID, adminID, reason string) error
}

// Preview is a non-persisted look at what a route would be.
type Preview struct {
	StopCount             int           `json:"stop_count"`
	TotalDistanceKm       float64       `json:"total_distance_km"`
	EstimatedDurationMins int           `json:"estimated_duration_mins"`
	Stops                 []PreviewStop `json:"stops"`
}

// PreviewStop is one ordered stop in a preview.
type PreviewStop struct {
	Sequence  int       `json:"sequence"`
	BookingID uuid.UUID `json:"booking_id"`
	Reference string    `json:"reference"`
	Postcode  string    `json:"postcode"`
}

// CreateInput describes a manual route request.
type CreateInput struct {
	BookingIDs   []uuid.UUID
	StartTime    time.Time
	AdminID      string
	SkipApproval bool
}

// CreateResult reports the outcome. Success false with a message covers
// domain rejections; infrastructure failures surface as errors.
type CreateResult struct {
	Success    bool       `json:"success"`
	RouteID    *uuid.UUID `json:"route_id,omitempty"`
	ApprovalID *uuid.UUID `json:"approval_id,omitempty"`
	Message    string     `json:"message"`
}

// Params collects the service dependencies.
type Params struct {
	Repo    Repository
	Tx      txRunner
	Config  configProvider
	Outbox  outboxPublisher
	Auditor auditRecorder
	// Inviter dispatches offers once a route clears the approval gate;
	// nil skips dispatch.
	Inviter driverInviter
	Logger  *logger.Logger
}

type service struct {
	repo    Repository
	tx      txRunner
	config  configProvider
	outbox  outboxPublisher
	auditor auditRecorder
	inviter driverInviter
	logg    *logger.Logger
}

// NewService builds the manual route builder.
func NewService(p Params) (Service, error) {
	if p.Repo == nil {
		return nil, fmt.Errorf("manual routes repository required")
	}
	if p.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if p.Config == nil {
		return nil, fmt.Errorf("config provider required")
	}
	if p.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if p.Auditor == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	return &service{
		repo:    p.Repo,
		tx:      p.Tx,
		config:  p.Config,
		outbox:  p.Outbox,
		auditor: p.Auditor,
		inviter: p.Inviter,
		logg:    p.Logger,
	}, nil
}

// Preview validates the bookings and returns the would-be stop order
// without touching the database beyond reads.
func (s *service) Preview(ctx context.Context, bookingIDs []uuid.UUID) (*Preview, error) {
	bookings, err := s.loadRoutable(ctx, s.repo, bookingIDs)
	if err != nil {
		return nil, err
	}

	ordered, totalKm, durationMins := sequenceBookings(bookings)

	preview := &Preview{
		StopCount:             len(ordered),
		TotalDistanceKm:       totalKm,
		EstimatedDurationMins: durationMins,
	}
	for i, b := range ordered {
		postcode := ""
		if drop := b.Dropoff(); drop != nil {
			postcode = drop.Postcode
		}
		preview.Stops = append(preview.Stops, PreviewStop{
			Sequence:  i + 1,
			BookingID: b.ID,
			Reference: b.Reference,
			Postcode:  postcode,
		})
	}
	return preview, nil
}

// Create builds the route atomically, re-validating availability inside
// the transaction. With approval required and SkipApproval unset, the
// route is held behind a pending RouteApproval instead of dispatching
// offers.
func (s *service) Create(ctx context.Context, input CreateInput) (CreateResult, error) {
	if input.AdminID == "" {
		return CreateResult{}, pkgerrors.New(pkgerrors.CodeValidation, "admin id required")
	}
	if len(input.BookingIDs) == 0 {
		return CreateResult{}, pkgerrors.New(pkgerrors.CodeValidation, "at least one booking required")
	}

	cfg, err := s.config.Get(ctx)
	if err != nil {
		return CreateResult{}, err
	}
	held := cfg.RequireApproval && !input.SkipApproval

	var result CreateResult
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)

		bookings, err := s.loadRoutable(ctx, txRepo, input.BookingIDs)
		if err != nil {
			return err
		}

		ordered, totalKm, durationMins := sequenceBookings(bookings)

		orderType := enums.OrderTypeMultiDrop
		if len(ordered) == 1 {
			orderType = enums.OrderTypeSingle
		}

		startAt := input.StartTime
		if startAt.IsZero() {
			startAt = ordered[0].ScheduledAt
		}
		route := &models.Route{
			ID:                uuid.New(),
			Status:            enums.RouteStatusPlanned,
			DriverID:          models.DriverUnassigned,
			TotalDistanceKm:   totalKm,
			TotalDurationMins: durationMins,
			OptimizationScore: consolidation.SingleRouteScore,
			StartAt:           &startAt,
			TimeBand:          consolidation.TimeBand(startAt),
		}
		for _, b := range ordered {
			route.TotalValuePence += b.TotalPence
		}
		if err := txRepo.CreateRoute(ctx, route); err != nil {
			return err
		}

		bookingIDs := make([]uuid.UUID, 0, len(ordered))
		for i, b := range ordered {
			linked, err := txRepo.LinkBooking(ctx, b.ID, route.ID, i+1, orderType)
			if err != nil {
				return err
			}
			if !linked {
				return pkgerrors.New(pkgerrors.CodeConflict,
					fmt.Sprintf("booking %s is no longer available", b.Reference))
			}
			bookingIDs = append(bookingIDs, b.ID)
		}

		if err := s.auditor.Record(ctx, tx, audit.Entry{
			EventType:  enums.AuditManualRouteCreated,
			Severity:   enums.AuditSeverityInfo,
			Actor:      input.AdminID,
			EntityType: "route",
			EntityID:   route.ID.String(),
			Details: map[string]any{
				"booking_ids":   bookingIDs,
				"held":          held,
				"skip_approval": input.SkipApproval,
			},
		}); err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRouteCreated,
			AggregateType: enums.AggregateRoute,
			AggregateID:   route.ID,
			Actor:         &outbox.ActorRef{ID: input.AdminID, Role: "admin"},
			Data: map[string]any{
				"route_id":           route.ID,
				"order_type":         orderType,
				"booking_ids":        bookingIDs,
				"total_distance_km":  route.TotalDistanceKm,
				"total_value_pence":  route.TotalValuePence,
				"optimization_score": route.OptimizationScore,
			},
			Version: 1,
		}); err != nil {
			return err
		}

		routeID := route.ID
		if held {
			approval := &models.RouteApproval{
				ID:          uuid.New(),
				RouteID:     route.ID,
				Status:      enums.ApprovalStatusPending,
				RequestedBy: input.AdminID,
			}
			if err := txRepo.CreateApproval(ctx, approval); err != nil {
				return err
			}
			approvalID := approval.ID
			result = CreateResult{
				Success:    true,
				RouteID:    &routeID,
				ApprovalID: &approvalID,
				Message:    "route created and awaiting approval",
			}
			return nil
		}

		result = CreateResult{
			Success: true,
			RouteID: &routeID,
			Message: "route created",
		}
		return nil
	})
	if err != nil {
		if appErr := pkgerrors.As(err); appErr != nil &&
			(appErr.Code() == pkgerrors.CodeValidation || appErr.Code() == pkgerrors.CodeConflict) {
			return CreateResult{Success: false, Message: appErr.Message()}, nil
		}
		return CreateResult{}, err
	}

	if !held && result.RouteID != nil {
		s.dispatch(ctx, *result.RouteID)
	}
	return result, nil
}

// Approve clears the gate and dispatches offers.
func (s *service) Approve(ctx context.Context, approvalID uuid.UUID, adminID string) error {
	approval, err := s.repo.FindApproval(ctx, approvalID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "approval not found")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		now := time.Now()

		decided, err := txRepo.DecideApproval(ctx, approvalID, enums.ApprovalStatusApproved,
			map[string]any{"decided_by": adminID, "decided_at": now})
		if err != nil {
			return err
		}
		if !decided {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "approval already decided")
		}

		return s.auditor.Record(ctx, tx, audit.Entry{
			EventType:  enums.AuditRouteApproved,
			Severity:   enums.AuditSeverityInfo,
			Actor:      adminID,
			EntityType: "route",
			EntityID:   approval.RouteID.String(),
		})
	})
	if err != nil {
		return err
	}

	s.dispatch(ctx, approval.RouteID)
	return nil
}

// Reject releases the bound bookings and cancels the route.
func (s *service) Reject(ctx context.Context, approvalID uuid.UUID, adminID, reason string) error {
	approval, err := s.repo.FindApproval(ctx, approvalID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "approval not found")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		now := time.Now()

		decided, err := txRepo.DecideApproval(ctx, approvalID, enums.ApprovalStatusRejected,
			map[string]any{"decided_by": adminID, "decided_at": now, "reason": reason})
		if err != nil {
			return err
		}
		if !decided {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "approval already decided")
		}

		released, err := txRepo.ReleaseRouteBookings(ctx, approval.RouteID)
		if err != nil {
			return err
		}
		if err := txRepo.SetRouteStatus(ctx, approval.RouteID, enums.RouteStatusCancelled); err != nil {
			return err
		}

		if err := s.auditor.Record(ctx, tx, audit.Entry{
			EventType:  enums.AuditRouteRejected,
			Severity:   enums.AuditSeverityInfo,
			Actor:      adminID,
			EntityType: "route",
			EntityID:   approval.RouteID.String(),
			Details:    map[string]string{"reason": reason},
		}); err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRouteCancelled,
			AggregateType: enums.AggregateRoute,
			AggregateID:   approval.RouteID,
			Actor:         &outbox.ActorRef{ID: adminID, Role: "admin"},
			Data: map[string]any{
				"route_id":    approval.RouteID,
				"booking_ids": released,
				"reason":      reason,
			},
			Version: 1,
		}); err != nil {
			return err
		}
		for _, bookingID := range released {
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventBookingAvailable,
				AggregateType: enums.AggregateBooking,
				AggregateID:   bookingID,
				Data: map[string]any{
					"booking_id": bookingID,
					"route_id":   approval.RouteID,
					"reason":     "route rejected",
				},
				Version: 1,
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// loadRoutable fetches the bookings and enforces the availability
// invariant: CONFIRMED status and no existing route binding.
func (s *service) loadRoutable(ctx context.Context, r Repository, bookingIDs []uuid.UUID) ([]models.Booking, error) {
	bookings, err := r.FindBookingsByIDs(ctx, bookingIDs)
	if err != nil {
		return nil, err
	}
	if len(bookings) != len(bookingIDs) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("found %d of %d bookings", len(bookings), len(bookingIDs)))
	}
	for _, b := range bookings {
		if b.Status != enums.BookingStatusConfirmed {
			return nil, pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("booking %s is not available: status %s", b.Reference, b.Status))
		}
		if b.RouteID != nil {
			return nil, pkgerrors.New(pkgerrors.CodeConflict,
				fmt.Sprintf("booking %s is not available: already routed", b.Reference))
		}
	}
	return bookings, nil
}

func (s *service) dispatch(ctx context.Context, routeID uuid.UUID) {
	if s.inviter == nil {
		return
	}
	if _, err := s.inviter.Invite(ctx, routeID); err != nil && s.logg != nil {
		logCtx := s.logg.WithRouteID(ctx, routeID.String())
		s.logg.Error(logCtx, "offer dispatch failed", err)
	}
}

// sequenceBookings orders the bookings the same way the consolidator
// would, falling back to scheduled order when an optimizer pass is not
// possible.
func sequenceBookings(bookings []models.Booking) ([]models.Booking, float64, int) {
	if len(bookings) >= 2 {
		if candidate, ok := consolidation.Optimize(bookings, consolidation.Limits{}); ok {
			return candidate.Bookings, candidate.TotalKm, candidate.TotalDurationMins
		}
	}

	totalKm := 0.0
	for _, b := range bookings {
		pickup, dropoff := b.Pickup(), b.Dropoff()
		if pickup == nil || dropoff == nil {
			continue
		}
		totalKm += maps.HaversineKm(
			maps.LatLng{Latitude: pickup.Latitude, Longitude: pickup.Longitude},
			maps.LatLng{Latitude: dropoff.Latitude, Longitude: dropoff.Longitude})
	}
	return bookings, totalKm, int(totalKm/80*60) + len(bookings)*10
}
