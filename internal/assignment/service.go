package assignment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/speedy-van/dispatch/internal/audit"
	dbpkg "github.com/speedy-van/dispatch/pkg/db"
	"github.com/speedy-van/dispatch/pkg/db/models"
	"github.com/speedy-van/dispatch/pkg/enums"
	pkgerrors "github.com/speedy-van/dispatch/pkg/errors"
	"github.com/speedy-van/dispatch/pkg/logger"
	"github.com/speedy-van/dispatch/pkg/metrics"
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

// Service drives the offer state machine. It is the only writer of the
// acceptance rate.
type Service interface {
	Invite(ctx context.Context, routeID uuid.UUID) (*models.Assignment, error)
	Accept(ctx context.Context, assignmentID, driverID uuid.UUID) (*models.Assignment, error)
	Decline(ctx context.Context, assignmentID, driverID uuid.UUID) error
	Complete(ctx context.Context, assignmentID, driverID uuid.UUID) (*models.Assignment, error)
	ExpireDue(ctx context.Context, now time.Time, limit int) (int, error)
}

// Params collects the service dependencies.
type Params struct {
	Repo    Repository
	Tx      txRunner
	Outbox  outboxPublisher
	Auditor auditRecorder
	Metrics *metrics.RoutingMetrics
	Logger  *logger.Logger
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	auditor auditRecorder
	metrics *metrics.RoutingMetrics
	logg    *logger.Logger
	nowFn   func() time.Time
}

// NewService builds the assignment lifecycle manager.
func NewService(p Params) (Service, error) {
	if p.Repo == nil {
		return nil, fmt.Errorf("assignment repository required")
	}
	if p.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
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
		outbox:  p.Outbox,
		auditor: p.Auditor,
		metrics: p.Metrics,
		logg:    p.Logger,
		nowFn:   time.Now,
	}, nil
}

// Invite offers the route to the best available driver. A route with an
// active offer cannot be offered twice; the partial unique index backs
// this up at the data layer.
func (s *service) Invite(ctx context.Context, routeID uuid.UUID) (*models.Assignment, error) {
	var created *models.Assignment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)

		route, err := txRepo.FindRoute(ctx, routeID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "route not found")
		}
		if active, err := txRepo.FindActiveByRoute(ctx, routeID); err != nil {
			return err
		} else if active != nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "route already has an active offer")
		}

		candidates, err := txRepo.FindCandidateDrivers(ctx, nil, 1)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			if err := s.flagForAdmin(ctx, tx, routeID, "no available drivers to invite"); err != nil {
				return err
			}
			return pkgerrors.New(pkgerrors.CodeStateConflict, "no available drivers")
		}

		driver := candidates[0]
		offer := &models.Assignment{
			RouteID:   routeID,
			DriverID:  driver.ID,
			Status:    enums.AssignmentStatusInvited,
			Round:     1,
			ExpiresAt: s.nowFn().Add(OfferTTL),
		}
		if err := txRepo.CreateAssignment(ctx, offer); err != nil {
			if dbpkg.IsUniqueViolation(err, "ux_assignments_active_route") {
				return pkgerrors.New(pkgerrors.CodeConflict, "route already has an active offer")
			}
			return err
		}

		perf, err := txRepo.GetPerformance(ctx, driver.ID)
		if err != nil {
			return err
		}
		perf.TotalOffers++
		if err := txRepo.SavePerformance(ctx, perf); err != nil {
			return err
		}

		dropCount, err := txRepo.ListRouteBookingIDs(ctx, routeID)
		if err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOfferCreated,
			AggregateType: enums.AggregateAssignment,
			AggregateID:   offer.ID,
			Data: map[string]any{
				"assignment_id": offer.ID,
				"route_id":      routeID,
				"driver_id":     driver.ID,
				"round":         offer.Round,
				"expires_at":    offer.ExpiresAt,
				"drop_count":    len(dropCount),
				"value_pence":   route.TotalValuePence,
			},
			Version: 1,
		}); err != nil {
			return err
		}

		created = offer
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Accept claims an offer for the invited driver.
func (s *service) Accept(ctx context.Context, assignmentID, driverID uuid.UUID) (*models.Assignment, error) {
	var claimed *models.Assignment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)

		offer, err := txRepo.FindAssignment(ctx, assignmentID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "offer not found")
		}
		if offer.DriverID != driverID {
			return pkgerrors.New(pkgerrors.CodeValidation, "offer belongs to a different driver")
		}
		if offer.ExpiresAt.Before(s.nowFn()) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "offer has expired")
		}

		now := s.nowFn()
		won, err := txRepo.TransitionStatus(ctx, assignmentID,
			enums.AssignmentStatusInvited, enums.AssignmentStatusClaimed,
			map[string]any{"claimed_at": now, "responded_at": now})
		if err != nil {
			return err
		}
		if !won {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "offer already claimed or closed")
		}

		if err := txRepo.SetRouteDriver(ctx, offer.RouteID, driverID.String(), enums.RouteStatusAssigned); err != nil {
			return err
		}

		perf, err := txRepo.GetPerformance(ctx, driverID)
		if err != nil {
			return err
		}
		perf.TotalAccepted++
		perf.LastCalculated = now
		if err := txRepo.SavePerformance(ctx, perf); err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOfferClaimed,
			AggregateType: enums.AggregateAssignment,
			AggregateID:   offer.ID,
			Data: map[string]any{
				"assignment_id": offer.ID,
				"route_id":      offer.RouteID,
				"driver_id":     driverID,
				"claimed_at":    now,
			},
			Version: 1,
		}); err != nil {
			return err
		}

		offer.Status = enums.AssignmentStatusClaimed
		offer.ClaimedAt = &now
		offer.RespondedAt = &now
		claimed = offer
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Decline closes the offer and cascades it to the next driver.
func (s *service) Decline(ctx context.Context, assignmentID, driverID uuid.UUID) error {
	offer, err := s.repo.FindAssignment(ctx, assignmentID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "offer not found")
	}
	if offer.DriverID != driverID {
		return pkgerrors.New(pkgerrors.CodeValidation, "offer belongs to a different driver")
	}
	handled, err := s.closeAndReassign(ctx, offer, enums.AssignmentStatusDeclined)
	if err != nil {
		return err
	}
	if !handled {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "offer already closed")
	}
	return nil
}

// Complete marks a claimed offer delivered and closes the route.
func (s *service) Complete(ctx context.Context, assignmentID, driverID uuid.UUID) (*models.Assignment, error) {
	var completed *models.Assignment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)

		offer, err := txRepo.FindAssignment(ctx, assignmentID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "offer not found")
		}
		if offer.DriverID != driverID {
			return pkgerrors.New(pkgerrors.CodeValidation, "offer belongs to a different driver")
		}

		now := s.nowFn()
		won, err := txRepo.TransitionStatus(ctx, assignmentID,
			enums.AssignmentStatusClaimed, enums.AssignmentStatusCompleted,
			map[string]any{"responded_at": now})
		if err != nil {
			return err
		}
		if !won {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only a claimed offer can be completed")
		}

		if err := txRepo.SetRouteDriver(ctx, offer.RouteID, driverID.String(), enums.RouteStatusCompleted); err != nil {
			return err
		}
		if err := txRepo.MarkRouteBookingsCompleted(ctx, offer.RouteID); err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOfferCompleted,
			AggregateType: enums.AggregateAssignment,
			AggregateID:   offer.ID,
			Data: map[string]any{
				"assignment_id": offer.ID,
				"route_id":      offer.RouteID,
				"driver_id":     driverID,
				"completed_at":  now,
			},
			Version: 1,
		}); err != nil {
			return err
		}

		offer.Status = enums.AssignmentStatusCompleted
		offer.RespondedAt = &now
		completed = offer
		return nil
	})
	if err != nil {
		return nil, err
	}
	return completed, nil
}

// ExpireDue sweeps offers past their expiry timestamp. Each offer is
// handled independently; an offer already closed by a concurrent sweep
// is a no-op here.
func (s *service) ExpireDue(ctx context.Context, now time.Time, limit int) (int, error) {
	due, err := s.repo.ListExpiredInvites(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range due {
		handled, err := s.closeAndReassign(ctx, &due[i], enums.AssignmentStatusExpired)
		if err != nil {
			if s.logg != nil {
				logCtx := s.logg.WithRouteID(ctx, due[i].RouteID.String())
				s.logg.Error(logCtx, "expiry cascade failed", err)
			}
			continue
		}
		if handled {
			expired++
		}
	}
	s.metrics.AddOffersExpired(expired)
	return expired, nil
}

// closeAndReassign applies the failure transition, the penalty and the
// cascade as one atomic unit. Reports false when another caller already
// closed the offer.
func (s *service) closeAndReassign(ctx context.Context, offer *models.Assignment, outcome enums.AssignmentStatus) (bool, error) {
	handled := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		now := s.nowFn()

		won, err := txRepo.TransitionStatus(ctx, offer.ID,
			enums.AssignmentStatusInvited, outcome,
			map[string]any{"responded_at": now})
		if err != nil {
			return err
		}
		if !won {
			return nil
		}
		handled = true

		// Release the route back to the routable pool.
		if err := txRepo.SetRouteDriver(ctx, offer.RouteID, models.DriverUnassigned, enums.RouteStatusPlanned); err != nil {
			return err
		}

		perf, err := txRepo.GetPerformance(ctx, offer.DriverID)
		if err != nil {
			return err
		}
		candidates, err := txRepo.FindCandidateDrivers(ctx, []uuid.UUID{offer.DriverID}, 1)
		if err != nil {
			return err
		}

		decision := DecideReassignment(ReassignmentInput{
			Failed:      *offer,
			Outcome:     outcome,
			Performance: *perf,
			Candidates:  candidates,
			Now:         now,
		})

		oldRate := perf.AcceptanceRate
		*perf = decision.Performance
		if err := txRepo.SavePerformance(ctx, perf); err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOfferRevoked,
			AggregateType: enums.AggregateAssignment,
			AggregateID:   offer.ID,
			Data: map[string]any{
				"assignment_id": offer.ID,
				"route_id":      offer.RouteID,
				"driver_id":     offer.DriverID,
				"status":        outcome,
			},
			Version: 1,
		}); err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPerformanceUpdated,
			AggregateType: enums.AggregateDriver,
			AggregateID:   offer.DriverID,
			Data: map[string]any{
				"driver_id":       offer.DriverID,
				"acceptance_rate": perf.AcceptanceRate,
				"delta":           perf.AcceptanceRate - oldRate,
			},
			Version: 1,
		}); err != nil {
			return err
		}

		bookingIDs, err := txRepo.ListRouteBookingIDs(ctx, offer.RouteID)
		if err != nil {
			return err
		}
		for _, bookingID := range bookingIDs {
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventBookingAvailable,
				AggregateType: enums.AggregateBooking,
				AggregateID:   bookingID,
				Data: map[string]any{
					"booking_id": bookingID,
					"route_id":   offer.RouteID,
					"reason":     string(outcome),
				},
				Version: 1,
			}); err != nil {
				return err
			}
		}

		if decision.NextOffer != nil {
			next := decision.NextOffer
			if err := txRepo.CreateAssignment(ctx, next); err != nil {
				return err
			}
			nextPerf, err := txRepo.GetPerformance(ctx, next.DriverID)
			if err != nil {
				return err
			}
			nextPerf.TotalOffers++
			if err := txRepo.SavePerformance(ctx, nextPerf); err != nil {
				return err
			}
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOfferCreated,
				AggregateType: enums.AggregateAssignment,
				AggregateID:   next.ID,
				Data: map[string]any{
					"assignment_id": next.ID,
					"route_id":      next.RouteID,
					"driver_id":     next.DriverID,
					"round":         next.Round,
					"expires_at":    next.ExpiresAt,
					"drop_count":    len(bookingIDs),
				},
				Version: 1,
			}); err != nil {
				return err
			}
			s.metrics.IncReassignments()
			return nil
		}

		return s.flagForAdmin(ctx, tx, offer.RouteID, "no eligible drivers remaining after "+string(outcome)+" offer")
	})
	if err != nil {
		return false, err
	}
	return handled, nil
}

func (s *service) flagForAdmin(ctx context.Context, tx *gorm.DB, routeID uuid.UUID, message string) error {
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventAdminActionRequired,
		AggregateType: enums.AggregateRoute,
		AggregateID:   routeID,
		Data: map[string]any{
			"route_id": routeID,
			"message":  message,
		},
		Version: 1,
	}); err != nil {
		return err
	}
	return s.auditor.Record(ctx, tx, audit.Entry{
		EventType:  enums.AuditRoutingError,
		Severity:   enums.AuditSeverityWarning,
		Actor:      "system",
		EntityType: "route",
		EntityID:   routeID.String(),
		Details:    map[string]string{"message": message},
	})
}
