package consolidation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/speedy-van/dispatch/internal/audit"
	"github.com/speedy-van/dispatch/internal/eligibility"
	"github.com/speedy-van/dispatch/pkg/db/models"
	"github.com/speedy-van/dispatch/pkg/enums"
	"github.com/speedy-van/dispatch/pkg/logger"
	"github.com/speedy-van/dispatch/pkg/maps"
	"github.com/speedy-van/dispatch/pkg/metrics"
	"github.com/speedy-van/dispatch/pkg/outbox"
	"github.com/speedy-van/dispatch/pkg/pricing"
)

const (
	// RunName keys the single-flight guard in redis.
	RunName = "auto-routing"

	// ErrAlreadyRunning and ErrDisabled are contract tokens surfaced in
	// RunResult.Errors; callers branch on them without string parsing
	// elsewhere in the payload.
	ErrAlreadyRunning = "already running"
	ErrDisabled       = "Auto-routing is disabled"
)

// RunResult summarizes one consolidation pass.
type RunResult struct {
	Success           bool     `json:"success"`
	BookingsProcessed int      `json:"bookings_processed"`
	RoutesCreated     int      `json:"routes_created"`
	Errors            []string `json:"errors"`
}

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

type runGuard interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	RunKey(name string) string
}

type quoter interface {
	RequoteForRoute(ctx context.Context, req pricing.QuoteRequest) (*pricing.Quote, error)
}

type refunder interface {
	RefundConsolidation(ctx context.Context, paymentIntentID string, amountPence int) (string, error)
}

type legComputer interface {
	ComputeLeg(ctx context.Context, origin, destination maps.LatLng) (*maps.Leg, error)
}

type driverInviter interface {
	Invite(ctx context.Context, routeID uuid.UUID) (*models.Assignment, error)
}

// Params collects the consolidation dependencies.
type Params struct {
	Repo    Repository
	Tx      txRunner
	Config  configProvider
	Guard   runGuard
	Outbox  outboxPublisher
	Auditor auditRecorder
	Pricer  quoter
	Refunds refunder
	// Distance refines route totals via the Routes API; nil falls back
	// to the haversine estimate.
	Distance legComputer
	// Inviter dispatches offers when auto-assign is on; nil skips it.
	Inviter driverInviter
	Metrics *metrics.RoutingMetrics
	Logger  *logger.Logger

	LookaheadWindow time.Duration
	BatchSize       int
	LockTTL         time.Duration
}

// Service runs the consolidation pass.
type Service struct {
	repo     Repository
	tx       txRunner
	config   configProvider
	guard    runGuard
	outbox   outboxPublisher
	auditor  auditRecorder
	pricer   quoter
	refunds  refunder
	distance legComputer
	inviter  driverInviter
	metrics  *metrics.RoutingMetrics
	logg     *logger.Logger

	lookahead time.Duration
	batchSize int
	lockTTL   time.Duration
	nowFn     func() time.Time
}

// NewService builds the route consolidator.
func NewService(p Params) (*Service, error) {
	if p.Repo == nil {
		return nil, fmt.Errorf("consolidation repository required")
	}
	if p.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if p.Config == nil {
		return nil, fmt.Errorf("config provider required")
	}
	if p.Guard == nil {
		return nil, fmt.Errorf("run guard required")
	}
	if p.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if p.Auditor == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	if p.LookaheadWindow <= 0 {
		p.LookaheadWindow = 48 * time.Hour
	}
	if p.BatchSize <= 0 {
		p.BatchSize = 100
	}
	if p.LockTTL <= 0 {
		p.LockTTL = 10 * time.Minute
	}
	return &Service{
		repo:      p.Repo,
		tx:        p.Tx,
		config:    p.Config,
		guard:     p.Guard,
		outbox:    p.Outbox,
		auditor:   p.Auditor,
		pricer:    p.Pricer,
		refunds:   p.Refunds,
		distance:  p.Distance,
		inviter:   p.Inviter,
		metrics:   p.Metrics,
		logg:      p.Logger,
		lookahead: p.LookaheadWindow,
		batchSize: p.BatchSize,
		lockTTL:   p.LockTTL,
		nowFn:     time.Now,
	}, nil
}

// Run executes one consolidation pass. Scheduled ticks and manual
// triggers share this path; the single-flight guard keeps them mutually
// exclusive.
func (s *Service) Run(ctx context.Context, trigger string) RunResult {
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return RunResult{Errors: []string{"load routing config: " + err.Error()}}
	}
	if !cfg.AutoRoutingEnabled {
		return RunResult{Errors: []string{ErrDisabled}}
	}

	lockKey := s.guard.RunKey(RunName)
	acquired, err := s.guard.SetNX(ctx, lockKey, trigger, s.lockTTL)
	if err != nil {
		return RunResult{Errors: []string{"acquire run guard: " + err.Error()}}
	}
	if !acquired {
		return RunResult{Errors: []string{ErrAlreadyRunning}}
	}
	defer func() {
		if err := s.guard.Del(context.WithoutCancel(ctx), lockKey); err != nil && s.logg != nil {
			s.logg.Error(ctx, "release run guard", err)
		}
	}()

	return s.runLocked(ctx, trigger, cfg)
}

func (s *Service) runLocked(ctx context.Context, trigger string, cfg *models.RoutingConfig) RunResult {
	now := s.nowFn()
	result := RunResult{}

	bookings, err := s.repo.ListUnroutedConfirmed(ctx, now, now.Add(s.lookahead), s.batchSize)
	if err != nil {
		result.Errors = append(result.Errors, "list bookings: "+err.Error())
		return result
	}
	result.BookingsProcessed = len(bookings)
	s.metrics.AddBookingsProcessed(len(bookings))

	var eligible []models.Booking
	var singles []pricedBooking
	for i := range bookings {
		b := &bookings[i]
		if !b.Scored() {
			eligibility.Apply(b, eligibility.Score(b))
			if err := s.repo.SaveEligibility(ctx, b); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("score booking %s: %v", b.Reference, err))
				continue
			}
		}
		if b.EligibleForMultiDrop != nil && *b.EligibleForMultiDrop {
			eligible = append(eligible, *b)
		} else {
			singles = append(singles, pricedBooking{booking: *b})
		}
	}

	buckets, ungroupable := GroupBookings(eligible)
	singles = append(singles, asPriced(ungroupable)...)

	routed := 0
	var runErr error
	for _, key := range SortedKeys(buckets) {
		bucket := buckets[key]
		if len(bucket) < cfg.MinDropsForAutoRoute {
			singles = append(singles, asPriced(bucket)...)
			continue
		}

		candidate, ok := Optimize(bucket, Limits{
			MaxDrops:      cfg.MaxDropsPerRoute,
			MaxDistanceKm: cfg.MaxRouteDistanceKm,
		})
		if !ok {
			singles = append(singles, asPriced(bucket)...)
			continue
		}

		created, priced, err := s.createConsolidatedRoute(ctx, key, candidate)
		if err != nil {
			runErr = multierr.Append(runErr, err)
			result.Errors = append(result.Errors, fmt.Sprintf("bucket %s/%s/%s: %v", key.Day, key.Band, key.PostcodeArea, err))
			// Refunds issued before the failed transaction travel with
			// their bookings so the fallback links match the money moved.
			singles = append(singles, priced...)
			continue
		}
		if created == nil {
			// Every booking was excluded by pricing/refund failures.
			continue
		}
		result.RoutesCreated++
		routed += len(priced)
		s.metrics.IncRoutesCreated(string(enums.OrderTypeMultiDrop))
		s.dispatchIfAutoAssign(ctx, cfg, created.ID)
	}

	for i := range singles {
		route, err := s.createSingleRoute(ctx, singles[i])
		if err != nil {
			runErr = multierr.Append(runErr, err)
			result.Errors = append(result.Errors, fmt.Sprintf("single route for %s: %v", singles[i].booking.Reference, err))
			continue
		}
		result.RoutesCreated++
		routed++
		s.metrics.IncRoutesCreated(string(enums.OrderTypeSingle))
		s.dispatchIfAutoAssign(ctx, cfg, route.ID)
	}

	result.Success = len(result.Errors) == 0
	s.metrics.AddRunErrors(len(result.Errors))
	s.metrics.SetUnassignedLeftover(result.BookingsProcessed - routed)

	if err := s.recordRunOutcome(ctx, trigger, result); err != nil && s.logg != nil {
		s.logg.Error(ctx, "record consolidation outcome", err)
	}
	if runErr != nil && s.logg != nil {
		s.logg.Error(ctx, "consolidation pass finished with bucket errors", runErr)
	}
	return result
}

// pricedBooking pairs a booking with the discount already refunded to
// its customer.
type pricedBooking struct {
	booking  models.Booking
	discount int
}

func asPriced(bookings []models.Booking) []pricedBooking {
	out := make([]pricedBooking, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, pricedBooking{booking: b})
	}
	return out
}

// createConsolidatedRoute prices every booking, issues refunds and
// links the survivors in one transaction. A booking whose re-quote or
// refund fails is excluded, never half-linked. Returns a nil route when
// no booking survived. The priced slice is returned even when the
// transaction fails: refunds are already issued at that point, and the
// caller must not lose them when it falls back to single routes.
func (s *Service) createConsolidatedRoute(ctx context.Context, key BucketKey, candidate Candidate) (*models.Route, []pricedBooking, error) {
	var priced []pricedBooking
	for _, b := range candidate.Bookings {
		discount, err := s.priceAndRefund(ctx, b, candidate)
		if err != nil {
			if s.logg != nil {
				logCtx := s.logg.WithBookingID(ctx, b.ID.String())
				s.logg.Error(logCtx, "booking excluded from consolidated route", err)
			}
			continue
		}
		priced = append(priced, pricedBooking{booking: b, discount: discount})
	}
	if len(priced) == 0 {
		return nil, nil, nil
	}

	totalKm, durationMins := s.refineTotals(ctx, candidate)

	orderType := enums.OrderTypeMultiDrop
	if len(priced) == 1 {
		orderType = enums.OrderTypeSingle
	}

	startAt := priced[0].booking.ScheduledAt
	route := &models.Route{
		ID:                uuid.New(),
		Status:            enums.RouteStatusPlanned,
		DriverID:          models.DriverUnassigned,
		TotalDistanceKm:   totalKm,
		TotalDurationMins: durationMins,
		OptimizationScore: candidate.Score,
		StartAt:           &startAt,
		TimeBand:          key.Band,
	}
	if len(priced) == 1 {
		route.OptimizationScore = SingleRouteScore
	}
	for _, p := range priced {
		route.TotalValuePence += p.booking.TotalPence - p.discount
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		if err := txRepo.CreateRoute(ctx, route); err != nil {
			return err
		}

		bookingIDs := make([]uuid.UUID, 0, len(priced))
		for i, p := range priced {
			if err := txRepo.LinkBooking(ctx, BookingLink{
				BookingID:        p.booking.ID,
				RouteID:          route.ID,
				DeliverySequence: i + 1,
				OrderType:        orderType,
				DiscountPence:    p.discount,
			}); err != nil {
				return fmt.Errorf("link booking %s: %w", p.booking.Reference, err)
			}
			bookingIDs = append(bookingIDs, p.booking.ID)
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRouteCreated,
			AggregateType: enums.AggregateRoute,
			AggregateID:   route.ID,
			Data: map[string]any{
				"route_id":           route.ID,
				"order_type":         orderType,
				"booking_ids":        bookingIDs,
				"total_distance_km":  route.TotalDistanceKm,
				"total_value_pence":  route.TotalValuePence,
				"optimization_score": route.OptimizationScore,
			},
			Version: 1,
		})
	})
	if err != nil {
		return nil, priced, err
	}
	return route, priced, nil
}

func (s *Service) createSingleRoute(ctx context.Context, p pricedBooking) (*models.Route, error) {
	b := p.booking
	startAt := b.ScheduledAt
	route := &models.Route{
		ID:                uuid.New(),
		Status:            enums.RouteStatusPlanned,
		DriverID:          models.DriverUnassigned,
		TotalDistanceKm:   legKm(b),
		TotalDurationMins: int(legKm(b)/avgSpeedKmh*60) + int(minsPerStopover),
		TotalValuePence:   b.TotalPence - p.discount,
		OptimizationScore: SingleRouteScore,
		StartAt:           &startAt,
		TimeBand:          TimeBand(b.ScheduledAt),
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		if err := txRepo.CreateRoute(ctx, route); err != nil {
			return err
		}
		if err := txRepo.LinkBooking(ctx, BookingLink{
			BookingID:        b.ID,
			RouteID:          route.ID,
			DeliverySequence: 1,
			OrderType:        enums.OrderTypeSingle,
			DiscountPence:    p.discount,
		}); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRouteCreated,
			AggregateType: enums.AggregateRoute,
			AggregateID:   route.ID,
			Data: map[string]any{
				"route_id":           route.ID,
				"order_type":         enums.OrderTypeSingle,
				"booking_ids":        []uuid.UUID{b.ID},
				"total_distance_km":  route.TotalDistanceKm,
				"total_value_pence":  route.TotalValuePence,
				"optimization_score": route.OptimizationScore,
			},
			Version: 1,
		})
	})
	if err != nil {
		return nil, err
	}
	return route, nil
}

// priceAndRefund re-quotes one booking in route context and refunds the
// customer the difference. A recomputed price above what the customer
// paid is treated as a mismatch and holds the booking out of the route.
func (s *Service) priceAndRefund(ctx context.Context, b models.Booking, candidate Candidate) (int, error) {
	if s.pricer == nil {
		return 0, nil
	}

	quote, err := s.pricer.RequoteForRoute(ctx, pricing.QuoteRequest{
		BookingID:  b.ID,
		RouteDrops: len(candidate.Bookings),
		SharedKm:   candidate.TotalKm,
		TotalPence: b.TotalPence,
	})
	if err != nil {
		return 0, fmt.Errorf("requote: %w", err)
	}
	if quote.TotalPence > b.TotalPence {
		return 0, fmt.Errorf("recomputed price %dp above paid %dp, holding booking for reconciliation", quote.TotalPence, b.TotalPence)
	}

	refund := b.TotalPence - quote.TotalPence
	if refund == 0 {
		return 0, nil
	}
	if s.refunds == nil {
		return 0, fmt.Errorf("refund of %dp due but no payment collaborator configured", refund)
	}
	if b.PaymentIntentID == nil || *b.PaymentIntentID == "" {
		return 0, fmt.Errorf("refund of %dp due but booking has no payment intent", refund)
	}
	if _, err := s.refunds.RefundConsolidation(ctx, *b.PaymentIntentID, refund); err != nil {
		return 0, fmt.Errorf("refund: %w", err)
	}
	return refund, nil
}

// refineTotals asks the Routes API for driven distance over the stop
// sequence, falling back to the haversine estimate per leg.
func (s *Service) refineTotals(ctx context.Context, candidate Candidate) (float64, int) {
	if s.distance == nil {
		return candidate.TotalKm, candidate.TotalDurationMins
	}

	totalKm := 0.0
	totalMins := 0
	for i, b := range candidate.Bookings {
		pickup, dropoff := b.Pickup(), b.Dropoff()
		if i > 0 {
			prev := candidate.Bookings[i-1].Dropoff()
			leg, err := s.distance.ComputeLeg(ctx,
				maps.LatLng{Latitude: prev.Latitude, Longitude: prev.Longitude},
				maps.LatLng{Latitude: pickup.Latitude, Longitude: pickup.Longitude})
			if err != nil {
				if s.logg != nil {
					s.logg.Warn(ctx, "routes api leg failed, using estimate")
				}
				return candidate.TotalKm, candidate.TotalDurationMins
			}
			totalKm += leg.DistanceKm
			totalMins += leg.DurationMins
		}
		leg, err := s.distance.ComputeLeg(ctx,
			maps.LatLng{Latitude: pickup.Latitude, Longitude: pickup.Longitude},
			maps.LatLng{Latitude: dropoff.Latitude, Longitude: dropoff.Longitude})
		if err != nil {
			if s.logg != nil {
				s.logg.Warn(ctx, "routes api leg failed, using estimate")
			}
			return candidate.TotalKm, candidate.TotalDurationMins
		}
		totalKm += leg.DistanceKm
		totalMins += leg.DurationMins
	}
	totalMins += len(candidate.Bookings) * int(minsPerStopover)
	return totalKm, totalMins
}

func (s *Service) dispatchIfAutoAssign(ctx context.Context, cfg *models.RoutingConfig, routeID uuid.UUID) {
	if !cfg.AutoAssignDrivers || s.inviter == nil {
		return
	}
	if _, err := s.inviter.Invite(ctx, routeID); err != nil && s.logg != nil {
		logCtx := s.logg.WithRouteID(ctx, routeID.String())
		s.logg.Error(logCtx, "auto-assign invite failed", err)
	}
}

func (s *Service) recordRunOutcome(ctx context.Context, trigger string, result RunResult) error {
	severity := enums.AuditSeverityInfo
	if !result.Success {
		severity = enums.AuditSeverityError
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.auditor.Record(ctx, tx, audit.Entry{
			EventType:  enums.AuditAutoRoutingCompleted,
			Severity:   severity,
			Actor:      trigger,
			EntityType: "routing_run",
			Details:    result,
		}); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventAutoRoutingCompleted,
			AggregateType: enums.AggregateConfig,
			AggregateID:   models.RoutingConfigAggregateID,
			Data: map[string]any{
				"trigger":            trigger,
				"bookings_processed": result.BookingsProcessed,
				"routes_created":     result.RoutesCreated,
				"errors":             result.Errors,
			},
			Version: 1,
		})
	})
}
