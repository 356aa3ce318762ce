package routingconfig

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/speedy-van/dispatch/internal/audit"
	"github.com/speedy-van/dispatch/pkg/db/models"
	"github.com/speedy-van/dispatch/pkg/enums"
	pkgerrors "github.com/speedy-van/dispatch/pkg/errors"
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

// Service owns all reads and writes of the routing configuration.
type Service interface {
	Get(ctx context.Context) (*models.RoutingConfig, error)
	SetMode(ctx context.Context, mode enums.RoutingMode, actor string) (*models.RoutingConfig, error)
	Update(ctx context.Context, input UpdateInput, actor string) (*models.RoutingConfig, error)
}

// UpdateInput carries a partial config update. Nil fields are untouched.
// Mode is excluded on purpose; flips go through SetMode so the
// enabled-flag side effect cannot be skipped.
type UpdateInput struct {
	IntervalMinutes      *int
	MaxDropsPerRoute     *int
	MaxRouteDistanceKm   *float64
	AutoAssignDrivers    *bool
	RequireApproval      *bool
	MinDropsForAutoRoute *int
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	auditor auditRecorder
}

// NewService builds the routing mode controller.
func NewService(repo Repository, tx txRunner, ob outboxPublisher, auditor auditRecorder) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("routing config repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ob == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if auditor == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	return &service{repo: repo, tx: tx, outbox: ob, auditor: auditor}, nil
}

func (s *service) Get(ctx context.Context) (*models.RoutingConfig, error) {
	return s.repo.Get(ctx)
}

// SetMode flips the routing mode and the auto-routing-enabled flag as a
// single transition. Auto implies enabled, manual implies disabled.
func (s *service) SetMode(ctx context.Context, mode enums.RoutingMode, actor string) (*models.RoutingConfig, error) {
	if !mode.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid routing mode %q", mode))
	}
	if actor == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor required")
	}

	var updated *models.RoutingConfig
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		cfg, err := txRepo.Get(ctx)
		if err != nil {
			return err
		}

		oldMode := cfg.Mode
		oldEnabled := cfg.AutoRoutingEnabled

		cfg.Mode = mode
		cfg.AutoRoutingEnabled = mode == enums.RoutingModeAuto
		cfg.UpdatedBy = &actor
		if err := txRepo.Save(ctx, cfg); err != nil {
			return err
		}

		if err := s.auditor.Record(ctx, tx, audit.Entry{
			EventType:  enums.AuditRoutingModeChanged,
			Severity:   enums.AuditSeverityInfo,
			Actor:      actor,
			EntityType: "routing_config",
			EntityID:   fmt.Sprint(models.RoutingConfigID),
			Details: map[string]any{
				"old_mode":    oldMode,
				"new_mode":    cfg.Mode,
				"old_enabled": oldEnabled,
				"new_enabled": cfg.AutoRoutingEnabled,
			},
		}); err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRoutingModeChanged,
			AggregateType: enums.AggregateConfig,
			AggregateID:   models.RoutingConfigAggregateID,
			Actor:         &outbox.ActorRef{ID: actor, Role: "admin"},
			Data: map[string]any{
				"mode":                 cfg.Mode,
				"auto_routing_enabled": cfg.AutoRoutingEnabled,
				"changed_by":           actor,
			},
			Version: 1,
		}); err != nil {
			return err
		}

		updated = cfg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Update applies a partial config change with its audit entry in one
// transaction.
func (s *service) Update(ctx context.Context, input UpdateInput, actor string) (*models.RoutingConfig, error) {
	if actor == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor required")
	}
	if err := input.validate(); err != nil {
		return nil, err
	}

	var updated *models.RoutingConfig
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		cfg, err := txRepo.Get(ctx)
		if err != nil {
			return err
		}

		changes := map[string]any{}
		if input.IntervalMinutes != nil && *input.IntervalMinutes != cfg.IntervalMinutes {
			changes["interval_minutes"] = []int{cfg.IntervalMinutes, *input.IntervalMinutes}
			cfg.IntervalMinutes = *input.IntervalMinutes
		}
		if input.MaxDropsPerRoute != nil && *input.MaxDropsPerRoute != cfg.MaxDropsPerRoute {
			changes["max_drops_per_route"] = []int{cfg.MaxDropsPerRoute, *input.MaxDropsPerRoute}
			cfg.MaxDropsPerRoute = *input.MaxDropsPerRoute
		}
		if input.MaxRouteDistanceKm != nil && *input.MaxRouteDistanceKm != cfg.MaxRouteDistanceKm {
			changes["max_route_distance_km"] = []float64{cfg.MaxRouteDistanceKm, *input.MaxRouteDistanceKm}
			cfg.MaxRouteDistanceKm = *input.MaxRouteDistanceKm
		}
		if input.AutoAssignDrivers != nil && *input.AutoAssignDrivers != cfg.AutoAssignDrivers {
			changes["auto_assign_drivers"] = []bool{cfg.AutoAssignDrivers, *input.AutoAssignDrivers}
			cfg.AutoAssignDrivers = *input.AutoAssignDrivers
		}
		if input.RequireApproval != nil && *input.RequireApproval != cfg.RequireApproval {
			changes["require_approval"] = []bool{cfg.RequireApproval, *input.RequireApproval}
			cfg.RequireApproval = *input.RequireApproval
		}
		if input.MinDropsForAutoRoute != nil && *input.MinDropsForAutoRoute != cfg.MinDropsForAutoRoute {
			changes["min_drops_for_auto_route"] = []int{cfg.MinDropsForAutoRoute, *input.MinDropsForAutoRoute}
			cfg.MinDropsForAutoRoute = *input.MinDropsForAutoRoute
		}

		if len(changes) == 0 {
			updated = cfg
			return nil
		}

		cfg.UpdatedBy = &actor
		if err := txRepo.Save(ctx, cfg); err != nil {
			return err
		}

		if err := s.auditor.Record(ctx, tx, audit.Entry{
			EventType:  enums.AuditRoutingConfigUpdated,
			Severity:   enums.AuditSeverityInfo,
			Actor:      actor,
			EntityType: "routing_config",
			EntityID:   fmt.Sprint(models.RoutingConfigID),
			Details:    changes,
		}); err != nil {
			return err
		}

		updated = cfg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (in UpdateInput) validate() error {
	if in.IntervalMinutes != nil && *in.IntervalMinutes <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "interval minutes must be positive")
	}
	if in.MaxDropsPerRoute != nil && *in.MaxDropsPerRoute <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "max drops per route must be positive")
	}
	if in.MaxRouteDistanceKm != nil && *in.MaxRouteDistanceKm <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "max route distance must be positive")
	}
	if in.MinDropsForAutoRoute != nil && *in.MinDropsForAutoRoute < 2 {
		return pkgerrors.New(pkgerrors.CodeValidation, "min drops for auto route must be at least 2")
	}
	return nil
}
