package cron

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/speedy-van/dispatch/internal/consolidation"
	"github.com/speedy-van/dispatch/pkg/db/models"
	"github.com/speedy-van/dispatch/pkg/logger"
)

const defaultAutoRoutingInterval = 15 * time.Minute

type consolidationRunner interface {
	Run(ctx context.Context, trigger string) consolidation.RunResult
}

type routingConfigReader interface {
	Get(ctx context.Context) (*models.RoutingConfig, error)
}

// AutoRoutingJobParams configure the scheduled consolidation pass.
type AutoRoutingJobParams struct {
	Logger *logger.Logger
	Runner consolidationRunner
	Config routingConfigReader
}

// NewAutoRoutingJob builds the job that triggers a consolidation pass
// on the cadence stored in the routing config.
func NewAutoRoutingJob(params AutoRoutingJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Runner == nil {
		return nil, fmt.Errorf("consolidation runner required")
	}
	if params.Config == nil {
		return nil, fmt.Errorf("routing config reader required")
	}
	return &autoRoutingJob{
		logg:   params.Logger,
		runner: params.Runner,
		config: params.Config,
	}, nil
}

type autoRoutingJob struct {
	logg   *logger.Logger
	runner consolidationRunner
	config routingConfigReader
}

func (j *autoRoutingJob) Name() string { return "auto-routing" }

// Interval follows interval_minutes from the routing config, so admin
// cadence changes apply from the next tick.
func (j *autoRoutingJob) Interval() time.Duration {
	cfg, err := j.config.Get(context.Background())
	if err != nil || cfg.IntervalMinutes <= 0 {
		return defaultAutoRoutingInterval
	}
	return time.Duration(cfg.IntervalMinutes) * time.Minute
}

func (j *autoRoutingJob) Run(ctx context.Context) error {
	result := j.runner.Run(ctx, "scheduler")

	if reason, skipped := skipReason(result); skipped {
		j.logg.Info(j.logg.WithField(ctx, "reason", reason), "consolidation pass skipped")
		return nil
	}
	if !result.Success {
		return fmt.Errorf("consolidation pass: %s", strings.Join(result.Errors, "; "))
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"bookings_processed": result.BookingsProcessed,
		"routes_created":     result.RoutesCreated,
	})
	j.logg.Info(logCtx, "consolidation pass complete")
	return nil
}

// skipReason distinguishes a pass that never started from one that ran
// and failed. Disabled routing and a concurrent run are expected states
// for a scheduled trigger, not failures.
func skipReason(result consolidation.RunResult) (string, bool) {
	if len(result.Errors) != 1 {
		return "", false
	}
	switch result.Errors[0] {
	case consolidation.ErrDisabled, consolidation.ErrAlreadyRunning:
		return result.Errors[0], true
	}
	return "", false
}
