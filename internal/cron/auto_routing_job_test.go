package cron

import (
	"context"
	"testing"
	"time"

	"github.com/speedy-van/dispatch/internal/consolidation"
	"github.com/speedy-van/dispatch/pkg/db/models"
	"github.com/speedy-van/dispatch/pkg/logger"
)

type stubRunner struct {
	result   consolidation.RunResult
	triggers []string
}

func (s *stubRunner) Run(_ context.Context, trigger string) consolidation.RunResult {
	s.triggers = append(s.triggers, trigger)
	return s.result
}

type stubConfigReader struct {
	cfg models.RoutingConfig
	err error
}

func (s *stubConfigReader) Get(context.Context) (*models.RoutingConfig, error) {
	if s.err != nil {
		return nil, s.err
	}
	copied := s.cfg
	return &copied, nil
}

func autoRoutingTestJob(t *testing.T, runner *stubRunner, config *stubConfigReader) Job {
	t.Helper()
	job, err := NewAutoRoutingJob(AutoRoutingJobParams{
		Logger: logger.New(logger.Options{ServiceName: "cron-test"}),
		Runner: runner,
		Config: config,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	return job
}

func TestAutoRoutingJobRunsAsScheduler(t *testing.T) {
	runner := &stubRunner{result: consolidation.RunResult{Success: true, RoutesCreated: 2}}
	job := autoRoutingTestJob(t, runner, &stubConfigReader{cfg: models.DefaultRoutingConfig()})

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(runner.triggers) != 1 || runner.triggers[0] != "scheduler" {
		t.Errorf("triggers = %v", runner.triggers)
	}
}

func TestAutoRoutingJobTreatsDisabledAsSkip(t *testing.T) {
	runner := &stubRunner{result: consolidation.RunResult{Errors: []string{consolidation.ErrDisabled}}}
	job := autoRoutingTestJob(t, runner, &stubConfigReader{cfg: models.DefaultRoutingConfig()})

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("disabled routing is not a job failure: %v", err)
	}
}

func TestAutoRoutingJobTreatsConcurrentRunAsSkip(t *testing.T) {
	runner := &stubRunner{result: consolidation.RunResult{Errors: []string{consolidation.ErrAlreadyRunning}}}
	job := autoRoutingTestJob(t, runner, &stubConfigReader{cfg: models.DefaultRoutingConfig()})

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("concurrent run is not a job failure: %v", err)
	}
}

func TestAutoRoutingJobSurfacesRunErrors(t *testing.T) {
	runner := &stubRunner{result: consolidation.RunResult{Errors: []string{"create route: db down"}}}
	job := autoRoutingTestJob(t, runner, &stubConfigReader{cfg: models.DefaultRoutingConfig()})

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected run errors to surface")
	}
}

func TestAutoRoutingJobIntervalFollowsConfig(t *testing.T) {
	cfg := models.DefaultRoutingConfig()
	cfg.IntervalMinutes = 30
	job := autoRoutingTestJob(t, &stubRunner{}, &stubConfigReader{cfg: cfg})

	if got := job.Interval(); got != 30*time.Minute {
		t.Errorf("interval = %v, want 30m", got)
	}
}

func TestAutoRoutingJobIntervalDefaultsOnConfigError(t *testing.T) {
	job := autoRoutingTestJob(t, &stubRunner{}, &stubConfigReader{err: context.DeadlineExceeded})

	if got := job.Interval(); got != defaultAutoRoutingInterval {
		t.Errorf("interval = %v, want %v", got, defaultAutoRoutingInterval)
	}
}
