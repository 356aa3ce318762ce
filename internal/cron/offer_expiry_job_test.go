package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/speedy-van/dispatch/pkg/logger"
)

type stubSweeper struct {
	expired int
	err     error
	gotNow  time.Time
	gotLim  int
}

func (s *stubSweeper) ExpireDue(_ context.Context, now time.Time, limit int) (int, error) {
	s.gotNow = now
	s.gotLim = limit
	return s.expired, s.err
}

func TestOfferExpiryJobSweeps(t *testing.T) {
	sweeper := &stubSweeper{expired: 3}
	job, err := NewOfferExpiryJob(OfferExpiryJobParams{
		Logger:  logger.New(logger.Options{ServiceName: "cron-test"}),
		Sweeper: sweeper,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if sweeper.gotLim != offerExpirySweepLimit {
		t.Errorf("limit = %d, want %d", sweeper.gotLim, offerExpirySweepLimit)
	}
	if sweeper.gotNow.IsZero() {
		t.Error("sweep must pass the current time")
	}
	if job.Interval() != time.Minute {
		t.Errorf("interval = %v, want 1m", job.Interval())
	}
}

func TestOfferExpiryJobPropagatesSweepError(t *testing.T) {
	job, err := NewOfferExpiryJob(OfferExpiryJobParams{
		Logger:  logger.New(logger.Options{ServiceName: "cron-test"}),
		Sweeper: &stubSweeper{err: errors.New("db down")},
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected sweep error to surface")
	}
}
