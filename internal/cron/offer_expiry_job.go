package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/speedy-van/dispatch/pkg/logger"
)

const (
	offerExpiryInterval   = time.Minute
	offerExpirySweepLimit = 100
)

type offerSweeper interface {
	ExpireDue(ctx context.Context, now time.Time, limit int) (int, error)
}

// OfferExpiryJobParams configure the offer expiry sweep.
type OfferExpiryJobParams struct {
	Logger  *logger.Logger
	Sweeper offerSweeper
	Limit   int
}

// NewOfferExpiryJob builds the job that expires overdue driver offers
// and cascades each route to the next candidate.
func NewOfferExpiryJob(params OfferExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("offer sweeper required")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = offerExpirySweepLimit
	}
	return &offerExpiryJob{
		logg:    params.Logger,
		sweeper: params.Sweeper,
		limit:   limit,
		now:     time.Now,
	}, nil
}

type offerExpiryJob struct {
	logg    *logger.Logger
	sweeper offerSweeper
	limit   int
	now     func() time.Time
}

func (j *offerExpiryJob) Name() string { return "offer-expiry" }

func (j *offerExpiryJob) Interval() time.Duration { return offerExpiryInterval }

func (j *offerExpiryJob) Run(ctx context.Context) error {
	expired, err := j.sweeper.ExpireDue(ctx, j.now().UTC(), j.limit)
	if err != nil {
		return fmt.Errorf("expire due offers: %w", err)
	}
	if expired > 0 {
		logCtx := j.logg.WithFields(ctx, map[string]any{"count": expired})
		j.logg.Info(logCtx, "expired overdue offers")
	}
	return nil
}
