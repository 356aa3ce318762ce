package assignment

import (
	"time"

	"github.com/speedy-van/dispatch/pkg/db/models"
	"github.com/speedy-van/dispatch/pkg/enums"
)

const (
	// OfferTTL is the fixed window a driver has to respond to an offer.
	// The expiry timestamp is absolute, so a late sweep still expires
	// everything past it.
	OfferTTL = 30 * time.Minute

	// AcceptancePenalty is subtracted from a driver's acceptance rate
	// when they decline or let an offer lapse. Rate never goes below 0.
	AcceptancePenalty = 5.0
)

// ReassignmentInput is the state a failed offer leaves behind.
type ReassignmentInput struct {
	Failed      models.Assignment
	Outcome     enums.AssignmentStatus
	Performance models.DriverPerformance
	Candidates  []models.Driver
	Now         time.Time
}

// ReassignmentDecision is what should happen next. Pure data; the
// service applies it inside a transaction.
type ReassignmentDecision struct {
	Performance models.DriverPerformance
	NextOffer   *models.Assignment
	// AdminAlert is set when no candidate remains and the route must be
	// flagged instead of retried.
	AdminAlert bool
}

// DecideReassignment computes the penalty and the next offer after an
// offer expires or is declined. The failed driver is never re-picked in
// the same round even if present in the candidate list.
func DecideReassignment(in ReassignmentInput) ReassignmentDecision {
	perf := in.Performance
	perf.AcceptanceRate -= AcceptancePenalty
	if perf.AcceptanceRate < 0 {
		perf.AcceptanceRate = 0
	}
	perf.LastCalculated = in.Now

	decision := ReassignmentDecision{Performance: perf}

	for _, candidate := range in.Candidates {
		if candidate.ID == in.Failed.DriverID {
			continue
		}
		decision.NextOffer = &models.Assignment{
			RouteID:   in.Failed.RouteID,
			DriverID:  candidate.ID,
			Status:    enums.AssignmentStatusInvited,
			Round:     in.Failed.Round + 1,
			ExpiresAt: in.Now.Add(OfferTTL),
		}
		return decision
	}

	decision.AdminAlert = true
	return decision
}
