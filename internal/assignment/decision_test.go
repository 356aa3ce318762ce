package assignment

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/speedy-van/dispatch/pkg/db/models"
	"github.com/speedy-van/dispatch/pkg/enums"
)

func TestDecideReassignmentPenalizesAndCascades(t *testing.T) {
	failedDriver := uuid.New()
	nextDriver := uuid.New()
	routeID := uuid.New()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	decision := DecideReassignment(ReassignmentInput{
		Failed: models.Assignment{
			ID:       uuid.New(),
			RouteID:  routeID,
			DriverID: failedDriver,
			Round:    1,
		},
		Outcome:     enums.AssignmentStatusExpired,
		Performance: models.DriverPerformance{DriverID: failedDriver, AcceptanceRate: 100},
		Candidates:  []models.Driver{{ID: nextDriver}},
		Now:         now,
	})

	if decision.Performance.AcceptanceRate != 95 {
		t.Fatalf("acceptance rate = %v, want 95", decision.Performance.AcceptanceRate)
	}
	if !decision.Performance.LastCalculated.Equal(now) {
		t.Error("expected LastCalculated stamped")
	}
	if decision.AdminAlert {
		t.Fatal("unexpected admin alert with a candidate available")
	}
	if decision.NextOffer == nil {
		t.Fatal("expected next offer")
	}
	if decision.NextOffer.DriverID != nextDriver {
		t.Errorf("next driver = %s, want %s", decision.NextOffer.DriverID, nextDriver)
	}
	if decision.NextOffer.Round != 2 {
		t.Errorf("round = %d, want 2", decision.NextOffer.Round)
	}
	if got := decision.NextOffer.ExpiresAt; !got.Equal(now.Add(OfferTTL)) {
		t.Errorf("expires at = %v, want %v", got, now.Add(OfferTTL))
	}
	if decision.NextOffer.RouteID != routeID {
		t.Errorf("route id = %s, want %s", decision.NextOffer.RouteID, routeID)
	}
}

func TestDecideReassignmentPenaltyFloorsAtZero(t *testing.T) {
	driverID := uuid.New()

	decision := DecideReassignment(ReassignmentInput{
		Failed:      models.Assignment{DriverID: driverID, Round: 3},
		Outcome:     enums.AssignmentStatusDeclined,
		Performance: models.DriverPerformance{DriverID: driverID, AcceptanceRate: 3},
		Now:         time.Now(),
	})

	if decision.Performance.AcceptanceRate != 0 {
		t.Fatalf("acceptance rate = %v, want 0", decision.Performance.AcceptanceRate)
	}
}

func TestDecideReassignmentSkipsFailedDriver(t *testing.T) {
	failedDriver := uuid.New()

	decision := DecideReassignment(ReassignmentInput{
		Failed:      models.Assignment{DriverID: failedDriver, Round: 1},
		Outcome:     enums.AssignmentStatusExpired,
		Performance: models.DriverPerformance{DriverID: failedDriver, AcceptanceRate: 50},
		Candidates:  []models.Driver{{ID: failedDriver}},
		Now:         time.Now(),
	})

	if decision.NextOffer != nil {
		t.Fatal("failed driver must not be re-picked")
	}
	if !decision.AdminAlert {
		t.Fatal("expected admin alert when only the failed driver remains")
	}
}

func TestDecideReassignmentNoCandidatesFlagsAdmin(t *testing.T) {
	decision := DecideReassignment(ReassignmentInput{
		Failed:      models.Assignment{DriverID: uuid.New(), Round: 2},
		Outcome:     enums.AssignmentStatusExpired,
		Performance: models.DriverPerformance{AcceptanceRate: 80},
		Now:         time.Now(),
	})

	if decision.NextOffer != nil {
		t.Fatal("expected no next offer")
	}
	if !decision.AdminAlert {
		t.Fatal("expected admin alert")
	}
}
