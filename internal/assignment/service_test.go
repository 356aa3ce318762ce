package assignment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/speedy-van/dispatch/internal/audit"
	"github.com/speedy-van/dispatch/pkg/db/models"
	"github.com/speedy-van/dispatch/pkg/enums"
	pkgerrors "github.com/speedy-van/dispatch/pkg/errors"
	"github.com/speedy-van/dispatch/pkg/outbox"
)

type stubAssignmentRepo struct {
	assignments  map[uuid.UUID]*models.Assignment
	routes       map[uuid.UUID]*models.Route
	performances map[uuid.UUID]*models.DriverPerformance
	candidates   []models.Driver
	bookingIDs   []uuid.UUID

	routeDriverSets []string
	created         []*models.Assignment
}

func newStubAssignmentRepo() *stubAssignmentRepo {
	return &stubAssignmentRepo{
		assignments:  map[uuid.UUID]*models.Assignment{},
		routes:       map[uuid.UUID]*models.Route{},
		performances: map[uuid.UUID]*models.DriverPerformance{},
	}
}

func (s *stubAssignmentRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubAssignmentRepo) FindAssignment(ctx context.Context, id uuid.UUID) (*models.Assignment, error) {
	a, ok := s.assignments[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *a
	return &copied, nil
}

func (s *stubAssignmentRepo) FindActiveByRoute(ctx context.Context, routeID uuid.UUID) (*models.Assignment, error) {
	for _, a := range s.assignments {
		if a.RouteID == routeID && a.Status.Active() {
			copied := *a
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *stubAssignmentRepo) CreateAssignment(ctx context.Context, a *models.Assignment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	s.assignments[a.ID] = a
	s.created = append(s.created, a)
	return nil
}

func (s *stubAssignmentRepo) TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.AssignmentStatus, updates map[string]any) (bool, error) {
	a, ok := s.assignments[id]
	if !ok || a.Status != from {
		return false, nil
	}
	a.Status = to
	return true, nil
}

func (s *stubAssignmentRepo) ListExpiredInvites(ctx context.Context, now time.Time, limit int) ([]models.Assignment, error) {
	var out []models.Assignment
	for _, a := range s.assignments {
		if a.Status == enums.AssignmentStatusInvited && !a.ExpiresAt.After(now) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *stubAssignmentRepo) FindRoute(ctx context.Context, id uuid.UUID) (*models.Route, error) {
	r, ok := s.routes[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return r, nil
}

func (s *stubAssignmentRepo) SetRouteDriver(ctx context.Context, routeID uuid.UUID, driverID string, status enums.RouteStatus) error {
	if r, ok := s.routes[routeID]; ok {
		r.DriverID = driverID
		r.Status = status
	}
	s.routeDriverSets = append(s.routeDriverSets, driverID+"/"+string(status))
	return nil
}

func (s *stubAssignmentRepo) ListRouteBookingIDs(ctx context.Context, routeID uuid.UUID) ([]uuid.UUID, error) {
	return s.bookingIDs, nil
}

func (s *stubAssignmentRepo) MarkRouteBookingsCompleted(ctx context.Context, routeID uuid.UUID) error {
	return nil
}

func (s *stubAssignmentRepo) FindCandidateDrivers(ctx context.Context, exclude []uuid.UUID, limit int) ([]models.Driver, error) {
	var out []models.Driver
	for _, d := range s.candidates {
		skip := false
		for _, ex := range exclude {
			if d.ID == ex {
				skip = true
			}
		}
		if !skip {
			out = append(out, d)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *stubAssignmentRepo) GetPerformance(ctx context.Context, driverID uuid.UUID) (*models.DriverPerformance, error) {
	if p, ok := s.performances[driverID]; ok {
		return p, nil
	}
	p := &models.DriverPerformance{DriverID: driverID, AcceptanceRate: 100}
	s.performances[driverID] = p
	return p, nil
}

func (s *stubAssignmentRepo) SavePerformance(ctx context.Context, perf *models.DriverPerformance) error {
	s.performances[perf.DriverID] = perf
	return nil
}

type recordingOutbox struct {
	events []outbox.DomainEvent
}

func (r *recordingOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	r.events = append(r.events, event)
	return nil
}

func (r *recordingOutbox) typesEmitted() []enums.OutboxEventType {
	var out []enums.OutboxEventType
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

type recordingAuditor struct {
	entries []audit.Entry
}

func (r *recordingAuditor) Record(ctx context.Context, tx *gorm.DB, entry audit.Entry) error {
	r.entries = append(r.entries, entry)
	return nil
}

type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

func newAssignmentService(t *testing.T, repo *stubAssignmentRepo) (Service, *recordingOutbox, *recordingAuditor) {
	t.Helper()
	ob := &recordingOutbox{}
	auditor := &recordingAuditor{}
	svc, err := NewService(Params{
		Repo:    repo,
		Tx:      passthroughTx{},
		Outbox:  ob,
		Auditor: auditor,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, ob, auditor
}

func TestInviteOffersBestCandidate(t *testing.T) {
	repo := newStubAssignmentRepo()
	routeID := uuid.New()
	best := uuid.New()
	repo.routes[routeID] = &models.Route{ID: routeID, DriverID: models.DriverUnassigned, TotalValuePence: 9000}
	repo.candidates = []models.Driver{{ID: best}, {ID: uuid.New()}}
	svc, ob, _ := newAssignmentService(t, repo)

	offer, err := svc.Invite(context.Background(), routeID)
	if err != nil {
		t.Fatalf("Invite: %v", err)
	}
	if offer.DriverID != best {
		t.Errorf("driver = %s, want %s", offer.DriverID, best)
	}
	if offer.Round != 1 {
		t.Errorf("round = %d, want 1", offer.Round)
	}
	if repo.performances[best].TotalOffers != 1 {
		t.Errorf("total offers = %d, want 1", repo.performances[best].TotalOffers)
	}
	if got := ob.typesEmitted(); len(got) != 1 || got[0] != enums.EventOfferCreated {
		t.Errorf("events = %v", got)
	}
}

func TestInviteRejectsRouteWithActiveOffer(t *testing.T) {
	repo := newStubAssignmentRepo()
	routeID := uuid.New()
	repo.routes[routeID] = &models.Route{ID: routeID}
	repo.candidates = []models.Driver{{ID: uuid.New()}}
	existing := &models.Assignment{ID: uuid.New(), RouteID: routeID, Status: enums.AssignmentStatusInvited}
	repo.assignments[existing.ID] = existing
	svc, _, _ := newAssignmentService(t, repo)

	_, err := svc.Invite(context.Background(), routeID)
	appErr := pkgerrors.As(err)
	if appErr == nil || appErr.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestInviteNoDriversFlagsAdmin(t *testing.T) {
	repo := newStubAssignmentRepo()
	routeID := uuid.New()
	repo.routes[routeID] = &models.Route{ID: routeID}
	svc, ob, auditor := newAssignmentService(t, repo)

	_, err := svc.Invite(context.Background(), routeID)
	if err == nil {
		t.Fatal("expected error")
	}
	if got := ob.typesEmitted(); len(got) != 1 || got[0] != enums.EventAdminActionRequired {
		t.Errorf("events = %v", got)
	}
	if len(auditor.entries) != 1 || auditor.entries[0].EventType != enums.AuditRoutingError {
		t.Errorf("audit entries = %+v", auditor.entries)
	}
}

func TestAcceptClaimsOfferAndAssignsRoute(t *testing.T) {
	repo := newStubAssignmentRepo()
	routeID := uuid.New()
	driverID := uuid.New()
	repo.routes[routeID] = &models.Route{ID: routeID, DriverID: models.DriverUnassigned}
	offer := &models.Assignment{
		ID: uuid.New(), RouteID: routeID, DriverID: driverID,
		Status: enums.AssignmentStatusInvited, Round: 1,
		ExpiresAt: time.Now().Add(10 * time.Minute),
	}
	repo.assignments[offer.ID] = offer
	svc, ob, _ := newAssignmentService(t, repo)

	claimed, err := svc.Accept(context.Background(), offer.ID, driverID)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if claimed.Status != enums.AssignmentStatusClaimed {
		t.Errorf("status = %s", claimed.Status)
	}
	if repo.routes[routeID].Status != enums.RouteStatusAssigned {
		t.Errorf("route status = %s", repo.routes[routeID].Status)
	}
	if repo.routes[routeID].DriverID != driverID.String() {
		t.Errorf("route driver = %s", repo.routes[routeID].DriverID)
	}
	if repo.performances[driverID].TotalAccepted != 1 {
		t.Errorf("total accepted = %d", repo.performances[driverID].TotalAccepted)
	}
	if got := ob.typesEmitted(); len(got) != 1 || got[0] != enums.EventOfferClaimed {
		t.Errorf("events = %v", got)
	}
}

func TestAcceptRejectsWrongDriver(t *testing.T) {
	repo := newStubAssignmentRepo()
	offer := &models.Assignment{
		ID: uuid.New(), RouteID: uuid.New(), DriverID: uuid.New(),
		Status: enums.AssignmentStatusInvited, ExpiresAt: time.Now().Add(time.Hour),
	}
	repo.assignments[offer.ID] = offer
	svc, _, _ := newAssignmentService(t, repo)

	_, err := svc.Accept(context.Background(), offer.ID, uuid.New())
	appErr := pkgerrors.As(err)
	if appErr == nil || appErr.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAcceptRejectsExpiredOffer(t *testing.T) {
	repo := newStubAssignmentRepo()
	driverID := uuid.New()
	offer := &models.Assignment{
		ID: uuid.New(), RouteID: uuid.New(), DriverID: driverID,
		Status: enums.AssignmentStatusInvited, ExpiresAt: time.Now().Add(-time.Minute),
	}
	repo.assignments[offer.ID] = offer
	svc, _, _ := newAssignmentService(t, repo)

	_, err := svc.Accept(context.Background(), offer.ID, driverID)
	appErr := pkgerrors.As(err)
	if appErr == nil || appErr.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestDeclineCascadesToNextDriver(t *testing.T) {
	repo := newStubAssignmentRepo()
	routeID := uuid.New()
	declining := uuid.New()
	next := uuid.New()
	bookingID := uuid.New()
	repo.routes[routeID] = &models.Route{ID: routeID, DriverID: declining.String(), Status: enums.RouteStatusPlanned}
	repo.candidates = []models.Driver{{ID: next}}
	repo.bookingIDs = []uuid.UUID{bookingID}
	repo.performances[declining] = &models.DriverPerformance{DriverID: declining, AcceptanceRate: 100}
	offer := &models.Assignment{
		ID: uuid.New(), RouteID: routeID, DriverID: declining,
		Status: enums.AssignmentStatusInvited, Round: 1,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	repo.assignments[offer.ID] = offer
	svc, ob, _ := newAssignmentService(t, repo)

	if err := svc.Decline(context.Background(), offer.ID, declining); err != nil {
		t.Fatalf("Decline: %v", err)
	}

	if repo.performances[declining].AcceptanceRate != 95 {
		t.Errorf("acceptance rate = %v, want 95", repo.performances[declining].AcceptanceRate)
	}
	if repo.routes[routeID].DriverID != models.DriverUnassigned {
		t.Errorf("route driver = %s, want unassigned", repo.routes[routeID].DriverID)
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected one new offer, got %d", len(repo.created))
	}
	if repo.created[0].DriverID != next || repo.created[0].Round != 2 {
		t.Errorf("next offer = %+v", repo.created[0])
	}

	want := []enums.OutboxEventType{
		enums.EventOfferRevoked,
		enums.EventPerformanceUpdated,
		enums.EventBookingAvailable,
		enums.EventOfferCreated,
	}
	got := ob.typesEmitted()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestExpireDueHandlesEachOfferOnce(t *testing.T) {
	repo := newStubAssignmentRepo()
	routeID := uuid.New()
	driverID := uuid.New()
	repo.routes[routeID] = &models.Route{ID: routeID}
	repo.performances[driverID] = &models.DriverPerformance{DriverID: driverID, AcceptanceRate: 50}
	offer := &models.Assignment{
		ID: uuid.New(), RouteID: routeID, DriverID: driverID,
		Status: enums.AssignmentStatusInvited, Round: 1,
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	repo.assignments[offer.ID] = offer
	svc, _, _ := newAssignmentService(t, repo)

	n, err := svc.ExpireDue(context.Background(), time.Now(), 100)
	if err != nil {
		t.Fatalf("ExpireDue: %v", err)
	}
	if n != 1 {
		t.Fatalf("expired = %d, want 1", n)
	}
	if repo.performances[driverID].AcceptanceRate != 45 {
		t.Errorf("acceptance rate = %v, want 45", repo.performances[driverID].AcceptanceRate)
	}

	// A second sweep is a no-op.
	n, err = svc.ExpireDue(context.Background(), time.Now(), 100)
	if err != nil {
		t.Fatalf("ExpireDue second run: %v", err)
	}
	if n != 0 {
		t.Fatalf("expired = %d on second sweep, want 0", n)
	}
	if repo.performances[driverID].AcceptanceRate != 45 {
		t.Errorf("penalty applied twice: rate = %v", repo.performances[driverID].AcceptanceRate)
	}
}

func TestExpireWithNoCandidatesFlagsAdmin(t *testing.T) {
	repo := newStubAssignmentRepo()
	routeID := uuid.New()
	driverID := uuid.New()
	repo.routes[routeID] = &models.Route{ID: routeID}
	offer := &models.Assignment{
		ID: uuid.New(), RouteID: routeID, DriverID: driverID,
		Status: enums.AssignmentStatusInvited, Round: 2,
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	repo.assignments[offer.ID] = offer
	svc, ob, auditor := newAssignmentService(t, repo)

	if _, err := svc.ExpireDue(context.Background(), time.Now(), 100); err != nil {
		t.Fatalf("ExpireDue: %v", err)
	}

	var sawAdminFlag bool
	for _, e := range ob.events {
		if e.EventType == enums.EventAdminActionRequired {
			sawAdminFlag = true
		}
	}
	if !sawAdminFlag {
		t.Error("expected admin_action_required event")
	}
	if len(auditor.entries) != 1 || auditor.entries[0].Severity != enums.AuditSeverityWarning {
		t.Errorf("audit entries = %+v", auditor.entries)
	}
}

func TestCompleteFinishesRoute(t *testing.T) {
	repo := newStubAssignmentRepo()
	routeID := uuid.New()
	driverID := uuid.New()
	repo.routes[routeID] = &models.Route{ID: routeID, DriverID: driverID.String(), Status: enums.RouteStatusAssigned}
	offer := &models.Assignment{
		ID: uuid.New(), RouteID: routeID, DriverID: driverID,
		Status: enums.AssignmentStatusClaimed, Round: 1,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	repo.assignments[offer.ID] = offer
	svc, ob, _ := newAssignmentService(t, repo)

	done, err := svc.Complete(context.Background(), offer.ID, driverID)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if done.Status != enums.AssignmentStatusCompleted {
		t.Errorf("status = %s", done.Status)
	}
	if repo.routes[routeID].Status != enums.RouteStatusCompleted {
		t.Errorf("route status = %s", repo.routes[routeID].Status)
	}
	if got := ob.typesEmitted(); len(got) != 1 || got[0] != enums.EventOfferCompleted {
		t.Errorf("events = %v", got)
	}
}

func TestCompleteRejectsUnclaimedOffer(t *testing.T) {
	repo := newStubAssignmentRepo()
	routeID := uuid.New()
	driverID := uuid.New()
	repo.routes[routeID] = &models.Route{ID: routeID}
	offer := &models.Assignment{
		ID: uuid.New(), RouteID: routeID, DriverID: driverID,
		Status: enums.AssignmentStatusInvited, Round: 1,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	repo.assignments[offer.ID] = offer
	svc, _, _ := newAssignmentService(t, repo)

	_, err := svc.Complete(context.Background(), offer.ID, driverID)
	appErr := pkgerrors.As(err)
	if appErr == nil || appErr.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}
