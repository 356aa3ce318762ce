package manualroutes

import (
	"context"
	"strings"
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

type stubRoutesRepo struct {
	bookings  map[uuid.UUID]*models.Booking
	approvals map[uuid.UUID]*models.RouteApproval
	routes    []*models.Route

	linked        []uuid.UUID
	released      []uuid.UUID
	routeStatuses map[uuid.UUID]enums.RouteStatus
}

func newStubRoutesRepo() *stubRoutesRepo {
	return &stubRoutesRepo{
		bookings:      map[uuid.UUID]*models.Booking{},
		approvals:     map[uuid.UUID]*models.RouteApproval{},
		routeStatuses: map[uuid.UUID]enums.RouteStatus{},
	}
}

func (s *stubRoutesRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubRoutesRepo) FindBookingsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Booking, error) {
	var out []models.Booking
	for _, id := range ids {
		if b, ok := s.bookings[id]; ok {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (s *stubRoutesRepo) CreateRoute(ctx context.Context, route *models.Route) error {
	s.routes = append(s.routes, route)
	return nil
}

func (s *stubRoutesRepo) LinkBooking(ctx context.Context, bookingID, routeID uuid.UUID, sequence int, orderType enums.OrderType) (bool, error) {
	b, ok := s.bookings[bookingID]
	if !ok || b.RouteID != nil || b.Status != enums.BookingStatusConfirmed {
		return false, nil
	}
	b.RouteID = &routeID
	seq := sequence
	b.DeliverySequence = &seq
	b.OrderType = orderType
	s.linked = append(s.linked, bookingID)
	return true, nil
}

func (s *stubRoutesRepo) ReleaseRouteBookings(ctx context.Context, routeID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, b := range s.bookings {
		if b.RouteID != nil && *b.RouteID == routeID {
			b.RouteID = nil
			b.DeliverySequence = nil
			b.OrderType = enums.OrderTypeSingle
			ids = append(ids, b.ID)
			s.released = append(s.released, b.ID)
		}
	}
	return ids, nil
}

func (s *stubRoutesRepo) SetRouteStatus(ctx context.Context, routeID uuid.UUID, status enums.RouteStatus) error {
	s.routeStatuses[routeID] = status
	return nil
}

func (s *stubRoutesRepo) CreateApproval(ctx context.Context, approval *models.RouteApproval) error {
	s.approvals[approval.ID] = approval
	return nil
}

func (s *stubRoutesRepo) FindApproval(ctx context.Context, id uuid.UUID) (*models.RouteApproval, error) {
	a, ok := s.approvals[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *a
	return &copied, nil
}

func (s *stubRoutesRepo) DecideApproval(ctx context.Context, id uuid.UUID, to enums.ApprovalStatus, updates map[string]any) (bool, error) {
	a, ok := s.approvals[id]
	if !ok || a.Status != enums.ApprovalStatusPending {
		return false, nil
	}
	a.Status = to
	return true, nil
}

type stubRoutesConfig struct {
	cfg models.RoutingConfig
}

func (s *stubRoutesConfig) Get(ctx context.Context) (*models.RoutingConfig, error) {
	copied := s.cfg
	return &copied, nil
}

type stubInviter struct {
	invited []uuid.UUID
}

func (s *stubInviter) Invite(ctx context.Context, routeID uuid.UUID) (*models.Assignment, error) {
	s.invited = append(s.invited, routeID)
	return &models.Assignment{ID: uuid.New(), RouteID: routeID}, nil
}

type captureOutbox struct {
	events []outbox.DomainEvent
}

func (c *captureOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	c.events = append(c.events, event)
	return nil
}

type captureAuditor struct {
	entries []audit.Entry
}

func (c *captureAuditor) Record(ctx context.Context, tx *gorm.DB, entry audit.Entry) error {
	c.entries = append(c.entries, entry)
	return nil
}

type noopTx struct{}

func (noopTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

func confirmedBooking(ref string) *models.Booking {
	return &models.Booking{
		ID:          uuid.New(),
		Reference:   ref,
		Status:      enums.BookingStatusConfirmed,
		ScheduledAt: time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC),
		TotalPence:  9000,
		OrderType:   enums.OrderTypeSingle,
		Addresses: []models.BookingAddress{
			{Kind: models.AddressKindPickup, Postcode: "G2 1AB", Latitude: 55.8642, Longitude: -4.2518},
			{Kind: models.AddressKindDropoff, Postcode: "G4 9XZ", Latitude: 55.8721, Longitude: -4.2301},
		},
	}
}

type harness struct {
	svc     Service
	repo    *stubRoutesRepo
	cfg     *stubRoutesConfig
	inviter *stubInviter
	outbox  *captureOutbox
	auditor *captureAuditor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		repo:    newStubRoutesRepo(),
		cfg:     &stubRoutesConfig{cfg: models.DefaultRoutingConfig()},
		inviter: &stubInviter{},
		outbox:  &captureOutbox{},
		auditor: &captureAuditor{},
	}
	svc, err := NewService(Params{
		Repo:    h.repo,
		Tx:      noopTx{},
		Config:  h.cfg,
		Outbox:  h.outbox,
		Auditor: h.auditor,
		Inviter: h.inviter,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	h.svc = svc
	return h
}

func TestPreviewOrdersStopsWithoutSideEffects(t *testing.T) {
	h := newHarness(t)
	first := confirmedBooking("SV-300")
	second := confirmedBooking("SV-301")
	h.repo.bookings[first.ID] = first
	h.repo.bookings[second.ID] = second

	preview, err := h.svc.Preview(context.Background(), []uuid.UUID{first.ID, second.ID})
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if preview.StopCount != 2 {
		t.Errorf("stop count = %d", preview.StopCount)
	}
	if len(preview.Stops) != 2 || preview.Stops[0].Sequence != 1 || preview.Stops[1].Sequence != 2 {
		t.Errorf("stops = %+v", preview.Stops)
	}
	if len(h.repo.routes) != 0 || len(h.repo.linked) != 0 {
		t.Error("preview must not persist anything")
	}
	if first.RouteID != nil {
		t.Error("preview must not link bookings")
	}
}

func TestPreviewRejectsRoutedBooking(t *testing.T) {
	h := newHarness(t)
	routed := confirmedBooking("SV-310")
	existing := uuid.New()
	routed.RouteID = &existing
	h.repo.bookings[routed.ID] = routed

	_, err := h.svc.Preview(context.Background(), []uuid.UUID{routed.ID})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "available") {
		t.Errorf("error = %q, want availability mention", err.Error())
	}
}

func TestCreateHeldBehindApprovalGate(t *testing.T) {
	h := newHarness(t)
	first := confirmedBooking("SV-320")
	second := confirmedBooking("SV-321")
	h.repo.bookings[first.ID] = first
	h.repo.bookings[second.ID] = second

	result, err := h.svc.Create(context.Background(), CreateInput{
		BookingIDs: []uuid.UUID{first.ID, second.ID},
		AdminID:    "admin-1",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !result.Success {
		t.Fatalf("message = %s", result.Message)
	}
	if result.ApprovalID == nil {
		t.Fatal("expected approval id with approval required")
	}
	if len(h.inviter.invited) != 0 {
		t.Fatal("held route must not dispatch offers")
	}
	if len(h.repo.linked) != 2 {
		t.Errorf("linked = %d", len(h.repo.linked))
	}
	if first.OrderType != enums.OrderTypeMultiDrop {
		t.Errorf("order type = %s", first.OrderType)
	}
}

func TestCreateSkipApprovalDispatchesOffer(t *testing.T) {
	h := newHarness(t)
	b := confirmedBooking("SV-330")
	h.repo.bookings[b.ID] = b

	result, err := h.svc.Create(context.Background(), CreateInput{
		BookingIDs:   []uuid.UUID{b.ID},
		AdminID:      "admin-1",
		SkipApproval: true,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !result.Success || result.RouteID == nil {
		t.Fatalf("result = %+v", result)
	}
	if result.ApprovalID != nil {
		t.Error("no approval expected with skip set")
	}
	if len(h.inviter.invited) != 1 || h.inviter.invited[0] != *result.RouteID {
		t.Errorf("invited = %v", h.inviter.invited)
	}
}

func TestCreateRejectsPendingPaymentBooking(t *testing.T) {
	h := newHarness(t)
	b := confirmedBooking("SV-340")
	b.Status = enums.BookingStatusPendingPayment
	h.repo.bookings[b.ID] = b

	result, err := h.svc.Create(context.Background(), CreateInput{
		BookingIDs: []uuid.UUID{b.ID},
		AdminID:    "admin-1",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure for unpaid booking")
	}
	if !strings.Contains(result.Message, "available") {
		t.Errorf("message = %q, want availability mention", result.Message)
	}
	if len(h.repo.routes) != 0 {
		t.Error("no route must be created")
	}
}

func TestCreateRejectsAlreadyRoutedBooking(t *testing.T) {
	h := newHarness(t)
	b := confirmedBooking("SV-350")
	existing := uuid.New()
	b.RouteID = &existing
	h.repo.bookings[b.ID] = b

	result, err := h.svc.Create(context.Background(), CreateInput{
		BookingIDs: []uuid.UUID{b.ID},
		AdminID:    "admin-1",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure for routed booking")
	}
	if !strings.Contains(result.Message, "available") {
		t.Errorf("message = %q", result.Message)
	}
}

func TestApproveDispatchesOffer(t *testing.T) {
	h := newHarness(t)
	routeID := uuid.New()
	approval := &models.RouteApproval{
		ID: uuid.New(), RouteID: routeID,
		Status: enums.ApprovalStatusPending, RequestedBy: "admin-1",
	}
	h.repo.approvals[approval.ID] = approval

	if err := h.svc.Approve(context.Background(), approval.ID, "admin-2"); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if h.repo.approvals[approval.ID].Status != enums.ApprovalStatusApproved {
		t.Errorf("status = %s", h.repo.approvals[approval.ID].Status)
	}
	if len(h.inviter.invited) != 1 || h.inviter.invited[0] != routeID {
		t.Errorf("invited = %v", h.inviter.invited)
	}
	if len(h.auditor.entries) != 1 || h.auditor.entries[0].EventType != enums.AuditRouteApproved {
		t.Errorf("audit = %+v", h.auditor.entries)
	}
}

func TestApproveTwiceFails(t *testing.T) {
	h := newHarness(t)
	approval := &models.RouteApproval{
		ID: uuid.New(), RouteID: uuid.New(),
		Status: enums.ApprovalStatusPending, RequestedBy: "admin-1",
	}
	h.repo.approvals[approval.ID] = approval

	if err := h.svc.Approve(context.Background(), approval.ID, "admin-2"); err != nil {
		t.Fatalf("first approve: %v", err)
	}
	err := h.svc.Approve(context.Background(), approval.ID, "admin-3")
	appErr := pkgerrors.As(err)
	if appErr == nil || appErr.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestRejectReleasesBookings(t *testing.T) {
	h := newHarness(t)
	first := confirmedBooking("SV-360")
	second := confirmedBooking("SV-361")
	h.repo.bookings[first.ID] = first
	h.repo.bookings[second.ID] = second

	created, err := h.svc.Create(context.Background(), CreateInput{
		BookingIDs: []uuid.UUID{first.ID, second.ID},
		AdminID:    "admin-1",
	})
	if err != nil || created.ApprovalID == nil {
		t.Fatalf("Create: %v %+v", err, created)
	}

	if err := h.svc.Reject(context.Background(), *created.ApprovalID, "admin-2", "wrong day"); err != nil {
		t.Fatalf("Reject: %v", err)
	}

	if first.RouteID != nil || second.RouteID != nil {
		t.Error("bookings must be released on rejection")
	}
	if h.repo.routeStatuses[*created.RouteID] != enums.RouteStatusCancelled {
		t.Errorf("route status = %s", h.repo.routeStatuses[*created.RouteID])
	}

	var cancelled, available int
	for _, e := range h.outbox.events {
		switch e.EventType {
		case enums.EventRouteCancelled:
			cancelled++
		case enums.EventBookingAvailable:
			available++
		}
	}
	if cancelled != 1 || available != 2 {
		t.Errorf("cancelled = %d, available = %d", cancelled, available)
	}
}
