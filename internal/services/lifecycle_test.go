package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/songcraft/backend/internal/models"
	"github.com/songcraft/backend/internal/services/gateway"
)

// memLedger is an in-memory LedgerStore for deterministic lifecycle tests.
// The mutex makes the conditional updates genuinely atomic so race scenarios
// behave like the real store.
type memLedger struct {
	mu        sync.Mutex
	projects  map[uint]*models.Project
	revisions map[uint]*models.Revision
	records   map[string]*models.PayoutRecord
	users     map[uint]*models.User
	nextRevID uint
}

func newMemLedger() *memLedger {
	return &memLedger{
		projects:  make(map[uint]*models.Project),
		revisions: make(map[uint]*models.Revision),
		records:   make(map[string]*models.PayoutRecord),
		users:     make(map[uint]*models.User),
	}
}

func (m *memLedger) GetProject(_ context.Context, id uint) (*models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, ErrProjectNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memLedger) UpdateProjectIfStatus(_ context.Context, id uint, expected []string, updates map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return ErrProjectNotFound
	}
	matched := false
	for _, status := range expected {
		if p.Status == status {
			matched = true
			break
		}
	}
	if !matched {
		return ErrStateConflict
	}
	applyProjectUpdates(p, updates)
	return nil
}

func applyProjectUpdates(p *models.Project, updates map[string]interface{}) {
	for key, value := range updates {
		switch key {
		case "status":
			p.Status = value.(string)
		case "payment_reference":
			p.PaymentReference = value.(string)
		case "acceptance_deadline":
			p.AcceptanceDeadline = asTimePtr(value)
		case "producer_id":
			if value == nil {
				p.ProducerID = nil
			} else {
				id := value.(uint)
				p.ProducerID = &id
			}
		case "producer_payout_cents":
			if value == nil {
				p.ProducerPayoutCents = nil
			} else {
				v := value.(int64)
				p.ProducerPayoutCents = &v
			}
		case "platform_fee_cents":
			if value == nil {
				p.PlatformFeeCents = nil
			} else {
				v := value.(int64)
				p.PlatformFeeCents = &v
			}
		case "producer_paid_at":
			p.ProducerPaidAt = asTimePtr(value)
		case "refunded_at":
			p.RefundedAt = asTimePtr(value)
		case "refund_percent":
			v := value.(int)
			p.RefundPercent = &v
		case "refund_reason":
			p.RefundReason = value.(string)
		case "cancellation_reason":
			p.CancellationReason = value.(string)
		case "blocked_producer_ids":
			p.BlockedProducerIDs = value.(string)
		}
	}
}

func asTimePtr(value interface{}) *time.Time {
	switch v := value.(type) {
	case nil:
		return nil
	case time.Time:
		return &v
	case *time.Time:
		return v
	}
	return nil
}

func (m *memLedger) ListExpiredAcceptance(_ context.Context, cutoff time.Time, limit int) ([]models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Project
	for _, p := range m.projects {
		if len(out) >= limit {
			break
		}
		if p.Status != models.ProjectStatusPendingPayment && p.Status != models.ProjectStatusPaid {
			continue
		}
		if p.AcceptanceDeadline != nil && p.AcceptanceDeadline.Before(cutoff) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memLedger) CreateRevisions(_ context.Context, revisions []models.Revision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range revisions {
		m.nextRevID++
		revisions[i].ID = m.nextRevID
		rev := revisions[i]
		m.revisions[rev.ID] = &rev
	}
	return nil
}

func (m *memLedger) GetRevision(_ context.Context, id uint) (*models.Revision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.revisions[id]
	if !ok {
		return nil, ErrRevisionNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memLedger) ListRevisions(_ context.Context, projectID uint) ([]models.Revision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Revision
	for id := uint(1); id <= m.nextRevID; id++ {
		if r, ok := m.revisions[id]; ok && r.ProjectID == projectID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memLedger) UpdateRevisionIfStatus(_ context.Context, id uint, expected []string, updates map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.revisions[id]
	if !ok {
		return ErrRevisionNotFound
	}
	matched := false
	for _, status := range expected {
		if r.Status == status {
			matched = true
			break
		}
	}
	if !matched {
		return ErrStateConflict
	}
	for key, value := range updates {
		switch key {
		case "status":
			r.Status = value.(string)
		case "client_notes":
			r.ClientNotes = value.(string)
		case "wants_meeting":
			r.WantsMeeting = value.(bool)
		case "requested_at":
			r.RequestedAt = asTimePtr(value)
		case "meeting_link":
			r.MeetingLink = value.(string)
		case "drive_link":
			r.DriveLink = value.(string)
		case "delivered_at":
			r.DeliveredAt = asTimePtr(value)
		}
	}
	return nil
}

func (m *memLedger) SetRevisionFeedback(_ context.Context, id uint, feedback string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.revisions[id]
	if !ok {
		return ErrRevisionNotFound
	}
	if r.Status != models.RevisionStatusDelivered || r.Feedback != "" {
		return ErrFeedbackAlreadySubmitted
	}
	r.Feedback = feedback
	return nil
}

func (m *memLedger) CountDeliveredRevisions(_ context.Context, projectID uint) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, r := range m.revisions {
		if r.ProjectID == projectID && r.Status == models.RevisionStatusDelivered {
			count++
		}
	}
	return count, nil
}

func (m *memLedger) CreatePayoutRecord(_ context.Context, record *models.PayoutRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[record.IdempotencyKey]; exists {
		return errors.New("duplicate idempotency key")
	}
	cp := *record
	m.records[record.IdempotencyKey] = &cp
	return nil
}

func (m *memLedger) GetPayoutRecordByKey(_ context.Context, key string) (*models.PayoutRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[key]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *memLedger) GetUser(_ context.Context, id uint) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, errors.New("user not found")
	}
	cp := *u
	return &cp, nil
}

// gatewayCall records one money movement sent to the fake gateway.
type gatewayCall struct {
	kind        string // refund, transfer
	target      string // payment ref or destination account
	amountCents int64
	key         string
}

type fakeGateway struct {
	mu      sync.Mutex
	calls   []gatewayCall
	failAll error
}

func (g *fakeGateway) Capture(_ context.Context, amountCents int64, customerRef string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failAll != nil {
		return "", g.failAll
	}
	g.calls = append(g.calls, gatewayCall{kind: "capture", target: customerRef, amountCents: amountCents})
	return fmt.Sprintf("cap_%d", len(g.calls)), nil
}

func (g *fakeGateway) Refund(_ context.Context, paymentRef string, amountCents int64, key string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failAll != nil {
		return "", g.failAll
	}
	g.calls = append(g.calls, gatewayCall{kind: "refund", target: paymentRef, amountCents: amountCents, key: key})
	return fmt.Sprintf("re_%d", len(g.calls)), nil
}

func (g *fakeGateway) Transfer(_ context.Context, destination string, amountCents int64, key string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failAll != nil {
		return "", g.failAll
	}
	g.calls = append(g.calls, gatewayCall{kind: "transfer", target: destination, amountCents: amountCents, key: key})
	return fmt.Sprintf("tr_%d", len(g.calls)), nil
}

type sentNotification struct {
	kind      string
	recipient Recipient
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *fakeNotifier) Send(kind string, recipient Recipient, _ map[string]interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{kind: kind, recipient: recipient})
}

func (n *fakeNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.sent))
	for _, s := range n.sent {
		out = append(out, s.kind)
	}
	return out
}

type lifecycleFixture struct {
	ledger   *memLedger
	gateway  *fakeGateway
	notifier *fakeNotifier
	svc      *ProjectLifecycleService
	now      time.Time
}

func newLifecycleFixture(t *testing.T) *lifecycleFixture {
	t.Helper()
	f := &lifecycleFixture{
		ledger:   newMemLedger(),
		gateway:  &fakeGateway{},
		notifier: &fakeNotifier{},
		now:      time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	f.svc = &ProjectLifecycleService{
		ledger:   f.ledger,
		gateway:  f.gateway,
		notifier: f.notifier,
		policy:   SettlementPolicy{PlatformFeePercent: 15, FallbackProgressPercent: 50},
		window:   48 * time.Hour,
		now:      func() time.Time { return f.now },
	}
	return f
}

func (f *lifecycleFixture) addProject(p models.Project) *models.Project {
	if p.Currency == "" {
		p.Currency = "USD"
	}
	f.ledger.projects[p.ID] = &p
	return f.ledger.projects[p.ID]
}

func (f *lifecycleFixture) addProducer(id uint, verified bool) {
	account := ""
	if verified {
		account = fmt.Sprintf("acct_%d", id)
	}
	f.ledger.users[id] = &models.User{
		ID:              id,
		Role:            models.RoleProducer,
		PayoutAccountID: account,
		PayoutVerified:  verified,
	}
}

func TestCaptureCompleted(t *testing.T) {
	f := newLifecycleFixture(t)
	f.addProject(models.Project{
		ID:         1,
		CustomerID: 10,
		Status:     models.ProjectStatusPendingPayment,
		PriceCents: 10000,
	})

	if err := f.svc.CaptureCompleted(context.Background(), 1, "pay_abc", 10000); err != nil {
		t.Fatalf("CaptureCompleted: %v", err)
	}

	p := f.ledger.projects[1]
	if p.Status != models.ProjectStatusPaid {
		t.Errorf("status = %q, want paid", p.Status)
	}
	if p.PaymentReference != "pay_abc" {
		t.Errorf("payment_reference = %q", p.PaymentReference)
	}
	if p.AcceptanceDeadline == nil || !p.AcceptanceDeadline.Equal(f.now.Add(48*time.Hour)) {
		t.Errorf("acceptance_deadline = %v, want now+48h", p.AcceptanceDeadline)
	}
	if len(f.notifier.sent) != 1 || f.notifier.sent[0].kind != NotifyPaymentCaptured {
		t.Errorf("notifications = %v", f.notifier.kinds())
	}
}

func TestCaptureCompleted_ReplayIsNoop(t *testing.T) {
	f := newLifecycleFixture(t)
	f.addProject(models.Project{
		ID:         1,
		Status:     models.ProjectStatusPendingPayment,
		PriceCents: 10000,
	})

	if err := f.svc.CaptureCompleted(context.Background(), 1, "pay_abc", 10000); err != nil {
		t.Fatalf("first capture: %v", err)
	}
	if err := f.svc.CaptureCompleted(context.Background(), 1, "pay_abc", 10000); err != nil {
		t.Fatalf("replay should be a no-op, got %v", err)
	}
	if err := f.svc.CaptureCompleted(context.Background(), 1, "pay_other", 10000); !errors.Is(err, ErrStateConflict) {
		t.Fatalf("capture with different ref = %v, want ErrStateConflict", err)
	}
}

func TestCaptureCompleted_AmountMismatch(t *testing.T) {
	f := newLifecycleFixture(t)
	f.addProject(models.Project{
		ID:         1,
		Status:     models.ProjectStatusPendingPayment,
		PriceCents: 10000,
	})

	if err := f.svc.CaptureCompleted(context.Background(), 1, "pay_abc", 9999); err == nil {
		t.Fatal("expected error on amount mismatch")
	}
	if f.ledger.projects[1].Status != models.ProjectStatusPendingPayment {
		t.Error("project must stay pending_payment on mismatch")
	}
}

func TestProducerAccept(t *testing.T) {
	f := newLifecycleFixture(t)
	deadline := f.now.Add(time.Hour)
	f.addProject(models.Project{
		ID:                 1,
		CustomerID:         10,
		Status:             models.ProjectStatusPaid,
		AcceptanceDeadline: &deadline,
		RevisionsPurchased: 3,
	})

	if err := f.svc.ProducerAccept(context.Background(), 1, 20); err != nil {
		t.Fatalf("ProducerAccept: %v", err)
	}

	p := f.ledger.projects[1]
	if p.Status != models.ProjectStatusAccepted {
		t.Errorf("status = %q, want accepted", p.Status)
	}
	if p.ProducerID == nil || *p.ProducerID != 20 {
		t.Errorf("producer_id = %v, want 20", p.ProducerID)
	}
	if p.AcceptanceDeadline != nil {
		t.Error("deadline must be cleared on accept")
	}

	revisions, _ := f.ledger.ListRevisions(context.Background(), 1)
	if len(revisions) != 3 {
		t.Fatalf("revisions created = %d, want 3", len(revisions))
	}
	for i, r := range revisions {
		if r.Number != i+1 || r.Status != models.RevisionStatusPending {
			t.Errorf("revision %d = {number %d, status %q}", i, r.Number, r.Status)
		}
	}
}

func TestProducerAccept_ExpiredDeadline(t *testing.T) {
	f := newLifecycleFixture(t)
	deadline := f.now.Add(-time.Minute)
	f.addProject(models.Project{
		ID:                 1,
		Status:             models.ProjectStatusPaid,
		AcceptanceDeadline: &deadline,
	})

	if err := f.svc.ProducerAccept(context.Background(), 1, 20); !errors.Is(err, ErrAcceptanceWindowExpired) {
		t.Fatalf("err = %v, want ErrAcceptanceWindowExpired", err)
	}
}

func TestProducerAccept_BlockedProducer(t *testing.T) {
	f := newLifecycleFixture(t)
	deadline := f.now.Add(time.Hour)
	f.addProject(models.Project{
		ID:                 1,
		Status:             models.ProjectStatusPaid,
		AcceptanceDeadline: &deadline,
		BlockedProducerIDs: "20,31",
	})

	if err := f.svc.ProducerAccept(context.Background(), 1, 20); !errors.Is(err, ErrProducerBlocked) {
		t.Fatalf("err = %v, want ErrProducerBlocked", err)
	}
	if err := f.svc.ProducerAccept(context.Background(), 1, 22); err != nil {
		t.Fatalf("unblocked producer should accept: %v", err)
	}
}

func TestProducerAccept_AfterAutoRefund(t *testing.T) {
	f := newLifecycleFixture(t)
	f.addProject(models.Project{
		ID:           1,
		Status:       models.ProjectStatusRefunded,
		RefundReason: models.RefundReasonNoProducerAccepted,
	})

	if err := f.svc.ProducerAccept(context.Background(), 1, 20); !errors.Is(err, ErrAcceptanceWindowExpired) {
		t.Fatalf("err = %v, want ErrAcceptanceWindowExpired", err)
	}
}

func TestAdvanceStatus_ForwardOnly(t *testing.T) {
	f := newLifecycleFixture(t)
	producerID := uint(20)
	f.addProject(models.Project{
		ID:         1,
		Status:     models.ProjectStatusAccepted,
		ProducerID: &producerID,
		PriceCents: 10000,
	})

	// Skipping a step is rejected.
	if _, err := f.svc.AdvanceStatus(context.Background(), 1, 20, models.ProjectStatusReview); !errors.Is(err, ErrStateConflict) {
		t.Fatalf("skip err = %v, want ErrStateConflict", err)
	}

	if _, err := f.svc.AdvanceStatus(context.Background(), 1, 20, models.ProjectStatusInProgress); err != nil {
		t.Fatalf("accepted→in_progress: %v", err)
	}
	if f.ledger.projects[1].Status != models.ProjectStatusInProgress {
		t.Errorf("status = %q", f.ledger.projects[1].Status)
	}

	// Repeating the current status is an idempotent no-op.
	result, err := f.svc.AdvanceStatus(context.Background(), 1, 20, models.ProjectStatusInProgress)
	if err != nil || !result.AlreadySettled {
		t.Fatalf("repeat = (%+v, %v), want AlreadySettled", result, err)
	}

	// Another producer may not drive the project.
	if _, err := f.svc.AdvanceStatus(context.Background(), 1, 99, models.ProjectStatusReview); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("wrong producer err = %v, want ErrUnauthorized", err)
	}
}

func TestAdvanceStatus_CompletionSettles(t *testing.T) {
	f := newLifecycleFixture(t)
	producerID := uint(20)
	f.addProject(models.Project{
		ID:         1,
		CustomerID: 10,
		Status:     models.ProjectStatusReview,
		ProducerID: &producerID,
		PriceCents: 10000,
	})
	f.addProducer(20, true)

	result, err := f.svc.AdvanceStatus(context.Background(), 1, 20, models.ProjectStatusCompleted)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if result.PayoutCents != 8500 {
		t.Errorf("payout = %d, want 8500", result.PayoutCents)
	}
	if result.ManualRequired {
		t.Error("verified producer must not need manual payout")
	}

	if len(f.gateway.calls) != 1 {
		t.Fatalf("gateway calls = %d, want 1", len(f.gateway.calls))
	}
	call := f.gateway.calls[0]
	if call.kind != "transfer" || call.amountCents != 8500 || call.key != "project-1-payout" {
		t.Errorf("transfer call = %+v", call)
	}

	p := f.ledger.projects[1]
	if p.Status != models.ProjectStatusCompleted {
		t.Errorf("status = %q", p.Status)
	}
	if p.ProducerPayoutCents == nil || *p.ProducerPayoutCents != 8500 {
		t.Errorf("producer_payout_cents = %v", p.ProducerPayoutCents)
	}
	if p.PlatformFeeCents == nil || *p.PlatformFeeCents != 1500 {
		t.Errorf("platform_fee_cents = %v", p.PlatformFeeCents)
	}
	if p.ProducerPaidAt == nil {
		t.Error("producer_paid_at must be set")
	}

	record := f.ledger.records["project-1-payout"]
	if record == nil || record.Status != models.PayoutStatusSucceeded || record.AmountCents != 8500 {
		t.Errorf("payout record = %+v", record)
	}
}

func TestAdvanceStatus_CompletionParksUnverifiedPayout(t *testing.T) {
	f := newLifecycleFixture(t)
	producerID := uint(20)
	f.addProject(models.Project{
		ID:         1,
		Status:     models.ProjectStatusReview,
		ProducerID: &producerID,
		PriceCents: 10000,
	})
	f.addProducer(20, false)

	result, err := f.svc.AdvanceStatus(context.Background(), 1, 20, models.ProjectStatusCompleted)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !result.ManualRequired {
		t.Error("expected manual_required payout")
	}
	if len(f.gateway.calls) != 0 {
		t.Errorf("gateway calls = %d, want 0", len(f.gateway.calls))
	}

	record := f.ledger.records["project-1-payout"]
	if record == nil || record.Status != models.PayoutStatusManualRequired {
		t.Fatalf("payout record = %+v", record)
	}
	if f.ledger.projects[1].ProducerPaidAt != nil {
		t.Error("producer_paid_at must stay unset for parked payouts")
	}
}

func TestAdvanceStatus_CompletionReconcilesExistingTransfer(t *testing.T) {
	f := newLifecycleFixture(t)
	producerID := uint(20)
	f.addProject(models.Project{
		ID:         1,
		Status:     models.ProjectStatusReview,
		ProducerID: &producerID,
		PriceCents: 10000,
	})
	f.addProducer(20, true)
	// A previous attempt moved the money but crashed before the ledger commit.
	f.ledger.records["project-1-payout"] = &models.PayoutRecord{
		ProjectID:      1,
		Kind:           models.PayoutKindTransfer,
		Status:         models.PayoutStatusSucceeded,
		AmountCents:    8500,
		IdempotencyKey: "project-1-payout",
		GatewayRef:     "tr_prev",
	}

	result, err := f.svc.AdvanceStatus(context.Background(), 1, 20, models.ProjectStatusCompleted)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if len(f.gateway.calls) != 0 {
		t.Errorf("gateway must not be called again, got %d calls", len(f.gateway.calls))
	}
	if result.GatewayRef != "tr_prev" {
		t.Errorf("gateway_ref = %q, want recorded tr_prev", result.GatewayRef)
	}
	if f.ledger.projects[1].Status != models.ProjectStatusCompleted {
		t.Errorf("status = %q", f.ledger.projects[1].Status)
	}
}

func TestAdvanceStatus_GatewayFailureLeavesLedgerUntouched(t *testing.T) {
	f := newLifecycleFixture(t)
	producerID := uint(20)
	f.addProject(models.Project{
		ID:         1,
		Status:     models.ProjectStatusReview,
		ProducerID: &producerID,
		PriceCents: 10000,
	})
	f.addProducer(20, true)
	f.gateway.failAll = gateway.ErrUnavailable

	if _, err := f.svc.AdvanceStatus(context.Background(), 1, 20, models.ProjectStatusCompleted); !errors.Is(err, gateway.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if f.ledger.projects[1].Status != models.ProjectStatusReview {
		t.Errorf("status = %q, must stay review", f.ledger.projects[1].Status)
	}
	if len(f.ledger.records) != 0 {
		t.Error("no payout record may exist after a failed transfer")
	}
}

func TestRequestCancellation(t *testing.T) {
	f := newLifecycleFixture(t)
	producerID := uint(20)
	f.addProject(models.Project{
		ID:                 1,
		CustomerID:         10,
		Status:             models.ProjectStatusInProgress,
		ProducerID:         &producerID,
		PriceCents:         10000,
		RevisionsPurchased: 4,
	})
	f.ledger.revisions[1] = &models.Revision{ID: 1, ProjectID: 1, Number: 1, Status: models.RevisionStatusDelivered}
	f.ledger.nextRevID = 1

	recommended, err := f.svc.RequestCancellation(context.Background(), 1, 10, "changed my mind")
	if err != nil {
		t.Fatalf("RequestCancellation: %v", err)
	}
	if recommended != 75 {
		t.Errorf("recommended = %d, want 75 (1 of 4 delivered)", recommended)
	}
	if f.ledger.projects[1].Status != models.ProjectStatusCancellationRequested {
		t.Errorf("status = %q", f.ledger.projects[1].Status)
	}

	// Repeating the request is idempotent.
	again, err := f.svc.RequestCancellation(context.Background(), 1, 10, "still cancelling")
	if err != nil || again != 75 {
		t.Fatalf("repeat = (%d, %v)", again, err)
	}

	// Only the owning customer may request.
	if _, err := f.svc.RequestCancellation(context.Background(), 1, 99, "x"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestResolveCancellation_Deny(t *testing.T) {
	f := newLifecycleFixture(t)
	f.addProject(models.Project{
		ID:         1,
		CustomerID: 10,
		Status:     models.ProjectStatusCancellationRequested,
		PriceCents: 10000,
	})

	result, err := f.svc.ResolveCancellation(context.Background(), 1, false, 0, true)
	if err != nil {
		t.Fatalf("deny: %v", err)
	}
	if result.Action != "denied" {
		t.Errorf("action = %q", result.Action)
	}
	if f.ledger.projects[1].Status != models.ProjectStatusInProgress {
		t.Errorf("status = %q, want in_progress after denial", f.ledger.projects[1].Status)
	}
	if len(f.gateway.calls) != 0 {
		t.Error("denial must not touch the gateway")
	}
}

func TestResolveCancellation_Approve(t *testing.T) {
	f := newLifecycleFixture(t)
	f.addProject(models.Project{
		ID:               1,
		CustomerID:       10,
		Status:           models.ProjectStatusCancellationRequested,
		PriceCents:       10000,
		PaymentReference: "pay_abc",
	})

	result, err := f.svc.ResolveCancellation(context.Background(), 1, true, 40, true)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if result.RefundCents != 4000 {
		t.Errorf("refund = %d, want 4000", result.RefundCents)
	}

	call := f.gateway.calls[0]
	if call.kind != "refund" || call.target != "pay_abc" || call.amountCents != 4000 || call.key != "project-1-refund" {
		t.Errorf("refund call = %+v", call)
	}

	p := f.ledger.projects[1]
	if p.Status != models.ProjectStatusRefunded {
		t.Errorf("status = %q", p.Status)
	}
	if p.RefundPercent == nil || *p.RefundPercent != 40 {
		t.Errorf("refund_percent = %v", p.RefundPercent)
	}
	if p.RefundReason != models.RefundReasonCancellation {
		t.Errorf("refund_reason = %q", p.RefundReason)
	}

	// Replaying the approval returns the recorded outcome without a second
	// gateway call.
	replay, err := f.svc.ResolveCancellation(context.Background(), 1, true, 40, true)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !replay.AlreadySettled || replay.RefundCents != 4000 {
		t.Errorf("replay = %+v", replay)
	}
	if len(f.gateway.calls) != 1 {
		t.Errorf("gateway calls = %d, want 1", len(f.gateway.calls))
	}
}

func TestResolveCancellation_RequiresAdmin(t *testing.T) {
	f := newLifecycleFixture(t)
	f.addProject(models.Project{ID: 1, Status: models.ProjectStatusCancellationRequested})

	if _, err := f.svc.ResolveCancellation(context.Background(), 1, true, 50, false); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestReassignProducer(t *testing.T) {
	f := newLifecycleFixture(t)
	producerID := uint(20)
	f.addProject(models.Project{
		ID:                 1,
		CustomerID:         10,
		Status:             models.ProjectStatusInProgress,
		ProducerID:         &producerID,
		PriceCents:         10000,
		RevisionsPurchased: 4,
	})
	f.addProducer(20, true)
	f.ledger.revisions[1] = &models.Revision{ID: 1, ProjectID: 1, Number: 1, Status: models.RevisionStatusDelivered}
	f.ledger.revisions[2] = &models.Revision{ID: 2, ProjectID: 1, Number: 2, Status: models.RevisionStatusDelivered}
	f.ledger.nextRevID = 2

	result, err := f.svc.ReassignProducer(context.Background(), 1, "missed deadlines", true)
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	// 85% share of 10000 at 2/4 progress.
	if result.PayoutCents != 4250 {
		t.Errorf("payout = %d, want 4250", result.PayoutCents)
	}

	call := f.gateway.calls[0]
	if call.kind != "transfer" || call.amountCents != 4250 || call.key != "project-1-reassign-20" {
		t.Errorf("transfer call = %+v", call)
	}

	p := f.ledger.projects[1]
	if p.Status != models.ProjectStatusPaid {
		t.Errorf("status = %q, want paid (back on the market)", p.Status)
	}
	if p.ProducerID != nil {
		t.Error("producer must be unassigned")
	}
	if !p.IsProducerBlocked(20) {
		t.Error("outgoing producer must be blocked")
	}
	if p.AcceptanceDeadline == nil || !p.AcceptanceDeadline.Equal(f.now.Add(48*time.Hour)) {
		t.Errorf("acceptance_deadline = %v, want fresh 48h window", p.AcceptanceDeadline)
	}
	if p.ProducerPayoutCents != nil || p.PlatformFeeCents != nil {
		t.Error("stale settlement amounts must be cleared")
	}
}

func TestReassignProducer_ZeroRevisionFallback(t *testing.T) {
	f := newLifecycleFixture(t)
	producerID := uint(20)
	f.addProject(models.Project{
		ID:                 1,
		Status:             models.ProjectStatusAccepted,
		ProducerID:         &producerID,
		PriceCents:         10000,
		RevisionsPurchased: 0,
	})
	f.addProducer(20, true)

	result, err := f.svc.ReassignProducer(context.Background(), 1, "unresponsive", true)
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	// 50% fallback of the 8500 share.
	if result.PayoutCents != 4250 {
		t.Errorf("payout = %d, want 4250", result.PayoutCents)
	}
}

func TestReassignProducer_Guards(t *testing.T) {
	f := newLifecycleFixture(t)
	f.addProject(models.Project{ID: 1, Status: models.ProjectStatusPaid})

	if _, err := f.svc.ReassignProducer(context.Background(), 1, "x", true); !errors.Is(err, ErrNoProducerAssigned) {
		t.Fatalf("no producer err = %v", err)
	}

	producerID := uint(20)
	f.addProject(models.Project{ID: 2, Status: models.ProjectStatusCompleted, ProducerID: &producerID})
	if _, err := f.svc.ReassignProducer(context.Background(), 2, "x", true); !errors.Is(err, ErrStateConflict) {
		t.Fatalf("terminal err = %v", err)
	}
}

func TestAutoRefundExpired(t *testing.T) {
	f := newLifecycleFixture(t)
	deadline := f.now.Add(-time.Hour)
	f.addProject(models.Project{
		ID:                 1,
		CustomerID:         10,
		Status:             models.ProjectStatusPaid,
		PriceCents:         10000,
		PaymentReference:   "pay_abc",
		AcceptanceDeadline: &deadline,
	})

	if err := f.svc.AutoRefundExpired(context.Background(), 1); err != nil {
		t.Fatalf("AutoRefundExpired: %v", err)
	}

	call := f.gateway.calls[0]
	if call.kind != "refund" || call.amountCents != 10000 || call.key != "project-1-refund" {
		t.Errorf("refund call = %+v", call)
	}

	p := f.ledger.projects[1]
	if p.Status != models.ProjectStatusRefunded {
		t.Errorf("status = %q", p.Status)
	}
	if p.RefundReason != models.RefundReasonNoProducerAccepted {
		t.Errorf("refund_reason = %q", p.RefundReason)
	}
	if p.RefundPercent == nil || *p.RefundPercent != 100 {
		t.Errorf("refund_percent = %v", p.RefundPercent)
	}

	// Replay is a no-op.
	if err := f.svc.AutoRefundExpired(context.Background(), 1); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(f.gateway.calls) != 1 {
		t.Errorf("gateway calls = %d, want 1", len(f.gateway.calls))
	}
}

func TestAutoRefundExpired_NothingCaptured(t *testing.T) {
	f := newLifecycleFixture(t)
	deadline := f.now.Add(-time.Hour)
	f.addProject(models.Project{
		ID:                 1,
		Status:             models.ProjectStatusPendingPayment,
		PriceCents:         10000,
		AcceptanceDeadline: &deadline,
	})

	if err := f.svc.AutoRefundExpired(context.Background(), 1); err != nil {
		t.Fatalf("AutoRefundExpired: %v", err)
	}
	if len(f.gateway.calls) != 0 {
		t.Error("nothing captured, gateway must not be called")
	}
	if f.ledger.projects[1].Status != models.ProjectStatusRefunded {
		t.Errorf("status = %q", f.ledger.projects[1].Status)
	}
}

func TestAutoRefundExpired_NotYetExpired(t *testing.T) {
	f := newLifecycleFixture(t)
	deadline := f.now.Add(time.Hour)
	f.addProject(models.Project{
		ID:                 1,
		Status:             models.ProjectStatusPaid,
		AcceptanceDeadline: &deadline,
	})

	if err := f.svc.AutoRefundExpired(context.Background(), 1); !errors.Is(err, ErrStateConflict) {
		t.Fatalf("err = %v, want ErrStateConflict", err)
	}
}

func TestAcceptVsAutoRefundRace(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newLifecycleFixture(t)
		deadline := f.now.Add(-time.Second)
		f.addProject(models.Project{
			ID:                 1,
			CustomerID:         10,
			Status:             models.ProjectStatusPaid,
			PriceCents:         10000,
			PaymentReference:   "pay_abc",
			AcceptanceDeadline: &deadline,
			RevisionsPurchased: 2,
		})

		var wg sync.WaitGroup
		var acceptErr, refundErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			acceptErr = f.svc.ProducerAccept(context.Background(), 1, 20)
		}()
		go func() {
			defer wg.Done()
			refundErr = f.svc.AutoRefundExpired(context.Background(), 1)
		}()
		wg.Wait()

		succeeded := 0
		if acceptErr == nil {
			succeeded++
		} else if !errors.Is(acceptErr, ErrAcceptanceWindowExpired) && !errors.Is(acceptErr, ErrStateConflict) {
			t.Fatalf("accept err = %v", acceptErr)
		}
		if refundErr == nil {
			succeeded++
		} else if !errors.Is(refundErr, ErrStateConflict) {
			t.Fatalf("refund err = %v", refundErr)
		}
		if succeeded != 1 {
			t.Fatalf("exactly one side must win, got %d (accept=%v refund=%v)", succeeded, acceptErr, refundErr)
		}

		status := f.ledger.projects[1].Status
		if status != models.ProjectStatusAccepted && status != models.ProjectStatusRefunded {
			t.Fatalf("status = %q after race", status)
		}
	}
}

func TestBlockedProducerNeverReassigned(t *testing.T) {
	f := newLifecycleFixture(t)
	deadline := f.now.Add(time.Hour)
	f.addProject(models.Project{
		ID:                 1,
		CustomerID:         10,
		Status:             models.ProjectStatusPaid,
		PriceCents:         10000,
		PaymentReference:   "pay_abc",
		AcceptanceDeadline: &deadline,
		RevisionsPurchased: 2,
	})

	assertInvariant := func(step string) {
		t.Helper()
		p := f.ledger.projects[1]
		if p.ProducerID == nil {
			return
		}
		if p.IsProducerBlocked(*p.ProducerID) {
			t.Fatalf("%s: blocked producer %d is assigned", step, *p.ProducerID)
		}
	}

	// Cycle several producers through accept → reassign and check the
	// invariant after every step.
	for producer := uint(20); producer < 25; producer++ {
		f.addProducer(producer, true)
		if err := f.svc.ProducerAccept(context.Background(), 1, producer); err != nil {
			t.Fatalf("accept by %d: %v", producer, err)
		}
		assertInvariant("accept")

		if _, err := f.svc.ReassignProducer(context.Background(), 1, "cycle", true); err != nil {
			t.Fatalf("reassign away from %d: %v", producer, err)
		}
		assertInvariant("reassign")

		// Everyone reassigned away so far must stay locked out.
		for blocked := uint(20); blocked <= producer; blocked++ {
			if err := f.svc.ProducerAccept(context.Background(), 1, blocked); !errors.Is(err, ErrProducerBlocked) {
				t.Fatalf("blocked producer %d re-accepted: %v", blocked, err)
			}
		}
	}
}
