package services

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"cargoride/internal/config"
	"cargoride/internal/models"
	"cargoride/internal/repositories/memory"
	"cargoride/pkg/maps"
	"cargoride/pkg/payment"
	"cargoride/pkg/push"
	"cargoride/pkg/storage"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*models.DomainEvent
	err    error
}

func (p *fakePublisher) Publish(ctx context.Context, event *models.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *fakePublisher) types() []models.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

func (p *fakePublisher) count(t models.EventType) int {
	n := 0
	for _, got := range p.types() {
		if got == t {
			n++
		}
	}
	return n
}

type fakePush struct {
	mu       sync.Mutex
	requests []*push.NotificationRequest
}

func (f *fakePush) SendNotification(ctx context.Context, request *push.NotificationRequest) (*push.NotificationResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, request)
	return &push.NotificationResponse{Success: true, Topic: request.Topic}, nil
}

func (f *fakePush) topics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.requests))
	for i, r := range f.requests {
		out[i] = r.Topic
	}
	return out
}

type fakePayments struct {
	status *payment.PaymentStatus
	err    error
	calls  int
}

func (f *fakePayments) VerifyPayment(ctx context.Context, reference string) (*payment.PaymentStatus, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.status, nil
}

func (f *fakePayments) ValidateWebhook(ctx context.Context, payload []byte, signature string) (*payment.WebhookEvent, error) {
	return nil, errors.New("not implemented")
}

// paidIntent is a captured payment for amount, tagged with serviceID like the checkout does.
func paidIntent(serviceID string, amount float64) *payment.PaymentStatus {
	return &payment.PaymentStatus{
		Reference: "pi_test",
		Status:    payment.StatusSucceeded,
		Amount:    amount,
		Metadata:  map[string]string{"service_id": serviceID},
	}
}

type fakeReceipts struct {
	uploads  map[string]string
	deleted  []string
	onUpload func()
}

func (f *fakeReceipts) Upload(ctx context.Context, request *storage.UploadRequest) (*storage.UploadResponse, error) {
	data, err := io.ReadAll(request.Reader)
	if err != nil {
		return nil, err
	}
	if f.uploads == nil {
		f.uploads = make(map[string]string)
	}
	f.uploads[request.Key] = string(data)
	if f.onUpload != nil {
		f.onUpload()
	}
	return &storage.UploadResponse{Key: request.Key, URL: "https://files.test/" + request.Key, Size: int64(len(data))}, nil
}

func (f *fakeReceipts) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	delete(f.uploads, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeReceipts) GetURL(ctx context.Context, key string, expiration time.Duration) (string, error) {
	return "https://files.test/signed/" + key + "?ttl=" + expiration.String(), nil
}

type fakeRoutes struct {
	estimate *maps.RouteEstimate
	err      error
}

func (f *fakeRoutes) EstimateRoute(ctx context.Context, request *maps.RouteRequest) (*maps.RouteEstimate, error) {
	return f.estimate, f.err
}

type fakeMetrics struct {
	mu          sync.Mutex
	operations  map[string]int
	settlements int
	commission  float64
}

func (m *fakeMetrics) ObserveOperation(operation string, err error, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.operations == nil {
		m.operations = make(map[string]int)
	}
	m.operations[operation]++
}

func (m *fakeMetrics) ObserveSettlement(gross, commission float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settlements++
	m.commission += commission
}

// harness wires every engine service on top of one memory store.
type harness struct {
	store    *memory.Store
	clock    *fakeClock
	events   *fakePublisher
	push     *fakePush
	payments *fakePayments
	receipts *fakeReceipts
	metrics  *fakeMetrics

	lifecycle     ServiceLifecycleService
	offers        OfferService
	acceptance    AcceptanceService
	settlement    SettlementService
	history       HistoryService
	organizations OrganizationService
}

func newHarness(t *testing.T, opts ...memory.Option) *harness {
	t.Helper()

	h := &harness{
		store:    memory.NewStore(opts...),
		clock:    newFakeClock(),
		events:   &fakePublisher{},
		push:     &fakePush{},
		payments: &fakePayments{status: &payment.PaymentStatus{Status: payment.StatusSucceeded}},
		receipts: &fakeReceipts{},
		metrics:  &fakeMetrics{},
	}
	deps := Dependencies{
		Store:       h.store,
		Events:      h.events,
		Push:        h.push,
		Receipts:    h.receipts,
		Payments:    h.payments,
		Metrics:     h.metrics,
		Marketplace: &config.MarketplaceConfig{DefaultCommissionRate: 0.05, Currency: "USD", DefaultSLAMinutes: 60},
		Transaction: &config.TransactionConfig{MaxAttempts: 5, Timeout: 5 * time.Second},
		Now:         h.clock.Now,
	}

	h.settlement = NewSettlementService(deps)
	h.lifecycle = NewServiceLifecycleService(deps, h.settlement)
	h.offers = NewOfferService(deps)
	h.acceptance = NewAcceptanceService(deps)
	h.history = NewHistoryService(deps)
	h.organizations = NewOrganizationService(deps)
	return h
}

func (h *harness) createService(t *testing.T, requesterID string, mutate ...func(*CreateServiceInput)) *models.Service {
	t.Helper()
	input := &CreateServiceInput{
		Route: []models.Waypoint{
			{Address: "Mercado 4, Asuncion"},
			{Address: "Aeropuerto Silvio Pettirossi, Luque"},
		},
		Kind:           models.ServiceKindPassenger,
		SLAMinutes:     30,
		EstimatedPrice: floatPtr(21),
	}
	for _, m := range mutate {
		m(input)
	}
	svc, err := h.lifecycle.CreateService(context.Background(), requesterID, input)
	if err != nil {
		t.Fatalf("create service: %v", err)
	}
	return svc
}

func (h *harness) submit(t *testing.T, serviceID, driverID string, price float64, eta int) *models.Offer {
	t.Helper()
	offer, err := h.offers.SubmitOffer(context.Background(), &SubmitOfferInput{
		ServiceID:        serviceID,
		DriverID:         driverID,
		Price:            price,
		EstimatedMinutes: eta,
	})
	if err != nil {
		t.Fatalf("submit offer from %s: %v", driverID, err)
	}
	return offer
}

func (h *harness) accept(t *testing.T, serviceID, offerID string) *AcceptanceResult {
	t.Helper()
	result, err := h.acceptance.AcceptOffer(context.Background(), &AcceptOfferInput{ServiceID: serviceID, OfferID: offerID})
	if err != nil {
		t.Fatalf("accept offer %s: %v", offerID, err)
	}
	return result
}

// acceptedService runs the usual path up to an accepted service with driver d1 at price.
func (h *harness) acceptedService(t *testing.T, price float64, mutate ...func(*CreateServiceInput)) *models.Service {
	t.Helper()
	svc := h.createService(t, "r1", mutate...)
	offer := h.submit(t, svc.ID, "d1", price, 15)
	return h.accept(t, svc.ID, offer.ID).Service
}

func assertKind(t *testing.T, err, kind error) {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("error = %v, want %v", err, kind)
	}
}
