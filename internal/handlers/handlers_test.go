package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"cargoride/internal/config"
	"cargoride/internal/handlers"
	"cargoride/internal/repositories/memory"
	"cargoride/internal/services"
	"cargoride/internal/utils"
	"cargoride/pkg/logger"
	"cargoride/pkg/payment"
	"cargoride/pkg/storage"
	"cargoride/routes"
)

type stubVerifier struct {
	event  *payment.WebhookEvent
	status string
	err    error
}

func (v *stubVerifier) VerifyPayment(_ context.Context, reference string) (*payment.PaymentStatus, error) {
	if v.err != nil {
		return nil, v.err
	}
	if v.event != nil && v.event.Payment != nil && v.event.Payment.Reference == reference {
		return v.event.Payment, nil
	}
	return &payment.PaymentStatus{Reference: reference, Status: v.status}, nil
}

func (v *stubVerifier) ValidateWebhook(_ context.Context, _ []byte, signature string) (*payment.WebhookEvent, error) {
	if signature != "valid" {
		return nil, errors.New("bad signature")
	}
	return v.event, nil
}

type memoryDeduper struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (d *memoryDeduper) SetNX(_ context.Context, key string, _ interface{}, _ time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.keys[key] {
		return false, nil
	}
	d.keys[key] = true
	return true, nil
}

func (d *memoryDeduper) Delete(_ context.Context, keys ...string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, k := range keys {
		delete(d.keys, k)
	}
	return nil
}

// stuckDeduper claims every key but cannot release one.
type stuckDeduper struct{}

func (stuckDeduper) SetNX(context.Context, string, interface{}, time.Duration) (bool, error) {
	return true, nil
}

func (stuckDeduper) Delete(context.Context, ...string) error {
	return errors.New("redis unavailable")
}

type memoryReceipts struct{}

func (memoryReceipts) Upload(_ context.Context, req *storage.UploadRequest) (*storage.UploadResponse, error) {
	data, _ := io.ReadAll(req.Reader)
	return &storage.UploadResponse{Key: req.Key, URL: "https://files.test/" + req.Key, Size: int64(len(data))}, nil
}

func (memoryReceipts) Delete(context.Context, string) error {
	return nil
}

func (memoryReceipts) GetURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://files.test/signed/" + key, nil
}

type topicRecorder struct {
	topics []string
}

func (r *topicRecorder) SubscribeToTopic(_ context.Context, _ []string, topic string) error {
	r.topics = append(r.topics, topic)
	return nil
}

func (r *topicRecorder) UnsubscribeFromTopic(context.Context, []string, string) error {
	return nil
}

type api struct {
	t        *testing.T
	router   *gin.Engine
	signer   *utils.TokenSigner
	verifier *stubVerifier
	devices  *topicRecorder
	feeds    *handlers.FeedSource
}

func newAPI(t *testing.T) *api {
	t.Helper()
	return newAPIWith(t, &memoryDeduper{keys: map[string]bool{}}, nil)
}

func newAPIWith(t *testing.T, dedupe handlers.WebhookDeduper, log *logger.Logger) *api {
	t.Helper()
	gin.SetMode(gin.TestMode)

	verifier := &stubVerifier{status: payment.StatusSucceeded}
	deps := services.Dependencies{
		Store:       memory.NewStore(),
		Receipts:    memoryReceipts{},
		Payments:    verifier,
		Marketplace: &config.MarketplaceConfig{DefaultCommissionRate: 0.05, Currency: "USD", DefaultSLAMinutes: 60},
		Transaction: &config.TransactionConfig{MaxAttempts: 5, Timeout: 5 * time.Second},
	}
	settlement := services.NewSettlementService(deps)
	lifecycle := services.NewServiceLifecycleService(deps, settlement)
	offers := services.NewOfferService(deps)
	history := services.NewHistoryService(deps)
	devices := &topicRecorder{}

	h := &routes.Handlers{
		Services:      handlers.NewServiceHandler(lifecycle, history),
		Offers:        handlers.NewOfferHandler(offers, services.NewAcceptanceService(deps), lifecycle),
		Settlement:    handlers.NewSettlementHandler(settlement, lifecycle, verifier, dedupe, log),
		Organizations: handlers.NewOrganizationHandler(services.NewOrganizationService(deps)),
		Devices:       handlers.NewDeviceHandler(devices),
		Health:        handlers.NewHealthHandler("test", nil),
	}
	signer := utils.NewTokenSigner("test-secret", "", time.Hour)
	router := routes.SetupRoutes(h, routes.Options{Signer: signer, Logger: logger.Discard(), AllowedOrigins: []string{"*"}})

	feeds := handlers.NewFeedSource(offers, lifecycle, history, nil)

	return &api{t: t, router: router, signer: signer, verifier: verifier, devices: devices, feeds: feeds}
}

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *utils.APIError `json:"error"`
}

func (a *api) do(method, path, userID, role string, body interface{}) (int, envelope) {
	a.t.Helper()
	var reader io.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	return a.send(req, userID, role)
}

func (a *api) send(req *http.Request, userID, role string) (int, envelope) {
	a.t.Helper()
	if userID != "" {
		token, err := a.signer.GenerateAccessToken(userID, role)
		if err != nil {
			a.t.Fatal(err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	var env envelope
	json.Unmarshal(rec.Body.Bytes(), &env)
	return rec.Code, env
}

func decode(t *testing.T, raw json.RawMessage, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
}

func (a *api) createService(requesterID string, extra map[string]interface{}) string {
	a.t.Helper()
	body := map[string]interface{}{
		"route":        []map[string]string{{"address": "Depot"}, {"address": "Site"}},
		"service_kind": "light_cargo",
	}
	for k, v := range extra {
		body[k] = v
	}
	code, env := a.do(http.MethodPost, "/api/v1/services", requesterID, utils.RoleRequester, body)
	if code != http.StatusCreated {
		a.t.Fatalf("create service: %d %+v", code, env.Error)
	}
	var svc struct {
		ID string `json:"id"`
	}
	decode(a.t, env.Data, &svc)
	return svc.ID
}

func (a *api) submitOffer(serviceID, driverID string, price float64) string {
	a.t.Helper()
	code, env := a.do(http.MethodPost, "/api/v1/services/"+serviceID+"/offers", driverID, utils.RoleDriver,
		map[string]interface{}{"offered_price": price, "estimated_minutes": 20})
	if code != http.StatusCreated {
		a.t.Fatalf("submit offer: %d %+v", code, env.Error)
	}
	var offer struct {
		ID string `json:"id"`
	}
	decode(a.t, env.Data, &offer)
	return offer.ID
}

func TestServiceFlowOverHTTP(t *testing.T) {
	a := newAPI(t)
	serviceID := a.createService("r1", nil)

	offerID := a.submitOffer(serviceID, "d1", 18.50)
	a.submitOffer(serviceID, "d2", 25)

	// A requester cannot bid.
	code, _ := a.do(http.MethodPost, "/api/v1/services/"+serviceID+"/offers", "r2", utils.RoleRequester,
		map[string]interface{}{"offered_price": 10, "estimated_minutes": 5})
	if code != http.StatusForbidden {
		t.Errorf("requester bid status = %d", code)
	}

	// Only the owner may accept.
	code, _ = a.do(http.MethodPost, "/api/v1/services/"+serviceID+"/offers/"+offerID+"/accept", "r2", utils.RoleRequester, nil)
	if code != http.StatusForbidden {
		t.Errorf("foreign accept status = %d", code)
	}

	code, env := a.do(http.MethodPost, "/api/v1/services/"+serviceID+"/offers/"+offerID+"/accept", "r1", utils.RoleRequester, nil)
	if code != http.StatusOK {
		t.Fatalf("accept: %d %+v", code, env.Error)
	}

	code, env = a.do(http.MethodPost, "/api/v1/services/"+serviceID+"/offers/"+offerID+"/accept", "r1", utils.RoleRequester, nil)
	if code != http.StatusConflict || env.Error.Code != "ALREADY_ACCEPTED" {
		t.Errorf("second accept: %d %+v", code, env.Error)
	}

	// The losing driver cannot start the trip.
	code, _ = a.do(http.MethodPost, "/api/v1/services/"+serviceID+"/start", "d2", utils.RoleDriver, nil)
	if code != http.StatusConflict {
		t.Errorf("wrong driver start status = %d", code)
	}
	code, _ = a.do(http.MethodPost, "/api/v1/services/"+serviceID+"/start", "d1", utils.RoleDriver, nil)
	if code != http.StatusOK {
		t.Fatalf("start status = %d", code)
	}

	code, _ = a.do(http.MethodPut, "/api/v1/services/"+serviceID+"/location", "d1", utils.RoleDriver,
		map[string]float64{"lat": -25.3, "lng": -57.6})
	if code != http.StatusOK {
		t.Errorf("location status = %d", code)
	}

	// Drivers cannot override the commission rate.
	code, _ = a.do(http.MethodPost, "/api/v1/services/"+serviceID+"/complete", "d1", utils.RoleDriver,
		map[string]float64{"commission_rate": 0})
	if code != http.StatusForbidden {
		t.Errorf("rate override status = %d", code)
	}

	code, env = a.do(http.MethodPost, "/api/v1/services/"+serviceID+"/complete", "d1", utils.RoleDriver, nil)
	if code != http.StatusOK {
		t.Fatalf("complete: %d %+v", code, env.Error)
	}

	code, env = a.do(http.MethodGet, "/api/v1/drivers/me/account", "d1", utils.RoleDriver, nil)
	if code != http.StatusOK {
		t.Fatalf("account status = %d", code)
	}
	var account struct {
		OwedCommission float64 `json:"owed_commission"`
	}
	decode(t, env.Data, &account)
	if account.OwedCommission != 0.93 {
		t.Errorf("owed commission = %v", account.OwedCommission)
	}

	code, _ = a.do(http.MethodPost, "/api/v1/services/"+serviceID+"/rating", "r1", utils.RoleRequester, map[string]float64{"rating": 5})
	if code != http.StatusOK {
		t.Errorf("rating status = %d", code)
	}

	code, env = a.do(http.MethodGet, "/api/v1/history", "d1", utils.RoleDriver, nil)
	if code != http.StatusOK {
		t.Fatalf("history status = %d", code)
	}
	var history []struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	decode(t, env.Data, &history)
	if len(history) != 1 || history[0].ID != serviceID || history[0].Status != "completed" {
		t.Errorf("history = %+v", history)
	}
}

func TestErrorMapping(t *testing.T) {
	a := newAPI(t)

	code, env := a.do(http.MethodGet, "/api/v1/services/missing", "r1", utils.RoleRequester, nil)
	if code != http.StatusNotFound || env.Error.Code != "NOT_FOUND" {
		t.Errorf("missing service: %d %+v", code, env.Error)
	}

	code, env = a.do(http.MethodPost, "/api/v1/services", "r1", utils.RoleRequester,
		map[string]interface{}{"route": []map[string]string{{"address": "only"}}, "service_kind": "rocket"})
	if code != http.StatusBadRequest || env.Error.Details["route"] == "" || env.Error.Details["service_kind"] == "" {
		t.Errorf("invalid create: %d %+v", code, env.Error)
	}

	serviceID := a.createService("r1", nil)
	a.submitOffer(serviceID, "d1", 10)
	code, env = a.do(http.MethodPost, "/api/v1/services/"+serviceID+"/offers", "d1", utils.RoleDriver,
		map[string]interface{}{"offered_price": 12, "estimated_minutes": 10})
	if code != http.StatusConflict || env.Error.Code != "DUPLICATE_OFFER" {
		t.Errorf("duplicate offer: %d %+v", code, env.Error)
	}

	code, _ = a.do(http.MethodGet, "/api/v1/services/"+serviceID+"/offers?sort=distance", "r1", utils.RoleRequester, nil)
	if code != http.StatusBadRequest {
		t.Errorf("bad sort status = %d", code)
	}

	code, _ = a.do(http.MethodGet, "/api/v1/history", "", "", nil)
	if code != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d", code)
	}
}

func TestCancelRequiresParticipant(t *testing.T) {
	a := newAPI(t)
	serviceID := a.createService("r1", nil)

	code, _ := a.do(http.MethodPost, "/api/v1/services/"+serviceID+"/cancel", "x9", utils.RoleRequester, map[string]string{"reason": "spam"})
	if code != http.StatusForbidden {
		t.Errorf("stranger cancel status = %d", code)
	}

	code, env := a.do(http.MethodPost, "/api/v1/services/"+serviceID+"/cancel", "r1", utils.RoleRequester, map[string]string{"reason": "changed plans"})
	if code != http.StatusOK {
		t.Fatalf("cancel: %d %+v", code, env.Error)
	}
	var svc struct {
		Status       string `json:"status"`
		Cancellation struct {
			Actor string `json:"actor"`
		} `json:"cancellation"`
	}
	decode(t, env.Data, &svc)
	if svc.Status != "cancelled" || svc.Cancellation.Actor != "r1" {
		t.Errorf("service = %+v", svc)
	}
}

func (a *api) completedInAppService() string {
	a.t.Helper()
	serviceID := a.createService("r1", map[string]interface{}{"payment_method": "in_app"})
	offerID := a.submitOffer(serviceID, "d1", 40)
	if code, env := a.do(http.MethodPost, "/api/v1/services/"+serviceID+"/offers/"+offerID+"/accept", "r1", utils.RoleRequester, nil); code != http.StatusOK {
		a.t.Fatalf("accept: %d %+v", code, env.Error)
	}
	if code, env := a.do(http.MethodPost, "/api/v1/services/"+serviceID+"/complete", "d1", utils.RoleDriver, nil); code != http.StatusOK {
		a.t.Fatalf("complete: %d %+v", code, env.Error)
	}
	return serviceID
}

func TestStripeWebhookAcknowledgesOnce(t *testing.T) {
	a := newAPI(t)
	serviceID := a.completedInAppService()

	a.verifier.event = &payment.WebhookEvent{
		EventID:   "evt_1",
		EventType: "payment_intent.succeeded",
		Payment: &payment.PaymentStatus{
			Reference: "pi_1",
			Status:    payment.StatusSucceeded,
			Amount:    40,
			Currency:  "usd",
			Metadata:  map[string]string{"service_id": serviceID},
		},
	}

	webhook := func(signature string) int {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewBufferString(`{}`))
		req.Header.Set("Stripe-Signature", signature)
		code, _ := a.send(req, "", "")
		return code
	}

	if code := webhook("forged"); code != http.StatusBadRequest {
		t.Errorf("forged webhook status = %d", code)
	}
	if code := webhook("valid"); code != http.StatusOK {
		t.Fatalf("webhook status = %d", code)
	}
	if code := webhook("valid"); code != http.StatusOK {
		t.Errorf("redelivery status = %d", code)
	}

	code, env := a.do(http.MethodGet, "/api/v1/drivers/me/ledger", "d1", utils.RoleDriver, nil)
	if code != http.StatusOK {
		t.Fatalf("ledger status = %d", code)
	}
	var entries []struct {
		Reference        string  `json:"reference"`
		CommissionAmount float64 `json:"commission_amount"`
	}
	decode(t, env.Data, &entries)
	if len(entries) != 1 || entries[0].Reference != "pi_1" || entries[0].CommissionAmount != 2 {
		t.Errorf("ledger = %+v", entries)
	}
}

func TestUploadReceipt(t *testing.T) {
	a := newAPI(t)
	serviceID := a.completedInAppService()

	upload := func(userID, contentType string) (int, envelope) {
		var body bytes.Buffer
		w := multipart.NewWriter(&body)
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="file"; filename="receipt.pdf"`)
		header.Set("Content-Type", contentType)
		part, _ := w.CreatePart(header)
		fmt.Fprint(part, "%PDF-1.4")
		w.Close()

		req := httptest.NewRequest(http.MethodPost, "/api/v1/services/"+serviceID+"/receipt", &body)
		req.Header.Set("Content-Type", w.FormDataContentType())
		return a.send(req, userID, utils.RoleDriver)
	}

	if code, _ := upload("x9", "application/pdf"); code != http.StatusForbidden {
		t.Errorf("stranger upload status = %d", code)
	}
	if code, _ := upload("d1", "text/html"); code != http.StatusBadRequest {
		t.Errorf("html upload status = %d", code)
	}

	code, env := upload("d1", "application/pdf")
	if code != http.StatusOK {
		t.Fatalf("upload: %d %+v", code, env.Error)
	}
	var svc struct {
		ClientReceipt string `json:"client_receipt"`
		ReceiptKey    string `json:"receipt_key"`
	}
	decode(t, env.Data, &svc)
	if svc.ClientReceipt == "" {
		t.Error("receipt url not stored")
	}

	receiptPath := "/api/v1/services/" + serviceID + "/receipt"
	if code, _ := a.do(http.MethodGet, receiptPath, "x9", utils.RoleDriver, nil); code != http.StatusForbidden {
		t.Errorf("stranger download status = %d", code)
	}
	code, env = a.do(http.MethodGet, receiptPath, "r1", utils.RoleRequester, nil)
	if code != http.StatusOK {
		t.Fatalf("download: %d %+v", code, env.Error)
	}
	var link struct {
		URL string `json:"url"`
	}
	decode(t, env.Data, &link)
	if link.URL != "https://files.test/signed/"+svc.ReceiptKey {
		t.Errorf("download url = %q", link.URL)
	}
}

func TestRegisterDeviceUsesUserTopic(t *testing.T) {
	a := newAPI(t)

	code, env := a.do(http.MethodPost, "/api/v1/devices", "r1", utils.RoleRequester, map[string]string{"token": "tok", "platform": "android"})
	if code != http.StatusOK {
		t.Fatalf("register: %d %+v", code, env.Error)
	}
	if len(a.devices.topics) != 1 || a.devices.topics[0] != "user-r1" {
		t.Errorf("topics = %v", a.devices.topics)
	}
}

func TestHealth(t *testing.T) {
	a := newAPI(t)
	code, _ := a.do(http.MethodGet, "/health", "", "", nil)
	if code != http.StatusOK {
		t.Errorf("health status = %d", code)
	}
}

func TestServiceVisibility(t *testing.T) {
	a := newAPI(t)
	serviceID := a.createService("r1", nil)
	offerID := a.submitOffer(serviceID, "d1", 30)
	a.submitOffer(serviceID, "d2", 35)

	get := func(path, userID, role string) int {
		code, _ := a.do(http.MethodGet, path, userID, role, nil)
		return code
	}
	servicePath := "/api/v1/services/" + serviceID
	offersPath := servicePath + "/offers"

	if code := get(servicePath, "x9", utils.RoleRequester); code != http.StatusForbidden {
		t.Errorf("stranger service status = %d", code)
	}
	if code := get(offersPath, "x9", utils.RoleRequester); code != http.StatusForbidden {
		t.Errorf("stranger offers status = %d", code)
	}
	// Drivers browse open services before bidding.
	if code := get(servicePath, "d3", utils.RoleDriver); code != http.StatusOK {
		t.Errorf("browsing driver service status = %d", code)
	}
	if code := get(offersPath, "d3", utils.RoleDriver); code != http.StatusOK {
		t.Errorf("browsing driver offers status = %d", code)
	}

	if code, env := a.do(http.MethodPost, servicePath+"/offers/"+offerID+"/accept", "r1", utils.RoleRequester, nil); code != http.StatusOK {
		t.Fatalf("accept: %d %+v", code, env.Error)
	}

	for _, path := range []string{servicePath, offersPath} {
		if code := get(path, "d2", utils.RoleDriver); code != http.StatusForbidden {
			t.Errorf("losing driver %s status = %d", path, code)
		}
		if code := get(path, "d1", utils.RoleDriver); code != http.StatusOK {
			t.Errorf("assigned driver %s status = %d", path, code)
		}
		if code := get(path, "r1", utils.RoleRequester); code != http.StatusOK {
			t.Errorf("requester %s status = %d", path, code)
		}
		if code := get(path, "ops", utils.RoleAdmin); code != http.StatusOK {
			t.Errorf("admin %s status = %d", path, code)
		}
	}
}

func TestAcknowledgePaymentRequiresRequester(t *testing.T) {
	a := newAPI(t)
	serviceID := a.completedInAppService()
	a.verifier.event = &payment.WebhookEvent{Payment: &payment.PaymentStatus{
		Reference: "pi_9",
		Status:    payment.StatusSucceeded,
		Amount:    40,
		Metadata:  map[string]string{"service_id": serviceID},
	}}
	path := "/api/v1/services/" + serviceID + "/payment"
	body := map[string]string{"payment_reference": "pi_9"}

	for _, caller := range []struct{ id, role string }{{"x9", utils.RoleRequester}, {"d1", utils.RoleDriver}} {
		if code, _ := a.do(http.MethodPost, path, caller.id, caller.role, body); code != http.StatusForbidden {
			t.Errorf("%s payment status = %d", caller.id, code)
		}
	}
	code, env := a.do(http.MethodGet, "/api/v1/drivers/me/ledger", "d1", utils.RoleDriver, nil)
	if code != http.StatusOK {
		t.Fatalf("ledger status = %d", code)
	}
	var entries []json.RawMessage
	if len(env.Data) > 0 {
		decode(t, env.Data, &entries)
	}
	if len(entries) != 0 {
		t.Fatalf("forbidden payments posted %d ledger entries", len(entries))
	}

	code, env = a.do(http.MethodPost, path, "r1", utils.RoleRequester, body)
	if code != http.StatusOK {
		t.Fatalf("requester payment: %d %+v", code, env.Error)
	}
}

func TestPaymentForAnotherServiceIsRejected(t *testing.T) {
	a := newAPI(t)
	first := a.completedInAppService()
	second := a.completedInAppService()
	a.verifier.event = &payment.WebhookEvent{Payment: &payment.PaymentStatus{
		Reference: "pi_first",
		Status:    payment.StatusSucceeded,
		Amount:    40,
		Metadata:  map[string]string{"service_id": first},
	}}

	code, env := a.do(http.MethodPost, "/api/v1/services/"+second+"/payment", "r1", utils.RoleRequester,
		map[string]string{"payment_reference": "pi_first"})
	if code != http.StatusConflict || env.Error.Code != "INVALID_STATE" {
		t.Errorf("reused intent: %d %+v", code, env.Error)
	}
}

func TestStripeWebhookLogsFailures(t *testing.T) {
	log, err := logger.NewLogger(&logger.Config{Level: logger.InfoLevel, Format: "json"})
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	log.SetOutput(&buf)

	a := newAPIWith(t, stuckDeduper{}, log)
	serviceID := a.completedInAppService()
	a.verifier.event = &payment.WebhookEvent{
		EventID:   "evt_9",
		EventType: "payment_intent.succeeded",
		Payment: &payment.PaymentStatus{
			Reference: "pi_9",
			Status:    payment.StatusSucceeded,
			Amount:    40,
			Metadata:  map[string]string{"service_id": serviceID},
		},
	}

	webhook := func(signature string) int {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewBufferString(`{}`))
		req.Header.Set("Stripe-Signature", signature)
		code, _ := a.send(req, "", "")
		return code
	}

	if code := webhook("forged"); code != http.StatusBadRequest {
		t.Errorf("forged webhook status = %d", code)
	}
	if !strings.Contains(buf.String(), `"event_type":"webhook_signature_invalid"`) {
		t.Errorf("forged signature not logged as a security event: %s", buf.String())
	}

	a.verifier.err = errors.New("gateway down")
	if code := webhook("valid"); code != http.StatusInternalServerError {
		t.Errorf("gateway failure status = %d", code)
	}
	if !strings.Contains(buf.String(), "Failed to release webhook dedupe key") {
		t.Errorf("dedupe release failure not logged: %s", buf.String())
	}
}
