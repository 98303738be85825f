package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	buyerrepo "github.com/smallbiznis/paysettle/internal/buyer/repository"
	"github.com/smallbiznis/paysettle/internal/clock"
	"github.com/smallbiznis/paysettle/internal/config"
	"github.com/smallbiznis/paysettle/internal/gateway"
	"github.com/smallbiznis/paysettle/internal/observability"
	orderdomain "github.com/smallbiznis/paysettle/internal/order/domain"
	orderrepo "github.com/smallbiznis/paysettle/internal/order/repository"
	orderservice "github.com/smallbiznis/paysettle/internal/order/service"
	"github.com/smallbiznis/paysettle/internal/payment/callback"
	paymentdomain "github.com/smallbiznis/paysettle/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/paysettle/internal/payment/repository"
	paymentservice "github.com/smallbiznis/paysettle/internal/payment/service"
	"github.com/smallbiznis/paysettle/internal/purchasable"
	"github.com/smallbiznis/paysettle/internal/purchasable/competition"
	"github.com/smallbiznis/paysettle/internal/receipt"
	"github.com/smallbiznis/paysettle/internal/testutil"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testChecksumKey = "server-test-key"

func init() {
	gin.SetMode(gin.TestMode)
}

type stubGateway struct {
	verifier *gateway.Client
	clock    clock.Clock
	linkErr  error
	info     *gateway.PaymentInfo
}

func (g *stubGateway) RequestCheckoutLink(_ context.Context, req gateway.CheckoutRequest) (*gateway.CheckoutLink, error) {
	if g.linkErr != nil {
		return nil, g.linkErr
	}
	link := gateway.MockLink(req.OrderCode, g.clock.Now().Add(gateway.CheckoutTTL))
	link.PaymentLinkID = "pl_" + strconv.FormatInt(req.OrderCode, 10)
	link.Mock = false
	return link, nil
}

func (g *stubGateway) GetPaymentInfo(_ context.Context, orderCode int64) (*gateway.PaymentInfo, error) {
	if g.info == nil {
		return nil, &gateway.Error{Op: "get_payment_info", Err: gateway.ErrNotConfigured}
	}
	return g.info, nil
}

func (g *stubGateway) VerifyCallback(payload []byte, signature string) error {
	return g.verifier.VerifyCallback(payload, signature)
}

type testEnv struct {
	engine  *gin.Engine
	db      *gorm.DB
	gateway *stubGateway
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	conn := testutil.OpenDB(t)
	testutil.SeedUser(t, conn, 10, "Linh", "linh@example.com")
	testutil.SeedCompetition(t, conn, 42, "Spring Open", 150000)

	node, err := snowflake.NewNode(7)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	clk := clock.NewFakeClock(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))
	registry := purchasable.NewRegistry(competition.New(conn, clk))
	settings := config.NewStaticSettlementConfigHolder(config.DefaultSettlementConfig())
	gw := &stubGateway{
		verifier: gateway.New(gateway.Config{ChecksumKey: testChecksumKey}, zap.NewNop(), clk),
		clock:    clk,
	}

	orders := orderservice.New(orderservice.Params{
		DB:     conn,
		Log:    zap.NewNop(),
		GenID:  node,
		Repo:   orderrepo.Provide(),
		Buyers: buyerrepo.Provide(conn),
		Items:  registry,
		Clock:  clk,
	})
	payments := paymentservice.NewService(paymentservice.Params{
		DB:       conn,
		Log:      zap.NewNop(),
		GenID:    node,
		Repo:     paymentrepo.Provide(),
		Orders:   orderrepo.Provide(),
		Buyers:   buyerrepo.Provide(conn),
		Items:    registry,
		Gateway:  gw,
		Statuses: callback.NewStatusTable(settings),
		Settings: settings,
		Clock:    clk,
	})
	receipts := receipt.NewService(receipt.Params{
		DB:       conn,
		Log:      zap.NewNop(),
		Payments: paymentrepo.Provide(),
		Orders:   orderrepo.Provide(),
		Buyers:   buyerrepo.Provide(conn),
	})

	engine := NewEngine(observability.Config{}, nil)
	NewServer(ServerParams{
		Gin:        engine,
		Log:        zap.NewNop(),
		OrderSvc:   orders,
		PaymentSvc: payments,
		ReceiptSvc: receipts,
	})

	return &testEnv{engine: engine, db: conn, gateway: gw}
}

func (e *testEnv) do(t *testing.T, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)
	return rec
}

// checkout creates an order for competition 42 and opens a payment for it.
func (e *testEnv) checkout(t *testing.T) paymentdomain.CheckoutResult {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/orders", []byte(`{"buyer_id":"10","lines":[{"item_kind":"competition","item_id":"42","quantity":1}]}`), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create order: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Data orderdomain.Order `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode order: %v", err)
	}
	if created.Data.OrderNumber != "2024060100001" || created.Data.TotalAmount != 150000 {
		t.Fatalf("unexpected order: %+v", created.Data)
	}

	rec = e.do(t, http.MethodPost, "/payments/checkout", []byte(`{"order_id":"`+created.Data.ID.String()+`"}`), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("checkout: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var result paymentdomain.CheckoutResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode checkout: %v", err)
	}
	return result
}

func (e *testEnv) paymentStatus(t *testing.T, code int64) string {
	t.Helper()
	var status string
	if err := e.db.Raw(`SELECT status FROM payments WHERE order_code = ?`, code).Scan(&status).Error; err != nil {
		t.Fatalf("read payment: %v", err)
	}
	return status
}

func errorType(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return resp.Error
}

func TestCheckoutIssuesLink(t *testing.T) {
	env := newTestEnv(t)
	result := env.checkout(t)

	if result.OrderCode != 100001 {
		t.Fatalf("expected order code 100001, got %d", result.OrderCode)
	}
	if result.PaymentLinkID != "pl_100001" || result.CheckoutURL == "" || result.QRCode == "" {
		t.Fatalf("unexpected checkout result: %+v", result)
	}

	rec := env.do(t, http.MethodGet, "/payments/100001", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"pending"`) {
		t.Fatalf("expected pending payment, got %s", rec.Body.String())
	}
}

func TestCheckoutRequiresOrderID(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/payments/checkout", []byte(`{}`), nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	payload := errorType(t, rec)
	if payload.Type != "validation_error" || len(payload.Errors) != 1 || payload.Errors[0].Field != "order_id" {
		t.Fatalf("unexpected error payload: %+v", payload)
	}
}

func TestCheckoutGatewayFailure(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.linkErr = &gateway.Error{Op: "create_payment_link", StatusCode: http.StatusServiceUnavailable}

	rec := env.do(t, http.MethodPost, "/orders", []byte(`{"buyer_id":"10","lines":[{"item_kind":"competition","item_id":"42","quantity":1}]}`), nil)
	var created struct {
		Data orderdomain.Order `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode order: %v", err)
	}

	rec = env.do(t, http.MethodPost, "/payments/checkout", []byte(`{"order_id":"`+created.Data.ID.String()+`"}`), nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", rec.Code, rec.Body.String())
	}
	if payload := errorType(t, rec); payload.Type != "gateway_error" {
		t.Fatalf("expected gateway_error, got %+v", payload)
	}
}

func TestCreateOrderValidation(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name   string
		body   string
		status int
	}{
		{name: "no lines", body: `{"buyer_id":"10","lines":[]}`, status: http.StatusBadRequest},
		{name: "unknown kind", body: `{"buyer_id":"10","lines":[{"item_kind":"voucher","item_id":"42","quantity":1}]}`, status: http.StatusBadRequest},
		{name: "unknown buyer", body: `{"buyer_id":"99","lines":[{"item_kind":"competition","item_id":"42","quantity":1}]}`, status: http.StatusNotFound},
		{name: "unknown item", body: `{"buyer_id":"10","lines":[{"item_kind":"competition","item_id":"77","quantity":1}]}`, status: http.StatusNotFound},
		{name: "malformed", body: `{"buyer_id":`, status: http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/orders", []byte(tc.body), nil)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestWebhookPaidAndReplay(t *testing.T) {
	env := newTestEnv(t)
	env.checkout(t)

	body := []byte(`{"orderCode":100001,"status":"PAID","amount":150000,"fee":0}`)
	headers := map[string]string{signatureHeader: gateway.Sign(testChecksumKey, body)}

	rec := env.do(t, http.MethodPost, "/payments/webhook", body, headers)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"outcome":"applied"`) {
		t.Fatalf("expected applied, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/payments/webhook", body, headers)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"outcome":"replayed"`) {
		t.Fatalf("expected replayed, got %d: %s", rec.Code, rec.Body.String())
	}

	if status := env.paymentStatus(t, 100001); status != "paid" {
		t.Fatalf("expected paid payment, got %s", status)
	}

	rec = env.do(t, http.MethodGet, "/payments/100001/events", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var events struct {
		Data []paymentdomain.SettlementEvent `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &events); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(events.Data) != 1 || events.Data[0].IdempotencyKey != "100001|PAID|150000" || events.Data[0].Source != paymentdomain.SourceWebhook {
		t.Fatalf("unexpected settlement log: %+v", events.Data)
	}
	if status := testutil.CompetitionStatus(t, env.db, 42); status != competition.PayingStatusPaid {
		t.Fatalf("expected paid competition, got %s", status)
	}
}

func TestWebhookWithoutOrderCodeReturns400(t *testing.T) {
	env := newTestEnv(t)
	env.checkout(t)

	body := []byte(`{"status":"PAID","amount":150000}`)
	rec := env.do(t, http.MethodPost, "/payments/webhook", body, map[string]string{
		signatureHeader: gateway.Sign(testChecksumKey, body),
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if status := env.paymentStatus(t, 100001); status != "pending" {
		t.Fatalf("payment must stay pending, got %s", status)
	}
}

func TestWebhookSignatureMismatchReturns400(t *testing.T) {
	env := newTestEnv(t)
	env.checkout(t)

	body := []byte(`{"orderCode":100001,"status":"PAID","amount":150000}`)
	rec := env.do(t, http.MethodPost, "/payments/webhook", body, map[string]string{
		signatureHeader: gateway.Sign("another-key", body),
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if payload := errorType(t, rec); payload.Type != "signature_error" {
		t.Fatalf("expected signature_error, got %+v", payload)
	}
	if status := env.paymentStatus(t, 100001); status != "pending" {
		t.Fatalf("payment must stay pending, got %s", status)
	}
}

func TestWebhookUnknownPaymentReturns404(t *testing.T) {
	env := newTestEnv(t)

	body := []byte(`{"orderCode":555555,"status":"PAID"}`)
	rec := env.do(t, http.MethodPost, "/payments/webhook", body, map[string]string{
		signatureHeader: gateway.Sign(testChecksumKey, body),
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestWebhookPings(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/payments/webhook", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for GET ping, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/payments/webhook", []byte(`{"code":"00","desc":"success"}`), nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"outcome":"ignored"`) {
		t.Fatalf("expected ignored ping, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/payments/webhook", []byte(`{"orderCode":`), nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", rec.Code)
	}
}

func TestReturnAndCancelPages(t *testing.T) {
	env := newTestEnv(t)
	env.checkout(t)

	rec := env.do(t, http.MethodGet, "/payments/cancel?orderCode=100001&id=pl_100001", nil, nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Payment cancelled") {
		t.Fatalf("expected cancel page, got %d: %s", rec.Code, rec.Body.String())
	}
	if status := env.paymentStatus(t, 100001); status != "cancelled" {
		t.Fatalf("expected cancelled payment, got %s", status)
	}

	rec = env.do(t, http.MethodGet, "/payments/return?orderCode=100001&status=PAID", nil, nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Payment cancelled") {
		t.Fatalf("a terminal payment must keep its status, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/payments/return?status=PAID", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without a code, got %d", rec.Code)
	}
}

func TestSyncAndReceipt(t *testing.T) {
	env := newTestEnv(t)
	env.checkout(t)

	rec := env.do(t, http.MethodGet, "/payments/100001/receipt", nil, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for an unpaid receipt, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/payments/100001/sync", nil, nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 when the gateway cannot answer, got %d", rec.Code)
	}

	env.gateway.info = &gateway.PaymentInfo{OrderCode: 100001, Status: "PAID", Amount: 150000, AmountPaid: 150000, Raw: []byte(`{"status":"PAID"}`)}
	rec = env.do(t, http.MethodPost, "/payments/100001/sync", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result paymentdomain.ResyncResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.PreviousStatus != paymentdomain.StatusPending || result.NewStatus != paymentdomain.StatusPaid {
		t.Fatalf("unexpected resync result: %+v", result)
	}

	rec = env.do(t, http.MethodGet, "/payments/100001/receipt", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("expected pdf content type, got %q", ct)
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "receipt-2024060100001-linh.pdf") {
		t.Fatalf("unexpected disposition %q", rec.Header().Get("Content-Disposition"))
	}
}

func TestOrderCodeParamValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/payments/abc/sync", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/payments/424242", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestMapError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		kind   string
	}{
		{err: orderdomain.ErrInvalidCurrency, status: http.StatusBadRequest, kind: "validation_error"},
		{err: paymentdomain.ErrMissingCorrelationCode, status: http.StatusBadRequest, kind: "validation_error"},
		{err: paymentdomain.ErrInvalidSignature, status: http.StatusBadRequest, kind: "signature_error"},
		{err: paymentdomain.ErrPaymentNotFound, status: http.StatusNotFound, kind: "not_found"},
		{err: paymentdomain.ErrOrderAlreadyPaid, status: http.StatusConflict, kind: "conflict"},
		{err: paymentdomain.ErrResyncInProgress, status: http.StatusConflict, kind: "conflict"},
		{err: &gateway.Error{Op: "create_payment_link"}, status: http.StatusBadGateway, kind: "gateway_error"},
		{err: ErrRateLimited, status: http.StatusTooManyRequests, kind: "rate_limited"},
		{err: errors.New("boom"), status: http.StatusInternalServerError, kind: "internal_error"},
	}
	for _, tc := range cases {
		status, payload := mapError(tc.err)
		if status != tc.status || payload.Type != tc.kind {
			t.Fatalf("%v: expected %d/%s, got %d/%s", tc.err, tc.status, tc.kind, status, payload.Type)
		}
	}

	status, payload := mapError(orderdomain.ErrInvalidQuantity)
	if status != http.StatusBadRequest || payload.Errors[0].Field != "quantity" {
		t.Fatalf("unexpected quantity mapping: %d %+v", status, payload)
	}
}
