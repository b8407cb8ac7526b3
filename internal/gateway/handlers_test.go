package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"webhook-relayv1/internal/dispatch"
	"webhook-relayv1/internal/instruments"
	"webhook-relayv1/internal/session"
	"webhook-relayv1/internal/signals"
	"webhook-relayv1/pkg/smartconnect"
)

const testTOTPSecret = "JBSWY3DPEHPK3PXP"

type fakeBroker struct {
	mu         sync.Mutex
	loginCalls int
	placeCalls int
	failLogin  bool
	failPlace  bool
	lastParams smartconnect.OrderParams
}

func (b *fakeBroker) GenerateSession(clientCode, password, totp string) (*smartconnect.SessionData, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loginCalls++
	if b.failLogin {
		return nil, errors.New("login failed")
	}
	return &smartconnect.SessionData{JWTToken: "jwt", RefreshToken: "rt", FeedToken: "ft"}, nil
}

func (b *fakeBroker) TerminateSession(clientCode string) error { return nil }

func (b *fakeBroker) PlaceOrder(params smartconnect.OrderParams) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.placeCalls++
	b.lastParams = params
	if b.failPlace {
		return "", errors.New("place order failed")
	}
	return "ORD123456", nil
}

func newTestServer(b *fakeBroker) *Server {
	sm := session.NewManager(b, session.Credentials{
		ClientCode: "A123456",
		Password:   "1234",
		TOTPSecret: testTOTPSecret,
	})
	resolver := instruments.New(nil)
	return &Server{
		Classifier:       signals.New(nil, 1),
		Dispatcher:       dispatch.New(b, sm, resolver, dispatch.Config{}),
		Sessions:         sm,
		Resolver:         resolver,
		Hub:              NewHub(),
		Environment:      "test",
		APIKeyConfigured: true,
	}
}

func postJSON(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	if body == "" {
		rdr = bytes.NewReader(nil)
	} else {
		rdr = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(http.MethodPost, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("invalid JSON response: %v (%s)", err, w.Body.String())
	}
	return m
}

func TestWebhook_StrongSignalBuy(t *testing.T) {
	b := &fakeBroker{}
	h := newTestServer(b).Routes()

	w := postJSON(t, h, "/webhook", `{"action":"BUY","symbol":"RELIANCE","signal":"2G_BOX"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["status"] != "success" {
		t.Errorf("expected status success, got %v", body["status"])
	}
	if body["quantity"] != float64(2) {
		t.Errorf("expected quantity 2, got %v", body["quantity"])
	}
	if body["order_id"] != "ORD123456" {
		t.Errorf("expected order_id, got %v", body["order_id"])
	}
	if body["timestamp"] == nil {
		t.Error("expected timestamp in response")
	}
	if b.lastParams.SymbolToken != "2885" {
		t.Errorf("expected token 2885, got %q", b.lastParams.SymbolToken)
	}
	if b.lastParams.Quantity != "2" {
		t.Errorf("expected broker quantity 2, got %q", b.lastParams.Quantity)
	}
}

func TestWebhook_UnknownSymbol(t *testing.T) {
	b := &fakeBroker{}
	h := newTestServer(b).Routes()

	w := postJSON(t, h, "/webhook", `{"action":"SELL","symbol":"UNKNOWNSYM"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if msg, _ := body["message"].(string); !strings.Contains(msg, "Symbol token not found for UNKNOWNSYM") {
		t.Errorf("unexpected message: %v", body["message"])
	}
	if b.placeCalls != 0 {
		t.Errorf("broker must not be called for unknown symbol, got %d calls", b.placeCalls)
	}
}

// Non-BUY/SELL actions are rejected at the boundary before the dispatcher
// ever runs: no login, no order.
func TestWebhook_InvalidAction(t *testing.T) {
	b := &fakeBroker{}
	h := newTestServer(b).Routes()

	for _, body := range []string{
		`{"action":"HOLD"}`,
		`{"action":"buy","symbol":"SBIN"}`,
		`{"symbol":"SBIN"}`,
	} {
		w := postJSON(t, h, "/webhook", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %s: expected 400, got %d", body, w.Code)
			continue
		}
		resp := decodeBody(t, w)
		if resp["message"] != "Invalid action" {
			t.Errorf("body %s: expected 'Invalid action', got %v", body, resp["message"])
		}
	}
	if b.loginCalls != 0 || b.placeCalls != 0 {
		t.Errorf("broker must not be touched for invalid actions: logins=%d places=%d",
			b.loginCalls, b.placeCalls)
	}
}

func TestWebhook_EmptyBody(t *testing.T) {
	h := newTestServer(&fakeBroker{}).Routes()

	w := postJSON(t, h, "/webhook", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["message"] != "No data received" {
		t.Errorf("expected 'No data received', got %v", body["message"])
	}
}

func TestWebhook_DefaultSymbol(t *testing.T) {
	b := &fakeBroker{}
	h := newTestServer(b).Routes()

	w := postJSON(t, h, "/webhook", `{"action":"BUY"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["symbol"] != "NIFTY" {
		t.Errorf("expected default symbol NIFTY, got %v", body["symbol"])
	}
	if b.lastParams.SymbolToken != "99926000" {
		t.Errorf("expected NIFTY token, got %q", b.lastParams.SymbolToken)
	}
}

func TestWebhook_LoginFailure(t *testing.T) {
	b := &fakeBroker{failLogin: true}
	h := newTestServer(b).Routes()

	w := postJSON(t, h, "/webhook", `{"action":"BUY","symbol":"SBIN"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["message"] != "Login failed" {
		t.Errorf("expected 'Login failed', got %v", body["message"])
	}
	if b.placeCalls != 0 {
		t.Errorf("order endpoint must not be reached, got %d calls", b.placeCalls)
	}
}

func TestStatus(t *testing.T) {
	srv := newTestServer(&fakeBroker{})
	h := srv.Routes()

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["status"] != "running" {
		t.Errorf("expected status running, got %v", body["status"])
	}
	if body["logged_in"] != false {
		t.Errorf("expected logged_in false, got %v", body["logged_in"])
	}
	if body["api_key_configured"] != true {
		t.Errorf("expected api_key_configured true, got %v", body["api_key_configured"])
	}
	if body["environment"] != "test" {
		t.Errorf("expected environment test, got %v", body["environment"])
	}

	// logged_in flips after a successful manual login
	postJSON(t, h, "/login", "")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	if body := decodeBody(t, w); body["logged_in"] != true {
		t.Errorf("expected logged_in true after /login, got %v", body["logged_in"])
	}
}

func TestLogin(t *testing.T) {
	b := &fakeBroker{failLogin: true}
	h := newTestServer(b).Routes()

	w := postJSON(t, h, "/login", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["status"] != "error" || body["message"] != "Login failed" {
		t.Errorf("unexpected failure body: %v", body)
	}

	b.failLogin = false
	w = postJSON(t, h, "/login", "")
	body = decodeBody(t, w)
	if body["status"] != "success" || body["message"] != "Login successful" {
		t.Errorf("unexpected success body: %v", body)
	}
}

func TestTest_Defaults(t *testing.T) {
	b := &fakeBroker{}
	h := newTestServer(b).Routes()

	w := postJSON(t, h, "/test", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["success"] != true {
		t.Errorf("expected raw outcome success, got %v", body)
	}
	if b.lastParams.TradingSymbol != "NIFTY" || b.lastParams.TransactionType != "BUY" || b.lastParams.Quantity != "1" {
		t.Errorf("unexpected defaults: %+v", b.lastParams)
	}
}

// /test bypasses the boundary's action gate, so unknown actions reach the
// dispatcher's SELL coercion.
func TestTest_ActionCoercion(t *testing.T) {
	b := &fakeBroker{}
	h := newTestServer(b).Routes()

	postJSON(t, h, "/test", `{"symbol":"SBIN","action":"HOLD"}`)
	if b.lastParams.TransactionType != "SELL" {
		t.Errorf("expected coerced SELL, got %q", b.lastParams.TransactionType)
	}
}

func TestHealth(t *testing.T) {
	h := newTestServer(&fakeBroker{}).Routes()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["status"] != "healthy" {
		t.Errorf("expected healthy, got %v", body["status"])
	}
}

func TestHome(t *testing.T) {
	h := newTestServer(&fakeBroker{}).Routes()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["status"] != "running" {
		t.Errorf("expected running, got %v", body["status"])
	}
	if _, ok := body["endpoints"].(map[string]interface{}); !ok {
		t.Errorf("expected endpoint list, got %v", body["endpoints"])
	}
	syms, ok := body["symbols"].([]interface{})
	if !ok || len(syms) == 0 {
		t.Errorf("expected supported symbol list, got %v", body["symbols"])
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestServer(&fakeBroker{}).Routes()

	req := httptest.NewRequest(http.MethodGet, "/webhook", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /webhook: expected 405, got %d", w.Code)
	}

	w = postJSON(t, h, "/status", "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /status: expected 405, got %d", w.Code)
	}
}
