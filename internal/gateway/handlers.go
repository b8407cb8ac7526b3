package gateway

import (
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"webhook-relayv1/internal/dispatch"
	"webhook-relayv1/internal/instruments"
	"webhook-relayv1/internal/logger"
	"webhook-relayv1/internal/metrics"
	"webhook-relayv1/internal/model"
	"webhook-relayv1/internal/session"
	"webhook-relayv1/internal/signals"
)

// Server holds the dependencies of the HTTP boundary.
type Server struct {
	Classifier *signals.Classifier
	Dispatcher *dispatch.Dispatcher
	Sessions   *session.Manager
	Resolver   *instruments.Resolver
	Hub        *Hub

	Prom   *metrics.Metrics      // optional
	Health *metrics.HealthStatus // optional

	Environment      string
	APIKeyConfigured bool
}

// webhookRequest is the TradingView alert body.
type webhookRequest struct {
	Action  string  `json:"action"`
	Symbol  string  `json:"symbol"`
	Signal  string  `json:"signal"`
	Price   float64 `json:"price"`
	Message string  `json:"message"`
}

// webhookResponse is the JSON rendered for every webhook delivery, success
// or failure.
type webhookResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Signal    string `json:"signal,omitempty"`
	Action    string `json:"action,omitempty"`
	Symbol    string `json:"symbol,omitempty"`
	Quantity  int    `json:"quantity,omitempty"`
	OrderID   string `json:"order_id,omitempty"`
}

// Routes builds the relay's HTTP handler.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleHome)
	mux.HandleFunc("/webhook", s.handleWebhook)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/test", s.handleTest)
	mux.HandleFunc("/health", s.handleHealth)
	if s.Hub != nil {
		mux.HandleFunc("/ws", s.Hub.HandleWS)
	}
	mux.Handle("/metrics", promhttp.Handler())

	return recoverer(mux)
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	resp := map[string]interface{}{
		"message": "TradingView to Angel One relay",
		"status":  "running",
		"endpoints": map[string]string{
			"webhook": "/webhook",
			"status":  "/status",
			"login":   "/login",
			"test":    "/test",
			"health":  "/health",
			"stream":  "/ws",
			"metrics": "/metrics",
		},
	}
	if s.Resolver != nil {
		resp["symbols"] = s.Resolver.Symbols()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if s.Prom != nil {
		s.Prom.WebhooksTotal.Inc()
	}
	if s.Health != nil {
		s.Health.SetLastWebhook(time.Now())
	}

	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.rejectWebhook(w, "No data received")
		return
	}

	log.Printf("[gateway] webhook received: action=%s symbol=%s signal=%s", req.Action, req.Symbol, req.Signal)

	// The action gate is case-sensitive, matching the alert template contract.
	if req.Action != model.ActionBuy && req.Action != model.ActionSell {
		s.rejectWebhook(w, "Invalid action")
		return
	}

	symbol := req.Symbol
	if symbol == "" {
		symbol = "NIFTY"
	}
	quantity := s.Classifier.QuantityFor(req.Signal)

	ctx := logger.WithTraceID(r.Context(), logger.GenerateTraceID(symbol, time.Now()))
	attrs := append(logger.LogWithTrace(ctx),
		slog.String("action", req.Action),
		slog.String("symbol", symbol),
		slog.String("signal", req.Signal),
		slog.Int("quantity", quantity))
	slog.Info("processing trade", attrs...)

	start := time.Now()
	outcome := s.Dispatcher.PlaceOrder(model.TradeRequest{
		Symbol:   symbol,
		Action:   req.Action,
		Quantity: quantity,
		Price:    req.Price,
		Signal:   req.Signal,
		Message:  req.Message,
	})
	if s.Prom != nil {
		s.Prom.DispatchDur.Observe(time.Since(start).Seconds())
	}
	if s.Health != nil && outcome.OrderID != "" {
		s.Health.SetLastOrderID(outcome.OrderID)
	}

	resp := webhookResponse{
		Status:    "error",
		Message:   outcome.Message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Signal:    req.Signal,
		Action:    req.Action,
		Symbol:    symbol,
		Quantity:  quantity,
		OrderID:   outcome.OrderID,
	}
	code := http.StatusBadRequest
	if outcome.Success {
		resp.Status = "success"
		code = http.StatusOK
	}
	writeJSON(w, code, resp)
}

func (s *Server) rejectWebhook(w http.ResponseWriter, msg string) {
	if s.Prom != nil {
		s.Prom.WebhooksRejected.Inc()
	}
	writeJSON(w, http.StatusBadRequest, webhookResponse{
		Status:    "error",
		Message:   msg,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	resp := map[string]interface{}{
		"status":             "running",
		"timestamp":          time.Now().UTC().Format(time.RFC3339),
		"logged_in":          s.Sessions.LoggedIn(),
		"api_key_configured": s.APIKeyConfigured,
		"environment":        s.Environment,
	}
	if s.Health != nil {
		startedAt, lastWebhookAt, lastOrderID := s.Health.Snapshot()
		resp["uptime"] = time.Since(startedAt).Round(time.Second).String()
		if !lastWebhookAt.IsZero() {
			resp["last_webhook_at"] = lastWebhookAt.UTC().Format(time.RFC3339)
		}
		if lastOrderID != "" {
			resp["last_order_id"] = lastOrderID
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	ok := s.Sessions.ForceLogin()
	status, msg := "success", "Login successful"
	if !ok {
		status, msg = "error", "Login failed"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    status,
		"message":   msg,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleTest(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	// Missing or malformed body falls back to a 1-lot NIFTY buy.
	req := struct {
		Symbol   string `json:"symbol"`
		Action   string `json:"action"`
		Quantity int    `json:"quantity"`
	}{}
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Symbol == "" {
		req.Symbol = "NIFTY"
	}
	if req.Action == "" {
		req.Action = model.ActionBuy
	}
	if req.Quantity <= 0 {
		req.Quantity = 1
	}

	outcome := s.Dispatcher.PlaceOrder(model.TradeRequest{
		Symbol:   req.Symbol,
		Action:   req.Action,
		Quantity: req.Quantity,
	})
	writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// recoverer converts panics into a 500 JSON body instead of a dropped
// connection.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("[gateway] panic serving %s %s: %v", r.Method, r.URL.Path, rec)
				writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
					"status":  "error",
					"message": fmt.Sprintf("%v", rec),
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{
		"status":  "error",
		"message": "Method not allowed",
	})
	return false
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
