package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"webhook-relayv1/config"
	"webhook-relayv1/internal/dispatch"
	"webhook-relayv1/internal/gateway"
	"webhook-relayv1/internal/instruments"
	"webhook-relayv1/internal/logger"
	"webhook-relayv1/internal/metrics"
	"webhook-relayv1/internal/model"
	"webhook-relayv1/internal/notification"
	"webhook-relayv1/internal/session"
	"webhook-relayv1/internal/signals"
	"webhook-relayv1/pkg/smartconnect"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[relay] starting TradingView to Angel One relay...")
	logger.Init("webhook-relay", slog.LevelInfo)

	// ---- Load config from env ----
	cfg := config.Load()
	if !cfg.CredentialsConfigured() {
		log.Println("[relay] WARNING: Angel One credentials not configured — orders will fail until they are set")
	}

	// ---- Lookup tables (built-in defaults + optional YAML overrides) ----
	tables, err := config.LoadTables(cfg.TablesPath)
	if err != nil {
		log.Fatalf("[relay] tables load failed: %v", err)
	}
	var instrumentOverrides map[string]string
	var signalOverrides map[string]int
	if tables != nil {
		instrumentOverrides = tables.Instruments
		signalOverrides = tables.SignalQuantities
		log.Printf("[relay] loaded table overrides from %s (%d instruments, %d signals)",
			cfg.TablesPath, len(tables.Instruments), len(tables.SignalQuantities))
	}
	resolver := instruments.New(instrumentOverrides)
	classifier := signals.New(signalOverrides, cfg.DefaultQty)

	// ---- Metrics & health ----
	prom := metrics.New()
	health := metrics.NewHealthStatus()

	// ---- Broker client & session manager ----
	sc := smartconnect.New(smartconnect.Config{APIKey: cfg.AngelAPIKey})
	sessions := session.NewManager(sc, session.Credentials{
		ClientCode: cfg.AngelClientCode,
		Password:   cfg.AngelPassword,
		TOTPSecret: cfg.AngelTOTPSecret,
	})
	sessions.OnLoginAttempt = func(success bool) {
		prom.LoginAttempts.Inc()
		if !success {
			prom.LoginFailures.Inc()
		}
	}

	// ---- Notifiers ----
	backends := []notification.Notifier{notification.NewLogNotifier()}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		backends = append(backends, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
		log.Println("[relay] telegram alerts enabled")
	}
	if cfg.AlertWebhookURL != "" {
		backends = append(backends, notification.NewWebhookNotifier(cfg.AlertWebhookURL))
		log.Println("[relay] webhook alerts enabled")
	}
	notifier := notification.NewMulti(backends...)

	// ---- Order-event stream hub ----
	hub := gateway.NewHub()
	hub.OnClientChange = func(count int) {
		prom.WSClients.Set(float64(count))
	}

	// ---- Dispatcher ----
	dispatcher := dispatch.New(sc, sessions, resolver, dispatch.Config{
		OrderType:   cfg.OrderType,
		ProductType: cfg.ProductType,
		DefaultQty:  cfg.DefaultQty,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher.OnOutcome = func(ev model.OrderEvent) {
		if ev.Outcome.Success {
			prom.OrdersPlaced.WithLabelValues(ev.Action).Inc()
		} else {
			prom.OrdersFailed.Inc()
			alertCtx, alertCancel := context.WithTimeout(ctx, 10*time.Second)
			_ = notifier.Send(alertCtx, notification.Alert{
				Level:   notification.AlertWarning,
				Title:   "Order dispatch failed",
				Message: fmt.Sprintf("%s %s (signal=%s): %s", ev.Action, ev.Symbol, ev.Signal, ev.Outcome.Message),
			})
			alertCancel()
		}
		hub.Broadcast(ev)
	}

	// ---- HTTP boundary ----
	srv := &gateway.Server{
		Classifier:       classifier,
		Dispatcher:       dispatcher,
		Sessions:         sessions,
		Resolver:         resolver,
		Hub:              hub,
		Prom:             prom,
		Health:           health,
		Environment:      cfg.Environment,
		APIKeyConfigured: cfg.AngelAPIKey != config.PlaceholderAPIKey,
	}

	httpSrv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Routes(),
	}

	// ---- Login on startup (best effort, same as the original relay) ----
	if cfg.CredentialsConfigured() {
		if sessions.Ensure() {
			log.Println("[relay] startup login succeeded")
		} else {
			log.Println("[relay] startup login failed — will retry on first order")
		}
	}

	// Optional dedicated metrics listener, for deployments that keep
	// /metrics off the public port.
	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			log.Printf("[relay] metrics listening on %s", cfg.MetricsAddr)
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				log.Printf("[relay] metrics server error: %v", err)
			}
		}()
	}

	go func() {
		log.Printf("[relay] listening on %s", cfg.ListenAddr)
		if err := httpSrv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[relay] server error: %v", err)
		}
	}()

	// ---- Wait for shutdown signal ----
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("[relay] shutdown signal received, cleaning up...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[relay] http shutdown: %v", err)
	}
	sessions.Logout()

	log.Println("[relay] shutdown complete.")
}
