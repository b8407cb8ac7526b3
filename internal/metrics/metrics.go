// Package metrics exposes Prometheus instrumentation and a health snapshot
// for the relay.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the relay.
type Metrics struct {
	WebhooksTotal    prometheus.Counter
	WebhooksRejected prometheus.Counter

	OrdersPlaced *prometheus.CounterVec // labels: action
	OrdersFailed prometheus.Counter

	LoginAttempts prometheus.Counter
	LoginFailures prometheus.Counter

	DispatchDur prometheus.Histogram

	WSClients prometheus.Gauge
}

// New registers and returns all relay metrics.
func New() *Metrics {
	m := &Metrics{
		WebhooksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_webhooks_total",
			Help: "Total webhook deliveries received",
		}),
		WebhooksRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_webhooks_rejected_total",
			Help: "Webhook deliveries rejected at the HTTP boundary (bad body or action)",
		}),
		OrdersPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_orders_placed_total",
			Help: "Orders accepted by the broker (by transaction side)",
		}, []string{"action"}),
		OrdersFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_orders_failed_total",
			Help: "Dispatch attempts that did not yield a broker order id",
		}),
		LoginAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_login_attempts_total",
			Help: "Broker login attempts",
		}),
		LoginFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_login_failures_total",
			Help: "Broker login attempts that failed",
		}),
		DispatchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_dispatch_duration_seconds",
			Help:    "Wall time of a full dispatch attempt including broker calls",
			Buckets: prometheus.DefBuckets,
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_ws_clients",
			Help: "Connected order-event stream clients",
		}),
	}

	prometheus.MustRegister(
		m.WebhooksTotal,
		m.WebhooksRejected,
		m.OrdersPlaced,
		m.OrdersFailed,
		m.LoginAttempts,
		m.LoginFailures,
		m.DispatchDur,
		m.WSClients,
	)

	return m
}

// HealthStatus tracks relay liveness details for /status and the service
// descriptor.
type HealthStatus struct {
	mu sync.RWMutex

	StartedAt     time.Time
	LastWebhookAt time.Time
	LastOrderID   string
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

func (h *HealthStatus) SetLastWebhook(t time.Time) {
	h.mu.Lock()
	h.LastWebhookAt = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastOrderID(id string) {
	h.mu.Lock()
	h.LastOrderID = id
	h.mu.Unlock()
}

// Snapshot returns a consistent copy of the mutable fields.
func (h *HealthStatus) Snapshot() (startedAt, lastWebhookAt time.Time, lastOrderID string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.StartedAt, h.LastWebhookAt, h.LastOrderID
}
