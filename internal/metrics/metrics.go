// Package metrics provides Prometheus instrumentation for the trader.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CyclesTotal counts trading cycles by outcome (ok, error, panic).
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edge_cycles_total",
		Help: "Trading cycles by outcome",
	}, []string{"outcome"})

	// CycleDuration tracks wall time of one cycle including order submission.
	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "edge_cycle_duration_seconds",
		Help:    "Trading cycle duration in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	// DecisionsTotal counts per-cycle decisions by action.
	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edge_decisions_total",
		Help: "Decisions by action",
	}, []string{"action"})

	// GuardBlocks counts cycles in which each guard vetoed entry.
	GuardBlocks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edge_guard_blocks_total",
		Help: "Entry vetoes by guard",
	}, []string{"guard"})

	// ExitsTotal counts exits taken by trigger.
	ExitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edge_exits_total",
		Help: "Exits taken by trigger",
	}, []string{"trigger"})

	// OrdersTotal counts order submissions by mode and result.
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edge_orders_total",
		Help: "Order submissions by mode and result",
	}, []string{"mode", "result"})

	// OrderLatency tracks submission latency including retries.
	OrderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "edge_order_latency_seconds",
		Help:    "Order submission latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"mode"})

	// ContractsFilled counts filled contracts by side.
	ContractsFilled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edge_contracts_filled_total",
		Help: "Filled contracts by side",
	}, []string{"side"})

	// Balance is the current account balance in dollars.
	Balance = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "edge_balance_dollars",
		Help: "Account balance in dollars",
	}, []string{"mode"})

	// Exposure is the market value of open positions in dollars.
	Exposure = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "edge_exposure_dollars",
		Help: "Market value of open positions in dollars",
	}, []string{"mode"})

	// FeedConnected is 1 while a venue feed is delivering prices.
	FeedConnected = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "edge_feed_connected",
		Help: "Venue feed connection state",
	}, []string{"exchange"})

	// FeedReconnects counts venue reconnect attempts.
	FeedReconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edge_feed_reconnects_total",
		Help: "Venue feed reconnect attempts",
	}, []string{"exchange"})

	// PersistenceFailures counts best-effort writes that failed.
	PersistenceFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edge_persistence_failures_total",
		Help: "Failed persistence writes by operation",
	}, []string{"op"})

	// WebSocketClients tracks connected status stream clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "edge_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edge_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "edge_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Route pattern keeps the path label low-cardinality.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				path = p
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Hijack lets WebSocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}
