// Package metrics provides Prometheus instrumentation for the price tracker.
package metrics

import (
	"bufio"
	"fmt"
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
	// SubmissionsTotal counts accepted submissions by kind (price, farmgate).
	SubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricetracker_submissions_total",
		Help: "Total number of accepted price submissions",
	}, []string{"kind"})

	// PriceUpdatesTotal counts edits of existing price records.
	PriceUpdatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pricetracker_price_updates_total",
		Help: "Total number of price record edits",
	})

	// JoinPlaceholders counts price records joined against a missing market
	// or commodity.
	JoinPlaceholders = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricetracker_join_placeholders_total",
		Help: "Price records rendered with placeholder reference data",
	}, []string{"view"})

	// StoreTimeouts counts facade calls that hit the request deadline.
	StoreTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricetracker_store_timeouts_total",
		Help: "Data access calls that exceeded the request timeout",
	}, []string{"op"})

	// EventsPublished counts change events by collection and operation.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricetracker_events_published_total",
		Help: "Change events published on the broker",
	}, []string{"kind", "op"})

	// EventsDropped counts events not delivered to a slow subscriber.
	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pricetracker_events_dropped_total",
		Help: "Change events dropped because a subscriber buffer was full",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pricetracker_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// AuthFailures counts rejected identity operations by reason.
	AuthFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricetracker_auth_failures_total",
		Help: "Rejected login or registration attempts",
	}, []string{"reason"})

	// RolesProvisioned counts user records created with the default role.
	RolesProvisioned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pricetracker_roles_provisioned_total",
		Help: "User records auto-provisioned on first session resolution",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricetracker_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pricetracker_http_request_duration_seconds",
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
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
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

// Hijack lets WebSocket upgrades through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("metrics: %T does not implement http.Hijacker", w.ResponseWriter)
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the inner writer to http.ResponseController.
func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
