// Package metrics provides Prometheus instrumentation for the distribution
// engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// DistributionsTotal counts revenue-report applications by outcome:
	// "applied", "replayed", or "rejected".
	DistributionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "revloop_distributions_total",
		Help: "Total revenue report applications",
	}, []string{"outcome"})

	// DistributionLatency tracks end-to-end apply latency.
	DistributionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "revloop_distribution_latency_seconds",
		Help:    "Revenue report application latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// PayoutsTotal counts payout ledger entries written.
	PayoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "revloop_payouts_total",
		Help: "Total payout ledger entries recorded",
	})

	// PayoutMinorUnits accumulates distributed amounts in minor units,
	// partitioned by currency.
	PayoutMinorUnits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "revloop_payout_minor_units_total",
		Help: "Cumulative distributed amount in minor currency units",
	}, []string{"currency"})

	// PositionsCompleted counts positions that reached their cap.
	PositionsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "revloop_positions_completed_total",
		Help: "Positions that reached their repayment cap",
	})

	// ActiveDeals tracks deals currently in FUNDED or REPAYING state.
	ActiveDeals = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "revloop_active_deals",
		Help: "Deals currently eligible for distributions",
	})

	// ExposureRejections counts positions rejected by the exposure limiter.
	ExposureRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "revloop_exposure_rejections_total",
		Help: "Positions rejected by the exposure limiter",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "revloop_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "revloop_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "revloop_http_request_duration_seconds",
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

		// Use the raw path for the label; route patterns here are low
		// cardinality (IDs are UUIDs but traffic is internal/admin).
		path := r.URL.Path
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
