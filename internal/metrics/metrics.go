// Package metrics collects and exposes Prometheus metrics for the
// attendance service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector registers and updates the service's Prometheus metrics.
type Collector struct {
	reg prometheus.Registerer

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	scansRecorded prometheus.Counter
	scansRejected prometheus.Counter
	loginFailures prometheus.Counter
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		reg: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_http_requests_total",
			Help: "HTTP requests served, by method, route and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "attendance_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds, by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		scansRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "attendance_scans_recorded_total",
			Help: "RFID scans persisted as attendance records.",
		}),
		scansRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "attendance_scans_rejected_total",
			Help: "RFID scans rejected because the tag is not registered.",
		}),
		loginFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "attendance_login_failures_total",
			Help: "Login attempts rejected for bad credentials.",
		}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.httpDuration,
		c.scansRecorded,
		c.scansRejected,
		c.loginFailures,
	)

	return c
}

// ObserveHTTP records one served request.
func (c *Collector) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ScanRecorded counts a persisted attendance record.
func (c *Collector) ScanRecorded() {
	c.scansRecorded.Inc()
}

// ScanRejected counts a scan from an unregistered tag.
func (c *Collector) ScanRejected() {
	c.scansRejected.Inc()
}

// LoginFailed counts a rejected login attempt.
func (c *Collector) LoginFailed() {
	c.loginFailures.Inc()
}

// TrackPoolLeases registers a gauge sampling the number of database
// connections currently leased. Call once during wiring.
func (c *Collector) TrackPoolLeases(leased func() int64) {
	c.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "attendance_db_pool_leased_connections",
		Help: "Database connections currently leased from the pool.",
	}, func() float64 {
		return float64(leased())
	}))
}

// Handler returns the scrape endpoint for the given gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
