package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medflow_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "medflow_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 20},
		},
		[]string{"method", "route"},
	)

	// Patient store
	patientMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medflow_patient_mutations_total",
			Help: "Patient mutations applied to the in-memory store",
		},
		[]string{"outcome"},
	)

	persistWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medflow_persist_writes_total",
			Help: "Patient document writes to the backing store",
		},
		[]string{"outcome"},
	)

	persistDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "medflow_persist_duration_seconds",
			Help:    "Patient document write latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	persistBacklog = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "medflow_persist_backlog",
			Help: "Patients with a document write queued or in flight",
		},
	)

	// AI gateway
	aiRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medflow_ai_requests_total",
			Help: "AI gateway calls by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	aiDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "medflow_ai_request_duration_seconds",
			Help:    "AI gateway call latency",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 15, 30},
		},
		[]string{"operation"},
	)

	auditEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medflow_audit_entries_total",
			Help: "Audit entries appended",
		},
		[]string{"action"},
	)

	bedCompensations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "medflow_bed_compensations_total",
			Help: "Bed writes rolled back after the patient step failed",
		},
	)
)

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts and latency keyed by the matched route
// template, which keeps patient ids out of the label set.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			httpRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// RecordMutation counts a Store.Mutate call.
func RecordMutation(err error) {
	patientMutations.WithLabelValues(outcome(err)).Inc()
}

// RecordPersist counts a document write and its latency.
func RecordPersist(result string, d time.Duration) {
	persistWrites.WithLabelValues(result).Inc()
	persistDuration.Observe(d.Seconds())
}

// SetPersistBacklog reports how many patients have writes pending.
func SetPersistBacklog(n int) {
	persistBacklog.Set(float64(n))
}

// RecordAICall counts one gateway call.
func RecordAICall(operation string, err error, d time.Duration) {
	aiRequests.WithLabelValues(operation, outcome(err)).Inc()
	aiDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordAuditEntry counts an appended audit entry.
func RecordAuditEntry(action string) {
	auditEntries.WithLabelValues(action).Inc()
}

// RecordBedCompensation counts a rolled back bed write.
func RecordBedCompensation() {
	bedCompensations.Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
