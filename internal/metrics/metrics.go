package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aal",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "aal",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "path"},
	)

	jobNumbersAllocated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aal",
			Subsystem: "job_numbers",
			Name:      "allocated_total",
			Help:      "Job numbers persisted, by type code.",
		},
		[]string{"abbr"},
	)

	jobNumberConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aal",
			Subsystem: "job_numbers",
			Name:      "conflicts_total",
			Help:      "Allocations rejected by the job number unique constraint.",
		},
		[]string{"abbr"},
	)

	migrationRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aal",
			Subsystem: "migration",
			Name:      "records_total",
			Help:      "Job type migration outcomes per record.",
		},
		[]string{"outcome"},
	)

	lineItemReplacements = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "aal",
			Subsystem: "invoices",
			Name:      "line_item_replacements_total",
			Help:      "Invoice updates that replaced the full line item set.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		jobNumbersAllocated,
		jobNumberConflicts,
		migrationRecords,
		lineItemReplacements,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		path := routePattern(r)
		method := strings.ToUpper(r.Method)
		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	})
}

func RecordJobNumberAllocated(abbr string) { jobNumbersAllocated.WithLabelValues(abbr).Inc() }

func RecordJobNumberConflict(abbr string) { jobNumberConflicts.WithLabelValues(abbr).Inc() }

func RecordMigrationOutcome(outcome string) { migrationRecords.WithLabelValues(outcome).Inc() }

func RecordLineItemReplacement() { lineItemReplacements.Inc() }

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// routePattern prefers the chi route that matched, e.g. /v1/jobs/{id}.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return canonicalPath(r.URL.Path)
}

// canonicalPath keeps the first two segments so ids do not explode label
// cardinality: /v1/jobs/abc -> /v1/jobs/:id.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) <= 2 {
		return "/" + strings.Join(parts, "/")
	}
	return "/" + parts[0] + "/" + parts[1] + "/:id"
}
