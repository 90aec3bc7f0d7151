// Package metrics exposes Prometheus collectors for the forms service.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "formsdesk",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "formsdesk",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "formsdesk",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	recordOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "formsdesk",
			Subsystem: "records",
			Name:      "operations_total",
			Help:      "Total number of record store operations.",
		},
		[]string{"operation", "form_type", "status"},
	)

	pdfRenders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "formsdesk",
			Subsystem: "pdf",
			Name:      "renders_total",
			Help:      "Total number of PDF export attempts.",
		},
		[]string{"form_type", "status"},
	)

	pdfDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "formsdesk",
			Subsystem: "pdf",
			Name:      "render_duration_seconds",
			Help:      "Duration of PDF renders including browser launch.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 8), // 100ms to ~25s
		},
	)

	dbRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "formsdesk",
			Subsystem: "database",
			Name:      "retries_total",
			Help:      "Total number of retried database operations by fault class.",
		},
		[]string{"class"},
	)

	dbReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "formsdesk",
			Subsystem: "database",
			Name:      "client_replacements_total",
			Help:      "Total number of database client replacements.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		recordOps,
		pdfRenders,
		pdfDuration,
		dbRetries,
		dbReconnects,
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

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordStoreOperation records one record store round trip.
func RecordStoreOperation(operation, formType, status string) {
	recordOps.WithLabelValues(operation, formType, status).Inc()
}

// RecordPDFRender records one export attempt.
func RecordPDFRender(formType, status string, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	pdfRenders.WithLabelValues(formType, status).Inc()
	pdfDuration.Observe(duration.Seconds())
}

// RecordDBRetry counts a retried database operation.
func RecordDBRetry(class string) { dbRetries.WithLabelValues(class).Inc() }

// RecordDBReconnect counts a database client replacement.
func RecordDBReconnect() { dbReconnects.Inc() }

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses record IDs out of /forms routes so the label set
// stays bounded.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] != "forms" {
		return "/" + parts[0]
	}
	switch len(parts) {
	case 1:
		return "/forms"
	case 2:
		return "/forms/{type}"
	case 3:
		return "/forms/{type}/{id}"
	default:
		return "/forms/{type}/{id}/" + strings.Join(parts[3:], "/")
	}
}
