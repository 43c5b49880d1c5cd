package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	qaRequestsTotal    *prometheus.CounterVec
	summaryTotal       *prometheus.CounterVec
	compareTotal       *prometheus.CounterVec
	indexedChunksTotal *prometheus.CounterVec
	orchestratorTiming *prometheus.HistogramVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "casa",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "casa",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "casa",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	qaRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "casa",
			Subsystem: "qa",
			Name:      "requests_total",
			Help:      "Total completed QA requests by status.",
		},
		[]string{"service", "status"},
	)
	summaryTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "casa",
			Subsystem: "summary",
			Name:      "requests_total",
			Help:      "Total completed summarization requests by mode and status.",
		},
		[]string{"service", "mode", "status"},
	)
	compareTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "casa",
			Subsystem: "compare",
			Name:      "requests_total",
			Help:      "Total completed comparison requests by mode and status.",
		},
		[]string{"service", "mode", "status"},
	)
	indexedChunksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "casa",
			Subsystem: "index",
			Name:      "chunks_total",
			Help:      "Total chunks upserted through explicit index requests.",
		},
		[]string{"service"},
	)
	orchestratorTiming := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "casa",
			Subsystem: "orchestrator",
			Name:      "duration_seconds",
			Help:      "Orchestrator execution duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "operation"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		qaRequestsTotal,
		summaryTotal,
		compareTotal,
		indexedChunksTotal,
		orchestratorTiming,
	)

	return &HTTPServerMetrics{
		registry:           registry,
		requestTotal:       requestTotal,
		requestDuration:    requestDuration,
		requestInFlight:    requestInFlight,
		qaRequestsTotal:    qaRequestsTotal,
		summaryTotal:       summaryTotal,
		compareTotal:       compareTotal,
		indexedChunksTotal: indexedChunksTotal,
		orchestratorTiming: orchestratorTiming,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath collapses per-project routes into one label value so the
// path cardinality stays bounded.
func normalizePath(path string) string {
	if !strings.HasPrefix(path, "/v1/projects/") {
		return path
	}
	rest := strings.TrimPrefix(path, "/v1/projects/")
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return "/v1/projects/{project_id}/" + rest[i+1:]
	}
	return "/v1/projects/{project_id}"
}

func (m *HTTPServerMetrics) RecordQARequest(service, status string, duration time.Duration) {
	if status == "" {
		status = "unknown"
	}
	m.qaRequestsTotal.WithLabelValues(service, status).Inc()
	m.orchestratorTiming.WithLabelValues(service, "qa").Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) RecordSummary(service, mode, status string, duration time.Duration) {
	if mode == "" {
		mode = "unknown"
	}
	if status == "" {
		status = "unknown"
	}
	m.summaryTotal.WithLabelValues(service, mode, status).Inc()
	m.orchestratorTiming.WithLabelValues(service, "summarize").Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) RecordCompare(service, mode, status string, duration time.Duration) {
	if mode == "" {
		mode = "unknown"
	}
	if status == "" {
		status = "unknown"
	}
	m.compareTotal.WithLabelValues(service, mode, status).Inc()
	m.orchestratorTiming.WithLabelValues(service, "compare").Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) RecordIndexedChunks(service string, count int) {
	if count <= 0 {
		return
	}
	m.indexedChunksTotal.WithLabelValues(service).Add(float64(count))
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
