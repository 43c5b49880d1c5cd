package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	jobsTotal   *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	jobsActive  prometheus.Gauge
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	jobsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "casa",
			Subsystem: "worker",
			Name:      "jobs_total",
			Help:      "Total processed document jobs by op and status.",
		},
		[]string{"service", "op", "status"},
	)
	jobDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "casa",
			Subsystem: "worker",
			Name:      "job_duration_seconds",
			Help:      "Document job duration in seconds.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"service", "op"},
	)
	jobsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "casa",
			Subsystem: "worker",
			Name:      "jobs_active",
			Help:      "Number of jobs currently being processed.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(jobsTotal, jobDuration, jobsActive)

	return &WorkerMetrics{
		registry:    registry,
		jobsTotal:   jobsTotal,
		jobDuration: jobDuration,
		jobsActive:  jobsActive,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) JobStarted() {
	m.jobsActive.Inc()
}

func (m *WorkerMetrics) JobFinished(service, op, status string, duration time.Duration) {
	m.jobsActive.Dec()
	if op == "" {
		op = "unknown"
	}
	if status == "" {
		status = "unknown"
	}
	m.jobsTotal.WithLabelValues(service, op, status).Inc()
	m.jobDuration.WithLabelValues(service, op).Observe(duration.Seconds())
}
