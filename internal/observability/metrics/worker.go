package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	auditWritesTotal *prometheus.CounterVec
	auditDuration    *prometheus.HistogramVec
	auditsInFlight   prometheus.Gauge
	queueLag         *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	auditWritesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "labintake",
			Subsystem: "worker",
			Name:      "audit_writes_total",
			Help:      "Total intake audit writes by status.",
		},
		[]string{"service", "status"},
	)
	auditDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "labintake",
			Subsystem: "worker",
			Name:      "audit_write_duration_seconds",
			Help:      "Intake audit write duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	auditsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "labintake",
			Subsystem: "worker",
			Name:      "audit_writes_in_flight",
			Help:      "Number of in-flight audit writes.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "labintake",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between session save and audit processing start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)

	registry.MustRegister(auditWritesTotal, auditDuration, auditsInFlight, queueLag)

	return &WorkerMetrics{
		registry:         registry,
		auditWritesTotal: auditWritesTotal,
		auditDuration:    auditDuration,
		auditsInFlight:   auditsInFlight,
		queueLag:         queueLag,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartAudit() {
	m.auditsInFlight.Inc()
}

func (m *WorkerMetrics) FinishAudit(service string, duration time.Duration, err error) {
	m.auditsInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.auditWritesTotal.WithLabelValues(service, status).Inc()
	m.auditDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service).Observe(lag.Seconds())
}
