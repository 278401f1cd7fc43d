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

	analysesTotal         *prometheus.CounterVec
	analysisDuration      *prometheus.HistogramVec
	ocrRetriesTotal       *prometheus.CounterVec
	extractedMetrics      *prometheus.HistogramVec
	submissionsTotal      *prometheus.CounterVec
	recordsCreatedTotal   *prometheus.CounterVec
	similarityChecksTotal *prometheus.CounterVec
	sessionsActive        prometheus.Gauge
	sessionsEvictedTotal  *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "labintake",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "labintake",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "labintake",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	analysesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "labintake",
			Subsystem: "intake",
			Name:      "analyses_total",
			Help:      "Total document analyses by outcome.",
		},
		[]string{"service", "outcome", "ocr"},
	)
	analysisDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "labintake",
			Subsystem: "intake",
			Name:      "analysis_duration_seconds",
			Help:      "Document analysis duration in seconds.",
			Buckets:   []float64{1, 2, 5, 10, 20, 45, 90, 180},
		},
		[]string{"service", "ocr"},
	)
	ocrRetriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "labintake",
			Subsystem: "intake",
			Name:      "ocr_retries_total",
			Help:      "Total automatic OCR retries after an empty extraction.",
		},
		[]string{"service"},
	)
	extractedMetrics := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "labintake",
			Subsystem: "intake",
			Name:      "extracted_metrics",
			Help:      "Distribution of extracted metrics per successful analysis.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 40, 80},
		},
		[]string{"service"},
	)
	submissionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "labintake",
			Subsystem: "intake",
			Name:      "submissions_total",
			Help:      "Total session submissions by outcome.",
		},
		[]string{"service", "outcome"},
	)
	recordsCreatedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "labintake",
			Subsystem: "intake",
			Name:      "records_created_total",
			Help:      "Total health records created from saved sessions.",
		},
		[]string{"service"},
	)
	similarityChecksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "labintake",
			Subsystem: "intake",
			Name:      "similarity_checks_total",
			Help:      "Total background similarity checks by outcome.",
		},
		[]string{"service", "outcome"},
	)
	sessionsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "labintake",
			Subsystem: "intake",
			Name:      "sessions_active",
			Help:      "Number of live upload sessions.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	sessionsEvictedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "labintake",
			Subsystem: "intake",
			Name:      "sessions_evicted_total",
			Help:      "Total sessions evicted by the TTL janitor.",
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		analysesTotal,
		analysisDuration,
		ocrRetriesTotal,
		extractedMetrics,
		submissionsTotal,
		recordsCreatedTotal,
		similarityChecksTotal,
		sessionsActive,
		sessionsEvictedTotal,
	)

	return &HTTPServerMetrics{
		registry:              registry,
		requestTotal:          requestTotal,
		requestDuration:       requestDuration,
		requestInFlight:       requestInFlight,
		analysesTotal:         analysesTotal,
		analysisDuration:      analysisDuration,
		ocrRetriesTotal:       ocrRetriesTotal,
		extractedMetrics:      extractedMetrics,
		submissionsTotal:      submissionsTotal,
		recordsCreatedTotal:   recordsCreatedTotal,
		similarityChecksTotal: similarityChecksTotal,
		sessionsActive:        sessionsActive,
		sessionsEvictedTotal:  sessionsEvictedTotal,
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

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/sessions/"):
		rest := strings.TrimPrefix(path, "/v1/sessions/")
		if idx := strings.IndexByte(rest, '/'); idx >= 0 {
			return "/v1/sessions/{session_id}/" + rest[idx+1:]
		}
		return "/v1/sessions/{session_id}"
	case strings.HasPrefix(path, "/v1/documents/"):
		rest := strings.TrimPrefix(path, "/v1/documents/")
		if idx := strings.IndexByte(rest, '/'); idx >= 0 {
			return "/v1/documents/{document_id}/" + rest[idx+1:]
		}
		return "/v1/documents/{document_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordAnalysis(service string, ocrUsed bool, metricCount int, duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	ocr := strconv.FormatBool(ocrUsed)
	m.analysesTotal.WithLabelValues(service, outcome, ocr).Inc()
	m.analysisDuration.WithLabelValues(service, ocr).Observe(duration.Seconds())
	if err == nil {
		m.extractedMetrics.WithLabelValues(service).Observe(float64(metricCount))
	}
}

func (m *HTTPServerMetrics) RecordOCRRetry(service string) {
	m.ocrRetriesTotal.WithLabelValues(service).Inc()
}

func (m *HTTPServerMetrics) RecordSubmission(service, outcome string, createdRecords int) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.submissionsTotal.WithLabelValues(service, outcome).Inc()
	if createdRecords > 0 {
		m.recordsCreatedTotal.WithLabelValues(service).Add(float64(createdRecords))
	}
}

func (m *HTTPServerMetrics) RecordSimilarityCheck(service string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.similarityChecksTotal.WithLabelValues(service, outcome).Inc()
}

func (m *HTTPServerMetrics) SetActiveSessions(count int) {
	m.sessionsActive.Set(float64(count))
}

func (m *HTTPServerMetrics) RecordSessionEvicted(service string) {
	m.sessionsEvictedTotal.WithLabelValues(service).Inc()
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
