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
	service  string

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	transitionsTotal     *prometheus.CounterVec
	uploadedFilesTotal   *prometheus.CounterVec
	uploadBytes          *prometheus.HistogramVec
	notificationFailures *prometheus.CounterVec
	approvalsTotal       *prometheus.CounterVec
	retriesTotal         *prometheus.CounterVec
	breakerState         *prometheus.GaugeVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "notary",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "notary",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "notary",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	transitionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "notary",
			Subsystem: "workflow",
			Name:      "transitions_total",
			Help:      "Document status transitions by action and resulting status.",
		},
		[]string{"service", "action", "status"},
	)
	uploadedFilesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "notary",
			Subsystem: "upload",
			Name:      "files_total",
			Help:      "Files accepted for storage by upload target.",
		},
		[]string{"service", "target"},
	)
	uploadBytes := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "notary",
			Subsystem: "upload",
			Name:      "file_bytes",
			Help:      "Size distribution of accepted files.",
			Buckets:   prometheus.ExponentialBuckets(16*1024, 4, 6),
		},
		[]string{"service", "target"},
	)
	notificationFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "notary",
			Subsystem: "notification",
			Name:      "publish_failures_total",
			Help:      "Committed operations whose email could not be queued.",
		},
		[]string{"service", "endpoint"},
	)
	approvalsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "notary",
			Subsystem: "signature",
			Name:      "approvals_total",
			Help:      "Signature approvals by subject and party.",
		},
		[]string{"service", "subject", "party", "complete"},
	)
	retriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "notary",
			Subsystem: "resilience",
			Name:      "retries_total",
			Help:      "Retried calls to external dependencies.",
		},
		[]string{"service", "operation"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "notary",
			Subsystem: "resilience",
			Name:      "breaker_open",
			Help:      "1 while the circuit breaker of an operation is not closed.",
		},
		[]string{"service", "operation", "state"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		transitionsTotal,
		uploadedFilesTotal,
		uploadBytes,
		notificationFailures,
		approvalsTotal,
		retriesTotal,
		breakerState,
	)

	return &HTTPServerMetrics{
		registry:             registry,
		service:              service,
		requestTotal:         requestTotal,
		requestDuration:      requestDuration,
		requestInFlight:      requestInFlight,
		transitionsTotal:     transitionsTotal,
		uploadedFilesTotal:   uploadedFilesTotal,
		uploadBytes:          uploadBytes,
		notificationFailures: notificationFailures,
		approvalsTotal:       approvalsTotal,
		retriesTotal:         retriesTotal,
		breakerState:         breakerState,
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

// normalizePath folds trailing ids and blob keys so label cardinality stays bounded.
func normalizePath(path string) string {
	if strings.HasPrefix(path, "/files/") {
		return "/files/{key}"
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 3 && (parts[0] == "session" || parts[0] == "notarization") {
		return "/" + parts[0] + "/" + parts[1] + "/{id}"
	}
	return path
}

func (m *HTTPServerMetrics) RecordTransition(action, status string) {
	m.transitionsTotal.WithLabelValues(m.service, action, status).Inc()
}

func (m *HTTPServerMetrics) RecordUpload(target string, sizes ...int64) {
	for _, size := range sizes {
		m.uploadedFilesTotal.WithLabelValues(m.service, target).Inc()
		m.uploadBytes.WithLabelValues(m.service, target).Observe(float64(size))
	}
}

func (m *HTTPServerMetrics) RecordNotificationFailure(endpoint string) {
	m.notificationFailures.WithLabelValues(m.service, endpoint).Inc()
}

func (m *HTTPServerMetrics) RecordApproval(subject, party string, complete bool) {
	m.approvalsTotal.WithLabelValues(m.service, subject, party, strconv.FormatBool(complete)).Inc()
}

func (m *HTTPServerMetrics) ObserveRetry(operation string) {
	m.retriesTotal.WithLabelValues(m.service, operation).Inc()
}

func (m *HTTPServerMetrics) ObserveBreakerState(operation, state string) {
	observeBreakerState(m.breakerState, m.service, operation, state)
}

func observeBreakerState(gauge *prometheus.GaugeVec, service, operation, state string) {
	for _, s := range []string{"half-open", "open"} {
		value := 0.0
		if s == state {
			value = 1
		}
		gauge.WithLabelValues(service, operation, s).Set(value)
	}
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
