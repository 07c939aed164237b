package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry
	service  string

	deliveryTotal    *prometheus.CounterVec
	deliveryDuration *prometheus.HistogramVec
	deliveryInFlight prometheus.Gauge
	queueLag         *prometheus.HistogramVec
	retriesTotal     *prometheus.CounterVec
	breakerState     *prometheus.GaugeVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	deliveryTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "notary",
			Subsystem: "worker",
			Name:      "email_delivery_total",
			Help:      "Total email deliveries by kind and status.",
		},
		[]string{"service", "kind", "status"},
	)
	deliveryDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "notary",
			Subsystem: "worker",
			Name:      "email_delivery_duration_seconds",
			Help:      "Email delivery duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	deliveryInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "notary",
			Subsystem: "worker",
			Name:      "email_delivery_in_flight",
			Help:      "Number of in-flight email deliveries.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "notary",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between queueing an email and delivery start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
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

	registry.MustRegister(deliveryTotal, deliveryDuration, deliveryInFlight, queueLag, retriesTotal, breakerState)

	return &WorkerMetrics{
		registry:         registry,
		service:          service,
		deliveryTotal:    deliveryTotal,
		deliveryDuration: deliveryDuration,
		deliveryInFlight: deliveryInFlight,
		queueLag:         queueLag,
		retriesTotal:     retriesTotal,
		breakerState:     breakerState,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartDelivery() {
	m.deliveryInFlight.Inc()
}

func (m *WorkerMetrics) FinishDelivery(kind string, duration time.Duration, err error) {
	m.deliveryInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}
	if kind == "" {
		kind = "unknown"
	}

	m.deliveryTotal.WithLabelValues(m.service, kind, status).Inc()
	m.deliveryDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(m.service).Observe(lag.Seconds())
}

func (m *WorkerMetrics) ObserveRetry(operation string) {
	m.retriesTotal.WithLabelValues(m.service, operation).Inc()
}

func (m *WorkerMetrics) ObserveBreakerState(operation, state string) {
	observeBreakerState(m.breakerState, m.service, operation, state)
}
