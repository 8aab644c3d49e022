// paybill-gateway/pkg/metrics/metrics.go
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// "service" label so one query can compare the gateway and the worker
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paybill",
			Name:      "requests_total",
			Help:      "HTTP requests per service",
		},
		[]string{"service", "status", "method"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "paybill",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration per service",
			Buckets: []float64{
				0.01, 0.02, 0.03, 0.05, 0.08, 0.12,
				0.2, 0.3, 0.5, 0.8, 1.2, 2, 3, 5, 10, 30,
			},
		},
		[]string{"service", "status"},
	)

	GatewayCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paybill",
			Name:      "gateway_calls_total",
			Help:      "Outbound gateway calls by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	CallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paybill",
			Name:      "callbacks_total",
			Help:      "Inbound gateway notifications by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	ForwardsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paybill",
			Name:      "forwards_total",
			Help:      "Tenant webhook forwards by outcome",
		},
		[]string{"outcome"},
	)

	StalePendingPushes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "paybill",
			Name:      "stale_pending_pushes",
			Help:      "Pending pushes older than the stale threshold at the last sweep",
		},
	)

	EventsConsumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paybill",
			Name:      "events_consumed_total",
			Help:      "Lifecycle events read back by the reconcile worker",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal, RequestDuration,
		GatewayCallsTotal, CallbacksTotal, ForwardsTotal, StalePendingPushes,
		EventsConsumedTotal,
	)
}

func IncRequest(service, status, method string) {
	RequestsTotal.WithLabelValues(service, status, method).Inc()
}

func ObserveDuration(service, status string, seconds float64) {
	RequestDuration.WithLabelValues(service, status).Observe(seconds)
}

func IncGateway(operation, outcome string) {
	GatewayCallsTotal.WithLabelValues(operation, outcome).Inc()
}

func IncCallback(kind, outcome string) {
	CallbacksTotal.WithLabelValues(kind, outcome).Inc()
}

func IncForward(outcome string) {
	ForwardsTotal.WithLabelValues(outcome).Inc()
}

func SetStale(n int) {
	StalePendingPushes.Set(float64(n))
}

func IncEvent(kind string) {
	EventsConsumedTotal.WithLabelValues(kind).Inc()
}
