package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors. All collectors are registered on the
// registry passed to NewMetrics, tests use a fresh prometheus.NewRegistry().
type Metrics struct {
	RequestDuration    *prometheus.HistogramVec
	UploadedBytes      prometheus.Counter
	QuotaRejections    *prometheus.CounterVec
	PaymentTransitions *prometheus.CounterVec
	UpstreamCalls      *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "nimbus",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method, route and status.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"method", "route", "status"}),
		UploadedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nimbus",
			Name:      "uploaded_bytes_total",
			Help:      "Bytes committed to the blob store by uploads.",
		}),
		QuotaRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nimbus",
			Name:      "quota_rejections_total",
			Help:      "Uploads rejected by the quota accountant.",
		}, []string{"reason"}),
		PaymentTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nimbus",
			Name:      "payment_transitions_total",
			Help:      "Transactions moved to a status.",
		}, []string{"status"}),
		UpstreamCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nimbus",
			Name:      "upstream_calls_total",
			Help:      "Calls to external AI services by outcome.",
		}, []string{"service", "outcome"}),
		gatherer: reg,
	}
	reg.MustRegister(
		m.RequestDuration,
		m.UploadedBytes,
		m.QuotaRejections,
		m.PaymentTransitions,
		m.UpstreamCalls,
	)
	return m
}

// Handler serves the /metrics endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
