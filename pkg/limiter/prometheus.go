package limiter

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements MetricsRecorder on top of Prometheus vectors,
// partitioned by the "result" tag the engine attaches to its counters.
type PrometheusRecorder struct {
	calls   *prometheus.CounterVec
	latency prometheus.Histogram
}

// NewPrometheusRecorder builds a recorder and registers its collectors with
// the given registerer (use prometheus.DefaultRegisterer for the default
// registry).
func NewPrometheusRecorder(reg prometheus.Registerer, namespace string) (*PrometheusRecorder, error) {
	r := &PrometheusRecorder{
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ratelimit",
				Name:      "events_total",
				Help:      "Rate limiter events by name and result",
			},
			[]string{"event", "result"},
		),
		latency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "ratelimit",
				Name:      "check_duration_seconds",
				Help:      "Time spent on admission checks",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
		),
	}
	if err := reg.Register(r.calls); err != nil {
		return nil, err
	}
	if err := reg.Register(r.latency); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *PrometheusRecorder) Add(name string, value float64, tags map[string]string) {
	r.calls.WithLabelValues(name, tags["result"]).Add(value)
}

func (r *PrometheusRecorder) Observe(name string, value float64, tags map[string]string) {
	r.latency.Observe(value)
}
