package producer

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "planetnode"

// Metrics count what the production loops do.
type Metrics struct {
	proposed prometheus.Counter
	appended prometheus.Counter
	failures prometheus.Counter
	tip      prometheus.Gauge
	latency  prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg. With a nil
// reg they are kept unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		proposed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "producer",
			Name:      "blocks_proposed_total",
			Help:      "Blocks proposed by this node.",
		}),
		appended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "producer",
			Name:      "blocks_appended_total",
			Help:      "Proposed blocks the chain accepted.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "producer",
			Name:      "append_failures_total",
			Help:      "Proposed blocks the chain rejected.",
		}),
		tip: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "producer",
			Name:      "tip_height",
			Help:      "Height of the last block this node appended.",
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "producer",
			Name:      "append_seconds",
			Help:      "Time spent appending a proposed block.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.proposed, m.appended, m.failures, m.tip, m.latency} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
