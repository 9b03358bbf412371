package delivery

import "github.com/prometheus/client_golang/prometheus"

// Metrics tracks delivery engine throughput, grouped the way the rest
// of the module registers prometheus collectors: one struct built
// once at wiring time and passed in, never a package-global default
// registerer.
type Metrics struct {
	attempts  prometheus.Counter
	successes prometheus.Counter
	permanent prometheus.Counter
	requeued  prometheus.Counter
	latency   prometheus.Histogram
}

// NewMetrics registers the delivery engine's counters and histogram
// against reg. Pass prometheus.NewRegistry() or prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "outpost",
			Subsystem: "delivery",
			Name:      "attempts_total",
			Help:      "Total number of outbound delivery attempts.",
		}),
		successes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "outpost",
			Subsystem: "delivery",
			Name:      "successes_total",
			Help:      "Total number of deliveries accepted by the recipient inbox.",
		}),
		permanent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "outpost",
			Subsystem: "delivery",
			Name:      "permanent_failures_total",
			Help:      "Total number of deliveries abandoned after a non-retryable response.",
		}),
		requeued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "outpost",
			Subsystem: "delivery",
			Name:      "requeued_total",
			Help:      "Total number of deliveries scheduled for retry.",
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "outpost",
			Subsystem: "delivery",
			Name:      "attempt_duration_seconds",
			Help:      "Duration of a single outbound delivery attempt.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.attempts, m.successes, m.permanent, m.requeued, m.latency)
	return m
}
