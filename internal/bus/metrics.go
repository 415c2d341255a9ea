package bus

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the bus's Prometheus instruments. A nil *Metrics is valid
// everywhere it's accepted and simply disables instrumentation.
type Metrics struct {
	EventsPublished   prometheus.Counter
	SubscriptionsOpen prometheus.Gauge
}

// NewMetrics constructs and registers the bus's instruments against reg.
// Pass prometheus.DefaultRegisterer to expose them on the process's default
// /metrics handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eidolon",
			Subsystem: "bus",
			Name:      "events_published_total",
			Help:      "Total ScanEvents published to the bus, across all tasks.",
		}),
		SubscriptionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "eidolon",
			Subsystem: "bus",
			Name:      "subscriptions_open",
			Help:      "Number of currently open bus subscriptions.",
		}),
	}
	reg.MustRegister(m.EventsPublished, m.SubscriptionsOpen)
	return m
}
