package metrics

import (
	"fmt"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphakala/biosignal-go/internal/events"
)

// EventBusMetrics exposes event bus counters, read at scrape time.
type EventBusMetrics struct {
	stats atomic.Pointer[func() events.BusStats]

	received  *prometheus.Desc
	processed *prometheus.Desc
	dropped   *prometheus.Desc
	errors    *prometheus.Desc
}

// NewEventBusMetrics creates the collector and registers it
func NewEventBusMetrics(registry prometheus.Registerer) (*EventBusMetrics, error) {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(Namespace, "event_bus", name), help, nil, nil)
	}
	m := &EventBusMetrics{
		received:  desc("events_received_total", "Events accepted onto the bus"),
		processed: desc("events_processed_total", "Successful consumer deliveries"),
		dropped:   desc("events_dropped_total", "Events dropped because the bus was full"),
		errors:    desc("consumer_errors_total", "Consumer failures and panics"),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register event bus metrics: %w", err)
	}
	return m, nil
}

// Observe sets the bus whose stats are reported
func (m *EventBusMetrics) Observe(bus *events.Bus) {
	fn := bus.Stats
	m.stats.Store(&fn)
}

// Describe implements the prometheus.Collector interface.
func (m *EventBusMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.received
	ch <- m.processed
	ch <- m.dropped
	ch <- m.errors
}

// Collect implements the prometheus.Collector interface.
func (m *EventBusMetrics) Collect(ch chan<- prometheus.Metric) {
	fn := m.stats.Load()
	if fn == nil {
		return
	}
	s := (*fn)()
	ch <- prometheus.MustNewConstMetric(m.received, prometheus.CounterValue, float64(s.EventsReceived))
	ch <- prometheus.MustNewConstMetric(m.processed, prometheus.CounterValue, float64(s.EventsProcessed))
	ch <- prometheus.MustNewConstMetric(m.dropped, prometheus.CounterValue, float64(s.EventsDropped))
	ch <- prometheus.MustNewConstMetric(m.errors, prometheus.CounterValue, float64(s.ConsumerErrors))
}
