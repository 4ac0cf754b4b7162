package metrics

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphakala/biosignal-go/internal/acquisition"
)

// StatsSource provides session snapshots at scrape time. *acquisition.Registry
// satisfies it.
type StatsSource interface {
	Snapshot() []acquisition.SessionStats
}

// AcquisitionMetrics counts lifecycle transitions and reports buffer state of
// live sessions. Buffer figures are read from the source on every scrape.
type AcquisitionMetrics struct {
	mu     sync.RWMutex
	source StatsSource

	transitions *prometheus.CounterVec

	unread      *prometheus.Desc
	capacity    *prometheus.Desc
	accepted    *prometheus.Desc
	dropped     *prometheus.Desc
	overwritten *prometheus.Desc
	rejected    *prometheus.Desc
	discarded   *prometheus.Desc
	state       *prometheus.Desc
	sessions    *prometheus.Desc
}

var _ acquisition.Observer = (*AcquisitionMetrics)(nil)

// NewAcquisitionMetrics creates the collector and registers it. source may be nil
// until SetSource is called; scrapes then report transitions only.
func NewAcquisitionMetrics(registry prometheus.Registerer, source StatsSource) (*AcquisitionMetrics, error) {
	m := &AcquisitionMetrics{source: source}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register acquisition metrics: %w", err)
	}
	return m, nil
}

func (m *AcquisitionMetrics) initMetrics() {
	m.transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "session_transitions_total",
		Help:      "Total number of session lifecycle transitions",
	}, []string{LabelFrom, LabelTo})

	device := []string{LabelDevice}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(Namespace, "", name), help, device, nil)
	}
	m.unread = desc("buffer_unread_frames", "Frames buffered and not yet drained")
	m.capacity = desc("buffer_capacity_frames", "Ring buffer capacity in frames")
	m.accepted = desc("buffer_accepted_frames_total", "Frames stored in the ring buffer")
	m.dropped = desc("buffer_dropped_frames_total", "Frames lost to overflow or rejection")
	m.overwritten = desc("buffer_overwritten_frames_total", "Unread frames evicted by newer ones")
	m.rejected = desc("buffer_rejected_frames_total", "Frames refused for a channel count mismatch")
	m.discarded = desc("buffer_discarded_frames_total", "Incoming frames refused by the drop-newest policy")
	m.state = prometheus.NewDesc(prometheus.BuildFQName(Namespace, "", "session_state"),
		"Current session state, 1 for the active state label", []string{LabelDevice, LabelState}, nil)
	m.sessions = prometheus.NewDesc(prometheus.BuildFQName(Namespace, "", "sessions"),
		"Number of registered sessions", nil, nil)
}

// SetSource sets the registry read at scrape time
func (m *AcquisitionMetrics) SetSource(source StatsSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.source = source
}

// OnTransition implements acquisition.Observer
func (m *AcquisitionMetrics) OnTransition(t acquisition.Transition) {
	m.transitions.WithLabelValues(t.From.String(), t.To.String()).Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *AcquisitionMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.transitions.Describe(ch)
	for _, d := range []*prometheus.Desc{
		m.unread, m.capacity, m.accepted, m.dropped, m.overwritten,
		m.rejected, m.discarded, m.state, m.sessions,
	} {
		ch <- d
	}
}

// Collect implements the prometheus.Collector interface.
func (m *AcquisitionMetrics) Collect(ch chan<- prometheus.Metric) {
	m.transitions.Collect(ch)

	m.mu.RLock()
	source := m.source
	m.mu.RUnlock()
	if source == nil {
		return
	}

	snapshot := source.Snapshot()
	ch <- prometheus.MustNewConstMetric(m.sessions, prometheus.GaugeValue, float64(len(snapshot)))

	for i := range snapshot {
		s := &snapshot[i]
		dev := s.DeviceID
		ch <- prometheus.MustNewConstMetric(m.state, prometheus.GaugeValue, 1, dev, s.State.String())

		b := s.Buffer
		ch <- prometheus.MustNewConstMetric(m.unread, prometheus.GaugeValue, float64(b.Unread), dev)
		ch <- prometheus.MustNewConstMetric(m.capacity, prometheus.GaugeValue, float64(b.Capacity), dev)
		ch <- prometheus.MustNewConstMetric(m.accepted, prometheus.CounterValue, float64(b.Accepted), dev)
		ch <- prometheus.MustNewConstMetric(m.dropped, prometheus.CounterValue, float64(b.Dropped), dev)
		ch <- prometheus.MustNewConstMetric(m.overwritten, prometheus.CounterValue, float64(b.Overwritten), dev)
		ch <- prometheus.MustNewConstMetric(m.rejected, prometheus.CounterValue, float64(b.Rejected), dev)
		ch <- prometheus.MustNewConstMetric(m.discarded, prometheus.CounterValue, float64(b.Discarded), dev)
	}
}
