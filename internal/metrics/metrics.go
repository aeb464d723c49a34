// Package metrics exposes scan counters to Prometheus.
//
// All methods are safe on a nil *Metrics so callers can run without metrics.
package metrics

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tagscan"

// Sighting outcomes.
const (
	OutcomeNew     = "new"
	OutcomeUpdated = "updated"
)

type Metrics struct {
	sightings       *prometheus.CounterVec
	tracked         prometheus.Gauge
	triggers        prometheus.Counter
	batchSize       prometheus.Histogram
	persistFailures prometheus.Counter
	eventsDropped   prometheus.Counter

	dropsMu   sync.Mutex
	dropsSeen int64
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		sightings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sightings_total",
			Help:      "Sightings applied to the aggregator, by whether they created a new tag.",
		}, []string{"outcome"}),
		tracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tags_tracked",
			Help:      "Distinct tags currently held by the aggregator.",
		}),
		triggers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "triggers_total",
			Help:      "Reader triggers completed.",
		}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "trigger_batch_size",
			Help:      "Sightings delivered per trigger.",
			Buckets:   []float64{0, 1, 2, 4, 6, 8, 16, 32},
		}),
		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failures_total",
			Help:      "Records that could not be saved after all retries.",
		}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Tag change events overwritten before a reader consumed them.",
		}),
	}

	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.sightings, m.tracked, m.triggers, m.batchSize, m.persistFailures, m.eventsDropped} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return m, nil
}

// ObserveSightings counts applied sightings by outcome.
func (m *Metrics) ObserveSightings(newTags, updated int) {
	if m == nil {
		return
	}
	m.sightings.WithLabelValues(OutcomeNew).Add(float64(newTags))
	m.sightings.WithLabelValues(OutcomeUpdated).Add(float64(updated))
}

// ObserveTrigger records a completed trigger and how many sightings it produced.
func (m *Metrics) ObserveTrigger(batch int) {
	if m == nil {
		return
	}
	m.triggers.Inc()
	m.batchSize.Observe(float64(batch))
}

func (m *Metrics) SetTracked(n int) {
	if m == nil {
		return
	}
	m.tracked.Set(float64(n))
}

func (m *Metrics) PersistFailed() {
	if m == nil {
		return
	}
	m.persistFailures.Inc()
}

// ObserveEventDrops takes the running total of dropped events and adds what
// is new since the previous call.
func (m *Metrics) ObserveEventDrops(total int64) {
	if m == nil {
		return
	}
	m.dropsMu.Lock()
	defer m.dropsMu.Unlock()
	if total > m.dropsSeen {
		m.eventsDropped.Add(float64(total - m.dropsSeen))
		m.dropsSeen = total
	}
}
