// Package aggregator deduplicates tag sightings into one record per EPC.
package aggregator

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/tagscan/internal/ringchan"
	"github.com/srg/tagscan/internal/tag"
)

// EventType marks whether a sighting created or merged a record
type EventType int

const (
	EventNew EventType = iota
	EventUpdated
	EventCleared
)

func (t EventType) String() string {
	switch t {
	case EventNew:
		return "new"
	case EventUpdated:
		return "updated"
	case EventCleared:
		return "cleared"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// Event is published for every change to the tracked tags.
// Record is zero for EventCleared.
type Event struct {
	Type   EventType
	Record tag.Record
}

// BatchSummary is the outcome of one RecordBatchSummary call.
type BatchSummary struct {
	Records []tag.Record // one per input sighting, in input order
	New     int          // sightings that created a record
	Updated int          // sightings that merged into an existing record
}

const defaultEventBuffer = 256

// Aggregator owns the EPC -> record mapping. All methods are safe for concurrent use;
// a single mutex serializes them.
type Aggregator struct {
	mu     sync.Mutex
	tags   *orderedmap.OrderedMap[string, *tag.Record]
	events *ringchan.RingChannel[Event]
	logger *logrus.Logger
	now    func() time.Time
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock overrides the clock used for sightings without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

// WithEventBuffer sets how many unread events are kept before the oldest is dropped.
func WithEventBuffer(size int) Option {
	return func(a *Aggregator) {
		a.events = ringchan.New[Event](size)
	}
}

// New creates an empty Aggregator.
func New(logger *logrus.Logger, opts ...Option) *Aggregator {
	if logger == nil {
		logger = logrus.New()
	}

	a := &Aggregator{
		tags:   orderedmap.New[string, *tag.Record](),
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.events == nil {
		a.events = ringchan.New[Event](defaultEventBuffer)
	}
	return a
}

// RecordSighting merges one sighting and returns the resulting record.
// A nil rssi keeps the previously stored signal strength; a zero at means now.
func (a *Aggregator) RecordSighting(epc string, rssi *int, at time.Time) (tag.Record, error) {
	if err := tag.ValidateEPC(epc); err != nil {
		return tag.Record{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	rec, _ := a.apply(tag.Sighting{EPC: epc, RSSI: rssi, Timestamp: at})
	return rec, nil
}

// RecordBatch applies sightings in order, as a single trigger read, and returns
// one record per sighting. An empty EPC anywhere rejects the whole batch.
func (a *Aggregator) RecordBatch(sightings []tag.Sighting) ([]tag.Record, error) {
	summary, err := a.RecordBatchSummary(sightings)
	if err != nil {
		return nil, err
	}
	return summary.Records, nil
}

// RecordBatchSummary is RecordBatch plus new/updated counts.
func (a *Aggregator) RecordBatchSummary(sightings []tag.Sighting) (BatchSummary, error) {
	for i, s := range sightings {
		if err := tag.ValidateEPC(s.EPC); err != nil {
			return BatchSummary{}, fmt.Errorf("sighting %d: %w", i, err)
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	summary := BatchSummary{Records: make([]tag.Record, 0, len(sightings))}
	for _, s := range sightings {
		rec, created := a.apply(s)
		if created {
			summary.New++
		} else {
			summary.Updated++
		}
		summary.Records = append(summary.Records, rec)
	}
	return summary, nil
}

// apply must be called with a.mu held. It reports whether the record was created.
func (a *Aggregator) apply(s tag.Sighting) (tag.Record, bool) {
	at := s.Timestamp
	if at.IsZero() {
		at = a.now()
	}

	existing, ok := a.tags.Get(s.EPC)
	if ok {
		existing.SeenCount++
		// lastSeen never moves backwards, so firstSeen <= lastSeen holds for late readings
		if at.After(existing.LastSeen) {
			existing.LastSeen = at
		}
		if s.RSSI != nil {
			v := *s.RSSI
			existing.RSSI = &v
		}

		a.logger.WithFields(logrus.Fields{
			"epc":   existing.EPC,
			"rssi":  existing.RSSIString(),
			"count": existing.SeenCount,
		}).Debug("Updated tag")

		rec := existing.Clone()
		a.events.Send(Event{Type: EventUpdated, Record: rec})
		return rec, false
	}

	rec := &tag.Record{
		EPC:       s.EPC,
		SeenCount: 1,
		FirstSeen: at,
		LastSeen:  at,
	}
	if s.RSSI != nil {
		v := *s.RSSI
		rec.RSSI = &v
	}
	a.tags.Set(s.EPC, rec)

	a.logger.WithFields(logrus.Fields{
		"epc":  rec.EPC,
		"rssi": rec.RSSIString(),
	}).Info("Discovered new tag")

	out := rec.Clone()
	a.events.Send(Event{Type: EventNew, Record: out})
	return out, true
}

// Snapshot returns copies of every record, most recently seen first.
// Records with equal LastSeen keep their insertion order.
func (a *Aggregator) Snapshot() []tag.Record {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]tag.Record, 0, a.tags.Len())
	for pair := a.tags.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value.Clone())
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastSeen.After(out[j].LastSeen)
	})
	return out
}

// Get returns a copy of the record for epc.
func (a *Aggregator) Get(epc string) (tag.Record, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rec, ok := a.tags.Get(epc)
	if !ok {
		return tag.Record{}, false
	}
	return rec.Clone(), true
}

// Count returns the number of distinct EPCs tracked.
func (a *Aggregator) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tags.Len()
}

// Clear drops every record. Clearing an empty aggregator is a no-op.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.tags.Len() == 0 {
		return
	}

	n := a.tags.Len()
	a.tags = orderedmap.New[string, *tag.Record]()
	a.events.Send(Event{Type: EventCleared})
	a.logger.WithField("tag_count", n).Info("Cleared all tags")
}

// Restore replaces the tracked tags with records loaded from storage.
// Records are inserted oldest first so ties keep a stable order.
// On a validation error the current state is left untouched.
func (a *Aggregator) Restore(records []tag.Record) error {
	byAge := make([]tag.Record, len(records))
	copy(byAge, records)
	sort.SliceStable(byAge, func(i, j int) bool {
		return byAge[i].LastSeen.Before(byAge[j].LastSeen)
	})

	restored := orderedmap.New[string, *tag.Record]()
	for _, r := range byAge {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("restore: %w", err)
		}
		if _, dup := restored.Get(r.EPC); dup {
			return fmt.Errorf("restore: %w: duplicate epc %s", tag.ErrInvalidArgument, r.EPC)
		}
		rec := r.Clone()
		restored.Set(r.EPC, &rec)
	}

	a.mu.Lock()
	a.tags = restored
	a.mu.Unlock()

	a.logger.WithField("tag_count", restored.Len()).Debug("Restored tags")
	return nil
}

// Events returns a read-only channel of tag changes. Slow readers lose the oldest events.
func (a *Aggregator) Events() <-chan Event {
	return a.events.C()
}

// DrainEvents returns every pending event without blocking, oldest first.
func (a *Aggregator) DrainEvents() []Event {
	return a.events.Drain()
}

// EventStats reports how many events were published and how many were overwritten unread.
func (a *Aggregator) EventStats() ringchan.Stats {
	return a.events.Stats()
}
