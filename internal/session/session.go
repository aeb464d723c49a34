// Package session wires a scan source, the aggregator and a store together:
// every mutation of the aggregator is followed by persisting the affected records.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/segmentio/ksuid"
	"github.com/sirupsen/logrus"

	"github.com/srg/tagscan/aggregator"
	"github.com/srg/tagscan/internal/groutine"
	"github.com/srg/tagscan/internal/metrics"
	"github.com/srg/tagscan/internal/source"
	"github.com/srg/tagscan/internal/storage"
	"github.com/srg/tagscan/internal/tag"
)

var (
	// ErrNoSource is returned by Trigger when the session was built without a source.
	ErrNoSource = errors.New("session has no scan source")
	// ErrPersist marks a record that is tracked in memory but could not be saved.
	ErrPersist = errors.New("persist failed")
)

const (
	DefaultHistorySize uint32 = 64
	defaultRetryDelay         = 100 * time.Millisecond
)

// TriggerSummary describes one completed trigger.
type TriggerSummary struct {
	ID              string    `json:"id"`
	At              time.Time `json:"at"`
	Sightings       int       `json:"sightings"`
	New             int       `json:"new"`
	Updated         int       `json:"updated"`
	Tracked         int       `json:"tracked"`
	PersistFailures int       `json:"persist_failures"`
}

// Options configures a Session. Zero values select defaults.
type Options struct {
	// SaveRetries is how many extra attempts a failed Save gets.
	SaveRetries int
	RetryDelay  time.Duration
	// HistorySize bounds the trigger history; older summaries are overwritten.
	HistorySize uint32
	Metrics     *metrics.Metrics
	Logger      *logrus.Logger
	Clock       func() time.Time
}

type Session struct {
	id      string
	agg     *aggregator.Aggregator
	store   storage.Store
	src     source.Source
	metrics *metrics.Metrics
	history mpmc.RichOverlappedRingBuffer[TriggerSummary]
	logger  *logrus.Logger
	now     func() time.Time

	retries    int
	retryDelay time.Duration

	// mu covers an aggregator mutation and the saves that follow it, so the
	// store applies writes in aggregator order and Clear cannot interleave.
	mu sync.Mutex
}

// New creates a session. src may be nil for sessions that only record manual sightings.
func New(agg *aggregator.Aggregator, store storage.Store, src source.Source, opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.HistorySize == 0 {
		opts.HistorySize = DefaultHistorySize
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &Session{
		id:         uuid.NewString(),
		agg:        agg,
		store:      store,
		src:        src,
		metrics:    opts.Metrics,
		history:    mpmc.NewOverlappedRingBuffer[TriggerSummary](opts.HistorySize),
		logger:     opts.Logger,
		now:        opts.Clock,
		retries:    opts.SaveRetries,
		retryDelay: opts.RetryDelay,
	}
}

// ID uniquely identifies this session in logs.
func (s *Session) ID() string { return s.id }

func (s *Session) log() *logrus.Entry {
	return s.logger.WithField("session", s.id)
}

// Restore loads every stored record into the aggregator.
func (s *Session) Restore(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.store.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load stored tags: %w", err)
	}
	if err := s.agg.Restore(records); err != nil {
		return 0, err
	}
	s.metrics.SetTracked(len(records))
	s.log().WithField("tag_count", len(records)).Info("Restored tags from storage")
	return len(records), nil
}

// Trigger runs one read on the source and aggregates and persists its sightings.
func (s *Session) Trigger(ctx context.Context) (TriggerSummary, error) {
	if s.src == nil {
		return TriggerSummary{}, ErrNoSource
	}

	sightings, err := s.src.Trigger(ctx)
	if err != nil {
		return TriggerSummary{}, fmt.Errorf("trigger %s: %w", s.src.Name(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch, err := s.agg.RecordBatchSummary(sightings)
	if err != nil {
		return TriggerSummary{}, err
	}

	summary := TriggerSummary{
		ID:              ksuid.New().String(),
		At:              s.now(),
		Sightings:       len(sightings),
		New:             batch.New,
		Updated:         batch.Updated,
		Tracked:         s.agg.Count(),
		PersistFailures: s.persist(ctx, latestPerEPC(batch.Records)),
	}

	s.metrics.ObserveTrigger(summary.Sightings)
	s.metrics.ObserveSightings(summary.New, summary.Updated)
	s.metrics.SetTracked(summary.Tracked)
	s.observeEvents()

	if overwrites, err := s.history.EnqueueM(summary); err != nil {
		s.log().WithError(err).Warn("Failed to record trigger history")
	} else if overwrites > 0 {
		s.log().WithField("overwritten", overwrites).Debug("Trigger history full, dropped oldest")
	}

	s.log().WithFields(logrus.Fields{
		"trigger":   summary.ID,
		"sightings": summary.Sightings,
		"new":       summary.New,
		"updated":   summary.Updated,
		"tracked":   summary.Tracked,
	}).Info("Trigger completed")
	return summary, nil
}

// Run fires Trigger every interval until ctx is cancelled. Trigger errors are
// logged and the loop continues. onTrigger, when set, sees every summary.
func (s *Session) Run(ctx context.Context, interval time.Duration, onTrigger func(TriggerSummary)) error {
	if interval <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %s", tag.ErrInvalidArgument, interval)
	}

	done := groutine.Go(ctx, "trigger-loop", func(ctx context.Context) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				summary, err := s.Trigger(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					s.log().WithError(err).WithField("goroutine", groutine.Name(ctx)).Warn("Trigger failed")
					continue
				}
				if onTrigger != nil {
					onTrigger(summary)
				}
			}
		}
	})

	<-done
	return ctx.Err()
}

// Record applies one manual sighting and persists the result.
func (s *Session) Record(ctx context.Context, sighting tag.Sighting) (tag.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.agg.RecordSighting(sighting.EPC, sighting.RSSI, sighting.Timestamp)
	if err != nil {
		return tag.Record{}, err
	}

	if rec.SeenCount == 1 {
		s.metrics.ObserveSightings(1, 0)
	} else {
		s.metrics.ObserveSightings(0, 1)
	}
	s.metrics.SetTracked(s.agg.Count())
	s.observeEvents()

	if failures := s.persist(ctx, []tag.Record{rec}); failures > 0 {
		return rec, fmt.Errorf("persist tag %s: %w", rec.EPC, ErrPersist)
	}
	return rec, nil
}

// RecordBatch applies sightings as one read and persists the final state of every touched tag.
// Persist failures are reported in the returned error while aggregator state is kept.
func (s *Session) RecordBatch(ctx context.Context, sightings []tag.Sighting) (aggregator.BatchSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, err := s.agg.RecordBatchSummary(sightings)
	if err != nil {
		return aggregator.BatchSummary{}, err
	}

	s.metrics.ObserveSightings(batch.New, batch.Updated)
	s.metrics.SetTracked(s.agg.Count())
	s.observeEvents()

	if failures := s.persist(ctx, latestPerEPC(batch.Records)); failures > 0 {
		return batch, fmt.Errorf("persist %d tags: %w", failures, ErrPersist)
	}
	return batch, nil
}

// Clear empties the aggregator, then the store.
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.agg.Clear()
	s.metrics.SetTracked(0)
	s.observeEvents()
	if err := s.store.DeleteAll(ctx); err != nil {
		return fmt.Errorf("delete stored tags: %w", err)
	}
	s.log().Info("Cleared stored tags")
	return nil
}

func (s *Session) Snapshot() []tag.Record { return s.agg.Snapshot() }

func (s *Session) Count() int { return s.agg.Count() }

func (s *Session) Get(epc string) (tag.Record, bool) { return s.agg.Get(epc) }

// DrainEvents returns the tag changes published since the previous drain.
func (s *Session) DrainEvents() []aggregator.Event { return s.agg.DrainEvents() }

func (s *Session) observeEvents() {
	s.metrics.ObserveEventDrops(s.agg.EventStats().Dropped)
}

// RecentTriggers drains the trigger history, oldest first.
func (s *Session) RecentTriggers() []TriggerSummary {
	var out []TriggerSummary
	for !s.history.IsEmpty() {
		summary, err := s.history.Dequeue()
		if err != nil {
			break
		}
		out = append(out, summary)
	}
	return out
}

// persist saves each record with retries and returns how many could not be saved.
func (s *Session) persist(ctx context.Context, records []tag.Record) int {
	failures := 0
	for _, rec := range records {
		if err := s.saveWithRetry(ctx, rec); err != nil {
			failures++
			s.metrics.PersistFailed()
			s.log().WithError(err).WithField("epc", rec.EPC).Error("Failed to persist tag")
		}
	}
	return failures
}

func (s *Session) saveWithRetry(ctx context.Context, rec tag.Record) error {
	var err error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return errors.Join(err, ctx.Err())
			case <-time.After(s.retryDelay * time.Duration(attempt)):
			}
			s.log().WithFields(logrus.Fields{
				"epc":     rec.EPC,
				"attempt": attempt + 1,
			}).Debug("Retrying save")
		}
		if err = s.store.Save(ctx, rec); err == nil {
			return nil
		}
	}
	return err
}

// latestPerEPC keeps the last record of each EPC, in first-appearance order.
func latestPerEPC(records []tag.Record) []tag.Record {
	index := make(map[string]int, len(records))
	out := make([]tag.Record, 0, len(records))
	for _, r := range records {
		if i, ok := index[r.EPC]; ok {
			out[i] = r
			continue
		}
		index[r.EPC] = len(out)
		out = append(out, r)
	}
	return out
}
