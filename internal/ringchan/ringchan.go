// Package ringchan provides a bounded channel that never blocks producers.
package ringchan

import "sync/atomic"

// RingChannel is a buffered channel with overwrite-oldest semantics.
//
// Producers call Send and never block: when the buffer is full the oldest
// value is discarded to make room. Consumers read from C like any channel.
//
//	rc := ringchan.New[int](3)
//	for i := 0; i < 10; i++ {
//	    rc.Send(i)
//	}
//	// only 7, 8 and 9 are left in rc.C()
type RingChannel[T any] struct {
	ch      chan T
	sent    atomic.Int64
	dropped atomic.Int64
}

// New creates a RingChannel holding at most capacity values.
func New[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the receive side of the channel.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// Send enqueues v, discarding the oldest value if the buffer is full.
// It reports whether a value was dropped.
//
// Concurrent producers may race for the freed slot; the loser retries, so
// Send still never blocks on a consumer.
func (rc *RingChannel[T]) Send(v T) bool {
	dropped := false
	for {
		select {
		case rc.ch <- v:
			rc.sent.Add(1)
			return dropped
		default:
		}

		select {
		case <-rc.ch:
			rc.dropped.Add(1)
			dropped = true
		default:
		}
	}
}

// TryReceive returns the next value without blocking.
func (rc *RingChannel[T]) TryReceive() (v T, ok bool) {
	select {
	case v, ok = <-rc.ch:
		return v, ok
	default:
		var zero T
		return zero, false
	}
}

// Drain removes and returns every buffered value.
func (rc *RingChannel[T]) Drain() []T {
	var out []T
	for {
		v, ok := rc.TryReceive()
		if !ok {
			return out
		}
		out = append(out, v)
	}
}

// Len returns the number of buffered values.
func (rc *RingChannel[T]) Len() int {
	return len(rc.ch)
}

// Cap returns the buffer capacity.
func (rc *RingChannel[T]) Cap() int {
	return cap(rc.ch)
}

// Stats is a point-in-time view of the channel counters.
type Stats struct {
	Sent    int64
	Dropped int64
}

// Stats returns the number of values sent and overwritten so far.
func (rc *RingChannel[T]) Stats() Stats {
	return Stats{
		Sent:    rc.sent.Load(),
		Dropped: rc.dropped.Load(),
	}
}
