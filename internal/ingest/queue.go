package ingest

import "sync/atomic"

// Queue is the bounded buffer between ingestion adapters and the
// single consuming engine goroutine.
//
// Producers choose their overflow policy per channel: TCP handlers use
// TryEnqueue and shed the new event (the sensor will resend), while the
// radio reader uses EnqueueDropOldest because a fresh reading is worth
// more than a stale one. Either way the engine never blocks producers
// and overflow is counted, not silent.
type Queue struct {
	ch      chan RawEvent
	dropped atomic.Uint64
}

// NewQueue creates a queue holding at most size events.
func NewQueue(size int) *Queue {
	return &Queue{ch: make(chan RawEvent, size)}
}

// Events returns the receive side for the consuming engine.
func (q *Queue) Events() <-chan RawEvent {
	return q.ch
}

// TryEnqueue adds an event if there is room.
//
// Returns:
//   - bool: false if the queue was full and the event was shed
func (q *Queue) TryEnqueue(ev RawEvent) bool {
	select {
	case q.ch <- ev:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// EnqueueDropOldest adds an event, evicting the oldest queued event if
// the queue is full. Relies on there being a single consumer; with one
// the eviction loop always terminates.
func (q *Queue) EnqueueDropOldest(ev RawEvent) {
	for {
		select {
		case q.ch <- ev:
			return
		default:
			select {
			case <-q.ch:
				q.dropped.Add(1)
			default:
			}
		}
	}
}

// Dropped returns the number of events shed since startup.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

// Len returns the number of events currently queued.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Full reports whether the queue has no room left. Advisory only: the
// engine may drain between the check and an enqueue.
func (q *Queue) Full() bool {
	return len(q.ch) == cap(q.ch)
}
