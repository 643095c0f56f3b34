// Package buffer implements the bounded event queue between the producer and
// the frame consumer, plus the pure window extraction applied to its snapshots.
//
// Philosophy: "Drop events, never queue unboundedly. Latency > Completeness."
//
// The buffer is the single point of contention in the pipeline: exactly one
// producer pushes into it and exactly one consumer snapshots and trims it.
// Every critical section is copy-out then release; no weighting or
// rasterization ever runs under the lock.
package buffer

import (
	"sync"

	"github.com/hetk987/Dynamic-Event-Capture/internal/types"
)

// DefaultCapacity is the default bounded size of the event buffer.
// Matches the sensor-side batch sizing: at a few hundred thousand events per
// second with producer downsampling, 50k events cover several frame intervals.
const DefaultCapacity = 50000

// EventBuffer is a bounded FIFO of events with overflow-by-eviction semantics.
//
// Contract:
//   - Push never blocks and never fails; at capacity it evicts the single
//     oldest element (ring-buffer semantics).
//   - The buffer never reorders: insertion order is preserved. Appending in
//     non-decreasing timestamp order is the producer's responsibility.
//   - All methods are mutually exclusive with each other; safe for one
//     producer goroutine and one consumer goroutine (or any number, though
//     the pipeline uses exactly two).
type EventBuffer struct {
	mu sync.Mutex

	ring  []types.Event
	head  int // index of the oldest element
	count int // occupied slots, always ≤ len(ring)

	evicted uint64 // lifetime count of events dropped by overflow
	pushed  uint64 // lifetime count of events pushed
}

// New creates an EventBuffer with the given capacity.
// Capacity ≤ 0 falls back to DefaultCapacity.
func New(capacity int) *EventBuffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &EventBuffer{ring: make([]types.Event, capacity)}
}

// Cap returns the fixed capacity C of the buffer.
func (b *EventBuffer) Cap() int { return len(b.ring) }

// Len returns the current occupied count.
func (b *EventBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Push appends one event, evicting the oldest element first when full.
// Amortized O(1), never blocks, never fails (lossy backpressure).
func (b *EventBuffer) Push(ev types.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == len(b.ring) {
		// Evict the oldest: advance head, reuse its slot.
		b.head = b.next(b.head)
		b.count--
		b.evicted++
	}

	b.ring[(b.head+b.count)%len(b.ring)] = ev
	b.count++
	b.pushed++
}

// PushBatch appends a batch of events under a single lock acquisition.
// Equivalent to calling Push for each event, amortizing the lock cost for
// the producer's batch-shaped input.
func (b *EventBuffer) PushBatch(events []types.Event) {
	if len(events) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ev := range events {
		if b.count == len(b.ring) {
			b.head = b.next(b.head)
			b.count--
			b.evicted++
		}
		b.ring[(b.head+b.count)%len(b.ring)] = ev
		b.count++
		b.pushed++
	}
}

// Snapshot returns a consistent point-in-time copy of the buffer contents
// in FIFO order, atomic with respect to concurrent Push. The returned slice
// is owned by the caller; the buffer is not mutated.
func (b *EventBuffer) Snapshot() []types.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}

	out := make([]types.Event, b.count)
	n := copy(out, b.ring[b.head:min(b.head+b.count, len(b.ring))])
	if n < b.count {
		copy(out[n:], b.ring[:b.count-n]) // wrapped segment
	}
	return out
}

// RemovePrefix atomically removes the n oldest elements. Called by the
// consumer after a window has been accumulated. n larger than the current
// length is a contract violation; the implementation clamps rather than
// corrupting state (new events may have arrived since the snapshot, never
// fewer).
func (b *EventBuffer) RemovePrefix(n int) {
	if n <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if n > b.count {
		n = b.count
	}
	b.head = (b.head + n) % len(b.ring)
	b.count -= n
}

// Stats is a snapshot of buffer counters for telemetry.
type Stats struct {
	// Len is the occupied count at snapshot time.
	Len int
	// Cap is the fixed capacity.
	Cap int
	// Pushed is the lifetime count of pushed events.
	Pushed uint64
	// Evicted is the lifetime count of events dropped by overflow.
	// Non-zero means the consumer is not keeping up with the producer.
	Evicted uint64
}

// Stats returns a consistent counter snapshot.
func (b *EventBuffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{Len: b.count, Cap: len(b.ring), Pushed: b.pushed, Evicted: b.evicted}
}

func (b *EventBuffer) next(i int) int {
	i++
	if i == len(b.ring) {
		return 0
	}
	return i
}
