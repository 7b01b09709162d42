package binary

import (
	"sync"
	"time"
)

// SentEntry is one recorded notification: the identifier the gateway will
// reference in an error response, the raw frame bytes, and the enqueue time.
type SentEntry struct {
	Identifier uint32
	Frame      []byte
	SentAt     time.Time
}

// SentBuffer is a bounded, ordered history of recently written frames, keyed
// by insertion order. After the gateway reports an error the connection
// replays everything recorded after the failed identifier from here.
//
// This is best-effort replay, not a durable queue: eviction silently drops
// the oldest entries once the count or age bound is exceeded.
type SentBuffer struct {
	mu       sync.Mutex
	entries  []SentEntry
	maxCount int
	maxAge   time.Duration

	now func() time.Time // replaced in tests
}

// NewSentBuffer creates a buffer holding at most maxCount entries, each for
// at most maxAge. A zero maxCount or maxAge disables that bound.
func NewSentBuffer(maxCount int, maxAge time.Duration) *SentBuffer {
	return &SentBuffer{
		entries:  make([]SentEntry, 0, maxCount),
		maxCount: maxCount,
		maxAge:   maxAge,
		now:      time.Now,
	}
}

// Record appends a sent frame. Amortized O(1); evicts oldest-first when a
// bound is exceeded.
func (b *SentBuffer) Record(identifier uint32, frame []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, SentEntry{
		Identifier: identifier,
		Frame:      frame,
		SentAt:     b.now(),
	})
	b.evictLocked()
}

func (b *SentBuffer) evictLocked() {
	if b.maxCount > 0 && len(b.entries) > b.maxCount {
		b.entries = b.entries[len(b.entries)-b.maxCount:]
	}
	if b.maxAge <= 0 {
		return
	}
	deadline := b.now().Add(-b.maxAge)
	// Entries are ordered by enqueue time, so the live region is a suffix.
	i := 0
	for i < len(b.entries) && b.entries[i].SentAt.Before(deadline) {
		i++
	}
	if i > 0 {
		b.entries = b.entries[i:]
	}
}

// DiscardThrough empties the buffer and returns the entries recorded after
// the given identifier, in original send order. The erroring identifier
// itself is always discarded; the gateway has judged it invalid.
//
// If the identifier is not present (evicted, or never sent) nothing is
// matched and the entire buffer contents are returned: a conservative policy
// that favors redundant delivery over silent loss.
func (b *SentBuffer) DiscardThrough(identifier uint32) []SentEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	start := 0
	for i, e := range b.entries {
		if e.Identifier == identifier {
			start = i + 1
			break
		}
	}
	remainder := make([]SentEntry, len(b.entries)-start)
	copy(remainder, b.entries[start:])
	b.entries = b.entries[:0]
	return remainder
}

// Len returns the number of recorded entries.
func (b *SentBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
