// Package hotset implements the Hot Set (spec §4.2): a process-local,
// non-durable mapping from timer id to timer record, holding only timers
// inside the activation window. Only the refresh loader writes; only the
// fire scanner reads and removes.
package hotset

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vitaliisemenov/timerd/internal/domain"
)

// HotSet is safe for concurrent use. Readers (fire scanner enumeration)
// outnumber writers (refresh loader replacement, fire scanner eviction),
// so it is backed by a reader/writer lock rather than a bare mutex
// (spec §9 "Shared hot set"). The writer role is never held across I/O.
type HotSet struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]domain.Timer
}

// New returns an empty HotSet.
func New() *HotSet {
	return &HotSet{entries: make(map[uuid.UUID]domain.Timer)}
}

// Rebuild atomically replaces the entire contents of the set. This is the
// "full replacement, not diff" strategy spec §4.3 requires: it guarantees
// timers that left the activation window (canceled, completed, edited)
// disappear within one refresh period without any invalidation protocol.
func (h *HotSet) Rebuild(timers []domain.Timer) {
	next := make(map[uuid.UUID]domain.Timer, len(timers))
	for _, t := range timers {
		next[t.ID] = t
	}
	h.mu.Lock()
	h.entries = next
	h.mu.Unlock()
}

// Due returns copies of every entry whose execute_at is at or before now.
// The read lock is released before the caller acts on the result, per the
// fire scanner's contract of never holding a lock across I/O (spec §4.4).
func (h *HotSet) Due(now time.Time) []domain.Timer {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var due []domain.Timer
	for _, t := range h.entries {
		if !t.ExecuteAt.After(now) {
			due = append(due, t)
		}
	}
	return due
}

// Remove evicts id unconditionally. Safe even if id is already absent or
// the captured copy is stale (spec §4.4 step 3c): the hot set holds only
// copies, so eviction never loses durable state.
func (h *HotSet) Remove(id uuid.UUID) {
	h.mu.Lock()
	delete(h.entries, id)
	h.mu.Unlock()
}

// Len reports the current cardinality, exposed for metrics and tests.
func (h *HotSet) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}
