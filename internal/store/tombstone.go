package store

import (
	"sync"
)

// Tombstones tracks conversation ids that were deleted during this session.
// Every snapshot ingestion and push-driven upsert consults it before
// admitting an id, so a late server response cannot resurrect a deleted
// conversation. The set carries no expiry: it is bounded by session
// lifetime, not by wall time, and dies with the process.
type Tombstones struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

// NewTombstones returns an empty tombstone set.
func NewTombstones() *Tombstones {
	return &Tombstones{ids: make(map[string]struct{})}
}

// Mark records id as deleted.
func (t *Tombstones) Mark(id string) {
	t.mu.Lock()
	t.ids[id] = struct{}{}
	t.mu.Unlock()
}

// Contains reports whether id has been deleted this session.
func (t *Tombstones) Contains(id string) bool {
	t.mu.RLock()
	_, ok := t.ids[id]
	t.mu.RUnlock()
	return ok
}

// Len returns the number of tombstoned ids.
func (t *Tombstones) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.ids)
}
