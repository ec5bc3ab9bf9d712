package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"visitorbook/pkg/platform/tx"
)

// InMemoryStore keeps unpublished outbox entries in insertion order. Entries
// are dropped once marked published.
type InMemoryStore struct {
	mu      sync.Mutex
	entries []Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(ctx context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.entries = removeIDs(s.entries, map[uuid.UUID]struct{}{entry.ID: {}})
	})
	return nil
}

func (s *InMemoryStore) Pending(_ context.Context, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Entry, n)
	copy(out, s.entries[:n])
	return out, nil
}

func (s *InMemoryStore) MarkPublished(_ context.Context, ids []uuid.UUID, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	marked := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		marked[id] = struct{}{}
	}
	s.entries = removeIDs(s.entries, marked)
	return nil
}

// All returns every entry not yet published.
func (s *InMemoryStore) All() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// removeIDs compacts entries in place, keeping order.
func removeIDs(entries []Entry, ids map[uuid.UUID]struct{}) []Entry {
	kept := entries[:0]
	for _, e := range entries {
		if _, ok := ids[e.ID]; !ok {
			kept = append(kept, e)
		}
	}
	clear(entries[len(kept):])
	return kept
}
