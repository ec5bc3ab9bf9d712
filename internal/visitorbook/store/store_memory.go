// Package store persists the visitor registry. InMemoryStore and PostgresStore
// are complete backends; RedisCache decorates PostgresStore with a read-through
// cache of facts that never change once written. Cached facts outlive the
// process, so the cache must only front a store that does too.
package store

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"visitorbook/pkg/platform/sentinel"
	"visitorbook/pkg/platform/tx"
)

// InMemoryStore keeps the registry in process memory. The visitor list and
// the membership set are updated under the same lock. Writes made inside a
// tx.LockRunner call are undone if that call fails.
type InMemoryStore struct {
	mu       sync.RWMutex
	fee      *uint256.Int
	visitors []common.Address
	visited  map[common.Address]struct{}
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		visited: make(map[common.Address]struct{}),
	}
}

func (s *InMemoryStore) InitFee(ctx context.Context, fee *uint256.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fee != nil {
		return sentinel.ErrAlreadyUsed
	}
	s.fee = fee.Clone()
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.fee = nil
	})
	return nil
}

func (s *InMemoryStore) Fee(_ context.Context) (*uint256.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fee == nil {
		return nil, sentinel.ErrNotFound
	}
	return s.fee.Clone(), nil
}

func (s *InMemoryStore) AppendVisitor(ctx context.Context, addr common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.visited[addr]; ok {
		return sentinel.ErrConflict
	}
	s.visitors = append(s.visitors, addr)
	s.visited[addr] = struct{}{}
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.visitors = s.visitors[:len(s.visitors)-1]
		delete(s.visited, addr)
	})
	return nil
}

func (s *InMemoryStore) CountVisitors(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.visitors)), nil
}

func (s *InMemoryStore) VisitorAt(_ context.Context, index uint64) (common.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index >= uint64(len(s.visitors)) {
		return common.Address{}, sentinel.ErrNotFound
	}
	return s.visitors[index], nil
}

func (s *InMemoryStore) HasVisited(_ context.Context, addr common.Address) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.visited[addr]
	return ok, nil
}

func (s *InMemoryStore) ListVisitors(_ context.Context) ([]common.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]common.Address, len(s.visitors))
	copy(out, s.visitors)
	return out, nil
}
