package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/CentralLabFacilities/bonsai-sub000/pkg/domain"
)

// Store implements ports.SlotStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string][]byte
	mu   sync.RWMutex
}

// NewStore creates a new in-memory slot store.
func NewStore() *Store {
	return &Store{
		data: make(map[string][]byte),
	}
}

// Set stores a copy of value under name.
func (s *Store) Set(ctx context.Context, name string, value []byte) error {
	copied := append([]byte(nil), value...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[name] = copied
	return nil
}

// Get returns a copy of the value stored under name.
func (s *Store) Get(ctx context.Context, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.data[name]
	if !ok {
		return nil, domain.ErrSlotEmpty
	}
	return append([]byte(nil), value...), nil
}

// Delete clears the slot.
func (s *Store) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, name)
	return nil
}

// Keys returns the names of all filled slots, sorted.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
