package testutils

import (
	"context"
	"slices"
	"sync"

	"github.com/lessucettes/chatgate/internal/store"
)

// InMemoryStore is a map-backed store.Store with error injection.
type InMemoryStore struct {
	mu          sync.RWMutex
	lists       map[string][]string
	calls       int
	errToReturn error
}

var _ store.Store = (*InMemoryStore)(nil)

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{lists: make(map[string][]string)}
}

func (s *InMemoryStore) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errToReturn = err
}

func (s *InMemoryStore) ClearError() {
	s.SetError(nil)
}

// Calls counts GetList invocations.
func (s *InMemoryStore) Calls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls
}

func (s *InMemoryStore) GetList(ctx context.Context, name string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.errToReturn != nil {
		return nil, s.errToReturn
	}
	entries, ok := s.lists[name]
	if !ok {
		return nil, store.ErrNotFound
	}
	return slices.Clone(entries), nil
}

func (s *InMemoryStore) PutList(ctx context.Context, name string, entries []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errToReturn != nil {
		return s.errToReturn
	}
	if entries == nil {
		entries = []string{}
	}
	s.lists[name] = slices.Clone(entries)
	return nil
}

func (s *InMemoryStore) AppendEntry(ctx context.Context, name, entry string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errToReturn != nil {
		return false, s.errToReturn
	}
	if slices.Contains(s.lists[name], entry) {
		return false, nil
	}
	s.lists[name] = append(s.lists[name], entry)
	return true, nil
}

func (s *InMemoryStore) RemoveEntry(ctx context.Context, name, entry string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errToReturn != nil {
		return false, s.errToReturn
	}
	i := slices.Index(s.lists[name], entry)
	if i < 0 {
		return false, nil
	}
	s.lists[name] = slices.Delete(s.lists[name], i, i+1)
	return true, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
