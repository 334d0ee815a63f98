package cache

import (
	"context"
	"sync"
	"time"
)

// Store keeps serialized lookup results for a limited time.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore is an in-process Store used when no redis is configured.
type MemoryStore struct {
	mu         sync.RWMutex
	items      map[string]memoryEntry
	order      []string
	maxEntries int
	now        func() time.Time
}

// NewMemoryStore creates a MemoryStore holding at most maxEntries keys,
// evicting the oldest first. maxEntries <= 0 means unbounded.
func NewMemoryStore(maxEntries int) *MemoryStore {
	return &MemoryStore{
		items:      make(map[string]memoryEntry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	e, ok := s.items[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if now := s.now(); !now.Before(e.expiresAt) {
		s.dropExpired(key, now)
		return nil, false, nil
	}
	return e.value, true, nil
}

// dropExpired deletes key only if the entry is still expired at now; a
// Set may have replaced it since it was read.
func (s *MemoryStore) dropExpired(key string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.items[key]; ok && !now.Before(e.expiresAt) {
		delete(s.items, key)
		s.removeFromOrder(key)
	}
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[key]; !exists {
		s.order = append(s.order, key)
	}
	s.items[key] = memoryEntry{value: value, expiresAt: s.now().Add(ttl)}

	if s.maxEntries > 0 {
		for len(s.items) > s.maxEntries && len(s.order) > 0 {
			victim := s.order[0]
			s.order = s.order[1:]
			delete(s.items, victim)
		}
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	s.removeFromOrder(key)
	return nil
}

func (s *MemoryStore) removeFromOrder(key string) {
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}
