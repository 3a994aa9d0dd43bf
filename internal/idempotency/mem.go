package idempotency

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value   string
	expires time.Time
}

// MemStore is the single-process fallback used when no Redis is configured.
type MemStore struct {
	mu  sync.Mutex
	m   map[string]entry
	now func() time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{m: map[string]entry{}, now: time.Now}
}

func (s *MemStore) get(key string) (entry, bool) {
	e, ok := s.m[key]
	if ok && !s.now().Before(e.expires) {
		delete(s.m, key)
		return entry{}, false
	}
	return e, ok
}

func (s *MemStore) Claim(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.get(key); ok {
		if e.value == pending {
			return "", false, ErrInFlight
		}
		return e.value, false, nil
	}
	s.m[key] = entry{value: pending, expires: s.now().Add(TTLPending)}
	return "", true, nil
}

func (s *MemStore) Complete(_ context.Context, key, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = entry{value: orderID, expires: s.now().Add(TTLResult)}
	return nil
}

func (s *MemStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}
