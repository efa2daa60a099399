package store

import (
	"context"
	"sync"
	"time"

	"janua/engine/internal/mfa/domain"
)

// MemoryStore is an in-memory Store for tests and single-process deployments
// without Redis. Expiry is enforced on read rather than by TTL eviction.
type MemoryStore struct {
	mu      sync.Mutex
	m       map[string]*memEntry
	current map[string]string // tenant:user -> challenge id
	nowF    func() time.Time
}

type memEntry struct {
	c        domain.Challenge
	deadline time.Time
}

// NewMemoryStore returns a new in-memory challenge store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		m:       make(map[string]*memEntry),
		current: make(map[string]string),
		nowF:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Put(ctx context.Context, c *domain.Challenge, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Second
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := c.TenantID + ":" + c.UserID
	if prev, ok := s.current[cur]; ok && prev != c.ID {
		if e, ok := s.m[prev]; ok && e.c.State == domain.StateCreated {
			e.c.State = domain.StateInvalid
		}
	}
	cp := *c
	s.m[c.ID] = &memEntry{c: cp, deadline: s.nowF().Add(ttl)}
	s.current[cur] = c.ID
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*domain.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(id)
	if !ok {
		return nil, ErrNotFound
	}
	cp := e.c
	return &cp, nil
}

func (s *MemoryStore) IncrementAttempts(ctx context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(id)
	if !ok {
		return 0, ErrNotFound
	}
	e.c.Attempts++
	return e.c.Attempts, nil
}

func (s *MemoryStore) Consume(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(id)
	if !ok {
		return false, nil
	}
	if e.c.State != domain.StateCreated {
		return false, nil
	}
	e.c.State = domain.StateConsumed
	return true, nil
}

func (s *MemoryStore) Invalidate(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.live(id); ok {
		e.c.State = domain.StateInvalid
	}
	return nil
}

// live returns the entry when present and unexpired; expired entries are
// dropped. Caller holds the lock.
func (s *MemoryStore) live(id string) (*memEntry, bool) {
	e, ok := s.m[id]
	if !ok {
		return nil, false
	}
	if !e.deadline.After(s.nowF()) {
		delete(s.m, id)
		return nil, false
	}
	return e, true
}
