package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps attempt timestamps per key under one mutex. Suitable for
// tests and single-process deployments; production uses RedisStore.
type MemoryStore struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{attempts: make(map[string][]time.Time)}
}

func (s *MemoryStore) Admit(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (int, bool, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-window)

	kept := s.attempts[key][:0]
	for _, t := range s.attempts[key] {
		// Strictly after the cutoff: an attempt exactly window-old has expired.
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= limit {
		s.attempts[key] = kept
		return len(kept), false, kept[0], nil
	}

	s.attempts[key] = append(kept, now)
	return len(kept), true, time.Time{}, nil
}
