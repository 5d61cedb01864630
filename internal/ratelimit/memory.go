package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps counters in process memory. Expired windows are swept
// periodically so idle clients do not accumulate.
type MemoryStore struct {
	mu            sync.RWMutex
	windows       map[string]window
	limit         int
	length        time.Duration
	now           func() time.Time
	cleanupTicker *time.Ticker
	stopChan      chan struct{}
	closeOnce     sync.Once
}

var (
	_ Store         = (*MemoryStore)(nil)
	_ StatsReporter = (*MemoryStore)(nil)
)

func NewMemoryStore(limit int, length time.Duration) *MemoryStore {
	limit, length = normalize(limit, length)
	s := &MemoryStore{
		windows:  make(map[string]window),
		limit:    limit,
		length:   length,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}

	s.cleanupTicker = time.NewTicker(length)
	go s.cleanup()

	return s
}

func (s *MemoryStore) Allow(ctx context.Context, key string) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, decision := s.windows[key].hit(s.now(), s.limit, s.length)
	s.windows[key] = w
	return decision, nil
}

func (s *MemoryStore) cleanup() {
	for {
		select {
		case <-s.cleanupTicker.C:
			s.performCleanup()
		case <-s.stopChan:
			return
		}
	}
}

func (s *MemoryStore) performCleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, w := range s.windows {
		if !now.Before(w.resetAt) {
			delete(s.windows, key)
		}
	}
}

func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		s.cleanupTicker.Stop()
		close(s.stopChan)
	})
	return nil
}

func (s *MemoryStore) Stats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]interface{}{
		"tracked_keys": len(s.windows),
		"limit":        s.limit,
		"window":       s.length.String(),
	}
}
