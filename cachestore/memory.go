package cachestore

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryStore is a thread-safe in-process TTL store. Expired entries are
// reaped by a background goroutine; reads also check expiry so a stale
// entry is never returned between sweeps.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]Entry

	// Statistics, always on.
	hits   atomic.Int64
	misses atomic.Int64
	sets   atomic.Int64

	shutdown chan struct{}
	done     chan struct{}
	once     sync.Once
}

// MemoryStats is a snapshot of store counters.
type MemoryStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
	Size   int   `json:"size"`
}

// NewMemoryStore creates a memory store and starts its cleanup goroutine.
// cleanupInterval <= 0 defaults to one minute.
func NewMemoryStore(ctx context.Context, cleanupInterval time.Duration) *MemoryStore {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	s := &MemoryStore{
		items:    make(map[string]Entry),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.cleanup(ctx, cleanupInterval)
	return s
}

// Get retrieves an entry, treating expired entries as misses.
func (s *MemoryStore) Get(_ context.Context, key Key) (Entry, bool, error) {
	if err := key.Validate(); err != nil {
		return Entry{}, false, err
	}

	s.mu.RLock()
	entry, ok := s.items[key.String()]
	s.mu.RUnlock()

	if !ok || entry.Expired(time.Now()) {
		s.misses.Add(1)
		return Entry{}, false, nil
	}

	s.hits.Add(1)
	return entry, true, nil
}

// Put stores an entry. Concurrent writes to the same key resolve
// last-write-wins on later expiry: an entry never replaces one that
// outlives it.
func (s *MemoryStore) Put(_ context.Context, key Key, entry Entry, ttl time.Duration) error {
	if err := key.Validate(); err != nil {
		return err
	}
	entry.ExpiresAt = time.Now().Add(ttl)
	if entry.ResolvedAt.IsZero() {
		entry.ResolvedAt = time.Now()
	}

	k := key.String()
	s.mu.Lock()
	if existing, ok := s.items[k]; !ok || !existing.ExpiresAt.After(entry.ExpiresAt) {
		s.items[k] = entry
	}
	s.mu.Unlock()

	s.sets.Add(1)
	return nil
}

// Invalidate removes an entry by key.
func (s *MemoryStore) Invalidate(_ context.Context, key Key) error {
	if err := key.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.items, key.String())
	s.mu.Unlock()
	return nil
}

// Stats returns a snapshot of store counters.
func (s *MemoryStore) Stats() MemoryStats {
	s.mu.RLock()
	size := len(s.items)
	s.mu.RUnlock()
	return MemoryStats{
		Hits:   s.hits.Load(),
		Misses: s.misses.Load(),
		Sets:   s.sets.Load(),
		Size:   size,
	}
}

// Close stops the cleanup goroutine.
func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.shutdown) })
	<-s.done
	return nil
}

func (s *MemoryStore) cleanup(ctx context.Context, interval time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdown:
			return
		case <-ticker.C:
			s.removeExpired()
		}
	}
}

func (s *MemoryStore) removeExpired() {
	now := time.Now()
	s.mu.Lock()
	for k, entry := range s.items {
		if entry.Expired(now) {
			delete(s.items, k)
		}
	}
	s.mu.Unlock()
}
