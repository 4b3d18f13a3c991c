package progress

import (
	"context"
	"sync"
	"time"

	"github.com/hbomb79/Trove/pkg/logger"
)

var log = logger.Get("ProgressStore")

type (
	memorySession struct {
		Counters
		scanning  bool
		expiresAt time.Time
	}

	// MemoryStore is a Store held entirely in this process. Expired sessions
	// are invisible immediately, and are removed by the janitor which is
	// started by Run.
	MemoryStore struct {
		mutex    sync.Mutex
		sessions map[string]*memorySession
		ttl      time.Duration
		interval time.Duration
		now      func() time.Time
	}
)

func NewMemoryStore(config Config) *MemoryStore {
	config = config.withDefaults()
	return &MemoryStore{
		sessions: make(map[string]*memorySession),
		ttl:      config.TTL,
		interval: config.JanitorInterval,
		now:      time.Now,
	}
}

// Run starts the janitor for this store, which evicts expired sessions
// until the context is cancelled.
func (store *MemoryStore) Run(ctx context.Context) error {
	ticker := time.NewTicker(store.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := store.evictExpired(); n > 0 {
				log.Debugf("Evicted %d expired progress sessions\n", n)
			}
		}
	}
}

func (store *MemoryStore) IncrementTotal(_ context.Context, sessionID string) error {
	store.mutate(sessionID, func(s *memorySession) { s.Total++ })
	return nil
}

func (store *MemoryStore) IncrementDone(_ context.Context, sessionID string) error {
	store.mutate(sessionID, func(s *memorySession) { s.Done++ })
	return nil
}

func (store *MemoryStore) IncrementFailed(_ context.Context, sessionID string) error {
	store.mutate(sessionID, func(s *memorySession) { s.Failed++ })
	return nil
}

func (store *MemoryStore) SetCancelled(_ context.Context, sessionID string) error {
	store.mutate(sessionID, func(s *memorySession) { s.Cancelled = true })
	return nil
}

func (store *MemoryStore) Get(_ context.Context, sessionID string) (Counters, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if s := store.live(sessionID); s != nil {
		return s.Counters, nil
	}

	return Counters{}, nil
}

func (store *MemoryStore) IsCancelled(ctx context.Context, sessionID string) (bool, error) {
	c, err := store.Get(ctx, sessionID)
	return c.Cancelled, err
}

func (store *MemoryStore) BeginScan(_ context.Context, sessionID string) (bool, error) {
	if sessionID == "" {
		return true, nil
	}

	store.mutex.Lock()
	defer store.mutex.Unlock()

	if s := store.live(sessionID); s != nil && s.scanning {
		return false, nil
	}

	store.session(sessionID).scanning = true
	return true, nil
}

func (store *MemoryStore) EndScan(_ context.Context, sessionID string) error {
	store.mutate(sessionID, func(s *memorySession) {
		s.scanning = false
		s.Cancelled = false
	})
	return nil
}

// mutate applies the change to the session under lock, creating (or
// resetting an expired) session as needed and refreshing its TTL.
func (store *MemoryStore) mutate(sessionID string, f func(*memorySession)) {
	if sessionID == "" {
		return
	}

	store.mutex.Lock()
	defer store.mutex.Unlock()

	f(store.session(sessionID))
}

// session returns the live session for the ID, replacing it if expired.
// The returned session has its expiry refreshed. Caller must hold the mutex.
func (store *MemoryStore) session(sessionID string) *memorySession {
	s := store.live(sessionID)
	if s == nil {
		s = &memorySession{}
		store.sessions[sessionID] = s
	}

	s.expiresAt = store.now().Add(store.ttl)
	return s
}

// live returns the session if it exists and has not expired. Caller must hold the mutex.
func (store *MemoryStore) live(sessionID string) *memorySession {
	s, ok := store.sessions[sessionID]
	if !ok || !store.now().Before(s.expiresAt) {
		return nil
	}

	return s
}

func (store *MemoryStore) evictExpired() int {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	now := store.now()
	evicted := 0
	for id, s := range store.sessions {
		if !now.Before(s.expiresAt) {
			delete(store.sessions, id)
			evicted++
		}
	}

	return evicted
}
