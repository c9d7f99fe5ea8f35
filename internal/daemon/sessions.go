package daemon

import (
	"sync"
	"time"

	"github.com/haasonsaas/shammah/internal/convo"
)

const minEvictionInterval = 60 * time.Second

// sessionEntry pairs a conversation store with the bookkeeping the session
// map needs for idle eviction (spec §4.9, §5's "Session map" row).
type sessionEntry struct {
	store    *convo.Store
	session  *storeSession
}

// storeSession tracks activity independently of the conversation contents
// so a session with an empty conversation is still evictable.
type storeSession struct {
	mu           sync.Mutex
	lastActivity time.Time
}

func (s *storeSession) touch(now time.Time) {
	s.mu.Lock()
	s.lastActivity = now
	s.mu.Unlock()
}

func (s *storeSession) idle(d time.Duration, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActivity) >= d
}

// SessionManager is the process-wide session map: a concurrent map with a
// per-key mutable entry, evicted by a background ticker (spec §5's
// "Session map" row; min eviction interval is 60s per §4.9).
type SessionManager struct {
	mu          sync.RWMutex
	sessions    map[string]*sessionEntry
	idleTimeout time.Duration

	stop chan struct{}
	done chan struct{}

	onEvict func(id string)
}

// NewSessionManager builds a SessionManager and starts its eviction loop.
// idleTimeout <= 0 disables eviction entirely (sessions live until deleted).
func NewSessionManager(idleTimeout time.Duration) *SessionManager {
	m := &SessionManager{
		sessions:    make(map[string]*sessionEntry),
		idleTimeout: idleTimeout,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	go m.evictLoop()
	return m
}

// GetOrCreate resolves an existing session or creates a fresh one, marking
// it active in both cases.
func (m *SessionManager) GetOrCreate(id string) *convo.Store {
	now := time.Now()

	m.mu.RLock()
	entry, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		entry.session.touch(now)
		return entry.store
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.sessions[id]; ok {
		entry.session.touch(now)
		return entry.store
	}
	entry = &sessionEntry{
		store:   convo.New(id),
		session: &storeSession{lastActivity: now},
	}
	m.sessions[id] = entry
	return entry.store
}

// Get returns an existing session's store without creating one.
func (m *SessionManager) Get(id string) (*convo.Store, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	return entry.store, true
}

// Delete removes a session immediately, independent of idle eviction.
func (m *SessionManager) Delete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	return true
}

// Count returns the number of live sessions.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close stops the eviction loop.
func (m *SessionManager) Close() {
	close(m.stop)
	<-m.done
}

func (m *SessionManager) evictLoop() {
	defer close(m.done)
	if m.idleTimeout <= 0 {
		<-m.stop
		return
	}
	interval := m.idleTimeout / 4
	if interval < minEvictionInterval {
		interval = minEvictionInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.evictIdle(time.Now())
		case <-m.stop:
			return
		}
	}
}

func (m *SessionManager) evictIdle(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, entry := range m.sessions {
		if entry.session.idle(m.idleTimeout, now) {
			delete(m.sessions, id)
			if m.onEvict != nil {
				m.onEvict(id)
			}
		}
	}
}
