package chat

import (
	"sync"
	"sync/atomic"
	"time"
)

// sessionIdle is how long an unused session Model is kept. It matches the
// session cookie lifetime.
const sessionIdle = 24 * time.Hour

// SharedKey is the history key of the process-wide Model.
const SharedKey = "shared"

// SessionKey returns the history key of a per-session Model.
func SessionKey(sessionID string) string {
	return "session:" + sessionID
}

// Factory builds Models on first use and hands out the same instance after.
// A failed build is not cached; the next call tries again.
type Factory struct {
	build func(key string) (*Model, error)

	mu     sync.Mutex
	shared atomic.Pointer[Model]

	sessionsMu sync.RWMutex
	sessions   map[string]*sessionEntry
	now        func() time.Time
}

type sessionEntry struct {
	model    *Model
	lastUsed atomic.Int64
}

func NewFactory(build func(key string) (*Model, error)) *Factory {
	return &Factory{
		build:    build,
		sessions: make(map[string]*sessionEntry),
		now:      time.Now,
	}
}

// GetModel returns the process-wide Model.
func (f *Factory) GetModel() (*Model, error) {
	if m := f.shared.Load(); m != nil {
		return m, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if m := f.shared.Load(); m != nil {
		return m, nil
	}

	m, err := f.build(SharedKey)
	if err != nil {
		return nil, err
	}
	f.shared.Store(m)
	return m, nil
}

// GetSessionModel returns the Model owned by one chat session. Building a new
// one first evicts session Models unused for longer than a cookie lifetime.
func (f *Factory) GetSessionModel(sessionID string) (*Model, error) {
	now := f.now()

	f.sessionsMu.RLock()
	e, ok := f.sessions[sessionID]
	f.sessionsMu.RUnlock()
	if ok {
		e.lastUsed.Store(now.UnixNano())
		return e.model, nil
	}

	f.sessionsMu.Lock()
	defer f.sessionsMu.Unlock()

	if e, ok := f.sessions[sessionID]; ok {
		e.lastUsed.Store(now.UnixNano())
		return e.model, nil
	}

	f.pruneLocked(now)

	m, err := f.build(SessionKey(sessionID))
	if err != nil {
		return nil, err
	}
	e = &sessionEntry{model: m}
	e.lastUsed.Store(now.UnixNano())
	f.sessions[sessionID] = e
	return m, nil
}

// DropSession forgets the Model of a session. It reports whether one existed.
func (f *Factory) DropSession(sessionID string) bool {
	f.sessionsMu.Lock()
	defer f.sessionsMu.Unlock()

	_, ok := f.sessions[sessionID]
	delete(f.sessions, sessionID)
	return ok
}

func (f *Factory) pruneLocked(now time.Time) {
	cutoff := now.Add(-sessionIdle).UnixNano()
	for id, e := range f.sessions {
		if e.lastUsed.Load() < cutoff {
			delete(f.sessions, id)
		}
	}
}

// Sessions returns the number of per-session Models built so far.
func (f *Factory) Sessions() int {
	f.sessionsMu.RLock()
	defer f.sessionsMu.RUnlock()
	return len(f.sessions)
}
