package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/tabkeeper/internal/logging"
	"github.com/aretw0/tabkeeper/pkg/domain"
)

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu         sync.Mutex
	refs       int       // Holders plus waiters
	lastAccess time.Time // Last Acquire or Unlock
	released   bool      // Release requested while in use
}

// Registry hands out one persistent mutex per session ID.
type Registry struct {
	mu      sync.Mutex            // Guards the map and entry bookkeeping only
	entries map[string]*lockEntry // Map of known locks

	now     func() time.Time
	onEvict func(sessionID string)
	logger  *slog.Logger
}

// RegistryOption configures the Registry.
type RegistryOption func(*Registry)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.now = now
	}
}

// WithEvictHook registers a callback run after Sweep removes an entry.
// A panicking hook is logged and does not stop the sweep.
func WithEvictHook(fn func(sessionID string)) RegistryOption {
	return func(r *Registry) {
		r.onEvict = fn
	}
}

// WithRegistryLogger configures a logger for sweep diagnostics.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates an empty lock registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		entries: make(map[string]*lockEntry),
		now:     time.Now,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle is a claim on a session's lock. Obtain it with Acquire, then call
// Lock and Unlock exactly once each.
type Handle struct {
	registry  *Registry
	sessionID string
	entry     *lockEntry
	once      sync.Once
}

// Lock blocks until the session's mutex is held.
func (h *Handle) Lock() {
	h.entry.mu.Lock()
}

// Unlock releases the mutex and the claim on the entry.
func (h *Handle) Unlock() {
	h.once.Do(func() {
		h.entry.mu.Unlock()
		h.registry.leave(h.sessionID, h.entry)
	})
}

// Acquire returns a claim on the session's lock, creating the entry if absent.
// The entry cannot be swept or released while the claim is outstanding.
func (r *Registry) Acquire(sessionID string) (*Handle, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: empty id", domain.ErrInvalidSession)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.entries[sessionID]
	if !exists {
		entry = &lockEntry{}
		r.entries[sessionID] = entry
	}
	entry.refs++
	entry.lastAccess = r.now()
	return &Handle{registry: r, sessionID: sessionID, entry: entry}, nil
}

// Lock acquires and locks in one step and returns the matching unlock.
func (r *Registry) Lock(sessionID string) (func(), error) {
	h, err := r.Acquire(sessionID)
	if err != nil {
		return nil, err
	}
	h.Lock()
	return h.Unlock, nil
}

// leave drops a claim and honours a pending Release.
func (r *Registry) leave(sessionID string, entry *lockEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry.refs--
	entry.lastAccess = r.now()
	if entry.refs <= 0 && entry.released {
		// Only delete if the map still points at this entry.
		if r.entries[sessionID] == entry {
			delete(r.entries, sessionID)
		}
	}
}

// Release removes the session's entry. If goroutines still hold or wait on
// it, removal is deferred until the last of them unlocks, so a session never
// has two live mutexes.
func (r *Registry) Release(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.entries[sessionID]
	if !exists {
		return
	}
	if entry.refs > 0 {
		entry.released = true
		return
	}
	delete(r.entries, sessionID)
}

// Sweep removes entries idle for longer than maxIdle and returns how many
// were removed. It never panics; eviction hook failures are logged and the
// sweep carries on.
func (r *Registry) Sweep(maxIdle time.Duration) (removed int) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Lock sweep aborted", "panic", rec, "removed", removed)
		}
	}()

	evicted := r.collectIdle(maxIdle)
	for _, id := range evicted {
		r.notifyEvict(id)
	}
	return len(evicted)
}

func (r *Registry) collectIdle(maxIdle time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-maxIdle)
	var evicted []string
	for id, entry := range r.entries {
		if entry.refs > 0 || entry.lastAccess.After(cutoff) {
			continue
		}
		delete(r.entries, id)
		evicted = append(evicted, id)
	}
	return evicted
}

func (r *Registry) notifyEvict(sessionID string) {
	if r.onEvict == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("Evict hook failed", "session_id", sessionID, "panic", rec)
		}
	}()
	r.onEvict(sessionID)
}

// Len reports how many entries the registry holds.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Has reports whether an entry exists for the session.
func (r *Registry) Has(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[sessionID]
	return ok
}
