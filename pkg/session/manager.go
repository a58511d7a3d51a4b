package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/tabkeeper/internal/logging"
	"github.com/aretw0/tabkeeper/pkg/domain"
	"github.com/aretw0/tabkeeper/pkg/metrics"
	"github.com/aretw0/tabkeeper/pkg/ports"
	"github.com/aretw0/tabkeeper/pkg/validation"
)

// Reset reasons reported to metrics and logs.
const (
	ResetExplicit = "explicit"
	ResetCorrupt  = "corrupt"
)

// Manager orchestrates session access, ensuring safe concurrent operations.
// Every read-modify-write of a session document runs under that session's
// registry lock.
type Manager struct {
	store    ports.SessionStore
	registry *Registry
	defaults domain.Defaults

	logger  *slog.Logger     // Logger for internal events (resets, migrations)
	metrics *metrics.Metrics // Optional
}

// Option configures the Manager.
type Option func(*Manager)

// WithRegistry shares an existing lock registry.
func WithRegistry(r *Registry) Option {
	return func(m *Manager) {
		m.registry = r
	}
}

// WithDefaults sets the template for new sessions.
func WithDefaults(d domain.Defaults) Option {
	return func(m *Manager) {
		m.defaults = d
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithMetrics records lock waits and resets.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// NewManager creates a new Session Manager with the given store.
func NewManager(store ports.SessionStore, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		defaults: domain.Defaults{InitialBalance: domain.DefaultInitialBalance},
		logger:   logging.NewNop(), // Default to no-op
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = NewRegistry(WithRegistryLogger(m.logger))
	}
	return m
}

// Registry returns the lock registry.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Store returns the underlying store.
func (m *Manager) Store() ports.SessionStore {
	return m.store
}

// Defaults returns the template for new sessions.
func (m *Manager) Defaults() domain.Defaults {
	return m.defaults
}

// WithLock executes fn while holding the lock for the session.
// No I/O other than the store should happen inside fn.
func (m *Manager) WithLock(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	h, err := m.registry.Acquire(sessionID)
	if err != nil {
		return err
	}
	start := time.Now()
	h.Lock()
	m.metrics.ObserveLockWait(time.Since(start).Seconds())
	defer h.Unlock()

	return fn(ctx)
}

// Get returns a snapshot of the session, creating it from defaults on first
// access. The snapshot is a deep copy.
func (m *Manager) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	var snapshot *domain.Session
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		doc, err := m.loadOrInit(ctx, sessionID)
		if err != nil {
			return err
		}
		snapshot = doc.Clone()
		return nil
	})
	return snapshot, err
}

// Peek returns a snapshot of an existing session without creating one.
// Returns domain.ErrSessionNotFound for unknown sessions.
func (m *Manager) Peek(ctx context.Context, sessionID string) (*domain.Session, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: empty id", domain.ErrInvalidSession)
	}
	doc, err := m.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return domain.Migrate(doc, m.defaults), nil
}

// Update runs fn on the session document under its lock and persists the
// result. If fn returns an error nothing is written. The returned snapshot
// reflects the committed document.
func (m *Manager) Update(ctx context.Context, sessionID string, fn func(doc *domain.Session) error) (*domain.Session, error) {
	var committed *domain.Session
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		doc, err := m.loadOrInit(ctx, sessionID)
		if err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}
		doc.UpdatedAt = time.Now().UTC()
		if err := m.store.Save(ctx, sessionID, doc); err != nil {
			return fmt.Errorf("failed to save session: %w", err)
		}
		committed = doc.Clone()
		return nil
	})
	return committed, err
}

// Reset destroys the session document and releases its lock entry.
func (m *Manager) Reset(ctx context.Context, sessionID string) error {
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		return m.store.Delete(ctx, sessionID)
	})
	if err != nil {
		return err
	}
	m.registry.Release(sessionID)
	m.metrics.SessionReset(ResetExplicit)
	m.logger.Info("Session reset", "session_id", sessionID)
	return nil
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// loadOrInit must be called with the session lock held.
func (m *Manager) loadOrInit(ctx context.Context, sessionID string) (*domain.Session, error) {
	doc, err := m.store.Load(ctx, sessionID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		doc = domain.NewSession(sessionID, m.defaults)
		if err := m.store.Save(ctx, sessionID, doc); err != nil {
			return nil, fmt.Errorf("failed to initialize session: %w", err)
		}
		m.logger.Debug("Session created", "session_id", sessionID)
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	doc = domain.Migrate(doc, m.defaults)
	if verr := validation.ValidateState(doc.Payment, nil); verr != nil {
		// A stored document that breaks the invariants is fatal for this
		// session only: start it over.
		m.logger.Error("Session failed validation on load, resetting",
			"session_id", sessionID,
			"err", verr,
		)
		m.metrics.SessionReset(ResetCorrupt)
		doc = domain.NewSession(sessionID, m.defaults)
		if err := m.store.Save(ctx, sessionID, doc); err != nil {
			return nil, fmt.Errorf("failed to reset session: %w", err)
		}
	}
	return doc, nil
}
