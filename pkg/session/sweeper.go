package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/aretw0/tabkeeper/internal/logging"
)

// Sweeper runs Registry.Sweep on a fixed interval.
type Sweeper struct {
	registry *Registry
	interval time.Duration
	maxIdle  time.Duration
	logger   *slog.Logger
	onSweep  func(removed int)
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweepLogger configures the sweeper's logger.
func WithSweepLogger(logger *slog.Logger) SweeperOption {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

// WithSweepHook is called after every sweep with the number of removed locks.
func WithSweepHook(fn func(removed int)) SweeperOption {
	return func(s *Sweeper) {
		s.onSweep = fn
	}
}

// NewSweeper creates a sweeper for registry.
func NewSweeper(registry *Registry, interval, maxIdle time.Duration, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		registry: registry,
		interval: interval,
		maxIdle:  maxIdle,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := s.registry.Sweep(s.maxIdle)
			if removed > 0 {
				s.logger.Debug("Swept idle session locks", "removed", removed, "remaining", s.registry.Len())
			}
			if s.onSweep != nil {
				s.onSweep(removed)
			}
		}
	}
}
