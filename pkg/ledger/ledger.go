package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aretw0/tabkeeper/internal/logging"
	"github.com/aretw0/tabkeeper/pkg/domain"
	"github.com/aretw0/tabkeeper/pkg/metrics"
	"github.com/aretw0/tabkeeper/pkg/session"
	"github.com/aretw0/tabkeeper/pkg/validation"
)

// Operation names used for logs and metrics.
const (
	OpOrder        = "order"
	OpAddItem      = "add_item"
	OpComplete     = "payment_complete"
	OpBeginPayment = "payment_begin"
	OpReconcile    = "payment_reconcile"
	OpSetTip       = "set_tip"
	OpResetCycle   = "payment_reset_cycle"
	OpPatch        = "payment_patch"
	OpConversation = "conversation"
)

// errNoop aborts a mutation without writing and without an error for the caller.
var errNoop = errors.New("no-op")

// Ledger applies atomic mutations to session documents.
type Ledger struct {
	sessions *session.Manager
	now      func() time.Time
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures the Ledger.
type Option func(*Ledger)

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// WithMetrics records operation outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) {
		l.metrics = m
	}
}

// WithClock replaces time.Now, used for idempotency keys and history stamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// New creates a Ledger over a session manager.
func New(sessions *session.Manager, opts ...Option) *Ledger {
	l := &Ledger{
		sessions: sessions,
		now:      time.Now,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Sessions exposes the underlying manager.
func (l *Ledger) Sessions() *session.Manager {
	return l.sessions
}

// paymentMutation edits next (a copy of the committed payment state) and may
// edit the rest of doc. It must not touch Version.
type paymentMutation func(doc *domain.Session, prior, next *domain.PaymentState) error

// mutatePayment is the single commit path for payment changes.
func (l *Ledger) mutatePayment(ctx context.Context, sessionID, op string, fn paymentMutation) (*domain.Session, error) {
	var current *domain.Session
	committed, err := l.sessions.Update(ctx, sessionID, func(doc *domain.Session) error {
		current = doc.Clone()
		prior := doc.Payment
		next := prior.Clone()
		if err := fn(doc, prior, next); err != nil {
			return err
		}
		next.Version = prior.Version + 1
		if err := validation.ValidateState(next, prior); err != nil {
			return err
		}
		doc.Payment = next
		return nil
	})

	if errors.Is(err, errNoop) {
		l.observe(op, sessionID, nil)
		return current, nil
	}
	l.observe(op, sessionID, err)
	if err != nil {
		return nil, err
	}
	return committed, nil
}

// checkVersion fails with a *domain.ConflictError when expected is stale.
func checkVersion(expected *int64, actual int64) error {
	if expected != nil && *expected != actual {
		return &domain.ConflictError{Expected: *expected, Actual: actual}
	}
	return nil
}

func (l *Ledger) observe(op, sessionID string, err error) {
	outcome := Outcome(err)
	l.metrics.ObserveOperation(op, outcome)
	switch outcome {
	case metrics.OutcomeOK:
		l.logger.Debug("Ledger operation committed", "op", op, "session_id", sessionID)
	case metrics.OutcomeError:
		l.logger.Error("Ledger operation failed", "op", op, "session_id", sessionID, "err", err)
	default:
		l.logger.Info("Ledger operation rejected", "op", op, "session_id", sessionID, "outcome", outcome, "err", err)
	}
}

// Outcome classifies an operation error for metrics.
func Outcome(err error) string {
	var ve *validation.ValidationError
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, domain.ErrInsufficientFunds):
		return metrics.OutcomeInsufficientFunds
	case errors.Is(err, domain.ErrConcurrentModification):
		return metrics.OutcomeConflict
	case errors.Is(err, domain.ErrInvalidTransition):
		return metrics.OutcomeInvalidTransition
	case errors.As(err, &ve),
		errors.Is(err, domain.ErrNothingToPay),
		errors.Is(err, domain.ErrPaymentInFlight),
		errors.Is(err, domain.ErrNoPaymentInFlight),
		errors.Is(err, domain.ErrInvalidSession):
		return metrics.OutcomeInvalid
	}
	return metrics.OutcomeError
}
