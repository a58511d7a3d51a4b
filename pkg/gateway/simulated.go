// Package gateway provides payment gateway implementations.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/tabkeeper/internal/logging"
	"github.com/aretw0/tabkeeper/pkg/domain"
	"github.com/aretw0/tabkeeper/pkg/ports"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Outcome is what a simulated payment eventually resolves to.
type Outcome string

const (
	OutcomeSucceed Outcome = "succeed"
	OutcomeFail    Outcome = "fail"
	OutcomeHang    Outcome = "hang"
)

// ParseOutcome maps a config string to an Outcome.
func ParseOutcome(s string) (Outcome, error) {
	switch o := Outcome(strings.ToLower(strings.TrimSpace(s))); o {
	case OutcomeSucceed, OutcomeFail, OutcomeHang:
		return o, nil
	case "":
		return OutcomeSucceed, nil
	}
	return "", fmt.Errorf("unknown gateway outcome %q", s)
}

type payment struct {
	link      ports.PaymentLink
	amount    decimal.Decimal
	createdAt time.Time
}

// Simulated is an in-process gateway. Links are idempotent per key and every
// payment resolves to the configured outcome once SettleAfter has elapsed.
type Simulated struct {
	mu       sync.Mutex
	byKey    map[string]*payment
	byID     map[string]*payment
	down     bool
	outcome  Outcome
	settle   time.Duration
	interval time.Duration
	baseURL  string
	now      func() time.Time
	logger   *slog.Logger
}

var _ ports.PaymentGateway = (*Simulated)(nil)

// Option configures the Simulated gateway.
type Option func(*Simulated)

// WithOutcome sets how payments resolve.
func WithOutcome(o Outcome) Option {
	return func(s *Simulated) {
		s.outcome = o
	}
}

// WithSettleAfter sets how long a payment stays pending.
func WithSettleAfter(d time.Duration) Option {
	return func(s *Simulated) {
		s.settle = d
	}
}

// WithPollInterval sets how often PollStatus re-checks a pending payment.
func WithPollInterval(d time.Duration) Option {
	return func(s *Simulated) {
		s.interval = d
	}
}

// WithBaseURL sets the prefix of generated links.
func WithBaseURL(u string) Option {
	return func(s *Simulated) {
		s.baseURL = strings.TrimRight(u, "/")
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Simulated) {
		s.now = now
	}
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Simulated) {
		s.logger = logger
	}
}

// NewSimulated creates a gateway that succeeds immediately by default.
func NewSimulated(opts ...Option) *Simulated {
	s := &Simulated{
		byKey:    make(map[string]*payment),
		byID:     make(map[string]*payment),
		outcome:  OutcomeSucceed,
		interval: 50 * time.Millisecond,
		baseURL:  "https://pay.example.com/l",
		now:      time.Now,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetAvailable toggles simulated outages.
func (s *Simulated) SetAvailable(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = !ok
}

// CreatePaymentLink returns the link already issued for idempotencyKey, or
// issues a new one.
func (s *Simulated) CreatePaymentLink(ctx context.Context, amount decimal.Decimal, description, idempotencyKey string) (ports.PaymentLink, error) {
	if err := ctx.Err(); err != nil {
		return ports.PaymentLink{}, err
	}
	if idempotencyKey == "" {
		return ports.PaymentLink{}, fmt.Errorf("idempotency key is required")
	}
	if !amount.IsPositive() {
		return ports.PaymentLink{}, fmt.Errorf("amount must be positive, got %s", amount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return ports.PaymentLink{}, fmt.Errorf("simulated outage: %w", domain.ErrGatewayUnavailable)
	}

	if p, ok := s.byKey[idempotencyKey]; ok {
		return p.link, nil
	}

	id := "plink_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	p := &payment{
		link: ports.PaymentLink{
			URL:        s.baseURL + "/" + id,
			ExternalID: id,
			Simulated:  true,
		},
		amount:    amount,
		createdAt: s.now(),
	}
	s.byKey[idempotencyKey] = p
	s.byID[id] = p

	s.logger.Debug("Simulated payment link created",
		"external_id", id,
		"amount", amount.StringFixed(2),
		"description", description,
	)
	return p.link, nil
}

// PollStatus waits until the payment resolves or deadline passes.
func (s *Simulated) PollStatus(ctx context.Context, externalID string, deadline time.Time) (ports.GatewayStatus, error) {
	for {
		status, err := s.status(externalID)
		if err != nil || status != ports.GatewayPending {
			return status, err
		}

		wait := time.Until(deadline)
		if wait <= 0 {
			return ports.GatewayTimeout, nil
		}
		if wait > s.interval {
			wait = s.interval
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
}

func (s *Simulated) status(externalID string) (ports.GatewayStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return "", fmt.Errorf("simulated outage: %w", domain.ErrGatewayUnavailable)
	}
	p, ok := s.byID[externalID]
	if !ok {
		return ports.GatewayFailed, nil
	}
	if s.outcome == OutcomeHang || s.now().Sub(p.createdAt) < s.settle {
		return ports.GatewayPending, nil
	}
	if s.outcome == OutcomeFail {
		return ports.GatewayFailed, nil
	}
	return ports.GatewaySucceeded, nil
}
