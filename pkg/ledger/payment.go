package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/tabkeeper/pkg/domain"
	"github.com/aretw0/tabkeeper/pkg/ports"
	"github.com/aretw0/tabkeeper/pkg/validation"
	"github.com/shopspring/decimal"
)

// PaymentRequest is the outcome of BeginPayment.
type PaymentRequest struct {
	Link           ports.PaymentLink `json:"link"`
	Amount         decimal.Decimal   `json:"amount"`
	IdempotencyKey string            `json:"idempotency_key"`
	Version        int64             `json:"version"`
	// InFlight is true when an existing payment was returned instead of a new one.
	InFlight bool `json:"in_flight"`
}

// AtomicPaymentComplete settles the tab after a confirmed external payment.
//
// The tab, tip and tip percentage are cleared, the status becomes completed,
// the reconciliation flag is dropped and Version grows by one. The current
// order moves to history as a paid order. Only a processing payment can be
// completed; anything else fails with *domain.TransitionError, which also
// rejects a replayed confirmation.
func (l *Ledger) AtomicPaymentComplete(ctx context.Context, sessionID string) error {
	_, err := l.mutatePayment(ctx, sessionID, OpComplete, func(doc *domain.Session, prior, next *domain.PaymentState) error {
		if prior.Status != domain.StatusProcessing {
			return &domain.TransitionError{From: prior.Status, To: domain.StatusCompleted}
		}

		if len(doc.Order.Items) > 0 || prior.TabTotal.IsPositive() {
			doc.Order.History = append(doc.Order.History, domain.CompletedOrder{
				Items:             doc.Order.Items,
				TotalCost:         prior.TabTotal,
				Paid:              true,
				TipAmount:         prior.TipAmount,
				TipPercentage:     prior.TipPercentage,
				ExternalPaymentID: prior.ExternalPaymentID,
				IdempotencyKey:    prior.IdempotencyKey,
				CompletedAt:       l.now().UTC(),
			})
			doc.Order.Items = []domain.LineItem{}
		}

		next.TabTotal = decimal.Zero
		next.TipAmount = decimal.Zero
		next.TipPercentage = nil
		next.Status = domain.StatusCompleted
		next.NeedsReconciliation = false
		return nil
	})
	return err
}

// BeginPayment asks the gateway for a payment link covering tab plus tip and
// moves the payment to processing.
//
// If a payment is already processing, the gateway is asked again with the
// stored idempotency key and the existing link is returned without another
// transition. A payment flagged for reconciliation is checked first and, if
// the gateway reports it failed, replaced by a new link. The gateway is never
// called while the session lock is held; the commit is fenced by the version
// read beforehand.
func (l *Ledger) BeginPayment(ctx context.Context, sessionID string, gateway ports.PaymentGateway, description string) (*PaymentRequest, error) {
	snapshot, err := l.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	p := snapshot.Payment

	switch p.Status {
	case domain.StatusProcessing:
		if p.ExternalPaymentID != "" && p.IdempotencyKey != "" {
			if p.NeedsReconciliation {
				return l.reissue(ctx, sessionID, gateway, snapshot, description)
			}
			return l.inFlight(ctx, gateway, p, description)
		}
	case domain.StatusCompleted:
		err := &domain.TransitionError{From: p.Status, To: domain.StatusProcessing}
		l.observe(OpBeginPayment, sessionID, err)
		return nil, err
	}

	amount := p.Total()
	if !amount.IsPositive() {
		l.observe(OpBeginPayment, sessionID, domain.ErrNothingToPay)
		return nil, domain.ErrNothingToPay
	}

	key := nextKey(sessionID, l.now(), snapshot.Order.History)
	link, err := gateway.CreatePaymentLink(ctx, amount, description, key)
	if err != nil {
		err = fmt.Errorf("failed to create payment link: %w", err)
		l.observe(OpBeginPayment, sessionID, err)
		return nil, err
	}

	expected := p.Version
	inFlight := false
	doc, err := l.mutatePayment(ctx, sessionID, OpBeginPayment, func(_ *domain.Session, prior, next *domain.PaymentState) error {
		if prior.Version != expected {
			if prior.Status == domain.StatusProcessing && prior.ExternalPaymentID != "" {
				// Someone else started this payment between our read and write.
				inFlight = true
				return errNoop
			}
			return &domain.ConflictError{Expected: expected, Actual: prior.Version}
		}
		next.ExternalPaymentID = link.ExternalID
		next.IdempotencyKey = key
		next.Status = domain.StatusProcessing
		next.NeedsReconciliation = false
		return nil
	})
	if err != nil {
		return nil, err
	}
	if inFlight {
		return l.inFlight(ctx, gateway, doc.Payment, description)
	}

	l.logger.Info("Payment link created",
		"session_id", sessionID,
		"external_id", link.ExternalID,
		"amount", amount.StringFixed(2),
		"simulated", link.Simulated,
	)
	return &PaymentRequest{
		Link:           link,
		Amount:         amount,
		IdempotencyKey: key,
		Version:        doc.Payment.Version,
	}, nil
}

// nextKey builds the idempotency key for a new payment. A key already used by
// a settled payment would make the gateway hand back the old link, so the
// timestamp moves forward until the key is fresh.
func nextKey(sessionID string, at time.Time, history []domain.CompletedOrder, taken ...string) string {
	used := make(map[string]bool, len(history)+len(taken))
	for _, h := range history {
		used[h.IdempotencyKey] = true
	}
	for _, k := range taken {
		used[k] = true
	}
	key := domain.NewIdempotencyKey(sessionID, at)
	for used[key] {
		at = at.Add(time.Second)
		key = domain.NewIdempotencyKey(sessionID, at)
	}
	return key
}

func (l *Ledger) inFlight(ctx context.Context, gateway ports.PaymentGateway, p *domain.PaymentState, description string) (*PaymentRequest, error) {
	amount := p.Total()
	link, err := gateway.CreatePaymentLink(ctx, amount, description, p.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch in-flight payment link: %w", err)
	}
	return &PaymentRequest{
		Link:           link,
		Amount:         amount,
		IdempotencyKey: p.IdempotencyKey,
		Version:        p.Version,
		InFlight:       true,
	}, nil
}

// reissue resolves a processing payment flagged for reconciliation. The old
// link is checked once: a success settles the tab and the caller gets the
// same TransitionError as for any completed payment, a failure swaps in a
// new link under a fresh key, and anything else returns the existing link.
// The status stays processing throughout.
func (l *Ledger) reissue(ctx context.Context, sessionID string, gateway ports.PaymentGateway, snapshot *domain.Session, description string) (*PaymentRequest, error) {
	p := snapshot.Payment
	status, err := gateway.PollStatus(ctx, p.ExternalPaymentID, l.now())
	if err != nil {
		err = fmt.Errorf("failed to poll payment status: %w", err)
		l.observe(OpBeginPayment, sessionID, err)
		return nil, err
	}

	switch status {
	case ports.GatewaySucceeded:
		err := l.AtomicPaymentComplete(ctx, sessionID)
		var te *domain.TransitionError
		if err != nil && !(errors.As(err, &te) && te.From == domain.StatusCompleted) {
			return nil, err
		}
		err = &domain.TransitionError{From: domain.StatusCompleted, To: domain.StatusProcessing}
		l.observe(OpBeginPayment, sessionID, err)
		return nil, err
	case ports.GatewayFailed:
	default:
		return l.inFlight(ctx, gateway, p, description)
	}

	amount := p.Total()
	key := nextKey(sessionID, l.now(), snapshot.Order.History, p.IdempotencyKey)
	link, err := gateway.CreatePaymentLink(ctx, amount, description, key)
	if err != nil {
		err = fmt.Errorf("failed to create payment link: %w", err)
		l.observe(OpBeginPayment, sessionID, err)
		return nil, err
	}

	expected := p.Version
	doc, err := l.mutatePayment(ctx, sessionID, OpBeginPayment, func(_ *domain.Session, prior, next *domain.PaymentState) error {
		if prior.Version != expected || prior.ExternalPaymentID != p.ExternalPaymentID {
			return &domain.ConflictError{Expected: expected, Actual: prior.Version}
		}
		next.ExternalPaymentID = link.ExternalID
		next.IdempotencyKey = key
		next.NeedsReconciliation = false
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Warn("Failed payment replaced",
		"session_id", sessionID,
		"failed_external_id", p.ExternalPaymentID,
		"external_id", link.ExternalID,
		"amount", amount.StringFixed(2),
	)
	return &PaymentRequest{
		Link:           link,
		Amount:         amount,
		IdempotencyKey: key,
		Version:        doc.Payment.Version,
	}, nil
}

// CheckPayment polls the gateway for the session's in-flight payment until
// deadline and applies the result: succeeded completes the payment, failed
// or timeout flags the payment for reconciliation, pending changes nothing.
func (l *Ledger) CheckPayment(ctx context.Context, sessionID string, gateway ports.PaymentGateway, deadline time.Time) (ports.GatewayStatus, error) {
	snapshot, err := l.sessions.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}
	p := snapshot.Payment

	switch {
	case p.Status == domain.StatusCompleted:
		return ports.GatewaySucceeded, nil
	case p.Status != domain.StatusProcessing || p.ExternalPaymentID == "":
		return "", domain.ErrNoPaymentInFlight
	}

	status, err := gateway.PollStatus(ctx, p.ExternalPaymentID, deadline)
	if err != nil {
		return "", fmt.Errorf("failed to poll payment status: %w", err)
	}

	switch status {
	case ports.GatewaySucceeded:
		err := l.AtomicPaymentComplete(ctx, sessionID)
		var te *domain.TransitionError
		if errors.As(err, &te) && te.From == domain.StatusCompleted {
			// A concurrent check already settled it.
			return status, nil
		}
		return status, err
	case ports.GatewayFailed, ports.GatewayTimeout:
		return status, l.flagReconciliation(ctx, sessionID, p.ExternalPaymentID)
	}
	return status, nil
}

// flagReconciliation marks a processing payment as needing verification,
// provided it is still the payment that was polled.
func (l *Ledger) flagReconciliation(ctx context.Context, sessionID, externalID string) error {
	_, err := l.mutatePayment(ctx, sessionID, OpReconcile, func(_ *domain.Session, prior, next *domain.PaymentState) error {
		if prior.Status != domain.StatusProcessing || prior.ExternalPaymentID != externalID || prior.NeedsReconciliation {
			return errNoop
		}
		next.NeedsReconciliation = true
		return nil
	})
	if err == nil {
		l.logger.Warn("Payment flagged for reconciliation", "session_id", sessionID, "external_id", externalID)
	}
	return err
}

// ResetPaymentCycle starts a fresh payment cycle after a completed one. The
// balance and any tab accrued since completion carry over; external ids,
// keys and tip are cleared and the status returns to pending. This is a reset
// of the sub-document, not a status transition. For a session that is not
// completed it is a no-op.
func (l *Ledger) ResetPaymentCycle(ctx context.Context, sessionID string) (*domain.PaymentState, error) {
	var reset bool
	committed, err := l.sessions.Update(ctx, sessionID, func(doc *domain.Session) error {
		prior := doc.Payment
		if prior.Status != domain.StatusCompleted {
			return errNoop
		}
		next := domain.NewPaymentState(prior.Balance)
		next.TabTotal = prior.TabTotal
		next.Version = prior.Version + 1
		if err := validation.ValidateState(next, nil); err != nil {
			return err
		}
		doc.Payment = next
		reset = true
		return nil
	})

	if errors.Is(err, errNoop) {
		l.observe(OpResetCycle, sessionID, nil)
		snapshot, err := l.sessions.Get(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		return snapshot.Payment, nil
	}
	l.observe(OpResetCycle, sessionID, err)
	if err != nil {
		return nil, err
	}
	if reset {
		l.logger.Info("Payment cycle reset", "session_id", sessionID, "version", committed.Payment.Version)
	}
	return committed.Payment, nil
}
