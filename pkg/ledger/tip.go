package ledger

import (
	"context"

	"github.com/aretw0/tabkeeper/pkg/domain"
	"github.com/aretw0/tabkeeper/pkg/validation"
)

// SetTip selects a tip percentage, or clears it when pct is nil.
//
// Selecting the percentage that is already set clears it, so a repeated
// choice acts as a toggle. The tip amount is re-derived from the tab. A tip
// cannot change while a payment is processing, since the link amount is fixed.
func (l *Ledger) SetTip(ctx context.Context, sessionID string, pct *int) (*domain.PaymentState, error) {
	if pct != nil && !validTip(*pct) {
		err := &validation.ValidationError{Field: "tip_percentage", Constraint: validation.ConstraintOneOf, Value: *pct}
		l.observe(OpSetTip, sessionID, err)
		return nil, err
	}

	doc, err := l.mutatePayment(ctx, sessionID, OpSetTip, func(_ *domain.Session, prior, next *domain.PaymentState) error {
		if prior.Status == domain.StatusProcessing {
			return domain.ErrPaymentInFlight
		}
		switch {
		case pct == nil:
			next.TipPercentage = nil
		case prior.TipPercentage != nil && *prior.TipPercentage == *pct:
			next.TipPercentage = nil
		default:
			next.TipPercentage = domain.Ptr(*pct)
		}
		next.RecomputeTip()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc.Payment, nil
}

// ApplyPatch merges a partial payment update after validating the delta and
// the merged document. Version is owned by the ledger. Status, external id,
// idempotency key and tab total only move through orders, BeginPayment and
// AtomicPaymentComplete, so patching any of them fails with read_only. Tip
// fields are locked while a payment is processing, as in SetTip.
func (l *Ledger) ApplyPatch(ctx context.Context, sessionID string, patch domain.PaymentPatch, expectedVersion *int64) (*domain.PaymentState, error) {
	if err := readOnlyFields(patch); err != nil {
		l.observe(OpPatch, sessionID, err)
		return nil, err
	}

	doc, err := l.mutatePayment(ctx, sessionID, OpPatch, func(_ *domain.Session, prior, next *domain.PaymentState) error {
		if err := checkVersion(expectedVersion, prior.Version); err != nil {
			return err
		}
		if prior.Status == domain.StatusProcessing && (patch.TipPercentage.Set || patch.TipAmount != nil) {
			return domain.ErrPaymentInFlight
		}
		merged, err := validation.ValidateMerge(prior, patch)
		if err != nil {
			return err
		}
		*next = *merged
		if patch.TipAmount == nil {
			next.RecomputeTip()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc.Payment, nil
}

func readOnlyFields(patch domain.PaymentPatch) error {
	var errs []error
	readOnly := func(field string, value any) {
		errs = append(errs, &validation.ValidationError{Field: field, Constraint: validation.ConstraintReadOnly, Value: value})
	}
	if patch.TabTotal != nil {
		readOnly("tab_total", patch.TabTotal.String())
	}
	if patch.ExternalPaymentID != nil {
		readOnly("external_payment_id", *patch.ExternalPaymentID)
	}
	if patch.Status != nil {
		readOnly("payment_status", string(*patch.Status))
	}
	if patch.IdempotencyKey != nil {
		readOnly("idempotency_key", *patch.IdempotencyKey)
	}
	if patch.Version != nil {
		readOnly("version", *patch.Version)
	}
	if len(errs) == 0 {
		return nil
	}
	return &validation.AggregateError{Errors: errs}
}

func validTip(pct int) bool {
	for _, allowed := range domain.TipPercentages {
		if pct == allowed {
			return true
		}
	}
	return false
}
