package validation

import (
	"github.com/aretw0/tabkeeper/pkg/domain"
	"github.com/shopspring/decimal"
)

type options struct {
	partial bool
	prior   *domain.PaymentState
}

// Option tunes a Validate call.
type Option func(*options)

// Partial skips required-field presence checks. Present fields are still
// checked in full.
func Partial() Option {
	return func(o *options) {
		o.partial = true
	}
}

// WithPrior enables the status transition check against the committed state.
func WithPrior(prior *domain.PaymentState) Option {
	return func(o *options) {
		o.prior = prior
	}
}

// Validate checks a payment patch. Returns nil, an *AggregateError of
// *ValidationError, or a *domain.TransitionError.
func Validate(p domain.PaymentPatch, opts ...Option) error {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var errs []error
	add := func(field, constraint string, value any) {
		errs = append(errs, &ValidationError{Field: field, Constraint: constraint, Value: value})
	}
	required := func(field string, present bool) bool {
		if !present && !o.partial {
			add(field, ConstraintRequired, nil)
		}
		return present
	}

	nonNegative := func(field string, v *decimal.Decimal) {
		if required(field, v != nil) && v.IsNegative() {
			add(field, ConstraintNonNegative, v.String())
		}
	}
	nonNegative("balance", p.Balance)
	nonNegative("tab_total", p.TabTotal)
	nonNegative("tip_amount", p.TipAmount)

	if required("version", p.Version != nil) && *p.Version < 0 {
		add("version", ConstraintNonNegative, *p.Version)
	}

	if p.TipPercentage.Set && p.TipPercentage.Value != nil && !validTip(*p.TipPercentage.Value) {
		add("tip_percentage", ConstraintOneOf, *p.TipPercentage.Value)
	}

	if required("payment_status", p.Status != nil) && !p.Status.Valid() {
		add("payment_status", ConstraintOneOf, string(*p.Status))
	}

	if p.ExternalPaymentID != nil && *p.ExternalPaymentID != "" &&
		!domain.ExternalPaymentIDPattern.MatchString(*p.ExternalPaymentID) {
		add("external_payment_id", ConstraintPattern, *p.ExternalPaymentID)
	}
	if p.IdempotencyKey != nil && *p.IdempotencyKey != "" &&
		!domain.IdempotencyKeyPattern.MatchString(*p.IdempotencyKey) {
		add("idempotency_key", ConstraintPattern, *p.IdempotencyKey)
	}

	required("needs_reconciliation", p.NeedsReconciliation != nil)
	if p.Status != nil && *p.Status == domain.StatusCompleted &&
		p.NeedsReconciliation != nil && *p.NeedsReconciliation {
		add("needs_reconciliation", ConstraintReconciled, true)
	}

	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}

	if o.prior != nil && p.Status != nil {
		if err := domain.CheckTransition(o.prior.Status, *p.Status); err != nil {
			return err
		}
	}
	return nil
}

// ValidateState fully validates a document. prior may be nil.
func ValidateState(state *domain.PaymentState, prior *domain.PaymentState) error {
	if state == nil {
		return &AggregateError{Errors: []error{&ValidationError{Field: "payment", Constraint: ConstraintRequired}}}
	}
	var opts []Option
	if prior != nil {
		opts = append(opts, WithPrior(prior))
	}
	return Validate(state.Fields(), opts...)
}

// ValidateMerge validates a delta on its own (partial), then the merged
// document in full against the current state, and returns the merged copy.
func ValidateMerge(current *domain.PaymentState, delta domain.PaymentPatch) (*domain.PaymentState, error) {
	if err := Validate(delta, Partial()); err != nil {
		return nil, err
	}
	merged := current.Apply(delta)
	if err := ValidateState(merged, current); err != nil {
		return nil, err
	}
	return merged, nil
}

func validTip(pct int) bool {
	for _, allowed := range domain.TipPercentages {
		if pct == allowed {
			return true
		}
	}
	return false
}
