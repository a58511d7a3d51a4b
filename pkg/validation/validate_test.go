package validation_test

import (
	"errors"
	"testing"

	"github.com/aretw0/tabkeeper/pkg/domain"
	"github.com/aretw0/tabkeeper/pkg/validation"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validState() *domain.PaymentState {
	return domain.NewPaymentState(decimal.NewFromInt(100))
}

func TestValidate_FullStateOK(t *testing.T) {
	assert.NoError(t, validation.ValidateState(validState(), nil))
}

func TestValidate_FieldConstraints(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(p *domain.PaymentState)
		field      string
		constraint string
	}{
		{"Negative balance", func(p *domain.PaymentState) { p.Balance = decimal.NewFromInt(-1) }, "balance", validation.ConstraintNonNegative},
		{"Negative tab", func(p *domain.PaymentState) { p.TabTotal = decimal.RequireFromString("-0.01") }, "tab_total", validation.ConstraintNonNegative},
		{"Negative tip", func(p *domain.PaymentState) { p.TipAmount = decimal.NewFromInt(-5) }, "tip_amount", validation.ConstraintNonNegative},
		{"Negative version", func(p *domain.PaymentState) { p.Version = -1 }, "version", validation.ConstraintNonNegative},
		{"Tip outside set", func(p *domain.PaymentState) { p.TipPercentage = domain.Ptr(12) }, "tip_percentage", validation.ConstraintOneOf},
		{"Unknown status", func(p *domain.PaymentState) { p.Status = "refunded" }, "payment_status", validation.ConstraintOneOf},
		{"Bad external id", func(p *domain.PaymentState) { p.ExternalPaymentID = "ch_123" }, "external_payment_id", validation.ConstraintPattern},
		{"External id with symbols", func(p *domain.PaymentState) { p.ExternalPaymentID = "plink_ab-c" }, "external_payment_id", validation.ConstraintPattern},
		{"Bad idempotency key", func(p *domain.PaymentState) { p.IdempotencyKey = "abc_" }, "idempotency_key", validation.ConstraintPattern},
		{"Completed but needs reconciliation", func(p *domain.PaymentState) {
			p.Status = domain.StatusCompleted
			p.NeedsReconciliation = true
		}, "needs_reconciliation", validation.ConstraintReconciled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validState()
			tt.mutate(p)

			err := validation.ValidateState(p, nil)
			require.Error(t, err)

			ve, ok := validation.First(err)
			require.True(t, ok, "expected a *ValidationError, got %v", err)
			assert.Equal(t, tt.field, ve.Field)
			assert.Equal(t, tt.constraint, ve.Constraint)
			assert.NotNil(t, ve.Value)
		})
	}
}

func TestValidate_AcceptedPatterns(t *testing.T) {
	p := validState()
	p.ExternalPaymentID = "pi_3NabcXYZ"
	p.IdempotencyKey = "table7_1700000000"
	p.TipPercentage = domain.Ptr(20)
	assert.NoError(t, validation.ValidateState(p, nil))

	p.ExternalPaymentID = "plink_9f8e7d"
	assert.NoError(t, validation.ValidateState(p, nil))
}

func TestValidate_MultipleErrorsAggregated(t *testing.T) {
	p := validState()
	p.Balance = decimal.NewFromInt(-1)
	p.TabTotal = decimal.NewFromInt(-1)

	err := validation.ValidateState(p, nil)
	assert.Len(t, validation.Errors(err), 2)
	assert.Contains(t, err.Error(), "2 validation errors")
}

func TestValidate_Partial(t *testing.T) {
	t.Run("Missing fields are fine", func(t *testing.T) {
		patch := domain.PaymentPatch{TipPercentage: domain.OptionalInt{Set: true, Value: domain.Ptr(15)}}
		assert.NoError(t, validation.Validate(patch, validation.Partial()))
	})

	t.Run("Missing fields fail without Partial", func(t *testing.T) {
		patch := domain.PaymentPatch{TipPercentage: domain.OptionalInt{Set: true, Value: domain.Ptr(15)}}
		err := validation.Validate(patch)
		require.Error(t, err)
		for _, e := range validation.Errors(err) {
			var ve *validation.ValidationError
			require.True(t, errors.As(e, &ve))
			assert.Equal(t, validation.ConstraintRequired, ve.Constraint)
		}
	})

	t.Run("Present fields are still checked", func(t *testing.T) {
		patch := domain.PaymentPatch{Balance: domain.Ptr(decimal.NewFromInt(-3))}
		err := validation.Validate(patch, validation.Partial())
		ve, ok := validation.First(err)
		require.True(t, ok)
		assert.Equal(t, "balance", ve.Field)
	})
}

func TestValidate_Transitions(t *testing.T) {
	prior := validState()
	next := prior.Clone()
	next.Status = domain.StatusCompleted

	err := validation.ValidateState(next, prior)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	next.Status = domain.StatusProcessing
	assert.NoError(t, validation.ValidateState(next, prior))
}

func TestValidateMerge(t *testing.T) {
	current := validState()
	current.TabTotal = decimal.NewFromInt(20)

	t.Run("Delta cannot bypass merged invariants", func(t *testing.T) {
		// On its own the delta is fine; merged with a pending state it skips processing.
		delta := domain.PaymentPatch{Status: domain.Ptr(domain.StatusCompleted)}
		_, err := validation.ValidateMerge(current, delta)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("Valid delta returns merged copy", func(t *testing.T) {
		delta := domain.PaymentPatch{Balance: domain.Ptr(decimal.NewFromInt(70))}
		merged, err := validation.ValidateMerge(current, delta)
		require.NoError(t, err)
		assert.Equal(t, "70", merged.Balance.String())
		assert.Equal(t, "20", merged.TabTotal.String())
		assert.Equal(t, "100", current.Balance.String())
	})
}

func TestValidate_DoesNotMutateInput(t *testing.T) {
	p := validState()
	p.Balance = decimal.NewFromInt(-1)
	before := p.Clone()

	_ = validation.ValidateState(p, nil)
	assert.Equal(t, before, p)
}

func TestIdempotencyKeyRoundTrip(t *testing.T) {
	ids := []string{"a", "Session42", "table-7", "x_y"}
	timestamps := []int64{1, 42, 1700000000}

	for _, id := range ids {
		for _, ts := range timestamps {
			p := validState()
			p.IdempotencyKey = domain.NewIdempotencyKey(id, unix(ts))
			assert.NoError(t, validation.ValidateState(p, nil), "key %q", p.IdempotencyKey)
		}
	}
}
