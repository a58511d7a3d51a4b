package ledger_test

import (
	"context"
	"testing"

	"github.com/aretw0/tabkeeper/pkg/domain"
	"github.com/aretw0/tabkeeper/pkg/ledger"
	"github.com/aretw0/tabkeeper/pkg/ports"
	"github.com/aretw0/tabkeeper/pkg/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetTip_Toggle(t *testing.T) {
	l := newLedger(t, 100)
	ctx := context.Background()
	_, err := l.AtomicOrderUpdate(ctx, "s1", dec("30"), nil)
	require.NoError(t, err)

	p, err := l.SetTip(ctx, "s1", domain.Ptr(15))
	require.NoError(t, err)
	require.NotNil(t, p.TipPercentage)
	assert.Equal(t, 15, *p.TipPercentage)
	assert.Equal(t, "4.50", p.TipAmount.StringFixed(2))

	p, err = l.SetTip(ctx, "s1", domain.Ptr(15))
	require.NoError(t, err)
	assert.Nil(t, p.TipPercentage)
	assert.True(t, p.TipAmount.IsZero())
	assert.Equal(t, int64(3), p.Version)
}

func TestSetTip_SwitchAndClear(t *testing.T) {
	l := newLedger(t, 100)
	ctx := context.Background()
	_, err := l.AtomicOrderUpdate(ctx, "s1", dec("50"), nil)
	require.NoError(t, err)

	_, err = l.SetTip(ctx, "s1", domain.Ptr(10))
	require.NoError(t, err)
	p, err := l.SetTip(ctx, "s1", domain.Ptr(20))
	require.NoError(t, err)
	assert.Equal(t, 20, *p.TipPercentage)
	assert.Equal(t, "10.00", p.TipAmount.StringFixed(2))

	p, err = l.SetTip(ctx, "s1", nil)
	require.NoError(t, err)
	assert.Nil(t, p.TipPercentage)
	assert.True(t, p.TipAmount.IsZero())
}

func TestSetTip_RejectsUnknownPercentage(t *testing.T) {
	l := newLedger(t, 100)

	_, err := l.SetTip(context.Background(), "s1", domain.Ptr(12))
	ve, ok := validation.First(err)
	require.True(t, ok)
	assert.Equal(t, "tip_percentage", ve.Field)
	assert.Equal(t, validation.ConstraintOneOf, ve.Constraint)
}

func TestSetTip_LockedWhileProcessing(t *testing.T) {
	l := newLedger(t, 100)
	ctx := context.Background()
	_, err := l.AtomicOrderUpdate(ctx, "s1", dec("10"), nil)
	require.NoError(t, err)
	_, err = l.BeginPayment(ctx, "s1", newStubGateway(ports.GatewayPending), "order")
	require.NoError(t, err)

	_, err = l.SetTip(ctx, "s1", domain.Ptr(10))
	assert.ErrorIs(t, err, domain.ErrPaymentInFlight)
}

func TestApplyPatch(t *testing.T) {
	l := newLedger(t, 100)
	ctx := context.Background()
	_, err := l.AtomicOrderUpdate(ctx, "s1", dec("20"), nil)
	require.NoError(t, err)

	t.Run("merges and bumps version", func(t *testing.T) {
		p, err := l.ApplyPatch(ctx, "s1", domain.PaymentPatch{
			Balance:       domain.Ptr(dec("150")),
			TipPercentage: domain.OptionalInt{Set: true, Value: domain.Ptr(10)},
		}, domain.Ptr(int64(1)))
		require.NoError(t, err)
		assert.Equal(t, "20", p.TabTotal.String())
		assert.Equal(t, "2.00", p.TipAmount.StringFixed(2))
		assert.Equal(t, "150", p.Balance.String())
		assert.Equal(t, int64(2), p.Version)
	})

	t.Run("rejects invalid fields without writing", func(t *testing.T) {
		_, err := l.ApplyPatch(ctx, "s1", domain.PaymentPatch{
			Balance:       domain.Ptr(dec("-1")),
			TipPercentage: domain.OptionalInt{Set: true, Value: domain.Ptr(12)},
		}, nil)
		require.Error(t, err)
		assert.Len(t, validation.Errors(err), 2)

		p, err := l.Payment(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), p.Version)
	})

	t.Run("version is read only", func(t *testing.T) {
		_, err := l.ApplyPatch(ctx, "s1", domain.PaymentPatch{Version: domain.Ptr(int64(9))}, nil)
		ve, ok := validation.First(err)
		require.True(t, ok)
		assert.Equal(t, "version", ve.Field)
		assert.Equal(t, validation.ConstraintReadOnly, ve.Constraint)
	})

	t.Run("settlement fields are read only", func(t *testing.T) {
		_, err := l.ApplyPatch(ctx, "s1", domain.PaymentPatch{
			TabTotal:          domain.Ptr(dec("0")),
			ExternalPaymentID: domain.Ptr("plink_abc"),
			Status:            domain.Ptr(domain.StatusProcessing),
			IdempotencyKey:    domain.Ptr("s1_1700000000"),
		}, nil)
		errs := validation.Errors(err)
		require.Len(t, errs, 4)
		var fields []string
		for _, e := range errs {
			ve, ok := e.(*validation.ValidationError)
			require.True(t, ok)
			assert.Equal(t, validation.ConstraintReadOnly, ve.Constraint)
			fields = append(fields, ve.Field)
		}
		assert.Equal(t, []string{"tab_total", "external_payment_id", "payment_status", "idempotency_key"}, fields)

		p, err := l.Payment(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), p.Version)
	})

	t.Run("status cannot be walked to completed", func(t *testing.T) {
		for _, st := range []domain.PaymentStatus{domain.StatusProcessing, domain.StatusCompleted} {
			_, err := l.ApplyPatch(ctx, "s1", domain.PaymentPatch{Status: domain.Ptr(st)}, nil)
			require.Error(t, err)
		}

		bill, err := l.Bill(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPending, bill.Status)
		assert.Equal(t, "20", bill.TabTotal.String())
		assert.Empty(t, bill.History)
	})

	t.Run("stale expected version", func(t *testing.T) {
		_, err := l.ApplyPatch(ctx, "s1", domain.PaymentPatch{NeedsReconciliation: domain.Ptr(true)}, domain.Ptr(int64(0)))
		assert.ErrorIs(t, err, domain.ErrConcurrentModification)
	})
}

func TestApplyPatch_WhileProcessing(t *testing.T) {
	l := newLedger(t, 100)
	ctx := context.Background()
	_, err := l.AtomicOrderUpdate(ctx, "s1", dec("10"), nil)
	require.NoError(t, err)
	_, err = l.BeginPayment(ctx, "s1", newStubGateway(ports.GatewayPending), "order")
	require.NoError(t, err)

	_, err = l.ApplyPatch(ctx, "s1", domain.PaymentPatch{TipPercentage: domain.OptionalInt{Set: true, Value: domain.Ptr(20)}}, nil)
	assert.ErrorIs(t, err, domain.ErrPaymentInFlight)
	_, err = l.ApplyPatch(ctx, "s1", domain.PaymentPatch{TipAmount: domain.Ptr(dec("5"))}, nil)
	assert.ErrorIs(t, err, domain.ErrPaymentInFlight)

	// Balance top-ups are still allowed.
	p, err := l.ApplyPatch(ctx, "s1", domain.PaymentPatch{Balance: domain.Ptr(dec("200"))}, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, p.Status)
	assert.Equal(t, "200", p.Balance.String())
}

func TestApplyPatch_CompletedCannotNeedReconciliation(t *testing.T) {
	l := newLedger(t, 100)
	ctx := context.Background()
	_, err := l.AtomicOrderUpdate(ctx, "s1", dec("10"), nil)
	require.NoError(t, err)
	_, err = l.BeginPayment(ctx, "s1", newStubGateway(ports.GatewayPending), "order")
	require.NoError(t, err)
	require.NoError(t, l.AtomicPaymentComplete(ctx, "s1"))

	_, err = l.ApplyPatch(ctx, "s1", domain.PaymentPatch{NeedsReconciliation: domain.Ptr(true)}, nil)
	ve, ok := validation.First(err)
	require.True(t, ok)
	assert.Equal(t, validation.ConstraintReconciled, ve.Constraint)
}

func TestUpdateConversation_LeavesVersionAlone(t *testing.T) {
	l := newLedger(t, 100)
	ctx := context.Background()

	c, err := l.UpdateConversation(ctx, "s1", func(c *domain.ConversationState) error {
		c.Turn++
		c.Phase = domain.PhaseOrdering
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, c.Turn)

	doc, err := l.Sessions().Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseOrdering, doc.Conversation.Phase)
	assert.Equal(t, int64(0), doc.Payment.Version)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", ledger.Outcome(nil))
	assert.Equal(t, "insufficient_funds", ledger.Outcome(&domain.InsufficientFundsError{}))
	assert.Equal(t, "conflict", ledger.Outcome(&domain.ConflictError{}))
	assert.Equal(t, "invalid_transition", ledger.Outcome(&domain.TransitionError{}))
	assert.Equal(t, "invalid", ledger.Outcome(&validation.AggregateError{Errors: []error{&validation.ValidationError{}}}))
	assert.Equal(t, "error", ledger.Outcome(domain.ErrGatewayUnavailable))
}
