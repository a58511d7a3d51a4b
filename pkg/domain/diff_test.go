package domain

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiff(t *testing.T) {
	latte := LineItem{Name: "Latte", UnitPrice: decimal.RequireFromString("4.50"), Quantity: 1}
	muffin := LineItem{Name: "Muffin", UnitPrice: decimal.RequireFromString("3.25"), Quantity: 2}

	base := func() *Session {
		s := NewSession("sess-1", Defaults{InitialBalance: decimal.NewFromInt(100)})
		return s
	}

	t.Run("initial load", func(t *testing.T) {
		d := Diff(nil, base())
		require.NotNil(t, d)
		assert.Equal(t, "sess-1", d.SessionID)
		require.NotNil(t, d.Phase)
		assert.Equal(t, PhaseGreeting, *d.Phase)
		assert.Contains(t, d.Payment, "balance")
		assert.Equal(t, StatusPending, d.Payment["payment_status"])
		assert.Nil(t, d.Items)
		assert.Nil(t, d.History)
	})

	t.Run("no changes", func(t *testing.T) {
		s := base()
		assert.Nil(t, Diff(s, s.Clone()))
	})

	t.Run("order appended", func(t *testing.T) {
		old := base()
		old.Order.Items = []LineItem{latte}
		next := old.Clone()
		next.Order.Items = append(next.Order.Items, muffin)
		next.Payment.Balance = decimal.RequireFromString("89")
		next.Payment.TabTotal = decimal.RequireFromString("11")
		next.Payment.Version = 2

		d := Diff(old, next)
		require.NotNil(t, d)
		assert.Nil(t, d.Phase)
		require.NotNil(t, d.Items)
		assert.False(t, d.Items.Cleared)
		assert.Equal(t, []LineItem{muffin}, d.Items.Appended)
		assert.Len(t, d.Payment, 3)
		assert.Equal(t, int64(2), d.Payment["version"])
	})

	t.Run("tip cleared", func(t *testing.T) {
		old := base()
		old.Payment.TipPercentage = Ptr(15)
		next := old.Clone()
		next.Payment.TipPercentage = nil

		d := Diff(old, next)
		require.NotNil(t, d)
		v, ok := d.Payment["tip_percentage"]
		assert.True(t, ok)
		assert.Nil(t, v)
	})

	t.Run("payment completed", func(t *testing.T) {
		old := base()
		old.Order.Items = []LineItem{latte}
		old.Payment.Status = StatusProcessing
		next := old.Clone()
		next.Order.History = []CompletedOrder{{Items: []LineItem{latte}, TotalCost: latte.Subtotal(), Paid: true}}
		next.Order.Items = []LineItem{}
		next.Payment.Status = StatusCompleted
		next.Conversation.Phase = PhaseFarewell

		d := Diff(old, next)
		require.NotNil(t, d)
		assert.Equal(t, PhaseFarewell, *d.Phase)
		assert.Equal(t, StatusCompleted, d.Payment["payment_status"])
		require.NotNil(t, d.Items)
		assert.True(t, d.Items.Cleared)
		assert.Empty(t, d.Items.Appended)
		require.NotNil(t, d.History)
		assert.Len(t, d.History.Appended, 1)
	})
}

func TestDiff_JSON(t *testing.T) {
	old := NewSession("s", Defaults{InitialBalance: decimal.NewFromInt(10)})
	next := old.Clone()
	next.Payment.Balance = decimal.RequireFromString("5.5")

	data, err := json.Marshal(Diff(old, next))
	require.NoError(t, err)
	assert.JSONEq(t, `{"session_id":"s","payment":{"balance":"5.5"}}`, string(data))
}
