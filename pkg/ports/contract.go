package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/tabkeeper/pkg/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSessionStoreContract runs a suite of tests to verify that a SessionStore
// implementation adheres to the defined interface contract.
func RunSessionStoreContract(t *testing.T, store SessionStore) {
	ctx := context.Background()
	sessionID := "contract-test-session-" + time.Now().Format("20060102150405")
	defaults := domain.Defaults{InitialBalance: decimal.NewFromInt(100)}

	t.Run("Save and Load", func(t *testing.T) {
		session := domain.NewSession(sessionID, defaults)
		session.Payment.TabTotal = decimal.RequireFromString("12.50")
		session.Payment.TipPercentage = domain.Ptr(15)
		session.Payment.Version = 7
		session.Order.Items = append(session.Order.Items, domain.LineItem{
			Name:      "Flat White",
			UnitPrice: decimal.RequireFromString("12.50"),
			Quantity:  1,
			Modifiers: []string{"oat milk"},
		})

		err := store.Save(ctx, sessionID, session)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err, "Load should not return error")
		assert.True(t, session.Payment.TabTotal.Equal(loaded.Payment.TabTotal))
		assert.Equal(t, int64(7), loaded.Payment.Version, "version must survive persistence")
		require.NotNil(t, loaded.Payment.TipPercentage)
		assert.Equal(t, 15, *loaded.Payment.TipPercentage)
		require.Len(t, loaded.Order.Items, 1)
		assert.Equal(t, []string{"oat milk"}, loaded.Order.Items[0].Modifiers)
	})

	t.Run("Load returns a copy", func(t *testing.T) {
		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		loaded.Payment.Version = 999
		loaded.Order.Items[0].Modifiers[0] = "mutated"

		again, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, int64(7), again.Payment.Version)
		assert.Equal(t, "oat milk", again.Order.Items[0].Modifiers[0])
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, sessionID, domain.NewSession(sessionID, defaults))
		require.NoError(t, err)

		err = store.Delete(ctx, sessionID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		_ = store.Save(ctx, id1, domain.NewSession(id1, defaults))
		_ = store.Save(ctx, id2, domain.NewSession(id2, defaults))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		sessions, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sessions, id1)
		assert.Contains(t, sessions, id2)
	})
}
