//go:build unit

package stocklock_test

import (
	"context"
	"testing"
	"time"

	"jastip-market/internal/domain/order"
	"jastip-market/internal/domain/reservation"
	"jastip-market/internal/pkg/clock"
	"jastip-market/internal/pkg/errs"
	"jastip-market/internal/usecase/stocklock"
	"jastip-market/tests/common/builder"
	"jastip-market/tests/common/memstore"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerRestore(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMockClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))

	setup := func(t *testing.T, status order.Status) (*memstore.Store, uuid.UUID, uuid.UUID) {
		t.Helper()
		store := memstore.New()
		product := store.AddProduct("Tokyo Banana", 8)
		o := builder.NewOrderBuilder().
			WithLines(reservation.Line{ProductID: product, Quantity: 2}).
			WithStatus(status).
			Build()
		store.PutOrder(o)
		return store, product, o.ID
	}

	stockOf := func(t *testing.T, store *memstore.Store, product uuid.UUID) int {
		t.Helper()
		n, err := store.Reads().ProductStock(ctx, product)
		require.NoError(t, err)
		return n
	}

	t.Run("credits lines and moves status in one step", func(t *testing.T) {
		store, product, orderID := setup(t, order.StatusPendingDownPayment)
		ledger := stocklock.NewLedger(store, clk)

		restored, err := ledger.Restore(ctx, orderID, order.CauseExpired)
		require.NoError(t, err)
		assert.True(t, restored)
		assert.Equal(t, 10, stockOf(t, store, product))

		o, err := store.Reads().OrderByID(ctx, orderID)
		require.NoError(t, err)
		assert.Equal(t, order.StatusExpired, o.Status)
		assert.Equal(t, clk.Now(), o.UpdatedAt)
	})

	t.Run("expiry loses to a payment that moved the deadline", func(t *testing.T) {
		store := memstore.New()
		product := store.AddProduct("Tokyo Banana", 8)
		o := builder.NewOrderBuilder().
			WithLines(reservation.Line{ProductID: product, Quantity: 2}).
			AwaitingValidationUntil(clk.Now().Add(24 * time.Hour)).
			Build()
		store.PutOrder(o)
		ledger := stocklock.NewLedger(store, clk)

		restored, err := ledger.Restore(ctx, o.ID, order.CauseExpired)
		require.NoError(t, err)
		assert.False(t, restored)
		assert.Equal(t, 8, stockOf(t, store, product))

		got, err := store.Reads().OrderByID(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, order.StatusAwaitingValidation, got.Status)
	})

	t.Run("expiry before the deadline is a no-op", func(t *testing.T) {
		store, product, orderID := setup(t, order.StatusPendingDownPayment)
		early := clock.NewMockClock(time.Date(2025, 3, 1, 10, 10, 0, 0, time.UTC))
		ledger := stocklock.NewLedger(store, early)

		restored, err := ledger.Restore(ctx, orderID, order.CauseExpired)
		require.NoError(t, err)
		assert.False(t, restored)
		assert.Equal(t, 8, stockOf(t, store, product))
	})

	t.Run("second restore is a no-op", func(t *testing.T) {
		store, product, orderID := setup(t, order.StatusAwaitingValidation)
		ledger := stocklock.NewLedger(store, clk)

		_, err := ledger.Restore(ctx, orderID, order.CauseRejected)
		require.NoError(t, err)
		restored, err := ledger.Restore(ctx, orderID, order.CauseRejected)
		require.NoError(t, err)

		assert.False(t, restored)
		assert.Equal(t, 10, stockOf(t, store, product))
	})

	t.Run("settled order is never credited", func(t *testing.T) {
		store, product, orderID := setup(t, order.StatusCompleted)
		ledger := stocklock.NewLedger(store, clk)

		restored, err := ledger.Restore(ctx, orderID, order.CauseCancelled)
		require.NoError(t, err)
		assert.False(t, restored)
		assert.Equal(t, 8, stockOf(t, store, product))
	})

	t.Run("missing order", func(t *testing.T) {
		store := memstore.New()
		ledger := stocklock.NewLedger(store, clk)

		_, err := ledger.Restore(ctx, uuid.New(), order.CauseExpired)
		assert.ErrorIs(t, err, errs.ErrOrderNotFound)
	})
}
