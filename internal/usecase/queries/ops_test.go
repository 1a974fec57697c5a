//go:build unit

package queries_test

import (
	"context"
	"testing"
	"time"

	"jastip-market/internal/domain/reservation"
	"jastip-market/internal/infra/queue"
	"jastip-market/internal/pkg/clock"
	"jastip-market/internal/pkg/config"
	"jastip-market/internal/pkg/errs"
	"jastip-market/internal/usecase/jobs"
	"jastip-market/internal/usecase/queries"
	"jastip-market/internal/usecase/stocklock"
	"jastip-market/internal/worker"
	"jastip-market/tests/common/builder"
	"jastip-market/tests/common/memstore"
	sharedmock "jastip-market/tests/mock/shared"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestOpsQueries(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMockClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	cfg := config.NewTestConfig()
	store := memstore.New()
	locks := stocklock.NewManager(cfg.Reservation, stocklock.NewLedger(store, clk), clk, nil)
	q := queue.NewMemoryQueue(queue.Options{Clock: clk})
	d := worker.NewDispatcher(q, jobs.NewRegistry(), cfg.Worker, clk, nil)
	ops := queries.NewOpsQueries(locks, q, d, clk)

	product := uuid.New()
	orderID := uuid.New()
	_, err := locks.Reserve(orderID, []reservation.Line{{ProductID: product, Quantity: 3}})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, builder.NewJobBuilder().Build())
	require.NoError(t, err)
	clk.Add(5 * time.Minute)

	t.Run("locks", func(t *testing.T) {
		list := ops.ListLocks()
		require.Len(t, list, 1)
		assert.Equal(t, orderID, list[0].OrderID)
		assert.Equal(t, "active", list[0].Status)
		assert.EqualValues(t, 300, list[0].AgeSec)

		st := ops.LockStats()
		assert.Equal(t, 1, st.ActiveLocks)
		assert.Equal(t, 3, st.UnitsByProduct[product])
		assert.Equal(t, "healthy", ops.LockHealth().Level)
	})

	t.Run("queue", func(t *testing.T) {
		st, err := ops.QueueStats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, st.TotalQueued)
		assert.EqualValues(t, 300, st.OldestAgeSec)
		assert.NoError(t, ops.QueueHealth(ctx))
	})

	t.Run("health", func(t *testing.T) {
		h := ops.Health(ctx)
		assert.True(t, h.Healthy)
		assert.Equal(t, "stopped", h.Worker)
		assert.False(t, ops.Worker().Running)
	})

	t.Run("unreachable queue fails the probe", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		broken := sharedmock.NewMockJobQueue(ctrl)
		broken.EXPECT().HealthCheck(gomock.Any()).Return(errs.ErrQueueUnavailable)

		h := queries.NewOpsQueries(locks, broken, d, clk).Health(ctx)
		assert.False(t, h.Healthy)
		assert.Equal(t, "unreachable", h.Queue)
	})
}

func TestOrderQueries(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMockClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	store := memstore.New()
	locks := stocklock.NewManager(config.NewTestConfig().Reservation, stocklock.NewLedger(store, clk), clk, nil)
	q := queries.NewOrderQueries(store, locks)

	o := builder.NewOrderBuilder().Build()
	store.PutOrder(o)
	_, err := locks.Reserve(o.ID, o.Lines)
	require.NoError(t, err)

	v, err := q.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "pending_down_payment", v.Status)
	require.NotNil(t, v.HoldExpiresAt)
	assert.Equal(t, clk.Now().Add(30*time.Minute), *v.HoldExpiresAt)

	_, err = q.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, errs.ErrOrderNotFound)
}
