//go:build unit

package queue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"jastip-market/internal/domain/job"
	"jastip-market/internal/infra/queue"
	"jastip-market/internal/pkg/clock"
	"jastip-market/internal/pkg/errs"
	"jastip-market/tests/common/builder"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemoryQueue(t *testing.T) (*queue.MemoryQueue, *clock.MockClock) {
	t.Helper()
	clk := clock.NewMockClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	backoff, err := job.NewBackoffTable(5*time.Second, 30*time.Second, 5*time.Minute)
	require.NoError(t, err)
	q := queue.NewMemoryQueue(queue.Options{
		VisibilityTimeout: 30 * time.Second,
		MaxRetries:        3,
		Backoff:           backoff,
		Clock:             clk,
	})
	return q, clk
}

func TestMemoryQueue_Enqueue(t *testing.T) {
	ctx := context.Background()

	t.Run("stamps defaults", func(t *testing.T) {
		q, clk := newMemoryQueue(t)
		j, err := job.New(job.TypeSweepReservations, nil)
		require.NoError(t, err)

		id, err := q.Enqueue(ctx, j)
		require.NoError(t, err)
		assert.NotEmpty(t, id)

		got, err := q.Dequeue(ctx)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, id, got.MessageID)
		assert.Equal(t, 0, got.RetryCount)
		assert.Equal(t, 3, got.MaxRetries, "unset max retries takes the queue default")
		assert.Equal(t, clk.Now(), got.CreatedAt)
		assert.Equal(t, clk.Now().Add(30*time.Second), got.VisibilityDeadline)
	})

	t.Run("rejects a job without type", func(t *testing.T) {
		q, _ := newMemoryQueue(t)
		_, err := q.Enqueue(ctx, job.Job{})
		assert.ErrorIs(t, err, errs.ErrInvalidJob)
		assert.ErrorIs(t, err, job.ErrMissingType)
	})

	t.Run("initial delay hides the job", func(t *testing.T) {
		q, clk := newMemoryQueue(t)
		_, err := q.Enqueue(ctx, builder.NewJobBuilder().WithDelay(time.Minute).Build())
		require.NoError(t, err)

		got, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Nil(t, got)

		clk.Add(time.Minute)
		got, err = q.Dequeue(ctx)
		require.NoError(t, err)
		assert.NotNil(t, got)
	})
}

func TestMemoryQueue_FIFOWithoutFailures(t *testing.T) {
	ctx := context.Background()
	q, _ := newMemoryQueue(t)

	var want []string
	for _, typ := range []job.Type{job.TypeExpireUnpaid, job.TypeAutoReject, job.TypeNotification} {
		id, err := q.Enqueue(ctx, builder.NewJobBuilder().WithType(typ).Build())
		require.NoError(t, err)
		want = append(want, id)
	}

	var got []string
	for range want {
		j, err := q.Dequeue(ctx)
		require.NoError(t, err)
		require.NotNil(t, j)
		got = append(got, j.MessageID)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("dequeue order mismatch (-want +got):\n%s", diff)
	}
}

func TestMemoryQueue_PriorityFirst(t *testing.T) {
	ctx := context.Background()
	q, _ := newMemoryQueue(t)

	_, err := q.Enqueue(ctx, builder.NewJobBuilder().WithType(job.TypeNotification).Build())
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, builder.NewJobBuilder().WithType(job.TypeExpireUnpaid).WithPriority(10).Build())
	require.NoError(t, err)

	j, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, job.TypeExpireUnpaid, j.Type)
}

func TestMemoryQueue_RetryBudget(t *testing.T) {
	ctx := context.Background()

	t.Run("bare job gets the queue default", func(t *testing.T) {
		q, clk := newMemoryQueue(t)
		_, err := q.Enqueue(ctx, job.Job{Type: job.TypeSweepReconcile})
		require.NoError(t, err)

		j, err := q.Dequeue(ctx)
		require.NoError(t, err)
		require.NotNil(t, j)
		assert.Equal(t, 3, j.MaxRetries)
		require.NoError(t, q.Fail(ctx, j.MessageID, *j, errors.New("boom")))

		clk.Add(5 * time.Second)
		again, err := q.Dequeue(ctx)
		require.NoError(t, err)
		require.NotNil(t, again, "first failure is retried")
		assert.Equal(t, 1, again.RetryCount)
	})

	t.Run("no retry drops on first failure", func(t *testing.T) {
		q, clk := newMemoryQueue(t)
		_, err := q.Enqueue(ctx, builder.NewJobBuilder().WithMaxRetries(job.NoRetry).Build())
		require.NoError(t, err)

		j, err := q.Dequeue(ctx)
		require.NoError(t, err)
		require.NotNil(t, j)
		require.NoError(t, q.Fail(ctx, j.MessageID, *j, errors.New("boom")))

		clk.Add(time.Hour)
		gone, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Nil(t, gone)

		st, err := q.Stats(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 1, st.Dropped)
	})
}

func TestMemoryQueue_RetryThenDrop(t *testing.T) {
	ctx := context.Background()
	q, clk := newMemoryQueue(t)

	_, err := q.Enqueue(ctx, builder.NewJobBuilder().WithMaxRetries(2).Build())
	require.NoError(t, err)

	delays := []time.Duration{5 * time.Second, 30 * time.Second}
	for attempt := 0; attempt < 2; attempt++ {
		j, err := q.Dequeue(ctx)
		require.NoError(t, err)
		require.NotNil(t, j, "attempt %d", attempt)
		assert.Equal(t, attempt, j.RetryCount)

		require.NoError(t, q.Fail(ctx, j.MessageID, *j, errors.New("boom")))

		// not visible until its backoff has elapsed
		none, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Nil(t, none)
		clk.Add(delays[attempt])
	}

	last, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, 2, last.RetryCount)
	assert.Equal(t, "boom", last.LastError)

	require.NoError(t, q.Fail(ctx, last.MessageID, *last, errors.New("boom")))

	clk.Add(time.Hour)
	gone, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, gone)

	st, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, st.TotalQueued)
	assert.Equal(t, int64(3), st.Failed)
	assert.Equal(t, int64(1), st.Dropped)
}

func TestMemoryQueue_CompletionClearsBacklog(t *testing.T) {
	ctx := context.Background()
	q, _ := newMemoryQueue(t)

	for i := 0; i < 2; i++ {
		_, err := q.Enqueue(ctx, builder.NewJobBuilder().Build())
		require.NoError(t, err)
	}
	for i := 0; i < 2; i++ {
		j, err := q.Dequeue(ctx)
		require.NoError(t, err)
		require.NotNil(t, j)
		require.NoError(t, q.Complete(ctx, j.MessageID))
	}

	j, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, j)

	st, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, st.TotalQueued)
	assert.Equal(t, 0, st.InFlight)
	assert.Equal(t, int64(2), st.Completed)

	// completing twice is still fine
	require.NoError(t, q.Complete(ctx, "1"))
	require.NoError(t, q.Complete(ctx, "does-not-exist"))
}

func TestMemoryQueue_VisibilityTimeoutRedelivers(t *testing.T) {
	ctx := context.Background()
	q, clk := newMemoryQueue(t)

	_, err := q.Enqueue(ctx, builder.NewJobBuilder().Build())
	require.NoError(t, err)

	first, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)

	st, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.InFlight)
	assert.Equal(t, 0, st.TotalQueued)

	none, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, none, "claimed job is hidden from other consumers")

	clk.Add(30 * time.Second)
	second, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, first.MessageID, second.MessageID)

	// the slow first consumer finishing settles the job for everyone
	require.NoError(t, q.Complete(ctx, first.MessageID))
	require.NoError(t, q.Fail(ctx, second.MessageID, *second, errors.New("late")))

	st, err = q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, st.TotalQueued)
	assert.Equal(t, int64(0), st.Failed)
}

func TestMemoryQueue_Stats(t *testing.T) {
	ctx := context.Background()
	q, clk := newMemoryQueue(t)

	_, err := q.Enqueue(ctx, builder.NewJobBuilder().Build())
	require.NoError(t, err)
	clk.Add(time.Minute)
	_, err = q.Enqueue(ctx, builder.NewJobBuilder().WithDelay(time.Hour).Build())
	require.NoError(t, err)

	st, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Visible)
	assert.Equal(t, 1, st.Delayed)
	assert.Equal(t, 2, st.TotalQueued)
	assert.Equal(t, time.Minute, st.OldestAge)
	assert.NoError(t, q.HealthCheck(ctx))
}
