//go:build unit

package worker_test

import (
	"context"
	"testing"
	"time"

	"jastip-market/internal/domain/job"
	"jastip-market/internal/infra/queue"
	"jastip-market/internal/pkg/config"
	"jastip-market/internal/worker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler(t *testing.T) {
	q := queue.NewMemoryQueue(queue.Options{})
	s := worker.NewScheduler(q, config.SchedulerConfig{
		Enabled:           true,
		ReservationsEvery: 5 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		st, err := q.Stats(context.Background())
		return err == nil && st.Visible >= 2
	}, time.Second, time.Millisecond)
	cancel()
	<-done

	j, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.NotNil(t, j)
	assert.Equal(t, job.TypeSweepReservations, j.Type)
}
