//go:build unit

package worker_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"jastip-market/internal/domain/job"
	"jastip-market/internal/infra/queue"
	"jastip-market/internal/pkg/clock"
	"jastip-market/internal/pkg/config"
	"jastip-market/internal/pkg/errs"
	"jastip-market/internal/usecase/jobs"
	"jastip-market/internal/worker"
	"jastip-market/tests/common/builder"
	sharedmock "jastip-market/tests/mock/shared"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func workerConfig() config.WorkerConfig {
	return config.WorkerConfig{
		Enabled:       true,
		PollInterval:  5 * time.Millisecond,
		ShutdownGrace: time.Second,
	}
}

// start runs d in the background and returns a func that stops it and
// waits for Run to return.
func start(t *testing.T, d *worker.Dispatcher) func() {
	t.Helper()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, d.Run(context.Background()))
	}()
	require.Eventually(t, func() bool { return d.State().Running }, time.Second, time.Millisecond)
	return func() {
		assert.NoError(t, d.Stop(context.Background()))
		wg.Wait()
	}
}

func TestDispatcher_ProcessesInOrder(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemoryQueue(queue.Options{})

	var mu sync.Mutex
	var seen []string
	r := jobs.NewRegistry()
	r.Register(job.TypeNotification, jobs.HandlerFunc(func(_ context.Context, j job.Job) error {
		var p map[string]string
		require.NoError(t, j.Decode(&p))
		mu.Lock()
		seen = append(seen, p["n"])
		mu.Unlock()
		return nil
	}))
	for _, n := range []string{"1", "2", "3"} {
		_, err := q.Enqueue(ctx, builder.NewJobBuilder().WithPayload(map[string]string{"n": n}).Build())
		require.NoError(t, err)
	}

	d := worker.NewDispatcher(q, r, workerConfig(), clock.NewRealClock(), nil)
	stop := start(t, d)
	require.Eventually(t, func() bool { return d.State().Processed == 3 }, time.Second, time.Millisecond)
	stop()

	mu.Lock()
	assert.Equal(t, []string{"1", "2", "3"}, seen)
	mu.Unlock()

	st := d.State()
	assert.False(t, st.Running)
	assert.Zero(t, st.ActiveJobs)
	assert.Zero(t, st.Failed)
	assert.Equal(t, 1.0, st.SuccessRate)

	qs, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, qs.TotalQueued)
	assert.Zero(t, qs.InFlight)
	assert.EqualValues(t, 3, qs.Completed)
}

func TestDispatcher_FailuresTakeTheRetryPath(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemoryQueue(queue.Options{})

	r := jobs.NewRegistry()
	r.Register(job.TypeNotification, jobs.HandlerFunc(func(context.Context, job.Job) error {
		return errors.New("smtp down")
	}))
	r.Register(job.TypeAutoRefund, jobs.HandlerFunc(func(context.Context, job.Job) error {
		panic("nil order")
	}))

	for _, j := range []job.Job{
		builder.NewJobBuilder().WithMaxRetries(job.NoRetry).Build(),
		builder.NewJobBuilder().WithType(job.TypeAutoRefund).WithMaxRetries(job.NoRetry).Build(),
		builder.NewJobBuilder().WithType("retired.type").WithMaxRetries(job.NoRetry).Build(),
	} {
		_, err := q.Enqueue(ctx, j)
		require.NoError(t, err)
	}

	d := worker.NewDispatcher(q, r, workerConfig(), clock.NewRealClock(), nil)
	stop := start(t, d)
	require.Eventually(t, func() bool { return d.State().Processed == 3 }, time.Second, time.Millisecond)
	stop()

	st := d.State()
	assert.EqualValues(t, 3, st.Failed)
	assert.Zero(t, st.SuccessRate)

	qs, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, qs.Failed)
	assert.EqualValues(t, 3, qs.Dropped)
	assert.Zero(t, qs.TotalQueued)
}

func TestDispatcher_DequeueErrorDoesNotStopTheLoop(t *testing.T) {
	ctrl := gomock.NewController(t)
	q := sharedmock.NewMockJobQueue(ctrl)

	j := builder.NewJobBuilder().Build()
	j.MessageID = "42"
	var handled atomic.Int32

	gomock.InOrder(
		q.EXPECT().Dequeue(gomock.Any()).Return(nil, errs.ErrQueueUnavailable),
		q.EXPECT().Dequeue(gomock.Any()).Return(&j, nil),
	)
	q.EXPECT().Dequeue(gomock.Any()).Return(nil, nil).AnyTimes()
	q.EXPECT().Complete(gomock.Any(), "42").Return(nil)

	r := jobs.NewRegistry()
	r.Register(job.TypeNotification, jobs.HandlerFunc(func(context.Context, job.Job) error {
		handled.Add(1)
		return nil
	}))

	d := worker.NewDispatcher(q, r, workerConfig(), clock.NewRealClock(), nil)
	stop := start(t, d)
	require.Eventually(t, func() bool { return handled.Load() == 1 }, time.Second, time.Millisecond)
	stop()

	assert.EqualValues(t, 1, d.State().Processed)
}

func TestDispatcher_StopWaitsForJobInHand(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemoryQueue(queue.Options{})
	started := make(chan struct{})
	release := make(chan struct{})

	r := jobs.NewRegistry()
	r.Register(job.TypeNotification, jobs.HandlerFunc(func(ctx context.Context, _ job.Job) error {
		close(started)
		<-release
		return ctx.Err()
	}))
	_, err := q.Enqueue(ctx, builder.NewJobBuilder().Build())
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	d := worker.NewDispatcher(q, r, workerConfig(), clock.NewRealClock(), nil)
	done := make(chan error, 1)
	go func() { done <- d.Run(runCtx) }()
	<-started

	stopped := make(chan error, 1)
	go func() { stopped <- d.Stop(ctx) }()

	// cancelling the run context must not cancel the handler
	cancel()
	assert.Equal(t, int64(1), d.State().ActiveJobs)
	close(release)

	require.NoError(t, <-stopped)
	require.NoError(t, <-done)
	assert.Zero(t, d.State().Failed)
	assert.EqualValues(t, 1, d.State().Processed)
}

func TestDispatcher_StopTimesOut(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemoryQueue(queue.Options{})
	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)

	r := jobs.NewRegistry()
	r.Register(job.TypeNotification, jobs.HandlerFunc(func(context.Context, job.Job) error {
		close(started)
		<-release
		return nil
	}))
	_, err := q.Enqueue(ctx, builder.NewJobBuilder().Build())
	require.NoError(t, err)

	cfg := workerConfig()
	cfg.ShutdownGrace = 20 * time.Millisecond
	d := worker.NewDispatcher(q, r, cfg, clock.NewRealClock(), nil)
	go func() { _ = d.Run(ctx) }()
	<-started

	err = d.Stop(ctx)
	assert.ErrorIs(t, err, errs.ErrShutdownTimeout)
	assert.False(t, d.State().Running)
}

func TestDispatcher_StopBeforeRun(t *testing.T) {
	d := worker.NewDispatcher(queue.NewMemoryQueue(queue.Options{}), jobs.NewRegistry(), workerConfig(), clock.NewRealClock(), nil)
	assert.NoError(t, d.Stop(context.Background()))
}

func TestDispatcher_RunTwice(t *testing.T) {
	q := queue.NewMemoryQueue(queue.Options{})
	d := worker.NewDispatcher(q, jobs.NewRegistry(), workerConfig(), clock.NewRealClock(), nil)
	stop := start(t, d)
	defer stop()

	assert.ErrorIs(t, d.Run(context.Background()), worker.ErrAlreadyRunning)
}

func TestDispatcher_StateRates(t *testing.T) {
	clk := clock.NewMockClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	q := queue.NewMemoryQueue(queue.Options{Clock: clk})
	r := jobs.NewRegistry()
	r.Register(job.TypeNotification, jobs.HandlerFunc(func(context.Context, job.Job) error { return nil }))
	for range 4 {
		_, err := q.Enqueue(context.Background(), builder.NewJobBuilder().Build())
		require.NoError(t, err)
	}

	d := worker.NewDispatcher(q, r, workerConfig(), clk, nil)
	assert.Equal(t, worker.State{SuccessRate: 1}, d.State())

	stop := start(t, d)
	require.Eventually(t, func() bool { return d.State().Processed == 4 }, time.Second, time.Millisecond)
	stop()

	clk.Add(2 * time.Minute)
	st := d.State()
	assert.Equal(t, 2*time.Minute, st.Uptime)
	assert.InDelta(t, 2.0, st.ThroughputPerMinute, 0.001)
}
