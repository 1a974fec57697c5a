package queries

import (
	"context"
	"time"

	"jastip-market/internal/pkg/clock"
	"jastip-market/internal/pkg/errs"
	"jastip-market/internal/usecase/shared"
	"jastip-market/internal/usecase/stocklock"
	"jastip-market/internal/worker"
)

// OpsQueries backs the operability endpoints.
type OpsQueries interface {
	ListLocks() []LockView
	LockStats() LockStatsView
	LockHealth() LockHealthView
	QueueStats(ctx context.Context) (*QueueStatsView, error)
	QueueHealth(ctx context.Context) error
	Worker() WorkerView
	Health(ctx context.Context) HealthView
}

type opsQueriesImpl struct {
	locks      *stocklock.Manager
	queue      shared.JobQueue
	dispatcher *worker.Dispatcher
	clock      clock.Clock
}

func NewOpsQueries(locks *stocklock.Manager, queue shared.JobQueue, dispatcher *worker.Dispatcher, clk clock.Clock) OpsQueries {
	return &opsQueriesImpl{locks: locks, queue: queue, dispatcher: dispatcher, clock: clk}
}

func (q *opsQueriesImpl) ListLocks() []LockView {
	now := q.clock.Now()
	active := q.locks.ListActive()
	out := make([]LockView, len(active))
	for i, r := range active {
		out[i] = lockView(r, now)
	}
	return out
}

func (q *opsQueriesImpl) LockStats() LockStatsView {
	return lockStatsView(q.locks.Stats())
}

func (q *opsQueriesImpl) LockHealth() LockHealthView {
	h := q.locks.Health()
	return LockHealthView{
		Level:            string(h.Level),
		LockCount:        h.LockCount,
		OldestHoldAgeSec: int64(h.OldestHoldAge.Seconds()),
		Issues:           h.Issues,
		Recommendations:  h.Recommendations,
	}
}

func (q *opsQueriesImpl) QueueStats(ctx context.Context) (*QueueStatsView, error) {
	st, err := q.queue.Stats(ctx)
	if err != nil {
		return nil, errs.Mark(err, errs.ErrQueueUnavailable)
	}
	return &QueueStatsView{
		Visible:       st.Visible,
		Delayed:       st.Delayed,
		InFlight:      st.InFlight,
		TotalQueued:   st.TotalQueued,
		OldestAgeSec:  int64(st.OldestAge / time.Second),
		MaxRetryCount: st.MaxRetryCount,
		Completed:     st.Completed,
		Failed:        st.Failed,
		Dropped:       st.Dropped,
	}, nil
}

func (q *opsQueriesImpl) QueueHealth(ctx context.Context) error {
	if err := q.queue.HealthCheck(ctx); err != nil {
		return errs.Mark(err, errs.ErrQueueUnavailable)
	}
	return nil
}

func (q *opsQueriesImpl) Worker() WorkerView {
	st := q.dispatcher.State()
	return WorkerView{
		Running:             st.Running,
		ActiveJobs:          st.ActiveJobs,
		Processed:           st.Processed,
		Failed:              st.Failed,
		StartedAt:           st.StartedAt,
		UptimeSec:           int64(st.Uptime.Seconds()),
		ThroughputPerMinute: st.ThroughputPerMinute,
		SuccessRate:         st.SuccessRate,
	}
}

// Health is unhealthy only when the queue is unreachable or the lock table
// is critical. A stopped worker is reported but does not fail the probe,
// since API-only processes run without one.
func (q *opsQueriesImpl) Health(ctx context.Context) HealthView {
	v := HealthView{Healthy: true, Queue: "ok", Worker: "stopped"}
	if err := q.queue.HealthCheck(ctx); err != nil {
		v.Healthy = false
		v.Queue = "unreachable"
	}
	level := q.locks.Health().Level
	v.Locks = string(level)
	if level == stocklock.HealthCritical {
		v.Healthy = false
	}
	if q.dispatcher.State().Running {
		v.Worker = "running"
	}
	return v
}
