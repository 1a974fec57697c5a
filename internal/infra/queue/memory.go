package queue

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"jastip-market/internal/domain/job"
	"jastip-market/internal/usecase/shared"
)

type memEntry struct {
	job       job.Job
	visibleAt time.Time
	seq       uint64
	claimed   bool
}

// MemoryQueue keeps jobs in process memory. It is meant for tests and
// single-process development runs; nothing survives a restart.
type MemoryQueue struct {
	mu       sync.Mutex
	entries  map[string]*memEntry
	seq      uint64
	opts     Options
	counters counters
	logger   *slog.Logger
}

func NewMemoryQueue(opts Options) *MemoryQueue {
	return &MemoryQueue{
		entries: make(map[string]*memEntry),
		opts:    opts.withDefaults(),
		logger:  slog.With("component", "queue", "driver", "memory"),
	}
}

func (q *MemoryQueue) Enqueue(_ context.Context, j job.Job) (string, error) {
	now := q.opts.Clock.Now()
	j, err := q.opts.prepare(j, now)
	if err != nil {
		return "", err
	}

	q.mu.Lock()
	id := q.insertLocked(j, now)
	q.mu.Unlock()

	q.opts.Metrics.JobEnqueued(j.Type)
	return id, nil
}

func (q *MemoryQueue) insertLocked(j job.Job, now time.Time) string {
	q.seq++
	id := strconv.FormatUint(q.seq, 10)
	q.entries[id] = &memEntry{job: j, visibleAt: now.Add(j.Delay), seq: q.seq}
	return id
}

// Dequeue claims the visible job with the highest priority, oldest
// visibility time first.
func (q *MemoryQueue) Dequeue(_ context.Context) (*job.Job, error) {
	now := q.opts.Clock.Now()

	q.mu.Lock()
	var bestID string
	var best *memEntry
	for id, e := range q.entries {
		if e.visibleAt.After(now) {
			continue
		}
		if best == nil || before(e, best) {
			bestID, best = id, e
		}
	}
	if best == nil {
		q.mu.Unlock()
		return nil, nil
	}
	best.claimed = true
	best.visibleAt = now.Add(q.opts.VisibilityTimeout)
	claimed := best.job
	claimed.MessageID = bestID
	claimed.VisibilityDeadline = best.visibleAt
	q.mu.Unlock()

	q.opts.Metrics.JobDequeued(claimed.Type)
	return &claimed, nil
}

func before(a, b *memEntry) bool {
	if a.job.Priority != b.job.Priority {
		return a.job.Priority > b.job.Priority
	}
	if !a.visibleAt.Equal(b.visibleAt) {
		return a.visibleAt.Before(b.visibleAt)
	}
	return a.seq < b.seq
}

func (q *MemoryQueue) Complete(_ context.Context, messageID string) error {
	q.mu.Lock()
	e, ok := q.entries[messageID]
	delete(q.entries, messageID)
	q.mu.Unlock()

	if ok {
		q.counters.completed.Add(1)
		q.opts.Metrics.JobCompleted(e.job.Type)
	}
	return nil
}

// Fail is a no-op when the instance is already gone; another consumer has
// settled it.
func (q *MemoryQueue) Fail(_ context.Context, messageID string, _ job.Job, cause error) error {
	now := q.opts.Clock.Now()

	q.mu.Lock()
	e, ok := q.entries[messageID]
	if !ok {
		q.mu.Unlock()
		return nil
	}
	delete(q.entries, messageID)

	current := e.job
	current.MessageID = messageID
	next, retry := q.opts.retry(current, cause)
	if retry {
		q.insertLocked(next, now)
	}
	q.mu.Unlock()

	q.counters.failed.Add(1)
	q.opts.Metrics.JobFailed(current.Type, !retry)
	if !retry {
		q.counters.dropped.Add(1)
		logDropped(q.logger, current, cause)
		return nil
	}
	logRetry(q.logger, next, cause)
	return nil
}

func (q *MemoryQueue) Stats(_ context.Context) (shared.QueueStats, error) {
	now := q.opts.Clock.Now()

	q.mu.Lock()
	var st shared.QueueStats
	var oldest time.Time
	for _, e := range q.entries {
		switch {
		case !e.visibleAt.After(now):
			st.Visible++
		case e.claimed:
			st.InFlight++
		default:
			st.Delayed++
		}
		if oldest.IsZero() || e.job.CreatedAt.Before(oldest) {
			oldest = e.job.CreatedAt
		}
		if e.job.RetryCount > st.MaxRetryCount {
			st.MaxRetryCount = e.job.RetryCount
		}
	}
	q.mu.Unlock()

	st.TotalQueued = st.Visible + st.Delayed
	if !oldest.IsZero() {
		st.OldestAge = now.Sub(oldest)
	}
	q.counters.fill(&st)
	return st, nil
}

func (q *MemoryQueue) HealthCheck(ctx context.Context) error {
	return ctx.Err()
}
