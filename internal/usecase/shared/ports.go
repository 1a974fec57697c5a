package shared

import (
	"context"
	"time"

	"jastip-market/internal/domain/job"
)

type JobQueue interface {
	Enqueue(ctx context.Context, j job.Job) (string, error)
	// Dequeue returns nil when no job is visible.
	Dequeue(ctx context.Context) (*job.Job, error)
	Complete(ctx context.Context, messageID string) error
	Fail(ctx context.Context, messageID string, j job.Job, cause error) error
	Stats(ctx context.Context) (QueueStats, error)
	HealthCheck(ctx context.Context) error
}

type QueueStats struct {
	Visible       int           `json:"visible"`
	Delayed       int           `json:"delayed"`
	InFlight      int           `json:"inFlight"`
	TotalQueued   int           `json:"totalQueued"`
	OldestAge     time.Duration `json:"oldestAgeNs"`
	MaxRetryCount int           `json:"maxRetryCount"`
	Completed     int64         `json:"completed"`
	Failed        int64         `json:"failed"`
	Dropped       int64         `json:"dropped"`
}

type Notification struct {
	Template string            `json:"template"`
	To       string            `json:"to"`
	Subject  string            `json:"subject"`
	Data     map[string]string `json:"data,omitempty"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// JobMetrics receives queue events; implementations must be safe for concurrent use.
type JobMetrics interface {
	JobEnqueued(t job.Type)
	JobDequeued(t job.Type)
	JobCompleted(t job.Type)
	JobFailed(t job.Type, dropped bool)
}

type LockMetrics interface {
	SetActiveLocks(count, units int)
	LockReleased(cause string, restored bool)
}

type WorkerMetrics interface {
	ObserveJob(t job.Type, outcome string, seconds float64)
	SetWorkerActive(n int)
}

type NopMetrics struct{}

func (NopMetrics) JobEnqueued(job.Type) {}
func (NopMetrics) JobDequeued(job.Type) {}
func (NopMetrics) JobCompleted(job.Type) {}
func (NopMetrics) JobFailed(job.Type, bool) {}
func (NopMetrics) SetActiveLocks(int, int) {}
func (NopMetrics) LockReleased(string, bool) {}
func (NopMetrics) ObserveJob(job.Type, string, float64) {}
func (NopMetrics) SetWorkerActive(int) {}
