// Package queue holds the JobQueue drivers. All drivers share the retry
// policy defined here: a failed job is removed and, while retries remain,
// re-created with its retry count bumped and a delay from the backoff table.
package queue

import (
	"log/slog"
	"sync/atomic"
	"time"

	"jastip-market/internal/domain/job"
	"jastip-market/internal/pkg/clock"
	"jastip-market/internal/pkg/config"
	"jastip-market/internal/pkg/errs"
	"jastip-market/internal/usecase/shared"
)

type Options struct {
	VisibilityTimeout time.Duration
	MaxRetries        int
	Backoff           job.BackoffTable
	Clock             clock.Clock
	Metrics           shared.JobMetrics
}

func OptionsFromConfig(cfg config.QueueConfig, clk clock.Clock, metrics shared.JobMetrics) (Options, error) {
	steps, err := cfg.BackoffSteps()
	if err != nil {
		return Options{}, err
	}
	backoff, err := job.NewBackoffTable(steps...)
	if err != nil {
		return Options{}, err
	}
	return Options{
		VisibilityTimeout: cfg.VisibilityTimeout,
		MaxRetries:        cfg.MaxRetries,
		Backoff:           backoff,
		Clock:             clk,
		Metrics:           metrics,
	}.withDefaults(), nil
}

func (o Options) withDefaults() Options {
	if o.VisibilityTimeout <= 0 {
		o.VisibilityTimeout = 30 * time.Second
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if len(o.Backoff.Steps()) == 0 {
		o.Backoff = job.DefaultBackoff()
	}
	if o.Clock == nil {
		o.Clock = clock.NewRealClock()
	}
	if o.Metrics == nil {
		o.Metrics = shared.NopMetrics{}
	}
	return o
}

// prepare validates j and fills the fields a fresh job gets on enqueue.
func (o Options) prepare(j job.Job, now time.Time) (job.Job, error) {
	if err := j.Validate(); err != nil {
		return job.Job{}, errs.Mark(err, errs.ErrInvalidJob)
	}
	if j.MaxRetries == 0 {
		j.MaxRetries = o.MaxRetries
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.MessageID = ""
	j.VisibilityDeadline = time.Time{}
	return j, nil
}

// retry returns the next instance of a failed job, or false when the job
// has used up its retries and must be dropped.
func (o Options) retry(j job.Job, cause error) (job.Job, bool) {
	if j.Exhausted() {
		return job.Job{}, false
	}
	return j.Retried(cause, o.Backoff.Delay(j.RetryCount)), true
}

type counters struct {
	completed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

func (c *counters) fill(st *shared.QueueStats) {
	st.Completed = c.completed.Load()
	st.Failed = c.failed.Load()
	st.Dropped = c.dropped.Load()
}

func logDropped(logger *slog.Logger, j job.Job, cause error) {
	logger.Error("job dropped after exhausting retries",
		"type", j.Type,
		"message_id", j.MessageID,
		"retry_count", j.RetryCount,
		"max_retries", j.MaxRetries,
		"error", cause)
}

func logRetry(logger *slog.Logger, next job.Job, cause error) {
	logger.Warn("job failed, scheduled for retry",
		"type", next.Type,
		"retry_count", next.RetryCount,
		"delay", next.Delay,
		"error", cause)
}
