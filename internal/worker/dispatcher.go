// Package worker drains the job queue into the handler registry. One
// Dispatcher runs one job at a time; scale out by running more processes
// against the same queue.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"jastip-market/internal/domain/job"
	"jastip-market/internal/pkg/clock"
	"jastip-market/internal/pkg/config"
	"jastip-market/internal/pkg/errs"
	"jastip-market/internal/usecase/shared"
)

// Executor runs one job. *jobs.Registry satisfies it.
type Executor interface {
	Execute(ctx context.Context, j job.Job) error
}

var ErrAlreadyRunning = errs.New("dispatcher already running")

// State is a point-in-time view of the dispatcher. Processed counts every
// job that reached a handler; Failed is the subset whose handler errored.
type State struct {
	Running             bool          `json:"running"`
	ActiveJobs          int64         `json:"active_jobs"`
	Processed           int64         `json:"processed"`
	Failed              int64         `json:"failed"`
	StartedAt           time.Time     `json:"started_at,omitzero"`
	Uptime              time.Duration `json:"uptime"`
	ThroughputPerMinute float64       `json:"throughput_per_minute"`
	SuccessRate         float64       `json:"success_rate"`
}

type Dispatcher struct {
	queue   shared.JobQueue
	exec    Executor
	cfg     config.WorkerConfig
	clock   clock.Clock
	metrics shared.WorkerMetrics
	logger  *slog.Logger

	running   atomic.Bool
	active    atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64

	mu        sync.Mutex
	startedAt time.Time
	stop      chan struct{}
	done      chan struct{}
}

func NewDispatcher(queue shared.JobQueue, exec Executor, cfg config.WorkerConfig, clk clock.Clock, metrics shared.WorkerMetrics) *Dispatcher {
	if metrics == nil {
		metrics = shared.NopMetrics{}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Dispatcher{
		queue:   queue,
		exec:    exec,
		cfg:     cfg,
		clock:   clk,
		metrics: metrics,
		logger:  slog.With("component", "worker"),
	}
}

// Run polls until ctx is cancelled or Stop is called. It returns after the
// job in hand, if any, has been acked or failed.
func (d *Dispatcher) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	d.mu.Lock()
	d.startedAt = d.clock.Now()
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	stop, done := d.stop, d.done
	d.mu.Unlock()

	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			d.running.Store(false)
			d.logger.Error("worker loop crashed, stopping", "panic", r, "active_jobs", d.active.Load())
			panic(r)
		}
	}()

	healthCtx, cancelHealth := context.WithCancel(ctx)
	defer cancelHealth()
	go d.logHealth(healthCtx)

	d.logger.Info("worker started", "poll_interval", d.cfg.PollInterval)
	for d.running.Load() {
		if ctx.Err() != nil {
			break
		}
		if d.processOne(ctx) {
			continue
		}
		timer := time.NewTimer(d.cfg.PollInterval)
		select {
		case <-ctx.Done():
		case <-stop:
		case <-timer.C:
		}
		timer.Stop()
	}

	d.running.Store(false)
	d.logger.Info("worker stopped", "processed", d.processed.Load(), "failed", d.failed.Load())
	return nil
}

// Stop asks the loop to exit and waits up to the shutdown grace for the job
// in hand. An abandoned job becomes visible again once its visibility
// timeout passes.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	stop, done := d.stop, d.done
	d.mu.Unlock()
	if done == nil {
		return nil
	}

	if d.running.CompareAndSwap(true, false) {
		close(stop)
	}

	grace := time.NewTimer(d.cfg.ShutdownGrace)
	defer grace.Stop()
	select {
	case <-done:
		return nil
	case <-grace.C:
		d.logger.Warn("shutdown grace exceeded, abandoning jobs", "active_jobs", d.active.Load())
		return errs.WithMark(errs.ErrShutdownTimeout, "%d job(s) still active after %s", d.active.Load(), d.cfg.ShutdownGrace)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// processOne reports whether a job was claimed.
func (d *Dispatcher) processOne(ctx context.Context) bool {
	j, err := d.queue.Dequeue(ctx)
	if err != nil {
		if ctx.Err() == nil {
			d.logger.Error("dequeue failed", "error", err)
		}
		return false
	}
	if j == nil {
		return false
	}

	d.metrics.SetWorkerActive(int(d.active.Add(1)))
	defer func() { d.metrics.SetWorkerActive(int(d.active.Add(-1))) }()

	// the job in hand is finished even while shutting down
	jobCtx := context.WithoutCancel(ctx)
	start := time.Now()
	err = d.execute(jobCtx, *j)
	elapsed := time.Since(start)
	d.processed.Add(1)

	if err == nil {
		d.metrics.ObserveJob(j.Type, "completed", elapsed.Seconds())
		if ackErr := d.queue.Complete(jobCtx, j.MessageID); ackErr != nil {
			d.logger.Error("failed to complete job", "type", j.Type, "message_id", j.MessageID, "error", ackErr)
		}
		d.logger.Debug("job completed", "type", j.Type, "message_id", j.MessageID, "elapsed", elapsed)
		return true
	}

	d.failed.Add(1)
	d.metrics.ObserveJob(j.Type, "failed", elapsed.Seconds())
	d.logger.Warn("job failed",
		"type", j.Type,
		"message_id", j.MessageID,
		"retry_count", j.RetryCount,
		"error", err,
		"stack", errs.ExtractStackLines(err, 5),
	)
	if failErr := d.queue.Fail(jobCtx, j.MessageID, *j, err); failErr != nil {
		d.logger.Error("failed to fail job", "type", j.Type, "message_id", j.MessageID, "error", failErr)
	}
	return true
}

// execute turns a handler panic into an error so it takes the retry path.
func (d *Dispatcher) execute(ctx context.Context, j job.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.Newf("handler panic: %s", fmt.Sprint(r))
		}
	}()
	return d.exec.Execute(ctx, j)
}

func (d *Dispatcher) logHealth(ctx context.Context) {
	if d.cfg.HealthLogInterval <= 0 {
		return
	}
	ticker := time.NewTicker(d.cfg.HealthLogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := d.State()
			qs, err := d.queue.Stats(ctx)
			if err != nil {
				d.logger.Warn("worker health: queue stats unavailable", "error", err)
				continue
			}
			d.logger.Info("worker health",
				"queued", qs.TotalQueued,
				"in_flight", qs.InFlight,
				"oldest_age", qs.OldestAge,
				"processed", st.Processed,
				"failed", st.Failed,
				"success_rate", st.SuccessRate,
			)
		}
	}
}

func (d *Dispatcher) State() State {
	d.mu.Lock()
	startedAt := d.startedAt
	d.mu.Unlock()

	st := State{
		Running:    d.running.Load(),
		ActiveJobs: d.active.Load(),
		Processed:  d.processed.Load(),
		Failed:     d.failed.Load(),
		StartedAt:  startedAt,
	}
	if !startedAt.IsZero() {
		st.Uptime = d.clock.Now().Sub(startedAt)
	}
	if minutes := st.Uptime.Minutes(); minutes > 0 {
		st.ThroughputPerMinute = float64(st.Processed) / minutes
	}
	st.SuccessRate = 1
	if st.Processed > 0 {
		st.SuccessRate = float64(st.Processed-st.Failed) / float64(st.Processed)
	}
	return st
}
