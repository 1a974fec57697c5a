package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"jastip-market/internal/domain/job"
	"jastip-market/internal/pkg/config"
	"jastip-market/internal/usecase/shared"
)

// Scheduler is the in-process trigger for recurring sweeps, an alternative
// to an external cron hitting the sweep endpoint.
type Scheduler struct {
	queue  shared.JobQueue
	every  map[job.Type]time.Duration
	logger *slog.Logger
}

func NewScheduler(queue shared.JobQueue, cfg config.SchedulerConfig) *Scheduler {
	return &Scheduler{
		queue: queue,
		every: map[job.Type]time.Duration{
			job.TypeSweepExpireUnpaid: cfg.ExpireUnpaidEvery,
			job.TypeSweepAutoReject:   cfg.AutoRejectEvery,
			job.TypeSweepReservations: cfg.ReservationsEvery,
			job.TypeSweepReconcile:    cfg.ReconcileEvery,
			job.TypeSweepReminders:    cfg.RemindersEvery,
		},
		logger: slog.With("component", "scheduler"),
	}
}

// Run starts one ticker per sweep with a positive interval and blocks until
// ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for t, every := range s.every {
		if every <= 0 {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.tick(ctx, t, every)
		}()
	}
	wg.Wait()
}

func (s *Scheduler) tick(ctx context.Context, t job.Type, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Enqueue(ctx, t)
		}
	}
}

func (s *Scheduler) Enqueue(ctx context.Context, t job.Type) {
	j, err := job.New(t, nil)
	if err == nil {
		_, err = s.queue.Enqueue(ctx, j)
	}
	if err != nil && ctx.Err() == nil {
		s.logger.Error("failed to enqueue sweep", "type", t, "error", err)
	}
}
