package components

import (
	"context"
	"log/slog"

	"jastip-market/internal/domain/job"
	"jastip-market/internal/pkg/clock"
	"jastip-market/internal/pkg/config"
	"jastip-market/internal/usecase/jobs"
	"jastip-market/internal/usecase/shared"
	"jastip-market/internal/worker"

	"go.uber.org/fx"
)

var WorkerModule = fx.Module("worker",
	fx.Provide(
		NewDispatcher,
		NewScheduler,
	),
	fx.Invoke(startWorker),
)

func NewDispatcher(cfg config.Config, queue shared.JobQueue, registry *jobs.Registry, clk clock.Clock, m shared.WorkerMetrics) *worker.Dispatcher {
	return worker.NewDispatcher(queue, registry, cfg.Worker, clk, m)
}

func NewScheduler(cfg config.Config, queue shared.JobQueue) *worker.Scheduler {
	return worker.NewScheduler(queue, cfg.Scheduler)
}

// startWorker runs the dispatcher, and the scheduler when enabled, for the
// app's lifetime. A reconcile sweep is queued first so holds for orders
// still open in the database are rebuilt after a restart.
func startWorker(lc fx.Lifecycle, cfg config.Config, d *worker.Dispatcher, s *worker.Scheduler, logger *slog.Logger) {
	if !cfg.Worker.Enabled {
		logger.Info("worker disabled; jobs are only enqueued by this process")
		return
	}

	runCtx, cancel := context.WithCancel(context.Background())
	schedulerDone := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			s.Enqueue(ctx, job.TypeSweepReconcile)
			go func() {
				if err := d.Run(runCtx); err != nil {
					logger.Error("worker exited", "error", err)
				}
			}()
			go func() {
				defer close(schedulerDone)
				if cfg.Scheduler.Enabled {
					s.Run(runCtx)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			err := d.Stop(ctx)
			cancel()
			<-schedulerDone
			return err
		},
	})
}
