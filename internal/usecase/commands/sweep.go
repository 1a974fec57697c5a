package commands

import (
	"context"
	"log/slog"

	"jastip-market/internal/domain/job"
	"jastip-market/internal/pkg/errs"
	"jastip-market/internal/usecase/jobs"
	"jastip-market/internal/usecase/shared"
	"jastip-market/internal/usecase/stocklock"
)

type SweepCommands interface {
	// TriggerSweep enqueues the named sweep and returns its message id.
	TriggerSweep(ctx context.Context, name string) (string, error)
	// CleanupExpiredLocks runs the reservation sweep inline for operators.
	CleanupExpiredLocks(ctx context.Context) (int, error)
}

type sweepUseCaseImpl struct {
	queue  shared.JobQueue
	locks  *stocklock.Manager
	logger *slog.Logger
}

func NewSweepUseCase(queue shared.JobQueue, locks *stocklock.Manager) SweepCommands {
	return &sweepUseCaseImpl{
		queue:  queue,
		locks:  locks,
		logger: slog.With("component", "sweeps"),
	}
}

func (u *sweepUseCaseImpl) TriggerSweep(ctx context.Context, name string) (string, error) {
	t, ok := job.SweepByName(name)
	if !ok {
		return "", errs.WithMark(errs.ErrInvalidJob, "unknown sweep %q", name)
	}
	j, err := jobs.SweepJob(t)
	if err != nil {
		return "", err
	}
	id, err := u.queue.Enqueue(ctx, j)
	if err != nil {
		return "", errs.Mark(err, errs.ErrQueueUnavailable)
	}
	u.logger.Info("sweep triggered", "sweep", name, "message_id", id)
	return id, nil
}

func (u *sweepUseCaseImpl) CleanupExpiredLocks(ctx context.Context) (int, error) {
	n, err := u.locks.SweepExpired(ctx)
	if n > 0 || err != nil {
		u.logger.Info("expired stock holds cleaned up", "released", n, "error", err)
	}
	return n, err
}
