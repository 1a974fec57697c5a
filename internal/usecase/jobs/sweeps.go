package jobs

import (
	"context"
	"time"

	"jastip-market/internal/domain/job"
	"jastip-market/internal/domain/order"
	"jastip-market/internal/infra"
	"jastip-market/internal/pkg/errs"
)

func (h *Handlers) SweepExpireUnpaid(ctx context.Context, _ job.Job) error {
	now := h.clock.Now()
	var sweepErr error
	for _, status := range []order.Status{order.StatusPendingDownPayment, order.StatusAwaitingFinalPayment} {
		overdue, err := h.uow.Reads().OverdueOrders(ctx, status, now, sweepBatchSize)
		if err != nil {
			return err
		}
		sweepErr = errs.Combine(sweepErr, h.fanOut(ctx, job.TypeExpireUnpaid, overdue))
	}
	return sweepErr
}

func (h *Handlers) SweepAutoReject(ctx context.Context, _ job.Job) error {
	overdue, err := h.uow.Reads().OverdueOrders(ctx, order.StatusAwaitingValidation, h.clock.Now(), sweepBatchSize)
	if err != nil {
		return err
	}
	return h.fanOut(ctx, job.TypeAutoReject, overdue)
}

// fanOut enqueues one order job per order. Duplicates of jobs already queued
// are harmless since the order handlers re-check state.
func (h *Handlers) fanOut(ctx context.Context, t job.Type, orders []*order.Order) error {
	var fanErr error
	for _, o := range orders {
		oj, err := OrderJob(t, o.ID, 0)
		if err == nil {
			_, err = h.queue.Enqueue(ctx, oj)
		}
		fanErr = errs.Combine(fanErr, err)
	}
	if len(orders) > 0 {
		h.logger.Info("sweep enqueued order jobs", "type", t, "orders", len(orders))
	}
	return fanErr
}

func (h *Handlers) SweepReservations(ctx context.Context, _ job.Job) error {
	_, err := h.locks.SweepExpired(ctx)
	return err
}

// SweepReconcile repairs drift between the lock table and persisted orders:
// holds of settled or missing orders are dropped without restore (the
// settling path already decided the stock), and open orders missing a hold,
// typically after a restart, get one back.
func (h *Handlers) SweepReconcile(ctx context.Context, _ job.Job) error {
	reads := h.uow.Reads()
	dropped, adopted := 0, 0

	for _, r := range h.locks.ListActive() {
		o, err := reads.OrderByID(ctx, r.OrderID())
		switch {
		case infra.IsKind(err, infra.KindNotFound):
			if h.locks.Forget(r.OrderID()) {
				dropped++
			}
		case err != nil:
			return err
		case !o.Status.HoldsStock():
			if h.locks.Forget(r.OrderID()) {
				dropped++
			}
		}
	}

	open, err := reads.OrdersInStatus(ctx, []order.Status{
		order.StatusPendingDownPayment,
		order.StatusAwaitingValidation,
		order.StatusAwaitingFinalPayment,
	}, 0)
	if err != nil {
		return err
	}
	for _, o := range open {
		deadline, ok := o.HoldDeadline()
		if !ok || !deadline.After(o.CreatedAt) {
			h.logger.Warn("open order without a usable hold deadline", "order_id", o.ID, "status", o.Status)
			continue
		}
		ok, err := h.locks.Adopt(o.ID, o.Lines, o.CreatedAt, deadline)
		if err != nil {
			h.logger.Warn("failed to adopt hold", "order_id", o.ID, "error", err)
			continue
		}
		if ok {
			adopted++
		}
	}

	if dropped > 0 || adopted > 0 {
		h.logger.Info("stock holds reconciled", "dropped", dropped, "adopted", adopted)
	}
	return nil
}

// SweepPaymentReminders reminds buyers whose down payment deadline falls
// within the reminder window. A buyer may get one reminder per sweep run
// inside the window.
func (h *Handlers) SweepPaymentReminders(ctx context.Context, _ job.Job) error {
	now := h.clock.Now()
	due, err := h.uow.Reads().OrdersDueBetween(ctx, order.StatusPendingDownPayment, now, now.Add(h.cfg.ReminderWindow), sweepBatchSize)
	if err != nil {
		return err
	}
	for _, o := range due {
		n := OrderNotification(TemplatePaymentReminder, o)
		deadline, _ := o.HoldDeadline()
		n.Data["deadline"] = deadline.Format(time.RFC3339)
		h.notify(ctx, n)
	}
	return nil
}
