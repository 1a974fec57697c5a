package jobs

import (
	"context"
	"log/slog"
	"time"

	"jastip-market/internal/domain/job"
	"jastip-market/internal/domain/order"
	"jastip-market/internal/infra"
	"jastip-market/internal/pkg/clock"
	"jastip-market/internal/pkg/config"
	"jastip-market/internal/pkg/errs"
	"jastip-market/internal/usecase/shared"
	"jastip-market/internal/usecase/stocklock"

	"github.com/google/uuid"
)

const sweepBatchSize = 500

// Handlers implements every job type. Each order handler reloads the order
// and re-checks status and deadline before acting, because the job may
// describe a state that has since moved on; that case is a successful no-op.
type Handlers struct {
	locks    *stocklock.Manager
	uow      shared.UnitOfWork
	queue    shared.JobQueue
	notifier shared.Notifier
	clock    clock.Clock
	cfg      config.ReservationConfig
	logger   *slog.Logger
}

func NewHandlers(
	locks *stocklock.Manager,
	uow shared.UnitOfWork,
	queue shared.JobQueue,
	notifier shared.Notifier,
	clk clock.Clock,
	cfg config.ReservationConfig,
) *Handlers {
	return &Handlers{
		locks:    locks,
		uow:      uow,
		queue:    queue,
		notifier: notifier,
		clock:    clk,
		cfg:      cfg,
		logger:   slog.With("component", "jobs"),
	}
}

// NewRegistry returns a registry with every handler in place.
func (h *Handlers) NewRegistry() *Registry {
	r := NewRegistry()
	r.Register(job.TypeExpireUnpaid, HandlerFunc(h.ExpireUnpaid))
	r.Register(job.TypeAutoReject, HandlerFunc(h.AutoReject))
	r.Register(job.TypeAutoRefund, HandlerFunc(h.AutoRefund))
	r.Register(job.TypeStockRelease, HandlerFunc(h.StockRelease))
	r.Register(job.TypeNotification, HandlerFunc(h.SendNotification))
	r.Register(job.TypeSweepExpireUnpaid, HandlerFunc(h.SweepExpireUnpaid))
	r.Register(job.TypeSweepAutoReject, HandlerFunc(h.SweepAutoReject))
	r.Register(job.TypeSweepReservations, HandlerFunc(h.SweepReservations))
	r.Register(job.TypeSweepReconcile, HandlerFunc(h.SweepReconcile))
	r.Register(job.TypeSweepReminders, HandlerFunc(h.SweepPaymentReminders))
	return r
}

// loadOrder returns nil, nil when the order no longer exists.
func (h *Handlers) loadOrder(ctx context.Context, j job.Job) (*order.Order, error) {
	var p OrderPayload
	if err := j.Decode(&p); err != nil {
		return nil, errs.Mark(err, errs.ErrInvalidJob)
	}
	if p.OrderID == uuid.Nil {
		return nil, errs.WithMark(errs.ErrInvalidJob, "%s job without order id", j.Type)
	}

	o, err := h.uow.Reads().OrderByID(ctx, p.OrderID)
	if err != nil {
		if infra.IsKind(err, infra.KindNotFound) {
			h.logger.Warn("order for job not found, skipping", "type", j.Type, "order_id", p.OrderID)
			return nil, nil
		}
		return nil, err
	}
	return o, nil
}

func (h *Handlers) skip(j job.Job, o *order.Order) error {
	h.logger.Debug("stale job, nothing to do", "type", j.Type, "order_id", o.ID, "status", o.Status)
	return nil
}

// ExpireUnpaid releases the hold of an order whose down payment or final
// payment window has passed.
func (h *Handlers) ExpireUnpaid(ctx context.Context, j job.Job) error {
	o, err := h.loadOrder(ctx, j)
	if err != nil || o == nil {
		return err
	}

	now := h.clock.Now()
	if !o.IsOverdueAt(order.StatusPendingDownPayment, now) && !o.IsOverdueAt(order.StatusAwaitingFinalPayment, now) {
		return h.skip(j, o)
	}

	restored, err := h.locks.ReleaseOrder(ctx, o.ID, order.CauseExpired)
	if err != nil {
		return err
	}
	if !restored {
		// settled or paid since it was read
		return h.skip(j, o)
	}
	o.Status = order.StatusExpired
	h.notify(ctx, OrderNotification(TemplateOrderExpired, o))
	return nil
}

// AutoReject rejects an order the seller did not validate in time and
// schedules its refund.
func (h *Handlers) AutoReject(ctx context.Context, j job.Job) error {
	o, err := h.loadOrder(ctx, j)
	if err != nil || o == nil {
		return err
	}
	if !o.IsOverdueAt(order.StatusAwaitingValidation, h.clock.Now()) {
		return h.skip(j, o)
	}

	restored, err := h.locks.ReleaseOrder(ctx, o.ID, order.CauseRejected)
	if err != nil {
		return err
	}
	if !restored {
		return h.skip(j, o)
	}
	o.Status = order.StatusRejected
	h.notify(ctx, OrderNotification(TemplateOrderRejected, o))
	h.scheduleRefund(ctx, o.ID, h.cfg.RefundAfter)
	return nil
}

func (h *Handlers) scheduleRefund(ctx context.Context, orderID uuid.UUID, delay time.Duration) {
	refund, err := OrderJob(job.TypeAutoRefund, orderID, delay)
	if err == nil {
		_, err = h.queue.Enqueue(ctx, refund)
	}
	if err != nil {
		// the refund is only lost until a rejected order is looked at again
		h.logger.Error("failed to schedule refund", "order_id", orderID, "error", err)
	}
}

// AutoRefund hands a rejected order over to finance once it has been
// rejected for RefundAfter.
func (h *Handlers) AutoRefund(ctx context.Context, j job.Job) error {
	o, err := h.loadOrder(ctx, j)
	if err != nil || o == nil {
		return err
	}
	if o.Status != order.StatusRejected {
		return h.skip(j, o)
	}

	now := h.clock.Now()
	due := o.UpdatedAt.Add(h.cfg.RefundAfter)
	if now.Before(due) {
		// enqueued against an older rejection time; come back when due
		h.scheduleRefund(ctx, o.ID, due.Sub(now))
		return nil
	}

	var refunded *order.Order
	err = h.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		refunded = nil
		locked, err := tx.Orders().GetForUpdate(ctx, o.ID)
		if err != nil {
			return err
		}
		if !locked.Status.CanTransitionTo(order.StatusRefunded) {
			return nil
		}
		locked.Status = order.StatusRefunded
		locked.UpdatedAt = now
		if err := tx.Orders().Save(ctx, locked); err != nil {
			return err
		}
		refunded = locked
		return nil
	})
	if err != nil {
		return err
	}
	if refunded == nil {
		return h.skip(j, o)
	}

	h.logger.Info("order refunded", "order_id", o.ID)
	h.notify(ctx, OrderNotification(TemplateOrderRefunded, refunded))
	return nil
}

func (h *Handlers) StockRelease(ctx context.Context, j job.Job) error {
	var p StockReleasePayload
	if err := j.Decode(&p); err != nil {
		return errs.Mark(err, errs.ErrInvalidJob)
	}
	if p.OrderID == uuid.Nil || !p.Cause.IsValid() {
		return errs.WithMark(errs.ErrInvalidJob, "stock release job with order %s cause %q", p.OrderID, p.Cause)
	}
	if p.Restore {
		_, err := h.locks.ReleaseOrder(ctx, p.OrderID, p.Cause)
		return err
	}
	return h.locks.Release(ctx, p.OrderID, false, p.Cause)
}

func (h *Handlers) SendNotification(ctx context.Context, j job.Job) error {
	var n shared.Notification
	if err := j.Decode(&n); err != nil {
		return errs.Mark(err, errs.ErrInvalidJob)
	}
	if n.To == "" {
		h.logger.Warn("notification without recipient dropped", "template", n.Template)
		return nil
	}
	return h.notifier.Notify(ctx, n)
}

// notify queues a notification. Failing to queue one never fails the
// order transition that caused it.
func (h *Handlers) notify(ctx context.Context, n shared.Notification) {
	enqueueNotification(ctx, h.queue, h.logger, n)
}

func enqueueNotification(ctx context.Context, q shared.JobQueue, logger *slog.Logger, n shared.Notification) {
	nj, err := NotificationJob(n)
	if err == nil {
		_, err = q.Enqueue(ctx, nj)
	}
	if err != nil {
		logger.Error("failed to enqueue notification", "template", n.Template, "error", err)
	}
}
