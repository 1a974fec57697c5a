package commands

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
	"jastip-market/internal/usecase/jobs"
	"jastip-market/internal/usecase/shared"
	"jastip-market/internal/usecase/stocklock"

	"github.com/google/uuid"
)

type OrderCommands interface {
	Checkout(ctx context.Context, in CheckoutInput) (*order.Order, error)
	HandlePayment(ctx context.Context, orderID uuid.UUID, event PaymentEvent) (*order.Order, error)
	Validate(ctx context.Context, orderID uuid.UUID) (*order.Order, error)
	Reject(ctx context.Context, orderID uuid.UUID) error
	Cancel(ctx context.Context, orderID, buyerID uuid.UUID) error
}

type orderUseCaseImpl struct {
	uow    shared.UnitOfWork
	locks  *stocklock.Manager
	queue  shared.JobQueue
	clock  clock.Clock
	cfg    config.ReservationConfig
	logger *slog.Logger
}

func NewOrderUseCase(
	uow shared.UnitOfWork,
	locks *stocklock.Manager,
	queue shared.JobQueue,
	clk clock.Clock,
	cfg config.ReservationConfig,
) OrderCommands {
	return &orderUseCaseImpl{
		uow:    uow,
		locks:  locks,
		queue:  queue,
		clock:  clk,
		cfg:    cfg,
		logger: slog.With("component", "orders"),
	}
}

// Checkout takes the stock in the database and creates the order in one
// transaction, then records the hold and schedules its expiry.
func (u *orderUseCaseImpl) Checkout(ctx context.Context, in CheckoutInput) (*order.Order, error) {
	now := u.clock.Now()
	o, err := order.NewOrder(in.BuyerID, in.BuyerEmail, in.Lines, now, u.cfg.DefaultHold)
	if err != nil {
		return nil, errs.Mark(err, errs.ErrInvalidReservation)
	}

	err = u.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		ids := make([]uuid.UUID, len(o.Lines))
		for i, l := range o.Lines {
			ids[i] = l.ProductID
		}
		stock, err := tx.Products().LockStock(ctx, ids)
		if err != nil {
			return err
		}
		for _, l := range o.Lines {
			available, ok := stock[l.ProductID]
			if !ok {
				return errs.WithMark(errs.ErrProductNotFound, "product %s", l.ProductID)
			}
			if available < l.Quantity {
				return errs.WithMark(errs.ErrInsufficientStock, "product %s has %d, wanted %d", l.ProductID, available, l.Quantity)
			}
		}
		for _, l := range o.Lines {
			if err := tx.Products().AdjustStock(ctx, l.ProductID, -l.Quantity); err != nil {
				return err
			}
		}
		return tx.Orders().Create(ctx, o)
	})
	if err != nil {
		return nil, err
	}

	// the order is committed; from here on failures are repaired by sweeps
	if _, err := u.locks.Reserve(o.ID, o.Lines); err != nil {
		u.logger.Error("failed to record stock hold", "order_id", o.ID, "error", err)
	}
	u.schedule(ctx, job.TypeExpireUnpaid, o.ID, u.cfg.DefaultHold)
	u.notify(ctx, jobs.OrderNotification(jobs.TemplateOrderPlaced, o))

	u.logger.Info("order placed", "order_id", o.ID, "buyer_id", o.BuyerID, "dp_deadline", o.DPDeadline)
	return o, nil
}

func (u *orderUseCaseImpl) HandlePayment(ctx context.Context, orderID uuid.UUID, event PaymentEvent) (*order.Order, error) {
	switch event {
	case EventDownPaymentPaid:
		return u.downPaymentPaid(ctx, orderID)
	case EventDownPaymentFailed:
		if _, err := u.release(ctx, orderID, order.CauseCancelled, order.StatusPendingDownPayment); err != nil {
			return nil, err
		}
		return u.get(ctx, orderID)
	case EventFinalPaymentPaid:
		return u.finalPaymentPaid(ctx, orderID)
	default:
		return nil, errs.WithMark(errs.ErrInvalidTransition, "unknown payment event %q", event)
	}
}

// downPaymentPaid is accepted while the order is still pending, even past
// the deadline, as long as expiry has not settled it first.
func (u *orderUseCaseImpl) downPaymentPaid(ctx context.Context, orderID uuid.UUID) (*order.Order, error) {
	o, changed, err := u.transition(ctx, orderID, order.StatusAwaitingValidation, func(o *order.Order, now time.Time) {
		deadline := now.Add(u.cfg.ValidationWindow)
		o.ValidationDeadline = &deadline
	})
	if err != nil || !changed {
		return o, err
	}

	u.extend(o, u.cfg.ValidationWindow)
	u.schedule(ctx, job.TypeAutoReject, o.ID, u.cfg.ValidationWindow)
	return o, nil
}

func (u *orderUseCaseImpl) finalPaymentPaid(ctx context.Context, orderID uuid.UUID) (*order.Order, error) {
	o, changed, err := u.transition(ctx, orderID, order.StatusCompleted, nil)
	if err != nil || !changed {
		return o, err
	}
	// stock was sold, not returned
	if err := u.locks.Release(ctx, o.ID, false, order.CauseConfirmed); err != nil {
		return nil, err
	}
	return o, nil
}

func (u *orderUseCaseImpl) Validate(ctx context.Context, orderID uuid.UUID) (*order.Order, error) {
	o, changed, err := u.transition(ctx, orderID, order.StatusAwaitingFinalPayment, func(o *order.Order, now time.Time) {
		deadline := now.Add(u.cfg.FinalPaymentHold)
		o.FinalDeadline = &deadline
	})
	if err != nil || !changed {
		return o, err
	}

	u.extend(o, u.cfg.FinalPaymentHold)
	u.schedule(ctx, job.TypeExpireUnpaid, o.ID, u.cfg.FinalPaymentHold)
	return o, nil
}

func (u *orderUseCaseImpl) Reject(ctx context.Context, orderID uuid.UUID) error {
	restored, err := u.release(ctx, orderID, order.CauseRejected, order.StatusAwaitingValidation)
	if err != nil || !restored {
		// not restored: the deadline job rejected it first and did the follow-up
		return err
	}
	o, err := u.get(ctx, orderID)
	if err != nil {
		return err
	}
	u.notify(ctx, jobs.OrderNotification(jobs.TemplateOrderRejected, o))
	u.schedule(ctx, job.TypeAutoRefund, orderID, u.cfg.RefundAfter)
	return nil
}

// Cancel is the buyer walking away from an open order. Orders of other
// buyers are reported as not found.
func (u *orderUseCaseImpl) Cancel(ctx context.Context, orderID, buyerID uuid.UUID) error {
	o, err := u.get(ctx, orderID)
	if err != nil {
		return err
	}
	if o.BuyerID != buyerID {
		return errs.WithMark(errs.ErrOrderNotFound, "order %s", orderID)
	}
	_, err = u.release(ctx, orderID, order.CauseCancelled, order.StatusPendingDownPayment, order.StatusAwaitingValidation, order.StatusAwaitingFinalPayment)
	return err
}

// transition moves the order to next inside a transaction. A repeat of a
// transition that already happened reports changed=false and no error, so
// gateway retries are harmless.
func (u *orderUseCaseImpl) transition(
	ctx context.Context,
	orderID uuid.UUID,
	next order.Status,
	mutate func(o *order.Order, now time.Time),
) (*order.Order, bool, error) {
	var (
		result  *order.Order
		changed bool
	)
	err := u.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		o, err := tx.Orders().GetForUpdate(ctx, orderID)
		if err != nil {
			return mapNotFound(err, orderID)
		}
		result, changed = o, false
		if o.Status == next {
			return nil
		}
		if !o.Status.CanTransitionTo(next) {
			return errs.WithMark(errs.ErrInvalidTransition, "order %s: %s -> %s", orderID, o.Status, next)
		}

		now := u.clock.Now()
		o.Status = next
		o.UpdatedAt = now
		if mutate != nil {
			mutate(o, now)
		}
		if err := tx.Orders().Save(ctx, o); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if changed {
		u.logger.Info("order status changed", "order_id", orderID, "status", next)
	}
	return result, changed, nil
}

// release settles an open order through the stock ledger. from lists the
// statuses the caller may settle from.
func (u *orderUseCaseImpl) release(ctx context.Context, orderID uuid.UUID, cause order.ReleaseCause, from ...order.Status) (bool, error) {
	o, err := u.get(ctx, orderID)
	if err != nil {
		return false, err
	}
	allowed := false
	for _, s := range from {
		allowed = allowed || o.Status == s
	}
	if !allowed {
		return false, errs.WithMark(errs.ErrInvalidTransition, "order %s is %s, cannot settle as %s", orderID, o.Status, cause)
	}
	return u.locks.ReleaseOrder(ctx, orderID, cause)
}

// extend pushes the hold to the new deadline. When the table lost the hold,
// or still has it past expiry because no sweep got to it, the hold is
// renewed from the order's own deadline.
func (u *orderUseCaseImpl) extend(o *order.Order, d time.Duration) {
	_, err := u.locks.Extend(o.ID, d)
	if err == nil {
		return
	}
	deadline, ok := o.HoldDeadline()
	if !ok {
		return
	}
	if _, renewErr := u.locks.Renew(o.ID, o.Lines, o.CreatedAt, deadline); renewErr != nil {
		u.logger.Error("failed to restore stock hold", "order_id", o.ID, "error", errs.Combine(err, renewErr))
	}
}

func (u *orderUseCaseImpl) schedule(ctx context.Context, t job.Type, orderID uuid.UUID, delay time.Duration) {
	j, err := jobs.OrderJob(t, orderID, delay)
	if err == nil {
		_, err = u.queue.Enqueue(ctx, j)
	}
	if err != nil {
		// the matching sweep picks the order up
		u.logger.Error("failed to schedule order job", "type", t, "order_id", orderID, "error", err)
	}
}

func (u *orderUseCaseImpl) notify(ctx context.Context, n shared.Notification) {
	j, err := jobs.NotificationJob(n)
	if err == nil {
		_, err = u.queue.Enqueue(ctx, j)
	}
	if err != nil {
		u.logger.Error("failed to enqueue notification", "template", n.Template, "error", err)
	}
}

func (u *orderUseCaseImpl) get(ctx context.Context, orderID uuid.UUID) (*order.Order, error) {
	o, err := u.uow.Reads().OrderByID(ctx, orderID)
	if err != nil {
		return nil, mapNotFound(err, orderID)
	}
	return o, nil
}

func mapNotFound(err error, orderID uuid.UUID) error {
	if infra.IsKind(err, infra.KindNotFound) {
		return errs.WithMark(errs.ErrOrderNotFound, "order %s", orderID)
	}
	return err
}
