package stocklock

import (
	"context"

	"jastip-market/internal/domain/order"
	"jastip-market/internal/infra"
	"jastip-market/internal/pkg/clock"
	"jastip-market/internal/pkg/errs"
	"jastip-market/internal/usecase/shared"

	"github.com/google/uuid"
)

type txLedger struct {
	uow   shared.UnitOfWork
	clock clock.Clock
}

// NewLedger returns a StockLedger that settles a hold inside one unit of
// work: lock the order row, move its status, credit every line.
// An expiry is re-checked against the locked row, so a payment that moved the
// deadline after the caller looked wins over the expiry.
func NewLedger(uow shared.UnitOfWork, clk clock.Clock) shared.StockLedger {
	return &txLedger{uow: uow, clock: clk}
}

func (l *txLedger) Restore(ctx context.Context, orderID uuid.UUID, cause order.ReleaseCause) (bool, error) {
	var restored bool
	err := l.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		// reset on retry
		restored = false

		o, err := tx.Orders().GetForUpdate(ctx, orderID)
		if err != nil {
			if infra.IsKind(err, infra.KindNotFound) {
				return errs.Mark(err, errs.ErrOrderNotFound)
			}
			return err
		}

		now := l.clock.Now()
		if cause == order.CauseExpired && !o.IsOverdueAt(o.Status, now) {
			return nil
		}

		target, ok := order.TargetOnRelease(o.Status, cause)
		if !ok {
			return nil
		}
		if target != o.Status {
			o.Status = target
			o.UpdatedAt = now
			if err := tx.Orders().Save(ctx, o); err != nil {
				return err
			}
		}

		for _, line := range o.Lines {
			if err := tx.Products().AdjustStock(ctx, line.ProductID, line.Quantity); err != nil {
				return err
			}
		}
		restored = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return restored, nil
}
