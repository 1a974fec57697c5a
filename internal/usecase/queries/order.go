package queries

import (
	"context"

	"jastip-market/internal/infra"
	"jastip-market/internal/pkg/errs"
	"jastip-market/internal/usecase/shared"
	"jastip-market/internal/usecase/stocklock"

	"github.com/google/uuid"
)

type OrderQueries interface {
	GetByID(ctx context.Context, orderID uuid.UUID) (*OrderView, error)
}

type orderQueriesImpl struct {
	reads shared.Reads
	locks *stocklock.Manager
}

func NewOrderQueries(uow shared.UnitOfWork, locks *stocklock.Manager) OrderQueries {
	return &orderQueriesImpl{reads: uow.Reads(), locks: locks}
}

func (q *orderQueriesImpl) GetByID(ctx context.Context, orderID uuid.UUID) (*OrderView, error) {
	o, err := q.reads.OrderByID(ctx, orderID)
	if err != nil {
		if infra.IsKind(err, infra.KindNotFound) {
			return nil, errs.WithMark(errs.ErrOrderNotFound, "order %s", orderID)
		}
		return nil, err
	}
	hold, _ := q.locks.Get(orderID)
	return orderView(o, hold), nil
}
