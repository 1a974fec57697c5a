package readstore

import (
	"context"
	"time"

	"jastip-market/internal/domain/order"
	"jastip-market/internal/infra"
	"jastip-market/internal/infra/db"
	"jastip-market/internal/infra/repository"

	"github.com/google/uuid"
)

const (
	selectOrderSQL = `SELECT ` + repository.OrderColumns + ` FROM orders WHERE id = $1`

	// LIMIT NULL is no limit, so a zero limit reads everything.
	overdueOrdersSQL = `
SELECT ` + repository.OrderColumns + ` FROM orders
WHERE status = $1 AND ` + repository.HoldDeadlineSQL + ` <= $2
ORDER BY created_at
LIMIT NULLIF($3::int, 0)`

	ordersDueBetweenSQL = `
SELECT ` + repository.OrderColumns + ` FROM orders
WHERE status = $1 AND ` + repository.HoldDeadlineSQL + ` > $2 AND ` + repository.HoldDeadlineSQL + ` <= $3
ORDER BY created_at
LIMIT NULLIF($4::int, 0)`

	ordersInStatusSQL = `
SELECT ` + repository.OrderColumns + ` FROM orders
WHERE status = ANY($1)
ORDER BY created_at
LIMIT NULLIF($2::int, 0)`

	productStockSQL = `SELECT stock FROM products WHERE id = $1`
)

// OrderReadStore serves the sweeps and the query side outside any
// transaction.
type OrderReadStore struct {
	db db.DBTX
}

func NewOrderReadStore(dbtx db.DBTX) *OrderReadStore {
	return &OrderReadStore{db: dbtx}
}

func (s *OrderReadStore) OrderByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	o, err := repository.ScanOrder(s.db.QueryRow(ctx, selectOrderSQL, id))
	if err != nil {
		return nil, infra.WrapRepoErr("failed to get order", err)
	}
	if err := repository.LoadLines(ctx, s.db, []*order.Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *OrderReadStore) OverdueOrders(ctx context.Context, status order.Status, now time.Time, limit int) ([]*order.Order, error) {
	rows, err := s.db.Query(ctx, overdueOrdersSQL, string(status), now, limit)
	if err != nil {
		return nil, infra.WrapRepoErr("failed to list overdue orders", err)
	}
	return repository.ScanOrders(ctx, s.db, rows)
}

func (s *OrderReadStore) OrdersDueBetween(ctx context.Context, status order.Status, from, to time.Time, limit int) ([]*order.Order, error) {
	rows, err := s.db.Query(ctx, ordersDueBetweenSQL, string(status), from, to, limit)
	if err != nil {
		return nil, infra.WrapRepoErr("failed to list orders due", err)
	}
	return repository.ScanOrders(ctx, s.db, rows)
}

func (s *OrderReadStore) OrdersInStatus(ctx context.Context, statuses []order.Status, limit int) ([]*order.Order, error) {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}
	rows, err := s.db.Query(ctx, ordersInStatusSQL, names, limit)
	if err != nil {
		return nil, infra.WrapRepoErr("failed to list orders by status", err)
	}
	return repository.ScanOrders(ctx, s.db, rows)
}

func (s *OrderReadStore) ProductStock(ctx context.Context, id uuid.UUID) (int, error) {
	var stock int
	if err := s.db.QueryRow(ctx, productStockSQL, id).Scan(&stock); err != nil {
		return 0, infra.WrapRepoErr("failed to get product stock", err)
	}
	return stock, nil
}
