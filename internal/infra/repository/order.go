package repository

import (
	"context"
	"jastip-market/internal/domain/order"
	"jastip-market/internal/domain/reservation"
	"jastip-market/internal/infra"
	"jastip-market/internal/infra/db"
	"jastip-market/internal/pkg/pgconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const (
	// OrderColumns is the select list ScanOrder expects.
	OrderColumns = `id, buyer_id, buyer_email, status, dp_deadline, validation_deadline, final_deadline, created_at, updated_at`

	// HoldDeadlineSQL is the deadline bounding the stock hold in the current status.
	HoldDeadlineSQL = `CASE status
    WHEN 'pending_down_payment' THEN dp_deadline
    WHEN 'awaiting_validation' THEN validation_deadline
    WHEN 'awaiting_final_payment' THEN final_deadline
END`

	insertOrderSQL = `
INSERT INTO orders (` + OrderColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	insertOrderLineSQL = `INSERT INTO order_lines (order_id, product_id, quantity) VALUES ($1, $2, $3)`

	selectOrderForUpdateSQL = `SELECT ` + OrderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	updateOrderSQL = `
UPDATE orders
SET status = $2, validation_deadline = $3, final_deadline = $4, updated_at = $5
WHERE id = $1`

	selectLinesSQL = `
SELECT order_id, product_id, quantity FROM order_lines
WHERE order_id = ANY($1)
ORDER BY order_id, product_id`
)

type OrderRepository struct {
	db db.DBTX
}

func NewOrderRepository(dbtx db.DBTX) *OrderRepository {
	return &OrderRepository{db: dbtx}
}

func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	_, err := r.db.Exec(ctx, insertOrderSQL,
		o.ID,
		o.BuyerID,
		o.BuyerEmail,
		string(o.Status),
		o.DPDeadline,
		pgconv.TimePtrToPgtype(o.ValidationDeadline),
		pgconv.TimePtrToPgtype(o.FinalDeadline),
		o.CreatedAt,
		o.UpdatedAt,
	)
	if err != nil {
		return infra.WrapRepoErr("failed to create order", err)
	}
	for _, l := range o.Lines {
		if _, err := r.db.Exec(ctx, insertOrderLineSQL, o.ID, l.ProductID, l.Quantity); err != nil {
			return infra.WrapRepoErr("failed to create order line", err)
		}
	}
	return nil
}

func (r *OrderRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	o, err := ScanOrder(r.db.QueryRow(ctx, selectOrderForUpdateSQL, id))
	if err != nil {
		return nil, infra.WrapRepoErr("failed to lock order", err)
	}
	if err := LoadLines(ctx, r.db, []*order.Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *OrderRepository) Save(ctx context.Context, o *order.Order) error {
	tag, err := r.db.Exec(ctx, updateOrderSQL,
		o.ID,
		string(o.Status),
		pgconv.TimePtrToPgtype(o.ValidationDeadline),
		pgconv.TimePtrToPgtype(o.FinalDeadline),
		o.UpdatedAt,
	)
	if err != nil {
		return infra.WrapRepoErr("failed to save order", err)
	}
	if tag.RowsAffected() == 0 {
		return infra.NewRepoErr(infra.KindNotFound, "order not found", nil)
	}
	return nil
}

// ScanOrder reads one row selected with OrderColumns, lines excluded.
func ScanOrder(row pgx.Row) (*order.Order, error) {
	var (
		o                 order.Order
		status            string
		validation, final pgtype.Timestamptz
	)
	if err := row.Scan(&o.ID, &o.BuyerID, &o.BuyerEmail, &status, &o.DPDeadline, &validation, &final, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.Status = order.Status(status)
	o.ValidationDeadline = pgconv.TimePtrFromPgtype(validation)
	o.FinalDeadline = pgconv.TimePtrFromPgtype(final)
	return &o, nil
}

// LoadLines fills Lines for every order with one query.
func LoadLines(ctx context.Context, dbtx db.DBTX, orders []*order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*order.Order, len(orders))
	ids := make([]uuid.UUID, len(orders))
	for i, o := range orders {
		byID[o.ID] = o
		ids[i] = o.ID
		o.Lines = nil
	}

	rows, err := dbtx.Query(ctx, selectLinesSQL, ids)
	if err != nil {
		return infra.WrapRepoErr("failed to load order lines", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			orderID uuid.UUID
			l       reservation.Line
		)
		if err := rows.Scan(&orderID, &l.ProductID, &l.Quantity); err != nil {
			return infra.WrapRepoErr("failed to scan order line", err)
		}
		if o, ok := byID[orderID]; ok {
			o.Lines = append(o.Lines, l)
		}
	}
	if err := rows.Err(); err != nil {
		return infra.WrapRepoErr("failed to read order lines", err)
	}
	return nil
}

// ScanOrders collects orders from rows and loads their lines.
func ScanOrders(ctx context.Context, dbtx db.DBTX, rows pgx.Rows) ([]*order.Order, error) {
	defer rows.Close()
	var out []*order.Order
	for rows.Next() {
		o, err := ScanOrder(rows)
		if err != nil {
			return nil, infra.WrapRepoErr("failed to scan order", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, infra.WrapRepoErr("failed to read orders", err)
	}
	rows.Close()
	if err := LoadLines(ctx, dbtx, out); err != nil {
		return nil, err
	}
	return out, nil
}
