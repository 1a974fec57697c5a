package repository

import (
	"context"

	"jastip-market/internal/infra"
	"jastip-market/internal/infra/db"

	"github.com/google/uuid"
)

const (
	lockStockSQL = `
SELECT id, stock FROM products
WHERE id = ANY($1)
ORDER BY id
FOR UPDATE`

	adjustStockSQL = `UPDATE products SET stock = stock + $2, updated_at = now() WHERE id = $1`
)

type ProductRepository struct {
	db db.DBTX
}

func NewProductRepository(dbtx db.DBTX) *ProductRepository {
	return &ProductRepository{db: dbtx}
}

// LockStock takes row locks in id order so concurrent checkouts over
// overlapping carts cannot deadlock.
func (r *ProductRepository) LockStock(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]int, error) {
	rows, err := r.db.Query(ctx, lockStockSQL, ids)
	if err != nil {
		return nil, infra.WrapRepoErr("failed to lock product stock", err)
	}
	defer rows.Close()

	stock := make(map[uuid.UUID]int, len(ids))
	for rows.Next() {
		var (
			id  uuid.UUID
			qty int
		)
		if err := rows.Scan(&id, &qty); err != nil {
			return nil, infra.WrapRepoErr("failed to scan product stock", err)
		}
		stock[id] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, infra.WrapRepoErr("failed to read product stock", err)
	}
	return stock, nil
}

// AdjustStock fails with KindConflict when the result would go negative.
func (r *ProductRepository) AdjustStock(ctx context.Context, productID uuid.UUID, delta int) error {
	tag, err := r.db.Exec(ctx, adjustStockSQL, productID, delta)
	if err != nil {
		return infra.WrapRepoErr("failed to adjust product stock", err)
	}
	if tag.RowsAffected() == 0 {
		return infra.NewRepoErr(infra.KindNotFound, "product not found", nil)
	}
	return nil
}
