package shared

import (
	"context"
	"time"

	"jastip-market/internal/domain/order"

	"github.com/google/uuid"
)

type UnitOfWork interface {
	// Within: Full transaction for write operations with retry logic
	Within(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// Reads: Single query operations outside a transaction
	Reads() Reads
}

type Tx interface {
	Orders() OrderRepository
	Products() ProductRepository
}

type OrderRepository interface {
	Create(ctx context.Context, o *order.Order) error
	// GetForUpdate locks the order row until the transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*order.Order, error)
	// Save persists status and deadlines.
	Save(ctx context.Context, o *order.Order) error
}

type ProductRepository interface {
	// LockStock locks the product rows in id order and returns their stock.
	// Unknown ids are absent from the result.
	LockStock(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]int, error)
	AdjustStock(ctx context.Context, productID uuid.UUID, delta int) error
}

// Reads are non-locking lookups used by queries, sweeps and handler re-checks.
type Reads interface {
	OrderByID(ctx context.Context, id uuid.UUID) (*order.Order, error)
	// OverdueOrders lists orders still in status whose hold deadline is at or before now.
	OverdueOrders(ctx context.Context, status order.Status, now time.Time, limit int) ([]*order.Order, error)
	// OrdersDueBetween lists orders in status whose hold deadline falls in (from, to].
	OrdersDueBetween(ctx context.Context, status order.Status, from, to time.Time, limit int) ([]*order.Order, error)
	OrdersInStatus(ctx context.Context, statuses []order.Status, limit int) ([]*order.Order, error)
	ProductStock(ctx context.Context, id uuid.UUID) (int, error)
}

// StockLedger applies a hold's fate to persisted state.
type StockLedger interface {
	// Restore moves the order to the status implied by cause and credits its
	// lines back, in one transaction. restored is false when the order had
	// already left the statuses that own stock.
	Restore(ctx context.Context, orderID uuid.UUID, cause order.ReleaseCause) (restored bool, err error)
}
