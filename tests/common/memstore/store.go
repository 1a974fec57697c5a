//go:build unit || e2e

// Package memstore is an in-process implementation of the persistence ports.
// Transactions are serialized by one mutex and rolled back from a snapshot.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"jastip-market/internal/domain/order"
	"jastip-market/internal/domain/reservation"
	"jastip-market/internal/infra"
	"jastip-market/internal/pkg/errs"
	"jastip-market/internal/usecase/shared"

	"github.com/google/uuid"
)

type Product struct {
	ID    uuid.UUID
	Name  string
	Stock int
}

type Store struct {
	mu       sync.Mutex
	products map[uuid.UUID]Product
	orders   map[uuid.UUID]*order.Order
	beforeTx func()
}

func New() *Store {
	return &Store{
		products: make(map[uuid.UUID]Product),
		orders:   make(map[uuid.UUID]*order.Order),
	}
}

func (s *Store) AddProduct(name string, stock int) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.products[id] = Product{ID: id, Name: name, Stock: stock}
	return id
}

// PutOrder stores o as is, bypassing stock accounting.
func (s *Store) PutOrder(o *order.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = cloneOrder(o)
}

// BeforeNextTx runs fn once, right before the next transaction takes the
// store lock. Tests use it to change an order between a read and a write.
func (s *Store) BeforeNextTx(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beforeTx = fn
}

func (s *Store) Within(ctx context.Context, fn func(ctx context.Context, tx shared.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	hook := s.beforeTx
	s.beforeTx = nil
	s.mu.Unlock()
	if hook != nil {
		hook()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	products := make(map[uuid.UUID]Product, len(s.products))
	for k, v := range s.products {
		products[k] = v
	}
	orders := make(map[uuid.UUID]*order.Order, len(s.orders))
	for k, v := range s.orders {
		orders[k] = cloneOrder(v)
	}

	if err := fn(ctx, &memTx{s: s}); err != nil {
		s.products = products
		s.orders = orders
		return err
	}
	return nil
}

func (s *Store) Reads() shared.Reads {
	return &reads{s: s}
}

type memTx struct {
	s *Store
}

func (t *memTx) Orders() shared.OrderRepository     { return &orderRepo{s: t.s} }
func (t *memTx) Products() shared.ProductRepository { return &productRepo{s: t.s} }

// Repositories run with Store.mu already held by Within.
type orderRepo struct {
	s *Store
}

func (r *orderRepo) Create(_ context.Context, o *order.Order) error {
	if _, exists := r.s.orders[o.ID]; exists {
		return infra.NewRepoErr(infra.KindDuplicateKey, "order already exists", nil)
	}
	for _, l := range o.Lines {
		if _, ok := r.s.products[l.ProductID]; !ok {
			return infra.NewRepoErr(infra.KindForeignKeyViolated, "order line references unknown product", nil)
		}
	}
	r.s.orders[o.ID] = cloneOrder(o)
	return nil
}

func (r *orderRepo) GetForUpdate(_ context.Context, id uuid.UUID) (*order.Order, error) {
	o, ok := r.s.orders[id]
	if !ok {
		return nil, infra.NewRepoErr(infra.KindNotFound, "order not found", nil)
	}
	return cloneOrder(o), nil
}

func (r *orderRepo) Save(_ context.Context, o *order.Order) error {
	if _, ok := r.s.orders[o.ID]; !ok {
		return infra.NewRepoErr(infra.KindNotFound, "order not found", nil)
	}
	r.s.orders[o.ID] = cloneOrder(o)
	return nil
}

type productRepo struct {
	s *Store
}

func (r *productRepo) LockStock(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]int, error) {
	out := make(map[uuid.UUID]int, len(ids))
	for _, id := range ids {
		if p, ok := r.s.products[id]; ok {
			out[id] = p.Stock
		}
	}
	return out, nil
}

func (r *productRepo) AdjustStock(_ context.Context, productID uuid.UUID, delta int) error {
	p, ok := r.s.products[productID]
	if !ok {
		return infra.NewRepoErr(infra.KindNotFound, "product not found", nil)
	}
	if p.Stock+delta < 0 {
		return infra.NewRepoErr(infra.KindConflict, "stock would go negative", errs.ErrInsufficientStock)
	}
	p.Stock += delta
	r.s.products[productID] = p
	return nil
}

type reads struct {
	s *Store
}

func (r *reads) OrderByID(_ context.Context, id uuid.UUID) (*order.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, infra.NewRepoErr(infra.KindNotFound, "order not found", nil)
	}
	return cloneOrder(o), nil
}

func (r *reads) OverdueOrders(_ context.Context, status order.Status, now time.Time, limit int) ([]*order.Order, error) {
	return r.filter(limit, func(o *order.Order) bool {
		return o.IsOverdueAt(status, now)
	}), nil
}

func (r *reads) OrdersDueBetween(_ context.Context, status order.Status, from, to time.Time, limit int) ([]*order.Order, error) {
	return r.filter(limit, func(o *order.Order) bool {
		if o.Status != status {
			return false
		}
		d, ok := o.HoldDeadline()
		return ok && d.After(from) && !d.After(to)
	}), nil
}

func (r *reads) OrdersInStatus(_ context.Context, statuses []order.Status, limit int) ([]*order.Order, error) {
	return r.filter(limit, func(o *order.Order) bool {
		for _, s := range statuses {
			if o.Status == s {
				return true
			}
		}
		return false
	}), nil
}

func (r *reads) ProductStock(_ context.Context, id uuid.UUID) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok {
		return 0, infra.NewRepoErr(infra.KindNotFound, "product not found", nil)
	}
	return p.Stock, nil
}

func (r *reads) filter(limit int, keep func(*order.Order) bool) []*order.Order {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*order.Order
	for _, o := range r.s.orders {
		if keep(o) {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func cloneOrder(o *order.Order) *order.Order {
	cp := *o
	cp.Lines = make([]reservation.Line, len(o.Lines))
	copy(cp.Lines, o.Lines)
	if o.ValidationDeadline != nil {
		v := *o.ValidationDeadline
		cp.ValidationDeadline = &v
	}
	if o.FinalDeadline != nil {
		v := *o.FinalDeadline
		cp.FinalDeadline = &v
	}
	return &cp
}
