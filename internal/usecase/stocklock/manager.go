package stocklock

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"jastip-market/internal/domain/order"
	"jastip-market/internal/domain/reservation"
	"jastip-market/internal/pkg/clock"
	"jastip-market/internal/pkg/config"
	"jastip-market/internal/pkg/errs"
	"jastip-market/internal/usecase/shared"

	"github.com/google/uuid"
)

// Manager is the process-local lock table of stock holds, one per order.
// It trusts callers to have checked availability against the persisted store.
type Manager struct {
	mu      sync.Mutex
	locks   map[uuid.UUID]*reservation.Reservation
	ledger  shared.StockLedger
	clock   clock.Clock
	cfg     config.ReservationConfig
	metrics shared.LockMetrics
	logger  *slog.Logger
}

func NewManager(cfg config.ReservationConfig, ledger shared.StockLedger, clk clock.Clock, metrics shared.LockMetrics) *Manager {
	if metrics == nil {
		metrics = shared.NopMetrics{}
	}
	return &Manager{
		locks:   make(map[uuid.UUID]*reservation.Reservation),
		ledger:  ledger,
		clock:   clk,
		cfg:     cfg,
		metrics: metrics,
		logger:  slog.With("component", "stocklock"),
	}
}

// Reserve records a hold with the default expiry. It fails with
// ErrAlreadyReserved while the order has any entry in the table, including
// one past expiry that no sweep has released yet: that entry's stock is
// still taken, and a second hold would be credited back twice.
func (m *Manager) Reserve(orderID uuid.UUID, lines []reservation.Line) (*reservation.Reservation, error) {
	now := m.clock.Now()
	r, err := reservation.NewReservation(orderID, lines, now, m.cfg.DefaultHold)
	if err != nil {
		return nil, errs.Mark(err, errs.ErrInvalidReservation)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.locks[orderID]; exists {
		return nil, errs.WithMark(errs.ErrAlreadyReserved, "order %s already holds stock", orderID)
	}
	m.locks[orderID] = r
	m.publishLocked()

	m.logger.Debug("stock reserved", "order_id", orderID, "units", reservation.TotalQuantity(r.Lines()), "expires_at", r.ExpiresAt())
	return r.Snapshot(), nil
}

// Extend moves the expiry of a live hold to now+d.
func (m *Manager) Extend(orderID uuid.UUID, d time.Duration) (*reservation.Reservation, error) {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.locks[orderID]
	if !ok || !r.IsLiveAt(now) {
		return nil, errs.WithMark(errs.ErrReservationNotFound, "no live hold for order %s", orderID)
	}
	if err := r.ExtendAt(now, d); err != nil {
		return nil, errs.Mark(err, errs.ErrInvalidReservation)
	}

	m.logger.Debug("stock hold extended", "order_id", orderID, "expires_at", r.ExpiresAt())
	return r.Snapshot(), nil
}

// Release drops the hold for orderID. A missing hold is a no-op, and so is
// an expiry of a hold that is still live. With restore the ledger moves the
// order to the status implied by cause and credits the lines back
// atomically; if that fails the hold is put back.
func (m *Manager) Release(ctx context.Context, orderID uuid.UUID, restore bool, cause order.ReleaseCause) error {
	_, err := m.release(ctx, orderID, restore, cause, false)
	return err
}

// ReleaseOrder is Release for callers acting on persisted order state. When
// the table has no hold (lost on restart) the ledger is still asked to
// restore; its status guard keeps a repeat from crediting twice.
// restored is false when the order was already settled by someone else, and
// the caller must then skip its own follow-up.
func (m *Manager) ReleaseOrder(ctx context.Context, orderID uuid.UUID, cause order.ReleaseCause) (restored bool, err error) {
	return m.release(ctx, orderID, true, cause, true)
}

func (m *Manager) release(ctx context.Context, orderID uuid.UUID, restore bool, cause order.ReleaseCause, fallback bool) (bool, error) {
	now := m.clock.Now()

	m.mu.Lock()
	r, held := m.locks[orderID]
	if held && cause == order.CauseExpired && !r.IsExpiredAt(now) {
		// renewed by a payment after the caller decided to expire it
		held = false
	}
	if held {
		r.MarkReleased()
		delete(m.locks, orderID)
		m.publishLocked()
	}
	m.mu.Unlock()

	if !held && !fallback {
		return false, nil
	}
	if !restore {
		m.metrics.LockReleased(string(cause), false)
		m.logger.Debug("stock hold consumed", "order_id", orderID, "cause", cause)
		return false, nil
	}

	restored, err := m.ledger.Restore(ctx, orderID, cause)
	if err != nil {
		if held {
			m.reinstate(r)
		}
		return false, errs.Wrapf(err, "restore stock for order %s", orderID)
	}

	m.metrics.LockReleased(string(cause), restored)
	if restored {
		m.logger.Info("stock hold released", "order_id", orderID, "cause", cause, "held", held)
	} else {
		m.logger.Debug("stock release skipped, order already settled", "order_id", orderID, "cause", cause)
	}
	return restored, nil
}

func (m *Manager) reinstate(r *reservation.Reservation) {
	snap, err := reservation.ReconstructReservation(r.OrderID(), r.Lines(), r.CreatedAt(), r.ExpiresAt())
	if err != nil {
		m.logger.Error("failed to reinstate stock hold", "order_id", r.OrderID(), "error", err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.locks[r.OrderID()]; !exists {
		m.locks[r.OrderID()] = snap
		m.publishLocked()
	}
}

// Adopt rebuilds a hold from persisted order state. It reports false when
// the order already has an entry.
func (m *Manager) Adopt(orderID uuid.UUID, lines []reservation.Line, createdAt, expiresAt time.Time) (bool, error) {
	r, err := reservation.ReconstructReservation(orderID, lines, createdAt, expiresAt)
	if err != nil {
		return false, errs.Mark(err, errs.ErrInvalidReservation)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.locks[orderID]; exists {
		return false, nil
	}
	m.locks[orderID] = r
	m.publishLocked()
	return true, nil
}

// Renew puts a hold with the given expiry in place of whatever entry the
// order has, live or expired. Used when a payment moves the deadline of an
// order whose hold lapsed before any sweep released it.
func (m *Manager) Renew(orderID uuid.UUID, lines []reservation.Line, createdAt, expiresAt time.Time) (*reservation.Reservation, error) {
	r, err := reservation.ReconstructReservation(orderID, lines, createdAt, expiresAt)
	if err != nil {
		return nil, errs.Mark(err, errs.ErrInvalidReservation)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.locks[orderID] = r
	m.publishLocked()

	m.logger.Debug("stock hold renewed", "order_id", orderID, "expires_at", expiresAt)
	return r.Snapshot(), nil
}

// Forget drops a hold without touching persisted state. Used by
// reconciliation for holds whose order has already been settled.
func (m *Manager) Forget(orderID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.locks[orderID]; !exists {
		return false
	}
	delete(m.locks, orderID)
	m.publishLocked()
	return true
}

// SweepExpired releases with restore every hold past its expiry and returns
// how many were credited back. Holds whose restore fails stay in the table
// for the next sweep. A hold whose order has since moved on (paid, settled)
// leaves the table without a credit; the payment path renews it.
func (m *Manager) SweepExpired(ctx context.Context) (int, error) {
	now := m.clock.Now()

	m.mu.Lock()
	var expired []*reservation.Reservation
	for id, r := range m.locks {
		if r.IsExpiredAt(now) {
			expired = append(expired, r)
			delete(m.locks, id)
		}
	}
	if len(expired) > 0 {
		m.publishLocked()
	}
	m.mu.Unlock()

	released, failed := 0, 0
	var sweepErr error
	for _, r := range expired {
		restored, err := m.ledger.Restore(ctx, r.OrderID(), order.CauseExpired)
		if err != nil {
			m.reinstate(r)
			failed++
			sweepErr = errs.Combine(sweepErr, errs.Wrapf(err, "restore stock for order %s", r.OrderID()))
			continue
		}
		r.MarkReleased()
		m.metrics.LockReleased(string(order.CauseExpired), restored)
		if restored {
			released++
		}
	}

	if len(expired) > 0 {
		m.logger.Info("expired stock holds swept", "swept", len(expired), "released", released, "failed", failed)
	}
	return released, sweepErr
}

func (m *Manager) Get(orderID uuid.UUID) (*reservation.Reservation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.locks[orderID]
	if !ok {
		return nil, false
	}
	return r.Snapshot(), true
}

// ListActive returns every hold in the table ordered by expiry, including
// ones past expiry that have not been swept yet.
func (m *Manager) ListActive() []*reservation.Reservation {
	m.mu.Lock()
	out := make([]*reservation.Reservation, 0, len(m.locks))
	for _, r := range m.locks {
		out = append(out, r.Snapshot())
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].ExpiresAt().Before(out[j].ExpiresAt())
	})
	return out
}

// ReservedQuantity sums live holds for productID.
func (m *Manager) ReservedQuantity(productID uuid.UUID) int {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	total := 0
	for _, r := range m.locks {
		if r.IsLiveAt(now) {
			total += r.QuantityOf(productID)
		}
	}
	return total
}

// publishLocked must be called with mu held.
func (m *Manager) publishLocked() {
	units := 0
	for _, r := range m.locks {
		units += reservation.TotalQuantity(r.Lines())
	}
	m.metrics.SetActiveLocks(len(m.locks), units)
}
