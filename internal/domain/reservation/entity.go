package reservation

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrMissingOrderID   = errors.New("order id is required")
	ErrInvalidDuration  = errors.New("hold duration must be positive")
	ErrAlreadyReleased  = errors.New("reservation is already released")
	ErrExpiryBeforeHold = errors.New("expiry must be after creation")
)

// Reservation is a temporary claim on inventory held for one order outside
// the persisted stock counter.
type Reservation struct {
	orderID   uuid.UUID
	lines     []Line
	createdAt time.Time
	expiresAt time.Time
	status    Status
}

func NewReservation(orderID uuid.UUID, lines []Line, now time.Time, hold time.Duration) (*Reservation, error) {
	if hold <= 0 {
		return nil, ErrInvalidDuration
	}
	return ReconstructReservation(orderID, lines, now, now.Add(hold))
}

// ReconstructReservation rebuilds a hold from persisted order state.
func ReconstructReservation(orderID uuid.UUID, lines []Line, createdAt, expiresAt time.Time) (*Reservation, error) {
	if orderID == uuid.Nil {
		return nil, ErrMissingOrderID
	}
	if !expiresAt.After(createdAt) {
		return nil, ErrExpiryBeforeHold
	}
	normalized, err := NormalizeLines(lines)
	if err != nil {
		return nil, err
	}

	return &Reservation{
		orderID:   orderID,
		lines:     normalized,
		createdAt: createdAt,
		expiresAt: expiresAt,
		status:    StatusActive,
	}, nil
}

// IsExpiredAt reports logical expiry; a hold past expiresAt is expired even
// before a sweep has physically removed it.
func (r *Reservation) IsExpiredAt(now time.Time) bool {
	return !now.Before(r.expiresAt)
}

func (r *Reservation) IsLiveAt(now time.Time) bool {
	return r.status == StatusActive && !r.IsExpiredAt(now)
}

// StatusAt is the conceptual state as seen at now.
func (r *Reservation) StatusAt(now time.Time) Status {
	if r.status == StatusActive && r.IsExpiredAt(now) {
		return StatusExpired
	}
	return r.status
}

func (r *Reservation) ExtendAt(now time.Time, d time.Duration) error {
	if d <= 0 {
		return ErrInvalidDuration
	}
	if r.status == StatusReleased {
		return ErrAlreadyReleased
	}
	r.expiresAt = now.Add(d)
	r.status = StatusActive
	return nil
}

func (r *Reservation) MarkReleased() {
	r.status = StatusReleased
}

func (r *Reservation) QuantityOf(productID uuid.UUID) int {
	for _, l := range r.lines {
		if l.ProductID == productID {
			return l.Quantity
		}
	}
	return 0
}

func (r *Reservation) AgeAt(now time.Time) time.Duration {
	return now.Sub(r.createdAt)
}

func (r *Reservation) OrderID() uuid.UUID   { return r.orderID }
func (r *Reservation) CreatedAt() time.Time { return r.createdAt }
func (r *Reservation) ExpiresAt() time.Time { return r.expiresAt }
func (r *Reservation) Status() Status       { return r.status }

func (r *Reservation) Lines() []Line {
	out := make([]Line, len(r.lines))
	copy(out, r.lines)
	return out
}

// Snapshot is a detached copy safe to hand out of the lock table.
func (r *Reservation) Snapshot() *Reservation {
	cp := *r
	cp.lines = r.Lines()
	return &cp
}
