package order

import (
	"errors"
	"time"

	"jastip-market/internal/domain/reservation"

	"github.com/google/uuid"
)

var (
	ErrMissingBuyer    = errors.New("buyer id is required")
	ErrMissingDeadline = errors.New("down payment deadline is required")
)

// Order is the persisted view of a checkout, as far as the stock lock core
// needs it.
type Order struct {
	ID                 uuid.UUID
	BuyerID            uuid.UUID
	BuyerEmail         string
	Status             Status
	Lines              []reservation.Line
	DPDeadline         time.Time
	ValidationDeadline *time.Time
	FinalDeadline      *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func NewOrder(buyerID uuid.UUID, buyerEmail string, lines []reservation.Line, now time.Time, dpWindow time.Duration) (*Order, error) {
	if buyerID == uuid.Nil {
		return nil, ErrMissingBuyer
	}
	if dpWindow <= 0 {
		return nil, ErrMissingDeadline
	}
	normalized, err := reservation.NormalizeLines(lines)
	if err != nil {
		return nil, err
	}

	return &Order{
		ID:         uuid.New(),
		BuyerID:    buyerID,
		BuyerEmail: buyerEmail,
		Status:     StatusPendingDownPayment,
		Lines:      normalized,
		DPDeadline: now.Add(dpWindow),
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// HoldDeadline is the deadline that bounds the stock hold in the current
// status. ok is false for statuses that do not hold stock.
func (o *Order) HoldDeadline() (time.Time, bool) {
	switch o.Status {
	case StatusPendingDownPayment:
		return o.DPDeadline, true
	case StatusAwaitingValidation:
		if o.ValidationDeadline != nil {
			return *o.ValidationDeadline, true
		}
	case StatusAwaitingFinalPayment:
		if o.FinalDeadline != nil {
			return *o.FinalDeadline, true
		}
	}
	return time.Time{}, false
}

// IsOverdueAt reports whether the order is still in status and its hold
// deadline has passed. Handlers use it to re-check a job's snapshot.
func (o *Order) IsOverdueAt(status Status, now time.Time) bool {
	if o.Status != status {
		return false
	}
	deadline, ok := o.HoldDeadline()
	return ok && !now.Before(deadline)
}
