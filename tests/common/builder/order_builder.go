//go:build unit || e2e

package builder

import (
	"time"

	"jastip-market/internal/domain/order"
	"jastip-market/internal/domain/reservation"

	"github.com/google/uuid"
)

type OrderBuilder struct {
	ID                 uuid.UUID
	BuyerID            uuid.UUID
	BuyerEmail         string
	Status             order.Status
	Lines              []reservation.Line
	DPDeadline         time.Time
	ValidationDeadline *time.Time
	FinalDeadline      *time.Time
	CreatedAt          time.Time
}

func NewOrderBuilder() *OrderBuilder {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	return &OrderBuilder{
		ID:         uuid.New(),
		BuyerID:    uuid.New(),
		BuyerEmail: "buyer@example.com",
		Status:     order.StatusPendingDownPayment,
		Lines:      []reservation.Line{{ProductID: uuid.New(), Quantity: 2}},
		DPDeadline: now.Add(30 * time.Minute),
		CreatedAt:  now,
	}
}

func (b *OrderBuilder) With(mutate func(*OrderBuilder)) *OrderBuilder {
	mutate(b)
	return b
}

func (b *OrderBuilder) Build() *order.Order {
	lines := make([]reservation.Line, len(b.Lines))
	copy(lines, b.Lines)
	return &order.Order{
		ID:                 b.ID,
		BuyerID:            b.BuyerID,
		BuyerEmail:         b.BuyerEmail,
		Status:             b.Status,
		Lines:              lines,
		DPDeadline:         b.DPDeadline,
		ValidationDeadline: b.ValidationDeadline,
		FinalDeadline:      b.FinalDeadline,
		CreatedAt:          b.CreatedAt,
		UpdatedAt:          b.CreatedAt,
	}
}

func (b *OrderBuilder) WithStatus(s order.Status) *OrderBuilder {
	b.Status = s
	return b
}

func (b *OrderBuilder) WithLines(lines ...reservation.Line) *OrderBuilder {
	b.Lines = lines
	return b
}

func (b *OrderBuilder) WithDPDeadline(t time.Time) *OrderBuilder {
	b.DPDeadline = t
	return b
}

func (b *OrderBuilder) WithCreatedAt(t time.Time) *OrderBuilder {
	b.CreatedAt = t
	return b
}

func (b *OrderBuilder) AwaitingValidationUntil(t time.Time) *OrderBuilder {
	b.Status = order.StatusAwaitingValidation
	b.ValidationDeadline = &t
	return b
}

func (b *OrderBuilder) AwaitingFinalPaymentUntil(t time.Time) *OrderBuilder {
	b.Status = order.StatusAwaitingFinalPayment
	b.FinalDeadline = &t
	return b
}
