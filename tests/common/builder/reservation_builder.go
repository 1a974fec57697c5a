//go:build unit || e2e

package builder

import (
	"time"

	"jastip-market/internal/domain/reservation"

	"github.com/google/uuid"
)

type ReservationBuilder struct {
	OrderID   uuid.UUID
	Lines     []reservation.Line
	CreatedAt time.Time
	Hold      time.Duration
}

func NewReservationBuilder() *ReservationBuilder {
	return &ReservationBuilder{
		OrderID:   uuid.New(),
		Lines:     []reservation.Line{{ProductID: uuid.New(), Quantity: 2}},
		CreatedAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		Hold:      30 * time.Minute,
	}
}

func (b *ReservationBuilder) With(mutate func(*ReservationBuilder)) *ReservationBuilder {
	mutate(b)
	return b
}

func (b *ReservationBuilder) BuildDomain() (*reservation.Reservation, error) {
	return reservation.NewReservation(b.OrderID, b.Lines, b.CreatedAt, b.Hold)
}

func (b *ReservationBuilder) WithOrderID(id uuid.UUID) *ReservationBuilder {
	b.OrderID = id
	return b
}

func (b *ReservationBuilder) WithLines(lines ...reservation.Line) *ReservationBuilder {
	b.Lines = lines
	return b
}

func (b *ReservationBuilder) WithLine(productID uuid.UUID, qty int) *ReservationBuilder {
	b.Lines = append(b.Lines, reservation.Line{ProductID: productID, Quantity: qty})
	return b
}

func (b *ReservationBuilder) WithCreatedAt(t time.Time) *ReservationBuilder {
	b.CreatedAt = t
	return b
}

func (b *ReservationBuilder) WithHold(d time.Duration) *ReservationBuilder {
	b.Hold = d
	return b
}
