package commands

import (
	"jastip-market/internal/domain/reservation"

	"github.com/google/uuid"
)

// CheckoutInput is the already-authenticated buyer and the items in the cart.
type CheckoutInput struct {
	BuyerID    uuid.UUID
	BuyerEmail string
	Lines      []reservation.Line
}

// PaymentEvent is a gateway callback whose signature has already been
// verified upstream.
type PaymentEvent string

const (
	EventDownPaymentPaid   PaymentEvent = "down_payment.paid"
	EventDownPaymentFailed PaymentEvent = "down_payment.failed"
	EventFinalPaymentPaid  PaymentEvent = "final_payment.paid"
)

func (e PaymentEvent) IsValid() bool {
	switch e {
	case EventDownPaymentPaid, EventDownPaymentFailed, EventFinalPaymentPaid:
		return true
	}
	return false
}
