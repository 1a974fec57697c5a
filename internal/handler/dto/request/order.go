package request

import (
	"jastip-market/internal/domain/reservation"
	"jastip-market/internal/usecase/commands"

	"github.com/google/uuid"
)

type CheckoutItem struct {
	ProductID uuid.UUID `json:"product_id" binding:"required"`
	Quantity  int       `json:"quantity" binding:"required,min=1"`
}

type CheckoutRequest struct {
	Items []CheckoutItem `json:"items" binding:"required,min=1,dive"`
}

// Duplicate products are folded by the domain.
func (r *CheckoutRequest) ToInput(buyerID uuid.UUID, buyerEmail string) commands.CheckoutInput {
	lines := make([]reservation.Line, len(r.Items))
	for i, it := range r.Items {
		lines[i] = reservation.Line{ProductID: it.ProductID, Quantity: it.Quantity}
	}
	return commands.CheckoutInput{
		BuyerID:    buyerID,
		BuyerEmail: buyerEmail,
		Lines:      lines,
	}
}

type PaymentCallbackRequest struct {
	OrderID uuid.UUID `json:"order_id" binding:"required"`
	Event   string    `json:"event" binding:"required"`
}
