package response

import (
	"time"

	"jastip-market/internal/usecase/queries"
)

type OrderLineResponse struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type OrderResponse struct {
	ID                 string              `json:"id"`
	BuyerID            string              `json:"buyer_id"`
	Status             string              `json:"status"`
	Lines              []OrderLineResponse `json:"lines"`
	DPDeadline         int64               `json:"dp_deadline"`
	ValidationDeadline *int64              `json:"validation_deadline,omitempty"`
	FinalDeadline      *int64              `json:"final_deadline,omitempty"`
	HoldExpiresAt      *int64              `json:"hold_expires_at,omitempty"`
	CreatedAt          int64               `json:"created_at"`
	UpdatedAt          int64               `json:"updated_at"`
}

func FromOrderView(v *queries.OrderView) *OrderResponse {
	lines := make([]OrderLineResponse, len(v.Lines))
	for i, l := range v.Lines {
		lines[i] = OrderLineResponse{ProductID: l.ProductID.String(), Quantity: l.Quantity}
	}
	return &OrderResponse{
		ID:                 v.ID.String(),
		BuyerID:            v.BuyerID.String(),
		Status:             v.Status,
		Lines:              lines,
		DPDeadline:         v.DPDeadline.Unix(),
		ValidationDeadline: unixPtr(v.ValidationDeadline),
		FinalDeadline:      unixPtr(v.FinalDeadline),
		HoldExpiresAt:      unixPtr(v.HoldExpiresAt),
		CreatedAt:          v.CreatedAt.Unix(),
		UpdatedAt:          v.UpdatedAt.Unix(),
	}
}

func unixPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	u := t.Unix()
	return &u
}

type SweepResponse struct {
	Sweep     string `json:"sweep"`
	MessageID string `json:"message_id"`
}

type CleanupResponse struct {
	Released int `json:"released"`
}
