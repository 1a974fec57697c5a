package jobs

import (
	"time"

	"jastip-market/internal/domain/job"
	"jastip-market/internal/domain/order"
	"jastip-market/internal/usecase/shared"

	"github.com/google/uuid"
)

type OrderPayload struct {
	OrderID uuid.UUID `json:"orderId"`
}

type StockReleasePayload struct {
	OrderID uuid.UUID          `json:"orderId"`
	Restore bool               `json:"restore"`
	Cause   order.ReleaseCause `json:"cause"`
}

// Order-scoped jobs jump ahead of notifications and sweeps.
const orderJobPriority = 10

func OrderJob(t job.Type, orderID uuid.UUID, delay time.Duration) (job.Job, error) {
	j, err := job.New(t, OrderPayload{OrderID: orderID})
	if err != nil {
		return job.Job{}, err
	}
	return j.WithDelay(delay).WithPriority(orderJobPriority), nil
}

func StockReleaseJob(orderID uuid.UUID, restore bool, cause order.ReleaseCause) (job.Job, error) {
	j, err := job.New(job.TypeStockRelease, StockReleasePayload{OrderID: orderID, Restore: restore, Cause: cause})
	if err != nil {
		return job.Job{}, err
	}
	return j.WithPriority(orderJobPriority), nil
}

func NotificationJob(n shared.Notification) (job.Job, error) {
	return job.New(job.TypeNotification, n)
}

func SweepJob(t job.Type) (job.Job, error) {
	return job.New(t, nil)
}

const (
	TemplateOrderPlaced     = "order_placed"
	TemplateOrderExpired    = "order_expired"
	TemplateOrderRejected   = "order_rejected"
	TemplateOrderRefunded   = "order_refunded"
	TemplatePaymentReminder = "payment_reminder"
)

var subjects = map[string]string{
	TemplateOrderPlaced:     "Your order is reserved",
	TemplateOrderExpired:    "Your order has expired",
	TemplateOrderRejected:   "Your order was not accepted",
	TemplateOrderRefunded:   "Your refund is on its way",
	TemplatePaymentReminder: "Your payment window is closing",
}

func OrderNotification(template string, o *order.Order) shared.Notification {
	return shared.Notification{
		Template: template,
		To:       o.BuyerEmail,
		Subject:  subjects[template],
		Data: map[string]string{
			"orderId": o.ID.String(),
			"status":  string(o.Status),
		},
	}
}
