package queries

import (
	"time"

	"jastip-market/internal/domain/order"
	"jastip-market/internal/domain/reservation"
	"jastip-market/internal/usecase/stocklock"

	"github.com/google/uuid"
)

type OrderLineView struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

type OrderView struct {
	ID                 uuid.UUID       `json:"id"`
	BuyerID            uuid.UUID       `json:"buyer_id"`
	Status             string          `json:"status"`
	Lines              []OrderLineView `json:"lines"`
	DPDeadline         time.Time       `json:"dp_deadline"`
	ValidationDeadline *time.Time      `json:"validation_deadline,omitempty"`
	FinalDeadline      *time.Time      `json:"final_deadline,omitempty"`
	HoldExpiresAt      *time.Time      `json:"hold_expires_at,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

type LockView struct {
	OrderID   uuid.UUID       `json:"order_id"`
	Lines     []OrderLineView `json:"lines"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
	AgeSec    int64           `json:"age_sec"`
}

type LockStatsView struct {
	ActiveLocks       int               `json:"active_locks"`
	ExpiredUnswept    int               `json:"expired_unswept"`
	TotalUnits        int               `json:"total_units"`
	UnitsByProduct    map[uuid.UUID]int `json:"units_by_product"`
	OldestHoldAgeSec  int64             `json:"oldest_hold_age_sec"`
	ApproxMemoryBytes int               `json:"approx_memory_bytes"`
}

type LockHealthView struct {
	Level            string   `json:"level"`
	LockCount        int      `json:"lock_count"`
	OldestHoldAgeSec int64    `json:"oldest_hold_age_sec"`
	Issues           []string `json:"issues"`
	Recommendations  []string `json:"recommendations"`
}

type QueueStatsView struct {
	Visible       int   `json:"visible"`
	Delayed       int   `json:"delayed"`
	InFlight      int   `json:"in_flight"`
	TotalQueued   int   `json:"total_queued"`
	OldestAgeSec  int64 `json:"oldest_age_sec"`
	MaxRetryCount int   `json:"max_retry_count"`
	Completed     int64 `json:"completed"`
	Failed        int64 `json:"failed"`
	Dropped       int64 `json:"dropped"`
}

type WorkerView struct {
	Running             bool      `json:"running"`
	ActiveJobs          int64     `json:"active_jobs"`
	Processed           int64     `json:"processed"`
	Failed              int64     `json:"failed"`
	StartedAt           time.Time `json:"started_at"`
	UptimeSec           int64     `json:"uptime_sec"`
	ThroughputPerMinute float64   `json:"throughput_per_minute"`
	SuccessRate         float64   `json:"success_rate"`
}

type HealthView struct {
	Healthy bool   `json:"healthy"`
	Queue   string `json:"queue"`
	Locks   string `json:"locks"`
	Worker  string `json:"worker"`
}

func linesView(lines []reservation.Line) []OrderLineView {
	out := make([]OrderLineView, len(lines))
	for i, l := range lines {
		out[i] = OrderLineView{ProductID: l.ProductID, Quantity: l.Quantity}
	}
	return out
}

func orderView(o *order.Order, hold *reservation.Reservation) *OrderView {
	v := &OrderView{
		ID:                 o.ID,
		BuyerID:            o.BuyerID,
		Status:             string(o.Status),
		Lines:              linesView(o.Lines),
		DPDeadline:         o.DPDeadline,
		ValidationDeadline: o.ValidationDeadline,
		FinalDeadline:      o.FinalDeadline,
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
	}
	if hold != nil {
		exp := hold.ExpiresAt()
		v.HoldExpiresAt = &exp
	}
	return v
}

func lockView(r *reservation.Reservation, now time.Time) LockView {
	return LockView{
		OrderID:   r.OrderID(),
		Lines:     linesView(r.Lines()),
		Status:    string(r.StatusAt(now)),
		CreatedAt: r.CreatedAt(),
		ExpiresAt: r.ExpiresAt(),
		AgeSec:    int64(r.AgeAt(now).Seconds()),
	}
}

func lockStatsView(st stocklock.Stats) LockStatsView {
	return LockStatsView{
		ActiveLocks:       st.ActiveLocks,
		ExpiredUnswept:    st.ExpiredUnswept,
		TotalUnits:        st.TotalUnits,
		UnitsByProduct:    st.UnitsByProduct,
		OldestHoldAgeSec:  int64(st.OldestHoldAge.Seconds()),
		ApproxMemoryBytes: st.ApproxMemoryBytes,
	}
}
