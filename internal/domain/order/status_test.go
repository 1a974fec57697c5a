//go:build unit

package order_test

import (
	"testing"
	"time"

	"jastip-market/internal/domain/order"
	"jastip-market/tests/common/builder"

	"github.com/stretchr/testify/assert"
)

func TestTargetOnRelease(t *testing.T) {
	tests := []struct {
		name    string
		current order.Status
		cause   order.ReleaseCause
		want    order.Status
		wantOK  bool
	}{
		{"unpaid hold expires", order.StatusPendingDownPayment, order.CauseExpired, order.StatusExpired, true},
		{"validation window lapses", order.StatusAwaitingValidation, order.CauseExpired, order.StatusRejected, true},
		{"final payment window lapses", order.StatusAwaitingFinalPayment, order.CauseExpired, order.StatusExpired, true},
		{"buyer cancels", order.StatusPendingDownPayment, order.CauseCancelled, order.StatusCancelled, true},
		{"seller rejects", order.StatusAwaitingValidation, order.CauseRejected, order.StatusRejected, true},
		{"reject outside validation is stale", order.StatusPendingDownPayment, order.CauseRejected, order.StatusPendingDownPayment, false},
		{"final confirmation", order.StatusAwaitingFinalPayment, order.CauseConfirmed, order.StatusCompleted, true},
		{"confirm before validation is stale", order.StatusAwaitingValidation, order.CauseConfirmed, order.StatusAwaitingValidation, false},
		{"unknown cause", order.StatusAwaitingValidation, order.ReleaseCause("bogus"), order.StatusAwaitingValidation, false},
		{"already expired", order.StatusExpired, order.CauseExpired, order.StatusExpired, false},
		{"already completed", order.StatusCompleted, order.CauseCancelled, order.StatusCompleted, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := order.TargetOnRelease(tt.current, tt.cause)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, order.StatusPendingDownPayment.CanTransitionTo(order.StatusAwaitingValidation))
	assert.True(t, order.StatusRejected.CanTransitionTo(order.StatusRefunded))
	assert.False(t, order.StatusCompleted.CanTransitionTo(order.StatusCancelled))
	assert.False(t, order.StatusPendingDownPayment.CanTransitionTo(order.StatusCompleted))

	assert.True(t, order.StatusAwaitingFinalPayment.HoldsStock())
	assert.True(t, order.StatusRefunded.IsTerminal())
	assert.False(t, order.Status("bogus").IsTerminal())
}

func TestOrderHoldDeadline(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("pending uses down payment deadline", func(t *testing.T) {
		o := builder.NewOrderBuilder().WithDPDeadline(now).Build()
		deadline, ok := o.HoldDeadline()
		assert.True(t, ok)
		assert.Equal(t, now, deadline)
		assert.True(t, o.IsOverdueAt(order.StatusPendingDownPayment, now))
		assert.False(t, o.IsOverdueAt(order.StatusPendingDownPayment, now.Add(-time.Second)))
	})

	t.Run("validation uses validation deadline", func(t *testing.T) {
		o := builder.NewOrderBuilder().AwaitingValidationUntil(now.Add(24 * time.Hour)).Build()
		deadline, ok := o.HoldDeadline()
		assert.True(t, ok)
		assert.Equal(t, now.Add(24*time.Hour), deadline)
	})

	t.Run("status mismatch is never overdue", func(t *testing.T) {
		o := builder.NewOrderBuilder().WithDPDeadline(now).WithStatus(order.StatusCancelled).Build()
		_, ok := o.HoldDeadline()
		assert.False(t, ok)
		assert.False(t, o.IsOverdueAt(order.StatusPendingDownPayment, now.Add(time.Hour)))
	})
}
