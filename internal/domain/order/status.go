package order

type Status string

const (
	StatusPendingDownPayment   Status = "pending_down_payment"
	StatusAwaitingValidation   Status = "awaiting_validation"
	StatusAwaitingFinalPayment Status = "awaiting_final_payment"
	StatusCompleted            Status = "completed"
	StatusCancelled            Status = "cancelled"
	StatusExpired              Status = "expired"
	StatusRejected             Status = "rejected"
	StatusRefunded             Status = "refunded"
)

var transitions = map[Status][]Status{
	StatusPendingDownPayment:   {StatusAwaitingValidation, StatusCancelled, StatusExpired},
	StatusAwaitingValidation:   {StatusAwaitingFinalPayment, StatusRejected, StatusCancelled},
	StatusAwaitingFinalPayment: {StatusCompleted, StatusCancelled, StatusExpired},
	StatusRejected:             {StatusRefunded},
}

func (s Status) String() string {
	return string(s)
}

func (s Status) IsValid() bool {
	switch s {
	case StatusPendingDownPayment, StatusAwaitingValidation, StatusAwaitingFinalPayment,
		StatusCompleted, StatusCancelled, StatusExpired, StatusRejected, StatusRefunded:
		return true
	default:
		return false
	}
}

// HoldsStock reports whether an order in this status owns a live stock hold.
func (s Status) HoldsStock() bool {
	switch s {
	case StatusPendingDownPayment, StatusAwaitingValidation, StatusAwaitingFinalPayment:
		return true
	default:
		return false
	}
}

func (s Status) IsTerminal() bool {
	return s.IsValid() && !s.HoldsStock()
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ReleaseCause says why a stock hold is being released.
type ReleaseCause string

const (
	CauseExpired   ReleaseCause = "expired"
	CauseCancelled ReleaseCause = "cancelled"
	CauseRejected  ReleaseCause = "rejected"
	CauseConfirmed ReleaseCause = "confirmed"
)

func (c ReleaseCause) IsValid() bool {
	switch c {
	case CauseExpired, CauseCancelled, CauseRejected, CauseConfirmed:
		return true
	default:
		return false
	}
}

// TargetOnRelease returns the status an order moves to when its hold is
// released for cause. ok is false when the order has already left every
// status that owns stock for that cause, meaning the release is stale and
// must not credit stock again.
func TargetOnRelease(current Status, cause ReleaseCause) (target Status, ok bool) {
	if !current.HoldsStock() {
		return current, false
	}

	switch cause {
	case CauseExpired:
		if current == StatusAwaitingValidation {
			// validation window lapsing is an auto-reject
			return StatusRejected, true
		}
		return StatusExpired, true
	case CauseCancelled:
		return StatusCancelled, true
	case CauseRejected:
		if current != StatusAwaitingValidation {
			return current, false
		}
		return StatusRejected, true
	case CauseConfirmed:
		if current != StatusAwaitingFinalPayment {
			return current, false
		}
		return StatusCompleted, true
	default:
		return current, false
	}
}
