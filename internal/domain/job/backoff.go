package job

import (
	"errors"
	"time"
)

var ErrEmptyBackoff = errors.New("backoff table must have at least one step")

// BackoffTable maps a failed attempt to its retry delay. Attempts past the
// end of the table reuse the last step.
type BackoffTable struct {
	steps []time.Duration
}

func NewBackoffTable(steps ...time.Duration) (BackoffTable, error) {
	if len(steps) == 0 {
		return BackoffTable{}, ErrEmptyBackoff
	}
	for _, s := range steps {
		if s < 0 {
			return BackoffTable{}, ErrNegativeDelay
		}
	}
	cp := make([]time.Duration, len(steps))
	copy(cp, steps)
	return BackoffTable{steps: cp}, nil
}

// DefaultBackoff is 5s, 30s, 5m.
func DefaultBackoff() BackoffTable {
	return BackoffTable{steps: []time.Duration{5 * time.Second, 30 * time.Second, 5 * time.Minute}}
}

// Delay returns the wait before the attempt following retryCount failures.
// retryCount is the count before the failure being handled.
func (b BackoffTable) Delay(retryCount int) time.Duration {
	if len(b.steps) == 0 {
		return 0
	}
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount >= len(b.steps) {
		return b.steps[len(b.steps)-1]
	}
	return b.steps[retryCount]
}

func (b BackoffTable) Steps() []time.Duration {
	out := make([]time.Duration, len(b.steps))
	copy(out, b.steps)
	return out
}
