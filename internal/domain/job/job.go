package job

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrMissingType     = errors.New("job type is required")
	ErrNegativeRetries = errors.New("job retry counters must not be negative")
	ErrNegativeDelay   = errors.New("job delay must not be negative")
	ErrEmptyPayload    = errors.New("job payload is empty")
)

// NoRetry as MaxRetries drops a job on its first failure.
const NoRetry = -1

// Job is a unit of deferred work held by the queue. MessageID and
// VisibilityDeadline are only set once a consumer has claimed it.
// A zero MaxRetries takes the queue default on enqueue.
type Job struct {
	MessageID          string          `json:"messageId,omitempty"`
	Type               Type            `json:"type"`
	Payload            json.RawMessage `json:"payload,omitempty"`
	RetryCount         int             `json:"retryCount"`
	MaxRetries         int             `json:"maxRetries"`
	Priority           int             `json:"priority"`
	Delay              time.Duration   `json:"delay,omitempty"`
	CreatedAt          time.Time       `json:"createdAt"`
	VisibilityDeadline time.Time       `json:"visibilityDeadline,omitempty"`
	LastError          string          `json:"lastError,omitempty"`
}

// New builds a job with a JSON encoded payload and the queue's retry budget.
func New(t Type, payload any) (Job, error) {
	j := Job{Type: t}
	if payload == nil {
		return j, j.Validate()
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Job{}, err
	}
	j.Payload = raw
	return j, j.Validate()
}

func (j Job) Validate() error {
	if j.Type == "" {
		return ErrMissingType
	}
	if j.RetryCount < 0 || j.MaxRetries < NoRetry {
		return ErrNegativeRetries
	}
	if j.Delay < 0 {
		return ErrNegativeDelay
	}
	return nil
}

func (j Job) WithDelay(d time.Duration) Job {
	j.Delay = d
	return j
}

func (j Job) WithPriority(p int) Job {
	j.Priority = p
	return j
}

func (j Job) WithMaxRetries(n int) Job {
	j.MaxRetries = n
	return j
}

// Exhausted reports whether one more failure drops the job for good.
func (j Job) Exhausted() bool {
	return j.RetryCount >= j.MaxRetries
}

// Retried returns the next instance of a failed job: retry count bumped,
// claim state cleared and the error recorded.
func (j Job) Retried(cause error, delay time.Duration) Job {
	next := j
	next.MessageID = ""
	next.VisibilityDeadline = time.Time{}
	next.RetryCount = j.RetryCount + 1
	next.Delay = delay
	if cause != nil {
		next.LastError = cause.Error()
	}
	return next
}

func (j Job) Decode(v any) error {
	if len(j.Payload) == 0 {
		return ErrEmptyPayload
	}
	return json.Unmarshal(j.Payload, v)
}
