//go:build unit || e2e

package builder

import (
	"encoding/json"
	"time"

	"jastip-market/internal/domain/job"
)

type JobBuilder struct {
	Type       job.Type
	Payload    any
	RetryCount int
	MaxRetries int
	Priority   int
	Delay      time.Duration
}

func NewJobBuilder() *JobBuilder {
	return &JobBuilder{
		Type:       job.TypeNotification,
		Payload:    map[string]string{"template": "test"},
		MaxRetries: 3,
	}
}

func (b *JobBuilder) Build() job.Job {
	var raw json.RawMessage
	if b.Payload != nil {
		raw, _ = json.Marshal(b.Payload)
	}
	return job.Job{
		Type:       b.Type,
		Payload:    raw,
		RetryCount: b.RetryCount,
		MaxRetries: b.MaxRetries,
		Priority:   b.Priority,
		Delay:      b.Delay,
	}
}

func (b *JobBuilder) WithType(t job.Type) *JobBuilder {
	b.Type = t
	return b
}

func (b *JobBuilder) WithPayload(p any) *JobBuilder {
	b.Payload = p
	return b
}

func (b *JobBuilder) WithMaxRetries(n int) *JobBuilder {
	b.MaxRetries = n
	return b
}

func (b *JobBuilder) WithPriority(p int) *JobBuilder {
	b.Priority = p
	return b
}

func (b *JobBuilder) WithDelay(d time.Duration) *JobBuilder {
	b.Delay = d
	return b
}
