package jobs

import (
	"context"
	"fmt"
	"sort"

	"jastip-market/internal/domain/job"
	"jastip-market/internal/pkg/errs"
)

type Handler interface {
	Handle(ctx context.Context, j job.Job) error
}

type HandlerFunc func(ctx context.Context, j job.Job) error

func (f HandlerFunc) Handle(ctx context.Context, j job.Job) error {
	return f(ctx, j)
}

// Registry maps a job type to exactly one handler. It is filled at startup
// and read-only afterwards.
type Registry struct {
	handlers map[job.Type]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[job.Type]Handler)}
}

// Register panics on an empty type, a nil handler or a duplicate; all three
// are wiring bugs.
func (r *Registry) Register(t job.Type, h Handler) {
	if t == "" || h == nil {
		panic("jobs: Register with empty type or nil handler")
	}
	if _, exists := r.handlers[t]; exists {
		panic(fmt.Sprintf("jobs: handler for %q already registered", t))
	}
	r.handlers[t] = h
}

func (r *Registry) Execute(ctx context.Context, j job.Job) error {
	h, ok := r.handlers[j.Type]
	if !ok {
		return errs.WithMark(errs.ErrUnknownJobType, "no handler for job type %q", j.Type)
	}
	return h.Handle(ctx, j)
}

func (r *Registry) Has(t job.Type) bool {
	_, ok := r.handlers[t]
	return ok
}

func (r *Registry) Types() []job.Type {
	out := make([]job.Type, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
