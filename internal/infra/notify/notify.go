// Package notify delivers buyer notifications. The worker calls it from the
// notification.send job, so a returned error means the job is retried.
package notify

import (
	"bytes"
	"context"
	"log/slog"
	"text/template"
	"time"

	"jastip-market/internal/pkg/config"
	"jastip-market/internal/pkg/errs"
	"jastip-market/internal/usecase/shared"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// New builds the notifier selected by NOTIFY_DRIVER, guarded by a rate
// limiter and a circuit breaker.
func New(cfg config.NotifyConfig, smtp config.SMTPConfig) (shared.Notifier, error) {
	var inner shared.Notifier
	switch cfg.Driver {
	case "", "log":
		inner = NewLogNotifier()
	case "smtp":
		inner = NewSMTPNotifier(smtp)
	default:
		return nil, errs.Newf("unknown notify driver %q", cfg.Driver)
	}
	return NewGuarded(inner, cfg), nil
}

// Guarded throttles outgoing notifications and stops calling a failing
// transport until the breaker half-opens again.
type Guarded struct {
	next    shared.Notifier
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

func NewGuarded(next shared.Notifier, cfg config.NotifyConfig) *Guarded {
	logger := slog.With("component", "notify")
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	limit := rate.Limit(cfg.RatePerSecond)
	if cfg.RatePerSecond <= 0 {
		limit = rate.Inf
	}
	return &Guarded{
		next:    next,
		limiter: rate.NewLimiter(limit, max(cfg.Burst, 1)),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "notify",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     cfg.BreakerOpenDelay,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("notification breaker state changed", "from", from.String(), "to", to.String())
			},
		}),
	}
}

func (g *Guarded) Notify(ctx context.Context, n shared.Notification) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return errs.Wrap(err, "notification rate limit")
	}
	_, err := g.breaker.Execute(func() (interface{}, error) {
		return nil, g.next.Notify(ctx, n)
	})
	return err
}

func (g *Guarded) State() gobreaker.State {
	return g.breaker.State()
}

var bodies = template.Must(template.New("notify").Parse(`
{{define "order_placed"}}Your order {{.orderId}} is reserved. Please pay the down payment before the deadline.{{end}}
{{define "order_expired"}}Your order {{.orderId}} has expired because payment was not received in time. The items were released.{{end}}
{{define "order_rejected"}}The seller could not accept order {{.orderId}}. Your down payment will be refunded.{{end}}
{{define "order_refunded"}}The refund for order {{.orderId}} has been handed to our finance team.{{end}}
{{define "payment_reminder"}}Your down payment for order {{.orderId}} is due at {{.deadline}}.{{end}}
`))

// render produces the plain text body for n. Unknown templates fall back to
// the subject so a new template never blocks delivery.
func render(n shared.Notification) string {
	if bodies.Lookup(n.Template) == nil {
		return n.Subject
	}
	var buf bytes.Buffer
	if err := bodies.ExecuteTemplate(&buf, n.Template, n.Data); err != nil {
		return n.Subject
	}
	return buf.String()
}
