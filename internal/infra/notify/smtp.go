package notify

import (
	"context"
	"strings"

	"jastip-market/internal/pkg/config"
	"jastip-market/internal/pkg/errs"
	"jastip-market/internal/usecase/shared"

	"github.com/wneessen/go-mail"
)

// SMTPNotifier dials per message; notification volume is low and bursty.
type SMTPNotifier struct {
	cfg config.SMTPConfig
}

func NewSMTPNotifier(cfg config.SMTPConfig) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg}
}

func (s *SMTPNotifier) Notify(ctx context.Context, n shared.Notification) error {
	m, err := s.message(n)
	if err != nil {
		return err
	}
	c, err := mail.NewClient(s.cfg.Host, s.options()...)
	if err != nil {
		return errs.Wrap(err, "create smtp client")
	}
	if err := c.DialAndSendWithContext(ctx, m); err != nil {
		return errs.Wrapf(err, "send %s to %s", n.Template, n.To)
	}
	return nil
}

func (s *SMTPNotifier) message(n shared.Notification) (*mail.Msg, error) {
	if n.To == "" {
		return nil, errs.New("notification without recipient")
	}
	m := mail.NewMsg()
	if err := m.FromFormat("Jastip Market", s.cfg.From); err != nil {
		return nil, errs.Wrap(err, "set from")
	}
	if err := m.To(n.To); err != nil {
		return nil, errs.Wrap(err, "set to")
	}
	// header injection
	m.Subject(strings.NewReplacer("\r", "", "\n", "").Replace(n.Subject))
	m.SetBodyString(mail.TypeTextPlain, render(n))
	return m, nil
}

func (s *SMTPNotifier) options() []mail.Option {
	opts := []mail.Option{mail.WithPort(s.cfg.Port)}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	if s.cfg.TLS {
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSOpportunistic))
	}
	return opts
}
