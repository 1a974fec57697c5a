package notify

import (
	"context"
	"log/slog"

	"jastip-market/internal/usecase/shared"
)

// LogNotifier writes notifications to the log instead of sending them.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: slog.With("component", "notify", "driver", "log")}
}

func (l *LogNotifier) Notify(ctx context.Context, n shared.Notification) error {
	l.logger.InfoContext(ctx, "notification",
		"template", n.Template,
		"to", n.To,
		"subject", n.Subject,
		"body", render(n),
	)
	return nil
}
