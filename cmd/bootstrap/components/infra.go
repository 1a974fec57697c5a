package components

import (
	"context"
	"log/slog"

	"jastip-market/internal/infra/metrics"
	"jastip-market/internal/infra/notify"
	"jastip-market/internal/infra/queue"
	"jastip-market/internal/pkg/clock"
	"jastip-market/internal/pkg/config"
	"jastip-market/internal/pkg/errs"
	"jastip-market/internal/usecase/shared"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var InfraModule = fx.Module("infra",
	fx.Provide(
		clock.NewRealClock,
		NewRegisterer,
		metrics.New,
		fx.Annotate(
			func(m *metrics.Metrics) *metrics.Metrics { return m },
			fx.As(new(shared.JobMetrics)),
			fx.As(new(shared.LockMetrics)),
			fx.As(new(shared.WorkerMetrics)),
		),
		NewJobQueue,
		NewNotifier,
	),
)

// NewRegisterer is the registry /metrics serves from.
func NewRegisterer() prometheus.Registerer {
	return prometheus.DefaultRegisterer
}

func NewJobQueue(lc fx.Lifecycle, cfg config.Config, pool *pgxpool.Pool, clk clock.Clock, m shared.JobMetrics) (shared.JobQueue, error) {
	opts, err := queue.OptionsFromConfig(cfg.Queue, clk, m)
	if err != nil {
		return nil, err
	}

	switch cfg.Queue.Driver {
	case "postgres":
		return queue.NewPostgresQueue(pool, opts), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		lc.Append(fx.Hook{
			OnStop: func(_ context.Context) error {
				return client.Close()
			},
		})
		return queue.NewRedisQueue(client, cfg.Queue.RedisKeyPrefix, opts), nil
	case "memory":
		slog.Warn("memory job queue selected; jobs do not survive a restart")
		return queue.NewMemoryQueue(opts), nil
	default:
		return nil, errs.Newf("unknown QUEUE_DRIVER %q", cfg.Queue.Driver)
	}
}

func NewNotifier(cfg config.Config) (shared.Notifier, error) {
	return notify.New(cfg.Notify, cfg.SMTP)
}
