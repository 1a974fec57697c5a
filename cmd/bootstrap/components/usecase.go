package components

import (
	"jastip-market/internal/pkg/clock"
	"jastip-market/internal/pkg/config"
	"jastip-market/internal/usecase/commands"
	"jastip-market/internal/usecase/jobs"
	"jastip-market/internal/usecase/queries"
	"jastip-market/internal/usecase/shared"
	"jastip-market/internal/usecase/stocklock"

	"go.uber.org/fx"
)

var UseCaseModule = fx.Module("usecase",
	usecaseStockLockModule,
	usecaseCommandsModule,
	usecaseQueriesModule,
	usecaseJobsModule,
)

var usecaseStockLockModule = fx.Module("usecase/stocklock",
	fx.Provide(
		stocklock.NewLedger,
		NewStockLockManager,
	),
)

var usecaseCommandsModule = fx.Module("usecase/commands",
	fx.Provide(
		NewOrderCommands,
		commands.NewSweepUseCase,
	),
)

var usecaseQueriesModule = fx.Module("usecase/queries",
	fx.Provide(
		queries.NewOrderQueries,
		queries.NewOpsQueries,
	),
)

var usecaseJobsModule = fx.Module("usecase/jobs",
	fx.Provide(
		NewJobHandlers,
		func(h *jobs.Handlers) *jobs.Registry { return h.NewRegistry() },
	),
)

func NewStockLockManager(cfg config.Config, ledger shared.StockLedger, clk clock.Clock, m shared.LockMetrics) *stocklock.Manager {
	return stocklock.NewManager(cfg.Reservation, ledger, clk, m)
}

func NewOrderCommands(cfg config.Config, uow shared.UnitOfWork, locks *stocklock.Manager, queue shared.JobQueue, clk clock.Clock) commands.OrderCommands {
	return commands.NewOrderUseCase(uow, locks, queue, clk, cfg.Reservation)
}

func NewJobHandlers(cfg config.Config, locks *stocklock.Manager, uow shared.UnitOfWork, queue shared.JobQueue, notifier shared.Notifier, clk clock.Clock) *jobs.Handlers {
	return jobs.NewHandlers(locks, uow, queue, notifier, clk, cfg.Reservation)
}
