package components

import (
	"jastip-market/internal/handler"
	"jastip-market/internal/handler/api"

	"go.uber.org/fx"
)

var HandlerModule = fx.Module("handler",
	fx.Provide(
		api.NewOrderHandler,
		api.NewPaymentHandler,
		api.NewCronHandler,
		api.NewOpsHandler,
		handler.NewHandlers,
	),
	fx.Invoke(handler.NewRouter),
)
