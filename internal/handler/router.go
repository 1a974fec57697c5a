package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"jastip-market/internal/handler/api"
	"jastip-market/internal/handler/middleware"
	"jastip-market/internal/pkg/config"
)

type route struct {
	Method  string
	Path    string
	Handler gin.HandlerFunc
	Mw      []gin.HandlerFunc
}

type Handlers struct {
	Orders   *api.OrderHandler
	Payments *api.PaymentHandler
	Cron     *api.CronHandler
	Ops      *api.OpsHandler
}

func NewHandlers(orders *api.OrderHandler, payments *api.PaymentHandler, cron *api.CronHandler, ops *api.OpsHandler) Handlers {
	return Handlers{Orders: orders, Payments: payments, Cron: cron, Ops: ops}
}

func NewRouter(engine *gin.Engine, cfg config.Config, logger *slog.Logger, h Handlers) {
	setupMiddleware(engine, cfg, logger)
	setupRoutes(engine, cfg, h)
}

func setupMiddleware(engine *gin.Engine, cfg config.Config, logger *slog.Logger) {
	// Recovery must be first (outermost) to catch panics from all other middleware
	engine.Use(middleware.CustomRecovery())
	engine.Use(middleware.NewCORSMiddleware(cfg.CORS))
	engine.Use(middleware.NewRequestLogger(logger, cfg.Log).LoggingMiddleware())
	engine.Use(middleware.ErrorHandler())
}

func setupRoutes(engine *gin.Engine, cfg config.Config, h Handlers) {
	engine.GET("/health", h.Ops.Health)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if gin.Mode() == gin.DebugMode {
		engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	apiGroup := engine.Group("/api")
	{
		orders := apiGroup.Group("/orders")
		orders.Use(middleware.RequireIdentity())
		{
			seller := []gin.HandlerFunc{middleware.RequireRole(middleware.RoleSeller, middleware.RoleOperator)}
			addRoutes(orders, []route{
				{Method: http.MethodPost, Path: "", Handler: h.Orders.Checkout},
				{Method: http.MethodGet, Path: "/:id", Handler: h.Orders.Get},
				{Method: http.MethodPost, Path: "/:id/cancel", Handler: h.Orders.Cancel},
				{Method: http.MethodPost, Path: "/:id/validate", Handler: h.Orders.Validate, Mw: seller},
				{Method: http.MethodPost, Path: "/:id/reject", Handler: h.Orders.Reject, Mw: seller},
			})
		}

		addRoutes(apiGroup.Group("/payments"), []route{
			{Method: http.MethodPost, Path: "/callback", Handler: h.Payments.Callback},
		})
	}

	cron := engine.Group("/internal/cron")
	cron.Use(middleware.RequireCronSecret(cfg.Cron.Secret))
	addRoutes(cron, []route{
		{Method: http.MethodPost, Path: "/:sweep", Handler: h.Cron.Trigger},
	})

	ops := engine.Group("/ops")
	ops.Use(middleware.RequireIdentity(), middleware.RequireRole(middleware.RoleOperator))
	addRoutes(ops, []route{
		{Method: http.MethodGet, Path: "/locks", Handler: h.Ops.Locks},
		{Method: http.MethodGet, Path: "/locks/stats", Handler: h.Ops.LockStats},
		{Method: http.MethodGet, Path: "/locks/health", Handler: h.Ops.LockHealth},
		{Method: http.MethodPost, Path: "/locks/cleanup", Handler: h.Ops.CleanupLocks},
		{Method: http.MethodGet, Path: "/queue/stats", Handler: h.Ops.QueueStats},
		{Method: http.MethodGet, Path: "/queue/health", Handler: h.Ops.QueueHealth},
		{Method: http.MethodGet, Path: "/worker", Handler: h.Ops.Worker},
	})
}

func addRoutes(g *gin.RouterGroup, rs []route) {
	for _, r := range rs {
		h := r.Handler
		if len(r.Mw) > 0 {
			h = chainHandlers(append(r.Mw, r.Handler)...)
		}
		switch r.Method {
		case http.MethodGet:
			g.GET(r.Path, h)
		case http.MethodPost:
			g.POST(r.Path, h)
		case http.MethodPut:
			g.PUT(r.Path, h)
		case http.MethodPatch:
			g.PATCH(r.Path, h)
		case http.MethodDelete:
			g.DELETE(r.Path, h)
		default:
			g.Any(r.Path, h)
		}
	}
}

func chainHandlers(hs ...gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, h := range hs {
			h(c)
			if c.IsAborted() {
				return
			}
		}
	}
}
