package middleware

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"jastip-market/internal/pkg/config"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// gatewayHeaders are set by the gateway only and must never be accepted
// from a browser preflight.
var gatewayHeaders = []string{HeaderUserID, HeaderUserEmail, HeaderUserRole, HeaderCron}

func NewCORSMiddleware(cfg config.CORSConfig) gin.HandlerFunc {
	allowHeaders := make([]string, 0, len(cfg.AllowHeaders))
	for _, h := range cfg.AllowHeaders {
		canonical := http.CanonicalHeaderKey(strings.TrimSpace(h))
		if slices.ContainsFunc(gatewayHeaders, func(g string) bool { return strings.EqualFold(g, canonical) }) {
			slog.Warn("CORS allow header dropped, it is reserved for the gateway", "header", canonical)
			continue
		}
		allowHeaders = append(allowHeaders, canonical)
	}

	exposeHeaders := slices.Clone(cfg.ExposeHeaders)
	if !slices.Contains(exposeHeaders, HeaderRequestID) {
		exposeHeaders = append(exposeHeaders, HeaderRequestID)
	}

	slog.Info("CORS middleware initialized", "allow_origins", cfg.AllowOrigins)
	return cors.New(cors.Config{
		AllowOrigins:     cfg.AllowOrigins,
		AllowMethods:     cfg.AllowMethods,
		AllowHeaders:     allowHeaders,
		ExposeHeaders:    exposeHeaders,
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           cfg.MaxAge,
	})
}
