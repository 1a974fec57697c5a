package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Identity is asserted by the API gateway, which verifies the session and
// forwards these headers. This service never sees credentials.
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserEmail = "X-User-Email"
	HeaderUserRole  = "X-User-Role"
	HeaderCron      = "X-Cron-Secret"

	ctxUserIDKey    = "user_id"
	ctxUserEmailKey = "user_email"
	ctxUserRoleKey  = "user_role"
)

const (
	RoleBuyer    = "buyer"
	RoleSeller   = "seller"
	RoleOperator = "operator"
)

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{"message": msg}})
}

func RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(HeaderUserID)
		if raw == "" {
			abortUnauthorized(c, "Caller identity required")
			return
		}
		userID, err := uuid.Parse(raw)
		if err != nil {
			slog.Warn("malformed caller identity", "value", raw)
			abortUnauthorized(c, "Invalid caller identity")
			return
		}

		c.Set(ctxUserIDKey, userID)
		c.Set(ctxUserEmailKey, c.GetHeader(HeaderUserEmail))
		c.Set(ctxUserRoleKey, c.GetHeader(HeaderUserRole))
		c.Next()
	}
}

// RequireRole must run after RequireIdentity.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(ctxUserRoleKey)
		if !slices.Contains(roles, role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": gin.H{"message": "Insufficient role"}})
			return
		}
		c.Next()
	}
}

// RequireCronSecret guards the endpoints an external scheduler calls.
func RequireCronSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(HeaderCron)
		if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			abortUnauthorized(c, "Invalid cron secret")
			return
		}
		c.Next()
	}
}

func GetUserID(c *gin.Context) (uuid.UUID, bool) {
	v, exists := c.Get(ctxUserIDKey)
	if !exists {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

func GetUserEmail(c *gin.Context) string {
	return c.GetString(ctxUserEmailKey)
}
