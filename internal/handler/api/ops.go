package api

import (
	"net/http"

	resdto "jastip-market/internal/handler/dto/response"
	"jastip-market/internal/handler/httperr"
	"jastip-market/internal/usecase/commands"
	"jastip-market/internal/usecase/queries"
	"jastip-market/internal/usecase/stocklock"

	"github.com/gin-gonic/gin"
)

type OpsHandler struct {
	q      queries.OpsQueries
	sweeps commands.SweepCommands
}

func NewOpsHandler(q queries.OpsQueries, sweeps commands.SweepCommands) *OpsHandler {
	return &OpsHandler{q: q, sweeps: sweeps}
}

// @Summary List stock locks
// @Tags ops
// @Produce json
// @Success 200 {array} queries.LockView
// @Router /ops/locks [get]
func (h *OpsHandler) Locks(c *gin.Context) {
	c.JSON(http.StatusOK, h.q.ListLocks())
}

// @Summary Stock lock statistics
// @Tags ops
// @Produce json
// @Success 200 {object} queries.LockStatsView
// @Router /ops/locks/stats [get]
func (h *OpsHandler) LockStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.q.LockStats())
}

// @Summary Stock lock health
// @Description 503 when the lock table is at the critical level
// @Tags ops
// @Produce json
// @Success 200 {object} queries.LockHealthView
// @Failure 503 {object} queries.LockHealthView
// @Router /ops/locks/health [get]
func (h *OpsHandler) LockHealth(c *gin.Context) {
	v := h.q.LockHealth()
	status := http.StatusOK
	if v.Level == string(stocklock.HealthCritical) {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, v)
}

// @Summary Release expired stock locks now
// @Tags ops
// @Produce json
// @Success 200 {object} resdto.CleanupResponse
// @Router /ops/locks/cleanup [post]
func (h *OpsHandler) CleanupLocks(c *gin.Context) {
	n, err := h.sweeps.CleanupExpiredLocks(c.Request.Context())
	if err != nil {
		httperr.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, resdto.CleanupResponse{Released: n})
}

// @Summary Job queue statistics
// @Tags ops
// @Produce json
// @Success 200 {object} queries.QueueStatsView
// @Failure 503 {object} httperr.Response
// @Router /ops/queue/stats [get]
func (h *OpsHandler) QueueStats(c *gin.Context) {
	v, err := h.q.QueueStats(c.Request.Context())
	if err != nil {
		httperr.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// @Summary Job queue health
// @Tags ops
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} httperr.Response
// @Router /ops/queue/health [get]
func (h *OpsHandler) QueueHealth(c *gin.Context) {
	if err := h.q.QueueHealth(c.Request.Context()); err != nil {
		httperr.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// @Summary Worker state
// @Tags ops
// @Produce json
// @Success 200 {object} queries.WorkerView
// @Router /ops/worker [get]
func (h *OpsHandler) Worker(c *gin.Context) {
	c.JSON(http.StatusOK, h.q.Worker())
}

// @Summary Health check
// @Description Aggregate of queue reachability and lock table health
// @Tags health
// @Produce json
// @Success 200 {object} queries.HealthView
// @Failure 503 {object} queries.HealthView
// @Router /health [get]
func (h *OpsHandler) Health(c *gin.Context) {
	v := h.q.Health(c.Request.Context())
	status := http.StatusOK
	if !v.Healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, v)
}
