package api

import (
	"net/http"

	resdto "jastip-market/internal/handler/dto/response"
	"jastip-market/internal/handler/httperr"
	"jastip-market/internal/usecase/commands"

	"github.com/gin-gonic/gin"
)

type CronHandler struct {
	sweeps commands.SweepCommands
}

func NewCronHandler(sweeps commands.SweepCommands) *CronHandler {
	return &CronHandler{sweeps: sweeps}
}

// @Summary Trigger sweep
// @Description Enqueues a recurring sweep; called by an external scheduler
// @Tags cron
// @Produce json
// @Param X-Cron-Secret header string true "Shared cron secret"
// @Param sweep path string true "Sweep name: expire-unpaid, auto-reject, reservations, reconcile or payment-reminders"
// @Success 202 {object} resdto.SweepResponse
// @Failure 400 {object} httperr.Response
// @Failure 401 {object} httperr.Response
// @Failure 503 {object} httperr.Response
// @Router /internal/cron/{sweep} [post]
func (h *CronHandler) Trigger(c *gin.Context) {
	name := c.Param("sweep")
	id, err := h.sweeps.TriggerSweep(c.Request.Context(), name)
	if err != nil {
		httperr.Abort(c, err)
		return
	}
	c.JSON(http.StatusAccepted, resdto.SweepResponse{Sweep: name, MessageID: id})
}
