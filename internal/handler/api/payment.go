package api

import (
	"errors"
	"net/http"

	reqdto "jastip-market/internal/handler/dto/request"
	resdto "jastip-market/internal/handler/dto/response"
	"jastip-market/internal/handler/httperr"
	"jastip-market/internal/usecase/commands"
	"jastip-market/internal/usecase/queries"

	"github.com/gin-gonic/gin"
)

var errUnknownEvent = errors.New("unknown payment event")

type PaymentHandler struct {
	cmds commands.OrderCommands
	q    queries.OrderQueries
}

func NewPaymentHandler(cmds commands.OrderCommands, q queries.OrderQueries) *PaymentHandler {
	return &PaymentHandler{cmds: cmds, q: q}
}

// @Summary Payment callback
// @Description Applies a gateway event whose signature was verified upstream
// @Tags payments
// @Accept json
// @Produce json
// @Param request body reqdto.PaymentCallbackRequest true "Payment event"
// @Success 200 {object} resdto.OrderResponse
// @Failure 400 {object} httperr.Response
// @Failure 404 {object} httperr.Response
// @Failure 409 {object} httperr.Response
// @Router /api/payments/callback [post]
func (h *PaymentHandler) Callback(c *gin.Context) {
	var req reqdto.PaymentCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.AbortWithError(c, http.StatusBadRequest, err, "Invalid request", nil)
		return
	}
	event := commands.PaymentEvent(req.Event)
	if !event.IsValid() {
		httperr.AbortWithError(c, http.StatusBadRequest, errUnknownEvent, "Unknown payment event", req.Event)
		return
	}

	if _, err := h.cmds.HandlePayment(c.Request.Context(), req.OrderID, event); err != nil {
		httperr.Abort(c, err)
		return
	}
	view, err := h.q.GetByID(c.Request.Context(), req.OrderID)
	if err != nil {
		httperr.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, resdto.FromOrderView(view))
}
