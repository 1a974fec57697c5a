package api

import (
	"net/http"

	reqdto "jastip-market/internal/handler/dto/request"
	resdto "jastip-market/internal/handler/dto/response"
	"jastip-market/internal/handler/httperr"
	"jastip-market/internal/handler/middleware"
	"jastip-market/internal/usecase/commands"
	"jastip-market/internal/usecase/queries"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type OrderHandler struct {
	cmds commands.OrderCommands
	q    queries.OrderQueries
}

func NewOrderHandler(cmds commands.OrderCommands, q queries.OrderQueries) *OrderHandler {
	return &OrderHandler{cmds: cmds, q: q}
}

// @Summary Checkout
// @Description Decrement stock, place the order and hold the stock until the down payment deadline
// @Tags orders
// @Accept json
// @Produce json
// @Param X-User-ID header string true "Buyer ID"
// @Param request body reqdto.CheckoutRequest true "Cart"
// @Success 201 {object} resdto.OrderResponse
// @Failure 400 {object} httperr.Response
// @Failure 404 {object} httperr.Response
// @Failure 409 {object} httperr.Response
// @Router /api/orders [post]
func (h *OrderHandler) Checkout(c *gin.Context) {
	buyerID, ok := middleware.GetUserID(c)
	if !ok {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	var req reqdto.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.AbortWithError(c, http.StatusBadRequest, err, "Invalid request", nil)
		return
	}

	o, err := h.cmds.Checkout(c.Request.Context(), req.ToInput(buyerID, middleware.GetUserEmail(c)))
	if err != nil {
		httperr.Abort(c, err)
		return
	}
	h.respond(c, http.StatusCreated, o.ID)
}

// @Summary Get order
// @Tags orders
// @Produce json
// @Param id path string true "Order ID"
// @Success 200 {object} resdto.OrderResponse
// @Failure 404 {object} httperr.Response
// @Router /api/orders/{id} [get]
func (h *OrderHandler) Get(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	h.respond(c, http.StatusOK, id)
}

// @Summary Cancel order
// @Description Buyer cancels an open order; held stock is returned
// @Tags orders
// @Produce json
// @Param id path string true "Order ID"
// @Success 200 {object} resdto.OrderResponse
// @Failure 404 {object} httperr.Response
// @Failure 409 {object} httperr.Response
// @Router /api/orders/{id}/cancel [post]
func (h *OrderHandler) Cancel(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	buyerID, _ := middleware.GetUserID(c)
	if err := h.cmds.Cancel(c.Request.Context(), id, buyerID); err != nil {
		httperr.Abort(c, err)
		return
	}
	h.respond(c, http.StatusOK, id)
}

// @Summary Validate order
// @Description Seller accepts the order and opens the final payment window
// @Tags orders
// @Produce json
// @Param id path string true "Order ID"
// @Success 200 {object} resdto.OrderResponse
// @Failure 404 {object} httperr.Response
// @Failure 409 {object} httperr.Response
// @Router /api/orders/{id}/validate [post]
func (h *OrderHandler) Validate(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	if _, err := h.cmds.Validate(c.Request.Context(), id); err != nil {
		httperr.Abort(c, err)
		return
	}
	h.respond(c, http.StatusOK, id)
}

// @Summary Reject order
// @Description Seller rejects the order; stock is returned and a refund is scheduled
// @Tags orders
// @Produce json
// @Param id path string true "Order ID"
// @Success 200 {object} resdto.OrderResponse
// @Failure 404 {object} httperr.Response
// @Failure 409 {object} httperr.Response
// @Router /api/orders/{id}/reject [post]
func (h *OrderHandler) Reject(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	if err := h.cmds.Reject(c.Request.Context(), id); err != nil {
		httperr.Abort(c, err)
		return
	}
	h.respond(c, http.StatusOK, id)
}

func (h *OrderHandler) respond(c *gin.Context, status int, id uuid.UUID) {
	view, err := h.q.GetByID(c.Request.Context(), id)
	if err != nil {
		httperr.Abort(c, err)
		return
	}
	c.JSON(status, resdto.FromOrderView(view))
}

func orderID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httperr.AbortWithError(c, http.StatusBadRequest, err, "Invalid order id", nil)
		return uuid.Nil, false
	}
	return id, true
}
