package httperr

import (
	"errors"
	"net/http"

	"jastip-market/internal/pkg/errs"

	"github.com/gin-gonic/gin"
)

type Response struct {
	Status int `json:"-"`
	Error  struct {
		Message string `json:"message"`
	} `json:"error"`
	Detail any `json:"detail,omitempty"`
}

// preserves original error for future monitoring
func AbortWithError(c *gin.Context, status int, err error, msg string, detail any) {
	if err == nil {
		panic("AbortWithError: err cannot be nil")
	}

	resp := Response{Status: status}
	resp.Error.Message = msg
	resp.Detail = detail

	_ = c.Error(gin.Error{
		Err:  err,
		Type: gin.ErrorTypePublic,
		Meta: resp,
	})
	c.AbortWithStatusJSON(status, resp)
}

var mapping = []struct {
	target error
	status int
	msg    string
}{
	{errs.ErrOrderNotFound, http.StatusNotFound, "Order not found"},
	{errs.ErrProductNotFound, http.StatusNotFound, "Product not found"},
	{errs.ErrReservationNotFound, http.StatusNotFound, "Reservation not found"},
	{errs.ErrInsufficientStock, http.StatusConflict, "Insufficient stock"},
	{errs.ErrInvalidTransition, http.StatusConflict, "Order is not in a state that allows this action"},
	{errs.ErrAlreadyReserved, http.StatusConflict, "Order already has a live reservation"},
	{errs.ErrInvalidReservation, http.StatusUnprocessableEntity, "Invalid order lines"},
	{errs.ErrInvalidJob, http.StatusBadRequest, "Invalid job"},
	{errs.ErrQueueUnavailable, http.StatusServiceUnavailable, "Job queue unavailable"},
}

// Classify maps a use case error onto the response it is reported as.
func Classify(err error) Response {
	resp := Response{Status: http.StatusInternalServerError}
	resp.Error.Message = "Internal server error"
	for _, m := range mapping {
		if errors.Is(err, m.target) {
			resp.Status = m.status
			resp.Error.Message = m.msg
			break
		}
	}
	return resp
}

// Abort reports err with the status Classify picks.
func Abort(c *gin.Context, err error) {
	resp := Classify(err)
	AbortWithError(c, resp.Status, err, resp.Error.Message, nil)
}
