//go:build unit

package api_test

import (
	"net/http"
	"testing"
	"time"

	"jastip-market/internal/domain/order"
	"jastip-market/internal/domain/reservation"
	"jastip-market/internal/handler/api"
	resdto "jastip-market/internal/handler/dto/response"
	"jastip-market/internal/handler/middleware"
	"jastip-market/internal/pkg/errs"
	"jastip-market/internal/usecase/commands"
	"jastip-market/internal/usecase/queries"
	"jastip-market/tests/common/builder"
	"jastip-market/tests/common/httptest"
	commandsmock "jastip-market/tests/mock/commands"
	queriesmock "jastip-market/tests/mock/queries"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
)

type OrderHandlerTestSuite struct {
	suite.Suite
	router       *gin.Engine
	mockCtrl     *gomock.Controller
	mockCommands *commandsmock.MockOrderCommands
	mockQueries  *queriesmock.MockOrderQueries
	buyerID      uuid.UUID
}

func (s *OrderHandlerTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	s.router = gin.New()

	s.mockCtrl = gomock.NewController(s.T())
	s.mockCommands = commandsmock.NewMockOrderCommands(s.mockCtrl)
	s.mockQueries = queriesmock.NewMockOrderQueries(s.mockCtrl)
	s.buyerID = uuid.New()

	orders := api.NewOrderHandler(s.mockCommands, s.mockQueries)
	payments := api.NewPaymentHandler(s.mockCommands, s.mockQueries)

	g := s.router.Group("/api/orders", middleware.RequireIdentity())
	g.POST("", orders.Checkout)
	g.GET("/:id", orders.Get)
	g.POST("/:id/cancel", orders.Cancel)
	g.POST("/:id/validate", orders.Validate)
	g.POST("/:id/reject", orders.Reject)
	s.router.POST("/api/payments/callback", payments.Callback)
}

func (s *OrderHandlerTestSuite) TearDownTest() {
	s.mockCtrl.Finish()
}

func TestOrderHandlerSuite(t *testing.T) {
	suite.Run(t, new(OrderHandlerTestSuite))
}

func (s *OrderHandlerTestSuite) headers() map[string]string {
	h := httptest.BuyerHeaders(s.buyerID.String())
	h[middleware.HeaderUserEmail] = "buyer@example.com"
	return h
}

func viewOf(o *order.Order) *queries.OrderView {
	lines := make([]queries.OrderLineView, len(o.Lines))
	for i, l := range o.Lines {
		lines[i] = queries.OrderLineView{ProductID: l.ProductID, Quantity: l.Quantity}
	}
	return &queries.OrderView{
		ID:         o.ID,
		BuyerID:    o.BuyerID,
		Status:     string(o.Status),
		Lines:      lines,
		DPDeadline: o.DPDeadline,
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}
}

func (s *OrderHandlerTestSuite) TestCheckout() {
	productID := uuid.New()
	placed := builder.NewOrderBuilder().With(func(b *builder.OrderBuilder) {
		b.BuyerID = s.buyerID
		b.Lines = []reservation.Line{{ProductID: productID, Quantity: 2}}
	}).Build()

	validBody := map[string]any{
		"items": []map[string]any{{"product_id": productID.String(), "quantity": 2}},
	}

	s.Run("success", func() {
		s.mockCommands.EXPECT().
			Checkout(gomock.Any(), commands.CheckoutInput{
				BuyerID:    s.buyerID,
				BuyerEmail: "buyer@example.com",
				Lines:      []reservation.Line{{ProductID: productID, Quantity: 2}},
			}).
			Return(placed, nil)
		s.mockQueries.EXPECT().GetByID(gomock.Any(), placed.ID).Return(viewOf(placed), nil)

		w := httptest.PerformRequest(s.T(), s.router, http.MethodPost, "/api/orders", validBody, s.headers())

		var resp resdto.OrderResponse
		httptest.AssertSuccessResponse(s.T(), w, http.StatusCreated, &resp)
		s.Equal(placed.ID.String(), resp.ID)
		s.Equal(string(order.StatusPendingDownPayment), resp.Status)
		s.Equal(placed.DPDeadline.Unix(), resp.DPDeadline)
		s.Require().Len(resp.Lines, 1)
		s.Equal(2, resp.Lines[0].Quantity)
	})

	tests := []struct {
		name       string
		body       any
		headers    map[string]string
		cmdErr     error
		expectCode int
		expectMsg  string
	}{
		{
			name:       "missing identity",
			body:       validBody,
			headers:    nil,
			expectCode: http.StatusUnauthorized,
			expectMsg:  "identity required",
		},
		{
			name:       "empty cart",
			body:       map[string]any{"items": []any{}},
			headers:    s.headers(),
			expectCode: http.StatusBadRequest,
			expectMsg:  "Invalid request",
		},
		{
			name:       "zero quantity",
			body:       map[string]any{"items": []map[string]any{{"product_id": productID.String(), "quantity": 0}}},
			headers:    s.headers(),
			expectCode: http.StatusBadRequest,
			expectMsg:  "Invalid request",
		},
		{
			name:       "insufficient stock",
			body:       validBody,
			headers:    s.headers(),
			cmdErr:     errs.WithMark(errs.ErrInsufficientStock, "product %s", productID),
			expectCode: http.StatusConflict,
			expectMsg:  "Insufficient stock",
		},
		{
			name:       "unknown product",
			body:       validBody,
			headers:    s.headers(),
			cmdErr:     errs.ErrProductNotFound,
			expectCode: http.StatusNotFound,
			expectMsg:  "Product not found",
		},
		{
			name:       "database failure",
			body:       validBody,
			headers:    s.headers(),
			cmdErr:     errs.Mark(errs.New("connection refused"), errs.ErrDatabaseOperationFailed),
			expectCode: http.StatusInternalServerError,
			expectMsg:  "Internal server error",
		},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			if tt.cmdErr != nil {
				s.mockCommands.EXPECT().Checkout(gomock.Any(), gomock.Any()).Return(nil, tt.cmdErr)
			}
			w := httptest.PerformRequest(s.T(), s.router, http.MethodPost, "/api/orders", tt.body, tt.headers)
			httptest.AssertErrorResponse(s.T(), w, tt.expectCode, tt.expectMsg)
		})
	}
}

func (s *OrderHandlerTestSuite) TestGet() {
	o := builder.NewOrderBuilder().Build()

	s.Run("found with hold", func() {
		v := viewOf(o)
		exp := o.DPDeadline
		v.HoldExpiresAt = &exp
		s.mockQueries.EXPECT().GetByID(gomock.Any(), o.ID).Return(v, nil)

		w := httptest.PerformRequest(s.T(), s.router, http.MethodGet, "/api/orders/"+o.ID.String(), nil, s.headers())

		var resp resdto.OrderResponse
		httptest.AssertSuccessResponse(s.T(), w, http.StatusOK, &resp)
		s.Require().NotNil(resp.HoldExpiresAt)
		s.Equal(exp.Unix(), *resp.HoldExpiresAt)
		s.Nil(resp.ValidationDeadline)
	})

	s.Run("not found", func() {
		s.mockQueries.EXPECT().GetByID(gomock.Any(), o.ID).
			Return(nil, errs.WithMark(errs.ErrOrderNotFound, "order %s", o.ID))

		w := httptest.PerformRequest(s.T(), s.router, http.MethodGet, "/api/orders/"+o.ID.String(), nil, s.headers())
		httptest.AssertErrorResponse(s.T(), w, http.StatusNotFound, "Order not found")
	})

	s.Run("malformed id", func() {
		w := httptest.PerformRequest(s.T(), s.router, http.MethodGet, "/api/orders/not-a-uuid", nil, s.headers())
		httptest.AssertErrorResponse(s.T(), w, http.StatusBadRequest, "Invalid order id")
	})
}

func (s *OrderHandlerTestSuite) TestCancel() {
	o := builder.NewOrderBuilder().With(func(b *builder.OrderBuilder) { b.BuyerID = s.buyerID }).Build()
	cancelled := *o
	cancelled.Status = order.StatusCancelled

	s.Run("buyer cancels", func() {
		s.mockCommands.EXPECT().Cancel(gomock.Any(), o.ID, s.buyerID).Return(nil)
		s.mockQueries.EXPECT().GetByID(gomock.Any(), o.ID).Return(viewOf(&cancelled), nil)

		w := httptest.PerformRequest(s.T(), s.router, http.MethodPost, "/api/orders/"+o.ID.String()+"/cancel", nil, s.headers())

		var resp resdto.OrderResponse
		httptest.AssertSuccessResponse(s.T(), w, http.StatusOK, &resp)
		s.Equal(string(order.StatusCancelled), resp.Status)
	})

	s.Run("already settled", func() {
		s.mockCommands.EXPECT().Cancel(gomock.Any(), o.ID, s.buyerID).
			Return(errs.WithMark(errs.ErrInvalidTransition, "order is %s", order.StatusExpired))

		w := httptest.PerformRequest(s.T(), s.router, http.MethodPost, "/api/orders/"+o.ID.String()+"/cancel", nil, s.headers())
		httptest.AssertErrorResponse(s.T(), w, http.StatusConflict, "not in a state")
	})
}

func (s *OrderHandlerTestSuite) TestValidateAndReject() {
	o := builder.NewOrderBuilder().With(func(b *builder.OrderBuilder) {
		b.Status = order.StatusAwaitingFinalPayment
		final := b.CreatedAt.Add(48 * time.Hour)
		b.FinalDeadline = &final
	}).Build()

	s.Run("validate", func() {
		s.mockCommands.EXPECT().Validate(gomock.Any(), o.ID).Return(o, nil)
		v := viewOf(o)
		v.FinalDeadline = o.FinalDeadline
		s.mockQueries.EXPECT().GetByID(gomock.Any(), o.ID).Return(v, nil)

		w := httptest.PerformRequest(s.T(), s.router, http.MethodPost, "/api/orders/"+o.ID.String()+"/validate", nil, s.headers())

		var resp resdto.OrderResponse
		httptest.AssertSuccessResponse(s.T(), w, http.StatusOK, &resp)
		s.Require().NotNil(resp.FinalDeadline)
		s.Equal(o.FinalDeadline.Unix(), *resp.FinalDeadline)
	})

	s.Run("reject from wrong status", func() {
		s.mockCommands.EXPECT().Reject(gomock.Any(), o.ID).Return(errs.ErrInvalidTransition)

		w := httptest.PerformRequest(s.T(), s.router, http.MethodPost, "/api/orders/"+o.ID.String()+"/reject", nil, s.headers())
		httptest.AssertErrorResponse(s.T(), w, http.StatusConflict, "")
	})
}

func (s *OrderHandlerTestSuite) TestPaymentCallback() {
	o := builder.NewOrderBuilder().Build()

	s.Run("down payment paid", func() {
		s.mockCommands.EXPECT().HandlePayment(gomock.Any(), o.ID, commands.EventDownPaymentPaid).Return(o, nil)
		s.mockQueries.EXPECT().GetByID(gomock.Any(), o.ID).Return(viewOf(o), nil)

		body := map[string]any{"order_id": o.ID.String(), "event": "down_payment.paid"}
		w := httptest.PerformRequest(s.T(), s.router, http.MethodPost, "/api/payments/callback", body, nil)
		httptest.AssertSuccessResponse(s.T(), w, http.StatusOK, nil)
	})

	s.Run("unknown event", func() {
		body := map[string]any{"order_id": o.ID.String(), "event": "refund.issued"}
		w := httptest.PerformRequest(s.T(), s.router, http.MethodPost, "/api/payments/callback", body, nil)
		httptest.AssertErrorResponse(s.T(), w, http.StatusBadRequest, "Unknown payment event")
	})

	s.Run("order gone", func() {
		s.mockCommands.EXPECT().HandlePayment(gomock.Any(), o.ID, commands.EventFinalPaymentPaid).
			Return(nil, errs.ErrOrderNotFound)

		body := map[string]any{"order_id": o.ID.String(), "event": "final_payment.paid"}
		w := httptest.PerformRequest(s.T(), s.router, http.MethodPost, "/api/payments/callback", body, nil)
		httptest.AssertErrorResponse(s.T(), w, http.StatusNotFound, "Order not found")
	})
}
