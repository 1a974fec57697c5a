//go:build e2e

package order_test

import (
	"net/http"
	"testing"
	"time"

	"jastip-market/internal/domain/order"
	reqdto "jastip-market/internal/handler/dto/request"
	resdto "jastip-market/internal/handler/dto/response"
	"jastip-market/internal/handler/middleware"
	"jastip-market/internal/usecase/queries"
	"jastip-market/tests/common/dbtest"
	"jastip-market/tests/common/httptest"
	"jastip-market/tests/common/testutil"
	"jastip-market/tests/e2e"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

type OrderE2ETestSuite struct {
	e2e.SharedSuite
	buyerID  uuid.UUID
	sellerID uuid.UUID
}

func TestOrderE2ESuite(t *testing.T) {
	suite.Run(t, new(OrderE2ETestSuite))
}

func (s *OrderE2ETestSuite) SetupTest() {
	s.SharedSuite.SetupTest()
	s.buyerID = uuid.New()
	s.sellerID = uuid.New()
}

func (s *OrderE2ETestSuite) buyer() map[string]string {
	return map[string]string{
		middleware.HeaderUserID:    s.buyerID.String(),
		middleware.HeaderUserEmail: "buyer@example.com",
		middleware.HeaderUserRole:  middleware.RoleBuyer,
	}
}

func (s *OrderE2ETestSuite) seller() map[string]string {
	return map[string]string{
		middleware.HeaderUserID:   s.sellerID.String(),
		middleware.HeaderUserRole: middleware.RoleSeller,
	}
}

func (s *OrderE2ETestSuite) operator() map[string]string {
	return map[string]string{
		middleware.HeaderUserID:   uuid.NewString(),
		middleware.HeaderUserRole: middleware.RoleOperator,
	}
}

func (s *OrderE2ETestSuite) checkout(productID uuid.UUID, qty int) *resdto.OrderResponse {
	body := reqdto.CheckoutRequest{Items: []reqdto.CheckoutItem{{ProductID: productID, Quantity: qty}}}
	w := httptest.PerformRequest(s.T(), s.App.Router, http.MethodPost, "/api/orders", body, s.buyer())

	var resp resdto.OrderResponse
	httptest.AssertSuccessResponse(s.T(), w, http.StatusCreated, &resp)
	return &resp
}

func (s *OrderE2ETestSuite) pay(orderID, event string) {
	body := map[string]any{"order_id": orderID, "event": event}
	w := httptest.PerformRequest(s.T(), s.App.Router, http.MethodPost, "/api/payments/callback", body, nil)
	httptest.AssertSuccessResponse(s.T(), w, http.StatusOK, nil)
}

func (s *OrderE2ETestSuite) get(orderID string) *resdto.OrderResponse {
	w := httptest.PerformRequest(s.T(), s.App.Router, http.MethodGet, "/api/orders/"+orderID, nil, s.buyer())
	var resp resdto.OrderResponse
	httptest.AssertSuccessResponse(s.T(), w, http.StatusOK, &resp)
	return &resp
}

func (s *OrderE2ETestSuite) TestUnpaidOrderExpires() {
	productID := dbtest.CreateProduct(s.T(), s.DB, "Tokyo Banana", 10)

	placed := s.checkout(productID, 2)
	s.Equal(string(order.StatusPendingDownPayment), placed.Status)
	s.Require().NotNil(placed.HoldExpiresAt)
	s.Equal(e2e.E2EStart.Add(30*time.Minute).Unix(), *placed.HoldExpiresAt)
	s.Equal(8, dbtest.ProductStock(s.T(), s.DB, productID))
	s.Equal(1, dbtest.QueuedJobs(s.T(), s.DB, "order.expire_unpaid"))

	// only the order_placed notification is due now
	s.Equal(1, s.DrainJobs())
	s.Equal(8, dbtest.ProductStock(s.T(), s.DB, productID))

	s.App.Clock.Add(30 * time.Minute)
	s.Equal(2, s.DrainJobs(), "expire_unpaid and its notification")

	s.Equal(10, dbtest.ProductStock(s.T(), s.DB, productID))
	got := s.get(placed.ID)
	s.Equal(string(order.StatusExpired), got.Status)
	s.Nil(got.HoldExpiresAt)

	// the cron sweep finds nothing left to do
	w := httptest.PerformRequest(s.T(), s.App.Router, http.MethodPost, "/internal/cron/expire-unpaid", nil,
		map[string]string{middleware.HeaderCron: s.App.Config.Cron.Secret})
	httptest.AssertSuccessResponse(s.T(), w, http.StatusAccepted, nil)
	s.Equal(1, s.DrainJobs())
	s.Equal(10, dbtest.ProductStock(s.T(), s.DB, productID))
}

func (s *OrderE2ETestSuite) TestSweepAndJobRaceReleasesOnce() {
	productID := dbtest.CreateProduct(s.T(), s.DB, "Royce Nama", 5)
	placed := s.checkout(productID, 3)
	s.DrainJobs()

	s.App.Clock.Add(31 * time.Minute)
	w := httptest.PerformRequest(s.T(), s.App.Router, http.MethodPost, "/internal/cron/expire-unpaid", nil,
		map[string]string{middleware.HeaderCron: s.App.Config.Cron.Secret})
	httptest.AssertSuccessResponse(s.T(), w, http.StatusAccepted, nil)

	s.DrainJobs()

	s.Equal(5, dbtest.ProductStock(s.T(), s.DB, productID))
	s.Equal(string(order.StatusExpired), dbtest.OrderStatus(s.T(), s.DB, uuid.MustParse(placed.ID)))
}

func (s *OrderE2ETestSuite) TestLateDownPaymentKeepsOrder() {
	productID := dbtest.CreateProduct(s.T(), s.DB, "Jaga Pokkuru", 10)
	placed := s.checkout(productID, 2)

	s.App.Clock.Add(31 * time.Minute)
	s.pay(placed.ID, "down_payment.paid")

	var cleanup resdto.CleanupResponse
	w := httptest.PerformRequest(s.T(), s.App.Router, http.MethodPost, "/ops/locks/cleanup", nil, s.operator())
	httptest.AssertSuccessResponse(s.T(), w, http.StatusOK, &cleanup)
	s.Equal(0, cleanup.Released)

	// the expiry job that came due before the payment is now stale
	s.DrainJobs()

	got := s.get(placed.ID)
	s.Equal(string(order.StatusAwaitingValidation), got.Status)
	s.Require().NotNil(got.HoldExpiresAt)
	s.Equal(8, dbtest.ProductStock(s.T(), s.DB, productID))
}

func (s *OrderE2ETestSuite) TestPaidOrderCompletes() {
	productID := dbtest.CreateProduct(s.T(), s.DB, "Kit Kat Matcha", 10)
	placed := s.checkout(productID, 3)

	s.pay(placed.ID, "down_payment.paid")
	got := s.get(placed.ID)
	s.Equal(string(order.StatusAwaitingValidation), got.Status)
	s.Require().NotNil(got.ValidationDeadline)
	s.Equal(*got.ValidationDeadline, *got.HoldExpiresAt)

	w := httptest.PerformRequest(s.T(), s.App.Router, http.MethodPost, "/api/orders/"+placed.ID+"/validate", nil, s.buyer())
	s.Equal(http.StatusForbidden, w.Code, "buyers cannot validate")

	w = httptest.PerformRequest(s.T(), s.App.Router, http.MethodPost, "/api/orders/"+placed.ID+"/validate", nil, s.seller())
	var validated resdto.OrderResponse
	httptest.AssertSuccessResponse(s.T(), w, http.StatusOK, &validated)
	s.Equal(string(order.StatusAwaitingFinalPayment), validated.Status)
	s.Require().NotNil(validated.FinalDeadline)

	s.pay(placed.ID, "final_payment.paid")
	got = s.get(placed.ID)
	s.Equal(string(order.StatusCompleted), got.Status)
	s.Nil(got.HoldExpiresAt)

	// every deadline job left behind is now a stale no-op
	s.App.Clock.Add(72 * time.Hour)
	s.DrainJobs()
	s.Equal(7, dbtest.ProductStock(s.T(), s.DB, productID))
	s.Equal(string(order.StatusCompleted), dbtest.OrderStatus(s.T(), s.DB, uuid.MustParse(placed.ID)))
}

func (s *OrderE2ETestSuite) TestRejectedOrderIsRefunded() {
	productID := dbtest.CreateProduct(s.T(), s.DB, "Shiroi Koibito", 4)
	placed := s.checkout(productID, 4)
	s.pay(placed.ID, "down_payment.paid")

	w := httptest.PerformRequest(s.T(), s.App.Router, http.MethodPost, "/api/orders/"+placed.ID+"/reject", nil, s.seller())
	var rejected resdto.OrderResponse
	httptest.AssertSuccessResponse(s.T(), w, http.StatusOK, &rejected)
	s.Equal(string(order.StatusRejected), rejected.Status)
	s.Equal(4, dbtest.ProductStock(s.T(), s.DB, productID))

	s.DrainJobs()
	s.Equal(string(order.StatusRejected), dbtest.OrderStatus(s.T(), s.DB, uuid.MustParse(placed.ID)))

	s.App.Clock.Add(time.Hour)
	s.DrainJobs()
	s.Equal(string(order.StatusRefunded), dbtest.OrderStatus(s.T(), s.DB, uuid.MustParse(placed.ID)))
	s.Equal(4, dbtest.ProductStock(s.T(), s.DB, productID))
}

func (s *OrderE2ETestSuite) TestCancel() {
	productID := dbtest.CreateProduct(s.T(), s.DB, "Pocky", 6)
	placed := s.checkout(productID, 6)
	s.Equal(0, dbtest.ProductStock(s.T(), s.DB, productID))

	other := map[string]string{middleware.HeaderUserID: uuid.NewString()}
	w := httptest.PerformRequest(s.T(), s.App.Router, http.MethodPost, "/api/orders/"+placed.ID+"/cancel", nil, other)
	httptest.AssertErrorResponse(s.T(), w, http.StatusNotFound, "Order not found")

	w = httptest.PerformRequest(s.T(), s.App.Router, http.MethodPost, "/api/orders/"+placed.ID+"/cancel", nil, s.buyer())
	httptest.AssertSuccessResponse(s.T(), w, http.StatusOK, nil)
	s.Equal(6, dbtest.ProductStock(s.T(), s.DB, productID))

	w = httptest.PerformRequest(s.T(), s.App.Router, http.MethodPost, "/api/orders/"+placed.ID+"/cancel", nil, s.buyer())
	httptest.AssertErrorResponse(s.T(), w, http.StatusConflict, "")
	s.Equal(6, dbtest.ProductStock(s.T(), s.DB, productID))
}

func (s *OrderE2ETestSuite) TestCheckoutRejections() {
	productID := dbtest.CreateProduct(s.T(), s.DB, "Hi-Chew", 1)
	valid := reqdto.CheckoutRequest{Items: []reqdto.CheckoutItem{{ProductID: productID, Quantity: 2}}}

	tests := []struct {
		name       string
		body       map[string]any
		expectCode int
		expectMsg  string
	}{
		{
			name:       "more than in stock",
			body:       testutil.DtoMap(s.T(), valid),
			expectCode: http.StatusConflict,
			expectMsg:  "Insufficient stock",
		},
		{
			name: "unknown product",
			body: testutil.DtoMap(s.T(), valid, testutil.Field("items", []map[string]any{
				{"product_id": uuid.NewString(), "quantity": 1},
			})),
			expectCode: http.StatusNotFound,
			expectMsg:  "Product not found",
		},
		{
			name:       "no items",
			body:       testutil.DtoMap(s.T(), valid, testutil.Field("items", nil)),
			expectCode: http.StatusBadRequest,
			expectMsg:  "Invalid request",
		},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			w := httptest.PerformRequest(s.T(), s.App.Router, http.MethodPost, "/api/orders", tt.body, s.buyer())
			httptest.AssertErrorResponse(s.T(), w, tt.expectCode, tt.expectMsg)
			s.Equal(1, dbtest.ProductStock(s.T(), s.DB, productID))
		})
	}
}

func (s *OrderE2ETestSuite) TestReconcileRebuildsHoldsAfterRestart() {
	productID := dbtest.CreateProduct(s.T(), s.DB, "Calbee", 9)
	placed := s.checkout(productID, 2)
	orderID := uuid.MustParse(placed.ID)

	// a fresh process starts with an empty lock table
	s.True(s.App.Locks.Forget(orderID))

	w := httptest.PerformRequest(s.T(), s.App.Router, http.MethodPost, "/internal/cron/reconcile", nil,
		map[string]string{middleware.HeaderCron: s.App.Config.Cron.Secret})
	httptest.AssertSuccessResponse(s.T(), w, http.StatusAccepted, nil)
	s.DrainJobs()

	hold, ok := s.App.Locks.Get(orderID)
	s.Require().True(ok)
	s.WithinDuration(e2e.E2EStart.Add(30*time.Minute), hold.ExpiresAt(), time.Millisecond)
}

func (s *OrderE2ETestSuite) TestCronRequiresSecret() {
	w := httptest.PerformRequest(s.T(), s.App.Router, http.MethodPost, "/internal/cron/expire-unpaid", nil, nil)
	s.Equal(http.StatusUnauthorized, w.Code)

	w = httptest.PerformRequest(s.T(), s.App.Router, http.MethodPost, "/internal/cron/vacuum", nil,
		map[string]string{middleware.HeaderCron: s.App.Config.Cron.Secret})
	httptest.AssertErrorResponse(s.T(), w, http.StatusBadRequest, "")
}

func (s *OrderE2ETestSuite) TestOpsEndpoints() {
	productID := dbtest.CreateProduct(s.T(), s.DB, "Jagariko", 3)
	s.checkout(productID, 1)

	w := httptest.PerformRequest(s.T(), s.App.Router, http.MethodGet, "/ops/locks", nil, s.buyer())
	s.Equal(http.StatusForbidden, w.Code)

	var locks []queries.LockView
	w = httptest.PerformRequest(s.T(), s.App.Router, http.MethodGet, "/ops/locks", nil, s.operator())
	httptest.AssertSuccessResponse(s.T(), w, http.StatusOK, &locks)
	s.Len(locks, 1)

	var stats queries.QueueStatsView
	w = httptest.PerformRequest(s.T(), s.App.Router, http.MethodGet, "/ops/queue/stats", nil, s.operator())
	httptest.AssertSuccessResponse(s.T(), w, http.StatusOK, &stats)
	s.Equal(2, stats.TotalQueued, "expire_unpaid and order_placed")

	s.App.Clock.Add(31 * time.Minute)
	var cleanup resdto.CleanupResponse
	w = httptest.PerformRequest(s.T(), s.App.Router, http.MethodPost, "/ops/locks/cleanup", nil, s.operator())
	httptest.AssertSuccessResponse(s.T(), w, http.StatusOK, &cleanup)
	s.Equal(1, cleanup.Released)
	s.Equal(3, dbtest.ProductStock(s.T(), s.DB, productID))

	var health queries.HealthView
	w = httptest.PerformRequest(s.T(), s.App.Router, http.MethodGet, "/health", nil, nil)
	httptest.AssertSuccessResponse(s.T(), w, http.StatusOK, &health)
	httptest.AssertHeaders(s.T(), w, map[string]string{"Content-Type": "application/json; charset=utf-8"})
	s.True(health.Healthy)
}
