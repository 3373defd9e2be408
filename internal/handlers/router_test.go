package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"agency-backend/internal/auth"
	"agency-backend/internal/metrics"
	"agency-backend/internal/models"
	"agency-backend/internal/payment"
	"agency-backend/internal/testutil"
)

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Errors  []string        `json:"errors"`
}

type routerSuite struct {
	suite.Suite
	db       *testutil.DB
	gw       *testutil.Gateway
	notifier *testutil.Notifier
	tokens   *auth.Tokens
	deps     Deps
	router   *gin.Engine
	pingErr  error

	adminToken string
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(routerSuite))
}

func (s *routerSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	s.db = testutil.NewDB()
	s.gw = testutil.NewGateway()
	s.notifier = &testutil.Notifier{}
	s.pingErr = nil
	s.tokens = auth.NewTokens(auth.TokenConfig{
		Secret:             "router-access-secret",
		VerificationSecret: "router-verification-secret",
		AccessTTL:          15 * time.Minute,
		RefreshTTL:         24 * time.Hour,
		VerificationTTL:    time.Hour,
	})

	authSvc := auth.NewService(s.db.Users(), s.db.RefreshTokens(), s.db.Intents(), s.gw, s.notifier, s.tokens)
	ctrl := payment.NewController(s.db.Orders(), s.db.Users(), s.gw, s.db.WebhookEvents(), s.notifier, &testutil.Publisher{}, payment.Options{
		Currency:    "eur",
		FrontendURL: "http://front.test",
	})

	s.deps = Deps{
		Auth:       authSvc,
		Users:      s.db.Users(),
		Orders:     s.db.Orders(),
		OrderItems: s.db.OrderItems(),
		Catalog:    Catalog{Services: s.db.Services(), Products: s.gw, Currency: "eur", UploadDir: s.T().TempDir()},
		Checkout:   ctrl,
		Webhooks:   ctrl,
		Contact:    s.notifier,
		Metrics:    metrics.New(prometheus.NewRegistry()),
		Ping:       func(context.Context) error { return s.pingErr },
		UploadDir:  s.T().TempDir(),
	}
	s.router = NewRouter(s.deps)

	s.adminToken = s.tokenFor(s.addUser(models.RoleAdmin))
}

func (s *routerSuite) addUser(role models.Role) *models.User {
	user := &models.User{
		Email:     strings.ToLower(gofakeit.Email()),
		FirstName: gofakeit.FirstName(),
		LastName:  gofakeit.LastName(),
		Role:      role,
	}
	s.Require().NoError(s.db.Users().Create(context.Background(), user))
	return user
}

func (s *routerSuite) tokenFor(user *models.User) string {
	token, err := s.tokens.IssueAccess(*user)
	s.Require().NoError(err)
	return token
}

func (s *routerSuite) do(method, path, token string, body any) (int, apiResponse) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return s.serve(req)
}

func (s *routerSuite) serve(req *http.Request) (int, apiResponse) {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	var resp apiResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w.Code, resp
}

func (s *routerSuite) webhook(payload []byte) (int, apiResponse) {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/webhook", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", testutil.Sign(payload))
	return s.serve(req)
}

func (s *routerSuite) decode(resp apiResponse, dst any) {
	s.Require().NoError(json.Unmarshal(resp.Data, dst))
}

func (s *routerSuite) createService(name string, price float64) models.Service {
	code, resp := s.do(http.MethodPost, "/services", s.adminToken, gin.H{
		"name":        name,
		"description": gofakeit.Sentence(5),
		"basePrice":   price,
		"type":        "VITRINE",
		"features":    []string{"responsive"},
	})
	s.Require().Equal(http.StatusCreated, code, resp.Message)
	var service models.Service
	s.decode(resp, &service)
	return service
}

func (s *routerSuite) TestDepositScenario() {
	vitrine := s.createService("Site vitrine", 10)
	coaching := s.createService("Coaching", 20)

	code, resp := s.do(http.MethodPost, "/auth/register", "", gin.H{
		"email":     "client@example.com",
		"firstName": "Jeanne",
		"lastName":  "Martin",
		"password":  "Str0ng!Pass",
	})
	s.Require().Equal(http.StatusCreated, code, resp.Message)

	code, resp = s.do(http.MethodPost, "/auth/login", "", gin.H{"email": "client@example.com", "password": "Str0ng!Pass"})
	s.Require().Equal(http.StatusOK, code, resp.Message)
	var session auth.Session
	s.decode(resp, &session)
	token := session.AccessToken

	code, resp = s.do(http.MethodPost, "/orders", token, gin.H{
		"depositAmount": 12,
		"items": []gin.H{
			{"serviceId": vitrine.ID.Hex(), "unitAmount": 10, "quantity": 2},
			{"serviceId": coaching.ID.Hex(), "unitAmount": 20, "quantity": 1},
		},
	})
	s.Require().Equal(http.StatusCreated, code, resp.Message)
	var order models.Order
	s.decode(resp, &order)
	s.Equal(40.0, order.TotalAmount)
	s.Equal(models.PaymentPendingDeposit, order.StatusPayment)
	s.Len(order.Items, 2)

	code, resp = s.do(http.MethodPost, "/payments/create-checkout-session", token, gin.H{"orderId": order.ID.Hex()})
	s.Require().Equal(http.StatusOK, code, resp.Message)
	var checkout payment.CheckoutResult
	s.decode(resp, &checkout)
	s.Require().Len(checkout.LineItems, 2)
	s.Equal(int64(1000), checkout.LineItems[0].UnitAmount)
	s.Equal(int64(2), checkout.LineItems[0].Quantity)
	s.Equal(int64(2000), checkout.LineItems[1].UnitAmount)
	s.Equal(int64(1), checkout.LineItems[1].Quantity)

	event := testutil.CheckoutCompleted("evt_1", checkout.SessionID, order.ID.Hex(), "pi_1")
	code, resp = s.webhook(event)
	s.Equal(http.StatusOK, code)
	s.True(resp.Success)

	code, resp = s.do(http.MethodGet, "/orders/"+order.ID.Hex(), token, nil)
	s.Require().Equal(http.StatusOK, code)
	s.decode(resp, &order)
	s.Equal(models.PaymentDepositPaid, order.StatusPayment)
	s.Require().NotNil(order.StripePaymentIntentID)
	s.Equal("pi_1", *order.StripePaymentIntentID)
	s.Equal(1, s.notifier.Count("payment_confirmation"))

	// Redelivery is acknowledged without a second email.
	code, _ = s.webhook(event)
	s.Equal(http.StatusOK, code)
	s.Equal(1, s.notifier.Count("payment_confirmation"))

	// Paid orders can neither be paid again nor deleted.
	code, _ = s.do(http.MethodPost, "/payments/create-checkout-session", token, gin.H{"orderId": order.ID.Hex()})
	s.Equal(http.StatusConflict, code)
	code, _ = s.do(http.MethodDelete, "/orders/"+order.ID.Hex(), token, nil)
	s.Equal(http.StatusConflict, code)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	s.Contains(w.Body.String(), `type="checkout.session.completed"`)
}

func (s *routerSuite) TestWebhookRejectsBadSignature() {
	payload := testutil.CheckoutCompleted("evt_bad", "cs_1", "65f1c2a9e4b0a1b2c3d4e5f6", "pi_1")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/webhook", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	code, resp := s.serve(req)
	s.Equal(http.StatusBadRequest, code)
	s.False(resp.Success)
}

func (s *routerSuite) TestWebhookBodyLimit() {
	charge := func(id string, size int) []byte {
		return testutil.StripeEvent(id, "charge.succeeded", map[string]any{
			"id":          "ch_" + id,
			"object":      "charge",
			"description": strings.Repeat("x", size),
		})
	}

	code, resp := s.webhook(charge("evt_large", 256<<10))
	s.Equal(http.StatusOK, code, resp.Message)
	s.True(resp.Success)

	code, resp = s.webhook(charge("evt_huge", 2<<20))
	s.Equal(http.StatusBadRequest, code)
	s.Equal("webhook body could not be read", resp.Message)
}

func (s *routerSuite) TestWebhookUnknownOrderIsSoftFailure() {
	code, resp := s.webhook(testutil.CheckoutCompleted("evt_2", "cs_2", "65f1c2a9e4b0a1b2c3d4e5f6", "pi_2"))
	s.Equal(http.StatusOK, code)
	s.False(resp.Success)
	s.Equal("order not found", resp.Message)
}

func (s *routerSuite) TestOrderAccessRules() {
	service := s.createService("Boutique", 100)
	owner := s.addUser(models.RoleUser)
	other := s.addUser(models.RoleUser)

	code, resp := s.do(http.MethodPost, "/orders", s.tokenFor(owner), gin.H{
		"items": []gin.H{{"serviceId": service.ID.Hex(), "unitAmount": 100, "quantity": 1}},
	})
	s.Require().Equal(http.StatusCreated, code, resp.Message)
	var order models.Order
	s.decode(resp, &order)
	s.Equal(owner.ID, order.UserID)

	code, _ = s.do(http.MethodGet, "/orders/"+order.ID.Hex(), s.tokenFor(other), nil)
	s.Equal(http.StatusForbidden, code)
	code, _ = s.do(http.MethodGet, "/orders/"+order.ID.Hex(), s.adminToken, nil)
	s.Equal(http.StatusOK, code)

	code, resp = s.do(http.MethodGet, "/orders", s.tokenFor(other), nil)
	s.Equal(http.StatusOK, code)
	s.JSONEq(`[]`, string(resp.Data))

	code, _ = s.do(http.MethodPut, "/orders/"+order.ID.Hex(), s.tokenFor(owner), gin.H{"statusPayment": "FULLY_PAID"})
	s.Equal(http.StatusForbidden, code)

	code, _ = s.do(http.MethodDelete, "/orders/"+order.ID.Hex(), s.tokenFor(other), nil)
	s.Equal(http.StatusForbidden, code)
	code, _ = s.do(http.MethodDelete, "/orders/"+order.ID.Hex(), s.tokenFor(owner), nil)
	s.Equal(http.StatusOK, code)
	s.Zero(s.db.ItemCount())
}

func (s *routerSuite) TestCreateOrderRejections() {
	service := s.createService("Logiciel", 50)
	token := s.tokenFor(s.addUser(models.RoleUser))

	code, _ := s.do(http.MethodPost, "/orders", token, gin.H{"statusPayment": "DEPOSIT_PAID"})
	s.Equal(http.StatusForbidden, code)

	code, resp := s.do(http.MethodPost, "/orders", token, gin.H{
		"items": []gin.H{{"serviceId": service.ID.Hex(), "unitAmount": 50, "quantity": 2, "totalAmount": 90}},
	})
	s.Equal(http.StatusBadRequest, code)
	s.Equal([]string{"items[0].totalAmount must equal unitAmount × quantity (100.00)"}, resp.Errors)

	code, _ = s.do(http.MethodPost, "/orders", token, gin.H{
		"items": []gin.H{
			{"serviceId": service.ID.Hex(), "unitAmount": 50, "quantity": 1},
			{"serviceId": "65f1c2a9e4b0a1b2c3d4e5f6", "unitAmount": 10, "quantity": 1},
		},
	})
	s.Equal(http.StatusBadRequest, code)
	s.Zero(s.db.OrderCount())
	s.Zero(s.db.ItemCount())
}

func (s *routerSuite) TestServiceVisibility() {
	active := s.createService("Actif", 10)
	hidden := s.createService("Masqué", 10)
	code, _ := s.do(http.MethodPut, "/services/"+hidden.ID.Hex(), s.adminToken, gin.H{"isActive": false})
	s.Require().Equal(http.StatusOK, code)
	s.False(s.gw.ProductUpdates[*hidden.StripeProductID].Active)

	var list []models.Service
	_, resp := s.do(http.MethodGet, "/services?all=true", "", nil)
	s.decode(resp, &list)
	s.Require().Len(list, 1)
	s.Equal(active.ID, list[0].ID)

	_, resp = s.do(http.MethodGet, "/services?all=true", s.adminToken, nil)
	s.decode(resp, &list)
	s.Len(list, 2)

	code, _ = s.do(http.MethodGet, "/services/"+hidden.ID.Hex(), "", nil)
	s.Equal(http.StatusNotFound, code)
	code, _ = s.do(http.MethodGet, "/services/"+hidden.ID.Hex(), s.adminToken, nil)
	s.Equal(http.StatusOK, code)
}

func (s *routerSuite) TestCreateServiceGatewayFailure() {
	s.gw.ProductErr = errors.New("stripe down")
	code, _ := s.do(http.MethodPost, "/services", s.adminToken, gin.H{
		"name": "Coaching", "description": "Sessions", "basePrice": 80, "type": "COACHING",
	})
	s.Equal(http.StatusBadGateway, code)

	services, err := s.db.Services().List(context.Background(), false)
	s.Require().NoError(err)
	s.Empty(services)
}

func (s *routerSuite) TestAdminRoutesRequireAdmin() {
	token := s.tokenFor(s.addUser(models.RoleUser))
	for _, path := range []string{"/users", "/order-items"} {
		code, _ := s.do(http.MethodGet, path, token, nil)
		s.Equal(http.StatusForbidden, code, path)
		code, _ = s.do(http.MethodGet, path, "", nil)
		s.Equal(http.StatusUnauthorized, code, path)
	}
	code, _ := s.do(http.MethodPost, "/services", token, gin.H{"name": "x"})
	s.Equal(http.StatusForbidden, code)
}

func (s *routerSuite) TestContact() {
	form := gin.H{
		"name":    "Jeanne Martin",
		"email":   "jeanne@example.com",
		"subject": "Site Vitrine",
		"message": "Bonjour, je voudrais un devis.",
	}
	code, _ := s.do(http.MethodPost, "/contact", "", form)
	s.Equal(http.StatusOK, code)
	s.Equal(1, s.notifier.Count("contact"))

	form["subject"] = "Spam"
	code, _ = s.do(http.MethodPost, "/contact", "", form)
	s.Equal(http.StatusBadRequest, code)

	form["subject"] = "Autre"
	s.notifier.Err = errors.New("smtp down")
	code, _ = s.do(http.MethodPost, "/contact", "", form)
	s.Equal(http.StatusBadGateway, code)
}

func (s *routerSuite) TestHealth() {
	code, _ := s.do(http.MethodGet, "/health", "", nil)
	s.Equal(http.StatusOK, code)

	s.pingErr = errors.New("no primary")
	code, resp := s.do(http.MethodGet, "/health", "", nil)
	s.Equal(http.StatusServiceUnavailable, code)
	s.False(resp.Success)
}

func (s *routerSuite) TestUsersAdministration() {
	body := gin.H{
		"email":     "Staff@Example.com",
		"role":      "USER",
		"firstName": "Paul",
		"lastName":  "Durand",
		"password":  "Str0ng!Pass",
	}
	code, resp := s.do(http.MethodPost, "/users", s.adminToken, body)
	s.Require().Equal(http.StatusCreated, code, resp.Message)
	s.NotContains(string(resp.Data), "Str0ng!Pass")
	var user models.User
	s.decode(resp, &user)
	s.Equal("staff@example.com", user.Email)
	s.Nil(user.StripeCustomerID)

	code, _ = s.do(http.MethodPost, "/users", s.adminToken, body)
	s.Equal(http.StatusConflict, code)

	code, resp = s.do(http.MethodPut, "/users/"+user.ID.Hex(), s.adminToken, gin.H{"role": "DISABLED"})
	s.Require().Equal(http.StatusOK, code)
	s.decode(resp, &user)
	s.Equal(models.RoleDisabled, user.Role)

	code, _ = s.do(http.MethodPut, "/users/"+user.ID.Hex(), s.adminToken, gin.H{})
	s.Equal(http.StatusBadRequest, code)

	code, _ = s.do(http.MethodDelete, "/users/"+user.ID.Hex(), s.adminToken, nil)
	s.Equal(http.StatusOK, code)
	code, _ = s.do(http.MethodGet, "/users/"+user.ID.Hex(), s.adminToken, nil)
	s.Equal(http.StatusNotFound, code)
	code, _ = s.do(http.MethodGet, "/users/not-an-id", s.adminToken, nil)
	s.Equal(http.StatusBadRequest, code)
}

func (s *routerSuite) TestOrderItemTotalsFollowUpdates() {
	service := s.createService("Maintenance", 15)
	owner := s.addUser(models.RoleUser)
	code, resp := s.do(http.MethodPost, "/orders", s.adminToken, gin.H{"userId": owner.ID.Hex()})
	s.Require().Equal(http.StatusCreated, code, resp.Message)
	var order models.Order
	s.decode(resp, &order)
	s.Equal(owner.ID, order.UserID)

	code, resp = s.do(http.MethodPost, "/order-items", s.adminToken, gin.H{
		"orderId": order.ID.Hex(), "serviceId": service.ID.Hex(), "unitAmount": 15, "quantity": 2,
	})
	s.Require().Equal(http.StatusCreated, code, resp.Message)
	var item models.OrderItem
	s.decode(resp, &item)
	s.Equal(30.0, item.TotalAmount)

	code, resp = s.do(http.MethodPut, "/order-items/"+item.ID.Hex(), s.adminToken, gin.H{"quantity": 3})
	s.Require().Equal(http.StatusOK, code, resp.Message)
	s.decode(resp, &item)
	s.Equal(45.0, item.TotalAmount)

	code, resp = s.do(http.MethodGet, "/order-items?orderId="+order.ID.Hex(), s.adminToken, nil)
	s.Require().Equal(http.StatusOK, code)
	var items []models.OrderItem
	s.decode(resp, &items)
	s.Len(items, 1)
}

type deadlineCheckout struct {
	remaining time.Duration
}

func (d *deadlineCheckout) CreateCheckoutSession(ctx context.Context, _ *models.User, _ payment.CheckoutRequest) (*payment.CheckoutResult, error) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return nil, errors.New("no deadline")
	}
	d.remaining = time.Until(deadline)
	return &payment.CheckoutResult{SessionID: "cs_deadline"}, nil
}

func (s *routerSuite) TestGatewayRoutesOutlastGatewayTimeout() {
	checkout := &deadlineCheckout{}
	deps := s.deps
	deps.Checkout = checkout
	deps.Metrics = metrics.New(prometheus.NewRegistry())
	deps.GatewayTimeout = 10 * time.Second
	s.router = NewRouter(deps)

	token := s.tokenFor(s.addUser(models.RoleUser))
	code, resp := s.do(http.MethodPost, "/payments/create-checkout-session", token, gin.H{"orderId": "64b7f0c2a1b2c3d4e5f60718"})
	s.Require().Equal(http.StatusOK, code, resp.Message)
	s.Greater(checkout.remaining, deps.GatewayTimeout)

	// A short gateway timeout never drops below the default deadline.
	deps.GatewayTimeout = time.Second
	s.router = NewRouter(deps)
	code, _ = s.do(http.MethodPost, "/payments/create-checkout-session", token, gin.H{"orderId": "64b7f0c2a1b2c3d4e5f60718"})
	s.Require().Equal(http.StatusOK, code)
	s.Greater(checkout.remaining, 4*time.Second)
}
