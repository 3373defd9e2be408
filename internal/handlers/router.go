package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"agency-backend/internal/metrics"
	"agency-backend/internal/middleware"
	"agency-backend/internal/validation"
)

// Authenticator resolves bearer tokens and serves the auth endpoints.
type Authenticator interface {
	AuthService
	middleware.Authenticator
}

// Deps is everything the HTTP surface needs.
type Deps struct {
	Auth       Authenticator
	Users      UserStore
	Orders     OrderStore
	OrderItems OrderItemStore
	Catalog    Catalog
	Checkout   CheckoutCreator
	Webhooks   WebhookHandler
	Contact    ContactSender
	Metrics    *metrics.ServerMetrics
	Ping       func(context.Context) error
	UploadDir  string

	// GatewayTimeout is the payment gateway's HTTP timeout.
	GatewayTimeout time.Duration
}

func NewRouter(deps Deps) *gin.Engine {
	validation.Setup()

	r := gin.New()
	r.Use(gin.Recovery(), deps.Metrics.Middleware())

	r.GET("/health", Health(deps.Ping))
	r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))

	protect := middleware.Protect(deps.Auth)
	admin := []gin.HandlerFunc{protect, middleware.RequireAdmin()}
	slow := gatewayDeadline(deps.GatewayTimeout)

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/register", slow, Register(deps.Auth))
		authGroup.POST("/login", Login(deps.Auth))
		authGroup.POST("/refresh-token", RefreshToken(deps.Auth))
		authGroup.POST("/logout", Logout(deps.Auth))
		authGroup.POST("/send-verification-mail", SendVerificationMail(deps.Auth))
		authGroup.GET("/verify-email", VerifyEmail(deps.Auth))
		authGroup.GET("/profile", protect, GetProfile())
		authGroup.PUT("/profile", protect, UpdateProfile(deps.Auth))
	}

	users := r.Group("/users", admin...)
	{
		users.GET("", ListUsers(deps.Users))
		users.POST("", CreateUser(deps.Users))
		users.GET("/:id", GetUser(deps.Users))
		users.PUT("/:id", UpdateUser(deps.Users))
		users.DELETE("/:id", DeleteUser(deps.Users))
	}

	orders := r.Group("/orders", protect)
	{
		orders.GET("", ListOrders(deps.Orders))
		orders.POST("", CreateOrder(deps.Orders))
		orders.GET("/:id", GetOrder(deps.Orders))
		orders.PUT("/:id", middleware.RequireAdmin(), UpdateOrder(deps.Orders))
		orders.DELETE("/:id", DeleteOrder(deps.Orders))
	}

	items := r.Group("/order-items", admin...)
	{
		items.GET("", ListOrderItems(deps.OrderItems))
		items.POST("", CreateOrderItem(deps.OrderItems))
		items.GET("/:id", GetOrderItem(deps.OrderItems))
		items.PUT("/:id", UpdateOrderItem(deps.OrderItems))
		items.DELETE("/:id", DeleteOrderItem(deps.OrderItems))
	}

	services := r.Group("/services")
	{
		identify := middleware.Identify(deps.Auth)
		services.GET("", identify, ListServices(deps.Catalog))
		services.GET("/:id", identify, GetService(deps.Catalog))
		services.POST("", append(admin, slow, CreateService(deps.Catalog))...)
		services.PUT("/:id", append(admin, slow, UpdateService(deps.Catalog))...)
		services.DELETE("/:id", append(admin, slow, DeleteService(deps.Catalog))...)
	}

	r.POST("/payments/create-checkout-session", protect, slow, CreateCheckoutSession(deps.Checkout))
	r.POST("/webhooks/webhook", GatewayWebhook(deps.Webhooks, deps.Metrics))
	r.POST("/upload/image", append(admin, UploadImage(deps.UploadDir))...)
	r.POST("/contact", Contact(deps.Contact))

	return r
}
