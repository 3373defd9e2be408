package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"agency-backend/internal/middleware"
	"agency-backend/internal/models"
	"agency-backend/internal/payment"
	"agency-backend/internal/validation"
)

type CheckoutCreator interface {
	CreateCheckoutSession(ctx context.Context, caller *models.User, req payment.CheckoutRequest) (*payment.CheckoutResult, error)
}

type checkoutRequest struct {
	OrderID string `json:"orderId" binding:"required,objectid"`
}

// CreateCheckoutSession forwards an optional Idempotency-Key header so a
// retried click reuses the same gateway session.
func CreateCheckoutSession(checkout CheckoutCreator) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /payments/create-checkout-session"
		defer handlePanic(c, route)

		caller, ok := middleware.CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, envelope{Message: "authentication required"})
			return
		}

		var req checkoutRequest
		if err := validation.BindJSON(c, &req); err != nil {
			respondError(c, route, err)
			return
		}
		orderID, err := validation.ParseID(req.OrderID, "orderId")
		if err != nil {
			respondError(c, route, err)
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		result, err := checkout.CreateCheckoutSession(ctx, caller, payment.CheckoutRequest{
			OrderID:        orderID,
			IdempotencyKey: strings.TrimSpace(c.GetHeader("Idempotency-Key")),
		})
		if err != nil {
			respondError(c, route, err)
			return
		}
		respond(c, http.StatusOK, "checkout session created", result)
	}
}
