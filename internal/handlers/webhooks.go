package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"agency-backend/internal/apperr"
	"agency-backend/internal/payment"
)

type WebhookHandler interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*payment.WebhookResult, error)
}

// WebhookObserver counts processed deliveries.
type WebhookObserver interface {
	ObserveWebhook(eventType, outcome string)
}

const maxWebhookBody = 1 << 20

// GatewayWebhook reads the raw body before anything parses it; the signature
// covers the exact bytes.
func GatewayWebhook(webhooks WebhookHandler, observer WebhookObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /webhooks/webhook"
		defer handlePanic(c, route)

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
		payload, err := c.GetRawData()
		if err != nil {
			observer.ObserveWebhook("unknown", payment.OutcomeRejected)
			respondError(c, route, apperr.BadRequest("webhook body could not be read"))
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		result, err := webhooks.HandleWebhook(ctx, payload, c.GetHeader("Stripe-Signature"))
		if err != nil {
			observer.ObserveWebhook("unknown", payment.OutcomeRejected)
			respondError(c, route, err)
			return
		}

		observer.ObserveWebhook(result.EventType, result.Outcome)
		c.JSON(http.StatusOK, envelope{Success: result.Success, Message: result.Message})
	}
}
