package payment

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"agency-backend/internal/apperr"
	"agency-backend/internal/events"
	"agency-backend/internal/gateway"
	"agency-backend/internal/logging"
	"agency-backend/internal/models"
	"agency-backend/internal/store"
)

// Webhook outcomes, also used as metric labels.
const (
	OutcomeApplied      = "applied"
	OutcomeNoop         = "noop"
	OutcomeNotFound     = "not_found"
	OutcomeDuplicate    = "duplicate"
	OutcomeAcknowledged = "acknowledged"
	OutcomeRejected     = "rejected"
)

const defaultFailureReason = "payment failed"

// WebhookResult is acknowledged to the gateway with 200. Success is false
// only when the event referenced an order that does not exist.
type WebhookResult struct {
	Success   bool
	Message   string
	Order     *models.Order
	EventID   string
	EventType string
	Outcome   string
}

// HandleWebhook verifies and applies one gateway event. A redelivered event
// id is acknowledged without being dispatched again.
func (c *Controller) HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	if strings.TrimSpace(signature) == "" {
		return nil, apperr.BadRequest("missing gateway signature")
	}

	event, err := c.gateway.ConstructEvent(payload, signature)
	if err != nil {
		if errors.Is(err, gateway.ErrInvalidSignature) {
			return nil, apperr.BadRequest("invalid signature")
		}
		return nil, apperr.Internal("webhook payload could not be decoded", err)
	}

	seen, err := c.events.Seen(ctx, event.ID)
	if err != nil {
		return nil, apperr.Internal("webhook dedupe lookup failed", err)
	}
	if seen {
		c.trace(logging.Fields{EventID: event.ID, EventType: event.Type, Step: "webhook", Status: OutcomeDuplicate})
		return &WebhookResult{
			Success:   true,
			Message:   "event already processed",
			EventID:   event.ID,
			EventType: event.Type,
			Outcome:   OutcomeDuplicate,
		}, nil
	}

	var result *WebhookResult
	switch event.Type {
	case gateway.EventCheckoutSessionCompleted:
		result, err = c.checkoutCompleted(ctx, event)
	case gateway.EventPaymentIntentPaymentFailed:
		result, err = c.paymentFailed(ctx, event)
	case gateway.EventChargeSucceeded:
		c.trace(logging.Fields{EventID: event.ID, EventType: event.Type, Step: "charge", Status: OutcomeAcknowledged, Message: event.ChargeID})
		result = &WebhookResult{Success: true, Message: "charge acknowledged", Outcome: OutcomeAcknowledged}
	default:
		return nil, apperr.BadRequest("unhandled event type: " + event.Type)
	}
	if err != nil {
		return nil, err
	}

	result.EventID = event.ID
	result.EventType = event.Type
	record := models.WebhookEvent{ID: event.ID, Type: event.Type, Outcome: result.Outcome}
	if result.Order != nil {
		record.OrderID = result.Order.ID.Hex()
	}
	if err := c.events.Record(ctx, record); err != nil {
		log.Printf("[PAYMENT] [ERROR] record webhook event %s failed: %v", event.ID, err)
	}
	return result, nil
}

func (c *Controller) checkoutCompleted(ctx context.Context, event *gateway.Event) (*WebhookResult, error) {
	session := event.CheckoutSession
	if session == nil {
		return nil, apperr.BadRequest("checkout session payload missing")
	}

	orderID, err := primitive.ObjectIDFromHex(session.OrderID)
	if err != nil {
		c.trace(logging.Fields{EventID: event.ID, SessionID: session.ID, Step: "deposit_paid", Status: OutcomeNotFound, Message: "missing or malformed orderId metadata"})
		return notFound(), nil
	}

	order, applied, err := c.orders.MarkDepositPaid(ctx, orderID, session.PaymentIntentID)
	if errors.Is(err, store.ErrNotFound) {
		c.trace(logging.Fields{EventID: event.ID, OrderID: session.OrderID, Step: "deposit_paid", Status: OutcomeNotFound})
		return notFound(), nil
	}
	if err != nil {
		return nil, apperr.Internal("order update failed", err)
	}

	if !applied {
		c.trace(logging.Fields{EventID: event.ID, OrderID: session.OrderID, Step: "deposit_paid", Status: OutcomeNoop, Message: string(order.StatusPayment)})
		return &WebhookResult{Success: true, Message: "payment already recorded", Order: order, Outcome: OutcomeNoop}, nil
	}

	c.trace(logging.Fields{EventID: event.ID, OrderID: session.OrderID, SessionID: session.ID, Step: "deposit_paid", Status: OutcomeApplied})
	c.publish(ctx, events.New(events.TypeDepositPaid, session.OrderID, order.UserID.Hex(), map[string]any{
		"sessionId":       session.ID,
		"paymentIntentId": session.PaymentIntentID,
	}))
	c.notifyOwner(ctx, *order, func(ctx context.Context, user models.User) error {
		return c.notifier.SendPaymentConfirmation(ctx, user, *order)
	})

	return &WebhookResult{Success: true, Message: "payment recorded", Order: order, Outcome: OutcomeApplied}, nil
}

func (c *Controller) paymentFailed(ctx context.Context, event *gateway.Event) (*WebhookResult, error) {
	intent := event.PaymentIntent
	if intent == nil || intent.ID == "" {
		return nil, apperr.BadRequest("payment intent payload missing")
	}

	reason := strings.TrimSpace(intent.FailureMessage)
	if reason == "" {
		reason = defaultFailureReason
	}

	order, applied, err := c.orders.RecordPaymentFailure(ctx, intent.ID, reason)
	if errors.Is(err, store.ErrNotFound) {
		// A declined first attempt arrives before any intent is attached to
		// the order; the intent metadata still names it.
		if orderID, parseErr := primitive.ObjectIDFromHex(intent.OrderID); parseErr == nil {
			order, applied, err = c.orders.RecordPaymentFailureForOrder(ctx, orderID, reason)
		}
	}
	if errors.Is(err, store.ErrNotFound) {
		c.trace(logging.Fields{EventID: event.ID, Step: "payment_failed", Status: OutcomeNotFound, Message: intent.ID})
		return notFound(), nil
	}
	if err != nil {
		return nil, apperr.Internal("order update failed", err)
	}

	orderID := order.ID.Hex()
	if !applied {
		c.trace(logging.Fields{EventID: event.ID, OrderID: orderID, Step: "payment_failed", Status: OutcomeNoop})
		return &WebhookResult{Success: true, Message: "payment failure already recorded", Order: order, Outcome: OutcomeNoop}, nil
	}

	c.trace(logging.Fields{EventID: event.ID, OrderID: orderID, Step: "payment_failed", Status: OutcomeApplied, Message: reason})
	c.publish(ctx, events.New(events.TypePaymentFailed, orderID, order.UserID.Hex(), map[string]any{
		"paymentIntentId": intent.ID,
		"reason":          reason,
		"code":            intent.FailureCode,
	}))
	friendly := FriendlyFailureReason(intent.FailureCode, reason)
	c.notifyOwner(ctx, *order, func(ctx context.Context, user models.User) error {
		return c.notifier.SendPaymentFailure(ctx, user, *order, friendly)
	})

	return &WebhookResult{Success: true, Message: "payment failure recorded", Order: order, Outcome: OutcomeApplied}, nil
}

// notifyOwner emails the order's owner. Failures are logged and never reach
// the webhook response.
func (c *Controller) notifyOwner(ctx context.Context, order models.Order, send func(context.Context, models.User) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.SideEffectTimeout)
	defer cancel()

	user, err := c.users.GetByID(ctx, order.UserID)
	if err != nil {
		log.Printf("[PAYMENT] [ERROR] owner lookup for order %s failed: %v", order.ID.Hex(), err)
		return
	}
	start := time.Now()
	if err := send(ctx, *user); err != nil {
		log.Printf("[PAYMENT] [ERROR] email for order %s failed: %v", order.ID.Hex(), err)
		return
	}
	c.trace(logging.Fields{OrderID: order.ID.Hex(), UserID: user.ID.Hex(), Step: "notify", Status: "sent", DurationMS: logging.Since(start)})
}

func notFound() *WebhookResult {
	return &WebhookResult{Success: false, Message: "order not found", Outcome: OutcomeNotFound}
}
