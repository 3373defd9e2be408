package payment

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"agency-backend/internal/apperr"
	"agency-backend/internal/events"
	"agency-backend/internal/gateway"
	"agency-backend/internal/logging"
	"agency-backend/internal/models"
	"agency-backend/internal/store"
)

// CheckoutSessionPlaceholder is replaced by the gateway with the session id.
const CheckoutSessionPlaceholder = "{CHECKOUT_SESSION_ID}"

type CheckoutRequest struct {
	OrderID        primitive.ObjectID
	IdempotencyKey string
}

type CheckoutResult struct {
	SessionID  string             `json:"sessionId"`
	SessionURL string             `json:"sessionUrl"`
	LineItems  []gateway.LineItem `json:"lineItems"`
}

// CreateCheckoutSession opens a gateway checkout for the caller's order. The
// order keeps PENDING_DEPOSIT; only the session id is attached.
func (c *Controller) CreateCheckoutSession(ctx context.Context, caller *models.User, req CheckoutRequest) (*CheckoutResult, error) {
	start := time.Now()
	if !caller.HasPaymentCustomer() {
		return nil, apperr.BadRequest("payment gateway not configured for this user")
	}

	header, err := c.orders.GetByID(ctx, req.OrderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("order not found")
	}
	if err != nil {
		return nil, apperr.Internal("order lookup failed", err)
	}
	if !header.OwnedBy(caller.ID) && !caller.IsAdmin() {
		return nil, apperr.Forbidden("not allowed to pay for this order")
	}
	if header.StatusPayment != models.PaymentPendingDeposit {
		return nil, apperr.Conflict("order is not awaiting its deposit")
	}

	order, err := c.orders.GetDetailed(ctx, req.OrderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("order not found")
	}
	if err != nil {
		return nil, apperr.Internal("order lookup failed", err)
	}
	if len(order.Items) == 0 {
		return nil, apperr.BadRequest("order has no items")
	}

	lineItems := c.lineItems(order.Items)
	orderID := order.ID.Hex()
	session, err := c.gateway.CreateCheckoutSession(ctx, gateway.CheckoutSessionInput{
		CustomerID:     *caller.StripeCustomerID,
		OrderID:        orderID,
		LineItems:      lineItems,
		SuccessURL:     c.opts.FrontendURL + "/payment/success?session_id=" + CheckoutSessionPlaceholder,
		CancelURL:      c.opts.FrontendURL + "/payment/cancel",
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		c.trace(logging.Fields{OrderID: orderID, Step: "checkout", Status: "gateway_error", Message: err.Error()})
		return nil, apperr.Upstream("checkout session creation failed", err)
	}

	if _, err := c.orders.AttachCheckoutSession(ctx, order.ID, session.ID); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil, apperr.NotFound("order not found")
		case errors.Is(err, store.ErrStateConflict):
			return nil, apperr.Conflict("order is not awaiting its deposit")
		default:
			return nil, apperr.Internal("order update failed", err)
		}
	}

	c.trace(logging.Fields{
		OrderID:    orderID,
		UserID:     caller.ID.Hex(),
		SessionID:  session.ID,
		Step:       "checkout",
		Status:     "session_created",
		DurationMS: logging.Since(start),
	})
	c.publish(ctx, events.New(events.TypeCheckoutSessionCreated, orderID, order.UserID.Hex(), map[string]any{
		"sessionId": session.ID,
		"lineItems": len(lineItems),
	}))

	return &CheckoutResult{SessionID: session.ID, SessionURL: session.URL, LineItems: lineItems}, nil
}

func (c *Controller) lineItems(items []models.OrderItem) []gateway.LineItem {
	out := make([]gateway.LineItem, 0, len(items))
	for _, item := range items {
		line := gateway.LineItem{
			Name:       "Service " + item.ServiceID.Hex(),
			Currency:   c.opts.Currency,
			UnitAmount: gateway.MinorUnits(item.UnitAmount),
			Quantity:   int64(item.Quantity),
		}
		if item.Service != nil {
			line.Name = item.Service.Name
			line.Description = item.Service.Description
		}
		out = append(out, line)
	}
	return out
}
