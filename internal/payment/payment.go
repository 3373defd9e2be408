// Package payment drives an order's payment status: it opens checkout
// sessions and applies the gateway's webhook events to orders.
package payment

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"agency-backend/internal/events"
	"agency-backend/internal/gateway"
	"agency-backend/internal/logging"
	"agency-backend/internal/models"
)

const component = "payment"

type OrderStore interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error)
	GetDetailed(ctx context.Context, id primitive.ObjectID) (*models.Order, error)
	AttachCheckoutSession(ctx context.Context, id primitive.ObjectID, sessionID string) (*models.Order, error)
	MarkDepositPaid(ctx context.Context, id primitive.ObjectID, paymentIntentID string) (*models.Order, bool, error)
	RecordPaymentFailure(ctx context.Context, paymentIntentID, reason string) (*models.Order, bool, error)
	RecordPaymentFailureForOrder(ctx context.Context, id primitive.ObjectID, reason string) (*models.Order, bool, error)
}

type UserStore interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
}

type Gateway interface {
	CreateCheckoutSession(ctx context.Context, in gateway.CheckoutSessionInput) (*gateway.CheckoutSession, error)
	ConstructEvent(payload []byte, signature string) (*gateway.Event, error)
}

type EventStore interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Record(ctx context.Context, event models.WebhookEvent) error
}

type Notifier interface {
	SendPaymentConfirmation(ctx context.Context, user models.User, order models.Order) error
	SendPaymentFailure(ctx context.Context, user models.User, order models.Order, reason string) error
}

type Options struct {
	// Currency is an ISO 4217 code, lower case.
	Currency    string
	FrontendURL string
	// SideEffectTimeout bounds each best-effort email or event publish.
	SideEffectTimeout time.Duration
}

type Controller struct {
	orders    OrderStore
	users     UserStore
	gateway   Gateway
	events    EventStore
	notifier  Notifier
	publisher events.Publisher
	opts      Options
}

func NewController(orders OrderStore, users UserStore, gw Gateway, seen EventStore, notifier Notifier, publisher events.Publisher, opts Options) *Controller {
	if opts.SideEffectTimeout <= 0 {
		opts.SideEffectTimeout = 10 * time.Second
	}
	return &Controller{
		orders:    orders,
		users:     users,
		gateway:   gw,
		events:    seen,
		notifier:  notifier,
		publisher: publisher,
		opts:      opts,
	}
}

// publish never fails the caller; lifecycle events are informational.
func (c *Controller) publish(ctx context.Context, event events.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.SideEffectTimeout)
	defer cancel()

	if err := c.publisher.Publish(ctx, event); err != nil {
		log.Printf("[PAYMENT] [ERROR] publish %s for order %s failed: %v", event.Type, event.OrderID, err)
	}
}

func (c *Controller) trace(fields logging.Fields) {
	fields.Component = component
	logging.Log(fields)
}
