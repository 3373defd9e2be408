package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/stripe/stripe-go/v82/webhook"

	"agency-backend/internal/config"
	"agency-backend/internal/gateway"
)

const WebhookSecret = "whsec_testutil"

// Gateway records outbound calls and verifies webhooks with the real Stripe
// signature code, so tests sign payloads exactly as the provider does.
type Gateway struct {
	mu       sync.Mutex
	verifier *gateway.Stripe

	CustomerErr error
	ProductErr  error
	CheckoutErr error

	// CustomerHangs makes CreateCustomer wait for its context, like a
	// provider that never answers.
	CustomerHangs bool

	Customers      []gateway.CustomerInput
	Products       []gateway.ProductInput
	ProductUpdates map[string]gateway.ProductInput
	Sessions       []gateway.CheckoutSessionInput

	customerByKey map[string]string
	seq           int
}

func NewGateway() *Gateway {
	return &Gateway{
		verifier:       gateway.NewStripe(config.StripeConfig{SecretKey: "sk_test_unused", WebhookSecret: WebhookSecret, Timeout: time.Second}),
		ProductUpdates: map[string]gateway.ProductInput{},
		customerByKey:  map[string]string{},
	}
}

func (g *Gateway) next(prefix string) string {
	g.seq++
	return fmt.Sprintf("%s_test_%d", prefix, g.seq)
}

// CreateCustomer honors idempotency keys the way the provider does.
func (g *Gateway) CreateCustomer(ctx context.Context, in gateway.CustomerInput) (string, error) {
	g.mu.Lock()
	hangs := g.CustomerHangs
	g.mu.Unlock()
	if hangs {
		<-ctx.Done()
		return "", ctx.Err()
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.Customers = append(g.Customers, in)
	if g.CustomerErr != nil {
		return "", g.CustomerErr
	}
	if id, ok := g.customerByKey[in.IdempotencyKey]; ok && in.IdempotencyKey != "" {
		return id, nil
	}
	id := g.next("cus")
	if in.IdempotencyKey != "" {
		g.customerByKey[in.IdempotencyKey] = id
	}
	return id, nil
}

func (g *Gateway) CreateProduct(_ context.Context, in gateway.ProductInput) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ProductErr != nil {
		return "", g.ProductErr
	}
	g.Products = append(g.Products, in)
	return g.next("prod"), nil
}

func (g *Gateway) UpdateProduct(_ context.Context, productID string, in gateway.ProductInput) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ProductErr != nil {
		return g.ProductErr
	}
	g.ProductUpdates[productID] = in
	return nil
}

func (g *Gateway) CreateCheckoutSession(_ context.Context, in gateway.CheckoutSessionInput) (*gateway.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.CheckoutErr != nil {
		return nil, g.CheckoutErr
	}
	g.Sessions = append(g.Sessions, in)
	id := g.next("cs")
	return &gateway.CheckoutSession{ID: id, URL: "https://checkout.test/" + id}, nil
}

func (g *Gateway) ConstructEvent(payload []byte, signature string) (*gateway.Event, error) {
	return g.verifier.ConstructEvent(payload, signature)
}

func (g *Gateway) SessionCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Sessions)
}

func (g *Gateway) LastSession() gateway.CheckoutSessionInput {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Sessions[len(g.Sessions)-1]
}

// StripeEvent builds a provider-shaped event body around object.
func StripeEvent(id, eventType string, object map[string]any) []byte {
	data, err := json.Marshal(map[string]any{
		"id":     id,
		"object": "event",
		"type":   eventType,
		"data":   map[string]any{"object": object},
	})
	if err != nil {
		panic(err)
	}
	return data
}

func CheckoutCompleted(eventID, sessionID, orderID, paymentIntentID string) []byte {
	return StripeEvent(eventID, gateway.EventCheckoutSessionCompleted, map[string]any{
		"id":             sessionID,
		"object":         "checkout.session",
		"payment_intent": paymentIntentID,
		"metadata":       map[string]string{"orderId": orderID},
	})
}

func PaymentFailed(eventID, paymentIntentID, code, message string) []byte {
	return PaymentFailedForOrder(eventID, paymentIntentID, "", code, message)
}

// PaymentFailedForOrder carries the orderId metadata checkout copies onto
// the payment intent.
func PaymentFailedForOrder(eventID, paymentIntentID, orderID, code, message string) []byte {
	object := map[string]any{
		"id":     paymentIntentID,
		"object": "payment_intent",
		"last_payment_error": map[string]string{
			"code":    code,
			"message": message,
		},
	}
	if orderID != "" {
		object["metadata"] = map[string]string{"orderId": orderID}
	}
	return StripeEvent(eventID, gateway.EventPaymentIntentPaymentFailed, object)
}

// Sign returns a valid Stripe-Signature header for payload.
func Sign(payload []byte) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    WebhookSecret,
		Timestamp: time.Now(),
	}).Header
}
