package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"

	"agency-backend/internal/config"
)

const metadataOrderID = "orderId"

// Stripe talks to the Stripe API through an explicitly constructed client.
// Nothing here touches the SDK's package-level key or backends.
type Stripe struct {
	api           *client.API
	webhookSecret string
}

func NewStripe(cfg config.StripeConfig) *Stripe {
	return newStripe(cfg, "")
}

// newStripe points the API backend at apiURL when set; tests use it to talk
// to an httptest server.
func newStripe(cfg config.StripeConfig, apiURL string) *Stripe {
	httpClient := &http.Client{Timeout: cfg.Timeout}
	backendConfig := &stripe.BackendConfig{HTTPClient: httpClient}
	if apiURL != "" {
		backendConfig.URL = stripe.String(apiURL)
		backendConfig.MaxNetworkRetries = stripe.Int64(0)
	}

	backends := &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, &stripe.BackendConfig{HTTPClient: httpClient}),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, &stripe.BackendConfig{HTTPClient: httpClient}),
	}

	return &Stripe{
		api:           client.New(cfg.SecretKey, backends),
		webhookSecret: cfg.WebhookSecret,
	}
}

func (s *Stripe) CreateCustomer(ctx context.Context, in CustomerInput) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(in.Email),
		Name:  stripe.String(in.Name),
	}
	if in.Phone != "" {
		params.Phone = stripe.String(in.Phone)
	}
	if in.UserID != "" {
		params.AddMetadata("userId", in.UserID)
	}
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}
	params.Context = ctx

	customer, err := s.api.Customers.New(params)
	if err != nil {
		log.Printf("[STRIPE] [ERROR] create customer for %s failed: %v", in.Email, err)
		return "", fmt.Errorf("create customer: %w", err)
	}
	return customer.ID, nil
}

func (s *Stripe) CreateProduct(ctx context.Context, in ProductInput) (string, error) {
	params := &stripe.ProductParams{
		Name:   stripe.String(in.Name),
		Active: stripe.Bool(in.Active),
	}
	if in.Description != "" {
		params.Description = stripe.String(in.Description)
	}
	if in.Currency != "" {
		params.DefaultPriceData = &stripe.ProductDefaultPriceDataParams{
			Currency:   stripe.String(in.Currency),
			UnitAmount: stripe.Int64(in.UnitAmount),
		}
	}
	params.Context = ctx

	product, err := s.api.Products.New(params)
	if err != nil {
		log.Printf("[STRIPE] [ERROR] create product %q failed: %v", in.Name, err)
		return "", fmt.Errorf("create product: %w", err)
	}
	return product.ID, nil
}

// UpdateProduct mirrors name, description and active flag. Prices are
// immutable on the provider side and are not touched.
func (s *Stripe) UpdateProduct(ctx context.Context, productID string, in ProductInput) error {
	params := &stripe.ProductParams{
		Name:   stripe.String(in.Name),
		Active: stripe.Bool(in.Active),
	}
	if in.Description != "" {
		params.Description = stripe.String(in.Description)
	}
	params.Context = ctx

	if _, err := s.api.Products.Update(productID, params); err != nil {
		log.Printf("[STRIPE] [ERROR] update product %s failed: %v", productID, err)
		return fmt.Errorf("update product: %w", err)
	}
	return nil
}

func (s *Stripe) CreateCheckoutSession(ctx context.Context, in CheckoutSessionInput) (*CheckoutSession, error) {
	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(in.LineItems))
	for _, item := range in.LineItems {
		product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(item.Name),
		}
		if item.Description != "" {
			product.Description = stripe.String(item.Description)
		}
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(item.Currency),
				ProductData: product,
				UnitAmount:  stripe.Int64(item.UnitAmount),
			},
			Quantity: stripe.Int64(item.Quantity),
		})
	}

	params := &stripe.CheckoutSessionParams{
		Customer:   stripe.String(in.CustomerID),
		LineItems:  lineItems,
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(in.SuccessURL),
		CancelURL:  stripe.String(in.CancelURL),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{metadataOrderID: in.OrderID},
		},
	}
	params.AddMetadata(metadataOrderID, in.OrderID)
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}
	params.Context = ctx

	session, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		log.Printf("[STRIPE] [ERROR] create checkout session for order %s failed: %v", in.OrderID, err)
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

// ConstructEvent verifies signature against the raw payload and decodes the
// event types the backend handles. Any verification failure is reported as
// ErrInvalidSignature.
func (s *Stripe) ConstructEvent(payload []byte, signature string) (*Event, error) {
	raw, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		log.Printf("[STRIPE] [ERROR] webhook verification failed: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	event := &Event{ID: raw.ID, Type: string(raw.Type)}
	if raw.Data == nil {
		return event, nil
	}

	switch raw.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(raw.Data.Raw, &session); err != nil {
			return nil, fmt.Errorf("decode checkout session: %w", err)
		}
		completed := &CompletedSession{ID: session.ID, OrderID: session.Metadata[metadataOrderID]}
		if session.PaymentIntent != nil {
			completed.PaymentIntentID = session.PaymentIntent.ID
		}
		event.CheckoutSession = completed

	case stripe.EventTypePaymentIntentPaymentFailed:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(raw.Data.Raw, &intent); err != nil {
			return nil, fmt.Errorf("decode payment intent: %w", err)
		}
		failed := &FailedPaymentIntent{ID: intent.ID, OrderID: intent.Metadata[metadataOrderID]}
		if intent.LastPaymentError != nil {
			failed.FailureMessage = intent.LastPaymentError.Msg
			failed.FailureCode = string(intent.LastPaymentError.Code)
			if intent.LastPaymentError.DeclineCode != "" {
				failed.FailureCode = string(intent.LastPaymentError.DeclineCode)
			}
		}
		event.PaymentIntent = failed

	case stripe.EventTypeChargeSucceeded:
		var charge stripe.Charge
		if err := json.Unmarshal(raw.Data.Raw, &charge); err != nil {
			return nil, fmt.Errorf("decode charge: %w", err)
		}
		event.ChargeID = charge.ID
	}

	return event, nil
}
