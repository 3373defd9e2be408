// Package gateway adapts the payment provider SDK to the types the rest of
// the backend works with.
package gateway

import "errors"

// Event types the backend reacts to.
const (
	EventCheckoutSessionCompleted   = "checkout.session.completed"
	EventPaymentIntentPaymentFailed = "payment_intent.payment_failed"
	EventChargeSucceeded            = "charge.succeeded"
)

var ErrInvalidSignature = errors.New("gateway: webhook signature verification failed")

// LineItem is one priced entry submitted to a checkout session. UnitAmount is
// in minor currency units.
type LineItem struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Currency    string `json:"currency"`
	UnitAmount  int64  `json:"unit_amount"`
	Quantity    int64  `json:"quantity"`
}

type CheckoutSessionInput struct {
	CustomerID     string
	OrderID        string
	LineItems      []LineItem
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
}

type CheckoutSession struct {
	ID  string
	URL string
}

type CustomerInput struct {
	Email          string
	Name           string
	Phone          string
	UserID         string
	IdempotencyKey string
}

type ProductInput struct {
	Name        string
	Description string
	Active      bool
	// UnitAmount and Currency set the default price on creation only.
	UnitAmount int64
	Currency   string
}

// CompletedSession carries what checkout.session.completed reports.
type CompletedSession struct {
	ID              string
	OrderID         string
	PaymentIntentID string
}

// FailedPaymentIntent carries what payment_intent.payment_failed reports.
type FailedPaymentIntent struct {
	ID             string
	OrderID        string
	FailureMessage string
	FailureCode    string
}

// Event is a verified webhook event. Only the field matching Type is set;
// types the backend does not parse carry ID and Type alone.
type Event struct {
	ID              string
	Type            string
	CheckoutSession *CompletedSession
	PaymentIntent   *FailedPaymentIntent
	ChargeID        string
}
