package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type OrderStatus string

const (
	OrderNew        OrderStatus = "NEW"
	OrderValidated  OrderStatus = "VALIDATED"
	OrderInProgress OrderStatus = "IN_PROGRESS"
	OrderCompleted  OrderStatus = "COMPLETED"
	OrderArchived   OrderStatus = "ARCHIVED"
)

// PaymentStatus tracks the deposit/final payment phases of an order.
// PENDING_FINAL and FULLY_PAID have no gateway-driven transition yet.
type PaymentStatus string

const (
	PaymentPendingDeposit PaymentStatus = "PENDING_DEPOSIT"
	PaymentDepositPaid    PaymentStatus = "DEPOSIT_PAID"
	PaymentPendingFinal   PaymentStatus = "PENDING_FINAL"
	PaymentFullyPaid      PaymentStatus = "FULLY_PAID"
)

// PaymentStarted reports whether money has moved for the order.
func (s PaymentStatus) PaymentStarted() bool {
	return s != "" && s != PaymentPendingDeposit
}

// OrderItem is one priced line within an order.
type OrderItem struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UnitAmount  float64            `bson:"unitAmount" json:"unitAmount"`
	TotalAmount float64            `bson:"totalAmount" json:"totalAmount"`
	Quantity    int                `bson:"quantity" json:"quantity"`
	OrderID     primitive.ObjectID `bson:"orderId" json:"orderId"`
	ServiceID   primitive.ObjectID `bson:"serviceId" json:"serviceId"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`

	Service *Service `bson:"-" json:"service,omitempty"`
}

// Order defines the persisted order document. Items are stored in their own
// collection and only populated on nested reads.
type Order struct {
	ID                    primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	StatusMain            OrderStatus        `bson:"statusMain" json:"statusMain"`
	StatusPayment         PaymentStatus      `bson:"statusPayment" json:"statusPayment"`
	TotalAmount           float64            `bson:"totalAmount" json:"totalAmount"`
	DepositAmount         float64            `bson:"depositAmount" json:"depositAmount"`
	DeadlineDate          *time.Time         `bson:"deadlineDate,omitempty" json:"deadlineDate,omitempty"`
	UserID                primitive.ObjectID `bson:"userId" json:"userId"`
	StripeSessionID       *string            `bson:"stripeSessionId" json:"stripeSessionId"`
	StripePaymentIntentID *string            `bson:"stripePaymentIntentId" json:"stripePaymentIntentId"`
	PaymentError          *string            `bson:"paymentError" json:"paymentError"`
	CreatedAt             time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt             time.Time          `bson:"updatedAt" json:"updatedAt"`

	Items []OrderItem `bson:"-" json:"orderItems,omitempty"`
}

func (o Order) OwnedBy(userID primitive.ObjectID) bool {
	return o.UserID == userID
}
