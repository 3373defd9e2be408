package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type IntentStatus string

const (
	IntentPending     IntentStatus = "PENDING"
	IntentCompleted   IntentStatus = "COMPLETED"
	IntentCompensated IntentStatus = "COMPENSATED"
)

// RegistrationIntent records the register saga between the user insert and
// the gateway customer creation so a repair job can finish or undo it.
type RegistrationIntent struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    primitive.ObjectID `bson:"userId" json:"userId"`
	Email     string             `bson:"email" json:"email"`
	Status    IntentStatus       `bson:"status" json:"status"`
	Attempts  int                `bson:"attempts" json:"attempts"`
	LastError string             `bson:"lastError,omitempty" json:"lastError,omitempty"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// WebhookEvent marks a gateway event id as processed.
type WebhookEvent struct {
	ID          string    `bson:"_id" json:"id"`
	Type        string    `bson:"type" json:"type"`
	OrderID     string    `bson:"orderId,omitempty" json:"orderId,omitempty"`
	Outcome     string    `bson:"outcome" json:"outcome"`
	ProcessedAt time.Time `bson:"processedAt" json:"processedAt"`
}
