package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ServiceType string

const (
	ServiceVitrine   ServiceType = "VITRINE"
	ServiceEcommerce ServiceType = "ECOMMERCE"
	ServiceSaaS      ServiceType = "SAAS"
	ServiceCoaching  ServiceType = "COACHING"
)

// Service is a catalog offering mirrored to the payment gateway as a product.
type Service struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name            string             `bson:"name" json:"name"`
	Description     string             `bson:"description" json:"description"`
	BasePrice       float64            `bson:"basePrice" json:"basePrice"`
	Image           string             `bson:"image" json:"image"`
	Type            ServiceType        `bson:"type" json:"type"`
	Features        StringList         `bson:"features" json:"features"`
	IsActive        bool               `bson:"isActive" json:"isActive"`
	StripeProductID *string            `bson:"stripeProductId" json:"stripeProductId"`
	CreatedAt       time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time          `bson:"updatedAt" json:"updatedAt"`
}
