package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleUser     Role = "USER"
	RoleDisabled Role = "DISABLED"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleUser, RoleDisabled:
		return true
	}
	return false
}

// User represents the application account holder. PasswordHash is never
// serialized to JSON.
type User struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email            string             `bson:"email" json:"email"`
	FirstName        string             `bson:"firstName" json:"firstName"`
	LastName         string             `bson:"lastName" json:"lastName"`
	PasswordHash     string             `bson:"password" json:"-"`
	Phone            string             `bson:"phone,omitempty" json:"phone,omitempty"`
	Company          string             `bson:"company,omitempty" json:"company,omitempty"`
	Role             Role               `bson:"role" json:"role"`
	IsMailVerified   bool               `bson:"isMailVerified" json:"isMailVerified"`
	StripeCustomerID *string            `bson:"stripeCustomerId" json:"stripeCustomerId"`
	CreatedAt        time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time          `bson:"updatedAt" json:"updatedAt"`
}

func (u User) FullName() string {
	return u.FirstName + " " + u.LastName
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

func (u User) IsDisabled() bool {
	return u.Role == RoleDisabled
}

// HasPaymentCustomer reports whether the gateway customer was created.
func (u User) HasPaymentCustomer() bool {
	return u.StripeCustomerID != nil && *u.StripeCustomerID != ""
}
