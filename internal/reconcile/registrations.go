// Package reconcile repairs registrations whose gateway customer step never
// finished.
package reconcile

import (
	"context"
	"errors"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"agency-backend/internal/auth"
	"agency-backend/internal/gateway"
	"agency-backend/internal/models"
	"agency-backend/internal/store"
)

const (
	defaultMaxAttempts = 5
	batchSize          = 100
)

type IntentStore interface {
	ListStale(ctx context.Context, olderThan time.Time, limit int64) ([]models.RegistrationIntent, error)
	SetStatus(ctx context.Context, id primitive.ObjectID, status models.IntentStatus, lastError string) error
	RecordAttempt(ctx context.Context, id primitive.ObjectID, lastError string) error
}

type UserStore interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	SetStripeCustomerID(ctx context.Context, id primitive.ObjectID, customerID string) error
	Delete(ctx context.Context, id primitive.ObjectID) error
}

type CustomerGateway interface {
	CreateCustomer(ctx context.Context, in gateway.CustomerInput) (string, error)
}

// Report counts what one pass did.
type Report struct {
	Scanned     int `json:"scanned"`
	Completed   int `json:"completed"`
	Compensated int `json:"compensated"`
	Retrying    int `json:"retrying"`
	Failed      int `json:"failed"`
}

type Registrations struct {
	intents     IntentStore
	users       UserStore
	customers   CustomerGateway
	grace       time.Duration
	maxAttempts int
	now         func() time.Time
}

func NewRegistrations(intents IntentStore, users UserStore, customers CustomerGateway, grace time.Duration, maxAttempts int) *Registrations {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Registrations{
		intents:     intents,
		users:       users,
		customers:   customers,
		grace:       grace,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

// Run handles every PENDING intent older than the grace period. Errors on a
// single intent are counted and logged; only a failed scan aborts the pass.
func (r *Registrations) Run(ctx context.Context) (Report, error) {
	var report Report
	stale, err := r.intents.ListStale(ctx, r.now().Add(-r.grace), batchSize)
	if err != nil {
		return report, err
	}

	for _, intent := range stale {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		report.Scanned++
		status, err := r.repair(ctx, intent)
		if err != nil {
			report.Failed++
			log.Printf("[RECONCILE] [ERROR] intent %s: %v", intent.ID.Hex(), err)
			continue
		}
		switch status {
		case models.IntentCompleted:
			report.Completed++
		case models.IntentCompensated:
			report.Compensated++
		default:
			report.Retrying++
		}
	}

	if report.Scanned > 0 {
		log.Printf("[RECONCILE] [INFO] scanned=%d completed=%d compensated=%d retrying=%d failed=%d",
			report.Scanned, report.Completed, report.Compensated, report.Retrying, report.Failed)
	}
	return report, nil
}

func (r *Registrations) repair(ctx context.Context, intent models.RegistrationIntent) (models.IntentStatus, error) {
	user, err := r.users.GetByID(ctx, intent.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return models.IntentCompensated, r.intents.SetStatus(ctx, intent.ID, models.IntentCompensated, "user no longer exists")
	}
	if err != nil {
		return "", err
	}
	if user.HasPaymentCustomer() {
		return models.IntentCompleted, r.intents.SetStatus(ctx, intent.ID, models.IntentCompleted, "")
	}

	customerID, err := r.customers.CreateCustomer(ctx, gateway.CustomerInput{
		Email:          user.Email,
		Name:           user.FullName(),
		Phone:          user.Phone,
		UserID:         user.ID.Hex(),
		IdempotencyKey: auth.CustomerIdempotencyKey(intent.ID),
	})
	if err != nil {
		if intent.Attempts+1 >= r.maxAttempts {
			if delErr := r.users.Delete(ctx, user.ID); delErr != nil && !errors.Is(delErr, store.ErrNotFound) {
				return "", delErr
			}
			log.Printf("[RECONCILE] [INFO] giving up on %s after %d attempts", user.Email, intent.Attempts+1)
			return models.IntentCompensated, r.intents.SetStatus(ctx, intent.ID, models.IntentCompensated, err.Error())
		}
		return models.IntentPending, r.intents.RecordAttempt(ctx, intent.ID, err.Error())
	}

	if err := r.users.SetStripeCustomerID(ctx, user.ID, customerID); err != nil {
		return "", err
	}
	return models.IntentCompleted, r.intents.SetStatus(ctx, intent.ID, models.IntentCompleted, "")
}

// Every runs the job until ctx is done.
func (r *Registrations) Every(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("[RECONCILE] [ERROR] pass failed: %v", err)
			}
		}
	}
}
