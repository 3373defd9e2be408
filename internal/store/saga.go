package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"agency-backend/internal/database"
	"agency-backend/internal/models"
)

// RegistrationIntentStore is the saga log of the register flow.
type RegistrationIntentStore struct {
	coll *mongo.Collection
}

func NewRegistrationIntentStore(db *mongo.Database) *RegistrationIntentStore {
	return &RegistrationIntentStore{coll: db.Collection(database.CollectionRegistrationIntents)}
}

func (s *RegistrationIntentStore) Create(ctx context.Context, intent *models.RegistrationIntent) error {
	now := time.Now().UTC()
	intent.Status = models.IntentPending
	intent.CreatedAt = now
	intent.UpdatedAt = now

	res, err := s.coll.InsertOne(ctx, intent)
	if err != nil {
		return mapErr(err)
	}
	intent.ID = res.InsertedID.(primitive.ObjectID)
	return nil
}

func (s *RegistrationIntentStore) SetStatus(ctx context.Context, id primitive.ObjectID, status models.IntentStatus, lastError string) error {
	set := bson.M{"status": status, "updatedAt": time.Now().UTC()}
	if lastError != "" {
		set["lastError"] = lastError
	}
	res, err := s.coll.UpdateByID(ctx, id, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RegistrationIntentStore) RecordAttempt(ctx context.Context, id primitive.ObjectID, lastError string) error {
	_, err := s.coll.UpdateByID(ctx, id, bson.M{
		"$inc": bson.M{"attempts": 1},
		"$set": bson.M{"lastError": lastError, "updatedAt": time.Now().UTC()},
	})
	return err
}

// ListStale returns pending intents created before olderThan, oldest first.
func (s *RegistrationIntentStore) ListStale(ctx context.Context, olderThan time.Time, limit int64) ([]models.RegistrationIntent, error) {
	cursor, err := s.coll.Find(ctx,
		bson.M{"status": models.IntentPending, "createdAt": bson.M{"$lt": olderThan}},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}).SetLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	intents := make([]models.RegistrationIntent, 0)
	if err := cursor.All(ctx, &intents); err != nil {
		return nil, err
	}
	return intents, nil
}

// WebhookEventStore remembers which gateway events were already handled.
type WebhookEventStore struct {
	coll *mongo.Collection
}

func NewWebhookEventStore(db *mongo.Database) *WebhookEventStore {
	return &WebhookEventStore{coll: db.Collection(database.CollectionWebhookEvents)}
}

func (s *WebhookEventStore) Seen(ctx context.Context, eventID string) (bool, error) {
	count, err := s.coll.CountDocuments(ctx, bson.M{"_id": eventID}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Record stores the event; a concurrent duplicate insert is not an error.
func (s *WebhookEventStore) Record(ctx context.Context, event models.WebhookEvent) error {
	if event.ProcessedAt.IsZero() {
		event.ProcessedAt = time.Now().UTC()
	}
	_, err := s.coll.InsertOne(ctx, event)
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	return err
}
