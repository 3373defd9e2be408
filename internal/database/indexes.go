package database

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes creates every index the stores rely on. A failing collection
// is logged and reported, the remaining ones are still attempted.
func EnsureIndexes(db *mongo.Database) error {
	var firstErr error
	for _, ensure := range []func(*mongo.Database) error{
		EnsureUserIndexes,
		EnsureOrderIndexes,
		EnsureOrderItemIndexes,
		EnsureRefreshTokenIndexes,
		EnsureRegistrationIntentIndexes,
	} {
		if err := ensure(db); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func EnsureUserIndexes(db *mongo.Database) error {
	return createIndexes(db, CollectionUsers, mongo.IndexModel{
		Keys: bson.D{{Key: "email", Value: 1}},
		Options: options.Index().
			SetName("email_unique").
			SetUnique(true),
	})
}

func EnsureOrderIndexes(db *mongo.Database) error {
	return createIndexes(db, CollectionOrders,
		mongo.IndexModel{
			Keys:    bson.D{{Key: "userId", Value: 1}},
			Options: options.Index().SetName("userId_index"),
		},
		mongo.IndexModel{
			Keys:    bson.D{{Key: "stripeSessionId", Value: 1}},
			Options: options.Index().SetName("stripeSessionId_index"),
		},
		mongo.IndexModel{
			Keys:    bson.D{{Key: "stripePaymentIntentId", Value: 1}},
			Options: options.Index().SetName("stripePaymentIntentId_index"),
		},
	)
}

func EnsureOrderItemIndexes(db *mongo.Database) error {
	return createIndexes(db, CollectionOrderItems, mongo.IndexModel{
		Keys:    bson.D{{Key: "orderId", Value: 1}, {Key: "_id", Value: 1}},
		Options: options.Index().SetName("orderId_index"),
	})
}

func EnsureRefreshTokenIndexes(db *mongo.Database) error {
	return createIndexes(db, CollectionRefreshTokens,
		mongo.IndexModel{
			Keys: bson.D{{Key: "tokenHash", Value: 1}},
			Options: options.Index().
				SetName("tokenHash_unique").
				SetUnique(true),
		},
		mongo.IndexModel{
			Keys: bson.D{{Key: "expiresAt", Value: 1}},
			Options: options.Index().
				SetName("expiresAt_ttl").
				SetExpireAfterSeconds(0),
		},
	)
}

func EnsureRegistrationIntentIndexes(db *mongo.Database) error {
	return createIndexes(db, CollectionRegistrationIntents, mongo.IndexModel{
		Keys:    bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: 1}},
		Options: options.Index().SetName("status_createdAt_index"),
	})
}

func createIndexes(db *mongo.Database, collection string, models ...mongo.IndexModel) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	log.Printf("EnsureIndexes: creating %d index(es) on %s", len(models), collection)
	if _, err := db.Collection(collection).Indexes().CreateMany(ctx, models); err != nil {
		log.Printf("EnsureIndexes: %s index error: %v", collection, err)
		return err
	}
	log.Printf("EnsureIndexes: %s indexes ready", collection)
	return nil
}
