package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"agency-backend/internal/database"
	"agency-backend/internal/models"
)

type RefreshTokenStore struct {
	coll *mongo.Collection
}

func NewRefreshTokenStore(db *mongo.Database) *RefreshTokenStore {
	return &RefreshTokenStore{coll: db.Collection(database.CollectionRefreshTokens)}
}

func (s *RefreshTokenStore) Create(ctx context.Context, token *models.RefreshToken) error {
	token.CreatedAt = time.Now().UTC()
	res, err := s.coll.InsertOne(ctx, token)
	if err != nil {
		return mapErr(err)
	}
	token.ID = res.InsertedID.(primitive.ObjectID)
	return nil
}

// FindActive returns the unrevoked token with the given hash.
func (s *RefreshTokenStore) FindActive(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	var token models.RefreshToken
	err := s.coll.FindOne(ctx, bson.M{"tokenHash": tokenHash, "revoked": false}).Decode(&token)
	if err != nil {
		return nil, mapErr(err)
	}
	return &token, nil
}

// Revoke marks the token revoked, optionally linking its replacement.
// It reports false when the token was already revoked.
func (s *RefreshTokenStore) Revoke(ctx context.Context, id primitive.ObjectID, replacedBy *primitive.ObjectID) (bool, error) {
	set := bson.M{"revoked": true}
	if replacedBy != nil {
		set["replacedByToken"] = *replacedBy
	}
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id, "revoked": false}, bson.M{"$set": set})
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

func (s *RefreshTokenStore) RevokeByHash(ctx context.Context, tokenHash string) (bool, error) {
	res, err := s.coll.UpdateOne(ctx, bson.M{"tokenHash": tokenHash, "revoked": false}, bson.M{"$set": bson.M{"revoked": true}})
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}
