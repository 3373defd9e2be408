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

// UserUpdate is a partial update; nil fields are left untouched.
type UserUpdate struct {
	Email        *string
	FirstName    *string
	LastName     *string
	PasswordHash *string
	Phone        *string
	Company      *string
	Role         *models.Role
}

func (u UserUpdate) set() bson.M {
	set := bson.M{}
	putString(set, "email", u.Email)
	putString(set, "firstName", u.FirstName)
	putString(set, "lastName", u.LastName)
	putString(set, "password", u.PasswordHash)
	putString(set, "phone", u.Phone)
	putString(set, "company", u.Company)
	if u.Role != nil {
		set["role"] = *u.Role
	}
	return set
}

type UserStore struct {
	coll *mongo.Collection
}

func NewUserStore(db *mongo.Database) *UserStore {
	return &UserStore{coll: db.Collection(database.CollectionUsers)}
}

func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	res, err := s.coll.InsertOne(ctx, user)
	if err != nil {
		return mapErr(err)
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		user.ID = id
	}
	return nil
}

func (s *UserStore) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var user models.User
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&user); err != nil {
		return nil, mapErr(err)
	}
	return &user, nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.coll.FindOne(ctx, bson.M{"email": email}).Decode(&user); err != nil {
		return nil, mapErr(err)
	}
	return &user, nil
}

func (s *UserStore) List(ctx context.Context) ([]models.User, error) {
	cursor, err := s.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	users := make([]models.User, 0)
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *UserStore) Update(ctx context.Context, id primitive.ObjectID, update UserUpdate) (*models.User, error) {
	set := update.set()
	set["updatedAt"] = time.Now().UTC()

	var updated models.User
	err := s.coll.FindOneAndUpdate(
		ctx,
		bson.M{"_id": id},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if err != nil {
		return nil, mapErr(err)
	}
	return &updated, nil
}

func (s *UserStore) SetStripeCustomerID(ctx context.Context, id primitive.ObjectID, customerID string) error {
	res, err := s.coll.UpdateByID(ctx, id, bson.M{"$set": bson.M{
		"stripeCustomerId": customerID,
		"updatedAt":        time.Now().UTC(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *UserStore) MarkMailVerified(ctx context.Context, email string) error {
	res, err := s.coll.UpdateOne(ctx, bson.M{"email": email}, bson.M{"$set": bson.M{
		"isMailVerified": true,
		"updatedAt":      time.Now().UTC(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *UserStore) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func putString(set bson.M, key string, value *string) {
	if value != nil {
		set[key] = *value
	}
}
