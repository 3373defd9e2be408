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

type ServiceUpdate struct {
	Name        *string
	Description *string
	BasePrice   *float64
	Image       *string
	Type        *models.ServiceType
	Features    *[]string
	IsActive    *bool
}

func (u ServiceUpdate) set() bson.M {
	set := bson.M{}
	putString(set, "name", u.Name)
	putString(set, "description", u.Description)
	putString(set, "image", u.Image)
	if u.BasePrice != nil {
		set["basePrice"] = *u.BasePrice
	}
	if u.Type != nil {
		set["type"] = *u.Type
	}
	if u.Features != nil {
		set["features"] = models.StringList(*u.Features)
	}
	if u.IsActive != nil {
		set["isActive"] = *u.IsActive
	}
	return set
}

type ServiceStore struct {
	coll *mongo.Collection
}

func NewServiceStore(db *mongo.Database) *ServiceStore {
	return &ServiceStore{coll: db.Collection(database.CollectionServices)}
}

func (s *ServiceStore) List(ctx context.Context, activeOnly bool) ([]models.Service, error) {
	filter := bson.M{}
	if activeOnly {
		filter["isActive"] = true
	}

	cursor, err := s.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	services := make([]models.Service, 0)
	if err := cursor.All(ctx, &services); err != nil {
		return nil, err
	}
	return services, nil
}

func (s *ServiceStore) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Service, error) {
	var service models.Service
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&service); err != nil {
		return nil, mapErr(err)
	}
	return &service, nil
}

func (s *ServiceStore) Create(ctx context.Context, service *models.Service) error {
	now := time.Now().UTC()
	service.CreatedAt = now
	service.UpdatedAt = now

	res, err := s.coll.InsertOne(ctx, service)
	if err != nil {
		return mapErr(err)
	}
	service.ID = res.InsertedID.(primitive.ObjectID)
	return nil
}

func (s *ServiceStore) Update(ctx context.Context, id primitive.ObjectID, update ServiceUpdate) (*models.Service, error) {
	set := update.set()
	set["updatedAt"] = time.Now().UTC()

	var updated models.Service
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

func (s *ServiceStore) SetStripeProductID(ctx context.Context, id primitive.ObjectID, productID string) error {
	res, err := s.coll.UpdateByID(ctx, id, bson.M{"$set": bson.M{"stripeProductId": productID}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *ServiceStore) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
