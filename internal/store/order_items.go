package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"agency-backend/internal/database"
	"agency-backend/internal/models"
)

type OrderItemUpdate struct {
	UnitAmount  *float64
	TotalAmount *float64
	Quantity    *int
	OrderID     *primitive.ObjectID
	ServiceID   *primitive.ObjectID
}

func (u OrderItemUpdate) set() bson.M {
	set := bson.M{}
	if u.UnitAmount != nil {
		set["unitAmount"] = *u.UnitAmount
	}
	if u.TotalAmount != nil {
		set["totalAmount"] = *u.TotalAmount
	}
	if u.Quantity != nil {
		set["quantity"] = *u.Quantity
	}
	if u.OrderID != nil {
		set["orderId"] = *u.OrderID
	}
	if u.ServiceID != nil {
		set["serviceId"] = *u.ServiceID
	}
	return set
}

type OrderItemStore struct {
	items    *mongo.Collection
	orders   *mongo.Collection
	services *mongo.Collection
}

func NewOrderItemStore(db *mongo.Database) *OrderItemStore {
	return &OrderItemStore{
		items:    db.Collection(database.CollectionOrderItems),
		orders:   db.Collection(database.CollectionOrders),
		services: db.Collection(database.CollectionServices),
	}
}

func (s *OrderItemStore) List(ctx context.Context, orderID *primitive.ObjectID) ([]models.OrderItem, error) {
	query := bson.M{}
	if orderID != nil {
		query["orderId"] = *orderID
	}

	cursor, err := s.items.Find(ctx, query, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	items := make([]models.OrderItem, 0)
	if err := cursor.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *OrderItemStore) GetByID(ctx context.Context, id primitive.ObjectID) (*models.OrderItem, error) {
	var item models.OrderItem
	if err := s.items.FindOne(ctx, bson.M{"_id": id}).Decode(&item); err != nil {
		return nil, mapErr(err)
	}
	return &item, nil
}

func (s *OrderItemStore) Create(ctx context.Context, item *models.OrderItem) error {
	if err := s.requireRefs(ctx, &item.OrderID, &item.ServiceID); err != nil {
		return err
	}
	item.CreatedAt = time.Now().UTC()

	res, err := s.items.InsertOne(ctx, item)
	if err != nil {
		return mapErr(err)
	}
	item.ID = res.InsertedID.(primitive.ObjectID)
	return nil
}

func (s *OrderItemStore) Update(ctx context.Context, id primitive.ObjectID, update OrderItemUpdate) (*models.OrderItem, error) {
	if err := s.requireRefs(ctx, update.OrderID, update.ServiceID); err != nil {
		return nil, err
	}

	var updated models.OrderItem
	err := s.items.FindOneAndUpdate(
		ctx,
		bson.M{"_id": id},
		bson.M{"$set": update.set()},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if err != nil {
		return nil, mapErr(err)
	}
	return &updated, nil
}

func (s *OrderItemStore) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.items.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *OrderItemStore) requireRefs(ctx context.Context, orderID, serviceID *primitive.ObjectID) error {
	if orderID != nil {
		if err := requireDocument(ctx, s.orders, database.CollectionOrders, *orderID); err != nil {
			return err
		}
	}
	if serviceID != nil {
		if err := requireDocument(ctx, s.services, database.CollectionServices, *serviceID); err != nil {
			return err
		}
	}
	return nil
}

func requireDocument(ctx context.Context, coll *mongo.Collection, name string, id primitive.ObjectID) error {
	err := coll.FindOne(ctx, bson.M{"_id": id}, options.FindOne().SetProjection(bson.M{"_id": 1})).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return MissingReferenceError{Collection: name, ID: id}
	}
	return err
}
