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

// OrderUpdate is an administrative partial update. Payment correlation ids
// are not part of it; they only change through the payment lifecycle.
type OrderUpdate struct {
	StatusMain    *models.OrderStatus
	StatusPayment *models.PaymentStatus
	TotalAmount   *float64
	DepositAmount *float64
	DeadlineDate  *time.Time
	UserID        *primitive.ObjectID
}

func (u OrderUpdate) set() bson.M {
	set := bson.M{}
	if u.StatusMain != nil {
		set["statusMain"] = *u.StatusMain
	}
	if u.StatusPayment != nil {
		set["statusPayment"] = *u.StatusPayment
	}
	if u.TotalAmount != nil {
		set["totalAmount"] = *u.TotalAmount
	}
	if u.DepositAmount != nil {
		set["depositAmount"] = *u.DepositAmount
	}
	if u.DeadlineDate != nil {
		set["deadlineDate"] = *u.DeadlineDate
	}
	if u.UserID != nil {
		set["userId"] = *u.UserID
	}
	return set
}

type OrderFilter struct {
	UserID *primitive.ObjectID
}

type OrderStore struct {
	client   *mongo.Client
	orders   *mongo.Collection
	items    *mongo.Collection
	services *mongo.Collection
}

func NewOrderStore(db *mongo.Database) *OrderStore {
	return &OrderStore{
		client:   db.Client(),
		orders:   db.Collection(database.CollectionOrders),
		items:    db.Collection(database.CollectionOrderItems),
		services: db.Collection(database.CollectionServices),
	}
}

// Create inserts the order and, when items are given, all of them in the same
// transaction. An item naming an unknown service aborts the whole write.
func (s *OrderStore) Create(ctx context.Context, order *models.Order, items []models.OrderItem) ([]models.OrderItem, error) {
	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now
	if order.StatusMain == "" {
		order.StatusMain = models.OrderNew
	}
	if order.StatusPayment == "" {
		order.StatusPayment = models.PaymentPendingDeposit
	}

	if len(items) == 0 {
		res, err := s.orders.InsertOne(ctx, order)
		if err != nil {
			return nil, mapErr(err)
		}
		order.ID = res.InsertedID.(primitive.ObjectID)
		return []models.OrderItem{}, nil
	}

	created, err := withTransaction(ctx, s.client, func(sessCtx mongo.SessionContext) ([]models.OrderItem, error) {
		order.ID = primitive.NilObjectID
		res, err := s.orders.InsertOne(sessCtx, order)
		if err != nil {
			return nil, err
		}
		orderID := res.InsertedID.(primitive.ObjectID)

		out := make([]models.OrderItem, 0, len(items))
		for _, item := range items {
			if err := s.requireService(sessCtx, item.ServiceID); err != nil {
				return nil, err
			}
			item.ID = primitive.NilObjectID
			item.OrderID = orderID
			item.CreatedAt = now
			itemRes, err := s.items.InsertOne(sessCtx, item)
			if err != nil {
				return nil, err
			}
			item.ID = itemRes.InsertedID.(primitive.ObjectID)
			out = append(out, item)
		}

		order.ID = orderID
		return out, nil
	})
	if err != nil {
		order.ID = primitive.NilObjectID
		return nil, mapErr(err)
	}
	return created, nil
}

func (s *OrderStore) requireService(ctx context.Context, serviceID primitive.ObjectID) error {
	err := s.services.FindOne(ctx, bson.M{"_id": serviceID}, options.FindOne().SetProjection(bson.M{"_id": 1})).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return MissingReferenceError{Collection: database.CollectionServices, ID: serviceID}
	}
	return err
}

func (s *OrderStore) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	var order models.Order
	if err := s.orders.FindOne(ctx, bson.M{"_id": id}).Decode(&order); err != nil {
		return nil, mapErr(err)
	}
	return &order, nil
}

// GetDetailed loads the order with its items in insertion order, each item
// carrying its service.
func (s *OrderStore) GetDetailed(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	order, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	cursor, err := s.items.Find(ctx, bson.M{"orderId": id}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	items := make([]models.OrderItem, 0)
	if err := cursor.All(ctx, &items); err != nil {
		return nil, err
	}

	serviceIDs := make([]primitive.ObjectID, 0, len(items))
	for _, item := range items {
		serviceIDs = append(serviceIDs, item.ServiceID)
	}
	services, err := s.servicesByID(ctx, serviceIDs)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if service, ok := services[items[i].ServiceID]; ok {
			items[i].Service = &service
		}
	}

	order.Items = items
	return order, nil
}

func (s *OrderStore) servicesByID(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.Service, error) {
	out := make(map[primitive.ObjectID]models.Service, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	cursor, err := s.services.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var services []models.Service
	if err := cursor.All(ctx, &services); err != nil {
		return nil, err
	}
	for _, service := range services {
		out[service.ID] = service
	}
	return out, nil
}

func (s *OrderStore) List(ctx context.Context, filter OrderFilter) ([]models.Order, error) {
	query := bson.M{}
	if filter.UserID != nil {
		query["userId"] = *filter.UserID
	}

	cursor, err := s.orders.Find(ctx, query, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	orders := make([]models.Order, 0)
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *OrderStore) Update(ctx context.Context, id primitive.ObjectID, update OrderUpdate) (*models.Order, error) {
	set := update.set()
	set["updatedAt"] = time.Now().UTC()

	var updated models.Order
	err := s.orders.FindOneAndUpdate(
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

// Delete removes an order and its items. Orders whose payment has started are
// kept and ErrStateConflict is returned.
func (s *OrderStore) Delete(ctx context.Context, id primitive.ObjectID) error {
	_, err := withTransaction(ctx, s.client, func(sessCtx mongo.SessionContext) (struct{}, error) {
		res, err := s.orders.DeleteOne(sessCtx, bson.M{
			"_id":           id,
			"statusPayment": models.PaymentPendingDeposit,
		})
		if err != nil {
			return struct{}{}, err
		}
		if res.DeletedCount == 0 {
			count, err := s.orders.CountDocuments(sessCtx, bson.M{"_id": id})
			if err != nil {
				return struct{}{}, err
			}
			if count == 0 {
				return struct{}{}, ErrNotFound
			}
			return struct{}{}, ErrStateConflict
		}
		_, err = s.items.DeleteMany(sessCtx, bson.M{"orderId": id})
		return struct{}{}, err
	})
	return mapErr(err)
}

// AttachCheckoutSession stores the gateway session id on an order that is
// still waiting for its deposit.
func (s *OrderStore) AttachCheckoutSession(ctx context.Context, id primitive.ObjectID, sessionID string) (*models.Order, error) {
	var updated models.Order
	err := s.orders.FindOneAndUpdate(
		ctx,
		bson.M{"_id": id, "statusPayment": models.PaymentPendingDeposit},
		bson.M{"$set": bson.M{
			"stripeSessionId": sessionID,
			"statusPayment":   models.PaymentPendingDeposit,
			"updatedAt":       time.Now().UTC(),
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, getErr := s.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrStateConflict
	}
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// MarkDepositPaid moves PENDING_DEPOSIT to DEPOSIT_PAID in one conditional
// write. applied is false when the order was already past PENDING_DEPOSIT;
// the current order is returned in that case.
func (s *OrderStore) MarkDepositPaid(ctx context.Context, id primitive.ObjectID, paymentIntentID string) (order *models.Order, applied bool, err error) {
	var intent *string
	if paymentIntentID != "" {
		intent = &paymentIntentID
	}

	var updated models.Order
	err = s.orders.FindOneAndUpdate(
		ctx,
		bson.M{"_id": id, "statusPayment": models.PaymentPendingDeposit},
		bson.M{"$set": bson.M{
			"statusPayment":         models.PaymentDepositPaid,
			"stripePaymentIntentId": intent,
			"paymentError":          nil,
			"updatedAt":             time.Now().UTC(),
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		current, getErr := s.GetByID(ctx, id)
		if getErr != nil {
			return nil, false, getErr
		}
		return current, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &updated, true, nil
}

// RecordPaymentFailure reverts the order matched by payment intent to
// PENDING_DEPOSIT with reason as paymentError. applied is false when the
// order already carried exactly this failure.
func (s *OrderStore) RecordPaymentFailure(ctx context.Context, paymentIntentID, reason string) (order *models.Order, applied bool, err error) {
	filter := bson.M{
		"stripePaymentIntentId": paymentIntentID,
		"statusPayment": bson.M{"$in": []models.PaymentStatus{
			models.PaymentPendingDeposit,
			models.PaymentDepositPaid,
		}},
		"$or": []bson.M{
			{"statusPayment": models.PaymentDepositPaid},
			{"paymentError": bson.M{"$ne": reason}},
		},
	}
	return s.recordFailure(ctx, filter, bson.M{"stripePaymentIntentId": paymentIntentID}, reason)
}

// RecordPaymentFailureForOrder records a failed attempt on an order that no
// payment intent is attached to yet. Paid orders are left alone.
func (s *OrderStore) RecordPaymentFailureForOrder(ctx context.Context, id primitive.ObjectID, reason string) (order *models.Order, applied bool, err error) {
	filter := bson.M{
		"_id":           id,
		"statusPayment": models.PaymentPendingDeposit,
		"paymentError":  bson.M{"$ne": reason},
	}
	return s.recordFailure(ctx, filter, bson.M{"_id": id}, reason)
}

func (s *OrderStore) recordFailure(ctx context.Context, filter, lookup bson.M, reason string) (*models.Order, bool, error) {
	var updated models.Order
	err := s.orders.FindOneAndUpdate(
		ctx,
		filter,
		bson.M{"$set": bson.M{
			"statusPayment": models.PaymentPendingDeposit,
			"paymentError":  reason,
			"updatedAt":     time.Now().UTC(),
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		var current models.Order
		if findErr := s.orders.FindOne(ctx, lookup).Decode(&current); findErr != nil {
			return nil, false, mapErr(findErr)
		}
		return &current, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &updated, true, nil
}
