// Package testutil holds in-memory stand-ins for the Mongo stores and the
// external collaborators. They mirror the stores' conditional write rules so
// service-level tests exercise the same state machine.
package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"agency-backend/internal/database"
	"agency-backend/internal/models"
	"agency-backend/internal/store"
)

type DB struct {
	mu       sync.Mutex
	users    map[primitive.ObjectID]models.User
	orders   map[primitive.ObjectID]models.Order
	items    []models.OrderItem
	services map[primitive.ObjectID]models.Service
	tokens   map[primitive.ObjectID]models.RefreshToken
	intents  map[primitive.ObjectID]models.RegistrationIntent
	events   map[string]models.WebhookEvent
}

func NewDB() *DB {
	return &DB{
		users:    map[primitive.ObjectID]models.User{},
		orders:   map[primitive.ObjectID]models.Order{},
		services: map[primitive.ObjectID]models.Service{},
		tokens:   map[primitive.ObjectID]models.RefreshToken{},
		intents:  map[primitive.ObjectID]models.RegistrationIntent{},
		events:   map[string]models.WebhookEvent{},
	}
}

func (db *DB) Users() *Users                 { return &Users{db: db} }
func (db *DB) Orders() *Orders               { return &Orders{db: db} }
func (db *DB) OrderItems() *OrderItems       { return &OrderItems{db: db} }
func (db *DB) Services() *Services           { return &Services{db: db} }
func (db *DB) RefreshTokens() *RefreshTokens { return &RefreshTokens{db: db} }
func (db *DB) Intents() *Intents             { return &Intents{db: db} }
func (db *DB) WebhookEvents() *WebhookEvents { return &WebhookEvents{db: db} }

// OrderCount is used by atomicity assertions.
func (db *DB) OrderCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.orders)
}

func (db *DB) ItemCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.items)
}

func newID(id primitive.ObjectID) primitive.ObjectID {
	if id.IsZero() {
		return primitive.NewObjectID()
	}
	return id
}

// ---- users ----

type Users struct{ db *DB }

func (s *Users) Create(_ context.Context, user *models.User) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, u := range s.db.users {
		if u.Email == user.Email {
			return store.ErrDuplicate
		}
	}
	now := time.Now().UTC()
	user.ID = newID(user.ID)
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	s.db.users[user.ID] = *user
	return nil
}

func (s *Users) GetByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u, ok := s.db.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (s *Users) GetByEmail(_ context.Context, email string) (*models.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, u := range s.db.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Users) List(_ context.Context) ([]models.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := make([]models.User, 0, len(s.db.users))
	for _, u := range s.db.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Hex() < out[j].ID.Hex() })
	return out, nil
}

func (s *Users) Update(_ context.Context, id primitive.ObjectID, update store.UserUpdate) (*models.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u, ok := s.db.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if update.Email != nil {
		for otherID, other := range s.db.users {
			if otherID != id && other.Email == *update.Email {
				return nil, store.ErrDuplicate
			}
		}
		u.Email = *update.Email
	}
	setString(&u.FirstName, update.FirstName)
	setString(&u.LastName, update.LastName)
	setString(&u.PasswordHash, update.PasswordHash)
	setString(&u.Phone, update.Phone)
	setString(&u.Company, update.Company)
	if update.Role != nil {
		u.Role = *update.Role
	}
	u.UpdatedAt = time.Now().UTC()
	s.db.users[id] = u
	return &u, nil
}

func (s *Users) SetStripeCustomerID(_ context.Context, id primitive.ObjectID, customerID string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u, ok := s.db.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.StripeCustomerID = &customerID
	s.db.users[id] = u
	return nil
}

func (s *Users) MarkMailVerified(_ context.Context, email string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for id, u := range s.db.users {
		if u.Email == email {
			u.IsMailVerified = true
			s.db.users[id] = u
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Users) Delete(ctx context.Context, id primitive.ObjectID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.db.users, id)
	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

// ---- orders ----

type Orders struct{ db *DB }

func (s *Orders) Create(_ context.Context, order *models.Order, items []models.OrderItem) ([]models.OrderItem, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	for _, item := range items {
		if _, ok := s.db.services[item.ServiceID]; !ok {
			return nil, store.MissingReferenceError{Collection: database.CollectionServices, ID: item.ServiceID}
		}
	}

	now := time.Now().UTC()
	order.ID = primitive.NewObjectID()
	order.CreatedAt = now
	order.UpdatedAt = now
	if order.StatusMain == "" {
		order.StatusMain = models.OrderNew
	}
	if order.StatusPayment == "" {
		order.StatusPayment = models.PaymentPendingDeposit
	}
	s.db.orders[order.ID] = *order

	created := make([]models.OrderItem, 0, len(items))
	for _, item := range items {
		item.ID = primitive.NewObjectID()
		item.OrderID = order.ID
		item.CreatedAt = now
		s.db.items = append(s.db.items, item)
		created = append(created, item)
	}
	return created, nil
}

func (s *Orders) GetByID(_ context.Context, id primitive.ObjectID) (*models.Order, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	o, ok := s.db.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &o, nil
}

func (s *Orders) GetDetailed(_ context.Context, id primitive.ObjectID) (*models.Order, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	o, ok := s.db.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	o.Items = []models.OrderItem{}
	for _, item := range s.db.items {
		if item.OrderID != id {
			continue
		}
		if svc, ok := s.db.services[item.ServiceID]; ok {
			item.Service = &svc
		}
		o.Items = append(o.Items, item)
	}
	return &o, nil
}

func (s *Orders) List(_ context.Context, filter store.OrderFilter) ([]models.Order, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := make([]models.Order, 0)
	for _, o := range s.db.orders {
		if filter.UserID != nil && o.UserID != *filter.UserID {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Hex() > out[j].ID.Hex() })
	return out, nil
}

func (s *Orders) Update(_ context.Context, id primitive.ObjectID, update store.OrderUpdate) (*models.Order, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	o, ok := s.db.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if update.StatusMain != nil {
		o.StatusMain = *update.StatusMain
	}
	if update.StatusPayment != nil {
		o.StatusPayment = *update.StatusPayment
	}
	if update.TotalAmount != nil {
		o.TotalAmount = *update.TotalAmount
	}
	if update.DepositAmount != nil {
		o.DepositAmount = *update.DepositAmount
	}
	if update.DeadlineDate != nil {
		d := *update.DeadlineDate
		o.DeadlineDate = &d
	}
	if update.UserID != nil {
		o.UserID = *update.UserID
	}
	o.UpdatedAt = time.Now().UTC()
	s.db.orders[id] = o
	return &o, nil
}

func (s *Orders) Delete(_ context.Context, id primitive.ObjectID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	o, ok := s.db.orders[id]
	if !ok {
		return store.ErrNotFound
	}
	if o.StatusPayment != models.PaymentPendingDeposit {
		return store.ErrStateConflict
	}
	delete(s.db.orders, id)
	kept := s.db.items[:0]
	for _, item := range s.db.items {
		if item.OrderID != id {
			kept = append(kept, item)
		}
	}
	s.db.items = kept
	return nil
}

func (s *Orders) AttachCheckoutSession(_ context.Context, id primitive.ObjectID, sessionID string) (*models.Order, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	o, ok := s.db.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if o.StatusPayment != models.PaymentPendingDeposit {
		return nil, store.ErrStateConflict
	}
	o.StripeSessionID = &sessionID
	o.UpdatedAt = time.Now().UTC()
	s.db.orders[id] = o
	return &o, nil
}

func (s *Orders) MarkDepositPaid(_ context.Context, id primitive.ObjectID, paymentIntentID string) (*models.Order, bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	o, ok := s.db.orders[id]
	if !ok {
		return nil, false, store.ErrNotFound
	}
	if o.StatusPayment != models.PaymentPendingDeposit {
		return &o, false, nil
	}
	o.StatusPayment = models.PaymentDepositPaid
	o.StripePaymentIntentID = nil
	if paymentIntentID != "" {
		o.StripePaymentIntentID = &paymentIntentID
	}
	o.PaymentError = nil
	o.UpdatedAt = time.Now().UTC()
	s.db.orders[id] = o
	return &o, true, nil
}

func (s *Orders) RecordPaymentFailure(_ context.Context, paymentIntentID, reason string) (*models.Order, bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for id, o := range s.db.orders {
		if o.StripePaymentIntentID == nil || *o.StripePaymentIntentID != paymentIntentID {
			continue
		}
		switch {
		case o.StatusPayment == models.PaymentDepositPaid:
		case o.StatusPayment == models.PaymentPendingDeposit && (o.PaymentError == nil || *o.PaymentError != reason):
		default:
			return &o, false, nil
		}
		o.StatusPayment = models.PaymentPendingDeposit
		o.PaymentError = &reason
		o.UpdatedAt = time.Now().UTC()
		s.db.orders[id] = o
		return &o, true, nil
	}
	return nil, false, store.ErrNotFound
}

func (s *Orders) RecordPaymentFailureForOrder(_ context.Context, id primitive.ObjectID, reason string) (*models.Order, bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	o, ok := s.db.orders[id]
	if !ok {
		return nil, false, store.ErrNotFound
	}
	if o.StatusPayment != models.PaymentPendingDeposit || (o.PaymentError != nil && *o.PaymentError == reason) {
		return &o, false, nil
	}
	o.PaymentError = &reason
	o.UpdatedAt = time.Now().UTC()
	s.db.orders[id] = o
	return &o, true, nil
}

// ---- order items ----

type OrderItems struct{ db *DB }

func (s *OrderItems) List(_ context.Context, orderID *primitive.ObjectID) ([]models.OrderItem, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := make([]models.OrderItem, 0)
	for _, item := range s.db.items {
		if orderID == nil || item.OrderID == *orderID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (s *OrderItems) GetByID(_ context.Context, id primitive.ObjectID) (*models.OrderItem, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, item := range s.db.items {
		if item.ID == id {
			return &item, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *OrderItems) Create(_ context.Context, item *models.OrderItem) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.requireRefs(&item.OrderID, &item.ServiceID); err != nil {
		return err
	}
	item.ID = primitive.NewObjectID()
	item.CreatedAt = time.Now().UTC()
	s.db.items = append(s.db.items, *item)
	return nil
}

func (s *OrderItems) Update(_ context.Context, id primitive.ObjectID, update store.OrderItemUpdate) (*models.OrderItem, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.requireRefs(update.OrderID, update.ServiceID); err != nil {
		return nil, err
	}
	for i, item := range s.db.items {
		if item.ID != id {
			continue
		}
		if update.UnitAmount != nil {
			item.UnitAmount = *update.UnitAmount
		}
		if update.TotalAmount != nil {
			item.TotalAmount = *update.TotalAmount
		}
		if update.Quantity != nil {
			item.Quantity = *update.Quantity
		}
		if update.OrderID != nil {
			item.OrderID = *update.OrderID
		}
		if update.ServiceID != nil {
			item.ServiceID = *update.ServiceID
		}
		s.db.items[i] = item
		return &item, nil
	}
	return nil, store.ErrNotFound
}

func (s *OrderItems) Delete(_ context.Context, id primitive.ObjectID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for i, item := range s.db.items {
		if item.ID == id {
			s.db.items = append(s.db.items[:i], s.db.items[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *OrderItems) requireRefs(orderID, serviceID *primitive.ObjectID) error {
	if orderID != nil {
		if _, ok := s.db.orders[*orderID]; !ok {
			return store.MissingReferenceError{Collection: database.CollectionOrders, ID: *orderID}
		}
	}
	if serviceID != nil {
		if _, ok := s.db.services[*serviceID]; !ok {
			return store.MissingReferenceError{Collection: database.CollectionServices, ID: *serviceID}
		}
	}
	return nil
}

// ---- services ----

type Services struct{ db *DB }

func (s *Services) List(_ context.Context, activeOnly bool) ([]models.Service, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := make([]models.Service, 0)
	for _, svc := range s.db.services {
		if activeOnly && !svc.IsActive {
			continue
		}
		out = append(out, svc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Hex() > out[j].ID.Hex() })
	return out, nil
}

func (s *Services) GetByID(_ context.Context, id primitive.ObjectID) (*models.Service, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	svc, ok := s.db.services[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &svc, nil
}

func (s *Services) Create(_ context.Context, service *models.Service) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	now := time.Now().UTC()
	service.ID = newID(service.ID)
	service.CreatedAt = now
	service.UpdatedAt = now
	s.db.services[service.ID] = *service
	return nil
}

func (s *Services) Update(_ context.Context, id primitive.ObjectID, update store.ServiceUpdate) (*models.Service, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	svc, ok := s.db.services[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	setString(&svc.Name, update.Name)
	setString(&svc.Description, update.Description)
	setString(&svc.Image, update.Image)
	if update.BasePrice != nil {
		svc.BasePrice = *update.BasePrice
	}
	if update.Type != nil {
		svc.Type = *update.Type
	}
	if update.Features != nil {
		svc.Features = models.StringList(*update.Features)
	}
	if update.IsActive != nil {
		svc.IsActive = *update.IsActive
	}
	svc.UpdatedAt = time.Now().UTC()
	s.db.services[id] = svc
	return &svc, nil
}

func (s *Services) SetStripeProductID(_ context.Context, id primitive.ObjectID, productID string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	svc, ok := s.db.services[id]
	if !ok {
		return store.ErrNotFound
	}
	svc.StripeProductID = &productID
	s.db.services[id] = svc
	return nil
}

func (s *Services) Delete(_ context.Context, id primitive.ObjectID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.services[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.db.services, id)
	return nil
}

// ---- refresh tokens ----

type RefreshTokens struct{ db *DB }

func (s *RefreshTokens) Create(_ context.Context, token *models.RefreshToken) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	token.ID = primitive.NewObjectID()
	token.CreatedAt = time.Now().UTC()
	s.db.tokens[token.ID] = *token
	return nil
}

func (s *RefreshTokens) FindActive(_ context.Context, tokenHash string) (*models.RefreshToken, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, t := range s.db.tokens {
		if t.TokenHash == tokenHash && !t.Revoked {
			return &t, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *RefreshTokens) Revoke(_ context.Context, id primitive.ObjectID, replacedBy *primitive.ObjectID) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	t, ok := s.db.tokens[id]
	if !ok || t.Revoked {
		return false, nil
	}
	t.Revoked = true
	t.ReplacedByToken = replacedBy
	s.db.tokens[id] = t
	return true, nil
}

func (s *RefreshTokens) RevokeByHash(_ context.Context, tokenHash string) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for id, t := range s.db.tokens {
		if t.TokenHash == tokenHash && !t.Revoked {
			t.Revoked = true
			s.db.tokens[id] = t
			return true, nil
		}
	}
	return false, nil
}

// All returns every stored token, revoked or not.
func (s *RefreshTokens) All() []models.RefreshToken {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := make([]models.RefreshToken, 0, len(s.db.tokens))
	for _, t := range s.db.tokens {
		out = append(out, t)
	}
	return out
}

// ---- registration intents ----

type Intents struct{ db *DB }

func (s *Intents) Create(_ context.Context, intent *models.RegistrationIntent) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	now := time.Now().UTC()
	intent.ID = primitive.NewObjectID()
	intent.Status = models.IntentPending
	if intent.CreatedAt.IsZero() {
		intent.CreatedAt = now
	}
	intent.UpdatedAt = now
	s.db.intents[intent.ID] = *intent
	return nil
}

// Put stores intent as is; tests use it to seed stale intents.
func (s *Intents) Put(intent models.RegistrationIntent) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.intents[intent.ID] = intent
}

func (s *Intents) Get(id primitive.ObjectID) (models.RegistrationIntent, bool) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	intent, ok := s.db.intents[id]
	return intent, ok
}

func (s *Intents) ByEmail(email string) []models.RegistrationIntent {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := []models.RegistrationIntent{}
	for _, intent := range s.db.intents {
		if strings.EqualFold(intent.Email, email) {
			out = append(out, intent)
		}
	}
	return out
}

func (s *Intents) SetStatus(ctx context.Context, id primitive.ObjectID, status models.IntentStatus, lastError string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	intent, ok := s.db.intents[id]
	if !ok {
		return store.ErrNotFound
	}
	intent.Status = status
	if lastError != "" {
		intent.LastError = lastError
	}
	intent.UpdatedAt = time.Now().UTC()
	s.db.intents[id] = intent
	return nil
}

func (s *Intents) RecordAttempt(_ context.Context, id primitive.ObjectID, lastError string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	intent, ok := s.db.intents[id]
	if !ok {
		return store.ErrNotFound
	}
	intent.Attempts++
	intent.LastError = lastError
	s.db.intents[id] = intent
	return nil
}

func (s *Intents) ListStale(_ context.Context, olderThan time.Time, limit int64) ([]models.RegistrationIntent, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := []models.RegistrationIntent{}
	for _, intent := range s.db.intents {
		if intent.Status == models.IntentPending && intent.CreatedAt.Before(olderThan) {
			out = append(out, intent)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ---- webhook events ----

type WebhookEvents struct{ db *DB }

func (s *WebhookEvents) Seen(_ context.Context, eventID string) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	_, ok := s.db.events[eventID]
	return ok, nil
}

func (s *WebhookEvents) Record(_ context.Context, event models.WebhookEvent) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.events[event.ID]; ok {
		return nil
	}
	event.ProcessedAt = time.Now().UTC()
	s.db.events[event.ID] = event
	return nil
}
