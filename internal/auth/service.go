package auth

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"agency-backend/internal/apperr"
	"agency-backend/internal/gateway"
	"agency-backend/internal/models"
	"agency-backend/internal/store"
)

const msgInvalidCredentials = "invalid email or password"

// cleanupTimeout bounds saga compensation, which must outlive the request
// context that failed.
const cleanupTimeout = 10 * time.Second

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Update(ctx context.Context, id primitive.ObjectID, update store.UserUpdate) (*models.User, error)
	SetStripeCustomerID(ctx context.Context, id primitive.ObjectID, customerID string) error
	MarkMailVerified(ctx context.Context, email string) error
	Delete(ctx context.Context, id primitive.ObjectID) error
}

type RefreshTokenStore interface {
	Create(ctx context.Context, token *models.RefreshToken) error
	FindActive(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	Revoke(ctx context.Context, id primitive.ObjectID, replacedBy *primitive.ObjectID) (bool, error)
	RevokeByHash(ctx context.Context, tokenHash string) (bool, error)
}

type IntentStore interface {
	Create(ctx context.Context, intent *models.RegistrationIntent) error
	SetStatus(ctx context.Context, id primitive.ObjectID, status models.IntentStatus, lastError string) error
}

type CustomerGateway interface {
	CreateCustomer(ctx context.Context, in gateway.CustomerInput) (string, error)
}

type VerificationMailer interface {
	SendVerification(ctx context.Context, to, name, token string) error
}

// CustomerIdempotencyKey ties gateway customer creation to one registration
// intent so a retry never creates a second customer.
func CustomerIdempotencyKey(intentID primitive.ObjectID) string {
	return "register-" + intentID.Hex()
}

type Session struct {
	User         *models.User `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	ExpiresIn    int64        `json:"expiresIn"`

	refreshID primitive.ObjectID
}

type RegisterInput struct {
	Email     string
	FirstName string
	LastName  string
	Password  string
	Phone     string
	Company   string
}

type ProfileUpdate struct {
	FirstName       *string
	LastName        *string
	Phone           *string
	Company         *string
	CurrentPassword string
	NewPassword     string
}

type Service struct {
	users     UserStore
	refresh   RefreshTokenStore
	intents   IntentStore
	customers CustomerGateway
	mailer    VerificationMailer
	tokens    *Tokens
}

func NewService(users UserStore, refresh RefreshTokenStore, intents IntentStore, customers CustomerGateway, mailer VerificationMailer, tokens *Tokens) *Service {
	return &Service{
		users:     users,
		refresh:   refresh,
		intents:   intents,
		customers: customers,
		mailer:    mailer,
		tokens:    tokens,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates the account and its gateway customer as a saga. The
// intent written between the two steps lets the reconcile job finish or undo
// a registration interrupted by a crash.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	email := normalizeEmail(in.Email)

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		log.Println("[AUTH] [ERROR] register email exists:", email)
		return nil, apperr.Conflict("email already registered")
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Internal("user lookup failed", err)
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, apperr.Internal("password hash failed", err)
	}

	user := &models.User{
		Email:        email,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		PasswordHash: hash,
		Phone:        strings.TrimSpace(in.Phone),
		Company:      strings.TrimSpace(in.Company),
		Role:         models.RoleUser,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperr.Conflict("email already registered")
		}
		return nil, apperr.Internal("user insert failed", err)
	}

	intent := &models.RegistrationIntent{UserID: user.ID, Email: email}
	if err := s.intents.Create(ctx, intent); err != nil {
		s.deleteUser(ctx, user.ID)
		return nil, apperr.Internal("registration intent failed", err)
	}

	customerID, err := s.customers.CreateCustomer(ctx, gateway.CustomerInput{
		Email:          email,
		Name:           user.FullName(),
		Phone:          user.Phone,
		UserID:         user.ID.Hex(),
		IdempotencyKey: CustomerIdempotencyKey(intent.ID),
	})
	if err != nil {
		s.compensate(ctx, user.ID, intent.ID, err)
		return nil, apperr.Upstream("payment customer creation failed", err)
	}

	if err := s.users.SetStripeCustomerID(ctx, user.ID, customerID); err != nil {
		// The intent stays pending; reconcile replays the customer call with
		// the same idempotency key and persists the id.
		log.Println("[AUTH] [ERROR] register persist customer id failed:", err)
		return nil, apperr.Internal("registration incomplete", err)
	}
	user.StripeCustomerID = &customerID

	if err := s.intents.SetStatus(ctx, intent.ID, models.IntentCompleted, ""); err != nil {
		log.Println("[AUTH] [ERROR] register complete intent failed:", err)
	}

	session, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}

	s.sendVerification(ctx, user)
	log.Println("[AUTH] [INFO] user registered:", email)
	return session, nil
}

func (s *Service) compensate(ctx context.Context, userID, intentID primitive.ObjectID, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	log.Printf("[AUTH] [ERROR] register customer creation failed, compensating user %s: %v", userID.Hex(), cause)
	if err := s.users.Delete(ctx, userID); err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Println("[AUTH] [ERROR] register compensation delete failed:", err)
		return
	}
	if err := s.intents.SetStatus(ctx, intentID, models.IntentCompensated, cause.Error()); err != nil {
		log.Println("[AUTH] [ERROR] register compensation intent update failed:", err)
	}
}

func (s *Service) deleteUser(ctx context.Context, id primitive.ObjectID) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := s.users.Delete(ctx, id); err != nil {
		log.Println("[AUTH] [ERROR] register rollback delete failed:", err)
	}
}

// Login answers unknown email and wrong password identically.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, store.ErrNotFound) {
		log.Println("[AUTH] [ERROR] login invalid credentials")
		return nil, apperr.Unauthenticated(msgInvalidCredentials)
	}
	if err != nil {
		return nil, apperr.Internal("user lookup failed", err)
	}

	if !CheckPassword(user.PasswordHash, password) {
		log.Println("[AUTH] [ERROR] login invalid credentials")
		return nil, apperr.Unauthenticated(msgInvalidCredentials)
	}
	if user.IsDisabled() {
		log.Println("[AUTH] [ERROR] login disabled account:", user.Email)
		return nil, apperr.Forbidden("account disabled")
	}

	session, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}
	log.Println("[AUTH] [INFO] user login succeeded:", user.Email)
	return session, nil
}

// Refresh rotates the refresh token. The old token is revoked with a
// conditional write; losing that race revokes the freshly issued token too.
func (s *Service) Refresh(ctx context.Context, raw string) (*Session, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, apperr.BadRequest("refreshToken is required")
	}

	claims, err := s.tokens.ParseRefresh(raw)
	if err != nil {
		return nil, apperr.Unauthenticated("invalid or expired refresh token")
	}

	stored, err := s.refresh.FindActive(ctx, hashToken(raw))
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Unauthenticated("refresh token revoked")
	}
	if err != nil {
		return nil, apperr.Internal("refresh token lookup failed", err)
	}

	userID, err := claims.ObjectID()
	if err != nil || userID != stored.UserID {
		return nil, apperr.Unauthenticated("invalid or expired refresh token")
	}

	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Forbidden("user no longer exists")
	}
	if err != nil {
		return nil, apperr.Internal("user lookup failed", err)
	}
	if user.IsDisabled() {
		return nil, apperr.Forbidden("account disabled")
	}

	session, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}

	revoked, err := s.refresh.Revoke(ctx, stored.ID, &session.refreshID)
	if err != nil {
		return nil, apperr.Internal("refresh token rotation failed", err)
	}
	if !revoked {
		_, _ = s.refresh.Revoke(ctx, session.refreshID, nil)
		return nil, apperr.Unauthenticated("refresh token revoked")
	}
	return session, nil
}

func (s *Service) Logout(ctx context.Context, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return apperr.BadRequest("refreshToken is required")
	}

	revoked, err := s.refresh.RevokeByHash(ctx, hashToken(raw))
	if err != nil {
		return apperr.Internal("logout failed", err)
	}
	if !revoked {
		return apperr.Unauthenticated("invalid refresh token")
	}
	return nil
}

// Authenticate resolves an access token to the live user record.
func (s *Service) Authenticate(ctx context.Context, raw string) (*models.User, error) {
	claims, err := s.tokens.ParseAccess(raw)
	if err != nil {
		return nil, apperr.Unauthenticated("invalid or expired token")
	}
	userID, err := claims.ObjectID()
	if err != nil {
		return nil, apperr.Unauthenticated("invalid or expired token")
	}

	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, apperr.Internal("user lookup failed", err)
	}
	if user.IsDisabled() {
		return nil, apperr.Forbidden("account disabled")
	}
	return user, nil
}

func (s *Service) UpdateProfile(ctx context.Context, user *models.User, in ProfileUpdate) (*models.User, error) {
	update := store.UserUpdate{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Phone:     in.Phone,
		Company:   in.Company,
	}

	if in.NewPassword != "" {
		if in.CurrentPassword == "" {
			return nil, apperr.Validation("validation failed", "currentPassword is required to change the password")
		}
		if !CheckPassword(user.PasswordHash, in.CurrentPassword) {
			return nil, apperr.BadRequest("current password is incorrect")
		}
		hash, err := HashPassword(in.NewPassword)
		if err != nil {
			return nil, apperr.Internal("password hash failed", err)
		}
		update.PasswordHash = &hash
	}

	updated, err := s.users.Update(ctx, user.ID, update)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, apperr.Internal("profile update failed", err)
	}
	return updated, nil
}

// SendVerification mails a fresh verification link. Delivery failures are
// logged only.
func (s *Service) SendVerification(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("user not found")
	}
	if err != nil {
		return apperr.Internal("user lookup failed", err)
	}
	if user.IsMailVerified {
		return apperr.Conflict("email already verified")
	}
	s.sendVerification(ctx, user)
	return nil
}

func (s *Service) VerifyEmail(ctx context.Context, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return apperr.Validation("validation failed", "token is required")
	}

	claims, err := s.tokens.ParseVerification(raw)
	if err != nil || claims.Email == "" {
		return apperr.BadRequest("invalid or expired verification token")
	}

	err = s.users.MarkMailVerified(ctx, normalizeEmail(claims.Email))
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("user not found")
	}
	if err != nil {
		return apperr.Internal("email verification failed", err)
	}
	log.Println("[AUTH] [INFO] email verified:", claims.Email)
	return nil
}

func (s *Service) sendVerification(ctx context.Context, user *models.User) {
	token, err := s.tokens.IssueVerification(user.Email)
	if err != nil {
		log.Println("[AUTH] [ERROR] verification token generation failed:", err)
		return
	}
	if err := s.mailer.SendVerification(ctx, user.Email, user.FullName(), token); err != nil {
		log.Println("[AUTH] [ERROR] verification email failed:", err)
	}
}

func (s *Service) issueSession(ctx context.Context, user *models.User) (*Session, error) {
	access, err := s.tokens.IssueAccess(*user)
	if err != nil {
		return nil, apperr.Internal("token generation failed", err)
	}
	refresh, expiresAt, err := s.tokens.IssueRefresh(user.ID)
	if err != nil {
		return nil, apperr.Internal("token generation failed", err)
	}

	record := &models.RefreshToken{
		UserID:    user.ID,
		TokenHash: hashToken(refresh),
		ExpiresAt: expiresAt,
	}
	if err := s.refresh.Create(ctx, record); err != nil {
		return nil, apperr.Internal("refresh token store failed", err)
	}

	return &Session{
		User:         user,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.tokens.AccessTTL() / time.Second),
		refreshID:    record.ID,
	}, nil
}
