package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"agency-backend/internal/models"
)

const (
	tokenTypeAccess       = "access"
	tokenTypeRefresh      = "refresh"
	tokenTypeVerification = "verification"
)

var ErrInvalidToken = errors.New("auth: invalid token")

// Claims is the payload shared by every token the backend signs. Type keeps
// an access token from being replayed as a refresh token and vice versa.
type Claims struct {
	UserID string      `json:"id,omitempty"`
	Role   models.Role `json:"role,omitempty"`
	Email  string      `json:"email,omitempty"`
	Type   string      `json:"typ"`
	jwt.RegisteredClaims
}

// ObjectID returns the subject user id.
func (c *Claims) ObjectID() (primitive.ObjectID, error) {
	return primitive.ObjectIDFromHex(c.UserID)
}

type TokenConfig struct {
	Secret             string
	VerificationSecret string
	AccessTTL          time.Duration
	RefreshTTL         time.Duration
	VerificationTTL    time.Duration
}

// Tokens signs and verifies HS256 JWTs.
type Tokens struct {
	cfg TokenConfig
	now func() time.Time
}

func NewTokens(cfg TokenConfig) *Tokens {
	return &Tokens{cfg: cfg, now: time.Now}
}

func (t *Tokens) AccessTTL() time.Duration {
	return t.cfg.AccessTTL
}

func (t *Tokens) IssueAccess(user models.User) (string, error) {
	now := t.now()
	return t.sign(t.cfg.Secret, Claims{
		UserID: user.ID.Hex(),
		Role:   user.Role,
		Type:   tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.cfg.AccessTTL)),
		},
	})
}

// IssueRefresh returns the signed token and its expiry. Each token carries a
// unique jti so two tokens issued in the same second still hash differently.
func (t *Tokens) IssueRefresh(userID primitive.ObjectID) (string, time.Time, error) {
	now := t.now()
	expiresAt := now.Add(t.cfg.RefreshTTL)
	signed, err := t.sign(t.cfg.Secret, Claims{
		UserID: userID.Hex(),
		Type:   tokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	return signed, expiresAt, err
}

func (t *Tokens) IssueVerification(email string) (string, error) {
	now := t.now()
	return t.sign(t.cfg.VerificationSecret, Claims{
		Email: email,
		Type:  tokenTypeVerification,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.cfg.VerificationTTL)),
		},
	})
}

func (t *Tokens) ParseAccess(raw string) (*Claims, error) {
	return t.parse(raw, t.cfg.Secret, tokenTypeAccess)
}

func (t *Tokens) ParseRefresh(raw string) (*Claims, error) {
	return t.parse(raw, t.cfg.Secret, tokenTypeRefresh)
}

func (t *Tokens) ParseVerification(raw string) (*Claims, error) {
	return t.parse(raw, t.cfg.VerificationSecret, tokenTypeVerification)
}

func (t *Tokens) sign(secret string, claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func (t *Tokens) parse(raw, secret, wantType string) (*Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Type != wantType {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}
