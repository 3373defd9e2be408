package middleware

import (
	"context"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"agency-backend/internal/apperr"
	"agency-backend/internal/models"
)

const userKey = "user"

var bearerPattern = regexp.MustCompile(`^Bearer .+$`)

type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (*models.User, error)
}

// Protect requires a bearer access token and attaches the live user record
// to the context.
func Protect(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("Authorization")
		if !bearerPattern.MatchString(raw) {
			log.Println("[AUTH] [ERROR] invalid token format")
			abort(c, apperr.Unauthenticated("expected 'Bearer <token>' authorization header"))
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		user, err := auth.Authenticate(ctx, strings.TrimSpace(strings.TrimPrefix(raw, "Bearer ")))
		if err != nil {
			log.Println("[AUTH] [ERROR] token validation failed:", err)
			abort(c, err)
			return
		}

		c.Set(userKey, user)
		c.Next()
	}
}

// RequireRole must run after Protect.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			abort(c, apperr.Unauthenticated("authentication required"))
			return
		}
		for _, role := range roles {
			if user.Role == role {
				c.Next()
				return
			}
		}
		log.Printf("[AUTH] [ERROR] role %s denied on %s", user.Role, c.FullPath())
		abort(c, apperr.Forbidden("insufficient permissions"))
	}
}

func RequireAdmin() gin.HandlerFunc {
	return RequireRole(models.RoleAdmin)
}

// CurrentUser returns the user attached by Protect.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	value, ok := c.Get(userKey)
	if !ok {
		return nil, false
	}
	user, ok := value.(*models.User)
	return user, ok && user != nil
}

func abort(c *gin.Context, err error) {
	message := "internal server error"
	if appErr, ok := apperr.As(err); ok {
		message = appErr.Message
	}
	c.AbortWithStatusJSON(apperr.Status(err), gin.H{"success": false, "message": message})
}

// Identify attaches the user when a valid bearer token is present and lets
// anonymous requests through untouched. Public routes use it to widen what
// administrators see.
func Identify(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("Authorization")
		if !bearerPattern.MatchString(raw) {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		user, err := auth.Authenticate(ctx, strings.TrimSpace(strings.TrimPrefix(raw, "Bearer ")))
		cancel()
		if err == nil {
			c.Set(userKey, user)
		}
		c.Next()
	}
}
