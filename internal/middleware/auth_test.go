package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"agency-backend/internal/apperr"
	"agency-backend/internal/models"
)

type authenticatorFunc func(ctx context.Context, raw string) (*models.User, error)

func (f authenticatorFunc) Authenticate(ctx context.Context, raw string) (*models.User, error) {
	return f(ctx, raw)
}

func newRouter(auth Authenticator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", Protect(auth), func(c *gin.Context) {
		user, _ := CurrentUser(c)
		c.JSON(http.StatusOK, gin.H{"id": user.ID.Hex()})
	})
	r.GET("/admin", Protect(auth), RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	r.GET("/open", RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func serve(r *gin.Engine, path, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestProtect(t *testing.T) {
	user := &models.User{ID: primitive.NewObjectID(), Role: models.RoleUser}
	var gotToken string
	r := newRouter(authenticatorFunc(func(_ context.Context, raw string) (*models.User, error) {
		gotToken = raw
		switch raw {
		case "good":
			return user, nil
		case "gone":
			return nil, apperr.NotFound("user not found")
		case "disabled":
			return nil, apperr.Forbidden("account disabled")
		default:
			return nil, apperr.Unauthenticated("invalid or expired token")
		}
	}))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{name: "missing header", header: "", status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", status: http.StatusUnauthorized},
		{name: "empty bearer", header: "Bearer ", status: http.StatusUnauthorized},
		{name: "invalid token", header: "Bearer bad", status: http.StatusUnauthorized},
		{name: "user deleted", header: "Bearer gone", status: http.StatusNotFound},
		{name: "user disabled", header: "Bearer disabled", status: http.StatusForbidden},
		{name: "valid", header: "Bearer good", status: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(r, "/me", tt.header)
			assert.Equal(t, tt.status, rec.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			if tt.status != http.StatusOK {
				assert.Equal(t, false, body["success"])
				assert.NotEmpty(t, body["message"])
			}
		})
	}
	assert.Equal(t, "good", gotToken)
}

func TestRequireAdmin(t *testing.T) {
	admin := &models.User{ID: primitive.NewObjectID(), Role: models.RoleAdmin}
	member := &models.User{ID: primitive.NewObjectID(), Role: models.RoleUser}
	r := newRouter(authenticatorFunc(func(_ context.Context, raw string) (*models.User, error) {
		if raw == "admin" {
			return admin, nil
		}
		return member, nil
	}))

	assert.Equal(t, http.StatusNoContent, serve(r, "/admin", "Bearer admin").Code)
	assert.Equal(t, http.StatusForbidden, serve(r, "/admin", "Bearer member").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "/open", "").Code)
}

func TestIdentify(t *testing.T) {
	admin := &models.User{ID: primitive.NewObjectID(), Role: models.RoleAdmin}
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/services", Identify(authenticatorFunc(func(_ context.Context, raw string) (*models.User, error) {
		if raw == "admin" {
			return admin, nil
		}
		return nil, apperr.Unauthenticated("invalid or expired token")
	})), func(c *gin.Context) {
		_, ok := CurrentUser(c)
		c.JSON(http.StatusOK, gin.H{"identified": ok})
	})

	for header, want := range map[string]bool{"": false, "Bearer bad": false, "Bearer admin": true} {
		rec := serve(r, "/services", header)
		require.Equal(t, http.StatusOK, rec.Code)
		var body map[string]bool
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, want, body["identified"], header)
	}
}
