package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"agency-backend/internal/apperr"
	"agency-backend/internal/auth"
	"agency-backend/internal/models"
	"agency-backend/internal/store"
	"agency-backend/internal/validation"
)

type UserStore interface {
	List(ctx context.Context) ([]models.User, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, id primitive.ObjectID, update store.UserUpdate) (*models.User, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
}

type createUserRequest struct {
	Email     string      `json:"email" binding:"required,email"`
	Role      models.Role `json:"role" binding:"required,oneof=ADMIN USER DISABLED"`
	FirstName string      `json:"firstName" binding:"required,min=2"`
	LastName  string      `json:"lastName" binding:"required,min=2"`
	Password  string      `json:"password" binding:"required,strongpassword"`
	Phone     string      `json:"phone" binding:"omitempty,phone"`
	Company   string      `json:"company"`
}

type updateUserRequest struct {
	Email     *string      `json:"email" binding:"omitempty,email"`
	Role      *models.Role `json:"role" binding:"omitempty,oneof=ADMIN USER DISABLED"`
	FirstName *string      `json:"firstName" binding:"omitempty,min=2"`
	LastName  *string      `json:"lastName" binding:"omitempty,min=2"`
	Password  *string      `json:"password" binding:"omitempty,strongpassword"`
	Phone     *string      `json:"phone" binding:"omitempty,phone"`
	Company   *string      `json:"company"`
}

func (r updateUserRequest) empty() bool {
	return r.Email == nil && r.Role == nil && r.FirstName == nil && r.LastName == nil &&
		r.Password == nil && r.Phone == nil && r.Company == nil
}

func ListUsers(users UserStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /users"
		defer handlePanic(c, route)

		ctx, cancel := requestContext(c)
		defer cancel()

		list, err := users.List(ctx)
		if err != nil {
			respondError(c, route, storeError("user", err))
			return
		}
		page, err := paginate(c, list)
		if err != nil {
			respondError(c, route, err)
			return
		}
		respond(c, http.StatusOK, "users retrieved", page)
	}
}

func GetUser(users UserStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /users/:id"
		defer handlePanic(c, route)

		id, err := validation.ParseID(c.Param("id"), "id")
		if err != nil {
			respondError(c, route, err)
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		user, err := users.GetByID(ctx, id)
		if err != nil {
			respondError(c, route, storeError("user", err))
			return
		}
		respond(c, http.StatusOK, "user retrieved", user)
	}
}

func CreateUser(users UserStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /users"
		defer handlePanic(c, route)

		var req createUserRequest
		if err := validation.BindJSON(c, &req); err != nil {
			respondError(c, route, err)
			return
		}

		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			respondError(c, route, apperr.Internal("password hash failed", err))
			return
		}

		user := &models.User{
			Email:        strings.ToLower(strings.TrimSpace(req.Email)),
			FirstName:    strings.TrimSpace(req.FirstName),
			LastName:     strings.TrimSpace(req.LastName),
			PasswordHash: hash,
			Phone:        req.Phone,
			Company:      req.Company,
			Role:         req.Role,
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		if err := users.Create(ctx, user); err != nil {
			respondError(c, route, storeError("user", err))
			return
		}
		respond(c, http.StatusCreated, "user created", user)
	}
}

func UpdateUser(users UserStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /users/:id"
		defer handlePanic(c, route)

		id, err := validation.ParseID(c.Param("id"), "id")
		if err != nil {
			respondError(c, route, err)
			return
		}

		var req updateUserRequest
		if err := validation.BindJSON(c, &req); err != nil {
			respondError(c, route, err)
			return
		}
		if req.empty() {
			respondError(c, route, apperr.Validation("validation failed", "at least one field must be provided"))
			return
		}

		update := store.UserUpdate{
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Phone:     req.Phone,
			Company:   req.Company,
			Role:      req.Role,
		}
		if req.Email != nil {
			email := strings.ToLower(strings.TrimSpace(*req.Email))
			update.Email = &email
		}
		if req.Password != nil {
			hash, err := auth.HashPassword(*req.Password)
			if err != nil {
				respondError(c, route, apperr.Internal("password hash failed", err))
				return
			}
			update.PasswordHash = &hash
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		user, err := users.Update(ctx, id, update)
		if err != nil {
			respondError(c, route, storeError("user", err))
			return
		}
		respond(c, http.StatusOK, "user updated", user)
	}
}

func DeleteUser(users UserStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /users/:id"
		defer handlePanic(c, route)

		id, err := validation.ParseID(c.Param("id"), "id")
		if err != nil {
			respondError(c, route, err)
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		if err := users.Delete(ctx, id); err != nil {
			respondError(c, route, storeError("user", err))
			return
		}
		respond(c, http.StatusOK, "user deleted", nil)
	}
}
