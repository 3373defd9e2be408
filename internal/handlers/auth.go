package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"agency-backend/internal/apperr"
	"agency-backend/internal/auth"
	"agency-backend/internal/middleware"
	"agency-backend/internal/models"
	"agency-backend/internal/validation"
)

type AuthService interface {
	Register(ctx context.Context, in auth.RegisterInput) (*auth.Session, error)
	Login(ctx context.Context, email, password string) (*auth.Session, error)
	Refresh(ctx context.Context, raw string) (*auth.Session, error)
	Logout(ctx context.Context, raw string) error
	UpdateProfile(ctx context.Context, user *models.User, in auth.ProfileUpdate) (*models.User, error)
	SendVerification(ctx context.Context, email string) error
	VerifyEmail(ctx context.Context, raw string) error
}

type registerRequest struct {
	Email     string `json:"email" binding:"required,email"`
	FirstName string `json:"firstName" binding:"required,min=2"`
	LastName  string `json:"lastName" binding:"required,min=2"`
	Password  string `json:"password" binding:"required,strongpassword"`
	Phone     string `json:"phone" binding:"omitempty,phone"`
	Company   string `json:"company"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type emailRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type profileRequest struct {
	FirstName       *string `json:"firstName" binding:"omitempty,min=2"`
	LastName        *string `json:"lastName" binding:"omitempty,min=2"`
	Phone           *string `json:"phone" binding:"omitempty,phone"`
	Company         *string `json:"company"`
	CurrentPassword string  `json:"currentPassword"`
	NewPassword     string  `json:"newPassword" binding:"omitempty,strongpassword"`
}

func Register(svc AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /auth/register"
		defer handlePanic(c, route)

		var req registerRequest
		if err := validation.BindJSON(c, &req); err != nil {
			respondError(c, route, err)
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		session, err := svc.Register(ctx, auth.RegisterInput{
			Email:     req.Email,
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Password:  req.Password,
			Phone:     req.Phone,
			Company:   req.Company,
		})
		if err != nil {
			respondError(c, route, err)
			return
		}
		respond(c, http.StatusCreated, "account created", session)
	}
}

func Login(svc AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /auth/login"
		defer handlePanic(c, route)

		var req loginRequest
		if err := validation.BindJSON(c, &req); err != nil {
			respondError(c, route, err)
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		session, err := svc.Login(ctx, req.Email, req.Password)
		if err != nil {
			respondError(c, route, err)
			return
		}
		respond(c, http.StatusOK, "login succeeded", session)
	}
}

func RefreshToken(svc AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /auth/refresh-token"
		defer handlePanic(c, route)

		var req refreshRequest
		if err := validation.BindJSON(c, &req); err != nil {
			respondError(c, route, err)
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		session, err := svc.Refresh(ctx, req.RefreshToken)
		if err != nil {
			respondError(c, route, err)
			return
		}
		respond(c, http.StatusOK, "token refreshed", session)
	}
}

func Logout(svc AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /auth/logout"
		defer handlePanic(c, route)

		var req refreshRequest
		if err := validation.BindJSON(c, &req); err != nil {
			respondError(c, route, err)
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		if err := svc.Logout(ctx, req.RefreshToken); err != nil {
			respondError(c, route, err)
			return
		}
		respond(c, http.StatusOK, "logged out", nil)
	}
}

func GetProfile() gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /auth/profile"
		defer handlePanic(c, route)

		user, ok := middleware.CurrentUser(c)
		if !ok {
			respondError(c, route, apperr.Unauthenticated("authentication required"))
			return
		}
		respond(c, http.StatusOK, "profile retrieved", user)
	}
}

func UpdateProfile(svc AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /auth/profile"
		defer handlePanic(c, route)

		user, ok := middleware.CurrentUser(c)
		if !ok {
			respondError(c, route, apperr.Unauthenticated("authentication required"))
			return
		}

		var req profileRequest
		if err := validation.BindJSON(c, &req); err != nil {
			respondError(c, route, err)
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		updated, err := svc.UpdateProfile(ctx, user, auth.ProfileUpdate{
			FirstName:       req.FirstName,
			LastName:        req.LastName,
			Phone:           req.Phone,
			Company:         req.Company,
			CurrentPassword: req.CurrentPassword,
			NewPassword:     req.NewPassword,
		})
		if err != nil {
			respondError(c, route, err)
			return
		}
		respond(c, http.StatusOK, "profile updated", updated)
	}
}

func SendVerificationMail(svc AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /auth/send-verification-mail"
		defer handlePanic(c, route)

		var req emailRequest
		if err := validation.BindJSON(c, &req); err != nil {
			respondError(c, route, err)
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		if err := svc.SendVerification(ctx, req.Email); err != nil {
			respondError(c, route, err)
			return
		}
		respond(c, http.StatusOK, "verification email sent", nil)
	}
}

func VerifyEmail(svc AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /auth/verify-email"
		defer handlePanic(c, route)

		ctx, cancel := requestContext(c)
		defer cancel()

		if err := svc.VerifyEmail(ctx, c.Query("token")); err != nil {
			respondError(c, route, err)
			return
		}
		respond(c, http.StatusOK, "email verified", nil)
	}
}
