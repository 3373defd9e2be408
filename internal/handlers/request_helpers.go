package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"agency-backend/internal/apperr"
	"agency-backend/internal/store"
)

const (
	requestTimeout = 5 * time.Second

	// gatewayMargin leaves room for the store writes around a gateway call.
	gatewayMargin = 5 * time.Second

	deadlineKey = "requestDeadline"
)

// envelope is the body of every JSON response.
type envelope struct {
	Success bool     `json:"success"`
	Data    any      `json:"data,omitempty"`
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
}

func handlePanic(c *gin.Context, route string) {
	if r := recover(); r != nil {
		log.Printf("[%s] panic recovered: %v", route, r)
		c.AbortWithStatusJSON(http.StatusInternalServerError, envelope{Message: "internal server error"})
	}
}

func requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	timeout := requestTimeout
	if d := c.GetDuration(deadlineKey); d > timeout {
		timeout = d
	}
	return context.WithTimeout(c.Request.Context(), timeout)
}

// gatewayDeadline extends the request context of routes that call the
// payment gateway past the gateway's own HTTP timeout.
func gatewayDeadline(gatewayTimeout time.Duration) gin.HandlerFunc {
	timeout := gatewayTimeout + gatewayMargin
	return func(c *gin.Context) {
		c.Set(deadlineKey, timeout)
		c.Next()
	}
}

func respond(c *gin.Context, status int, message string, data any) {
	c.JSON(status, envelope{Success: true, Data: data, Message: message})
}

// respondError renders err through the apperr taxonomy. Internal causes are
// logged and never sent to the client.
func respondError(c *gin.Context, route string, err error) {
	status := apperr.Status(err)
	body := envelope{Message: "internal server error"}
	if appErr, ok := apperr.As(err); ok {
		body.Errors = appErr.Fields
		if appErr.Kind != apperr.KindInternal {
			body.Message = appErr.Message
		}
	}
	if status >= http.StatusInternalServerError {
		log.Printf("[%s] returning error %d: %v", route, status, err)
	} else {
		log.Printf("[%s] returning error %d: %s", route, status, body.Message)
	}
	c.AbortWithStatusJSON(status, body)
}

// storeError translates persistence errors for the named resource.
func storeError(resource string, err error) error {
	var missing store.MissingReferenceError
	switch {
	case errors.As(err, &missing):
		return apperr.BadRequest(missing.Error())
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound(resource + " not found")
	case errors.Is(err, store.ErrDuplicate):
		return apperr.Conflict(resource + " already exists")
	case errors.Is(err, store.ErrStateConflict):
		return apperr.Conflict(resource + " can no longer be changed")
	default:
		return apperr.Internal(resource+" storage failed", err)
	}
}
