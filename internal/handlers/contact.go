package handlers

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"agency-backend/internal/apperr"
	"agency-backend/internal/notify"
	"agency-backend/internal/validation"
)

type ContactSender interface {
	SendContact(ctx context.Context, in notify.ContactMessage) error
}

type contactRequest struct {
	Name    string `json:"name" binding:"required,min=2,max=100"`
	Email   string `json:"email" binding:"required,email,max=255"`
	Subject string `json:"subject" binding:"required,contactsubject"`
	Message string `json:"message" binding:"required,min=10,max=2000"`
}

// Contact relays the form to the agency inbox. Unlike the transactional
// mails, a delivery failure here fails the request.
func Contact(sender ContactSender) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /contact"
		defer handlePanic(c, route)

		var req contactRequest
		if err := validation.BindJSON(c, &req); err != nil {
			respondError(c, route, err)
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		err := sender.SendContact(ctx, notify.ContactMessage{
			Name:    strings.TrimSpace(req.Name),
			Email:   strings.ToLower(strings.TrimSpace(req.Email)),
			Subject: req.Subject,
			Message: strings.TrimSpace(req.Message),
		})
		if err != nil {
			respondError(c, route, apperr.Upstream("message could not be sent, please try again later", err))
			return
		}

		log.Printf("[CONTACT] [INFO] message from %s (%s)", req.Email, req.Subject)
		respond(c, http.StatusOK, "message sent", nil)
	}
}
