package handlers

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Health reports 503 while the database does not answer.
func Health(ping func(context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := requestContext(c)
		defer cancel()

		if err := ping(ctx); err != nil {
			log.Printf("[HEALTH] database ping failed: %v", err)
			c.JSON(http.StatusServiceUnavailable, envelope{Message: "database unavailable"})
			return
		}
		c.JSON(http.StatusOK, envelope{Success: true, Message: "ok"})
	}
}
