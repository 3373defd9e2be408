package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"agency-backend/internal/apperr"
)

// UploadImage accepts a multipart "image" field and stores it in dir.
func UploadImage(dir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /upload/image"
		defer handlePanic(c, route)

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImageSize+(1<<20))

		file, err := c.FormFile("image")
		if err != nil {
			respondError(c, route, apperr.Validation("validation failed", "image file is required"))
			return
		}

		url, err := saveImage(dir, file)
		if err != nil {
			respondError(c, route, err)
			return
		}
		respond(c, http.StatusCreated, "image uploaded", gin.H{"imageUrl": url})
	}
}
