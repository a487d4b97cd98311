package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/coursegen/internal/http/response"
)

// BodyLimit caps request bodies at maxBytes. Handlers that fail to bind an
// oversized body get a 413 instead of their own error.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes <= 0 {
			c.Next()
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

// IsBodyTooLarge reports whether err came from a body cut off by BodyLimit.
func IsBodyTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

func RespondBodyTooLarge(c *gin.Context, err error) {
	response.RespondError(c, http.StatusRequestEntityTooLarge, "body_too_large", err)
}
