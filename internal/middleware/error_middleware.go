package middleware

import (
	"collaboraid-sync/internal/transport/httpdto"
	"collaboraid-sync/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ErrorHandler logs errors attached to the context and answers for handlers
// that bailed out without writing a response.
func ErrorHandler(l *logger.Logger) gin.HandlerFunc {
	log := logger.OrNop(l)
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		log.WithContext(c.Request.Context()).Warnf("request error: %s", err.Error())
		if c.Writer.Written() {
			return
		}
		c.JSON(c.Writer.Status(), httpdto.NewErrorResponse(err.Error(), "INTERNAL_ERROR"))
	}
}
