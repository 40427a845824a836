package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/atelier-hq/atelier-backend/pkg/errors"
	"github.com/atelier-hq/atelier-backend/pkg/logger"
	"github.com/gin-gonic/gin"
)

// ErrorHandlerMiddleware handles errors and panics
func ErrorHandlerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error().
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", stack).
					Msg("Panic recovered")

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "Internal Server Error",
					"kind":  errors.KindInternal,
				})
			}
		}()

		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		if appErr, ok := errors.As(err); ok {
			if appErr.Kind == errors.KindPersistence || appErr.Kind == errors.KindInternal {
				logger.Error().Err(appErr).Str("path", c.Request.URL.Path).Msg("Request failed")
			}
			c.JSON(appErr.Code, gin.H{
				"error": appErr.Message,
				"kind":  appErr.Kind,
			})
			return
		}

		logger.Error().Err(err).Msg("Unhandled request error")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Internal Server Error",
			"kind":  errors.KindInternal,
		})
	}
}
