package middleware

import (
	"github.com/GoDerive/derivegate/internal/pkg/apperrors"
	"github.com/GoDerive/derivegate/internal/pkg/logger"
	"github.com/gin-gonic/gin"
)

// ErrorHandler translates errors attached by handlers into the stable
// JSON error shape. Handlers push classified AppErrors; anything else
// is wrapped as internal so nothing opaque crosses the boundary.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		appErr := apperrors.Wrap(err)

		logFields := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"code", appErr.Type,
			"client_ip", c.ClientIP(),
		}

		if appErr.HTTPStatus >= 500 {
			logger.LogError(c.Request.Context(), appErr, "request failed", logFields...)
		} else {
			logger.Warn(appErr.Message, logFields...)
		}

		c.JSON(appErr.HTTPStatus, appErr)
	}
}
