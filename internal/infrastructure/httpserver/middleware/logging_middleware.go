package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/ueckoken/kagi/internal/infrastructure/httpserver/helpers"
)

type LoggingMiddleware struct {
	logger *logrus.Logger
}

func NewLoggingMiddleware(logger *logrus.Logger) *LoggingMiddleware {
	return &LoggingMiddleware{logger: logger}
}

// RequestLogging tags each request with a trace id and logs it once it completes.
func (m *LoggingMiddleware) RequestLogging() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			traceID := xid.New().String()
			helpers.SetTraceID(c, traceID)
			c.Response().Header().Set("X-Trace-Id", traceID)

			start := time.Now()
			err := next(c)
			if m.logger != nil {
				m.logger.WithFields(logrus.Fields{
					"trace_id": traceID,
					"method":   c.Request().Method,
					"path":     c.Path(),
					"status":   c.Response().Status,
					"duration": time.Since(start).String(),
					"subject":  helpers.GetSubject(c),
				}).Debug("request served")
			}
			return err
		}
	}
}
