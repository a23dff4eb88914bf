package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/ueckoken/kagi/internal/core/ports"
	"github.com/ueckoken/kagi/internal/infrastructure/httpserver/helpers"
)

type JWTMiddleware struct {
	tokens ports.TokenService
	logger *logrus.Logger
}

func NewJWTMiddleware(tokens ports.TokenService, logger *logrus.Logger) *JWTMiddleware {
	return &JWTMiddleware{tokens: tokens, logger: logger}
}

// RequireJWT validates the bearer token and stores its claims on the context
func (m *JWTMiddleware) RequireJWT() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if m.tokens == nil {
			return next
		}
		return func(c echo.Context) error {
			tokenString, err := helpers.GetJWTTokenFromContext(c)
			if err != nil {
				return err
			}

			claims, err := m.tokens.Validate(tokenString)
			if err != nil {
				if m.logger != nil {
					m.logger.WithFields(logrus.Fields{"ip": c.RealIP(), "path": c.Request().URL.Path, "error": err.Error()}).Warn("JWT validation failed")
				}
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			helpers.SetClaims(c, claims)
			if m.logger != nil {
				m.logger.WithFields(logrus.Fields{"subject": claims.Subject}).Debug("jwt validated")
			}
			return next(c)
		}
	}
}
