package helpers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

func GetJWTTokenFromContext(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header format")
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "empty token")
	}
	return token, nil
}

// GetSubject returns the token subject, or "anonymous" when auth is off.
func GetSubject(c echo.Context) string {
	if cl, ok := GetClaimsRaw(c); ok && cl != nil && cl.Subject != "" {
		return cl.Subject
	}
	return "anonymous"
}

func GetTraceID(c echo.Context) string {
	if id, ok := GetTraceIDRaw(c); ok {
		return id
	}
	return ""
}

// QueryInt parses an optional non-negative integer query parameter.
func QueryInt(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return n, nil
}

// QueryBool parses an optional boolean query parameter; nil means absent.
func QueryBool(c echo.Context, name string) (*bool, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return &b, nil
}
