package helpers

import (
	"github.com/labstack/echo/v4"

	"github.com/ueckoken/kagi/internal/core/domain/auth"
)

type ctxKey string

const (
	keyClaims  ctxKey = "claims"
	keyTraceID ctxKey = "trace_id"
)

func SetClaims(c echo.Context, claims *auth.Claims) { c.Set(string(keyClaims), claims) }
func GetClaimsRaw(c echo.Context) (*auth.Claims, bool) {
	v := c.Get(string(keyClaims))
	cl, ok := v.(*auth.Claims)
	return cl, ok
}

func SetTraceID(c echo.Context, id string) { c.Set(string(keyTraceID), id) }
func GetTraceIDRaw(c echo.Context) (string, bool) {
	v := c.Get(string(keyTraceID))
	s, ok := v.(string)
	return s, ok
}
