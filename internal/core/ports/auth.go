package ports

import (
	"time"

	"github.com/ueckoken/kagi/internal/core/domain/auth"
)

// TokenService issues and validates status API bearer tokens
type TokenService interface {
	Issue(subject string, ttl time.Duration) (*auth.TokenResponse, error)
	Validate(token string) (*auth.Claims, error)
}
