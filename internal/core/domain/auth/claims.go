package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// ScopeStatusRead is the only scope the status API knows about.
const ScopeStatusRead = "status:read"

// Claims are carried by status API bearer tokens.
type Claims struct {
	Scope string `json:"scope"`

	jwt.RegisteredClaims
}

// TokenResponse is what kagictl prints after minting a token.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}
