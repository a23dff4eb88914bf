package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ueckoken/kagi/internal/core/domain/auth"
	"github.com/ueckoken/kagi/internal/core/ports"
)

var (
	ErrEmptySecret  = errors.New("token secret is empty")
	ErrInvalidToken = errors.New("invalid token")
)

const tokenIssuer = "kagi"

type TokenService struct {
	secret []byte
	now    func() time.Time
}

func NewTokenService(secret string) (ports.TokenService, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &TokenService{secret: []byte(secret), now: time.Now}, nil
}

func (s *TokenService) Issue(subject string, ttl time.Duration) (*auth.TokenResponse, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	now := s.now()
	claims := &auth.Claims{
		Scope: auth.ScopeStatusRead,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return &auth.TokenResponse{AccessToken: signed, ExpiresIn: int64(ttl.Seconds())}, nil
}

func (s *TokenService) Validate(tokenString string) (*auth.Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &auth.Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Ensure the token's signing method is HMAC (prevent alg confusion)
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithExpirationRequired(), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*auth.Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Scope != auth.ScopeStatusRead {
		return nil, fmt.Errorf("%w: scope %q", ErrInvalidToken, claims.Scope)
	}
	return claims, nil
}
