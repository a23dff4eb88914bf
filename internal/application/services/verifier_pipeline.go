package services

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ueckoken/kagi/internal/core/ports"
)

type VerifierConfig struct {
	CacheTTL time.Duration
	// LookupTimeout bounds each cache call; a slow cache counts as a miss.
	LookupTimeout time.Duration
	// AuthorityTimeout bounds the authority call only, never the cache lookup.
	AuthorityTimeout time.Duration
}

// NewCardVerifier composes the verification path used by the door loop and kagictl:
// cache-aside in front of a deadline-bounded authority.
func NewCardVerifier(authority ports.CardVerifier, cache ports.Cache, cfg VerifierConfig, metrics ports.AccessMetrics, logger *logrus.Logger) ports.CardVerifier {
	bounded := NewTimeoutCardVerifier(authority, cfg.AuthorityTimeout)
	return NewCachingCardVerifier(bounded, cache, cfg.CacheTTL, metrics, logger).WithLookupTimeout(cfg.LookupTimeout)
}
