package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/ueckoken/kagi/internal/core/domain/card"
	"github.com/ueckoken/kagi/internal/core/domain/verification"
	"github.com/ueckoken/kagi/internal/core/ports"
)

// DefaultCacheTTL is how long a positive verification is trusted without asking the authority.
const DefaultCacheTTL = 7 * 24 * time.Hour

// DefaultCacheLookupTimeout bounds each cache call independently of the authority budget.
const DefaultCacheLookupTimeout = 300 * time.Millisecond

// verifiedMarker is the cached value. Only presence is meaningful.
var verifiedMarker = []byte("1")

// CachingCardVerifier puts a positive-only, time-bounded cache in front of another verifier.
// A card revoked at the authority keeps opening the door until its entry expires.
type CachingCardVerifier struct {
	inner         ports.CardVerifier
	cache         ports.Cache
	ttl           time.Duration
	lookupTimeout time.Duration
	metrics       ports.AccessMetrics
	logger        *logrus.Logger
	sf            singleflight.Group
}

// NewCachingCardVerifier wraps inner. A ttl <= 0 disables writes; lookups still run so
// entries written by another node sharing the store are honored.
func NewCachingCardVerifier(inner ports.CardVerifier, cache ports.Cache, ttl time.Duration, metrics ports.AccessMetrics, logger *logrus.Logger) *CachingCardVerifier {
	return &CachingCardVerifier{
		inner:         inner,
		cache:         cache,
		ttl:           ttl,
		lookupTimeout: DefaultCacheLookupTimeout,
		metrics:       metrics,
		logger:        logger,
	}
}

// WithLookupTimeout replaces the per-call cache deadline; d <= 0 leaves cache calls
// bounded only by the caller's context.
func (v *CachingCardVerifier) WithLookupTimeout(d time.Duration) *CachingCardVerifier {
	v.lookupTimeout = d
	return v
}

func (v *CachingCardVerifier) cacheContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if v.lookupTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, v.lookupTimeout)
}

func (v *CachingCardVerifier) Verify(ctx context.Context, id card.IDm) verification.Result {
	key := id.String()

	if v.cachedVerified(ctx, key) {
		return verification.NewVerified(verification.SourceCache)
	}

	r, _, _ := v.sf.Do(key, func() (any, error) {
		return v.inner.Verify(ctx, id), nil
	})
	res := r.(verification.Result)
	if !res.Granted() {
		return res
	}

	v.remember(ctx, key)
	return verification.NewVerified(verification.SourceAuthority)
}

func (v *CachingCardVerifier) cachedVerified(ctx context.Context, key string) bool {
	if v.cache == nil {
		return false
	}
	ctx, cancel := v.cacheContext(ctx)
	defer cancel()
	_, ok, err := v.cache.Get(ctx, key)
	switch {
	case err != nil:
		v.observeLookup("error")
		if v.logger != nil {
			v.logger.WithFields(logrus.Fields{"idm": key}).WithError(err).Warn("verification cache unreachable; asking authority")
		}
		return false
	case ok:
		v.observeLookup("hit")
		if v.logger != nil {
			v.logger.WithFields(logrus.Fields{"idm": key}).Debug("verification cache hit")
		}
		return true
	default:
		v.observeLookup("miss")
		return false
	}
}

func (v *CachingCardVerifier) remember(ctx context.Context, key string) {
	if v.cache == nil || v.ttl <= 0 {
		return
	}
	ctx, cancel := v.cacheContext(ctx)
	defer cancel()
	if err := v.cache.Set(ctx, key, verifiedMarker, v.ttl); err != nil && v.logger != nil {
		v.logger.WithFields(logrus.Fields{"idm": key, "ttl": v.ttl.String()}).WithError(err).Warn("failed to cache verification")
	}
}

func (v *CachingCardVerifier) observeLookup(result string) {
	if v.metrics != nil {
		v.metrics.ObserveCacheLookup(result)
	}
}
