package ports

import (
	"context"
	"time"
)

// Cache defines a minimal key-value cache contract with per-entry expiry.
// Implementations return errors instead of panicking so the verifier can
// treat an unreachable store as a miss and fall back to the authority.
type Cache interface {
	// Get returns the raw bytes for key. ok=false if not found or expired.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value for key, evicted by the store after ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes the key; absence is not an error.
	Delete(ctx context.Context, key string) error
}
