package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ueckoken/kagi/internal/core/domain/card"
	"github.com/ueckoken/kagi/internal/core/domain/verification"
	"github.com/ueckoken/kagi/internal/core/ports"
)

// TimeoutCardVerifier bounds a single verification. When the deadline passes the
// card is denied with a TransportFault instead of hanging the door loop.
type TimeoutCardVerifier struct {
	inner   ports.CardVerifier
	timeout time.Duration
}

// NewTimeoutCardVerifier returns inner unchanged when timeout <= 0.
func NewTimeoutCardVerifier(inner ports.CardVerifier, timeout time.Duration) ports.CardVerifier {
	if timeout <= 0 {
		return inner
	}
	return &TimeoutCardVerifier{inner: inner, timeout: timeout}
}

func (v *TimeoutCardVerifier) Verify(ctx context.Context, id card.IDm) verification.Result {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	done := make(chan verification.Result, 1)
	go func() {
		// This goroutine is outside the loop's recover; a panicking verifier denies the card.
		defer func() {
			if r := recover(); r != nil {
				done <- verification.NewAuthorityFault("panic", fmt.Errorf("verifier panic: %v", r))
			}
		}()
		done <- v.inner.Verify(ctx, id)
	}()

	select {
	case res := <-done:
		return res
	case <-ctx.Done():
		err := ctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			return verification.NewTransportFault("timeout", err)
		}
		return verification.NewTransportFault("cancelled", err)
	}
}
