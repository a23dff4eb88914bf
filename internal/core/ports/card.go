package ports

import (
	"context"

	"github.com/ueckoken/kagi/internal/core/domain/card"
	"github.com/ueckoken/kagi/internal/core/domain/verification"
)

// CardReader blocks until a card is presented. Transient sensing failures are
// retried internally; an error is returned only once ctx is done.
type CardReader interface {
	Read(ctx context.Context) (card.IDm, error)
}

// CardVerifier decides whether a card is authorized. Implementations never
// panic and never return a bare bool: every failure is a typed Result.
type CardVerifier interface {
	Verify(ctx context.Context, id card.IDm) verification.Result
}
