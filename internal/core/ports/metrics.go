package ports

import (
	"time"

	"github.com/ueckoken/kagi/internal/core/domain/verification"
)

// AccessMetrics receives counters from the door path. A nil AccessMetrics is allowed
// everywhere it is accepted.
type AccessMetrics interface {
	ObserveVerification(res verification.Result)
	ObserveCacheLookup(result string)
	ObserveTransition(action string)
	ObserveIteration(outcome string)
	ObserveAuthorityRequest(outcome string, d time.Duration)
}
