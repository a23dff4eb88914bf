package ports

import (
	"context"
	"time"

	"github.com/ueckoken/kagi/internal/core/domain/door"
	"github.com/ueckoken/kagi/internal/core/domain/verification"
)

// Actuator moves the physical lock. Each call returns after the motion completes.
type Actuator interface {
	Unlock(ctx context.Context) error
	Lock(ctx context.Context) error
	// Reset drives the mechanism to its neutral position.
	Reset(ctx context.Context) error
}

// Indicator shows the grant or deny pattern to the card holder.
type Indicator interface {
	Signal(ctx context.Context, s door.Signal) error
}

// DoorSnapshot is a read-only view of the controller for status reporting.
type DoorSnapshot struct {
	State          door.State `json:"-"`
	StateName      string     `json:"state"`
	LastAction     string     `json:"last_action,omitempty"`
	LastTransition time.Time  `json:"last_transition,omitempty"`
	Transitions    uint64     `json:"transitions"`
}

// DoorController owns the lock state and sequences signal, actuation and settle.
type DoorController interface {
	Handle(ctx context.Context, res verification.Result) (door.State, error)
	Reset(ctx context.Context) error
	Snapshot() DoorSnapshot
}
