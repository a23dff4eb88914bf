package door

import "fmt"

// State is the believed physical position of the lock.
type State int

const (
	Locked State = iota
	Unlocked
)

func (s State) String() string {
	switch s {
	case Locked:
		return "locked"
	case Unlocked:
		return "unlocked"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ParseState accepts "locked" or "unlocked".
func ParseState(s string) (State, error) {
	switch s {
	case "locked", "":
		return Locked, nil
	case "unlocked":
		return Unlocked, nil
	default:
		return Locked, fmt.Errorf("unknown door state %q", s)
	}
}

// Action is what the controller asks the actuator to do for one presentation.
type Action int

const (
	ActionNone Action = iota
	ActionUnlock
	ActionLock
)

func (a Action) String() string {
	switch a {
	case ActionUnlock:
		return "unlock"
	case ActionLock:
		return "lock"
	default:
		return "none"
	}
}

// Signal selects which indicator pattern is shown to the card holder.
type Signal int

const (
	SignalGrant Signal = iota
	SignalDeny
)

func (s Signal) String() string {
	if s == SignalGrant {
		return "grant"
	}
	return "deny"
}

// Next is the transition table: a granted presentation toggles the lock,
// a denied one leaves it as is.
func Next(current State, granted bool) (Action, State) {
	if !granted {
		return ActionNone, current
	}
	if current == Locked {
		return ActionUnlock, Unlocked
	}
	return ActionLock, Locked
}
