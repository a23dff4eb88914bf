package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ueckoken/kagi/internal/core/domain/door"
	"github.com/ueckoken/kagi/internal/core/domain/verification"
	"github.com/ueckoken/kagi/internal/core/ports"
)

// DefaultSettle is the pause after each presentation so one tap is not read twice.
const DefaultSettle = 1700 * time.Millisecond

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// SleepContext is the production SleepFunc.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type DoorControllerConfig struct {
	Initial door.State
	Settle  time.Duration
	Sleep   SleepFunc
	Now     func() time.Time
}

// DoorController holds the lock state. Every verified card toggles it;
// anything else only shows the deny pattern.
type DoorController struct {
	actuator  ports.Actuator
	indicator ports.Indicator
	metrics   ports.AccessMetrics
	logger    *logrus.Logger
	settle    time.Duration
	sleep     SleepFunc
	now       func() time.Time

	mu             sync.RWMutex
	state          door.State
	lastAction     door.Action
	lastTransition time.Time
	transitions    uint64
}

func NewDoorController(actuator ports.Actuator, indicator ports.Indicator, cfg DoorControllerConfig, metrics ports.AccessMetrics, logger *logrus.Logger) *DoorController {
	if cfg.Sleep == nil {
		cfg.Sleep = SleepContext
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &DoorController{
		actuator:  actuator,
		indicator: indicator,
		metrics:   metrics,
		logger:    logger,
		settle:    cfg.Settle,
		sleep:     cfg.Sleep,
		now:       cfg.Now,
		state:     cfg.Initial,
	}
}

// Handle applies one verification result and returns the state after it.
// If the actuator fails the state is left unchanged and the error returned.
func (c *DoorController) Handle(ctx context.Context, res verification.Result) (door.State, error) {
	c.mu.RLock()
	current := c.state
	c.mu.RUnlock()

	action, next := door.Next(current, res.Granted())

	sig := door.SignalDeny
	if res.Granted() {
		sig = door.SignalGrant
	}
	if err := c.indicator.Signal(ctx, sig); err != nil && c.logger != nil {
		c.logger.WithFields(logrus.Fields{"signal": sig.String()}).WithError(err).Warn("indicator failed")
	}

	var actErr error
	switch action {
	case door.ActionUnlock:
		actErr = c.actuator.Unlock(ctx)
	case door.ActionLock:
		actErr = c.actuator.Lock(ctx)
	}

	if action != door.ActionNone {
		if actErr != nil {
			next = current
			c.observeTransition("failed")
			if c.logger != nil {
				c.logger.WithFields(logrus.Fields{"action": action.String(), "state": current.String()}).WithError(actErr).Error("actuator failed; door state unchanged")
			}
		} else {
			c.mu.Lock()
			c.state = next
			c.lastAction = action
			c.lastTransition = c.now()
			c.transitions++
			c.mu.Unlock()
			c.observeTransition(action.String())
			if c.logger != nil {
				c.logger.WithFields(logrus.Fields{"action": action.String(), "state": next.String()}).Info("door " + action.String() + "ed")
			}
		}
	}

	// Only ctx cancellation cuts the settle time short.
	_ = c.sleep(ctx, c.settle)

	if actErr != nil {
		return next, fmt.Errorf("door %s: %w", action, actErr)
	}
	return next, nil
}

// Reset drives the actuator to neutral without touching the believed state.
func (c *DoorController) Reset(ctx context.Context) error {
	return c.actuator.Reset(ctx)
}

func (c *DoorController) State() door.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *DoorController) Snapshot() ports.DoorSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap := ports.DoorSnapshot{
		State:          c.state,
		StateName:      c.state.String(),
		LastTransition: c.lastTransition,
		Transitions:    c.transitions,
	}
	if c.lastAction != door.ActionNone {
		snap.LastAction = c.lastAction.String()
	}
	return snap
}

func (c *DoorController) observeTransition(action string) {
	if c.metrics != nil {
		c.metrics.ObserveTransition(action)
	}
}
