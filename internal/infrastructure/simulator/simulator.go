// Package simulator stands in for the servo and LEDs on machines without GPIO.
package simulator

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ueckoken/kagi/internal/core/domain/door"
)

type Actuator struct {
	logger *logrus.Logger

	mu    sync.Mutex
	moves []string
}

func NewActuator(logger *logrus.Logger) *Actuator {
	return &Actuator{logger: logger}
}

func (a *Actuator) Unlock(ctx context.Context) error { return a.record(ctx, "unlock") }
func (a *Actuator) Lock(ctx context.Context) error   { return a.record(ctx, "lock") }
func (a *Actuator) Reset(ctx context.Context) error  { return a.record(ctx, "reset") }

// Moves returns the actions performed so far.
func (a *Actuator) Moves() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.moves...)
}

func (a *Actuator) record(ctx context.Context, move string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	a.moves = append(a.moves, move)
	a.mu.Unlock()
	if a.logger != nil {
		a.logger.WithFields(logrus.Fields{"move": move}).Info("simulated servo")
	}
	return nil
}

type Indicator struct {
	logger *logrus.Logger
}

func NewIndicator(logger *logrus.Logger) *Indicator {
	return &Indicator{logger: logger}
}

func (i *Indicator) Signal(ctx context.Context, s door.Signal) error {
	if i.logger != nil {
		i.logger.WithFields(logrus.Fields{"signal": s.String()}).Info("simulated indicator")
	}
	return nil
}
