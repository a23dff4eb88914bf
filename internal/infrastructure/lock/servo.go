package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	servoPeriod = 20 * time.Millisecond
	// the controller counts pulse width in 10µs ticks
	servoTick = 10 * time.Microsecond

	AngleLock    = 0
	AngleNeutral = 90
	AngleUnlock  = 180
)

// DefaultServoStep is how long the horn is given to reach each position.
const DefaultServoStep = 400 * time.Millisecond

// PWMChannel is the subset of gpio.PWM the servo needs.
type PWMChannel interface {
	SetPeriod(d time.Duration) error
	SetDutyCycle(d time.Duration) error
	Enable(on bool) error
}

// DutyForAngle maps 0..180 degrees onto a 0.5ms..2.5ms pulse, quantized to the
// 10µs resolution the lock was calibrated with.
func DutyForAngle(angle int) (time.Duration, error) {
	if angle < 0 || angle > 180 {
		return 0, fmt.Errorf("servo angle %d out of range 0..180", angle)
	}
	ticks := angle*200/180 + 50
	return time.Duration(ticks) * servoTick, nil
}

// Servo turns the thumb-turn with an RB303-class hobby servo. It implements ports.Actuator.
// Between moves the PWM output is disabled so the servo does not hold against the knob.
type Servo struct {
	pwm    PWMChannel
	step   time.Duration
	sleep  func(ctx context.Context, d time.Duration) error
	logger *logrus.Logger
}

func NewServo(pwm PWMChannel, step time.Duration, sleep func(ctx context.Context, d time.Duration) error, logger *logrus.Logger) *Servo {
	return &Servo{pwm: pwm, step: step, sleep: sleep, logger: logger}
}

func (s *Servo) Unlock(ctx context.Context) error {
	return s.swing(ctx, AngleUnlock)
}

func (s *Servo) Lock(ctx context.Context) error {
	return s.swing(ctx, AngleLock)
}

// Reset centers the horn and leaves the output enabled, as on power-up.
func (s *Servo) Reset(ctx context.Context) error {
	if err := s.pwm.SetPeriod(servoPeriod); err != nil {
		return err
	}
	if err := s.pwm.Enable(true); err != nil {
		return err
	}
	return s.Move(AngleNeutral)
}

// Move sets the pulse for angle without enabling or waiting.
func (s *Servo) Move(angle int) error {
	duty, err := DutyForAngle(angle)
	if err != nil {
		return err
	}
	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"angle": angle, "duty": duty.String()}).Debug("servo move")
	}
	return s.pwm.SetDutyCycle(duty)
}

// swing goes to angle, back to neutral, then releases the servo.
func (s *Servo) swing(ctx context.Context, angle int) (err error) {
	if err := s.pwm.SetPeriod(servoPeriod); err != nil {
		return err
	}
	if err := s.pwm.Enable(true); err != nil {
		return err
	}
	defer func() {
		if derr := s.pwm.Enable(false); derr != nil && err == nil {
			err = derr
		}
	}()

	if err := s.Move(angle); err != nil {
		return err
	}
	if err := s.sleep(ctx, s.step); err != nil {
		// Leave the horn centered even on shutdown so the knob stays free.
		_ = s.Move(AngleNeutral)
		return err
	}
	if err := s.Move(AngleNeutral); err != nil {
		return err
	}
	return s.sleep(context.WithoutCancel(ctx), s.step)
}
