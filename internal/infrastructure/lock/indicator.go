package lock

import (
	"context"
	"errors"
	"time"

	"github.com/ueckoken/kagi/internal/core/domain/door"
)

// DefaultPulse is the on and off time of each LED blink.
const DefaultPulse = 100 * time.Millisecond

// Output is a single digital line, e.g. gpio.Pin.
type Output interface {
	Set(high bool) error
}

// LEDIndicator blinks the grant or deny LED twice. It implements ports.Indicator.
type LEDIndicator struct {
	grant Output
	deny  Output
	pulse time.Duration
	sleep func(ctx context.Context, d time.Duration) error
}

func NewLEDIndicator(grant, deny Output, pulse time.Duration, sleep func(ctx context.Context, d time.Duration) error) *LEDIndicator {
	return &LEDIndicator{grant: grant, deny: deny, pulse: pulse, sleep: sleep}
}

func (l *LEDIndicator) Signal(ctx context.Context, s door.Signal) error {
	led := l.deny
	if s == door.SignalGrant {
		led = l.grant
	}

	// on, off, on, off; the last off must happen even if ctx ends mid-pattern
	var errs []error
	for i := 0; i < 2; i++ {
		if err := led.Set(true); err != nil {
			errs = append(errs, err)
			break
		}
		serr := l.sleep(ctx, l.pulse)
		if err := led.Set(false); err != nil {
			errs = append(errs, err)
			break
		}
		if serr != nil {
			errs = append(errs, serr)
			break
		}
		if i == 0 {
			if err := l.sleep(ctx, l.pulse); err != nil {
				errs = append(errs, err)
				break
			}
		}
	}
	return errors.Join(errs...)
}
