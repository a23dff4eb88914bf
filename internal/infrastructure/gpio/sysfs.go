package gpio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Pin is a sysfs GPIO output line (/sys/class/gpio/gpioN).
type Pin struct {
	root string
	num  int
}

// OpenOutput exports pin num under root when needed and sets it as an output driven low.
func OpenOutput(root string, num int) (*Pin, error) {
	p := &Pin{root: root, num: num}
	if err := exportIfMissing(filepath.Join(root, "export"), p.dir(), strconv.Itoa(num)); err != nil {
		return nil, fmt.Errorf("gpio %d: %w", num, err)
	}
	// "low" sets direction and initial level in one write.
	if err := writeFile(filepath.Join(p.dir(), "direction"), "low"); err != nil {
		return nil, fmt.Errorf("gpio %d direction: %w", num, err)
	}
	return p, nil
}

func (p *Pin) dir() string {
	return filepath.Join(p.root, "gpio"+strconv.Itoa(p.num))
}

func (p *Pin) Set(high bool) error {
	v := "0"
	if high {
		v = "1"
	}
	if err := writeFile(filepath.Join(p.dir(), "value"), v); err != nil {
		return fmt.Errorf("gpio %d value: %w", p.num, err)
	}
	return nil
}

// Number is the BCM line number.
func (p *Pin) Number() int { return p.num }

// PWM is one sysfs PWM channel (/sys/class/pwm/pwmchipC/pwmN). Values are nanoseconds.
type PWM struct {
	root    string
	chip    int
	channel int
}

func OpenPWM(root string, chip, channel int) (*PWM, error) {
	p := &PWM{root: root, chip: chip, channel: channel}
	chipDir := filepath.Join(root, "pwmchip"+strconv.Itoa(chip))
	if err := exportIfMissing(filepath.Join(chipDir, "export"), p.dir(), strconv.Itoa(channel)); err != nil {
		return nil, fmt.Errorf("pwm %d/%d: %w", chip, channel, err)
	}
	return p, nil
}

func (p *PWM) dir() string {
	return filepath.Join(p.root, "pwmchip"+strconv.Itoa(p.chip), "pwm"+strconv.Itoa(p.channel))
}

func (p *PWM) SetPeriod(d time.Duration) error {
	return p.write("period", strconv.FormatInt(d.Nanoseconds(), 10))
}

func (p *PWM) SetDutyCycle(d time.Duration) error {
	return p.write("duty_cycle", strconv.FormatInt(d.Nanoseconds(), 10))
}

func (p *PWM) Enable(on bool) error {
	v := "0"
	if on {
		v = "1"
	}
	return p.write("enable", v)
}

func (p *PWM) write(attr, v string) error {
	if err := writeFile(filepath.Join(p.dir(), attr), v); err != nil {
		return fmt.Errorf("pwm %d/%d %s: %w", p.chip, p.channel, attr, err)
	}
	return nil
}

func exportIfMissing(exportFile, dir, id string) error {
	if _, err := os.Stat(dir); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := writeFile(exportFile, id); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	// udev applies permissions asynchronously after export.
	for i := 0; i < 20; i++ {
		if _, err := os.Stat(dir); err == nil {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("export: %s did not appear", dir)
}

func writeFile(path, v string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(v); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
