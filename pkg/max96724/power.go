package max96724

import (
	"fmt"
	"time"

	"go.uber.org/multierr"
	"periph.io/x/conn/v3/gpio"
)

const (
	lineSettle  = 30 * time.Microsecond
	resetRelax  = 20 * time.Millisecond
	resetAssert = time.Microsecond
)

// PowerOn is reference counted: only the first caller sequences the reset
// line and power rail. A failing power rail leaves the count unchanged.
func (d *Deserializer) PowerOn() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs error
	if d.powerRef == 0 {
		d.sleep(resetAssert)
		errs = multierr.Append(errs, d.drive(d.resetLine, gpio.Low))
		d.sleep(lineSettle)

		if d.powerLine != nil {
			if err := d.powerLine.Out(gpio.High); err != nil {
				return fmt.Errorf("max96724: enable power rail: %w", err)
			}
		}
		d.sleep(lineSettle)

		if d.resetLine != nil {
			errs = multierr.Append(errs, d.drive(d.resetLine, gpio.Low))
			d.sleep(lineSettle)
			errs = multierr.Append(errs, d.drive(d.resetLine, gpio.High))
			d.sleep(lineSettle)
		}
		d.sleep(resetRelax)
		d.log.V(1).Info("powered on")
	}
	d.powerRef++
	d.observe()
	return errs
}

// PowerOff releases one power reference; the last one puts the chip back into
// reset and drops the rail. Extra calls are harmless.
func (d *Deserializer) PowerOff() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.powerRef > 0 {
		d.powerRef--
	}
	var errs error
	if d.powerRef == 0 {
		d.sleep(resetAssert)
		errs = multierr.Append(errs, d.drive(d.resetLine, gpio.Low))
		errs = multierr.Append(errs, d.drive(d.powerLine, gpio.Low))
		d.log.V(1).Info("powered off")
	}
	d.observe()
	return errs
}

func (d *Deserializer) drive(l Line, level gpio.Level) error {
	if l == nil {
		return nil
	}
	return l.Out(level)
}

// SetAuxiliaryIO drives an MFP pin as a push-pull output, typically a sensor
// trigger or strobe.
func (d *Deserializer) SetAuxiliaryIO(pin int, high bool) error {
	if pin < 0 || pin > MaxAuxPin {
		return fmt.Errorf("%w: mfp pin %d", ErrOutOfRange, pin)
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	s := d.newSeq("aux-io")
	var out uint8
	if high {
		out = gpioOutHigh
	}
	s.update(GPIOReg(pin), maskGPIOOut, out)
	s.update(GPIOReg(pin), maskGPIODrive, gpioPushPullValue)
	return s.err()
}
