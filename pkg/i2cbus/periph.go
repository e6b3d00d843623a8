// Package i2cbus provides register ports for GMSL deserializers reached over
// I2C: Linux i2c-dev through periph or SMBus ioctls, and i2c-tiny-usb bridges.
//
// All ports use 16 bit big-endian register addresses and 8 bit values.
package i2cbus

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/OpenTraceLab/OpenTraceGMSL/pkg/regmap"
)

// DefaultAddress is the 7 bit address of a MAX96724 with both CFG pins low.
const DefaultAddress = 0x27

var initOnce struct {
	sync.Once
	err error
}

// HostInit loads the periph host drivers once per process.
func HostInit() error {
	initOnce.Do(func() {
		_, initOnce.err = host.Init()
	})
	return initOnce.err
}

func splitAddr(addr uint16) (hi, lo uint8) {
	return uint8(addr >> 8), uint8(addr)
}

// Periph is a register port on top of a periph I2C bus.
type Periph struct {
	mu     sync.Mutex
	dev    *i2c.Dev
	closer i2c.BusCloser
}

// OpenPeriph opens the named bus ("" picks the first one, "1" or "/dev/i2c-1"
// pick a specific one) and talks to the device at addr.
func OpenPeriph(bus string, addr uint16) (*Periph, error) {
	if err := HostInit(); err != nil {
		return nil, fmt.Errorf("i2cbus: periph init: %w", err)
	}
	b, err := i2creg.Open(bus)
	if err != nil {
		return nil, fmt.Errorf("i2cbus: open bus %q: %w", bus, err)
	}
	p := NewPeriph(b, addr)
	p.closer = b
	return p, nil
}

// NewPeriph wraps an already open bus. The caller keeps ownership of bus.
func NewPeriph(bus i2c.Bus, addr uint16) *Periph {
	return &Periph{dev: &i2c.Dev{Bus: bus, Addr: addr}}
}

func (p *Periph) String() string {
	return fmt.Sprintf("%s@0x%02X", p.dev.Bus, p.dev.Addr)
}

func (p *Periph) Read(addr uint16) (uint8, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.read(addr)
}

func (p *Periph) Write(addr uint16, val uint8) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.write(addr, val)
}

// UpdateBits is atomic with respect to other accesses through p.
func (p *Periph) UpdateBits(addr uint16, mask, val uint8) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return regmap.UpdateBits(rawPeriph{p}, addr, mask, val)
}

func (p *Periph) read(addr uint16) (uint8, error) {
	hi, lo := splitAddr(addr)
	r := make([]byte, 1)
	if err := p.dev.Tx([]byte{hi, lo}, r); err != nil {
		return 0, fmt.Errorf("%w: %v", regmap.ErrIO, err)
	}
	return r[0], nil
}

func (p *Periph) write(addr uint16, val uint8) error {
	hi, lo := splitAddr(addr)
	if err := p.dev.Tx([]byte{hi, lo, val}, nil); err != nil {
		return fmt.Errorf("%w: %v", regmap.ErrIO, err)
	}
	return nil
}

// Close releases the bus when it was opened by OpenPeriph.
func (p *Periph) Close() error {
	if p.closer == nil {
		return nil
	}
	err := p.closer.Close()
	p.closer = nil
	return err
}

// rawPeriph accesses the device with p.mu already held.
type rawPeriph struct{ p *Periph }

func (r rawPeriph) Read(addr uint16) (uint8, error) { return r.p.read(addr) }
func (r rawPeriph) Write(addr uint16, val uint8) error {
	return r.p.write(addr, val)
}

// ErrNoSuchLine is returned by LookupLine for unknown GPIO names.
var ErrNoSuchLine = errors.New("i2cbus: no such gpio line")

// LookupLine resolves a GPIO by name ("GPIO17", "17", a header pin alias).
// An empty name is not an error and yields a nil line.
func LookupLine(name string) (gpio.PinIO, error) {
	if name == "" {
		return nil, nil
	}
	if err := HostInit(); err != nil {
		return nil, fmt.Errorf("i2cbus: periph init: %w", err)
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoSuchLine, name)
	}
	return p, nil
}
