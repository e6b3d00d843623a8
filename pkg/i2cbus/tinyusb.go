package i2cbus

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/gousb"

	"github.com/OpenTraceLab/OpenTraceGMSL/pkg/regmap"
)

const (
	// i2c-tiny-usb USB identifiers
	VendorIDTinyUSB  = 0x0403
	ProductIDTinyUSB = 0xC631

	cmdEcho      = 0
	cmdGetFunc   = 1
	cmdSetDelay  = 2
	cmdGetStatus = 3
	cmdI2CIO     = 4

	flagBegin = 1
	flagEnd   = 2

	msgRead = 0x0001

	statusIdle    = 0
	statusAddrAck = 1
	statusAddrNak = 2

	// DefaultDelay is the SCL half period in microseconds (100 kHz).
	DefaultDelay = 10
)

// ErrNak is returned when the device does not acknowledge its address.
var ErrNak = errors.New("i2cbus: address not acknowledged")

// controller is the vendor control pipe of the bridge. *gousb.Device
// implements it.
type controller interface {
	Control(rType, request uint8, val, idx uint16, data []byte) (int, error)
}

// TinyUSB drives an i2c-tiny-usb compatible bridge through vendor control
// transfers.
type TinyUSB struct {
	mu   sync.Mutex
	ctrl controller
	addr uint16

	ctx *gousb.Context
	dev *gousb.Device
}

// OpenTinyUSB opens the first bridge matching vid:pid and configures the bus
// clock. addr is the 7 bit device address.
func OpenTinyUSB(vid, pid, addr uint16) (*TinyUSB, error) {
	ctx := gousb.NewContext()

	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("i2cbus: usb error: %w", err)
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("i2cbus: device not found (VID:0x%04X PID:0x%04X)", vid, pid)
	}
	// Not supported on every platform.
	_ = dev.SetAutoDetach(true)
	dev.ControlTimeout = time.Second

	t := newTinyUSB(dev, addr)
	t.ctx = ctx
	t.dev = dev
	if err := t.SetDelay(DefaultDelay); err != nil {
		t.Close()
		return nil, err
	}
	return t, nil
}

func newTinyUSB(ctrl controller, addr uint16) *TinyUSB {
	return &TinyUSB{ctrl: ctrl, addr: addr}
}

func (t *TinyUSB) String() string {
	return fmt.Sprintf("i2c-tiny-usb@0x%02X", t.addr)
}

func (t *TinyUSB) out(req uint8, val, idx uint16, data []byte) error {
	_, err := t.ctrl.Control(gousb.ControlVendor|gousb.ControlInterface|gousb.ControlOut, req, val, idx, data)
	return err
}

func (t *TinyUSB) in(req uint8, val, idx uint16, data []byte) (int, error) {
	return t.ctrl.Control(gousb.ControlVendor|gousb.ControlInterface|gousb.ControlIn, req, val, idx, data)
}

// Functionality returns the I2C_FUNC bitmap reported by the firmware.
func (t *TinyUSB) Functionality() (uint32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	buf := make([]byte, 4)
	n, err := t.in(cmdGetFunc, 0, 0, buf)
	if err != nil {
		return 0, fmt.Errorf("i2cbus: get functionality: %w", err)
	}
	if n != len(buf) {
		return 0, fmt.Errorf("i2cbus: short functionality reply (%d bytes)", n)
	}
	return uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24, nil
}

// SetDelay sets the SCL half period in microseconds.
func (t *TinyUSB) SetDelay(us uint16) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.out(cmdSetDelay, us, 0, nil); err != nil {
		return fmt.Errorf("i2cbus: set delay: %w", err)
	}
	return nil
}

// Echo round-trips a value through the firmware.
func (t *TinyUSB) Echo(v uint16) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	buf := make([]byte, 2)
	if _, err := t.in(cmdEcho, v, 0, buf); err != nil {
		return fmt.Errorf("i2cbus: echo: %w", err)
	}
	if got := uint16(buf[0]) | uint16(buf[1])<<8; got != v {
		return fmt.Errorf("i2cbus: echo returned 0x%04X, want 0x%04X", got, v)
	}
	return nil
}

func (t *TinyUSB) status() error {
	buf := make([]byte, 1)
	if _, err := t.in(cmdGetStatus, 0, 0, buf); err != nil {
		return fmt.Errorf("%w: get status: %v", regmap.ErrIO, err)
	}
	switch buf[0] {
	case statusAddrAck, statusIdle:
		return nil
	case statusAddrNak:
		return fmt.Errorf("%w: %w at 0x%02X", regmap.ErrIO, ErrNak, t.addr)
	default:
		return fmt.Errorf("%w: unknown bridge status %d", regmap.ErrIO, buf[0])
	}
}

func (t *TinyUSB) Read(addr uint16) (uint8, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.read(addr)
}

func (t *TinyUSB) Write(addr uint16, val uint8) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.write(addr, val)
}

func (t *TinyUSB) UpdateBits(addr uint16, mask, val uint8) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return regmap.UpdateBits(rawTinyUSB{t}, addr, mask, val)
}

// read issues the address write without a stop condition, then the data
// read with a repeated start.
func (t *TinyUSB) read(addr uint16) (uint8, error) {
	hi, lo := splitAddr(addr)
	if err := t.out(cmdI2CIO|flagBegin, 0, t.addr, []byte{hi, lo}); err != nil {
		return 0, fmt.Errorf("%w: address 0x%04X: %v", regmap.ErrIO, addr, err)
	}
	if err := t.status(); err != nil {
		return 0, err
	}
	buf := make([]byte, 1)
	n, err := t.in(cmdI2CIO|flagEnd, msgRead, t.addr, buf)
	if err != nil {
		return 0, fmt.Errorf("%w: read 0x%04X: %v", regmap.ErrIO, addr, err)
	}
	if n != 1 {
		return 0, fmt.Errorf("%w: read 0x%04X: %d bytes", regmap.ErrIO, addr, n)
	}
	if err := t.status(); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (t *TinyUSB) write(addr uint16, val uint8) error {
	hi, lo := splitAddr(addr)
	if err := t.out(cmdI2CIO|flagBegin|flagEnd, 0, t.addr, []byte{hi, lo, val}); err != nil {
		return fmt.Errorf("%w: write 0x%04X: %v", regmap.ErrIO, addr, err)
	}
	return t.status()
}

// Close releases USB resources.
func (t *TinyUSB) Close() error {
	if t.dev != nil {
		t.dev.Close()
		t.dev = nil
	}
	if t.ctx != nil {
		t.ctx.Close()
		t.ctx = nil
	}
	return nil
}

type rawTinyUSB struct{ t *TinyUSB }

func (r rawTinyUSB) Read(addr uint16) (uint8, error)   { return r.t.read(addr) }
func (r rawTinyUSB) Write(addr uint16, val uint8) error { return r.t.write(addr, val) }
