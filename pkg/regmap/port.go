// Package regmap is the register access layer used by the deserializer core.
// A Port reads and writes 8-bit registers behind 16-bit addresses; wrappers add
// bounded retry, logging, pacing and metrics on top of a concrete transport.
package regmap

import (
	"errors"
	"fmt"
)

// Port abstracts a physical or virtual register bank of an I2C device.
type Port interface {
	Read(addr uint16) (uint8, error)
	Write(addr uint16, val uint8) error
	UpdateBits(addr uint16, mask, val uint8) error
}

// ErrIO marks a register transaction that failed after every retry. Errors
// returned by transports and wrappers wrap it so callers can use errors.Is.
var ErrIO = errors.New("regmap: register i/o failure")

// Field is a register address paired with the bits a value occupies.
type Field struct {
	Addr uint16
	Mask uint8
}

// Shift returns the bit position of the lowest bit in the mask.
func (f Field) Shift() uint {
	if f.Mask == 0 {
		return 0
	}
	var s uint
	for f.Mask&(1<<s) == 0 {
		s++
	}
	return s
}

// Prep shifts v into the field and masks it.
func (f Field) Prep(v uint8) uint8 {
	return (v << f.Shift()) & f.Mask
}

// Get extracts the field from a full register value.
func (f Field) Get(reg uint8) uint8 {
	return (reg & f.Mask) >> f.Shift()
}

func (f Field) String() string {
	return fmt.Sprintf("0x%04X[%02X]", f.Addr, f.Mask)
}

// ReadWriter is the subset of Port a transport has to implement natively.
type ReadWriter interface {
	Read(addr uint16) (uint8, error)
	Write(addr uint16, val uint8) error
}

// UpdateBits performs a read-modify-write of the masked bits. The write is
// skipped when the register already holds the requested value.
func UpdateBits(rw ReadWriter, addr uint16, mask, val uint8) error {
	old, err := rw.Read(addr)
	if err != nil {
		return err
	}
	next := (old &^ mask) | (val & mask)
	if next == old {
		return nil
	}
	return rw.Write(addr, next)
}

// IOError wraps a transport failure with ErrIO and the register address.
func IOError(op string, addr uint16, cause error) error {
	if cause == nil {
		return nil
	}
	if errors.Is(cause, ErrIO) {
		return cause
	}
	return fmt.Errorf("%w: %s 0x%04X: %v", ErrIO, op, addr, cause)
}
