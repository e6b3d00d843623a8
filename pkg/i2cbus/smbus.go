package i2cbus

import (
	"fmt"
	"sync"

	"github.com/platinasystems/i2c"

	"github.com/OpenTraceLab/OpenTraceGMSL/pkg/regmap"
)

// SMBus talks to the device through SMBus ioctls on /dev/i2c-<Index>, for
// adapters that cannot do plain I2C transfers. A register read is a
// byte-data write of the address followed by a receive byte.
type SMBus struct {
	Index   int
	Address int

	mu sync.Mutex
}

// NewSMBus returns a port for the device at addr on bus index.
func NewSMBus(index, addr int) *SMBus {
	return &SMBus{Index: index, Address: addr}
}

func (s *SMBus) String() string {
	return fmt.Sprintf("smbus-%d@0x%02X", s.Index, s.Address)
}

func (s *SMBus) do(rw i2c.RW, regOffset uint8, size i2c.SMBusSize, data *i2c.SMBusData) (err error) {
	var bus i2c.Bus

	if err = bus.Open(s.Index); err != nil {
		return
	}
	defer bus.Close()

	if err = bus.ForceSlaveAddress(s.Address); err != nil {
		return
	}
	return bus.Do(rw, regOffset, size, data)
}

func (s *SMBus) Read(addr uint16) (uint8, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(addr)
}

func (s *SMBus) Write(addr uint16, val uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(addr, val)
}

func (s *SMBus) UpdateBits(addr uint16, mask, val uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return regmap.UpdateBits(rawSMBus{s}, addr, mask, val)
}

func (s *SMBus) read(addr uint16) (uint8, error) {
	var data i2c.SMBusData
	hi, lo := splitAddr(addr)

	data[0] = lo
	if err := s.do(i2c.Write, hi, i2c.ByteData, &data); err != nil {
		return 0, fmt.Errorf("%w: smbus address 0x%04X: %v", regmap.ErrIO, addr, err)
	}
	if err := s.do(i2c.Read, 0, i2c.Byte, &data); err != nil {
		return 0, fmt.Errorf("%w: smbus read 0x%04X: %v", regmap.ErrIO, addr, err)
	}
	return data[0], nil
}

func (s *SMBus) write(addr uint16, val uint8) error {
	var data i2c.SMBusData
	hi, lo := splitAddr(addr)

	data[0] = lo
	data[1] = val
	if err := s.do(i2c.Write, hi, i2c.WordData, &data); err != nil {
		return fmt.Errorf("%w: smbus write 0x%04X: %v", regmap.ErrIO, addr, err)
	}
	return nil
}

type rawSMBus struct{ s *SMBus }

func (r rawSMBus) Read(addr uint16) (uint8, error)   { return r.s.read(addr) }
func (r rawSMBus) Write(addr uint16, val uint8) error { return r.s.write(addr, val) }
