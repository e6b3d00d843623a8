package regscript

import (
	"fmt"
	"strconv"
	"time"

	"github.com/alecthomas/participle/v2/lexer"
)

// Script is a parsed register script.
type Script struct {
	Stmts []*Stmt `@@*`
}

// Stmt is one script statement. Exactly one field is set.
type Stmt struct {
	Pos lexer.Position

	Write  *Write  `  @@`
	Update *Update `| @@`
	Read   *Read   `| @@`
	Expect *Expect `| @@`
	Sleep  *Sleep  `| @@`
}

// Write: write <addr> <val>
type Write struct {
	Addr Addr `"write" @Number`
	Val  Byte `@Number`
}

// Update: update <addr> mask <mask> <val>
type Update struct {
	Addr Addr `"update" @Number`
	Mask Byte `"mask" @Number`
	Val  Byte `@Number`
}

// Read: read <addr>
type Read struct {
	Addr Addr `"read" @Number`
}

// Expect: expect <addr> [mask <mask>] <val>
type Expect struct {
	Addr Addr  `"expect" @Number`
	Mask *Byte `( "mask" @Number )?`
	Val  Byte  `@Number`
}

// Sleep: sleep <duration>
type Sleep struct {
	For Duration `"sleep" @Duration`
}

// Addr is a 16-bit register address.
type Addr uint16

func (a *Addr) Capture(values []string) error {
	v, err := strconv.ParseUint(values[0], 0, 16)
	if err != nil {
		return fmt.Errorf("address %q: %w", values[0], err)
	}
	*a = Addr(v)
	return nil
}

// Byte is an 8-bit register value or mask.
type Byte uint8

func (b *Byte) Capture(values []string) error {
	v, err := strconv.ParseUint(values[0], 0, 8)
	if err != nil {
		return fmt.Errorf("value %q: %w", values[0], err)
	}
	*b = Byte(v)
	return nil
}

// Duration is a sleep interval in Go duration syntax.
type Duration time.Duration

func (d *Duration) Capture(values []string) error {
	v, err := time.ParseDuration(values[0])
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (s *Stmt) String() string {
	switch {
	case s.Write != nil:
		return fmt.Sprintf("write 0x%04X 0x%02X", uint16(s.Write.Addr), uint8(s.Write.Val))
	case s.Update != nil:
		return fmt.Sprintf("update 0x%04X mask 0x%02X 0x%02X", uint16(s.Update.Addr), uint8(s.Update.Mask), uint8(s.Update.Val))
	case s.Read != nil:
		return fmt.Sprintf("read 0x%04X", uint16(s.Read.Addr))
	case s.Expect != nil:
		if s.Expect.Mask != nil {
			return fmt.Sprintf("expect 0x%04X mask 0x%02X 0x%02X", uint16(s.Expect.Addr), uint8(*s.Expect.Mask), uint8(s.Expect.Val))
		}
		return fmt.Sprintf("expect 0x%04X 0x%02X", uint16(s.Expect.Addr), uint8(s.Expect.Val))
	case s.Sleep != nil:
		return fmt.Sprintf("sleep %s", time.Duration(s.Sleep.For))
	}
	return "<empty>"
}
