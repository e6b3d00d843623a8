package regmap

import (
	"fmt"
	"sync"
)

// OpKind identifies the register operation recorded by SimBank.
type OpKind uint8

const (
	OpRead OpKind = iota
	OpWrite
	OpUpdate
)

func (k OpKind) String() string {
	switch k {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpUpdate:
		return "update"
	default:
		return fmt.Sprintf("op(%d)", uint8(k))
	}
}

// Op captures one register access for inspection within tests. For updates Val
// holds the requested bits and Result the register content afterwards.
type Op struct {
	Kind   OpKind
	Addr   uint16
	Mask   uint8
	Val    uint8
	Result uint8
	Err    error
}

func (o Op) String() string {
	switch o.Kind {
	case OpUpdate:
		return fmt.Sprintf("update 0x%04X mask 0x%02X 0x%02X", o.Addr, o.Mask, o.Val)
	case OpWrite:
		return fmt.Sprintf("write 0x%04X 0x%02X", o.Addr, o.Val)
	default:
		return fmt.Sprintf("read 0x%04X", o.Addr)
	}
}

// ReadHook lets the simulator emulate volatile status registers.
type ReadHook func(addr uint16, stored uint8) uint8

// SimBank is an in-memory register bank useful for unit tests and the CLI
// simulator. It journals every access and can inject failures per address.
type SimBank struct {
	mu sync.Mutex

	OnRead ReadHook

	regs     map[uint16]uint8
	journal  []Op
	failures map[uint16]int
}

// NewSimBank constructs an empty bank. Unset registers read as zero.
func NewSimBank() *SimBank {
	return &SimBank{
		regs:     make(map[uint16]uint8),
		failures: make(map[uint16]int),
	}
}

// Set presets a register without recording a journal entry.
func (s *SimBank) Set(addr uint16, val uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regs[addr] = val
}

// Get returns the stored register value without recording a journal entry.
func (s *SimBank) Get(addr uint16) uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regs[addr]
}

// FailAddr makes the next n accesses to addr fail. A negative n fails forever;
// zero clears the fault.
func (s *SimBank) FailAddr(addr uint16, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n == 0 {
		delete(s.failures, addr)
		return
	}
	s.failures[addr] = n
}

// Journal returns a copy of every recorded access.
func (s *SimBank) Journal() []Op {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Op(nil), s.journal...)
}

// Mutations returns the recorded writes and updates, in order.
func (s *SimBank) Mutations() []Op {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Op
	for _, op := range s.journal {
		if op.Kind != OpRead {
			out = append(out, op)
		}
	}
	return out
}

// ResetJournal drops the recorded accesses but keeps register content.
func (s *SimBank) ResetJournal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.journal = nil
}

func (s *SimBank) Read(addr uint16) (uint8, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("read", addr); err != nil {
		s.journal = append(s.journal, Op{Kind: OpRead, Addr: addr, Err: err})
		return 0, err
	}
	val := s.regs[addr]
	if s.OnRead != nil {
		val = s.OnRead(addr, val)
	}
	s.journal = append(s.journal, Op{Kind: OpRead, Addr: addr, Result: val})
	return val, nil
}

func (s *SimBank) Write(addr uint16, val uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("write", addr); err != nil {
		s.journal = append(s.journal, Op{Kind: OpWrite, Addr: addr, Val: val, Err: err})
		return err
	}
	s.regs[addr] = val
	s.journal = append(s.journal, Op{Kind: OpWrite, Addr: addr, Val: val, Result: val})
	return nil
}

// UpdateBits is recorded as a single journal entry even though it reads the
// stored value first.
func (s *SimBank) UpdateBits(addr uint16, mask, val uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("update", addr); err != nil {
		s.journal = append(s.journal, Op{Kind: OpUpdate, Addr: addr, Mask: mask, Val: val, Err: err})
		return err
	}
	next := (s.regs[addr] &^ mask) | (val & mask)
	s.regs[addr] = next
	s.journal = append(s.journal, Op{Kind: OpUpdate, Addr: addr, Mask: mask, Val: val, Result: next})
	return nil
}

func (s *SimBank) fault(op string, addr uint16) error {
	n, ok := s.failures[addr]
	if !ok {
		return nil
	}
	if n > 0 {
		n--
		if n == 0 {
			delete(s.failures, addr)
		} else {
			s.failures[addr] = n
		}
	}
	return fmt.Errorf("%w: simulated %s fault at 0x%04X", ErrIO, op, addr)
}
