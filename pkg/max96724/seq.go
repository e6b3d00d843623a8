package max96724

import (
	"time"

	"go.uber.org/multierr"

	"github.com/OpenTraceLab/OpenTraceGMSL/pkg/regmap"
)

// regVal is one entry of a fixed register table.
type regVal struct {
	addr uint16
	val  uint8
}

// seq runs a register sequence to completion. Failed steps are logged and
// collected; the aggregate is returned by err.
type seq struct {
	d    *Deserializer
	name string
	errs error
}

func (d *Deserializer) newSeq(name string) *seq {
	return &seq{d: d, name: name}
}

func (s *seq) add(err error) {
	if err == nil {
		return
	}
	s.d.log.Error(err, "register step failed", "sequence", s.name)
	s.errs = multierr.Append(s.errs, err)
}

// merge collects the result of a nested sequence, which logged its own steps.
func (s *seq) merge(err error) {
	s.errs = multierr.Append(s.errs, err)
}

func (s *seq) write(addr uint16, val uint8) {
	s.add(regmap.IOError("write", addr, s.d.port.Write(addr, val)))
}

func (s *seq) update(addr uint16, mask, val uint8) {
	s.add(regmap.IOError("update", addr, s.d.port.UpdateBits(addr, mask, val)))
}

// set writes v into field f, v being right aligned.
func (s *seq) set(f regmap.Field, v uint8) {
	s.update(f.Addr, f.Mask, f.Prep(v))
}

func (s *seq) read(addr uint16) (uint8, bool) {
	v, err := s.d.port.Read(addr)
	if err != nil {
		s.add(regmap.IOError("read", addr, err))
		return 0, false
	}
	return v, true
}

func (s *seq) table(regs []regVal) {
	for _, r := range regs {
		s.write(r.addr, r.val)
	}
}

func (s *seq) settle(d time.Duration) {
	s.d.sleep(d)
}

func (s *seq) err() error {
	if s.errs != nil && s.d.metrics != nil {
		s.d.metrics.sequenceErrors.WithLabelValues(s.name).Inc()
	}
	return s.errs
}
