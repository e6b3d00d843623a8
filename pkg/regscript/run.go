package regscript

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"go.uber.org/multierr"

	"github.com/OpenTraceLab/OpenTraceGMSL/pkg/regmap"
)

// ErrMismatch is reported when an expect statement reads a different value.
var ErrMismatch = errors.New("regscript: register mismatch")

// Result is the value returned by a read statement.
type Result struct {
	Line  int
	Addr  uint16
	Value uint8
}

// Runner executes scripts against a register port.
type Runner struct {
	port  regmap.Port
	sleep func(time.Duration)
	log   logr.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithSleep replaces time.Sleep for sleep statements.
func WithSleep(sleep func(time.Duration)) Option {
	return func(r *Runner) {
		if sleep != nil {
			r.sleep = sleep
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(r *Runner) {
		r.log = log
	}
}

// NewRunner creates a runner for port.
func NewRunner(port regmap.Port, opts ...Option) *Runner {
	r := &Runner{
		port:  port,
		sleep: time.Sleep,
		log:   logr.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes every statement in order. A failed statement does not stop the
// script; all failures are returned together. Cancelling ctx stops before the
// next statement.
func (r *Runner) Run(ctx context.Context, s *Script) ([]Result, error) {
	var results []Result
	var errs error
	for _, st := range s.Stmts {
		if err := ctx.Err(); err != nil {
			return results, multierr.Append(errs, err)
		}
		r.log.V(1).Info("script step", "line", st.Pos.Line, "stmt", st.String())
		res, err := r.exec(st)
		if res != nil {
			results = append(results, *res)
		}
		if err != nil {
			err = fmt.Errorf("line %d: %s: %w", st.Pos.Line, st, err)
			r.log.Error(err, "script step failed")
			errs = multierr.Append(errs, err)
		}
	}
	return results, errs
}

func (r *Runner) exec(st *Stmt) (*Result, error) {
	switch {
	case st.Write != nil:
		return nil, r.port.Write(uint16(st.Write.Addr), uint8(st.Write.Val))
	case st.Update != nil:
		return nil, r.port.UpdateBits(uint16(st.Update.Addr), uint8(st.Update.Mask), uint8(st.Update.Val))
	case st.Read != nil:
		v, err := r.port.Read(uint16(st.Read.Addr))
		if err != nil {
			return nil, err
		}
		return &Result{Line: st.Pos.Line, Addr: uint16(st.Read.Addr), Value: v}, nil
	case st.Expect != nil:
		v, err := r.port.Read(uint16(st.Expect.Addr))
		if err != nil {
			return nil, err
		}
		mask := uint8(0xFF)
		if st.Expect.Mask != nil {
			mask = uint8(*st.Expect.Mask)
		}
		if v&mask != uint8(st.Expect.Val)&mask {
			return nil, fmt.Errorf("%w: got 0x%02X", ErrMismatch, v)
		}
		return nil, nil
	case st.Sleep != nil:
		r.sleep(time.Duration(st.Sleep.For))
		return nil, nil
	}
	return nil, fmt.Errorf("regscript: empty statement")
}
