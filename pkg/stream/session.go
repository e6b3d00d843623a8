// Package stream drives a camera source through the deserializer control
// flow: attach, start, stop and detach.
package stream

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/OpenTraceLab/OpenTraceGMSL/pkg/gmsl"
	"github.com/OpenTraceLab/OpenTraceGMSL/pkg/max96724"
	"github.com/OpenTraceLab/OpenTraceGMSL/pkg/regmap"
)

var (
	ErrNotAttached     = errors.New("stream: source not attached")
	ErrAlreadyAttached = errors.New("stream: source already attached")
	ErrStreaming       = errors.New("stream: source already streaming")
)

// attachAttempts bounds how often Attach redoes the link setup when other
// sources keep resetting the link context.
const attachAttempts = max96724.NumLinks + 1

// Format selects the CSI-2 data carried by a pipe.
type Format struct {
	Primary   gmsl.DataType
	Secondary gmsl.DataType
	VC        uint8
}

// Session is one camera source bound to a shared deserializer.
type Session struct {
	mu sync.Mutex

	dev *max96724.Deserializer
	ctx gmsl.LinkContext
	log logr.Logger

	attached bool
	pipe     int
}

// New creates a session for the source described by ctx.
func New(dev *max96724.Deserializer, ctx gmsl.LinkContext, log logr.Logger) *Session {
	return &Session{
		dev:  dev,
		ctx:  ctx,
		log:  log.WithValues("link", ctx.Link.String()),
		pipe: -1,
	}
}

// Owner returns the source identity.
func (s *Session) Owner() uuid.UUID {
	return s.ctx.Owner
}

// Link returns the serial link of the source.
func (s *Session) Link() gmsl.LinkID {
	return s.ctx.Link
}

// Pipe returns the leased pipe, or -1 when not streaming.
func (s *Session) Pipe() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pipe
}

// Attach registers the source and brings its link up. A source rejected by
// the registry, setup_link or setup_control is left unregistered. Register i/o
// failures during setup_control do not undo the attach.
func (s *Session) Attach() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attached {
		return ErrAlreadyAttached
	}
	if err := s.dev.Register(s.ctx); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	var err error
	for attempt := 1; attempt <= attachAttempts; attempt++ {
		if err = s.dev.SetupLink(s.ctx.Owner); err != nil {
			return multierr.Append(fmt.Errorf("setup link: %w", err), s.dev.Unregister(s.ctx.Owner))
		}
		err = s.dev.SetupControl(s.ctx.Owner)
		if !errors.Is(err, max96724.ErrInvalidState) {
			break
		}
		// The last attached source detached in between and reset the link
		// context; the link has to be set up again.
		s.log.V(1).Info("link context reset during attach", "attempt", attempt)
	}
	if err != nil && !errors.Is(err, regmap.ErrIO) {
		return multierr.Append(fmt.Errorf("setup control: %w", err), s.dev.Unregister(s.ctx.Owner))
	}
	s.attached = true
	if err != nil {
		return fmt.Errorf("setup control: %w", err)
	}
	s.log.V(1).Info("source attached")
	return nil
}

// Start leases a pipe for f, wires it to the source CSI port and enables the
// CSI output. Only a missing pipe or a source the device no longer knows
// fails the start; register i/o failures leave the stream running and are
// reported in the returned status.
func (s *Session) Start(f Format) (max96724.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.attached {
		return max96724.Status{}, ErrNotAttached
	}
	if s.pipe >= 0 {
		return max96724.Status{}, ErrStreaming
	}

	pipe, err := s.allocate(f)
	if err != nil {
		return max96724.Status{}, fmt.Errorf("allocate pipe: %w", err)
	}
	var degraded error
	if err := s.dev.Configure(pipe, f.Primary, f.Secondary, f.VC, s.ctx.DstCSIPort); err != nil {
		if !errors.Is(err, regmap.ErrIO) {
			return max96724.Status{}, multierr.Append(fmt.Errorf("configure pipe %d: %w", pipe, err), s.dev.ReleasePipe(pipe))
		}
		degraded = fmt.Errorf("configure pipe %d: %w", pipe, err)
	}
	if err := s.dev.SetStreaming(s.ctx.Owner, true); err != nil {
		return max96724.Status{}, multierr.Append(err, s.dev.ReleasePipe(pipe))
	}
	s.pipe = pipe
	s.log.Info("streaming", "pipe", pipe, "dataType", f.Primary.String(), "vc", f.VC)

	st, err := s.dev.CheckStatus()
	if err != nil {
		degraded = multierr.Append(degraded, fmt.Errorf("check status: %w", err))
	}
	if degraded != nil {
		st.SetupErr = degraded
		s.log.Info("streaming degraded", "pipe", pipe, "error", degraded.Error())
	}
	return st, nil
}

// allocate prefers an idle pipe already carrying the primary data type, then
// the pipe numbered after the virtual channel, then any idle pipe.
func (s *Session) allocate(f Format) (int, error) {
	pipe, err := s.dev.AllocatePipeForType(f.Primary, s.ctx.DstCSIPort)
	if !errors.Is(err, max96724.ErrNoFreePipe) {
		return pipe, err
	}
	if pipe, err = s.dev.AllocatePipe(int(f.VC)); !errors.Is(err, max96724.ErrNoFreePipe) {
		return pipe, err
	}
	for i := 0; i < max96724.NumPipes; i++ {
		if pipe, err = s.dev.AllocatePipe(i); err == nil {
			return pipe, nil
		}
	}
	return -1, err
}

// Stop releases the pipe. Stopping an idle session is a no-op.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop()
}

func (s *Session) stop() error {
	if s.pipe < 0 {
		return nil
	}
	err := multierr.Combine(
		s.dev.SetStreaming(s.ctx.Owner, false),
		s.dev.ReleasePipe(s.pipe),
	)
	s.log.V(1).Info("stopped", "pipe", s.pipe)
	s.pipe = -1
	return err
}

// Detach stops the source, drops its link and unregisters it.
func (s *Session) Detach() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.attached {
		return ErrNotAttached
	}
	err := multierr.Combine(
		s.stop(),
		s.dev.ResetControl(s.ctx.Owner),
		s.dev.Unregister(s.ctx.Owner),
	)
	s.attached = false
	s.log.V(1).Info("source detached")
	return err
}
