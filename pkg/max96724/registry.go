package max96724

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/OpenTraceLab/OpenTraceGMSL/pkg/gmsl"
)

// Register adds a camera source. It fails without touching the chip when the
// lane count differs from an already registered source, the registry is full,
// the requested CSI mode is incompatible (only checked when
// Config.CheckCSIMode is set) or the link is taken. A lane mismatch is
// reported ahead of every other rejection.
func (d *Deserializer) Register(ctx gmsl.LinkContext) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, src := range d.sources {
		if src.Ctx.NumCSILanes != ctx.NumCSILanes {
			return fmt.Errorf("%w: %d lanes, %s uses %d", ErrLaneCountMismatch, ctx.NumCSILanes, src.Ctx.Link, src.Ctx.NumCSILanes)
		}
	}
	if len(d.sources) >= d.cfg.MaxSources {
		return fmt.Errorf("%w: %d of %d sources registered", ErrCapacityExceeded, len(d.sources), d.cfg.MaxSources)
	}
	if ctx.Owner == uuid.Nil {
		return fmt.Errorf("%w: source without owner identity", ErrInvalidArgument)
	}
	if !ctx.Link.Valid() {
		return fmt.Errorf("%w: link %s", ErrOutOfRange, ctx.Link)
	}
	if !ctx.DstCSIPort.Valid() {
		return fmt.Errorf("%w: %s", ErrOutOfRange, ctx.DstCSIPort)
	}
	if ctx.NumCSILanes < 1 || ctx.NumCSILanes > 4 {
		return fmt.Errorf("%w: %d csi lanes", ErrOutOfRange, ctx.NumCSILanes)
	}
	if d.cfg.CheckCSIMode && !csiModeCompatible(d.cfg.CSIMode, ctx.CSIMode) {
		return fmt.Errorf("%w: source wants %s, deserializer is %s", ErrCSIModeUnsupported, ctx.CSIMode, d.cfg.CSIMode)
	}
	for _, src := range d.sources {
		if src.Ctx.Link == ctx.Link {
			return fmt.Errorf("%w: %s", ErrLinkInUse, ctx.Link)
		}
		if src.Ctx.Owner == ctx.Owner {
			return fmt.Errorf("%w: owner %s already registered", ErrInvalidArgument, ctx.Owner)
		}
	}

	d.sources = append(d.sources, &Source{Ctx: ctx})
	d.log.V(1).Info("source registered", "link", ctx.Link.String(), "owner", ctx.Owner.String(), "lanes", ctx.NumCSILanes)
	d.observe()
	return nil
}

// Unregister removes a source. The order of the remaining sources is kept.
func (d *Deserializer) Unregister(owner uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.sources) == 0 {
		return ErrEmpty
	}
	i, err := d.findIndex(owner)
	if err != nil {
		return err
	}
	link := d.sources[i].Ctx.Link
	d.sources = append(d.sources[:i], d.sources[i+1:]...)
	d.log.V(1).Info("source unregistered", "link", link.String(), "owner", owner.String())
	d.observe()
	return nil
}

// FindIndex returns the registry position of owner.
func (d *Deserializer) FindIndex(owner uuid.UUID) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.findIndex(owner)
}

func (d *Deserializer) findIndex(owner uuid.UUID) (int, error) {
	for i, src := range d.sources {
		if src.Ctx.Owner == owner {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: owner %s", ErrNotFound, owner)
}

func (d *Deserializer) source(owner uuid.UUID) (*Source, error) {
	i, err := d.findIndex(owner)
	if err != nil {
		return nil, err
	}
	return d.sources[i], nil
}

// SetStreaming records whether a source is currently streaming.
func (d *Deserializer) SetStreaming(owner uuid.UUID, on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	src, err := d.source(owner)
	if err != nil {
		return err
	}
	src.StreamingEnabled = on
	return nil
}

// csiModeCompatible reports whether a source requesting want can be served by
// a deserializer configured as have. A 2x4 chip also carries 1x4 sources.
func csiModeCompatible(have, want gmsl.CSIMode) bool {
	switch have {
	case gmsl.CSIMode1x4:
		return want == gmsl.CSIMode1x4
	case gmsl.CSIMode2x4:
		return want == gmsl.CSIMode1x4 || want == gmsl.CSIMode2x4
	case gmsl.CSIMode4x2:
		return want == gmsl.CSIMode4x2
	default:
		return false
	}
}
