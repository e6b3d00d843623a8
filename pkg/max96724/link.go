package max96724

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/OpenTraceLab/OpenTraceGMSL/pkg/gmsl"
	"github.com/OpenTraceLab/OpenTraceGMSL/pkg/regmap"
)

const resetSettle = 100 * time.Millisecond

// SetupLink selects the source's link. In splitter mode every link is already
// forwarded and nothing is written.
func (d *Deserializer) SetupLink(owner uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	src, err := d.source(owner)
	if err != nil {
		return err
	}
	d.log.Info("setup link", "link", src.Ctx.Link.String(), "splitter", d.splitter)

	if !d.splitter {
		if err := d.writeLink(src.Ctx.Link); err != nil {
			return err
		}
		d.linkSetup = true
	}
	src.linkReady = true
	return nil
}

// writeLink forwards a single link. The lock state of every link is read first
// for the log only.
func (d *Deserializer) writeLink(link gmsl.LinkID) error {
	if !link.Valid() {
		return fmt.Errorf("%w: link %s", ErrOutOfRange, link)
	}
	for port := uint8(0); port < NumLinks; port++ {
		v, err := d.port.Read(LinkStatus(port))
		if err != nil {
			d.log.V(1).Info("link status unavailable", "link", gmsl.LinkID(port).String(), "error", err.Error())
			continue
		}
		d.log.V(1).Info("link status", "link", gmsl.LinkID(port).String(), "status", LinkState(v).String())
	}
	return regmap.IOError("write", RegLinkCtrl, d.port.Write(RegLinkCtrl, LinkCtrlValue(link.Port())))
}

// SetupControl attaches a source whose link has been set up. The first found
// source of a multi-source board switches the chip to splitter mode; the
// splitter is dropped again as soon as the attached sources and the sources
// actually found diverge.
func (d *Deserializer) SetupControl(owner uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	src, err := d.source(owner)
	if err != nil {
		return err
	}
	if !d.linkSetup || !src.linkReady {
		return fmt.Errorf("%w: setup control before setup link on %s", ErrInvalidState, src.Ctx.Link)
	}

	s := d.newSeq("setup-control")
	if src.Ctx.SerializerFound {
		if d.found < d.cfg.MaxSources {
			d.found++
		}
		d.srcLink = src.Ctx.Link
		d.dstPort = src.Ctx.DstCSIPort
		d.lanes = src.Ctx.NumCSILanes
		d.laneSetup = true
		if v, err := d.port.Read(LinkStatus(d.srcLink.Port())); err == nil {
			d.log.V(1).Info("link status", "link", d.srcLink.String(), "status", LinkState(v).String())
		}
	}

	if d.cfg.MaxSources > 1 && d.found > 0 && !d.splitter {
		v := d.detectVariant()
		d.log.Info("enabling splitter mode", "chip", v.String())
		d.splitter = true
		s.write(RegLinkCtrl, allLinksEnabled)
	}

	d.attached++
	src.attached++
	d.log.V(1).Info("source attached", "link", src.Ctx.Link.String(), "found", d.found, "attached", d.attached)

	d.reconcile(s)
	d.observe()
	return s.err()
}

// reconcile falls back to single-link wiring when the splitter configuration
// no longer matches the sources: every attached source must have been found,
// and once all expected sources are attached all of them must have been found.
func (d *Deserializer) reconcile(s *seq) {
	if !d.splitter {
		return
	}
	max := d.cfg.MaxSources
	diverged := d.found != d.attached || (d.attached >= max && d.found < max)
	if !diverged {
		return
	}
	d.log.Info("restoring single-link mode", "link", d.srcLink.String(), "found", d.found, "attached", d.attached)
	if d.srcLink.Valid() {
		s.add(d.writeLink(d.srcLink))
	} else {
		d.log.Info("skipping link restore, no source link recorded")
	}
	d.splitter = false
}

// ResetControl detaches a source. When the last source detaches, the whole
// context is reset and the chip is soft reset. A source without an
// outstanding SetupControl leaves the shared count alone.
func (d *Deserializer) ResetControl(owner uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	src, err := d.source(owner)
	if err != nil {
		return err
	}
	if d.attached == 0 {
		d.log.Info("deserializer already in reset state")
		return nil
	}
	if src.attached == 0 {
		d.log.Info("source not attached, reset ignored", "link", src.Ctx.Link.String())
		return nil
	}

	d.attached--
	src.attached--
	src.linkReady = false
	s := d.newSeq("reset-control")
	if d.attached == 0 {
		d.log.Info("resetting deserializer context")
		d.resetContext()
		s.write(RegPWR1, resetAll)
		s.settle(resetSettle)
		if d.metrics != nil {
			d.metrics.contextResets.Inc()
		}
	} else {
		d.reconcile(s)
	}
	d.observe()
	return s.err()
}
