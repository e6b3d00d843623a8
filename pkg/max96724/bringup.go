package max96724

import (
	"time"

	"github.com/OpenTraceLab/OpenTraceGMSL/pkg/gmsl"
)

const linkResetPulse = time.Millisecond

// InitSettings runs the board bring-up: MAX96712 regulators and power over
// coax, a reset of all four links, then every pipe is mapped 1:1 to the
// virtual channel of the same index carrying YUV422 with embedded data.
func (d *Deserializer) InitSettings() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := d.newSeq("init-settings")
	v := d.chipVariant()
	d.log.Info("init settings", "chip", v.String(), "link", d.srcLink.String(), "port", d.dstPort.String(),
		"phy", d.cfg.PHY.String(), "mode", d.cfg.CSIMode.String(), "lanes", d.lanes)

	if v == VariantMAX96712 {
		s.write(RegRegulator, regulatorValue)
		s.update(RegRegulatorEn, maskRegulatorEn, maskRegulatorEn)
		s.write(RegPoCCtrl1, pocCtrl1Value)
		s.write(RegPoCCtrl2, pocCtrl2Value)
		s.write(RegPoCCtrl3, pocCtrl3Value)
		s.settle(resetSettle)
	}

	resets := LinkResets()
	s.update(resets.Addr, resets.Mask, resets.Mask)
	s.settle(linkResetPulse)
	s.update(resets.Addr, resets.Mask, 0)
	s.settle(resetSettle)

	for pipe := 0; pipe < NumPipes; pipe++ {
		s.merge(d.configure(pipe, gmsl.DataTypeYUV422_8, gmsl.DataTypeEmbedded, uint8(pipe), d.dstPort))
	}

	d.readStatus()
	return s.err()
}

// CheckStatus is the last bring-up step: one wake-up cycle, CSI output on and
// continuous clock on the MIPI PHY. The returned status is diagnostic only.
func (d *Deserializer) CheckStatus() (Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := d.newSeq("check-status")
	d.log.Info("wake-up", "link", d.srcLink.String(), "port", d.dstPort.String(),
		"phy", d.cfg.PHY.String(), "mode", d.cfg.CSIMode.String(), "lanes", d.lanes)

	s.update(LaneCtrl(int(d.dstPort)), maskWakeupCycles, 0x01)
	s.update(RegCSIOutEn, maskCSIOutEn, maskCSIOutEn)
	s.update(RegMIPIPHY0, maskClkForce, maskClkForce)

	st := d.readStatus()
	return st, s.err()
}

// Status samples the status registers without changing anything.
func (d *Deserializer) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readStatus()
}

// ResetOneShot pulses the one-shot reset of the current source link, leaving
// the other links alone.
func (d *Deserializer) ResetOneShot() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := d.newSeq("reset-oneshot")
	d.readStatus()
	f := OneShotReset(d.srcLink.Port())
	s.set(f, 1)
	s.settle(resetSettle)
	s.set(f, 0)
	return s.err()
}

// ChipInfo identifies the silicon.
type ChipInfo struct {
	DeviceID uint8
	Revision uint8
	Variant  Variant
}

// Identify reads the device ID and revision registers. Unlike the implicit
// detection during bring-up, read failures are returned.
func (d *Deserializer) Identify() (ChipInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := d.newSeq("identify")
	id, ok := s.read(RegDeviceID)
	rev, _ := s.read(RegDeviceRev)
	info := ChipInfo{DeviceID: id, Revision: rev & maskDeviceRev}
	if ok {
		d.variant = VariantFromID(id)
		if d.cfg.Variant != VariantUnknown {
			d.variant = d.cfg.Variant
		}
	}
	info.Variant = d.variant
	d.observe()
	return info, s.err()
}
