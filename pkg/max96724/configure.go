package max96724

import (
	"fmt"

	"github.com/OpenTraceLab/OpenTraceGMSL/pkg/gmsl"
)

// ConfigurePipe maps a pipe onto the CSI port of the last attached source.
func (d *Deserializer) ConfigurePipe(pipe int, primary, secondary gmsl.DataType, vc uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := checkPipe(pipe); err != nil {
		return err
	}
	err := d.configure(pipe, primary, secondary, vc, d.dstPort)
	if v, rerr := d.port.Read(LinkStatus(d.srcLink.Port())); rerr == nil {
		d.log.V(1).Info("link status after configure", "link", d.srcLink.String(), "status", LinkState(v).String())
	}
	return err
}

// Configure maps a pipe onto an explicit CSI port.
func (d *Deserializer) Configure(pipe int, primary, secondary gmsl.DataType, vc uint8, port gmsl.CSIPort) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := checkPipe(pipe); err != nil {
		return err
	}
	return d.configure(pipe, primary, secondary, vc, port)
}

func checkPipe(pipe int) error {
	if pipe < 0 || pipe >= NumPipes {
		return fmt.Errorf("%w: pipe %d exceeds %d pipes", ErrOutOfRange, pipe, NumPipes)
	}
	return nil
}

// configure wires the current source link through pipe to port. CSI output is
// disabled on entry and deliberately left disabled; CheckStatus enables it
// once the sensor streams. The pipe table is not touched.
func (d *Deserializer) configure(pipe int, primary, secondary gmsl.DataType, vc uint8, port gmsl.CSIPort) error {
	s := d.newSeq("configure")
	csi := int(port)
	link := d.srcLink.Port()
	tag := (vc & 0x03) << 6

	phyDest, ok := PHYDestValue(csi)
	if !ok {
		d.log.Info("invalid csi port, routing to controller 1", "port", csi)
	}
	maps := mapsAll
	if secondary == 0 {
		maps = mapsNoSecondary
	}
	d.log.Info("configuring pipe", "pipe", pipe, "link", d.srcLink.String(), "vc", vc,
		"primary", primary.String(), "secondary", secondary.String(), "port", port.String())

	s.update(RegCSIOutEn, maskCSIOutEn, 0)

	s.table([]regVal{
		{RegLinkLock, linkLockEnable},
		{RegLinkCtrl, allLinksEnabled},
		{RegMIPIPHY0, PHYModeValue(d.cfg.CSIMode) & maskPHYMode},
		{RegMIPIPHY2, phyEnableAll},
		{RegMIPIPHY3, phyLaneMap},
		{RegMIPIPHY5, phyLanePolarity},
	})

	s.set(VideoPipeEnable(pipe), 0)

	s.table([]regVal{
		{MapEnable(pipe), maps},
		{MapSrc(pipe, 0), tag | uint8(primary)},
		{MapDst(pipe, 0), tag | uint8(primary)},
		{MapSrc(pipe, 1), tag | uint8(gmsl.DataTypeFrameStart)},
		{MapDst(pipe, 1), tag | uint8(gmsl.DataTypeFrameStart)},
		{MapSrc(pipe, 2), tag | uint8(gmsl.DataTypeFrameEnd)},
		{MapDst(pipe, 2), tag | uint8(gmsl.DataTypeFrameEnd)},
		{MapSrc(pipe, 3), tag | uint8(secondary)},
		{MapDst(pipe, 3), tag | uint8(secondary)},
		{MapPHYDest(pipe, 0), phyDest},
		{VidRX0(pipe), vidRXDisableDet},
		{VidRX6(pipe), vidRXNoHeartbeat},
	})

	sel := VideoPipeSel(pipe)
	s.update(sel.Addr, sel.Mask, VideoPipeSelValue(pipe, link))

	s.set(VideoPipeEnable(pipe), 1)

	s.write(AltMem(csi), altMem8BPP)

	s.update(LaneCtrl(csi), maskCPHYEnable|maskWakeupCycles|maskLaneCount, LaneCtrlValue(d.lanes, d.cphy()))

	d.phyTuning(s, csi)

	s.set(DeskewInit(csi), 1)

	clk := dphyClk1500
	if d.cphy() {
		clk = cphyClk1500
	}
	s.set(DPLLFreq(csi), clk)

	if d.cphy() {
		s.write(RegCPHYPreamble, cphyPreamble)
		s.write(RegCPHYPrep, cphyPrep)
	}

	if d.chipVariant() == VariantMAX96724 {
		s.write(RegStateMachine, stateMachineArm)
		s.write(RegStateMachine, stateMachineFire)
	}

	resets := LinkResets()
	s.update(resets.Addr, resets.Mask, resets.Mask)
	s.settle(resetSettle)
	s.update(resets.Addr, resets.Mask, 0)

	if d.metrics != nil {
		d.metrics.configures.Inc()
	}
	return s.err()
}
