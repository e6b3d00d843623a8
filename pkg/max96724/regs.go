package max96724

import (
	"github.com/OpenTraceLab/OpenTraceGMSL/pkg/gmsl"
	"github.com/OpenTraceLab/OpenTraceGMSL/pkg/regmap"
)

// Global registers.
const (
	RegLinkLock     uint16 = 0x0005
	RegLinkCtrl     uint16 = 0x0006
	RegPWR1         uint16 = 0x0013
	RegPoCCtrl1     uint16 = 0x0014
	RegPoCCtrl2     uint16 = 0x0015
	RegPoCCtrl3     uint16 = 0x0016
	RegRegulator    uint16 = 0x0017
	RegResetCtrl    uint16 = 0x0018
	RegRegulatorEn  uint16 = 0x0019
	RegDeviceID     uint16 = 0x000D
	RegDeviceRev    uint16 = 0x004C
	RegVideoPipeEn  uint16 = 0x00F4
	RegDPLLStatus   uint16 = 0x0400
	RegCSIOutEn     uint16 = 0x040B
	RegMIPIPHY0     uint16 = 0x08A0
	RegMIPIPHY2     uint16 = 0x08A2
	RegMIPIPHY3     uint16 = 0x08A3
	RegMIPIPHY5     uint16 = 0x08A5
	RegCPHYPreamble uint16 = 0x08AD
	RegCPHYPrep     uint16 = 0x08AE
	RegPipeDEStatus uint16 = 0x11F0
	RegPipeHSStatus uint16 = 0x11F1
	RegPipeVSStatus uint16 = 0x11F2
	RegStateMachine uint16 = 0x1D00
)

// Register values written by the bring-up sequences.
const (
	DeviceIDMAX96712 uint8 = 0xA0
	DeviceIDMAX96724 uint8 = 0xA2

	resetAll          uint8 = 0x80
	linkLockEnable    uint8 = 0x80
	allLinksEnabled   uint8 = 0xFF
	gmsl2AllLinks     uint8 = 0xF0
	phyEnableAll      uint8 = 0xF4
	phyLaneMap        uint8 = 0x44
	phyLanePolarity   uint8 = 0x00
	altMem8BPP        uint8 = 0x02
	vidRXDisableDet   uint8 = 0x33
	vidRXNoHeartbeat  uint8 = 0x0A
	cphyPreamble      uint8 = 0x1F
	cphyPrep          uint8 = 0x5D
	cphyClk1500       uint8 = 0x20
	dphyClk1500       uint8 = 0x2F
	stateMachineArm   uint8 = 0xF4
	stateMachineFire  uint8 = 0xF5
	regulatorValue    uint8 = 0x12
	pocCtrl1Value     uint8 = 0x80
	pocCtrl2Value     uint8 = 0x80
	pocCtrl3Value     uint8 = 0x01
	mapsAll           uint8 = 0x0F
	mapsNoSecondary   uint8 = 0x07
	gpioPushPullValue uint8 = 0x60
)

// Field masks.
const (
	maskDeviceRev    uint8 = 0x0F
	maskCSIOutEn     uint8 = 0x02
	maskClkForce     uint8 = 0x80
	maskPHYMode      uint8 = 0x1F
	maskDeskewAuto   uint8 = 0x80
	maskLaneCount    uint8 = 0xC0
	maskCPHYEnable   uint8 = 0x20
	maskWakeupCycles uint8 = 0x07
	maskDPLLFreq     uint8 = 0x3F
	maskRegulatorEn  uint8 = 0x10
	maskLinkResets   uint8 = 0xF0
	maskGPIOOut      uint8 = 0x15
	maskGPIODrive    uint8 = 0xE0
	gpioOutHigh      uint8 = 0x10
	linkLockBit      uint8 = 0x08
	videoLockBit     uint8 = 0x40
)

// NumPipes, NumLinks and MaxAuxPin bound the index arguments of the core.
const (
	NumPipes  = 4
	NumLinks  = 4
	MaxAuxPin = 10
)

// MIPITX returns the base of the MIPI TX block for a CSI controller or pipe.
// Consecutive blocks are 0x40 apart.
func MIPITX(n int) uint16 {
	return 0x0900 + 0x40*uint16(n)
}

// DeskewInit is the auto-deskew enable bit of a CSI controller.
func DeskewInit(csi int) regmap.Field {
	return regmap.Field{Addr: MIPITX(csi) + 0x03, Mask: maskDeskewAuto}
}

// LaneCtrl is the lane count, C-PHY enable and wake-up cycle register of a CSI
// controller.
func LaneCtrl(csi int) uint16 {
	return MIPITX(csi) + 0x0A
}

// AltMem is the alternate memory map register of a CSI controller.
func AltMem(csi int) uint16 {
	return MIPITX(csi) + 0x33
}

// MapEnable enables the source/destination mappings of a pipe.
func MapEnable(pipe int) uint16 {
	return MIPITX(pipe) + 0x0B
}

// MapSrc and MapDst hold the VC/DT pair of one of a pipe's mappings.
func MapSrc(pipe, m int) uint16 {
	return MIPITX(pipe) + 0x0D + 2*uint16(m)
}

func MapDst(pipe, m int) uint16 {
	return MapSrc(pipe, m) + 1
}

// MapPHYDest routes four mappings of a pipe to a CSI controller, two bits each.
func MapPHYDest(pipe, m int) uint16 {
	return MIPITX(pipe) + 0x2D + uint16(m/4)
}

// VidRX0, VidRX6 and VidStatus are per-pipe video receive registers; pipes are
// 0x12 apart.
func VidRX0(pipe int) uint16 {
	return 0x0100 + 0x12*uint16(pipe)
}

func VidRX6(pipe int) uint16 {
	return 0x0106 + 0x12*uint16(pipe)
}

func VidStatus(pipe int) uint16 {
	return 0x0108 + 0x12*uint16(pipe)
}

// VideoPipeSel packs the link and input selection of two pipes per register.
func VideoPipeSel(pipe int) regmap.Field {
	ofs := uint(pipe%2) * 4
	return regmap.Field{
		Addr: 0x00F0 + uint16(pipe/2),
		Mask: 0x03<<(ofs+2) | 0x03<<ofs,
	}
}

// VideoPipeSelValue places link and pipe index into the VideoPipeSel field.
func VideoPipeSelValue(pipe int, link uint8) uint8 {
	ofs := uint(pipe%2) * 4
	return (link&0x03)<<(ofs+2) | (uint8(pipe)&0x03)<<ofs
}

// VideoPipeEnable is the enable bit of a pipe.
func VideoPipeEnable(pipe int) regmap.Field {
	return regmap.Field{Addr: RegVideoPipeEn, Mask: 1 << uint(pipe)}
}

// DPLLFreq is the DPLL frequency register of a CSI controller; three apart.
func DPLLFreq(csi int) regmap.Field {
	return regmap.Field{Addr: 0x0415 + 3*uint16(csi), Mask: maskDPLLFreq}
}

// LinkStatus is the lock status register of a link port. Link A lives apart
// from the others.
func LinkStatus(port uint8) uint16 {
	if port == 0 {
		return 0x001A
	}
	return 0x000A + uint16(port-1)
}

// LinkCtrlValue enables GMSL2 on every link and forwarding on one port.
func LinkCtrlValue(port uint8) uint8 {
	return gmsl2AllLinks | 1<<(port&0x03)
}

// OneShotReset is the one-shot reset bit of a link port.
func OneShotReset(port uint8) regmap.Field {
	return regmap.Field{Addr: RegResetCtrl, Mask: 1 << (port & 0x03)}
}

// LinkResets covers the reset bits of all four links.
func LinkResets() regmap.Field {
	return regmap.Field{Addr: RegResetCtrl, Mask: maskLinkResets}
}

// GPIOReg is the first configuration register of an MFP pin.
func GPIOReg(pin int) uint16 {
	return 0x0300 + 3*uint16(pin)
}

// LaneCtrlValue encodes lanes, PHY type and one wake-up cycle.
func LaneCtrlValue(lanes uint8, cphy bool) uint8 {
	v := uint8(0x01)
	if cphy {
		v |= maskCPHYEnable
	}
	if lanes > 0 {
		v |= ((lanes - 1) << 6) & maskLaneCount
	}
	return v
}

// PHYDestValue routes all four mappings of a pipe to the controller of port.
// Unknown ports fall back to controller 1.
func PHYDestValue(port int) (uint8, bool) {
	switch port {
	case 0:
		return 0x00, true
	case 1:
		return 0x55, true
	case 2:
		return 0xAA, true
	case 3:
		return 0xFF, true
	default:
		return 0x55, false
	}
}

// PHYModeValue is the MIPI_PHY0 mode code of a CSI lane grouping.
func PHYModeValue(m gmsl.CSIMode) uint8 {
	switch m {
	case gmsl.CSIMode1x4:
		return 0x00
	case gmsl.CSIMode4x2:
		return 0x01
	default:
		return 0x04
	}
}
