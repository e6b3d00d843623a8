package max96724

import (
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"github.com/OpenTraceLab/OpenTraceGMSL/pkg/gmsl"
)

// LinkState is the raw content of a link status register.
type LinkState uint8

var linkStateBits = []string{"VID_LOCK", "CONFIG_DETECT", "VIDEO_DETECT", "LOCK", "ERROR", "bit5", "bit6", "LOCKED"}

// Locked reports the GMSL link lock bit.
func (s LinkState) Locked() bool {
	return uint8(s)&linkLockBit != 0
}

func (s LinkState) String() string {
	return fmt.Sprintf("0x%02X [%s]", uint8(s), flags(uint8(s), linkStateBits))
}

// VideoState is the raw content of a pipe video receive status register.
type VideoState uint8

// Locked reports video lock on the pipe.
func (s VideoState) Locked() bool {
	return uint8(s)&videoLockBit != 0
}

// PacketDetected reports that video packets arrive on the pipe.
func (s VideoState) PacketDetected() bool {
	return uint8(s)&0x20 != 0
}

// SequenceError reports a video sequence error on the pipe.
func (s VideoState) SequenceError() bool {
	return uint8(s)&0x10 != 0
}

func (s VideoState) String() string {
	var parts []string
	if s.Locked() {
		parts = append(parts, "VID_LOCK")
	}
	if s.PacketDetected() {
		parts = append(parts, "VID_PKT_DET")
	}
	if s.SequenceError() {
		parts = append(parts, "VID_SEQ_ERR")
	}
	return fmt.Sprintf("0x%02X [%s]", uint8(s), strings.Join(parts, " "))
}

// DPLLState holds the lock bits of the four CSI DPLLs.
type DPLLState uint8

// Locked reports the lock of the DPLL feeding controller n.
func (s DPLLState) Locked(n int) bool {
	return uint8(s)&(1<<(uint(n)+4)) != 0
}

func (s DPLLState) String() string {
	var parts []string
	for n := 0; n < 4; n++ {
		if s.Locked(n) {
			parts = append(parts, fmt.Sprintf("CSIPLL%d_LOCK", n))
		}
	}
	return fmt.Sprintf("0x%02X [%s]", uint8(s), strings.Join(parts, " "))
}

// PipeDetect is a per-pipe detect bitmap (DE, HSYNC or VSYNC).
type PipeDetect uint8

// Detected reports the bit of pipe n.
func (p PipeDetect) Detected(n int) bool {
	return uint8(p)&(1<<uint(n)) != 0
}

func (p PipeDetect) String() string {
	var parts []string
	for n := 0; n < NumPipes; n++ {
		if p.Detected(n) {
			parts = append(parts, fmt.Sprint(n))
		}
	}
	return fmt.Sprintf("0x%02X [%s]", uint8(p), strings.Join(parts, ","))
}

// Status is the diagnostic read-back of the current source link.
type Status struct {
	Link  gmsl.LinkID
	Port  gmsl.CSIPort
	Lanes uint8
	State LinkState
	DPLL  DPLLState
	Video VideoState
	DE    PipeDetect
	HS    PipeDetect
	VS    PipeDetect
	// ReadErr collects failed status reads; it never fails an operation.
	ReadErr error
	// SetupErr collects register i/o failures of the setup that preceded
	// the reading. The pipe keeps running with whatever was written.
	SetupErr error
}

// Degraded reports whether the setup or the reading hit register i/o
// failures.
func (st Status) Degraded() bool {
	return st.ReadErr != nil || st.SetupErr != nil
}

func (st Status) String() string {
	return fmt.Sprintf("%s -> %s x%d link=%s dpll=%s video=%s de=%s hs=%s vs=%s",
		st.Link, st.Port, st.Lanes, st.State, st.DPLL, st.Video, st.DE, st.HS, st.VS)
}

func flags(v uint8, names []string) string {
	var parts []string
	for i, name := range names {
		if v&(1<<uint(i)) != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, " ")
}

// readStatus samples the status registers of the current source link.
func (d *Deserializer) readStatus() Status {
	port := d.srcLink.Port()
	st := Status{Link: d.srcLink, Port: d.dstPort, Lanes: d.lanes}
	read := func(addr uint16) uint8 {
		v, err := d.port.Read(addr)
		if err != nil {
			st.ReadErr = multierr.Append(st.ReadErr, err)
			return 0
		}
		return v
	}
	st.State = LinkState(read(LinkStatus(port)))
	st.DPLL = DPLLState(read(RegDPLLStatus))
	st.Video = VideoState(read(VidStatus(int(port))))
	st.DE = PipeDetect(read(RegPipeDEStatus))
	st.HS = PipeDetect(read(RegPipeHSStatus))
	st.VS = PipeDetect(read(RegPipeVSStatus))

	d.log.V(1).Info("status", "link", st.Link.String(), "state", st.State.String(), "dpll", st.DPLL.String(),
		"video", st.Video.String(), "de", st.DE.String(), "hs", st.HS.String(), "vs", st.VS.String())
	if st.ReadErr != nil {
		d.log.Info("status read incomplete", "error", st.ReadErr.Error())
	}
	if d.metrics != nil {
		d.metrics.observeStatus(st)
	}
	return st
}
