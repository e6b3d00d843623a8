package max96724

import (
	"fmt"

	"github.com/OpenTraceLab/OpenTraceGMSL/pkg/gmsl"
)

const streamIDUnselected uint8 = 0xFF

// defaultPipes is the table the chip starts from: two RAW12 and two embedded
// data pipes, all routed to CSI controller 1.
var defaultPipes = [NumPipes]Pipe{
	{ID: 0, DataType: gmsl.DataTypeRAW12, DstCSIController: 1, StreamIDSelect: streamIDUnselected},
	{ID: 1, DataType: gmsl.DataTypeRAW12, DstCSIController: 1, StreamIDSelect: streamIDUnselected},
	{ID: 2, DataType: gmsl.DataTypeEmbedded, DstCSIController: 1, StreamIDSelect: streamIDUnselected},
	{ID: 3, DataType: gmsl.DataTypeEmbedded, DstCSIController: 1, StreamIDSelect: streamIDUnselected},
}

// DefaultPipes returns the reset state of the pipe table.
func DefaultPipes() [NumPipes]Pipe {
	return defaultPipes
}

func (d *Deserializer) resetPipes() {
	d.pipes = defaultPipes
}

// ResetPipes restores the default pipe table, dropping every lease.
func (d *Deserializer) ResetPipes() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resetPipes()
	d.observe()
}

// AllocatePipe leases the pipe whose index equals the virtual channel.
func (d *Deserializer) AllocatePipe(vc int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if vc < 0 || vc >= NumPipes {
		return -1, fmt.Errorf("%w: no pipe for vc %d", ErrNoFreePipe, vc)
	}
	p := &d.pipes[vc]
	if p.RefCount != 0 {
		return -1, fmt.Errorf("%w: pipe %d held", ErrNoFreePipe, vc)
	}
	p.RefCount++
	d.log.V(1).Info("pipe allocated", "pipe", vc)
	d.observe()
	return vc, nil
}

// controllerGroup lists the CSI controllers that serve a port: port A is fed
// by controllers 0 and 1, every other port by 2 and 3.
func controllerGroup(port gmsl.CSIPort) [2]uint8 {
	if port == gmsl.CSIPortA {
		return [2]uint8{0, 1}
	}
	return [2]uint8{2, 3}
}

// AllocatePipeForType leases the first idle pipe carrying dt towards port.
func (d *Deserializer) AllocatePipeForType(dt gmsl.DataType, port gmsl.CSIPort) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	group := controllerGroup(port)
	for i := range d.pipes {
		p := &d.pipes[i]
		if p.DataType != dt || p.RefCount != 0 {
			continue
		}
		if p.DstCSIController != group[0] && p.DstCSIController != group[1] {
			continue
		}
		p.RefCount++
		d.log.V(1).Info("pipe allocated", "pipe", i, "dataType", dt.String(), "port", port.String())
		d.observe()
		return i, nil
	}
	return -1, fmt.Errorf("%w: %s on %s", ErrNoFreePipe, dt, port)
}

// ReleasePipe drops the lease on a pipe. Releasing an idle pipe is a no-op.
func (d *Deserializer) ReleasePipe(pipe int) error {
	if pipe < 0 || pipe >= NumPipes {
		return fmt.Errorf("%w: pipe %d", ErrOutOfRange, pipe)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pipes[pipe].RefCount = 0
	d.observe()
	return nil
}

func (d *Deserializer) pipesInUse() int {
	n := 0
	for _, p := range d.pipes {
		if p.RefCount > 0 {
			n++
		}
	}
	return n
}
