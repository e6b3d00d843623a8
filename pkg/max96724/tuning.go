package max96724

import "fmt"

// MAX96724 errata #5: GMSL2 links need these writes for robust 6 Gbps operation.
var max96724ErrataRev1 = []regVal{
	{0x1449, 0x75},
	{0x1549, 0x75},
	{0x1649, 0x75},
	{0x1749, 0x75},
}

var max96712TuningRevABC = []regVal{
	{0x1458, 0x28}, {0x1459, 0x68}, {0x143E, 0xB3}, {0x143F, 0x72},
	{0x1558, 0x28}, {0x1559, 0x68}, {0x153E, 0xB3}, {0x153F, 0x72},
	{0x1658, 0x28}, {0x1659, 0x68}, {0x163E, 0xB3}, {0x163F, 0x72},
	{0x1758, 0x28}, {0x1759, 0x68}, {0x173E, 0xB3}, {0x173F, 0x72},
}

// CMU regulator voltage up, VGA high gain on PHY A..D.
var max96712TuningRevE = []regVal{
	{0x06C2, 0x10},
	{0x14D1, 0x03},
	{0x15D1, 0x03},
	{0x16D1, 0x03},
	{0x17D1, 0x03},
}

const (
	max96712RevA = 1
	max96712RevB = 2
	max96712RevC = 3
	max96712RevD = 4
	max96712RevE = 5
)

// tuningTable selects the PHY tuning writes for a chip. ok is false for
// revisions nobody characterized.
func tuningTable(v Variant, rev uint8) (table []regVal, ok bool) {
	if v == VariantMAX96724 {
		return max96724ErrataRev1, true
	}
	switch rev {
	case max96712RevA, max96712RevB, max96712RevC:
		return max96712TuningRevABC, true
	case max96712RevD:
		return nil, true
	case max96712RevE:
		return max96712TuningRevE, true
	}
	return nil, false
}

func (d *Deserializer) phyTuning(s *seq, csi int) {
	v := d.chipVariant()
	raw, _ := s.read(RegDeviceRev)
	rev := raw & maskDeviceRev

	table, ok := tuningTable(v, rev)
	if !ok {
		d.log.Error(fmt.Errorf("%w: %s rev %d", ErrUnknownChipRevision, v, rev), "phy tuning skipped")
		return
	}
	s.table(table)
	d.log.V(1).Info("phy tuning applied", "chip", v.String(), "rev", rev, "csi", csi,
		"phy", d.cfg.PHY.String(), "writes", len(table))
}
