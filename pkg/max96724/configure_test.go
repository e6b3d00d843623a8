package max96724

import (
	"testing"
	"time"

	. "github.com/onsi/gomega"
	"go.uber.org/multierr"

	"github.com/OpenTraceLab/OpenTraceGMSL/pkg/gmsl"
	"github.com/OpenTraceLab/OpenTraceGMSL/pkg/regmap"
)

func TestConfigurePipeSequence(t *testing.T) {
	g := NewWithT(t)
	d, sim, rec := newTestDevice(t, quadConfig())
	sim.Set(RegCSIOutEn, 0x02)

	g.Expect(d.ConfigurePipe(0, gmsl.DataTypeRAW12, gmsl.DataTypeEmbedded, 0)).To(Succeed())

	g.Expect(mutations(sim)).To(Equal([]string{
		"update 0x040B mask 0x02 0x00",
		"write 0x0005 0x80",
		"write 0x0006 0xFF",
		"write 0x08A0 0x04",
		"write 0x08A2 0xF4",
		"write 0x08A3 0x44",
		"write 0x08A5 0x00",
		"update 0x00F4 mask 0x01 0x00",
		"write 0x090B 0x0F",
		"write 0x090D 0x2C",
		"write 0x090E 0x2C",
		"write 0x090F 0x00",
		"write 0x0910 0x00",
		"write 0x0911 0x01",
		"write 0x0912 0x01",
		"write 0x0913 0x12",
		"write 0x0914 0x12",
		"write 0x092D 0x00",
		"write 0x0100 0x33",
		"write 0x0106 0x0A",
		"update 0x00F0 mask 0x0F 0x00",
		"update 0x00F4 mask 0x01 0x01",
		"write 0x0933 0x02",
		"update 0x090A mask 0xE7 0x61",
		"write 0x1449 0x75",
		"write 0x1549 0x75",
		"write 0x1649 0x75",
		"write 0x1749 0x75",
		"update 0x0903 mask 0x80 0x80",
		"update 0x0415 mask 0x3F 0x20",
		"write 0x08AD 0x1F",
		"write 0x08AE 0x5D",
		"write 0x1D00 0xF4",
		"write 0x1D00 0xF5",
		"update 0x0018 mask 0xF0 0xF0",
		"update 0x0018 mask 0xF0 0x00",
	}))

	// CSI output stays off until the status check.
	g.Expect(sim.Get(RegCSIOutEn) & 0x02).To(BeZero())
	g.Expect(rec.all()).To(Equal([]time.Duration{resetSettle}))
	// Configuring does not lease the pipe.
	g.Expect(d.Snapshot().Pipes).To(Equal(DefaultPipes()))
}

func TestConfigureStridesAndVariant(t *testing.T) {
	g := NewWithT(t)

	cfg := quadConfig()
	cfg.PHY = gmsl.PHYTypeDPHY
	cfg.CSIMode = gmsl.CSIMode4x2
	d, sim, _ := newTestDevice(t, cfg)
	sim.Set(RegDeviceID, DeviceIDMAX96712)
	sim.Set(RegDeviceRev, max96712RevE)

	attach(t, d, gmsl.LinkB, 2)
	sim.ResetJournal()

	g.Expect(d.Configure(2, gmsl.DataTypeRAW10, 0, 5, gmsl.CSIPortC)).To(Succeed())
	ops := mutations(sim)

	g.Expect(ops).To(ContainElements(
		"write 0x08A0 0x01",
		"write 0x098B 0x07",
		"write 0x098D 0x6B",
		"write 0x098E 0x6B",
		"write 0x098F 0x40",
		"write 0x0991 0x41",
		"write 0x0993 0x40",
		"write 0x09AD 0xAA",
		"write 0x0124 0x33",
		"write 0x012A 0x0A",
		"update 0x00F1 mask 0x0F 0x06",
		"update 0x00F4 mask 0x04 0x04",
		"write 0x09B3 0x02",
		"update 0x098A mask 0xE7 0x41",
		"write 0x06C2 0x10",
		"write 0x17D1 0x03",
		"update 0x0983 mask 0x80 0x80",
		"update 0x041B mask 0x3F 0x2F",
	))
	g.Expect(ops).NotTo(ContainElement("write 0x1D00 0xF4"))
	g.Expect(ops).NotTo(ContainElement("write 0x08AD 0x1F"))
	g.Expect(ops).NotTo(ContainElement("write 0x1449 0x75"))
}

func TestConfigureRejectsBadPipe(t *testing.T) {
	g := NewWithT(t)
	d, sim, _ := newTestDevice(t, quadConfig())

	g.Expect(d.ConfigurePipe(4, gmsl.DataTypeRAW12, 0, 0)).To(MatchError(ErrOutOfRange))
	g.Expect(d.Configure(-1, gmsl.DataTypeRAW12, 0, 0, gmsl.CSIPortA)).To(MatchError(ErrOutOfRange))
	g.Expect(sim.Journal()).To(BeEmpty())
}

func TestConfigureInvalidPortFallsBack(t *testing.T) {
	g := NewWithT(t)
	d, sim, _ := newTestDevice(t, quadConfig())

	g.Expect(d.Configure(1, gmsl.DataTypeRAW12, 0, 1, gmsl.CSIPort(6))).To(Succeed())
	g.Expect(mutations(sim)).To(ContainElement("write 0x096D 0x55"))
}

func TestConfigureCompletesDespiteFailures(t *testing.T) {
	g := NewWithT(t)
	d, sim, rec := newTestDevice(t, quadConfig())
	sim.FailAddr(RegLinkCtrl, -1)
	sim.FailAddr(AltMem(0), -1)

	err := d.ConfigurePipe(0, gmsl.DataTypeRAW12, gmsl.DataTypeEmbedded, 0)
	g.Expect(err).To(HaveOccurred())
	g.Expect(err).To(MatchError(regmap.ErrIO))
	g.Expect(multierr.Errors(err)).To(HaveLen(2))

	// Every later step still ran.
	ops := mutations(sim)
	g.Expect(ops[len(ops)-1]).To(Equal("update 0x0018 mask 0xF0 0x00"))
	g.Expect(rec.all()).To(Equal([]time.Duration{resetSettle}))
}

func TestConfigureUsesAttachedSource(t *testing.T) {
	g := NewWithT(t)
	d, sim, _ := newTestDevice(t, DefaultConfig())

	ctx := gmsl.NewLinkContext(gmsl.LinkD, gmsl.CSIPortB, 4)
	g.Expect(d.Register(ctx)).To(Succeed())
	g.Expect(d.SetupLink(ctx.Owner)).To(Succeed())
	g.Expect(d.SetupControl(ctx.Owner)).To(Succeed())
	sim.ResetJournal()

	g.Expect(d.ConfigurePipe(0, gmsl.DataTypeRAW12, 0, 0)).To(Succeed())
	g.Expect(mutations(sim)).To(ContainElements(
		"update 0x00F0 mask 0x0F 0x0C",
		"write 0x092D 0x55",
		"update 0x094A mask 0xE7 0xE1",
		"update 0x0418 mask 0x3F 0x20",
	))
}
