package max96724

import (
	"testing"

	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/OpenTraceLab/OpenTraceGMSL/pkg/gmsl"
)

func TestMetrics(t *testing.T) {
	g := NewWithT(t)

	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	g.Expect(err).NotTo(HaveOccurred())
	d, sim, _ := newTestDevice(t, quadConfig(), WithMetrics(m))

	a := attach(t, d, gmsl.LinkA, 4)
	attach(t, d, gmsl.LinkB, 4)
	g.Expect(testutil.ToFloat64(m.sources)).To(Equal(2.0))
	g.Expect(testutil.ToFloat64(m.attached)).To(Equal(2.0))
	g.Expect(testutil.ToFloat64(m.splitter)).To(Equal(1.0))

	_, err = d.AllocatePipe(1)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(testutil.ToFloat64(m.pipesInUse)).To(Equal(1.0))

	g.Expect(d.ConfigurePipe(1, gmsl.DataTypeRAW12, 0, 1)).To(Succeed())
	g.Expect(testutil.ToFloat64(m.configures)).To(Equal(1.0))

	sim.Set(LinkStatus(1), 0x08)
	d.Status()
	g.Expect(testutil.ToFloat64(m.linkLocked)).To(Equal(1.0))

	sim.FailAddr(RegLinkLock, 1)
	g.Expect(d.ConfigurePipe(1, gmsl.DataTypeRAW12, 0, 1)).NotTo(Succeed())
	g.Expect(testutil.ToFloat64(m.sequenceErrors.WithLabelValues("configure"))).To(Equal(1.0))

	g.Expect(d.ResetControl(a.Owner)).To(Succeed())
	g.Expect(testutil.ToFloat64(m.splitter)).To(Equal(0.0))

	// Registering the same collectors twice fails.
	_, err = NewMetrics(reg)
	g.Expect(err).To(HaveOccurred())
}

func TestMetricsContextReset(t *testing.T) {
	g := NewWithT(t)

	m, err := NewMetrics(nil)
	g.Expect(err).NotTo(HaveOccurred())
	d, _, _ := newTestDevice(t, DefaultConfig(), WithMetrics(m))

	ctx := attach(t, d, gmsl.LinkA, 4)
	_, err = d.AllocatePipe(0)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(d.ResetControl(ctx.Owner)).To(Succeed())

	g.Expect(testutil.ToFloat64(m.contextResets)).To(Equal(1.0))
	g.Expect(testutil.ToFloat64(m.pipesInUse)).To(Equal(0.0))
	g.Expect(testutil.ToFloat64(m.attached)).To(Equal(0.0))
	g.Expect(testutil.ToFloat64(m.sources)).To(Equal(1.0))
}
