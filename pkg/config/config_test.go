package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/onsi/gomega"

	"github.com/OpenTraceLab/OpenTraceGMSL/pkg/gmsl"
	"github.com/OpenTraceLab/OpenTraceGMSL/pkg/max96724"
	"github.com/OpenTraceLab/OpenTraceGMSL/pkg/regmap"
)

func TestDefault(t *testing.T) {
	g := NewWithT(t)

	cfg := Default()
	g.Expect(cfg.Validate()).To(Succeed())
	dc, err := cfg.Deserializer()
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(dc).To(Equal(max96724.DefaultConfig()))
	g.Expect(cfg.RetryOptions()).To(HaveLen(2))
}

func TestParse(t *testing.T) {
	g := NewWithT(t)

	cfg, err := Parse([]byte(`
name: bench
csiMode: 1x4
csiPhy: dphy
maxSources: 3
chipFamily: max96712
transport:
  kind: usb
retry:
  attempts: 3
  delay: 1ms
`))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(cfg.Name).To(Equal("bench"))
	g.Expect(cfg.Transport.Address).To(Equal(uint16(0x27)))
	g.Expect(time.Duration(cfg.Retry.Delay)).To(Equal(time.Millisecond))

	dc, err := cfg.Deserializer()
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(dc.CSIMode).To(Equal(gmsl.CSIMode1x4))
	g.Expect(dc.PHY).To(Equal(gmsl.PHYTypeDPHY))
	g.Expect(dc.MaxSources).To(Equal(3))
	g.Expect(dc.Variant).To(Equal(max96724.VariantMAX96712))
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"max sources":  "maxSources: 5",
		"csi mode":     "csiMode: 3x3",
		"phy":          "csiPhy: lvds",
		"chip":         "chipFamily: max9296",
		"transport":    "transport: {kind: spi}",
		"smbus bus":    "transport: {kind: smbus, bus: I2C1}",
		"address":      "transport: {kind: sim, address: 0x80}",
		"retry":        "retry: {attempts: -1}",
		"duration":     "retry: {delay: soon}",
		"not yaml":     "maxSources: [",
		"zero sources": "maxSources: -1",
	}
	for name, text := range tests {
		t.Run(name, func(t *testing.T) {
			g := NewWithT(t)
			_, err := Parse([]byte(text))
			g.Expect(err).To(HaveOccurred())
		})
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	g := NewWithT(t)

	cfg := Default()
	cfg.Name = "rt"
	cfg.MaxSources = 4
	data, err := cfg.Marshal()
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(string(data)).To(ContainSubstring("delay: 20ms"))

	back, err := Parse(data)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(back).To(Equal(cfg))
}

func TestBusIndex(t *testing.T) {
	g := NewWithT(t)

	for _, bus := range []string{"3", "i2c-3", "/dev/i2c-3"} {
		n, err := Transport{Bus: bus}.BusIndex()
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(n).To(Equal(3))
	}
	_, err := Transport{Bus: ""}.BusIndex()
	g.Expect(err).To(HaveOccurred())
}

func TestRetryOptions(t *testing.T) {
	g := NewWithT(t)

	cfg := Default()
	cfg.Retry = Retry{}
	g.Expect(cfg.RetryOptions()).To(BeEmpty())

	cfg.Retry = Retry{Attempts: 2, Delay: Duration(time.Millisecond)}
	var slept []time.Duration
	opts := append(cfg.RetryOptions(), regmap.WithRetrySleep(func(d time.Duration) { slept = append(slept, d) }))

	sim := regmap.NewSimBank()
	sim.FailAddr(0x0006, -1)
	_, err := regmap.NewRetry(sim, opts...).Read(0x0006)
	g.Expect(err).To(MatchError(regmap.ErrIO))
	g.Expect(slept).To(Equal([]time.Duration{time.Millisecond}))
}

func TestRepositoryLoadDir(t *testing.T) {
	g := NewWithT(t)

	repo := NewRepository()
	g.Expect(repo.LoadDir("testdata/boards")).To(Succeed())
	g.Expect(repo.Names()).To(Equal([]string{"quad-cphy", "single-dphy", "usb-bridge"}))

	quad, err := repo.Lookup("quad-cphy")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(quad.MaxSources).To(Equal(4))
	g.Expect(quad.ResetLine).To(Equal("GPIO17"))
	g.Expect(quad.Transport).To(Equal(Transport{Kind: TransportPeriph, Bus: "1", Address: 0x27, VID: 0x0403, PID: 0xC631}))
	g.Expect(quad.Retry).To(Equal(Retry{Attempts: 10, Delay: Duration(5 * time.Millisecond)}))

	single, err := repo.Lookup("single-dphy")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(single.CheckCSIMode).To(BeTrue())
	g.Expect(single.Transport.Address).To(Equal(uint16(41)))
	g.Expect(single.Retry.Attempts).To(Equal(regmap.DefaultAttempts))

	usb, err := repo.Lookup("usb-bridge")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(usb.Transport.PID).To(Equal(uint16(0xC631)))

	_, err = repo.Lookup("missing")
	g.Expect(err).To(HaveOccurred())
}

func TestRepositoryRejectsBadProfile(t *testing.T) {
	g := NewWithT(t)

	dir := t.TempDir()
	g.Expect(os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("maxSources: 9\n"), 0o644)).To(Succeed())

	repo := NewRepository()
	g.Expect(repo.LoadDir(dir)).To(HaveOccurred())
	g.Expect(repo.Add(Config{})).To(HaveOccurred())
}
