package regscript

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/onsi/gomega"
	"go.uber.org/multierr"

	"github.com/OpenTraceLab/OpenTraceGMSL/pkg/regmap"
)

const bringup = `
# splitter on, then check the ID
write 0x0006 0xFF
update 0x040B mask 0x02 0x00   # csi out off
READ 0x000D
expect 0x000D 0xA2
expect 0x0018 mask 0xF0 0x0F; sleep 100ms
write 24 15
`

func mustParse(t *testing.T, src string) *Script {
	t.Helper()
	p, err := NewParser()
	if err != nil {
		t.Fatal(err)
	}
	s, err := p.ParseString("test", src)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestParse(t *testing.T) {
	g := gomega.NewWithT(t)

	s := mustParse(t, bringup)
	g.Expect(s.Stmts).To(gomega.HaveLen(7))

	var lines []string
	for _, st := range s.Stmts {
		lines = append(lines, st.String())
	}
	g.Expect(lines).To(gomega.Equal([]string{
		"write 0x0006 0xFF",
		"update 0x040B mask 0x02 0x00",
		"read 0x000D",
		"expect 0x000D 0xA2",
		"expect 0x0018 mask 0xF0 0x0F",
		"sleep 100ms",
		"write 0x0018 0x0F",
	}))
	g.Expect(s.Stmts[0].Pos.Line).To(gomega.Equal(3))
	g.Expect(s.Stmts[5].Pos.Line).To(gomega.Equal(7))
}

func TestParseErrors(t *testing.T) {
	p, err := NewParser()
	if err != nil {
		t.Fatal(err)
	}

	tests := map[string]string{
		"unknown statement": "poke 0x10 0x01",
		"value too wide":    "write 0x0006 0x1FF",
		"address too wide":  "read 0x10000",
		"missing mask":      "update 0x0006 0x01 0x01",
		"bare number":       "sleep 100",
		"truncated":         "write 0x0006",
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			g := gomega.NewWithT(t)
			_, err := p.ParseString("bad", src)
			g.Expect(err).To(gomega.HaveOccurred())
		})
	}
}

func TestRun(t *testing.T) {
	g := gomega.NewWithT(t)

	sim := regmap.NewSimBank()
	sim.Set(0x000D, 0xA2)
	sim.Set(0x040B, 0x02)
	var slept []time.Duration

	r := NewRunner(sim, WithSleep(func(d time.Duration) { slept = append(slept, d) }))
	results, err := r.Run(context.Background(), mustParse(t, bringup))
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(results).To(gomega.Equal([]Result{{Line: 5, Addr: 0x000D, Value: 0xA2}}))
	g.Expect(slept).To(gomega.Equal([]time.Duration{100 * time.Millisecond}))
	g.Expect(sim.Get(0x0006)).To(gomega.Equal(uint8(0xFF)))
	g.Expect(sim.Get(0x040B)).To(gomega.Equal(uint8(0x00)))
	g.Expect(sim.Get(0x0018)).To(gomega.Equal(uint8(0x0F)))
}

func TestRunAccumulatesFailures(t *testing.T) {
	g := gomega.NewWithT(t)

	sim := regmap.NewSimBank()
	sim.Set(0x000D, 0xA0)
	sim.FailAddr(0x0006, 1)

	r := NewRunner(sim, WithSleep(func(time.Duration) {}))
	_, err := r.Run(context.Background(), mustParse(t, bringup))
	g.Expect(err).To(gomega.HaveOccurred())

	errs := multierr.Errors(err)
	g.Expect(errs).To(gomega.HaveLen(2))
	g.Expect(errs[0]).To(gomega.MatchError(regmap.ErrIO))
	g.Expect(errs[0].Error()).To(gomega.ContainSubstring("line 3"))
	g.Expect(errs[1]).To(gomega.MatchError(ErrMismatch))
	g.Expect(errs[1].Error()).To(gomega.ContainSubstring("got 0xA0"))

	// Steps after a failure still run.
	g.Expect(sim.Get(0x0018)).To(gomega.Equal(uint8(0x0F)))
}

func TestRunStopsOnCancel(t *testing.T) {
	g := gomega.NewWithT(t)

	sim := regmap.NewSimBank()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRunner(sim).Run(ctx, mustParse(t, "write 0x0006 0xFF"))
	g.Expect(err).To(gomega.MatchError(context.Canceled))
	g.Expect(sim.Journal()).To(gomega.BeEmpty())
}

func TestParseFile(t *testing.T) {
	g := gomega.NewWithT(t)

	path := filepath.Join(t.TempDir(), "init.regs")
	g.Expect(os.WriteFile(path, []byte("write 0x0013 0x40\n"), 0o644)).To(gomega.Succeed())

	p, err := NewParser()
	g.Expect(err).NotTo(gomega.HaveOccurred())
	s, err := p.ParseFile(path)
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(s.Stmts).To(gomega.HaveLen(1))

	_, err = p.ParseFile(filepath.Join(t.TempDir(), "missing.regs"))
	g.Expect(err).To(gomega.HaveOccurred())
}
