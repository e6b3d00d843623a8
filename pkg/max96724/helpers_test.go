package max96724

import (
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"periph.io/x/conn/v3/gpio"

	"github.com/OpenTraceLab/OpenTraceGMSL/pkg/gmsl"
	"github.com/OpenTraceLab/OpenTraceGMSL/pkg/regmap"
)

type sleepRecorder struct {
	mu    sync.Mutex
	slept []time.Duration
}

func (r *sleepRecorder) sleep(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slept = append(r.slept, d)
}

func (r *sleepRecorder) all() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.slept...)
}

func (r *sleepRecorder) count(d time.Duration) int {
	n := 0
	for _, s := range r.all() {
		if s == d {
			n++
		}
	}
	return n
}

// newSimChip returns a register bank that identifies as the given chip.
func newSimChip(id, rev uint8) *regmap.SimBank {
	sim := regmap.NewSimBank()
	sim.Set(RegDeviceID, id)
	sim.Set(RegDeviceRev, rev)
	return sim
}

func newTestDevice(t *testing.T, cfg Config, opts ...Option) (*Deserializer, *regmap.SimBank, *sleepRecorder) {
	t.Helper()
	sim := newSimChip(DeviceIDMAX96724, 1)
	rec := &sleepRecorder{}
	opts = append([]Option{WithLogger(testr.New(t)), WithSleep(rec.sleep)}, opts...)
	d, err := New(sim, cfg, opts...)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return d, sim, rec
}

func quadConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxSources = 4
	return cfg
}

func mutations(sim *regmap.SimBank) []string {
	var out []string
	for _, op := range sim.Mutations() {
		out = append(out, op.String())
	}
	return out
}

// attach registers a source on link and runs setup link and setup control.
func attach(t *testing.T, d *Deserializer, link gmsl.LinkID, lanes uint8) gmsl.LinkContext {
	t.Helper()
	ctx := gmsl.NewLinkContext(link, gmsl.CSIPortA, lanes)
	if err := d.Register(ctx); err != nil {
		t.Fatalf("Register(%s) returned error: %v", link, err)
	}
	if err := d.SetupLink(ctx.Owner); err != nil {
		t.Fatalf("SetupLink(%s) returned error: %v", link, err)
	}
	if err := d.SetupControl(ctx.Owner); err != nil {
		t.Fatalf("SetupControl(%s) returned error: %v", link, err)
	}
	return ctx
}

type lineEvent struct {
	line string
	high bool
}

type fakeLine struct {
	name   string
	events *[]lineEvent
	err    error
}

func (f *fakeLine) Out(l gpio.Level) error {
	if f.err != nil {
		return f.err
	}
	*f.events = append(*f.events, lineEvent{line: f.name, high: l == gpio.High})
	return nil
}
