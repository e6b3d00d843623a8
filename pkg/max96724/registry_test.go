package max96724

import (
	"math/rand"
	"testing"

	"github.com/google/uuid"
	. "github.com/onsi/gomega"

	"github.com/OpenTraceLab/OpenTraceGMSL/pkg/gmsl"
	"github.com/OpenTraceLab/OpenTraceGMSL/pkg/regmap"
)

func TestNewRejectsBadConfig(t *testing.T) {
	g := NewWithT(t)

	_, err := New(nil, DefaultConfig())
	g.Expect(err).To(MatchError(ErrInvalidArgument))

	cfg := DefaultConfig()
	cfg.MaxSources = 5
	_, err = New(regmap.NewSimBank(), cfg)
	g.Expect(err).To(MatchError(ErrOutOfRange))

	cfg.MaxSources = 0
	_, err = New(regmap.NewSimBank(), cfg)
	g.Expect(err).To(MatchError(ErrOutOfRange))
}

func TestNewStartsFromDefaults(t *testing.T) {
	g := NewWithT(t)
	d, sim, _ := newTestDevice(t, quadConfig())

	snap := d.Snapshot()
	g.Expect(snap.Sources).To(BeEmpty())
	g.Expect(snap.Pipes).To(Equal(DefaultPipes()))
	g.Expect(snap.SrcLink).To(Equal(gmsl.LinkUnknown))
	g.Expect(snap.DstCSIPort).To(Equal(gmsl.CSIPortA))
	g.Expect(snap.LaneCount).To(Equal(uint8(2)))
	g.Expect(snap.SplitterEnabled).To(BeFalse())
	g.Expect(snap.AttachedRefCount).To(BeZero())
	g.Expect(sim.Journal()).To(BeEmpty())
}

func TestRegisterCapacity(t *testing.T) {
	g := NewWithT(t)
	cfg := DefaultConfig()
	cfg.MaxSources = 2
	d, sim, _ := newTestDevice(t, cfg)

	g.Expect(d.Register(gmsl.NewLinkContext(gmsl.LinkA, gmsl.CSIPortA, 4))).To(Succeed())
	g.Expect(d.Register(gmsl.NewLinkContext(gmsl.LinkB, gmsl.CSIPortA, 4))).To(Succeed())
	g.Expect(d.Register(gmsl.NewLinkContext(gmsl.LinkC, gmsl.CSIPortA, 4))).To(MatchError(ErrCapacityExceeded))
	g.Expect(d.Snapshot().Sources).To(HaveLen(2))
	g.Expect(sim.Journal()).To(BeEmpty())
}

func TestRegisterLaneMismatch(t *testing.T) {
	g := NewWithT(t)
	d, _, _ := newTestDevice(t, quadConfig())

	g.Expect(d.Register(gmsl.NewLinkContext(gmsl.LinkA, gmsl.CSIPortA, 2))).To(Succeed())
	g.Expect(d.Register(gmsl.NewLinkContext(gmsl.LinkB, gmsl.CSIPortA, 4))).To(MatchError(ErrLaneCountMismatch))
	g.Expect(d.Register(gmsl.NewLinkContext(gmsl.LinkB, gmsl.CSIPortA, 2))).To(Succeed())
	g.Expect(d.Register(gmsl.NewLinkContext(gmsl.LinkB, gmsl.CSIPortA, 4))).To(MatchError(ErrLaneCountMismatch))
}

func TestRegisterLaneMismatchOnFullRegistry(t *testing.T) {
	g := NewWithT(t)
	cfg := DefaultConfig()
	cfg.MaxSources = 2
	d, _, _ := newTestDevice(t, cfg)

	g.Expect(d.Register(gmsl.NewLinkContext(gmsl.LinkA, gmsl.CSIPortA, 2))).To(Succeed())
	g.Expect(d.Register(gmsl.NewLinkContext(gmsl.LinkB, gmsl.CSIPortA, 2))).To(Succeed())

	g.Expect(d.Register(gmsl.NewLinkContext(gmsl.LinkC, gmsl.CSIPortA, 4))).To(MatchError(ErrLaneCountMismatch))
	g.Expect(d.Register(gmsl.NewLinkContext(gmsl.LinkC, gmsl.CSIPortA, 2))).To(MatchError(ErrCapacityExceeded))
	g.Expect(d.Snapshot().Sources).To(HaveLen(2))
}

func TestRegisterLinkInUse(t *testing.T) {
	g := NewWithT(t)
	d, _, _ := newTestDevice(t, quadConfig())

	g.Expect(d.Register(gmsl.NewLinkContext(gmsl.LinkC, gmsl.CSIPortA, 4))).To(Succeed())
	g.Expect(d.Register(gmsl.NewLinkContext(gmsl.LinkC, gmsl.CSIPortB, 4))).To(MatchError(ErrLinkInUse))
}

func TestRegisterRejectsMalformedContext(t *testing.T) {
	g := NewWithT(t)
	d, _, _ := newTestDevice(t, quadConfig())

	ctx := gmsl.NewLinkContext(gmsl.LinkA, gmsl.CSIPortA, 4)
	ctx.Owner = uuid.Nil
	g.Expect(d.Register(ctx)).To(MatchError(ErrInvalidArgument))

	g.Expect(d.Register(gmsl.NewLinkContext(gmsl.LinkUnknown, gmsl.CSIPortA, 4))).To(MatchError(ErrOutOfRange))
	g.Expect(d.Register(gmsl.NewLinkContext(gmsl.LinkA, gmsl.CSIPort(9), 4))).To(MatchError(ErrOutOfRange))
	g.Expect(d.Register(gmsl.NewLinkContext(gmsl.LinkA, gmsl.CSIPortA, 0))).To(MatchError(ErrOutOfRange))
	g.Expect(d.Register(gmsl.NewLinkContext(gmsl.LinkA, gmsl.CSIPortA, 5))).To(MatchError(ErrOutOfRange))

	first := gmsl.NewLinkContext(gmsl.LinkA, gmsl.CSIPortA, 4)
	g.Expect(d.Register(first)).To(Succeed())
	again := first
	again.Link = gmsl.LinkB
	g.Expect(d.Register(again)).To(MatchError(ErrInvalidArgument))
}

func TestRegisterCSIModeCheck(t *testing.T) {
	g := NewWithT(t)

	cfg := quadConfig()
	cfg.CSIMode = gmsl.CSIMode4x2
	cfg.CheckCSIMode = true
	d, _, _ := newTestDevice(t, cfg)

	ctx := gmsl.NewLinkContext(gmsl.LinkA, gmsl.CSIPortA, 2)
	g.Expect(d.Register(ctx)).To(MatchError(ErrCSIModeUnsupported))
	ctx.CSIMode = gmsl.CSIMode4x2
	g.Expect(d.Register(ctx)).To(Succeed())

	cfg.CheckCSIMode = false
	d, _, _ = newTestDevice(t, cfg)
	g.Expect(d.Register(gmsl.NewLinkContext(gmsl.LinkA, gmsl.CSIPortA, 2))).To(Succeed())
}

func TestCSIModeCompatible(t *testing.T) {
	g := NewWithT(t)

	g.Expect(csiModeCompatible(gmsl.CSIMode2x4, gmsl.CSIMode1x4)).To(BeTrue())
	g.Expect(csiModeCompatible(gmsl.CSIMode2x4, gmsl.CSIMode2x4)).To(BeTrue())
	g.Expect(csiModeCompatible(gmsl.CSIMode2x4, gmsl.CSIMode4x2)).To(BeFalse())
	g.Expect(csiModeCompatible(gmsl.CSIMode1x4, gmsl.CSIMode2x4)).To(BeFalse())
	g.Expect(csiModeCompatible(gmsl.CSIMode4x2, gmsl.CSIMode4x2)).To(BeTrue())
}

func TestUnregister(t *testing.T) {
	g := NewWithT(t)
	d, _, _ := newTestDevice(t, quadConfig())

	g.Expect(d.Unregister(uuid.New())).To(MatchError(ErrEmpty))

	a := gmsl.NewLinkContext(gmsl.LinkA, gmsl.CSIPortA, 4)
	b := gmsl.NewLinkContext(gmsl.LinkB, gmsl.CSIPortA, 4)
	c := gmsl.NewLinkContext(gmsl.LinkC, gmsl.CSIPortA, 4)
	for _, ctx := range []gmsl.LinkContext{a, b, c} {
		g.Expect(d.Register(ctx)).To(Succeed())
	}

	g.Expect(d.Unregister(uuid.New())).To(MatchError(ErrNotFound))
	g.Expect(d.Unregister(b.Owner)).To(Succeed())

	i, err := d.FindIndex(c.Owner)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(i).To(Equal(1))
	_, err = d.FindIndex(b.Owner)
	g.Expect(err).To(MatchError(ErrNotFound))

	// The link becomes available again.
	g.Expect(d.Register(gmsl.NewLinkContext(gmsl.LinkB, gmsl.CSIPortA, 4))).To(Succeed())
}

func TestSetStreaming(t *testing.T) {
	g := NewWithT(t)
	d, _, _ := newTestDevice(t, quadConfig())

	ctx := gmsl.NewLinkContext(gmsl.LinkA, gmsl.CSIPortA, 4)
	g.Expect(d.SetStreaming(ctx.Owner, true)).To(MatchError(ErrNotFound))
	g.Expect(d.Register(ctx)).To(Succeed())
	g.Expect(d.SetStreaming(ctx.Owner, true)).To(Succeed())
	g.Expect(d.Snapshot().Sources[0].StreamingEnabled).To(BeTrue())
}

// TestRegistryInvariants drives random register/unregister traffic and checks
// that capacity, link uniqueness and lane agreement always hold.
func TestRegistryInvariants(t *testing.T) {
	g := NewWithT(t)
	rnd := rand.New(rand.NewSource(7))

	for _, max := range []int{1, 2, 4} {
		cfg := DefaultConfig()
		cfg.MaxSources = max
		d, _, _ := newTestDevice(t, cfg)

		var owners []uuid.UUID
		for step := 0; step < 500; step++ {
			if len(owners) > 0 && rnd.Intn(3) == 0 {
				i := rnd.Intn(len(owners))
				g.Expect(d.Unregister(owners[i])).To(Succeed())
				owners = append(owners[:i], owners[i+1:]...)
			} else {
				ctx := gmsl.NewLinkContext(gmsl.Links[rnd.Intn(4)], gmsl.CSIPortA, uint8(1+rnd.Intn(2)))
				if d.Register(ctx) == nil {
					owners = append(owners, ctx.Owner)
				}
			}

			snap := d.Snapshot()
			g.Expect(len(snap.Sources)).To(BeNumerically("<=", max))
			links := map[gmsl.LinkID]bool{}
			for _, src := range snap.Sources {
				g.Expect(links).NotTo(HaveKey(src.Link))
				links[src.Link] = true
				g.Expect(src.NumCSILanes).To(Equal(snap.Sources[0].NumCSILanes))
			}
		}
	}
}
