// Package max96724 drives a quad GMSL2 deserializer (MAX96724, MAX96712).
//
// A single Deserializer is shared by up to four camera source drivers. It owns
// the source registry, the pool of video pipes and the single-link/splitter
// mode of the chip, and issues the register sequences that wire a link through
// a pipe to a CSI-2 output. Every operation holds one lock for its whole
// duration, settle delays included, so sequences of concurrent sources never
// interleave on the wire.
package max96724

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"periph.io/x/conn/v3/gpio"

	"github.com/OpenTraceLab/OpenTraceGMSL/pkg/gmsl"
	"github.com/OpenTraceLab/OpenTraceGMSL/pkg/regmap"
)

// Variant is the silicon family, resolved at runtime.
type Variant uint8

const (
	VariantUnknown Variant = iota
	VariantMAX96712
	VariantMAX96724
)

func (v Variant) String() string {
	switch v {
	case VariantMAX96712:
		return "MAX96712"
	case VariantMAX96724:
		return "MAX96724"
	default:
		return "unknown"
	}
}

// ParseVariant accepts "max96712", "max96724" or "auto".
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return VariantUnknown, nil
	case "max96712":
		return VariantMAX96712, nil
	case "max96724", "max96724f", "max96724r":
		return VariantMAX96724, nil
	}
	return VariantUnknown, fmt.Errorf("max96724: unknown chip family %q", s)
}

// VariantFromID maps a device ID register value to a family. Unrecognized IDs
// are treated as MAX96724.
func VariantFromID(id uint8) Variant {
	if id == DeviceIDMAX96712 {
		return VariantMAX96712
	}
	return VariantMAX96724
}

// Config is supplied once at discovery and never changes afterwards.
type Config struct {
	CSIMode      gmsl.CSIMode
	PHY          gmsl.PHYType
	MaxSources   int
	CheckCSIMode bool
	// Variant forces the chip family; VariantUnknown reads the device ID.
	Variant Variant
}

// DefaultConfig mirrors the platform fallback: 2x4, C-PHY, one source.
func DefaultConfig() Config {
	return Config{
		CSIMode:    gmsl.CSIMode2x4,
		PHY:        gmsl.PHYTypeCPHY,
		MaxSources: 1,
	}
}

// Validate rejects values the chip cannot represent.
func (c Config) Validate() error {
	if c.MaxSources < 1 || c.MaxSources > NumLinks {
		return fmt.Errorf("%w: max sources %d not in 1..%d", ErrOutOfRange, c.MaxSources, NumLinks)
	}
	if c.CSIMode > gmsl.CSIMode4x2 {
		return fmt.Errorf("%w: csi mode %d", ErrInvalidArgument, c.CSIMode)
	}
	if c.PHY > gmsl.PHYTypeCPHY {
		return fmt.Errorf("%w: phy type %d", ErrInvalidArgument, c.PHY)
	}
	return nil
}

// Line is an output line such as the reset pin or a power rail enable.
// periph gpio.PinOut implementations satisfy it.
type Line interface {
	Out(l gpio.Level) error
}

// Pipe is one entry of the video pipe table.
type Pipe struct {
	ID               int
	DataType         gmsl.DataType
	DstCSIController uint8
	RefCount         int
	StreamIDSelect   uint8
}

// Source is a registered camera source.
type Source struct {
	Ctx              gmsl.LinkContext
	StreamingEnabled bool

	linkReady bool
	// attached counts SetupControl calls not yet undone by ResetControl.
	attached int
}

// Option customizes a Deserializer.
type Option func(*Deserializer)

// WithLogger sets the logger used for sequence and register events.
func WithLogger(log logr.Logger) Option {
	return func(d *Deserializer) {
		d.log = log
	}
}

// WithSleep replaces time.Sleep for settle delays.
func WithSleep(sleep func(time.Duration)) Option {
	return func(d *Deserializer) {
		if sleep != nil {
			d.sleep = sleep
		}
	}
}

// WithMetrics publishes state changes to m.
func WithMetrics(m *Metrics) Option {
	return func(d *Deserializer) {
		d.metrics = m
	}
}

// WithResetLine sets the line that holds the chip in reset when low.
func WithResetLine(l Line) Option {
	return func(d *Deserializer) {
		d.resetLine = l
	}
}

// WithPowerLine sets the optional power rail enable.
func WithPowerLine(l Line) Option {
	return func(d *Deserializer) {
		d.powerLine = l
	}
}

// Deserializer is the shared device instance.
type Deserializer struct {
	mu sync.Mutex

	port      regmap.Port
	cfg       Config
	log       logr.Logger
	sleep     func(time.Duration)
	metrics   *Metrics
	resetLine Line
	powerLine Line

	sources []*Source
	pipes   [NumPipes]Pipe
	variant Variant

	linkSetup bool
	laneSetup bool
	found     int
	attached  int
	srcLink   gmsl.LinkID
	dstPort   gmsl.CSIPort
	lanes     uint8
	splitter  bool
	powerRef  int
}

// New creates a Deserializer talking through port.
func New(port regmap.Port, cfg Config, opts ...Option) (*Deserializer, error) {
	if port == nil {
		return nil, fmt.Errorf("%w: nil register port", ErrInvalidArgument)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Deserializer{
		port:    port,
		cfg:     cfg,
		log:     logr.Discard(),
		sleep:   time.Sleep,
		variant: cfg.Variant,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.resetContext()
	d.observe()
	return d, nil
}

// Config returns the immutable configuration.
func (d *Deserializer) Config() Config {
	return d.cfg
}

// resetContext returns link, lane and pipe state to power-on defaults.
// Registered sources stay registered.
func (d *Deserializer) resetContext() {
	d.linkSetup = false
	d.laneSetup = false
	d.found = 0
	d.attached = 0
	d.srcLink = gmsl.LinkUnknown
	d.dstPort = gmsl.CSIPortA
	d.lanes = 2
	d.splitter = false
	d.resetPipes()
	for _, src := range d.sources {
		src.StreamingEnabled = false
		src.linkReady = false
		src.attached = 0
	}
}

// SourceState is the exported view of a registered source.
type SourceState struct {
	Owner            uuid.UUID
	Link             gmsl.LinkID
	DstCSIPort       gmsl.CSIPort
	NumCSILanes      uint8
	StreamingEnabled bool
	LinkReady        bool
	Attached         bool
}

// Snapshot is a copy of every mutable field of the device.
type Snapshot struct {
	Variant          Variant
	Sources          []SourceState
	Pipes            [NumPipes]Pipe
	LinkSetupDone    bool
	LaneSetupDone    bool
	SourcesFound     int
	AttachedRefCount int
	SrcLink          gmsl.LinkID
	DstCSIPort       gmsl.CSIPort
	LaneCount        uint8
	SplitterEnabled  bool
	PowerRefCount    int
}

// Snapshot returns a consistent copy of the device state.
func (d *Deserializer) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshot()
}

func (d *Deserializer) snapshot() Snapshot {
	s := Snapshot{
		Variant:          d.variant,
		Pipes:            d.pipes,
		LinkSetupDone:    d.linkSetup,
		LaneSetupDone:    d.laneSetup,
		SourcesFound:     d.found,
		AttachedRefCount: d.attached,
		SrcLink:          d.srcLink,
		DstCSIPort:       d.dstPort,
		LaneCount:        d.lanes,
		SplitterEnabled:  d.splitter,
		PowerRefCount:    d.powerRef,
	}
	for _, src := range d.sources {
		s.Sources = append(s.Sources, SourceState{
			Owner:            src.Ctx.Owner,
			Link:             src.Ctx.Link,
			DstCSIPort:       src.Ctx.DstCSIPort,
			NumCSILanes:      src.Ctx.NumCSILanes,
			StreamingEnabled: src.StreamingEnabled,
			LinkReady:        src.linkReady,
			Attached:         src.attached > 0,
		})
	}
	return s
}

// detectVariant reads the device ID. A failed read is not an error: the chip
// is assumed to be a MAX96724.
func (d *Deserializer) detectVariant() Variant {
	id, err := d.port.Read(RegDeviceID)
	if err != nil {
		d.log.Info("failed to read serdes chip id, assuming MAX96724", "error", err.Error())
		id = DeviceIDMAX96724
	}
	v := VariantFromID(id)
	if d.cfg.Variant != VariantUnknown {
		v = d.cfg.Variant
	}
	d.variant = v
	return v
}

// chipVariant resolves the family once and caches it.
func (d *Deserializer) chipVariant() Variant {
	if d.variant != VariantUnknown {
		return d.variant
	}
	return d.detectVariant()
}

func (d *Deserializer) cphy() bool {
	return d.cfg.PHY == gmsl.PHYTypeCPHY
}
