// Package config describes a deserializer board: the chip setup handed to the
// driver at discovery and the transport used to reach it.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ghodss/yaml"

	"github.com/OpenTraceLab/OpenTraceGMSL/pkg/gmsl"
	"github.com/OpenTraceLab/OpenTraceGMSL/pkg/i2cbus"
	"github.com/OpenTraceLab/OpenTraceGMSL/pkg/max96724"
	"github.com/OpenTraceLab/OpenTraceGMSL/pkg/regmap"
)

// Transport kinds.
const (
	TransportPeriph = "periph"
	TransportSMBus  = "smbus"
	TransportUSB    = "usb"
	TransportSim    = "sim"
)

// Duration accepts either a Go duration string ("20ms") or nanoseconds.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("config: invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("config: invalid duration %s", string(b))
	}
	*d = Duration(n)
	return nil
}

// Transport selects how registers are reached.
type Transport struct {
	Kind    string `json:"kind"`
	Bus     string `json:"bus,omitempty"`
	Address uint16 `json:"address,omitempty"`
	VID     uint16 `json:"vid,omitempty"`
	PID     uint16 `json:"pid,omitempty"`
}

// BusIndex returns the i2c-dev number of Bus ("3", "/dev/i2c-3", "i2c-3").
func (t Transport) BusIndex() (int, error) {
	s := strings.TrimPrefix(t.Bus, "/dev/")
	s = strings.TrimPrefix(s, "i2c-")
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("config: bus %q is not an i2c-dev index", t.Bus)
	}
	return n, nil
}

// Retry bounds the retry of failed register accesses.
type Retry struct {
	Attempts int      `json:"attempts,omitempty"`
	Delay    Duration `json:"delay,omitempty"`
}

// Config is one board profile.
type Config struct {
	Name         string    `json:"name"`
	CSIMode      string    `json:"csiMode,omitempty"`
	CSIPhy       string    `json:"csiPhy,omitempty"`
	MaxSources   int       `json:"maxSources,omitempty"`
	CheckCSIMode bool      `json:"checkCsiMode,omitempty"`
	ChipFamily   string    `json:"chipFamily,omitempty"`
	Transport    Transport `json:"transport"`
	ResetLine    string    `json:"resetLine,omitempty"`
	PowerLine    string    `json:"powerLine,omitempty"`
	Retry        Retry     `json:"retry,omitempty"`
}

// Default is the platform fallback used when no board description exists:
// 2x4, C-PHY, a single source, on the simulator.
func Default() Config {
	return Config{
		Name:       "default",
		CSIMode:    "2x4",
		CSIPhy:     "cphy",
		MaxSources: 1,
		ChipFamily: "auto",
		Transport: Transport{
			Kind:    TransportSim,
			Address: i2cbus.DefaultAddress,
			VID:     i2cbus.VendorIDTinyUSB,
			PID:     i2cbus.ProductIDTinyUSB,
		},
		Retry: Retry{
			Attempts: regmap.DefaultAttempts,
			Delay:    Duration(regmap.DefaultDelay),
		},
	}
}

// Parse decodes a YAML (or JSON) profile on top of the defaults.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Load reads and parses a profile file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Marshal renders the profile as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate rejects values the driver cannot represent.
func (c Config) Validate() error {
	if _, err := c.Deserializer(); err != nil {
		return err
	}
	switch c.Transport.Kind {
	case TransportSim, TransportPeriph, TransportUSB:
	case TransportSMBus:
		if _, err := c.Transport.BusIndex(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("config: unknown transport %q", c.Transport.Kind)
	}
	if c.Transport.Address > 0x7F {
		return fmt.Errorf("config: i2c address 0x%X is not a 7 bit address", c.Transport.Address)
	}
	if c.Retry.Attempts < 0 || c.Retry.Delay < 0 {
		return fmt.Errorf("config: negative retry settings")
	}
	return nil
}

// Deserializer converts the profile into the driver configuration.
func (c Config) Deserializer() (max96724.Config, error) {
	mode, err := gmsl.ParseCSIMode(c.CSIMode)
	if err != nil {
		return max96724.Config{}, err
	}
	phy, err := gmsl.ParsePHYType(c.CSIPhy)
	if err != nil {
		return max96724.Config{}, err
	}
	variant, err := max96724.ParseVariant(c.ChipFamily)
	if err != nil {
		return max96724.Config{}, err
	}
	dc := max96724.Config{
		CSIMode:      mode,
		PHY:          phy,
		MaxSources:   c.MaxSources,
		CheckCSIMode: c.CheckCSIMode,
		Variant:      variant,
	}
	if err := dc.Validate(); err != nil {
		return max96724.Config{}, err
	}
	return dc, nil
}

// RetryOptions converts the retry settings for regmap.NewRetry.
func (c Config) RetryOptions() []regmap.RetryOption {
	var opts []regmap.RetryOption
	if c.Retry.Attempts > 0 {
		opts = append(opts, regmap.WithAttempts(c.Retry.Attempts))
	}
	if c.Retry.Delay > 0 {
		opts = append(opts, regmap.WithDelay(time.Duration(c.Retry.Delay)))
	}
	return opts
}
