package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/OpenTraceLab/OpenTraceGMSL/pkg/config"
	"github.com/OpenTraceLab/OpenTraceGMSL/pkg/i2cbus"
	"github.com/OpenTraceLab/OpenTraceGMSL/pkg/max96724"
	"github.com/OpenTraceLab/OpenTraceGMSL/pkg/regmap"
)

// pace is the gap inserted after every register mutation.
var pace time.Duration

func init() {
	rootCmd.PersistentFlags().DurationVar(&pace, "pace", 0,
		"delay after every register write (e.g. 1ms for links to remote serializers)")
}

// board is an opened deserializer with everything needed to tear it down.
type board struct {
	cfg     config.Config
	port    regmap.Port
	dev     *max96724.Deserializer
	sim     *regmap.SimBank
	sleep   func(time.Duration)
	closers []io.Closer
}

func (b *board) Close() error {
	var first error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// loadProfile resolves --config/--profile/--transport into a board profile.
func loadProfile() (config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		st, err := os.Stat(configPath)
		if err != nil {
			return config.Config{}, err
		}
		if st.IsDir() {
			repo := config.NewRepository()
			if err := repo.LoadDir(configPath); err != nil {
				return config.Config{}, fmt.Errorf("failed to load profiles: %w", err)
			}
			name := profileName
			if name == "" {
				names := repo.Names()
				if len(names) != 1 {
					return config.Config{}, fmt.Errorf("%s holds %d profiles, select one with --profile", configPath, len(names))
				}
				name = names[0]
			}
			if cfg, err = repo.Lookup(name); err != nil {
				return config.Config{}, err
			}
		} else if cfg, err = config.Load(configPath); err != nil {
			return config.Config{}, err
		}
	}
	if transport != "" {
		cfg.Transport.Kind = transport
		if err := cfg.Validate(); err != nil {
			return config.Config{}, err
		}
	}
	return cfg, nil
}

// openBoard opens the transport of the active profile and creates the
// deserializer on top of it. Metrics are registered on reg when non-nil.
func openBoard(reg prometheus.Registerer) (*board, error) {
	cfg, err := loadProfile()
	if err != nil {
		return nil, err
	}
	dc, err := cfg.Deserializer()
	if err != nil {
		return nil, err
	}

	b := &board{cfg: cfg}
	raw, closer, err := createPort(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s transport: %w", cfg.Transport.Kind, err)
	}
	if closer != nil {
		b.closers = append(b.closers, closer)
	}
	if sim, ok := raw.(*regmap.SimBank); ok {
		b.sim = sim
	}

	sleep := time.Sleep
	if b.sim != nil {
		sleep = func(time.Duration) {}
	}
	b.sleep = sleep

	port := regmap.Port(regmap.NewPaced(raw, pace, sleep))
	var opts []max96724.Option
	if reg != nil {
		ops, err := regmap.NewOpsCollector(reg)
		if err != nil {
			b.Close()
			return nil, err
		}
		port = regmap.Instrument(port, ops)

		m, err := max96724.NewMetrics(reg)
		if err != nil {
			b.Close()
			return nil, err
		}
		opts = append(opts, max96724.WithMetrics(m))
	}
	port = regmap.NewLogged(port, log.WithName("regmap"))
	retry := append(cfg.RetryOptions(), regmap.WithRetrySleep(sleep), regmap.WithRetryLogger(log.WithName("retry")))
	b.port = regmap.NewRetry(port, retry...)

	opts = append(opts,
		max96724.WithLogger(log.WithName("max96724")),
		max96724.WithSleep(sleep),
	)
	if cfg.ResetLine != "" || cfg.PowerLine != "" {
		reset, power, err := lookupLines(cfg)
		if err != nil {
			b.Close()
			return nil, err
		}
		if reset != nil {
			opts = append(opts, max96724.WithResetLine(reset))
		}
		if power != nil {
			opts = append(opts, max96724.WithPowerLine(power))
		}
	}

	b.dev, err = max96724.New(b.port, dc, opts...)
	if err != nil {
		b.Close()
		return nil, err
	}
	if verbose {
		fmt.Printf("Using profile %q on %s transport\n", cfg.Name, cfg.Transport.Kind)
	}
	return b, nil
}

// createPort opens the raw register transport of a profile.
func createPort(cfg config.Config) (regmap.Port, io.Closer, error) {
	t := cfg.Transport
	switch t.Kind {
	case config.TransportSim:
		return newSimChip(cfg), nil, nil
	case config.TransportPeriph:
		p, err := i2cbus.OpenPeriph(t.Bus, t.Address)
		if err != nil {
			return nil, nil, err
		}
		return p, p, nil
	case config.TransportSMBus:
		n, err := t.BusIndex()
		if err != nil {
			return nil, nil, err
		}
		return i2cbus.NewSMBus(n, int(t.Address)), nil, nil
	case config.TransportUSB:
		u, err := i2cbus.OpenTinyUSB(t.VID, t.PID, t.Address)
		if err != nil {
			return nil, nil, err
		}
		return u, u, nil
	}
	return nil, nil, fmt.Errorf("unknown transport %q", t.Kind)
}

// newSimChip returns a register bank that looks like a powered deserializer
// with all four links, DPLLs and pipes locked.
func newSimChip(cfg config.Config) *regmap.SimBank {
	sim := regmap.NewSimBank()
	id := max96724.DeviceIDMAX96724
	if v, err := max96724.ParseVariant(cfg.ChipFamily); err == nil && v == max96724.VariantMAX96712 {
		id = max96724.DeviceIDMAX96712
	}
	sim.Set(max96724.RegDeviceID, id)
	sim.Set(max96724.RegDeviceRev, 0x01)
	for port := uint8(0); port < max96724.NumLinks; port++ {
		sim.Set(max96724.LinkStatus(port), 0x0A)
	}
	for pipe := 0; pipe < max96724.NumPipes; pipe++ {
		sim.Set(max96724.VidStatus(pipe), 0x60)
	}
	sim.Set(max96724.RegDPLLStatus, 0xF0)
	sim.Set(max96724.RegPipeDEStatus, 0x0F)
	sim.Set(max96724.RegPipeHSStatus, 0x0F)
	sim.Set(max96724.RegPipeVSStatus, 0x0F)
	return sim
}

func lookupLines(cfg config.Config) (reset, power max96724.Line, err error) {
	if err := i2cbus.HostInit(); err != nil {
		return nil, nil, err
	}
	if cfg.ResetLine != "" {
		if reset, err = i2cbus.LookupLine(cfg.ResetLine); err != nil {
			return nil, nil, err
		}
	}
	if cfg.PowerLine != "" {
		if power, err = i2cbus.LookupLine(cfg.PowerLine); err != nil {
			return nil, nil, err
		}
	}
	return reset, power, nil
}
