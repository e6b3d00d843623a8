package regmap

import (
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
)

// Logged reports every mutation at V(2) and every failure at error level.
type Logged struct {
	port Port
	log  logr.Logger
}

// NewLogged wraps port with register logging.
func NewLogged(port Port, log logr.Logger) *Logged {
	return &Logged{port: port, log: log}
}

func (l *Logged) Read(addr uint16) (uint8, error) {
	val, err := l.port.Read(addr)
	if err != nil {
		l.log.Error(err, "reg read failed", "addr", hex16(addr))
		return val, err
	}
	l.log.V(3).Info("reg read", "addr", hex16(addr), "val", hex8(val))
	return val, nil
}

func (l *Logged) Write(addr uint16, val uint8) error {
	err := l.port.Write(addr, val)
	if err != nil {
		l.log.Error(err, "reg write failed", "addr", hex16(addr), "val", hex8(val))
		return err
	}
	l.log.V(2).Info("reg write", "addr", hex16(addr), "val", hex8(val))
	return nil
}

func (l *Logged) UpdateBits(addr uint16, mask, val uint8) error {
	err := l.port.UpdateBits(addr, mask, val)
	if err != nil {
		l.log.Error(err, "reg update failed", "addr", hex16(addr), "mask", hex8(mask), "val", hex8(val))
		return err
	}
	l.log.V(2).Info("reg update", "addr", hex16(addr), "mask", hex8(mask), "val", hex8(val))
	return nil
}

// Paced inserts a fixed gap after every mutation. Serializer side registers
// need it before the next I2C command crosses the link.
type Paced struct {
	port  Port
	gap   time.Duration
	sleep func(time.Duration)
}

// NewPaced wraps port; a nil sleep uses time.Sleep.
func NewPaced(port Port, gap time.Duration, sleep func(time.Duration)) *Paced {
	if sleep == nil {
		sleep = time.Sleep
	}
	return &Paced{port: port, gap: gap, sleep: sleep}
}

func (p *Paced) Read(addr uint16) (uint8, error) {
	return p.port.Read(addr)
}

func (p *Paced) Write(addr uint16, val uint8) error {
	err := p.port.Write(addr, val)
	p.pause()
	return err
}

func (p *Paced) UpdateBits(addr uint16, mask, val uint8) error {
	err := p.port.UpdateBits(addr, mask, val)
	p.pause()
	return err
}

func (p *Paced) pause() {
	if p.gap > 0 {
		p.sleep(p.gap)
	}
}

// OpsCollector counts register operations by kind and outcome.
type OpsCollector struct {
	ops *prometheus.CounterVec
}

// NewOpsCollector creates the counter and registers it when reg is non-nil.
func NewOpsCollector(reg prometheus.Registerer) (*OpsCollector, error) {
	c := &OpsCollector{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gmsl",
			Subsystem: "regmap",
			Name:      "operations_total",
			Help:      "Register operations issued to the deserializer, by op and result.",
		}, []string{"op", "result"}),
	}
	if reg != nil {
		if err := reg.Register(c.ops); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Counter exposes the underlying vector, mostly for tests.
func (c *OpsCollector) Counter() *prometheus.CounterVec {
	return c.ops
}

func (c *OpsCollector) observe(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.ops.WithLabelValues(op, result).Inc()
}

// Instrumented counts every access through an OpsCollector.
type Instrumented struct {
	port Port
	c    *OpsCollector
}

// Instrument wraps port with operation counters.
func Instrument(port Port, c *OpsCollector) *Instrumented {
	return &Instrumented{port: port, c: c}
}

func (i *Instrumented) Read(addr uint16) (uint8, error) {
	val, err := i.port.Read(addr)
	i.c.observe("read", err)
	return val, err
}

func (i *Instrumented) Write(addr uint16, val uint8) error {
	err := i.port.Write(addr, val)
	i.c.observe("write", err)
	return err
}

func (i *Instrumented) UpdateBits(addr uint16, mask, val uint8) error {
	err := i.port.UpdateBits(addr, mask, val)
	i.c.observe("update", err)
	return err
}

type hex16 uint16

func (h hex16) String() string { return fmt.Sprintf("0x%04X", uint16(h)) }

type hex8 uint8

func (h hex8) String() string { return fmt.Sprintf("0x%02X", uint8(h)) }
