package max96724

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports the device state to prometheus.
type Metrics struct {
	sources        prometheus.Gauge
	attached       prometheus.Gauge
	splitter       prometheus.Gauge
	pipesInUse     prometheus.Gauge
	powerRefs      prometheus.Gauge
	linkLocked     prometheus.Gauge
	configures     prometheus.Counter
	contextResets  prometheus.Counter
	sequenceErrors *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them when reg is non-nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "gmsl", Subsystem: "deserializer", Name: name, Help: help})
	}
	m := &Metrics{
		sources:    gauge("registered_sources", "Camera sources registered with the deserializer."),
		attached:   gauge("attached_sources", "Sources that completed setup control."),
		splitter:   gauge("splitter_enabled", "1 while the deserializer forwards every link."),
		pipesInUse: gauge("pipes_in_use", "Video pipes currently leased."),
		powerRefs:  gauge("power_references", "Outstanding power-on references."),
		linkLocked: gauge("link_locked", "Lock state of the current source link at the last status read."),
		configures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gmsl", Subsystem: "deserializer", Name: "pipe_configures_total",
			Help: "Pipe configuration sequences issued.",
		}),
		contextResets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gmsl", Subsystem: "deserializer", Name: "context_resets_total",
			Help: "Full context resets after the last source detached.",
		}),
		sequenceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gmsl", Subsystem: "deserializer", Name: "sequence_errors_total",
			Help: "Register sequences that completed with at least one failed step.",
		}, []string{"sequence"}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{
			m.sources, m.attached, m.splitter, m.pipesInUse, m.powerRefs, m.linkLocked,
			m.configures, m.contextResets, m.sequenceErrors,
		} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// observe copies the current state into the gauges. The lock must be held.
func (d *Deserializer) observe() {
	m := d.metrics
	if m == nil {
		return
	}
	m.sources.Set(float64(len(d.sources)))
	m.attached.Set(float64(d.attached))
	m.pipesInUse.Set(float64(d.pipesInUse()))
	m.powerRefs.Set(float64(d.powerRef))
	if d.splitter {
		m.splitter.Set(1)
	} else {
		m.splitter.Set(0)
	}
}

func (m *Metrics) observeStatus(st Status) {
	if st.State.Locked() {
		m.linkLocked.Set(1)
	} else {
		m.linkLocked.Set(0)
	}
}
