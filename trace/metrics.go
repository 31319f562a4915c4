package trace

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/comalice/corofsm"
)

const (
	namespace = "corofsm"
	subsystem = "machine"
)

// Metrics counts hops per machine and hand-offs per machine pair.
type Metrics struct {
	hops     *prometheus.CounterVec
	handOffs *prometheus.CounterVec
}

// NewMetrics registers the hop counters with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		hops: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "hops_total",
				Help:      "Total number of transitions taken, by source machine and event",
			},
			[]string{"machine", "event"},
		),
		handOffs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "handoffs_total",
				Help:      "Total number of transitions into another machine",
			},
			[]string{"source", "target"},
		),
	}
}

// Observe counts a hop. It has the corofsm.Observer signature.
func (m *Metrics) Observe(machine, from string, ev *corofsm.Event, to string) {
	src, dst, handOff := strings.Cut(machine, HandOffSeparator)
	m.hops.WithLabelValues(src, ev.Name()).Inc()
	if handOff {
		m.handOffs.WithLabelValues(src, dst).Inc()
	}
}
