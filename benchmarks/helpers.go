// Package benchmarks provides shared helpers for benchmark tests.
package benchmarks

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/comalice/corofsm"
	"github.com/comalice/corofsm/internal/topology"
	"github.com/comalice/corofsm/tasks"
)

// GenRingConfig declares a ring of n countdown states, each passing "tick"
// to the next.
func GenRingConfig(n int) *topology.Config {
	if n < 1 {
		n = 1
	}
	mc := topology.MachineConfig{
		Name:    fmt.Sprintf("ring_%d", n),
		Initial: "s0",
		States:  make([]topology.StateConfig, n),
	}
	for i := range n {
		mc.States[i] = topology.StateConfig{
			Name: fmt.Sprintf("s%d", i),
			Task: topology.Countdown,
			Next: "tick",
			On:   []topology.TransitionConfig{{Event: "tick", To: fmt.Sprintf("s%d", (i+1)%n)}},
		}
	}
	return &topology.Config{Machines: []topology.MachineConfig{mc}}
}

// GenRing builds the ring declared by GenRingConfig.
func GenRing(n int) *corofsm.Machine {
	sys, err := GenRingConfig(n).Build()
	if err != nil {
		panic(err)
	}
	return sys.Machines()[0]
}

// GenRingYAML encodes the ring declaration of n states.
func GenRingYAML(n int) []byte {
	data, err := yaml.Marshal(GenRingConfig(n))
	if err != nil {
		panic(err)
	}
	return data
}

// GenHandOffPair builds two machines, each with one countdown state that
// passes "tick" to the other.
func GenHandOffPair() (*corofsm.Machine, *corofsm.Machine) {
	left := corofsm.NewMachine("left")
	right := corofsm.NewMachine("right")
	for _, m := range []*corofsm.Machine{left, right} {
		if _, err := m.Register("s", tasks.Countdown("tick")); err != nil {
			panic(err)
		}
	}
	mustHandOff(left, right)
	mustHandOff(right, left)
	for _, m := range []*corofsm.Machine{left, right} {
		if err := m.Start(); err != nil {
			panic(err)
		}
		if err := m.SetStateByName("s"); err != nil {
			panic(err)
		}
	}
	return left, right
}

func mustHandOff(from, to *corofsm.Machine) {
	if _, err := from.AddHandOff("s", "tick", to, "s"); err != nil {
		panic(err)
	}
}

// Drive sends a "tick" carrying hops to m and fails on any error.
func Drive(m *corofsm.Machine, ev *corofsm.Event, hops int) error {
	if _, err := corofsm.Construct(ev, "tick", hops); err != nil {
		return err
	}
	return m.SendEvent(ev)
}
