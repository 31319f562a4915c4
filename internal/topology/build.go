package topology

import (
	"github.com/cockroachdb/errors"

	"github.com/comalice/corofsm"
	"github.com/comalice/corofsm/tasks"
)

// System is the set of machines built from a Config.
type System struct {
	names    []string
	machines map[string]*corofsm.Machine
}

// Build creates, wires and starts every declared machine. opts are applied
// to each machine. Machines with an initial state have it selected.
func (c *Config) Build(opts ...corofsm.Option) (*System, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	sys := &System{machines: make(map[string]*corofsm.Machine, len(c.Machines))}
	for _, mc := range c.Machines {
		sys.names = append(sys.names, mc.Name)
		sys.machines[mc.Name] = corofsm.NewMachine(mc.Name, opts...)
	}

	// States first, so that hand-offs can point at any machine.
	for _, mc := range c.Machines {
		m := sys.machines[mc.Name]
		for _, sc := range mc.States {
			if _, err := m.Register(sc.Name, sc.task()); err != nil {
				return nil, errors.CombineErrors(err, sys.Close())
			}
		}
	}
	for _, mc := range c.Machines {
		m := sys.machines[mc.Name]
		for _, sc := range mc.States {
			for _, t := range sc.On {
				target := m
				if t.Machine != "" {
					target = sys.machines[t.Machine]
				}
				if _, err := m.AddHandOff(sc.Name, t.Event, target, t.To); err != nil {
					return nil, errors.CombineErrors(err, sys.Close())
				}
			}
		}
	}
	for _, mc := range c.Machines {
		m := sys.machines[mc.Name]
		if err := m.Start(); err != nil {
			return nil, errors.CombineErrors(err, sys.Close())
		}
		if mc.Initial != "" {
			if err := m.SetStateByName(mc.Initial); err != nil {
				return nil, errors.CombineErrors(err, sys.Close())
			}
		}
	}
	return sys, nil
}

func (s *StateConfig) task() corofsm.Task {
	var opts []tasks.Option
	if len(s.Accept) > 0 {
		opts = append(opts, tasks.Accept(s.Accept...))
	}
	switch s.Task {
	case Sink:
		return tasks.Sink(opts...)
	case Countdown:
		return tasks.Countdown(s.Next, opts...)
	case Rename:
		return tasks.Rename(s.Rename)
	default:
		return tasks.Relay(opts...)
	}
}

// Machine returns the machine called name, or nil.
func (s *System) Machine(name string) *corofsm.Machine {
	return s.machines[name]
}

// Names returns the machine names in declaration order.
func (s *System) Names() []string {
	return append([]string(nil), s.names...)
}

// Machines returns the machines in declaration order.
func (s *System) Machines() []*corofsm.Machine {
	out := make([]*corofsm.Machine, len(s.names))
	for i, n := range s.names {
		out[i] = s.machines[n]
	}
	return out
}

// Close closes every machine.
func (s *System) Close() error {
	var err error
	for _, n := range s.names {
		err = errors.CombineErrors(err, s.machines[n].Close())
	}
	return err
}
