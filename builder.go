package corofsm

import (
	"github.com/cockroachdb/errors"
)

// MachineBuilder provides a fluent API for declaring a machine's states and
// transitions by name. Mistakes are collected and reported together by Build.
type MachineBuilder struct {
	name     string
	initial  string
	opts     []Option
	states   []*StateBuilder
	byName   map[string]*StateBuilder
	problems []error
}

// StateBuilder provides fluent methods for configuring individual states.
type StateBuilder struct {
	b      *MachineBuilder
	name   string
	task   Task
	routes []route
}

type route struct {
	on     string
	to     string
	target *Machine
}

// NewMachineBuilder creates a new builder for a machine called name.
// initialStateName, if not empty, becomes the current state after Build.
func NewMachineBuilder(name, initialStateName string, opts ...Option) *MachineBuilder {
	return &MachineBuilder{
		name:    name,
		initial: initialStateName,
		opts:    opts,
		byName:  make(map[string]*StateBuilder),
	}
}

// State declares a state running task, or returns the state declared
// earlier under name when task is nil. States are registered in declaration
// order.
func (b *MachineBuilder) State(name string, task Task) *StateBuilder {
	if sb, ok := b.byName[name]; ok {
		if task != nil {
			if sb.task != nil {
				b.problems = append(b.problems, configErrorf(ErrDuplicateState, "builder %q: state %q", b.name, name))
			}
			sb.task = task
		}
		return sb
	}
	sb := &StateBuilder{b: b, name: name, task: task}
	b.states = append(b.states, sb)
	b.byName[name] = sb
	return sb
}

// Build registers the declared states, installs their transitions, starts
// the machine and selects the initial state.
func (b *MachineBuilder) Build() (*Machine, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}

	m := NewMachine(b.name, b.opts...)
	for _, sb := range b.states {
		if _, err := m.Register(sb.name, sb.task); err != nil {
			return nil, errors.CombineErrors(err, m.Close())
		}
	}
	for _, sb := range b.states {
		for _, r := range sb.routes {
			if _, err := m.AddHandOff(sb.name, r.on, r.target, r.to); err != nil {
				return nil, errors.CombineErrors(err, m.Close())
			}
		}
	}
	if err := m.Start(); err != nil {
		return nil, errors.CombineErrors(err, m.Close())
	}
	if b.initial != "" {
		if err := m.SetStateByName(b.initial); err != nil {
			return nil, errors.CombineErrors(err, m.Close())
		}
	}
	return m, nil
}

// validate checks that every state has a task and every local transition
// target and the initial state are declared.
func (b *MachineBuilder) validate() error {
	problems := append([]error(nil), b.problems...)
	for _, sb := range b.states {
		if sb.task == nil {
			problems = append(problems, configErrorf(ErrNilTask, "builder %q: state %q", b.name, sb.name))
		}
		for _, r := range sb.routes {
			if r.target != nil {
				continue
			}
			if _, ok := b.byName[r.to]; !ok {
				problems = append(problems, configErrorf(ErrStateNotFound,
					"builder %q: state %q has transition on %q to unknown state %q", b.name, sb.name, r.on, r.to))
			}
		}
	}
	if b.initial != "" {
		if _, ok := b.byName[b.initial]; !ok {
			problems = append(problems, configErrorf(ErrStateNotFound, "builder %q: initial state %q", b.name, b.initial))
		}
	}
	return errors.Join(problems...)
}

// StateBuilder fluent methods

// On adds a transition from this state to the state named targetName of the
// same machine when eventName is emitted.
func (sb *StateBuilder) On(eventName, targetName string) *StateBuilder {
	sb.routes = append(sb.routes, route{on: eventName, to: targetName})
	return sb
}

// HandOff adds a transition from this state to the state named targetName
// of target when eventName is emitted. target must already hold that state
// when Build runs.
func (sb *StateBuilder) HandOff(eventName string, target *Machine, targetName string) *StateBuilder {
	if target == nil {
		sb.b.problems = append(sb.b.problems, configErrorf(ErrStateNotFound,
			"builder %q: state %q hands off on %q to a nil machine", sb.b.name, sb.name, eventName))
		return sb
	}
	sb.routes = append(sb.routes, route{on: eventName, to: targetName, target: target})
	return sb
}

// State declares another state on the same builder.
func (sb *StateBuilder) State(name string, task Task) *StateBuilder {
	return sb.b.State(name, task)
}

// Build is a shortcut for building the owning MachineBuilder.
func (sb *StateBuilder) Build() (*Machine, error) {
	return sb.b.Build()
}
