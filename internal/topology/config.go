package topology

import (
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is the base error for every validation failure.
var ErrInvalidConfig = errors.New("invalid topology")

// TaskKind selects the stock task a state runs.
type TaskKind string

const (
	Relay     TaskKind = "relay"
	Sink      TaskKind = "sink"
	Countdown TaskKind = "countdown"
	Rename    TaskKind = "rename"
)

// Config is a set of machines wired together.
type Config struct {
	Version  string          `json:"version,omitempty" yaml:"version,omitempty"`
	Machines []MachineConfig `json:"machines" yaml:"machines"`
}

// MachineConfig declares one machine.
type MachineConfig struct {
	Name    string        `json:"name" yaml:"name"`
	Initial string        `json:"initial,omitempty" yaml:"initial,omitempty"`
	States  []StateConfig `json:"states" yaml:"states"`
}

// StateConfig declares one state and the transitions leaving it.
type StateConfig struct {
	Name string   `json:"name" yaml:"name"`
	Task TaskKind `json:"task" yaml:"task"`

	// Next is the event a countdown emits while its counter is positive.
	Next string `json:"next,omitempty" yaml:"next,omitempty"`
	// Rename maps received event names to emitted ones for rename tasks.
	Rename map[string]string `json:"rename,omitempty" yaml:"rename,omitempty"`
	// Accept restricts the events a relay, sink or countdown takes.
	Accept []string `json:"accept,omitempty" yaml:"accept,omitempty"`

	On []TransitionConfig `json:"on,omitempty" yaml:"on,omitempty"`
}

// TransitionConfig routes Event to state To. Machine names the machine
// owning To; empty means the declaring machine.
type TransitionConfig struct {
	Event   string `json:"event" yaml:"event"`
	To      string `json:"to" yaml:"to"`
	Machine string `json:"machine,omitempty" yaml:"machine,omitempty"`
}

// Load decodes and validates a YAML topology.
func Load(r io.Reader) (*Config, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var c Config
	if err := dec.Decode(&c); err != nil {
		return nil, errors.Wrap(err, "decode topology")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadFile is Load for the file at path.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	c, err := Load(f)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	return c, nil
}

// Machine returns the declaration of the machine called name.
func (c *Config) Machine(name string) (*MachineConfig, bool) {
	for i := range c.Machines {
		if c.Machines[i].Name == name {
			return &c.Machines[i], true
		}
	}
	return nil, false
}

// State returns the declaration of the state called name.
func (m *MachineConfig) State(name string) (*StateConfig, bool) {
	for i := range m.States {
		if m.States[i].Name == name {
			return &m.States[i], true
		}
	}
	return nil, false
}

func invalidf(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidConfig, format, args...)
}

// Validate checks the whole topology and reports every problem found:
//   - at least one machine, with unique non-empty names
//   - unique non-empty state names per machine, and a known initial state
//   - a known task kind with the parameters it needs
//   - transitions with an event name and a resolvable destination
func (c *Config) Validate() error {
	if len(c.Machines) == 0 {
		return invalidf("no machines declared")
	}
	var problems []error
	seen := make(map[string]bool, len(c.Machines))
	for _, m := range c.Machines {
		if m.Name == "" {
			problems = append(problems, invalidf("machine name is required"))
			continue
		}
		if seen[m.Name] {
			problems = append(problems, invalidf("duplicate machine %q", m.Name))
		}
		seen[m.Name] = true
		problems = append(problems, c.validateMachine(&m)...)
	}
	return errors.Join(problems...)
}

func (c *Config) validateMachine(m *MachineConfig) []error {
	var problems []error
	if len(m.States) == 0 {
		problems = append(problems, invalidf("machine %q: no states declared", m.Name))
	}
	states := make(map[string]bool, len(m.States))
	for _, s := range m.States {
		if s.Name == "" {
			problems = append(problems, invalidf("machine %q: state name is required", m.Name))
			continue
		}
		if states[s.Name] {
			problems = append(problems, invalidf("machine %q: duplicate state %q", m.Name, s.Name))
		}
		states[s.Name] = true
		if err := s.validateTask(); err != nil {
			problems = append(problems, errors.Wrapf(err, "machine %q: state %q", m.Name, s.Name))
		}
	}
	if m.Initial != "" && !states[m.Initial] {
		problems = append(problems, invalidf("machine %q: initial state %q not declared", m.Name, m.Initial))
	}
	for _, s := range m.States {
		for _, t := range s.On {
			if t.Event == "" {
				problems = append(problems, invalidf("machine %q: state %q: transition without event", m.Name, s.Name))
				continue
			}
			owner := m
			if t.Machine != "" && t.Machine != m.Name {
				var ok bool
				if owner, ok = c.Machine(t.Machine); !ok {
					problems = append(problems, invalidf("machine %q: state %q: event %q hands off to unknown machine %q",
						m.Name, s.Name, t.Event, t.Machine))
					continue
				}
			}
			if _, ok := owner.State(t.To); !ok {
				problems = append(problems, invalidf("machine %q: state %q: event %q targets unknown state %q of machine %q",
					m.Name, s.Name, t.Event, t.To, owner.Name))
			}
		}
	}
	return problems
}

func (s *StateConfig) validateTask() error {
	switch s.Task {
	case Relay, Sink:
	case Countdown:
		if s.Next == "" {
			return invalidf("countdown needs next")
		}
	case Rename:
		if len(s.Rename) == 0 {
			return invalidf("rename needs a rename map")
		}
		if len(s.Accept) > 0 {
			return invalidf("rename does not take accept")
		}
	case "":
		return invalidf("task kind is required")
	default:
		return invalidf("unknown task kind %q", s.Task)
	}
	return nil
}
