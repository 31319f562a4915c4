package corofsm

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Observer is called synchronously on every hop of a chain, after the
// destination has been resolved and before it is resumed. For a hop into
// another machine, machine is "source-->destination".
type Observer func(machine, from string, ev *Event, to string)

// Status is the engine state of a Machine.
type Status int

const (
	// Unstarted means Start has not been called.
	Unstarted Status = iota
	// Suspended means every chain through the machine has unwound.
	Suspended
	// Dispatching means a task of the machine is running.
	Dispatching
)

func (s Status) String() string {
	switch s {
	case Unstarted:
		return "unstarted"
	case Suspended:
		return "suspended"
	case Dispatching:
		return "dispatching"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Machine owns a set of states and a transition table and dispatches events
// between them.
//
// SendEvent does not return until the chain it starts has suspended, even if
// control passed through many states and other machines. Hops are made by a
// loop that swaps the running coroutine, so a chain of any length uses
// constant stack.
//
// A Machine is not safe for concurrent use. Independent machines can be
// driven from separate goroutines as long as no chain hands off between them
// while both are being driven.
type Machine struct {
	name    string
	states  []*State
	byName  map[string]*State
	table   transitionTable
	current *State
	latest  Event
	started bool
	active  bool
	closed  bool

	observer Observer
	logger   *zap.SugaredLogger
}

// NewMachine creates a machine. An empty name is replaced by the machine's
// address.
func NewMachine(name string, opts ...Option) *Machine {
	m := &Machine{
		name:   name,
		byName: make(map[string]*State),
		table:  newTransitionTable(),
		logger: zap.NewNop().Sugar(),
	}
	if m.name == "" {
		m.name = fmt.Sprintf("%p", m)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name returns the machine's name.
func (m *Machine) Name() string { return m.name }

// SetObserver replaces the hop observer. nil disables tracing.
func (m *Machine) SetObserver(o Observer) { m.observer = o }

// Register adds a state running task. An empty name is replaced by the
// address of the returned handle.
func (m *Machine) Register(name string, task Task) (*State, error) {
	if m.closed {
		return nil, protocolErrorf(ErrMachineClosed, "machine %q: register %q", m.name, name)
	}
	if task == nil {
		return nil, configErrorf(ErrNilTask, "machine %q: register %q", m.name, name)
	}
	if _, ok := m.byName[name]; ok && name != "" {
		return nil, configErrorf(ErrDuplicateState, "machine %q: register %q", m.name, name)
	}
	s := newState(m, name, len(m.states), task)
	if s.name == "" {
		s.name = fmt.Sprintf("%p", s)
	}
	m.states = append(m.states, s)
	m.byName[s.name] = s
	m.logger.Debugw("registered state", "machine", m.name, "state", s.name, "index", s.index)
	return s, nil
}

// Start runs every state that has not been started yet up to its first
// Await. Calling Start again only activates states registered since.
func (m *Machine) Start() error {
	if m.closed {
		return protocolErrorf(ErrMachineClosed, "machine %q: start", m.name)
	}
	if m.active {
		return protocolErrorf(ErrMachineBusy, "machine %q: start", m.name)
	}
	for _, s := range m.states {
		if s.started {
			continue
		}
		if err := s.activate(); err != nil {
			m.logger.Errorw("state failed to start", "machine", m.name, "state", s.name, "error", err)
			return err
		}
		if !m.latest.IsEmpty() {
			m.latest.reset()
			return protocolErrorf(ErrEmptyEvent,
				"machine %q: state %q emitted before awaiting its first event", m.name, s.name)
		}
	}
	if !m.started {
		m.logger.Debugw("machine started", "machine", m.name, "states", len(m.states))
	}
	m.started = true
	return nil
}

// SetState makes s the state the next SendEvent is delivered to.
func (m *Machine) SetState(s *State) error {
	if err := m.owns(s); err != nil {
		return err
	}
	m.current = s
	return nil
}

// SetStateByName is SetState for a state named name.
func (m *Machine) SetStateByName(name string) error {
	s, err := m.FindState(name)
	if err != nil {
		return err
	}
	m.current = s
	return nil
}

// SendEvent delivers ev to the current state and runs the resulting chain
// until a task emits the empty event. ev is moved into the machine and left
// empty.
func (m *Machine) SendEvent(ev *Event) error {
	switch {
	case m.closed:
		return protocolErrorf(ErrMachineClosed, "machine %q: send", m.name)
	case m.active:
		return protocolErrorf(ErrMachineBusy, "machine %q: send", m.name)
	case m.current == nil:
		return configErrorf(ErrNoCurrentState, "machine %q: send", m.name)
	case !m.current.started:
		return configErrorf(ErrNotStarted, "machine %q: send to state %q; call Start first", m.name, m.current.name)
	case ev == nil || ev.IsEmpty():
		return protocolErrorf(ErrEmptyEvent, "machine %q: send to state %q", m.name, m.current.name)
	case !m.latest.IsEmpty():
		return errors.AssertionFailedf("machine %q: latest event %q not consumed", m.name, m.latest.name)
	}
	m.latest.moveFrom(ev)
	m.active = true
	return m.dispatch(m.current)
}

// dispatch resumes st and keeps handing the yielded event to the next state
// until the chain suspends or fails.
func (m *Machine) dispatch(st *State) error {
	owner := m
	defer func() {
		if r := recover(); r != nil {
			owner.abort()
			panic(r)
		}
	}()
	for {
		owner = st.machine
		if err := st.resume(); err != nil {
			owner.abort()
			owner.logger.Errorw("state failed", "machine", owner.name, "state", st.name, "error", err)
			return err
		}
		ev := &owner.latest
		if ev.IsEmpty() {
			owner.active = false
			return nil
		}
		on := ev.name
		to, ok := owner.table.resolve(st, on)
		if !ok {
			err := &TransitionError{Machine: owner.name, State: st.name, Event: on}
			owner.abort()
			owner.logger.Errorw("chain aborted", "error", err)
			return err
		}
		if !to.started {
			owner.abort()
			return configErrorf(ErrNotStarted, "machine %q: transition from %q on %q into state %q of machine %q",
				owner.name, st.name, on, to.name, to.machine.name)
		}
		target := to.machine
		if target == owner {
			owner.current = to
			if owner.observer != nil {
				owner.observer(owner.name, st.name, ev, to.name)
			}
		} else {
			if target.active || target.closed {
				owner.abort()
				return protocolErrorf(ErrMachineBusy, "machine %q: hand-off from %q on %q into machine %q",
					owner.name, st.name, on, target.name)
			}
			if !target.latest.IsEmpty() {
				owner.abort()
				return errors.AssertionFailedf("machine %q: latest event %q not consumed before hand-off from %q",
					target.name, target.latest.name, owner.name)
			}
			target.latest.moveFrom(ev)
			target.current = to
			target.active = true
			owner.active = false
			if owner.observer != nil {
				owner.observer(owner.name+"-->"+target.name, st.name, &target.latest, to.name)
			}
		}
		st = to
	}
}

// abort drops an undeliverable event and marks the machine suspended.
func (m *Machine) abort() {
	m.latest.reset()
	m.active = false
}

// Close stops every state's coroutine. A closed machine rejects further
// registrations and sends.
func (m *Machine) Close() error {
	if m.closed {
		return nil
	}
	if m.active {
		return protocolErrorf(ErrMachineBusy, "machine %q: close", m.name)
	}
	for _, s := range m.states {
		s.stop()
	}
	m.latest.reset()
	m.closed = true
	m.logger.Debugw("machine closed", "machine", m.name)
	return nil
}

// CurrentState returns the name of the current state, "" if none is set.
func (m *Machine) CurrentState() string {
	if m.current == nil {
		return ""
	}
	return m.current.name
}

// Current returns the current state's handle.
func (m *Machine) Current() *State { return m.current }

// IsActive reports whether a task of the machine is running.
func (m *Machine) IsActive() bool { return m.active }

// Status returns the machine's engine state.
func (m *Machine) Status() Status {
	switch {
	case m.active:
		return Dispatching
	case m.started:
		return Suspended
	default:
		return Unstarted
	}
}

// LatestEvent returns the machine's in-flight event. It is empty whenever
// the machine is suspended.
func (m *Machine) LatestEvent() *Event { return &m.latest }

// NumStates returns the number of registered states.
func (m *Machine) NumStates() int { return len(m.states) }

// StateAt returns the state registered at index i, or nil.
func (m *Machine) StateAt(i int) *State {
	if i < 0 || i >= len(m.states) {
		return nil
	}
	return m.states[i]
}

// States returns the registered states in registration order.
func (m *Machine) States() []*State {
	out := make([]*State, len(m.states))
	copy(out, m.states)
	return out
}

// HasState reports whether a state named name is registered.
func (m *Machine) HasState(name string) bool {
	_, ok := m.byName[name]
	return ok
}

// FindState returns the state named name.
func (m *Machine) FindState(name string) (*State, error) {
	s, ok := m.byName[name]
	if !ok {
		return nil, configErrorf(ErrStateNotFound, "machine %q: state %q", m.name, name)
	}
	return s, nil
}

// FindIndex returns the registration index of the state named name.
func (m *Machine) FindIndex(name string) (int, error) {
	s, err := m.FindState(name)
	if err != nil {
		return -1, err
	}
	return s.index, nil
}

func (m *Machine) owns(s *State) error {
	if s == nil {
		return configErrorf(ErrStateNotFound, "machine %q: nil state", m.name)
	}
	if s.machine != m {
		return configErrorf(ErrForeignState, "machine %q: state %q of machine %q", m.name, s.name, s.machine.name)
	}
	return nil
}

// AddTransition routes event on emitted from from to the state to, which
// may belong to another machine. It reports whether (from, on) was not
// routed before; an existing route is replaced.
func (m *Machine) AddTransition(from *State, on string, to *State) (bool, error) {
	if err := m.owns(from); err != nil {
		return false, err
	}
	if to == nil {
		return false, configErrorf(ErrStateNotFound, "machine %q: nil target for %q on %q", m.name, from.name, on)
	}
	if on == "" {
		return false, configErrorf(ErrEmptyName, "machine %q: transition from %q", m.name, from.name)
	}
	return m.table.add(from, on, to), nil
}

// AddTransitionByName is AddTransition within this machine, by state names.
func (m *Machine) AddTransitionByName(from, on, to string) (bool, error) {
	return m.AddHandOff(from, on, m, to)
}

// AddHandOff routes event on emitted from this machine's state from to
// state to of target. A nil target means this machine.
func (m *Machine) AddHandOff(from, on string, target *Machine, to string) (bool, error) {
	if target == nil {
		target = m
	}
	src, err := m.FindState(from)
	if err != nil {
		return false, err
	}
	dst, err := target.FindState(to)
	if err != nil {
		return false, err
	}
	return m.AddTransition(src, on, dst)
}

// RemoveTransition removes the route for (from, on) and reports whether it
// existed.
func (m *Machine) RemoveTransition(from *State, on string) bool {
	return m.table.remove(from, on)
}

// RemoveTransitionByName is RemoveTransition by state name.
func (m *Machine) RemoveTransitionByName(from, on string) (bool, error) {
	s, err := m.FindState(from)
	if err != nil {
		return false, err
	}
	return m.table.remove(s, on), nil
}

// HasTransition reports whether (from, on) is routed.
func (m *Machine) HasTransition(from *State, on string) bool {
	_, ok := m.table.resolve(from, on)
	return ok
}

// HasTransitionByName is HasTransition by state name. Unknown states have
// no transitions.
func (m *Machine) HasTransitionByName(from, on string) bool {
	s, ok := m.byName[from]
	return ok && m.HasTransition(s, on)
}

// Resolve returns the destination of (from, on).
func (m *Machine) Resolve(from *State, on string) (*State, error) {
	if err := m.owns(from); err != nil {
		return nil, err
	}
	to, ok := m.table.resolve(from, on)
	if !ok {
		return nil, &TransitionError{Machine: m.name, State: from.name, Event: on}
	}
	return to, nil
}

// TargetState returns the name of the destination of (from, on), or "".
func (m *Machine) TargetState(from, on string) string {
	s, ok := m.byName[from]
	if !ok {
		return ""
	}
	to, ok := m.table.resolve(s, on)
	if !ok {
		return ""
	}
	return to.name
}

// Transitions lists the transition table ordered by source state
// registration index, then event name.
func (m *Machine) Transitions() []TransitionInfo { return m.table.list() }

// NumTransitions returns the size of the transition table.
func (m *Machine) NumTransitions() int { return m.table.len() }
