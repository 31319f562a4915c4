package corofsm

import (
	"iter"

	"github.com/cockroachdb/errors"
)

// Task is the body of a state. It runs as a coroutine for the lifetime of
// its machine: it calls y.Await once to receive its first event and then
// loops forever, passing each follow-up event to y.Emit, which blocks until
// the state is entered again.
//
// A task must never return. Returning nil is reported as ErrStateReturned;
// returning an error aborts the chain with that error. Either way the state
// is finished and cannot be entered again.
//
//	func echo(y *corofsm.Yield) error {
//		ev := y.Await()
//		for {
//			ev = y.Emit(ev)
//		}
//	}
type Task func(y *Yield) error

// State is a registered state: a name and the coroutine running its task.
// The *State returned by Machine.Register is the state's opaque handle.
type State struct {
	name    string
	index   int
	machine *Machine
	task    Task

	y    Yield
	next func() (struct{}, bool)
	stop func()

	started  bool
	finished bool
	err      error
}

// Name returns the state's name.
func (s *State) Name() string { return s.name }

// Index returns the registration index of the state in its machine.
func (s *State) Index() int { return s.index }

// Machine returns the machine that owns the state.
func (s *State) Machine() *Machine { return s.machine }

// IsStarted reports whether the state has been activated by Machine.Start.
func (s *State) IsStarted() bool { return s.started }

func (s *State) String() string { return s.name }

// Yield is a task's connection to its machine.
type Yield struct {
	state *State
	yield func(struct{}) bool
	event Event
}

// stopSignal unwinds a task whose coroutine is being stopped.
type stopSignal struct{}

// taskFault unwinds a task that broke the event protocol.
type taskFault struct{ err error }

// Await blocks until the state receives its first event and returns it.
func (y *Yield) Await() *Event {
	y.suspend()
	y.take()
	return &y.event
}

// Emit hands ev back to the machine and blocks until the state is entered
// again, returning the event it was entered with. An empty ev suspends the
// whole chain. ev is normally the event returned by Await or the previous
// Emit; if it is another envelope, the task's own envelope must not owe a
// release. A nil ev is a protocol violation.
func (y *Yield) Emit(ev *Event) *Event {
	if ev == nil {
		panic(taskFault{err: protocolErrorf(ErrEmptyEvent, "state %q emitted a nil event", y.state.name)})
	}
	if ev != &y.event {
		if err := y.event.checkReleased(); err != nil {
			panic(taskFault{err: errors.Wrapf(err, "state %q", y.state.name)})
		}
		y.event.reset()
	}
	y.state.machine.latest.moveFrom(ev)
	y.suspend()
	y.take()
	return &y.event
}

// Name returns the name of the state running the task.
func (y *Yield) Name() string { return y.state.name }

// Machine returns the machine owning the state running the task.
func (y *Yield) Machine() *Machine { return y.state.machine }

func (y *Yield) suspend() {
	if !y.yield(struct{}{}) {
		panic(stopSignal{})
	}
}

func (y *Yield) take() {
	y.event.moveFrom(&y.state.machine.latest)
}

func newState(m *Machine, name string, index int, task Task) *State {
	s := &State{name: name, index: index, machine: m, task: task}
	s.y.state = s
	s.next, s.stop = iter.Pull(s.body)
	return s
}

// body is the coroutine: it runs the task and records how it ended.
func (s *State) body(yield func(struct{}) bool) {
	s.y.yield = yield
	defer func() {
		s.finished = true
		if r := recover(); r != nil {
			switch r := r.(type) {
			case stopSignal:
			case taskFault:
				s.err = r.err
			default:
				s.err = errors.Newf("machine %q: state %q panicked: %v", s.machine.name, s.name, r)
				panic(r)
			}
		}
	}()
	if err := s.task(&s.y); err != nil {
		s.err = errors.Wrapf(err, "machine %q: state %q", s.machine.name, s.name)
		return
	}
	s.err = protocolErrorf(ErrStateReturned, "machine %q: state %q", s.machine.name, s.name)
}

// resume runs the state's task until it yields again.
func (s *State) resume() error {
	if s.finished {
		return s.finishedErr()
	}
	if _, ok := s.next(); !ok {
		return s.finishedErr()
	}
	return nil
}

func (s *State) finishedErr() error {
	if s.err != nil {
		return s.err
	}
	return protocolErrorf(ErrMachineClosed, "machine %q: state %q", s.machine.name, s.name)
}

// activate runs the task up to its first Await.
func (s *State) activate() error {
	if s.started {
		return nil
	}
	s.started = true
	return s.resume()
}
