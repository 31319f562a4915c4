// Package tasks provides stock state tasks for common shapes of control:
// forwarding, swallowing, counting down and renaming events.
package tasks

import (
	"github.com/cockroachdb/errors"

	"github.com/comalice/corofsm"
)

// ErrUnexpectedEvent is returned by a stock task that receives an event
// outside its accepted set.
var ErrUnexpectedEvent = errors.New("unexpected event")

// Option pattern for configuring stock tasks
type Option func(*config)

type config struct {
	accept map[string]bool
}

// Accept restricts the task to the given event names. Any other event
// aborts the chain with ErrUnexpectedEvent.
func Accept(names ...string) Option {
	return func(c *config) {
		if c.accept == nil {
			c.accept = make(map[string]bool, len(names))
		}
		for _, n := range names {
			c.accept[n] = true
		}
	}
}

func newConfig(opts []Option) *config {
	c := &config{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *config) check(y *corofsm.Yield, ev *corofsm.Event) error {
	if c.accept != nil && !c.accept[ev.Name()] {
		return errors.Wrapf(ErrUnexpectedEvent, "event %q received in state %q", ev.Name(), y.Name())
	}
	return nil
}

// Func runs fn on every event the state receives and emits whatever fn
// leaves in the envelope: the same event, a rebuilt one, or the empty event.
func Func(fn func(ev *corofsm.Event) error, opts ...Option) corofsm.Task {
	c := newConfig(opts)
	return func(y *corofsm.Yield) error {
		ev := y.Await()
		for {
			if err := c.check(y, ev); err != nil {
				return err
			}
			if err := fn(ev); err != nil {
				return err
			}
			ev = y.Emit(ev)
		}
	}
}

// Relay re-emits every event unchanged, passing it on to whatever the
// transition table names for it.
func Relay(opts ...Option) corofsm.Task {
	return Func(func(*corofsm.Event) error { return nil }, opts...)
}

// Sink swallows every event and suspends the chain. Payloads that owe a
// release abort the chain.
func Sink(opts ...Option) corofsm.Task {
	return Func(func(ev *corofsm.Event) error { return ev.Release() }, opts...)
}

// Countdown expects an int payload n. While n is positive it emits next
// carrying n-1; at zero it suspends the chain.
func Countdown(next string, opts ...Option) corofsm.Task {
	return Func(func(ev *corofsm.Event) error {
		n, err := corofsm.As[int](ev)
		if err != nil {
			return err
		}
		if *n <= 0 {
			return ev.Release()
		}
		_, err = corofsm.Construct(ev, next, *n-1)
		return err
	}, opts...)
}

// Rename emits each received event under the name names maps it to,
// keeping the payload. Events missing from names abort the chain.
func Rename(names map[string]string) corofsm.Task {
	return func(y *corofsm.Yield) error {
		ev := y.Await()
		for {
			to, ok := names[ev.Name()]
			if !ok {
				return errors.Wrapf(ErrUnexpectedEvent, "event %q received in state %q", ev.Name(), y.Name())
			}
			if err := ev.Rename(to); err != nil {
				return err
			}
			ev = y.Emit(ev)
		}
	}
}
