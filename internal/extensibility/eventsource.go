// Package extensibility feeds events from outside sources into machines.
//
// A Machine must not be entered by two callers at once, so every source is
// drained by a single Pump goroutine that performs the sends one at a time.
package extensibility

import (
	"context"
	"time"

	"github.com/comalice/corofsm"
)

// Request asks the pump to deliver Event.
type Request struct {
	// Machine receives the event; nil means the pump's default machine.
	Machine *corofsm.Machine
	// State, if set, is selected as the current state before sending.
	State string
	Event *corofsm.Event
	// Done, if not nil, receives the outcome of the send. It must have
	// room for one value.
	Done chan<- error
}

// EventSource delivers requests to a Pump.
type EventSource interface {
	Events() <-chan Request
}

// ChannelEventSource is an EventSource backed by a Go channel.
type ChannelEventSource struct {
	ch chan Request
}

// NewChannelEventSource creates a new ChannelEventSource with the given channel.
// The channel should be buffered if backpressure handling is needed.
func NewChannelEventSource(ch chan Request) *ChannelEventSource {
	return &ChannelEventSource{ch: ch}
}

// Events returns the receive-only channel for requests.
func (s *ChannelEventSource) Events() <-chan Request {
	return s.ch
}

// Post queues ev for m without waiting for it to be handled.
func (s *ChannelEventSource) Post(ctx context.Context, m *corofsm.Machine, ev *corofsm.Event) error {
	select {
	case s.ch <- Request{Machine: m, Event: ev}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send queues ev for m, optionally selecting state first, and waits for the
// resulting chain to suspend.
func (s *ChannelEventSource) Send(ctx context.Context, m *corofsm.Machine, state string, ev *corofsm.Event) error {
	done := make(chan error, 1)
	select {
	case s.ch <- Request{Machine: m, State: state, Event: ev, Done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the channel, which ends a Pump draining only this source.
func (s *ChannelEventSource) Close() {
	close(s.ch)
}

// TimerEventSource posts a payload-less event every period. Ticks are
// dropped while the pump is busy.
type TimerEventSource struct {
	ch      chan Request
	machine *corofsm.Machine
	name    string
	ticker  *time.Ticker
	stop    chan struct{}
}

// NewTimerEventSource creates a TimerEventSource that sends name to m
// every d.
func NewTimerEventSource(m *corofsm.Machine, name string, d time.Duration) *TimerEventSource {
	t := &TimerEventSource{
		ch:      make(chan Request, 1),
		machine: m,
		name:    name,
		ticker:  time.NewTicker(d),
		stop:    make(chan struct{}),
	}
	go t.run()
	return t
}

func (t *TimerEventSource) run() {
	for {
		select {
		case <-t.ticker.C:
			select {
			case t.ch <- Request{Machine: t.machine, Event: corofsm.NewEvent(t.name)}:
			default:
				// drop if full
			}
		case <-t.stop:
			t.ticker.Stop()
			close(t.ch)
			return
		}
	}
}

// Events returns the request channel.
func (t *TimerEventSource) Events() <-chan Request {
	return t.ch
}

// Stop stops the ticker and closes the channel.
func (t *TimerEventSource) Stop() {
	close(t.stop)
}
