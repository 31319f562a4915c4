// Package testutil lets one test suite drive machines either directly from
// the test goroutine or through a pump goroutine.
package testutil

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/comalice/corofsm"
	"github.com/comalice/corofsm/internal/extensibility"
)

// DriverAdapter provides a common interface for the ways a machine can be
// driven.
type DriverAdapter interface {
	Start(ctx context.Context) error
	Stop() error
	SendEvent(ev *corofsm.Event) error
	SendEventTo(state string, ev *corofsm.Event) error
	CurrentState() string
	IsInState(name string) bool
}

// DirectAdapter calls the machine from the caller's goroutine.
type DirectAdapter struct {
	m *corofsm.Machine
}

// NewDirectAdapter wraps m.
func NewDirectAdapter(m *corofsm.Machine) *DirectAdapter {
	return &DirectAdapter{m: m}
}

func (a *DirectAdapter) Start(ctx context.Context) error {
	return a.m.Start()
}

func (a *DirectAdapter) Stop() error {
	return a.m.Close()
}

func (a *DirectAdapter) SendEvent(ev *corofsm.Event) error {
	return a.m.SendEvent(ev)
}

func (a *DirectAdapter) SendEventTo(state string, ev *corofsm.Event) error {
	if err := a.m.SetStateByName(state); err != nil {
		return err
	}
	return a.m.SendEvent(ev)
}

func (a *DirectAdapter) CurrentState() string {
	return a.m.CurrentState()
}

func (a *DirectAdapter) IsInState(name string) bool {
	return a.m.CurrentState() == name
}

// PumpAdapter routes every call through a pump goroutine. Queries are
// answered between chains, never during one.
type PumpAdapter struct {
	m      *corofsm.Machine
	src    *extensibility.ChannelEventSource
	cancel context.CancelFunc
	done   chan error
}

// NewPumpAdapter wraps m.
func NewPumpAdapter(m *corofsm.Machine) *PumpAdapter {
	return &PumpAdapter{m: m}
}

// Start starts the machine and the pump. The pump stops when ctx is done or
// Stop is called.
func (a *PumpAdapter) Start(ctx context.Context) error {
	if err := a.m.Start(); err != nil {
		return err
	}
	ctx, a.cancel = context.WithCancel(ctx)
	a.src = extensibility.NewChannelEventSource(make(chan extensibility.Request))
	a.done = make(chan error, 1)
	pump := extensibility.NewPump(a.m, nil)
	go func() { a.done <- pump.Run(ctx, a.src) }()
	return nil
}

func (a *PumpAdapter) Stop() error {
	if a.cancel != nil {
		a.src.Close()
		<-a.done
		a.cancel()
		a.cancel = nil
		a.src = nil
	}
	return a.m.Close()
}

// ErrPumpNotRunning is returned when the PumpAdapter is used before Start
// or after Stop.
var ErrPumpNotRunning = errors.New("pump adapter not running")

func (a *PumpAdapter) SendEvent(ev *corofsm.Event) error {
	return a.SendEventTo("", ev)
}

func (a *PumpAdapter) SendEventTo(state string, ev *corofsm.Event) error {
	if a.src == nil {
		return ErrPumpNotRunning
	}
	return a.src.Send(context.Background(), nil, state, ev)
}

// CurrentState reads the machine after the pump has finished any chain
// queued before the call. It panics if the pump cannot run the read.
func (a *PumpAdapter) CurrentState() string {
	var state string
	if err := a.sync(func() { state = a.m.CurrentState() }); err != nil {
		panic(errors.Wrap(err, "pump adapter: current state"))
	}
	return state
}

func (a *PumpAdapter) IsInState(name string) bool {
	return a.CurrentState() == name
}

// sync runs fn once the pump is idle, by sending a barrier through a
// throwaway machine.
func (a *PumpAdapter) sync(fn func()) error {
	if a.src == nil {
		return ErrPumpNotRunning
	}
	barrier := corofsm.NewMachine("barrier")
	defer barrier.Close()
	if _, err := barrier.Register("run", func(y *corofsm.Yield) error {
		ev := y.Await()
		for {
			fn()
			if err := ev.Release(); err != nil {
				return err
			}
			ev = y.Emit(ev)
		}
	}); err != nil {
		return err
	}
	if err := barrier.Start(); err != nil {
		return err
	}
	return a.src.Send(context.Background(), barrier, "run", corofsm.NewEvent("Sync"))
}
