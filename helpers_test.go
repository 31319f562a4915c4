package corofsm_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/comalice/corofsm"
)

// forward re-emits the events it is told to and goes quiet on anything else.
func forward(names ...string) corofsm.Task {
	pass := make(map[string]bool, len(names))
	for _, n := range names {
		pass[n] = true
	}
	return func(y *corofsm.Yield) error {
		ev := y.Await()
		for {
			if !pass[ev.Name()] {
				if err := ev.Release(); err != nil {
					return err
				}
			}
			ev = y.Emit(ev)
		}
	}
}

// quiet swallows every event.
func quiet(y *corofsm.Yield) error {
	ev := y.Await()
	for {
		if err := ev.Release(); err != nil {
			return err
		}
		ev = y.Emit(ev)
	}
}

type hop struct {
	machine, from, event, to string
}

type hopLog struct {
	hops []hop
}

func (l *hopLog) observe(machine, from string, ev *corofsm.Event, to string) {
	l.hops = append(l.hops, hop{machine, from, ev.Name(), to})
}

func (l *hopLog) path() []string {
	out := make([]string, len(l.hops))
	for i, h := range l.hops {
		out[i] = h.to
	}
	return out
}

func send(t *testing.T, m *corofsm.Machine, name string) {
	t.Helper()
	require.NoError(t, m.SendEvent(corofsm.NewEvent(name)))
}

func sendInt(t *testing.T, m *corofsm.Machine, name string, n int) {
	t.Helper()
	var ev corofsm.Event
	_, err := corofsm.Construct(&ev, name, n)
	require.NoError(t, err)
	require.NoError(t, m.SendEvent(&ev))
}

func mustRegister(t *testing.T, m *corofsm.Machine, name string, task corofsm.Task) *corofsm.State {
	t.Helper()
	s, err := m.Register(name, task)
	require.NoError(t, err)
	return s
}

func mustRoute(t *testing.T, m *corofsm.Machine, from, on, to string) {
	t.Helper()
	_, err := m.AddTransitionByName(from, on, to)
	require.NoError(t, err)
}
