package corofsm_test

import (
	"fmt"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comalice/corofsm"
)

func TestTwoStateMachine(t *testing.T) {
	m := corofsm.NewMachine("AB")
	defer m.Close()
	mustRegister(t, m, "A", forward("X"))
	mustRegister(t, m, "B", forward("Y"))
	mustRoute(t, m, "A", "X", "B")
	require.NoError(t, m.Start())
	require.NoError(t, m.SetStateByName("A"))

	send(t, m, "X")
	assert.Equal(t, "B", m.CurrentState())
	assert.False(t, m.IsActive())
	assert.Equal(t, corofsm.Suspended, m.Status())
	assert.True(t, m.LatestEvent().IsEmpty())

	mustRoute(t, m, "B", "Y", "A")
	send(t, m, "Y")
	assert.Equal(t, "A", m.CurrentState())
	assert.False(t, m.IsActive())
}

func TestQuietStateResumesOnNextSend(t *testing.T) {
	var log hopLog
	m := corofsm.NewMachine("PingPong", corofsm.WithObserver(log.observe))
	defer m.Close()

	// Each state counts down and goes quiet at zero.
	counter := func(next string) corofsm.Task {
		return func(y *corofsm.Yield) error {
			ev := y.Await()
			for {
				n, err := corofsm.As[int](ev)
				if err != nil {
					return err
				}
				if *n == 0 {
					if err := ev.Release(); err != nil {
						return err
					}
				} else if _, err := corofsm.Construct(ev, next, *n-1); err != nil {
					return err
				}
				ev = y.Emit(ev)
			}
		}
	}
	mustRegister(t, m, "ping", counter("ToPong"))
	mustRegister(t, m, "pong", counter("ToPing"))
	mustRoute(t, m, "ping", "ToPong", "pong")
	mustRoute(t, m, "pong", "ToPing", "ping")
	require.NoError(t, m.Start())
	require.NoError(t, m.SetStateByName("ping"))

	sendInt(t, m, "ToPing", 3)
	assert.Equal(t, []string{"pong", "ping", "pong"}, log.path())
	assert.Equal(t, "pong", m.CurrentState())
	assert.False(t, m.IsActive())

	log.hops = nil
	sendInt(t, m, "ToPong", 2)
	assert.Equal(t, []string{"ping", "pong"}, log.path())
	assert.Equal(t, hop{"PingPong", "pong", "ToPing", "ping"}, log.hops[0])
	assert.Equal(t, "pong", m.CurrentState())
}

type ringToken struct {
	left int
	cw   bool
}

// ringTask moves the token one step per hop and flips its direction when the
// state is a reflector.
func ringTask(reflect bool) corofsm.Task {
	return func(y *corofsm.Yield) error {
		ev := y.Await()
		for {
			tok, err := corofsm.As[ringToken](ev)
			if err != nil {
				return err
			}
			if tok.left == 0 {
				if err := ev.Release(); err != nil {
					return err
				}
				ev = y.Emit(ev)
				continue
			}
			tok.left--
			if reflect {
				tok.cw = !tok.cw
			}
			name := "CCW"
			if tok.cw {
				name = "CW"
			}
			if err := ev.Rename(name); err != nil {
				return err
			}
			ev = y.Emit(ev)
		}
	}
}

func buildRing(t *testing.T, k int, reflectors map[int]bool, obs corofsm.Observer) *corofsm.Machine {
	t.Helper()
	m := corofsm.NewMachine("ring", corofsm.WithObserver(obs))
	states := make([]*corofsm.State, k)
	for i := range k {
		states[i] = mustRegister(t, m, fmt.Sprintf("s%d", i), ringTask(reflectors[i]))
	}
	for i := range k {
		_, err := m.AddTransition(states[i], "CW", states[(i+1)%k])
		require.NoError(t, err)
		_, err = m.AddTransition(states[i], "CCW", states[(i+k-1)%k])
		require.NoError(t, err)
	}
	require.NoError(t, m.Start())
	require.NoError(t, m.SetState(states[0]))
	return m
}

func TestRingTraversalIsDeterministic(t *testing.T) {
	const k, hops = 7, 40
	reflectors := map[int]bool{3: true, 5: true}

	// Walk the ring by hand to get the expected visit order.
	var want []string
	pos, cw := 0, true
	for range hops {
		if reflectors[pos] {
			cw = !cw
		}
		if cw {
			pos = (pos + 1) % k
		} else {
			pos = (pos + k - 1) % k
		}
		want = append(want, fmt.Sprintf("s%d", pos))
	}

	for run := range 2 {
		var log hopLog
		m := buildRing(t, k, reflectors, log.observe)
		var ev corofsm.Event
		_, err := corofsm.Construct(&ev, "Go", ringToken{left: hops, cw: false})
		require.NoError(t, err)
		// s0 is not a reflector, so seed the direction it will emit.
		tok, err := corofsm.As[ringToken](&ev)
		require.NoError(t, err)
		tok.cw = true
		require.NoError(t, m.SendEvent(&ev))

		assert.Equalf(t, want, log.path(), "run %d", run)
		assert.Equal(t, want[len(want)-1], m.CurrentState())
		require.NoError(t, m.Close())
	}
}

func TestLongChainRuns(t *testing.T) {
	m := buildRing(t, 3, nil, nil)
	defer m.Close()
	var ev corofsm.Event
	_, err := corofsm.Construct(&ev, "Go", ringToken{left: 200000, cw: true})
	require.NoError(t, err)
	require.NoError(t, m.SendEvent(&ev))
	assert.Equal(t, fmt.Sprintf("s%d", 200000%3), m.CurrentState())
}

func TestHandOffBetweenMachines(t *testing.T) {
	var log hopLog
	m1 := corofsm.NewMachine("M1", corofsm.WithObserver(log.observe))
	m2 := corofsm.NewMachine("M2", corofsm.WithObserver(log.observe))
	defer m1.Close()
	defer m2.Close()

	mustRegister(t, m1, "S1", forward("H"))
	mustRegister(t, m1, "T1", quiet)
	mustRegister(t, m2, "S2", func(y *corofsm.Yield) error {
		ev := y.Await()
		for {
			// The destination machine is running while S2 is.
			if !y.Machine().IsActive() || m1.IsActive() {
				return errors.New("activity flags not moved by the hand-off")
			}
			if err := ev.Release(); err != nil {
				return err
			}
			ev = y.Emit(ev)
		}
	})
	_, err := m1.AddHandOff("S1", "H", m2, "S2")
	require.NoError(t, err)
	require.NoError(t, m1.Start())
	require.NoError(t, m2.Start())
	require.NoError(t, m1.SetStateByName("S1"))

	send(t, m1, "H")
	assert.False(t, m1.IsActive())
	assert.Equal(t, "S1", m1.CurrentState())
	assert.False(t, m2.IsActive())
	assert.Equal(t, "S2", m2.CurrentState())
	assert.Equal(t, []hop{{"M1-->M2", "S1", "H", "S2"}}, log.hops)
	assert.Equal(t, []corofsm.TransitionInfo{{From: "S1", Event: "H", To: "S2", Machine: "M2"}}, m1.Transitions())
}

func TestHandOffRoundTrip(t *testing.T) {
	var log hopLog
	m1 := corofsm.NewMachine("M1", corofsm.WithObserver(log.observe))
	m2 := corofsm.NewMachine("M2", corofsm.WithObserver(log.observe))
	defer m1.Close()
	defer m2.Close()

	mustRegister(t, m1, "S1", forward("Go"))
	mustRegister(t, m1, "T1", quiet)
	mustRegister(t, m2, "S2", tasksRename("Go", "Back"))
	_, err := m1.AddHandOff("S1", "Go", m2, "S2")
	require.NoError(t, err)
	_, err = m2.AddHandOff("S2", "Back", m1, "T1")
	require.NoError(t, err)
	require.NoError(t, m1.Start())
	require.NoError(t, m2.Start())
	require.NoError(t, m1.SetStateByName("S1"))

	sendInt(t, m1, "Go", 1)
	assert.Equal(t, "T1", m1.CurrentState())
	assert.Equal(t, "S2", m2.CurrentState())
	assert.False(t, m1.IsActive())
	assert.False(t, m2.IsActive())
	assert.Equal(t, []hop{
		{"M1-->M2", "S1", "Go", "S2"},
		{"M2-->M1", "S2", "Back", "T1"},
	}, log.hops)

	// The chain is back home, so both machines accept sends again.
	require.NoError(t, m1.SetStateByName("S1"))
	sendInt(t, m1, "Go", 2)
	assert.Equal(t, "T1", m1.CurrentState())
	assert.Len(t, log.hops, 4)
}

func tasksRename(from, to string) corofsm.Task {
	return func(y *corofsm.Yield) error {
		ev := y.Await()
		for {
			if ev.Is(from) {
				if err := ev.Rename(to); err != nil {
					return err
				}
			}
			ev = y.Emit(ev)
		}
	}
}

func TestReleasablePayloadTravelsThroughChain(t *testing.T) {
	released := 0
	m := corofsm.NewMachine("handles")
	defer m.Close()
	mustRegister(t, m, "open", forward("Use"))
	mustRegister(t, m, "close", func(y *corofsm.Yield) error {
		ev := y.Await()
		for {
			if err := corofsm.ReleaseAs[handle](ev); err != nil {
				return err
			}
			ev = y.Emit(ev)
		}
	})
	mustRoute(t, m, "open", "Use", "close")
	require.NoError(t, m.Start())
	require.NoError(t, m.SetStateByName("open"))

	var ev corofsm.Event
	_, err := corofsm.Construct(&ev, "Use", handle{id: 1, released: &released})
	require.NoError(t, err)
	require.NoError(t, m.SendEvent(&ev))
	assert.True(t, ev.IsEmpty())
	assert.Equal(t, 1, released)
	assert.Equal(t, "close", m.CurrentState())
}

func TestUnreleasedPayloadCannotBeDropped(t *testing.T) {
	released := 0
	m := corofsm.NewMachine("leaky")
	defer m.Close()
	mustRegister(t, m, "leak", quiet)
	require.NoError(t, m.Start())
	require.NoError(t, m.SetStateByName("leak"))

	var ev corofsm.Event
	_, err := corofsm.Construct(&ev, "Use", handle{released: &released})
	require.NoError(t, err)
	err = m.SendEvent(&ev)
	assert.True(t, errors.Is(err, corofsm.ErrUnreleasedPayload))
	assert.True(t, errors.Is(err, corofsm.ErrProtocolViolation))
	assert.False(t, m.IsActive())
}

func TestTransitionNotFoundAbortsChain(t *testing.T) {
	m := corofsm.NewMachine("AB")
	defer m.Close()
	mustRegister(t, m, "A", forward("X", "Z"))
	mustRegister(t, m, "B", quiet)
	mustRoute(t, m, "A", "X", "B")
	require.NoError(t, m.Start())
	require.NoError(t, m.SetStateByName("A"))

	err := m.SendEvent(corofsm.NewEvent("Z"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, corofsm.ErrTransitionNotFound))
	var te *corofsm.TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, corofsm.TransitionError{Machine: "AB", State: "A", Event: "Z"}, *te)
	assert.False(t, m.IsActive())
	assert.True(t, m.LatestEvent().IsEmpty())
	assert.Equal(t, "A", m.CurrentState())

	// The state survives the failed chain.
	send(t, m, "X")
	assert.Equal(t, "B", m.CurrentState())
}

func TestSendPreconditions(t *testing.T) {
	m := corofsm.NewMachine("pre")
	s := mustRegister(t, m, "A", quiet)

	err := m.SendEvent(corofsm.NewEvent("X"))
	assert.True(t, errors.Is(err, corofsm.ErrNoCurrentState))
	assert.True(t, errors.Is(err, corofsm.ErrConfiguration))

	require.NoError(t, m.SetState(s))
	err = m.SendEvent(corofsm.NewEvent("X"))
	assert.True(t, errors.Is(err, corofsm.ErrNotStarted))
	assert.True(t, errors.Is(err, corofsm.ErrConfiguration))
	assert.Equal(t, corofsm.Unstarted, m.Status())

	require.NoError(t, m.Start())
	err = m.SendEvent(&corofsm.Event{})
	assert.True(t, errors.Is(err, corofsm.ErrEmptyEvent))
	assert.True(t, errors.Is(err, corofsm.ErrProtocolViolation))
	err = m.SendEvent(nil)
	assert.True(t, errors.Is(err, corofsm.ErrEmptyEvent))

	require.NoError(t, m.Close())
	err = m.SendEvent(corofsm.NewEvent("X"))
	assert.True(t, errors.Is(err, corofsm.ErrMachineClosed))
	_, err = m.Register("B", quiet)
	assert.True(t, errors.Is(err, corofsm.ErrMachineClosed))
	require.NoError(t, m.Close())
}

func TestTransitionIntoUnstartedState(t *testing.T) {
	m := corofsm.NewMachine("late")
	defer m.Close()
	mustRegister(t, m, "A", forward("X"))
	require.NoError(t, m.Start())
	mustRegister(t, m, "B", quiet)
	mustRoute(t, m, "A", "X", "B")
	require.NoError(t, m.SetStateByName("A"))

	err := m.SendEvent(corofsm.NewEvent("X"))
	assert.True(t, errors.Is(err, corofsm.ErrNotStarted))

	// A second Start activates the late state only.
	require.NoError(t, m.Start())
	send(t, m, "X")
	assert.Equal(t, "B", m.CurrentState())
}

func TestRegisterErrors(t *testing.T) {
	m := corofsm.NewMachine("reg")
	defer m.Close()
	mustRegister(t, m, "A", quiet)

	_, err := m.Register("A", quiet)
	assert.True(t, errors.Is(err, corofsm.ErrDuplicateState))
	assert.True(t, errors.Is(err, corofsm.ErrConfiguration))
	assert.False(t, errors.Is(err, corofsm.ErrStateNotFound))

	_, err = m.Register("B", nil)
	assert.True(t, errors.Is(err, corofsm.ErrNilTask))

	anon := mustRegister(t, m, "", quiet)
	assert.NotEmpty(t, anon.Name())
	assert.True(t, m.HasState(anon.Name()))
	assert.Equal(t, 1, anon.Index())
	assert.Same(t, m, anon.Machine())
	assert.Equal(t, 2, m.NumStates())
	assert.Same(t, anon, m.StateAt(1))
	assert.Nil(t, m.StateAt(2))

	i, err := m.FindIndex("A")
	require.NoError(t, err)
	assert.Equal(t, 0, i)
	_, err = m.FindIndex("missing")
	assert.True(t, errors.Is(err, corofsm.ErrStateNotFound))

	other := corofsm.NewMachine("other")
	defer other.Close()
	foreign := mustRegister(t, other, "F", quiet)
	assert.True(t, errors.Is(m.SetState(foreign), corofsm.ErrForeignState))
	_, err = m.AddTransition(foreign, "X", anon)
	assert.True(t, errors.Is(err, corofsm.ErrForeignState))
}

func TestAnonymousMachineName(t *testing.T) {
	m := corofsm.NewMachine("")
	assert.NotEmpty(t, m.Name())
}

func TestTaskReturnIsProtocolViolation(t *testing.T) {
	m := corofsm.NewMachine("ret")
	defer m.Close()
	mustRegister(t, m, "once", func(y *corofsm.Yield) error {
		ev := y.Await()
		return ev.Release()
	})
	require.NoError(t, m.Start())
	require.NoError(t, m.SetStateByName("once"))

	err := m.SendEvent(corofsm.NewEvent("X"))
	assert.True(t, errors.Is(err, corofsm.ErrStateReturned))
	assert.True(t, errors.Is(err, corofsm.ErrProtocolViolation))
	assert.False(t, m.IsActive())

	// The finished state keeps reporting why it ended.
	err = m.SendEvent(corofsm.NewEvent("X"))
	assert.True(t, errors.Is(err, corofsm.ErrStateReturned))
}

func TestEmitNilIsProtocolViolation(t *testing.T) {
	m := corofsm.NewMachine("nil")
	defer m.Close()
	mustRegister(t, m, "A", func(y *corofsm.Yield) error {
		y.Await()
		for {
			y.Emit(nil)
		}
	})
	require.NoError(t, m.Start())
	require.NoError(t, m.SetStateByName("A"))

	err := m.SendEvent(corofsm.NewEvent("X"))
	assert.True(t, errors.Is(err, corofsm.ErrEmptyEvent))
	assert.True(t, errors.Is(err, corofsm.ErrProtocolViolation))
	assert.False(t, m.IsActive())
}

func TestTaskErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	m := corofsm.NewMachine("err")
	defer m.Close()
	mustRegister(t, m, "A", forward("X"))
	mustRegister(t, m, "B", func(y *corofsm.Yield) error {
		y.Await()
		return boom
	})
	mustRoute(t, m, "A", "X", "B")
	require.NoError(t, m.Start())
	require.NoError(t, m.SetStateByName("A"))

	err := m.SendEvent(corofsm.NewEvent("X"))
	assert.True(t, errors.Is(err, boom))
	assert.Contains(t, err.Error(), `state "B"`)
	assert.False(t, m.IsActive())
}

func TestTaskTypeMismatchPropagates(t *testing.T) {
	m := corofsm.NewMachine("types")
	defer m.Close()
	mustRegister(t, m, "A", func(y *corofsm.Yield) error {
		ev := y.Await()
		for {
			if _, err := corofsm.As[string](ev); err != nil {
				return err
			}
			ev = y.Emit(ev)
		}
	})
	require.NoError(t, m.Start())
	require.NoError(t, m.SetStateByName("A"))
	var ev corofsm.Event
	_, err := corofsm.Construct(&ev, "N", 1)
	require.NoError(t, err)
	err = m.SendEvent(&ev)
	assert.True(t, errors.Is(err, corofsm.ErrTypeMismatch))
}

func TestTaskPanicLeavesMachineIdle(t *testing.T) {
	m := corofsm.NewMachine("panicky")
	defer m.Close()
	mustRegister(t, m, "A", func(y *corofsm.Yield) error {
		y.Await()
		panic("kaboom")
	})
	require.NoError(t, m.Start())
	require.NoError(t, m.SetStateByName("A"))

	assert.PanicsWithValue(t, "kaboom", func() {
		_ = m.SendEvent(corofsm.NewEvent("X"))
	})
	assert.False(t, m.IsActive())
	assert.True(t, m.LatestEvent().IsEmpty())
	assert.Error(t, m.SendEvent(corofsm.NewEvent("X")))
}

func TestReentrantSendIsBusy(t *testing.T) {
	var inner error
	m := corofsm.NewMachine("busy")
	defer m.Close()
	mustRegister(t, m, "A", func(y *corofsm.Yield) error {
		ev := y.Await()
		for {
			inner = y.Machine().SendEvent(corofsm.NewEvent("Again"))
			// Closing mid-chain is refused too.
			if err := y.Machine().Close(); !errors.Is(err, corofsm.ErrMachineBusy) {
				return errors.Newf("close while dispatching: %v", err)
			}
			if err := ev.Release(); err != nil {
				return err
			}
			ev = y.Emit(ev)
		}
	})
	require.NoError(t, m.Start())
	require.NoError(t, m.SetStateByName("A"))

	send(t, m, "X")
	assert.True(t, errors.Is(inner, corofsm.ErrMachineBusy))
	assert.Equal(t, "busy", m.Name())
}

func TestHandOffIntoBusyMachine(t *testing.T) {
	m1 := corofsm.NewMachine("M1")
	m2 := corofsm.NewMachine("M2")
	defer m1.Close()
	defer m2.Close()

	mustRegister(t, m1, "A", forward("Out"))
	mustRegister(t, m1, "B", quiet)
	mustRegister(t, m2, "C", func(y *corofsm.Yield) error {
		ev := y.Await()
		for {
			// m1's chain tries to hand off into m2 while m2 is running.
			if ev.Is("Kick") {
				if err := m1.SendEvent(corofsm.NewEvent("Out")); !errors.Is(err, corofsm.ErrMachineBusy) {
					return errors.Newf("expected busy hand-off, got %v", err)
				}
			}
			if err := ev.Release(); err != nil {
				return err
			}
			ev = y.Emit(ev)
		}
	})
	_, err := m1.AddHandOff("A", "Out", m2, "C")
	require.NoError(t, err)
	require.NoError(t, m1.Start())
	require.NoError(t, m2.Start())
	require.NoError(t, m1.SetStateByName("A"))
	require.NoError(t, m2.SetStateByName("C"))

	send(t, m2, "Kick")
	assert.False(t, m1.IsActive())
	assert.False(t, m2.IsActive())
	assert.Equal(t, "A", m1.CurrentState())
}

func TestEmitBeforeAwaitFailsStart(t *testing.T) {
	m := corofsm.NewMachine("eager")
	defer m.Close()
	mustRegister(t, m, "A", func(y *corofsm.Yield) error {
		ev := corofsm.NewEvent("Early")
		for {
			ev = y.Emit(ev)
		}
	})
	err := m.Start()
	assert.True(t, errors.Is(err, corofsm.ErrEmptyEvent))
	assert.True(t, m.LatestEvent().IsEmpty())
}

func TestEmitForeignEnvelopeWithOwedPayload(t *testing.T) {
	released := 0
	m := corofsm.NewMachine("swap")
	defer m.Close()
	mustRegister(t, m, "A", func(y *corofsm.Yield) error {
		y.Await()
		for {
			// Replacing the received event without releasing its handle is a fault.
			y.Emit(corofsm.NewEvent("Other"))
		}
	})
	require.NoError(t, m.Start())
	require.NoError(t, m.SetStateByName("A"))

	var ev corofsm.Event
	_, err := corofsm.Construct(&ev, "Use", handle{released: &released})
	require.NoError(t, err)
	err = m.SendEvent(&ev)
	assert.True(t, errors.Is(err, corofsm.ErrUnreleasedPayload))
	assert.False(t, m.IsActive())
}

func TestObserverCanBeReplaced(t *testing.T) {
	var first, second hopLog
	m := corofsm.NewMachine("obs", corofsm.WithObserver(first.observe))
	defer m.Close()
	mustRegister(t, m, "A", forward("X"))
	mustRegister(t, m, "B", forward("Y"))
	mustRoute(t, m, "A", "X", "B")
	mustRoute(t, m, "B", "Y", "A")
	require.NoError(t, m.Start())
	require.NoError(t, m.SetStateByName("A"))

	send(t, m, "X")
	m.SetObserver(second.observe)
	send(t, m, "Y")
	m.SetObserver(nil)
	send(t, m, "X")

	assert.Equal(t, []string{"B"}, first.path())
	assert.Equal(t, []string{"A"}, second.path())
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "unstarted", corofsm.Unstarted.String())
	assert.Equal(t, "suspended", corofsm.Suspended.String())
	assert.Equal(t, "dispatching", corofsm.Dispatching.String())
	assert.Equal(t, "Status(9)", corofsm.Status(9).String())
}
