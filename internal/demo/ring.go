package demo

import (
	"fmt"
	"io"
	"time"

	"github.com/comalice/corofsm"
)

const (
	ReadyState   = "ready"
	StartEvent   = "StartEvent"
	Clockwise    = "ClockwiseEvent"
	CounterClock = "CounterClockwiseEvent"
)

// RingStats collects what a ring run measured.
type RingStats struct {
	Rounds   int
	Hops     uint64
	Duration time.Duration
}

// Transitions counts every hop of the run. Each round enters the ready
// state once besides the ring states.
func (s RingStats) Transitions() uint64 {
	return s.Hops + uint64(s.Rounds)
}

// PerSecond returns transitions per second.
func (s RingStats) PerSecond() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.Transitions()) / s.Duration.Seconds()
}

// readyState starts rounds around the ring, reversing direction after each
// one, and suspends when they are done.
func readyState(stats *RingStats) corofsm.Task {
	return func(y *corofsm.Yield) error {
		var (
			roundsLeft int
			clockwise  = true
			start      time.Time
		)
		ev := y.Await()
		for {
			switch {
			case ev.Is(StartEvent):
				n, err := corofsm.As[int](ev)
				if err != nil {
					return err
				}
				roundsLeft = max(*n, 1)
				stats.Rounds += roundsLeft
				start = time.Now()
			case ev.Is(Clockwise):
				clockwise = false
			case ev.Is(CounterClock):
				clockwise = true
			default:
				return unrecognized(y, ev)
			}

			var err error
			switch {
			case roundsLeft == 0:
				stats.Duration += time.Since(start)
				err = ev.Release()
			case clockwise:
				roundsLeft--
				err = ev.Set(Clockwise)
			default:
				roundsLeft--
				err = ev.Set(CounterClock)
			}
			if err != nil {
				return err
			}
			ev = y.Emit(ev)
		}
	}
}

// ringState passes the token on in the direction it is travelling.
func ringState(stats *RingStats) corofsm.Task {
	return func(y *corofsm.Yield) error {
		ev := y.Await()
		for {
			if !ev.Is(Clockwise) && !ev.Is(CounterClock) {
				return unrecognized(y, ev)
			}
			stats.Hops++
			ev = y.Emit(ev)
		}
	}
}

// NewRing builds a ring of size anonymous states joined both ways, closed
// by the ready state.
func NewRing(size int, stats *RingStats, opts ...corofsm.Option) (*corofsm.Machine, error) {
	size = max(size, 1)
	m := corofsm.NewMachine("Ring FSM", opts...)
	ring := make([]*corofsm.State, size)
	for i := range ring {
		s, err := m.Register(fmt.Sprintf("ring%d", i), ringState(stats))
		if err != nil {
			return nil, err
		}
		ring[i] = s
	}
	for i := 0; i < size-1; i++ {
		if _, err := m.AddTransition(ring[i], Clockwise, ring[i+1]); err != nil {
			return nil, err
		}
		if _, err := m.AddTransition(ring[i+1], CounterClock, ring[i]); err != nil {
			return nil, err
		}
	}
	ready, err := m.Register(ReadyState, readyState(stats))
	if err != nil {
		return nil, err
	}
	for _, tr := range []struct {
		from *corofsm.State
		on   string
		to   *corofsm.State
	}{
		{ready, Clockwise, ring[0]},
		{ring[size-1], Clockwise, ready},
		{ready, CounterClock, ring[size-1]},
		{ring[0], CounterClock, ready},
	} {
		if _, err := m.AddTransition(tr.from, tr.on, tr.to); err != nil {
			return nil, err
		}
	}
	if err := m.Start(); err != nil {
		return nil, err
	}
	if err := m.SetState(ready); err != nil {
		return nil, err
	}
	return m, nil
}

// RunRing sends the token rounds times around a ring of size states and
// reports the speed.
func RunRing(w io.Writer, size, rounds int, opts ...corofsm.Option) (RingStats, error) {
	var stats RingStats
	m, err := NewRing(size, &stats, opts...)
	if err != nil {
		return stats, err
	}
	defer m.Close()

	var ev corofsm.Event
	if _, err := corofsm.Construct(&ev, StartEvent, rounds); err != nil {
		return stats, err
	}
	if err := m.SendEvent(&ev); err != nil {
		return stats, err
	}
	fmt.Fprintf(w, "'%s' is suspended at state '%s'\n", m.Name(), m.CurrentState())
	fmt.Fprintf(w, "Based on %d rounds around the ring of %d states in %v, meaning %d events sent,\n",
		stats.Rounds, size, stats.Duration, stats.Transitions())
	fmt.Fprintf(w, "the speed of execution is %.0f state transitions per second\n", stats.PerSecond())
	return stats, nil
}
