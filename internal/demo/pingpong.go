package demo

import (
	"fmt"
	"io"

	"github.com/comalice/corofsm"
)

const (
	PingState = "pingState"
	PongState = "pongState"
	ToPing    = "ToPingEvent"
	ToPong    = "ToPongEvent"
)

// bouncer counts down the int payload of on, replying with reply until the
// counter reaches zero.
func bouncer(on, reply string) corofsm.Task {
	return func(y *corofsm.Yield) error {
		ev := y.Await()
		for {
			if !ev.Is(on) {
				return unrecognized(y, ev)
			}
			n, err := corofsm.As[int](ev)
			if err != nil {
				return err
			}
			if *n > 0 {
				_, err = corofsm.Construct(ev, reply, *n-1)
			} else {
				err = ev.Release()
			}
			if err != nil {
				return err
			}
			ev = y.Emit(ev)
		}
	}
}

// NewPingPong builds the two-state ping-pong machine:
//
//	[pingState] --- ToPongEvent ---> [pongState]
//	[pingState] <--- ToPingEvent --- [pongState]
func NewPingPong(opts ...corofsm.Option) (*corofsm.Machine, error) {
	return corofsm.NewMachineBuilder("PingPongFSM", "", opts...).
		State(PingState, bouncer(ToPing, ToPong)).On(ToPong, PongState).
		State(PongState, bouncer(ToPong, ToPing)).On(ToPing, PingState).
		Build()
}

// RunPingPong describes the machine, then bounces rounds times starting
// from ping and again starting from pong.
func RunPingPong(w io.Writer, rounds int) error {
	p := NewPrinter(w)
	m, err := NewPingPong(corofsm.WithObserver(p.Observe))
	if err != nil {
		return err
	}
	defer m.Close()
	Describe(w, m)

	var ev corofsm.Event
	for _, start := range []struct{ state, event string }{{PingState, ToPing}, {PongState, ToPong}} {
		fmt.Fprintln(w, "\nRunning...")
		if _, err := corofsm.Construct(&ev, start.event, rounds); err != nil {
			return err
		}
		if err := m.SetStateByName(start.state); err != nil {
			return err
		}
		if err := m.SendEvent(&ev); err != nil {
			return err
		}
		fmt.Fprintf(w, "%s suspended at state %s\n", m.Name(), m.CurrentState())
	}
	return nil
}
