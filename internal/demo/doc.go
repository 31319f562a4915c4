// Package demo holds the demonstration machines run by the example programs
// and the corofsm command: ping-pong, a ring of states, a Morse transmitter
// and three devices handing control to each other.
package demo

import (
	"fmt"
	"io"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/comalice/corofsm"
)

// ErrUnrecognizedEvent is returned by a demo state that receives an event it
// has no handling for.
var ErrUnrecognizedEvent = errors.New("unrecognized event")

func unrecognized(y *corofsm.Yield, ev *corofsm.Event) error {
	return errors.Wrapf(ErrUnrecognizedEvent, "event %q received in state %q", ev.Name(), y.Name())
}

// Printer writes one line per hop to w. It can be shared by machines driven
// from different goroutines.
type Printer struct {
	mu    sync.Mutex
	w     io.Writer
	count uint64
}

// NewPrinter creates a Printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Observe prints a hop. It has the corofsm.Observer signature.
func (p *Printer) Observe(machine, from string, ev *corofsm.Event, to string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.count++
	fmt.Fprintf(p.w, "%d # [%s] '%s' sent from '%s' --> '%s'\n", p.count, machine, ev.Name(), from, to)
}

// Printf writes a line to w under the printer's lock.
func (p *Printer) Printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format, args...)
}

// Count returns the number of hops printed.
func (p *Printer) Count() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

// Describe prints the states and transitions of m.
func Describe(w io.Writer, m *corofsm.Machine) {
	fmt.Fprintf(w, "'%s' has %d states.\n", m.Name(), m.NumStates())
	fmt.Fprintln(w, "The states are:")
	for i := range m.NumStates() {
		fmt.Fprintf(w, "  (%d) %s\n", i, m.StateAt(i).Name())
	}
	fmt.Fprintln(w, "The transitions are:")
	for _, tr := range m.Transitions() {
		if tr.Machine != m.Name() {
			fmt.Fprintf(w, "  {%s,%s} --> %s/%s\n", tr.From, tr.Event, tr.Machine, tr.To)
			continue
		}
		fmt.Fprintf(w, "  {%s,%s} --> %s\n", tr.From, tr.Event, tr.To)
	}
}
