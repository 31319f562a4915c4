// Package trace provides observers for corofsm machines: an in-memory
// recorder, a structured logger, Prometheus counters and a channel
// publisher. All of them produce or consume Hop records.
package trace

import (
	"strings"
	"sync"
	"time"

	"github.com/comalice/corofsm"
)

// HandOffSeparator joins source and destination machine names in the
// machine label of a cross-machine hop.
const HandOffSeparator = "-->"

// Hop is one transition taken by a chain.
type Hop struct {
	Seq     uint64    `json:"seq" yaml:"seq"`
	Machine string    `json:"machine" yaml:"machine"`
	Target  string    `json:"target,omitempty" yaml:"target,omitempty"`
	From    string    `json:"from" yaml:"from"`
	Event   string    `json:"event" yaml:"event"`
	To      string    `json:"to" yaml:"to"`
	At      time.Time `json:"at" yaml:"at"`
}

// HandOff reports whether the hop crossed into another machine.
func (h Hop) HandOff() bool { return h.Target != "" }

// NewHop builds a Hop from observer arguments, splitting a hand-off label
// into source and target machine.
func NewHop(machine, from string, ev *corofsm.Event, to string) Hop {
	h := Hop{Machine: machine, From: from, Event: ev.Name(), To: to, At: time.Now()}
	if src, dst, ok := strings.Cut(machine, HandOffSeparator); ok {
		h.Machine, h.Target = src, dst
	}
	return h
}

// Multi fans one hop out to several observers in order. nil observers are
// skipped.
func Multi(observers ...corofsm.Observer) corofsm.Observer {
	return func(machine, from string, ev *corofsm.Event, to string) {
		for _, o := range observers {
			if o != nil {
				o(machine, from, ev, to)
			}
		}
	}
}

// Recorder keeps every hop it observes. It is safe to share between
// machines driven from different goroutines.
type Recorder struct {
	mu   sync.Mutex
	seq  uint64
	hops []Hop
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Observe records a hop. It has the corofsm.Observer signature.
func (r *Recorder) Observe(machine, from string, ev *corofsm.Event, to string) {
	h := NewHop(machine, from, ev, to)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	h.Seq = r.seq
	r.hops = append(r.hops, h)
}

// Hops returns a copy of the recorded hops in observation order.
func (r *Recorder) Hops() []Hop {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Hop, len(r.hops))
	copy(out, r.hops)
	return out
}

// Path returns the destination state of every recorded hop.
func (r *Recorder) Path() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.hops))
	for i, h := range r.hops {
		out[i] = h.To
	}
	return out
}

// Len returns the number of recorded hops.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.hops)
}

// Reset forgets every recorded hop.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hops = nil
	r.seq = 0
}
