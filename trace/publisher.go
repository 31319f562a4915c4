package trace

import (
	"sync"

	"github.com/comalice/corofsm"
)

// Publisher forwards hops to a Go channel without blocking the chain.
// Hops are dropped when the channel is full.
type Publisher struct {
	mu      sync.Mutex
	ch      chan<- Hop
	closed  bool
	dropped uint64
}

// NewPublisher creates a Publisher with the given output channel.
func NewPublisher(ch chan<- Hop) *Publisher {
	return &Publisher{ch: ch}
}

// Observe publishes a hop. It has the corofsm.Observer signature.
func (p *Publisher) Observe(machine, from string, ev *corofsm.Event, to string) {
	h := NewHop(machine, from, ev, to)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.ch <- h:
	default:
		p.dropped++
	}
}

// Dropped returns the number of hops lost to backpressure.
func (p *Publisher) Dropped() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// Close closes the output channel. Later hops are ignored.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.ch)
	}
	return nil
}
