package corofsm

import (
	"cmp"
	"slices"
)

// TransitionInfo describes one entry of a transition table by name. Machine
// names the machine owning the destination state.
type TransitionInfo struct {
	From    string `json:"from" yaml:"from"`
	Event   string `json:"event" yaml:"event"`
	To      string `json:"to" yaml:"to"`
	Machine string `json:"machine" yaml:"machine"`
}

type transitionKey struct {
	from *State
	on   string
}

// transitionTable maps (state handle, event name) to a destination state.
// The destination's machine is carried by the handle itself.
type transitionTable struct {
	routes map[transitionKey]*State
}

func newTransitionTable() transitionTable {
	return transitionTable{routes: make(map[transitionKey]*State)}
}

// add routes (from, on) to to. It reports whether the key was new.
func (t *transitionTable) add(from *State, on string, to *State) bool {
	k := transitionKey{from: from, on: on}
	_, exists := t.routes[k]
	t.routes[k] = to
	return !exists
}

func (t *transitionTable) remove(from *State, on string) bool {
	k := transitionKey{from: from, on: on}
	if _, ok := t.routes[k]; !ok {
		return false
	}
	delete(t.routes, k)
	return true
}

func (t *transitionTable) resolve(from *State, on string) (*State, bool) {
	to, ok := t.routes[transitionKey{from: from, on: on}]
	return to, ok
}

func (t *transitionTable) len() int { return len(t.routes) }

// list returns the table ordered by source state index, then event name.
func (t *transitionTable) list() []TransitionInfo {
	keys := make([]transitionKey, 0, len(t.routes))
	for k := range t.routes {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b transitionKey) int {
		if c := cmp.Compare(a.from.index, b.from.index); c != 0 {
			return c
		}
		return cmp.Compare(a.on, b.on)
	})
	out := make([]TransitionInfo, len(keys))
	for i, k := range keys {
		to := t.routes[k]
		out[i] = TransitionInfo{From: k.from.name, Event: k.on, To: to.name, Machine: to.machine.name}
	}
	return out
}
