// Package production provides integrations around running machines:
// graph export, trace files and a SQLite trace store.
package production

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/comalice/corofsm"
)

// Graph is the exportable shape of one machine.
type Graph struct {
	Machine     string                   `json:"machine"`
	Current     string                   `json:"current,omitempty"`
	States      []string                 `json:"states"`
	Transitions []corofsm.TransitionInfo `json:"transitions"`
}

// GraphOf snapshots m's states and transition table.
func GraphOf(m *corofsm.Machine) Graph {
	g := Graph{
		Machine:     m.Name(),
		Current:     m.CurrentState(),
		Transitions: m.Transitions(),
	}
	for _, s := range m.States() {
		g.States = append(g.States, s.Name())
	}
	return g
}

// DefaultVisualizer renders machine graphs as Graphviz DOT or JSON.
type DefaultVisualizer struct{}

// ExportDOT generates Graphviz DOT source with one cluster per machine.
// Current states are filled and hand-offs drawn dashed.
func (v *DefaultVisualizer) ExportDOT(graphs ...Graph) string {
	var buf bytes.Buffer
	buf.WriteString(`digraph corofsm {
  rankdir=LR;
  node [shape=box, fontsize=10, style=rounded];
  edge [fontsize=9];
`)

	for _, g := range graphs {
		renderMachine(&buf, g)
	}

	for _, g := range graphs {
		for _, e := range g.Transitions {
			attrs := fmt.Sprintf(`label="%s"`, e.Event)
			if e.Machine != g.Machine {
				attrs += ` style=dashed`
			}
			fmt.Fprintf(&buf, "  %q -> %q [%s];\n", nodeID(g.Machine, e.From), nodeID(e.Machine, e.To), attrs)
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

// ExportJSON serializes the graphs to indented JSON.
func (v *DefaultVisualizer) ExportJSON(graphs ...Graph) ([]byte, error) {
	return json.MarshalIndent(graphs, "", "  ")
}

func nodeID(machine, state string) string {
	return machine + "/" + state
}

func renderMachine(buf *bytes.Buffer, g Graph) {
	fmt.Fprintf(buf, "  subgraph %q {\n", "cluster_"+g.Machine)
	fmt.Fprintf(buf, "    label=%q;\n", g.Machine)
	for _, s := range g.States {
		style := ""
		if s == g.Current {
			style = ` style=filled fillcolor=lightgreen`
		}
		fmt.Fprintf(buf, "    %q [label=%q%s];\n", nodeID(g.Machine, s), s, style)
	}
	buf.WriteString("  }\n")
}
