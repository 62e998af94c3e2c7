// Package viz renders built workflows for inspection. It consumes the
// graph strictly read-only: nothing here affects execution.
package viz

import (
	"fmt"
	"strings"

	"github.com/tidelake/flow/flow"
)

// kindShapes maps step kinds to Graphviz node shapes so the special kinds
// stand out in a rendered graph.
var kindShapes = map[flow.Kind]string{
	flow.KindParallel:   "box3d",
	flow.KindBranch:     "diamond",
	flow.KindEmbed:      "component",
	flow.KindEach:       "folder",
	flow.KindRace:       "tripleoctagon",
	flow.KindUsing:      "house",
	flow.KindCheckpoint: "cds",
}

// DOT renders the workflow as a Graphviz digraph. Edges follow the
// resolved dependency relation, implicit sequential edges included.
func DOT(wf *flow.Workflow) string {
	var b strings.Builder
	fmt.Fprintf(&b, "digraph %q {\n", wf.Name())
	b.WriteString("\trankdir=LR;\n")
	b.WriteString("\tnode [fontname=\"Helvetica\"];\n")

	for _, s := range wf.Steps() {
		shape, ok := kindShapes[s.Kind()]
		if !ok {
			shape = "box"
		}
		attrs := fmt.Sprintf("shape=%s", shape)
		if s.HasRollback() {
			attrs += ", peripheries=2"
		}
		fmt.Fprintf(&b, "\t%q [%s, label=\"%s\\n(%s)\"];\n", s.Name(), attrs, s.Name(), s.Kind())
	}
	for _, s := range wf.Steps() {
		for _, pred := range wf.Predecessors(s.Name()) {
			fmt.Fprintf(&b, "\t%q -> %q;\n", pred, s.Name())
		}
	}

	b.WriteString("}\n")
	return b.String()
}

// Mermaid renders the workflow as a Mermaid flowchart (top-down), handy for
// embedding in markdown docs.
func Mermaid(wf *flow.Workflow) string {
	var b strings.Builder
	b.WriteString("flowchart TD\n")

	for _, s := range wf.Steps() {
		id := mermaidID(s.Name())
		switch s.Kind() {
		case flow.KindBranch:
			fmt.Fprintf(&b, "\t%s{%s}\n", id, s.Name())
		case flow.KindParallel, flow.KindRace:
			fmt.Fprintf(&b, "\t%s[[%s]]\n", id, s.Name())
		case flow.KindCheckpoint:
			fmt.Fprintf(&b, "\t%s[(%s)]\n", id, s.Name())
		default:
			fmt.Fprintf(&b, "\t%s[%s]\n", id, s.Name())
		}
	}
	for _, s := range wf.Steps() {
		for _, pred := range wf.Predecessors(s.Name()) {
			fmt.Fprintf(&b, "\t%s --> %s\n", mermaidID(pred), mermaidID(s.Name()))
		}
	}
	return b.String()
}

// mermaidID strips characters Mermaid treats as syntax from node IDs.
func mermaidID(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, name)
}
