package viz

import (
	"context"
	"strings"
	"testing"

	"github.com/tidelake/flow/flow"
	"github.com/tidelake/flow/flow/store"
)

func buildSample(t *testing.T) *flow.Workflow {
	t.Helper()
	noop := func(context.Context, *flow.Context) (map[string]any, error) { return nil, nil }

	wf, err := flow.New("order-pipeline").
		Step("validate", noop).
		Parallel("enrich", flow.Group{Substeps: []flow.Substep{
			{Name: "geo", Body: noop},
			{Name: "fraud", Body: noop},
		}}).
		Branch("route", flow.Routes{
			Selector: func(c *flow.Context) (string, error) { return "std", nil },
			Routes:   map[string]any{"std": flow.Body(noop)},
		}).
		Checkpoint("pause", store.NewMemoryStore()).
		Step("ship", noop, flow.After("route"), flow.Rollback(func(context.Context, *flow.Context) error { return nil })).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return wf
}

func TestDOT(t *testing.T) {
	out := DOT(buildSample(t))

	if !strings.HasPrefix(out, "digraph \"order-pipeline\"") {
		t.Errorf("missing digraph header: %s", out)
	}
	for _, frag := range []string{
		`"validate" -> "enrich"`,
		`"route" -> "ship"`,
		"shape=diamond", // branch
		"shape=box3d",   // parallel
		"shape=cds",     // checkpoint
		"peripheries=2", // rollback marker
	} {
		if !strings.Contains(out, frag) {
			t.Errorf("DOT output missing %q:\n%s", frag, out)
		}
	}
}

func TestMermaid(t *testing.T) {
	out := Mermaid(buildSample(t))

	if !strings.HasPrefix(out, "flowchart TD") {
		t.Errorf("missing flowchart header: %s", out)
	}
	for _, frag := range []string{
		"route{route}",        // branch shape
		"enrich[[enrich]]",    // parallel shape
		"pause[(pause)]",      // checkpoint shape
		"validate --> enrich", // implicit edge
		"route --> ship",      // explicit edge
	} {
		if !strings.Contains(out, frag) {
			t.Errorf("Mermaid output missing %q:\n%s", frag, out)
		}
	}
}

func TestMermaidID_Sanitizes(t *testing.T) {
	if got := mermaidID("my step-1"); got != "my_step_1" {
		t.Errorf("mermaidID = %q", got)
	}
}
