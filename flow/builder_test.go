package flow

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func okBody(delta map[string]any) Body {
	return func(context.Context, *Context) (map[string]any, error) {
		return delta, nil
	}
}

func failBody(err error) Body {
	return func(context.Context, *Context) (map[string]any, error) {
		return nil, err
	}
}

func TestBuilder_ImplicitSequentialEdges(t *testing.T) {
	wf, err := New("seq").
		Step("a", okBody(nil)).
		Step("b", okBody(nil)).
		Step("c", okBody(nil)).
		Build()
	if err != nil {
		t.Fatalf("unexpected build error: %v", err)
	}

	if got := wf.Predecessors("a"); len(got) != 0 {
		t.Errorf("first step should have no predecessors, got %v", got)
	}
	if got := wf.Predecessors("b"); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("expected b after a, got %v", got)
	}
	if got := wf.Predecessors("c"); !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("expected c after b, got %v", got)
	}
	if got := wf.Order(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("unexpected order %v", got)
	}
}

func TestBuilder_ExplicitDependencies(t *testing.T) {
	// Diamond: a -> {b, c} -> d. Ties break by declaration order.
	wf, err := New("diamond").
		Step("a", okBody(nil)).
		Step("b", okBody(nil), After("a")).
		Step("c", okBody(nil), After("a")).
		Step("d", okBody(nil), After("b", "c")).
		Build()
	if err != nil {
		t.Fatalf("unexpected build error: %v", err)
	}
	if got := wf.Order(); !reflect.DeepEqual(got, []string{"a", "b", "c", "d"}) {
		t.Errorf("unexpected stable order %v", got)
	}
	if got := wf.Successors("a"); !reflect.DeepEqual(got, []string{"b", "c"}) {
		t.Errorf("unexpected successors of a: %v", got)
	}
}

func TestBuilder_DuplicateName(t *testing.T) {
	_, err := New("dup").
		Step("a", okBody(nil)).
		Step("a", okBody(nil)).
		Build()
	assertInvalidGraph(t, err, "duplicate step name")
}

func TestBuilder_UnknownPredecessor(t *testing.T) {
	_, err := New("missing").
		Step("a", okBody(nil), After("ghost")).
		Build()
	assertInvalidGraph(t, err, "unknown step")
}

func TestBuilder_CycleDetection(t *testing.T) {
	_, err := New("cyclic").
		Step("a", okBody(nil), After("b")).
		Step("b", okBody(nil), After("a")).
		Build()
	assertInvalidGraph(t, err, "cycle")
}

func TestBuilder_EmptyWorkflowBuilds(t *testing.T) {
	wf, err := New("empty").Build()
	if err != nil {
		t.Fatalf("empty workflow should build: %v", err)
	}
	if len(wf.Order()) != 0 {
		t.Errorf("expected empty order, got %v", wf.Order())
	}
}

func TestBuilder_NilBody(t *testing.T) {
	_, err := New("nilbody").Step("a", nil).Build()
	assertInvalidGraph(t, err, "nil body")
}

func TestBuilder_ParallelValidation(t *testing.T) {
	t.Run("duplicate substep names", func(t *testing.T) {
		_, err := New("p").
			Parallel("group", Group{Substeps: []Substep{
				{Name: "x", Body: okBody(nil)},
				{Name: "x", Body: okBody(nil)},
			}}).
			Build()
		assertInvalidGraph(t, err, "duplicate substep")
	})

	t.Run("no substeps", func(t *testing.T) {
		_, err := New("p").Parallel("group", Group{}).Build()
		assertInvalidGraph(t, err, "no substeps")
	})
}

func TestBuilder_BranchValidation(t *testing.T) {
	t.Run("invalid route type", func(t *testing.T) {
		_, err := New("b").
			Branch("route", Routes{
				Selector: func(*Context) (string, error) { return "x", nil },
				Routes:   map[string]any{"x": 42},
			}).
			Build()
		assertInvalidGraph(t, err, "neither a Body nor a *Workflow")
	})

	t.Run("nil selector", func(t *testing.T) {
		_, err := New("b").
			Branch("route", Routes{Routes: map[string]any{"x": okBody(nil)}}).
			Build()
		assertInvalidGraph(t, err, "nil selector")
	})
}

func TestBuilder_EachValidation(t *testing.T) {
	item, _ := New("item").Step("sq", okBody(nil)).Build()
	_, err := New("e").
		Each("iter", ForEach{Item: item, As: "item"}).
		Build()
	assertInvalidGraph(t, err, "nil extractor")
}

func TestBuilder_ErrorsAggregate(t *testing.T) {
	_, err := New("multi").
		Step("", okBody(nil)).
		Step("a", nil).
		Step("b", okBody(nil), After("nope")).
		Build()

	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("expected *Error, got %T", err)
	}
	msg := e.Reason.Error()
	for _, frag := range []string{"empty name", "nil body", "unknown step"} {
		if !strings.Contains(msg, frag) {
			t.Errorf("aggregated error missing %q: %s", frag, msg)
		}
	}
}

func assertInvalidGraph(t *testing.T, err error, contains string) {
	t.Helper()
	if err == nil {
		t.Fatal("expected build error, got nil")
	}
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if e.Tag != TagInvalidGraph {
		t.Errorf("expected tag %s, got %s", TagInvalidGraph, e.Tag)
	}
	if e.Step != "dag" {
		t.Errorf("expected step dag, got %q", e.Step)
	}
	if !strings.Contains(err.Error(), contains) {
		t.Errorf("expected error containing %q, got: %v", contains, err)
	}
}
