package flow

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func squareItem(t *testing.T) *Workflow {
	t.Helper()
	item, err := New("square").
		Step("sq", func(_ context.Context, c *Context) (map[string]any, error) {
			n := c.Value("n").(int)
			return map[string]any{"squared": n * n}, nil
		}).
		Build()
	if err != nil {
		t.Fatalf("build item workflow: %v", err)
	}
	return item
}

func TestEach_SequentialCollectsInOrder(t *testing.T) {
	wf, _ := New("iterate").
		Each("squares", ForEach{
			Extract: func(c *Context) ([]any, error) { return []any{1, 2, 3}, nil },
			Item:    squareItem(t),
			As:      "n",
			Collect: "results",
		}).
		Build()

	out, err := Run(context.Background(), wf, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []map[string]any{{"squared": 1}, {"squared": 4}, {"squared": 9}}
	if got := out.Context.Value("results"); !reflect.DeepEqual(got, want) {
		t.Errorf("results = %v, want %v", got, want)
	}
}

func TestEach_ConcurrentPreservesInputOrder(t *testing.T) {
	wf, _ := New("iterate").
		Each("squares", ForEach{
			Extract:     func(c *Context) ([]any, error) { return []any{1, 2, 3}, nil },
			Item:        squareItem(t),
			As:          "n",
			Collect:     "results",
			Concurrency: 3,
		}).
		Build()

	want := []map[string]any{{"squared": 1}, {"squared": 4}, {"squared": 9}}
	// Order must hold regardless of scheduling; exercise it repeatedly.
	for i := 0; i < 10; i++ {
		out, err := Run(context.Background(), wf, nil)
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if got := out.Context.Value("results"); !reflect.DeepEqual(got, want) {
			t.Fatalf("run %d: results = %v, want %v", i, got, want)
		}
	}
}

func TestEach_EmptyListBindsEmptyCollect(t *testing.T) {
	invoked := false
	item, _ := New("never").
		Step("mark", func(context.Context, *Context) (map[string]any, error) {
			invoked = true
			return nil, nil
		}).
		Build()

	wf, _ := New("iterate").
		Each("none", ForEach{
			Extract: func(c *Context) ([]any, error) { return []any{}, nil },
			Item:    item,
			As:      "n",
			Collect: "results",
		}).
		Build()

	out, err := Run(context.Background(), wf, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if invoked {
		t.Error("item workflow ran for an empty list")
	}
	got, ok := out.Context.Value("results").([]map[string]any)
	if !ok || len(got) != 0 {
		t.Errorf("results = %v, want empty list", out.Context.Value("results"))
	}
}

func TestEach_ParentKeysAndItemKeyExcluded(t *testing.T) {
	item, _ := New("adder").
		Step("add", func(_ context.Context, c *Context) (map[string]any, error) {
			return map[string]any{"added": c.Value("n").(int) + c.Value("base").(int)}, nil
		}).
		Build()

	wf, _ := New("iterate").
		Each("adds", ForEach{
			Extract: func(c *Context) ([]any, error) { return []any{10}, nil },
			Item:    item,
			As:      "n",
			Collect: "results",
		}).
		Build()

	out, err := Run(context.Background(), wf, map[string]any{"base": 5})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	results := out.Context.Value("results").([]map[string]any)
	if len(results) != 1 {
		t.Fatalf("expected one result, got %v", results)
	}
	if _, ok := results[0]["n"]; ok {
		t.Error("item key leaked into per-item output")
	}
	if _, ok := results[0]["base"]; ok {
		t.Error("parent key leaked into per-item output")
	}
	if results[0]["added"] != 15 {
		t.Errorf("added = %v, want 15", results[0]["added"])
	}
}

func TestEach_SequentialFailureCarriesIndex(t *testing.T) {
	item, _ := New("picky").
		Step("check", func(_ context.Context, c *Context) (map[string]any, error) {
			if c.Value("n").(int) == 2 {
				return nil, errors.New("two is unacceptable")
			}
			return nil, nil
		}).
		Build()

	wf, _ := New("iterate").
		Each("checks", ForEach{
			Extract: func(c *Context) ([]any, error) { return []any{1, 2, 3}, nil },
			Item:    item,
			As:      "n",
			Collect: "results",
		}).
		Build()

	out, err := Run(context.Background(), wf, nil)
	if err == nil {
		t.Fatal("expected failure")
	}
	if out.Err.Tag != TagIterationFailed {
		t.Errorf("tag = %s, want %s", out.Err.Tag, TagIterationFailed)
	}
	var ie *IterationError
	if !errors.As(err, &ie) {
		t.Fatalf("expected IterationError in chain: %v", err)
	}
	if ie.Index != 1 {
		t.Errorf("failing index = %d, want 1", ie.Index)
	}
}

func TestEach_ExtractorErrorFailsStep(t *testing.T) {
	item := squareItem(t)
	wf, _ := New("iterate").
		Each("broken", ForEach{
			Extract: func(c *Context) ([]any, error) { return nil, errors.New("no items source") },
			Item:    item,
			As:      "n",
			Collect: "results",
		}).
		Build()

	out, err := Run(context.Background(), wf, nil)
	if err == nil {
		t.Fatal("expected failure")
	}
	if out.Err.Tag != TagIterationFailed {
		t.Errorf("tag = %s", out.Err.Tag)
	}
}

func TestEach_ConcurrentFailureCancelsRemaining(t *testing.T) {
	item, _ := New("failfirst").
		Step("check", func(ctx context.Context, c *Context) (map[string]any, error) {
			if c.Value("n").(int) == 0 {
				return nil, errors.New("first item fails")
			}
			<-ctx.Done()
			return nil, ctx.Err()
		}).
		Build()

	wf, _ := New("iterate").
		Each("checks", ForEach{
			Extract:     func(c *Context) ([]any, error) { return []any{0, 1, 2}, nil },
			Item:        item,
			As:          "n",
			Collect:     "results",
			Concurrency: 3,
		}).
		Build()

	_, err := Run(context.Background(), wf, nil)
	if err == nil {
		t.Fatal("expected failure")
	}
	var ie *IterationError
	if !errors.As(err, &ie) {
		t.Fatalf("expected IterationError: %v", err)
	}
}
