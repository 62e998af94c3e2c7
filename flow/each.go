package flow

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/tidelake/flow/flow/emit"
)

// runEach extracts the items and runs the item workflow once per item,
// sequentially or with bounded concurrency. The collect key binds the
// per-item added mappings in input order; an empty extraction binds an
// empty list without running anything.
func (rn *run) runEach(ctx context.Context, s *Step, c *Context) (map[string]any, error) {
	spec := s.meta.(*ForEach)

	items, err := extractItems(spec, c)
	if err != nil {
		return nil, Tagged(TagIterationFailed, err)
	}

	rn.event(emit.GraftExpand, s.name, 0, "", 0, map[string]any{"items": len(items)})

	results := make([]map[string]any, len(items))
	if len(items) == 0 {
		return map[string]any{spec.Collect: results}, nil
	}

	if spec.Concurrency <= 1 {
		for i, item := range items {
			out, err := rn.runItem(ctx, spec, c, item)
			if err != nil {
				return nil, iterationFailed(i, err)
			}
			results[i] = out
		}
		return map[string]any{spec.Collect: results}, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(spec.Concurrency))
	for i, item := range items {
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)
			out, err := rn.runItem(gctx, spec, c, item)
			if err != nil {
				return iterationFailed(i, err)
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, Tagged(TagCancelled, ctx.Err())
		}
		return nil, err
	}
	return map[string]any{spec.Collect: results}, nil
}

// runItem executes the nested workflow for one item and returns only the
// keys the nested run added: the parent's keys and the item binding are
// excluded.
func (rn *run) runItem(ctx context.Context, spec *ForEach, parent *Context, item any) (map[string]any, error) {
	child := parent.Snapshot()
	child.Set(spec.As, item)

	nested, err := rn.runNested(ctx, spec.Item, child)
	if err != nil {
		return nil, err
	}

	out := make(map[string]any)
	for _, k := range nested.Keys() {
		if k == spec.As || parent.Has(k) {
			continue
		}
		out[k] = nested.Value(k)
	}
	return out, nil
}

// extractItems evaluates the extractor with panic recovery.
func extractItems(spec *ForEach, c *Context) (items []any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = Tagf(TagIterationFailed, "extractor panicked: %v", rec)
		}
	}()
	return spec.Extract(c)
}

// iterationFailed wraps a per-item failure with its index, keeping an
// already-wrapped inner iteration error intact.
func iterationFailed(index int, err error) error {
	var ie *IterationError
	if errors.As(err, &ie) {
		return err
	}
	return Tagged(TagIterationFailed, &IterationError{Index: index, Err: err})
}
