package flow

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// defaultGroupTimeout bounds a parallel group that declares none.
const defaultGroupTimeout = 30 * time.Second

// defaultMaxConcurrency bounds fan-out when a group declares none.
func defaultMaxConcurrency() int {
	return 2 * runtime.GOMAXPROCS(0)
}

// ParallelError identifies the failing substep of a parallel group and the
// substeps that had completed when the failure was observed.
type ParallelError struct {
	// Group is the parallel step's name; Failed the failing substep.
	Group  string
	Failed string
	Err    error

	// Completed lists the substeps that finished successfully before the
	// group returned, in declaration order.
	Completed []string
}

// Error implements the error interface.
func (e *ParallelError) Error() string {
	return fmt.Sprintf("parallel %s: substep %s: %v", e.Group, e.Failed, e.Err)
}

// Unwrap returns the substep failure.
func (e *ParallelError) Unwrap() error {
	return e.Err
}

// runParallel executes a parallel group. Every substep receives its own
// copy of the pre-group snapshot, fan-out is bounded, and successful
// results merge in declaration order (last writer wins).
func (rn *run) runParallel(ctx context.Context, s *Step, c *Context) (map[string]any, error) {
	group := s.meta.(*Group)

	timeout := group.Timeout
	if timeout <= 0 {
		timeout = defaultGroupTimeout
	}
	maxConc := group.MaxConcurrency
	if maxConc <= 0 {
		maxConc = defaultMaxConcurrency()
	}

	gctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	snap := c.Snapshot()
	n := len(group.Substeps)
	results := make([]map[string]any, n)
	subErrs := make([]error, n)

	if group.OnError == FailFast {
		if err := rn.parallelFailFast(gctx, s, group, snap, maxConc, results, subErrs); err != nil {
			return nil, rn.parallelError(ctx, gctx, s, group, results, err)
		}
	} else {
		rn.parallelContinue(gctx, group, snap, maxConc, results, subErrs)
		for i, err := range subErrs {
			if err != nil {
				perr := &ParallelError{Group: s.name, Failed: group.Substeps[i].Name, Err: err}
				return nil, rn.parallelError(ctx, gctx, s, group, results, perr)
			}
		}
	}

	merged := make(map[string]any)
	for _, res := range results {
		for k, v := range res {
			merged[k] = v
		}
	}
	return merged, nil
}

// parallelFailFast dispatches substeps under an errgroup: the first error
// cancels the group context, signalling outstanding substeps to stop.
func (rn *run) parallelFailFast(gctx context.Context, s *Step, group *Group, snap *Context, maxConc int, results []map[string]any, subErrs []error) error {
	g, ctx := errgroup.WithContext(gctx)
	sem := semaphore.NewWeighted(int64(maxConc))

	for i, sub := range group.Substeps {
		g.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			out, err := rn.invokeSubstep(ctx, sub, snap.Snapshot())
			if err != nil {
				subErrs[i] = err
				return &ParallelError{Group: s.name, Failed: sub.Name, Err: err}
			}
			results[i] = out
			return nil
		})
	}
	return g.Wait()
}

// parallelContinue awaits every substep regardless of failures.
func (rn *run) parallelContinue(gctx context.Context, group *Group, snap *Context, maxConc int, results []map[string]any, subErrs []error) {
	sem := semaphore.NewWeighted(int64(maxConc))
	var wg sync.WaitGroup
	for i, sub := range group.Substeps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sem.Acquire(gctx, 1); err != nil {
				subErrs[i] = err
				return
			}
			defer sem.Release(1)
			results[i], subErrs[i] = rn.invokeSubstep(gctx, sub, snap.Snapshot())
		}()
	}
	wg.Wait()
}

// invokeSubstep runs one substep body with panic recovery.
func (rn *run) invokeSubstep(ctx context.Context, sub Substep, c *Context) (delta map[string]any, err error) {
	rn.runner.metrics.stepStarted()
	defer rn.runner.metrics.stepFinished()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("substep %q panicked: %v", sub.Name, rec)
			delta = nil
		}
	}()
	delta, err = sub.Body(ctx, c)
	if err == nil && delta == nil {
		// A nil mapping is the empty success; normalize so completion
		// tracking can rely on non-nil results.
		delta = map[string]any{}
	}
	return delta, err
}

// parallelError normalizes a group failure: completed substeps are
// recorded on the error, and a group deadline becomes a timeout tag.
func (rn *run) parallelError(ctx, gctx context.Context, s *Step, group *Group, results []map[string]any, err error) error {
	var perr *ParallelError
	if !errors.As(err, &perr) {
		perr = &ParallelError{Group: s.name, Err: err}
	}
	for i, res := range results {
		if res != nil {
			perr.Completed = append(perr.Completed, group.Substeps[i].Name)
		}
	}
	if gctx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return Tagged(TagTimeout, perr)
	}
	if ctx.Err() != nil {
		return Tagged(TagCancelled, perr)
	}
	return perr
}
