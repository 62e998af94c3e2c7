package flow

import (
	"context"
	"fmt"
)

// runUsing scopes a resource around a nested workflow with guaranteed
// release. Acquire runs first; the resource is bound under the declared key
// in a local snapshot the body executes against; release always runs with
// the final local context and the body's outcome. When both the body and
// the release fail, the body error wins and the release error is dropped —
// a release failure only surfaces for a successful body.
func (rn *run) runUsing(ctx context.Context, s *Step, c *Context) (map[string]any, error) {
	res := s.meta.(*Resource)

	resource, err := acquireResource(ctx, res, c)
	if err != nil {
		return nil, Tagged(TagAcquireFailed, err)
	}

	local := c.Snapshot()
	local.Set(res.As, resource)

	final, bodyErr := rn.runNested(ctx, res.Body, local)
	if final == nil {
		final = local
	}

	relErr := releaseResource(ctx, res, final, resource, bodyErr)

	if bodyErr != nil {
		return nil, bodyErr
	}
	if relErr != nil {
		return nil, Tagged(TagReleaseFailed, relErr)
	}

	out := make(map[string]any)
	for _, k := range final.Keys() {
		if k == res.As && !c.Has(res.As) {
			continue
		}
		out[k] = final.Value(k)
	}
	return out, nil
}

func acquireResource(ctx context.Context, res *Resource, c *Context) (resource any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("acquire panicked: %v", rec)
		}
	}()
	return res.Acquire(ctx, c)
}

// releaseResource invokes the release with panic recovery. Release runs
// even when the surrounding run was cancelled: cleanup must not be skipped
// because the reason for cleaning up is a dead context.
func releaseResource(ctx context.Context, res *Resource, c *Context, resource any, bodyErr error) (err error) {
	if res.Release == nil {
		return nil
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("release panicked: %v", rec)
		}
	}()
	return res.Release(context.WithoutCancel(ctx), c, resource, bodyErr)
}
