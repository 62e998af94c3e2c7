package flow

import "context"

// runBranch evaluates the selector against the context and executes the
// chosen route. A route body runs against the current context and its
// mapping is merged; a route workflow runs against a snapshot and its final
// context is merged.
func (rn *run) runBranch(ctx context.Context, s *Step, c *Context) (map[string]any, error) {
	routes := s.meta.(*Routes)

	key, err := selectKey(routes.Selector, c)
	if err != nil {
		return nil, Tagged(TagSelectorError, err)
	}

	route, ok := routes.Routes[key]
	if !ok {
		route = routes.Default
	}
	if route == nil {
		return nil, Tagf(TagNoMatchingBranch, "branch %q: no route for key %q", s.name, key)
	}

	switch r := route.(type) {
	case Body:
		return r(ctx, c)
	case func(ctx context.Context, c *Context) (map[string]any, error):
		return r(ctx, c)
	case *Workflow:
		nested, err := rn.runNested(ctx, r, c.Snapshot())
		if err != nil {
			return nil, err
		}
		return nested.Map(), nil
	default:
		return nil, Tagf(TagInvalidStepReturn, "branch %q: route %q has unsupported type %T", s.name, key, route)
	}
}

// selectKey evaluates the selector with panic recovery; a panicking
// selector is a selector error, not a crash.
func selectKey(sel Selector, c *Context) (key string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = Tagf(TagSelectorError, "selector panicked: %v", rec)
		}
	}()
	return sel(c)
}
