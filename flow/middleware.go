package flow

import "context"

// Handler is the invocation signature middleware wraps: a step name, the
// execution context, and the produced mapping.
type Handler func(ctx context.Context, step string, c *Context) (map[string]any, error)

// Middleware wraps every step body invocation. It may short-circuit (not
// call next) or transform the result. Middleware registered first on the
// builder is outermost.
type Middleware func(next Handler) Handler

// chain composes the middleware stack around h, first registered outermost.
func chain(mws []Middleware, h Handler) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
