package flow

import (
	"context"
	"errors"
	"fmt"

	"github.com/tidelake/flow/flow/store"
)

// Builder accumulates step declarations and produces an immutable Workflow.
// Declaration problems (duplicate names, missing bodies, bad meta) are
// collected and surfaced together by Build as an invalid-graph error, so a
// whole declaration can be written fluently without per-call checks.
type Builder struct {
	name  string
	steps []*Step
	errs  []error

	middleware []Middleware
	hooks      Hooks
	services   Services
	ensure     []EnsureFunc
}

// New starts declaring a workflow with the given name.
func New(name string) *Builder {
	b := &Builder{name: name}
	if name == "" {
		b.errs = append(b.errs, errors.New("workflow name cannot be empty"))
	}
	return b
}

// add appends a declared step after basic checks shared by every kind.
func (b *Builder) add(s *Step) *Builder {
	if s.name == "" {
		b.errs = append(b.errs, fmt.Errorf("%s step declared with empty name", s.kind))
		return b
	}
	for _, prev := range b.steps {
		if prev.name == s.name {
			b.errs = append(b.errs, fmt.Errorf("duplicate step name %q", s.name))
			return b
		}
	}
	b.steps = append(b.steps, s)
	return b
}

func newStep(name string, kind Kind, opts []StepOption) *Step {
	s := &Step{name: name, kind: kind}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Step declares a sequential step with the given body.
func (b *Builder) Step(name string, body Body, opts ...StepOption) *Builder {
	s := newStep(name, KindStep, opts)
	s.body = body
	if body == nil {
		b.errs = append(b.errs, fmt.Errorf("step %q has nil body", name))
	}
	return b.add(s)
}

// Validate declares a step that checks the context and fails the run when
// fn returns an error. It contributes nothing to the context.
func (b *Builder) Validate(name string, fn func(c *Context) error, opts ...StepOption) *Builder {
	return b.checkStep(name, KindValidate, fn, opts)
}

// Require declares a precondition step. Semantically identical to Validate;
// the distinct kind states intent in the graph.
func (b *Builder) Require(name string, fn func(c *Context) error, opts ...StepOption) *Builder {
	return b.checkStep(name, KindRequire, fn, opts)
}

func (b *Builder) checkStep(name string, kind Kind, fn func(c *Context) error, opts []StepOption) *Builder {
	s := newStep(name, kind, opts)
	if fn == nil {
		b.errs = append(b.errs, fmt.Errorf("%s %q has nil check", kind, name))
	} else {
		s.body = func(_ context.Context, c *Context) (map[string]any, error) {
			return nil, fn(c)
		}
	}
	return b.add(s)
}

// Tap declares a side-effect step. The function's outcome is ignored; a tap
// always succeeds with an empty result.
func (b *Builder) Tap(name string, fn func(ctx context.Context, c *Context), opts ...StepOption) *Builder {
	s := newStep(name, KindTap, opts)
	if fn == nil {
		b.errs = append(b.errs, fmt.Errorf("tap %q has nil function", name))
	} else {
		s.body = func(ctx context.Context, c *Context) (map[string]any, error) {
			fn(ctx, c)
			return nil, nil
		}
	}
	return b.add(s)
}

// Assign declares a step that binds key to value. A value of type
// func(*Context) any is evaluated against the context at execution time.
func (b *Builder) Assign(name, key string, value any, opts ...StepOption) *Builder {
	s := newStep(name, KindAssign, opts)
	if key == "" {
		b.errs = append(b.errs, fmt.Errorf("assign %q has empty key", name))
	}
	s.body = func(_ context.Context, c *Context) (map[string]any, error) {
		v := value
		if fn, ok := value.(func(*Context) any); ok {
			v = fn(c)
		}
		return map[string]any{key: v}, nil
	}
	return b.add(s)
}

// Parallel declares a parallel group of substeps.
func (b *Builder) Parallel(name string, group Group, opts ...StepOption) *Builder {
	s := newStep(name, KindParallel, opts)
	if len(group.Substeps) == 0 {
		b.errs = append(b.errs, fmt.Errorf("parallel %q has no substeps", name))
	}
	seen := make(map[string]bool, len(group.Substeps))
	for i, sub := range group.Substeps {
		switch {
		case sub.Name == "":
			b.errs = append(b.errs, fmt.Errorf("parallel %q: substep %d has empty name", name, i))
		case seen[sub.Name]:
			b.errs = append(b.errs, fmt.Errorf("parallel %q: duplicate substep name %q", name, sub.Name))
		case sub.Body == nil:
			b.errs = append(b.errs, fmt.Errorf("parallel %q: substep %q has nil body", name, sub.Name))
		}
		seen[sub.Name] = true
	}
	s.meta = &group
	return b.add(s)
}

// Branch declares a conditional step that routes on a selector key.
func (b *Builder) Branch(name string, routes Routes, opts ...StepOption) *Builder {
	s := newStep(name, KindBranch, opts)
	if routes.Selector == nil {
		b.errs = append(b.errs, fmt.Errorf("branch %q has nil selector", name))
	}
	if len(routes.Routes) == 0 {
		b.errs = append(b.errs, fmt.Errorf("branch %q has no routes", name))
	}
	for key, route := range routes.Routes {
		if !validRoute(route) {
			b.errs = append(b.errs, fmt.Errorf("branch %q: route %q is neither a Body nor a *Workflow", name, key))
		}
	}
	if routes.Default != nil && !validRoute(routes.Default) {
		b.errs = append(b.errs, fmt.Errorf("branch %q: default route is neither a Body nor a *Workflow", name))
	}
	s.meta = &routes
	return b.add(s)
}

func validRoute(route any) bool {
	switch route.(type) {
	case Body, func(ctx context.Context, c *Context) (map[string]any, error), *Workflow:
		return true
	}
	return false
}

// Embed declares a nested workflow step. contextFn, when non-nil, derives
// the nested run's initial context from the parent context; nil passes the
// parent context through unchanged.
func (b *Builder) Embed(name string, wf *Workflow, contextFn ContextFunc, opts ...StepOption) *Builder {
	s := newStep(name, KindEmbed, opts)
	if wf == nil {
		b.errs = append(b.errs, fmt.Errorf("embed %q has nil workflow", name))
	}
	s.meta = &embedSpec{wf: wf, contextFn: contextFn}
	return b.add(s)
}

// Each declares an iteration step over a collection.
func (b *Builder) Each(name string, each ForEach, opts ...StepOption) *Builder {
	s := newStep(name, KindEach, opts)
	if each.Extract == nil {
		b.errs = append(b.errs, fmt.Errorf("each %q has nil extractor", name))
	}
	if each.Item == nil {
		b.errs = append(b.errs, fmt.Errorf("each %q has nil item workflow", name))
	}
	if each.As == "" {
		b.errs = append(b.errs, fmt.Errorf("each %q has empty item key", name))
	}
	if each.Collect == "" {
		b.errs = append(b.errs, fmt.Errorf("each %q has empty collect key", name))
	}
	s.meta = &each
	return b.add(s)
}

// Race declares a race between nested workflows; the first success wins.
func (b *Builder) Race(name string, race RaceGroup, opts ...StepOption) *Builder {
	s := newStep(name, KindRace, opts)
	if len(race.Participants) == 0 {
		b.errs = append(b.errs, fmt.Errorf("race %q has no participants", name))
	}
	for i, p := range race.Participants {
		if p == nil {
			b.errs = append(b.errs, fmt.Errorf("race %q: participant %d is nil", name, i))
		}
	}
	s.meta = &race
	return b.add(s)
}

// Using declares a scoped-resource step with guaranteed release.
func (b *Builder) Using(name string, res Resource, opts ...StepOption) *Builder {
	s := newStep(name, KindUsing, opts)
	if res.Acquire == nil {
		b.errs = append(b.errs, fmt.Errorf("using %q has nil acquire", name))
	}
	if res.Body == nil {
		b.errs = append(b.errs, fmt.Errorf("using %q has nil body workflow", name))
	}
	if res.As == "" {
		b.errs = append(b.errs, fmt.Errorf("using %q has empty resource key", name))
	}
	s.meta = &res
	return b.add(s)
}

// Checkpoint declares a named pause point persisted through st. Reaching it
// stores the execution state and ends the run with a checkpointed outcome;
// Resume continues after it.
func (b *Builder) Checkpoint(name string, st store.Store, opts ...StepOption) *Builder {
	s := newStep(name, KindCheckpoint, opts)
	if st == nil {
		b.errs = append(b.errs, fmt.Errorf("checkpoint %q has nil store", name))
	}
	s.meta = &checkpointSpec{store: st}
	return b.add(s)
}

// Use appends middleware around every step body. The first registered
// middleware is outermost.
func (b *Builder) Use(mw Middleware) *Builder {
	if mw != nil {
		b.middleware = append(b.middleware, mw)
	}
	return b
}

// OnStart registers a hook invoked when a run starts.
func (b *Builder) OnStart(fn func(workflow string, c *Context)) *Builder {
	b.hooks.OnStart = append(b.hooks.OnStart, fn)
	return b
}

// OnComplete registers a hook invoked when a run finishes cleanly.
func (b *Builder) OnComplete(fn func(workflow string, c *Context)) *Builder {
	b.hooks.OnComplete = append(b.hooks.OnComplete, fn)
	return b
}

// OnError registers a hook invoked when a step fails.
func (b *Builder) OnError(fn func(step string, err error, c *Context)) *Builder {
	b.hooks.OnError = append(b.hooks.OnError, fn)
	return b
}

// OnRollback registers a hook invoked before each compensation runs.
func (b *Builder) OnRollback(fn func(step string, c *Context)) *Builder {
	b.hooks.OnRollback = append(b.hooks.OnRollback, fn)
	return b
}

// Ensure registers a cleanup run exactly once with the terminal outcome.
func (b *Builder) Ensure(fn EnsureFunc) *Builder {
	if fn != nil {
		b.ensure = append(b.ensure, fn)
	}
	return b
}

// WithServices attaches the workflow's default services mapping. A run may
// override it with the WithServices run option.
func (b *Builder) WithServices(s Services) *Builder {
	b.services = s
	return b
}

// Build freezes the declaration into a Workflow. It derives the adjacency
// (adding the implicit sequential edge for steps with no explicit
// predecessors), verifies that every referenced name exists and that the
// graph is acyclic, and computes the stable topological order. Any
// declaration or graph problem yields a single invalid-graph error.
func (b *Builder) Build() (*Workflow, error) {
	errs := append([]error(nil), b.errs...)

	w := &Workflow{
		name:       b.name,
		steps:      b.steps,
		index:      make(map[string]*Step, len(b.steps)),
		preds:      make(map[string][]string, len(b.steps)),
		succs:      make(map[string][]string, len(b.steps)),
		middleware: b.middleware,
		hooks:      b.hooks,
		services:   b.services,
		ensure:     b.ensure,
	}
	for _, s := range b.steps {
		w.index[s.name] = s
		if s.kind == KindCheckpoint {
			w.checkpoints = append(w.checkpoints, s)
		}
	}

	// Resolve predecessors: explicit After edges, or the implicit edge from
	// the previously declared step.
	for i, s := range b.steps {
		preds := s.After()
		if len(preds) == 0 && i > 0 {
			preds = []string{b.steps[i-1].name}
		}
		for _, p := range preds {
			if _, ok := w.index[p]; !ok {
				errs = append(errs, fmt.Errorf("step %q depends on unknown step %q", s.name, p))
			}
		}
		w.preds[s.name] = preds
	}
	if len(errs) > 0 {
		return nil, invalidGraph(b.name, errs)
	}
	for _, s := range b.steps {
		for _, p := range w.preds[s.name] {
			w.succs[p] = append(w.succs[p], s.name)
		}
	}

	order, err := topoSort(b.steps, w.preds)
	if err != nil {
		return nil, invalidGraph(b.name, []error{err})
	}
	w.order = order

	return w, nil
}

// topoSort runs Kahn's algorithm over the declared steps, always picking
// the ready step that was declared earliest so the order is stable.
func topoSort(steps []*Step, preds map[string][]string) ([]string, error) {
	remaining := make(map[string]int, len(steps))
	for _, s := range steps {
		remaining[s.name] = len(preds[s.name])
	}

	order := make([]string, 0, len(steps))
	done := make(map[string]bool, len(steps))
	for len(order) < len(steps) {
		progressed := false
		for _, s := range steps {
			if done[s.name] || remaining[s.name] != 0 {
				continue
			}
			order = append(order, s.name)
			done[s.name] = true
			progressed = true
			for _, other := range steps {
				for _, p := range preds[other.name] {
					if p == s.name {
						remaining[other.name]--
					}
				}
			}
			break
		}
		if !progressed {
			var cycle []string
			for _, s := range steps {
				if !done[s.name] {
					cycle = append(cycle, s.name)
				}
			}
			return nil, fmt.Errorf("dependency cycle among steps %v", cycle)
		}
	}
	return order, nil
}

// invalidGraph wraps builder failures as the structured dag error.
func invalidGraph(workflow string, errs []error) error {
	return &Error{
		Step:     "dag",
		Workflow: workflow,
		Tag:      TagInvalidGraph,
		Reason:   Tagged(TagInvalidGraph, errors.Join(errs...)),
	}
}
