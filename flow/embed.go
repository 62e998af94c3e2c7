package flow

import "context"

// runEmbed executes a nested workflow. The nested run sees the parent
// context (or the mapping derived by the declared context function) and its
// final context merges back on success. A nested failure surfaces as a
// nested-effect error carrying the inner failure; the nested run has
// already rolled back its own completed steps by then.
func (rn *run) runEmbed(ctx context.Context, s *Step, c *Context) (map[string]any, error) {
	spec := s.meta.(*embedSpec)

	var initial *Context
	if spec.contextFn != nil {
		initial = NewContext(spec.contextFn(c))
	} else {
		initial = c.Snapshot()
	}

	nested, err := rn.runNested(ctx, spec.wf, initial)
	if err != nil {
		if _, halted := haltReason(err); halted {
			return nil, err
		}
		return nil, Tagged(TagNestedEffectFailed, err)
	}
	return nested.Map(), nil
}
