package flow

import (
	"context"
	"time"

	"github.com/tidelake/flow/flow/store"
)

// pauseError is the internal signal a checkpoint step raises after its
// snapshot is stored: the walk stops and the run returns a checkpointed
// outcome without rollback and without completion hooks.
type pauseError struct {
	name string
}

func (p *pauseError) Error() string {
	return "paused at checkpoint " + p.name
}

// runCheckpoint snapshots the execution state through the step's store.
// A successful save pauses the run; a failed save fails the step, which
// rolls back the completed steps.
func (rn *run) runCheckpoint(ctx context.Context, s *Step, c *Context) (map[string]any, error) {
	spec := s.meta.(*checkpointSpec)

	snap := store.Snapshot{
		ExecID:      rn.execID,
		Workflow:    rn.wf.name,
		Checkpoint:  s.name,
		Context:     c.Map(),
		ContextKeys: c.Keys(),
		Completed:   append([]string(nil), rn.completed...),
		Timestamp:   time.Now().UTC(),
	}

	if err := spec.store.Save(ctx, rn.execID, snap); err != nil {
		return nil, Tagged(TagCheckpointStoreFailed, err)
	}
	return nil, &pauseError{name: s.name}
}
