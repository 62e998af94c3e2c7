package flow

import (
	"context"
	"sort"
)

// runRace starts every participant concurrently against its own snapshot
// of the context. The first success wins and contributes the sole context
// merge; the losers are signalled to stop. When everyone fails the
// aggregated failures surface, and when nobody finishes inside the window
// the race times out with the partial failures collected so far.
func (rn *run) runRace(ctx context.Context, s *Step, c *Context) (map[string]any, error) {
	race := s.meta.(*RaceGroup)

	timeout := race.Timeout
	if timeout <= 0 {
		timeout = defaultGroupTimeout
	}
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		index int
		final *Context
		err   error
	}
	done := make(chan outcome, len(race.Participants))

	for i, p := range race.Participants {
		go func() {
			final, err := rn.runNested(rctx, p, c.Snapshot())
			done <- outcome{index: i, final: final, err: err}
		}()
	}

	var failures []RaceFailure
	for range race.Participants {
		select {
		case o := <-done:
			if o.err == nil {
				cancel()
				return o.final.Map(), nil
			}
			failures = append(failures, RaceFailure{Index: o.index, Err: o.err})
		case <-rctx.Done():
			if ctx.Err() != nil {
				return nil, Tagged(TagCancelled, ctx.Err())
			}
			sortFailures(failures)
			return nil, Tagged(TagRaceTimeout, &RaceError{Failures: failures, TimedOut: true})
		}
	}

	sortFailures(failures)
	return nil, Tagged(TagRaceAllFailed, &RaceError{Failures: failures})
}

// sortFailures orders failures by participant declaration index so the
// aggregate is deterministic regardless of completion order.
func sortFailures(failures []RaceFailure) {
	sort.Slice(failures, func(i, j int) bool {
		return failures[i].Index < failures[j].Index
	})
}
