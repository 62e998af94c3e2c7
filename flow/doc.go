// Package flow provides a composable workflow orchestration engine.
//
// A workflow is declared through a Builder as an immutable graph of named
// steps with dependency ordering, then handed to a Runner that walks the
// graph in topological order. Along the way the engine supports per-step
// retries with configurable backoff, saga-style rollback of completed steps,
// parallel fan-out/fan-in with bounded concurrency, conditional branching,
// iteration over collections, racing of alternatives, scoped resources with
// guaranteed release, and durable checkpoint/resume through pluggable stores.
//
// Step bodies speak a single result protocol: they return the mapping of
// attributes they produced, or an error. The mapping is merged into the
// evolving execution context that later steps read. A body may also end the
// run early without failure by returning Halt.
//
//	wf, err := flow.New("order").
//	    Step("reserve", reserve, flow.Rollback(unreserve)).
//	    Step("charge", charge, flow.Rollback(refund)).
//	    Step("ship", ship).
//	    Build()
//	if err != nil {
//	    return err
//	}
//
//	out, err := flow.Run(ctx, wf, map[string]any{"order_id": id})
//
// Observability is pluggable through the emit subpackage (structured events
// for every lifecycle transition) and an optional Prometheus collector.
// Checkpoint persistence is pluggable through the store subpackage.
package flow
