package emit

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter turns events into OpenTelemetry spans.
//
// Each event becomes a span named after the event, carrying the run
// identity and step detail as attributes. Stop events with an error result
// set the span status to error. Spans are ended immediately; events mark
// transitions, not open intervals — durations travel as attributes.
//
//	tracer := otel.Tracer("flow")
//	runner := flow.NewRunner(flow.WithEmitter(emit.NewOTelEmitter(tracer)))
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter creates an emitter producing spans through tracer.
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

// Emit records the event as a span.
func (o *OTelEmitter) Emit(event Event) {
	o.record(context.Background(), event)
}

// EmitBatch records each event as a span, preserving order.
func (o *OTelEmitter) EmitBatch(ctx context.Context, events []Event) error {
	for _, e := range events {
		o.record(ctx, e)
	}
	return nil
}

// Flush forces export of buffered spans when the installed tracer provider
// supports it.
func (o *OTelEmitter) Flush(ctx context.Context) error {
	type flusher interface {
		ForceFlush(context.Context) error
	}
	if f, ok := otel.GetTracerProvider().(flusher); ok {
		return f.ForceFlush(ctx)
	}
	return nil
}

func (o *OTelEmitter) record(ctx context.Context, event Event) {
	_, span := o.tracer.Start(ctx, event.Name)
	defer span.End()

	span.SetAttributes(
		attribute.String("flow.workflow", event.Workflow),
		attribute.String("flow.exec_id", event.ExecID),
	)
	if event.Step != "" {
		span.SetAttributes(attribute.String("flow.step", event.Step))
	}
	if event.Attempt > 0 {
		span.SetAttributes(attribute.Int("flow.attempt", event.Attempt))
	}
	if event.Result != "" {
		span.SetAttributes(attribute.String("flow.result", event.Result))
	}
	if event.Duration > 0 {
		span.SetAttributes(attribute.Int64("flow.duration_ms", event.Duration.Milliseconds()))
	}

	for key, value := range event.Meta {
		attrKey := "flow." + key
		switch v := value.(type) {
		case string:
			span.SetAttributes(attribute.String(attrKey, v))
		case int:
			span.SetAttributes(attribute.Int(attrKey, v))
		case int64:
			span.SetAttributes(attribute.Int64(attrKey, v))
		case float64:
			span.SetAttributes(attribute.Float64(attrKey, v))
		case bool:
			span.SetAttributes(attribute.Bool(attrKey, v))
		case time.Duration:
			span.SetAttributes(attribute.Int64(attrKey, v.Milliseconds()))
		default:
			span.SetAttributes(attribute.String(attrKey, fmt.Sprintf("%v", v)))
		}
	}

	if event.Result == "error" {
		msg, _ := event.Meta["error"].(string)
		span.SetStatus(codes.Error, msg)
		if msg != "" {
			span.RecordError(fmt.Errorf("%s", msg))
		}
	}
}
