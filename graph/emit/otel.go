package emit

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter implements Emitter by creating OpenTelemetry spans.
//
// Each event becomes an instant span:
//   - Span name: event.Msg (e.g. "step completed", "suspended")
//   - Attributes: thread id, step, step id, and all Meta fields
//   - Status: error when event.Meta["error"] is present
//
// Usage:
//
//	tracer := otel.Tracer("convograph")
//	emitter := emit.NewOTelEmitter(tracer)
//	engine := graph.New(g, reducer, st, emitter, graph.Options{})
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter creates an OTelEmitter using the given tracer.
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

// Emit creates and immediately ends a span for the event. Events represent
// points in time rather than durations, so spans are not left open.
func (o *OTelEmitter) Emit(event Event) {
	_, span := o.tracer.Start(context.Background(), event.Msg)
	defer span.End()

	span.SetAttributes(
		attribute.String("thread_id", event.ThreadID),
		attribute.Int("step", event.Step),
		attribute.String("step_id", event.StepID),
	)

	for key, value := range event.Meta {
		span.SetAttributes(metaAttribute("meta."+key, value))
	}

	if errVal, ok := event.Meta["error"]; ok {
		span.SetStatus(codes.Error, fmt.Sprintf("%v", errVal))
	}
}

// metaAttribute converts an arbitrary metadata value into a span attribute,
// preserving native types where OpenTelemetry supports them.
func metaAttribute(key string, value interface{}) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}
