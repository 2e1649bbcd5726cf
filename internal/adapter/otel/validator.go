package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/croptrace/internal/domain"
)

// TracingValidator wraps a domain.TransitionValidator with OpenTelemetry tracing.
type TracingValidator[S ~string, E ~string] struct {
	next      domain.TransitionValidator[S, E]
	tracer    trace.Tracer
	lifecycle domain.LotKind
}

// NewTracingValidator creates a tracing decorator around the given validator.
// lifecycle names the lot kind the validator guards.
func NewTracingValidator[S ~string, E ~string](next domain.TransitionValidator[S, E], lifecycle domain.LotKind) *TracingValidator[S, E] {
	return &TracingValidator[S, E]{
		next:      next,
		tracer:    otel.Tracer(tracerName),
		lifecycle: lifecycle,
	}
}

func (v *TracingValidator[S, E]) Apply(ctx context.Context, current S, event E) (S, error) {
	ctx, span := v.tracer.Start(ctx, "TransitionValidator.Apply",
		trace.WithAttributes(
			attribute.String("lot.kind", string(v.lifecycle)),
			attribute.String("transition.from", string(current)),
			attribute.String("transition.event", string(event)),
		),
	)
	defer span.End()

	next, err := v.next.Apply(ctx, current, event)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return next, err
	}
	span.SetAttributes(attribute.String("transition.to", string(next)))
	return next, nil
}
