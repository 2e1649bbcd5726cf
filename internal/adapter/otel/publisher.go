package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/croptrace/internal/domain"
)

// TracingPublisher wraps a domain.EventPublisher with OpenTelemetry tracing
// and counts published entries by kind and outcome.
type TracingPublisher struct {
	next      domain.EventPublisher
	tracer    trace.Tracer
	published metric.Int64Counter
}

// Compile-time check: TracingPublisher implements domain.EventPublisher.
var _ domain.EventPublisher = (*TracingPublisher)(nil)

// NewTracingPublisher creates a tracing decorator around the given publisher.
func NewTracingPublisher(next domain.EventPublisher) *TracingPublisher {
	published, err := otel.Meter(tracerName).Int64Counter("croptrace.entries.published",
		metric.WithDescription("Ledger entries handed to the event publisher"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		otel.Handle(err)
	}

	return &TracingPublisher{
		next:      next,
		tracer:    otel.Tracer(tracerName),
		published: published,
	}
}

func (p *TracingPublisher) Publish(ctx context.Context, entry domain.Entry) error {
	ctx, span := p.tracer.Start(ctx, "EventPublisher.Publish",
		trace.WithAttributes(
			attribute.String("entry.kind", string(entry.Kind)),
			attribute.Int64("entry.seq", entry.Seq),
			attribute.String("entry.state", entry.State),
			attribute.Int64("lot.id", entry.LotID),
		),
	)
	defer span.End()

	outcome := "ok"
	err := p.next.Publish(ctx, entry)
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	if p.published != nil {
		p.published.Add(ctx, 1, metric.WithAttributes(
			attribute.String("entry.kind", string(entry.Kind)),
			attribute.String("outcome", outcome),
		))
	}
	return err
}
