package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/croptrace/internal/domain"
)

const tracerName = "github.com/neomorfeo/croptrace/internal/adapter/otel"

// TracingStore wraps a domain.Store with OpenTelemetry tracing. Each
// transaction becomes one span that records how many log entries it
// appended and whether it committed.
type TracingStore struct {
	next   domain.Store
	tracer trace.Tracer
}

// Compile-time check: TracingStore implements domain.Store.
var _ domain.Store = (*TracingStore)(nil)

// NewTracingStore creates a tracing decorator around the given store.
func NewTracingStore(next domain.Store) *TracingStore {
	return &TracingStore{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

func (s *TracingStore) Update(ctx context.Context, fn func(domain.Tx) error) error {
	ctx, span := s.tracer.Start(ctx, "LedgerStore.Update")
	defer span.End()

	var appended []domain.Entry
	err := s.next.Update(ctx, func(tx domain.Tx) error {
		appended = appended[:0]
		return fn(&recordingTx{Tx: tx, appended: &appended})
	})

	span.SetAttributes(attribute.Int("ledger.entries.appended", len(appended)))
	if len(appended) > 0 {
		span.SetAttributes(attribute.String("ledger.entry.kind", string(appended[0].Kind)))
		if appended[0].LotID != 0 {
			span.SetAttributes(attribute.Int64("lot.id", appended[0].LotID))
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool("ledger.committed", false))
		return err
	}
	span.SetAttributes(attribute.Bool("ledger.committed", true))
	return nil
}

func (s *TracingStore) View(ctx context.Context, fn func(domain.View) error) error {
	ctx, span := s.tracer.Start(ctx, "LedgerStore.View")
	defer span.End()

	err := s.next.View(ctx, fn)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// recordingTx notes every entry appended through it.
type recordingTx struct {
	domain.Tx
	appended *[]domain.Entry
}

func (tx *recordingTx) Append(ctx context.Context, entry domain.Entry) (domain.Entry, error) {
	stored, err := tx.Tx.Append(ctx, entry)
	if err == nil {
		*tx.appended = append(*tx.appended, stored)
	}
	return stored, err
}
