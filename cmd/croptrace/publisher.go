package main

import (
	"context"
	"log/slog"

	"github.com/neomorfeo/croptrace/internal/domain"
)

// logPublisher writes each committed entry to the log. It stands in for
// River when the queue is disabled or the store is not SQLite.
type logPublisher struct {
	logger *slog.Logger
}

func (p *logPublisher) Publish(ctx context.Context, entry domain.Entry) error {
	p.logger.InfoContext(ctx, "ledger entry",
		"seq", entry.Seq,
		"kind", entry.Kind,
		"lot_id", entry.LotID,
		"event", entry.Event,
		"state", entry.State,
		"actor", entry.Actor,
	)
	return nil
}
