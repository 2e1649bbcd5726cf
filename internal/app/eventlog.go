package app

import (
	"context"
	"fmt"
	"time"

	"github.com/neomorfeo/croptrace/internal/domain"
)

// journal appends log entries inside a store transaction and remembers them
// for publishing after commit.
type journal struct {
	tx      domain.Tx
	entries []domain.Entry
}

func (j *journal) record(ctx context.Context, entry domain.Entry) error {
	id, err := generateID()
	if err != nil {
		return fmt.Errorf("generating entry id: %w", err)
	}
	entry.ID = id
	entry.RecordedAt = time.Now().UTC()

	stored, err := j.tx.Append(ctx, entry)
	if err != nil {
		return fmt.Errorf("appending %s entry: %w", entry.Kind, err)
	}
	j.entries = append(j.entries, stored)
	return nil
}

// publish fans committed entries out to observers. The entries are already
// part of the ledger, so a failed publish is reported and never undone.
func (s *LedgerService) publish(ctx context.Context, entries []domain.Entry) {
	for _, e := range entries {
		if err := s.publisher.Publish(ctx, e); err != nil {
			s.logger.ErrorContext(ctx, "publishing ledger entry",
				"seq", e.Seq,
				"kind", e.Kind,
				"lot_id", e.LotID,
				"error", err,
			)
		}
	}
}

// Entries returns log entries in acceptance order.
func (s *LedgerService) Entries(ctx context.Context, filter domain.EntryFilter) ([]domain.Entry, error) {
	var entries []domain.Entry
	err := s.view(ctx, func(v domain.View) error {
		var err error
		entries, err = v.Entries(ctx, filter)
		return err
	})
	return entries, err
}
