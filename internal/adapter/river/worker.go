package river

import (
	"context"
	"log/slog"

	"github.com/riverqueue/river"
)

// EntryWorker delivers ledger entries from the River queue to observers.
// Delivery is a structured log line per entry.
type EntryWorker struct {
	river.WorkerDefaults[EntryJobArgs]
	logger *slog.Logger
}

// NewEntryWorker creates a worker that logs through logger.
func NewEntryWorker(logger *slog.Logger) *EntryWorker {
	return &EntryWorker{logger: logger}
}

// Work processes a single entry job.
func (w *EntryWorker) Work(ctx context.Context, job *river.Job[EntryJobArgs]) error {
	args := job.Args
	attrs := []any{
		"seq", args.Seq,
		"entry_kind", args.EntryKind,
		"event", args.Event,
		"actor", args.Actor,
		"job_id", job.ID,
		"attempt", job.Attempt,
	}
	if args.LotID != 0 {
		attrs = append(attrs, "lot_id", args.LotID, "state", args.State)
	}
	if args.Payee != "" {
		attrs = append(attrs, "payer", args.Payer, "payee", args.Payee, "price", args.Price, "refund", args.Refund)
	}
	if args.Role != "" {
		attrs = append(attrs, "role", args.Role, "holder", args.Holder)
	}
	if args.Account != "" {
		attrs = append(attrs, "account", args.Account, "amount", args.Amount)
	}

	w.logger.InfoContext(ctx, "ledger entry observed", attrs...)
	return nil
}
