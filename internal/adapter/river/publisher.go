package river

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/riverqueue/river"

	"github.com/neomorfeo/croptrace/internal/domain"
)

// Compile-time check: Publisher implements domain.EventPublisher.
var _ domain.EventPublisher = (*Publisher)(nil)

// EntryJobArgs carries one committed ledger entry to asynchronous observers.
// River serializes this as JSON into its job queue table. It is a flat
// snapshot of the entry, so the worker never needs to query the ledger.
type EntryJobArgs struct {
	Seq        int64     `json:"seq"`
	EntryID    string    `json:"entry_id"`
	EntryKind  string    `json:"entry_kind"`
	LotID      int64     `json:"lot_id,omitempty"`
	Event      string    `json:"event"`
	State      string    `json:"state,omitempty"`
	Actor      string    `json:"actor"`
	Payer      string    `json:"payer,omitempty"`
	Payee      string    `json:"payee,omitempty"`
	Price      string    `json:"price,omitempty"`
	Refund     string    `json:"refund,omitempty"`
	Role       string    `json:"role,omitempty"`
	Holder     string    `json:"holder,omitempty"`
	Account    string    `json:"account,omitempty"`
	Amount     string    `json:"amount,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Kind returns the unique job type identifier used by River's job routing.
func (EntryJobArgs) Kind() string { return "ledger.entry" }

// InsertOpts bounds retries of observer delivery.
func (EntryJobArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: 5}
}

// NewEntryJobArgs flattens a ledger entry into job arguments.
func NewEntryJobArgs(entry domain.Entry) EntryJobArgs {
	args := EntryJobArgs{
		Seq:        entry.Seq,
		EntryID:    entry.ID,
		EntryKind:  string(entry.Kind),
		LotID:      entry.LotID,
		Event:      entry.Event,
		State:      entry.State,
		Actor:      string(entry.Actor),
		RecordedAt: entry.RecordedAt,
	}
	if s := entry.Settlement; s != nil {
		args.Payer = string(s.Payer)
		args.Payee = string(s.Payee)
		args.Price = s.Price.String()
		args.Refund = s.Refund.String()
	}
	if g := entry.Grant; g != nil {
		args.Role = string(g.Role)
		args.Holder = string(g.Holder)
	}
	if d := entry.Deposit; d != nil {
		args.Account = string(d.Account)
		args.Amount = d.Amount.String()
	}
	return args
}

// Client is the River client type parameterized for SQLite (*sql.Tx).
type Client = river.Client[*sql.Tx]

// Publisher implements domain.EventPublisher by enqueuing River jobs.
type Publisher struct {
	client *Client
}

// NewPublisher creates a publisher backed by the given River client.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// Publish enqueues a committed ledger entry as an async job in River.
func (p *Publisher) Publish(ctx context.Context, entry domain.Entry) error {
	if _, err := p.client.Insert(ctx, NewEntryJobArgs(entry), nil); err != nil {
		return fmt.Errorf("enqueuing entry %d: %w", entry.Seq, err)
	}
	return nil
}
