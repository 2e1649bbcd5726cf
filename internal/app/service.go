package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/neomorfeo/croptrace/internal/domain"
)

// Validators groups the lifecycle validators used by the ledger.
type Validators struct {
	Origin  domain.TransitionValidator[domain.OriginStatus, domain.OriginEvent]
	Product domain.TransitionValidator[domain.ProductStatus, domain.ProductEvent]
}

// LedgerService orchestrates role-gated lot transitions, escrow settlement
// and the ledger log. Every operation is one store transaction: it either
// commits completely or is rejected with no effect.
type LedgerService struct {
	store      domain.Store
	validators Validators
	publisher  domain.EventPublisher
	logger     *slog.Logger
}

// Option configures a LedgerService.
type Option func(*LedgerService)

// WithLogger sets the logger used for accepted operations and publish failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *LedgerService) { s.logger = logger }
}

// NewLedgerService creates a service with the given adapters.
func NewLedgerService(store domain.Store, validators Validators, publisher domain.EventPublisher, opts ...Option) *LedgerService {
	s := &LedgerService{
		store:      store,
		validators: validators,
		publisher:  publisher,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize records admin as the ledger administrator if the store has none,
// and otherwise verifies that the stored administrator is admin.
func (s *LedgerService) Initialize(ctx context.Context, admin domain.Account) error {
	if err := domain.ValidateAccount("administrator", admin); err != nil {
		return err
	}
	return s.store.Update(ctx, func(tx domain.Tx) error {
		current, err := tx.Administrator(ctx)
		if err != nil {
			return fmt.Errorf("reading administrator: %w", err)
		}
		switch current {
		case admin:
			return nil
		case "":
			return tx.SetAdministrator(ctx, admin)
		default:
			return fmt.Errorf("%w: ledger belongs to %q", domain.ErrAdministratorMismatch, current)
		}
	})
}

// update runs fn as one store transaction and publishes the entries it
// recorded once the transaction has committed.
func (s *LedgerService) update(ctx context.Context, op string, caller domain.Account, fn func(tx domain.Tx, j *journal) error) error {
	var j *journal
	err := s.store.Update(ctx, func(tx domain.Tx) error {
		j = &journal{tx: tx}
		return fn(tx, j)
	})
	if err != nil {
		return err
	}

	s.logger.DebugContext(ctx, "ledger operation accepted",
		"op", op,
		"caller", caller,
		"entries", len(j.entries),
	)
	s.publish(ctx, j.entries)
	return nil
}

func (s *LedgerService) view(ctx context.Context, fn func(v domain.View) error) error {
	return s.store.View(ctx, fn)
}

// withLot attaches the lot identity to a transition error from a validator.
func withLot(err error, lot domain.LotKind, id int64) error {
	var trErr *domain.TransitionError
	if errors.As(err, &trErr) {
		trErr.Lot = lot
		trErr.ID = id
	}
	return err
}
