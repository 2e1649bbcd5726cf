package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// Store is the persistence contract for the ledger. Every write runs inside
// Update as one indivisible unit: if fn returns an error nothing it did is
// kept. Implementations serialize Update calls.
type Store interface {
	Update(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(v View) error) error
}

// View is the read side of the ledger store.
type View interface {
	// Administrator returns the zero account until the ledger is initialized.
	Administrator(ctx context.Context) (Account, error)
	HasRole(ctx context.Context, role Role, holder Account) (bool, error)
	GetOrigin(ctx context.Context, id OriginID) (OriginLot, error)
	GetProduct(ctx context.Context, id ProductID) (ProductLot, error)
	ListOrigins(ctx context.Context, filter OriginFilter) ([]OriginLot, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]ProductLot, error)
	Balance(ctx context.Context, account Account) (decimal.Decimal, error)
	Entries(ctx context.Context, filter EntryFilter) ([]Entry, error)
}

// Tx is the write side of the ledger store, valid only inside Update.
type Tx interface {
	View
	SetAdministrator(ctx context.Context, admin Account) error
	GrantRole(ctx context.Context, role Role, holder Account) error
	RevokeRole(ctx context.Context, role Role, holder Account) error
	CreateOrigin(ctx context.Context, lot OriginLot) error
	UpdateOrigin(ctx context.Context, lot OriginLot) error
	CreateProduct(ctx context.Context, lot ProductLot) error
	UpdateProduct(ctx context.Context, lot ProductLot) error
	// Credit adds amount to the account balance.
	Credit(ctx context.Context, account Account, amount decimal.Decimal) error
	// Transfer moves amount between accounts, failing with
	// ErrInsufficientFunds if the source balance is too low.
	Transfer(ctx context.Context, from, to Account, amount decimal.Decimal) error
	// Append adds an entry to the log and returns it with Seq assigned.
	Append(ctx context.Context, entry Entry) (Entry, error)
}

// TransitionValidator checks lifecycle events against a transition table.
type TransitionValidator[S ~string, E ~string] interface {
	Apply(ctx context.Context, current S, event E) (S, error)
}

// EventPublisher defines the contract for fanning committed log entries out
// to external observers.
type EventPublisher interface {
	Publish(ctx context.Context, entry Entry) error
}
