package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Settlement describes the funds movement that accompanied a paid transition.
type Settlement struct {
	Payer    Account
	Payee    Account
	Price    decimal.Decimal
	Attached decimal.Decimal
	Refund   decimal.Decimal
}

// Deposit describes an account funding accepted by the ledger.
type Deposit struct {
	Account Account
	Amount  decimal.Decimal
}

// EntryKind tags a ledger log entry.
type EntryKind string

const (
	EntryOriginTransitioned  EntryKind = "origin.transitioned"
	EntryProductTransitioned EntryKind = "product.transitioned"
	EntryRoleGranted         EntryKind = "role.granted"
	EntryRoleRevoked         EntryKind = "role.revoked"
	EntryFundsDeposited      EntryKind = "funds.deposited"
)

// Entry is one accepted transition in the append-only ledger log.
//
// Which optional payload is set depends on Kind: lot transitions carry a
// Settlement when they were paid, role changes carry a Grant and deposits
// carry a Deposit. State holds the destination state name of the subject.
type Entry struct {
	Seq        int64
	ID         string
	Kind       EntryKind
	LotID      int64
	Event      string
	State      string
	Actor      Account
	Settlement *Settlement
	Grant      *Grant
	Deposit    *Deposit
	RecordedAt time.Time
}

// EntryFilter holds optional criteria for reading the ledger log.
type EntryFilter struct {
	Kind *EntryKind

	// LotID matches entries of both lot ledgers: an origin lot and a
	// product lot may share a key. Set Kind to read one ledger only.
	LotID    int64
	AfterSeq int64
	Limit    int
}
