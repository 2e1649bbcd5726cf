package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Sentinel errors identify the kind of a rejected operation. Typed errors
// below match their kind through errors.Is.
var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInsufficientPayment = errors.New("insufficient payment")
	ErrInvalidArgument     = errors.New("invalid argument")

	// ErrInsufficientFunds is returned by stores when a transfer would
	// overdraw the source account.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAdministratorMismatch is returned when a ledger is opened with a
	// different administrator than the one it was initialized with.
	ErrAdministratorMismatch = errors.New("ledger administrator mismatch")
)

// NotFoundError is returned when a lot key is unknown.
type NotFoundError struct {
	Lot LotKind
	ID  int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s lot %d not found", e.Lot, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConflictError is returned when a lot key is already in use.
type ConflictError struct {
	Lot LotKind
	ID  int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s lot %d already exists", e.Lot, e.ID)
}

func (e *ConflictError) Is(target error) bool { return target == ErrAlreadyExists }

// TransitionError is returned when a state transition is not allowed.
type TransitionError struct {
	Lot     LotKind
	ID      int64
	Event   string
	Current string
}

func (e *TransitionError) Error() string {
	if e.Lot == "" {
		return fmt.Sprintf("event %q is not valid from state %q", e.Event, e.Current)
	}
	return fmt.Sprintf("%s lot %d: event %q is not valid from state %q", e.Lot, e.ID, e.Event, e.Current)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// AuthorizationError is returned when the caller lacks a role or is not the
// party on record for the operation.
type AuthorizationError struct {
	Op     string
	Caller Account
	Role   Role
	Reason string
}

func (e *AuthorizationError) Error() string {
	if e.Role != "" {
		return fmt.Sprintf("%s: account %q does not hold role %s", e.Op, e.Caller, e.Role)
	}
	return fmt.Sprintf("%s: account %q %s", e.Op, e.Caller, e.Reason)
}

func (e *AuthorizationError) Is(target error) bool { return target == ErrUnauthorized }

// PaymentFailure says which step of a settlement could not complete.
type PaymentFailure string

const (
	PaymentBelowPrice          PaymentFailure = "below price"
	PaymentPayerBalance        PaymentFailure = "payer balance too low"
	PaymentRefundUndeliverable PaymentFailure = "refund undeliverable"
)

// PaymentError is returned when the attached payment cannot settle a paid
// transition. Err holds the underlying store error, if any.
type PaymentError struct {
	Payer    Account
	Attached decimal.Decimal
	Price    decimal.Decimal
	Reason   PaymentFailure
	Err      error
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("payment of %s by %q for price %s: %s", e.Attached, e.Payer, e.Price, e.Reason)
}

func (e *PaymentError) Is(target error) bool { return target == ErrInsufficientPayment }

func (e *PaymentError) Unwrap() error { return e.Err }

// ArgumentError is returned when an operation argument is malformed.
type ArgumentError struct {
	Field  string
	Reason string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ArgumentError) Is(target error) bool { return target == ErrInvalidArgument }
