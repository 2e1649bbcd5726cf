package domain

import "github.com/shopspring/decimal"

// ValidateAmount rejects negative prices and payments.
func ValidateAmount(field string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return &ArgumentError{Field: field, Reason: "must not be negative"}
	}
	return nil
}

// ValidateLotID rejects the reserved zero key and negative keys.
func ValidateLotID(field string, id int64) error {
	if id <= 0 {
		return &ArgumentError{Field: field, Reason: "must be positive"}
	}
	return nil
}

// ValidateAccount rejects the unset account and the reserved escrow account.
func ValidateAccount(field string, account Account) error {
	if account.IsZero() {
		return &ArgumentError{Field: field, Reason: "must be set"}
	}
	if account == EscrowAccount {
		return &ArgumentError{Field: field, Reason: "is reserved"}
	}
	return nil
}
