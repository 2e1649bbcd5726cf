package app

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/neomorfeo/croptrace/internal/domain"
)

// Deposit credits amount to account. The caller must be the ledger
// administrator or hold the ADMIN role.
func (s *LedgerService) Deposit(ctx context.Context, caller, account domain.Account, amount decimal.Decimal) error {
	if err := domain.ValidateAccount("account", account); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return &domain.ArgumentError{Field: "amount", Reason: "must be positive"}
	}

	return s.update(ctx, "deposit", caller, func(tx domain.Tx, j *journal) error {
		if err := requireAdministrator(ctx, tx, "deposit", caller); err != nil {
			if roleErr := requireRole(ctx, tx, "deposit", domain.RoleAdmin, caller); roleErr != nil {
				return roleErr
			}
		}
		if err := tx.Credit(ctx, account, amount); err != nil {
			return err
		}
		return j.record(ctx, domain.Entry{
			Kind:    domain.EntryFundsDeposited,
			Event:   "deposit",
			Actor:   caller,
			Deposit: &domain.Deposit{Account: account, Amount: amount},
		})
	})
}

// Balance returns the funds held by account; unknown accounts hold zero.
func (s *LedgerService) Balance(ctx context.Context, account domain.Account) (decimal.Decimal, error) {
	if account.IsZero() {
		return decimal.Zero, &domain.ArgumentError{Field: "account", Reason: "must be set"}
	}
	var balance decimal.Decimal
	err := s.view(ctx, func(v domain.View) error {
		var err error
		balance, err = v.Balance(ctx, account)
		return err
	})
	return balance, err
}
