package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/neomorfeo/croptrace/internal/domain"
)

// settle routes an attached payment through the escrow account: the price
// goes to payee and any excess back to payer. It runs inside the transaction
// of the transition it pays for, so a failure here discards that transition.
func settle(ctx context.Context, tx domain.Tx, attached, price decimal.Decimal, payee, payer domain.Account) (domain.Settlement, error) {
	fail := func(reason domain.PaymentFailure, err error) error {
		return &domain.PaymentError{
			Payer:    payer,
			Attached: attached,
			Price:    price,
			Reason:   reason,
			Err:      err,
		}
	}

	if attached.LessThan(price) {
		return domain.Settlement{}, fail(domain.PaymentBelowPrice, nil)
	}
	if err := tx.Transfer(ctx, payer, domain.EscrowAccount, attached); err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			return domain.Settlement{}, fail(domain.PaymentPayerBalance, err)
		}
		return domain.Settlement{}, fmt.Errorf("collecting payment: %w", err)
	}
	if err := tx.Transfer(ctx, domain.EscrowAccount, payee, price); err != nil {
		return domain.Settlement{}, fmt.Errorf("paying %s: %w", payee, err)
	}

	refund := attached.Sub(price)
	if refund.IsPositive() {
		if err := tx.Transfer(ctx, domain.EscrowAccount, payer, refund); err != nil {
			return domain.Settlement{}, fail(domain.PaymentRefundUndeliverable, err)
		}
	}

	residual, err := tx.Balance(ctx, domain.EscrowAccount)
	if err != nil {
		return domain.Settlement{}, fmt.Errorf("reading escrow balance: %w", err)
	}
	if !residual.IsZero() {
		return domain.Settlement{}, fmt.Errorf("escrow holds %s after settlement", residual)
	}

	return domain.Settlement{
		Payer:    payer,
		Payee:    payee,
		Price:    price,
		Attached: attached,
		Refund:   refund,
	}, nil
}
