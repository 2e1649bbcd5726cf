package app

import (
	"context"
	"fmt"

	"github.com/neomorfeo/croptrace/internal/domain"
)

// Grant gives holder the role. Only the ledger administrator may grant, and
// granting a role the holder already has is accepted and logged again.
func (s *LedgerService) Grant(ctx context.Context, caller domain.Account, role domain.Role, holder domain.Account) error {
	return s.changeRole(ctx, "grant", caller, role, holder)
}

// Revoke removes the role from holder. Revoking a role the holder does not
// have is accepted and logged.
func (s *LedgerService) Revoke(ctx context.Context, caller domain.Account, role domain.Role, holder domain.Account) error {
	return s.changeRole(ctx, "revoke", caller, role, holder)
}

// HasRole reports whether holder currently holds role.
func (s *LedgerService) HasRole(ctx context.Context, role domain.Role, holder domain.Account) (bool, error) {
	if !role.Valid() {
		return false, &domain.ArgumentError{Field: "role", Reason: fmt.Sprintf("unknown role %s", role)}
	}
	var held bool
	err := s.view(ctx, func(v domain.View) error {
		var err error
		held, err = v.HasRole(ctx, role, holder)
		return err
	})
	return held, err
}

func (s *LedgerService) changeRole(ctx context.Context, op string, caller domain.Account, role domain.Role, holder domain.Account) error {
	if !role.Valid() {
		return &domain.ArgumentError{Field: "role", Reason: fmt.Sprintf("unknown role %s", role)}
	}
	if err := domain.ValidateAccount("holder", holder); err != nil {
		return err
	}

	return s.update(ctx, op, caller, func(tx domain.Tx, j *journal) error {
		if err := requireAdministrator(ctx, tx, op, caller); err != nil {
			return err
		}

		kind := domain.EntryRoleGranted
		apply := tx.GrantRole
		if op == "revoke" {
			kind = domain.EntryRoleRevoked
			apply = tx.RevokeRole
		}
		if err := apply(ctx, role, holder); err != nil {
			return err
		}
		return j.record(ctx, domain.Entry{
			Kind:  kind,
			Event: op,
			Actor: caller,
			Grant: &domain.Grant{Role: role, Holder: holder},
		})
	})
}

func requireAdministrator(ctx context.Context, v domain.View, op string, caller domain.Account) error {
	admin, err := v.Administrator(ctx)
	if err != nil {
		return fmt.Errorf("reading administrator: %w", err)
	}
	if admin.IsZero() || caller != admin {
		return &domain.AuthorizationError{Op: op, Caller: caller, Reason: "is not the ledger administrator"}
	}
	return nil
}

func requireRole(ctx context.Context, v domain.View, op string, role domain.Role, caller domain.Account) error {
	held, err := v.HasRole(ctx, role, caller)
	if err != nil {
		return fmt.Errorf("checking role %s: %w", role, err)
	}
	if !held {
		return &domain.AuthorizationError{Op: op, Caller: caller, Role: role}
	}
	return nil
}
