package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/neomorfeo/croptrace/internal/domain"
)

// originStep describes how one origin lifecycle event is authorized, paid
// for and applied.
type originStep struct {
	event domain.OriginEvent
	// role the caller must hold, if any.
	role domain.Role
	// party returns the account on record the caller must be, if any.
	party func(domain.OriginLot) (domain.Account, string)
	// payee is set for paid steps.
	payee func(domain.OriginLot) domain.Account
	apply func(lot *domain.OriginLot, caller domain.Account)
}

func originator(l domain.OriginLot) (domain.Account, string) { return l.Originator, "originator" }

var originSteps = map[domain.OriginEvent]originStep{
	domain.OriginEventCheck: {
		event: domain.OriginEventCheck,
		role:  domain.RoleOriginProducer,
		party: originator,
	},
	domain.OriginEventHarvest: {
		event: domain.OriginEventHarvest,
		party: originator,
	},
	domain.OriginEventOrder: {
		event: domain.OriginEventOrder,
		role:  domain.RoleManufacturer,
		payee: func(l domain.OriginLot) domain.Account { return l.Originator },
		apply: func(l *domain.OriginLot, caller domain.Account) { l.Buyer = caller },
	},
	domain.OriginEventShip: {
		event: domain.OriginEventShip,
		party: originator,
	},
	domain.OriginEventFetch: {
		event: domain.OriginEventFetch,
		role:  domain.RoleDistributor,
		apply: func(l *domain.OriginLot, caller domain.Account) { l.Distributor = caller },
	},
	domain.OriginEventDeliver: {
		event: domain.OriginEventDeliver,
		party: func(l domain.OriginLot) (domain.Account, string) { return l.Distributor, "distributor" },
	},
}

// Plant registers a new origin lot owned by the caller.
func (s *LedgerService) Plant(ctx context.Context, caller domain.Account, id domain.OriginID, name string, price decimal.Decimal, loc domain.Location) (domain.OriginLot, error) {
	if err := validateNewLot(int64(id), name, price); err != nil {
		return domain.OriginLot{}, err
	}

	var lot domain.OriginLot
	err := s.update(ctx, "plant", caller, func(tx domain.Tx, j *journal) error {
		if err := requireRole(ctx, tx, "plant", domain.RoleOriginProducer, caller); err != nil {
			return err
		}
		lot = domain.NewOriginLot(id, strings.TrimSpace(name), price, loc, caller)
		if err := tx.CreateOrigin(ctx, lot); err != nil {
			return err
		}
		return j.record(ctx, domain.Entry{
			Kind:  domain.EntryOriginTransitioned,
			LotID: int64(id),
			Event: "plant",
			State: string(lot.Status),
			Actor: caller,
		})
	})
	if err != nil {
		return domain.OriginLot{}, err
	}
	return lot, nil
}

// Check marks a planted lot ripe.
func (s *LedgerService) Check(ctx context.Context, caller domain.Account, id domain.OriginID) (domain.OriginLot, error) {
	return s.AdvanceOrigin(ctx, caller, id, domain.OriginEventCheck, decimal.Zero)
}

// Harvest marks a ripe lot harvested.
func (s *LedgerService) Harvest(ctx context.Context, caller domain.Account, id domain.OriginID) (domain.OriginLot, error) {
	return s.AdvanceOrigin(ctx, caller, id, domain.OriginEventHarvest, decimal.Zero)
}

// Order buys a harvested lot for the calling manufacturer. value is the
// attached payment; the lot price goes to the originator and the rest is
// refunded.
func (s *LedgerService) Order(ctx context.Context, caller domain.Account, id domain.OriginID, value decimal.Decimal) (domain.OriginLot, error) {
	return s.AdvanceOrigin(ctx, caller, id, domain.OriginEventOrder, value)
}

// Ship marks an ordered lot ready for pickup.
func (s *LedgerService) Ship(ctx context.Context, caller domain.Account, id domain.OriginID) (domain.OriginLot, error) {
	return s.AdvanceOrigin(ctx, caller, id, domain.OriginEventShip, decimal.Zero)
}

// Fetch records the calling distributor picking the lot up.
func (s *LedgerService) Fetch(ctx context.Context, caller domain.Account, id domain.OriginID) (domain.OriginLot, error) {
	return s.AdvanceOrigin(ctx, caller, id, domain.OriginEventFetch, decimal.Zero)
}

// Deliver records the distributor on record delivering the lot.
func (s *LedgerService) Deliver(ctx context.Context, caller domain.Account, id domain.OriginID) (domain.OriginLot, error) {
	return s.AdvanceOrigin(ctx, caller, id, domain.OriginEventDeliver, decimal.Zero)
}

// AdvanceOrigin applies a caller-driven lifecycle event to an origin lot.
// Consumption is not caller-driven; it happens through Produce.
func (s *LedgerService) AdvanceOrigin(ctx context.Context, caller domain.Account, id domain.OriginID, event domain.OriginEvent, value decimal.Decimal) (domain.OriginLot, error) {
	step, ok := originSteps[event]
	if !ok {
		return domain.OriginLot{}, &domain.ArgumentError{Field: "event", Reason: fmt.Sprintf("%q cannot be applied to an origin lot", event)}
	}
	if err := validateAdvance(int64(id), value, step.payee != nil); err != nil {
		return domain.OriginLot{}, err
	}

	op := string(event)
	var lot domain.OriginLot
	err := s.update(ctx, op, caller, func(tx domain.Tx, j *journal) error {
		if step.role != "" {
			if err := requireRole(ctx, tx, op, step.role, caller); err != nil {
				return err
			}
		}

		current, err := tx.GetOrigin(ctx, id)
		if err != nil {
			return err
		}
		next, err := s.validators.Origin.Apply(ctx, current.Status, event)
		if err != nil {
			return withLot(err, domain.LotOrigin, int64(id))
		}
		// The party on record is checked once the state is known to accept
		// the event; before that it may not be set yet.
		if step.party != nil {
			if want, name := step.party(current); caller != want {
				return &domain.AuthorizationError{
					Op:     op,
					Caller: caller,
					Reason: fmt.Sprintf("is not the %s of origin lot %d", name, id),
				}
			}
		}

		var settlement *domain.Settlement
		if step.payee != nil {
			paid, err := settle(ctx, tx, value, current.Price, step.payee(current), caller)
			if err != nil {
				return err
			}
			settlement = &paid
		}

		current.Status = next
		if step.apply != nil {
			step.apply(&current, caller)
		}
		current.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateOrigin(ctx, current); err != nil {
			return err
		}
		lot = current

		return j.record(ctx, domain.Entry{
			Kind:       domain.EntryOriginTransitioned,
			LotID:      int64(id),
			Event:      string(event),
			State:      string(next),
			Actor:      caller,
			Settlement: settlement,
		})
	})
	if err != nil {
		return domain.OriginLot{}, err
	}
	return lot, nil
}

// GetOrigin returns the full record of an origin lot.
func (s *LedgerService) GetOrigin(ctx context.Context, id domain.OriginID) (domain.OriginLot, error) {
	var lot domain.OriginLot
	err := s.view(ctx, func(v domain.View) error {
		var err error
		lot, err = v.GetOrigin(ctx, id)
		return err
	})
	return lot, err
}

// ListOrigins returns origin lots ordered by key.
func (s *LedgerService) ListOrigins(ctx context.Context, filter domain.OriginFilter) ([]domain.OriginLot, error) {
	var lots []domain.OriginLot
	err := s.view(ctx, func(v domain.View) error {
		var err error
		lots, err = v.ListOrigins(ctx, filter)
		return err
	})
	return lots, err
}

func validateNewLot(id int64, name string, price decimal.Decimal) error {
	if err := domain.ValidateLotID("id", id); err != nil {
		return err
	}
	if strings.TrimSpace(name) == "" {
		return &domain.ArgumentError{Field: "name", Reason: "must not be empty"}
	}
	return domain.ValidateAmount("price", price)
}

func validateAdvance(id int64, value decimal.Decimal, paid bool) error {
	if err := domain.ValidateLotID("id", id); err != nil {
		return err
	}
	if err := domain.ValidateAmount("value", value); err != nil {
		return err
	}
	if !paid && !value.IsZero() {
		return &domain.ArgumentError{Field: "value", Reason: "operation does not accept payment"}
	}
	return nil
}
