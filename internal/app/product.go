package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/neomorfeo/croptrace/internal/domain"
)

type productStep struct {
	event domain.ProductEvent
	role  domain.Role
	party func(domain.ProductLot) (domain.Account, string)
	payee func(domain.ProductLot) domain.Account
	apply func(lot *domain.ProductLot, caller domain.Account)
}

var productSteps = map[domain.ProductEvent]productStep{
	domain.ProductEventOrder: {
		event: domain.ProductEventOrder,
		role:  domain.RoleRetailer,
		payee: func(l domain.ProductLot) domain.Account { return l.Manufacturer },
		apply: func(l *domain.ProductLot, caller domain.Account) { l.Retailer = caller },
	},
	domain.ProductEventShip: {
		event: domain.ProductEventShip,
		party: func(l domain.ProductLot) (domain.Account, string) { return l.Manufacturer, "manufacturer" },
	},
	domain.ProductEventFetch: {
		event: domain.ProductEventFetch,
		role:  domain.RoleDistributor,
		apply: func(l *domain.ProductLot, caller domain.Account) { l.Distributor = caller },
	},
	domain.ProductEventDeliver: {
		event: domain.ProductEventDeliver,
		party: func(l domain.ProductLot) (domain.Account, string) { return l.Distributor, "distributor" },
	},
	domain.ProductEventPutOnSale: {
		event: domain.ProductEventPutOnSale,
		party: func(l domain.ProductLot) (domain.Account, string) { return l.Retailer, "retailer" },
	},
	domain.ProductEventBuy: {
		event: domain.ProductEventBuy,
		role:  domain.RoleConsumer,
		payee: func(l domain.ProductLot) domain.Account { return l.Retailer },
		apply: func(l *domain.ProductLot, caller domain.Account) { l.Buyer = caller },
	},
}

// Produce turns a delivered origin lot into a new product lot owned by the
// calling manufacturer. The origin is consumed in the same transaction.
func (s *LedgerService) Produce(ctx context.Context, caller domain.Account, id domain.ProductID, name string, price decimal.Decimal, loc domain.Location, originID domain.OriginID) (domain.ProductLot, error) {
	if err := validateNewLot(int64(id), name, price); err != nil {
		return domain.ProductLot{}, err
	}
	if err := domain.ValidateLotID("origin_id", int64(originID)); err != nil {
		return domain.ProductLot{}, err
	}

	var product domain.ProductLot
	err := s.update(ctx, "produce", caller, func(tx domain.Tx, j *journal) error {
		if err := requireRole(ctx, tx, "produce", domain.RoleManufacturer, caller); err != nil {
			return err
		}

		origin, err := tx.GetOrigin(ctx, originID)
		if err != nil {
			return err
		}
		consumed, err := s.validators.Origin.Apply(ctx, origin.Status, domain.OriginEventConsume)
		if err != nil {
			return withLot(err, domain.LotOrigin, int64(originID))
		}

		product = domain.NewProductLot(id, strings.TrimSpace(name), price, loc, caller, originID)
		if err := tx.CreateProduct(ctx, product); err != nil {
			return err
		}

		origin.Status = consumed
		origin.ProducedProductID = id
		origin.UpdatedAt = product.CreatedAt
		if err := tx.UpdateOrigin(ctx, origin); err != nil {
			return err
		}

		if err := j.record(ctx, domain.Entry{
			Kind:  domain.EntryOriginTransitioned,
			LotID: int64(originID),
			Event: string(domain.OriginEventConsume),
			State: string(consumed),
			Actor: caller,
		}); err != nil {
			return err
		}
		return j.record(ctx, domain.Entry{
			Kind:  domain.EntryProductTransitioned,
			LotID: int64(id),
			Event: "produce",
			State: string(product.Status),
			Actor: caller,
		})
	})
	if err != nil {
		return domain.ProductLot{}, err
	}
	return product, nil
}

// OrderProduct buys a produced lot for the calling retailer, paying the
// manufacturer.
func (s *LedgerService) OrderProduct(ctx context.Context, caller domain.Account, id domain.ProductID, value decimal.Decimal) (domain.ProductLot, error) {
	return s.AdvanceProduct(ctx, caller, id, domain.ProductEventOrder, value, nil)
}

// ShipProduct marks an ordered product lot ready for pickup.
func (s *LedgerService) ShipProduct(ctx context.Context, caller domain.Account, id domain.ProductID) (domain.ProductLot, error) {
	return s.AdvanceProduct(ctx, caller, id, domain.ProductEventShip, decimal.Zero, nil)
}

// FetchProduct records the calling distributor picking the lot up.
func (s *LedgerService) FetchProduct(ctx context.Context, caller domain.Account, id domain.ProductID) (domain.ProductLot, error) {
	return s.AdvanceProduct(ctx, caller, id, domain.ProductEventFetch, decimal.Zero, nil)
}

// DeliverProduct records the distributor on record delivering the lot.
func (s *LedgerService) DeliverProduct(ctx context.Context, caller domain.Account, id domain.ProductID) (domain.ProductLot, error) {
	return s.AdvanceProduct(ctx, caller, id, domain.ProductEventDeliver, decimal.Zero, nil)
}

// PutOnSale lists a delivered lot at retailPrice.
func (s *LedgerService) PutOnSale(ctx context.Context, caller domain.Account, id domain.ProductID, retailPrice decimal.Decimal) (domain.ProductLot, error) {
	return s.AdvanceProduct(ctx, caller, id, domain.ProductEventPutOnSale, decimal.Zero, &retailPrice)
}

// Buy sells a lot on sale to the calling consumer, paying the retailer.
func (s *LedgerService) Buy(ctx context.Context, caller domain.Account, id domain.ProductID, value decimal.Decimal) (domain.ProductLot, error) {
	return s.AdvanceProduct(ctx, caller, id, domain.ProductEventBuy, value, nil)
}

// AdvanceProduct applies a lifecycle event to a product lot. retailPrice is
// required for put_on_sale and rejected otherwise.
func (s *LedgerService) AdvanceProduct(ctx context.Context, caller domain.Account, id domain.ProductID, event domain.ProductEvent, value decimal.Decimal, retailPrice *decimal.Decimal) (domain.ProductLot, error) {
	step, ok := productSteps[event]
	if !ok {
		return domain.ProductLot{}, &domain.ArgumentError{Field: "event", Reason: fmt.Sprintf("%q cannot be applied to a product lot", event)}
	}
	if err := validateAdvance(int64(id), value, step.payee != nil); err != nil {
		return domain.ProductLot{}, err
	}
	if event == domain.ProductEventPutOnSale {
		if retailPrice == nil {
			return domain.ProductLot{}, &domain.ArgumentError{Field: "retail_price", Reason: "must be set"}
		}
		if err := domain.ValidateAmount("retail_price", *retailPrice); err != nil {
			return domain.ProductLot{}, err
		}
		price := *retailPrice
		step.apply = func(l *domain.ProductLot, _ domain.Account) { l.Price = price }
	} else if retailPrice != nil {
		return domain.ProductLot{}, &domain.ArgumentError{Field: "retail_price", Reason: "only accepted when putting a lot on sale"}
	}

	op := string(event)
	var lot domain.ProductLot
	err := s.update(ctx, op, caller, func(tx domain.Tx, j *journal) error {
		if step.role != "" {
			if err := requireRole(ctx, tx, op, step.role, caller); err != nil {
				return err
			}
		}

		current, err := tx.GetProduct(ctx, id)
		if err != nil {
			return err
		}
		next, err := s.validators.Product.Apply(ctx, current.Status, event)
		if err != nil {
			return withLot(err, domain.LotProduct, int64(id))
		}
		// The party on record is checked once the state is known to accept
		// the event; before that it may not be set yet.
		if step.party != nil {
			if want, name := step.party(current); caller != want {
				return &domain.AuthorizationError{
					Op:     op,
					Caller: caller,
					Reason: fmt.Sprintf("is not the %s of product lot %d", name, id),
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
		if err := tx.UpdateProduct(ctx, current); err != nil {
			return err
		}
		lot = current

		return j.record(ctx, domain.Entry{
			Kind:       domain.EntryProductTransitioned,
			LotID:      int64(id),
			Event:      string(event),
			State:      string(next),
			Actor:      caller,
			Settlement: settlement,
		})
	})
	if err != nil {
		return domain.ProductLot{}, err
	}
	return lot, nil
}

// GetProduct returns the full record of a product lot.
func (s *LedgerService) GetProduct(ctx context.Context, id domain.ProductID) (domain.ProductLot, error) {
	var lot domain.ProductLot
	err := s.view(ctx, func(v domain.View) error {
		var err error
		lot, err = v.GetProduct(ctx, id)
		return err
	})
	return lot, err
}

// ListProducts returns product lots ordered by key.
func (s *LedgerService) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.ProductLot, error) {
	var lots []domain.ProductLot
	err := s.view(ctx, func(v domain.View) error {
		var err error
		lots, err = v.ListProducts(ctx, filter)
		return err
	})
	return lots, err
}
