// Package memory provides an in-memory ledger store used for tests and
// ephemeral deployments.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/neomorfeo/croptrace/internal/domain"
)

// Compile-time check: Store implements domain.Store.
var _ domain.Store = (*Store)(nil)

type state struct {
	admin    domain.Account
	roles    map[domain.Grant]struct{}
	origins  map[domain.OriginID]domain.OriginLot
	products map[domain.ProductID]domain.ProductLot
	balances map[domain.Account]decimal.Decimal
	// entries is append-only and shared between the committed state and
	// open transactions; transactions stage appends separately.
	entries []domain.Entry
}

func newState() state {
	return state{
		roles:    make(map[domain.Grant]struct{}),
		origins:  make(map[domain.OriginID]domain.OriginLot),
		products: make(map[domain.ProductID]domain.ProductLot),
		balances: make(map[domain.Account]decimal.Decimal),
	}
}

func (s state) clone() state {
	c := state{
		admin:    s.admin,
		roles:    make(map[domain.Grant]struct{}, len(s.roles)),
		origins:  make(map[domain.OriginID]domain.OriginLot, len(s.origins)),
		products: make(map[domain.ProductID]domain.ProductLot, len(s.products)),
		balances: make(map[domain.Account]decimal.Decimal, len(s.balances)),
		entries:  s.entries,
	}
	for k := range s.roles {
		c.roles[k] = struct{}{}
	}
	for k, v := range s.origins {
		c.origins[k] = v
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.balances {
		c.balances[k] = v
	}
	return c
}

// Store keeps the whole ledger in memory. Writers run against a private copy
// of the state that replaces the committed state only if they succeed.
type Store struct {
	mu    sync.RWMutex
	state state
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{state: newState()}
}

// Update executes fn within a transactional copy of the store state.
func (s *Store) Update(ctx context.Context, fn func(domain.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &transaction{state: s.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tx.state.entries = append(tx.state.entries[:len(tx.state.entries):len(tx.state.entries)], tx.appended...)
	s.state = tx.state
	return nil
}

// View executes fn against the committed state.
func (s *Store) View(ctx context.Context, fn func(domain.View) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(&transaction{state: s.state})
}

type transaction struct {
	state    state
	appended []domain.Entry
}

func (tx *transaction) Administrator(_ context.Context) (domain.Account, error) {
	return tx.state.admin, nil
}

func (tx *transaction) HasRole(_ context.Context, role domain.Role, holder domain.Account) (bool, error) {
	_, ok := tx.state.roles[domain.Grant{Role: role, Holder: holder}]
	return ok, nil
}

func (tx *transaction) GetOrigin(_ context.Context, id domain.OriginID) (domain.OriginLot, error) {
	lot, ok := tx.state.origins[id]
	if !ok {
		return domain.OriginLot{}, &domain.NotFoundError{Lot: domain.LotOrigin, ID: int64(id)}
	}
	return lot, nil
}

func (tx *transaction) GetProduct(_ context.Context, id domain.ProductID) (domain.ProductLot, error) {
	lot, ok := tx.state.products[id]
	if !ok {
		return domain.ProductLot{}, &domain.NotFoundError{Lot: domain.LotProduct, ID: int64(id)}
	}
	return lot, nil
}

func (tx *transaction) ListOrigins(_ context.Context, filter domain.OriginFilter) ([]domain.OriginLot, error) {
	out := make([]domain.OriginLot, 0, len(tx.state.origins))
	for _, lot := range tx.state.origins {
		if filter.Status != nil && lot.Status != *filter.Status {
			continue
		}
		out = append(out, lot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, filter.Limit, filter.Offset), nil
}

func (tx *transaction) ListProducts(_ context.Context, filter domain.ProductFilter) ([]domain.ProductLot, error) {
	out := make([]domain.ProductLot, 0, len(tx.state.products))
	for _, lot := range tx.state.products {
		if filter.Status != nil && lot.Status != *filter.Status {
			continue
		}
		out = append(out, lot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, filter.Limit, filter.Offset), nil
}

func (tx *transaction) Balance(_ context.Context, account domain.Account) (decimal.Decimal, error) {
	return tx.state.balances[account], nil
}

func (tx *transaction) Entries(_ context.Context, filter domain.EntryFilter) ([]domain.Entry, error) {
	var out []domain.Entry
	for _, list := range [][]domain.Entry{tx.state.entries, tx.appended} {
		for _, e := range list {
			if e.Seq <= filter.AfterSeq {
				continue
			}
			if filter.Kind != nil && e.Kind != *filter.Kind {
				continue
			}
			if filter.LotID != 0 && e.LotID != filter.LotID {
				continue
			}
			out = append(out, e)
			if filter.Limit > 0 && len(out) == filter.Limit {
				return out, nil
			}
		}
	}
	return out, nil
}

func (tx *transaction) SetAdministrator(_ context.Context, admin domain.Account) error {
	tx.state.admin = admin
	return nil
}

func (tx *transaction) GrantRole(_ context.Context, role domain.Role, holder domain.Account) error {
	tx.state.roles[domain.Grant{Role: role, Holder: holder}] = struct{}{}
	return nil
}

func (tx *transaction) RevokeRole(_ context.Context, role domain.Role, holder domain.Account) error {
	delete(tx.state.roles, domain.Grant{Role: role, Holder: holder})
	return nil
}

func (tx *transaction) CreateOrigin(_ context.Context, lot domain.OriginLot) error {
	if _, exists := tx.state.origins[lot.ID]; exists {
		return &domain.ConflictError{Lot: domain.LotOrigin, ID: int64(lot.ID)}
	}
	tx.state.origins[lot.ID] = lot
	return nil
}

func (tx *transaction) UpdateOrigin(_ context.Context, lot domain.OriginLot) error {
	if _, exists := tx.state.origins[lot.ID]; !exists {
		return &domain.NotFoundError{Lot: domain.LotOrigin, ID: int64(lot.ID)}
	}
	tx.state.origins[lot.ID] = lot
	return nil
}

func (tx *transaction) CreateProduct(_ context.Context, lot domain.ProductLot) error {
	if _, exists := tx.state.products[lot.ID]; exists {
		return &domain.ConflictError{Lot: domain.LotProduct, ID: int64(lot.ID)}
	}
	tx.state.products[lot.ID] = lot
	return nil
}

func (tx *transaction) UpdateProduct(_ context.Context, lot domain.ProductLot) error {
	if _, exists := tx.state.products[lot.ID]; !exists {
		return &domain.NotFoundError{Lot: domain.LotProduct, ID: int64(lot.ID)}
	}
	tx.state.products[lot.ID] = lot
	return nil
}

func (tx *transaction) Credit(_ context.Context, account domain.Account, amount decimal.Decimal) error {
	tx.state.balances[account] = tx.state.balances[account].Add(amount)
	return nil
}

func (tx *transaction) Transfer(_ context.Context, from, to domain.Account, amount decimal.Decimal) error {
	if tx.state.balances[from].LessThan(amount) {
		return domain.ErrInsufficientFunds
	}
	tx.state.balances[from] = tx.state.balances[from].Sub(amount)
	tx.state.balances[to] = tx.state.balances[to].Add(amount)
	return nil
}

func (tx *transaction) Append(_ context.Context, entry domain.Entry) (domain.Entry, error) {
	entry.Seq = int64(len(tx.state.entries)+len(tx.appended)) + 1
	tx.appended = append(tx.appended, entry)
	return entry, nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return items[:0]
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
