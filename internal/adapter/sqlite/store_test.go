package sqlite_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/neomorfeo/croptrace/internal/adapter/sqlite"
	"github.com/neomorfeo/croptrace/internal/domain"
)

// newTestStore creates an in-memory SQLite store for testing.
func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func mustUpdate(t *testing.T, store *sqlite.Store, fn func(domain.Tx) error) {
	t.Helper()
	if err := store.Update(context.Background(), fn); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
}

func mustView(t *testing.T, store *sqlite.Store, fn func(domain.View) error) {
	t.Helper()
	if err := store.View(context.Background(), fn); err != nil {
		t.Fatalf("View failed: %v", err)
	}
}

func newOrigin(id domain.OriginID) domain.OriginLot {
	return domain.NewOriginLot(id, "First bean", decimal.RequireFromString("0.01"),
		domain.Location{Latitude: "49.43", Longitude: "0.27"}, "farmer")
}

func TestCreateOrigin_And_GetOrigin(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	lot := newOrigin(1234)

	mustUpdate(t, store, func(tx domain.Tx) error { return tx.CreateOrigin(ctx, lot) })

	mustView(t, store, func(v domain.View) error {
		got, err := v.GetOrigin(ctx, 1234)
		if err != nil {
			return err
		}
		if got.Name != "First bean" {
			t.Errorf("Name = %q, want %q", got.Name, "First bean")
		}
		if !got.Price.Equal(decimal.RequireFromString("0.01")) {
			t.Errorf("Price = %s, want 0.01", got.Price)
		}
		if got.Status != domain.OriginPlanted {
			t.Errorf("Status = %q, want %q", got.Status, domain.OriginPlanted)
		}
		if got.Originator != "farmer" {
			t.Errorf("Originator = %q, want %q", got.Originator, "farmer")
		}
		if got.Location != lot.Location {
			t.Errorf("Location = %+v, want %+v", got.Location, lot.Location)
		}
		if !got.CreatedAt.Equal(lot.CreatedAt) {
			t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, lot.CreatedAt)
		}
		return nil
	})
}

func TestGetOrigin_NotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.View(ctx, func(v domain.View) error {
		_, err := v.GetOrigin(ctx, 99)
		return err
	})
	var nf *domain.NotFoundError
	if !errors.As(err, &nf) || nf.Lot != domain.LotOrigin || nf.ID != 99 {
		t.Errorf("expected origin NotFoundError for 99, got %v", err)
	}
}

func TestCreateOrigin_Duplicate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustUpdate(t, store, func(tx domain.Tx) error { return tx.CreateOrigin(ctx, newOrigin(1234)) })

	err := store.Update(ctx, func(tx domain.Tx) error { return tx.CreateOrigin(ctx, newOrigin(1234)) })
	if !errors.Is(err, domain.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestUpdate_RollsBackOnError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.Update(ctx, func(tx domain.Tx) error {
		if err := tx.CreateOrigin(ctx, newOrigin(1234)); err != nil {
			return err
		}
		if err := tx.Credit(ctx, "farmer", decimal.NewFromInt(3)); err != nil {
			return err
		}
		if _, err := tx.Append(ctx, domain.Entry{ID: "e-1", Kind: domain.EntryFundsDeposited}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	mustView(t, store, func(v domain.View) error {
		if _, err := v.GetOrigin(ctx, 1234); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound after rollback, got %v", err)
		}
		balance, err := v.Balance(ctx, "farmer")
		if err != nil {
			return err
		}
		if !balance.IsZero() {
			t.Errorf("balance = %s, want 0", balance)
		}
		entries, err := v.Entries(ctx, domain.EntryFilter{})
		if err != nil {
			return err
		}
		if len(entries) != 0 {
			t.Errorf("got %d entries, want 0", len(entries))
		}
		return nil
	})
}

func TestProduct_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	product := domain.NewProductLot(4321, "Our best tofu", decimal.RequireFromString("0.02"),
		domain.Location{Latitude: "48.85", Longitude: "2.35"}, "soyco", 1234)

	mustUpdate(t, store, func(tx domain.Tx) error {
		if err := tx.CreateOrigin(ctx, newOrigin(1234)); err != nil {
			return err
		}
		return tx.CreateProduct(ctx, product)
	})

	product.Status = domain.ProductOrdered
	product.Retailer = "shop"
	mustUpdate(t, store, func(tx domain.Tx) error { return tx.UpdateProduct(ctx, product) })

	mustView(t, store, func(v domain.View) error {
		got, err := v.GetProduct(ctx, 4321)
		if err != nil {
			return err
		}
		if got.Status != domain.ProductOrdered || got.Retailer != "shop" {
			t.Errorf("got %+v, want ordered by shop", got)
		}
		if got.SourceOriginID != 1234 || got.Manufacturer != "soyco" {
			t.Errorf("got %+v, want soyco product from origin 1234", got)
		}
		return nil
	})
}

func TestUpdateProduct_NotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.Update(ctx, func(tx domain.Tx) error {
		return tx.UpdateProduct(ctx, domain.ProductLot{ID: 99})
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTransfer(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustUpdate(t, store, func(tx domain.Tx) error {
		if err := tx.Credit(ctx, "buyer", decimal.RequireFromString("0.05")); err != nil {
			return err
		}
		return tx.Transfer(ctx, "buyer", "seller", decimal.RequireFromString("0.01"))
	})

	mustView(t, store, func(v domain.View) error {
		buyer, _ := v.Balance(ctx, "buyer")
		seller, _ := v.Balance(ctx, "seller")
		if !buyer.Equal(decimal.RequireFromString("0.04")) {
			t.Errorf("buyer = %s, want 0.04", buyer)
		}
		if !seller.Equal(decimal.RequireFromString("0.01")) {
			t.Errorf("seller = %s, want 0.01", seller)
		}
		return nil
	})

	err := store.Update(ctx, func(tx domain.Tx) error {
		return tx.Transfer(ctx, "seller", "buyer", decimal.NewFromInt(1))
	})
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestAdministratorAndRoles(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustView(t, store, func(v domain.View) error {
		admin, err := v.Administrator(ctx)
		if err != nil {
			return err
		}
		if !admin.IsZero() {
			t.Errorf("Administrator = %q before initialization, want empty", admin)
		}
		return nil
	})

	mustUpdate(t, store, func(tx domain.Tx) error {
		if err := tx.SetAdministrator(ctx, "admin"); err != nil {
			return err
		}
		if err := tx.GrantRole(ctx, domain.RoleRetailer, "shop"); err != nil {
			return err
		}
		// Granting twice is a no-op.
		return tx.GrantRole(ctx, domain.RoleRetailer, "shop")
	})

	mustView(t, store, func(v domain.View) error {
		admin, _ := v.Administrator(ctx)
		if admin != "admin" {
			t.Errorf("Administrator = %q, want %q", admin, "admin")
		}
		held, _ := v.HasRole(ctx, domain.RoleRetailer, "shop")
		if !held {
			t.Error("shop should hold RETAILER")
		}
		return nil
	})

	mustUpdate(t, store, func(tx domain.Tx) error { return tx.RevokeRole(ctx, domain.RoleRetailer, "shop") })
	mustView(t, store, func(v domain.View) error {
		held, _ := v.HasRole(ctx, domain.RoleRetailer, "shop")
		if held {
			t.Error("shop should not hold RETAILER after revoke")
		}
		return nil
	})
}

func TestEntries_DetailsAndFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	settlement := &domain.Settlement{
		Payer:    "soyco",
		Payee:    "farmer",
		Price:    decimal.RequireFromString("0.01"),
		Attached: decimal.RequireFromString("0.05"),
		Refund:   decimal.RequireFromString("0.04"),
	}
	mustUpdate(t, store, func(tx domain.Tx) error {
		for i, e := range []domain.Entry{
			{ID: "e-1", Kind: domain.EntryRoleGranted, Event: "grant", Actor: "admin",
				Grant: &domain.Grant{Role: domain.RoleManufacturer, Holder: "soyco"}},
			{ID: "e-2", Kind: domain.EntryOriginTransitioned, LotID: 1234, Event: "order",
				State: "ordered", Actor: "soyco", Settlement: settlement},
			{ID: "e-3", Kind: domain.EntryOriginTransitioned, LotID: 77, Event: "plant",
				State: "planted", Actor: "farmer"},
		} {
			got, err := tx.Append(ctx, e)
			if err != nil {
				return err
			}
			if got.Seq != int64(i+1) {
				t.Errorf("Seq = %d, want %d", got.Seq, i+1)
			}
		}
		return nil
	})

	mustView(t, store, func(v domain.View) error {
		kind := domain.EntryOriginTransitioned
		entries, err := v.Entries(ctx, domain.EntryFilter{Kind: &kind, LotID: 1234})
		if err != nil {
			return err
		}
		if len(entries) != 1 {
			t.Fatalf("got %d entries, want 1", len(entries))
		}
		got := entries[0].Settlement
		if got == nil || got.Payee != "farmer" || !got.Refund.Equal(settlement.Refund) {
			t.Errorf("Settlement = %+v, want %+v", got, settlement)
		}

		all, err := v.Entries(ctx, domain.EntryFilter{AfterSeq: 1, Limit: 1})
		if err != nil {
			return err
		}
		if len(all) != 1 || all[0].ID != "e-2" {
			t.Errorf("AfterSeq=1 Limit=1 returned %+v, want e-2", all)
		}

		grants, err := v.Entries(ctx, domain.EntryFilter{Limit: 1})
		if err != nil {
			return err
		}
		if len(grants) != 1 || grants[0].Grant == nil || grants[0].Grant.Holder != "soyco" {
			t.Errorf("first entry = %+v, want soyco grant", grants)
		}
		return nil
	})
}

func TestListOrigins_FilterAndPagination(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustUpdate(t, store, func(tx domain.Tx) error {
		for id := domain.OriginID(1); id <= 5; id++ {
			lot := newOrigin(id)
			if id%2 == 0 {
				lot.Status = domain.OriginRipe
			}
			if err := tx.CreateOrigin(ctx, lot); err != nil {
				return err
			}
		}
		return nil
	})

	mustView(t, store, func(v domain.View) error {
		ripe := domain.OriginRipe
		lots, err := v.ListOrigins(ctx, domain.OriginFilter{Status: &ripe})
		if err != nil {
			return err
		}
		if len(lots) != 2 {
			t.Errorf("got %d ripe lots, want 2", len(lots))
		}

		lots, err = v.ListOrigins(ctx, domain.OriginFilter{Limit: 2, Offset: 1})
		if err != nil {
			return err
		}
		if len(lots) != 2 || lots[0].ID != 2 || lots[1].ID != 3 {
			t.Errorf("page = %+v, want ids 2 and 3", lots)
		}

		lots, err = v.ListOrigins(ctx, domain.OriginFilter{Offset: 3})
		if err != nil {
			return err
		}
		if len(lots) != 2 || lots[0].ID != 4 {
			t.Errorf("offset-only page = %+v, want ids 4 and 5", lots)
		}
		return nil
	})
}
