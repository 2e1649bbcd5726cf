package app_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/neomorfeo/croptrace/internal/adapter/fsm"
	"github.com/neomorfeo/croptrace/internal/adapter/memory"
	"github.com/neomorfeo/croptrace/internal/app"
	"github.com/neomorfeo/croptrace/internal/domain"
)

// --- Mocks ---

type mockPublisher struct {
	entries []domain.Entry
	err     error
}

func (m *mockPublisher) Publish(_ context.Context, e domain.Entry) error {
	m.entries = append(m.entries, e)
	return m.err
}

// refundBlockingStore rejects every transfer from escrow back to blocked.
type refundBlockingStore struct {
	*memory.Store
	blocked domain.Account
}

func (s *refundBlockingStore) Update(ctx context.Context, fn func(domain.Tx) error) error {
	return s.Store.Update(ctx, func(tx domain.Tx) error {
		return fn(&refundBlockingTx{Tx: tx, blocked: s.blocked})
	})
}

type refundBlockingTx struct {
	domain.Tx
	blocked domain.Account
}

func (tx *refundBlockingTx) Transfer(ctx context.Context, from, to domain.Account, amount decimal.Decimal) error {
	if from == domain.EscrowAccount && to == tx.blocked {
		return errors.New("account rejects incoming transfers")
	}
	return tx.Tx.Transfer(ctx, from, to, amount)
}

// --- Fixtures ---

const (
	admin    domain.Account = "admin"
	farmer   domain.Account = "farmer"
	soyco    domain.Account = "soyco"
	trucker  domain.Account = "trucker"
	shop     domain.Account = "shop"
	alice    domain.Account = "alice"
	stranger domain.Account = "stranger"
)

var here = domain.Location{Latitude: "49.43", Longitude: "0.27"}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newService(t *testing.T, store domain.Store) (*app.LedgerService, *mockPublisher) {
	t.Helper()
	pub := &mockPublisher{}
	svc := app.NewLedgerService(store, app.Validators{
		Origin:  fsm.NewOriginValidator(),
		Product: fsm.NewProductValidator(),
	}, pub)
	if err := svc.Initialize(context.Background(), admin); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	return svc, pub
}

// newSupplyChain returns a ledger with every participant holding its role
// and the buyers funded with 1.
func newSupplyChain(t *testing.T) (*app.LedgerService, *mockPublisher) {
	t.Helper()
	return newSupplyChainOn(t, memory.New())
}

func newSupplyChainOn(t *testing.T, store domain.Store) (*app.LedgerService, *mockPublisher) {
	t.Helper()
	svc, pub := newService(t, store)
	ctx := context.Background()
	for _, g := range []domain.Grant{
		{Role: domain.RoleOriginProducer, Holder: farmer},
		{Role: domain.RoleManufacturer, Holder: soyco},
		{Role: domain.RoleDistributor, Holder: trucker},
		{Role: domain.RoleRetailer, Holder: shop},
		{Role: domain.RoleConsumer, Holder: alice},
	} {
		if err := svc.Grant(ctx, admin, g.Role, g.Holder); err != nil {
			t.Fatalf("Grant(%s, %s) failed: %v", g.Role, g.Holder, err)
		}
	}
	for _, acct := range []domain.Account{soyco, shop, alice} {
		if err := svc.Deposit(ctx, admin, acct, dec("1")); err != nil {
			t.Fatalf("Deposit(%s) failed: %v", acct, err)
		}
	}
	return svc, pub
}

// deliveredOrigin plants lot 1234 and walks it to delivered with an order
// attaching 0.05 for a price of 0.01.
func deliveredOrigin(t *testing.T, svc *app.LedgerService) {
	t.Helper()
	ctx := context.Background()
	if _, err := svc.Plant(ctx, farmer, 1234, "First bean", dec("0.01"), here); err != nil {
		t.Fatalf("Plant failed: %v", err)
	}
	steps := []struct {
		name string
		fn   func() (domain.OriginLot, error)
	}{
		{"check", func() (domain.OriginLot, error) { return svc.Check(ctx, farmer, 1234) }},
		{"harvest", func() (domain.OriginLot, error) { return svc.Harvest(ctx, farmer, 1234) }},
		{"order", func() (domain.OriginLot, error) { return svc.Order(ctx, soyco, 1234, dec("0.05")) }},
		{"ship", func() (domain.OriginLot, error) { return svc.Ship(ctx, farmer, 1234) }},
		{"fetch", func() (domain.OriginLot, error) { return svc.Fetch(ctx, trucker, 1234) }},
		{"deliver", func() (domain.OriginLot, error) { return svc.Deliver(ctx, trucker, 1234) }},
	}
	for _, s := range steps {
		if _, err := s.fn(); err != nil {
			t.Fatalf("%s failed: %v", s.name, err)
		}
	}
}

func assertBalance(t *testing.T, svc *app.LedgerService, acct domain.Account, want string) {
	t.Helper()
	got, err := svc.Balance(context.Background(), acct)
	if err != nil {
		t.Fatalf("Balance(%s) failed: %v", acct, err)
	}
	if !got.Equal(dec(want)) {
		t.Errorf("Balance(%s) = %s, want %s", acct, got, want)
	}
}

// --- Tests ---

func TestSupplyChain_FullScenario(t *testing.T) {
	svc, pub := newSupplyChain(t)
	ctx := context.Background()

	deliveredOrigin(t, svc)
	assertBalance(t, svc, farmer, "0.01")
	assertBalance(t, svc, soyco, "0.99")

	product, err := svc.Produce(ctx, soyco, 4321, "Our best tofu", dec("0.02"), here, 1234)
	if err != nil {
		t.Fatalf("Produce failed: %v", err)
	}
	if product.Status != domain.ProductProduced || product.SourceOriginID != 1234 {
		t.Errorf("product = %+v, want produced from origin 1234", product)
	}

	origin, err := svc.GetOrigin(ctx, 1234)
	if err != nil {
		t.Fatalf("GetOrigin failed: %v", err)
	}
	if origin.Status != domain.OriginConsumed || origin.ProducedProductID != 4321 {
		t.Errorf("origin = %+v, want consumed into 4321", origin)
	}
	if origin.Buyer != soyco || origin.Distributor != trucker {
		t.Errorf("origin buyer/distributor = %s/%s, want %s/%s", origin.Buyer, origin.Distributor, soyco, trucker)
	}

	if _, err := svc.OrderProduct(ctx, shop, 4321, dec("0.02")); err != nil {
		t.Fatalf("OrderProduct failed: %v", err)
	}
	if _, err := svc.ShipProduct(ctx, soyco, 4321); err != nil {
		t.Fatalf("ShipProduct failed: %v", err)
	}
	if _, err := svc.FetchProduct(ctx, trucker, 4321); err != nil {
		t.Fatalf("FetchProduct failed: %v", err)
	}
	if _, err := svc.DeliverProduct(ctx, trucker, 4321); err != nil {
		t.Fatalf("DeliverProduct failed: %v", err)
	}
	onSale, err := svc.PutOnSale(ctx, shop, 4321, dec("0.04"))
	if err != nil {
		t.Fatalf("PutOnSale failed: %v", err)
	}
	if !onSale.Price.Equal(dec("0.04")) {
		t.Errorf("retail price = %s, want 0.04", onSale.Price)
	}
	sold, err := svc.Buy(ctx, alice, 4321, dec("0.04"))
	if err != nil {
		t.Fatalf("Buy failed: %v", err)
	}
	if sold.Status != domain.ProductSold || sold.Buyer != alice {
		t.Errorf("sold = %+v, want sold to alice", sold)
	}

	assertBalance(t, svc, farmer, "0.01")
	assertBalance(t, svc, soyco, "1.01")
	assertBalance(t, svc, shop, "1.02")
	assertBalance(t, svc, alice, "0.96")
	assertBalance(t, svc, domain.EscrowAccount, "0")

	entries, err := svc.Entries(ctx, domain.EntryFilter{})
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	// 5 grants, 3 deposits, 7 origin steps, 2 produce entries, 6 product steps.
	if len(entries) != 23 {
		t.Fatalf("got %d entries, want 23", len(entries))
	}
	for i, e := range entries {
		if e.Seq != int64(i+1) {
			t.Errorf("entry %d Seq = %d, want %d", i, e.Seq, i+1)
		}
		if e.ID == "" {
			t.Errorf("entry %d has no ID", i)
		}
	}
	if len(pub.entries) != len(entries) {
		t.Errorf("published %d entries, want %d", len(pub.entries), len(entries))
	}
}

func TestOrder_SettlesThroughEscrow(t *testing.T) {
	svc, _ := newSupplyChain(t)
	ctx := context.Background()

	deliveredOrigin(t, svc)

	entries, err := svc.Entries(ctx, domain.EntryFilter{LotID: 1234})
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	var order *domain.Entry
	for i := range entries {
		if entries[i].Event == string(domain.OriginEventOrder) {
			order = &entries[i]
		}
	}
	if order == nil || order.Settlement == nil {
		t.Fatalf("order entry with settlement not found in %+v", entries)
	}
	s := order.Settlement
	if s.Payer != soyco || s.Payee != farmer {
		t.Errorf("settlement parties = %s -> %s, want %s -> %s", s.Payer, s.Payee, soyco, farmer)
	}
	if !s.Price.Equal(dec("0.01")) || !s.Attached.Equal(dec("0.05")) || !s.Refund.Equal(dec("0.04")) {
		t.Errorf("settlement = %+v, want price 0.01 attached 0.05 refund 0.04", s)
	}
	if order.State != string(domain.OriginOrdered) {
		t.Errorf("entry state = %q, want %q", order.State, domain.OriginOrdered)
	}
}

func TestPlant_Duplicate(t *testing.T) {
	svc, _ := newSupplyChain(t)
	ctx := context.Background()

	if _, err := svc.Plant(ctx, farmer, 1234, "First bean", dec("0.01"), here); err != nil {
		t.Fatalf("Plant failed: %v", err)
	}
	_, err := svc.Plant(ctx, farmer, 1234, "Second bean", dec("0.02"), here)
	if !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	lot, _ := svc.GetOrigin(ctx, 1234)
	if lot.Name != "First bean" {
		t.Errorf("Name = %q, want the first plant to win", lot.Name)
	}
}

func TestPlant_RequiresRole(t *testing.T) {
	svc, pub := newSupplyChain(t)
	published := len(pub.entries)

	_, err := svc.Plant(context.Background(), stranger, 1, "Bean", dec("0.01"), here)
	var authErr *domain.AuthorizationError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthorizationError, got %v", err)
	}
	if authErr.Role != domain.RoleOriginProducer {
		t.Errorf("Role = %s, want %s", authErr.Role, domain.RoleOriginProducer)
	}
	if len(pub.entries) != published {
		t.Error("rejected operation must not publish")
	}
}

func TestPlant_InvalidArguments(t *testing.T) {
	svc, _ := newSupplyChain(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		id    domain.OriginID
		lot   string
		price string
	}{
		{"zero id", 0, "Bean", "0.01"},
		{"negative id", -1, "Bean", "0.01"},
		{"empty name", 1, "  ", "0.01"},
		{"negative price", 1, "Bean", "-0.01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Plant(ctx, farmer, tt.id, tt.lot, dec(tt.price), here)
			if !errors.Is(err, domain.ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument, got %v", err)
			}
		})
	}
}

func TestCheck_RequiresOriginator(t *testing.T) {
	svc, _ := newSupplyChain(t)
	ctx := context.Background()

	if err := svc.Grant(ctx, admin, domain.RoleOriginProducer, "neighbour"); err != nil {
		t.Fatalf("Grant failed: %v", err)
	}
	if _, err := svc.Plant(ctx, farmer, 1234, "First bean", dec("0.01"), here); err != nil {
		t.Fatalf("Plant failed: %v", err)
	}

	_, err := svc.Check(ctx, "neighbour", 1234)
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	lot, _ := svc.GetOrigin(ctx, 1234)
	if lot.Status != domain.OriginPlanted {
		t.Errorf("Status = %q, want %q", lot.Status, domain.OriginPlanted)
	}
}

func TestHarvest_InvalidTransitionLeavesLotUnchanged(t *testing.T) {
	svc, _ := newSupplyChain(t)
	ctx := context.Background()

	if _, err := svc.Plant(ctx, farmer, 1234, "First bean", dec("0.01"), here); err != nil {
		t.Fatalf("Plant failed: %v", err)
	}
	before, _ := svc.GetOrigin(ctx, 1234)

	_, err := svc.Harvest(ctx, farmer, 1234)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	var trErr *domain.TransitionError
	if !errors.As(err, &trErr) || trErr.Lot != domain.LotOrigin || trErr.ID != 1234 {
		t.Errorf("error = %v, want origin lot 1234 context", err)
	}

	after, _ := svc.GetOrigin(ctx, 1234)
	if after != before {
		t.Errorf("lot changed after rejected transition: %+v -> %+v", before, after)
	}
}

func TestDeliver_BeforeFetchIsInvalidTransition(t *testing.T) {
	svc, _ := newSupplyChain(t)
	ctx := context.Background()

	if _, err := svc.Plant(ctx, farmer, 1234, "First bean", dec("0.01"), here); err != nil {
		t.Fatalf("Plant failed: %v", err)
	}

	// No distributor is on record yet, so the state decides the error.
	for _, caller := range []domain.Account{trucker, farmer} {
		if _, err := svc.Deliver(ctx, caller, 1234); !errors.Is(err, domain.ErrInvalidTransition) {
			t.Errorf("Deliver by %s: expected ErrInvalidTransition, got %v", caller, err)
		}
	}
	lot, _ := svc.GetOrigin(ctx, 1234)
	if lot.Status != domain.OriginPlanted {
		t.Errorf("Status = %q, want %q", lot.Status, domain.OriginPlanted)
	}
}

func TestProductSteps_BeforeOrderAreInvalidTransitions(t *testing.T) {
	svc, _ := newSupplyChain(t)
	ctx := context.Background()

	deliveredOrigin(t, svc)
	if _, err := svc.Produce(ctx, soyco, 4321, "Our best tofu", dec("0.02"), here, 1234); err != nil {
		t.Fatalf("Produce failed: %v", err)
	}

	if _, err := svc.PutOnSale(ctx, shop, 4321, dec("0.04")); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("PutOnSale: expected ErrInvalidTransition, got %v", err)
	}
	if _, err := svc.DeliverProduct(ctx, trucker, 4321); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("DeliverProduct: expected ErrInvalidTransition, got %v", err)
	}
	lot, _ := svc.GetProduct(ctx, 4321)
	if lot.Status != domain.ProductProduced {
		t.Errorf("Status = %q, want %q", lot.Status, domain.ProductProduced)
	}
}

func TestOperations_UnknownLot(t *testing.T) {
	svc, _ := newSupplyChain(t)
	ctx := context.Background()

	if _, err := svc.Harvest(ctx, farmer, 99); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Harvest: expected ErrNotFound, got %v", err)
	}
	if _, err := svc.GetOrigin(ctx, 99); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetOrigin: expected ErrNotFound, got %v", err)
	}
	if _, err := svc.ShipProduct(ctx, soyco, 99); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("ShipProduct: expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Produce(ctx, soyco, 1, "Tofu", dec("0.02"), here, 99); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Produce: expected ErrNotFound, got %v", err)
	}
}

func TestOrder_UnderpaymentRejected(t *testing.T) {
	svc, _ := newSupplyChain(t)
	ctx := context.Background()

	if _, err := svc.Plant(ctx, farmer, 1234, "First bean", dec("0.01"), here); err != nil {
		t.Fatalf("Plant failed: %v", err)
	}
	_, _ = svc.Check(ctx, farmer, 1234)
	_, _ = svc.Harvest(ctx, farmer, 1234)

	_, err := svc.Order(ctx, soyco, 1234, dec("0.005"))
	var payErr *domain.PaymentError
	if !errors.As(err, &payErr) {
		t.Fatalf("expected PaymentError, got %v", err)
	}
	if payErr.Reason != domain.PaymentBelowPrice {
		t.Errorf("Reason = %q, want %q", payErr.Reason, domain.PaymentBelowPrice)
	}

	lot, _ := svc.GetOrigin(ctx, 1234)
	if lot.Status != domain.OriginHarvested || lot.Buyer != "" {
		t.Errorf("lot = %+v, want unchanged harvested lot", lot)
	}
	assertBalance(t, svc, soyco, "1")
	assertBalance(t, svc, farmer, "0")
}

func TestOrder_PayerBalanceTooLow(t *testing.T) {
	svc, _ := newSupplyChain(t)
	ctx := context.Background()

	if _, err := svc.Plant(ctx, farmer, 1234, "First bean", dec("0.01"), here); err != nil {
		t.Fatalf("Plant failed: %v", err)
	}
	_, _ = svc.Check(ctx, farmer, 1234)
	_, _ = svc.Harvest(ctx, farmer, 1234)

	_, err := svc.Order(ctx, soyco, 1234, dec("5"))
	var payErr *domain.PaymentError
	if !errors.As(err, &payErr) || payErr.Reason != domain.PaymentPayerBalance {
		t.Fatalf("expected payer balance PaymentError, got %v", err)
	}
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Error("PaymentError should wrap ErrInsufficientFunds")
	}
	assertBalance(t, svc, soyco, "1")
}

func TestOrder_RefundFailureRollsBack(t *testing.T) {
	store := &refundBlockingStore{Store: memory.New(), blocked: soyco}
	svc, _ := newSupplyChainOn(t, store)
	ctx := context.Background()

	if _, err := svc.Plant(ctx, farmer, 1234, "First bean", dec("0.01"), here); err != nil {
		t.Fatalf("Plant failed: %v", err)
	}
	_, _ = svc.Check(ctx, farmer, 1234)
	_, _ = svc.Harvest(ctx, farmer, 1234)

	_, err := svc.Order(ctx, soyco, 1234, dec("0.05"))
	var payErr *domain.PaymentError
	if !errors.As(err, &payErr) || payErr.Reason != domain.PaymentRefundUndeliverable {
		t.Fatalf("expected refund PaymentError, got %v", err)
	}

	lot, _ := svc.GetOrigin(ctx, 1234)
	if lot.Status != domain.OriginHarvested {
		t.Errorf("Status = %q, want %q", lot.Status, domain.OriginHarvested)
	}
	assertBalance(t, svc, soyco, "1")
	assertBalance(t, svc, farmer, "0")
	assertBalance(t, svc, domain.EscrowAccount, "0")

	// An exact payment needs no refund and goes through.
	if _, err := svc.Order(ctx, soyco, 1234, dec("0.01")); err != nil {
		t.Fatalf("exact Order failed: %v", err)
	}
	assertBalance(t, svc, farmer, "0.01")
}

func TestUnpaidOperation_RejectsValue(t *testing.T) {
	svc, _ := newSupplyChain(t)
	ctx := context.Background()

	if _, err := svc.Plant(ctx, farmer, 1234, "First bean", dec("0.01"), here); err != nil {
		t.Fatalf("Plant failed: %v", err)
	}
	_, err := svc.AdvanceOrigin(ctx, farmer, 1234, domain.OriginEventCheck, dec("0.01"))
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
	_, err = svc.AdvanceOrigin(ctx, farmer, 1234, domain.OriginEventConsume, decimal.Zero)
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("consume: expected ErrInvalidArgument, got %v", err)
	}
}

func TestRevoke_RemovesCapability(t *testing.T) {
	svc, _ := newSupplyChain(t)
	ctx := context.Background()

	if err := svc.Revoke(ctx, admin, domain.RoleOriginProducer, farmer); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	held, err := svc.HasRole(ctx, domain.RoleOriginProducer, farmer)
	if err != nil {
		t.Fatalf("HasRole failed: %v", err)
	}
	if held {
		t.Error("farmer still holds ORIGIN_PRODUCER after revoke")
	}

	_, err = svc.Plant(ctx, farmer, 1, "Bean", dec("0.01"), here)
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}

	// Revoking again is accepted.
	if err := svc.Revoke(ctx, admin, domain.RoleOriginProducer, farmer); err != nil {
		t.Errorf("second Revoke failed: %v", err)
	}
	revoked := domain.EntryRoleRevoked
	entries, _ := svc.Entries(ctx, domain.EntryFilter{Kind: &revoked})
	if len(entries) != 2 {
		t.Errorf("got %d revoke entries, want 2", len(entries))
	}
}

func TestGrant_RequiresAdministrator(t *testing.T) {
	svc, _ := newSupplyChain(t)
	ctx := context.Background()

	err := svc.Grant(ctx, farmer, domain.RoleConsumer, stranger)
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
	err = svc.Grant(ctx, admin, domain.Role("MAYOR"), stranger)
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for unknown role, got %v", err)
	}
}

func TestDeposit_AdminRoleHolder(t *testing.T) {
	svc, _ := newSupplyChain(t)
	ctx := context.Background()

	if err := svc.Deposit(ctx, stranger, alice, dec("1")); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := svc.Grant(ctx, admin, domain.RoleAdmin, "treasurer"); err != nil {
		t.Fatalf("Grant failed: %v", err)
	}
	if err := svc.Deposit(ctx, "treasurer", alice, dec("0.5")); err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}
	assertBalance(t, svc, alice, "1.5")

	if err := svc.Deposit(ctx, admin, alice, decimal.Zero); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for zero deposit, got %v", err)
	}
	if err := svc.Deposit(ctx, admin, domain.EscrowAccount, dec("1")); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for escrow deposit, got %v", err)
	}
}

func TestInitialize_AdministratorMismatch(t *testing.T) {
	store := memory.New()
	svc, _ := newService(t, store)

	if err := svc.Initialize(context.Background(), admin); err != nil {
		t.Errorf("re-initializing with the same administrator failed: %v", err)
	}
	err := svc.Initialize(context.Background(), "usurper")
	if !errors.Is(err, domain.ErrAdministratorMismatch) {
		t.Errorf("expected ErrAdministratorMismatch, got %v", err)
	}
}

func TestProduce_RequiresDeliveredOrigin(t *testing.T) {
	svc, _ := newSupplyChain(t)
	ctx := context.Background()

	if _, err := svc.Plant(ctx, farmer, 1234, "First bean", dec("0.01"), here); err != nil {
		t.Fatalf("Plant failed: %v", err)
	}
	_, err := svc.Produce(ctx, soyco, 4321, "Our best tofu", dec("0.02"), here, 1234)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if _, err := svc.GetProduct(ctx, 4321); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("product must not exist after rejected produce, got %v", err)
	}
}

func TestProduce_ExistingProductLeavesOriginDelivered(t *testing.T) {
	svc, _ := newSupplyChain(t)
	ctx := context.Background()

	deliveredOrigin(t, svc)
	if _, err := svc.Plant(ctx, farmer, 77, "Other bean", dec("0.01"), here); err != nil {
		t.Fatalf("Plant failed: %v", err)
	}
	_, _ = svc.Check(ctx, farmer, 77)
	_, _ = svc.Harvest(ctx, farmer, 77)
	_, _ = svc.Order(ctx, soyco, 77, dec("0.01"))
	_, _ = svc.Ship(ctx, farmer, 77)
	_, _ = svc.Fetch(ctx, trucker, 77)
	_, _ = svc.Deliver(ctx, trucker, 77)

	if _, err := svc.Produce(ctx, soyco, 4321, "Our best tofu", dec("0.02"), here, 1234); err != nil {
		t.Fatalf("Produce failed: %v", err)
	}
	_, err := svc.Produce(ctx, soyco, 4321, "Copycat tofu", dec("0.02"), here, 77)
	if !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	origin, _ := svc.GetOrigin(ctx, 77)
	if origin.Status != domain.OriginDelivered || origin.ProducedProductID != 0 {
		t.Errorf("origin 77 = %+v, want untouched delivered lot", origin)
	}
}

func TestProduct_NoReversalAfterSold(t *testing.T) {
	svc, _ := newSupplyChain(t)
	ctx := context.Background()

	deliveredOrigin(t, svc)
	_, _ = svc.Produce(ctx, soyco, 4321, "Our best tofu", dec("0.02"), here, 1234)
	_, _ = svc.OrderProduct(ctx, shop, 4321, dec("0.02"))
	_, _ = svc.ShipProduct(ctx, soyco, 4321)
	_, _ = svc.FetchProduct(ctx, trucker, 4321)
	_, _ = svc.DeliverProduct(ctx, trucker, 4321)
	_, _ = svc.PutOnSale(ctx, shop, 4321, dec("0.04"))
	if _, err := svc.Buy(ctx, alice, 4321, dec("0.04")); err != nil {
		t.Fatalf("Buy failed: %v", err)
	}

	if _, err := svc.Buy(ctx, alice, 4321, dec("0.04")); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("second Buy: expected ErrInvalidTransition, got %v", err)
	}
	if _, err := svc.PutOnSale(ctx, shop, 4321, dec("0.01")); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("PutOnSale after sold: expected ErrInvalidTransition, got %v", err)
	}
	assertBalance(t, svc, alice, "0.96")
}

func TestPutOnSale_RequiresRetailerOnRecord(t *testing.T) {
	svc, _ := newSupplyChain(t)
	ctx := context.Background()

	deliveredOrigin(t, svc)
	_, _ = svc.Produce(ctx, soyco, 4321, "Our best tofu", dec("0.02"), here, 1234)
	_, _ = svc.OrderProduct(ctx, shop, 4321, dec("0.02"))
	_, _ = svc.ShipProduct(ctx, soyco, 4321)
	_, _ = svc.FetchProduct(ctx, trucker, 4321)
	_, _ = svc.DeliverProduct(ctx, trucker, 4321)

	if _, err := svc.PutOnSale(ctx, soyco, 4321, dec("0.04")); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
	_, err := svc.AdvanceProduct(ctx, shop, 4321, domain.ProductEventPutOnSale, decimal.Zero, nil)
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("missing retail price: expected ErrInvalidArgument, got %v", err)
	}
}

func TestPublishFailure_DoesNotRejectOperation(t *testing.T) {
	store := memory.New()
	pub := &mockPublisher{err: errors.New("queue down")}
	svc := app.NewLedgerService(store, app.Validators{
		Origin:  fsm.NewOriginValidator(),
		Product: fsm.NewProductValidator(),
	}, pub)
	ctx := context.Background()

	if err := svc.Initialize(ctx, admin); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := svc.Grant(ctx, admin, domain.RoleConsumer, alice); err != nil {
		t.Fatalf("Grant failed: %v", err)
	}
	held, _ := svc.HasRole(ctx, domain.RoleConsumer, alice)
	if !held {
		t.Error("grant must stay committed when publishing fails")
	}
	if len(pub.entries) != 1 {
		t.Errorf("publish attempts = %d, want 1", len(pub.entries))
	}
}

func TestListOrigins_ByStatus(t *testing.T) {
	svc, _ := newSupplyChain(t)
	ctx := context.Background()

	for id := domain.OriginID(1); id <= 3; id++ {
		if _, err := svc.Plant(ctx, farmer, id, "Bean", dec("0.01"), here); err != nil {
			t.Fatalf("Plant(%d) failed: %v", id, err)
		}
	}
	_, _ = svc.Check(ctx, farmer, 2)

	ripe := domain.OriginRipe
	lots, err := svc.ListOrigins(ctx, domain.OriginFilter{Status: &ripe})
	if err != nil {
		t.Fatalf("ListOrigins failed: %v", err)
	}
	if len(lots) != 1 || lots[0].ID != 2 {
		t.Errorf("ripe lots = %+v, want only lot 2", lots)
	}
}
