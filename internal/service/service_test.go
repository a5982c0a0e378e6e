package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"sipim/backend/internal/clock"
	"sipim/backend/internal/domain"
	"sipim/backend/internal/store"
	"sipim/backend/internal/store/memory"
)

var testClock = clock.Fixed{At: time.Date(2026, time.September, 1, 14, 30, 5, 0, time.UTC)}

type fixture struct {
	svc     *Service
	repo    *memory.Store
	owner   domain.Actor
	cashier domain.Actor
}

func newFixture(t *testing.T, trustClientTotal bool) *fixture {
	t.Helper()

	repo := memory.New()
	ctx := context.Background()

	owner, err := repo.CreateUser(ctx, domain.UserAccount{
		Name: "Owner", Email: "owner@sipim.test", Password: "hash", Role: domain.RoleOwner, Active: true,
	})
	if err != nil {
		t.Fatalf("seed owner: %v", err)
	}
	cashier, err := repo.CreateUser(ctx, domain.UserAccount{
		Name: "Kasir", Email: "kasir@sipim.test", Password: "hash", Role: domain.RoleCashier, Active: true,
	})
	if err != nil {
		t.Fatalf("seed cashier: %v", err)
	}

	return &fixture{
		svc:     New(repo, nil, testClock, trustClientTotal, time.Minute),
		repo:    repo,
		owner:   domain.Actor{UserID: owner.ID, Name: owner.Name, Email: owner.Email, Role: owner.Role},
		cashier: domain.Actor{UserID: cashier.ID, Name: cashier.Name, Email: cashier.Email, Role: cashier.Role},
	}
}

func (f *fixture) ownerCtx() context.Context {
	return WithActor(context.Background(), f.owner)
}

func (f *fixture) cashierCtx() context.Context {
	return WithActor(context.Background(), f.cashier)
}

func (f *fixture) seedProduct(t *testing.T, name string, priceCents int64, stock int) domain.Product {
	t.Helper()
	p, err := f.repo.CreateProduct(context.Background(), domain.Product{
		Name: name, Category: "Grocery", PriceCents: priceCents, Stock: stock,
	})
	if err != nil {
		t.Fatalf("seed product %s: %v", name, err)
	}
	return *p
}

func TestCheckoutCommitsSaleAndDecrementsStock(t *testing.T) {
	f := newFixture(t, false)
	mie := f.seedProduct(t, "Mie Goreng", 3500, 10)
	kopi := f.seedProduct(t, "Kopi Sachet", 2600, 5)

	receipt, err := f.svc.Checkout(f.cashierCtx(), domain.CheckoutRequest{
		Items: []domain.CartLine{
			{ProductID: mie.ID, Quantity: 2, PriceCents: 3500},
			{ProductID: kopi.ID, Quantity: 1, PriceCents: 2600},
		},
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	if receipt.TotalCents != 9600 || receipt.SubtotalCents != 9600 || receipt.TaxCents != 0 {
		t.Fatalf("unexpected totals: %+v", receipt)
	}
	if receipt.Date != "2026-09-01" || receipt.Time != "14:30:05" {
		t.Fatalf("receipt must carry server clock date/time, got %s %s", receipt.Date, receipt.Time)
	}

	tx, err := f.svc.GetTransaction(f.cashierCtx(), receipt.TransactionID)
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	if tx.CashierID != f.cashier.UserID || len(tx.Items) != 2 {
		t.Fatalf("unexpected transaction: %+v", tx)
	}

	after, err := f.svc.GetProduct(f.cashierCtx(), mie.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if after.Stock != 8 || after.Sold != 2 {
		t.Fatalf("expected stock 8 sold 2, got stock %d sold %d", after.Stock, after.Sold)
	}
}

func TestCheckoutReportsAllShortLinesAndCommitsNothing(t *testing.T) {
	f := newFixture(t, false)
	mie := f.seedProduct(t, "Mie Goreng", 3500, 2)
	kopi := f.seedProduct(t, "Kopi Sachet", 2600, 1)
	teh := f.seedProduct(t, "Teh Celup", 9800, 50)

	_, err := f.svc.Checkout(f.cashierCtx(), domain.CheckoutRequest{
		Items: []domain.CartLine{
			{ProductID: mie.ID, Quantity: 5, PriceCents: 3500},
			{ProductID: kopi.ID, Quantity: 3, PriceCents: 2600},
			{ProductID: teh.ID, Quantity: 1, PriceCents: 9800},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock error, got %v", err)
	}

	var shortage *store.ShortageError
	if !errors.As(err, &shortage) {
		t.Fatalf("expected typed shortage error, got %T", err)
	}
	if len(shortage.Shortages) != 2 {
		t.Fatalf("expected both short lines reported, got %+v", shortage.Shortages)
	}

	for _, p := range []domain.Product{mie, kopi, teh} {
		after, err := f.svc.GetProduct(f.cashierCtx(), p.ID)
		if err != nil {
			t.Fatalf("get product: %v", err)
		}
		if after.Stock != p.Stock || after.Sold != p.Sold {
			t.Fatalf("failed checkout must not mutate %s: %+v", p.Name, after)
		}
	}

	page, err := f.svc.ListTransactions(f.cashierCtx(), domain.TransactionFilter{})
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if page.Total != 0 {
		t.Fatalf("expected empty ledger, got %d transactions", page.Total)
	}
}

func TestCheckoutAggregatesDuplicateCartLines(t *testing.T) {
	f := newFixture(t, false)
	mie := f.seedProduct(t, "Mie Goreng", 3500, 5)

	// Each line alone fits the stock of 5 but together they do not.
	_, err := f.svc.Checkout(f.cashierCtx(), domain.CheckoutRequest{
		Items: []domain.CartLine{
			{ProductID: mie.ID, Quantity: 3, PriceCents: 3500},
			{ProductID: mie.ID, Quantity: 3, PriceCents: 3500},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock error, got %v", err)
	}

	var shortage *store.ShortageError
	if !errors.As(err, &shortage) || len(shortage.Shortages) != 1 {
		t.Fatalf("expected one aggregated shortage, got %v", err)
	}
	if shortage.Shortages[0].Requested != 6 || shortage.Shortages[0].Available != 5 {
		t.Fatalf("unexpected shortage detail: %+v", shortage.Shortages[0])
	}
}

func TestCheckoutRecomputesTotalWithTaxByDefault(t *testing.T) {
	f := newFixture(t, false)
	mie := f.seedProduct(t, "Mie Goreng", 3500, 10)

	if _, err := f.svc.UpdateSettings(f.ownerCtx(), domain.Setting{
		StoreName: "SIPIM Store", Currency: "IDR", CurrencySymbol: "Rp",
		TaxEnabled: true, TaxRatePercent: 11,
	}); err != nil {
		t.Fatalf("update settings: %v", err)
	}

	// Client-declared totals are ignored in the default mode.
	receipt, err := f.svc.Checkout(f.cashierCtx(), domain.CheckoutRequest{
		Items:         []domain.CartLine{{ProductID: mie.ID, Quantity: 2, PriceCents: 3500}},
		SubtotalCents: 1,
		TaxCents:      1,
		TotalCents:    3,
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if receipt.SubtotalCents != 7000 || receipt.TaxCents != 770 || receipt.TotalCents != 7770 {
		t.Fatalf("expected recomputed 7000+770, got %+v", receipt)
	}
}

func TestCheckoutTrustsClientTotalWhenConfigured(t *testing.T) {
	f := newFixture(t, true)
	mie := f.seedProduct(t, "Mie Goreng", 3500, 10)

	receipt, err := f.svc.Checkout(f.cashierCtx(), domain.CheckoutRequest{
		Items:         []domain.CartLine{{ProductID: mie.ID, Quantity: 2, PriceCents: 3500}},
		SubtotalCents: 7000,
		TaxCents:      770,
		TotalCents:    7770,
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if receipt.TotalCents != 7770 {
		t.Fatalf("expected client total kept, got %d", receipt.TotalCents)
	}

	tx, err := f.svc.GetTransaction(f.cashierCtx(), receipt.TransactionID)
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	if tx.TotalCents != 7770 {
		t.Fatalf("expected ledger total 7770, got %d", tx.TotalCents)
	}
}

func TestConcurrentCheckoutsNeverOversell(t *testing.T) {
	f := newFixture(t, false)
	mie := f.seedProduct(t, "Mie Goreng", 3500, 10)

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Checkout(f.cashierCtx(), domain.CheckoutRequest{
				Items: []domain.CartLine{{ProductID: mie.ID, Quantity: 3, PriceCents: 3500}},
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		if !errors.Is(err, store.ErrInsufficientStock) {
			t.Fatalf("unexpected checkout error: %v", err)
		}
	}
	if succeeded != 3 {
		t.Fatalf("stock 10 at 3 per checkout allows exactly 3 successes, got %d", succeeded)
	}

	after, err := f.svc.GetProduct(f.cashierCtx(), mie.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if after.Stock != 1 || after.Sold != 9 {
		t.Fatalf("expected stock 1 sold 9, got stock %d sold %d", after.Stock, after.Sold)
	}
}

func TestCheckoutRejectsEmptyCartAndUnknownProduct(t *testing.T) {
	f := newFixture(t, false)

	if _, err := f.svc.Checkout(f.cashierCtx(), domain.CheckoutRequest{}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty cart, got %v", err)
	}

	_, err := f.svc.Checkout(f.cashierCtx(), domain.CheckoutRequest{
		Items: []domain.CartLine{{ProductID: "prod-missing", Quantity: 1, PriceCents: 100}},
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for unknown product, got %v", err)
	}
}

func TestProductMutationsRequireOwnerRole(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.svc.CreateProduct(f.cashierCtx(), domain.ProductCreateRequest{
		Name: "Roti", Category: "Bakery", PriceCents: 17800, Stock: 10,
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for cashier, got %v", err)
	}

	created, err := f.svc.CreateProduct(f.ownerCtx(), domain.ProductCreateRequest{
		Name: "Roti", Category: "Bakery", PriceCents: 17800, Stock: 10,
	})
	if err != nil {
		t.Fatalf("owner create product: %v", err)
	}

	if err := f.svc.DeleteProduct(f.cashierCtx(), created.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden delete for cashier, got %v", err)
	}
	if err := f.svc.DeleteProduct(f.ownerCtx(), created.ID); err != nil {
		t.Fatalf("owner delete product: %v", err)
	}
}

func TestProductUpdateAppliesOnlyProvidedFields(t *testing.T) {
	f := newFixture(t, false)
	p := f.seedProduct(t, "Gula 1kg", 17400, 60)

	newPrice := int64(18000)
	updated, err := f.svc.UpdateProduct(f.ownerCtx(), p.ID, domain.ProductUpdateRequest{
		PriceCents: &newPrice,
	})
	if err != nil {
		t.Fatalf("update product: %v", err)
	}
	if updated.PriceCents != 18000 || updated.Name != "Gula 1kg" || updated.Stock != 60 {
		t.Fatalf("partial update must keep other fields, got %+v", updated)
	}
}

func TestListProductsFiltersAndPaginates(t *testing.T) {
	f := newFixture(t, false)
	f.seedProduct(t, "Air Mineral", 3900, 30)
	f.seedProduct(t, "Mie Goreng", 3500, 0)
	f.seedProduct(t, "Mie Kuah", 3600, 12)

	page, err := f.svc.ListProducts(f.cashierCtx(), domain.ProductFilter{
		InStockOnly: true, Search: "mie",
	})
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	if page.Total != 1 || page.Products[0].Name != "Mie Kuah" {
		t.Fatalf("expected only in-stock Mie Kuah, got %+v", page.Products)
	}
	if len(page.Categories) == 0 {
		t.Fatalf("expected category list alongside products")
	}

	paged, err := f.svc.ListProducts(f.cashierCtx(), domain.ProductFilter{Page: 2, PerPage: 2})
	if err != nil {
		t.Fatalf("list products page 2: %v", err)
	}
	if paged.Total != 3 || len(paged.Products) != 1 {
		t.Fatalf("expected 1 product on page 2 of 3, got %+v", paged)
	}
}

func TestDashboardRangesFollowFilterType(t *testing.T) {
	f := newFixture(t, false)

	for _, tc := range []struct {
		filter string
		start  string
		end    string
	}{
		{FilterToday, "2026-09-01", "2026-09-01"},
		{FilterLast7Days, "2026-08-26", "2026-09-01"},
		{"", "2026-08-26", "2026-09-01"},
		{FilterLast30Days, "2026-08-03", "2026-09-01"},
		{FilterThisMonth, "2026-09-01", "2026-09-01"},
	} {
		report, err := f.svc.Dashboard(f.ownerCtx(), tc.filter, "", "")
		if err != nil {
			t.Fatalf("dashboard %q: %v", tc.filter, err)
		}
		if report.StartDate != tc.start || report.EndDate != tc.end {
			t.Fatalf("filter %q: expected %s..%s, got %s..%s", tc.filter, tc.start, tc.end, report.StartDate, report.EndDate)
		}
	}

	report, err := f.svc.Dashboard(f.ownerCtx(), FilterCustom, "2026-07-01", "2026-07-31")
	if err != nil {
		t.Fatalf("custom dashboard: %v", err)
	}
	if report.StartDate != "2026-07-01" || report.EndDate != "2026-07-31" {
		t.Fatalf("unexpected custom range: %s..%s", report.StartDate, report.EndDate)
	}

	if _, err := f.svc.Dashboard(f.ownerCtx(), FilterCustom, "2026-07-31", "2026-07-01"); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for reversed range, got %v", err)
	}
	if _, err := f.svc.Dashboard(f.ownerCtx(), "fortnight", "", ""); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for unknown filter, got %v", err)
	}
}

func TestDashboardAggregatesLedger(t *testing.T) {
	f := newFixture(t, false)
	mie := f.seedProduct(t, "Mie Goreng", 3500, 100)
	kopi := f.seedProduct(t, "Kopi Sachet", 2600, 100)

	for _, lines := range [][]domain.CartLine{
		{{ProductID: mie.ID, Quantity: 4, PriceCents: 3500}},
		{{ProductID: mie.ID, Quantity: 1, PriceCents: 3500}, {ProductID: kopi.ID, Quantity: 2, PriceCents: 2600}},
	} {
		if _, err := f.svc.Checkout(f.cashierCtx(), domain.CheckoutRequest{Items: lines}); err != nil {
			t.Fatalf("seed checkout: %v", err)
		}
	}

	report, err := f.svc.Dashboard(f.ownerCtx(), FilterToday, "", "")
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}

	wantRevenue := int64(4*3500 + 1*3500 + 2*2600)
	if report.Stats.TotalRevenueCents != wantRevenue || report.Stats.TotalTransactions != 2 {
		t.Fatalf("unexpected stats: %+v", report.Stats)
	}
	if len(report.BestProducts) == 0 || report.BestProducts[0].Name != "Mie Goreng" || report.BestProducts[0].Sold != 5 {
		t.Fatalf("expected Mie Goreng as best seller, got %+v", report.BestProducts)
	}
	if len(report.SalesChart) != 1 || report.SalesChart[0].RevenueCents != wantRevenue {
		t.Fatalf("unexpected sales chart: %+v", report.SalesChart)
	}
	if len(report.RecentTransactions) != 2 {
		t.Fatalf("expected 2 recent transactions, got %d", len(report.RecentTransactions))
	}
}

func TestUserManagementGuardsSelfAndRoles(t *testing.T) {
	f := newFixture(t, false)

	if _, err := f.svc.ListUsers(f.cashierCtx()); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden list for cashier, got %v", err)
	}

	created, err := f.svc.CreateUser(f.ownerCtx(), domain.UserCreateRequest{
		Name: "Kasir Dua", Email: "kasir2@sipim.test", Password: "rahasia-123", Role: domain.RoleCashier,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if created.Password == "rahasia-123" {
		t.Fatalf("password must be stored hashed")
	}

	if _, err := f.svc.CreateUser(f.ownerCtx(), domain.UserCreateRequest{
		Name: "Dup", Email: "kasir2@sipim.test", Password: "rahasia-123", Role: domain.RoleCashier,
	}); !errors.Is(err, store.ErrDuplicateEmail) {
		t.Fatalf("expected duplicate email error, got %v", err)
	}

	if err := f.svc.DeleteUser(f.ownerCtx(), f.owner.UserID); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected self-delete rejection, got %v", err)
	}

	demote := domain.RoleCashier
	if _, err := f.svc.UpdateUser(f.ownerCtx(), f.owner.UserID, domain.UserUpdateRequest{Role: &demote}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected self-demote rejection, got %v", err)
	}
}

func TestChangePasswordVerifiesCurrentPassword(t *testing.T) {
	f := newFixture(t, false)

	created, err := f.svc.CreateUser(f.ownerCtx(), domain.UserCreateRequest{
		Name: "Kasir Dua", Email: "kasir2@sipim.test", Password: "rahasia-123", Role: domain.RoleCashier,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	ctx := WithActor(context.Background(), domain.Actor{UserID: created.ID, Role: created.Role})

	err = f.svc.ChangePassword(ctx, domain.PasswordChangeRequest{
		CurrentPassword: "salah", NewPassword: "rahasia-baru",
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected rejection for wrong current password, got %v", err)
	}

	if err := f.svc.ChangePassword(ctx, domain.PasswordChangeRequest{
		CurrentPassword: "rahasia-123", NewPassword: "rahasia-baru",
	}); err != nil {
		t.Fatalf("change password: %v", err)
	}
}

func TestSupplierLifecycle(t *testing.T) {
	f := newFixture(t, false)

	if _, err := f.svc.CreateSupplier(f.cashierCtx(), domain.SupplierCreateRequest{Name: "PT Sumber"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for cashier, got %v", err)
	}

	created, err := f.svc.CreateSupplier(f.ownerCtx(), domain.SupplierCreateRequest{
		Name: "PT Sumber Rejeki", Phone: "0812000111",
	})
	if err != nil {
		t.Fatalf("create supplier: %v", err)
	}

	phone := "0812999888"
	updated, err := f.svc.UpdateSupplier(f.ownerCtx(), created.ID, domain.SupplierUpdateRequest{Phone: &phone})
	if err != nil {
		t.Fatalf("update supplier: %v", err)
	}
	if updated.Phone != phone || updated.Name != "PT Sumber Rejeki" {
		t.Fatalf("unexpected supplier after update: %+v", updated)
	}

	if err := f.svc.DeleteSupplier(f.ownerCtx(), created.ID); err != nil {
		t.Fatalf("delete supplier: %v", err)
	}
	if _, err := f.svc.GetSupplier(f.ownerCtx(), created.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	f := newFixture(t, false)

	initial, err := f.svc.GetSettings(f.cashierCtx())
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if initial.StoreName == "" || initial.Currency == "" {
		t.Fatalf("expected seeded defaults, got %+v", initial)
	}

	initial.StoreName = "Toko Baru"
	initial.TaxEnabled = true
	initial.TaxRatePercent = 11
	if _, err := f.svc.UpdateSettings(f.cashierCtx(), initial); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for cashier, got %v", err)
	}

	updated, err := f.svc.UpdateSettings(f.ownerCtx(), initial)
	if err != nil {
		t.Fatalf("update settings: %v", err)
	}
	if updated.StoreName != "Toko Baru" || !updated.TaxEnabled {
		t.Fatalf("unexpected settings: %+v", updated)
	}
}
