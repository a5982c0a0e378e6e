package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"sipim/backend/internal/domain"
	"sipim/backend/internal/store"
)

func TestCheckoutDecrementsStockAtomically(t *testing.T) {
	databaseURL := os.Getenv("SIPIM_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set SIPIM_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	stamp := time.Now().UnixNano()
	productID := fmt.Sprintf("prod-checkout-it-%d", stamp)
	cashierID := fmt.Sprintf("user-checkout-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM transaction_items WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM transactions WHERE cashier_id = $1`, cashierID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, cashierID)
	})

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password, role, active, created_at)
		VALUES ($1, 'Kasir IT', $2, 'x', 'cashier', true, now())
	`, cashierID, fmt.Sprintf("kasir-it-%d@sipim.test", stamp)); err != nil {
		t.Fatalf("insert cashier: %v", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, category, price_cents, cost_cents, stock, sold, created_at)
		VALUES ($1, $2, 'Grocery', 3500, 2700, 10, 0, now())
	`, productID, fmt.Sprintf("Produk Checkout IT %d", stamp)); err != nil {
		t.Fatalf("insert product: %v", err)
	}

	sale := domain.Sale{
		CashierID:  cashierID,
		TotalCents: 10500,
		Date:       "2026-09-01",
		TimeOfDay:  "10:15:00",
		Items: []domain.SaleLine{
			{ProductID: productID, Quantity: 3, PriceCents: 3500},
		},
	}
	tx, err := s.CreateSale(ctx, sale)
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if len(tx.Items) != 1 || tx.Items[0].Quantity != 3 {
		t.Fatalf("unexpected transaction items: %+v", tx.Items)
	}

	var stock, sold int
	if err := s.db.QueryRowContext(ctx, `
		SELECT stock, sold FROM products WHERE id = $1
	`, productID).Scan(&stock, &sold); err != nil {
		t.Fatalf("query product: %v", err)
	}
	if stock != 7 || sold != 3 {
		t.Fatalf("expected stock 7 sold 3, got stock %d sold %d", stock, sold)
	}

	// Cumulative demand of 8 against remaining 7 must fail and leave the
	// product untouched, even though each line alone would fit.
	over := domain.Sale{
		CashierID:  cashierID,
		TotalCents: 28000,
		Date:       "2026-09-01",
		TimeOfDay:  "10:16:00",
		Items: []domain.SaleLine{
			{ProductID: productID, Quantity: 4, PriceCents: 3500},
			{ProductID: productID, Quantity: 4, PriceCents: 3500},
		},
	}
	_, err = s.CreateSale(ctx, over)
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock error, got %v", err)
	}
	var shortage *store.ShortageError
	if !errors.As(err, &shortage) || len(shortage.Shortages) != 1 {
		t.Fatalf("expected one shortage, got %v", err)
	}
	if shortage.Shortages[0].Available != 7 || shortage.Shortages[0].Requested != 8 {
		t.Fatalf("unexpected shortage detail: %+v", shortage.Shortages[0])
	}

	if err := s.db.QueryRowContext(ctx, `
		SELECT stock, sold FROM products WHERE id = $1
	`, productID).Scan(&stock, &sold); err != nil {
		t.Fatalf("query product: %v", err)
	}
	if stock != 7 || sold != 3 {
		t.Fatalf("failed checkout must not change stock, got stock %d sold %d", stock, sold)
	}
}
