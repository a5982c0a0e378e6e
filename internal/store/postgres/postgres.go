package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"sipim/backend/internal/domain"
	"sipim/backend/internal/store"
	"sipim/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the schema if it does not exist. Statements are idempotent
// so repeated startups are safe.
func (s *Store) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL,
			password TEXT NOT NULL,
			role TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS users_email_lower_idx ON users (lower(email))`,
		`CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			category TEXT NOT NULL,
			price_cents BIGINT NOT NULL,
			cost_cents BIGINT NOT NULL DEFAULT 0,
			stock INTEGER NOT NULL DEFAULT 0,
			sold INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS products_name_idx ON products (name)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id TEXT PRIMARY KEY,
			cashier_id TEXT NOT NULL,
			cashier_name TEXT NOT NULL,
			total_cents BIGINT NOT NULL,
			date TEXT NOT NULL,
			time_of_day TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS transactions_date_idx ON transactions (date)`,
		`CREATE TABLE IF NOT EXISTS transaction_items (
			id BIGSERIAL PRIMARY KEY,
			transaction_id TEXT NOT NULL REFERENCES transactions(id) ON DELETE CASCADE,
			product_id TEXT NOT NULL,
			product_name TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			price_cents BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS transaction_items_tx_idx ON transaction_items (transaction_id)`,
		`CREATE TABLE IF NOT EXISTS suppliers (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			contact_name TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			address TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS settings (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			store_name TEXT NOT NULL,
			store_phone TEXT NOT NULL DEFAULT '',
			store_email TEXT NOT NULL DEFAULT '',
			store_address TEXT NOT NULL DEFAULT '',
			currency TEXT NOT NULL,
			currency_symbol TEXT NOT NULL,
			receipt_header TEXT NOT NULL DEFAULT '',
			receipt_footer TEXT NOT NULL DEFAULT '',
			tax_enabled BOOLEAN NOT NULL DEFAULT false,
			tax_rate_percent DOUBLE PRECISION NOT NULL DEFAULT 0
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.Category == "" {
		return nil, store.ErrInvalidInput
	}
	if product.PriceCents < 0 || product.CostCents < 0 || product.Stock < 0 || product.Sold < 0 {
		return nil, store.ErrInvalidInput
	}

	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, category, price_cents, cost_cents, stock, sold, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, product.ID, product.Name, product.Category, product.PriceCents, product.CostCents, product.Stock, product.Sold, product.CreatedAt)
	if err != nil {
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, category, price_cents, cost_cents, stock, sold, created_at
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Category, &p.PriceCents, &p.CostCents, &p.Stock, &p.Sold, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) FindProductByName(ctx context.Context, name string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, category, price_cents, cost_cents, stock, sold, created_at
		FROM products
		WHERE name = $1
		ORDER BY created_at ASC
		LIMIT 1
	`, name).Scan(&p.ID, &p.Name, &p.Category, &p.PriceCents, &p.CostCents, &p.Stock, &p.Sold, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int, error) {
	where := make([]string, 0, 3)
	args := make([]any, 0, 4)
	if filter.InStockOnly {
		where = append(where, "stock > 0")
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+strings.ToLower(search)+"%")
		where = append(where, fmt.Sprintf("lower(name) LIKE $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM products "+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, perPage := filter.Page, filter.PerPage
	if page < 1 {
		page = 1
	}
	limit := "ALL"
	offset := 0
	if perPage > 0 {
		limit = fmt.Sprintf("%d", perPage)
		offset = (page - 1) * perPage
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, name, category, price_cents, cost_cents, stock, sold, created_at
		FROM products
		%s
		ORDER BY name ASC
		LIMIT %s OFFSET %d
	`, clause, limit, offset), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 32)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.PriceCents, &p.CostCents, &p.Stock, &p.Sold, &p.CreatedAt); err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return products, total, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT category FROM products ORDER BY category ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]string, 0, 8)
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.Category == "" || product.PriceCents < 0 || product.CostCents < 0 || product.Stock < 0 {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, price_cents = $4, cost_cents = $5, stock = $6, sold = $7
		WHERE id = $1
	`, product.ID, product.Name, product.Category, product.PriceCents, product.CostCents, product.Stock, product.Sold)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return s.GetProductByID(ctx, product.ID)
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Transaction, error) {
	if len(sale.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	return s.commitSale(ctx, sale, true)
}

func (s *Store) CreateImportedSale(ctx context.Context, sale domain.Sale) (*domain.Transaction, error) {
	return s.commitSale(ctx, sale, false)
}

// commitSale writes a transaction and its items in a single serializable
// database transaction. When decrementStock is set it locks the product rows
// and re-validates cumulative stock under the lock, so concurrent checkouts
// for the same product cannot both commit past available stock.
func (s *Store) commitSale(ctx context.Context, sale domain.Sale, decrementStock bool) (*domain.Transaction, error) {
	for _, line := range sale.Items {
		if line.ProductID == "" || line.Quantity < 1 || line.PriceCents < 0 {
			return nil, store.ErrInvalidInput
		}
	}
	if sale.TotalCents < 0 || sale.CashierID == "" || sale.Date == "" || sale.TimeOfDay == "" {
		return nil, store.ErrInvalidInput
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var cashierName string
	err = pgTx.QueryRowContext(ctx, `SELECT name FROM users WHERE id = $1`, sale.CashierID).Scan(&cashierName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("cashier %s: %w", sale.CashierID, store.ErrInvalidInput)
		}
		return nil, err
	}

	need := make(map[string]int, len(sale.Items))
	order := make([]string, 0, len(sale.Items))
	for _, line := range sale.Items {
		if _, seen := need[line.ProductID]; !seen {
			order = append(order, line.ProductID)
		}
		need[line.ProductID] += line.Quantity
	}

	productRows, err := pgTx.QueryContext(ctx, `
		SELECT id, name, stock
		FROM products
		WHERE id = ANY($1)
		FOR UPDATE
	`, order)
	if err != nil {
		return nil, err
	}
	type productState struct {
		name  string
		stock int
	}
	locked := make(map[string]productState, len(order))
	for productRows.Next() {
		var id, name string
		var stock int
		if err := productRows.Scan(&id, &name, &stock); err != nil {
			_ = productRows.Close()
			return nil, err
		}
		locked[id] = productState{name: name, stock: stock}
	}
	if err := productRows.Err(); err != nil {
		_ = productRows.Close()
		return nil, err
	}
	_ = productRows.Close()

	shortages := make([]store.StockShortage, 0, 1)
	for _, pid := range order {
		state, ok := locked[pid]
		if !ok {
			return nil, fmt.Errorf("product %s: %w", pid, store.ErrInvalidInput)
		}
		if decrementStock && state.stock < need[pid] {
			shortages = append(shortages, store.StockShortage{
				ProductID: pid,
				Name:      state.name,
				Available: state.stock,
				Requested: need[pid],
			})
		}
	}
	if len(shortages) > 0 {
		return nil, &store.ShortageError{Shortages: shortages}
	}

	tx := domain.Transaction{
		ID:          xid.New("tx"),
		CashierID:   sale.CashierID,
		CashierName: cashierName,
		TotalCents:  sale.TotalCents,
		Date:        sale.Date,
		TimeOfDay:   sale.TimeOfDay,
		CreatedAt:   time.Now().UTC(),
		Items:       make([]domain.TransactionItem, 0, len(sale.Items)),
	}
	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO transactions (id, cashier_id, cashier_name, total_cents, date, time_of_day, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, tx.ID, tx.CashierID, tx.CashierName, tx.TotalCents, tx.Date, tx.TimeOfDay, tx.CreatedAt)
	if err != nil {
		return nil, err
	}

	for _, line := range sale.Items {
		name := locked[line.ProductID].name
		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO transaction_items (transaction_id, product_id, product_name, quantity, price_cents)
			VALUES ($1,$2,$3,$4,$5)
		`, tx.ID, line.ProductID, name, line.Quantity, line.PriceCents)
		if err != nil {
			return nil, err
		}
		tx.Items = append(tx.Items, domain.TransactionItem{
			ProductID:   line.ProductID,
			ProductName: name,
			Quantity:    line.Quantity,
			PriceCents:  line.PriceCents,
		})

		if decrementStock {
			_, err = pgTx.ExecContext(ctx, `
				UPDATE products SET stock = stock - $2, sold = sold + $2 WHERE id = $1
			`, line.ProductID, line.Quantity)
		} else {
			_, err = pgTx.ExecContext(ctx, `
				UPDATE products SET sold = sold + $2 WHERE id = $1
			`, line.ProductID, line.Quantity)
		}
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &tx, nil
}

func (s *Store) GetTransactionByID(ctx context.Context, id string) (*domain.Transaction, error) {
	var tx domain.Transaction
	err := s.db.QueryRowContext(ctx, `
		SELECT id, cashier_id, cashier_name, total_cents, date, time_of_day, created_at
		FROM transactions
		WHERE id = $1
	`, id).Scan(&tx.ID, &tx.CashierID, &tx.CashierName, &tx.TotalCents, &tx.Date, &tx.TimeOfDay, &tx.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	items, err := s.loadItems(ctx, []string{tx.ID})
	if err != nil {
		return nil, err
	}
	tx.Items = items[tx.ID]
	if tx.Items == nil {
		tx.Items = []domain.TransactionItem{}
	}
	return &tx, nil
}

func (s *Store) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, int, error) {
	where := make([]string, 0, 3)
	args := make([]any, 0, 4)
	if filter.StartDate != "" {
		args = append(args, filter.StartDate)
		where = append(where, fmt.Sprintf("date >= $%d", len(args)))
	}
	if filter.EndDate != "" {
		args = append(args, filter.EndDate)
		where = append(where, fmt.Sprintf("date <= $%d", len(args)))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+strings.ToLower(search)+"%")
		where = append(where, fmt.Sprintf("(lower(id) LIKE $%d OR lower(cashier_name) LIKE $%d)", len(args), len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM transactions "+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, perPage := filter.Page, filter.PerPage
	if page < 1 {
		page = 1
	}
	limit := "ALL"
	offset := 0
	if perPage > 0 {
		limit = fmt.Sprintf("%d", perPage)
		offset = (page - 1) * perPage
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, cashier_id, cashier_name, total_cents, date, time_of_day, created_at
		FROM transactions
		%s
		ORDER BY date DESC, time_of_day DESC, created_at DESC
		LIMIT %s OFFSET %d
	`, clause, limit, offset), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	transactions := make([]domain.Transaction, 0, 32)
	ids := make([]string, 0, 32)
	for rows.Next() {
		var tx domain.Transaction
		if err := rows.Scan(&tx.ID, &tx.CashierID, &tx.CashierName, &tx.TotalCents, &tx.Date, &tx.TimeOfDay, &tx.CreatedAt); err != nil {
			return nil, 0, err
		}
		transactions = append(transactions, tx)
		ids = append(ids, tx.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	items, err := s.loadItems(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range transactions {
		transactions[i].Items = items[transactions[i].ID]
		if transactions[i].Items == nil {
			transactions[i].Items = []domain.TransactionItem{}
		}
	}

	return transactions, total, nil
}

func (s *Store) loadItems(ctx context.Context, txIDs []string) (map[string][]domain.TransactionItem, error) {
	out := make(map[string][]domain.TransactionItem, len(txIDs))
	if len(txIDs) == 0 {
		return out, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT transaction_id, product_id, product_name, quantity, price_cents
		FROM transaction_items
		WHERE transaction_id = ANY($1)
		ORDER BY id ASC
	`, txIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var txID string
		var item domain.TransactionItem
		if err := rows.Scan(&txID, &item.ProductID, &item.ProductName, &item.Quantity, &item.PriceCents); err != nil {
			return nil, err
		}
		out[txID] = append(out[txID], item)
	}
	return out, rows.Err()
}

func (s *Store) ClearCatalogAndLedger(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// Children first so foreign keys never trip.
	for _, stmt := range []string{
		`DELETE FROM transaction_items`,
		`DELETE FROM transactions`,
		`DELETE FROM products`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) GetDashboardReport(ctx context.Context, startDate string, endDate string) (domain.DashboardReport, error) {
	report := domain.DashboardReport{
		SalesChart:         []domain.SalesPoint{},
		BestProducts:       []domain.ProductSales{},
		CategoryStats:      []domain.CategoryRevenue{},
		RecentTransactions: []domain.TransactionSummary{},
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(sum(total_cents), 0), count(*)
		FROM transactions
		WHERE date >= $1 AND date <= $2
	`, startDate, endDate).Scan(&report.Stats.TotalRevenueCents, &report.Stats.TotalTransactions)
	if err != nil {
		return report, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT count(*), count(*) FILTER (WHERE stock < 10)
		FROM products
	`).Scan(&report.Stats.TotalProducts, &report.Stats.LowStockCount)
	if err != nil {
		return report, err
	}

	chartRows, err := s.db.QueryContext(ctx, `
		SELECT date, sum(total_cents)
		FROM transactions
		WHERE date >= $1 AND date <= $2
		GROUP BY date
		ORDER BY date ASC
	`, startDate, endDate)
	if err != nil {
		return report, err
	}
	for chartRows.Next() {
		var point domain.SalesPoint
		if err := chartRows.Scan(&point.Date, &point.RevenueCents); err != nil {
			_ = chartRows.Close()
			return report, err
		}
		report.SalesChart = append(report.SalesChart, point)
	}
	if err := chartRows.Err(); err != nil {
		_ = chartRows.Close()
		return report, err
	}
	_ = chartRows.Close()

	bestRows, err := s.db.QueryContext(ctx, `
		SELECT ti.product_name, sum(ti.quantity), sum(ti.quantity * ti.price_cents)
		FROM transaction_items ti
		JOIN transactions t ON t.id = ti.transaction_id
		WHERE t.date >= $1 AND t.date <= $2
		GROUP BY ti.product_id, ti.product_name
		ORDER BY sum(ti.quantity) DESC, ti.product_name ASC
		LIMIT 5
	`, startDate, endDate)
	if err != nil {
		return report, err
	}
	for bestRows.Next() {
		var ps domain.ProductSales
		if err := bestRows.Scan(&ps.Name, &ps.Sold, &ps.RevenueCents); err != nil {
			_ = bestRows.Close()
			return report, err
		}
		report.BestProducts = append(report.BestProducts, ps)
	}
	if err := bestRows.Err(); err != nil {
		_ = bestRows.Close()
		return report, err
	}
	_ = bestRows.Close()

	categoryRows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(p.category, ''), sum(ti.quantity * ti.price_cents)
		FROM transaction_items ti
		JOIN transactions t ON t.id = ti.transaction_id
		LEFT JOIN products p ON p.id = ti.product_id
		WHERE t.date >= $1 AND t.date <= $2
		GROUP BY p.category
		ORDER BY sum(ti.quantity * ti.price_cents) DESC, COALESCE(p.category, '') ASC
		LIMIT 10
	`, startDate, endDate)
	if err != nil {
		return report, err
	}
	for categoryRows.Next() {
		var cr domain.CategoryRevenue
		if err := categoryRows.Scan(&cr.Name, &cr.RevenueCents); err != nil {
			_ = categoryRows.Close()
			return report, err
		}
		report.CategoryStats = append(report.CategoryStats, cr)
	}
	if err := categoryRows.Err(); err != nil {
		_ = categoryRows.Close()
		return report, err
	}
	_ = categoryRows.Close()

	recentRows, err := s.db.QueryContext(ctx, `
		SELECT id, cashier_name, total_cents, date, time_of_day
		FROM transactions
		WHERE date >= $1 AND date <= $2
		ORDER BY date DESC, time_of_day DESC, created_at DESC
		LIMIT 5
	`, startDate, endDate)
	if err != nil {
		return report, err
	}
	for recentRows.Next() {
		var ts domain.TransactionSummary
		if err := recentRows.Scan(&ts.ID, &ts.CashierName, &ts.TotalCents, &ts.Date, &ts.Time); err != nil {
			_ = recentRows.Close()
			return report, err
		}
		report.RecentTransactions = append(report.RecentTransactions, ts)
	}
	if err := recentRows.Err(); err != nil {
		_ = recentRows.Close()
		return report, err
	}
	_ = recentRows.Close()

	return report, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	if user.Name == "" || user.Email == "" || user.Password == "" || user.Role == "" {
		return nil, store.ErrInvalidInput
	}

	if user.ID == "" {
		user.ID = xid.New("user")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, user.ID, user.Name, user.Email, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateEmail
		}
		return nil, err
	}

	created := user
	return &created, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.UserAccount, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password, role, active, created_at
		FROM users
		WHERE id = $1
	`, id))
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password, role, active, created_at
		FROM users
		WHERE lower(email) = lower($1)
	`, email))
}

func (s *Store) FindUserByRole(ctx context.Context, role string) (*domain.UserAccount, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password, role, active, created_at
		FROM users
		WHERE role = $1 AND active = true
		ORDER BY created_at ASC
		LIMIT 1
	`, role))
}

func (s *Store) scanUser(row *sql.Row) (*domain.UserAccount, error) {
	var u domain.UserAccount
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Password, &u.Role, &u.Active, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, password, role, active, created_at
		FROM users
		ORDER BY created_at ASC, email ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	if user.Name == "" || user.Email == "" || user.Role == "" {
		return nil, store.ErrInvalidInput
	}

	var res sql.Result
	var err error
	if user.Password == "" {
		res, err = s.db.ExecContext(ctx, `
			UPDATE users SET name = $2, email = $3, role = $4, active = $5 WHERE id = $1
		`, user.ID, user.Name, user.Email, user.Role, user.Active)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE users SET name = $2, email = $3, role = $4, active = $5, password = $6 WHERE id = $1
		`, user.ID, user.Name, user.Email, user.Role, user.Active, user.Password)
	}
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateEmail
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return s.GetUserByID(ctx, user.ID)
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if supplier.Name == "" {
		return nil, store.ErrInvalidInput
	}

	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, name, contact_name, phone, email, address, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, supplier.ID, supplier.Name, supplier.ContactName, supplier.Phone, supplier.Email, supplier.Address, supplier.CreatedAt)
	if err != nil {
		return nil, err
	}

	created := supplier
	return &created, nil
}

func (s *Store) GetSupplierByID(ctx context.Context, id string) (*domain.Supplier, error) {
	var sup domain.Supplier
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, contact_name, phone, email, address, created_at
		FROM suppliers
		WHERE id = $1
	`, id).Scan(&sup.ID, &sup.Name, &sup.ContactName, &sup.Phone, &sup.Email, &sup.Address, &sup.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &sup, nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, contact_name, phone, email, address, created_at
		FROM suppliers
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 8)
	for rows.Next() {
		var sup domain.Supplier
		if err := rows.Scan(&sup.ID, &sup.Name, &sup.ContactName, &sup.Phone, &sup.Email, &sup.Address, &sup.CreatedAt); err != nil {
			return nil, err
		}
		suppliers = append(suppliers, sup)
	}
	return suppliers, rows.Err()
}

func (s *Store) UpdateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if supplier.Name == "" {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE suppliers
		SET name = $2, contact_name = $3, phone = $4, email = $5, address = $6
		WHERE id = $1
	`, supplier.ID, supplier.Name, supplier.ContactName, supplier.Phone, supplier.Email, supplier.Address)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return s.GetSupplierByID(ctx, supplier.ID)
}

func (s *Store) DeleteSupplier(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM suppliers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetSettings(ctx context.Context) (*domain.Setting, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (id, store_name, currency, currency_symbol)
		VALUES (1, 'SIPIM Store', 'IDR', 'Rp')
		ON CONFLICT (id) DO NOTHING
	`)
	if err != nil {
		return nil, err
	}

	var setting domain.Setting
	err = s.db.QueryRowContext(ctx, `
		SELECT store_name, store_phone, store_email, store_address,
		       currency, currency_symbol, receipt_header, receipt_footer,
		       tax_enabled, tax_rate_percent
		FROM settings
		WHERE id = 1
	`).Scan(&setting.StoreName, &setting.StorePhone, &setting.StoreEmail, &setting.StoreAddress,
		&setting.Currency, &setting.CurrencySymbol, &setting.ReceiptHeader, &setting.ReceiptFooter,
		&setting.TaxEnabled, &setting.TaxRatePercent)
	if err != nil {
		return nil, err
	}
	return &setting, nil
}

func (s *Store) UpdateSettings(ctx context.Context, setting domain.Setting) (*domain.Setting, error) {
	if setting.StoreName == "" || setting.Currency == "" || setting.CurrencySymbol == "" {
		return nil, store.ErrInvalidInput
	}
	if setting.TaxRatePercent < 0 || setting.TaxRatePercent > 100 {
		return nil, store.ErrInvalidInput
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (id, store_name, store_phone, store_email, store_address,
			currency, currency_symbol, receipt_header, receipt_footer, tax_enabled, tax_rate_percent)
		VALUES (1,$1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO UPDATE SET
			store_name = EXCLUDED.store_name,
			store_phone = EXCLUDED.store_phone,
			store_email = EXCLUDED.store_email,
			store_address = EXCLUDED.store_address,
			currency = EXCLUDED.currency,
			currency_symbol = EXCLUDED.currency_symbol,
			receipt_header = EXCLUDED.receipt_header,
			receipt_footer = EXCLUDED.receipt_footer,
			tax_enabled = EXCLUDED.tax_enabled,
			tax_rate_percent = EXCLUDED.tax_rate_percent
	`, setting.StoreName, setting.StorePhone, setting.StoreEmail, setting.StoreAddress,
		setting.Currency, setting.CurrencySymbol, setting.ReceiptHeader, setting.ReceiptFooter,
		setting.TaxEnabled, setting.TaxRatePercent)
	if err != nil {
		return nil, err
	}

	updated := setting
	return &updated, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
