package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"sipim/backend/internal/domain"
	"sipim/backend/internal/store"
	"sipim/backend/internal/xid"
)

// Store is an in-memory Repository used for dev mode and tests. All methods
// clone on the way in and out so callers never share slices or structs with
// the store's own state.
type Store struct {
	mu           sync.RWMutex
	products     map[string]domain.Product
	productOrder []string
	transactions map[string]domain.Transaction
	txOrder      []string
	users        map[string]domain.UserAccount
	suppliers    map[string]domain.Supplier
	settings     *domain.Setting
}

func New() *Store {
	return &Store{
		products:     make(map[string]domain.Product),
		transactions: make(map[string]domain.Transaction),
		users:        make(map[string]domain.UserAccount),
		suppliers:    make(map[string]domain.Supplier),
	}
}

// seedUsers builds the initial accounts for dev/demo mode. Credentials are
// read from SEED_OWNER_PASSWORD and SEED_CASHIER_PASSWORD; hardcoded dev
// defaults are used (with a warning) when unset. Production deployments use
// PostgreSQL and never reach this path.
func seedUsers() []domain.UserAccount {
	ownerPwd := envOr("SEED_OWNER_PASSWORD", "owner123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_OWNER_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_OWNER_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := make([]domain.UserAccount, 0, 2)
	for _, u := range []struct {
		name     string
		email    string
		password string
		role     string
	}{
		{"Store Owner", "owner@sipim.com", ownerPwd, domain.RoleOwner},
		{"Kasir Satu", "cashier@sipim.com", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.email, err)
		}
		users = append(users, domain.UserAccount{
			ID:        xid.New("user"),
			Name:      u.name,
			Email:     u.email,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		})
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	for _, p := range []domain.Product{
		{Name: "Mie Goreng Instan", Category: "Grocery", PriceCents: 3500, CostCents: 2700, Stock: 120, Sold: 40},
		{Name: "Telur 10 Butir", Category: "Grocery", PriceCents: 26500, CostCents: 23000, Stock: 35, Sold: 12},
		{Name: "Susu UHT 1L", Category: "Dairy", PriceCents: 18900, CostCents: 13600, Stock: 48, Sold: 20},
		{Name: "Roti Tawar", Category: "Bakery", PriceCents: 17800, CostCents: 12500, Stock: 15, Sold: 9},
		{Name: "Kopi Sachet", Category: "Beverage", PriceCents: 2600, CostCents: 1700, Stock: 200, Sold: 75},
		{Name: "Gula 1kg", Category: "Grocery", PriceCents: 17400, CostCents: 15300, Stock: 60, Sold: 18},
		{Name: "Teh Celup", Category: "Beverage", PriceCents: 9800, CostCents: 7200, Stock: 44, Sold: 11},
		{Name: "Air Mineral 600ml", Category: "Beverage", PriceCents: 3900, CostCents: 3200, Stock: 300, Sold: 140},
		{Name: "Keripik Singkong", Category: "Snack", PriceCents: 12800, CostCents: 8000, Stock: 8, Sold: 26},
		{Name: "Sabun Mandi", Category: "Household", PriceCents: 7400, CostCents: 5000, Stock: 70, Sold: 22},
	} {
		p.ID = xid.New("prod")
		p.CreatedAt = now
		s.products[p.ID] = p
		s.productOrder = append(s.productOrder, p.ID)
	}

	for _, u := range seedUsers() {
		s.users[u.ID] = u
	}

	return s
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.Category == "" {
		return nil, store.ErrInvalidInput
	}
	if product.PriceCents < 0 || product.CostCents < 0 || product.Stock < 0 || product.Sold < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	s.products[product.ID] = product
	s.productOrder = append(s.productOrder, product.ID)

	created := product
	return &created, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *Store) FindProductByName(_ context.Context, name string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.productOrder {
		p, ok := s.products[id]
		if ok && p.Name == name {
			found := p
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListProducts(_ context.Context, filter domain.ProductFilter) ([]domain.Product, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]domain.Product, 0, len(s.products))
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	for _, p := range s.products {
		if filter.InStockOnly && p.Stock < 1 {
			continue
		}
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.Name), search) {
			continue
		}
		matched = append(matched, p)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })

	total := len(matched)
	page, perPage := filter.Page, filter.PerPage
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = total
	}
	start := (page - 1) * perPage
	if start > total {
		start = total
	}
	end := start + perPage
	if end > total {
		end = total
	}

	return matched[start:end], total, nil
}

func (s *Store) ListCategories(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{}, 8)
	categories := make([]string, 0, 8)
	for _, p := range s.products {
		if _, ok := seen[p.Category]; ok {
			continue
		}
		seen[p.Category] = struct{}{}
		categories = append(categories, p.Category)
	}
	sort.Strings(categories)
	return categories, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.Category == "" || product.PriceCents < 0 || product.CostCents < 0 || product.Stock < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	product.CreatedAt = existing.CreatedAt
	s.products[product.ID] = product

	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.products, id)
	for i, pid := range s.productOrder {
		if pid == id {
			s.productOrder = append(s.productOrder[:i], s.productOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Transaction, error) {
	if len(sale.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	return s.commitSale(sale, true)
}

func (s *Store) CreateImportedSale(_ context.Context, sale domain.Sale) (*domain.Transaction, error) {
	return s.commitSale(sale, false)
}

// commitSale holds the write lock across validation and mutation, so the
// stock re-check and the decrement are one atomic step: two racing checkouts
// can never both pass the check and oversell.
func (s *Store) commitSale(sale domain.Sale, decrementStock bool) (*domain.Transaction, error) {
	for _, line := range sale.Items {
		if line.ProductID == "" || line.Quantity < 1 || line.PriceCents < 0 {
			return nil, store.ErrInvalidInput
		}
	}
	if sale.TotalCents < 0 || sale.CashierID == "" || sale.Date == "" || sale.TimeOfDay == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cashier, ok := s.users[sale.CashierID]
	if !ok {
		return nil, fmt.Errorf("cashier %s: %w", sale.CashierID, store.ErrInvalidInput)
	}

	// Validate every line before touching anything, accumulating cumulative
	// demand per product so duplicate lines cannot slip past the check.
	need := make(map[string]int, len(sale.Items))
	order := make([]string, 0, len(sale.Items))
	for _, line := range sale.Items {
		if _, seen := need[line.ProductID]; !seen {
			order = append(order, line.ProductID)
		}
		need[line.ProductID] += line.Quantity
	}

	shortages := make([]store.StockShortage, 0, 1)
	for _, pid := range order {
		p, ok := s.products[pid]
		if !ok {
			return nil, fmt.Errorf("product %s: %w", pid, store.ErrInvalidInput)
		}
		if decrementStock && p.Stock < need[pid] {
			shortages = append(shortages, store.StockShortage{
				ProductID: pid,
				Name:      p.Name,
				Available: p.Stock,
				Requested: need[pid],
			})
		}
	}
	if len(shortages) > 0 {
		return nil, &store.ShortageError{Shortages: shortages}
	}

	tx := domain.Transaction{
		ID:          xid.New("tx"),
		CashierID:   cashier.ID,
		CashierName: cashier.Name,
		TotalCents:  sale.TotalCents,
		Date:        sale.Date,
		TimeOfDay:   sale.TimeOfDay,
		CreatedAt:   time.Now().UTC(),
		Items:       make([]domain.TransactionItem, 0, len(sale.Items)),
	}

	for _, line := range sale.Items {
		p := s.products[line.ProductID]
		tx.Items = append(tx.Items, domain.TransactionItem{
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    line.Quantity,
			PriceCents:  line.PriceCents,
		})
		if decrementStock {
			p.Stock -= line.Quantity
		}
		p.Sold += line.Quantity
		s.products[p.ID] = p
	}

	s.transactions[tx.ID] = tx
	s.txOrder = append(s.txOrder, tx.ID)

	return cloneTransaction(tx), nil
}

func (s *Store) GetTransactionByID(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneTransaction(tx), nil
}

func (s *Store) ListTransactions(_ context.Context, filter domain.TransactionFilter) ([]domain.Transaction, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	matched := make([]domain.Transaction, 0, len(s.transactions))
	for _, tx := range s.transactions {
		if filter.StartDate != "" && tx.Date < filter.StartDate {
			continue
		}
		if filter.EndDate != "" && tx.Date > filter.EndDate {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(tx.ID), search) &&
			!strings.Contains(strings.ToLower(tx.CashierName), search) {
			continue
		}
		matched = append(matched, tx)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Date != matched[j].Date {
			return matched[i].Date > matched[j].Date
		}
		if matched[i].TimeOfDay != matched[j].TimeOfDay {
			return matched[i].TimeOfDay > matched[j].TimeOfDay
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	page, perPage := filter.Page, filter.PerPage
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = total
	}
	start := (page - 1) * perPage
	if start > total {
		start = total
	}
	end := start + perPage
	if end > total {
		end = total
	}

	out := make([]domain.Transaction, 0, end-start)
	for _, tx := range matched[start:end] {
		out = append(out, *cloneTransaction(tx))
	}
	return out, total, nil
}

func (s *Store) ClearCatalogAndLedger(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Child before parent: items live inside transactions here, so clearing
	// transactions removes them first conceptually; products go last.
	s.transactions = make(map[string]domain.Transaction)
	s.txOrder = nil
	s.products = make(map[string]domain.Product)
	s.productOrder = nil
	return nil
}

func (s *Store) GetDashboardReport(_ context.Context, startDate string, endDate string) (domain.DashboardReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report := domain.DashboardReport{
		SalesChart:         []domain.SalesPoint{},
		BestProducts:       []domain.ProductSales{},
		CategoryStats:      []domain.CategoryRevenue{},
		RecentTransactions: []domain.TransactionSummary{},
	}

	report.Stats.TotalProducts = len(s.products)
	for _, p := range s.products {
		if p.Stock < 10 {
			report.Stats.LowStockCount++
		}
	}

	byDate := make(map[string]int64)
	type productAgg struct {
		name    string
		sold    int
		revenue int64
	}
	byProduct := make(map[string]*productAgg)
	byCategory := make(map[string]int64)
	inRange := make([]domain.Transaction, 0, len(s.transactions))

	for _, tx := range s.transactions {
		if tx.Date < startDate || tx.Date > endDate {
			continue
		}
		inRange = append(inRange, tx)
		report.Stats.TotalRevenueCents += tx.TotalCents
		report.Stats.TotalTransactions++
		byDate[tx.Date] += tx.TotalCents

		for _, item := range tx.Items {
			lineRevenue := int64(item.Quantity) * item.PriceCents
			agg, ok := byProduct[item.ProductID]
			if !ok {
				agg = &productAgg{name: item.ProductName}
				byProduct[item.ProductID] = agg
			}
			agg.sold += item.Quantity
			agg.revenue += lineRevenue

			category := ""
			if p, ok := s.products[item.ProductID]; ok {
				category = p.Category
			}
			byCategory[category] += lineRevenue
		}
	}

	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	for _, d := range dates {
		report.SalesChart = append(report.SalesChart, domain.SalesPoint{Date: d, RevenueCents: byDate[d]})
	}

	best := make([]domain.ProductSales, 0, len(byProduct))
	for _, agg := range byProduct {
		best = append(best, domain.ProductSales{Name: agg.name, Sold: agg.sold, RevenueCents: agg.revenue})
	}
	sort.Slice(best, func(i, j int) bool {
		if best[i].Sold != best[j].Sold {
			return best[i].Sold > best[j].Sold
		}
		return best[i].Name < best[j].Name
	})
	if len(best) > 5 {
		best = best[:5]
	}
	report.BestProducts = best

	categories := make([]domain.CategoryRevenue, 0, len(byCategory))
	for name, revenue := range byCategory {
		categories = append(categories, domain.CategoryRevenue{Name: name, RevenueCents: revenue})
	}
	sort.Slice(categories, func(i, j int) bool {
		if categories[i].RevenueCents != categories[j].RevenueCents {
			return categories[i].RevenueCents > categories[j].RevenueCents
		}
		return categories[i].Name < categories[j].Name
	})
	if len(categories) > 10 {
		categories = categories[:10]
	}
	report.CategoryStats = categories

	sort.Slice(inRange, func(i, j int) bool {
		if inRange[i].Date != inRange[j].Date {
			return inRange[i].Date > inRange[j].Date
		}
		if inRange[i].TimeOfDay != inRange[j].TimeOfDay {
			return inRange[i].TimeOfDay > inRange[j].TimeOfDay
		}
		return inRange[i].CreatedAt.After(inRange[j].CreatedAt)
	})
	if len(inRange) > 5 {
		inRange = inRange[:5]
	}
	for _, tx := range inRange {
		report.RecentTransactions = append(report.RecentTransactions, domain.TransactionSummary{
			ID:          tx.ID,
			CashierName: tx.CashierName,
			TotalCents:  tx.TotalCents,
			Date:        tx.Date,
			Time:        tx.TimeOfDay,
		})
	}

	return report, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	if user.Name == "" || user.Email == "" || user.Password == "" || user.Role == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return nil, store.ErrDuplicateEmail
		}
	}

	if user.ID == "" {
		user.ID = xid.New("user")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.users[user.ID] = user

	created := user
	return &created, nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (s *Store) FindUserByEmail(_ context.Context, email string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			found := u
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) FindUserByRole(_ context.Context, role string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *domain.UserAccount
	for _, u := range s.users {
		if u.Role != role || !u.Active {
			continue
		}
		if found == nil || u.CreatedAt.Before(found.CreatedAt) {
			candidate := u
			found = &candidate
		}
	}
	if found == nil {
		return nil, store.ErrNotFound
	}
	return found, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].Email < users[j].Email
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

func (s *Store) UpdateUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	if user.Name == "" || user.Email == "" || user.Role == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[user.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	for id, other := range s.users {
		if id != user.ID && strings.EqualFold(other.Email, user.Email) {
			return nil, store.ErrDuplicateEmail
		}
	}
	user.CreatedAt = existing.CreatedAt
	if user.Password == "" {
		user.Password = existing.Password
	}
	s.users[user.ID] = user

	updated := user
	return &updated, nil
}

func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.users, id)
	return nil
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if supplier.Name == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}
	s.suppliers[supplier.ID] = supplier

	created := supplier
	return &created, nil
}

func (s *Store) GetSupplierByID(_ context.Context, id string) (*domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sup, ok := s.suppliers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &sup, nil
}

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	suppliers := make([]domain.Supplier, 0, len(s.suppliers))
	for _, sup := range s.suppliers {
		suppliers = append(suppliers, sup)
	}
	sort.Slice(suppliers, func(i, j int) bool { return suppliers[i].Name < suppliers[j].Name })
	return suppliers, nil
}

func (s *Store) UpdateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if supplier.Name == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.suppliers[supplier.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	supplier.CreatedAt = existing.CreatedAt
	s.suppliers[supplier.ID] = supplier

	updated := supplier
	return &updated, nil
}

func (s *Store) DeleteSupplier(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.suppliers[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.suppliers, id)
	return nil
}

func (s *Store) GetSettings(_ context.Context) (*domain.Setting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.settings == nil {
		s.settings = &domain.Setting{
			StoreName:      "SIPIM Store",
			Currency:       "IDR",
			CurrencySymbol: "Rp",
		}
	}
	setting := *s.settings
	return &setting, nil
}

func (s *Store) UpdateSettings(_ context.Context, setting domain.Setting) (*domain.Setting, error) {
	if setting.StoreName == "" || setting.Currency == "" || setting.CurrencySymbol == "" {
		return nil, store.ErrInvalidInput
	}
	if setting.TaxRatePercent < 0 || setting.TaxRatePercent > 100 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings = &setting
	updated := setting
	return &updated, nil
}

func cloneTransaction(tx domain.Transaction) *domain.Transaction {
	out := tx
	out.Items = make([]domain.TransactionItem, len(tx.Items))
	copy(out.Items, tx.Items)
	return &out
}
