package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"sipim/backend/internal/cache"
	"sipim/backend/internal/clock"
	"sipim/backend/internal/domain"
	"sipim/backend/internal/importer"
	"sipim/backend/internal/store"
)

// ErrForbidden marks operations the authenticated actor's role does not
// allow. Route-level guards catch most of these first; the service checks
// again so no caller can reach a mutation without the right role.
var ErrForbidden = errors.New("forbidden")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo             store.Repository
	dashboards       cache.DashboardCache
	clock            clock.Clock
	importer         *importer.Importer
	trustClientTotal bool
	dashboardTTL     time.Duration
}

func New(repo store.Repository, dashboards cache.DashboardCache, clk clock.Clock, trustClientTotal bool, dashboardTTL time.Duration) *Service {
	if dashboards == nil {
		dashboards = cache.NoopDashboardCache{}
	}
	if clk == nil {
		clk = clock.System{}
	}
	if dashboardTTL <= 0 {
		dashboardTTL = 60 * time.Second
	}

	return &Service{
		repo:             repo,
		dashboards:       dashboards,
		clock:            clk,
		importer:         importer.New(repo, clk),
		trustClientTotal: trustClientTotal,
		dashboardTTL:     dashboardTTL,
	}
}

func (s *Service) requireOwner(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleOwner {
		return fmt.Errorf("%w: owner role required", ErrForbidden)
	}
	return nil
}

func (s *Service) ListProducts(ctx context.Context, filter domain.ProductFilter) (domain.ProductPage, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PerPage < 1 {
		filter.PerPage = 20
	}
	if filter.PerPage > 100 {
		filter.PerPage = 100
	}

	products, total, err := s.repo.ListProducts(ctx, filter)
	if err != nil {
		return domain.ProductPage{}, err
	}
	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		return domain.ProductPage{}, err
	}

	return domain.ProductPage{
		Products:   products,
		Total:      total,
		Page:       filter.Page,
		PerPage:    filter.PerPage,
		Categories: categories,
	}, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProductByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := s.requireOwner(ctx); err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	if req.Name == "" || req.Category == "" {
		return domain.Product{}, store.ErrInvalidInput
	}
	if req.PriceCents < 0 || req.CostCents < 0 || req.Stock < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		Name:       req.Name,
		Category:   req.Category,
		PriceCents: req.PriceCents,
		CostCents:  req.CostCents,
		Stock:      req.Stock,
	})
	if err != nil {
		return domain.Product{}, err
	}
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := s.requireOwner(ctx); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProductByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}

	if req.Name != nil {
		existing.Name = strings.TrimSpace(*req.Name)
	}
	if req.Category != nil {
		existing.Category = strings.TrimSpace(*req.Category)
	}
	if req.PriceCents != nil {
		existing.PriceCents = *req.PriceCents
	}
	if req.CostCents != nil {
		existing.CostCents = *req.CostCents
	}
	if req.Stock != nil {
		existing.Stock = *req.Stock
	}
	if existing.Name == "" || existing.Category == "" || existing.PriceCents < 0 || existing.CostCents < 0 || existing.Stock < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}

	updated, err := s.repo.UpdateProduct(ctx, *existing)
	if err != nil {
		return domain.Product{}, err
	}
	return *updated, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := s.requireOwner(ctx); err != nil {
		return err
	}
	return s.repo.DeleteProduct(ctx, strings.TrimSpace(id))
}

// Checkout commits a cart as one ledger transaction. Every line is checked
// against current stock first so the response can name all short products at
// once; the store re-validates under its own lock when committing, which is
// the check that actually prevents overselling.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.Receipt, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Receipt{}, fmt.Errorf("%w: authentication required", ErrForbidden)
	}

	if len(req.Items) == 0 {
		return domain.Receipt{}, fmt.Errorf("%w: cart is empty", store.ErrInvalidInput)
	}

	need := make(map[string]int, len(req.Items))
	order := make([]string, 0, len(req.Items))
	subtotal := int64(0)
	for _, line := range req.Items {
		if line.ProductID == "" || line.Quantity < 1 || line.PriceCents < 0 {
			return domain.Receipt{}, store.ErrInvalidInput
		}
		if _, seen := need[line.ProductID]; !seen {
			order = append(order, line.ProductID)
		}
		need[line.ProductID] += line.Quantity
		subtotal += int64(line.Quantity) * line.PriceCents
	}

	shortages := make([]store.StockShortage, 0, 1)
	for _, pid := range order {
		product, err := s.repo.GetProductByID(ctx, pid)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.Receipt{}, fmt.Errorf("product %s: %w", pid, store.ErrInvalidInput)
			}
			return domain.Receipt{}, err
		}
		if product.Stock < need[pid] {
			shortages = append(shortages, store.StockShortage{
				ProductID: pid,
				Name:      product.Name,
				Available: product.Stock,
				Requested: need[pid],
			})
		}
	}
	if len(shortages) > 0 {
		return domain.Receipt{}, &store.ShortageError{Shortages: shortages}
	}

	subtotalCents, taxCents, totalCents, err := s.resolveTotals(ctx, req, subtotal)
	if err != nil {
		return domain.Receipt{}, err
	}

	now := s.clock.Now()
	sale := domain.Sale{
		CashierID:  actor.UserID,
		TotalCents: totalCents,
		Date:       now.Format("2006-01-02"),
		TimeOfDay:  now.Format("15:04:05"),
		Items:      make([]domain.SaleLine, 0, len(req.Items)),
	}
	for _, line := range req.Items {
		sale.Items = append(sale.Items, domain.SaleLine{
			ProductID:  line.ProductID,
			Quantity:   line.Quantity,
			PriceCents: line.PriceCents,
		})
	}

	tx, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		return domain.Receipt{}, err
	}

	return domain.Receipt{
		TransactionID: tx.ID,
		Date:          tx.Date,
		Time:          tx.TimeOfDay,
		SubtotalCents: subtotalCents,
		TaxCents:      taxCents,
		TotalCents:    totalCents,
	}, nil
}

// resolveTotals picks between the client-declared total and a server-side
// recomputation. The trusting mode exists for parity with older POS clients
// that round tax themselves; the default recomputes everything from the cart
// lines and the store tax settings.
func (s *Service) resolveTotals(ctx context.Context, req domain.CheckoutRequest, lineSubtotal int64) (int64, int64, int64, error) {
	if s.trustClientTotal {
		if req.TotalCents < 0 || req.SubtotalCents < 0 || req.TaxCents < 0 {
			return 0, 0, 0, store.ErrInvalidInput
		}
		return req.SubtotalCents, req.TaxCents, req.TotalCents, nil
	}

	tax := int64(0)
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return 0, 0, 0, err
	}
	if settings.TaxEnabled {
		tax = int64(math.Round(float64(lineSubtotal) * settings.TaxRatePercent / 100))
	}
	return lineSubtotal, tax, lineSubtotal + tax, nil
}

func (s *Service) ListTransactions(ctx context.Context, filter domain.TransactionFilter) (domain.TransactionPage, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PerPage < 1 {
		filter.PerPage = 20
	}
	if filter.PerPage > 100 {
		filter.PerPage = 100
	}

	transactions, total, err := s.repo.ListTransactions(ctx, filter)
	if err != nil {
		return domain.TransactionPage{}, err
	}
	return domain.TransactionPage{
		Transactions: transactions,
		Total:        total,
		Page:         filter.Page,
		PerPage:      filter.PerPage,
	}, nil
}

func (s *Service) GetTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	tx, err := s.repo.GetTransactionByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Transaction{}, err
	}
	return *tx, nil
}

// ExportTransactions returns every transaction matching the filter, ignoring
// pagination.
func (s *Service) ExportTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	filter.Page = 0
	filter.PerPage = 0
	transactions, _, err := s.repo.ListTransactions(ctx, filter)
	return transactions, err
}

const (
	FilterToday      = "today"
	FilterLast7Days  = "last_7_days"
	FilterLast30Days = "last_30_days"
	FilterThisMonth  = "this_month"
	FilterCustom     = "custom"
)

func (s *Service) Dashboard(ctx context.Context, filterType string, startDate string, endDate string) (domain.DashboardReport, error) {
	start, end, err := s.dateRange(filterType, startDate, endDate)
	if err != nil {
		return domain.DashboardReport{}, err
	}

	key := "dashboard:" + start + ":" + end
	if cached, ok, err := s.dashboards.Get(ctx, key); err != nil {
		log.Printf("[service] WARN: dashboard cache get failed: %v", err)
	} else if ok {
		return *cached, nil
	}

	report, err := s.repo.GetDashboardReport(ctx, start, end)
	if err != nil {
		return domain.DashboardReport{}, err
	}
	report.StartDate = start
	report.EndDate = end

	if err := s.dashboards.Set(ctx, key, &report, s.dashboardTTL); err != nil {
		log.Printf("[service] WARN: dashboard cache set failed: %v", err)
	}
	return report, nil
}

func (s *Service) dateRange(filterType string, startDate string, endDate string) (string, string, error) {
	today := s.clock.Now()

	switch filterType {
	case FilterToday:
		d := today.Format("2006-01-02")
		return d, d, nil
	case FilterLast7Days, "":
		return today.AddDate(0, 0, -6).Format("2006-01-02"), today.Format("2006-01-02"), nil
	case FilterLast30Days:
		return today.AddDate(0, 0, -29).Format("2006-01-02"), today.Format("2006-01-02"), nil
	case FilterThisMonth:
		first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
		return first.Format("2006-01-02"), today.Format("2006-01-02"), nil
	case FilterCustom:
		start, err := time.Parse("2006-01-02", startDate)
		if err != nil {
			return "", "", fmt.Errorf("%w: start_date must be YYYY-MM-DD", store.ErrInvalidInput)
		}
		end, err := time.Parse("2006-01-02", endDate)
		if err != nil {
			return "", "", fmt.Errorf("%w: end_date must be YYYY-MM-DD", store.ErrInvalidInput)
		}
		if end.Before(start) {
			return "", "", fmt.Errorf("%w: end_date before start_date", store.ErrInvalidInput)
		}
		return startDate, endDate, nil
	default:
		return "", "", fmt.Errorf("%w: unknown filter type %q", store.ErrInvalidInput, filterType)
	}
}

func (s *Service) ImportData(ctx context.Context, wb importer.Workbook, clearExisting bool) (domain.ImportReport, error) {
	if err := s.requireOwner(ctx); err != nil {
		return domain.ImportReport{}, err
	}

	report, err := s.importer.Run(ctx, wb, clearExisting)
	if err != nil {
		return domain.ImportReport{}, err
	}
	return *report, nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

func (s *Service) GetSupplier(ctx context.Context, id string) (domain.Supplier, error) {
	supplier, err := s.repo.GetSupplierByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Supplier{}, err
	}
	return *supplier, nil
}

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	if err := s.requireOwner(ctx); err != nil {
		return domain.Supplier{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Supplier{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateSupplier(ctx, domain.Supplier{
		Name:        req.Name,
		ContactName: strings.TrimSpace(req.ContactName),
		Phone:       strings.TrimSpace(req.Phone),
		Email:       strings.TrimSpace(req.Email),
		Address:     strings.TrimSpace(req.Address),
	})
	if err != nil {
		return domain.Supplier{}, err
	}
	return *created, nil
}

func (s *Service) UpdateSupplier(ctx context.Context, id string, req domain.SupplierUpdateRequest) (domain.Supplier, error) {
	if err := s.requireOwner(ctx); err != nil {
		return domain.Supplier{}, err
	}

	existing, err := s.repo.GetSupplierByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Supplier{}, err
	}

	if req.Name != nil {
		existing.Name = strings.TrimSpace(*req.Name)
	}
	if req.ContactName != nil {
		existing.ContactName = strings.TrimSpace(*req.ContactName)
	}
	if req.Phone != nil {
		existing.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Email != nil {
		existing.Email = strings.TrimSpace(*req.Email)
	}
	if req.Address != nil {
		existing.Address = strings.TrimSpace(*req.Address)
	}
	if existing.Name == "" {
		return domain.Supplier{}, store.ErrInvalidInput
	}

	updated, err := s.repo.UpdateSupplier(ctx, *existing)
	if err != nil {
		return domain.Supplier{}, err
	}
	return *updated, nil
}

func (s *Service) DeleteSupplier(ctx context.Context, id string) error {
	if err := s.requireOwner(ctx); err != nil {
		return err
	}
	return s.repo.DeleteSupplier(ctx, strings.TrimSpace(id))
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	if err := s.requireOwner(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListUsers(ctx)
}

func (s *Service) CreateUser(ctx context.Context, req domain.UserCreateRequest) (domain.UserAccount, error) {
	if err := s.requireOwner(ctx); err != nil {
		return domain.UserAccount{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Name == "" || req.Email == "" || !strings.Contains(req.Email, "@") {
		return domain.UserAccount{}, store.ErrInvalidInput
	}
	if req.Role != domain.RoleOwner && req.Role != domain.RoleCashier {
		return domain.UserAccount{}, fmt.Errorf("%w: role must be owner or cashier", store.ErrInvalidInput)
	}
	if len(req.Password) < 8 {
		return domain.UserAccount{}, fmt.Errorf("%w: password must be at least 8 characters", store.ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.UserAccount{}, err
	}

	created, err := s.repo.CreateUser(ctx, domain.UserAccount{
		Name:     req.Name,
		Email:    req.Email,
		Password: string(hash),
		Role:     req.Role,
		Active:   true,
	})
	if err != nil {
		return domain.UserAccount{}, err
	}
	return *created, nil
}

func (s *Service) UpdateUser(ctx context.Context, id string, req domain.UserUpdateRequest) (domain.UserAccount, error) {
	if err := s.requireOwner(ctx); err != nil {
		return domain.UserAccount{}, err
	}
	actor, _ := ActorFromContext(ctx)

	existing, err := s.repo.GetUserByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.UserAccount{}, err
	}

	if req.Name != nil {
		existing.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		existing.Email = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if req.Role != nil {
		if *req.Role != domain.RoleOwner && *req.Role != domain.RoleCashier {
			return domain.UserAccount{}, fmt.Errorf("%w: role must be owner or cashier", store.ErrInvalidInput)
		}
		if existing.ID == actor.UserID && *req.Role != domain.RoleOwner {
			return domain.UserAccount{}, fmt.Errorf("%w: cannot demote your own account", store.ErrInvalidInput)
		}
		existing.Role = *req.Role
	}
	if req.Active != nil {
		if existing.ID == actor.UserID && !*req.Active {
			return domain.UserAccount{}, fmt.Errorf("%w: cannot deactivate your own account", store.ErrInvalidInput)
		}
		existing.Active = *req.Active
	}
	if existing.Name == "" || existing.Email == "" || !strings.Contains(existing.Email, "@") {
		return domain.UserAccount{}, store.ErrInvalidInput
	}

	if req.Password != nil {
		if len(*req.Password) < 8 {
			return domain.UserAccount{}, fmt.Errorf("%w: password must be at least 8 characters", store.ErrInvalidInput)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return domain.UserAccount{}, err
		}
		existing.Password = string(hash)
	}

	updated, err := s.repo.UpdateUser(ctx, *existing)
	if err != nil {
		return domain.UserAccount{}, err
	}
	return *updated, nil
}

func (s *Service) DeleteUser(ctx context.Context, id string) error {
	if err := s.requireOwner(ctx); err != nil {
		return err
	}
	actor, _ := ActorFromContext(ctx)
	id = strings.TrimSpace(id)
	if id == actor.UserID {
		return fmt.Errorf("%w: cannot delete your own account", store.ErrInvalidInput)
	}
	return s.repo.DeleteUser(ctx, id)
}

func (s *Service) Profile(ctx context.Context) (domain.UserAccount, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.UserAccount{}, fmt.Errorf("%w: authentication required", ErrForbidden)
	}
	user, err := s.repo.GetUserByID(ctx, actor.UserID)
	if err != nil {
		return domain.UserAccount{}, err
	}
	return *user, nil
}

func (s *Service) UpdateProfile(ctx context.Context, req domain.ProfileUpdateRequest) (domain.UserAccount, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.UserAccount{}, fmt.Errorf("%w: authentication required", ErrForbidden)
	}

	existing, err := s.repo.GetUserByID(ctx, actor.UserID)
	if err != nil {
		return domain.UserAccount{}, err
	}
	if req.Name != nil {
		existing.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		existing.Email = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if existing.Name == "" || existing.Email == "" || !strings.Contains(existing.Email, "@") {
		return domain.UserAccount{}, store.ErrInvalidInput
	}

	updated, err := s.repo.UpdateUser(ctx, *existing)
	if err != nil {
		return domain.UserAccount{}, err
	}
	return *updated, nil
}

func (s *Service) ChangePassword(ctx context.Context, req domain.PasswordChangeRequest) error {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return fmt.Errorf("%w: authentication required", ErrForbidden)
	}
	if len(req.NewPassword) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", store.ErrInvalidInput)
	}

	user, err := s.repo.GetUserByID(ctx, actor.UserID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.CurrentPassword)); err != nil {
		return fmt.Errorf("%w: current password does not match", store.ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user.Password = string(hash)
	_, err = s.repo.UpdateUser(ctx, *user)
	return err
}

func (s *Service) GetSettings(ctx context.Context) (domain.Setting, error) {
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return domain.Setting{}, err
	}
	return *settings, nil
}

func (s *Service) UpdateSettings(ctx context.Context, req domain.Setting) (domain.Setting, error) {
	if err := s.requireOwner(ctx); err != nil {
		return domain.Setting{}, err
	}

	req.StoreName = strings.TrimSpace(req.StoreName)
	req.Currency = strings.TrimSpace(req.Currency)
	req.CurrencySymbol = strings.TrimSpace(req.CurrencySymbol)
	if req.StoreName == "" || req.Currency == "" || req.CurrencySymbol == "" {
		return domain.Setting{}, store.ErrInvalidInput
	}

	updated, err := s.repo.UpdateSettings(ctx, req)
	if err != nil {
		return domain.Setting{}, err
	}
	return *updated, nil
}
