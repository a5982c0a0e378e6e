package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"sipim/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrDuplicateEmail    = errors.New("email already in use")
)

// StockShortage names one product a cart asked more of than is on hand.
type StockShortage struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Available int    `json:"available"`
	Requested int    `json:"requested"`
}

// ShortageError aggregates every short line of a rejected checkout so the
// operator sees all shortages at once, not just the first.
type ShortageError struct {
	Shortages []StockShortage
}

func (e *ShortageError) Error() string {
	parts := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		parts = append(parts, fmt.Sprintf("Insufficient stock for %s. Available: %d, Requested: %d", s.Name, s.Available, s.Requested))
	}
	return strings.Join(parts, "; ")
}

// Is lets callers match a ShortageError with errors.Is(err, ErrInsufficientStock).
func (e *ShortageError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// Repository is the persistence boundary for the catalog, the transaction
// ledger, and the plain CRUD entities around them.
//
// CreateSale and CreateImportedSale are the only writers of Product.stock and
// Product.sold. Both persist the transaction header and its items as one
// atomic unit and re-validate stock under a write lock, so concurrent
// checkouts can never drive stock negative even if the caller's advisory
// pre-check raced.
type Repository interface {
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	FindProductByName(ctx context.Context, name string) (*domain.Product, error)
	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int, error)
	ListCategories(ctx context.Context) ([]string, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	// CreateSale commits a checkout: header + items + stock decrement + sold
	// increment, all or nothing. Returns a *ShortageError when stock is short.
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Transaction, error)
	// CreateImportedSale commits one imported transaction group: header +
	// items + sold increment. Stock is left untouched and an empty item list
	// is allowed (the sheet's group may have no resolvable products).
	CreateImportedSale(ctx context.Context, sale domain.Sale) (*domain.Transaction, error)
	GetTransactionByID(ctx context.Context, id string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, int, error)
	// ClearCatalogAndLedger deletes items, then transactions, then products,
	// child before parent. Users, suppliers and settings survive.
	ClearCatalogAndLedger(ctx context.Context) error

	GetDashboardReport(ctx context.Context, startDate string, endDate string) (domain.DashboardReport, error)

	CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	GetUserByID(ctx context.Context, id string) (*domain.UserAccount, error)
	FindUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error)
	FindUserByRole(ctx context.Context, role string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	DeleteUser(ctx context.Context, id string) error

	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	GetSupplierByID(ctx context.Context, id string) (*domain.Supplier, error)
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)
	UpdateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	DeleteSupplier(ctx context.Context, id string) error

	// GetSettings returns the singleton settings record, creating it with
	// defaults on first read.
	GetSettings(ctx context.Context) (*domain.Setting, error)
	UpdateSettings(ctx context.Context, setting domain.Setting) (*domain.Setting, error)
}
