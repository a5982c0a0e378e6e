package domain

import "time"

// Money is carried as int64 minor currency units end to end (PriceCents,
// TotalCents, ...). Dates are YYYY-MM-DD strings and times of day HH:MM:SS
// strings, mirroring the separate date/time columns of the ledger schema.

type Product struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Category   string    `json:"category"`
	PriceCents int64     `json:"price_cents"`
	CostCents  int64     `json:"cost_cents"`
	Stock      int       `json:"stock"`
	Sold       int       `json:"sold"`
	CreatedAt  time.Time `json:"created_at"`
}

type ProductCreateRequest struct {
	Name       string `json:"name"`
	Category   string `json:"category"`
	PriceCents int64  `json:"price_cents"`
	CostCents  int64  `json:"cost_cents"`
	Stock      int    `json:"stock"`
}

type ProductUpdateRequest struct {
	Name       *string `json:"name,omitempty"`
	Category   *string `json:"category,omitempty"`
	PriceCents *int64  `json:"price_cents,omitempty"`
	CostCents  *int64  `json:"cost_cents,omitempty"`
	Stock      *int    `json:"stock,omitempty"`
}

// ProductFilter drives the catalog listing the POS screen browses:
// in-stock-only, category, name search, page/per-page.
type ProductFilter struct {
	InStockOnly bool
	Category    string
	Search      string
	Page        int
	PerPage     int
}

type ProductPage struct {
	Products   []Product `json:"products"`
	Total      int       `json:"total"`
	Page       int       `json:"page"`
	PerPage    int       `json:"per_page"`
	Categories []string  `json:"categories"`
}

type CartLine struct {
	ProductID  string `json:"product_id"`
	Quantity   int    `json:"quantity"`
	PriceCents int64  `json:"price_cents"`
}

type CheckoutRequest struct {
	Items         []CartLine `json:"items"`
	SubtotalCents int64      `json:"subtotal_cents"`
	TaxCents      int64      `json:"tax_cents"`
	TotalCents    int64      `json:"total_cents"`
}

// Receipt is the payload the POS renders after a successful checkout.
type Receipt struct {
	TransactionID string `json:"transaction_id"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	SubtotalCents int64  `json:"subtotal_cents"`
	TaxCents      int64  `json:"tax_cents"`
	TotalCents    int64  `json:"total_cents"`
}

type TransactionItem struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	PriceCents  int64  `json:"price_cents"`
}

type Transaction struct {
	ID          string            `json:"id"`
	CashierID   string            `json:"cashier_id"`
	CashierName string            `json:"cashier_name"`
	TotalCents  int64             `json:"total_cents"`
	Date        string            `json:"date"`
	TimeOfDay   string            `json:"time"`
	CreatedAt   time.Time         `json:"created_at"`
	Items       []TransactionItem `json:"items"`
}

type TransactionFilter struct {
	StartDate string
	EndDate   string
	Search    string
	Page      int
	PerPage   int
}

type TransactionPage struct {
	Transactions []Transaction `json:"transactions"`
	Total        int           `json:"total"`
	Page         int           `json:"page"`
	PerPage      int           `json:"per_page"`
}

// Sale is the write model for one ledger commit: a header plus its lines,
// persisted as a single atomic unit. Checkout sales also decrement stock;
// imported sales only increment the sold counters.
type Sale struct {
	CashierID  string
	TotalCents int64
	Date       string
	TimeOfDay  string
	Items      []SaleLine
}

type SaleLine struct {
	ProductID  string
	Quantity   int
	PriceCents int64
}

const (
	RoleOwner   = "owner"
	RoleCashier = "cashier"
)

type UserAccount struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type UserCreateRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type UserUpdateRequest struct {
	Name     *string `json:"name,omitempty"`
	Email    *string `json:"email,omitempty"`
	Role     *string `json:"role,omitempty"`
	Active   *bool   `json:"active,omitempty"`
	Password *string `json:"password,omitempty"`
}

type ProfileUpdateRequest struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
}

type PasswordChangeRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

// Actor is the authenticated operator attached to the request context.
type Actor struct {
	UserID string
	Name   string
	Email  string
	Role   string
}

type Supplier struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ContactName string    `json:"contact_name"`
	Phone       string    `json:"phone"`
	Email       string    `json:"email"`
	Address     string    `json:"address"`
	CreatedAt   time.Time `json:"created_at"`
}

type SupplierCreateRequest struct {
	Name        string `json:"name"`
	ContactName string `json:"contact_name"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
	Address     string `json:"address"`
}

type SupplierUpdateRequest struct {
	Name        *string `json:"name,omitempty"`
	ContactName *string `json:"contact_name,omitempty"`
	Phone       *string `json:"phone,omitempty"`
	Email       *string `json:"email,omitempty"`
	Address     *string `json:"address,omitempty"`
}

// Setting is the single store-wide configuration record. There is exactly
// one; reads get-or-create it with defaults.
type Setting struct {
	StoreName      string  `json:"store_name"`
	StorePhone     string  `json:"store_phone"`
	StoreEmail     string  `json:"store_email"`
	StoreAddress   string  `json:"store_address"`
	Currency       string  `json:"currency"`
	CurrencySymbol string  `json:"currency_symbol"`
	ReceiptHeader  string  `json:"receipt_header"`
	ReceiptFooter  string  `json:"receipt_footer"`
	TaxEnabled     bool    `json:"tax_enabled"`
	TaxRatePercent float64 `json:"tax_rate_percent"`
}

type DashboardStats struct {
	TotalRevenueCents int64 `json:"total_revenue_cents"`
	TotalProducts     int   `json:"total_products"`
	TotalTransactions int   `json:"total_transactions"`
	LowStockCount     int   `json:"low_stock_count"`
}

type SalesPoint struct {
	Date         string `json:"date"`
	RevenueCents int64  `json:"revenue_cents"`
}

type ProductSales struct {
	Name         string `json:"name"`
	Sold         int    `json:"sold"`
	RevenueCents int64  `json:"revenue_cents"`
}

type CategoryRevenue struct {
	Name         string `json:"name"`
	RevenueCents int64  `json:"revenue_cents"`
}

type TransactionSummary struct {
	ID          string `json:"id"`
	CashierName string `json:"cashier_name"`
	TotalCents  int64  `json:"total_cents"`
	Date        string `json:"date"`
	Time        string `json:"time"`
}

type DashboardReport struct {
	Stats              DashboardStats       `json:"stats"`
	SalesChart         []SalesPoint         `json:"sales_chart"`
	BestProducts       []ProductSales       `json:"best_products"`
	CategoryStats      []CategoryRevenue    `json:"category_stats"`
	RecentTransactions []TransactionSummary `json:"recent_transactions"`
	StartDate          string               `json:"start_date"`
	EndDate            string               `json:"end_date"`
}

// ImportRowFailure reports one skipped Products-sheet row, keyed by sheet row
// number and the first offending field.
type ImportRowFailure struct {
	Row    int    `json:"row"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ImportWarning reports a skipped Transactions-sheet group or row, or a value
// that was substituted with a fallback.
type ImportWarning struct {
	Group  string `json:"group"`
	Row    int    `json:"row,omitempty"`
	Reason string `json:"reason"`
}

type ImportReport struct {
	ProductsCreated     int                `json:"products_created"`
	TransactionsCreated int                `json:"transactions_created"`
	ItemsCreated        int                `json:"items_created"`
	SkippedRows         []ImportRowFailure `json:"skipped_rows"`
	Warnings            []ImportWarning    `json:"warnings"`
	ClearedExisting     bool               `json:"cleared_existing"`
}
