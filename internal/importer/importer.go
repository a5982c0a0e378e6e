package importer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"time"

	"sipim/backend/internal/clock"
	"sipim/backend/internal/domain"
	"sipim/backend/internal/store"
)

// excelEpoch is the day zero of spreadsheet serial dates. Serial 1 is
// 1899-12-31 under the convention every tool in practice uses.
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// ProductRow is one raw Products-sheet row. Cells stay strings until
// validation so the row number can be reported alongside parse failures.
type ProductRow struct {
	Row      int
	Name     string
	Category string
	Price    string
	Cost     string
	Stock    string
	Sold     string
}

// TransactionRow is one raw Transactions-sheet row. Consecutive rows sharing
// a TransactionID form one historical transaction.
type TransactionRow struct {
	Row           int
	TransactionID string
	Date          string
	Time          string
	CashierEmail  string
	ProductName   string
	Quantity      string
	Price         string
}

type Workbook struct {
	Products     []ProductRow
	Transactions []TransactionRow
}

type Importer struct {
	repo  store.Repository
	clock clock.Clock
}

func New(repo store.Repository, clk clock.Clock) *Importer {
	return &Importer{repo: repo, clock: clk}
}

// Run loads a workbook into the catalog and ledger. Products import first so
// transaction rows can resolve them by name. With clearExisting set, the
// current catalog and ledger are dropped before anything is written; the two
// phases are not one atomic unit, so a failure mid-import leaves the rows
// already committed in place.
func (im *Importer) Run(ctx context.Context, wb Workbook, clearExisting bool) (*domain.ImportReport, error) {
	report := &domain.ImportReport{
		SkippedRows: []domain.ImportRowFailure{},
		Warnings:    []domain.ImportWarning{},
	}

	if clearExisting {
		if err := im.repo.ClearCatalogAndLedger(ctx); err != nil {
			return nil, fmt.Errorf("clear existing data: %w", err)
		}
		report.ClearedExisting = true
	}

	if err := im.importProducts(ctx, wb.Products, report); err != nil {
		return nil, err
	}
	if err := im.importTransactions(ctx, wb.Transactions, report); err != nil {
		return nil, err
	}

	return report, nil
}

func (im *Importer) importProducts(ctx context.Context, rows []ProductRow, report *domain.ImportReport) error {
	for _, row := range rows {
		product, failure := validateProductRow(row)
		if failure != nil {
			report.SkippedRows = append(report.SkippedRows, *failure)
			continue
		}

		if _, err := im.repo.CreateProduct(ctx, *product); err != nil {
			if errors.Is(err, store.ErrInvalidInput) {
				report.SkippedRows = append(report.SkippedRows, domain.ImportRowFailure{
					Row:    row.Row,
					Field:  "name",
					Reason: "rejected by catalog",
				})
				continue
			}
			return fmt.Errorf("import product row %d: %w", row.Row, err)
		}
		report.ProductsCreated++
	}
	return nil
}

func validateProductRow(row ProductRow) (*domain.Product, *domain.ImportRowFailure) {
	name := strings.TrimSpace(row.Name)
	if name == "" {
		return nil, &domain.ImportRowFailure{Row: row.Row, Field: "name", Reason: "name is required"}
	}
	category := strings.TrimSpace(row.Category)
	if category == "" {
		return nil, &domain.ImportRowFailure{Row: row.Row, Field: "category", Reason: "category is required"}
	}

	price, err := parseMoney(row.Price)
	if err != nil || price < 0 {
		return nil, &domain.ImportRowFailure{Row: row.Row, Field: "price", Reason: "price must be a non-negative number"}
	}
	stock, err := parseCount(row.Stock)
	if err != nil || stock < 0 {
		return nil, &domain.ImportRowFailure{Row: row.Row, Field: "stock", Reason: "stock must be a non-negative integer"}
	}

	cost, err := parseMoney(row.Cost)
	if err != nil || cost < 0 {
		return nil, &domain.ImportRowFailure{Row: row.Row, Field: "cost", Reason: "cost must be a non-negative number"}
	}

	// Sold is the one optional column; blank means zero, garbage skips the row.
	sold := 0
	if strings.TrimSpace(row.Sold) != "" {
		sold, err = parseCount(row.Sold)
		if err != nil || sold < 0 {
			return nil, &domain.ImportRowFailure{Row: row.Row, Field: "sold", Reason: "sold must be a non-negative integer"}
		}
	}

	return &domain.Product{
		Name:       name,
		Category:   category,
		PriceCents: price,
		CostCents:  cost,
		Stock:      stock,
		Sold:       sold,
	}, nil
}

func (im *Importer) importTransactions(ctx context.Context, rows []TransactionRow, report *domain.ImportReport) error {
	groups, order := groupRows(rows)

	for _, groupID := range order {
		group := groups[groupID]
		if err := im.importGroup(ctx, groupID, group, report); err != nil {
			return err
		}
	}
	return nil
}

// groupRows buckets rows by transaction id, preserving first-seen order.
// Rows with a blank id are dropped silently; they cannot belong to anything.
func groupRows(rows []TransactionRow) (map[string][]TransactionRow, []string) {
	groups := make(map[string][]TransactionRow)
	order := make([]string, 0, len(rows))
	for _, row := range rows {
		id := strings.TrimSpace(row.TransactionID)
		if id == "" {
			continue
		}
		if _, seen := groups[id]; !seen {
			order = append(order, id)
		}
		groups[id] = append(groups[id], row)
	}
	return groups, order
}

func (im *Importer) importGroup(ctx context.Context, groupID string, rows []TransactionRow, report *domain.ImportReport) error {
	first := rows[0]

	cashier, err := im.resolveCashier(ctx, first.CashierEmail)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			report.Warnings = append(report.Warnings, domain.ImportWarning{
				Group:  groupID,
				Row:    first.Row,
				Reason: "no matching cashier and no owner account to fall back to",
			})
			return nil
		}
		return fmt.Errorf("resolve cashier for group %s: %w", groupID, err)
	}

	// The stored total covers every row of the group, matched or not, so the
	// ledger total stays faithful to the source sheet even when individual
	// product rows cannot be resolved. The fold runs before any date/time
	// fallback warnings so a skipped group leaves only its skip warning in
	// the report.
	total := int64(0)
	type parsedLine struct {
		row   TransactionRow
		qty   int
		price int64
	}
	lines := make([]parsedLine, 0, len(rows))
	for _, row := range rows {
		qty, qerr := parseCount(row.Quantity)
		price, perr := parseMoney(row.Price)
		if qerr != nil || perr != nil || qty < 1 || price < 0 {
			report.Warnings = append(report.Warnings, domain.ImportWarning{
				Group:  groupID,
				Row:    row.Row,
				Reason: "unreadable quantity or price, skipping transaction",
			})
			return nil
		}
		total += int64(qty) * price
		lines = append(lines, parsedLine{row: row, qty: qty, price: price})
	}

	now := im.clock.Now()
	date, ok := normalizeDate(first.Date)
	if !ok {
		date = now.Format("2006-01-02")
		report.Warnings = append(report.Warnings, domain.ImportWarning{
			Group:  groupID,
			Row:    first.Row,
			Reason: fmt.Sprintf("unreadable date %q, using %s", first.Date, date),
		})
	}
	timeOfDay, ok := normalizeTime(first.Time)
	if !ok {
		timeOfDay = "12:00:00"
		report.Warnings = append(report.Warnings, domain.ImportWarning{
			Group:  groupID,
			Row:    first.Row,
			Reason: fmt.Sprintf("unreadable time %q, using 12:00:00", first.Time),
		})
	}

	items := make([]domain.SaleLine, 0, len(lines))
	for _, line := range lines {
		name := strings.TrimSpace(line.row.ProductName)
		product, err := im.repo.FindProductByName(ctx, name)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				report.Warnings = append(report.Warnings, domain.ImportWarning{
					Group:  groupID,
					Row:    line.row.Row,
					Reason: fmt.Sprintf("product %q not found, row skipped", name),
				})
				continue
			}
			return fmt.Errorf("resolve product for group %s: %w", groupID, err)
		}
		items = append(items, domain.SaleLine{
			ProductID:  product.ID,
			Quantity:   line.qty,
			PriceCents: line.price,
		})
	}

	sale := domain.Sale{
		CashierID:  cashier.ID,
		TotalCents: total,
		Date:       date,
		TimeOfDay:  timeOfDay,
		Items:      items,
	}
	if _, err := im.repo.CreateImportedSale(ctx, sale); err != nil {
		return fmt.Errorf("import transaction group %s: %w", groupID, err)
	}

	report.TransactionsCreated++
	report.ItemsCreated += len(items)
	if len(items) < len(lines) {
		log.Printf("[importer] WARN: transaction %s imported with %d of %d rows matched", groupID, len(items), len(lines))
	}
	return nil
}

func (im *Importer) resolveCashier(ctx context.Context, email string) (*domain.UserAccount, error) {
	email = strings.TrimSpace(email)
	if email != "" {
		user, err := im.repo.FindUserByEmail(ctx, email)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	return im.repo.FindUserByRole(ctx, domain.RoleOwner)
}

func parseMoney(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, strconv.ErrSyntax
	}
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return v, nil
	}
	// Spreadsheet tools often hand integer cells back as "3500.0".
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	return int64(math.Round(f)), nil
}

func parseCount(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, strconv.ErrSyntax
	}
	if v, err := strconv.Atoi(raw); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, strconv.ErrSyntax
	}
	return int(f), nil
}

// normalizeDate accepts ISO dates, common slash formats, and raw spreadsheet
// serial numbers.
func normalizeDate(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	for _, layout := range []string{"2006-01-02", "2006/01/02", "02/01/2006", "02-01-2006"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	if t, err := time.Parse("2006-01-02 15:04:05", raw); err == nil {
		return t.Format("2006-01-02"), true
	}

	if serial, err := strconv.ParseFloat(raw, 64); err == nil && serial > 0 {
		return excelEpoch.AddDate(0, 0, int(serial)).Format("2006-01-02"), true
	}

	return "", false
}

// normalizeTime accepts HH:MM:SS, HH:MM, and spreadsheet time fractions
// (0.5 is noon; a value above 1 carries a date part that is ignored here).
func normalizeTime(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	if t, err := time.Parse("15:04:05", raw); err == nil {
		return t.Format("15:04:05"), true
	}
	if t, err := time.Parse("15:04", raw); err == nil {
		return t.Format("15:04:05"), true
	}

	if v, err := strconv.ParseFloat(raw, 64); err == nil && v >= 0 {
		frac := v - math.Floor(v)
		seconds := int(math.Round(frac * 86400))
		if seconds >= 86400 {
			seconds = 0
		}
		return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60), true
	}

	return "", false
}
