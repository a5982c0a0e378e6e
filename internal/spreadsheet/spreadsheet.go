package spreadsheet

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"sipim/backend/internal/domain"
	"sipim/backend/internal/importer"
)

const (
	productsSheet     = "Products"
	transactionsSheet = "Transactions"
)

var productHeaders = []string{"name", "category", "price", "cost", "stock", "sold"}

var transactionHeaders = []string{"transaction_id", "date", "time", "cashier_email", "product_name", "quantity", "price"}

// ParseWorkbook reads an uploaded xlsx into raw import rows. Cells come back
// unformatted so date and time serials survive as numbers. Sheets are looked
// up by name; a workbook missing both sheets is rejected.
func ParseWorkbook(r io.Reader) (importer.Workbook, error) {
	var wb importer.Workbook

	f, err := excelize.OpenReader(r)
	if err != nil {
		return wb, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	hasProducts := sheetExists(f, productsSheet)
	hasTransactions := sheetExists(f, transactionsSheet)
	if !hasProducts && !hasTransactions {
		return wb, fmt.Errorf("workbook has neither a %q nor a %q sheet", productsSheet, transactionsSheet)
	}

	if hasProducts {
		rows, err := readSheet(f, productsSheet, "name")
		if err != nil {
			return wb, err
		}
		for _, row := range rows {
			wb.Products = append(wb.Products, importer.ProductRow{
				Row:      row.number,
				Name:     row.cell("name"),
				Category: row.cell("category"),
				Price:    row.cell("price"),
				Cost:     row.cell("cost"),
				Stock:    row.cell("stock"),
				Sold:     row.cell("sold"),
			})
		}
	}

	if hasTransactions {
		rows, err := readSheet(f, transactionsSheet, "transaction_id")
		if err != nil {
			return wb, err
		}
		for _, row := range rows {
			wb.Transactions = append(wb.Transactions, importer.TransactionRow{
				Row:           row.number,
				TransactionID: row.cell("transaction_id"),
				Date:          row.cell("date"),
				Time:          row.cell("time"),
				CashierEmail:  row.cell("cashier_email"),
				ProductName:   row.cell("product_name"),
				Quantity:      row.cell("quantity"),
				Price:         row.cell("price"),
			})
		}
	}

	return wb, nil
}

type sheetRow struct {
	number int
	values map[string]string
}

func (r sheetRow) cell(header string) string {
	return r.values[header]
}

// readSheet maps rows by the header row. Header matching is case-insensitive
// and ignores surrounding whitespace; requiredHeader must be present or the
// sheet is considered malformed.
func readSheet(f *excelize.File, sheet string, requiredHeader string) ([]sheetRow, error) {
	raw, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	columns := make(map[int]string, len(raw[0]))
	seenRequired := false
	for i, h := range raw[0] {
		header := strings.ToLower(strings.TrimSpace(h))
		if header == "" {
			continue
		}
		columns[i] = header
		if header == requiredHeader {
			seenRequired = true
		}
	}
	if !seenRequired {
		return nil, fmt.Errorf("sheet %s is missing the %q column", sheet, requiredHeader)
	}

	rows := make([]sheetRow, 0, len(raw)-1)
	for i, cells := range raw[1:] {
		row := sheetRow{number: i + 2, values: make(map[string]string, len(columns))}
		empty := true
		for col, header := range columns {
			if col < len(cells) {
				row.values[header] = cells[col]
				if strings.TrimSpace(cells[col]) != "" {
					empty = false
				}
			}
		}
		if empty {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func sheetExists(f *excelize.File, name string) bool {
	idx, err := f.GetSheetIndex(name)
	return err == nil && idx >= 0
}

// BuildTemplate produces an empty import workbook with both sheets, their
// header rows, and one example row each.
func BuildTemplate() (*excelize.File, error) {
	f := excelize.NewFile()

	idx, err := f.NewSheet(productsSheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(idx)
	if err := writeRow(f, productsSheet, 1, toAny(productHeaders)); err != nil {
		return nil, err
	}
	if err := writeRow(f, productsSheet, 2, []any{"Mie Goreng Instan", "Grocery", 3500, 2700, 100, 0}); err != nil {
		return nil, err
	}

	if _, err := f.NewSheet(transactionsSheet); err != nil {
		return nil, err
	}
	if err := writeRow(f, transactionsSheet, 1, toAny(transactionHeaders)); err != nil {
		return nil, err
	}
	if err := writeRow(f, transactionsSheet, 2, []any{"TRX-001", "2026-01-15", "14:05:00", "cashier@example.com", "Mie Goreng Instan", 2, 3500}); err != nil {
		return nil, err
	}

	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}
	return f, nil
}

// BuildTransactionsExport renders the ledger as a single-sheet workbook, one
// row per transaction with its lines flattened into a product summary cell.
func BuildTransactionsExport(transactions []domain.Transaction) (*excelize.File, error) {
	f := excelize.NewFile()

	sheet := transactionsSheet
	idx, err := f.NewSheet(sheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}

	header := []any{"Transaction ID", "Date", "Time", "Cashier", "Total Items", "Products", "Total Amount"}
	if err := writeRow(f, sheet, 1, header); err != nil {
		return nil, err
	}

	for i, tx := range transactions {
		totalItems := 0
		names := make([]string, 0, len(tx.Items))
		for _, item := range tx.Items {
			totalItems += item.Quantity
			names = append(names, fmt.Sprintf("%s (x%d)", item.ProductName, item.Quantity))
		}
		row := []any{
			tx.ID,
			tx.Date,
			tx.TimeOfDay,
			tx.CashierName,
			totalItems,
			strings.Join(names, ", "),
			tx.TotalCents,
		}
		if err := writeRow(f, sheet, i+2, row); err != nil {
			return nil, err
		}
	}

	return f, nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
