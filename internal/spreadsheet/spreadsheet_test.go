package spreadsheet

import (
	"bytes"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"sipim/backend/internal/domain"
)

func buildWorkbook(t *testing.T, build func(f *excelize.File)) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	build(f)
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf
}

func TestParseWorkbookMapsColumnsByHeaderName(t *testing.T) {
	buf := buildWorkbook(t, func(f *excelize.File) {
		idx, _ := f.NewSheet("Products")
		f.SetActiveSheet(idx)
		// Shuffled header order and odd casing must still map correctly.
		_ = f.SetSheetRow("Products", "A1", &[]any{" Stock ", "NAME", "price", "category"})
		_ = f.SetSheetRow("Products", "A2", &[]any{50, "Mie Goreng", 3500, "Grocery"})
		_ = f.SetSheetRow("Products", "A3", &[]any{"", "", "", ""})
		_ = f.SetSheetRow("Products", "A4", &[]any{10, "Kopi Sachet", 2600, "Beverage"})
	})

	wb, err := ParseWorkbook(buf)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if len(wb.Products) != 2 {
		t.Fatalf("expected 2 product rows (blank row dropped), got %d", len(wb.Products))
	}
	first := wb.Products[0]
	if first.Row != 2 || first.Name != "Mie Goreng" || first.Category != "Grocery" || first.Price != "3500" || first.Stock != "50" {
		t.Fatalf("unexpected first row: %+v", first)
	}
	if wb.Products[1].Row != 4 {
		t.Fatalf("row numbers must track sheet positions, got %d", wb.Products[1].Row)
	}
}

func TestParseWorkbookRejectsWorkbookWithoutKnownSheets(t *testing.T) {
	buf := buildWorkbook(t, func(f *excelize.File) {
		_ = f.SetSheetRow("Sheet1", "A1", &[]any{"whatever"})
	})

	if _, err := ParseWorkbook(buf); err == nil {
		t.Fatalf("expected error for workbook without Products or Transactions sheet")
	}
}

func TestParseWorkbookRejectsSheetMissingRequiredColumn(t *testing.T) {
	buf := buildWorkbook(t, func(f *excelize.File) {
		idx, _ := f.NewSheet("Transactions")
		f.SetActiveSheet(idx)
		_ = f.SetSheetRow("Transactions", "A1", &[]any{"date", "product_name", "quantity"})
	})

	_, err := ParseWorkbook(buf)
	if err == nil || !strings.Contains(err.Error(), "transaction_id") {
		t.Fatalf("expected missing transaction_id error, got %v", err)
	}
}

func TestBuildTemplateRoundTripsThroughParse(t *testing.T) {
	f, err := BuildTemplate()
	if err != nil {
		t.Fatalf("build template: %v", err)
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write template: %v", err)
	}

	wb, err := ParseWorkbook(buf)
	if err != nil {
		t.Fatalf("parse template: %v", err)
	}
	if len(wb.Products) != 1 || wb.Products[0].Name != "Mie Goreng Instan" {
		t.Fatalf("expected template example product, got %+v", wb.Products)
	}
	if len(wb.Transactions) != 1 || wb.Transactions[0].TransactionID != "TRX-001" {
		t.Fatalf("expected template example transaction, got %+v", wb.Transactions)
	}
}

func TestBuildTransactionsExportFlattensLines(t *testing.T) {
	f, err := BuildTransactionsExport([]domain.Transaction{
		{
			ID:          "tx-1",
			CashierName: "Kasir Satu",
			TotalCents:  9600,
			Date:        "2026-08-20",
			TimeOfDay:   "14:05:00",
			Items: []domain.TransactionItem{
				{ProductName: "Mie Goreng", Quantity: 2, PriceCents: 3500},
				{ProductName: "Kopi Sachet", Quantity: 1, PriceCents: 2600},
			},
		},
	})
	if err != nil {
		t.Fatalf("build export: %v", err)
	}

	rows, err := f.GetRows("Transactions")
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header plus one row, got %d", len(rows))
	}
	row := rows[1]
	if row[0] != "tx-1" || row[3] != "Kasir Satu" || row[4] != "3" {
		t.Fatalf("unexpected export row: %+v", row)
	}
	if !strings.Contains(row[5], "Mie Goreng (x2)") || !strings.Contains(row[5], "Kopi Sachet (x1)") {
		t.Fatalf("expected flattened products cell, got %q", row[5])
	}
}
