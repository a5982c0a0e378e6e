package httpapi

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"sipim/backend/internal/domain"
)

func dashboardToCSV(report domain.DashboardReport) string {
	lines := []string{
		"section,key,value",
		fmt.Sprintf("summary,start_date,%s", report.StartDate),
		fmt.Sprintf("summary,end_date,%s", report.EndDate),
		fmt.Sprintf("summary,total_revenue_cents,%d", report.Stats.TotalRevenueCents),
		fmt.Sprintf("summary,total_transactions,%d", report.Stats.TotalTransactions),
		fmt.Sprintf("summary,total_products,%d", report.Stats.TotalProducts),
		fmt.Sprintf("summary,low_stock_count,%d", report.Stats.LowStockCount),
	}
	for _, point := range report.SalesChart {
		lines = append(lines, fmt.Sprintf("sales,%s,%d", point.Date, point.RevenueCents))
	}
	for _, product := range report.BestProducts {
		lines = append(lines, fmt.Sprintf("best_product,%s,%d", csvEscape(product.Name), product.RevenueCents))
	}
	for _, category := range report.CategoryStats {
		lines = append(lines, fmt.Sprintf("category,%s,%d", csvEscape(category.Name), category.RevenueCents))
	}
	return strings.Join(lines, "\n") + "\n"
}

func csvEscape(value string) string {
	if strings.ContainsAny(value, ",\"\n") {
		return "\"" + strings.ReplaceAll(value, "\"", "\"\"") + "\""
	}
	return value
}

// dashboardHTMLTmpl renders the printable sales report. All user-controlled
// fields are auto-escaped by html/template to prevent XSS.
var dashboardHTMLTmpl = template.Must(template.New("dashboard").Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <title>Sales Report {{.StartDate}} to {{.EndDate}}</title>
  <style>
    body { font-family: sans-serif; margin: 2rem; }
    table { border-collapse: collapse; margin-bottom: 1.5rem; }
    th, td { border: 1px solid #999; padding: 0.3rem 0.8rem; text-align: left; }
    h2 { margin-top: 1.5rem; }
  </style>
</head>
<body>
  <h1>Sales Report</h1>
  <p>{{.StartDate}} to {{.EndDate}}</p>

  <table>
    <tr><th>Total Revenue</th><td>{{.Stats.TotalRevenueCents}}</td></tr>
    <tr><th>Transactions</th><td>{{.Stats.TotalTransactions}}</td></tr>
    <tr><th>Products</th><td>{{.Stats.TotalProducts}}</td></tr>
    <tr><th>Low Stock</th><td>{{.Stats.LowStockCount}}</td></tr>
  </table>

  <h2>Daily Sales</h2>
  <table>
    <tr><th>Date</th><th>Revenue</th></tr>
    {{range .SalesChart}}<tr><td>{{.Date}}</td><td>{{.RevenueCents}}</td></tr>
    {{end}}
  </table>

  <h2>Best Selling Products</h2>
  <table>
    <tr><th>Product</th><th>Sold</th><th>Revenue</th></tr>
    {{range .BestProducts}}<tr><td>{{.Name}}</td><td>{{.Sold}}</td><td>{{.RevenueCents}}</td></tr>
    {{end}}
  </table>

  <h2>Revenue by Category</h2>
  <table>
    <tr><th>Category</th><th>Revenue</th></tr>
    {{range .CategoryStats}}<tr><td>{{.Name}}</td><td>{{.RevenueCents}}</td></tr>
    {{end}}
  </table>

  <h2>Recent Transactions</h2>
  <table>
    <tr><th>ID</th><th>Cashier</th><th>Date</th><th>Time</th><th>Total</th></tr>
    {{range .RecentTransactions}}<tr><td>{{.ID}}</td><td>{{.CashierName}}</td><td>{{.Date}}</td><td>{{.Time}}</td><td>{{.TotalCents}}</td></tr>
    {{end}}
  </table>
</body>
</html>
`))

func dashboardToPrintableHTML(report domain.DashboardReport) string {
	var buf bytes.Buffer
	if err := dashboardHTMLTmpl.Execute(&buf, report); err != nil {
		// Fallback: return a plain-text error page rather than leaking internal details.
		return "<!doctype html><html><body><p>Report rendering error.</p></body></html>"
	}
	return buf.String()
}
