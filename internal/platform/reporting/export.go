package reporting

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/hospbill/billing/internal/platform/apperr"
)

const (
	KindRevenue     = "revenue"
	KindStock       = "stock"
	KindUtilization = "utilization"

	XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ExportParams selects what an export covers. Range is ignored for stock and
// LowStockOnly for the dated reports.
type ExportParams struct {
	Range        Range
	LowStockOnly bool
}

// Export renders one report as an XLSX workbook and returns its bytes with a
// suggested file name.
func (s *Service) Export(ctx context.Context, kind string, p ExportParams) ([]byte, string, error) {
	w, err := newWorkbook()
	if err != nil {
		return nil, "", err
	}
	defer w.f.Close()

	var name string
	switch kind {
	case KindRevenue:
		rep, err := s.Revenue(ctx, p.Range)
		if err != nil {
			return nil, "", err
		}
		w.revenue(rep)
		name = fmt.Sprintf("revenue_%s_%s.xlsx", rep.Period.Start, rep.Period.End)
	case KindStock:
		rep, err := s.Stock(ctx, p.LowStockOnly)
		if err != nil {
			return nil, "", err
		}
		w.stock(rep)
		name = fmt.Sprintf("stock_%s.xlsx", s.now().UTC().Format(DateLayout))
	case KindUtilization:
		rep, err := s.Utilization(ctx, p.Range)
		if err != nil {
			return nil, "", err
		}
		w.utilization(rep)
		name = fmt.Sprintf("utilization_%s_%s.xlsx", rep.Period.Start, rep.Period.End)
	default:
		return nil, "", apperr.Validation("unknown report %q, expected revenue, stock or utilization", kind)
	}
	if w.err != nil {
		return nil, "", fmt.Errorf("build %s workbook: %w", kind, w.err)
	}

	buf, err := w.f.WriteToBuffer()
	if err != nil {
		return nil, "", fmt.Errorf("write %s workbook: %w", kind, err)
	}
	return buf.Bytes(), name, nil
}

// workbook accumulates the first error so sheet builders can stay linear.
type workbook struct {
	f      *excelize.File
	header int
	first  bool
	err    error
}

func newWorkbook() (*workbook, error) {
	f := excelize.NewFile()
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create header style: %w", err)
	}
	return &workbook{f: f, header: style, first: true}, nil
}

// sheet writes a header row followed by rows. The first sheet reuses the
// default one excelize creates.
func (w *workbook) sheet(name string, header []any, rows [][]any) {
	if w.err != nil {
		return
	}
	if w.first {
		w.err = w.f.SetSheetName("Sheet1", name)
		w.first = false
	} else {
		_, w.err = w.f.NewSheet(name)
	}
	if w.err != nil {
		return
	}
	for i, row := range append([][]any{header}, rows...) {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			w.err = err
			return
		}
		if err := w.f.SetSheetRow(name, cell, &row); err != nil {
			w.err = err
			return
		}
	}
	w.err = w.f.SetRowStyle(name, 1, 1, w.header)
}

func num(d decimal.Decimal) float64 { return d.InexactFloat64() }

func (w *workbook) revenue(rep *RevenueReport) {
	w.sheet("Summary", []any{"Metric", "Value"}, [][]any{
		{"Period start", rep.Period.Start},
		{"Period end", rep.Period.End},
		{"Total invoices", rep.Summary.TotalInvoices},
		{"Total revenue", num(rep.Summary.TotalRevenue)},
		{"Total paid", num(rep.Summary.TotalPaid)},
		{"Total outstanding", num(rep.Summary.TotalOutstanding)},
	})

	daily := make([][]any, 0, len(rep.DailyRevenue))
	for _, d := range rep.DailyRevenue {
		daily = append(daily, []any{d.Date, d.InvoiceCount, num(d.TotalRevenue), num(d.TotalPaid), num(d.Outstanding)})
	}
	w.sheet("Daily Revenue", []any{"Date", "Invoices", "Revenue", "Paid", "Outstanding"}, daily)

	cats := make([][]any, 0, len(rep.RevenueByCategory))
	for _, c := range rep.RevenueByCategory {
		cats = append(cats, []any{c.Category, c.ServiceCount, num(c.TotalRevenue)})
	}
	w.sheet("By Category", []any{"Category", "Services", "Revenue"}, cats)

	methods := make([][]any, 0, len(rep.PaymentsByMethod))
	for _, m := range rep.PaymentsByMethod {
		methods = append(methods, []any{m.Method, m.PaymentCount, num(m.TotalAmount)})
	}
	w.sheet("By Method", []any{"Method", "Payments", "Amount"}, methods)
}

func (w *workbook) stock(rep *StockReport) {
	w.sheet("Summary", []any{"Metric", "Value"}, [][]any{
		{"Total items", rep.Summary.TotalItems},
		{"Low stock items", rep.Summary.LowStockItems},
		{"Inventory value", num(rep.Summary.TotalInventoryValue)},
	})

	items := make([][]any, 0, len(rep.Items))
	for _, it := range rep.Items {
		var pct any = ""
		if it.ProfitMarginPercent != nil {
			pct = num(*it.ProfitMarginPercent)
		}
		reorder := "no"
		if it.NeedsReorder {
			reorder = "yes"
		}
		items = append(items, []any{it.SKU, it.Name, it.Unit, num(it.Price), num(it.CostPrice),
			it.StockQuantity, it.ReorderLevel, reorder, num(it.ProfitMargin), pct})
	}
	w.sheet("Items", []any{"SKU", "Name", "Unit", "Price", "Cost", "Stock", "Reorder Level",
		"Needs Reorder", "Margin", "Margin %"}, items)
}

func usageRows(in []UsageRow) [][]any {
	out := make([][]any, 0, len(in))
	for _, u := range in {
		out = append(out, []any{u.Code, u.Name, u.Category, u.UsageCount, u.TotalQuantity,
			num(u.TotalRevenue), num(u.AveragePrice)})
	}
	return out
}

func (w *workbook) utilization(rep *UtilizationReport) {
	w.sheet("Summary", []any{"Metric", "Value"}, [][]any{
		{"Period start", rep.Period.Start},
		{"Period end", rep.Period.End},
		{"Service lines", rep.Summary.TotalServices},
		{"Pharmacy lines", rep.Summary.TotalPharmacy},
		{"Total revenue", num(rep.Summary.TotalRevenue)},
	})
	usage := []any{"Code", "Name", "Category", "Lines", "Quantity", "Revenue", "Average Price"}
	w.sheet("Services", usage, usageRows(rep.ServiceUtilization))
	w.sheet("Pharmacy", usage, usageRows(rep.PharmacyUtilization))

	daily := make([][]any, 0, len(rep.DailyActivity))
	for _, d := range rep.DailyActivity {
		daily = append(daily, []any{d.Date, d.InvoiceCount, d.ItemCount, num(d.DailyRevenue)})
	}
	w.sheet("Daily Activity", []any{"Date", "Invoices", "Lines", "Revenue"}, daily)
}
