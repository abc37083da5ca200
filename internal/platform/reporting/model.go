package reporting

import (
	"time"

	"github.com/shopspring/decimal"
)

const DateLayout = "2006-01-02"

// Range is an inclusive span of calendar days.
type Range struct {
	Start time.Time
	End   time.Time
}

// until returns the exclusive upper bound used in queries.
func (r Range) until() time.Time {
	return r.End.AddDate(0, 0, 1)
}

type Period struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func (r Range) period() Period {
	return Period{Start: r.Start.Format(DateLayout), End: r.End.Format(DateLayout)}
}

type DailyRevenue struct {
	Date         string          `json:"date"`
	InvoiceCount int             `json:"invoice_count"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	TotalPaid    decimal.Decimal `json:"total_paid"`
	Outstanding  decimal.Decimal `json:"outstanding"`
}

type CategoryRevenue struct {
	Category     string          `json:"category"`
	ServiceCount int             `json:"service_count"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
}

type MethodTotal struct {
	Method       string          `json:"method"`
	PaymentCount int             `json:"payment_count"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
}

type RevenueSummary struct {
	TotalInvoices    int             `json:"total_invoices"`
	TotalRevenue     decimal.Decimal `json:"total_revenue"`
	TotalPaid        decimal.Decimal `json:"total_paid"`
	TotalOutstanding decimal.Decimal `json:"total_outstanding"`
}

type RevenueReport struct {
	Period            Period            `json:"period"`
	Summary           RevenueSummary    `json:"summary"`
	DailyRevenue      []DailyRevenue    `json:"daily_revenue"`
	RevenueByCategory []CategoryRevenue `json:"revenue_by_category"`
	PaymentsByMethod  []MethodTotal     `json:"payments_by_method"`
}

type StockRow struct {
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	Unit          string          `json:"unit"`
	Price         decimal.Decimal `json:"price"`
	CostPrice     decimal.Decimal `json:"cost_price"`
	StockQuantity int             `json:"stock_quantity"`
	ReorderLevel  int             `json:"reorder_level"`
	NeedsReorder  bool            `json:"needs_reorder"`
	ProfitMargin  decimal.Decimal `json:"profit_margin"`
	// nil when the item has no cost price
	ProfitMarginPercent *decimal.Decimal `json:"profit_margin_percent"`
}

type StockSummary struct {
	TotalItems          int             `json:"total_items"`
	LowStockItems       int             `json:"low_stock_items"`
	TotalInventoryValue decimal.Decimal `json:"total_inventory_value"`
}

type StockReport struct {
	Summary StockSummary `json:"summary"`
	Items   []StockRow   `json:"items"`
}

// UsageRow aggregates invoice lines for one catalog entity. Category is the
// service category for services and the dispensing unit for pharmacy items.
type UsageRow struct {
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	Category      string          `json:"category"`
	UsageCount    int             `json:"usage_count"`
	TotalQuantity int             `json:"total_quantity"`
	TotalRevenue  decimal.Decimal `json:"total_revenue"`
	AveragePrice  decimal.Decimal `json:"average_price"`
}

type DailyActivity struct {
	Date         string          `json:"date"`
	InvoiceCount int             `json:"invoice_count"`
	ItemCount    int             `json:"item_count"`
	DailyRevenue decimal.Decimal `json:"daily_revenue"`
}

type UtilizationSummary struct {
	TotalServices int             `json:"total_services"`
	TotalPharmacy int             `json:"total_pharmacy"`
	TotalRevenue  decimal.Decimal `json:"total_revenue"`
}

type UtilizationReport struct {
	Period              Period             `json:"period"`
	ServiceUtilization  []UsageRow         `json:"service_utilization"`
	PharmacyUtilization []UsageRow         `json:"pharmacy_utilization"`
	DailyActivity       []DailyActivity    `json:"daily_activity"`
	Summary             UtilizationSummary `json:"summary"`
}
