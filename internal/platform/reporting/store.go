package reporting

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Store runs the read-only aggregations behind each report. Time bounds are
// half-open: from <= t < until.
type Store interface {
	DailyRevenue(ctx context.Context, from, until time.Time) ([]DailyRevenue, error)
	RevenueByCategory(ctx context.Context, from, until time.Time) ([]CategoryRevenue, error)
	PaymentsByMethod(ctx context.Context, from, until time.Time) ([]MethodTotal, error)
	StockItems(ctx context.Context, lowOnly bool) ([]StockRow, error)
	LowStockCount(ctx context.Context) (int, error)
	InventoryValue(ctx context.Context) (decimal.Decimal, error)
	ServiceUsage(ctx context.Context, from, until time.Time) ([]UsageRow, error)
	PharmacyUsage(ctx context.Context, from, until time.Time) ([]UsageRow, error)
	DailyActivity(ctx context.Context, from, until time.Time) ([]DailyActivity, error)
}

type storePG struct {
	pool *pgxpool.Pool
}

func NewStorePG(pool *pgxpool.Pool) Store {
	return &storePG{pool: pool}
}

// collect runs q and scans each row with scan.
func collect[T any](ctx context.Context, pool *pgxpool.Pool, what, q string, scan func(pgx.Rows, *T) error, args ...any) ([]T, error) {
	rows, err := pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		var v T
		if err := scan(rows, &v); err != nil {
			return nil, fmt.Errorf("scan %s: %w", what, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	return out, nil
}

func (s *storePG) DailyRevenue(ctx context.Context, from, until time.Time) ([]DailyRevenue, error) {
	return collect(ctx, s.pool, "daily revenue", `
		SELECT to_char(i.issued_at::date, 'YYYY-MM-DD'), COUNT(*),
			COALESCE(SUM(i.total_amount), 0), COALESCE(SUM(i.paid_amount), 0),
			COALESCE(SUM(i.total_amount - i.paid_amount), 0)
		FROM invoices i
		WHERE i.issued_at >= $1 AND i.issued_at < $2
		GROUP BY i.issued_at::date
		ORDER BY i.issued_at::date DESC`,
		func(r pgx.Rows, v *DailyRevenue) error {
			return r.Scan(&v.Date, &v.InvoiceCount, &v.TotalRevenue, &v.TotalPaid, &v.Outstanding)
		}, from, until)
}

func (s *storePG) RevenueByCategory(ctx context.Context, from, until time.Time) ([]CategoryRevenue, error) {
	return collect(ctx, s.pool, "revenue by category", `
		SELECT s.category, COUNT(ii.id), COALESCE(SUM(ii.line_total), 0)
		FROM invoice_items ii
		JOIN invoices i ON ii.invoice_id = i.id
		JOIN services s ON ii.item_id = s.id AND ii.item_type = 'service'
		WHERE i.issued_at >= $1 AND i.issued_at < $2
		GROUP BY s.category
		ORDER BY 3 DESC`,
		func(r pgx.Rows, v *CategoryRevenue) error {
			return r.Scan(&v.Category, &v.ServiceCount, &v.TotalRevenue)
		}, from, until)
}

func (s *storePG) PaymentsByMethod(ctx context.Context, from, until time.Time) ([]MethodTotal, error) {
	return collect(ctx, s.pool, "payments by method", `
		SELECT p.method, COUNT(*), COALESCE(SUM(p.amount), 0)
		FROM payments p
		WHERE p.created_at >= $1 AND p.created_at < $2
		GROUP BY p.method
		ORDER BY 3 DESC`,
		func(r pgx.Rows, v *MethodTotal) error {
			return r.Scan(&v.Method, &v.PaymentCount, &v.TotalAmount)
		}, from, until)
}

func (s *storePG) StockItems(ctx context.Context, lowOnly bool) ([]StockRow, error) {
	where := ""
	if lowOnly {
		where = ` WHERE stock_quantity <= reorder_level AND active`
	}
	return collect(ctx, s.pool, "stock items", `
		SELECT sku, name, unit, price, cost_price, stock_quantity, reorder_level
		FROM pharmacy_items`+where+`
		ORDER BY (stock_quantity <= reorder_level) DESC, stock_quantity ASC`,
		func(r pgx.Rows, v *StockRow) error {
			return r.Scan(&v.SKU, &v.Name, &v.Unit, &v.Price, &v.CostPrice, &v.StockQuantity, &v.ReorderLevel)
		})
}

func (s *storePG) LowStockCount(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM pharmacy_items WHERE stock_quantity <= reorder_level AND active`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("low stock count: %w", err)
	}
	return n, nil
}

func (s *storePG) InventoryValue(ctx context.Context) (decimal.Decimal, error) {
	var v decimal.Decimal
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(stock_quantity * cost_price), 0) FROM pharmacy_items WHERE active`).Scan(&v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("inventory value: %w", err)
	}
	return v, nil
}

func scanUsage(r pgx.Rows, v *UsageRow) error {
	return r.Scan(&v.Code, &v.Name, &v.Category, &v.UsageCount, &v.TotalQuantity, &v.TotalRevenue, &v.AveragePrice)
}

func (s *storePG) ServiceUsage(ctx context.Context, from, until time.Time) ([]UsageRow, error) {
	return collect(ctx, s.pool, "service usage", `
		SELECT s.code, s.name, s.category, COUNT(ii.id), COALESCE(SUM(ii.quantity), 0),
			COALESCE(SUM(ii.line_total), 0), ROUND(AVG(ii.unit_price), 2)
		FROM invoice_items ii
		JOIN invoices i ON ii.invoice_id = i.id
		JOIN services s ON ii.item_id = s.id AND ii.item_type = 'service'
		WHERE i.issued_at >= $1 AND i.issued_at < $2
		GROUP BY s.id, s.code, s.name, s.category
		ORDER BY 6 DESC`,
		scanUsage, from, until)
}

func (s *storePG) PharmacyUsage(ctx context.Context, from, until time.Time) ([]UsageRow, error) {
	return collect(ctx, s.pool, "pharmacy usage", `
		SELECT p.sku, p.name, p.unit, COUNT(ii.id), COALESCE(SUM(ii.quantity), 0),
			COALESCE(SUM(ii.line_total), 0), ROUND(AVG(ii.unit_price), 2)
		FROM invoice_items ii
		JOIN invoices i ON ii.invoice_id = i.id
		JOIN pharmacy_items p ON ii.item_id = p.id AND ii.item_type = 'pharmacy'
		WHERE i.issued_at >= $1 AND i.issued_at < $2
		GROUP BY p.id, p.sku, p.name, p.unit
		ORDER BY 6 DESC`,
		scanUsage, from, until)
}

func (s *storePG) DailyActivity(ctx context.Context, from, until time.Time) ([]DailyActivity, error) {
	return collect(ctx, s.pool, "daily activity", `
		SELECT to_char(i.issued_at::date, 'YYYY-MM-DD'), COUNT(DISTINCT i.id), COUNT(ii.id),
			COALESCE(SUM(ii.line_total), 0)
		FROM invoices i
		JOIN invoice_items ii ON i.id = ii.invoice_id
		WHERE i.issued_at >= $1 AND i.issued_at < $2
		GROUP BY i.issued_at::date
		ORDER BY i.issued_at::date DESC`,
		func(r pgx.Rows, v *DailyActivity) error {
			return r.Scan(&v.Date, &v.InvoiceCount, &v.ItemCount, &v.DailyRevenue)
		}, from, until)
}
