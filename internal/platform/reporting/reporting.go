package reporting

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/hospbill/billing/internal/platform/apperr"
	"github.com/hospbill/billing/internal/platform/money"
)

// Service builds the read-only management reports. Each report fans its
// queries out concurrently and assembles the summary from the results.
type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// ResolveRange validates an optional date span. With neither bound given it
// defaults to the current calendar month.
func (s *Service) ResolveRange(start, end *time.Time) (Range, error) {
	switch {
	case start == nil && end == nil:
		now := s.now().UTC()
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return Range{Start: first, End: first.AddDate(0, 1, -1)}, nil
	case start == nil || end == nil:
		return Range{}, apperr.Validation("start_date and end_date must be given together")
	case end.Before(*start):
		return Range{}, apperr.Validation("end_date must not be before start_date")
	}
	return Range{Start: *start, End: *end}, nil
}

func (s *Service) Revenue(ctx context.Context, r Range) (*RevenueReport, error) {
	rep := &RevenueReport{Period: r.period()}
	from, until := r.Start, r.until()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		rep.DailyRevenue, err = s.store.DailyRevenue(gctx, from, until)
		return err
	})
	g.Go(func() (err error) {
		rep.RevenueByCategory, err = s.store.RevenueByCategory(gctx, from, until)
		return err
	})
	g.Go(func() (err error) {
		rep.PaymentsByMethod, err = s.store.PaymentsByMethod(gctx, from, until)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, d := range rep.DailyRevenue {
		rep.Summary.TotalInvoices += d.InvoiceCount
		rep.Summary.TotalRevenue = rep.Summary.TotalRevenue.Add(d.TotalRevenue)
		rep.Summary.TotalPaid = rep.Summary.TotalPaid.Add(d.TotalPaid)
		rep.Summary.TotalOutstanding = rep.Summary.TotalOutstanding.Add(d.Outstanding)
	}
	return rep, nil
}

func (s *Service) Stock(ctx context.Context, lowOnly bool) (*StockReport, error) {
	rep := &StockReport{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		rep.Items, err = s.store.StockItems(gctx, lowOnly)
		return err
	})
	g.Go(func() (err error) {
		rep.Summary.LowStockItems, err = s.store.LowStockCount(gctx)
		return err
	})
	g.Go(func() (err error) {
		rep.Summary.TotalInventoryValue, err = s.store.InventoryValue(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i := range rep.Items {
		it := &rep.Items[i]
		it.NeedsReorder = it.StockQuantity <= it.ReorderLevel
		it.ProfitMargin = it.Price.Sub(it.CostPrice)
		if !it.CostPrice.IsZero() {
			pct := money.Percent(it.ProfitMargin, it.CostPrice)
			it.ProfitMarginPercent = &pct
		}
	}
	rep.Summary.TotalItems = len(rep.Items)
	return rep, nil
}

func (s *Service) Utilization(ctx context.Context, r Range) (*UtilizationReport, error) {
	rep := &UtilizationReport{Period: r.period()}
	from, until := r.Start, r.until()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		rep.ServiceUtilization, err = s.store.ServiceUsage(gctx, from, until)
		return err
	})
	g.Go(func() (err error) {
		rep.PharmacyUtilization, err = s.store.PharmacyUsage(gctx, from, until)
		return err
	})
	g.Go(func() (err error) {
		rep.DailyActivity, err = s.store.DailyActivity(gctx, from, until)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	revenue := decimal.Zero
	for _, u := range rep.ServiceUtilization {
		rep.Summary.TotalServices += u.UsageCount
		revenue = revenue.Add(u.TotalRevenue)
	}
	for _, u := range rep.PharmacyUtilization {
		rep.Summary.TotalPharmacy += u.UsageCount
		revenue = revenue.Add(u.TotalRevenue)
	}
	rep.Summary.TotalRevenue = revenue
	return rep, nil
}
