package catalog

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hospbill/billing/internal/domain/audit"
	"github.com/hospbill/billing/internal/platform/apperr"
	"github.com/hospbill/billing/internal/platform/auth"
)

type nopTx struct{}

func (nopTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

type recordedAudit struct {
	actor    auth.Principal
	targetID string
	changes  audit.Changes
}

type memSink struct {
	entries []recordedAudit
}

func (m *memSink) Record(_ context.Context, actor auth.Principal, targetID string, c audit.Changes) error {
	m.entries = append(m.entries, recordedAudit{actor: actor, targetID: targetID, changes: c})
	return nil
}

type mockServiceRepo struct {
	store map[uuid.UUID]*Service
}

func newMockServiceRepo() *mockServiceRepo {
	return &mockServiceRepo{store: make(map[uuid.UUID]*Service)}
}

func (m *mockServiceRepo) Create(_ context.Context, s *Service) error {
	for _, ex := range m.store {
		if ex.Code == s.Code {
			return apperr.Conflict("service code already exists")
		}
	}
	s.ID = uuid.New()
	s.CreatedAt = time.Now()
	cp := *s
	m.store[s.ID] = &cp
	return nil
}

func (m *mockServiceRepo) Update(_ context.Context, s *Service) error {
	cur, ok := m.store[s.ID]
	if !ok {
		return apperr.NotFound("service", s.ID)
	}
	cp := *s
	cp.BasePrice = cur.BasePrice
	m.store[s.ID] = &cp
	return nil
}

func (m *mockServiceRepo) GetByID(_ context.Context, id uuid.UUID) (*Service, error) {
	s, ok := m.store[id]
	if !ok {
		return nil, apperr.NotFound("service", id)
	}
	cp := *s
	return &cp, nil
}

func (m *mockServiceRepo) GetByCode(_ context.Context, code string) (*Service, error) {
	for _, s := range m.store {
		if s.Code == code {
			cp := *s
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("service", code)
}

func (m *mockServiceRepo) LockForUpdate(ctx context.Context, id uuid.UUID) (*Service, error) {
	return m.GetByID(ctx, id)
}

func (m *mockServiceRepo) SetPrice(_ context.Context, id uuid.UUID, price decimal.Decimal) error {
	s, ok := m.store[id]
	if !ok {
		return apperr.NotFound("service", id)
	}
	s.BasePrice = price
	return nil
}

func (m *mockServiceRepo) List(_ context.Context, f ServiceFilter, limit, offset int) ([]*Service, int, error) {
	var out []*Service
	for _, s := range m.store {
		if f.ActiveOnly && !s.Active {
			continue
		}
		if f.Category != "" && s.Category != f.Category {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, len(out), nil
}

type mockPharmacyRepo struct {
	store map[uuid.UUID]*PharmacyItem
}

func newMockPharmacyRepo() *mockPharmacyRepo {
	return &mockPharmacyRepo{store: make(map[uuid.UUID]*PharmacyItem)}
}

func (m *mockPharmacyRepo) Create(_ context.Context, p *PharmacyItem) error {
	for _, ex := range m.store {
		if strings.EqualFold(ex.SKU, p.SKU) {
			return apperr.Conflict("SKU already exists")
		}
	}
	p.ID = uuid.New()
	cp := *p
	m.store[p.ID] = &cp
	return nil
}

func (m *mockPharmacyRepo) Update(_ context.Context, p *PharmacyItem) error {
	cur, ok := m.store[p.ID]
	if !ok {
		return apperr.NotFound("pharmacy item", p.ID)
	}
	cp := *p
	cp.Price = cur.Price
	cp.StockQuantity = cur.StockQuantity
	m.store[p.ID] = &cp
	return nil
}

func (m *mockPharmacyRepo) GetByID(_ context.Context, id uuid.UUID) (*PharmacyItem, error) {
	p, ok := m.store[id]
	if !ok {
		return nil, apperr.NotFound("pharmacy item", id)
	}
	cp := *p
	return &cp, nil
}

func (m *mockPharmacyRepo) GetBySKU(_ context.Context, sku string) (*PharmacyItem, error) {
	for _, p := range m.store {
		if p.SKU == sku {
			cp := *p
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("pharmacy item", sku)
}

func (m *mockPharmacyRepo) LockForUpdate(ctx context.Context, id uuid.UUID) (*PharmacyItem, error) {
	return m.GetByID(ctx, id)
}

func (m *mockPharmacyRepo) SetPrice(_ context.Context, id uuid.UUID, price decimal.Decimal) error {
	p, ok := m.store[id]
	if !ok {
		return apperr.NotFound("pharmacy item", id)
	}
	p.Price = price
	return nil
}

func (m *mockPharmacyRepo) SetStock(_ context.Context, id uuid.UUID, qty int) error {
	p, ok := m.store[id]
	if !ok {
		return apperr.NotFound("pharmacy item", id)
	}
	p.StockQuantity = qty
	return nil
}

func (m *mockPharmacyRepo) DecrementStock(_ context.Context, id uuid.UUID, qty int) (bool, error) {
	p, ok := m.store[id]
	if !ok || p.StockQuantity < qty {
		return false, nil
	}
	p.StockQuantity -= qty
	return true, nil
}

func (m *mockPharmacyRepo) List(_ context.Context, f PharmacyFilter, limit, offset int) ([]*PharmacyItem, int, error) {
	var out []*PharmacyItem
	for _, p := range m.store {
		if (f.ActiveOnly || f.LowStockOnly) && !p.Active {
			continue
		}
		if f.LowStockOnly && !p.LowStock() {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, len(out), nil
}

type mockHistoryRepo struct {
	entries []*PriceHistoryEntry
}

func (m *mockHistoryRepo) Insert(_ context.Context, e *PriceHistoryEntry) error {
	e.ID = uuid.New()
	e.ChangedAt = time.Now()
	m.entries = append(m.entries, e)
	return nil
}

func (m *mockHistoryRepo) ListByEntity(_ context.Context, t EntityType, id uuid.UUID) ([]*PriceHistoryEntry, error) {
	var out []*PriceHistoryEntry
	for i := len(m.entries) - 1; i >= 0; i-- {
		if e := m.entries[i]; e.EntityType == t && e.EntityID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

type fixture struct {
	store    *Store
	services *mockServiceRepo
	pharmacy *mockPharmacyRepo
	history  *mockHistoryRepo
	sink     *memSink
}

func newFixture() *fixture {
	f := &fixture{
		services: newMockServiceRepo(),
		pharmacy: newMockPharmacyRepo(),
		history:  &mockHistoryRepo{},
		sink:     &memSink{},
	}
	f.store = NewStore(f.services, f.pharmacy, f.history, nopTx{}, f.sink)
	return f
}

func (f *fixture) addPharmacyItem(sku string, price string, stock, reorder int) *PharmacyItem {
	p := &PharmacyItem{SKU: sku, Name: "Item " + sku, Unit: "tablet", Price: decimal.RequireFromString(price),
		StockQuantity: stock, ReorderLevel: reorder, Active: true}
	_ = f.pharmacy.Create(context.Background(), p)
	return p
}

func (f *fixture) addService(code, category, price string) *Service {
	s := &Service{Code: code, Name: "Service " + code, Category: category, BasePrice: decimal.RequireFromString(price), Active: true}
	_ = f.services.Create(context.Background(), s)
	return s
}

var admin = auth.Principal{UserID: uuid.New(), Email: "admin@hospital.test", Role: auth.RoleAdmin}
