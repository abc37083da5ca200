package pricing

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hospbill/billing/internal/domain/audit"
	"github.com/hospbill/billing/internal/domain/catalog"
	"github.com/hospbill/billing/internal/platform/apperr"
	"github.com/hospbill/billing/internal/platform/auth"
)

type nopTx struct{}

func (nopTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

type memSink struct {
	changes []audit.Changes
	actors  []auth.Principal
}

func (m *memSink) Record(_ context.Context, actor auth.Principal, _ string, c audit.Changes) error {
	m.changes = append(m.changes, c)
	m.actors = append(m.actors, actor)
	return nil
}

// fakeCatalog keeps entities in memory and records price updates.
type fakeCatalog struct {
	entities map[uuid.UUID]*catalog.Entity
	updates  []catalog.PriceUpdate
	actors   []auth.Principal
	failFor  map[uuid.UUID]error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{entities: make(map[uuid.UUID]*catalog.Entity), failFor: make(map[uuid.UUID]error)}
}

func (f *fakeCatalog) add(t catalog.EntityType, identifier, price string) *catalog.Entity {
	e := &catalog.Entity{Type: t, ID: uuid.New(), Identifier: identifier, Name: "Name " + identifier,
		Price: decimal.RequireFromString(price), Active: true}
	f.entities[e.ID] = e
	return e
}

func (f *fakeCatalog) Resolve(_ context.Context, t catalog.EntityType, id uuid.UUID) (catalog.Entity, error) {
	if e, ok := f.entities[id]; ok && e.Type == t {
		return *e, nil
	}
	return catalog.Entity{}, apperr.NotFound(string(t), id)
}

func (f *fakeCatalog) ResolveByIdentifier(_ context.Context, t catalog.EntityType, identifier string) (catalog.Entity, error) {
	for _, e := range f.entities {
		if e.Type == t && e.Identifier == identifier {
			return *e, nil
		}
	}
	return catalog.Entity{}, apperr.NotFound(string(t), identifier)
}

func (f *fakeCatalog) UpdatePrice(_ context.Context, actor auth.Principal, u catalog.PriceUpdate) (*catalog.PriceHistoryEntry, error) {
	if err := f.failFor[u.EntityID]; err != nil {
		return nil, err
	}
	e, ok := f.entities[u.EntityID]
	if !ok {
		return nil, apperr.NotFound(string(u.EntityType), u.EntityID)
	}
	entry := &catalog.PriceHistoryEntry{ID: uuid.New(), EntityType: u.EntityType, EntityID: u.EntityID,
		OldPrice: e.Price, NewPrice: u.NewPrice, Reason: u.Reason, ChangedAt: time.Now()}
	e.Price = u.NewPrice
	f.updates = append(f.updates, u)
	f.actors = append(f.actors, actor)
	return entry, nil
}

type memRepo struct {
	rows   map[uuid.UUID]*ScheduledPriceChange
	locked map[uuid.UUID]bool
}

func newMemRepo() *memRepo {
	return &memRepo{rows: make(map[uuid.UUID]*ScheduledPriceChange), locked: make(map[uuid.UUID]bool)}
}

func (m *memRepo) Create(_ context.Context, c *ScheduledPriceChange) error {
	c.ID = uuid.New()
	c.CreatedAt = time.Now()
	cp := *c
	m.rows[c.ID] = &cp
	return nil
}

func (m *memRepo) GetByID(_ context.Context, id uuid.UUID) (*ScheduledPriceChange, error) {
	c, ok := m.rows[id]
	if !ok {
		return nil, apperr.NotFound("scheduled price change", id)
	}
	cp := *c
	return &cp, nil
}

func (m *memRepo) CancelPending(_ context.Context, id uuid.UUID) (*ScheduledPriceChange, error) {
	c, ok := m.rows[id]
	if !ok || c.Status != StatusPending {
		return nil, apperr.NotFoundf("scheduled change not found or already applied/cancelled")
	}
	c.Status = StatusCancelled
	cp := *c
	return &cp, nil
}

func (m *memRepo) List(_ context.Context, f ListFilter, limit, offset int) ([]*ScheduledPriceChange, int, error) {
	var out []*ScheduledPriceChange
	for _, c := range m.rows {
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledFor.Before(out[j].ScheduledFor) })
	return out, len(out), nil
}

func (m *memRepo) DueIDs(_ context.Context, today time.Time) ([]uuid.UUID, error) {
	var due []*ScheduledPriceChange
	for _, c := range m.rows {
		if c.Status == StatusPending && !c.ScheduledFor.After(today) {
			due = append(due, c)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledFor.Before(due[j].ScheduledFor) })
	ids := make([]uuid.UUID, len(due))
	for i, c := range due {
		ids[i] = c.ID
	}
	return ids, nil
}

func (m *memRepo) LockDue(_ context.Context, id uuid.UUID, today time.Time) (*ScheduledPriceChange, bool, error) {
	c, ok := m.rows[id]
	if !ok || m.locked[id] || c.Status != StatusPending || c.ScheduledFor.After(today) {
		return nil, false, nil
	}
	cp := *c
	return &cp, true, nil
}

func (m *memRepo) MarkApplied(_ context.Context, id uuid.UUID, at time.Time) error {
	c, ok := m.rows[id]
	if !ok || c.Status != StatusPending {
		return errors.New("not pending")
	}
	c.Status = StatusApplied
	c.AppliedAt = &at
	return nil
}

type fixture struct {
	svc  *Service
	repo *memRepo
	cat  *fakeCatalog
	sink *memSink
	now  time.Time
}

func newFixture() *fixture {
	f := &fixture{
		repo: newMemRepo(),
		cat:  newFakeCatalog(),
		sink: &memSink{},
		now:  time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC),
	}
	f.svc = NewService(f.repo, f.cat, nopTx{}, f.sink)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) addPending(e *catalog.Entity, price string, on time.Time, createdBy *uuid.UUID) *ScheduledPriceChange {
	c := &ScheduledPriceChange{EntityType: e.Type, EntityID: e.ID, NewPrice: decimal.RequireFromString(price),
		ScheduledFor: on, Status: StatusPending, CreatedBy: createdBy, Reason: "tariff review"}
	_ = f.repo.Create(context.Background(), c)
	return f.repo.rows[c.ID]
}

var admin = auth.Principal{UserID: uuid.New(), Email: "admin@hospital.test", Role: auth.RoleAdmin}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(y int, m time.Month, dd int) time.Time { return time.Date(y, m, dd, 0, 0, 0, 0, time.UTC) }
