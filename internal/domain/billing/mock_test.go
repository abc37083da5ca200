package billing

import (
	"context"
	"maps"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hospbill/billing/internal/domain/audit"
	"github.com/hospbill/billing/internal/domain/catalog"
	"github.com/hospbill/billing/internal/platform/apperr"
	"github.com/hospbill/billing/internal/platform/auth"
)

// state is everything the fakes hold, copied wholesale so a failed
// transaction can be rolled back.
type state struct {
	entities map[uuid.UUID]catalog.Entity
	stock    map[uuid.UUID]int
	accounts map[uuid.UUID]Account
	invoices map[uuid.UUID]Invoice
	items    map[uuid.UUID][]InvoiceItem
	payments []Payment
	seq      map[string]int
	audit    []audit.Changes
}

func newState() *state {
	return &state{
		entities: make(map[uuid.UUID]catalog.Entity),
		stock:    make(map[uuid.UUID]int),
		accounts: make(map[uuid.UUID]Account),
		invoices: make(map[uuid.UUID]Invoice),
		items:    make(map[uuid.UUID][]InvoiceItem),
		seq:      make(map[string]int),
	}
}

func (s *state) clone() *state {
	return &state{
		entities: maps.Clone(s.entities),
		stock:    maps.Clone(s.stock),
		accounts: maps.Clone(s.accounts),
		invoices: maps.Clone(s.invoices),
		items:    maps.Clone(s.items),
		payments: append([]Payment(nil), s.payments...),
		seq:      maps.Clone(s.seq),
		audit:    append([]audit.Changes(nil), s.audit...),
	}
}

type fixture struct {
	st       *state
	patients map[uuid.UUID]bool
	svc      *Service
	now      time.Time
	commits  int
}

// snapTx restores the fakes' state when fn fails.
type snapTx struct{ f *fixture }

func (t snapTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	saved := t.f.st.clone()
	if err := fn(ctx); err != nil {
		*t.f.st = *saved
		return err
	}
	t.f.commits++
	return nil
}

func newFixture() *fixture {
	f := &fixture{
		st:       newState(),
		patients: make(map[uuid.UUID]bool),
		now:      time.Date(2026, 10, 18, 14, 5, 0, 0, time.UTC),
	}
	f.svc = NewService(accountStore{f}, invoiceStore{f}, paymentStore{f}, catalogFake{f}, patientFake{f}, snapTx{f}, auditFake{f})
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) addPatient() uuid.UUID {
	id := uuid.New()
	f.patients[id] = true
	return id
}

func (f *fixture) addPharmacy(name, price string, stock int) uuid.UUID {
	id := uuid.New()
	f.st.entities[id] = catalog.Entity{Type: catalog.EntityPharmacy, ID: id, Identifier: strings.ToUpper(name),
		Name: name, Price: decimal.RequireFromString(price), Active: true}
	f.st.stock[id] = stock
	return id
}

func (f *fixture) addService(name, price string) uuid.UUID {
	id := uuid.New()
	f.st.entities[id] = catalog.Entity{Type: catalog.EntityService, ID: id, Identifier: strings.ToUpper(name),
		Name: name, Price: decimal.RequireFromString(price), Active: true}
	return id
}

func (f *fixture) setPrice(id uuid.UUID, price string) {
	e := f.st.entities[id]
	e.Price = decimal.RequireFromString(price)
	f.st.entities[id] = e
}

// paymentsFor sums payments across an account's invoices.
func (f *fixture) paymentsFor(accountID uuid.UUID) decimal.Decimal {
	sum := decimal.Zero
	for _, p := range f.st.payments {
		if f.st.invoices[p.InvoiceID].AccountID == accountID {
			sum = sum.Add(p.Amount)
		}
	}
	return sum
}

// -- catalog --

type catalogFake struct{ f *fixture }

func (c catalogFake) Resolve(_ context.Context, t catalog.EntityType, id uuid.UUID) (catalog.Entity, error) {
	e, ok := c.f.st.entities[id]
	if !ok || e.Type != t {
		return catalog.Entity{}, apperr.NotFound(string(t), id)
	}
	return e, nil
}

func (c catalogFake) ReserveStock(_ context.Context, id uuid.UUID, qty int) (*catalog.PharmacyItem, error) {
	e, ok := c.f.st.entities[id]
	if !ok || e.Type != catalog.EntityPharmacy {
		return nil, apperr.NotFound("pharmacy item", id)
	}
	if c.f.st.stock[id] < qty {
		return nil, apperr.InsufficientStock(e.Name, c.f.st.stock[id])
	}
	c.f.st.stock[id] -= qty
	return &catalog.PharmacyItem{ID: id, SKU: e.Identifier, Name: e.Name, Price: e.Price,
		StockQuantity: c.f.st.stock[id], Active: e.Active}, nil
}

type patientFake struct{ f *fixture }

func (p patientFake) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	return p.f.patients[id], nil
}

type auditFake struct{ f *fixture }

func (a auditFake) Record(_ context.Context, _ auth.Principal, _ string, c audit.Changes) error {
	a.f.st.audit = append(a.f.st.audit, c)
	return nil
}

// -- accounts --

type accountStore struct{ f *fixture }

func (s accountStore) EnsureOpen(_ context.Context, patientID uuid.UUID, createdBy *uuid.UUID) (*Account, error) {
	for _, a := range s.f.st.accounts {
		if a.PatientID == patientID && a.Status == AccountOpen {
			return &a, nil
		}
	}
	a := Account{ID: uuid.New(), PatientID: patientID, PatientName: "Jane Doe", Status: AccountOpen,
		CreatedBy: createdBy, CreatedAt: s.f.now}
	s.f.st.accounts[a.ID] = a
	return &a, nil
}

func (s accountStore) GetByID(_ context.Context, id uuid.UUID) (*Account, error) {
	a, ok := s.f.st.accounts[id]
	if !ok {
		return nil, apperr.NotFound("account", id)
	}
	return &a, nil
}

func (s accountStore) GetOpenByPatient(_ context.Context, patientID uuid.UUID) (*Account, error) {
	for _, a := range s.f.st.accounts {
		if a.PatientID == patientID && a.Status == AccountOpen {
			return &a, nil
		}
	}
	return nil, apperr.NotFound("open account for patient", patientID)
}

func (s accountStore) AddCharge(_ context.Context, id uuid.UUID, amount decimal.Decimal) error {
	a, ok := s.f.st.accounts[id]
	if !ok {
		return apperr.NotFound("account", id)
	}
	a.TotalAmount = a.TotalAmount.Add(amount)
	a.Balance = a.Balance.Add(amount)
	s.f.st.accounts[id] = a
	return nil
}

func (s accountStore) ApplyPayment(_ context.Context, id uuid.UUID, amount decimal.Decimal) error {
	a, ok := s.f.st.accounts[id]
	if !ok {
		return apperr.NotFound("account", id)
	}
	a.Balance = a.Balance.Sub(amount)
	s.f.st.accounts[id] = a
	return nil
}

// -- invoices --

type invoiceStore struct{ f *fixture }

func (s invoiceStore) NextSequence(_ context.Context, period string) (int, error) {
	s.f.st.seq[period]++
	return s.f.st.seq[period], nil
}

func (s invoiceStore) Create(_ context.Context, inv *Invoice) error {
	for _, other := range s.f.st.invoices {
		if other.InvoiceNumber == inv.InvoiceNumber {
			return apperr.Conflict("invoice number already exists")
		}
	}
	inv.ID = uuid.New()
	inv.CreatedAt = s.f.now
	cp := *inv
	cp.Items, cp.Payments = nil, nil
	s.f.st.invoices[inv.ID] = cp
	return nil
}

func (s invoiceStore) AddItems(_ context.Context, invoiceID uuid.UUID, items []*InvoiceItem) error {
	rows := make([]InvoiceItem, len(items))
	for i, it := range items {
		it.ID = uuid.New()
		it.InvoiceID = invoiceID
		it.Position = i + 1
		rows[i] = *it
	}
	s.f.st.items[invoiceID] = rows
	return nil
}

func (s invoiceStore) GetByID(_ context.Context, id uuid.UUID) (*Invoice, error) {
	inv, ok := s.f.st.invoices[id]
	if !ok {
		return nil, apperr.NotFound("invoice", id)
	}
	return &inv, nil
}

func (s invoiceStore) GetByNumber(_ context.Context, number string) (*Invoice, error) {
	for _, inv := range s.f.st.invoices {
		if inv.InvoiceNumber == number {
			return &inv, nil
		}
	}
	return nil, apperr.NotFound("invoice", number)
}

func (s invoiceStore) LockForUpdate(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	return s.GetByID(ctx, id)
}

func (s invoiceStore) SetPaid(_ context.Context, id uuid.UUID, paid decimal.Decimal, status string) error {
	inv, ok := s.f.st.invoices[id]
	if !ok {
		return apperr.NotFound("invoice", id)
	}
	inv.PaidAmount = paid
	inv.PaymentStatus = status
	s.f.st.invoices[id] = inv
	return nil
}

func (s invoiceStore) Items(_ context.Context, invoiceID uuid.UUID) ([]*InvoiceItem, error) {
	var out []*InvoiceItem
	for _, it := range s.f.st.items[invoiceID] {
		out = append(out, &it)
	}
	return out, nil
}

func (s invoiceStore) List(_ context.Context, f InvoiceFilter, limit, offset int) ([]*Invoice, int, error) {
	var out []*Invoice
	for _, inv := range s.f.st.invoices {
		if f.PatientID != nil && inv.PatientID != *f.PatientID {
			continue
		}
		if f.PaymentStatus != "" && inv.PaymentStatus != f.PaymentStatus {
			continue
		}
		out = append(out, &inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InvoiceNumber > out[j].InvoiceNumber })
	total := len(out)
	if offset >= len(out) {
		return nil, total, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

// -- payments --

type paymentStore struct{ f *fixture }

func (s paymentStore) Create(_ context.Context, p *Payment) error {
	p.ID = uuid.New()
	p.CreatedAt = s.f.now
	s.f.st.payments = append(s.f.st.payments, *p)
	return nil
}

func (s paymentStore) ListByInvoice(_ context.Context, invoiceID uuid.UUID) ([]*Payment, error) {
	var out []*Payment
	for _, p := range s.f.st.payments {
		if p.InvoiceID == invoiceID {
			out = append(out, &p)
		}
	}
	return out, nil
}

var accountant = auth.Principal{UserID: uuid.New(), Email: "acc@hospital.test", Role: auth.RoleAccountant}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }
