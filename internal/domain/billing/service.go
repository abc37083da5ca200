package billing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hospbill/billing/internal/domain/audit"
	"github.com/hospbill/billing/internal/domain/catalog"
	"github.com/hospbill/billing/internal/platform/apperr"
	"github.com/hospbill/billing/internal/platform/auth"
	"github.com/hospbill/billing/internal/platform/db"
	"github.com/hospbill/billing/internal/platform/money"
)

// Catalog is what invoicing needs from the catalog store. ReserveStock must
// join the caller's transaction.
type Catalog interface {
	Resolve(ctx context.Context, t catalog.EntityType, id uuid.UUID) (catalog.Entity, error)
	ReserveStock(ctx context.Context, id uuid.UUID, qty int) (*catalog.PharmacyItem, error)
}

// Patients reports whether a patient exists.
type Patients interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

type Service struct {
	accounts AccountRepository
	invoices InvoiceRepository
	payments PaymentRepository
	catalog  Catalog
	patients Patients
	tx       db.Transactor
	audit    audit.Sink
	now      func() time.Time
}

func NewService(accounts AccountRepository, invoices InvoiceRepository, payments PaymentRepository,
	cat Catalog, patients Patients, tx db.Transactor, sink audit.Sink) *Service {
	return &Service{
		accounts: accounts,
		invoices: invoices,
		payments: payments,
		catalog:  cat,
		patients: patients,
		tx:       tx,
		audit:    sink,
		now:      time.Now,
	}
}

// FormatNumber renders an invoice number, e.g. HOSP-202610-0007.
func FormatNumber(issued time.Time, seq int) string {
	return fmt.Sprintf("%s-%s-%04d", NumberPrefix, period(issued), seq)
}

func period(t time.Time) string {
	return t.Format("200601")
}

func actorID(actor auth.Principal) *uuid.UUID {
	if actor.UserID == uuid.Nil {
		return nil
	}
	id := actor.UserID
	return &id
}

func validateInvoiceRequest(req *CreateInvoiceRequest) error {
	if req.PatientID == uuid.Nil {
		return apperr.Validation("patient_id is required")
	}
	if len(req.Items) == 0 {
		return apperr.Validation("at least one item is required")
	}
	for i, it := range req.Items {
		if !it.ItemType.Valid() {
			return apperr.Validation("items[%d]: item_type must be either service or pharmacy", i)
		}
		if it.ItemID == uuid.Nil {
			return apperr.Validation("items[%d]: item_id is required", i)
		}
		if it.Quantity <= 0 {
			return apperr.Validation("items[%d]: quantity must be positive", i)
		}
	}
	return nil
}

// -- Invoices --

// CreateInvoice prices the requested items from the catalog, takes pharmacy
// stock, issues the next invoice number for the month and charges the
// patient's open account, all in one transaction.
func (s *Service) CreateInvoice(ctx context.Context, actor auth.Principal, req CreateInvoiceRequest) (*Invoice, error) {
	if err := validateInvoiceRequest(&req); err != nil {
		return nil, err
	}
	var out *Invoice
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		ok, err := s.patients.Exists(ctx, req.PatientID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.NotFound("patient", req.PatientID)
		}

		items, err := s.priceItems(ctx, req.Items)
		if err != nil {
			return err
		}
		subtotal := decimal.Zero
		for _, it := range items {
			subtotal = subtotal.Add(it.LineTotal)
		}
		discount := money.Round(req.Discount)
		total := subtotal.Sub(discount)

		acct, err := s.accounts.EnsureOpen(ctx, req.PatientID, actorID(actor))
		if err != nil {
			return err
		}
		issued := s.now()
		seq, err := s.invoices.NextSequence(ctx, period(issued))
		if err != nil {
			return err
		}

		inv := &Invoice{
			AccountID:     acct.ID,
			PatientID:     req.PatientID,
			PatientName:   acct.PatientName,
			InvoiceNumber: FormatNumber(issued, seq),
			IssuedAt:      issued,
			DueDate:       req.DueDate,
			Subtotal:      subtotal,
			Discount:      discount,
			TotalAmount:   total,
			PaidAmount:    decimal.Zero,
			PaymentStatus: DerivePaymentStatus(decimal.Zero, total),
			Notes:         req.Notes,
			CreatedBy:     actorID(actor),
		}
		if err := s.invoices.Create(ctx, inv); err != nil {
			return err
		}
		if err := s.invoices.AddItems(ctx, inv.ID, items); err != nil {
			return err
		}
		if err := s.accounts.AddCharge(ctx, acct.ID, total); err != nil {
			return err
		}
		inv.Items = items
		out = inv

		lines := make([]audit.InvoiceLine, len(items))
		for i, it := range items {
			lines[i] = audit.InvoiceLine{
				ItemType:    it.ItemType.String(),
				ItemID:      it.ItemID,
				Description: it.Description,
				Quantity:    it.Quantity,
				UnitPrice:   it.UnitPrice,
				LineTotal:   it.LineTotal,
			}
		}
		return s.audit.Record(ctx, actor, inv.ID.String(), audit.InvoiceCreated{
			InvoiceNumber: inv.InvoiceNumber,
			PatientID:     inv.PatientID,
			AccountID:     inv.AccountID,
			Subtotal:      subtotal,
			Discount:      discount,
			TotalAmount:   total,
			DueDate:       req.DueDate,
			Items:         lines,
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// priceItems snapshots each requested item in request order. Pharmacy rows
// are reserved in item id order so concurrent invoices lock them in the
// same sequence.
func (s *Service) priceItems(ctx context.Context, reqs []ItemRequest) ([]*InvoiceItem, error) {
	items := make([]*InvoiceItem, len(reqs))
	var pharmacy []int
	for i, r := range reqs {
		if r.ItemType == catalog.EntityPharmacy {
			pharmacy = append(pharmacy, i)
			continue
		}
		ent, err := s.catalog.Resolve(ctx, r.ItemType, r.ItemID)
		if err != nil {
			return nil, err
		}
		if !ent.Active {
			return nil, apperr.Validation("service %s is not active", ent.Identifier)
		}
		items[i] = snapshot(r, ent.Name, ent.Price)
	}

	sort.SliceStable(pharmacy, func(a, b int) bool {
		return reqs[pharmacy[a]].ItemID.String() < reqs[pharmacy[b]].ItemID.String()
	})
	for _, i := range pharmacy {
		r := reqs[i]
		p, err := s.catalog.ReserveStock(ctx, r.ItemID, r.Quantity)
		if err != nil {
			return nil, err
		}
		items[i] = snapshot(r, p.Name, p.Price)
	}
	return items, nil
}

func snapshot(r ItemRequest, name string, price decimal.Decimal) *InvoiceItem {
	unit := money.Round(price)
	return &InvoiceItem{
		ItemType:    r.ItemType,
		ItemID:      r.ItemID,
		Description: name,
		Quantity:    r.Quantity,
		UnitPrice:   unit,
		LineTotal:   money.LineTotal(unit, r.Quantity),
	}
}

// GetInvoice loads an invoice with its items and payments.
func (s *Service) GetInvoice(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	inv, err := s.invoices.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.withDetail(ctx, inv)
}

func (s *Service) GetInvoiceByNumber(ctx context.Context, number string) (*Invoice, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, apperr.Validation("invoice number is required")
	}
	inv, err := s.invoices.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	return s.withDetail(ctx, inv)
}

func (s *Service) withDetail(ctx context.Context, inv *Invoice) (*Invoice, error) {
	items, err := s.invoices.Items(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	payments, err := s.payments.ListByInvoice(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	inv.Items = items
	inv.Payments = payments
	return inv, nil
}

func (s *Service) ListInvoices(ctx context.Context, f InvoiceFilter, limit, offset int) ([]*Invoice, int, error) {
	if f.PaymentStatus != "" && !validPaymentStatuses[f.PaymentStatus] {
		return nil, 0, apperr.Validation("status must be one of: pending, partial, paid")
	}
	if f.IssuedFrom != nil && f.IssuedTo != nil && f.IssuedTo.Before(*f.IssuedFrom) {
		return nil, 0, apperr.Validation("end_date must not be before start_date")
	}
	return s.invoices.List(ctx, f, limit, offset)
}

// -- Payments --

// RecordPayment applies a payment to a locked invoice, re-derives its
// status and lowers the account balance. Payments beyond the outstanding
// amount are accepted.
func (s *Service) RecordPayment(ctx context.Context, actor auth.Principal, invoiceID uuid.UUID, req PaymentRequest) (*Payment, *Invoice, error) {
	if !req.Amount.IsPositive() {
		return nil, nil, apperr.Validation("valid payment amount is required")
	}
	req.Method = strings.ToLower(strings.TrimSpace(req.Method))
	if !validMethods[req.Method] {
		return nil, nil, apperr.Validation("method must be one of: cash, card, insurance")
	}
	if req.TransactionRef != nil {
		ref := strings.TrimSpace(*req.TransactionRef)
		req.TransactionRef = &ref
		if ref == "" {
			req.TransactionRef = nil
		}
	}
	amount := money.Round(req.Amount)
	if !amount.IsPositive() {
		return nil, nil, apperr.Validation("valid payment amount is required")
	}

	var pay *Payment
	var inv *Invoice
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		inv, err = s.invoices.LockForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		pay = &Payment{
			InvoiceID:      invoiceID,
			PaidBy:         actorID(actor),
			Amount:         amount,
			Method:         req.Method,
			TransactionRef: req.TransactionRef,
		}
		if err := s.payments.Create(ctx, pay); err != nil {
			return err
		}
		inv.PaidAmount = inv.PaidAmount.Add(amount)
		inv.PaymentStatus = DerivePaymentStatus(inv.PaidAmount, inv.TotalAmount)
		if err := s.invoices.SetPaid(ctx, invoiceID, inv.PaidAmount, inv.PaymentStatus); err != nil {
			return err
		}
		if err := s.accounts.ApplyPayment(ctx, inv.AccountID, amount); err != nil {
			return err
		}
		ref := ""
		if pay.TransactionRef != nil {
			ref = *pay.TransactionRef
		}
		return s.audit.Record(ctx, actor, invoiceID.String(), audit.PaymentRecorded{
			InvoiceNumber:  inv.InvoiceNumber,
			PaymentID:      pay.ID,
			Amount:         amount,
			Method:         pay.Method,
			TransactionRef: ref,
			PaidAmount:     inv.PaidAmount,
			PaymentStatus:  inv.PaymentStatus,
		})
	})
	if err != nil {
		return nil, nil, err
	}
	return pay, inv, nil
}

// -- Accounts --

func (s *Service) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	return s.accounts.GetByID(ctx, id)
}

func (s *Service) GetOpenAccountForPatient(ctx context.Context, patientID uuid.UUID) (*Account, error) {
	return s.accounts.GetOpenByPatient(ctx, patientID)
}
