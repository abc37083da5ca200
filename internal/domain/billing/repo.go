package billing

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AccountRepository interface {
	// EnsureOpen returns the patient's open account, creating it when there
	// is none. The returned row is locked for the rest of the transaction.
	EnsureOpen(ctx context.Context, patientID uuid.UUID, createdBy *uuid.UUID) (*Account, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	GetOpenByPatient(ctx context.Context, patientID uuid.UUID) (*Account, error)
	// AddCharge raises both total_amount and balance by amount.
	AddCharge(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error
	// ApplyPayment lowers balance by amount.
	ApplyPayment(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error
}

type InvoiceRepository interface {
	// NextSequence bumps and returns the invoice counter for period (YYYYMM).
	NextSequence(ctx context.Context, period string) (int, error)
	Create(ctx context.Context, inv *Invoice) error
	AddItems(ctx context.Context, invoiceID uuid.UUID, items []*InvoiceItem) error
	GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error)
	GetByNumber(ctx context.Context, number string) (*Invoice, error)
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Invoice, error)
	SetPaid(ctx context.Context, id uuid.UUID, paid decimal.Decimal, status string) error
	Items(ctx context.Context, invoiceID uuid.UUID) ([]*InvoiceItem, error)
	List(ctx context.Context, f InvoiceFilter, limit, offset int) ([]*Invoice, int, error)
}

type PaymentRepository interface {
	Create(ctx context.Context, p *Payment) error
	ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]*Payment, error)
}
