package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hospbill/billing/internal/domain/catalog"
)

// Invoice payment states.
const (
	StatusPending = "pending"
	StatusPartial = "partial"
	StatusPaid    = "paid"
)

var validPaymentStatuses = map[string]bool{
	StatusPending: true, StatusPartial: true, StatusPaid: true,
}

const (
	AccountOpen      = "open"
	AccountSettled   = "settled"
	AccountCancelled = "cancelled"
)

const (
	MethodCash      = "cash"
	MethodCard      = "card"
	MethodInsurance = "insurance"
)

var validMethods = map[string]bool{
	MethodCash: true, MethodCard: true, MethodInsurance: true,
}

// NumberPrefix starts every invoice number.
const NumberPrefix = "HOSP"

// Account is the running ledger of one patient's open billing cycle.
// Balance is TotalAmount minus every payment on the account's invoices.
type Account struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	PatientID   uuid.UUID       `db:"patient_id" json:"patient_id"`
	PatientName string          `db:"patient_name" json:"patient_name,omitempty"`
	TotalAmount decimal.Decimal `db:"total_amount" json:"total_amount"`
	Balance     decimal.Decimal `db:"balance" json:"balance"`
	Status      string          `db:"status" json:"status"`
	CreatedBy   *uuid.UUID      `db:"created_by" json:"created_by,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

type Invoice struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	AccountID     uuid.UUID       `db:"account_id" json:"account_id"`
	PatientID     uuid.UUID       `db:"patient_id" json:"patient_id"`
	PatientName   string          `db:"patient_name" json:"patient_name,omitempty"`
	InvoiceNumber string          `db:"invoice_number" json:"invoice_number"`
	IssuedAt      time.Time       `db:"issued_at" json:"issued_at"`
	DueDate       *time.Time      `db:"due_date" json:"due_date,omitempty"`
	Subtotal      decimal.Decimal `db:"subtotal" json:"subtotal"`
	Discount      decimal.Decimal `db:"discount" json:"discount"`
	TotalAmount   decimal.Decimal `db:"total_amount" json:"total_amount"`
	PaidAmount    decimal.Decimal `db:"paid_amount" json:"paid_amount"`
	PaymentStatus string          `db:"payment_status" json:"payment_status"`
	Notes         *string         `db:"notes" json:"notes,omitempty"`
	CreatedBy     *uuid.UUID      `db:"created_by" json:"created_by,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`

	Items    []*InvoiceItem `json:"items,omitempty"`
	Payments []*Payment     `json:"payments,omitempty"`
}

// Outstanding is what is still owed on the invoice. It goes negative on
// overpayment.
func (inv *Invoice) Outstanding() decimal.Decimal {
	return inv.TotalAmount.Sub(inv.PaidAmount)
}

// InvoiceItem is a frozen copy of a catalog entity's name and price at the
// moment the invoice was issued.
type InvoiceItem struct {
	ID          uuid.UUID          `db:"id" json:"id"`
	InvoiceID   uuid.UUID          `db:"invoice_id" json:"invoice_id"`
	Position    int                `db:"position" json:"position"`
	ItemType    catalog.EntityType `db:"item_type" json:"item_type"`
	ItemID      uuid.UUID          `db:"item_id" json:"item_id"`
	Description string             `db:"description" json:"description"`
	Quantity    int                `db:"quantity" json:"quantity"`
	UnitPrice   decimal.Decimal    `db:"unit_price" json:"unit_price"`
	LineTotal   decimal.Decimal    `db:"line_total" json:"line_total"`
}

type Payment struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	InvoiceID      uuid.UUID       `db:"invoice_id" json:"invoice_id"`
	PaidBy         *uuid.UUID      `db:"paid_by" json:"paid_by,omitempty"`
	CollectedBy    string          `db:"collected_by" json:"collected_by,omitempty"`
	Amount         decimal.Decimal `db:"amount" json:"amount"`
	Method         string          `db:"method" json:"method"`
	TransactionRef *string         `db:"transaction_ref" json:"transaction_ref,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// ItemRequest asks for quantity units of one catalog entity.
type ItemRequest struct {
	ItemType catalog.EntityType
	ItemID   uuid.UUID
	Quantity int
}

type CreateInvoiceRequest struct {
	PatientID uuid.UUID
	DueDate   *time.Time
	Discount  decimal.Decimal
	Notes     *string
	Items     []ItemRequest
}

type PaymentRequest struct {
	Amount         decimal.Decimal
	Method         string
	TransactionRef *string
}

// InvoiceFilter narrows invoice listings. IssuedTo is inclusive of the
// whole day.
type InvoiceFilter struct {
	PatientID     *uuid.UUID
	PaymentStatus string
	IssuedFrom    *time.Time
	IssuedTo      *time.Time
}

// DerivePaymentStatus maps paid against total: paid once the total is
// covered, partial while something but not everything is paid, pending
// otherwise.
func DerivePaymentStatus(paid, total decimal.Decimal) string {
	switch {
	case paid.GreaterThanOrEqual(total):
		return StatusPaid
	case paid.IsPositive():
		return StatusPartial
	default:
		return StatusPending
	}
}
