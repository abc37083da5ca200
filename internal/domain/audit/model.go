package audit

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Action string

const (
	ActionCreate     Action = "CREATE"
	ActionUpdate     Action = "UPDATE"
	ActionDelete     Action = "DELETE"
	ActionBulkUpdate Action = "BULK_UPDATE"
	ActionLogin      Action = "LOGIN"
	ActionLogout     Action = "LOGOUT"
)

// Entry is one immutable audit log row.
type Entry struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	UserID      *uuid.UUID `db:"user_id" json:"user_id,omitempty"`
	Action      Action     `db:"action" json:"action"`
	TargetTable string     `db:"target_table" json:"target_table"`
	TargetID    string     `db:"target_id" json:"target_id,omitempty"`
	Changes     Changes    `db:"changes" json:"changes"`
	IPAddress   string     `db:"ip_address" json:"ip_address,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// Changes is the typed payload of an audit entry. Each variant fixes the
// action and target table it is recorded under.
type Changes interface {
	Kind() string
	Action() Action
	Table() string
}

func catalogTable(entityType string) string {
	if entityType == "pharmacy" {
		return "pharmacy_items"
	}
	return "services"
}

// InvoiceLine is the audit copy of one invoice line.
type InvoiceLine struct {
	ItemType    string          `json:"item_type"`
	ItemID      uuid.UUID       `json:"item_id"`
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

type InvoiceCreated struct {
	InvoiceNumber string          `json:"invoice_number"`
	PatientID     uuid.UUID       `json:"patient_id"`
	AccountID     uuid.UUID       `json:"account_id"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Discount      decimal.Decimal `json:"discount"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	DueDate       *time.Time      `json:"due_date,omitempty"`
	Items         []InvoiceLine   `json:"items"`
}

func (InvoiceCreated) Kind() string   { return "invoice_created" }
func (InvoiceCreated) Action() Action { return ActionCreate }
func (InvoiceCreated) Table() string  { return "invoices" }

type PaymentRecorded struct {
	InvoiceNumber  string          `json:"invoice_number"`
	PaymentID      uuid.UUID       `json:"payment_id"`
	Amount         decimal.Decimal `json:"amount"`
	Method         string          `json:"method"`
	TransactionRef string          `json:"transaction_ref,omitempty"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	PaymentStatus  string          `json:"payment_status"`
}

func (PaymentRecorded) Kind() string   { return "payment_recorded" }
func (PaymentRecorded) Action() Action { return ActionUpdate }
func (PaymentRecorded) Table() string  { return "invoices" }

// PriceChanged is written for every catalog price update. Source is
// "manual", "scheduled" or "bulk".
type PriceChanged struct {
	EntityType string          `json:"entity_type"`
	EntityName string          `json:"entity_name"`
	OldPrice   decimal.Decimal `json:"old_price"`
	NewPrice   decimal.Decimal `json:"new_price"`
	Reason     string          `json:"reason"`
	Source     string          `json:"source"`
}

func (PriceChanged) Kind() string    { return "price_changed" }
func (PriceChanged) Action() Action  { return ActionUpdate }
func (c PriceChanged) Table() string { return catalogTable(c.EntityType) }

type StockAdjusted struct {
	SKU         string `json:"sku"`
	OldQuantity int    `json:"old_quantity"`
	NewQuantity int    `json:"new_quantity"`
}

func (StockAdjusted) Kind() string   { return "stock_adjusted" }
func (StockAdjusted) Action() Action { return ActionUpdate }
func (StockAdjusted) Table() string  { return "pharmacy_items" }

type CatalogEntityCreated struct {
	EntityType string          `json:"entity_type"`
	Identifier string          `json:"identifier"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
}

func (CatalogEntityCreated) Kind() string    { return "catalog_entity_created" }
func (CatalogEntityCreated) Action() Action  { return ActionCreate }
func (c CatalogEntityCreated) Table() string { return catalogTable(c.EntityType) }

type CatalogEntityUpdated struct {
	EntityType string `json:"entity_type"`
	Identifier string `json:"identifier"`
	Name       string `json:"name"`
	Active     bool   `json:"active"`
}

func (CatalogEntityUpdated) Kind() string    { return "catalog_entity_updated" }
func (CatalogEntityUpdated) Action() Action  { return ActionUpdate }
func (c CatalogEntityUpdated) Table() string { return catalogTable(c.EntityType) }

type ScheduledChangeCreated struct {
	EntityType   string          `json:"entity_type"`
	EntityID     uuid.UUID       `json:"entity_id"`
	NewPrice     decimal.Decimal `json:"new_price"`
	ScheduledFor string          `json:"scheduled_for"`
	Reason       string          `json:"reason,omitempty"`
}

func (ScheduledChangeCreated) Kind() string   { return "scheduled_change_created" }
func (ScheduledChangeCreated) Action() Action { return ActionCreate }
func (ScheduledChangeCreated) Table() string  { return "scheduled_price_changes" }

type ScheduledChangeCancelled struct {
	EntityType   string    `json:"entity_type"`
	EntityID     uuid.UUID `json:"entity_id"`
	ScheduledFor string    `json:"scheduled_for"`
}

func (ScheduledChangeCancelled) Kind() string   { return "scheduled_change_cancelled" }
func (ScheduledChangeCancelled) Action() Action { return ActionUpdate }
func (ScheduledChangeCancelled) Table() string  { return "scheduled_price_changes" }

type ScheduledChangeApplied struct {
	EntityType   string          `json:"entity_type"`
	EntityID     uuid.UUID       `json:"entity_id"`
	OldPrice     decimal.Decimal `json:"old_price"`
	NewPrice     decimal.Decimal `json:"new_price"`
	ScheduledFor string          `json:"scheduled_for"`
}

func (ScheduledChangeApplied) Kind() string   { return "scheduled_change_applied" }
func (ScheduledChangeApplied) Action() Action { return ActionUpdate }
func (ScheduledChangeApplied) Table() string  { return "scheduled_price_changes" }

// BulkOutcome is one processed row of a bulk price update.
type BulkOutcome struct {
	EntityType string          `json:"entity_type"`
	EntityID   uuid.UUID       `json:"entity_id"`
	NewPrice   decimal.Decimal `json:"new_price"`
	Status     string          `json:"status"`
}

type BulkPriceUpdate struct {
	Results []BulkOutcome `json:"results"`
	Errors  []string      `json:"errors"`
	Total   int           `json:"total"`
}

func (BulkPriceUpdate) Kind() string   { return "bulk_price_update" }
func (BulkPriceUpdate) Action() Action { return ActionBulkUpdate }
func (BulkPriceUpdate) Table() string  { return "price_updates" }

type PatientCreated struct {
	Name string `json:"name"`
}

func (PatientCreated) Kind() string   { return "patient_created" }
func (PatientCreated) Action() Action { return ActionCreate }
func (PatientCreated) Table() string  { return "patients" }

type PatientUpdated struct {
	Name string `json:"name"`
}

func (PatientUpdated) Kind() string   { return "patient_updated" }
func (PatientUpdated) Action() Action { return ActionUpdate }
func (PatientUpdated) Table() string  { return "patients" }

type PatientDeleted struct {
	Name string `json:"name"`
}

func (PatientDeleted) Kind() string   { return "patient_deleted" }
func (PatientDeleted) Action() Action { return ActionDelete }
func (PatientDeleted) Table() string  { return "patients" }

type UserCreated struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (UserCreated) Kind() string   { return "user_created" }
func (UserCreated) Action() Action { return ActionCreate }
func (UserCreated) Table() string  { return "users" }

type UserUpdated struct {
	Email  string `json:"email"`
	Role   string `json:"role"`
	Active bool   `json:"active"`
}

func (UserUpdated) Kind() string   { return "user_updated" }
func (UserUpdated) Action() Action { return ActionUpdate }
func (UserUpdated) Table() string  { return "users" }

type UserDeleted struct {
	Email string `json:"email"`
}

func (UserDeleted) Kind() string   { return "user_deleted" }
func (UserDeleted) Action() Action { return ActionDelete }
func (UserDeleted) Table() string  { return "users" }

type UserLogin struct {
	Email string `json:"email"`
}

func (UserLogin) Kind() string   { return "user_login" }
func (UserLogin) Action() Action { return ActionLogin }
func (UserLogin) Table() string  { return "users" }

type UserLogout struct {
	Email string `json:"email"`
}

func (UserLogout) Kind() string   { return "user_logout" }
func (UserLogout) Action() Action { return ActionLogout }
func (UserLogout) Table() string  { return "users" }

type PasswordChanged struct {
	Email string `json:"email"`
}

func (PasswordChanged) Kind() string   { return "password_changed" }
func (PasswordChanged) Action() Action { return ActionUpdate }
func (PasswordChanged) Table() string  { return "users" }
