package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntityType discriminates the two priced catalog kinds.
type EntityType string

const (
	EntityService  EntityType = "service"
	EntityPharmacy EntityType = "pharmacy"
)

func (t EntityType) Valid() bool {
	return t == EntityService || t == EntityPharmacy
}

func (t EntityType) String() string { return string(t) }

const (
	CategoryLab          = "lab"
	CategoryConsultation = "consultation"
	CategoryProcedure    = "procedure"
)

var validCategories = map[string]bool{
	CategoryLab: true, CategoryConsultation: true, CategoryProcedure: true,
}

// Price update sources recorded on the audit trail.
const (
	SourceManual    = "manual"
	SourceScheduled = "scheduled"
	SourceBulk      = "bulk"
)

type Service struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	Code            string          `db:"code" json:"code"`
	Name            string          `db:"name" json:"name"`
	Description     *string         `db:"description" json:"description,omitempty"`
	Category        string          `db:"category" json:"category"`
	BasePrice       decimal.Decimal `db:"base_price" json:"base_price"`
	CostPrice       decimal.Decimal `db:"cost_price" json:"cost_price"`
	DurationMinutes *int            `db:"duration_minutes" json:"duration_minutes,omitempty"`
	Active          bool            `db:"active" json:"active"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

func (s *Service) Entity() Entity {
	return Entity{Type: EntityService, ID: s.ID, Identifier: s.Code, Name: s.Name, Price: s.BasePrice, Active: s.Active}
}

type PharmacyItem struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	SKU           string          `db:"sku" json:"sku"`
	Name          string          `db:"name" json:"name"`
	Unit          string          `db:"unit" json:"unit"`
	Description   *string         `db:"description" json:"description,omitempty"`
	Price         decimal.Decimal `db:"price" json:"price"`
	CostPrice     decimal.Decimal `db:"cost_price" json:"cost_price"`
	StockQuantity int             `db:"stock_quantity" json:"stock_quantity"`
	ReorderLevel  int             `db:"reorder_level" json:"reorder_level"`
	SupplierID    *uuid.UUID      `db:"supplier_id" json:"supplier_id,omitempty"`
	Active        bool            `db:"active" json:"active"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// LowStock reports whether the item has reached its reorder level.
func (p *PharmacyItem) LowStock() bool {
	return p.StockQuantity <= p.ReorderLevel
}

func (p *PharmacyItem) Entity() Entity {
	return Entity{Type: EntityPharmacy, ID: p.ID, Identifier: p.SKU, Name: p.Name, Price: p.Price, Active: p.Active}
}

// Entity is the common view of a Service or PharmacyItem used by pricing
// and billing.
type Entity struct {
	Type       EntityType      `json:"entity_type"`
	ID         uuid.UUID       `json:"entity_id"`
	Identifier string          `json:"identifier"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"current_price"`
	Active     bool            `json:"active"`
}

// PriceHistoryEntry is an immutable record of one price change.
type PriceHistoryEntry struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	EntityType    EntityType      `db:"entity_type" json:"entity_type"`
	EntityID      uuid.UUID       `db:"entity_id" json:"entity_id"`
	OldPrice      decimal.Decimal `db:"old_price" json:"old_price"`
	NewPrice      decimal.Decimal `db:"new_price" json:"new_price"`
	ChangedBy     *uuid.UUID      `db:"changed_by" json:"changed_by,omitempty"`
	ChangedByName string          `db:"changed_by_name" json:"changed_by_name,omitempty"`
	Reason        string          `db:"reason" json:"reason"`
	ChangedAt     time.Time       `db:"changed_at" json:"changed_at"`
}

// PriceUpdate asks for one catalog price change.
type PriceUpdate struct {
	EntityType EntityType
	EntityID   uuid.UUID
	NewPrice   decimal.Decimal
	Reason     string
	Source     string
}

type ServiceFilter struct {
	ActiveOnly bool
	Category   string
	Search     string
}

type PharmacyFilter struct {
	ActiveOnly   bool
	LowStockOnly bool
	Search       string
}
