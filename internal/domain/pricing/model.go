package pricing

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hospbill/billing/internal/domain/catalog"
)

const (
	StatusPending   = "pending"
	StatusApplied   = "applied"
	StatusCancelled = "cancelled"
)

var validStatuses = map[string]bool{
	StatusPending: true, StatusApplied: true, StatusCancelled: true,
}

// DateLayout is the wire and storage format of scheduled dates.
const DateLayout = "2006-01-02"

// ScheduledPriceChange is a deferred price update. It moves from pending to
// applied or cancelled, never back.
type ScheduledPriceChange struct {
	ID            uuid.UUID          `db:"id" json:"id"`
	EntityType    catalog.EntityType `db:"entity_type" json:"entity_type"`
	EntityID      uuid.UUID          `db:"entity_id" json:"entity_id"`
	EntityName    string             `db:"entity_name" json:"entity_name,omitempty"`
	NewPrice      decimal.Decimal    `db:"new_price" json:"new_price"`
	ScheduledFor  time.Time          `db:"scheduled_for" json:"-"`
	Status        string             `db:"status" json:"status"`
	CreatedBy     *uuid.UUID         `db:"created_by" json:"created_by,omitempty"`
	CreatedByName string             `db:"created_by_name" json:"created_by_name,omitempty"`
	Reason        string             `db:"reason" json:"reason,omitempty"`
	AppliedAt     *time.Time         `db:"applied_at" json:"applied_at,omitempty"`
	CreatedAt     time.Time          `db:"created_at" json:"created_at"`
}

// ScheduledDate renders scheduled_for as a calendar date.
func (c *ScheduledPriceChange) ScheduledDate() string {
	return c.ScheduledFor.Format(DateLayout)
}

func (c ScheduledPriceChange) MarshalJSON() ([]byte, error) {
	type alias ScheduledPriceChange
	return json.Marshal(struct {
		alias
		ScheduledFor string `json:"scheduled_for"`
	}{alias(c), c.ScheduledDate()})
}

// ScheduleRequest asks for a future price change.
type ScheduleRequest struct {
	EntityType   catalog.EntityType
	EntityID     uuid.UUID
	NewPrice     decimal.Decimal
	ScheduledFor time.Time
	Reason       string
}

// RowError is one failed row of a sweep.
type RowError struct {
	ID    uuid.UUID `json:"id"`
	Error string    `json:"error"`
}

// SweepResult summarises one ApplyDue run.
type SweepResult struct {
	Applied []uuid.UUID `json:"applied"`
	Skipped int         `json:"skipped"`
	Failed  []RowError  `json:"failed"`
}

// BulkRow is one parsed line of an uploaded price sheet. Row is the sheet
// row number, with the header on row 1.
type BulkRow struct {
	Row           int
	EntityType    string
	Identifier    string
	NewPrice      string
	EffectiveDate string
	Reason        string
}

// PreviewRow is a validated bulk row with the entity it resolved to.
type PreviewRow struct {
	Row           int                `json:"row"`
	EntityType    catalog.EntityType `json:"entity_type"`
	Identifier    string             `json:"identifier"`
	EntityID      uuid.UUID          `json:"entity_id"`
	EntityName    string             `json:"entity_name"`
	CurrentPrice  decimal.Decimal    `json:"current_price"`
	NewPrice      decimal.Decimal    `json:"new_price"`
	EffectiveDate *string            `json:"effective_date"`
	Reason        string             `json:"reason"`
}

type Preview struct {
	Preview        []PreviewRow `json:"preview"`
	Errors         []string     `json:"errors"`
	TotalRecords   int          `json:"total_records"`
	ValidRecords   int          `json:"valid_records"`
	InvalidRecords int          `json:"invalid_records"`
}

// BulkInstruction is one caller-approved price change from a preview.
type BulkInstruction struct {
	EntityType    catalog.EntityType `json:"entity_type"`
	Identifier    string             `json:"identifier"`
	NewPrice      *decimal.Decimal   `json:"new_price"`
	EffectiveDate *string            `json:"effective_date"`
	Reason        string             `json:"reason"`
}

type BulkResult struct {
	Identifier    string             `json:"identifier"`
	EntityType    catalog.EntityType `json:"entity_type"`
	EntityID      uuid.UUID          `json:"entity_id"`
	NewPrice      decimal.Decimal    `json:"new_price"`
	Status        string             `json:"status"`
	EffectiveDate *string            `json:"effective_date,omitempty"`
}

type BulkSummary struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

type BulkOutcome struct {
	Results []BulkResult `json:"results"`
	Errors  []string     `json:"errors"`
	Summary BulkSummary  `json:"summary"`
}
