package pricing

import (
	"context"
	"fmt"
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

const (
	defaultBulkReason      = "Bulk update"
	defaultScheduledReason = "Scheduled price change"
)

// Catalog is the part of the catalog store pricing drives.
type Catalog interface {
	Resolve(ctx context.Context, t catalog.EntityType, id uuid.UUID) (catalog.Entity, error)
	ResolveByIdentifier(ctx context.Context, t catalog.EntityType, identifier string) (catalog.Entity, error)
	UpdatePrice(ctx context.Context, actor auth.Principal, u catalog.PriceUpdate) (*catalog.PriceHistoryEntry, error)
}

type Service struct {
	repo    Repository
	catalog Catalog
	tx      db.Transactor
	audit   audit.Sink
	now     func() time.Time
}

func NewService(repo Repository, cat Catalog, tx db.Transactor, sink audit.Sink) *Service {
	return &Service{repo: repo, catalog: cat, tx: tx, audit: sink, now: time.Now}
}

// dateOf returns t's calendar date as UTC midnight.
func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate accepts YYYY-MM-DD or DD/MM/YYYY.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{DateLayout, "02/01/2006", "2/1/2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// -- Scheduled changes --

// CreateScheduled queues a price change for a date after today.
func (s *Service) CreateScheduled(ctx context.Context, actor auth.Principal, req ScheduleRequest) (*ScheduledPriceChange, error) {
	if !req.EntityType.Valid() {
		return nil, apperr.Validation("entity_type must be service or pharmacy")
	}
	if req.EntityID == uuid.Nil {
		return nil, apperr.Validation("entity_id is required")
	}
	if req.NewPrice.IsNegative() {
		return nil, apperr.Validation("new_price must be a non-negative amount")
	}
	if req.ScheduledFor.IsZero() {
		return nil, apperr.Validation("scheduled_for is required")
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if req.Reason == "" {
		return nil, apperr.Validation("reason is required")
	}
	if !dateOf(req.ScheduledFor).After(dateOf(s.now())) {
		return nil, apperr.Validation("scheduled date must be in the future")
	}
	ent, err := s.catalog.Resolve(ctx, req.EntityType, req.EntityID)
	if err != nil {
		return nil, err
	}
	return s.schedule(ctx, actor, ent, req.NewPrice, req.ScheduledFor, req.Reason)
}

func (s *Service) schedule(ctx context.Context, actor auth.Principal, ent catalog.Entity, price decimal.Decimal, on time.Time, reason string) (*ScheduledPriceChange, error) {
	c := &ScheduledPriceChange{
		EntityType:   ent.Type,
		EntityID:     ent.ID,
		EntityName:   ent.Name,
		NewPrice:     money.Round(price),
		ScheduledFor: dateOf(on),
		Status:       StatusPending,
		Reason:       reason,
	}
	if actor.UserID != uuid.Nil {
		uid := actor.UserID
		c.CreatedBy = &uid
	}
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, c); err != nil {
			return err
		}
		return s.audit.Record(ctx, actor, c.ID.String(), audit.ScheduledChangeCreated{
			EntityType:   ent.Type.String(),
			EntityID:     ent.ID,
			NewPrice:     c.NewPrice,
			ScheduledFor: c.ScheduledDate(),
			Reason:       reason,
		})
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// CancelScheduled cancels a pending change. Applied, cancelled and unknown
// changes are all reported as not found.
func (s *Service) CancelScheduled(ctx context.Context, actor auth.Principal, id uuid.UUID) (*ScheduledPriceChange, error) {
	var out *ScheduledPriceChange
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		c, err := s.repo.CancelPending(ctx, id)
		if err != nil {
			return err
		}
		out = c
		return s.audit.Record(ctx, actor, id.String(), audit.ScheduledChangeCancelled{
			EntityType:   c.EntityType.String(),
			EntityID:     c.EntityID,
			ScheduledFor: c.ScheduledDate(),
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) GetScheduled(ctx context.Context, id uuid.UUID) (*ScheduledPriceChange, error) {
	return s.repo.GetByID(ctx, id)
}

// ListScheduled lists changes with their entity names. An empty status
// lists every state.
func (s *Service) ListScheduled(ctx context.Context, f ListFilter, limit, offset int) ([]*ScheduledPriceChange, int, error) {
	if f.Status != "" && !validStatuses[f.Status] {
		return nil, 0, apperr.Validation("status must be one of: pending, applied, cancelled")
	}
	if f.EntityType != "" && !f.EntityType.Valid() {
		return nil, 0, apperr.Validation("entity_type must be service or pharmacy")
	}
	return s.repo.List(ctx, f, limit, offset)
}

// ApplyDue applies every pending change scheduled on or before now's date.
// Each change runs in its own transaction; one failure does not stop the
// rest. Rows locked by a concurrent sweep are skipped.
func (s *Service) ApplyDue(ctx context.Context, now time.Time) (SweepResult, error) {
	res := SweepResult{Applied: []uuid.UUID{}, Failed: []RowError{}}
	today := dateOf(now)
	ids, err := s.repo.DueIDs(ctx, today)
	if err != nil {
		return res, err
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		applied, err := s.applyOne(ctx, id, today, now)
		switch {
		case err != nil:
			res.Failed = append(res.Failed, RowError{ID: id, Error: publicMessage(err)})
		case applied:
			res.Applied = append(res.Applied, id)
		default:
			res.Skipped++
		}
	}
	return res, nil
}

func (s *Service) applyOne(ctx context.Context, id uuid.UUID, today, now time.Time) (bool, error) {
	applied := false
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		c, ok, err := s.repo.LockDue(ctx, id, today)
		if err != nil || !ok {
			return err
		}
		actor := auth.System
		if c.CreatedBy != nil {
			actor = auth.Principal{UserID: *c.CreatedBy, Role: auth.RoleSystem}
		}
		reason := c.Reason
		if reason == "" {
			reason = defaultScheduledReason
		}
		entry, err := s.catalog.UpdatePrice(ctx, actor, catalog.PriceUpdate{
			EntityType: c.EntityType,
			EntityID:   c.EntityID,
			NewPrice:   c.NewPrice,
			Reason:     reason,
			Source:     catalog.SourceScheduled,
		})
		if err != nil {
			return err
		}
		if err := s.repo.MarkApplied(ctx, id, now); err != nil {
			return err
		}
		applied = true
		return s.audit.Record(ctx, actor, id.String(), audit.ScheduledChangeApplied{
			EntityType:   c.EntityType.String(),
			EntityID:     c.EntityID,
			OldPrice:     entry.OldPrice,
			NewPrice:     entry.NewPrice,
			ScheduledFor: c.ScheduledDate(),
		})
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// publicMessage keeps classified messages and hides internal ones.
func publicMessage(err error) string {
	switch apperr.KindOf(err) {
	case apperr.KindInternal, apperr.KindTransaction:
		return "internal error"
	default:
		return err.Error()
	}
}

// -- Bulk updates --

// PreviewBulk validates parsed sheet rows against the catalog without
// changing anything. It fails only when no row is valid.
func (s *Service) PreviewBulk(ctx context.Context, rows []BulkRow) (*Preview, error) {
	if len(rows) == 0 {
		return nil, apperr.Validation("no price rows found in upload")
	}
	out := &Preview{Preview: []PreviewRow{}, Errors: []string{}, TotalRecords: len(rows)}
	for _, r := range rows {
		pr, msg, err := s.previewRow(ctx, r)
		if err != nil {
			return nil, err
		}
		if msg != "" {
			out.Errors = append(out.Errors, fmt.Sprintf("Row %d: %s", r.Row, msg))
			continue
		}
		out.Preview = append(out.Preview, pr)
	}
	out.ValidRecords = len(out.Preview)
	out.InvalidRecords = len(out.Errors)
	if out.ValidRecords == 0 {
		return nil, apperr.AllRowsInvalid(out.Errors)
	}
	return out, nil
}

// previewRow returns either a preview row or a row-level message. err is
// reserved for store failures.
func (s *Service) previewRow(ctx context.Context, r BulkRow) (PreviewRow, string, error) {
	entityType := strings.ToLower(strings.TrimSpace(r.EntityType))
	identifier := strings.TrimSpace(r.Identifier)
	rawPrice := strings.TrimSpace(r.NewPrice)
	if entityType == "" || identifier == "" || rawPrice == "" {
		return PreviewRow{}, "entity_type, identifier, and new_price are required", nil
	}
	t := catalog.EntityType(entityType)
	if !t.Valid() {
		return PreviewRow{}, "entity_type must be 'service' or 'pharmacy'", nil
	}
	price, err := money.Parse(rawPrice)
	if err != nil || price.IsNegative() {
		return PreviewRow{}, "new_price must be a valid non-negative number", nil
	}
	ent, err := s.catalog.ResolveByIdentifier(ctx, t, identifier)
	if apperr.IsKind(err, apperr.KindNotFound) {
		return PreviewRow{}, fmt.Sprintf("%s with identifier '%s' not found", t, identifier), nil
	}
	if err != nil {
		return PreviewRow{}, "", err
	}
	pr := PreviewRow{
		Row:          r.Row,
		EntityType:   t,
		Identifier:   identifier,
		EntityID:     ent.ID,
		EntityName:   ent.Name,
		CurrentPrice: ent.Price,
		NewPrice:     money.Round(price),
		Reason:       strings.TrimSpace(r.Reason),
	}
	if pr.Reason == "" {
		pr.Reason = defaultBulkReason
	}
	if eff := strings.TrimSpace(r.EffectiveDate); eff != "" {
		d, err := ParseDate(eff)
		if err != nil {
			return PreviewRow{}, "effective_date must be YYYY-MM-DD or DD/MM/YYYY", nil
		}
		iso := d.Format(DateLayout)
		pr.EffectiveDate = &iso
	}
	return pr, "", nil
}

// ConfirmBulk applies approved instructions one by one. Instructions dated
// today or earlier apply now; later ones are scheduled. Failures are
// collected per instruction and one audit entry covers the batch.
func (s *Service) ConfirmBulk(ctx context.Context, actor auth.Principal, updates []BulkInstruction) (*BulkOutcome, error) {
	if len(updates) == 0 {
		return nil, apperr.Validation("updates array is required")
	}
	today := dateOf(s.now())
	out := &BulkOutcome{Results: []BulkResult{}, Errors: []string{}}
	for _, u := range updates {
		res, err := s.confirmOne(ctx, actor, u, today)
		if err != nil {
			if apperr.IsKind(err, apperr.KindNotFound) {
				out.Errors = append(out.Errors, fmt.Sprintf("Entity not found: %s", u.Identifier))
			} else {
				out.Errors = append(out.Errors, fmt.Sprintf("Failed to update %s: %s", u.Identifier, publicMessage(err)))
			}
			continue
		}
		out.Results = append(out.Results, res)
	}
	out.Summary = BulkSummary{Total: len(updates), Successful: len(out.Results), Failed: len(out.Errors)}

	summary := audit.BulkPriceUpdate{Errors: out.Errors, Total: len(updates)}
	for _, r := range out.Results {
		summary.Results = append(summary.Results, audit.BulkOutcome{
			EntityType: r.EntityType.String(),
			EntityID:   r.EntityID,
			NewPrice:   r.NewPrice,
			Status:     r.Status,
		})
	}
	if err := s.audit.Record(ctx, actor, "", summary); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) confirmOne(ctx context.Context, actor auth.Principal, u BulkInstruction, today time.Time) (BulkResult, error) {
	if !u.EntityType.Valid() {
		return BulkResult{}, apperr.Validation("entity_type must be service or pharmacy")
	}
	if strings.TrimSpace(u.Identifier) == "" {
		return BulkResult{}, apperr.Validation("identifier is required")
	}
	if u.NewPrice == nil || u.NewPrice.IsNegative() {
		return BulkResult{}, apperr.Validation("new_price must be a non-negative amount")
	}
	reason := strings.TrimSpace(u.Reason)
	if reason == "" {
		reason = defaultBulkReason
	}
	var effective *time.Time
	if u.EffectiveDate != nil && strings.TrimSpace(*u.EffectiveDate) != "" {
		d, err := ParseDate(*u.EffectiveDate)
		if err != nil {
			return BulkResult{}, apperr.Validation("effective_date must be YYYY-MM-DD or DD/MM/YYYY")
		}
		effective = &d
	}

	ent, err := s.catalog.ResolveByIdentifier(ctx, u.EntityType, u.Identifier)
	if err != nil {
		return BulkResult{}, err
	}
	res := BulkResult{
		Identifier: ent.Identifier,
		EntityType: ent.Type,
		EntityID:   ent.ID,
		NewPrice:   money.Round(*u.NewPrice),
	}
	if effective == nil || !dateOf(*effective).After(today) {
		if _, err := s.catalog.UpdatePrice(ctx, actor, catalog.PriceUpdate{
			EntityType: ent.Type,
			EntityID:   ent.ID,
			NewPrice:   *u.NewPrice,
			Reason:     reason,
			Source:     catalog.SourceBulk,
		}); err != nil {
			return BulkResult{}, err
		}
		res.Status = StatusApplied
		return res, nil
	}
	c, err := s.schedule(ctx, actor, ent, *u.NewPrice, *effective, reason)
	if err != nil {
		return BulkResult{}, err
	}
	date := c.ScheduledDate()
	res.Status = "scheduled"
	res.EffectiveDate = &date
	return res, nil
}
