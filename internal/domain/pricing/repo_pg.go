package pricing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hospbill/billing/internal/domain/catalog"
	"github.com/hospbill/billing/internal/platform/apperr"
	"github.com/hospbill/billing/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const changeCols = `spc.id, spc.entity_type, spc.entity_id, spc.new_price, spc.scheduled_for, spc.status,
	spc.created_by, COALESCE(spc.reason, ''), spc.applied_at, spc.created_at`

// enriched adds the entity and creator names to a listing.
const enrichedCols = changeCols + `,
	CASE WHEN spc.entity_type = 'service' THEN COALESCE(s.name, 'Unknown Service')
	     ELSE COALESCE(p.name, 'Unknown Item') END,
	COALESCE(u.full_name, '')`

const enrichedFrom = `scheduled_price_changes spc
	LEFT JOIN services s ON spc.entity_type = 'service' AND s.id = spc.entity_id
	LEFT JOIN pharmacy_items p ON spc.entity_type = 'pharmacy' AND p.id = spc.entity_id
	LEFT JOIN users u ON u.id = spc.created_by`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChange(row rowScanner, extra ...any) (*ScheduledPriceChange, error) {
	var c ScheduledPriceChange
	var et string
	dest := []any{&c.ID, &et, &c.EntityID, &c.NewPrice, &c.ScheduledFor, &c.Status,
		&c.CreatedBy, &c.Reason, &c.AppliedAt, &c.CreatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	c.EntityType = catalog.EntityType(et)
	return &c, nil
}

func scanEnriched(row rowScanner) (*ScheduledPriceChange, error) {
	var name, creator string
	c, err := scanChange(row, &name, &creator)
	if err != nil {
		return nil, err
	}
	c.EntityName = name
	c.CreatedByName = creator
	return c, nil
}

func (r *repoPG) Create(ctx context.Context, c *ScheduledPriceChange) error {
	c.ID = uuid.New()
	if c.Status == "" {
		c.Status = StatusPending
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO scheduled_price_changes (id, entity_type, entity_id, new_price, scheduled_for, status, created_by, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''))
		RETURNING created_at`,
		c.ID, string(c.EntityType), c.EntityID, c.NewPrice, c.ScheduledFor, c.Status, c.CreatedBy, c.Reason,
	).Scan(&c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert scheduled price change: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*ScheduledPriceChange, error) {
	c, err := scanEnriched(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+enrichedCols+` FROM `+enrichedFrom+` WHERE spc.id = $1`, id))
	if err != nil {
		return nil, apperr.FromPG(err, "scheduled price change", id, "")
	}
	return c, nil
}

func (r *repoPG) CancelPending(ctx context.Context, id uuid.UUID) (*ScheduledPriceChange, error) {
	c, err := scanChange(db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE scheduled_price_changes spc SET status = 'cancelled'
		WHERE spc.id = $1 AND spc.status = 'pending'
		RETURNING `+changeCols, id))
	if apperr.IsNoRows(err) {
		return nil, apperr.NotFoundf("scheduled change not found or already applied/cancelled")
	}
	if err != nil {
		return nil, fmt.Errorf("cancel scheduled price change: %w", err)
	}
	return c, nil
}

func (r *repoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*ScheduledPriceChange, int, error) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("spc.status = $%d", f.Status)
	}
	if f.EntityType != "" {
		add("spc.entity_type = $%d", string(f.EntityType))
	}
	if f.EntityID != uuid.Nil {
		add("spc.entity_id = $%d", f.EntityID)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	q := db.Conn(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM scheduled_price_changes spc`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count scheduled price changes: %w", err)
	}
	args = append(args, limit, offset)
	rows, err := q.Query(ctx, fmt.Sprintf(`SELECT %s FROM %s%s ORDER BY spc.scheduled_for, spc.created_at LIMIT $%d OFFSET $%d`,
		enrichedCols, enrichedFrom, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list scheduled price changes: %w", err)
	}
	defer rows.Close()

	var out []*ScheduledPriceChange
	for rows.Next() {
		c, err := scanEnriched(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

func (r *repoPG) DueIDs(ctx context.Context, today time.Time) ([]uuid.UUID, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id FROM scheduled_price_changes
		WHERE status = 'pending' AND scheduled_for <= $1
		ORDER BY scheduled_for, created_at`, today)
	if err != nil {
		return nil, fmt.Errorf("list due price changes: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *repoPG) LockDue(ctx context.Context, id uuid.UUID, today time.Time) (*ScheduledPriceChange, bool, error) {
	c, err := scanChange(db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+changeCols+`
		FROM scheduled_price_changes spc
		WHERE spc.id = $1 AND spc.status = 'pending' AND spc.scheduled_for <= $2
		FOR UPDATE SKIP LOCKED`, id, today))
	if apperr.IsNoRows(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lock scheduled price change: %w", err)
	}
	return c, true, nil
}

func (r *repoPG) MarkApplied(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE scheduled_price_changes SET status = 'applied', applied_at = $2
		WHERE id = $1 AND status = 'pending'`, id, at)
	if err != nil {
		return fmt.Errorf("mark price change applied: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("scheduled change %s is no longer pending", id)
	}
	return nil
}
