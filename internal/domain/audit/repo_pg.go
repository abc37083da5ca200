package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hospbill/billing/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

// Insert joins the caller's transaction when one is open, so the entry
// commits or rolls back with the mutation it describes.
func (r *repoPG) Insert(ctx context.Context, e *Entry) error {
	payload, err := Encode(e.Changes)
	if err != nil {
		return err
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	err = db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO audit_logs (id, user_id, action, target_table, target_id, changes, ip_address)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, NULLIF($7, ''))
		RETURNING created_at`,
		e.ID, e.UserID, string(e.Action), e.TargetTable, e.TargetID, payload, e.IPAddress,
	).Scan(&e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int, error) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.UserID != nil {
		add("user_id = $%d", *f.UserID)
	}
	if f.TargetTable != "" {
		add("target_table = $%d", f.TargetTable)
	}
	if f.TargetID != "" {
		add("target_id = $%d", f.TargetID)
	}
	if f.Action != "" {
		add("action = $%d", string(f.Action))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	q := db.Conn(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM audit_logs`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit logs: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := q.Query(ctx, fmt.Sprintf(`
		SELECT id, user_id, action, target_table, COALESCE(target_id, ''), changes,
		       COALESCE(ip_address, ''), created_at
		FROM audit_logs%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		var e Entry
		var action string
		var raw []byte
		if err := rows.Scan(&e.ID, &e.UserID, &action, &e.TargetTable, &e.TargetID, &raw, &e.IPAddress, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		e.Action = Action(action)
		if e.Changes, err = Decode(raw); err != nil {
			return nil, 0, err
		}
		out = append(out, &e)
	}
	return out, total, rows.Err()
}
