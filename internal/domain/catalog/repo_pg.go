package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/hospbill/billing/internal/platform/apperr"
	"github.com/hospbill/billing/internal/platform/db"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// whereBuilder collects numbered predicates for list queries.
type whereBuilder struct {
	conds []string
	args  []any
}

func (w *whereBuilder) add(cond string, v any) {
	w.args = append(w.args, v)
	w.conds = append(w.conds, fmt.Sprintf(cond, len(w.args)))
}

func (w *whereBuilder) addRaw(cond string) {
	w.conds = append(w.conds, cond)
}

func (w *whereBuilder) clause() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// -- Services --

type serviceRepoPG struct{ pool *pgxpool.Pool }

func NewServiceRepoPG(pool *pgxpool.Pool) ServiceRepository { return &serviceRepoPG{pool: pool} }

const serviceCols = `id, code, name, description, category, base_price, cost_price,
	duration_minutes, active, created_at, updated_at`

func scanService(row rowScanner) (*Service, error) {
	var s Service
	err := row.Scan(&s.ID, &s.Code, &s.Name, &s.Description, &s.Category, &s.BasePrice,
		&s.CostPrice, &s.DurationMinutes, &s.Active, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *serviceRepoPG) Create(ctx context.Context, s *Service) error {
	s.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO services (id, code, name, description, category, base_price, cost_price, duration_minutes, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		s.ID, s.Code, s.Name, s.Description, s.Category, s.BasePrice, s.CostPrice, s.DurationMinutes, s.Active,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	return apperr.FromPG(err, "service", s.ID, "service code already exists")
}

func (r *serviceRepoPG) Update(ctx context.Context, s *Service) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE services SET code = $2, name = $3, description = $4, category = $5,
			cost_price = $6, duration_minutes = $7, active = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		s.ID, s.Code, s.Name, s.Description, s.Category, s.CostPrice, s.DurationMinutes, s.Active,
	).Scan(&s.UpdatedAt)
	return apperr.FromPG(err, "service", s.ID, "service code already exists")
}

func (r *serviceRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Service, error) {
	s, err := scanService(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+serviceCols+` FROM services WHERE id = $1`, id))
	if err != nil {
		return nil, apperr.FromPG(err, "service", id, "")
	}
	return s, nil
}

func (r *serviceRepoPG) GetByCode(ctx context.Context, code string) (*Service, error) {
	s, err := scanService(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+serviceCols+` FROM services WHERE code = $1`, code))
	if err != nil {
		return nil, apperr.FromPG(err, "service", code, "")
	}
	return s, nil
}

func (r *serviceRepoPG) LockForUpdate(ctx context.Context, id uuid.UUID) (*Service, error) {
	s, err := scanService(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+serviceCols+` FROM services WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, apperr.FromPG(err, "service", id, "")
	}
	return s, nil
}

func (r *serviceRepoPG) SetPrice(ctx context.Context, id uuid.UUID, price decimal.Decimal) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE services SET base_price = $2, updated_at = NOW() WHERE id = $1`, id, price)
	if err != nil {
		return fmt.Errorf("set service price: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("service", id)
	}
	return nil
}

func (r *serviceRepoPG) List(ctx context.Context, f ServiceFilter, limit, offset int) ([]*Service, int, error) {
	var w whereBuilder
	if f.ActiveOnly {
		w.addRaw("active")
	}
	if f.Category != "" {
		w.add("category = $%d", f.Category)
	}
	if f.Search != "" {
		w.add("(name ILIKE $%[1]d OR code ILIKE $%[1]d)", "%"+f.Search+"%")
	}
	q := db.Conn(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM services`+w.clause(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count services: %w", err)
	}
	args := append(w.args, limit, offset)
	rows, err := q.Query(ctx, fmt.Sprintf(`SELECT %s FROM services%s ORDER BY category, name LIMIT $%d OFFSET $%d`,
		serviceCols, w.clause(), len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	var out []*Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

// -- Pharmacy items --

type pharmacyRepoPG struct{ pool *pgxpool.Pool }

func NewPharmacyRepoPG(pool *pgxpool.Pool) PharmacyRepository { return &pharmacyRepoPG{pool: pool} }

const pharmacyCols = `id, sku, name, unit, description, price, cost_price, stock_quantity,
	reorder_level, supplier_id, active, created_at, updated_at`

func scanPharmacyItem(row rowScanner) (*PharmacyItem, error) {
	var p PharmacyItem
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Unit, &p.Description, &p.Price, &p.CostPrice,
		&p.StockQuantity, &p.ReorderLevel, &p.SupplierID, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *pharmacyRepoPG) Create(ctx context.Context, p *PharmacyItem) error {
	p.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO pharmacy_items (id, sku, name, unit, description, price, cost_price,
			stock_quantity, reorder_level, supplier_id, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`,
		p.ID, p.SKU, p.Name, p.Unit, p.Description, p.Price, p.CostPrice,
		p.StockQuantity, p.ReorderLevel, p.SupplierID, p.Active,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return apperr.FromPG(err, "pharmacy item", p.ID, "SKU already exists")
}

func (r *pharmacyRepoPG) Update(ctx context.Context, p *PharmacyItem) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE pharmacy_items SET sku = $2, name = $3, unit = $4, description = $5,
			cost_price = $6, reorder_level = $7, supplier_id = $8, active = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.SKU, p.Name, p.Unit, p.Description, p.CostPrice, p.ReorderLevel, p.SupplierID, p.Active,
	).Scan(&p.UpdatedAt)
	return apperr.FromPG(err, "pharmacy item", p.ID, "SKU already exists")
}

func (r *pharmacyRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*PharmacyItem, error) {
	p, err := scanPharmacyItem(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+pharmacyCols+` FROM pharmacy_items WHERE id = $1`, id))
	if err != nil {
		return nil, apperr.FromPG(err, "pharmacy item", id, "")
	}
	return p, nil
}

func (r *pharmacyRepoPG) GetBySKU(ctx context.Context, sku string) (*PharmacyItem, error) {
	p, err := scanPharmacyItem(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+pharmacyCols+` FROM pharmacy_items WHERE sku = $1`, sku))
	if err != nil {
		return nil, apperr.FromPG(err, "pharmacy item", sku, "")
	}
	return p, nil
}

func (r *pharmacyRepoPG) LockForUpdate(ctx context.Context, id uuid.UUID) (*PharmacyItem, error) {
	p, err := scanPharmacyItem(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+pharmacyCols+` FROM pharmacy_items WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, apperr.FromPG(err, "pharmacy item", id, "")
	}
	return p, nil
}

func (r *pharmacyRepoPG) SetPrice(ctx context.Context, id uuid.UUID, price decimal.Decimal) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE pharmacy_items SET price = $2, updated_at = NOW() WHERE id = $1`, id, price)
	if err != nil {
		return fmt.Errorf("set pharmacy price: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("pharmacy item", id)
	}
	return nil
}

func (r *pharmacyRepoPG) SetStock(ctx context.Context, id uuid.UUID, qty int) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE pharmacy_items SET stock_quantity = $2, updated_at = NOW() WHERE id = $1`, id, qty)
	if err != nil {
		return fmt.Errorf("set stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("pharmacy item", id)
	}
	return nil
}

func (r *pharmacyRepoPG) DecrementStock(ctx context.Context, id uuid.UUID, qty int) (bool, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE pharmacy_items SET stock_quantity = stock_quantity - $2, updated_at = NOW()
		WHERE id = $1 AND stock_quantity >= $2`, id, qty)
	if err != nil {
		return false, fmt.Errorf("decrement stock: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *pharmacyRepoPG) List(ctx context.Context, f PharmacyFilter, limit, offset int) ([]*PharmacyItem, int, error) {
	var w whereBuilder
	if f.ActiveOnly || f.LowStockOnly {
		w.addRaw("active")
	}
	if f.LowStockOnly {
		w.addRaw("stock_quantity <= reorder_level")
	}
	if f.Search != "" {
		w.add("(name ILIKE $%[1]d OR sku ILIKE $%[1]d)", "%"+f.Search+"%")
	}
	order := "name"
	if f.LowStockOnly {
		order = "stock_quantity, name"
	}
	q := db.Conn(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM pharmacy_items`+w.clause(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count pharmacy items: %w", err)
	}
	args := append(w.args, limit, offset)
	rows, err := q.Query(ctx, fmt.Sprintf(`SELECT %s FROM pharmacy_items%s ORDER BY %s LIMIT $%d OFFSET $%d`,
		pharmacyCols, w.clause(), order, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list pharmacy items: %w", err)
	}
	defer rows.Close()

	var out []*PharmacyItem
	for rows.Next() {
		p, err := scanPharmacyItem(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

// -- Price history --

type historyRepoPG struct{ pool *pgxpool.Pool }

func NewPriceHistoryRepoPG(pool *pgxpool.Pool) PriceHistoryRepository { return &historyRepoPG{pool: pool} }

func (r *historyRepoPG) Insert(ctx context.Context, e *PriceHistoryEntry) error {
	e.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO price_history (id, entity_type, entity_id, old_price, new_price, changed_by, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING changed_at`,
		e.ID, string(e.EntityType), e.EntityID, e.OldPrice, e.NewPrice, e.ChangedBy, e.Reason,
	).Scan(&e.ChangedAt)
	if err != nil {
		return fmt.Errorf("insert price history: %w", err)
	}
	return nil
}

func (r *historyRepoPG) ListByEntity(ctx context.Context, t EntityType, id uuid.UUID) ([]*PriceHistoryEntry, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT ph.id, ph.entity_type, ph.entity_id, ph.old_price, ph.new_price, ph.changed_by,
		       COALESCE(u.full_name, ''), ph.reason, ph.changed_at
		FROM price_history ph
		LEFT JOIN users u ON u.id = ph.changed_by
		WHERE ph.entity_type = $1 AND ph.entity_id = $2
		ORDER BY ph.changed_at DESC`, string(t), id)
	if err != nil {
		return nil, fmt.Errorf("list price history: %w", err)
	}
	defer rows.Close()

	var out []*PriceHistoryEntry
	for rows.Next() {
		var e PriceHistoryEntry
		var et string
		if err := rows.Scan(&e.ID, &et, &e.EntityID, &e.OldPrice, &e.NewPrice, &e.ChangedBy,
			&e.ChangedByName, &e.Reason, &e.ChangedAt); err != nil {
			return nil, err
		}
		e.EntityType = EntityType(et)
		out = append(out, &e)
	}
	return out, rows.Err()
}
