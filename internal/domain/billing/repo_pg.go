package billing

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

// =========== Account Repository ===========

type accountRepoPG struct{ pool *pgxpool.Pool }

func NewAccountRepoPG(pool *pgxpool.Pool) AccountRepository { return &accountRepoPG{pool: pool} }

const accountCols = `a.id, a.patient_id, p.first_name || ' ' || p.last_name, a.total_amount, a.balance,
	a.status, a.created_by, a.created_at, a.updated_at`

const accountFrom = ` FROM accounts a JOIN patients p ON p.id = a.patient_id`

func scanAccount(row rowScanner) (*Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.PatientID, &a.PatientName, &a.TotalAmount, &a.Balance,
		&a.Status, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *accountRepoPG) EnsureOpen(ctx context.Context, patientID uuid.UUID, createdBy *uuid.UUID) (*Account, error) {
	q := db.Conn(ctx, r.pool)
	// The partial unique index on open accounts makes a concurrent insert
	// wait for ours and then do nothing.
	_, err := q.Exec(ctx, `
		INSERT INTO accounts (id, patient_id, created_by)
		VALUES ($1, $2, $3)
		ON CONFLICT (patient_id) WHERE status = 'open' DO NOTHING`,
		uuid.New(), patientID, createdBy)
	if err != nil {
		if apperr.IsForeignKeyViolation(err) {
			return nil, apperr.NotFound("patient", patientID)
		}
		return nil, fmt.Errorf("create account: %w", err)
	}
	a, err := scanAccount(q.QueryRow(ctx, `SELECT `+accountCols+accountFrom+`
		WHERE a.patient_id = $1 AND a.status = 'open' FOR UPDATE OF a`, patientID))
	if err != nil {
		return nil, apperr.FromPG(err, "open account for patient", patientID, "")
	}
	return a, nil
}

func (r *accountRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	a, err := scanAccount(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+accountCols+accountFrom+` WHERE a.id = $1`, id))
	if err != nil {
		return nil, apperr.FromPG(err, "account", id, "")
	}
	return a, nil
}

func (r *accountRepoPG) GetOpenByPatient(ctx context.Context, patientID uuid.UUID) (*Account, error) {
	a, err := scanAccount(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+accountCols+accountFrom+`
		WHERE a.patient_id = $1 AND a.status = 'open'`, patientID))
	if err != nil {
		return nil, apperr.FromPG(err, "open account for patient", patientID, "")
	}
	return a, nil
}

func (r *accountRepoPG) AddCharge(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE accounts SET total_amount = total_amount + $2, balance = balance + $2, updated_at = NOW()
		WHERE id = $1`, id, amount)
	if err != nil {
		return fmt.Errorf("charge account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("account", id)
	}
	return nil
}

func (r *accountRepoPG) ApplyPayment(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE accounts SET balance = balance - $2, updated_at = NOW() WHERE id = $1`, id, amount)
	if err != nil {
		return fmt.Errorf("apply payment to account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("account", id)
	}
	return nil
}

// =========== Invoice Repository ===========

type invoiceRepoPG struct{ pool *pgxpool.Pool }

func NewInvoiceRepoPG(pool *pgxpool.Pool) InvoiceRepository { return &invoiceRepoPG{pool: pool} }

const invCols = `i.id, i.account_id, i.patient_id, p.first_name || ' ' || p.last_name, i.invoice_number,
	i.issued_at, i.due_date, i.subtotal, i.discount, i.total_amount, i.paid_amount, i.payment_status,
	i.notes, i.created_by, i.created_at, i.updated_at`

const invFrom = ` FROM invoices i JOIN patients p ON p.id = i.patient_id`

func scanInvoice(row rowScanner) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.AccountID, &inv.PatientID, &inv.PatientName, &inv.InvoiceNumber,
		&inv.IssuedAt, &inv.DueDate, &inv.Subtotal, &inv.Discount, &inv.TotalAmount, &inv.PaidAmount,
		&inv.PaymentStatus, &inv.Notes, &inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// NextSequence seeds a new period from the invoices already numbered in it,
// so numbering continues across data loaded without the counter table.
func (r *invoiceRepoPG) NextSequence(ctx context.Context, period string) (int, error) {
	var seq int
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO invoice_sequences (period, last_seq)
		VALUES ($1, 1 + (SELECT COUNT(*) FROM invoices WHERE invoice_number LIKE $2))
		ON CONFLICT (period) DO UPDATE SET last_seq = invoice_sequences.last_seq + 1
		RETURNING last_seq`,
		period, NumberPrefix+"-"+period+"-%",
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("next invoice sequence: %w", err)
	}
	return seq, nil
}

func (r *invoiceRepoPG) Create(ctx context.Context, inv *Invoice) error {
	inv.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO invoices (id, account_id, patient_id, invoice_number, issued_at, due_date,
			subtotal, discount, total_amount, paid_amount, payment_status, notes, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at`,
		inv.ID, inv.AccountID, inv.PatientID, inv.InvoiceNumber, inv.IssuedAt, inv.DueDate,
		inv.Subtotal, inv.Discount, inv.TotalAmount, inv.PaidAmount, inv.PaymentStatus, inv.Notes, inv.CreatedBy,
	).Scan(&inv.CreatedAt, &inv.UpdatedAt)
	return apperr.FromPG(err, "invoice", inv.ID, "invoice number already exists")
}

func (r *invoiceRepoPG) AddItems(ctx context.Context, invoiceID uuid.UUID, items []*InvoiceItem) error {
	q := db.Conn(ctx, r.pool)
	for i, it := range items {
		it.ID = uuid.New()
		it.InvoiceID = invoiceID
		it.Position = i + 1
		_, err := q.Exec(ctx, `
			INSERT INTO invoice_items (id, invoice_id, position, item_type, item_id, description,
				quantity, unit_price, line_total)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			it.ID, it.InvoiceID, it.Position, it.ItemType, it.ItemID, it.Description,
			it.Quantity, it.UnitPrice, it.LineTotal)
		if err != nil {
			return fmt.Errorf("insert invoice item %d: %w", it.Position, err)
		}
	}
	return nil
}

func (r *invoiceRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	inv, err := scanInvoice(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+invCols+invFrom+` WHERE i.id = $1`, id))
	if err != nil {
		return nil, apperr.FromPG(err, "invoice", id, "")
	}
	return inv, nil
}

func (r *invoiceRepoPG) GetByNumber(ctx context.Context, number string) (*Invoice, error) {
	inv, err := scanInvoice(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+invCols+invFrom+` WHERE i.invoice_number = $1`, number))
	if err != nil {
		return nil, apperr.FromPG(err, "invoice", number, "")
	}
	return inv, nil
}

func (r *invoiceRepoPG) LockForUpdate(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	inv, err := scanInvoice(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+invCols+invFrom+` WHERE i.id = $1 FOR UPDATE OF i`, id))
	if err != nil {
		return nil, apperr.FromPG(err, "invoice", id, "")
	}
	return inv, nil
}

func (r *invoiceRepoPG) SetPaid(ctx context.Context, id uuid.UUID, paid decimal.Decimal, status string) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE invoices SET paid_amount = $2, payment_status = $3, updated_at = NOW() WHERE id = $1`,
		id, paid, status)
	if err != nil {
		return fmt.Errorf("update invoice payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("invoice", id)
	}
	return nil
}

func (r *invoiceRepoPG) Items(ctx context.Context, invoiceID uuid.UUID) ([]*InvoiceItem, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, invoice_id, position, item_type, item_id, description, quantity, unit_price, line_total
		FROM invoice_items WHERE invoice_id = $1 ORDER BY position`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("list invoice items: %w", err)
	}
	defer rows.Close()

	var out []*InvoiceItem
	for rows.Next() {
		var it InvoiceItem
		if err := rows.Scan(&it.ID, &it.InvoiceID, &it.Position, &it.ItemType, &it.ItemID,
			&it.Description, &it.Quantity, &it.UnitPrice, &it.LineTotal); err != nil {
			return nil, err
		}
		out = append(out, &it)
	}
	return out, rows.Err()
}

func (r *invoiceRepoPG) List(ctx context.Context, f InvoiceFilter, limit, offset int) ([]*Invoice, int, error) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.PatientID != nil {
		add("i.patient_id = $%d", *f.PatientID)
	}
	if f.PaymentStatus != "" {
		add("i.payment_status = $%d", f.PaymentStatus)
	}
	if f.IssuedFrom != nil {
		add("i.issued_at >= $%d", *f.IssuedFrom)
	}
	if f.IssuedTo != nil {
		add("i.issued_at < $%d", f.IssuedTo.AddDate(0, 0, 1))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	q := db.Conn(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM invoices i`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count invoices: %w", err)
	}
	args = append(args, limit, offset)
	rows, err := q.Query(ctx, fmt.Sprintf(`SELECT %s%s%s ORDER BY i.issued_at DESC LIMIT $%d OFFSET $%d`,
		invCols, invFrom, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()

	var out []*Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, inv)
	}
	return out, total, rows.Err()
}

// =========== Payment Repository ===========

type paymentRepoPG struct{ pool *pgxpool.Pool }

func NewPaymentRepoPG(pool *pgxpool.Pool) PaymentRepository { return &paymentRepoPG{pool: pool} }

func (r *paymentRepoPG) Create(ctx context.Context, p *Payment) error {
	p.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO payments (id, invoice_id, paid_by, amount, method, transaction_ref)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		p.ID, p.InvoiceID, p.PaidBy, p.Amount, p.Method, p.TransactionRef,
	).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *paymentRepoPG) ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]*Payment, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT pm.id, pm.invoice_id, pm.paid_by, COALESCE(u.full_name, ''), pm.amount, pm.method,
			pm.transaction_ref, pm.created_at
		FROM payments pm
		LEFT JOIN users u ON u.id = pm.paid_by
		WHERE pm.invoice_id = $1
		ORDER BY pm.created_at`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var out []*Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.PaidBy, &p.CollectedBy, &p.Amount, &p.Method,
			&p.TransactionRef, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}
