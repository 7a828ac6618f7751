package billing

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ledgerkite/ledgerkite/internal/platform/db"
	"github.com/ledgerkite/ledgerkite/internal/shared"
)

// ItemStock is the slice of an item the financial graph needs: current price
// and quantity, read under a row lock.
type ItemStock struct {
	UnitPrice decimal.Decimal
	Quantity  decimal.Decimal
}

// TxRepository is the bounded unit of work over one tenant's financial graph:
// invoices, lines, payments and item stock. Every invariant-affecting
// mutation runs against one of these inside a single transaction.
type TxRepository interface {
	GetInvoiceForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*Invoice, error)
	InsertInvoice(ctx context.Context, inv Invoice) (*Invoice, error)
	UpdateInvoice(ctx context.Context, tenantID, id uuid.UUID, updates map[string]any) error
	SetInvoiceDerived(ctx context.Context, tenantID, id uuid.UUID, total decimal.Decimal, status InvoiceStatus) error
	DeleteInvoice(ctx context.Context, tenantID, id uuid.UUID) error

	GetLine(ctx context.Context, tenantID, id uuid.UUID) (*InvoiceLine, error)
	FindLineByInvoiceItem(ctx context.Context, tenantID, invoiceID, itemID uuid.UUID) (*InvoiceLine, error)
	ListLines(ctx context.Context, tenantID, invoiceID uuid.UUID) ([]InvoiceLine, error)
	ListLinesByItem(ctx context.Context, tenantID, itemID uuid.UUID) ([]InvoiceLine, error)
	InsertLine(ctx context.Context, line InvoiceLine) (*InvoiceLine, error)
	UpdateLine(ctx context.Context, tenantID, id uuid.UUID, updates map[string]any) error
	DeleteLine(ctx context.Context, tenantID, id uuid.UUID) error

	GetPayment(ctx context.Context, tenantID, id uuid.UUID) (*Payment, error)
	ListPayments(ctx context.Context, tenantID, invoiceID uuid.UUID) ([]Payment, error)
	FindPaymentByReference(ctx context.Context, tenantID uuid.UUID, reference string) (*Payment, error)
	InsertPayment(ctx context.Context, p Payment) (*Payment, error)
	UpdatePayment(ctx context.Context, tenantID, id uuid.UUID, updates map[string]any) error
	DeletePayment(ctx context.Context, tenantID, id uuid.UUID) error

	GetItemForUpdate(ctx context.Context, tenantID, itemID uuid.UUID) (*ItemStock, error)
	SetItemQuantity(ctx context.Context, tenantID, itemID uuid.UUID, qty decimal.Decimal) error

	CustomerExists(ctx context.Context, tenantID, id uuid.UUID) (bool, error)
	ListInvoiceIDsByCustomer(ctx context.Context, tenantID, customerID uuid.UUID) ([]uuid.UUID, error)
	DeleteCustomer(ctx context.Context, tenantID, id uuid.UUID) error
	DeleteItem(ctx context.Context, tenantID, id uuid.UUID) error
}

// Repository adds the read and sync surface used outside transactions.
type Repository interface {
	WithTx(ctx context.Context, fn func(TxRepository) error) error

	GetInvoice(ctx context.Context, tenantID, id uuid.UUID) (*Invoice, error)
	FindInvoiceByNumber(ctx context.Context, tenantID uuid.UUID, number string) (*Invoice, error)
	ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]Invoice, int, error)
	GetLine(ctx context.Context, tenantID, id uuid.UUID) (*InvoiceLine, error)
	ListLines(ctx context.Context, tenantID, invoiceID uuid.UUID) ([]InvoiceLine, error)
	GetPayment(ctx context.Context, tenantID, id uuid.UUID) (*Payment, error)
	ListPayments(ctx context.Context, tenantID, invoiceID uuid.UUID) ([]Payment, error)
	FindPaymentByReference(ctx context.Context, tenantID uuid.UUID, reference string) (*Payment, error)

	ListUnsyncedInvoices(ctx context.Context, tenantID uuid.UUID, limit int) ([]Invoice, error)
	ListUnsyncedLines(ctx context.Context, tenantID uuid.UUID, limit int) ([]InvoiceLine, error)
	ListUnsyncedPayments(ctx context.Context, tenantID uuid.UUID, limit int) ([]Payment, error)
	MarkInvoicesSynced(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (int, error)
	MarkInvoicesSyncFailed(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (int, error)
	MarkLinesSynced(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (int, error)
	MarkLinesSyncFailed(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (int, error)
	MarkPaymentsSynced(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (int, error)
	MarkPaymentsSyncFailed(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (int, error)
	ListInvoicesUpdatedSince(ctx context.Context, tenantID *uuid.UUID, since time.Time) ([]Invoice, error)
	ListLinesUpdatedSince(ctx context.Context, tenantID *uuid.UUID, since time.Time) ([]InvoiceLine, error)
	ListPaymentsUpdatedSince(ctx context.Context, tenantID *uuid.UUID, since time.Time) ([]Payment, error)
}

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx, so the same query set
// serves plain reads and in-transaction work.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type queries struct {
	db dbtx
}

type repository struct {
	pool *pgxpool.Pool
	queries
}

// NewRepository constructs the pgx-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool, queries: queries{db: pool}}
}

func (r *repository) WithTx(ctx context.Context, fn func(TxRepository) error) error {
	return db.WithTx(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		return fn(&queries{db: tx})
	})
}

const invoiceColumns = `id, tenant_id, customer_id, invoice_number, date, due_date, currency, total::text, status, sync_status, created_at, updated_at`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var (
		inv   Invoice
		total string
	)
	err := row.Scan(&inv.ID, &inv.TenantID, &inv.CustomerID, &inv.InvoiceNumber, &inv.Date, &inv.DueDate,
		&inv.Currency, &total, &inv.Status, &inv.SyncStatus, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return nil, db.Translate(err)
	}
	if inv.Total, err = decimal.NewFromString(total); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (q *queries) GetInvoice(ctx context.Context, tenantID, id uuid.UUID) (*Invoice, error) {
	return scanInvoice(q.db.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE tenant_id = $1 AND id = $2`, tenantID, id))
}

func (q *queries) GetInvoiceForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*Invoice, error) {
	return scanInvoice(q.db.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE tenant_id = $1 AND id = $2 FOR UPDATE`, tenantID, id))
}

func (q *queries) FindInvoiceByNumber(ctx context.Context, tenantID uuid.UUID, number string) (*Invoice, error) {
	return scanInvoice(q.db.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE tenant_id = $1 AND invoice_number = $2`, tenantID, number))
}

func (q *queries) ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]Invoice, int, error) {
	where := ` WHERE tenant_id = $1`
	args := []any{req.TenantID}

	if req.Search != "" {
		args = append(args, "%"+req.Search+"%")
		where += ` AND invoice_number ILIKE $` + strconv.Itoa(len(args))
	}
	if req.Status != "" {
		args = append(args, req.Status)
		where += ` AND status = $` + strconv.Itoa(len(args))
	}

	var total int
	if err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM invoices`+where, args...).Scan(&total); err != nil {
		return nil, 0, db.Translate(err)
	}

	page := shared.NewPagination(req.Page, req.PerPage, total)
	args = append(args, page.PerPage, page.Offset())
	query := `SELECT ` + invoiceColumns + ` FROM invoices` + where +
		` ORDER BY date DESC, invoice_number LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, db.Translate(err)
	}
	defer rows.Close()

	out, err := collectInvoices(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (q *queries) InsertInvoice(ctx context.Context, inv Invoice) (*Invoice, error) {
	now := time.Now().UTC()
	inv.ID = uuid.New()
	inv.SyncStatus = shared.SyncPending
	inv.CreatedAt = now
	if inv.UpdatedAt.IsZero() {
		inv.UpdatedAt = now
	}
	if inv.Status == "" {
		inv.Status = StatusDraft
	}
	if inv.Date.IsZero() {
		inv.Date = now
	}
	_, err := q.db.Exec(ctx,
		`INSERT INTO invoices (id, tenant_id, customer_id, invoice_number, date, due_date, currency, total, status, sync_status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9, $10, $11, $12)`,
		inv.ID, inv.TenantID, inv.CustomerID, inv.InvoiceNumber, inv.Date, inv.DueDate, inv.Currency,
		inv.Total.String(), inv.Status, inv.SyncStatus, inv.CreatedAt, inv.UpdatedAt)
	if err != nil {
		return nil, db.Translate(err)
	}
	return &inv, nil
}

func (q *queries) UpdateInvoice(ctx context.Context, tenantID, id uuid.UUID, updates map[string]any) error {
	cols := []string{"customer_id", "invoice_number", "date", "due_date", "currency"}
	return q.patch(ctx, "invoices", tenantID, id, cols, updates)
}

func (q *queries) SetInvoiceDerived(ctx context.Context, tenantID, id uuid.UUID, total decimal.Decimal, status InvoiceStatus) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE invoices SET total = $3::numeric, status = $4, sync_status = $5, updated_at = NOW()
		 WHERE tenant_id = $1 AND id = $2`,
		tenantID, id, total.String(), status, shared.SyncPending)
	if err != nil {
		return db.Translate(err)
	}
	if tag.RowsAffected() == 0 {
		return db.Translate(pgx.ErrNoRows)
	}
	return nil
}

func (q *queries) DeleteInvoice(ctx context.Context, tenantID, id uuid.UUID) error {
	return q.deleteRow(ctx, "invoices", tenantID, id)
}

const lineColumns = `id, tenant_id, invoice_id, item_id, description, quantity::text, unit_price::text, line_total::text, sync_status, created_at, updated_at`

func scanLine(row pgx.Row) (*InvoiceLine, error) {
	var (
		l               InvoiceLine
		qty, price, tot string
	)
	err := row.Scan(&l.ID, &l.TenantID, &l.InvoiceID, &l.ItemID, &l.Description, &qty, &price, &tot,
		&l.SyncStatus, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, db.Translate(err)
	}
	if l.Quantity, err = decimal.NewFromString(qty); err != nil {
		return nil, err
	}
	if l.UnitPrice, err = decimal.NewFromString(price); err != nil {
		return nil, err
	}
	if l.LineTotal, err = decimal.NewFromString(tot); err != nil {
		return nil, err
	}
	return &l, nil
}

func (q *queries) GetLine(ctx context.Context, tenantID, id uuid.UUID) (*InvoiceLine, error) {
	return scanLine(q.db.QueryRow(ctx,
		`SELECT `+lineColumns+` FROM invoice_lines WHERE tenant_id = $1 AND id = $2`, tenantID, id))
}

func (q *queries) FindLineByInvoiceItem(ctx context.Context, tenantID, invoiceID, itemID uuid.UUID) (*InvoiceLine, error) {
	return scanLine(q.db.QueryRow(ctx,
		`SELECT `+lineColumns+` FROM invoice_lines WHERE tenant_id = $1 AND invoice_id = $2 AND item_id = $3
		 ORDER BY created_at LIMIT 1`,
		tenantID, invoiceID, itemID))
}

func (q *queries) ListLines(ctx context.Context, tenantID, invoiceID uuid.UUID) ([]InvoiceLine, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+lineColumns+` FROM invoice_lines WHERE tenant_id = $1 AND invoice_id = $2 ORDER BY created_at`,
		tenantID, invoiceID)
	if err != nil {
		return nil, db.Translate(err)
	}
	defer rows.Close()
	return collectLines(rows)
}

func (q *queries) ListLinesByItem(ctx context.Context, tenantID, itemID uuid.UUID) ([]InvoiceLine, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+lineColumns+` FROM invoice_lines WHERE tenant_id = $1 AND item_id = $2 ORDER BY created_at`,
		tenantID, itemID)
	if err != nil {
		return nil, db.Translate(err)
	}
	defer rows.Close()
	return collectLines(rows)
}

func (q *queries) InsertLine(ctx context.Context, line InvoiceLine) (*InvoiceLine, error) {
	now := time.Now().UTC()
	line.ID = uuid.New()
	line.SyncStatus = shared.SyncPending
	line.CreatedAt = now
	if line.UpdatedAt.IsZero() {
		line.UpdatedAt = now
	}
	line.LineTotal = line.Quantity.Mul(line.UnitPrice)
	_, err := q.db.Exec(ctx,
		`INSERT INTO invoice_lines (id, tenant_id, invoice_id, item_id, description, quantity, unit_price, line_total, sync_status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8::numeric, $9, $10, $11)`,
		line.ID, line.TenantID, line.InvoiceID, line.ItemID, line.Description,
		line.Quantity.String(), line.UnitPrice.String(), line.LineTotal.String(),
		line.SyncStatus, line.CreatedAt, line.UpdatedAt)
	if err != nil {
		return nil, db.Translate(err)
	}
	return &line, nil
}

func (q *queries) UpdateLine(ctx context.Context, tenantID, id uuid.UUID, updates map[string]any) error {
	cols := []string{"description", "quantity", "unit_price", "line_total"}
	return q.patch(ctx, "invoice_lines", tenantID, id, cols, updates)
}

func (q *queries) DeleteLine(ctx context.Context, tenantID, id uuid.UUID) error {
	return q.deleteRow(ctx, "invoice_lines", tenantID, id)
}

const paymentColumns = `id, tenant_id, invoice_id, reference, amount::text, method, date, paid_at, sync_status, created_at, updated_at`

func scanPayment(row pgx.Row) (*Payment, error) {
	var (
		p      Payment
		amount string
	)
	err := row.Scan(&p.ID, &p.TenantID, &p.InvoiceID, &p.Reference, &amount, &p.Method, &p.Date, &p.PaidAt,
		&p.SyncStatus, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, db.Translate(err)
	}
	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, err
	}
	return &p, nil
}

func (q *queries) GetPayment(ctx context.Context, tenantID, id uuid.UUID) (*Payment, error) {
	return scanPayment(q.db.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE tenant_id = $1 AND id = $2`, tenantID, id))
}

func (q *queries) ListPayments(ctx context.Context, tenantID, invoiceID uuid.UUID) ([]Payment, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE tenant_id = $1 AND invoice_id = $2 ORDER BY date`,
		tenantID, invoiceID)
	if err != nil {
		return nil, db.Translate(err)
	}
	defer rows.Close()
	return collectPayments(rows)
}

func (q *queries) FindPaymentByReference(ctx context.Context, tenantID uuid.UUID, reference string) (*Payment, error) {
	return scanPayment(q.db.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE tenant_id = $1 AND reference = $2`, tenantID, reference))
}

func (q *queries) InsertPayment(ctx context.Context, p Payment) (*Payment, error) {
	now := time.Now().UTC()
	p.ID = uuid.New()
	p.SyncStatus = shared.SyncPending
	p.CreatedAt = now
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}
	if p.Date.IsZero() {
		p.Date = now
	}
	_, err := q.db.Exec(ctx,
		`INSERT INTO payments (id, tenant_id, invoice_id, reference, amount, method, date, paid_at, sync_status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.TenantID, p.InvoiceID, p.Reference, p.Amount.String(), p.Method, p.Date, p.PaidAt,
		p.SyncStatus, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return nil, db.Translate(err)
	}
	return &p, nil
}

func (q *queries) UpdatePayment(ctx context.Context, tenantID, id uuid.UUID, updates map[string]any) error {
	cols := []string{"reference", "amount", "method", "date", "paid_at"}
	return q.patch(ctx, "payments", tenantID, id, cols, updates)
}

func (q *queries) DeletePayment(ctx context.Context, tenantID, id uuid.UUID) error {
	return q.deleteRow(ctx, "payments", tenantID, id)
}

func (q *queries) GetItemForUpdate(ctx context.Context, tenantID, itemID uuid.UUID) (*ItemStock, error) {
	var price, qty string
	err := q.db.QueryRow(ctx,
		`SELECT unit_price::text, quantity::text FROM items WHERE tenant_id = $1 AND id = $2 FOR UPDATE`,
		tenantID, itemID).Scan(&price, &qty)
	if err != nil {
		return nil, db.Translate(err)
	}
	var stock ItemStock
	if stock.UnitPrice, err = decimal.NewFromString(price); err != nil {
		return nil, err
	}
	if stock.Quantity, err = decimal.NewFromString(qty); err != nil {
		return nil, err
	}
	return &stock, nil
}

func (q *queries) SetItemQuantity(ctx context.Context, tenantID, itemID uuid.UUID, qty decimal.Decimal) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE items SET quantity = $3::numeric, sync_status = $4, updated_at = NOW()
		 WHERE tenant_id = $1 AND id = $2`,
		tenantID, itemID, qty.String(), shared.SyncPending)
	if err != nil {
		return db.Translate(err)
	}
	if tag.RowsAffected() == 0 {
		return db.Translate(pgx.ErrNoRows)
	}
	return nil
}

func (q *queries) CustomerExists(ctx context.Context, tenantID, id uuid.UUID) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM customers WHERE tenant_id = $1 AND id = $2)`, tenantID, id).Scan(&exists)
	if err != nil {
		return false, db.Translate(err)
	}
	return exists, nil
}

func (q *queries) ListInvoiceIDsByCustomer(ctx context.Context, tenantID, customerID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := q.db.Query(ctx,
		`SELECT id FROM invoices WHERE tenant_id = $1 AND customer_id = $2`, tenantID, customerID)
	if err != nil {
		return nil, db.Translate(err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, db.Translate(err)
		}
		out = append(out, id)
	}
	return out, db.Translate(rows.Err())
}

func (q *queries) DeleteCustomer(ctx context.Context, tenantID, id uuid.UUID) error {
	return q.deleteRow(ctx, "customers", tenantID, id)
}

func (q *queries) DeleteItem(ctx context.Context, tenantID, id uuid.UUID) error {
	return q.deleteRow(ctx, "items", tenantID, id)
}

func (r *repository) ListUnsyncedInvoices(ctx context.Context, tenantID uuid.UUID, limit int) ([]Invoice, error) {
	rows, err := r.unsynced(ctx, "invoices", invoiceColumns, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectInvoices(rows)
}

func (r *repository) ListUnsyncedLines(ctx context.Context, tenantID uuid.UUID, limit int) ([]InvoiceLine, error) {
	rows, err := r.unsynced(ctx, "invoice_lines", lineColumns, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLines(rows)
}

func (r *repository) ListUnsyncedPayments(ctx context.Context, tenantID uuid.UUID, limit int) ([]Payment, error) {
	rows, err := r.unsynced(ctx, "payments", paymentColumns, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPayments(rows)
}

func (r *repository) MarkInvoicesSynced(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (int, error) {
	return r.markStatus(ctx, "invoices", tenantID, ids, shared.SyncSynced)
}

func (r *repository) MarkInvoicesSyncFailed(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (int, error) {
	return r.markStatus(ctx, "invoices", tenantID, ids, shared.SyncFailed)
}

func (r *repository) MarkLinesSynced(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (int, error) {
	return r.markStatus(ctx, "invoice_lines", tenantID, ids, shared.SyncSynced)
}

func (r *repository) MarkLinesSyncFailed(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (int, error) {
	return r.markStatus(ctx, "invoice_lines", tenantID, ids, shared.SyncFailed)
}

func (r *repository) MarkPaymentsSynced(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (int, error) {
	return r.markStatus(ctx, "payments", tenantID, ids, shared.SyncSynced)
}

func (r *repository) MarkPaymentsSyncFailed(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (int, error) {
	return r.markStatus(ctx, "payments", tenantID, ids, shared.SyncFailed)
}

func (r *repository) ListInvoicesUpdatedSince(ctx context.Context, tenantID *uuid.UUID, since time.Time) ([]Invoice, error) {
	rows, err := r.updatedSince(ctx, "invoices", invoiceColumns, tenantID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectInvoices(rows)
}

func (r *repository) ListLinesUpdatedSince(ctx context.Context, tenantID *uuid.UUID, since time.Time) ([]InvoiceLine, error) {
	rows, err := r.updatedSince(ctx, "invoice_lines", lineColumns, tenantID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLines(rows)
}

func (r *repository) ListPaymentsUpdatedSince(ctx context.Context, tenantID *uuid.UUID, since time.Time) ([]Payment, error) {
	rows, err := r.updatedSince(ctx, "payments", paymentColumns, tenantID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPayments(rows)
}

func (r *repository) unsynced(ctx context.Context, table, columns string, tenantID uuid.UUID, limit int) (pgx.Rows, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+columns+` FROM `+table+` WHERE tenant_id = $1 AND sync_status = $2 ORDER BY updated_at LIMIT $3`,
		tenantID, shared.SyncPending, limit)
	if err != nil {
		return nil, db.Translate(err)
	}
	return rows, nil
}

func (r *repository) markStatus(ctx context.Context, table string, tenantID uuid.UUID, ids []uuid.UUID, status shared.SyncStatus) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE `+table+` SET sync_status = $3 WHERE tenant_id = $1 AND id = ANY($2) AND sync_status = $4`,
		tenantID, ids, status, shared.SyncPending)
	if err != nil {
		return 0, db.Translate(err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *repository) updatedSince(ctx context.Context, table, columns string, tenantID *uuid.UUID, since time.Time) (pgx.Rows, error) {
	query := `SELECT ` + columns + ` FROM ` + table + ` WHERE updated_at > $1`
	args := []any{since}
	if tenantID != nil {
		args = append(args, *tenantID)
		query += ` AND tenant_id = $2`
	}
	query += ` ORDER BY updated_at`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, db.Translate(err)
	}
	return rows, nil
}

// patch builds a positional UPDATE from the given map, always resetting
// sync_status to PENDING. updated_at comes from the map when the caller is
// stamping a remote timestamp, NOW() otherwise.
func (q *queries) patch(ctx context.Context, table string, tenantID, id uuid.UUID, cols []string, updates map[string]any) error {
	query := `UPDATE ` + table + ` SET sync_status = '` + string(shared.SyncPending) + `'`
	var args []any

	if v, ok := updates["updated_at"]; ok {
		args = append(args, v)
		query += `, updated_at = $` + strconv.Itoa(len(args))
	} else {
		query += `, updated_at = NOW()`
	}
	for _, col := range cols {
		v, ok := updates[col]
		if !ok {
			continue
		}
		args = append(args, v)
		query += `, ` + col + ` = $` + strconv.Itoa(len(args))
		switch col {
		case "quantity", "unit_price", "line_total", "amount", "total":
			query += `::numeric`
		}
	}

	args = append(args, tenantID, id)
	query += ` WHERE tenant_id = $` + strconv.Itoa(len(args)-1) + ` AND id = $` + strconv.Itoa(len(args))

	tag, err := q.db.Exec(ctx, query, args...)
	if err != nil {
		return db.Translate(err)
	}
	if tag.RowsAffected() == 0 {
		return db.Translate(pgx.ErrNoRows)
	}
	return nil
}

func (q *queries) deleteRow(ctx context.Context, table string, tenantID, id uuid.UUID) error {
	tag, err := q.db.Exec(ctx,
		`DELETE FROM `+table+` WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return db.Translate(err)
	}
	if tag.RowsAffected() == 0 {
		return db.Translate(pgx.ErrNoRows)
	}
	return nil
}

func collectInvoices(rows pgx.Rows) ([]Invoice, error) {
	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, db.Translate(rows.Err())
}

func collectLines(rows pgx.Rows) ([]InvoiceLine, error) {
	var out []InvoiceLine
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, db.Translate(rows.Err())
}

func collectPayments(rows pgx.Rows) ([]Payment, error) {
	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, db.Translate(rows.Err())
}
