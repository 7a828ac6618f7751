package customers

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerkite/ledgerkite/internal/platform/db"
	"github.com/ledgerkite/ledgerkite/internal/shared"
)

// Repository persists customers in PostgreSQL. Every query is tenant-scoped.
type Repository interface {
	Get(ctx context.Context, tenantID, id uuid.UUID) (*Customer, error)
	FindByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*Customer, error)
	FindByPhone(ctx context.Context, tenantID uuid.UUID, phone string) (*Customer, error)
	List(ctx context.Context, req ListCustomersRequest) ([]Customer, int, error)
	Create(ctx context.Context, c Customer) (*Customer, error)
	Update(ctx context.Context, tenantID, id uuid.UUID, updates map[string]any) error
	Delete(ctx context.Context, tenantID, id uuid.UUID) error
	CountInvoices(ctx context.Context, tenantID, customerID uuid.UUID) (int, error)
	ListUnsynced(ctx context.Context, tenantID uuid.UUID, limit int) ([]Customer, error)
	MarkSynced(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (int, error)
	MarkSyncFailed(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (int, error)
	ListUpdatedSince(ctx context.Context, tenantID *uuid.UUID, since time.Time) ([]Customer, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the pgx-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const customerColumns = `id, tenant_id, name, email, phone, address, tax_id, sync_status, created_at, updated_at`

func scanCustomer(row pgx.Row) (*Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.TenantID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.TaxID, &c.SyncStatus, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, db.Translate(err)
	}
	return &c, nil
}

func (r *repository) Get(ctx context.Context, tenantID, id uuid.UUID) (*Customer, error) {
	return scanCustomer(r.pool.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE tenant_id = $1 AND id = $2`, tenantID, id))
}

func (r *repository) FindByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*Customer, error) {
	return scanCustomer(r.pool.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE tenant_id = $1 AND lower(email) = lower($2)`, tenantID, email))
}

func (r *repository) FindByPhone(ctx context.Context, tenantID uuid.UUID, phone string) (*Customer, error) {
	return scanCustomer(r.pool.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE tenant_id = $1 AND phone = $2`, tenantID, phone))
}

func (r *repository) List(ctx context.Context, req ListCustomersRequest) ([]Customer, int, error) {
	where := ` WHERE tenant_id = $1`
	args := []any{req.TenantID}

	if req.Search != "" {
		args = append(args, "%"+req.Search+"%")
		pos := strconv.Itoa(len(args))
		where += ` AND (name ILIKE $` + pos + ` OR email ILIKE $` + pos + ` OR phone ILIKE $` + pos + `)`
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM customers`+where, args...).Scan(&total); err != nil {
		return nil, 0, db.Translate(err)
	}

	page := shared.NewPagination(req.Page, req.PerPage, total)
	args = append(args, page.PerPage, page.Offset())
	query := `SELECT ` + customerColumns + ` FROM customers` + where +
		` ORDER BY name LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, db.Translate(err)
	}
	defer rows.Close()

	out, err := collectCustomers(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *repository) Create(ctx context.Context, c Customer) (*Customer, error) {
	now := time.Now().UTC()
	c.ID = uuid.New()
	c.SyncStatus = shared.SyncPending
	c.CreatedAt = now
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO customers (id, tenant_id, name, email, phone, address, tax_id, sync_status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.TenantID, c.Name, c.Email, c.Phone, c.Address, c.TaxID, c.SyncStatus, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return nil, db.Translate(err)
	}
	return &c, nil
}

// Update applies the given column values. Any field mutation resets
// sync_status to PENDING; updated_at follows the map value when the caller
// supplies one (reconciliation applies the remote timestamp), NOW() otherwise.
func (r *repository) Update(ctx context.Context, tenantID, id uuid.UUID, updates map[string]any) error {
	query := `UPDATE customers SET sync_status = '` + string(shared.SyncPending) + `'`
	var args []any

	if v, ok := updates["updated_at"]; ok {
		args = append(args, v)
		query += `, updated_at = $` + strconv.Itoa(len(args))
	} else {
		query += `, updated_at = NOW()`
	}
	for _, col := range []string{"name", "email", "phone", "address", "tax_id"} {
		if v, ok := updates[col]; ok {
			args = append(args, v)
			query += `, ` + col + ` = $` + strconv.Itoa(len(args))
		}
	}

	args = append(args, tenantID, id)
	query += ` WHERE tenant_id = $` + strconv.Itoa(len(args)-1) + ` AND id = $` + strconv.Itoa(len(args))

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return db.Translate(err)
	}
	if tag.RowsAffected() == 0 {
		return db.Translate(pgx.ErrNoRows)
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM customers WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return db.Translate(err)
	}
	if tag.RowsAffected() == 0 {
		return db.Translate(pgx.ErrNoRows)
	}
	return nil
}

func (r *repository) CountInvoices(ctx context.Context, tenantID, customerID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM invoices WHERE tenant_id = $1 AND customer_id = $2`, tenantID, customerID).Scan(&count)
	if err != nil {
		return 0, db.Translate(err)
	}
	return count, nil
}

func (r *repository) ListUnsynced(ctx context.Context, tenantID uuid.UUID, limit int) ([]Customer, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+customerColumns+` FROM customers
		 WHERE tenant_id = $1 AND sync_status = $2 ORDER BY updated_at LIMIT $3`,
		tenantID, shared.SyncPending, limit)
	if err != nil {
		return nil, db.Translate(err)
	}
	defer rows.Close()
	return collectCustomers(rows)
}

func (r *repository) MarkSynced(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (int, error) {
	return r.markStatus(ctx, tenantID, ids, shared.SyncSynced)
}

func (r *repository) MarkSyncFailed(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (int, error) {
	return r.markStatus(ctx, tenantID, ids, shared.SyncFailed)
}

func (r *repository) markStatus(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID, status shared.SyncStatus) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE customers SET sync_status = $3 WHERE tenant_id = $1 AND id = ANY($2) AND sync_status = $4`,
		tenantID, ids, status, shared.SyncPending)
	if err != nil {
		return 0, db.Translate(err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *repository) ListUpdatedSince(ctx context.Context, tenantID *uuid.UUID, since time.Time) ([]Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE updated_at > $1`
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
	defer rows.Close()
	return collectCustomers(rows)
}

func collectCustomers(rows pgx.Rows) ([]Customer, error) {
	var out []Customer
	for rows.Next() {
		var c Customer
		err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.TaxID, &c.SyncStatus, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return nil, db.Translate(err)
		}
		out = append(out, c)
	}
	return out, db.Translate(rows.Err())
}
