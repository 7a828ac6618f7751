package vendors

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

// Repository persists vendors in PostgreSQL. Every query is tenant-scoped.
type Repository interface {
	Get(ctx context.Context, tenantID, id uuid.UUID) (*Vendor, error)
	FindByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*Vendor, error)
	FindByPhone(ctx context.Context, tenantID uuid.UUID, phone string) (*Vendor, error)
	List(ctx context.Context, req ListVendorsRequest) ([]Vendor, int, error)
	Create(ctx context.Context, v Vendor) (*Vendor, error)
	Update(ctx context.Context, tenantID, id uuid.UUID, updates map[string]any) error
	Delete(ctx context.Context, tenantID, id uuid.UUID) error
	ListUnsynced(ctx context.Context, tenantID uuid.UUID, limit int) ([]Vendor, error)
	MarkSynced(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (int, error)
	MarkSyncFailed(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (int, error)
	ListUpdatedSince(ctx context.Context, tenantID *uuid.UUID, since time.Time) ([]Vendor, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the pgx-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const vendorColumns = `id, tenant_id, name, email, phone, address, tax_id, sync_status, created_at, updated_at`

func scanVendor(row pgx.Row) (*Vendor, error) {
	var v Vendor
	err := row.Scan(&v.ID, &v.TenantID, &v.Name, &v.Email, &v.Phone, &v.Address, &v.TaxID, &v.SyncStatus, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, db.Translate(err)
	}
	return &v, nil
}

func (r *repository) Get(ctx context.Context, tenantID, id uuid.UUID) (*Vendor, error) {
	return scanVendor(r.pool.QueryRow(ctx,
		`SELECT `+vendorColumns+` FROM vendors WHERE tenant_id = $1 AND id = $2`, tenantID, id))
}

func (r *repository) FindByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*Vendor, error) {
	return scanVendor(r.pool.QueryRow(ctx,
		`SELECT `+vendorColumns+` FROM vendors WHERE tenant_id = $1 AND lower(email) = lower($2)`, tenantID, email))
}

func (r *repository) FindByPhone(ctx context.Context, tenantID uuid.UUID, phone string) (*Vendor, error) {
	return scanVendor(r.pool.QueryRow(ctx,
		`SELECT `+vendorColumns+` FROM vendors WHERE tenant_id = $1 AND phone = $2`, tenantID, phone))
}

func (r *repository) List(ctx context.Context, req ListVendorsRequest) ([]Vendor, int, error) {
	where := ` WHERE tenant_id = $1`
	args := []any{req.TenantID}

	if req.Search != "" {
		args = append(args, "%"+req.Search+"%")
		pos := strconv.Itoa(len(args))
		where += ` AND (name ILIKE $` + pos + ` OR email ILIKE $` + pos + ` OR phone ILIKE $` + pos + `)`
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM vendors`+where, args...).Scan(&total); err != nil {
		return nil, 0, db.Translate(err)
	}

	page := shared.NewPagination(req.Page, req.PerPage, total)
	args = append(args, page.PerPage, page.Offset())
	query := `SELECT ` + vendorColumns + ` FROM vendors` + where +
		` ORDER BY name LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, db.Translate(err)
	}
	defer rows.Close()

	out, err := collectVendors(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *repository) Create(ctx context.Context, v Vendor) (*Vendor, error) {
	now := time.Now().UTC()
	v.ID = uuid.New()
	v.SyncStatus = shared.SyncPending
	v.CreatedAt = now
	if v.UpdatedAt.IsZero() {
		v.UpdatedAt = now
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO vendors (id, tenant_id, name, email, phone, address, tax_id, sync_status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		v.ID, v.TenantID, v.Name, v.Email, v.Phone, v.Address, v.TaxID, v.SyncStatus, v.CreatedAt, v.UpdatedAt)
	if err != nil {
		return nil, db.Translate(err)
	}
	return &v, nil
}

func (r *repository) Update(ctx context.Context, tenantID, id uuid.UUID, updates map[string]any) error {
	query := `UPDATE vendors SET sync_status = '` + string(shared.SyncPending) + `'`
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
	tag, err := r.pool.Exec(ctx, `DELETE FROM vendors WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return db.Translate(err)
	}
	if tag.RowsAffected() == 0 {
		return db.Translate(pgx.ErrNoRows)
	}
	return nil
}

func (r *repository) ListUnsynced(ctx context.Context, tenantID uuid.UUID, limit int) ([]Vendor, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+vendorColumns+` FROM vendors
		 WHERE tenant_id = $1 AND sync_status = $2 ORDER BY updated_at LIMIT $3`,
		tenantID, shared.SyncPending, limit)
	if err != nil {
		return nil, db.Translate(err)
	}
	defer rows.Close()
	return collectVendors(rows)
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
		`UPDATE vendors SET sync_status = $3 WHERE tenant_id = $1 AND id = ANY($2) AND sync_status = $4`,
		tenantID, ids, status, shared.SyncPending)
	if err != nil {
		return 0, db.Translate(err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *repository) ListUpdatedSince(ctx context.Context, tenantID *uuid.UUID, since time.Time) ([]Vendor, error) {
	query := `SELECT ` + vendorColumns + ` FROM vendors WHERE updated_at > $1`
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
	return collectVendors(rows)
}

func collectVendors(rows pgx.Rows) ([]Vendor, error) {
	var out []Vendor
	for rows.Next() {
		var v Vendor
		err := rows.Scan(&v.ID, &v.TenantID, &v.Name, &v.Email, &v.Phone, &v.Address, &v.TaxID, &v.SyncStatus, &v.CreatedAt, &v.UpdatedAt)
		if err != nil {
			return nil, db.Translate(err)
		}
		out = append(out, v)
	}
	return out, db.Translate(rows.Err())
}
