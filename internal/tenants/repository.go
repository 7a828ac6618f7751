package tenants

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerkite/ledgerkite/internal/platform/db"
)

// Repository persists tenants in PostgreSQL.
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (*Tenant, error)
	GetBySlug(ctx context.Context, slug string) (*Tenant, error)
	List(ctx context.Context, search string, limit, offset int) ([]Tenant, int, error)
	Create(ctx context.Context, t Tenant) (*Tenant, error)
	Rename(ctx context.Context, id uuid.UUID, name string) error
	HasChildren(ctx context.Context, id uuid.UUID) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteCascade(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the pgx-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const tenantColumns = `id, name, slug, created_at, updated_at`

func scanTenant(row pgx.Row) (*Tenant, error) {
	var t Tenant
	if err := row.Scan(&t.ID, &t.Name, &t.Slug, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, db.Translate(err)
	}
	return &t, nil
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	return scanTenant(r.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id))
}

func (r *repository) GetBySlug(ctx context.Context, slug string) (*Tenant, error) {
	return scanTenant(r.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE slug = $1`, slug))
}

func (r *repository) List(ctx context.Context, search string, limit, offset int) ([]Tenant, int, error) {
	where := ``
	args := []any{}
	if search != "" {
		where = ` WHERE (name ILIKE $1 OR slug ILIKE $1)`
		args = append(args, "%"+search+"%")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tenants`+where, args...).Scan(&total); err != nil {
		return nil, 0, db.Translate(err)
	}

	query := `SELECT ` + tenantColumns + ` FROM tenants` + where + ` ORDER BY slug`
	if limit > 0 {
		args = append(args, limit, offset)
		query += ` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, db.Translate(err)
	}
	defer rows.Close()

	var out []Tenant
	for rows.Next() {
		var t Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.Slug, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, 0, db.Translate(err)
		}
		out = append(out, t)
	}
	return out, total, db.Translate(rows.Err())
}

func (r *repository) Create(ctx context.Context, t Tenant) (*Tenant, error) {
	now := time.Now().UTC()
	t.ID = uuid.New()
	t.CreatedAt = now
	t.UpdatedAt = now
	_, err := r.pool.Exec(ctx,
		`INSERT INTO tenants (id, name, slug, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		t.ID, t.Name, t.Slug, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return nil, db.Translate(err)
	}
	return &t, nil
}

func (r *repository) Rename(ctx context.Context, id uuid.UUID, name string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE tenants SET name = $2, updated_at = NOW() WHERE id = $1`, id, name)
	if err != nil {
		return db.Translate(err)
	}
	if tag.RowsAffected() == 0 {
		return db.Translate(pgx.ErrNoRows)
	}
	return nil
}

func (r *repository) HasChildren(ctx context.Context, id uuid.UUID) (bool, error) {
	const query = `SELECT EXISTS (
		SELECT 1 FROM customers WHERE tenant_id = $1
		UNION ALL SELECT 1 FROM vendors WHERE tenant_id = $1
		UNION ALL SELECT 1 FROM items WHERE tenant_id = $1
		UNION ALL SELECT 1 FROM invoices WHERE tenant_id = $1
	)`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return false, db.Translate(err)
	}
	return exists, nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tenants WHERE id = $1`, id)
	if err != nil {
		return db.Translate(err)
	}
	if tag.RowsAffected() == 0 {
		return db.Translate(pgx.ErrNoRows)
	}
	return nil
}

// DeleteCascade removes the tenant and all six child kinds in one
// transaction; a failure at any step rolls back the whole delete.
func (r *repository) DeleteCascade(ctx context.Context, id uuid.UUID) error {
	err := db.WithTx(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		statements := []string{
			`DELETE FROM payments WHERE tenant_id = $1`,
			`DELETE FROM invoice_lines WHERE tenant_id = $1`,
			`DELETE FROM invoices WHERE tenant_id = $1`,
			`DELETE FROM items WHERE tenant_id = $1`,
			`DELETE FROM customers WHERE tenant_id = $1`,
			`DELETE FROM vendors WHERE tenant_id = $1`,
		}
		for _, stmt := range statements {
			if _, err := tx.Exec(ctx, stmt, id); err != nil {
				return err
			}
		}
		tag, err := tx.Exec(ctx, `DELETE FROM tenants WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		return nil
	})
	return db.Translate(err)
}
