package items

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ledgerkite/ledgerkite/internal/platform/db"
	"github.com/ledgerkite/ledgerkite/internal/shared"
)

// Repository persists items in PostgreSQL. Monetary and quantity columns are
// NUMERIC, moved across the wire as text so decimals stay exact.
type Repository interface {
	Get(ctx context.Context, tenantID, id uuid.UUID) (*Item, error)
	FindBySKU(ctx context.Context, tenantID uuid.UUID, sku string) (*Item, error)
	List(ctx context.Context, req ListItemsRequest) ([]Item, int, error)
	Create(ctx context.Context, i Item) (*Item, error)
	Update(ctx context.Context, tenantID, id uuid.UUID, updates map[string]any) error
	Delete(ctx context.Context, tenantID, id uuid.UUID) error
	AdjustQuantity(ctx context.Context, tenantID, id uuid.UUID, delta decimal.Decimal, allowNegative bool) (*Item, error)
	CountLines(ctx context.Context, tenantID, itemID uuid.UUID) (int, error)
	ListUnsynced(ctx context.Context, tenantID uuid.UUID, limit int) ([]Item, error)
	MarkSynced(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (int, error)
	MarkSyncFailed(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (int, error)
	ListUpdatedSince(ctx context.Context, tenantID *uuid.UUID, since time.Time) ([]Item, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the pgx-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const itemColumns = `id, tenant_id, name, sku, unit_price::text, quantity::text, sync_status, created_at, updated_at`

func scanItem(row pgx.Row) (*Item, error) {
	var (
		i        Item
		price    string
		quantity string
	)
	err := row.Scan(&i.ID, &i.TenantID, &i.Name, &i.SKU, &price, &quantity, &i.SyncStatus, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		return nil, db.Translate(err)
	}
	if i.UnitPrice, err = decimal.NewFromString(price); err != nil {
		return nil, err
	}
	if i.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return nil, err
	}
	return &i, nil
}

func (r *repository) Get(ctx context.Context, tenantID, id uuid.UUID) (*Item, error) {
	return scanItem(r.pool.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM items WHERE tenant_id = $1 AND id = $2`, tenantID, id))
}

func (r *repository) FindBySKU(ctx context.Context, tenantID uuid.UUID, sku string) (*Item, error) {
	return scanItem(r.pool.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM items WHERE tenant_id = $1 AND sku = $2`, tenantID, sku))
}

func (r *repository) List(ctx context.Context, req ListItemsRequest) ([]Item, int, error) {
	where := ` WHERE tenant_id = $1`
	args := []any{req.TenantID}

	if req.Search != "" {
		args = append(args, "%"+req.Search+"%")
		pos := strconv.Itoa(len(args))
		where += ` AND (name ILIKE $` + pos + ` OR sku ILIKE $` + pos + `)`
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM items`+where, args...).Scan(&total); err != nil {
		return nil, 0, db.Translate(err)
	}

	page := shared.NewPagination(req.Page, req.PerPage, total)
	args = append(args, page.PerPage, page.Offset())
	query := `SELECT ` + itemColumns + ` FROM items` + where +
		` ORDER BY name LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, db.Translate(err)
	}
	defer rows.Close()

	out, err := collectItems(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *repository) Create(ctx context.Context, i Item) (*Item, error) {
	now := time.Now().UTC()
	i.ID = uuid.New()
	i.SyncStatus = shared.SyncPending
	i.CreatedAt = now
	if i.UpdatedAt.IsZero() {
		i.UpdatedAt = now
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO items (id, tenant_id, name, sku, unit_price, quantity, sync_status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7, $8, $9)`,
		i.ID, i.TenantID, i.Name, i.SKU, i.UnitPrice.String(), i.Quantity.String(), i.SyncStatus, i.CreatedAt, i.UpdatedAt)
	if err != nil {
		return nil, db.Translate(err)
	}
	return &i, nil
}

func (r *repository) Update(ctx context.Context, tenantID, id uuid.UUID, updates map[string]any) error {
	query := `UPDATE items SET sync_status = '` + string(shared.SyncPending) + `'`
	var args []any

	if v, ok := updates["updated_at"]; ok {
		args = append(args, v)
		query += `, updated_at = $` + strconv.Itoa(len(args))
	} else {
		query += `, updated_at = NOW()`
	}
	if v, ok := updates["name"]; ok {
		args = append(args, v)
		query += `, name = $` + strconv.Itoa(len(args))
	}
	if v, ok := updates["sku"]; ok {
		args = append(args, v)
		query += `, sku = $` + strconv.Itoa(len(args))
	}
	if v, ok := updates["unit_price"]; ok {
		args = append(args, v)
		query += `, unit_price = $` + strconv.Itoa(len(args)) + `::numeric`
	}
	if v, ok := updates["quantity"]; ok {
		args = append(args, v)
		query += `, quantity = $` + strconv.Itoa(len(args)) + `::numeric`
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
	tag, err := r.pool.Exec(ctx, `DELETE FROM items WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return db.Translate(err)
	}
	if tag.RowsAffected() == 0 {
		return db.Translate(pgx.ErrNoRows)
	}
	return nil
}

// AdjustQuantity applies a stock delta inside its own transaction, locking
// the row so concurrent adjustments serialise on the item.
func (r *repository) AdjustQuantity(ctx context.Context, tenantID, id uuid.UUID, delta decimal.Decimal, allowNegative bool) (*Item, error) {
	var updated *Item
	err := db.WithTx(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		var current string
		err := tx.QueryRow(ctx,
			`SELECT quantity::text FROM items WHERE tenant_id = $1 AND id = $2 FOR UPDATE`,
			tenantID, id).Scan(&current)
		if err != nil {
			return err
		}
		qty, err := decimal.NewFromString(current)
		if err != nil {
			return err
		}
		next := qty.Add(delta)
		if next.IsNegative() && !allowNegative {
			return shared.ErrInsufficientStock
		}
		_, err = tx.Exec(ctx,
			`UPDATE items SET quantity = $3::numeric, sync_status = $4, updated_at = NOW()
			 WHERE tenant_id = $1 AND id = $2`,
			tenantID, id, next.String(), shared.SyncPending)
		return err
	})
	if err != nil {
		return nil, db.Translate(err)
	}
	updated, err = r.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *repository) CountLines(ctx context.Context, tenantID, itemID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM invoice_lines WHERE tenant_id = $1 AND item_id = $2`, tenantID, itemID).Scan(&count)
	if err != nil {
		return 0, db.Translate(err)
	}
	return count, nil
}

func (r *repository) ListUnsynced(ctx context.Context, tenantID uuid.UUID, limit int) ([]Item, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+itemColumns+` FROM items
		 WHERE tenant_id = $1 AND sync_status = $2 ORDER BY updated_at LIMIT $3`,
		tenantID, shared.SyncPending, limit)
	if err != nil {
		return nil, db.Translate(err)
	}
	defer rows.Close()
	return collectItems(rows)
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
		`UPDATE items SET sync_status = $3 WHERE tenant_id = $1 AND id = ANY($2) AND sync_status = $4`,
		tenantID, ids, status, shared.SyncPending)
	if err != nil {
		return 0, db.Translate(err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *repository) ListUpdatedSince(ctx context.Context, tenantID *uuid.UUID, since time.Time) ([]Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE updated_at > $1`
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
	return collectItems(rows)
}

func collectItems(rows pgx.Rows) ([]Item, error) {
	var out []Item
	for rows.Next() {
		var (
			i        Item
			price    string
			quantity string
		)
		err := rows.Scan(&i.ID, &i.TenantID, &i.Name, &i.SKU, &price, &quantity, &i.SyncStatus, &i.CreatedAt, &i.UpdatedAt)
		if err != nil {
			return nil, db.Translate(err)
		}
		if i.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
		if i.Quantity, err = decimal.NewFromString(quantity); err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, db.Translate(rows.Err())
}
