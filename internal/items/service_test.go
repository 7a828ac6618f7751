package items

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ledgerkite/ledgerkite/internal/shared"
)

type memoryRepo struct {
	rows  map[uuid.UUID]*Item
	lines map[uuid.UUID]int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rows: make(map[uuid.UUID]*Item), lines: make(map[uuid.UUID]int)}
}

func (r *memoryRepo) Get(ctx context.Context, tenantID, id uuid.UUID) (*Item, error) {
	i, ok := r.rows[id]
	if !ok || i.TenantID != tenantID {
		return nil, shared.ErrNotFound
	}
	copied := *i
	return &copied, nil
}

func (r *memoryRepo) FindBySKU(ctx context.Context, tenantID uuid.UUID, sku string) (*Item, error) {
	for _, i := range r.rows {
		if i.TenantID == tenantID && i.SKU != nil && *i.SKU == sku {
			copied := *i
			return &copied, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memoryRepo) List(ctx context.Context, req ListItemsRequest) ([]Item, int, error) {
	var out []Item
	for _, i := range r.rows {
		if i.TenantID == req.TenantID {
			out = append(out, *i)
		}
	}
	return out, len(out), nil
}

func (r *memoryRepo) Create(ctx context.Context, i Item) (*Item, error) {
	i.ID = uuid.New()
	i.SyncStatus = shared.SyncPending
	now := time.Now().UTC()
	i.CreatedAt = now
	if i.UpdatedAt.IsZero() {
		i.UpdatedAt = now
	}
	r.rows[i.ID] = &i
	copied := i
	return &copied, nil
}

func (r *memoryRepo) Update(ctx context.Context, tenantID, id uuid.UUID, updates map[string]any) error {
	i, ok := r.rows[id]
	if !ok || i.TenantID != tenantID {
		return shared.ErrNotFound
	}
	if v, ok := updates["name"]; ok {
		i.Name = v.(string)
	}
	if v, ok := updates["sku"]; ok {
		val := v.(string)
		i.SKU = &val
	}
	if v, ok := updates["unit_price"]; ok {
		price, err := decimal.NewFromString(v.(string))
		if err != nil {
			return err
		}
		i.UnitPrice = price
	}
	if v, ok := updates["updated_at"]; ok {
		i.UpdatedAt = v.(time.Time)
	} else {
		i.UpdatedAt = time.Now().UTC()
	}
	i.SyncStatus = shared.SyncPending
	return nil
}

func (r *memoryRepo) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	i, ok := r.rows[id]
	if !ok || i.TenantID != tenantID {
		return shared.ErrNotFound
	}
	delete(r.rows, id)
	return nil
}

func (r *memoryRepo) AdjustQuantity(ctx context.Context, tenantID, id uuid.UUID, delta decimal.Decimal, allowNegative bool) (*Item, error) {
	i, ok := r.rows[id]
	if !ok || i.TenantID != tenantID {
		return nil, shared.ErrNotFound
	}
	next := i.Quantity.Add(delta)
	if next.IsNegative() && !allowNegative {
		return nil, shared.ErrInsufficientStock
	}
	i.Quantity = next
	i.SyncStatus = shared.SyncPending
	i.UpdatedAt = time.Now().UTC()
	copied := *i
	return &copied, nil
}

func (r *memoryRepo) CountLines(ctx context.Context, tenantID, itemID uuid.UUID) (int, error) {
	return r.lines[itemID], nil
}

func (r *memoryRepo) ListUnsynced(ctx context.Context, tenantID uuid.UUID, limit int) ([]Item, error) {
	var out []Item
	for _, i := range r.rows {
		if i.TenantID == tenantID && i.SyncStatus == shared.SyncPending {
			out = append(out, *i)
		}
	}
	return out, nil
}

func (r *memoryRepo) MarkSynced(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (int, error) {
	count := 0
	for _, id := range ids {
		if i, ok := r.rows[id]; ok && i.TenantID == tenantID && i.SyncStatus == shared.SyncPending {
			i.SyncStatus = shared.SyncSynced
			count++
		}
	}
	return count, nil
}

func (r *memoryRepo) MarkSyncFailed(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (int, error) {
	count := 0
	for _, id := range ids {
		if i, ok := r.rows[id]; ok && i.TenantID == tenantID && i.SyncStatus == shared.SyncPending {
			i.SyncStatus = shared.SyncFailed
			count++
		}
	}
	return count, nil
}

func (r *memoryRepo) ListUpdatedSince(ctx context.Context, tenantID *uuid.UUID, since time.Time) ([]Item, error) {
	var out []Item
	for _, i := range r.rows {
		if tenantID != nil && i.TenantID != *tenantID {
			continue
		}
		if i.UpdatedAt.After(since) {
			out = append(out, *i)
		}
	}
	return out, nil
}

func ptr(s string) *string { return &s }

func userActor(tenantID uuid.UUID) *shared.Actor {
	return &shared.Actor{ID: uuid.New(), Role: shared.RoleUser, TenantID: tenantID}
}

func adminActor(tenantID uuid.UUID) *shared.Actor {
	return &shared.Actor{ID: uuid.New(), Role: shared.RoleAdmin, TenantID: tenantID}
}

func TestCreateIdempotentOnSKU(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()
	tenantID := uuid.New()
	actor := userActor(tenantID)

	first, err := svc.Create(ctx, actor, CreateItemRequest{TenantID: tenantID, Name: "Widget", SKU: ptr("W-1"), UnitPrice: decimal.NewFromInt(10)})
	require.NoError(t, err)

	second, err := svc.Create(ctx, actor, CreateItemRequest{TenantID: tenantID, Name: "Widget again", SKU: ptr("W-1"), UnitPrice: decimal.NewFromInt(99)})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.True(t, second.UnitPrice.Equal(decimal.NewFromInt(10)))
	require.Len(t, repo.rows, 1)
}

func TestCreateRejectsNegativePrice(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil)
	tenantID := uuid.New()
	_, err := svc.Create(context.Background(), userActor(tenantID), CreateItemRequest{TenantID: tenantID, Name: "X", UnitPrice: decimal.NewFromInt(-1)})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestUpdateSKUChangeRequiresAdmin(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()
	tenantID := uuid.New()

	i, err := svc.Create(ctx, userActor(tenantID), CreateItemRequest{TenantID: tenantID, Name: "Widget", SKU: ptr("W-1")})
	require.NoError(t, err)

	_, err = svc.Update(ctx, userActor(tenantID), tenantID, i.ID, UpdateItemRequest{SKU: ptr("W-2")})
	require.ErrorIs(t, err, shared.ErrForbidden)

	updated, err := svc.Update(ctx, adminActor(tenantID), tenantID, i.ID, UpdateItemRequest{SKU: ptr("W-2")})
	require.NoError(t, err)
	require.Equal(t, "W-2", *updated.SKU)
}

func TestUpdateSKUConflict(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()
	tenantID := uuid.New()
	actor := adminActor(tenantID)

	a, err := svc.Create(ctx, actor, CreateItemRequest{TenantID: tenantID, Name: "A", SKU: ptr("A-1")})
	require.NoError(t, err)
	_, err = svc.Create(ctx, actor, CreateItemRequest{TenantID: tenantID, Name: "B", SKU: ptr("B-1")})
	require.NoError(t, err)

	_, err = svc.Update(ctx, actor, tenantID, a.ID, UpdateItemRequest{SKU: ptr("B-1")})
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestAdjustQuantityGuardsNegative(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()
	tenantID := uuid.New()

	i, err := svc.Create(ctx, userActor(tenantID), CreateItemRequest{TenantID: tenantID, Name: "Widget", Quantity: decimal.NewFromInt(3)})
	require.NoError(t, err)

	_, err = svc.AdjustQuantity(ctx, userActor(tenantID), tenantID, i.ID, decimal.NewFromInt(-5))
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	// Admin may drive stock negative (backorder).
	updated, err := svc.AdjustQuantity(ctx, adminActor(tenantID), tenantID, i.ID, decimal.NewFromInt(-5))
	require.NoError(t, err)
	require.True(t, updated.Quantity.Equal(decimal.NewFromInt(-2)))
}

func TestDeleteBlockedByLines(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()
	tenantID := uuid.New()
	actor := adminActor(tenantID)

	i, err := svc.Create(ctx, actor, CreateItemRequest{TenantID: tenantID, Name: "Widget", SKU: ptr("W-1")})
	require.NoError(t, err)
	repo.lines[i.ID] = 3

	_, err = svc.Delete(ctx, actor, tenantID, i.ID, false)
	require.ErrorIs(t, err, shared.ErrDependencyExists)
}
