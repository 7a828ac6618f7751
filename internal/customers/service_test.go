package customers

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ledgerkite/ledgerkite/internal/shared"
)

type memoryRepo struct {
	rows     map[uuid.UUID]*Customer
	invoices map[uuid.UUID]int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rows: make(map[uuid.UUID]*Customer), invoices: make(map[uuid.UUID]int)}
}

func (r *memoryRepo) Get(ctx context.Context, tenantID, id uuid.UUID) (*Customer, error) {
	c, ok := r.rows[id]
	if !ok || c.TenantID != tenantID {
		return nil, shared.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (r *memoryRepo) FindByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*Customer, error) {
	for _, c := range r.rows {
		if c.TenantID == tenantID && c.Email != nil && strings.EqualFold(*c.Email, email) {
			copied := *c
			return &copied, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memoryRepo) FindByPhone(ctx context.Context, tenantID uuid.UUID, phone string) (*Customer, error) {
	for _, c := range r.rows {
		if c.TenantID == tenantID && c.Phone != nil && *c.Phone == phone {
			copied := *c
			return &copied, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memoryRepo) List(ctx context.Context, req ListCustomersRequest) ([]Customer, int, error) {
	var out []Customer
	for _, c := range r.rows {
		if c.TenantID == req.TenantID {
			out = append(out, *c)
		}
	}
	return out, len(out), nil
}

func (r *memoryRepo) Create(ctx context.Context, c Customer) (*Customer, error) {
	c.ID = uuid.New()
	c.SyncStatus = shared.SyncPending
	now := time.Now().UTC()
	c.CreatedAt = now
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}
	r.rows[c.ID] = &c
	copied := c
	return &copied, nil
}

func (r *memoryRepo) Update(ctx context.Context, tenantID, id uuid.UUID, updates map[string]any) error {
	c, ok := r.rows[id]
	if !ok || c.TenantID != tenantID {
		return shared.ErrNotFound
	}
	if v, ok := updates["name"]; ok {
		c.Name = v.(string)
	}
	if v, ok := updates["email"]; ok {
		val := v.(string)
		c.Email = &val
	}
	if v, ok := updates["phone"]; ok {
		val := v.(string)
		c.Phone = &val
	}
	if v, ok := updates["address"]; ok {
		val := v.(string)
		c.Address = &val
	}
	if v, ok := updates["tax_id"]; ok {
		val := v.(string)
		c.TaxID = &val
	}
	if v, ok := updates["updated_at"]; ok {
		c.UpdatedAt = v.(time.Time)
	} else {
		c.UpdatedAt = time.Now().UTC()
	}
	c.SyncStatus = shared.SyncPending
	return nil
}

func (r *memoryRepo) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	c, ok := r.rows[id]
	if !ok || c.TenantID != tenantID {
		return shared.ErrNotFound
	}
	delete(r.rows, id)
	return nil
}

func (r *memoryRepo) CountInvoices(ctx context.Context, tenantID, customerID uuid.UUID) (int, error) {
	return r.invoices[customerID], nil
}

func (r *memoryRepo) ListUnsynced(ctx context.Context, tenantID uuid.UUID, limit int) ([]Customer, error) {
	var out []Customer
	for _, c := range r.rows {
		if c.TenantID == tenantID && c.SyncStatus == shared.SyncPending {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *memoryRepo) MarkSynced(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (int, error) {
	count := 0
	for _, id := range ids {
		if c, ok := r.rows[id]; ok && c.TenantID == tenantID && c.SyncStatus == shared.SyncPending {
			c.SyncStatus = shared.SyncSynced
			count++
		}
	}
	return count, nil
}

func (r *memoryRepo) MarkSyncFailed(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (int, error) {
	count := 0
	for _, id := range ids {
		if c, ok := r.rows[id]; ok && c.TenantID == tenantID && c.SyncStatus == shared.SyncPending {
			c.SyncStatus = shared.SyncFailed
			count++
		}
	}
	return count, nil
}

func (r *memoryRepo) ListUpdatedSince(ctx context.Context, tenantID *uuid.UUID, since time.Time) ([]Customer, error) {
	var out []Customer
	for _, c := range r.rows {
		if tenantID != nil && c.TenantID != *tenantID {
			continue
		}
		if c.UpdatedAt.After(since) {
			out = append(out, *c)
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

func TestCreateIdempotentOnEmail(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()
	tenantID := uuid.New()
	actor := userActor(tenantID)

	first, err := svc.Create(ctx, actor, CreateCustomerRequest{TenantID: tenantID, Name: "Alice", Email: ptr("a@b.com")})
	require.NoError(t, err)

	second, err := svc.Create(ctx, actor, CreateCustomerRequest{TenantID: tenantID, Name: "Alice Again", Email: ptr("a@b.com")})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Len(t, repo.rows, 1)
}

func TestCreateDedupeByPhone(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()
	tenantID := uuid.New()
	actor := userActor(tenantID)

	first, err := svc.Create(ctx, actor, CreateCustomerRequest{TenantID: tenantID, Name: "Bob", Phone: ptr("+62-812")})
	require.NoError(t, err)

	second, err := svc.Create(ctx, actor, CreateCustomerRequest{TenantID: tenantID, Name: "Robert", Phone: ptr("+62-812")})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
}

func TestCreateCrossTenantRejected(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil)
	actor := userActor(uuid.New())
	_, err := svc.Create(context.Background(), actor, CreateCustomerRequest{TenantID: uuid.New(), Name: "X"})
	require.ErrorIs(t, err, shared.ErrTenantMismatch)
}

func TestUpdateTaxIDRequiresAdmin(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()
	tenantID := uuid.New()

	c, err := svc.Create(ctx, userActor(tenantID), CreateCustomerRequest{TenantID: tenantID, Name: "Alice", Email: ptr("a@b.com")})
	require.NoError(t, err)

	_, err = svc.Update(ctx, userActor(tenantID), tenantID, c.ID, UpdateCustomerRequest{TaxID: ptr("TAX-1")})
	require.ErrorIs(t, err, shared.ErrForbidden)

	updated, err := svc.Update(ctx, adminActor(tenantID), tenantID, c.ID, UpdateCustomerRequest{TaxID: ptr("TAX-1")})
	require.NoError(t, err)
	require.Equal(t, "TAX-1", *updated.TaxID)
}

func TestUpdateEmailUniquenessExcludesSelf(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()
	tenantID := uuid.New()
	actor := userActor(tenantID)

	a, err := svc.Create(ctx, actor, CreateCustomerRequest{TenantID: tenantID, Name: "A", Email: ptr("a@b.com")})
	require.NoError(t, err)
	_, err = svc.Create(ctx, actor, CreateCustomerRequest{TenantID: tenantID, Name: "B", Email: ptr("b@b.com")})
	require.NoError(t, err)

	// Re-submitting its own email is not a conflict.
	_, err = svc.Update(ctx, actor, tenantID, a.ID, UpdateCustomerRequest{Email: ptr("a@b.com"), Name: ptr("A2")})
	require.NoError(t, err)

	_, err = svc.Update(ctx, actor, tenantID, a.ID, UpdateCustomerRequest{Email: ptr("b@b.com")})
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestDeleteBlockedByInvoices(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()
	tenantID := uuid.New()
	actor := adminActor(tenantID)

	c, err := svc.Create(ctx, actor, CreateCustomerRequest{TenantID: tenantID, Name: "Alice", Email: ptr("a@b.com")})
	require.NoError(t, err)
	repo.invoices[c.ID] = 2

	_, err = svc.Delete(ctx, actor, tenantID, c.ID, false)
	require.ErrorIs(t, err, shared.ErrDependencyExists)
}

func TestMarkSyncedCountsPendingOnly(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()
	tenantID := uuid.New()
	actor := userActor(tenantID)

	c, err := svc.Create(ctx, actor, CreateCustomerRequest{TenantID: tenantID, Name: "Alice", Email: ptr("a@b.com")})
	require.NoError(t, err)

	count, err := svc.MarkSynced(ctx, actor, tenantID, []uuid.UUID{c.ID})
	require.NoError(t, err)
	require.Equal(t, 1, count)

	// Already synced; nothing left pending.
	count, err = svc.MarkSynced(ctx, actor, tenantID, []uuid.UUID{c.ID})
	require.NoError(t, err)
	require.Equal(t, 0, count)
}
