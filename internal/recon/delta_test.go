package recon

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ledgerkite/ledgerkite/internal/customers"
	"github.com/ledgerkite/ledgerkite/internal/shared"
)

type memCustomerDelta struct {
	rows []customers.Customer
}

func (m *memCustomerDelta) ListUpdatedSince(ctx context.Context, tenantID *uuid.UUID, since time.Time) ([]customers.Customer, error) {
	var out []customers.Customer
	for _, c := range m.rows {
		if tenantID != nil && c.TenantID != *tenantID {
			continue
		}
		if c.UpdatedAt.After(since) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

func TestDeltaIsTenantScopedAndAscending(t *testing.T) {
	tenantA := uuid.New()
	tenantB := uuid.New()
	base := time.Now().UTC()

	src := &memCustomerDelta{rows: []customers.Customer{
		{ID: uuid.New(), TenantID: tenantA, Name: "A2", UpdatedAt: base.Add(2 * time.Minute)},
		{ID: uuid.New(), TenantID: tenantA, Name: "A1", UpdatedAt: base.Add(time.Minute)},
		{ID: uuid.New(), TenantID: tenantB, Name: "B1", UpdatedAt: base.Add(time.Minute)},
		{ID: uuid.New(), TenantID: tenantA, Name: "A0", UpdatedAt: base.Add(-time.Minute)},
	}}
	exp := NewExporter(src, nil, nil, nil)

	got, err := exp.CustomersUpdatedSince(context.Background(), userActor(tenantA), tenantA, base)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "A1", got[0].Name)
	require.Equal(t, "A2", got[1].Name)
}

func TestDeltaStrictlyAfterBoundary(t *testing.T) {
	tenantID := uuid.New()
	base := time.Now().UTC()

	src := &memCustomerDelta{rows: []customers.Customer{
		{ID: uuid.New(), TenantID: tenantID, Name: "AtBoundary", UpdatedAt: base},
		{ID: uuid.New(), TenantID: tenantID, Name: "After", UpdatedAt: base.Add(time.Second)},
	}}
	exp := NewExporter(src, nil, nil, nil)

	got, err := exp.CustomersUpdatedSince(context.Background(), userActor(tenantID), tenantID, base)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "After", got[0].Name)
}

func TestGlobalDeltaRequiresSuperAdmin(t *testing.T) {
	tenantID := uuid.New()
	src := &memCustomerDelta{rows: []customers.Customer{
		{ID: uuid.New(), TenantID: tenantID, Name: "X", UpdatedAt: time.Now().UTC()},
	}}
	exp := NewExporter(src, nil, nil, nil)

	_, err := exp.CustomersUpdatedSince(context.Background(), userActor(tenantID), uuid.Nil, time.Time{})
	require.ErrorIs(t, err, shared.ErrForbidden)

	super := &shared.Actor{ID: uuid.New(), Role: shared.RoleSuperAdmin}
	got, err := exp.CustomersUpdatedSince(context.Background(), super, uuid.Nil, time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 1)
}
