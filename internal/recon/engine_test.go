package recon

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ledgerkite/ledgerkite/internal/billing"
	"github.com/ledgerkite/ledgerkite/internal/customers"
	"github.com/ledgerkite/ledgerkite/internal/shared"
)

type memCustomers struct {
	rows map[uuid.UUID]*customers.Customer
}

func newMemCustomers() *memCustomers {
	return &memCustomers{rows: make(map[uuid.UUID]*customers.Customer)}
}

func (m *memCustomers) Get(ctx context.Context, tenantID, id uuid.UUID) (*customers.Customer, error) {
	c, ok := m.rows[id]
	if !ok || c.TenantID != tenantID {
		return nil, shared.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (m *memCustomers) FindByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*customers.Customer, error) {
	for _, c := range m.rows {
		if c.TenantID == tenantID && c.Email != nil && *c.Email == email {
			copied := *c
			return &copied, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *memCustomers) FindByPhone(ctx context.Context, tenantID uuid.UUID, phone string) (*customers.Customer, error) {
	for _, c := range m.rows {
		if c.TenantID == tenantID && c.Phone != nil && *c.Phone == phone {
			copied := *c
			return &copied, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *memCustomers) Create(ctx context.Context, c customers.Customer) (*customers.Customer, error) {
	c.ID = uuid.New()
	c.SyncStatus = shared.SyncPending
	now := time.Now().UTC()
	c.CreatedAt = now
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}
	m.rows[c.ID] = &c
	copied := c
	return &copied, nil
}

func (m *memCustomers) Update(ctx context.Context, tenantID, id uuid.UUID, updates map[string]any) error {
	c, ok := m.rows[id]
	if !ok || c.TenantID != tenantID {
		return shared.ErrNotFound
	}
	if v, ok := updates["name"]; ok {
		c.Name = v.(string)
	}
	if v, ok := updates["email"]; ok {
		s := v.(string)
		c.Email = &s
	}
	if v, ok := updates["phone"]; ok {
		s := v.(string)
		c.Phone = &s
	}
	if v, ok := updates["updated_at"]; ok {
		c.UpdatedAt = v.(time.Time)
	} else {
		c.UpdatedAt = time.Now().UTC()
	}
	c.SyncStatus = shared.SyncPending
	return nil
}

type fakeFinancial struct {
	applyErr error
	applied  bool
	calls    int
}

func (f *fakeFinancial) ApplyRemoteInvoice(ctx context.Context, actor *shared.Actor, rec billing.RemoteInvoice) (bool, error) {
	f.calls++
	return f.applied, f.applyErr
}

func (f *fakeFinancial) ApplyRemoteLine(ctx context.Context, actor *shared.Actor, rec billing.RemoteLine) (bool, error) {
	f.calls++
	return f.applied, f.applyErr
}

func (f *fakeFinancial) ApplyRemotePayment(ctx context.Context, actor *shared.Actor, rec billing.RemotePayment) (bool, error) {
	f.calls++
	return f.applied, f.applyErr
}

type fakeIdem struct {
	seen map[string]bool
}

func (f *fakeIdem) CheckAndInsert(ctx context.Context, key, scope string) error {
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	k := scope + ":" + key
	if f.seen[k] {
		return shared.ErrIdempotencyConflict
	}
	f.seen[k] = true
	return nil
}

func ptr(s string) *string { return &s }

func userActor(tenantID uuid.UUID) *shared.Actor {
	return &shared.Actor{ID: uuid.New(), Role: shared.RoleUser, TenantID: tenantID}
}

func newTestEngine(store *memCustomers, fin FinancialApplier, idem IdempotencyChecker) *Engine {
	return NewEngine(EngineConfig{
		Customers:   store,
		Billing:     fin,
		Idempotency: idem,
		ChunkSize:   2,
	})
}

func TestOlderRemoteIsIgnored(t *testing.T) {
	store := newMemCustomers()
	e := newTestEngine(store, nil, nil)
	ctx := context.Background()
	tenantID := uuid.New()
	actor := userActor(tenantID)

	base := time.Now().UTC()
	older := base.Add(-time.Minute)

	s, err := e.ApplyRemoteCustomers(ctx, actor, tenantID, "", []RemoteCustomer{
		{TenantID: tenantID, Email: ptr("a@b.com"), Name: ptr("Old"), UpdatedAt: &base},
	})
	require.NoError(t, err)
	require.Equal(t, 1, s.Applied)

	s, err = e.ApplyRemoteCustomers(ctx, actor, tenantID, "", []RemoteCustomer{
		{TenantID: tenantID, Email: ptr("a@b.com"), Name: ptr("New"), UpdatedAt: &older},
	})
	require.NoError(t, err)
	require.Equal(t, 0, s.Applied)
	require.Equal(t, 1, s.Ignored)

	got, err := store.FindByEmail(ctx, tenantID, "a@b.com")
	require.NoError(t, err)
	require.Equal(t, "Old", got.Name)
}

func TestConflictResolutionTable(t *testing.T) {
	base := time.Now().UTC()
	cases := []struct {
		name        string
		remote      time.Time
		wantName    string
		wantApplied int
	}{
		{"remote strictly newer wins", base.Add(time.Second), "Remote", 1},
		{"equal timestamps keep local", base, "Local", 0},
		{"older remote keeps local", base.Add(-time.Second), "Local", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newMemCustomers()
			e := newTestEngine(store, nil, nil)
			ctx := context.Background()
			tenantID := uuid.New()
			actor := userActor(tenantID)

			local, err := store.Create(ctx, customers.Customer{
				TenantID: tenantID, Name: "Local", Email: ptr("a@b.com"), UpdatedAt: base,
			})
			require.NoError(t, err)

			s, err := e.ApplyRemoteCustomers(ctx, actor, tenantID, "", []RemoteCustomer{
				{TenantID: tenantID, ID: &local.ID, Name: ptr("Remote"), UpdatedAt: &tc.remote},
			})
			require.NoError(t, err)
			require.Equal(t, tc.wantApplied, s.Applied)
			require.Equal(t, tc.wantName, store.rows[local.ID].Name)
		})
	}
}

func TestRemoteIDUnknownCreatesFreshRow(t *testing.T) {
	store := newMemCustomers()
	e := newTestEngine(store, nil, nil)
	ctx := context.Background()
	tenantID := uuid.New()
	actor := userActor(tenantID)

	foreign := uuid.New()
	now := time.Now().UTC()
	s, err := e.ApplyRemoteCustomers(ctx, actor, tenantID, "", []RemoteCustomer{
		{TenantID: tenantID, ID: &foreign, Name: ptr("Fresh"), UpdatedAt: &now},
	})
	require.NoError(t, err)
	require.Equal(t, 1, s.Applied)
	// Identifiers are store-assigned; the remote id is not reused.
	require.NotContains(t, store.rows, foreign)
	require.Len(t, store.rows, 1)
}

func TestTenantMismatchAbortsWholeBatch(t *testing.T) {
	store := newMemCustomers()
	e := newTestEngine(store, nil, nil)
	ctx := context.Background()
	tenantID := uuid.New()
	actor := userActor(tenantID)
	now := time.Now().UTC()

	_, err := e.ApplyRemoteCustomers(ctx, actor, tenantID, "", []RemoteCustomer{
		{TenantID: tenantID, Name: ptr("Fine"), Email: ptr("a@b.com"), UpdatedAt: &now},
		{TenantID: uuid.New(), Name: ptr("Foreign"), UpdatedAt: &now},
	})
	require.ErrorIs(t, err, shared.ErrTenantMismatch)
	// Pre-check rejects before the first record is touched.
	require.Empty(t, store.rows)
}

func TestBatchReplaySuppressed(t *testing.T) {
	store := newMemCustomers()
	e := newTestEngine(store, nil, &fakeIdem{})
	ctx := context.Background()
	tenantID := uuid.New()
	actor := userActor(tenantID)
	now := time.Now().UTC()

	records := []RemoteCustomer{
		{TenantID: tenantID, Name: ptr("Alice"), Email: ptr("a@b.com"), UpdatedAt: &now},
	}
	s, err := e.ApplyRemoteCustomers(ctx, actor, tenantID, "batch-1", records)
	require.NoError(t, err)
	require.Equal(t, 1, s.Applied)

	s, err = e.ApplyRemoteCustomers(ctx, actor, tenantID, "batch-1", records)
	require.NoError(t, err)
	require.True(t, s.Replayed)
	require.Equal(t, 0, s.Applied)
}

func TestReapplyingBatchIsIdempotent(t *testing.T) {
	store := newMemCustomers()
	e := newTestEngine(store, nil, nil)
	ctx := context.Background()
	tenantID := uuid.New()
	actor := userActor(tenantID)
	now := time.Now().UTC()

	records := []RemoteCustomer{
		{TenantID: tenantID, Name: ptr("Alice"), Email: ptr("a@b.com"), UpdatedAt: &now},
		{TenantID: tenantID, Name: ptr("Bob"), Email: ptr("b@b.com"), UpdatedAt: &now},
		{TenantID: tenantID, Name: ptr("Cara"), Email: ptr("c@b.com"), UpdatedAt: &now},
	}
	s, err := e.ApplyRemoteCustomers(ctx, actor, tenantID, "", records)
	require.NoError(t, err)
	require.Equal(t, 3, s.Applied)
	require.Len(t, store.rows, 3)

	// Same batch again: every record resolves by email and loses the
	// timestamp comparison.
	s, err = e.ApplyRemoteCustomers(ctx, actor, tenantID, "", records)
	require.NoError(t, err)
	require.Equal(t, 0, s.Applied)
	require.Equal(t, 3, s.Ignored)
	require.Len(t, store.rows, 3)
}

func TestMissingParentSkipsRecord(t *testing.T) {
	fin := &fakeFinancial{applyErr: shared.ErrNotFound}
	e := newTestEngine(newMemCustomers(), fin, nil)
	ctx := context.Background()
	tenantID := uuid.New()
	actor := userActor(tenantID)
	missing := uuid.New()

	s, err := e.ApplyRemotePayments(ctx, actor, tenantID, "", []billing.RemotePayment{
		{TenantID: tenantID, InvoiceID: &missing, Reference: ptr("PAY-1")},
	})
	require.NoError(t, err)
	require.Equal(t, 0, s.Applied)
	require.Equal(t, 1, s.Skipped)
	require.Equal(t, OutcomeSkipped, s.Results[0].Outcome)
}

func TestFailedRecordDoesNotAbortBatch(t *testing.T) {
	store := newMemCustomers()
	e := newTestEngine(store, nil, nil)
	ctx := context.Background()
	tenantID := uuid.New()
	actor := userActor(tenantID)
	now := time.Now().UTC()

	s, err := e.ApplyRemoteCustomers(ctx, actor, tenantID, "", []RemoteCustomer{
		{TenantID: tenantID, Email: ptr("a@b.com"), UpdatedAt: &now}, // no name
		{TenantID: tenantID, Name: ptr("Bob"), Email: ptr("b@b.com"), UpdatedAt: &now},
	})
	require.NoError(t, err)
	require.Equal(t, 1, s.Applied)
	require.Equal(t, 1, s.Failed)
	require.Equal(t, OutcomeFailed, s.Results[0].Outcome)
	require.Equal(t, OutcomeApplied, s.Results[1].Outcome)
}
