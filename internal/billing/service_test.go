package billing

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ledgerkite/ledgerkite/internal/shared"
)

type fakeItem struct {
	TenantID uuid.UUID
	Stock    ItemStock
}

// memoryStore implements Repository and TxRepository over plain maps.
// WithTx snapshots the maps and restores them when the callback fails, so
// rollback semantics hold in tests.
type memoryStore struct {
	invoices  map[uuid.UUID]*Invoice
	lines     map[uuid.UUID]*InvoiceLine
	payments  map[uuid.UUID]*Payment
	items     map[uuid.UUID]*fakeItem
	customers map[uuid.UUID]uuid.UUID
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		invoices:  make(map[uuid.UUID]*Invoice),
		lines:     make(map[uuid.UUID]*InvoiceLine),
		payments:  make(map[uuid.UUID]*Payment),
		items:     make(map[uuid.UUID]*fakeItem),
		customers: make(map[uuid.UUID]uuid.UUID),
	}
}

func (m *memoryStore) snapshot() *memoryStore {
	s := newMemoryStore()
	for k, v := range m.invoices {
		c := *v
		s.invoices[k] = &c
	}
	for k, v := range m.lines {
		c := *v
		s.lines[k] = &c
	}
	for k, v := range m.payments {
		c := *v
		s.payments[k] = &c
	}
	for k, v := range m.items {
		c := *v
		s.items[k] = &c
	}
	for k, v := range m.customers {
		s.customers[k] = v
	}
	return s
}

func (m *memoryStore) restore(s *memoryStore) {
	m.invoices = s.invoices
	m.lines = s.lines
	m.payments = s.payments
	m.items = s.items
	m.customers = s.customers
}

func (m *memoryStore) WithTx(ctx context.Context, fn func(TxRepository) error) error {
	saved := m.snapshot()
	if err := fn(m); err != nil {
		m.restore(saved)
		return err
	}
	return nil
}

func (m *memoryStore) GetInvoice(ctx context.Context, tenantID, id uuid.UUID) (*Invoice, error) {
	inv, ok := m.invoices[id]
	if !ok || inv.TenantID != tenantID {
		return nil, shared.ErrNotFound
	}
	c := *inv
	return &c, nil
}

func (m *memoryStore) GetInvoiceForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*Invoice, error) {
	return m.GetInvoice(ctx, tenantID, id)
}

func (m *memoryStore) FindInvoiceByNumber(ctx context.Context, tenantID uuid.UUID, number string) (*Invoice, error) {
	for _, inv := range m.invoices {
		if inv.TenantID == tenantID && inv.InvoiceNumber == number {
			c := *inv
			return &c, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *memoryStore) ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]Invoice, int, error) {
	var out []Invoice
	for _, inv := range m.invoices {
		if inv.TenantID != req.TenantID {
			continue
		}
		if req.Search != "" && !strings.Contains(inv.InvoiceNumber, req.Search) {
			continue
		}
		if req.Status != "" && string(inv.Status) != req.Status {
			continue
		}
		out = append(out, *inv)
	}
	return out, len(out), nil
}

func (m *memoryStore) InsertInvoice(ctx context.Context, inv Invoice) (*Invoice, error) {
	inv.ID = uuid.New()
	inv.SyncStatus = shared.SyncPending
	now := time.Now().UTC()
	inv.CreatedAt = now
	if inv.UpdatedAt.IsZero() {
		inv.UpdatedAt = now
	}
	if inv.Status == "" {
		inv.Status = StatusDraft
	}
	m.invoices[inv.ID] = &inv
	c := inv
	return &c, nil
}

func (m *memoryStore) UpdateInvoice(ctx context.Context, tenantID, id uuid.UUID, updates map[string]any) error {
	inv, ok := m.invoices[id]
	if !ok || inv.TenantID != tenantID {
		return shared.ErrNotFound
	}
	if v, ok := updates["customer_id"]; ok {
		inv.CustomerID = v.(uuid.UUID)
	}
	if v, ok := updates["invoice_number"]; ok {
		inv.InvoiceNumber = v.(string)
	}
	if v, ok := updates["date"]; ok {
		inv.Date = v.(time.Time)
	}
	if v, ok := updates["due_date"]; ok {
		d := v.(time.Time)
		inv.DueDate = &d
	}
	if v, ok := updates["currency"]; ok {
		inv.Currency = v.(string)
	}
	m.stamp(&inv.UpdatedAt, updates)
	inv.SyncStatus = shared.SyncPending
	return nil
}

func (m *memoryStore) stamp(at *time.Time, updates map[string]any) {
	if v, ok := updates["updated_at"]; ok {
		*at = v.(time.Time)
	} else {
		*at = time.Now().UTC()
	}
}

func (m *memoryStore) SetInvoiceDerived(ctx context.Context, tenantID, id uuid.UUID, total decimal.Decimal, status InvoiceStatus) error {
	inv, ok := m.invoices[id]
	if !ok || inv.TenantID != tenantID {
		return shared.ErrNotFound
	}
	inv.Total = total
	inv.Status = status
	inv.SyncStatus = shared.SyncPending
	inv.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memoryStore) DeleteInvoice(ctx context.Context, tenantID, id uuid.UUID) error {
	inv, ok := m.invoices[id]
	if !ok || inv.TenantID != tenantID {
		return shared.ErrNotFound
	}
	delete(m.invoices, id)
	return nil
}

func (m *memoryStore) GetLine(ctx context.Context, tenantID, id uuid.UUID) (*InvoiceLine, error) {
	l, ok := m.lines[id]
	if !ok || l.TenantID != tenantID {
		return nil, shared.ErrNotFound
	}
	c := *l
	return &c, nil
}

func (m *memoryStore) FindLineByInvoiceItem(ctx context.Context, tenantID, invoiceID, itemID uuid.UUID) (*InvoiceLine, error) {
	for _, l := range m.lines {
		if l.TenantID == tenantID && l.InvoiceID == invoiceID && l.ItemID == itemID {
			c := *l
			return &c, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *memoryStore) ListLines(ctx context.Context, tenantID, invoiceID uuid.UUID) ([]InvoiceLine, error) {
	var out []InvoiceLine
	for _, l := range m.lines {
		if l.TenantID == tenantID && l.InvoiceID == invoiceID {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (m *memoryStore) ListLinesByItem(ctx context.Context, tenantID, itemID uuid.UUID) ([]InvoiceLine, error) {
	var out []InvoiceLine
	for _, l := range m.lines {
		if l.TenantID == tenantID && l.ItemID == itemID {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (m *memoryStore) InsertLine(ctx context.Context, line InvoiceLine) (*InvoiceLine, error) {
	line.ID = uuid.New()
	line.SyncStatus = shared.SyncPending
	now := time.Now().UTC()
	line.CreatedAt = now
	if line.UpdatedAt.IsZero() {
		line.UpdatedAt = now
	}
	line.LineTotal = line.Quantity.Mul(line.UnitPrice)
	m.lines[line.ID] = &line
	c := line
	return &c, nil
}

func (m *memoryStore) UpdateLine(ctx context.Context, tenantID, id uuid.UUID, updates map[string]any) error {
	l, ok := m.lines[id]
	if !ok || l.TenantID != tenantID {
		return shared.ErrNotFound
	}
	if v, ok := updates["description"]; ok {
		d := v.(string)
		l.Description = &d
	}
	var err error
	if v, ok := updates["quantity"]; ok {
		if l.Quantity, err = decimal.NewFromString(v.(string)); err != nil {
			return err
		}
	}
	if v, ok := updates["unit_price"]; ok {
		if l.UnitPrice, err = decimal.NewFromString(v.(string)); err != nil {
			return err
		}
	}
	if v, ok := updates["line_total"]; ok {
		if l.LineTotal, err = decimal.NewFromString(v.(string)); err != nil {
			return err
		}
	}
	m.stamp(&l.UpdatedAt, updates)
	l.SyncStatus = shared.SyncPending
	return nil
}

func (m *memoryStore) DeleteLine(ctx context.Context, tenantID, id uuid.UUID) error {
	l, ok := m.lines[id]
	if !ok || l.TenantID != tenantID {
		return shared.ErrNotFound
	}
	delete(m.lines, id)
	return nil
}

func (m *memoryStore) GetPayment(ctx context.Context, tenantID, id uuid.UUID) (*Payment, error) {
	p, ok := m.payments[id]
	if !ok || p.TenantID != tenantID {
		return nil, shared.ErrNotFound
	}
	c := *p
	return &c, nil
}

func (m *memoryStore) ListPayments(ctx context.Context, tenantID, invoiceID uuid.UUID) ([]Payment, error) {
	var out []Payment
	for _, p := range m.payments {
		if p.TenantID == tenantID && p.InvoiceID == invoiceID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memoryStore) FindPaymentByReference(ctx context.Context, tenantID uuid.UUID, reference string) (*Payment, error) {
	for _, p := range m.payments {
		if p.TenantID == tenantID && p.Reference == reference {
			c := *p
			return &c, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *memoryStore) InsertPayment(ctx context.Context, p Payment) (*Payment, error) {
	p.ID = uuid.New()
	p.SyncStatus = shared.SyncPending
	now := time.Now().UTC()
	p.CreatedAt = now
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}
	m.payments[p.ID] = &p
	c := p
	return &c, nil
}

func (m *memoryStore) UpdatePayment(ctx context.Context, tenantID, id uuid.UUID, updates map[string]any) error {
	p, ok := m.payments[id]
	if !ok || p.TenantID != tenantID {
		return shared.ErrNotFound
	}
	if v, ok := updates["reference"]; ok {
		p.Reference = v.(string)
	}
	if v, ok := updates["amount"]; ok {
		amount, err := decimal.NewFromString(v.(string))
		if err != nil {
			return err
		}
		p.Amount = amount
	}
	if v, ok := updates["method"]; ok {
		s := v.(string)
		p.Method = &s
	}
	if v, ok := updates["date"]; ok {
		p.Date = v.(time.Time)
	}
	if v, ok := updates["paid_at"]; ok {
		d := v.(time.Time)
		p.PaidAt = &d
	}
	m.stamp(&p.UpdatedAt, updates)
	p.SyncStatus = shared.SyncPending
	return nil
}

func (m *memoryStore) DeletePayment(ctx context.Context, tenantID, id uuid.UUID) error {
	p, ok := m.payments[id]
	if !ok || p.TenantID != tenantID {
		return shared.ErrNotFound
	}
	delete(m.payments, id)
	return nil
}

func (m *memoryStore) GetItemForUpdate(ctx context.Context, tenantID, itemID uuid.UUID) (*ItemStock, error) {
	it, ok := m.items[itemID]
	if !ok || it.TenantID != tenantID {
		return nil, shared.ErrNotFound
	}
	c := it.Stock
	return &c, nil
}

func (m *memoryStore) SetItemQuantity(ctx context.Context, tenantID, itemID uuid.UUID, qty decimal.Decimal) error {
	it, ok := m.items[itemID]
	if !ok || it.TenantID != tenantID {
		return shared.ErrNotFound
	}
	it.Stock.Quantity = qty
	return nil
}

func (m *memoryStore) CustomerExists(ctx context.Context, tenantID, id uuid.UUID) (bool, error) {
	t, ok := m.customers[id]
	return ok && t == tenantID, nil
}

func (m *memoryStore) ListInvoiceIDsByCustomer(ctx context.Context, tenantID, customerID uuid.UUID) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for _, inv := range m.invoices {
		if inv.TenantID == tenantID && inv.CustomerID == customerID {
			out = append(out, inv.ID)
		}
	}
	return out, nil
}

func (m *memoryStore) DeleteCustomer(ctx context.Context, tenantID, id uuid.UUID) error {
	t, ok := m.customers[id]
	if !ok || t != tenantID {
		return shared.ErrNotFound
	}
	delete(m.customers, id)
	return nil
}

func (m *memoryStore) DeleteItem(ctx context.Context, tenantID, id uuid.UUID) error {
	it, ok := m.items[id]
	if !ok || it.TenantID != tenantID {
		return shared.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *memoryStore) ListUnsyncedInvoices(ctx context.Context, tenantID uuid.UUID, limit int) ([]Invoice, error) {
	var out []Invoice
	for _, inv := range m.invoices {
		if inv.TenantID == tenantID && inv.SyncStatus == shared.SyncPending {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (m *memoryStore) ListUnsyncedLines(ctx context.Context, tenantID uuid.UUID, limit int) ([]InvoiceLine, error) {
	var out []InvoiceLine
	for _, l := range m.lines {
		if l.TenantID == tenantID && l.SyncStatus == shared.SyncPending {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (m *memoryStore) ListUnsyncedPayments(ctx context.Context, tenantID uuid.UUID, limit int) ([]Payment, error) {
	var out []Payment
	for _, p := range m.payments {
		if p.TenantID == tenantID && p.SyncStatus == shared.SyncPending {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memoryStore) MarkInvoicesSynced(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (int, error) {
	count := 0
	for _, id := range ids {
		if inv, ok := m.invoices[id]; ok && inv.TenantID == tenantID && inv.SyncStatus == shared.SyncPending {
			inv.SyncStatus = shared.SyncSynced
			count++
		}
	}
	return count, nil
}

func (m *memoryStore) MarkInvoicesSyncFailed(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (int, error) {
	count := 0
	for _, id := range ids {
		if inv, ok := m.invoices[id]; ok && inv.TenantID == tenantID && inv.SyncStatus == shared.SyncPending {
			inv.SyncStatus = shared.SyncFailed
			count++
		}
	}
	return count, nil
}

func (m *memoryStore) MarkLinesSynced(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (int, error) {
	count := 0
	for _, id := range ids {
		if l, ok := m.lines[id]; ok && l.TenantID == tenantID && l.SyncStatus == shared.SyncPending {
			l.SyncStatus = shared.SyncSynced
			count++
		}
	}
	return count, nil
}

func (m *memoryStore) MarkLinesSyncFailed(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (int, error) {
	count := 0
	for _, id := range ids {
		if l, ok := m.lines[id]; ok && l.TenantID == tenantID && l.SyncStatus == shared.SyncPending {
			l.SyncStatus = shared.SyncFailed
			count++
		}
	}
	return count, nil
}

func (m *memoryStore) MarkPaymentsSynced(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (int, error) {
	count := 0
	for _, id := range ids {
		if p, ok := m.payments[id]; ok && p.TenantID == tenantID && p.SyncStatus == shared.SyncPending {
			p.SyncStatus = shared.SyncSynced
			count++
		}
	}
	return count, nil
}

func (m *memoryStore) MarkPaymentsSyncFailed(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (int, error) {
	count := 0
	for _, id := range ids {
		if p, ok := m.payments[id]; ok && p.TenantID == tenantID && p.SyncStatus == shared.SyncPending {
			p.SyncStatus = shared.SyncFailed
			count++
		}
	}
	return count, nil
}

func (m *memoryStore) ListInvoicesUpdatedSince(ctx context.Context, tenantID *uuid.UUID, since time.Time) ([]Invoice, error) {
	var out []Invoice
	for _, inv := range m.invoices {
		if tenantID != nil && inv.TenantID != *tenantID {
			continue
		}
		if inv.UpdatedAt.After(since) {
			out = append(out, *inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

func (m *memoryStore) ListLinesUpdatedSince(ctx context.Context, tenantID *uuid.UUID, since time.Time) ([]InvoiceLine, error) {
	var out []InvoiceLine
	for _, l := range m.lines {
		if tenantID != nil && l.TenantID != *tenantID {
			continue
		}
		if l.UpdatedAt.After(since) {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

func (m *memoryStore) ListPaymentsUpdatedSince(ctx context.Context, tenantID *uuid.UUID, since time.Time) ([]Payment, error) {
	var out []Payment
	for _, p := range m.payments {
		if tenantID != nil && p.TenantID != *tenantID {
			continue
		}
		if p.UpdatedAt.After(since) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

func seedItem(store *memoryStore, tenantID uuid.UUID, price, qty int64) uuid.UUID {
	id := uuid.New()
	store.items[id] = &fakeItem{TenantID: tenantID, Stock: ItemStock{
		UnitPrice: decimal.NewFromInt(price),
		Quantity:  decimal.NewFromInt(qty),
	}}
	return id
}

func seedCustomer(store *memoryStore, tenantID uuid.UUID) uuid.UUID {
	id := uuid.New()
	store.customers[id] = tenantID
	return id
}

func userActor(tenantID uuid.UUID) *shared.Actor {
	return &shared.Actor{ID: uuid.New(), Role: shared.RoleUser, TenantID: tenantID}
}

func adminActor(tenantID uuid.UUID) *shared.Actor {
	return &shared.Actor{ID: uuid.New(), Role: shared.RoleAdmin, TenantID: tenantID}
}

func superActor() *shared.Actor {
	return &shared.Actor{ID: uuid.New(), Role: shared.RoleSuperAdmin}
}

func eq(t *testing.T, want int64, got decimal.Decimal) {
	t.Helper()
	require.True(t, got.Equal(decimal.NewFromInt(want)), "want %d, got %s", want, got)
}

func TestInvoiceWithLineAdjustsStockAndTotals(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, nil, nil)
	ctx := context.Background()
	tenantID := uuid.New()
	actor := userActor(tenantID)
	customerID := seedCustomer(store, tenantID)
	itemID := seedItem(store, tenantID, 5, 10)

	inv, err := svc.CreateInvoice(ctx, actor, CreateInvoiceRequest{
		TenantID:      tenantID,
		CustomerID:    customerID,
		InvoiceNumber: "INV-1",
		Currency:      "USD",
		Lines:         []CreateLineRequest{{ItemID: itemID, Quantity: decimal.NewFromInt(3)}},
	})
	require.NoError(t, err)

	eq(t, 7, store.items[itemID].Stock.Quantity)
	eq(t, 15, inv.Total)
	require.Equal(t, StatusSent, inv.Status)
}

func TestPaymentEscalatesToPaid(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, nil, nil)
	ctx := context.Background()
	tenantID := uuid.New()
	actor := userActor(tenantID)
	customerID := seedCustomer(store, tenantID)
	itemID := seedItem(store, tenantID, 5, 10)

	inv, err := svc.CreateInvoice(ctx, actor, CreateInvoiceRequest{
		TenantID: tenantID, CustomerID: customerID, InvoiceNumber: "INV-1", Currency: "USD",
		Lines: []CreateLineRequest{{ItemID: itemID, Quantity: decimal.NewFromInt(3)}},
	})
	require.NoError(t, err)

	_, err = svc.AddPayment(ctx, actor, tenantID, CreatePaymentRequest{
		InvoiceID: inv.ID, Reference: "PAY-1", Amount: decimal.NewFromInt(15),
	})
	require.NoError(t, err)

	got, err := svc.GetInvoice(ctx, actor, tenantID, inv.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPaid, got.Status)
}

func TestDeleteLineRestoresStock(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, nil, nil)
	ctx := context.Background()
	tenantID := uuid.New()
	actor := userActor(tenantID)
	customerID := seedCustomer(store, tenantID)
	itemID := seedItem(store, tenantID, 5, 10)

	inv, err := svc.CreateInvoice(ctx, actor, CreateInvoiceRequest{
		TenantID: tenantID, CustomerID: customerID, InvoiceNumber: "INV-1", Currency: "USD",
		Lines: []CreateLineRequest{{ItemID: itemID, Quantity: decimal.NewFromInt(3)}},
	})
	require.NoError(t, err)

	lines, err := svc.ListLines(ctx, actor, tenantID, inv.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)

	_, err = svc.DeleteLine(ctx, actor, tenantID, lines[0].ID)
	require.NoError(t, err)

	eq(t, 10, store.items[itemID].Stock.Quantity)
	got, err := svc.GetInvoice(ctx, actor, tenantID, inv.ID)
	require.NoError(t, err)
	eq(t, 0, got.Total)
}

func TestInsufficientStockUnlessAdmin(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, nil, nil)
	ctx := context.Background()
	tenantID := uuid.New()
	customerID := seedCustomer(store, tenantID)
	itemID := seedItem(store, tenantID, 5, 10)

	inv, err := svc.CreateInvoice(ctx, userActor(tenantID), CreateInvoiceRequest{
		TenantID: tenantID, CustomerID: customerID, InvoiceNumber: "INV-1", Currency: "USD",
	})
	require.NoError(t, err)

	_, err = svc.AddLine(ctx, userActor(tenantID), tenantID, inv.ID, CreateLineRequest{
		ItemID: itemID, Quantity: decimal.NewFromInt(20),
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	// Rolled back: no line, stock untouched.
	eq(t, 10, store.items[itemID].Stock.Quantity)
	require.Empty(t, store.lines)

	_, err = svc.AddLine(ctx, adminActor(tenantID), tenantID, inv.ID, CreateLineRequest{
		ItemID: itemID, Quantity: decimal.NewFromInt(20),
	})
	require.NoError(t, err)
	eq(t, -10, store.items[itemID].Stock.Quantity)
}

func TestPaymentDeleteRecomputesDownward(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, nil, nil)
	ctx := context.Background()
	tenantID := uuid.New()
	actor := userActor(tenantID)
	customerID := seedCustomer(store, tenantID)
	itemID := seedItem(store, tenantID, 5, 10)

	inv, err := svc.CreateInvoice(ctx, actor, CreateInvoiceRequest{
		TenantID: tenantID, CustomerID: customerID, InvoiceNumber: "INV-1", Currency: "USD",
		Lines: []CreateLineRequest{{ItemID: itemID, Quantity: decimal.NewFromInt(3)}},
	})
	require.NoError(t, err)

	p, err := svc.AddPayment(ctx, actor, tenantID, CreatePaymentRequest{
		InvoiceID: inv.ID, Reference: "PAY-1", Amount: decimal.NewFromInt(15),
	})
	require.NoError(t, err)

	_, err = svc.DeletePayment(ctx, actor, tenantID, p.ID)
	require.NoError(t, err)

	got, err := svc.GetInvoice(ctx, actor, tenantID, inv.ID)
	require.NoError(t, err)
	require.Equal(t, StatusSent, got.Status)
}

func TestCreateInvoiceIdempotentOnNumber(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, nil, nil)
	ctx := context.Background()
	tenantID := uuid.New()
	actor := userActor(tenantID)
	customerID := seedCustomer(store, tenantID)

	first, err := svc.CreateInvoice(ctx, actor, CreateInvoiceRequest{
		TenantID: tenantID, CustomerID: customerID, InvoiceNumber: "INV-1", Currency: "USD",
	})
	require.NoError(t, err)

	second, err := svc.CreateInvoice(ctx, actor, CreateInvoiceRequest{
		TenantID: tenantID, CustomerID: customerID, InvoiceNumber: "INV-1", Currency: "USD",
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Len(t, store.invoices, 1)
}

func TestAddPaymentIdempotentOnReference(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, nil, nil)
	ctx := context.Background()
	tenantID := uuid.New()
	actor := userActor(tenantID)
	customerID := seedCustomer(store, tenantID)

	inv, err := svc.CreateInvoice(ctx, actor, CreateInvoiceRequest{
		TenantID: tenantID, CustomerID: customerID, InvoiceNumber: "INV-1", Currency: "USD",
	})
	require.NoError(t, err)

	first, err := svc.AddPayment(ctx, actor, tenantID, CreatePaymentRequest{
		InvoiceID: inv.ID, Reference: "PAY-1", Amount: decimal.NewFromInt(5),
	})
	require.NoError(t, err)

	second, err := svc.AddPayment(ctx, actor, tenantID, CreatePaymentRequest{
		InvoiceID: inv.ID, Reference: "PAY-1", Amount: decimal.NewFromInt(9),
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Len(t, store.payments, 1)
}

func TestCreateInvoiceRejectsUnknownCurrency(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, nil, nil)
	tenantID := uuid.New()
	customerID := seedCustomer(store, tenantID)

	_, err := svc.CreateInvoice(context.Background(), userActor(tenantID), CreateInvoiceRequest{
		TenantID: tenantID, CustomerID: customerID, InvoiceNumber: "INV-1", Currency: "ZZZ",
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestApplyRemotePaymentLastWriterWins(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, nil, nil)
	ctx := context.Background()
	tenantID := uuid.New()
	actor := userActor(tenantID)
	customerID := seedCustomer(store, tenantID)

	inv, err := svc.CreateInvoice(ctx, actor, CreateInvoiceRequest{
		TenantID: tenantID, CustomerID: customerID, InvoiceNumber: "INV-1", Currency: "USD",
	})
	require.NoError(t, err)

	base := time.Now().UTC()
	amount := decimal.NewFromInt(5)
	ref := "PAY-1"
	applied, err := svc.ApplyRemotePayment(ctx, actor, RemotePayment{
		TenantID: tenantID, InvoiceID: &inv.ID, Reference: &ref, Amount: &amount, UpdatedAt: &base,
	})
	require.NoError(t, err)
	require.True(t, applied)

	// Older snapshot of the same payment is ignored.
	older := base.Add(-time.Hour)
	stale := decimal.NewFromInt(99)
	applied, err = svc.ApplyRemotePayment(ctx, actor, RemotePayment{
		TenantID: tenantID, Reference: &ref, Amount: &stale, UpdatedAt: &older,
	})
	require.NoError(t, err)
	require.False(t, applied)

	p, err := svc.repo.FindPaymentByReference(ctx, tenantID, ref)
	require.NoError(t, err)
	eq(t, 5, p.Amount)

	// Strictly newer snapshot wins.
	newer := base.Add(time.Hour)
	fresh := decimal.NewFromInt(7)
	applied, err = svc.ApplyRemotePayment(ctx, actor, RemotePayment{
		TenantID: tenantID, Reference: &ref, Amount: &fresh, UpdatedAt: &newer,
	})
	require.NoError(t, err)
	require.True(t, applied)

	p, err = svc.repo.FindPaymentByReference(ctx, tenantID, ref)
	require.NoError(t, err)
	eq(t, 7, p.Amount)
}

func TestApplyRemoteLineMissingInvoiceSkips(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, nil, nil)
	tenantID := uuid.New()
	itemID := seedItem(store, tenantID, 5, 10)
	missing := uuid.New()
	qty := decimal.NewFromInt(1)
	now := time.Now().UTC()

	_, err := svc.ApplyRemoteLine(context.Background(), userActor(tenantID), RemoteLine{
		TenantID: tenantID, InvoiceID: &missing, ItemID: &itemID, Quantity: &qty, UpdatedAt: &now,
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Empty(t, store.lines)
}

func TestPurgeCustomerUnwindsFinancialGraph(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, nil, nil)
	ctx := context.Background()
	tenantID := uuid.New()
	actor := superActor()
	customerID := seedCustomer(store, tenantID)
	itemID := seedItem(store, tenantID, 5, 10)

	inv, err := svc.CreateInvoice(ctx, actor, CreateInvoiceRequest{
		TenantID: tenantID, CustomerID: customerID, InvoiceNumber: "INV-1", Currency: "USD",
		Lines: []CreateLineRequest{{ItemID: itemID, Quantity: decimal.NewFromInt(4)}},
	})
	require.NoError(t, err)
	_, err = svc.AddPayment(ctx, actor, tenantID, CreatePaymentRequest{
		InvoiceID: inv.ID, Reference: "PAY-1", Amount: decimal.NewFromInt(5),
	})
	require.NoError(t, err)

	require.NoError(t, svc.PurgeCustomer(ctx, tenantID, customerID))

	require.Empty(t, store.invoices)
	require.Empty(t, store.lines)
	require.Empty(t, store.payments)
	require.NotContains(t, store.customers, customerID)
	eq(t, 10, store.items[itemID].Stock.Quantity)
}
