package recon

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerkite/ledgerkite/internal/billing"
	"github.com/ledgerkite/ledgerkite/internal/customers"
	"github.com/ledgerkite/ledgerkite/internal/items"
	"github.com/ledgerkite/ledgerkite/internal/shared"
	"github.com/ledgerkite/ledgerkite/internal/vendors"
)

// Delta sources return rows mutated after a timestamp, ordered ascending by
// updated_at, so a client can resume from its last-seen stamp. A nil tenant
// means global scope.

type CustomerDeltaSource interface {
	ListUpdatedSince(ctx context.Context, tenantID *uuid.UUID, since time.Time) ([]customers.Customer, error)
}

type VendorDeltaSource interface {
	ListUpdatedSince(ctx context.Context, tenantID *uuid.UUID, since time.Time) ([]vendors.Vendor, error)
}

type ItemDeltaSource interface {
	ListUpdatedSince(ctx context.Context, tenantID *uuid.UUID, since time.Time) ([]items.Item, error)
}

type FinancialDeltaSource interface {
	ListInvoicesUpdatedSince(ctx context.Context, tenantID *uuid.UUID, since time.Time) ([]billing.Invoice, error)
	ListLinesUpdatedSince(ctx context.Context, tenantID *uuid.UUID, since time.Time) ([]billing.InvoiceLine, error)
	ListPaymentsUpdatedSince(ctx context.Context, tenantID *uuid.UUID, since time.Time) ([]billing.Payment, error)
}

// Exporter serves the read side of the sync protocol. It never touches
// derived state; deltas are plain tenant-scoped reads, global only for a
// super admin.
type Exporter struct {
	customers CustomerDeltaSource
	vendors   VendorDeltaSource
	items     ItemDeltaSource
	financial FinancialDeltaSource
}

// NewExporter builds Exporter.
func NewExporter(c CustomerDeltaSource, v VendorDeltaSource, i ItemDeltaSource, f FinancialDeltaSource) *Exporter {
	return &Exporter{customers: c, vendors: v, items: i, financial: f}
}

// scope resolves the tenant filter: a super admin passing the zero tenant
// gets a global export, everyone else is pinned to their own tenant.
func scope(actor *shared.Actor, tenantID uuid.UUID) (*uuid.UUID, error) {
	if tenantID == uuid.Nil {
		if err := shared.RequireSuperAdmin(actor); err != nil {
			return nil, err
		}
		return nil, nil
	}
	if err := shared.RequireTenantMatch(actor, tenantID); err != nil {
		return nil, err
	}
	return &tenantID, nil
}

func (e *Exporter) CustomersUpdatedSince(ctx context.Context, actor *shared.Actor, tenantID uuid.UUID, since time.Time) ([]customers.Customer, error) {
	t, err := scope(actor, tenantID)
	if err != nil {
		return nil, err
	}
	return e.customers.ListUpdatedSince(ctx, t, since)
}

func (e *Exporter) VendorsUpdatedSince(ctx context.Context, actor *shared.Actor, tenantID uuid.UUID, since time.Time) ([]vendors.Vendor, error) {
	t, err := scope(actor, tenantID)
	if err != nil {
		return nil, err
	}
	return e.vendors.ListUpdatedSince(ctx, t, since)
}

func (e *Exporter) ItemsUpdatedSince(ctx context.Context, actor *shared.Actor, tenantID uuid.UUID, since time.Time) ([]items.Item, error) {
	t, err := scope(actor, tenantID)
	if err != nil {
		return nil, err
	}
	return e.items.ListUpdatedSince(ctx, t, since)
}

func (e *Exporter) InvoicesUpdatedSince(ctx context.Context, actor *shared.Actor, tenantID uuid.UUID, since time.Time) ([]billing.Invoice, error) {
	t, err := scope(actor, tenantID)
	if err != nil {
		return nil, err
	}
	return e.financial.ListInvoicesUpdatedSince(ctx, t, since)
}

func (e *Exporter) LinesUpdatedSince(ctx context.Context, actor *shared.Actor, tenantID uuid.UUID, since time.Time) ([]billing.InvoiceLine, error) {
	t, err := scope(actor, tenantID)
	if err != nil {
		return nil, err
	}
	return e.financial.ListLinesUpdatedSince(ctx, t, since)
}

func (e *Exporter) PaymentsUpdatedSince(ctx context.Context, actor *shared.Actor, tenantID uuid.UUID, since time.Time) ([]billing.Payment, error) {
	t, err := scope(actor, tenantID)
	if err != nil {
		return nil, err
	}
	return e.financial.ListPaymentsUpdatedSince(ctx, t, since)
}
