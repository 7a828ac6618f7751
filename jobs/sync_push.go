package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/ledgerkite/ledgerkite/internal/billing"
	"github.com/ledgerkite/ledgerkite/internal/customers"
	"github.com/ledgerkite/ledgerkite/internal/events"
	"github.com/ledgerkite/ledgerkite/internal/items"
	jobmetrics "github.com/ledgerkite/ledgerkite/internal/jobs"
	"github.com/ledgerkite/ledgerkite/internal/tenants"
	"github.com/ledgerkite/ledgerkite/internal/vendors"
)

const tenantPageSize = 200

// TenantLister enumerates tenants for the push sweep.
type TenantLister interface {
	List(ctx context.Context, search string, limit, offset int) ([]tenants.Tenant, int, error)
}

// Pusher publishes pending rows to the broker and flips their sync status.
// Rows that fail to publish are marked FAILED and picked up again once the
// row changes.
type Pusher struct {
	tenants   TenantLister
	customers customers.Repository
	vendors   vendors.Repository
	items     items.Repository
	billing   billing.Repository
	publisher events.Publisher
	metrics   *jobmetrics.Metrics
	logger    *slog.Logger
	limit     int
}

// PusherConfig collects the stores and broker the pusher sweeps.
type PusherConfig struct {
	Tenants   TenantLister
	Customers customers.Repository
	Vendors   vendors.Repository
	Items     items.Repository
	Billing   billing.Repository
	Publisher events.Publisher
	Metrics   *jobmetrics.Metrics
	Logger    *slog.Logger
	Limit     int
}

// NewPusher constructs a Pusher.
func NewPusher(cfg PusherConfig) *Pusher {
	limit := cfg.Limit
	if limit <= 0 {
		limit = 100
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pusher{
		tenants:   cfg.Tenants,
		customers: cfg.Customers,
		vendors:   cfg.Vendors,
		items:     cfg.Items,
		billing:   cfg.Billing,
		publisher: cfg.Publisher,
		metrics:   cfg.Metrics,
		logger:    logger,
		limit:     limit,
	}
}

// HandleTask processes TaskSyncPush tasks.
func (p *Pusher) HandleTask(ctx context.Context, t *asynq.Task) error {
	var payload SyncPushPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	limit := payload.Limit
	if limit <= 0 {
		limit = p.limit
	}
	tracker := p.metrics.Track("sync_push")
	return tracker.End(p.Push(ctx, limit))
}

// Push sweeps every tenant and publishes pending rows of all six kinds.
func (p *Pusher) Push(ctx context.Context, limit int) error {
	for offset := 0; ; offset += tenantPageSize {
		page, total, err := p.tenants.List(ctx, "", tenantPageSize, offset)
		if err != nil {
			return err
		}
		for _, tenant := range page {
			if err := p.pushTenant(ctx, tenant.ID, limit); err != nil {
				return err
			}
		}
		if offset+tenantPageSize >= total || len(page) == 0 {
			break
		}
	}
	return nil
}

func (p *Pusher) pushTenant(ctx context.Context, tenantID uuid.UUID, limit int) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.pushCustomers(ctx, tenantID, limit) })
	g.Go(func() error { return p.pushVendors(ctx, tenantID, limit) })
	g.Go(func() error { return p.pushItems(ctx, tenantID, limit) })
	g.Go(func() error { return p.pushInvoices(ctx, tenantID, limit) })
	g.Go(func() error { return p.pushLines(ctx, tenantID, limit) })
	g.Go(func() error { return p.pushPayments(ctx, tenantID, limit) })
	return g.Wait()
}

type pushRecord struct {
	ID        uuid.UUID
	UpdatedAt time.Time
}

// publishRecords writes one event per record and partitions the ids by
// publish outcome.
func (p *Pusher) publishRecords(ctx context.Context, tenantID uuid.UUID, topic, eventType string, recs []pushRecord) (ok, failed []uuid.UUID) {
	for _, rec := range recs {
		env, err := events.NewEnvelope(eventType, tenantID, events.RecordSyncedPayload{
			ID:        rec.ID.String(),
			UpdatedAt: rec.UpdatedAt,
		})
		if err == nil {
			err = p.publisher.Publish(ctx, topic, events.PartitionKey(tenantID.String()), env)
		}
		if err != nil {
			p.logger.Warn("push record",
				slog.String("topic", topic),
				slog.String("id", rec.ID.String()),
				slog.Any("error", err))
			failed = append(failed, rec.ID)
			continue
		}
		ok = append(ok, rec.ID)
	}
	return ok, failed
}

func (p *Pusher) count(kind string, ok, failed []uuid.UUID) {
	p.metrics.AddPushed(kind, "published", len(ok))
	p.metrics.AddPushed(kind, "failed", len(failed))
}

func (p *Pusher) pushCustomers(ctx context.Context, tenantID uuid.UUID, limit int) error {
	rows, err := p.customers.ListUnsynced(ctx, tenantID, limit)
	if err != nil {
		return err
	}
	recs := make([]pushRecord, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, pushRecord{ID: row.ID, UpdatedAt: row.UpdatedAt})
	}
	ok, failed := p.publishRecords(ctx, tenantID, events.TopicCustomerSynced, events.EventCustomerSynced, recs)
	p.count("customers", ok, failed)
	return p.mark(ctx, tenantID, "customers", ok, failed, p.customers.MarkSynced, p.customers.MarkSyncFailed)
}

func (p *Pusher) pushVendors(ctx context.Context, tenantID uuid.UUID, limit int) error {
	rows, err := p.vendors.ListUnsynced(ctx, tenantID, limit)
	if err != nil {
		return err
	}
	recs := make([]pushRecord, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, pushRecord{ID: row.ID, UpdatedAt: row.UpdatedAt})
	}
	ok, failed := p.publishRecords(ctx, tenantID, events.TopicVendorSynced, events.EventVendorSynced, recs)
	p.count("vendors", ok, failed)
	return p.mark(ctx, tenantID, "vendors", ok, failed, p.vendors.MarkSynced, p.vendors.MarkSyncFailed)
}

func (p *Pusher) pushItems(ctx context.Context, tenantID uuid.UUID, limit int) error {
	rows, err := p.items.ListUnsynced(ctx, tenantID, limit)
	if err != nil {
		return err
	}
	recs := make([]pushRecord, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, pushRecord{ID: row.ID, UpdatedAt: row.UpdatedAt})
	}
	ok, failed := p.publishRecords(ctx, tenantID, events.TopicItemSynced, events.EventItemSynced, recs)
	p.count("items", ok, failed)
	return p.mark(ctx, tenantID, "items", ok, failed, p.items.MarkSynced, p.items.MarkSyncFailed)
}

func (p *Pusher) pushInvoices(ctx context.Context, tenantID uuid.UUID, limit int) error {
	rows, err := p.billing.ListUnsyncedInvoices(ctx, tenantID, limit)
	if err != nil {
		return err
	}
	recs := make([]pushRecord, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, pushRecord{ID: row.ID, UpdatedAt: row.UpdatedAt})
	}
	ok, failed := p.publishRecords(ctx, tenantID, events.TopicInvoiceSynced, events.EventInvoiceSynced, recs)
	p.count("invoices", ok, failed)
	return p.mark(ctx, tenantID, "invoices", ok, failed, p.billing.MarkInvoicesSynced, p.billing.MarkInvoicesSyncFailed)
}

func (p *Pusher) pushLines(ctx context.Context, tenantID uuid.UUID, limit int) error {
	rows, err := p.billing.ListUnsyncedLines(ctx, tenantID, limit)
	if err != nil {
		return err
	}
	recs := make([]pushRecord, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, pushRecord{ID: row.ID, UpdatedAt: row.UpdatedAt})
	}
	ok, failed := p.publishRecords(ctx, tenantID, events.TopicLineSynced, events.EventLineSynced, recs)
	p.count("invoice_lines", ok, failed)
	return p.mark(ctx, tenantID, "invoice_lines", ok, failed, p.billing.MarkLinesSynced, p.billing.MarkLinesSyncFailed)
}

func (p *Pusher) pushPayments(ctx context.Context, tenantID uuid.UUID, limit int) error {
	rows, err := p.billing.ListUnsyncedPayments(ctx, tenantID, limit)
	if err != nil {
		return err
	}
	recs := make([]pushRecord, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, pushRecord{ID: row.ID, UpdatedAt: row.UpdatedAt})
	}
	ok, failed := p.publishRecords(ctx, tenantID, events.TopicPaymentSynced, events.EventPaymentSynced, recs)
	p.count("payments", ok, failed)
	return p.mark(ctx, tenantID, "payments", ok, failed, p.billing.MarkPaymentsSynced, p.billing.MarkPaymentsSyncFailed)
}

type markFunc func(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (int, error)

func (p *Pusher) mark(ctx context.Context, tenantID uuid.UUID, kind string, ok, failed []uuid.UUID, synced, syncFailed markFunc) error {
	if len(ok) > 0 {
		n, err := synced(ctx, tenantID, ok)
		if err != nil {
			return err
		}
		p.logger.Info("pushed records", slog.String("kind", kind), slog.Int("count", n))
	}
	if len(failed) > 0 {
		if _, err := syncFailed(ctx, tenantID, failed); err != nil {
			return err
		}
	}
	return nil
}
