package recon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerkite/ledgerkite/internal/billing"
	"github.com/ledgerkite/ledgerkite/internal/customers"
	"github.com/ledgerkite/ledgerkite/internal/events"
	"github.com/ledgerkite/ledgerkite/internal/items"
	"github.com/ledgerkite/ledgerkite/internal/observability"
	"github.com/ledgerkite/ledgerkite/internal/shared"
	"github.com/ledgerkite/ledgerkite/internal/vendors"
)

const defaultChunkSize = 25

// CustomerStore is the slice of the customer repository the engine merges
// against.
type CustomerStore interface {
	Get(ctx context.Context, tenantID, id uuid.UUID) (*customers.Customer, error)
	FindByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*customers.Customer, error)
	FindByPhone(ctx context.Context, tenantID uuid.UUID, phone string) (*customers.Customer, error)
	Create(ctx context.Context, c customers.Customer) (*customers.Customer, error)
	Update(ctx context.Context, tenantID, id uuid.UUID, updates map[string]any) error
}

type VendorStore interface {
	Get(ctx context.Context, tenantID, id uuid.UUID) (*vendors.Vendor, error)
	FindByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*vendors.Vendor, error)
	FindByPhone(ctx context.Context, tenantID uuid.UUID, phone string) (*vendors.Vendor, error)
	Create(ctx context.Context, v vendors.Vendor) (*vendors.Vendor, error)
	Update(ctx context.Context, tenantID, id uuid.UUID, updates map[string]any) error
}

type ItemStore interface {
	Get(ctx context.Context, tenantID, id uuid.UUID) (*items.Item, error)
	FindBySKU(ctx context.Context, tenantID uuid.UUID, sku string) (*items.Item, error)
	Create(ctx context.Context, i items.Item) (*items.Item, error)
	Update(ctx context.Context, tenantID, id uuid.UUID, updates map[string]any) error
}

// FinancialApplier merges financial-graph records; the billing service
// implements it and runs the invariant recompute inside each apply.
type FinancialApplier interface {
	ApplyRemoteInvoice(ctx context.Context, actor *shared.Actor, rec billing.RemoteInvoice) (bool, error)
	ApplyRemoteLine(ctx context.Context, actor *shared.Actor, rec billing.RemoteLine) (bool, error)
	ApplyRemotePayment(ctx context.Context, actor *shared.Actor, rec billing.RemotePayment) (bool, error)
}

// IdempotencyChecker suppresses client batch replays.
type IdempotencyChecker interface {
	CheckAndInsert(ctx context.Context, key, scope string) error
}

// EngineConfig wires the engine's collaborators. Idempotency, Metrics and
// Publisher are optional.
type EngineConfig struct {
	Customers   CustomerStore
	Vendors     VendorStore
	Items       ItemStore
	Billing     FinancialApplier
	Idempotency IdempotencyChecker
	Metrics     *observability.Metrics
	Publisher   events.Publisher
	Logger      *slog.Logger
	ChunkSize   int
}

// Engine merges batches of remote-origin records into the canonical store.
// Each record is its own atomic operation; a failed record never rolls back
// the ones already applied.
type Engine struct {
	customers CustomerStore
	vendors   VendorStore
	items     ItemStore
	billing   FinancialApplier
	idem      IdempotencyChecker
	metrics   *observability.Metrics
	publisher events.Publisher
	log       *slog.Logger
	chunkSize int
}

// NewEngine builds Engine.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.NopPublisher{}
	}
	return &Engine{
		customers: cfg.Customers,
		vendors:   cfg.Vendors,
		items:     cfg.Items,
		billing:   cfg.Billing,
		idem:      cfg.Idempotency,
		metrics:   cfg.Metrics,
		publisher: cfg.Publisher,
		log:       cfg.Logger,
		chunkSize: cfg.ChunkSize,
	}
}

// newerThan is the last-writer-wins comparison: strictly greater timestamps
// win, ties leave the local row.
func newerThan(remote *time.Time, local time.Time) bool {
	return remote != nil && remote.After(local)
}

// precheck rejects the whole batch before any record is touched when a
// record claims a foreign tenant.
func (e *Engine) precheck(actor *shared.Actor, tenantID uuid.UUID, tenants []uuid.UUID) error {
	if err := shared.RequireTenantMatch(actor, tenantID); err != nil {
		return err
	}
	for _, tid := range tenants {
		if tid != tenantID {
			return fmt.Errorf("%w: record addressed to tenant %s", shared.ErrTenantMismatch, tid)
		}
	}
	return nil
}

// replayed reports whether this batch id was already processed.
func (e *Engine) replayed(ctx context.Context, tenantID uuid.UUID, kind, batchID string) bool {
	if batchID == "" || e.idem == nil {
		return false
	}
	err := e.idem.CheckAndInsert(ctx, batchID, "recon:"+kind+":"+tenantID.String())
	if errors.Is(err, shared.ErrIdempotencyConflict) {
		return true
	}
	if err != nil {
		// Suppression is best effort; an unreachable store must not block
		// the batch, merging is idempotent by key anyway.
		e.log.Warn("batch replay check failed", "batch_id", batchID, "error", err)
	}
	return false
}

// run drives one batch: chunked iteration, per-record outcome capture,
// metrics and a summary event.
func (e *Engine) run(ctx context.Context, tenantID uuid.UUID, kind string, total int, apply func(i int) (bool, error)) (*Summary, error) {
	summary := &Summary{}
	for start := 0; start < total; start += e.chunkSize {
		end := start + e.chunkSize
		if end > total {
			end = total
		}
		for i := start; i < end; i++ {
			applied, err := apply(i)
			result := RecordResult{Index: i}
			switch {
			case err == nil && applied:
				result.Outcome = OutcomeApplied
				summary.Applied++
			case err == nil:
				result.Outcome = OutcomeIgnored
				summary.Ignored++
			case errors.Is(err, shared.ErrNotFound):
				result.Outcome = OutcomeSkipped
				result.Reason = err.Error()
				summary.Skipped++
			default:
				result.Outcome = OutcomeFailed
				result.Reason = err.Error()
				summary.Failed++
				e.log.Warn("reconciliation record failed",
					"kind", kind, "index", i, "tenant_id", tenantID, "error", err)
			}
			summary.Results = append(summary.Results, result)
			if e.metrics != nil {
				e.metrics.ObserveReconRecord(kind, string(result.Outcome))
			}
		}
		e.log.Debug("reconciliation chunk done", "kind", kind, "from", start, "to", end)
	}
	if e.metrics != nil {
		e.metrics.ObserveReconBatch(kind, "ok")
	}
	e.publishSummary(ctx, tenantID, kind, summary)
	return summary, nil
}

func (e *Engine) publishSummary(ctx context.Context, tenantID uuid.UUID, kind string, s *Summary) {
	env, err := events.NewEnvelope(events.EventBatchApplied, tenantID, events.BatchAppliedPayload{
		Kind:    kind,
		Applied: s.Applied,
		Skipped: s.Skipped,
		Failed:  s.Failed,
	})
	if err != nil {
		e.log.Warn("batch event encode failed", "kind", kind, "error", err)
		return
	}
	if err := e.publisher.Publish(ctx, events.TopicBatchApplied, events.PartitionKey(tenantID.String()), env); err != nil {
		e.log.Warn("batch event publish failed", "kind", kind, "error", err)
	}
}

// ApplyRemoteCustomers merges a batch of remote customers.
func (e *Engine) ApplyRemoteCustomers(ctx context.Context, actor *shared.Actor, tenantID uuid.UUID, batchID string, records []RemoteCustomer) (*Summary, error) {
	tenants := make([]uuid.UUID, len(records))
	for i, r := range records {
		tenants[i] = r.TenantID
	}
	if err := e.precheck(actor, tenantID, tenants); err != nil {
		return nil, err
	}
	if e.replayed(ctx, tenantID, "customer", batchID) {
		return &Summary{Replayed: true}, nil
	}
	return e.run(ctx, tenantID, "customer", len(records), func(i int) (bool, error) {
		return e.applyCustomer(ctx, records[i])
	})
}

func (e *Engine) applyCustomer(ctx context.Context, rec RemoteCustomer) (bool, error) {
	local, err := e.resolveCustomer(ctx, rec)
	if err != nil {
		return false, err
	}
	if local != nil {
		if !newerThan(rec.UpdatedAt, local.UpdatedAt) {
			return false, nil
		}
		updates := map[string]any{"updated_at": *rec.UpdatedAt}
		if rec.Name != nil {
			updates["name"] = *rec.Name
		}
		if rec.Email != nil {
			updates["email"] = *rec.Email
		}
		if rec.Phone != nil {
			updates["phone"] = *rec.Phone
		}
		if rec.Address != nil {
			updates["address"] = *rec.Address
		}
		if rec.TaxID != nil {
			updates["tax_id"] = *rec.TaxID
		}
		if err := e.customers.Update(ctx, rec.TenantID, local.ID, updates); err != nil {
			return false, err
		}
		return true, nil
	}

	if rec.Name == nil || *rec.Name == "" {
		return false, fmt.Errorf("%w: customer name required", shared.ErrValidation)
	}
	c := customers.Customer{
		TenantID: rec.TenantID,
		Name:     *rec.Name,
		Email:    rec.Email,
		Phone:    rec.Phone,
		Address:  rec.Address,
		TaxID:    rec.TaxID,
	}
	if rec.UpdatedAt != nil {
		c.UpdatedAt = *rec.UpdatedAt
	}
	if _, err := e.customers.Create(ctx, c); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Engine) resolveCustomer(ctx context.Context, rec RemoteCustomer) (*customers.Customer, error) {
	if rec.ID != nil {
		local, err := e.customers.Get(ctx, rec.TenantID, *rec.ID)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
		if local != nil {
			return local, nil
		}
	}
	if rec.Email != nil && *rec.Email != "" {
		local, err := e.customers.FindByEmail(ctx, rec.TenantID, *rec.Email)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
		if local != nil {
			return local, nil
		}
	}
	if rec.Phone != nil && *rec.Phone != "" {
		local, err := e.customers.FindByPhone(ctx, rec.TenantID, *rec.Phone)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
		if local != nil {
			return local, nil
		}
	}
	return nil, nil
}

// ApplyRemoteVendors merges a batch of remote vendors.
func (e *Engine) ApplyRemoteVendors(ctx context.Context, actor *shared.Actor, tenantID uuid.UUID, batchID string, records []RemoteVendor) (*Summary, error) {
	tenants := make([]uuid.UUID, len(records))
	for i, r := range records {
		tenants[i] = r.TenantID
	}
	if err := e.precheck(actor, tenantID, tenants); err != nil {
		return nil, err
	}
	if e.replayed(ctx, tenantID, "vendor", batchID) {
		return &Summary{Replayed: true}, nil
	}
	return e.run(ctx, tenantID, "vendor", len(records), func(i int) (bool, error) {
		return e.applyVendor(ctx, records[i])
	})
}

func (e *Engine) applyVendor(ctx context.Context, rec RemoteVendor) (bool, error) {
	local, err := e.resolveVendor(ctx, rec)
	if err != nil {
		return false, err
	}
	if local != nil {
		if !newerThan(rec.UpdatedAt, local.UpdatedAt) {
			return false, nil
		}
		updates := map[string]any{"updated_at": *rec.UpdatedAt}
		if rec.Name != nil {
			updates["name"] = *rec.Name
		}
		if rec.Email != nil {
			updates["email"] = *rec.Email
		}
		if rec.Phone != nil {
			updates["phone"] = *rec.Phone
		}
		if rec.Address != nil {
			updates["address"] = *rec.Address
		}
		if rec.TaxID != nil {
			updates["tax_id"] = *rec.TaxID
		}
		if err := e.vendors.Update(ctx, rec.TenantID, local.ID, updates); err != nil {
			return false, err
		}
		return true, nil
	}

	if rec.Name == nil || *rec.Name == "" {
		return false, fmt.Errorf("%w: vendor name required", shared.ErrValidation)
	}
	v := vendors.Vendor{
		TenantID: rec.TenantID,
		Name:     *rec.Name,
		Email:    rec.Email,
		Phone:    rec.Phone,
		Address:  rec.Address,
		TaxID:    rec.TaxID,
	}
	if rec.UpdatedAt != nil {
		v.UpdatedAt = *rec.UpdatedAt
	}
	if _, err := e.vendors.Create(ctx, v); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Engine) resolveVendor(ctx context.Context, rec RemoteVendor) (*vendors.Vendor, error) {
	if rec.ID != nil {
		local, err := e.vendors.Get(ctx, rec.TenantID, *rec.ID)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
		if local != nil {
			return local, nil
		}
	}
	if rec.Email != nil && *rec.Email != "" {
		local, err := e.vendors.FindByEmail(ctx, rec.TenantID, *rec.Email)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
		if local != nil {
			return local, nil
		}
	}
	if rec.Phone != nil && *rec.Phone != "" {
		local, err := e.vendors.FindByPhone(ctx, rec.TenantID, *rec.Phone)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
		if local != nil {
			return local, nil
		}
	}
	return nil, nil
}

// ApplyRemoteItems merges a batch of remote items.
func (e *Engine) ApplyRemoteItems(ctx context.Context, actor *shared.Actor, tenantID uuid.UUID, batchID string, records []RemoteItem) (*Summary, error) {
	tenants := make([]uuid.UUID, len(records))
	for i, r := range records {
		tenants[i] = r.TenantID
	}
	if err := e.precheck(actor, tenantID, tenants); err != nil {
		return nil, err
	}
	if e.replayed(ctx, tenantID, "item", batchID) {
		return &Summary{Replayed: true}, nil
	}
	return e.run(ctx, tenantID, "item", len(records), func(i int) (bool, error) {
		return e.applyItem(ctx, records[i])
	})
}

func (e *Engine) applyItem(ctx context.Context, rec RemoteItem) (bool, error) {
	local, err := e.resolveItem(ctx, rec)
	if err != nil {
		return false, err
	}
	if local != nil {
		if !newerThan(rec.UpdatedAt, local.UpdatedAt) {
			return false, nil
		}
		updates := map[string]any{"updated_at": *rec.UpdatedAt}
		if rec.Name != nil {
			updates["name"] = *rec.Name
		}
		if rec.SKU != nil {
			updates["sku"] = *rec.SKU
		}
		if rec.UnitPrice != nil {
			updates["unit_price"] = rec.UnitPrice.String()
		}
		if rec.Quantity != nil {
			updates["quantity"] = rec.Quantity.String()
		}
		if err := e.items.Update(ctx, rec.TenantID, local.ID, updates); err != nil {
			return false, err
		}
		return true, nil
	}

	if rec.Name == nil || *rec.Name == "" {
		return false, fmt.Errorf("%w: item name required", shared.ErrValidation)
	}
	i := items.Item{
		TenantID: rec.TenantID,
		Name:     *rec.Name,
		SKU:      rec.SKU,
	}
	if rec.UnitPrice != nil {
		i.UnitPrice = *rec.UnitPrice
	}
	if rec.Quantity != nil {
		i.Quantity = *rec.Quantity
	}
	if rec.UpdatedAt != nil {
		i.UpdatedAt = *rec.UpdatedAt
	}
	if _, err := e.items.Create(ctx, i); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Engine) resolveItem(ctx context.Context, rec RemoteItem) (*items.Item, error) {
	if rec.ID != nil {
		local, err := e.items.Get(ctx, rec.TenantID, *rec.ID)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
		if local != nil {
			return local, nil
		}
	}
	if rec.SKU != nil && *rec.SKU != "" {
		local, err := e.items.FindBySKU(ctx, rec.TenantID, *rec.SKU)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
		if local != nil {
			return local, nil
		}
	}
	return nil, nil
}

// ApplyRemoteInvoices merges a batch of remote invoices, embedded lines
// included. The billing service keeps totals, statuses and stock consistent
// inside each record's transaction.
func (e *Engine) ApplyRemoteInvoices(ctx context.Context, actor *shared.Actor, tenantID uuid.UUID, batchID string, records []billing.RemoteInvoice) (*Summary, error) {
	tenants := make([]uuid.UUID, len(records))
	for i, r := range records {
		tenants[i] = r.TenantID
	}
	if err := e.precheck(actor, tenantID, tenants); err != nil {
		return nil, err
	}
	if e.replayed(ctx, tenantID, "invoice", batchID) {
		return &Summary{Replayed: true}, nil
	}
	return e.run(ctx, tenantID, "invoice", len(records), func(i int) (bool, error) {
		return e.billing.ApplyRemoteInvoice(ctx, actor, records[i])
	})
}

// ApplyRemoteLines merges a batch of remote invoice lines.
func (e *Engine) ApplyRemoteLines(ctx context.Context, actor *shared.Actor, tenantID uuid.UUID, batchID string, records []billing.RemoteLine) (*Summary, error) {
	tenants := make([]uuid.UUID, len(records))
	for i, r := range records {
		tenants[i] = r.TenantID
	}
	if err := e.precheck(actor, tenantID, tenants); err != nil {
		return nil, err
	}
	if e.replayed(ctx, tenantID, "invoice_line", batchID) {
		return &Summary{Replayed: true}, nil
	}
	return e.run(ctx, tenantID, "invoice_line", len(records), func(i int) (bool, error) {
		return e.billing.ApplyRemoteLine(ctx, actor, records[i])
	})
}

// ApplyRemotePayments merges a batch of remote payments.
func (e *Engine) ApplyRemotePayments(ctx context.Context, actor *shared.Actor, tenantID uuid.UUID, batchID string, records []billing.RemotePayment) (*Summary, error) {
	tenants := make([]uuid.UUID, len(records))
	for i, r := range records {
		tenants[i] = r.TenantID
	}
	if err := e.precheck(actor, tenantID, tenants); err != nil {
		return nil, err
	}
	if e.replayed(ctx, tenantID, "payment", batchID) {
		return &Summary{Replayed: true}, nil
	}
	return e.run(ctx, tenantID, "payment", len(records), func(i int) (bool, error) {
		return e.billing.ApplyRemotePayment(ctx, actor, records[i])
	})
}
