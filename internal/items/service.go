package items

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgerkite/ledgerkite/internal/shared"
)

// TenantChecker verifies the owning tenant exists before a create.
type TenantChecker interface {
	EnsureExists(ctx context.Context, id uuid.UUID) error
}

// Cascader removes an item together with the invoice lines that reference it,
// recomputing affected invoices in the same transaction. Implemented by the
// billing service.
type Cascader interface {
	PurgeItem(ctx context.Context, tenantID, itemID uuid.UUID) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates item operations.
type Service struct {
	repo    Repository
	tenants TenantChecker
	cascade Cascader
	audit   AuditPort
}

// NewService builds Service.
func NewService(repo Repository, tenants TenantChecker, cascade Cascader, audit AuditPort) *Service {
	return &Service{repo: repo, tenants: tenants, cascade: cascade, audit: audit}
}

// Create inserts an item. Creation is idempotent on the natural key: a
// tenant-local row with the same SKU is returned as-is.
func (s *Service) Create(ctx context.Context, actor *shared.Actor, req CreateItemRequest) (*Item, error) {
	if err := shared.RequireTenantMatch(actor, req.TenantID); err != nil {
		return nil, err
	}
	if s.tenants != nil {
		if err := s.tenants.EnsureExists(ctx, req.TenantID); err != nil {
			return nil, err
		}
	}
	if req.Name == "" {
		return nil, fmt.Errorf("%w: name required", shared.ErrValidation)
	}
	if req.UnitPrice.IsNegative() {
		return nil, fmt.Errorf("%w: unit price must not be negative", shared.ErrValidation)
	}

	if req.SKU != nil && *req.SKU != "" {
		existing, err := s.repo.FindBySKU(ctx, req.TenantID, *req.SKU)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("dedupe by sku: %w", err)
		}
		if existing != nil {
			return existing, nil
		}
	}

	created, err := s.repo.Create(ctx, Item{
		TenantID:  req.TenantID,
		Name:      req.Name,
		SKU:       req.SKU,
		UnitPrice: req.UnitPrice,
		Quantity:  req.Quantity,
	})
	if err != nil {
		return nil, fmt.Errorf("create item: %w", err)
	}
	s.recordAudit(ctx, actor, "item.create", created)
	return created, nil
}

// Get returns one item within the actor's tenant.
func (s *Service) Get(ctx context.Context, actor *shared.Actor, tenantID, id uuid.UUID) (*Item, error) {
	if err := shared.RequireTenantMatch(actor, tenantID); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, tenantID, id)
}

// List returns a paginated, searchable item listing.
func (s *Service) List(ctx context.Context, actor *shared.Actor, req ListItemsRequest) ([]Item, shared.Pagination, error) {
	if err := shared.RequireTenantMatch(actor, req.TenantID); err != nil {
		return nil, shared.Pagination{}, err
	}
	out, total, err := s.repo.List(ctx, req)
	if err != nil {
		return nil, shared.Pagination{}, fmt.Errorf("list items: %w", err)
	}
	return out, shared.NewPagination(req.Page, req.PerPage, total), nil
}

// Update patches an item. Changing the SKU rewrites the natural key and
// requires an admin role; the new SKU is checked for uniqueness excluding the
// row itself.
func (s *Service) Update(ctx context.Context, actor *shared.Actor, tenantID, id uuid.UUID, req UpdateItemRequest) (*Item, error) {
	if err := shared.RequireTenantMatch(actor, tenantID); err != nil {
		return nil, err
	}
	existing, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if req.SKU != nil && !equalPtr(req.SKU, existing.SKU) {
		if err := shared.RequireAdmin(actor); err != nil {
			return nil, err
		}
		if *req.SKU != "" {
			other, err := s.repo.FindBySKU(ctx, tenantID, *req.SKU)
			if err != nil && !errors.Is(err, shared.ErrNotFound) {
				return nil, err
			}
			if other != nil && other.ID != id {
				return nil, fmt.Errorf("%w: sku already in use", shared.ErrConflict)
			}
		}
	}
	if req.UnitPrice != nil && req.UnitPrice.IsNegative() {
		return nil, fmt.Errorf("%w: unit price must not be negative", shared.ErrValidation)
	}

	updates := make(map[string]any)
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.SKU != nil {
		updates["sku"] = *req.SKU
	}
	if req.UnitPrice != nil {
		updates["unit_price"] = req.UnitPrice.String()
	}
	if len(updates) == 0 {
		return existing, nil
	}

	if err := s.repo.Update(ctx, tenantID, id, updates); err != nil {
		return nil, fmt.Errorf("update item: %w", err)
	}
	s.recordAudit(ctx, actor, "item.update", existing)
	return s.repo.Get(ctx, tenantID, id)
}

// AdjustQuantity moves stock by delta. A move that would leave the quantity
// negative fails with the insufficient-stock error unless the actor is an
// admin, in which case the excursion is an authorized backorder.
func (s *Service) AdjustQuantity(ctx context.Context, actor *shared.Actor, tenantID, id uuid.UUID, delta decimal.Decimal) (*Item, error) {
	if err := shared.RequireTenantMatch(actor, tenantID); err != nil {
		return nil, err
	}
	allowNegative := actor != nil && actor.IsAdmin()
	updated, err := s.repo.AdjustQuantity(ctx, tenantID, id, delta, allowNegative)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor, "item.adjust", updated)
	return updated, nil
}

// Delete removes an item. With invoice lines referencing it the delete
// refuses unless force is set and the actor is a super admin; the forced path
// delegates to the billing cascade so affected invoices recompute in one
// transaction.
func (s *Service) Delete(ctx context.Context, actor *shared.Actor, tenantID, id uuid.UUID, force bool) (*Item, error) {
	if err := shared.RequireTenantMatch(actor, tenantID); err != nil {
		return nil, err
	}
	existing, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	deps, err := s.repo.CountLines(ctx, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("count item lines: %w", err)
	}
	if deps > 0 {
		if !force {
			return nil, fmt.Errorf("%w: %d invoice lines", shared.ErrDependencyExists, deps)
		}
		if err := shared.RequireSuperAdmin(actor); err != nil {
			return nil, err
		}
		if s.cascade == nil {
			return nil, errors.New("items: cascade not configured")
		}
		if err := s.cascade.PurgeItem(ctx, tenantID, id); err != nil {
			return nil, fmt.Errorf("purge item: %w", err)
		}
		s.recordAudit(ctx, actor, "item.delete.force", existing)
		return existing, nil
	}

	if err := s.repo.Delete(ctx, tenantID, id); err != nil {
		return nil, fmt.Errorf("delete item: %w", err)
	}
	s.recordAudit(ctx, actor, "item.delete", existing)
	return existing, nil
}

// GetUnsynced lists rows still pending outbound push.
func (s *Service) GetUnsynced(ctx context.Context, actor *shared.Actor, tenantID uuid.UUID, limit int) ([]Item, error) {
	if err := shared.RequireTenantMatch(actor, tenantID); err != nil {
		return nil, err
	}
	return s.repo.ListUnsynced(ctx, tenantID, limit)
}

// MarkSynced flips PENDING rows to SYNCED and reports how many changed.
func (s *Service) MarkSynced(ctx context.Context, actor *shared.Actor, tenantID uuid.UUID, ids []uuid.UUID) (int, error) {
	if err := shared.RequireTenantMatch(actor, tenantID); err != nil {
		return 0, err
	}
	return s.repo.MarkSynced(ctx, tenantID, ids)
}

func (s *Service) recordAudit(ctx context.Context, actor *shared.Actor, action string, i *Item) {
	if s.audit == nil || i == nil {
		return
	}
	log := shared.AuditLog{Action: action, Entity: "item", EntityID: i.ID.String(), TenantID: i.TenantID}
	if actor != nil {
		log.ActorID = actor.ID
	}
	_ = s.audit.Record(ctx, log)
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
