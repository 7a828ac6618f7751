package vendors

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ledgerkite/ledgerkite/internal/shared"
)

// TenantChecker verifies the owning tenant exists before a create.
type TenantChecker interface {
	EnsureExists(ctx context.Context, id uuid.UUID) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates vendor operations.
type Service struct {
	repo    Repository
	tenants TenantChecker
	audit   AuditPort
}

// NewService builds Service.
func NewService(repo Repository, tenants TenantChecker, audit AuditPort) *Service {
	return &Service{repo: repo, tenants: tenants, audit: audit}
}

// Create inserts a vendor, idempotent on the email or phone natural key.
func (s *Service) Create(ctx context.Context, actor *shared.Actor, req CreateVendorRequest) (*Vendor, error) {
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

	if req.Email != nil && *req.Email != "" {
		existing, err := s.repo.FindByEmail(ctx, req.TenantID, *req.Email)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("dedupe by email: %w", err)
		}
		if existing != nil {
			return existing, nil
		}
	}
	if req.Phone != nil && *req.Phone != "" {
		existing, err := s.repo.FindByPhone(ctx, req.TenantID, *req.Phone)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("dedupe by phone: %w", err)
		}
		if existing != nil {
			return existing, nil
		}
	}

	created, err := s.repo.Create(ctx, Vendor{
		TenantID: req.TenantID,
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Address:  req.Address,
		TaxID:    req.TaxID,
	})
	if err != nil {
		return nil, fmt.Errorf("create vendor: %w", err)
	}
	s.recordAudit(ctx, actor, "vendor.create", created)
	return created, nil
}

// Get returns one vendor within the actor's tenant.
func (s *Service) Get(ctx context.Context, actor *shared.Actor, tenantID, id uuid.UUID) (*Vendor, error) {
	if err := shared.RequireTenantMatch(actor, tenantID); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, tenantID, id)
}

// List returns a paginated, searchable vendor listing.
func (s *Service) List(ctx context.Context, actor *shared.Actor, req ListVendorsRequest) ([]Vendor, shared.Pagination, error) {
	if err := shared.RequireTenantMatch(actor, req.TenantID); err != nil {
		return nil, shared.Pagination{}, err
	}
	items, total, err := s.repo.List(ctx, req)
	if err != nil {
		return nil, shared.Pagination{}, fmt.Errorf("list vendors: %w", err)
	}
	return items, shared.NewPagination(req.Page, req.PerPage, total), nil
}

// Update patches a vendor. Tax id changes require an admin role.
func (s *Service) Update(ctx context.Context, actor *shared.Actor, tenantID, id uuid.UUID, req UpdateVendorRequest) (*Vendor, error) {
	if err := shared.RequireTenantMatch(actor, tenantID); err != nil {
		return nil, err
	}
	existing, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if req.TaxID != nil && (existing.TaxID == nil || *existing.TaxID != *req.TaxID) {
		if err := shared.RequireAdmin(actor); err != nil {
			return nil, err
		}
	}
	if req.Email != nil && *req.Email != "" {
		other, err := s.repo.FindByEmail(ctx, tenantID, *req.Email)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
		if other != nil && other.ID != id {
			return nil, fmt.Errorf("%w: email already in use", shared.ErrConflict)
		}
	}
	if req.Phone != nil && *req.Phone != "" {
		other, err := s.repo.FindByPhone(ctx, tenantID, *req.Phone)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
		if other != nil && other.ID != id {
			return nil, fmt.Errorf("%w: phone already in use", shared.ErrConflict)
		}
	}

	updates := make(map[string]any)
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Email != nil {
		updates["email"] = *req.Email
	}
	if req.Phone != nil {
		updates["phone"] = *req.Phone
	}
	if req.Address != nil {
		updates["address"] = *req.Address
	}
	if req.TaxID != nil {
		updates["tax_id"] = *req.TaxID
	}
	if len(updates) == 0 {
		return existing, nil
	}

	if err := s.repo.Update(ctx, tenantID, id, updates); err != nil {
		return nil, fmt.Errorf("update vendor: %w", err)
	}
	s.recordAudit(ctx, actor, "vendor.update", existing)
	return s.repo.Get(ctx, tenantID, id)
}

// Delete removes a vendor. Vendors carry no financial dependents.
func (s *Service) Delete(ctx context.Context, actor *shared.Actor, tenantID, id uuid.UUID) (*Vendor, error) {
	if err := shared.RequireTenantMatch(actor, tenantID); err != nil {
		return nil, err
	}
	existing, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Delete(ctx, tenantID, id); err != nil {
		return nil, fmt.Errorf("delete vendor: %w", err)
	}
	s.recordAudit(ctx, actor, "vendor.delete", existing)
	return existing, nil
}

// GetUnsynced lists rows still pending outbound push.
func (s *Service) GetUnsynced(ctx context.Context, actor *shared.Actor, tenantID uuid.UUID, limit int) ([]Vendor, error) {
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

func (s *Service) recordAudit(ctx context.Context, actor *shared.Actor, action string, v *Vendor) {
	if s.audit == nil || v == nil {
		return
	}
	log := shared.AuditLog{Action: action, Entity: "vendor", EntityID: v.ID.String(), TenantID: v.TenantID}
	if actor != nil {
		log.ActorID = actor.ID
	}
	_ = s.audit.Record(ctx, log)
}
