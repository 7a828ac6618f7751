package customers

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

// Cascader removes a customer together with its financial dependents in one
// transaction. Implemented by the billing service, which owns the financial
// graph.
type Cascader interface {
	PurgeCustomer(ctx context.Context, tenantID, customerID uuid.UUID) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates customer operations.
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

// Create inserts a customer. Creation is idempotent on the natural key: a
// tenant-local row with the same email or phone is returned as-is.
func (s *Service) Create(ctx context.Context, actor *shared.Actor, req CreateCustomerRequest) (*Customer, error) {
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

	if existing, err := s.dedupe(ctx, req.TenantID, req.Email, req.Phone); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	created, err := s.repo.Create(ctx, Customer{
		TenantID: req.TenantID,
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Address:  req.Address,
		TaxID:    req.TaxID,
	})
	if err != nil {
		return nil, fmt.Errorf("create customer: %w", err)
	}
	s.recordAudit(ctx, actor, "customer.create", created)
	return created, nil
}

// Get returns one customer within the actor's tenant.
func (s *Service) Get(ctx context.Context, actor *shared.Actor, tenantID, id uuid.UUID) (*Customer, error) {
	if err := shared.RequireTenantMatch(actor, tenantID); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, tenantID, id)
}

// List returns a paginated, searchable customer listing.
func (s *Service) List(ctx context.Context, actor *shared.Actor, req ListCustomersRequest) ([]Customer, shared.Pagination, error) {
	if err := shared.RequireTenantMatch(actor, req.TenantID); err != nil {
		return nil, shared.Pagination{}, err
	}
	items, total, err := s.repo.List(ctx, req)
	if err != nil {
		return nil, shared.Pagination{}, fmt.Errorf("list customers: %w", err)
	}
	return items, shared.NewPagination(req.Page, req.PerPage, total), nil
}

// Update patches a customer. Changing the tax id requires an admin role;
// email and phone are re-checked for uniqueness excluding the row itself.
func (s *Service) Update(ctx context.Context, actor *shared.Actor, tenantID, id uuid.UUID, req UpdateCustomerRequest) (*Customer, error) {
	if err := shared.RequireTenantMatch(actor, tenantID); err != nil {
		return nil, err
	}
	existing, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if req.TaxID != nil && !equalPtr(req.TaxID, existing.TaxID) {
		if err := shared.RequireAdmin(actor); err != nil {
			return nil, err
		}
	}
	if req.Email != nil {
		if err := s.checkUnique(ctx, tenantID, id, s.repo.FindByEmail, *req.Email, "email"); err != nil {
			return nil, err
		}
	}
	if req.Phone != nil {
		if err := s.checkUnique(ctx, tenantID, id, s.repo.FindByPhone, *req.Phone, "phone"); err != nil {
			return nil, err
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
		return nil, fmt.Errorf("update customer: %w", err)
	}
	s.recordAudit(ctx, actor, "customer.update", existing)
	return s.repo.Get(ctx, tenantID, id)
}

// Delete removes a customer. With live invoices it refuses unless force is
// set and the actor is a super admin; the forced path delegates to the
// billing cascade so stock and payments unwind in one transaction.
func (s *Service) Delete(ctx context.Context, actor *shared.Actor, tenantID, id uuid.UUID, force bool) (*Customer, error) {
	if err := shared.RequireTenantMatch(actor, tenantID); err != nil {
		return nil, err
	}
	existing, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	deps, err := s.repo.CountInvoices(ctx, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("count customer invoices: %w", err)
	}
	if deps > 0 {
		if !force {
			return nil, fmt.Errorf("%w: %d invoices", shared.ErrDependencyExists, deps)
		}
		if err := shared.RequireSuperAdmin(actor); err != nil {
			return nil, err
		}
		if s.cascade == nil {
			return nil, errors.New("customers: cascade not configured")
		}
		if err := s.cascade.PurgeCustomer(ctx, tenantID, id); err != nil {
			return nil, fmt.Errorf("purge customer: %w", err)
		}
		s.recordAudit(ctx, actor, "customer.delete.force", existing)
		return existing, nil
	}

	if err := s.repo.Delete(ctx, tenantID, id); err != nil {
		return nil, fmt.Errorf("delete customer: %w", err)
	}
	s.recordAudit(ctx, actor, "customer.delete", existing)
	return existing, nil
}

// GetUnsynced lists rows still pending outbound push.
func (s *Service) GetUnsynced(ctx context.Context, actor *shared.Actor, tenantID uuid.UUID, limit int) ([]Customer, error) {
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

func (s *Service) dedupe(ctx context.Context, tenantID uuid.UUID, email, phone *string) (*Customer, error) {
	if email != nil && *email != "" {
		existing, err := s.repo.FindByEmail(ctx, tenantID, *email)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("dedupe by email: %w", err)
		}
		if existing != nil {
			return existing, nil
		}
	}
	if phone != nil && *phone != "" {
		existing, err := s.repo.FindByPhone(ctx, tenantID, *phone)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("dedupe by phone: %w", err)
		}
		if existing != nil {
			return existing, nil
		}
	}
	return nil, nil
}

type finder func(ctx context.Context, tenantID uuid.UUID, value string) (*Customer, error)

func (s *Service) checkUnique(ctx context.Context, tenantID, selfID uuid.UUID, find finder, value, field string) error {
	if value == "" {
		return nil
	}
	other, err := find(ctx, tenantID, value)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return err
	}
	if other != nil && other.ID != selfID {
		return fmt.Errorf("%w: %s already in use", shared.ErrConflict, field)
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actor *shared.Actor, action string, c *Customer) {
	if s.audit == nil || c == nil {
		return
	}
	log := shared.AuditLog{Action: action, Entity: "customer", EntityID: c.ID.String(), TenantID: c.TenantID}
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
