package tenants

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ledgerkite/ledgerkite/internal/shared"
)

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates tenant operations.
type Service struct {
	repo  Repository
	audit AuditPort
}

// NewService builds Service.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// Create registers a new tenant. Slug is the natural key; a matching
// existing tenant is returned instead of a duplicate.
func (s *Service) Create(ctx context.Context, actor *shared.Actor, req CreateTenantRequest) (*Tenant, error) {
	if err := shared.RequireSuperAdmin(actor); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetBySlug(ctx, req.Slug)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("check existing tenant: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	tenant, err := s.repo.Create(ctx, Tenant{Name: req.Name, Slug: req.Slug})
	if err != nil {
		return nil, fmt.Errorf("create tenant: %w", err)
	}
	s.recordAudit(ctx, actor, "tenant.create", tenant.ID)
	return tenant, nil
}

// Get returns the tenant, tenant-scoped for non super admins.
func (s *Service) Get(ctx context.Context, actor *shared.Actor, id uuid.UUID) (*Tenant, error) {
	if err := shared.RequireTenantMatch(actor, id); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// List returns tenants; restricted to super admins since it crosses tenant
// lines.
func (s *Service) List(ctx context.Context, actor *shared.Actor, search string, page shared.Pagination) ([]Tenant, shared.Pagination, error) {
	if err := shared.RequireSuperAdmin(actor); err != nil {
		return nil, page, err
	}
	items, total, err := s.repo.List(ctx, search, page.PerPage, page.Offset())
	if err != nil {
		return nil, page, fmt.Errorf("list tenants: %w", err)
	}
	return items, shared.NewPagination(page.Page, page.PerPage, total), nil
}

// EnsureExists fails with ErrNotFound when the tenant row is absent.
func (s *Service) EnsureExists(ctx context.Context, id uuid.UUID) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	return nil
}

// Rename changes the display name, the only mutation permitted once child
// records exist.
func (s *Service) Rename(ctx context.Context, actor *shared.Actor, id uuid.UUID, req RenameTenantRequest) (*Tenant, error) {
	if err := shared.RequireTenantMatch(actor, id); err != nil {
		return nil, err
	}
	if err := shared.RequireAdmin(actor); err != nil {
		return nil, err
	}
	if err := s.repo.Rename(ctx, id, req.Name); err != nil {
		return nil, fmt.Errorf("rename tenant: %w", err)
	}
	s.recordAudit(ctx, actor, "tenant.rename", id)
	return s.repo.Get(ctx, id)
}

// Delete removes a tenant. With live children it refuses unless force is set
// and the actor is a super admin; the forced path removes all six child
// kinds and the tenant in a single transaction.
func (s *Service) Delete(ctx context.Context, actor *shared.Actor, id uuid.UUID, force bool) (*Tenant, error) {
	tenant, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := shared.RequireTenantMatch(actor, id); err != nil {
		return nil, err
	}
	if err := shared.RequireAdmin(actor); err != nil {
		return nil, err
	}

	hasChildren, err := s.repo.HasChildren(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("check tenant children: %w", err)
	}
	if !hasChildren {
		if err := s.repo.Delete(ctx, id); err != nil {
			return nil, fmt.Errorf("delete tenant: %w", err)
		}
		s.recordAudit(ctx, actor, "tenant.delete", id)
		return tenant, nil
	}

	if !force {
		return nil, fmt.Errorf("%w: tenant has records", shared.ErrDependencyExists)
	}
	if err := shared.RequireSuperAdmin(actor); err != nil {
		return nil, err
	}
	if err := s.repo.DeleteCascade(ctx, id); err != nil {
		return nil, fmt.Errorf("cascade delete tenant: %w", err)
	}
	s.recordAudit(ctx, actor, "tenant.delete.force", id)
	return tenant, nil
}

func (s *Service) recordAudit(ctx context.Context, actor *shared.Actor, action string, id uuid.UUID) {
	if s.audit == nil {
		return
	}
	log := shared.AuditLog{Action: action, Entity: "tenant", EntityID: id.String(), TenantID: id}
	if actor != nil {
		log.ActorID = actor.ID
	}
	_ = s.audit.Record(ctx, log)
}
