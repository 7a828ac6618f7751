package shared

import (
	"fmt"

	"github.com/google/uuid"
)

// Tenant boundary guards. Pure checks: no side effects, callable from any
// component. A nil actor is treated as an internal caller and passes the
// tenant check; the transport layer never produces one.

// RequireTenantMatch fails unless the actor belongs to the tenant or is a
// super admin.
func RequireTenantMatch(actor *Actor, tenantID uuid.UUID) error {
	if actor == nil {
		return nil
	}
	if actor.IsSuperAdmin() {
		return nil
	}
	if actor.TenantID != tenantID {
		return fmt.Errorf("%w: actor tenant %s", ErrTenantMismatch, actor.TenantID)
	}
	return nil
}

// RequireAdmin fails unless the actor's role is Admin or Super_Admin.
func RequireAdmin(actor *Actor) error {
	if !actor.IsAdmin() {
		return fmt.Errorf("%w: admin role required", ErrForbidden)
	}
	return nil
}

// RequireSuperAdmin fails unless the actor is a platform super admin.
func RequireSuperAdmin(actor *Actor) error {
	if !actor.IsSuperAdmin() {
		return fmt.Errorf("%w: super admin role required", ErrForbidden)
	}
	return nil
}
