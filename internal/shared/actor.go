package shared

import (
	"context"

	"github.com/google/uuid"
)

// Role enumerates caller roles supplied by the upstream auth layer.
type Role string

const (
	RoleUser       Role = "USER"
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPER_ADMIN"
)

// Actor identifies the authenticated caller for one request. It is resolved
// by the external authentication collaborator and never persisted here.
type Actor struct {
	ID       uuid.UUID
	Role     Role
	TenantID uuid.UUID
}

// IsAdmin reports whether the actor carries an admin-level role.
func (a *Actor) IsAdmin() bool {
	return a != nil && (a.Role == RoleAdmin || a.Role == RoleSuperAdmin)
}

// IsSuperAdmin reports whether the actor is a platform super admin.
func (a *Actor) IsSuperAdmin() bool {
	return a != nil && a.Role == RoleSuperAdmin
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context, nil when absent.
func ActorFromContext(ctx context.Context) *Actor {
	actor, _ := ctx.Value(actorContextKey{}).(*Actor)
	return actor
}
