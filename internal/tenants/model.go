package tenants

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is the isolation boundary owning all other records. Once child
// records exist the only permitted mutation is a rename.
type Tenant struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateTenantRequest carries input for tenant creation.
type CreateTenantRequest struct {
	Name string `json:"name" validate:"required,max=200"`
	Slug string `json:"slug" validate:"required,max=80,lowercase"`
}

// RenameTenantRequest carries the new display name.
type RenameTenantRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}
