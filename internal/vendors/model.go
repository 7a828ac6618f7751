package vendors

import (
	"time"

	"github.com/google/uuid"

	"github.com/ledgerkite/ledgerkite/internal/shared"
)

// Vendor is a tenant-scoped supplier record.
// Natural dedupe key: (tenant_id, email) or (tenant_id, phone).
type Vendor struct {
	ID         uuid.UUID         `json:"id"`
	TenantID   uuid.UUID         `json:"tenant_id"`
	Name       string            `json:"name"`
	Email      *string           `json:"email,omitempty"`
	Phone      *string           `json:"phone,omitempty"`
	Address    *string           `json:"address,omitempty"`
	TaxID      *string           `json:"tax_id,omitempty"`
	SyncStatus shared.SyncStatus `json:"sync_status"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

type CreateVendorRequest struct {
	TenantID uuid.UUID `json:"tenant_id" validate:"required"`
	Name     string    `json:"name" validate:"required,max=200"`
	Email    *string   `json:"email,omitempty" validate:"omitempty,email"`
	Phone    *string   `json:"phone,omitempty" validate:"omitempty,max=50"`
	Address  *string   `json:"address,omitempty" validate:"omitempty,max=500"`
	TaxID    *string   `json:"tax_id,omitempty" validate:"omitempty,max=50"`
}

type UpdateVendorRequest struct {
	Name    *string `json:"name,omitempty" validate:"omitempty,max=200"`
	Email   *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone   *string `json:"phone,omitempty" validate:"omitempty,max=50"`
	Address *string `json:"address,omitempty" validate:"omitempty,max=500"`
	TaxID   *string `json:"tax_id,omitempty" validate:"omitempty,max=50"`
}

type ListVendorsRequest struct {
	TenantID uuid.UUID `json:"tenant_id" validate:"required"`
	Search   string    `json:"search,omitempty"`
	Page     int       `json:"page" validate:"gte=0"`
	PerPage  int       `json:"per_page" validate:"gte=0,lte=1000"`
}
