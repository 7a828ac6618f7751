package customers

import (
	"time"

	"github.com/google/uuid"

	"github.com/ledgerkite/ledgerkite/internal/shared"
)

// Customer is a tenant-scoped party that invoices are issued to.
// Natural dedupe key: (tenant_id, email) or (tenant_id, phone).
type Customer struct {
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
