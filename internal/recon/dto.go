package recon

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Remote records are partial snapshots from disconnected clients: optional
// id, optional natural-key fields, optional updated_at. The financial kinds
// (invoice, line, payment) are declared in the billing package next to the
// code that applies them.

type RemoteCustomer struct {
	ID        *uuid.UUID `json:"id,omitempty"`
	TenantID  uuid.UUID  `json:"tenant_id"`
	Name      *string    `json:"name,omitempty"`
	Email     *string    `json:"email,omitempty"`
	Phone     *string    `json:"phone,omitempty"`
	Address   *string    `json:"address,omitempty"`
	TaxID     *string    `json:"tax_id,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

type RemoteVendor struct {
	ID        *uuid.UUID `json:"id,omitempty"`
	TenantID  uuid.UUID  `json:"tenant_id"`
	Name      *string    `json:"name,omitempty"`
	Email     *string    `json:"email,omitempty"`
	Phone     *string    `json:"phone,omitempty"`
	Address   *string    `json:"address,omitempty"`
	TaxID     *string    `json:"tax_id,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

type RemoteItem struct {
	ID        *uuid.UUID       `json:"id,omitempty"`
	TenantID  uuid.UUID        `json:"tenant_id"`
	Name      *string          `json:"name,omitempty"`
	SKU       *string          `json:"sku,omitempty"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
	Quantity  *decimal.Decimal `json:"quantity,omitempty"`
	UpdatedAt *time.Time       `json:"updated_at,omitempty"`
}
