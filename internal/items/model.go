package items

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgerkite/ledgerkite/internal/shared"
)

// Item is a tenant-scoped stock item. Quantity reflects the original stock
// minus all outstanding invoice line quantities; it only goes negative when
// an admin explicitly authorizes the excursion (a backorder signal).
// Natural dedupe key: (tenant_id, sku).
type Item struct {
	ID         uuid.UUID         `json:"id"`
	TenantID   uuid.UUID         `json:"tenant_id"`
	Name       string            `json:"name"`
	SKU        *string           `json:"sku,omitempty"`
	UnitPrice  decimal.Decimal   `json:"unit_price"`
	Quantity   decimal.Decimal   `json:"quantity"`
	SyncStatus shared.SyncStatus `json:"sync_status"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

type CreateItemRequest struct {
	TenantID  uuid.UUID       `json:"tenant_id" validate:"required"`
	Name      string          `json:"name" validate:"required,max=200"`
	SKU       *string         `json:"sku,omitempty" validate:"omitempty,max=80"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  decimal.Decimal `json:"quantity"`
}

type UpdateItemRequest struct {
	Name      *string          `json:"name,omitempty" validate:"omitempty,max=200"`
	SKU       *string          `json:"sku,omitempty" validate:"omitempty,max=80"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
}

type ListItemsRequest struct {
	TenantID uuid.UUID `json:"tenant_id" validate:"required"`
	Search   string    `json:"search,omitempty"`
	Page     int       `json:"page" validate:"gte=0"`
	PerPage  int       `json:"per_page" validate:"gte=0,lte=1000"`
}
