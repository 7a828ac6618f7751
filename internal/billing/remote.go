package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Remote records are partial snapshots pushed by disconnected clients. Every
// field except the tenant is optional; identifiers are store-assigned, so a
// remote id only serves as a lookup hint, never gets reused for new rows.

type RemoteInvoice struct {
	ID            *uuid.UUID   `json:"id,omitempty"`
	TenantID      uuid.UUID    `json:"tenant_id"`
	CustomerID    *uuid.UUID   `json:"customer_id,omitempty"`
	InvoiceNumber *string      `json:"invoice_number,omitempty"`
	Date          *time.Time   `json:"date,omitempty"`
	DueDate       *time.Time   `json:"due_date,omitempty"`
	Currency      *string      `json:"currency,omitempty"`
	UpdatedAt     *time.Time   `json:"updated_at,omitempty"`
	Lines         []RemoteLine `json:"lines,omitempty"`
}

type RemoteLine struct {
	ID          *uuid.UUID       `json:"id,omitempty"`
	TenantID    uuid.UUID        `json:"tenant_id"`
	InvoiceID   *uuid.UUID       `json:"invoice_id,omitempty"`
	ItemID      *uuid.UUID       `json:"item_id,omitempty"`
	Description *string          `json:"description,omitempty"`
	Quantity    *decimal.Decimal `json:"quantity,omitempty"`
	UnitPrice   *decimal.Decimal `json:"unit_price,omitempty"`
	UpdatedAt   *time.Time       `json:"updated_at,omitempty"`
}

type RemotePayment struct {
	ID        *uuid.UUID       `json:"id,omitempty"`
	TenantID  uuid.UUID        `json:"tenant_id"`
	InvoiceID *uuid.UUID       `json:"invoice_id,omitempty"`
	Reference *string          `json:"reference,omitempty"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
	Method    *string          `json:"method,omitempty"`
	Date      *time.Time       `json:"date,omitempty"`
	PaidAt    *time.Time       `json:"paid_at,omitempty"`
	UpdatedAt *time.Time       `json:"updated_at,omitempty"`
}
