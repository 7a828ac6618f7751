package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgerkite/ledgerkite/internal/shared"
)

// InvoiceStatus only escalates DRAFT -> SENT -> PAID under automatic
// recalculation. Regression happens solely through payment deletion, which
// recomputes the status from scratch.
type InvoiceStatus string

const (
	StatusDraft InvoiceStatus = "DRAFT"
	StatusSent  InvoiceStatus = "SENT"
	StatusPaid  InvoiceStatus = "PAID"
)

// Invoice heads the financial graph of a tenant. Total and Status are
// derived: they are recomputed inside the same transaction as any line or
// payment mutation. Natural dedupe key: (tenant_id, invoice_number).
type Invoice struct {
	ID            uuid.UUID         `json:"id"`
	TenantID      uuid.UUID         `json:"tenant_id"`
	CustomerID    uuid.UUID         `json:"customer_id"`
	InvoiceNumber string            `json:"invoice_number"`
	Date          time.Time         `json:"date"`
	DueDate       *time.Time        `json:"due_date,omitempty"`
	Currency      string            `json:"currency"`
	Total         decimal.Decimal   `json:"total"`
	Status        InvoiceStatus     `json:"status"`
	SyncStatus    shared.SyncStatus `json:"sync_status"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// InvoiceLine is owned by its invoice. Its existence always implies an
// already-applied stock decrement on the referenced item; deleting it
// restores the stock.
type InvoiceLine struct {
	ID          uuid.UUID         `json:"id"`
	TenantID    uuid.UUID         `json:"tenant_id"`
	InvoiceID   uuid.UUID         `json:"invoice_id"`
	ItemID      uuid.UUID         `json:"item_id"`
	Description *string           `json:"description,omitempty"`
	Quantity    decimal.Decimal   `json:"quantity"`
	UnitPrice   decimal.Decimal   `json:"unit_price"`
	LineTotal   decimal.Decimal   `json:"line_total"`
	SyncStatus  shared.SyncStatus `json:"sync_status"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Payment settles part or all of an invoice. Natural dedupe key:
// (tenant_id, reference).
type Payment struct {
	ID         uuid.UUID         `json:"id"`
	TenantID   uuid.UUID         `json:"tenant_id"`
	InvoiceID  uuid.UUID         `json:"invoice_id"`
	Reference  string            `json:"reference"`
	Amount     decimal.Decimal   `json:"amount"`
	Method     *string           `json:"method,omitempty"`
	Date       time.Time         `json:"date"`
	PaidAt     *time.Time        `json:"paid_at,omitempty"`
	SyncStatus shared.SyncStatus `json:"sync_status"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}
