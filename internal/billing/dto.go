package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CreateInvoiceRequest struct {
	TenantID      uuid.UUID           `json:"tenant_id" validate:"required"`
	CustomerID    uuid.UUID           `json:"customer_id" validate:"required"`
	InvoiceNumber string              `json:"invoice_number" validate:"required,max=60"`
	Date          time.Time           `json:"date"`
	DueDate       *time.Time          `json:"due_date,omitempty"`
	Currency      string              `json:"currency" validate:"required,len=3"`
	Lines         []CreateLineRequest `json:"lines,omitempty" validate:"dive"`
}

type UpdateInvoiceRequest struct {
	InvoiceNumber *string    `json:"invoice_number,omitempty" validate:"omitempty,max=60"`
	Date          *time.Time `json:"date,omitempty"`
	DueDate       *time.Time `json:"due_date,omitempty"`
	Currency      *string    `json:"currency,omitempty" validate:"omitempty,len=3"`
}

type ListInvoicesRequest struct {
	TenantID uuid.UUID `json:"tenant_id" validate:"required"`
	Search   string    `json:"search,omitempty"`
	Status   string    `json:"status,omitempty" validate:"omitempty,oneof=DRAFT SENT PAID"`
	Page     int       `json:"page" validate:"gte=0"`
	PerPage  int       `json:"per_page" validate:"gte=0,lte=1000"`
}

// CreateLineRequest leaves UnitPrice optional; when absent the item's current
// unit price is snapshotted onto the line.
type CreateLineRequest struct {
	ItemID      uuid.UUID        `json:"item_id" validate:"required"`
	Quantity    decimal.Decimal  `json:"quantity"`
	UnitPrice   *decimal.Decimal `json:"unit_price,omitempty"`
	Description *string          `json:"description,omitempty" validate:"omitempty,max=500"`
}

type UpdateLineRequest struct {
	Quantity    *decimal.Decimal `json:"quantity,omitempty"`
	UnitPrice   *decimal.Decimal `json:"unit_price,omitempty"`
	Description *string          `json:"description,omitempty" validate:"omitempty,max=500"`
}

type CreatePaymentRequest struct {
	InvoiceID uuid.UUID       `json:"invoice_id" validate:"required"`
	Reference string          `json:"reference" validate:"required,max=80"`
	Amount    decimal.Decimal `json:"amount"`
	Method    *string         `json:"method,omitempty" validate:"omitempty,max=40"`
	Date      time.Time       `json:"date"`
	PaidAt    *time.Time      `json:"paid_at,omitempty"`
}

type UpdatePaymentRequest struct {
	Reference *string          `json:"reference,omitempty" validate:"omitempty,max=80"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
	Method    *string          `json:"method,omitempty" validate:"omitempty,max=40"`
	PaidAt    *time.Time       `json:"paid_at,omitempty"`
}
