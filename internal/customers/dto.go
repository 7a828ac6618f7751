package customers

import "github.com/google/uuid"

type CreateCustomerRequest struct {
	TenantID uuid.UUID `json:"tenant_id" validate:"required"`
	Name     string    `json:"name" validate:"required,max=200"`
	Email    *string   `json:"email,omitempty" validate:"omitempty,email"`
	Phone    *string   `json:"phone,omitempty" validate:"omitempty,max=50"`
	Address  *string   `json:"address,omitempty" validate:"omitempty,max=500"`
	TaxID    *string   `json:"tax_id,omitempty" validate:"omitempty,max=50"`
}

type UpdateCustomerRequest struct {
	Name    *string `json:"name,omitempty" validate:"omitempty,max=200"`
	Email   *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone   *string `json:"phone,omitempty" validate:"omitempty,max=50"`
	Address *string `json:"address,omitempty" validate:"omitempty,max=500"`
	TaxID   *string `json:"tax_id,omitempty" validate:"omitempty,max=50"`
}

type ListCustomersRequest struct {
	TenantID uuid.UUID `json:"tenant_id" validate:"required"`
	Search   string    `json:"search,omitempty"`
	Page     int       `json:"page" validate:"gte=0"`
	PerPage  int       `json:"per_page" validate:"gte=0,lte=1000"`
}
