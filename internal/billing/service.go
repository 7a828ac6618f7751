package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/ledgerkite/ledgerkite/internal/shared"
)

// TenantChecker verifies the owning tenant exists before a create.
type TenantChecker interface {
	EnsureExists(ctx context.Context, id uuid.UUID) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns the financial graph: invoices, their lines and payments, and
// the stock side effects of line mutations. Every mutation that touches
// derived state runs the recompute inside the same transaction.
type Service struct {
	repo    Repository
	tenants TenantChecker
	audit   AuditPort
}

// NewService builds Service.
func NewService(repo Repository, tenants TenantChecker, audit AuditPort) *Service {
	return &Service{repo: repo, tenants: tenants, audit: audit}
}

// CreateInvoice inserts an invoice, optionally with embedded lines. Creation
// is idempotent on the invoice number; embedded lines decrement stock and
// the derived total and status are computed before the transaction commits.
func (s *Service) CreateInvoice(ctx context.Context, actor *shared.Actor, req CreateInvoiceRequest) (*Invoice, error) {
	if err := shared.RequireTenantMatch(actor, req.TenantID); err != nil {
		return nil, err
	}
	if s.tenants != nil {
		if err := s.tenants.EnsureExists(ctx, req.TenantID); err != nil {
			return nil, err
		}
	}
	if req.InvoiceNumber == "" {
		return nil, fmt.Errorf("%w: invoice number required", shared.ErrValidation)
	}
	if _, err := currency.ParseISO(req.Currency); err != nil {
		return nil, fmt.Errorf("%w: unknown currency %q", shared.ErrValidation, req.Currency)
	}

	existing, err := s.repo.FindInvoiceByNumber(ctx, req.TenantID, req.InvoiceNumber)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("dedupe by invoice number: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	allowNegative := actor != nil && actor.IsAdmin()
	var created *Invoice
	err = s.repo.WithTx(ctx, func(tx TxRepository) error {
		ok, err := tx.CustomerExists(ctx, req.TenantID, req.CustomerID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("customer %s: %w", req.CustomerID, shared.ErrNotFound)
		}

		inv, err := tx.InsertInvoice(ctx, Invoice{
			TenantID:      req.TenantID,
			CustomerID:    req.CustomerID,
			InvoiceNumber: req.InvoiceNumber,
			Date:          req.Date,
			DueDate:       req.DueDate,
			Currency:      req.Currency,
			Total:         decimal.Zero,
			Status:        StatusDraft,
		})
		if err != nil {
			return err
		}

		for _, lr := range req.Lines {
			if _, err := addLineTx(ctx, tx, req.TenantID, inv.ID, lr, allowNegative); err != nil {
				return err
			}
		}
		if len(req.Lines) > 0 {
			if inv, err = recalcInvoice(ctx, tx, req.TenantID, inv.ID, false); err != nil {
				return err
			}
		}
		created = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor, "invoice.create", req.TenantID, created.ID)
	return created, nil
}

// addLineTx validates, inserts and applies the stock decrement for one line.
// The invoice row must already exist; the caller recomputes derived state.
func addLineTx(ctx context.Context, tx TxRepository, tenantID, invoiceID uuid.UUID, req CreateLineRequest, allowNegative bool) (*InvoiceLine, error) {
	if !req.Quantity.IsPositive() {
		return nil, fmt.Errorf("%w: line quantity must be positive", shared.ErrValidation)
	}
	stock, err := tx.GetItemForUpdate(ctx, tenantID, req.ItemID)
	if err != nil {
		return nil, err
	}
	price := stock.UnitPrice
	if req.UnitPrice != nil {
		price = *req.UnitPrice
	}
	if price.IsNegative() {
		return nil, fmt.Errorf("%w: unit price must not be negative", shared.ErrValidation)
	}

	line, err := tx.InsertLine(ctx, InvoiceLine{
		TenantID:    tenantID,
		InvoiceID:   invoiceID,
		ItemID:      req.ItemID,
		Description: req.Description,
		Quantity:    req.Quantity,
		UnitPrice:   price,
	})
	if err != nil {
		return nil, err
	}
	if err := adjustStock(ctx, tx, tenantID, req.ItemID, req.Quantity.Neg(), allowNegative); err != nil {
		return nil, err
	}
	return line, nil
}

// GetInvoice returns one invoice within the actor's tenant.
func (s *Service) GetInvoice(ctx context.Context, actor *shared.Actor, tenantID, id uuid.UUID) (*Invoice, error) {
	if err := shared.RequireTenantMatch(actor, tenantID); err != nil {
		return nil, err
	}
	return s.repo.GetInvoice(ctx, tenantID, id)
}

// ListInvoices returns a paginated, filterable invoice listing.
func (s *Service) ListInvoices(ctx context.Context, actor *shared.Actor, req ListInvoicesRequest) ([]Invoice, shared.Pagination, error) {
	if err := shared.RequireTenantMatch(actor, req.TenantID); err != nil {
		return nil, shared.Pagination{}, err
	}
	out, total, err := s.repo.ListInvoices(ctx, req)
	if err != nil {
		return nil, shared.Pagination{}, fmt.Errorf("list invoices: %w", err)
	}
	return out, shared.NewPagination(req.Page, req.PerPage, total), nil
}

// ListLines returns all lines of one invoice.
func (s *Service) ListLines(ctx context.Context, actor *shared.Actor, tenantID, invoiceID uuid.UUID) ([]InvoiceLine, error) {
	if err := shared.RequireTenantMatch(actor, tenantID); err != nil {
		return nil, err
	}
	return s.repo.ListLines(ctx, tenantID, invoiceID)
}

// ListPayments returns all payments of one invoice.
func (s *Service) ListPayments(ctx context.Context, actor *shared.Actor, tenantID, invoiceID uuid.UUID) ([]Payment, error) {
	if err := shared.RequireTenantMatch(actor, tenantID); err != nil {
		return nil, err
	}
	return s.repo.ListPayments(ctx, tenantID, invoiceID)
}

// UpdateInvoice patches invoice header fields. Changing the invoice number
// rewrites the natural key and requires an admin role.
func (s *Service) UpdateInvoice(ctx context.Context, actor *shared.Actor, tenantID, id uuid.UUID, req UpdateInvoiceRequest) (*Invoice, error) {
	if err := shared.RequireTenantMatch(actor, tenantID); err != nil {
		return nil, err
	}
	existing, err := s.repo.GetInvoice(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if req.InvoiceNumber != nil && *req.InvoiceNumber != existing.InvoiceNumber {
		if err := shared.RequireAdmin(actor); err != nil {
			return nil, err
		}
		other, err := s.repo.FindInvoiceByNumber(ctx, tenantID, *req.InvoiceNumber)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
		if other != nil && other.ID != id {
			return nil, fmt.Errorf("%w: invoice number already in use", shared.ErrConflict)
		}
	}
	if req.Currency != nil {
		if _, err := currency.ParseISO(*req.Currency); err != nil {
			return nil, fmt.Errorf("%w: unknown currency %q", shared.ErrValidation, *req.Currency)
		}
	}

	updates := make(map[string]any)
	if req.InvoiceNumber != nil {
		updates["invoice_number"] = *req.InvoiceNumber
	}
	if req.Date != nil {
		updates["date"] = *req.Date
	}
	if req.DueDate != nil {
		updates["due_date"] = *req.DueDate
	}
	if req.Currency != nil {
		updates["currency"] = *req.Currency
	}
	if len(updates) == 0 {
		return existing, nil
	}

	err = s.repo.WithTx(ctx, func(tx TxRepository) error {
		return tx.UpdateInvoice(ctx, tenantID, id, updates)
	})
	if err != nil {
		return nil, fmt.Errorf("update invoice: %w", err)
	}
	s.recordAudit(ctx, actor, "invoice.update", tenantID, id)
	return s.repo.GetInvoice(ctx, tenantID, id)
}

// DeleteInvoice removes an invoice. With lines or payments attached it
// refuses unless force is set and the actor is a super admin; the forced
// path deletes lines first (restoring their stock), then payments, then the
// invoice, all in one transaction.
func (s *Service) DeleteInvoice(ctx context.Context, actor *shared.Actor, tenantID, id uuid.UUID, force bool) (*Invoice, error) {
	if err := shared.RequireTenantMatch(actor, tenantID); err != nil {
		return nil, err
	}
	existing, err := s.repo.GetInvoice(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	lines, err := s.repo.ListLines(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	payments, err := s.repo.ListPayments(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if len(lines) > 0 || len(payments) > 0 {
		if !force {
			return nil, fmt.Errorf("%w: %d lines, %d payments", shared.ErrDependencyExists, len(lines), len(payments))
		}
		if err := shared.RequireSuperAdmin(actor); err != nil {
			return nil, err
		}
		err = s.repo.WithTx(ctx, func(tx TxRepository) error {
			return purgeInvoiceTx(ctx, tx, tenantID, id, true)
		})
		if err != nil {
			return nil, fmt.Errorf("purge invoice: %w", err)
		}
		s.recordAudit(ctx, actor, "invoice.delete.force", tenantID, id)
		return existing, nil
	}

	err = s.repo.WithTx(ctx, func(tx TxRepository) error {
		return tx.DeleteInvoice(ctx, tenantID, id)
	})
	if err != nil {
		return nil, fmt.Errorf("delete invoice: %w", err)
	}
	s.recordAudit(ctx, actor, "invoice.delete", tenantID, id)
	return existing, nil
}

// AddLine appends a line to an invoice, decrements the item's stock and
// recomputes the invoice, all in one transaction.
func (s *Service) AddLine(ctx context.Context, actor *shared.Actor, tenantID, invoiceID uuid.UUID, req CreateLineRequest) (*InvoiceLine, error) {
	if err := shared.RequireTenantMatch(actor, tenantID); err != nil {
		return nil, err
	}
	allowNegative := actor != nil && actor.IsAdmin()

	var line *InvoiceLine
	err := s.repo.WithTx(ctx, func(tx TxRepository) error {
		if _, err := tx.GetInvoiceForUpdate(ctx, tenantID, invoiceID); err != nil {
			return err
		}
		var err error
		if line, err = addLineTx(ctx, tx, tenantID, invoiceID, req, allowNegative); err != nil {
			return err
		}
		_, err = recalcInvoice(ctx, tx, tenantID, invoiceID, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor, "invoice_line.create", tenantID, line.ID)
	return line, nil
}

// UpdateLine patches a line; a quantity change moves the stock by the
// difference and the invoice recomputes in the same transaction.
func (s *Service) UpdateLine(ctx context.Context, actor *shared.Actor, tenantID, lineID uuid.UUID, req UpdateLineRequest) (*InvoiceLine, error) {
	if err := shared.RequireTenantMatch(actor, tenantID); err != nil {
		return nil, err
	}
	allowNegative := actor != nil && actor.IsAdmin()

	var updated *InvoiceLine
	err := s.repo.WithTx(ctx, func(tx TxRepository) error {
		line, err := tx.GetLine(ctx, tenantID, lineID)
		if err != nil {
			return err
		}
		if _, err := tx.GetInvoiceForUpdate(ctx, tenantID, line.InvoiceID); err != nil {
			return err
		}

		newQty := line.Quantity
		if req.Quantity != nil {
			newQty = *req.Quantity
		}
		if !newQty.IsPositive() {
			return fmt.Errorf("%w: line quantity must be positive", shared.ErrValidation)
		}
		newPrice := line.UnitPrice
		if req.UnitPrice != nil {
			newPrice = *req.UnitPrice
		}
		if newPrice.IsNegative() {
			return fmt.Errorf("%w: unit price must not be negative", shared.ErrValidation)
		}

		// Stock absorbs the increase and releases the decrease.
		if err := adjustStock(ctx, tx, tenantID, line.ItemID, line.Quantity.Sub(newQty), allowNegative); err != nil {
			return err
		}

		updates := map[string]any{
			"quantity":   newQty.String(),
			"unit_price": newPrice.String(),
			"line_total": newQty.Mul(newPrice).String(),
		}
		if req.Description != nil {
			updates["description"] = *req.Description
		}
		if err := tx.UpdateLine(ctx, tenantID, lineID, updates); err != nil {
			return err
		}
		if _, err := recalcInvoice(ctx, tx, tenantID, line.InvoiceID, false); err != nil {
			return err
		}
		updated, err = tx.GetLine(ctx, tenantID, lineID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor, "invoice_line.update", tenantID, lineID)
	return updated, nil
}

// DeleteLine removes a line, restores the item's stock and recomputes the
// invoice total in one transaction.
func (s *Service) DeleteLine(ctx context.Context, actor *shared.Actor, tenantID, lineID uuid.UUID) (*InvoiceLine, error) {
	if err := shared.RequireTenantMatch(actor, tenantID); err != nil {
		return nil, err
	}

	var deleted *InvoiceLine
	err := s.repo.WithTx(ctx, func(tx TxRepository) error {
		line, err := tx.GetLine(ctx, tenantID, lineID)
		if err != nil {
			return err
		}
		if _, err := tx.GetInvoiceForUpdate(ctx, tenantID, line.InvoiceID); err != nil {
			return err
		}
		if err := tx.DeleteLine(ctx, tenantID, lineID); err != nil {
			return err
		}
		if err := adjustStock(ctx, tx, tenantID, line.ItemID, line.Quantity, true); err != nil {
			return err
		}
		if _, err := recalcInvoice(ctx, tx, tenantID, line.InvoiceID, false); err != nil {
			return err
		}
		deleted = line
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor, "invoice_line.delete", tenantID, lineID)
	return deleted, nil
}

// AddPayment records a payment against an invoice. Creation is idempotent on
// the reference; the invoice status escalates in the same transaction.
func (s *Service) AddPayment(ctx context.Context, actor *shared.Actor, tenantID uuid.UUID, req CreatePaymentRequest) (*Payment, error) {
	if err := shared.RequireTenantMatch(actor, tenantID); err != nil {
		return nil, err
	}
	if req.Reference == "" {
		return nil, fmt.Errorf("%w: payment reference required", shared.ErrValidation)
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: payment amount must be positive", shared.ErrValidation)
	}

	existing, err := s.repo.FindPaymentByReference(ctx, tenantID, req.Reference)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("dedupe by reference: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	var created *Payment
	err = s.repo.WithTx(ctx, func(tx TxRepository) error {
		if _, err := tx.GetInvoiceForUpdate(ctx, tenantID, req.InvoiceID); err != nil {
			return err
		}
		p, err := tx.InsertPayment(ctx, Payment{
			TenantID:  tenantID,
			InvoiceID: req.InvoiceID,
			Reference: req.Reference,
			Amount:    req.Amount,
			Method:    req.Method,
			Date:      req.Date,
			PaidAt:    req.PaidAt,
		})
		if err != nil {
			return err
		}
		if _, err := recalcInvoice(ctx, tx, tenantID, req.InvoiceID, false); err != nil {
			return err
		}
		created = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor, "payment.create", tenantID, created.ID)
	return created, nil
}

// UpdatePayment patches a payment and recomputes its invoice. The status
// never regresses here; only payment deletion recomputes downward.
func (s *Service) UpdatePayment(ctx context.Context, actor *shared.Actor, tenantID, paymentID uuid.UUID, req UpdatePaymentRequest) (*Payment, error) {
	if err := shared.RequireTenantMatch(actor, tenantID); err != nil {
		return nil, err
	}
	existing, err := s.repo.GetPayment(ctx, tenantID, paymentID)
	if err != nil {
		return nil, err
	}

	if req.Reference != nil && *req.Reference != existing.Reference {
		other, err := s.repo.FindPaymentByReference(ctx, tenantID, *req.Reference)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
		if other != nil && other.ID != paymentID {
			return nil, fmt.Errorf("%w: payment reference already in use", shared.ErrConflict)
		}
	}
	if req.Amount != nil && !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: payment amount must be positive", shared.ErrValidation)
	}

	updates := make(map[string]any)
	if req.Reference != nil {
		updates["reference"] = *req.Reference
	}
	if req.Amount != nil {
		updates["amount"] = req.Amount.String()
	}
	if req.Method != nil {
		updates["method"] = *req.Method
	}
	if req.PaidAt != nil {
		updates["paid_at"] = *req.PaidAt
	}
	if len(updates) == 0 {
		return existing, nil
	}

	var updated *Payment
	err = s.repo.WithTx(ctx, func(tx TxRepository) error {
		if _, err := tx.GetInvoiceForUpdate(ctx, tenantID, existing.InvoiceID); err != nil {
			return err
		}
		if err := tx.UpdatePayment(ctx, tenantID, paymentID, updates); err != nil {
			return err
		}
		if _, err := recalcInvoice(ctx, tx, tenantID, existing.InvoiceID, false); err != nil {
			return err
		}
		var err error
		updated, err = tx.GetPayment(ctx, tenantID, paymentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor, "payment.update", tenantID, paymentID)
	return updated, nil
}

// DeletePayment removes a payment and recomputes the invoice downward: this
// is the only path on which a PAID invoice can fall back to SENT or DRAFT.
func (s *Service) DeletePayment(ctx context.Context, actor *shared.Actor, tenantID, paymentID uuid.UUID) (*Payment, error) {
	if err := shared.RequireTenantMatch(actor, tenantID); err != nil {
		return nil, err
	}

	var deleted *Payment
	err := s.repo.WithTx(ctx, func(tx TxRepository) error {
		p, err := tx.GetPayment(ctx, tenantID, paymentID)
		if err != nil {
			return err
		}
		if _, err := tx.GetInvoiceForUpdate(ctx, tenantID, p.InvoiceID); err != nil {
			return err
		}
		if err := tx.DeletePayment(ctx, tenantID, paymentID); err != nil {
			return err
		}
		if _, err := recalcInvoice(ctx, tx, tenantID, p.InvoiceID, true); err != nil {
			return err
		}
		deleted = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor, "payment.delete", tenantID, paymentID)
	return deleted, nil
}

// purgeInvoiceTx unwinds one invoice: lines first (optionally restoring
// stock), then payments, then the invoice row.
func purgeInvoiceTx(ctx context.Context, tx TxRepository, tenantID, invoiceID uuid.UUID, restoreStock bool) error {
	lines, err := tx.ListLines(ctx, tenantID, invoiceID)
	if err != nil {
		return err
	}
	for _, l := range lines {
		if err := tx.DeleteLine(ctx, tenantID, l.ID); err != nil {
			return err
		}
		if restoreStock {
			if err := adjustStock(ctx, tx, tenantID, l.ItemID, l.Quantity, true); err != nil {
				return err
			}
		}
	}

	payments, err := tx.ListPayments(ctx, tenantID, invoiceID)
	if err != nil {
		return err
	}
	for _, p := range payments {
		if err := tx.DeletePayment(ctx, tenantID, p.ID); err != nil {
			return err
		}
	}
	return tx.DeleteInvoice(ctx, tenantID, invoiceID)
}

// PurgeCustomer removes a customer and its whole financial graph in one
// transaction, restoring stock held by the deleted lines. Called by the
// customers service on a forced delete.
func (s *Service) PurgeCustomer(ctx context.Context, tenantID, customerID uuid.UUID) error {
	return s.repo.WithTx(ctx, func(tx TxRepository) error {
		ids, err := tx.ListInvoiceIDsByCustomer(ctx, tenantID, customerID)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := purgeInvoiceTx(ctx, tx, tenantID, id, true); err != nil {
				return err
			}
		}
		return tx.DeleteCustomer(ctx, tenantID, customerID)
	})
}

// PurgeItem removes an item and every line referencing it, recomputing the
// affected invoices. Stock is not restored since the item itself goes away.
// Called by the items service on a forced delete.
func (s *Service) PurgeItem(ctx context.Context, tenantID, itemID uuid.UUID) error {
	return s.repo.WithTx(ctx, func(tx TxRepository) error {
		lines, err := tx.ListLinesByItem(ctx, tenantID, itemID)
		if err != nil {
			return err
		}
		touched := make(map[uuid.UUID]struct{})
		for _, l := range lines {
			if err := tx.DeleteLine(ctx, tenantID, l.ID); err != nil {
				return err
			}
			touched[l.InvoiceID] = struct{}{}
		}
		for invoiceID := range touched {
			if _, err := recalcInvoice(ctx, tx, tenantID, invoiceID, false); err != nil {
				return err
			}
		}
		return tx.DeleteItem(ctx, tenantID, itemID)
	})
}

func (s *Service) recordAudit(ctx context.Context, actor *shared.Actor, action string, tenantID, entityID uuid.UUID) {
	if s.audit == nil {
		return
	}
	log := shared.AuditLog{Action: action, Entity: "billing", EntityID: entityID.String(), TenantID: tenantID}
	if actor != nil {
		log.ActorID = actor.ID
	}
	_ = s.audit.Record(ctx, log)
}
