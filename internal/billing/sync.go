package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgerkite/ledgerkite/internal/shared"
)

// newerThan is the last-writer-wins comparison: the remote wins only with a
// strictly greater timestamp. Ties and absent stamps leave the local row.
func newerThan(remote *time.Time, local time.Time) bool {
	return remote != nil && remote.After(local)
}

// ApplyRemoteInvoice merges one remote invoice snapshot. Returns true when
// the local store changed. A missing customer surfaces as NotFound so the
// caller can skip the record and retry it in a later batch.
func (s *Service) ApplyRemoteInvoice(ctx context.Context, actor *shared.Actor, rec RemoteInvoice) (bool, error) {
	if err := shared.RequireTenantMatch(actor, rec.TenantID); err != nil {
		return false, err
	}
	allowNegative := actor != nil && actor.IsAdmin()

	local, err := s.resolveInvoice(ctx, rec)
	if err != nil {
		return false, err
	}

	if local != nil {
		if !newerThan(rec.UpdatedAt, local.UpdatedAt) {
			return false, nil
		}
		err = s.repo.WithTx(ctx, func(tx TxRepository) error {
			if _, err := tx.GetInvoiceForUpdate(ctx, rec.TenantID, local.ID); err != nil {
				return err
			}
			updates := map[string]any{"updated_at": *rec.UpdatedAt}
			if rec.CustomerID != nil {
				updates["customer_id"] = *rec.CustomerID
			}
			if rec.InvoiceNumber != nil {
				updates["invoice_number"] = *rec.InvoiceNumber
			}
			if rec.Date != nil {
				updates["date"] = *rec.Date
			}
			if rec.DueDate != nil {
				updates["due_date"] = *rec.DueDate
			}
			if rec.Currency != nil {
				updates["currency"] = *rec.Currency
			}
			if err := tx.UpdateInvoice(ctx, rec.TenantID, local.ID, updates); err != nil {
				return err
			}
			changed, err := applyRemoteLinesTx(ctx, tx, rec.TenantID, local.ID, rec.Lines, allowNegative)
			if err != nil {
				return err
			}
			if changed {
				if _, err := recalcInvoice(ctx, tx, rec.TenantID, local.ID, false); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return false, err
		}
		return true, nil
	}

	if rec.CustomerID == nil || rec.InvoiceNumber == nil {
		return false, fmt.Errorf("%w: remote invoice needs customer and invoice number", shared.ErrValidation)
	}
	err = s.repo.WithTx(ctx, func(tx TxRepository) error {
		ok, err := tx.CustomerExists(ctx, rec.TenantID, *rec.CustomerID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("customer %s: %w", *rec.CustomerID, shared.ErrNotFound)
		}

		inv := Invoice{
			TenantID:      rec.TenantID,
			CustomerID:    *rec.CustomerID,
			InvoiceNumber: *rec.InvoiceNumber,
			Currency:      "USD",
			Status:        StatusDraft,
			Total:         decimal.Zero,
		}
		if rec.Currency != nil {
			inv.Currency = *rec.Currency
		}
		if rec.Date != nil {
			inv.Date = *rec.Date
		}
		inv.DueDate = rec.DueDate
		if rec.UpdatedAt != nil {
			inv.UpdatedAt = *rec.UpdatedAt
		}
		created, err := tx.InsertInvoice(ctx, inv)
		if err != nil {
			return err
		}
		changed, err := applyRemoteLinesTx(ctx, tx, rec.TenantID, created.ID, rec.Lines, allowNegative)
		if err != nil {
			return err
		}
		if changed {
			if _, err := recalcInvoice(ctx, tx, rec.TenantID, created.ID, false); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) resolveInvoice(ctx context.Context, rec RemoteInvoice) (*Invoice, error) {
	if rec.ID != nil {
		local, err := s.repo.GetInvoice(ctx, rec.TenantID, *rec.ID)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
		if local != nil {
			return local, nil
		}
	}
	if rec.InvoiceNumber != nil {
		local, err := s.repo.FindInvoiceByNumber(ctx, rec.TenantID, *rec.InvoiceNumber)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
		return local, nil
	}
	return nil, nil
}

// ApplyRemoteLine merges one remote line snapshot in its own transaction.
func (s *Service) ApplyRemoteLine(ctx context.Context, actor *shared.Actor, rec RemoteLine) (bool, error) {
	if err := shared.RequireTenantMatch(actor, rec.TenantID); err != nil {
		return false, err
	}
	allowNegative := actor != nil && actor.IsAdmin()

	var applied bool
	err := s.repo.WithTx(ctx, func(tx TxRepository) error {
		var err error
		applied, err = applyRemoteLineTx(ctx, tx, rec.TenantID, rec, allowNegative)
		if err != nil || !applied {
			return err
		}
		invoiceID, err := lineInvoiceID(ctx, tx, rec)
		if err != nil {
			return err
		}
		_, err = recalcInvoice(ctx, tx, rec.TenantID, invoiceID, false)
		return err
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func lineInvoiceID(ctx context.Context, tx TxRepository, rec RemoteLine) (uuid.UUID, error) {
	if rec.InvoiceID != nil {
		return *rec.InvoiceID, nil
	}
	if rec.ID != nil {
		line, err := tx.GetLine(ctx, rec.TenantID, *rec.ID)
		if err != nil {
			return uuid.Nil, err
		}
		return line.InvoiceID, nil
	}
	return uuid.Nil, fmt.Errorf("%w: remote line needs invoice", shared.ErrValidation)
}

// applyRemoteLinesTx merges a set of lines embedded in a remote invoice,
// reporting whether any of them changed the store.
func applyRemoteLinesTx(ctx context.Context, tx TxRepository, tenantID uuid.UUID, invoiceID uuid.UUID, lines []RemoteLine, allowNegative bool) (bool, error) {
	changed := false
	for _, lr := range lines {
		lr.TenantID = tenantID
		lr.InvoiceID = &invoiceID
		applied, err := applyRemoteLineTx(ctx, tx, tenantID, lr, allowNegative)
		if err != nil {
			return changed, err
		}
		changed = changed || applied
	}
	return changed, nil
}

// applyRemoteLineTx resolves a remote line by id, then by its position in
// the invoice (invoice + item), then creates it. Lines found locally follow
// last-writer-wins; creates decrement stock like any direct line insert.
func applyRemoteLineTx(ctx context.Context, tx TxRepository, tenantID uuid.UUID, rec RemoteLine, allowNegative bool) (bool, error) {
	var local *InvoiceLine
	if rec.ID != nil {
		l, err := tx.GetLine(ctx, tenantID, *rec.ID)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return false, err
		}
		local = l
	}
	if local == nil && rec.InvoiceID != nil && rec.ItemID != nil {
		l, err := tx.FindLineByInvoiceItem(ctx, tenantID, *rec.InvoiceID, *rec.ItemID)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return false, err
		}
		local = l
	}

	if local != nil {
		if !newerThan(rec.UpdatedAt, local.UpdatedAt) {
			return false, nil
		}
		newQty := local.Quantity
		if rec.Quantity != nil {
			newQty = *rec.Quantity
		}
		if !newQty.IsPositive() {
			return false, fmt.Errorf("%w: line quantity must be positive", shared.ErrValidation)
		}
		newPrice := local.UnitPrice
		if rec.UnitPrice != nil {
			newPrice = *rec.UnitPrice
		}
		if err := adjustStock(ctx, tx, tenantID, local.ItemID, local.Quantity.Sub(newQty), allowNegative); err != nil {
			return false, err
		}
		updates := map[string]any{
			"updated_at": *rec.UpdatedAt,
			"quantity":   newQty.String(),
			"unit_price": newPrice.String(),
			"line_total": newQty.Mul(newPrice).String(),
		}
		if rec.Description != nil {
			updates["description"] = *rec.Description
		}
		if err := tx.UpdateLine(ctx, tenantID, local.ID, updates); err != nil {
			return false, err
		}
		return true, nil
	}

	if rec.InvoiceID == nil || rec.ItemID == nil {
		return false, fmt.Errorf("%w: remote line needs invoice and item", shared.ErrValidation)
	}
	if _, err := tx.GetInvoiceForUpdate(ctx, tenantID, *rec.InvoiceID); err != nil {
		return false, err
	}
	stock, err := tx.GetItemForUpdate(ctx, tenantID, *rec.ItemID)
	if err != nil {
		return false, err
	}
	if rec.Quantity == nil || !rec.Quantity.IsPositive() {
		return false, fmt.Errorf("%w: line quantity must be positive", shared.ErrValidation)
	}
	price := stock.UnitPrice
	if rec.UnitPrice != nil {
		price = *rec.UnitPrice
	}

	line := InvoiceLine{
		TenantID:    tenantID,
		InvoiceID:   *rec.InvoiceID,
		ItemID:      *rec.ItemID,
		Description: rec.Description,
		Quantity:    *rec.Quantity,
		UnitPrice:   price,
	}
	if rec.UpdatedAt != nil {
		line.UpdatedAt = *rec.UpdatedAt
	}
	if _, err := tx.InsertLine(ctx, line); err != nil {
		return false, err
	}
	if err := adjustStock(ctx, tx, tenantID, *rec.ItemID, rec.Quantity.Neg(), allowNegative); err != nil {
		return false, err
	}
	return true, nil
}

// ApplyRemotePayment merges one remote payment snapshot, deduplicating by
// reference when no id matches.
func (s *Service) ApplyRemotePayment(ctx context.Context, actor *shared.Actor, rec RemotePayment) (bool, error) {
	if err := shared.RequireTenantMatch(actor, rec.TenantID); err != nil {
		return false, err
	}

	var local *Payment
	if rec.ID != nil {
		p, err := s.repo.GetPayment(ctx, rec.TenantID, *rec.ID)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return false, err
		}
		local = p
	}
	if local == nil && rec.Reference != nil {
		p, err := s.repo.FindPaymentByReference(ctx, rec.TenantID, *rec.Reference)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return false, err
		}
		local = p
	}

	if local != nil {
		if !newerThan(rec.UpdatedAt, local.UpdatedAt) {
			return false, nil
		}
		err := s.repo.WithTx(ctx, func(tx TxRepository) error {
			if _, err := tx.GetInvoiceForUpdate(ctx, rec.TenantID, local.InvoiceID); err != nil {
				return err
			}
			updates := map[string]any{"updated_at": *rec.UpdatedAt}
			if rec.Amount != nil {
				if !rec.Amount.IsPositive() {
					return fmt.Errorf("%w: payment amount must be positive", shared.ErrValidation)
				}
				updates["amount"] = rec.Amount.String()
			}
			if rec.Reference != nil {
				updates["reference"] = *rec.Reference
			}
			if rec.Method != nil {
				updates["method"] = *rec.Method
			}
			if rec.Date != nil {
				updates["date"] = *rec.Date
			}
			if rec.PaidAt != nil {
				updates["paid_at"] = *rec.PaidAt
			}
			if err := tx.UpdatePayment(ctx, rec.TenantID, local.ID, updates); err != nil {
				return err
			}
			_, err := recalcInvoice(ctx, tx, rec.TenantID, local.InvoiceID, false)
			return err
		})
		if err != nil {
			return false, err
		}
		return true, nil
	}

	if rec.InvoiceID == nil || rec.Reference == nil {
		return false, fmt.Errorf("%w: remote payment needs invoice and reference", shared.ErrValidation)
	}
	if rec.Amount == nil || !rec.Amount.IsPositive() {
		return false, fmt.Errorf("%w: payment amount must be positive", shared.ErrValidation)
	}
	err := s.repo.WithTx(ctx, func(tx TxRepository) error {
		if _, err := tx.GetInvoiceForUpdate(ctx, rec.TenantID, *rec.InvoiceID); err != nil {
			return err
		}
		p := Payment{
			TenantID:  rec.TenantID,
			InvoiceID: *rec.InvoiceID,
			Reference: *rec.Reference,
			Amount:    *rec.Amount,
			Method:    rec.Method,
			PaidAt:    rec.PaidAt,
		}
		if rec.Date != nil {
			p.Date = *rec.Date
		}
		if rec.UpdatedAt != nil {
			p.UpdatedAt = *rec.UpdatedAt
		}
		if _, err := tx.InsertPayment(ctx, p); err != nil {
			return err
		}
		_, err := recalcInvoice(ctx, tx, rec.TenantID, *rec.InvoiceID, false)
		return err
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetUnsyncedInvoices lists invoices still pending outbound push.
func (s *Service) GetUnsyncedInvoices(ctx context.Context, actor *shared.Actor, tenantID uuid.UUID, limit int) ([]Invoice, error) {
	if err := shared.RequireTenantMatch(actor, tenantID); err != nil {
		return nil, err
	}
	return s.repo.ListUnsyncedInvoices(ctx, tenantID, limit)
}

// GetUnsyncedLines lists invoice lines still pending outbound push.
func (s *Service) GetUnsyncedLines(ctx context.Context, actor *shared.Actor, tenantID uuid.UUID, limit int) ([]InvoiceLine, error) {
	if err := shared.RequireTenantMatch(actor, tenantID); err != nil {
		return nil, err
	}
	return s.repo.ListUnsyncedLines(ctx, tenantID, limit)
}

// GetUnsyncedPayments lists payments still pending outbound push.
func (s *Service) GetUnsyncedPayments(ctx context.Context, actor *shared.Actor, tenantID uuid.UUID, limit int) ([]Payment, error) {
	if err := shared.RequireTenantMatch(actor, tenantID); err != nil {
		return nil, err
	}
	return s.repo.ListUnsyncedPayments(ctx, tenantID, limit)
}

// MarkInvoicesSynced flips PENDING invoices to SYNCED.
func (s *Service) MarkInvoicesSynced(ctx context.Context, actor *shared.Actor, tenantID uuid.UUID, ids []uuid.UUID) (int, error) {
	if err := shared.RequireTenantMatch(actor, tenantID); err != nil {
		return 0, err
	}
	return s.repo.MarkInvoicesSynced(ctx, tenantID, ids)
}

// MarkLinesSynced flips PENDING lines to SYNCED.
func (s *Service) MarkLinesSynced(ctx context.Context, actor *shared.Actor, tenantID uuid.UUID, ids []uuid.UUID) (int, error) {
	if err := shared.RequireTenantMatch(actor, tenantID); err != nil {
		return 0, err
	}
	return s.repo.MarkLinesSynced(ctx, tenantID, ids)
}

// MarkPaymentsSynced flips PENDING payments to SYNCED.
func (s *Service) MarkPaymentsSynced(ctx context.Context, actor *shared.Actor, tenantID uuid.UUID, ids []uuid.UUID) (int, error) {
	if err := shared.RequireTenantMatch(actor, tenantID); err != nil {
		return 0, err
	}
	return s.repo.MarkPaymentsSynced(ctx, tenantID, ids)
}
