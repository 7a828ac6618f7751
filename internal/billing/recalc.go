package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgerkite/ledgerkite/internal/shared"
)

// recalcInvoice rewrites the invoice's derived state from the current lines
// and payments. It must run inside the same transaction as the triggering
// mutation; the invoice row is re-read under a lock so two concurrent
// mutations never compute totals from a stale snapshot.
//
// regress is set only by payment deletion: it is the one path allowed to
// move the status backwards, recomputing it from scratch instead of only
// escalating.
func recalcInvoice(ctx context.Context, tx TxRepository, tenantID, invoiceID uuid.UUID, regress bool) (*Invoice, error) {
	inv, err := tx.GetInvoiceForUpdate(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}

	lines, err := tx.ListLines(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("list invoice lines: %w", err)
	}
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.LineTotal)
	}

	payments, err := tx.ListPayments(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("list invoice payments: %w", err)
	}
	paid := decimal.Zero
	for _, p := range payments {
		paid = paid.Add(p.Amount)
	}

	status := deriveStatus(inv.Status, total, paid, regress)
	if err := tx.SetInvoiceDerived(ctx, tenantID, invoiceID, total, status); err != nil {
		return nil, fmt.Errorf("write invoice derived state: %w", err)
	}

	inv.Total = total
	inv.Status = status
	inv.SyncStatus = shared.SyncPending
	return inv, nil
}

func deriveStatus(prev InvoiceStatus, total, paid decimal.Decimal, regress bool) InvoiceStatus {
	switch {
	case total.IsPositive() && paid.GreaterThanOrEqual(total):
		return StatusPaid
	case regress:
		if total.IsPositive() || paid.IsPositive() {
			return StatusSent
		}
		return StatusDraft
	case prev == StatusDraft && (total.IsPositive() || paid.IsPositive()):
		return StatusSent
	default:
		return prev
	}
}

// adjustStock moves the item's quantity by delta inside the caller's
// transaction. A result below zero fails with the insufficient-stock error
// unless the caller authorizes the excursion (admin backorder).
func adjustStock(ctx context.Context, tx TxRepository, tenantID, itemID uuid.UUID, delta decimal.Decimal, allowNegative bool) error {
	if delta.IsZero() {
		return nil
	}
	stock, err := tx.GetItemForUpdate(ctx, tenantID, itemID)
	if err != nil {
		return err
	}
	next := stock.Quantity.Add(delta)
	if next.IsNegative() && !allowNegative {
		return fmt.Errorf("%w: item %s", shared.ErrInsufficientStock, itemID)
	}
	return tx.SetItemQuantity(ctx, tenantID, itemID, next)
}
