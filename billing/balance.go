package billing

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/yourusername/billflow/models"
	"gorm.io/gorm"
)

// DeriveInvoiceStatus returns the status an invoice should carry once its
// paid amount is known. Draft and cancelled invoices keep their status; a
// fully settled invoice is paid; a partial balance is partially_paid (an
// overdue invoice included); an invoice whose payments were all voided falls
// back to sent and is picked up again by the overdue sweep.
func DeriveInvoiceStatus(current models.InvoiceStatus, total, paid decimal.Decimal) models.InvoiceStatus {
	if current == models.InvoiceDraft || current == models.InvoiceCancelled {
		return current
	}
	switch {
	case total.IsPositive() && !paid.LessThan(total):
		return models.InvoicePaid
	case paid.IsPositive() && paid.LessThan(total):
		return models.InvoicePartiallyPaid
	case paid.IsZero() && (current == models.InvoicePaid || current == models.InvoicePartiallyPaid):
		return models.InvoiceSent
	}
	return current
}

// AmountDue is total minus paid, floored at zero.
func AmountDue(total, paid decimal.Decimal) decimal.Decimal {
	return decimal.Max(decimal.Zero, total.Sub(paid))
}

// sumPayments adds up the live payments of an invoice, skipping excludeID.
func sumPayments(tx *gorm.DB, invoiceID, excludeID uint) (decimal.Decimal, error) {
	var payments []models.Payment
	q := tx.Select("id", "amount").Where("invoice_id = ?", invoiceID)
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}
	if err := q.Find(&payments).Error; err != nil {
		return decimal.Zero, fmt.Errorf("sum payments: %w", err)
	}
	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(p.Amount)
	}
	return total, nil
}

// recomputeBalance is the only code path that writes amount_paid,
// amount_due and payment-driven status changes. It is idempotent.
func recomputeBalance(tx *gorm.DB, inv *models.Invoice) error {
	paid, err := sumPayments(tx, inv.ID, 0)
	if err != nil {
		return err
	}
	inv.AmountPaid = paid
	inv.AmountDue = AmountDue(inv.TotalAmount, paid)
	inv.Status = DeriveInvoiceStatus(inv.Status, inv.TotalAmount, paid)

	err = tx.Model(&models.Invoice{}).Where("id = ?", inv.ID).Updates(map[string]any{
		"amount_paid": inv.AmountPaid,
		"amount_due":  inv.AmountDue,
		"status":      inv.Status,
	}).Error
	if err != nil {
		return fmt.Errorf("save invoice balance: %w", err)
	}
	return nil
}

// RecomputeInvoiceBalance re-derives an invoice's balance from its payments.
func (e *Engine) RecomputeInvoiceBalance(ctx context.Context, id uint) (*models.Invoice, error) {
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := lockInvoice(tx, id)
		if err != nil {
			return err
		}
		return recomputeBalance(tx, inv)
	})
	if err != nil {
		return nil, err
	}
	return e.GetInvoice(ctx, id)
}
