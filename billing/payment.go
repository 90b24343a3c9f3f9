package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yourusername/billflow/models"
	"github.com/yourusername/billflow/numbering"
	"github.com/yourusername/billflow/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var paymentMethods = map[string]bool{
	models.PaymentMethodBankTransfer: true,
	models.PaymentMethodCard:         true,
	models.PaymentMethodCash:         true,
	models.PaymentMethodCheque:       true,
	models.PaymentMethodStellar:      true,
}

type PaymentInput struct {
	Amount      decimal.Decimal
	PaymentDate time.Time
	Method      string
	Reference   string
	Notes       string
}

func (e *Engine) normalizePayment(in PaymentInput) (PaymentInput, error) {
	if !in.Amount.IsPositive() {
		return in, ErrInvalidAmount
	}
	in.Amount = in.Amount.Round(2)
	in.Method = strings.ToLower(strings.TrimSpace(in.Method))
	if in.Method == "" {
		in.Method = models.PaymentMethodBankTransfer
	}
	if !paymentMethods[in.Method] {
		return in, fmt.Errorf("%w: unknown payment method %q", ErrInvalidInput, in.Method)
	}
	in.Reference = strings.TrimSpace(in.Reference)
	if in.Method == models.PaymentMethodStellar {
		in.Reference = utils.NormalizeReference(in.Reference)
	}
	if in.PaymentDate.IsZero() {
		in.PaymentDate = e.now()
	}
	in.PaymentDate = in.PaymentDate.UTC()
	return in, nil
}

// verifySettlement runs before the payment transaction opens so a slow
// network lookup never holds the invoice lock.
func (e *Engine) verifySettlement(in PaymentInput) error {
	if in.Method != models.PaymentMethodStellar {
		return nil
	}
	if in.Reference == "" {
		return fmt.Errorf("%w: stellar payments need a transaction reference", ErrSettlementUnverified)
	}
	if e.settlement == nil {
		return nil
	}
	if err := e.settlement.VerifySettlement(in.Reference, in.Amount); err != nil {
		return fmt.Errorf("%w: %v", ErrSettlementUnverified, err)
	}
	return nil
}

// ensureReferenceUnused rejects a stellar reference already held by a live
// payment other than exclude. The partial unique index on payments backs
// this up across concurrent transactions.
func ensureReferenceUnused(tx *gorm.DB, in PaymentInput, exclude uint) error {
	if in.Method != models.PaymentMethodStellar {
		return nil
	}
	q := tx.Model(&models.Payment{}).
		Where("payment_method = ? AND transaction_reference = ?", models.PaymentMethodStellar, in.Reference)
	if exclude != 0 {
		q = q.Where("id <> ?", exclude)
	}
	var held models.Payment
	err := q.Select("id", "number").Take(&held).Error
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s is held by payment %s", ErrDuplicateReference, in.Reference, held.Number)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil
	default:
		return fmt.Errorf("look up transaction reference: %w", err)
	}
}

func acceptsPayments(status models.InvoiceStatus) bool {
	return status != models.InvoiceDraft && status != models.InvoiceCancelled
}

// ApplyPayment records a payment against an invoice. The invoice row is
// locked and the paid amount re-read from live payments before the
// overpayment check, so concurrent payments cannot both pass against a stale
// balance.
func (e *Engine) ApplyPayment(ctx context.Context, invoiceID uint, in PaymentInput) (*models.Payment, *models.Invoice, []models.Event, error) {
	in, err := e.normalizePayment(in)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := e.verifySettlement(in); err != nil {
		return nil, nil, nil, err
	}

	var (
		payment *models.Payment
		events  []models.Event
	)
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := lockInvoice(tx, invoiceID)
		if err != nil {
			return err
		}
		if !acceptsPayments(inv.Status) {
			return &TransitionError{Document: "invoice", Number: inv.Number, From: string(inv.Status), To: string(models.InvoicePartiallyPaid), Reason: "invoice does not accept payments"}
		}
		paid, err := sumPayments(tx, inv.ID, 0)
		if err != nil {
			return err
		}
		if paid.Add(in.Amount).GreaterThan(inv.TotalAmount) {
			return &OverpaymentError{InvoiceNumber: inv.Number, Total: inv.TotalAmount, Paid: paid, Amount: in.Amount}
		}
		if err := ensureReferenceUnused(tx, in, 0); err != nil {
			return err
		}

		number, err := numbering.Next(tx, numbering.ScopePayment)
		if err != nil {
			return err
		}
		payment = &models.Payment{
			Number:               number,
			InvoiceID:            inv.ID,
			ClientID:             inv.ClientID,
			Amount:               in.Amount,
			PaymentDate:          in.PaymentDate,
			PaymentMethod:        in.Method,
			TransactionReference: in.Reference,
			Notes:                in.Notes,
		}
		if err := tx.Create(payment).Error; err != nil {
			return numbering.Translate(err)
		}
		if err := recomputeBalance(tx, inv); err != nil {
			return err
		}

		events = append(events, models.NewEvent(models.EventPaymentReceived, models.SubjectPayment, payment.ID, e.now(), map[string]string{
			models.PayloadNumber:        payment.Number,
			models.PayloadInvoiceNumber: inv.Number,
			models.PayloadAmount:        payment.Amount.StringFixed(2),
			models.PayloadAmountDue:     inv.AmountDue.StringFixed(2),
			models.PayloadStatus:        string(inv.Status),
		}))
		return nil
	})
	if err != nil {
		var over *OverpaymentError
		if errors.As(err, &over) {
			e.log.WithField("invoice", over.InvoiceNumber).Warn("payment rejected: overpayment")
		}
		return nil, nil, nil, err
	}

	inv, err := e.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, nil, nil, err
	}
	e.log.WithField("invoice", inv.Number).WithField("payment", payment.Number).Info("payment applied")
	return payment, inv, events, nil
}

func lockPayment(tx *gorm.DB, id uint) (*models.Payment, error) {
	var p models.Payment
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&p, id).Error; err != nil {
		return nil, notFound(err, "payment", id)
	}
	return &p, nil
}

// CorrectPayment is an administrative fix of a recorded payment. The
// overpayment rule is checked against every other live payment.
func (e *Engine) CorrectPayment(ctx context.Context, paymentID uint, in PaymentInput) (*models.Payment, *models.Invoice, error) {
	in, err := e.normalizePayment(in)
	if err != nil {
		return nil, nil, err
	}
	if err := e.verifySettlement(in); err != nil {
		return nil, nil, err
	}

	var payment *models.Payment
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := lockPayment(tx, paymentID)
		if err != nil {
			return err
		}
		inv, err := lockInvoice(tx, p.InvoiceID)
		if err != nil {
			return err
		}
		others, err := sumPayments(tx, inv.ID, p.ID)
		if err != nil {
			return err
		}
		if others.Add(in.Amount).GreaterThan(inv.TotalAmount) {
			return &OverpaymentError{InvoiceNumber: inv.Number, Total: inv.TotalAmount, Paid: others, Amount: in.Amount}
		}
		if err := ensureReferenceUnused(tx, in, p.ID); err != nil {
			return err
		}
		err = tx.Model(p).Updates(map[string]any{
			"amount":                in.Amount,
			"payment_date":          in.PaymentDate,
			"payment_method":        in.Method,
			"transaction_reference": in.Reference,
			"notes":                 in.Notes,
		}).Error
		if err != nil {
			return fmt.Errorf("update payment: %w", err)
		}
		payment = p
		return recomputeBalance(tx, inv)
	})
	if err != nil {
		return nil, nil, err
	}
	if err := e.db.WithContext(ctx).First(payment, paymentID).Error; err != nil {
		return nil, nil, notFound(err, "payment", paymentID)
	}
	inv, err := e.GetInvoice(ctx, payment.InvoiceID)
	if err != nil {
		return nil, nil, err
	}
	e.log.WithField("invoice", inv.Number).WithField("payment", payment.Number).Info("payment corrected")
	return payment, inv, nil
}

// DeletePayment voids a payment and re-derives the owning invoice.
func (e *Engine) DeletePayment(ctx context.Context, paymentID uint) (*models.Invoice, error) {
	var invoiceID uint
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := lockPayment(tx, paymentID)
		if err != nil {
			return err
		}
		inv, err := lockInvoice(tx, p.InvoiceID)
		if err != nil {
			return err
		}
		invoiceID = inv.ID
		if err := tx.Delete(p).Error; err != nil {
			return fmt.Errorf("void payment: %w", err)
		}
		return recomputeBalance(tx, inv)
	})
	if err != nil {
		return nil, err
	}
	inv, err := e.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	e.log.WithField("invoice", inv.Number).WithField("payment_id", paymentID).Info("payment voided")
	return inv, nil
}
