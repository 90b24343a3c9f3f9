package billing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrIllegalTransition indicates a status change the state machine forbids.
	ErrIllegalTransition = errors.New("illegal transition")
	// ErrOverpayment indicates a payment would push the paid amount past the invoice total.
	ErrOverpayment = errors.New("payment exceeds invoice total")
	// ErrInvalidAmount indicates a non-positive payment amount.
	ErrInvalidAmount = errors.New("payment amount must be positive")
	// ErrInvalidInput indicates a request is missing required document data.
	ErrInvalidInput = errors.New("invalid document input")
	// ErrInvalidLineItem indicates a malformed line item.
	ErrInvalidLineItem = errors.New("invalid line item")
	// ErrAlreadyInvoiced indicates the quotation already spawned an invoice.
	ErrAlreadyInvoiced = errors.New("quotation already invoiced")
	// ErrAuditLocked indicates the document is part of the financial audit trail.
	ErrAuditLocked = errors.New("document is locked for audit")
	// ErrSettlementUnverified indicates an on-chain payment reference could not be confirmed.
	ErrSettlementUnverified = errors.New("payment settlement could not be verified")
	// ErrDuplicateReference indicates an on-chain reference already settles another live payment.
	ErrDuplicateReference = errors.New("transaction reference already recorded")
)

// TransitionError describes a rejected status change. The document is left
// untouched.
type TransitionError struct {
	Document string
	Number   string
	From     string
	To       string
	Reason   string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("%s: %s %s cannot move from %s to %s", ErrIllegalTransition, e.Document, e.Number, e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *TransitionError) Unwrap() error {
	return ErrIllegalTransition
}

// OverpaymentError carries the figures behind a rejected payment.
type OverpaymentError struct {
	InvoiceNumber string
	Total         decimal.Decimal
	Paid          decimal.Decimal
	Amount        decimal.Decimal
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("%s: invoice %s total %s, already paid %s, payment %s",
		ErrOverpayment, e.InvoiceNumber, e.Total.StringFixed(2), e.Paid.StringFixed(2), e.Amount.StringFixed(2))
}

func (e *OverpaymentError) Unwrap() error {
	return ErrOverpayment
}
