package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type InvoiceStatus string

const (
	InvoiceDraft         InvoiceStatus = "draft"
	InvoiceSent          InvoiceStatus = "sent"
	InvoicePartiallyPaid InvoiceStatus = "partially_paid"
	InvoicePaid          InvoiceStatus = "paid"
	InvoiceOverdue       InvoiceStatus = "overdue"
	InvoiceCancelled     InvoiceStatus = "cancelled"
)

// Invoice amounts are owned by the billing engine. AmountPaid and AmountDue
// mirror the sum of the invoice's live payments.
type Invoice struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	DeletedAt    gorm.DeletedAt  `gorm:"index" json:"-"`
	Number       string          `gorm:"uniqueIndex;size:50;not null" json:"number"`
	QuotationID  *uint           `gorm:"uniqueIndex" json:"quotation_id"`
	ClientID     *uint           `gorm:"index" json:"client_id"`
	Client       *Client         `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	ContactEmail string          `gorm:"size:255" json:"contact_email"`
	Items        []InvoiceItem   `gorm:"foreignKey:InvoiceID" json:"items,omitempty"`
	Payments     []Payment       `gorm:"foreignKey:InvoiceID" json:"payments,omitempty"`
	Subtotal     decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"subtotal"`
	TaxAmount    decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"tax_amount"`
	TotalAmount  decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"total_amount"`
	AmountPaid   decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"amount_paid"`
	AmountDue    decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"amount_due"`
	Status       InvoiceStatus   `gorm:"size:20;not null;default:'draft';index" json:"status"`
	IssueDate    time.Time       `json:"issue_date"`
	DueDate      *time.Time      `gorm:"index" json:"due_date"`
	Notes        string          `gorm:"type:text" json:"notes"`
}

// TableName overrides the table name
func (Invoice) TableName() string {
	return "invoices"
}
