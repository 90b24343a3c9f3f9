package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type QuotationStatus string

const (
	QuotationDraft    QuotationStatus = "draft"
	QuotationPending  QuotationStatus = "pending"
	QuotationSent     QuotationStatus = "sent"
	QuotationAccepted QuotationStatus = "accepted"
	QuotationRejected QuotationStatus = "rejected"
	QuotationInvoiced QuotationStatus = "invoiced"
)

// Quotation is never soft deleted: drafts may be removed outright, anything
// sent or later stays as the audit trail.
type Quotation struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Number      string          `gorm:"uniqueIndex;size:50;not null" json:"number"`
	ClientID    *uint           `gorm:"index" json:"client_id"`
	Client      *Client         `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	LeadName    string          `gorm:"size:255" json:"lead_name"`
	LeadEmail   string          `gorm:"size:255" json:"lead_email"`
	Items       []QuotationItem `gorm:"foreignKey:QuotationID" json:"items,omitempty"`
	Subtotal    decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"subtotal"`
	TaxAmount   decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"tax_amount"`
	TotalAmount decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"total_amount"`
	Status      QuotationStatus `gorm:"size:20;not null;default:'draft';index" json:"status"`
	IssueDate   time.Time       `json:"issue_date"`
	ExpiryDate  *time.Time      `json:"expiry_date"`
	Notes       string          `gorm:"type:text" json:"notes"`
}

// TableName overrides the table name
func (Quotation) TableName() string {
	return "quotations"
}
