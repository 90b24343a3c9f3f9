package models

import "github.com/shopspring/decimal"

// LineItem is the priced row shared by quotations and invoices. Amount and
// TaxAmount are derived from the other fields and never accepted from callers.
type LineItem struct {
	Position    int             `gorm:"not null;default:0" json:"position"`
	Description string          `gorm:"size:500;not null" json:"description"`
	Quantity    decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"unit_price"`
	TaxRate     decimal.Decimal `gorm:"type:decimal(7,4);not null;default:0" json:"tax_rate"`
	Amount      decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"`
	TaxAmount   decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"tax_amount"`
}

type QuotationItem struct {
	ID          uint     `gorm:"primaryKey" json:"id"`
	QuotationID uint     `gorm:"not null;index" json:"quotation_id"`
	LineItem    `gorm:"embedded"`
}

// TableName overrides the table name
func (QuotationItem) TableName() string {
	return "quotation_items"
}

type InvoiceItem struct {
	ID        uint     `gorm:"primaryKey" json:"id"`
	InvoiceID uint     `gorm:"not null;index" json:"invoice_id"`
	LineItem  `gorm:"embedded"`
}

// TableName overrides the table name
func (InvoiceItem) TableName() string {
	return "invoice_items"
}
