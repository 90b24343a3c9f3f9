package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	PaymentMethodBankTransfer = "bank_transfer"
	PaymentMethodCard         = "card"
	PaymentMethodCash         = "cash"
	PaymentMethodCheque       = "cheque"
	PaymentMethodStellar      = "stellar"
)

// Payment rows are soft deleted when voided; a voided payment no longer
// counts towards its invoice balance.
type Payment struct {
	ID                   uint            `gorm:"primaryKey" json:"id"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
	DeletedAt            gorm.DeletedAt  `gorm:"index" json:"-"`
	Number               string          `gorm:"uniqueIndex;size:50;not null" json:"number"`
	InvoiceID            uint            `gorm:"not null;index" json:"invoice_id"`
	ClientID             *uint           `gorm:"index" json:"client_id"`
	Amount               decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"`
	PaymentDate          time.Time       `json:"payment_date"`
	PaymentMethod        string          `gorm:"size:30;not null" json:"payment_method"`
	TransactionReference string          `gorm:"size:255;uniqueIndex:idx_payment_stellar_reference,where:payment_method = 'stellar' AND deleted_at IS NULL" json:"transaction_reference"`
	Notes                string          `gorm:"type:text" json:"notes"`
}

// TableName overrides the table name
func (Payment) TableName() string {
	return "payments"
}
