// Package models holds the gorm persistence models for the billing and
// workflow platform.
package models

// All returns every model that must be migrated, in dependency order.
func All() []any {
	return []any{
		&User{},
		&Client{},
		&Sequence{},
		&Quotation{},
		&QuotationItem{},
		&Invoice{},
		&InvoiceItem{},
		&Payment{},
		&Project{},
		&Task{},
		&TimeLog{},
		&Notification{},
		&Delivery{},
	}
}
