package billing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/yourusername/billflow/models"
)

var hundred = decimal.NewFromInt(100)

// ItemInput is a caller-supplied line item. Amounts are always derived.
type ItemInput struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
}

// Totals is the derived money summary of a set of line items.
type Totals struct {
	Subtotal  decimal.Decimal
	TaxAmount decimal.Decimal
	Total     decimal.Decimal
}

// BuildLineItems validates inputs and prices each line.
func BuildLineItems(inputs []ItemInput) ([]models.LineItem, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: at least one line item is required", ErrInvalidLineItem)
	}
	items := make([]models.LineItem, 0, len(inputs))
	for i, in := range inputs {
		desc := strings.TrimSpace(in.Description)
		switch {
		case desc == "":
			return nil, fmt.Errorf("%w: line %d has no description", ErrInvalidLineItem, i+1)
		case !in.Quantity.IsPositive():
			return nil, fmt.Errorf("%w: line %d quantity must be positive", ErrInvalidLineItem, i+1)
		case in.UnitPrice.IsNegative():
			return nil, fmt.Errorf("%w: line %d unit price must not be negative", ErrInvalidLineItem, i+1)
		case in.TaxRate.IsNegative() || in.TaxRate.GreaterThan(hundred):
			return nil, fmt.Errorf("%w: line %d tax rate must be between 0 and 100", ErrInvalidLineItem, i+1)
		}
		amount := in.Quantity.Mul(in.UnitPrice).Round(2)
		items = append(items, models.LineItem{
			Position:    i + 1,
			Description: desc,
			Quantity:    in.Quantity,
			UnitPrice:   in.UnitPrice,
			TaxRate:     in.TaxRate,
			Amount:      amount,
			TaxAmount:   amount.Mul(in.TaxRate).Div(hundred).Round(2),
		})
	}
	return items, nil
}

// ComputeTotals sums priced line items. Total is always Subtotal + TaxAmount.
func ComputeTotals(items []models.LineItem) Totals {
	subtotal := decimal.Zero
	tax := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.Amount)
		tax = tax.Add(item.TaxAmount)
	}
	return Totals{
		Subtotal:  subtotal,
		TaxAmount: tax,
		Total:     subtotal.Add(tax),
	}
}
