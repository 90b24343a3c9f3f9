// Package numbering hands out human-readable document numbers such as
// INV-000123. Numbers come from a per-scope counter row that only moves
// forward, so a number is never reused even after its document is deleted.
package numbering

import (
	"errors"
	"fmt"

	"github.com/yourusername/billflow/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrCollision is returned when a generated number is already taken. The
// creating transaction is rolled back and the caller may retry.
var ErrCollision = errors.New("document number collision")

type Scope string

const (
	ScopeQuotation Scope = "quotation"
	ScopeInvoice   Scope = "invoice"
	ScopePayment   Scope = "payment"
)

var prefixes = map[Scope]string{
	ScopeQuotation: "QUO",
	ScopeInvoice:   "INV",
	ScopePayment:   "PAY",
}

const width = 6

// Next reserves the next number for scope. It must run inside the
// transaction that creates the owning document; the counter row stays locked
// until that transaction ends, which serialises concurrent creators.
func Next(tx *gorm.DB, scope Scope) (string, error) {
	if _, ok := prefixes[scope]; !ok {
		return "", fmt.Errorf("unknown numbering scope %q", scope)
	}

	seed := models.Sequence{Scope: string(scope)}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return "", fmt.Errorf("seed %s sequence: %w", scope, err)
	}

	res := tx.Model(&models.Sequence{}).
		Where("scope = ?", string(scope)).
		Update("last_value", gorm.Expr("last_value + 1"))
	if res.Error != nil {
		return "", fmt.Errorf("advance %s sequence: %w", scope, res.Error)
	}
	if res.RowsAffected != 1 {
		return "", fmt.Errorf("advance %s sequence: %d rows updated", scope, res.RowsAffected)
	}

	var seq models.Sequence
	if err := tx.Where("scope = ?", string(scope)).First(&seq).Error; err != nil {
		return "", fmt.Errorf("read %s sequence: %w", scope, err)
	}
	return Format(scope, seq.LastValue), nil
}

func Format(scope Scope, n int64) string {
	return fmt.Sprintf("%s-%0*d", prefixes[scope], width, n)
}

// Translate maps a duplicate-key failure from the document insert onto
// ErrCollision and leaves every other error untouched.
func Translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", ErrCollision, err)
	}
	return err
}
