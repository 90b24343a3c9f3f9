package billing

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/billflow/config"
	"github.com/yourusername/billflow/models"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := config.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, config.Migrate(db))
	return db
}

func setupEngine(t *testing.T, opts ...Option) (*Engine, *gorm.DB) {
	t.Helper()
	db := setupTestDB(t)
	base := []Option{WithClock(func() time.Time { return testNow }), WithLogger(quietLogger())}
	return NewEngine(db, append(base, opts...)...), db
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(offset int) *time.Time {
	d := startOfDay(testNow).AddDate(0, 0, offset)
	return &d
}

func singleItem(price string) []ItemInput {
	return []ItemInput{{Description: "Consulting", Quantity: dec("1"), UnitPrice: dec(price)}}
}

// sentInvoice creates and sends an invoice for total with the given due date.
// The issue date is backdated so past due dates are accepted.
func sentInvoice(t *testing.T, e *Engine, total string, due *time.Time) *models.Invoice {
	t.Helper()
	ctx := context.Background()
	inv, _, err := e.CreateInvoice(ctx, CreateInvoiceInput{
		ContactEmail: "ap@example.com",
		Items:        singleItem(total),
		IssueDate:    *day(-60),
		DueDate:      due,
	})
	require.NoError(t, err)
	inv, _, err = e.SendInvoice(ctx, inv.ID)
	require.NoError(t, err)
	return inv
}

func eventTypes(events []models.Event) []models.EventType {
	types := make([]models.EventType, 0, len(events))
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	return types
}
