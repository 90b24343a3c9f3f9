package billing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/billflow/models"
)

func TestDeriveInvoiceStatus(t *testing.T) {
	tests := []struct {
		name    string
		current models.InvoiceStatus
		total   string
		paid    string
		want    models.InvoiceStatus
	}{
		{name: "Fully paid", current: models.InvoiceSent, total: "1000", paid: "1000", want: models.InvoicePaid},
		{name: "Partial", current: models.InvoiceSent, total: "1000", paid: "1", want: models.InvoicePartiallyPaid},
		{name: "Overdue partial", current: models.InvoiceOverdue, total: "1000", paid: "500", want: models.InvoicePartiallyPaid},
		{name: "Overdue paid", current: models.InvoiceOverdue, total: "1000", paid: "1000", want: models.InvoicePaid},
		{name: "Overdue unpaid stays", current: models.InvoiceOverdue, total: "1000", paid: "0", want: models.InvoiceOverdue},
		{name: "Voided back to sent", current: models.InvoicePaid, total: "1000", paid: "0", want: models.InvoiceSent},
		{name: "Draft untouched", current: models.InvoiceDraft, total: "1000", paid: "0", want: models.InvoiceDraft},
		{name: "Cancelled untouched", current: models.InvoiceCancelled, total: "1000", paid: "200", want: models.InvoiceCancelled},
		{name: "Zero total stays", current: models.InvoiceSent, total: "0", paid: "0", want: models.InvoiceSent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveInvoiceStatus(tt.current, dec(tt.total), dec(tt.paid))
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, DeriveInvoiceStatus(got, dec(tt.total), dec(tt.paid)), "derivation is idempotent")
		})
	}
}

func TestAmountDueFloorsAtZero(t *testing.T) {
	assert.True(t, AmountDue(dec("100"), dec("150")).IsZero())
	assert.True(t, AmountDue(dec("100"), dec("40")).Equal(dec("60")))
}

func TestRecomputeInvoiceBalanceIsIdempotent(t *testing.T) {
	e, db := setupEngine(t)
	ctx := context.Background()
	inv := sentInvoice(t, e, "1000", day(10))
	_, _, _, err := e.ApplyPayment(ctx, inv.ID, PaymentInput{Amount: dec("250")})
	require.NoError(t, err)

	// Corrupt the stored balance; recomputation restores it from payments.
	require.NoError(t, db.Model(&models.Invoice{}).Where("id = ?", inv.ID).
		Updates(map[string]any{"amount_paid": dec("0"), "amount_due": dec("1000")}).Error)

	first, err := e.RecomputeInvoiceBalance(ctx, inv.ID)
	require.NoError(t, err)
	second, err := e.RecomputeInvoiceBalance(ctx, inv.ID)
	require.NoError(t, err)

	for _, got := range []*models.Invoice{first, second} {
		assert.Equal(t, "250.00", got.AmountPaid.StringFixed(2))
		assert.Equal(t, "750.00", got.AmountDue.StringFixed(2))
		assert.Equal(t, models.InvoicePartiallyPaid, got.Status)
	}
}

func TestMarkOverdue(t *testing.T) {
	e, _ := setupEngine(t)
	ctx := context.Background()

	t.Run("Past due sent invoice", func(t *testing.T) {
		inv := sentInvoice(t, e, "1000", day(-1))

		got, events, err := e.MarkOverdue(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, models.InvoiceOverdue, got.Status)
		require.Len(t, events, 1)
		assert.Equal(t, models.EventInvoiceOverdue, events[0].Type)
		assert.Equal(t, "1000.00", events[0].Value(models.PayloadAmountDue))

		got, events, err = e.MarkOverdue(ctx, inv.ID)
		require.NoError(t, err, "already overdue is a no-op")
		assert.Equal(t, models.InvoiceOverdue, got.Status)
		assert.Empty(t, events)
	})

	t.Run("Partially paid invoice", func(t *testing.T) {
		inv := sentInvoice(t, e, "1000", day(-3))
		_, _, _, err := e.ApplyPayment(ctx, inv.ID, PaymentInput{Amount: dec("100")})
		require.NoError(t, err)

		got, events, err := e.MarkOverdue(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, models.InvoiceOverdue, got.Status)
		assert.Len(t, events, 1)

		_, got, _, err = e.ApplyPayment(ctx, inv.ID, PaymentInput{Amount: dec("900")})
		require.NoError(t, err)
		assert.Equal(t, models.InvoicePaid, got.Status, "overdue invoices still accept payments")
	})

	t.Run("Due today is not overdue", func(t *testing.T) {
		inv := sentInvoice(t, e, "1000", day(0))
		_, _, err := e.MarkOverdue(ctx, inv.ID)
		assert.ErrorIs(t, err, ErrIllegalTransition)
	})

	t.Run("Paid invoice", func(t *testing.T) {
		inv := sentInvoice(t, e, "1000", day(-1))
		_, _, _, err := e.ApplyPayment(ctx, inv.ID, PaymentInput{Amount: dec("1000")})
		require.NoError(t, err)
		_, _, err = e.MarkOverdue(ctx, inv.ID)
		assert.ErrorIs(t, err, ErrIllegalTransition)
	})

	t.Run("Draft invoice", func(t *testing.T) {
		inv, _, err := e.CreateInvoice(ctx, CreateInvoiceInput{Items: singleItem("10"), IssueDate: *day(-30), DueDate: day(-5)})
		require.NoError(t, err)
		_, _, err = e.MarkOverdue(ctx, inv.ID)
		assert.ErrorIs(t, err, ErrIllegalTransition)
	})
}

func TestCancelAndDeleteInvoice(t *testing.T) {
	e, db := setupEngine(t)
	ctx := context.Background()

	inv := sentInvoice(t, e, "500", day(5))
	_, _, _, err := e.ApplyPayment(ctx, inv.ID, PaymentInput{Amount: dec("100")})
	require.NoError(t, err)

	cancelled, events, err := e.CancelInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceCancelled, cancelled.Status)
	assert.Equal(t, []models.EventType{models.EventInvoiceCancelled}, eventTypes(events))

	_, _, err = e.CancelInvoice(ctx, inv.ID)
	assert.ErrorIs(t, err, ErrIllegalTransition, "cancelled is terminal")
	assert.ErrorIs(t, e.DeleteInvoice(ctx, inv.ID), ErrAuditLocked, "payments pin the invoice")

	draft, _, err := e.CreateInvoice(ctx, CreateInvoiceInput{Items: singleItem("10")})
	require.NoError(t, err)
	require.NoError(t, e.DeleteInvoice(ctx, draft.ID))

	_, err = e.GetInvoice(ctx, draft.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	var purged int64
	require.NoError(t, db.Unscoped().Model(&models.Invoice{}).Where("id = ?", draft.ID).Count(&purged).Error)
	assert.Equal(t, int64(1), purged, "soft deleted, never purged")

	paid := sentInvoice(t, e, "10", day(5))
	_, _, _, err = e.ApplyPayment(ctx, paid.ID, PaymentInput{Amount: dec("10")})
	require.NoError(t, err)
	_, _, err = e.CancelInvoice(ctx, paid.ID)
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestSendInvoice(t *testing.T) {
	e, _ := setupEngine(t)
	ctx := context.Background()

	inv, events, err := e.CreateInvoice(ctx, CreateInvoiceInput{Items: singleItem("10"), DueDate: day(30)})
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceDraft, inv.Status)
	assert.Equal(t, []models.EventType{models.EventInvoiceCreated}, eventTypes(events))

	inv, events, err = e.SendInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceSent, inv.Status)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventInvoiceSent, events[0].Type)
	assert.Equal(t, inv.ID, events[0].SubjectID)
	assert.Equal(t, "sent", events[0].Value(models.PayloadStatus))
	assert.Equal(t, "draft", events[0].Value(models.PayloadPreviousStatus))
	assert.Equal(t, day(30).Format(time.DateOnly), events[0].Value(models.PayloadDueDate))

	_, _, err = e.SendInvoice(ctx, inv.ID)
	assert.ErrorIs(t, err, ErrIllegalTransition)

	_, _, err = e.CreateInvoice(ctx, CreateInvoiceInput{Items: singleItem("10"), DueDate: day(-1)})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestDashboardQueries(t *testing.T) {
	e, _ := setupEngine(t)
	ctx := context.Background()

	overdue := sentInvoice(t, e, "100", day(-2))
	_, _, err := e.MarkOverdue(ctx, overdue.ID)
	require.NoError(t, err)
	soon := sentInvoice(t, e, "100", day(3))
	sentInvoice(t, e, "100", day(30))

	got, err := e.OverdueInvoices(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, overdue.ID, got[0].ID)

	due, err := e.InvoicesDueWithin(ctx, 7)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, soon.ID, due[0].ID)

	_, err = e.InvoicesDueWithin(ctx, -1)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, _, err = e.CreateQuotation(ctx, CreateQuotationInput{LeadName: "L", FromLead: true, Items: singleItem("5")})
	require.NoError(t, err)
	_, _, err = e.CreateQuotation(ctx, CreateQuotationInput{LeadName: "D", Items: singleItem("5")})
	require.NoError(t, err)
	pending, err := e.PendingQuotations(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, models.QuotationPending, pending[0].Status)
}
