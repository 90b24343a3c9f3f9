package billing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/billflow/models"
)

func TestCreateQuotation(t *testing.T) {
	e, db := setupEngine(t)
	ctx := context.Background()

	t.Run("Lead request is pending", func(t *testing.T) {
		q, events, err := e.CreateQuotation(ctx, CreateQuotationInput{
			LeadName:  "Ada",
			LeadEmail: "ada@example.com",
			FromLead:  true,
			Items:     []ItemInput{{Description: "Website", Quantity: dec("1"), UnitPrice: dec("1000"), TaxRate: dec("10")}},
		})
		require.NoError(t, err)

		assert.Equal(t, models.QuotationPending, q.Status)
		assert.Equal(t, "QUO-000001", q.Number)
		assert.Equal(t, "1100.00", q.TotalAmount.StringFixed(2))
		assert.True(t, q.TotalAmount.Equal(q.Subtotal.Add(q.TaxAmount)))
		require.Len(t, events, 1)
		assert.Equal(t, models.EventQuotationCreated, events[0].Type)
		assert.Equal(t, q.ID, events[0].SubjectID)
		assert.Equal(t, "QUO-000001", events[0].Value(models.PayloadNumber))
	})

	t.Run("Operator draft for a client", func(t *testing.T) {
		client := models.Client{Name: "Acme", Email: "billing@acme.test"}
		require.NoError(t, db.Create(&client).Error)

		q, _, err := e.CreateQuotation(ctx, CreateQuotationInput{ClientID: &client.ID, Items: singleItem("250")})
		require.NoError(t, err)
		assert.Equal(t, models.QuotationDraft, q.Status)
		assert.Equal(t, "QUO-000002", q.Number)
	})

	t.Run("Unknown client", func(t *testing.T) {
		missing := uint(999)
		_, _, err := e.CreateQuotation(ctx, CreateQuotationInput{ClientID: &missing, Items: singleItem("1")})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("No client or lead", func(t *testing.T) {
		_, _, err := e.CreateQuotation(ctx, CreateQuotationInput{Items: singleItem("1")})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestQuotationStateMachine(t *testing.T) {
	tests := []struct {
		from models.QuotationStatus
		to   models.QuotationStatus
		want bool
	}{
		{models.QuotationDraft, models.QuotationSent, true},
		{models.QuotationPending, models.QuotationSent, true},
		{models.QuotationSent, models.QuotationAccepted, true},
		{models.QuotationSent, models.QuotationRejected, true},
		{models.QuotationAccepted, models.QuotationInvoiced, true},
		{models.QuotationDraft, models.QuotationInvoiced, false},
		{models.QuotationDraft, models.QuotationAccepted, false},
		{models.QuotationSent, models.QuotationInvoiced, false},
		{models.QuotationAccepted, models.QuotationSent, false},
		{models.QuotationRejected, models.QuotationAccepted, false},
		{models.QuotationInvoiced, models.QuotationAccepted, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransitionQuotation(tt.from, tt.to))
		})
	}
}

func TestTransitionQuotationToInvoiced(t *testing.T) {
	e, db := setupEngine(t)
	ctx := context.Background()

	q, _, err := e.CreateQuotation(ctx, CreateQuotationInput{LeadEmail: "lead@example.com", Items: singleItem("1000")})
	require.NoError(t, err)

	t.Run("Draft cannot jump to invoiced", func(t *testing.T) {
		_, _, err := e.TransitionQuotation(ctx, q.ID, models.QuotationInvoiced, false)
		assert.ErrorIs(t, err, ErrIllegalTransition)

		_, _, err = e.TransitionQuotation(ctx, q.ID, models.QuotationInvoiced, true)
		assert.ErrorIs(t, err, ErrIllegalTransition, "override never reaches invoiced")
	})

	t.Run("Draft cannot skip to accepted", func(t *testing.T) {
		_, _, err := e.TransitionQuotation(ctx, q.ID, models.QuotationAccepted, false)
		var te *TransitionError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, "draft", te.From)
		assert.Equal(t, "accepted", te.To)
	})

	q, events, err := e.TransitionQuotation(ctx, q.ID, models.QuotationSent, false)
	require.NoError(t, err)
	assert.Equal(t, models.QuotationSent, q.Status)
	require.Len(t, events, 1)
	assert.Equal(t, "draft", events[0].Value(models.PayloadPreviousStatus))

	q, _, err = e.TransitionQuotation(ctx, q.ID, models.QuotationAccepted, false)
	require.NoError(t, err)

	q, events, err = e.TransitionQuotation(ctx, q.ID, models.QuotationInvoiced, false)
	require.NoError(t, err)
	assert.Equal(t, models.QuotationInvoiced, q.Status)
	assert.Equal(t, []models.EventType{models.EventQuotationStatusChanged, models.EventInvoiceCreated}, eventTypes(events))

	var inv models.Invoice
	require.NoError(t, db.Preload("Items").Where("quotation_id = ?", q.ID).First(&inv).Error)
	assert.Equal(t, models.InvoiceDraft, inv.Status)
	assert.Equal(t, "lead@example.com", inv.ContactEmail)
	assert.True(t, inv.TotalAmount.Equal(q.TotalAmount))
	assert.True(t, inv.AmountDue.Equal(q.TotalAmount))
	assert.Len(t, inv.Items, 1)
	require.NotNil(t, inv.DueDate)
	assert.True(t, startOfDay(testNow).Add(defaultPaymentTerms).Equal(*inv.DueDate))

	t.Run("Backwards move is rejected", func(t *testing.T) {
		_, _, err := e.TransitionQuotation(ctx, q.ID, models.QuotationSent, true)
		assert.ErrorIs(t, err, ErrIllegalTransition)
	})

	t.Run("Second conversion is rejected", func(t *testing.T) {
		_, _, err := e.CreateInvoiceFromQuotation(ctx, q.ID, nil)
		assert.ErrorIs(t, err, ErrAlreadyInvoiced)
	})
}

func TestAdministrativeOverride(t *testing.T) {
	e, _ := setupEngine(t)
	ctx := context.Background()

	q, _, err := e.CreateQuotation(ctx, CreateQuotationInput{LeadName: "Lead", Items: singleItem("10")})
	require.NoError(t, err)
	_, _, err = e.TransitionQuotation(ctx, q.ID, models.QuotationSent, false)
	require.NoError(t, err)
	_, _, err = e.TransitionQuotation(ctx, q.ID, models.QuotationRejected, false)
	require.NoError(t, err)

	_, _, err = e.TransitionQuotation(ctx, q.ID, models.QuotationSent, false)
	assert.ErrorIs(t, err, ErrIllegalTransition)

	q, _, err = e.TransitionQuotation(ctx, q.ID, models.QuotationSent, true)
	require.NoError(t, err)
	assert.Equal(t, models.QuotationSent, q.Status)
}

func TestConvertRequiresAccepted(t *testing.T) {
	e, _ := setupEngine(t)
	ctx := context.Background()

	q, _, err := e.CreateQuotation(ctx, CreateQuotationInput{LeadName: "Lead", Items: singleItem("10")})
	require.NoError(t, err)
	_, _, err = e.TransitionQuotation(ctx, q.ID, models.QuotationSent, false)
	require.NoError(t, err)

	_, _, err = e.CreateInvoiceFromQuotation(ctx, q.ID, nil)
	assert.ErrorIs(t, err, ErrIllegalTransition)

	_, _, err = e.TransitionQuotation(ctx, q.ID, models.QuotationAccepted, false)
	require.NoError(t, err)

	_, _, err = e.CreateInvoiceFromQuotation(ctx, q.ID, day(-1))
	assert.ErrorIs(t, err, ErrInvalidInput, "due date before the issue day")
	q, err = e.GetQuotation(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QuotationAccepted, q.Status)

	inv, events, err := e.CreateInvoiceFromQuotation(ctx, q.ID, day(14))
	require.NoError(t, err)
	assert.True(t, day(14).Equal(*inv.DueDate))
	assert.Equal(t, "INV-000001", inv.Number)
	assert.Equal(t, []models.EventType{models.EventQuotationStatusChanged, models.EventInvoiceCreated}, eventTypes(events))
}

func TestUpdateAndDeleteQuotation(t *testing.T) {
	e, _ := setupEngine(t)
	ctx := context.Background()

	q, _, err := e.CreateQuotation(ctx, CreateQuotationInput{LeadName: "Lead", Items: singleItem("10")})
	require.NoError(t, err)

	q, err = e.UpdateQuotationItems(ctx, q.ID, []ItemInput{
		{Description: "A", Quantity: dec("2"), UnitPrice: dec("50"), TaxRate: dec("10")},
		{Description: "B", Quantity: dec("1"), UnitPrice: dec("5")},
	})
	require.NoError(t, err)
	assert.Len(t, q.Items, 2)
	assert.Equal(t, "115.00", q.TotalAmount.StringFixed(2))

	_, _, err = e.TransitionQuotation(ctx, q.ID, models.QuotationSent, false)
	require.NoError(t, err)

	_, err = e.UpdateQuotationItems(ctx, q.ID, singleItem("1"))
	assert.ErrorIs(t, err, ErrAuditLocked)
	assert.ErrorIs(t, e.DeleteQuotation(ctx, q.ID), ErrAuditLocked)

	draft, _, err := e.CreateQuotation(ctx, CreateQuotationInput{LeadName: "Other", Items: singleItem("10")})
	require.NoError(t, err)
	require.NoError(t, e.DeleteQuotation(ctx, draft.ID))
	_, err = e.GetQuotation(ctx, draft.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
