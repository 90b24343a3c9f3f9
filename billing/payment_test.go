package billing

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/billflow/models"
)

func TestApplyPaymentSettlesInvoice(t *testing.T) {
	e, _ := setupEngine(t)
	ctx := context.Background()
	inv := sentInvoice(t, e, "1000", day(10))

	payment, inv, events, err := e.ApplyPayment(ctx, inv.ID, PaymentInput{Amount: dec("1000"), Method: "bank_transfer"})
	require.NoError(t, err)

	assert.Equal(t, "PAY-000001", payment.Number)
	assert.Equal(t, models.InvoicePaid, inv.Status)
	assert.True(t, inv.AmountDue.IsZero())
	assert.True(t, inv.AmountPaid.Equal(dec("1000")))
	require.Len(t, events, 1)
	assert.Equal(t, models.EventPaymentReceived, events[0].Type)
	assert.Equal(t, inv.Number, events[0].Value(models.PayloadInvoiceNumber))
	assert.Equal(t, "paid", events[0].Value(models.PayloadStatus))
}

func TestApplyPaymentRejectsOverpayment(t *testing.T) {
	e, _ := setupEngine(t)
	ctx := context.Background()
	inv := sentInvoice(t, e, "1000", day(10))

	_, _, events, err := e.ApplyPayment(ctx, inv.ID, PaymentInput{Amount: dec("1200")})
	require.ErrorIs(t, err, ErrOverpayment)
	assert.Nil(t, events)

	var over *OverpaymentError
	require.ErrorAs(t, err, &over)
	assert.True(t, over.Paid.IsZero())

	got, err := e.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, got.AmountPaid.IsZero())
	assert.True(t, got.AmountDue.Equal(dec("1000")))
	assert.Equal(t, models.InvoiceSent, got.Status)
	assert.Empty(t, got.Payments)
}

func TestPartialPaymentsAndVoiding(t *testing.T) {
	e, _ := setupEngine(t)
	ctx := context.Background()
	inv := sentInvoice(t, e, "1000", day(10))

	first, inv, _, err := e.ApplyPayment(ctx, inv.ID, PaymentInput{Amount: dec("400")})
	require.NoError(t, err)
	assert.Equal(t, models.InvoicePartiallyPaid, inv.Status)
	assert.Equal(t, "600.00", inv.AmountDue.StringFixed(2))

	_, _, _, err = e.ApplyPayment(ctx, inv.ID, PaymentInput{Amount: dec("600.01")})
	assert.ErrorIs(t, err, ErrOverpayment)

	_, inv, _, err = e.ApplyPayment(ctx, inv.ID, PaymentInput{Amount: dec("600")})
	require.NoError(t, err)
	assert.Equal(t, models.InvoicePaid, inv.Status)

	inv, err = e.DeletePayment(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoicePartiallyPaid, inv.Status)
	assert.Equal(t, "600.00", inv.AmountPaid.StringFixed(2))
	assert.Equal(t, "400.00", inv.AmountDue.StringFixed(2))
	assert.Len(t, inv.Payments, 1)

	inv, err = e.DeletePayment(ctx, inv.Payments[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceSent, inv.Status)
	assert.True(t, inv.AmountDue.Equal(dec("1000")))

	_, err = e.DeletePayment(ctx, first.ID)
	assert.ErrorIs(t, err, ErrNotFound, "voided payments are gone")
}

func TestCorrectPayment(t *testing.T) {
	e, _ := setupEngine(t)
	ctx := context.Background()
	inv := sentInvoice(t, e, "1000", day(10))

	p, _, _, err := e.ApplyPayment(ctx, inv.ID, PaymentInput{Amount: dec("300")})
	require.NoError(t, err)
	_, _, _, err = e.ApplyPayment(ctx, inv.ID, PaymentInput{Amount: dec("500")})
	require.NoError(t, err)

	_, _, err = e.CorrectPayment(ctx, p.ID, PaymentInput{Amount: dec("501")})
	assert.ErrorIs(t, err, ErrOverpayment)

	p, inv, err = e.CorrectPayment(ctx, p.ID, PaymentInput{Amount: dec("500"), Method: "cash", Reference: "receipt-7"})
	require.NoError(t, err)
	assert.Equal(t, "cash", p.PaymentMethod)
	assert.Equal(t, "receipt-7", p.TransactionReference)
	assert.Equal(t, models.InvoicePaid, inv.Status)
}

func TestApplyPaymentValidation(t *testing.T) {
	e, _ := setupEngine(t)
	ctx := context.Background()

	draft, _, err := e.CreateInvoice(ctx, CreateInvoiceInput{Items: singleItem("100")})
	require.NoError(t, err)
	sent := sentInvoice(t, e, "100", day(10))

	tests := []struct {
		name      string
		invoiceID uint
		input     PaymentInput
		wantErr   error
	}{
		{name: "Zero amount", invoiceID: sent.ID, input: PaymentInput{Amount: decimal.Zero}, wantErr: ErrInvalidAmount},
		{name: "Negative amount", invoiceID: sent.ID, input: PaymentInput{Amount: dec("-5")}, wantErr: ErrInvalidAmount},
		{name: "Unknown method", invoiceID: sent.ID, input: PaymentInput{Amount: dec("5"), Method: "barter"}, wantErr: ErrInvalidInput},
		{name: "Draft invoice", invoiceID: draft.ID, input: PaymentInput{Amount: dec("5")}, wantErr: ErrIllegalTransition},
		{name: "Missing invoice", invoiceID: 999, input: PaymentInput{Amount: dec("5")}, wantErr: ErrNotFound},
		{name: "Stellar without reference", invoiceID: sent.ID, input: PaymentInput{Amount: dec("5"), Method: "stellar"}, wantErr: ErrSettlementUnverified},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := e.ApplyPayment(ctx, tt.invoiceID, tt.input)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

type stubVerifier struct {
	err   error
	calls []string
}

func (s *stubVerifier) VerifySettlement(txHash string, amount decimal.Decimal) error {
	s.calls = append(s.calls, txHash+"@"+amount.String())
	return s.err
}

func TestApplyPaymentVerifiesStellarSettlement(t *testing.T) {
	verifier := &stubVerifier{}
	e, _ := setupEngine(t, WithSettlementVerifier(verifier))
	ctx := context.Background()
	inv := sentInvoice(t, e, "100", day(10))
	hash := strings.Repeat("ab", 32)

	verifier.err = errors.New("transaction failed on ledger")
	_, _, _, err := e.ApplyPayment(ctx, inv.ID, PaymentInput{Amount: dec("40"), Method: "stellar", Reference: hash})
	assert.ErrorIs(t, err, ErrSettlementUnverified)

	verifier.err = nil
	p, _, _, err := e.ApplyPayment(ctx, inv.ID, PaymentInput{Amount: dec("40"), Method: "Stellar", Reference: hash})
	require.NoError(t, err)
	assert.Equal(t, "stellar", p.PaymentMethod)
	assert.Equal(t, []string{hash + "@40", hash + "@40"}, verifier.calls)
}

func TestStellarReferenceSettlesOnePayment(t *testing.T) {
	e, _ := setupEngine(t, WithSettlementVerifier(&stubVerifier{}))
	ctx := context.Background()
	first := sentInvoice(t, e, "1000", day(10))
	second := sentInvoice(t, e, "1000", day(10))
	hash := strings.Repeat("cd", 32)

	p, _, _, err := e.ApplyPayment(ctx, first.ID, PaymentInput{Amount: dec("1000"), Method: "stellar", Reference: hash})
	require.NoError(t, err)

	_, _, _, err = e.ApplyPayment(ctx, second.ID, PaymentInput{Amount: dec("1000"), Method: "stellar", Reference: " " + strings.ToUpper(hash)})
	assert.ErrorIs(t, err, ErrDuplicateReference, "the same hash in another case is the same transaction")

	_, _, _, err = e.ApplyPayment(ctx, first.ID, PaymentInput{Amount: dec("1"), Method: "stellar", Reference: hash})
	assert.ErrorIs(t, err, ErrDuplicateReference)

	// A correction may keep its own reference.
	_, _, err = e.CorrectPayment(ctx, p.ID, PaymentInput{Amount: dec("900"), Method: "stellar", Reference: hash})
	require.NoError(t, err)

	// Voiding releases the reference.
	_, err = e.DeletePayment(ctx, p.ID)
	require.NoError(t, err)
	_, inv, _, err := e.ApplyPayment(ctx, second.ID, PaymentInput{Amount: dec("1000"), Method: "stellar", Reference: hash})
	require.NoError(t, err)
	assert.Equal(t, models.InvoicePaid, inv.Status)

	// Other methods may share references.
	third := sentInvoice(t, e, "50", day(10))
	_, _, _, err = e.ApplyPayment(ctx, third.ID, PaymentInput{Amount: dec("10"), Method: "bank_transfer", Reference: "WIRE-1"})
	require.NoError(t, err)
	_, _, _, err = e.ApplyPayment(ctx, third.ID, PaymentInput{Amount: dec("10"), Method: "bank_transfer", Reference: "WIRE-1"})
	assert.NoError(t, err)
}

func TestConcurrentPaymentsNeverOverpay(t *testing.T) {
	e, _ := setupEngine(t)
	ctx := context.Background()
	inv := sentInvoice(t, e, "1000", day(10))

	const workers = 10
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		rejected int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _, err := e.ApplyPayment(ctx, inv.ID, PaymentInput{Amount: dec("200")})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, ErrOverpayment):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, accepted)
	assert.Equal(t, 5, rejected)

	got, err := e.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoicePaid, got.Status)
	assert.True(t, got.AmountPaid.Equal(got.TotalAmount))
	assert.Len(t, got.Payments, 5)
}
