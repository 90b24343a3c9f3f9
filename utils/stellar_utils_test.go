package utils

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/keypair"
	hProtocol "github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/protocols/horizon/base"
	"github.com/stellar/go/protocols/horizon/operations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTransactionHash(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{name: "Valid hash", input: strings.Repeat("ab", 32), want: true},
		{name: "Too short", input: "abcd", want: false},
		{name: "Not hex", input: strings.Repeat("zz", 32), want: false},
		{name: "Empty", input: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransactionHash(tt.input))
		})
	}
}

func TestValidateAccount(t *testing.T) {
	kp, err := keypair.Random()
	assert.NoError(t, err)

	t.Run("Valid address", func(t *testing.T) {
		assert.NoError(t, ValidateAccount(kp.Address()))
	})

	t.Run("Secret seed is not an address", func(t *testing.T) {
		assert.Error(t, ValidateAccount(kp.Seed()))
	})

	t.Run("Garbage", func(t *testing.T) {
		assert.Error(t, ValidateAccount("GABC..."))
	})
}

func TestVerifySettlementRejectsMalformedReference(t *testing.T) {
	client := NewStellarClient("https://horizon-testnet.stellar.org", "", SettlementAsset{})

	err := client.VerifySettlement("not-a-hash", decimal.NewFromInt(10))
	assert.ErrorIs(t, err, ErrInvalidReference)
}

func randomAddress(t *testing.T) string {
	t.Helper()
	kp, err := keypair.Random()
	require.NoError(t, err)
	return kp.Address()
}

func paymentOp(to, amount string, asset base.Asset) operations.Payment {
	return operations.Payment{Asset: asset, To: to, Amount: amount}
}

func paymentsPage(ops ...operations.Operation) operations.OperationsPage {
	var page operations.OperationsPage
	page.Embedded.Records = ops
	return page
}

func TestVerifySettlement(t *testing.T) {
	receiver := randomAddress(t)
	issuer := randomAddress(t)
	hash := strings.Repeat("ab", 32)
	native := base.Asset{Type: "native"}
	usdc := base.Asset{Type: "credit_alphanum4", Code: "USDC", Issuer: issuer}
	fake := base.Asset{Type: "credit_alphanum4", Code: "FAKE", Issuer: randomAddress(t)}
	forgedUSDC := base.Asset{Type: "credit_alphanum4", Code: "USDC", Issuer: randomAddress(t)}

	tests := []struct {
		name       string
		asset      SettlementAsset
		successful bool
		ops        []operations.Operation
		wantErr    error
	}{
		{
			name:       "Native payment settles",
			successful: true,
			ops:        []operations.Operation{paymentOp(receiver, "1000.0000000", native)},
		},
		{
			name:       "Split payments are summed",
			successful: true,
			ops: []operations.Operation{
				paymentOp(receiver, "600", native),
				&operations.Payment{Asset: native, To: receiver, Amount: "400"},
			},
		},
		{
			name:       "Self-issued asset does not count",
			successful: true,
			ops:        []operations.Operation{paymentOp(receiver, "1000", fake)},
			wantErr:    ErrSettlementFailed,
		},
		{
			name:       "Credit asset settles when configured",
			asset:      SettlementAsset{Code: "USDC", Issuer: issuer},
			successful: true,
			ops:        []operations.Operation{paymentOp(receiver, "1000", usdc)},
		},
		{
			name:       "Same code from another issuer does not count",
			asset:      SettlementAsset{Code: "USDC", Issuer: issuer},
			successful: true,
			ops:        []operations.Operation{paymentOp(receiver, "1000", forgedUSDC)},
			wantErr:    ErrSettlementFailed,
		},
		{
			name:       "Native does not count for a credit asset",
			asset:      SettlementAsset{Code: "USDC", Issuer: issuer},
			successful: true,
			ops:        []operations.Operation{paymentOp(receiver, "1000", native)},
			wantErr:    ErrSettlementFailed,
		},
		{
			name:       "Payment to another account does not count",
			successful: true,
			ops:        []operations.Operation{paymentOp(randomAddress(t), "1000", native)},
			wantErr:    ErrSettlementFailed,
		},
		{
			name:       "Short payment",
			successful: true,
			ops:        []operations.Operation{paymentOp(receiver, "999.99", native)},
			wantErr:    ErrSettlementFailed,
		},
		{
			name:       "Failed transaction",
			successful: false,
			wantErr:    ErrSettlementFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			horizon := &horizonclient.MockClient{}
			horizon.On("TransactionDetail", hash).Return(hProtocol.Transaction{Successful: tt.successful}, nil)
			horizon.On("Payments", horizonclient.OperationRequest{ForTransaction: hash}).Return(paymentsPage(tt.ops...), nil)

			client := NewStellarClientWith(horizon, receiver, tt.asset)
			err := client.VerifySettlement(strings.ToUpper(hash), decimal.NewFromInt(1000))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestVerifySettlementHorizonErrors(t *testing.T) {
	hash := strings.Repeat("ef", 32)
	receiver := randomAddress(t)

	t.Run("Transaction lookup fails", func(t *testing.T) {
		horizon := &horizonclient.MockClient{}
		horizon.On("TransactionDetail", hash).Return(hProtocol.Transaction{}, errors.New("horizon unavailable"))

		err := NewStellarClientWith(horizon, receiver, SettlementAsset{}).VerifySettlement(hash, decimal.NewFromInt(1))
		assert.ErrorContains(t, err, "horizon unavailable")
		horizon.AssertNotCalled(t, "Payments", horizonclient.OperationRequest{ForTransaction: hash})
	})

	t.Run("No receiving account", func(t *testing.T) {
		horizon := &horizonclient.MockClient{}

		err := NewStellarClientWith(horizon, "", SettlementAsset{}).VerifySettlement(hash, decimal.NewFromInt(1))
		assert.ErrorIs(t, err, ErrSettlementFailed)
		horizon.AssertNotCalled(t, "TransactionDetail", hash)
	})
}

func TestSettlementAssetValidate(t *testing.T) {
	issuer := randomAddress(t)

	assert.NoError(t, SettlementAsset{}.Validate())
	assert.NoError(t, SettlementAsset{Code: "USDC", Issuer: issuer}.Validate())
	assert.Error(t, SettlementAsset{Code: "USDC"}.Validate())
	assert.Error(t, SettlementAsset{Issuer: issuer}.Validate())
	assert.Error(t, SettlementAsset{Code: "WAYTOOLONGCODE", Issuer: issuer}.Validate())
	assert.Equal(t, "native", SettlementAsset{}.String())
}
