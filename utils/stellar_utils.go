package utils

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/protocols/horizon/base"
	"github.com/stellar/go/protocols/horizon/operations"
)

var (
	// ErrInvalidReference indicates a payment reference is not a transaction hash.
	ErrInvalidReference = errors.New("invalid stellar transaction hash")
	// ErrSettlementFailed indicates the referenced transaction did not settle the payment.
	ErrSettlementFailed = errors.New("stellar transaction did not settle payment")
)

// SettlementVerifier confirms that an on-chain payment reference really paid
// the expected amount before the payment is recorded against an invoice.
type SettlementVerifier interface {
	VerifySettlement(txHash string, amount decimal.Decimal) error
}

// SettlementAsset is the asset invoices are settled in. An empty Code means
// native lumens; otherwise Code and Issuer must both match.
type SettlementAsset struct {
	Code   string
	Issuer string
}

func (a SettlementAsset) Native() bool {
	return a.Code == ""
}

func (a SettlementAsset) String() string {
	if a.Native() {
		return "native"
	}
	return a.Code + ":" + a.Issuer
}

// Validate rejects a credit asset without a well-formed issuer.
func (a SettlementAsset) Validate() error {
	if a.Native() {
		if a.Issuer != "" {
			return fmt.Errorf("asset issuer %q given without an asset code", a.Issuer)
		}
		return nil
	}
	if len(a.Code) > 12 {
		return fmt.Errorf("asset code %q is longer than 12 characters", a.Code)
	}
	return ValidateAccount(a.Issuer)
}

func (a SettlementAsset) matches(asset base.Asset) bool {
	if a.Native() {
		return asset.Type == "native"
	}
	return asset.Type != "native" && asset.Code == a.Code && asset.Issuer == a.Issuer
}

type StellarClient struct {
	client           horizonclient.ClientInterface
	receivingAccount string
	asset            SettlementAsset
}

func NewStellarClient(horizonURL, receivingAccount string, asset SettlementAsset) *StellarClient {
	return NewStellarClientWith(&horizonclient.Client{HorizonURL: horizonURL}, receivingAccount, asset)
}

// NewStellarClientWith builds a verifier on an existing Horizon client.
func NewStellarClientWith(client horizonclient.ClientInterface, receivingAccount string, asset SettlementAsset) *StellarClient {
	return &StellarClient{
		client:           client,
		receivingAccount: receivingAccount,
		asset:            asset,
	}
}

// VerifySettlement checks that txHash is a successful transaction whose
// payment operations credit the receiving account with at least amount of
// the settlement asset. Payments in any other asset are ignored.
func (s *StellarClient) VerifySettlement(txHash string, amount decimal.Decimal) error {
	txHash = NormalizeReference(txHash)
	if !IsTransactionHash(txHash) {
		return ErrInvalidReference
	}
	if s.receivingAccount == "" {
		return fmt.Errorf("%w: no receiving account configured", ErrSettlementFailed)
	}

	tx, err := s.client.TransactionDetail(txHash)
	if err != nil {
		return fmt.Errorf("failed to load transaction: %w", err)
	}
	if !tx.Successful {
		return fmt.Errorf("%w: transaction %s failed on ledger", ErrSettlementFailed, txHash)
	}

	page, err := s.client.Payments(horizonclient.OperationRequest{ForTransaction: txHash})
	if err != nil {
		return fmt.Errorf("failed to load payment operations: %w", err)
	}

	received := decimal.Zero
	for _, record := range page.Embedded.Records {
		var op operations.Payment
		switch v := record.(type) {
		case operations.Payment:
			op = v
		case *operations.Payment:
			op = *v
		default:
			continue
		}
		if op.To != s.receivingAccount || !s.asset.matches(op.Asset) {
			continue
		}
		value, err := decimal.NewFromString(op.Amount)
		if err != nil {
			return fmt.Errorf("parse payment amount %q: %w", op.Amount, err)
		}
		received = received.Add(value)
	}
	if received.LessThan(amount) {
		return fmt.Errorf("%w: received %s %s, expected %s", ErrSettlementFailed, received.String(), s.asset, amount.String())
	}
	return nil
}

// ValidateAccount checks the shape of a Stellar account address.
func ValidateAccount(accountID string) error {
	if _, err := keypair.ParseAddress(accountID); err != nil {
		return fmt.Errorf("invalid account address: %w", err)
	}
	return nil
}

// NormalizeReference canonicalises a transaction hash so the same payment is
// always stored and compared the same way.
func NormalizeReference(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// IsTransactionHash reports whether s looks like a hex encoded transaction hash.
func IsTransactionHash(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
