package wallet

import (
	"context"
	"time"

	"github.com/vitwit/mcpay/types"
)

// FakeVerifier returns a configured verdict without touching any chain.
// It is selected explicitly by configuration (demo mode, tests); the
// outcome is deterministic, never a coin-flip.
type FakeVerifier struct {
	// ReceivingAddress reported as the payment target.
	ReceivingAddress string

	// FailWith makes every Verify call fail with this reason. Leave
	// empty for unconditional success.
	FailWith types.Reason

	// AmountPaid overrides the amount echoed on success; defaults to the
	// expected amount.
	AmountPaid string

	Network     string
	ExplorerURL string
	Sender      string
	BlockNumber uint64
}

func (f *FakeVerifier) Address() string {
	return f.ReceivingAddress
}

func (f *FakeVerifier) Verify(_ context.Context, txHash, expectedAmount string) *types.VerificationVerdict {
	verdict := &types.VerificationVerdict{
		TxHash:  txHash,
		Network: f.Network,
	}
	if f.ExplorerURL != "" {
		verdict.ExplorerURL = TxExplorerURL(f.ExplorerURL, txHash)
	}

	if f.FailWith != types.ReasonNone {
		verdict.Reason = f.FailWith
		return verdict
	}

	amount := f.AmountPaid
	if amount == "" {
		amount = expectedAmount
	}

	sender := f.Sender
	if sender == "" {
		sender = "0x1111111111111111111111111111111111111111"
	}
	block := f.BlockNumber
	if block == 0 {
		block = 12345678
	}

	verdict.Verified = true
	verdict.Amount = amount
	if raw, err := ParseUnits(amount, USDCDecimals); err == nil {
		verdict.RawAmount = raw.String()
	}
	verdict.SenderAddress = sender
	verdict.RecipientAddress = f.ReceivingAddress
	if f.ExplorerURL != "" {
		verdict.SenderExplorerURL = AddressExplorerURL(f.ExplorerURL, sender)
		verdict.RecipientExplorerURL = AddressExplorerURL(f.ExplorerURL, f.ReceivingAddress)
	}
	verdict.BlockNumber = block
	verdict.GasUsed = "21000"
	verdict.Timestamp = time.Now().UTC()
	return verdict
}
