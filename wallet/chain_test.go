package wallet

import (
	"context"
	"errors"
	"math/big"
	"testing"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/mcpay/types"
)

const (
	testKeyHex    = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testSender    = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	testRecipient = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	testContract  = "0x036CbD53842c5426634e7929541eC2318f3dCF7e"
	testChainID   = 1337
)

type fakeLedger struct {
	receipts   map[common.Hash]*ethtypes.Receipt
	txs        map[common.Hash]*ethtypes.Transaction
	receiptErr error
	txErr      error
	callOut    []byte
	callErr    error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		receipts: make(map[common.Hash]*ethtypes.Receipt),
		txs:      make(map[common.Hash]*ethtypes.Transaction),
		callErr:  errors.New("no call result configured"),
	}
}

func (f *fakeLedger) TransactionReceipt(_ context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	if f.receiptErr != nil {
		return nil, f.receiptErr
	}
	r, ok := f.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (f *fakeLedger) TransactionByHash(_ context.Context, hash common.Hash) (*ethtypes.Transaction, bool, error) {
	if f.txErr != nil {
		return nil, false, f.txErr
	}
	tx, ok := f.txs[hash]
	if !ok {
		return nil, false, ethereum.NotFound
	}
	return tx, false, nil
}

func (f *fakeLedger) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return f.callOut, f.callErr
}

func newTestVerifier(t *testing.T, ledger Ledger) *ChainVerifier {
	t.Helper()
	v, err := NewChainVerifierWithLedger(ledger, ChainVerifierConfig{
		ContractAddress:  testContract,
		ReceivingAddress: testRecipient,
		Network:          "Base Sepolia",
		ExplorerURL:      "https://sepolia.basescan.org",
	})
	require.NoError(t, err)
	return v
}

// signedTransfer builds a confirmed ERC-20 transfer signed with the test
// key, registered in the fake ledger under its hash.
func signedTransfer(t *testing.T, ledger *fakeLedger, contract, to string, minorUnits int64, status uint64) string {
	t.Helper()

	parsed, err := ERC20ABI()
	require.NoError(t, err)
	data, err := parsed.Pack("transfer", common.HexToAddress(to), big.NewInt(minorUnits))
	require.NoError(t, err)

	return signedCall(t, ledger, contract, data, status)
}

func signedCall(t *testing.T, ledger *fakeLedger, contract string, data []byte, status uint64) string {
	t.Helper()

	key, err := crypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)

	contractAddr := common.HexToAddress(contract)
	tx := ethtypes.NewTransaction(0, contractAddr, big.NewInt(0), 100000, big.NewInt(1e9), data)
	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(big.NewInt(testChainID)), key)
	require.NoError(t, err)

	hash := signed.Hash()
	ledger.txs[hash] = signed
	ledger.receipts[hash] = &ethtypes.Receipt{
		Status:      status,
		BlockNumber: big.NewInt(4242),
		GasUsed:     37000,
	}
	return hash.Hex()
}

func TestVerifySuccess(t *testing.T) {
	ledger := newFakeLedger()
	txHash := signedTransfer(t, ledger, testContract, testRecipient, 100000, ethtypes.ReceiptStatusSuccessful)

	v := newTestVerifier(t, ledger)
	verdict := v.Verify(context.Background(), txHash, "0.10")

	require.True(t, verdict.Verified)
	assert.Equal(t, types.ReasonNone, verdict.Reason)
	assert.Equal(t, "0.1", verdict.Amount)
	assert.Equal(t, "100000", verdict.RawAmount)
	assert.Equal(t, testSender, verdict.SenderAddress)
	assert.Equal(t, common.HexToAddress(testRecipient).Hex(), verdict.RecipientAddress)
	assert.Equal(t, uint64(4242), verdict.BlockNumber)
	assert.Equal(t, "37000", verdict.GasUsed)
	assert.Equal(t, "Base Sepolia", verdict.Network)
	assert.Contains(t, verdict.ExplorerURL, txHash)
	assert.False(t, verdict.Timestamp.IsZero())
}

func TestVerifyOverpaymentCovers(t *testing.T) {
	ledger := newFakeLedger()
	txHash := signedTransfer(t, ledger, testContract, testRecipient, 250000, ethtypes.ReceiptStatusSuccessful)

	v := newTestVerifier(t, ledger)
	verdict := v.Verify(context.Background(), txHash, "0.10")

	require.True(t, verdict.Verified)
	assert.Equal(t, "0.25", verdict.Amount)
}

func TestVerifyNotFound(t *testing.T) {
	v := newTestVerifier(t, newFakeLedger())
	verdict := v.Verify(context.Background(), "0xDEADBEEF", "0.10")

	require.False(t, verdict.Verified)
	assert.Equal(t, types.ReasonNotFound, verdict.Reason)
	assert.Equal(t, "0xDEADBEEF", verdict.TxHash)
	assert.Contains(t, verdict.ExplorerURL, "0xDEADBEEF")
}

func TestVerifyRPCErrorDegradesToVerifierError(t *testing.T) {
	ledger := newFakeLedger()
	ledger.receiptErr = errors.New("connection refused")

	v := newTestVerifier(t, ledger)
	verdict := v.Verify(context.Background(), "0xABC", "0.10")

	require.False(t, verdict.Verified)
	assert.Equal(t, types.ReasonVerifierError, verdict.Reason)
	assert.Contains(t, verdict.Detail, "connection refused")
}

func TestVerifyFailedTransaction(t *testing.T) {
	ledger := newFakeLedger()
	txHash := signedTransfer(t, ledger, testContract, testRecipient, 100000, ethtypes.ReceiptStatusFailed)

	v := newTestVerifier(t, ledger)
	verdict := v.Verify(context.Background(), txHash, "0.10")

	require.False(t, verdict.Verified)
	assert.Equal(t, types.ReasonTxFailed, verdict.Reason)
	assert.Equal(t, uint64(4242), verdict.BlockNumber)
}

func TestVerifyWrongContract(t *testing.T) {
	ledger := newFakeLedger()
	otherContract := "0x1234567890123456789012345678901234567890"
	txHash := signedTransfer(t, ledger, otherContract, testRecipient, 100000, ethtypes.ReceiptStatusSuccessful)

	v := newTestVerifier(t, ledger)
	verdict := v.Verify(context.Background(), txHash, "0.10")

	require.False(t, verdict.Verified)
	assert.Equal(t, types.ReasonWrongContract, verdict.Reason)
	assert.Equal(t, testSender, verdict.SenderAddress)
}

func TestVerifyNotATransfer(t *testing.T) {
	ledger := newFakeLedger()

	parsed, err := ERC20ABI()
	require.NoError(t, err)
	data, err := parsed.Pack("balanceOf", common.HexToAddress(testSender))
	require.NoError(t, err)
	txHash := signedCall(t, ledger, testContract, data, ethtypes.ReceiptStatusSuccessful)

	v := newTestVerifier(t, ledger)
	verdict := v.Verify(context.Background(), txHash, "0.10")

	require.False(t, verdict.Verified)
	assert.Equal(t, types.ReasonNotTransfer, verdict.Reason)
}

func TestVerifyWrongRecipient(t *testing.T) {
	ledger := newFakeLedger()
	other := "0x9999999999999999999999999999999999999999"
	txHash := signedTransfer(t, ledger, testContract, other, 100000, ethtypes.ReceiptStatusSuccessful)

	v := newTestVerifier(t, ledger)
	verdict := v.Verify(context.Background(), txHash, "0.10")

	require.False(t, verdict.Verified)
	assert.Equal(t, types.ReasonWrongRecipient, verdict.Reason)
	assert.Contains(t, verdict.Detail, common.HexToAddress(testRecipient).Hex())
}

func TestVerifyInsufficientAmount(t *testing.T) {
	ledger := newFakeLedger()
	txHash := signedTransfer(t, ledger, testContract, testRecipient, 90000, ethtypes.ReceiptStatusSuccessful)

	v := newTestVerifier(t, ledger)
	verdict := v.Verify(context.Background(), txHash, "0.10")

	require.False(t, verdict.Verified)
	assert.Equal(t, types.ReasonInsufficient, verdict.Reason)
	assert.Equal(t, "0.09", verdict.Amount)
	assert.Contains(t, verdict.Detail, "expected 0.10 USDC")
	assert.Contains(t, verdict.Detail, "received 0.09 USDC")
}

func TestFakeVerifierDeterministic(t *testing.T) {
	f := &FakeVerifier{
		ReceivingAddress: testRecipient,
		Network:          "Base Sepolia",
		ExplorerURL:      "https://sepolia.basescan.org",
	}

	verdict := f.Verify(context.Background(), "0xAAA", "0.10")
	require.True(t, verdict.Verified)
	assert.Equal(t, "0.10", verdict.Amount)
	assert.Equal(t, "100000", verdict.RawAmount)
	assert.Equal(t, testRecipient, verdict.RecipientAddress)

	f.FailWith = types.ReasonNotFound
	verdict = f.Verify(context.Background(), "0xAAA", "0.10")
	require.False(t, verdict.Verified)
	assert.Equal(t, types.ReasonNotFound, verdict.Reason)
}
