package wallet

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/vitwit/mcpay/logger"
	"github.com/vitwit/mcpay/metrics"
	"github.com/vitwit/mcpay/types"
)

// Minimal ERC-20 ABI: the pieces verification and payment need.
const erc20ABI = `[
  {
    "name": "transfer",
    "type": "function",
    "stateMutability": "nonpayable",
    "inputs": [
      { "name": "to", "type": "address" },
      { "name": "amount", "type": "uint256" }
    ],
    "outputs": [{ "name": "", "type": "bool" }]
  },
  {
    "name": "balanceOf",
    "type": "function",
    "stateMutability": "view",
    "inputs": [{ "name": "owner", "type": "address" }],
    "outputs": [{ "name": "", "type": "uint256" }]
  },
  {
    "name": "decimals",
    "type": "function",
    "stateMutability": "view",
    "inputs": [],
    "outputs": [{ "name": "", "type": "uint8" }]
  }
]`

// ERC20ABI returns the parsed minimal ERC-20 ABI.
func ERC20ABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(erc20ABI))
}

// Ledger is the chain-query capability the verifier depends on.
// *ethclient.Client satisfies it; tests inject a fake.
type Ledger interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*ethtypes.Transaction, bool, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

var _ Ledger = (*ethclient.Client)(nil)

// ChainVerifier verifies payment proofs against real chain state.
type ChainVerifier struct {
	ledger      Ledger
	contract    common.Address
	recipient   common.Address
	network     string
	explorerURL string
	decimals    int32
	timeout     time.Duration
	erc20       abi.ABI
	log         logger.Logger
	rec         metrics.Recorder
}

// ChainVerifierConfig carries everything a live verifier needs.
type ChainVerifierConfig struct {
	RPCURL           string
	ContractAddress  string
	ReceivingAddress string
	Network          string
	ExplorerURL      string
	Timeout          time.Duration
	Logger           logger.Logger
	Metrics          metrics.Recorder
}

// NewChainVerifier dials the RPC endpoint and returns a live verifier.
func NewChainVerifier(cfg ChainVerifierConfig) (*ChainVerifier, error) {
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, types.Error{Code: types.ErrConfigError, Message: "ethereum rpc dial: " + err.Error()}
	}
	return NewChainVerifierWithLedger(client, cfg)
}

// NewChainVerifierWithLedger builds a verifier on an injected ledger.
func NewChainVerifierWithLedger(ledger Ledger, cfg ChainVerifierConfig) (*ChainVerifier, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return nil, err
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NoopLogger{}
	}
	rec := cfg.Metrics
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &ChainVerifier{
		ledger:      ledger,
		contract:    common.HexToAddress(cfg.ContractAddress),
		recipient:   common.HexToAddress(cfg.ReceivingAddress),
		network:     cfg.Network,
		explorerURL: cfg.ExplorerURL,
		decimals:    USDCDecimals,
		timeout:     timeout,
		erc20:       parsed,
		log:         log,
		rec:         rec,
	}, nil
}

func (v *ChainVerifier) Address() string {
	return v.recipient.Hex()
}

// Verify runs the ordered verification checks, short-circuiting on the
// first failure. RPC transport failures and timeouts degrade to a
// verification-error verdict, never an error or a hang.
func (v *ChainVerifier) Verify(ctx context.Context, txHash, expectedAmount string) *types.VerificationVerdict {
	start := time.Now()
	defer func() {
		v.rec.ObserveLatency("verify", time.Since(start), map[string]string{"tool": ""})
	}()

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	verdict := &types.VerificationVerdict{
		TxHash:      txHash,
		ExplorerURL: TxExplorerURL(v.explorerURL, txHash),
		Network:     v.network,
	}

	hash := common.HexToHash(txHash)

	// 1. Confirmation receipt must exist.
	receipt, err := v.ledger.TransactionReceipt(ctx, hash)
	if err != nil || receipt == nil {
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return v.fail(verdict, types.ReasonVerifierError, err.Error())
		}
		return v.fail(verdict, types.ReasonNotFound, "")
	}
	verdict.BlockNumber = receipt.BlockNumber.Uint64()
	verdict.GasUsed = new(big.Int).SetUint64(receipt.GasUsed).String()

	// 2. The transaction must have succeeded.
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return v.fail(verdict, types.ReasonTxFailed, "")
	}

	tx, _, err := v.ledger.TransactionByHash(ctx, hash)
	if err != nil || tx == nil {
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return v.fail(verdict, types.ReasonVerifierError, err.Error())
		}
		return v.fail(verdict, types.ReasonNotFound, "")
	}
	if sender, serr := ethtypes.Sender(ethtypes.LatestSignerForChainID(tx.ChainId()), tx); serr == nil {
		verdict.SenderAddress = sender.Hex()
		verdict.SenderExplorerURL = AddressExplorerURL(v.explorerURL, sender.Hex())
	}
	verdict.GasPrice = tx.GasPrice().String()

	// 3. Destination must be the configured token contract.
	if tx.To() == nil || *tx.To() != v.contract {
		return v.fail(verdict, types.ReasonWrongContract, "")
	}
	verdict.ContractAddress = v.contract.Hex()

	// 4. Payload must decode as a transfer call.
	to, rawAmount, ok := v.decodeTransfer(tx.Data())
	if !ok {
		return v.fail(verdict, types.ReasonNotTransfer, "")
	}

	// 5. Transfer recipient must be this wallet.
	if to != v.recipient {
		return v.fail(verdict, types.ReasonWrongRecipient,
			"expected "+v.recipient.Hex()+", got "+to.Hex())
	}
	verdict.RecipientAddress = v.recipient.Hex()
	verdict.RecipientExplorerURL = AddressExplorerURL(v.explorerURL, v.recipient.Hex())

	v.checkTokenDecimals(ctx)

	// 6. Amount, in human units, must cover the expected amount.
	amountPaid := FormatUnits(rawAmount, v.decimals)
	covers, err := AmountCovers(amountPaid, expectedAmount)
	if err != nil {
		return v.fail(verdict, types.ReasonVerifierError, err.Error())
	}
	verdict.Amount = amountPaid
	verdict.RawAmount = rawAmount.String()
	if !covers {
		return v.fail(verdict, types.ReasonInsufficient,
			"expected "+expectedAmount+" USDC, received "+amountPaid+" USDC")
	}

	verdict.Verified = true
	verdict.Timestamp = time.Now().UTC()
	v.log.Info("payment verified", map[string]any{
		"txHash": txHash,
		"amount": amountPaid,
		"sender": verdict.SenderAddress,
		"block":  verdict.BlockNumber,
	})
	v.rec.IncCounter("payment_verified", map[string]string{"tool": ""})
	return verdict
}

// decodeTransfer decodes calldata as transfer(address,uint256).
func (v *ChainVerifier) decodeTransfer(data []byte) (common.Address, *big.Int, bool) {
	if len(data) < 4 {
		return common.Address{}, nil, false
	}

	method, err := v.erc20.MethodById(data[:4])
	if err != nil || method.Name != "transfer" {
		return common.Address{}, nil, false
	}

	args, err := method.Inputs.Unpack(data[4:])
	if err != nil || len(args) != 2 {
		return common.Address{}, nil, false
	}

	to, ok := args[0].(common.Address)
	if !ok {
		return common.Address{}, nil, false
	}
	amount, ok := args[1].(*big.Int)
	if !ok {
		return common.Address{}, nil, false
	}
	return to, amount, true
}

// checkTokenDecimals warns when the contract reports a precision other
// than the configured scale. Verification still proceeds on the
// configured value.
func (v *ChainVerifier) checkTokenDecimals(ctx context.Context) {
	data, err := v.erc20.Pack("decimals")
	if err != nil {
		return
	}
	out, err := v.ledger.CallContract(ctx, ethereum.CallMsg{To: &v.contract, Data: data}, nil)
	if err != nil || len(out) == 0 {
		return
	}
	res, err := v.erc20.Unpack("decimals", out)
	if err != nil || len(res) != 1 {
		return
	}
	if got, ok := res[0].(uint8); ok && int32(got) != v.decimals {
		v.log.Warn("token contract reports unexpected decimals", map[string]any{
			"reported":   got,
			"configured": v.decimals,
		})
	}
}

func (v *ChainVerifier) fail(verdict *types.VerificationVerdict, reason types.Reason, detail string) *types.VerificationVerdict {
	verdict.Verified = false
	verdict.Reason = reason
	verdict.Detail = detail
	v.log.Info("payment verification failed", map[string]any{
		"txHash": verdict.TxHash,
		"reason": string(reason),
		"detail": detail,
	})
	v.rec.IncCounter("payment_rejected", map[string]string{"tool": ""})
	return verdict
}
