// Package autopay implements the client side of the payment-gated
// protocol: an HTTP client for the conversation API, a USDC payer that
// builds, signs and broadcasts ERC-20 transfers, and an agent that
// chains the two so a payment-required response is settled and the
// command resubmitted without human involvement.
package autopay

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/vitwit/mcpay/logger"
	"github.com/vitwit/mcpay/wallet"
)

// DefaultGasLimit is used when gas estimation fails, matching the
// reference client's fallback.
const DefaultGasLimit = 100000

// ErrInsufficientBalance is returned before any transaction is sent when
// the wallet cannot cover the demanded amount.
var ErrInsufficientBalance = errors.New("insufficient USDC balance")

// Backend is the chain surface the payer needs. *ethclient.Client
// satisfies it; tests substitute a fake.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

var _ Backend = (*ethclient.Client)(nil)

// PaymentReceipt reports a confirmed transfer.
type PaymentReceipt struct {
	TxHash      string `json:"txHash"`
	BlockNumber uint64 `json:"blockNumber"`
	GasUsed     string `json:"gasUsed"`
	ExplorerURL string `json:"explorerUrl,omitempty"`
}

// Payer sends USDC transfers from a locally held key.
type Payer struct {
	backend     Backend
	key         *ecdsa.PrivateKey
	from        common.Address
	token       common.Address
	explorerURL string
	log         logger.Logger
}

type PayerConfig struct {
	// RPCURL is dialed when no backend is injected.
	RPCURL string

	// PrivateKeyHex funds the payments.
	PrivateKeyHex string

	// TokenContract is the USDC contract address.
	TokenContract string

	ExplorerURL string
	Logger      logger.Logger
}

func NewPayer(cfg PayerConfig) (*Payer, error) {
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC %s: %w", cfg.RPCURL, err)
	}
	return NewPayerWithBackend(client, cfg)
}

func NewPayerWithBackend(backend Backend, cfg PayerConfig) (*Payer, error) {
	addr, key, err := wallet.AddressFromKey(cfg.PrivateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	log := cfg.Logger
	if log == nil {
		log = &logger.NoopLogger{}
	}

	return &Payer{
		backend:     backend,
		key:         key,
		from:        common.HexToAddress(addr),
		token:       common.HexToAddress(cfg.TokenContract),
		explorerURL: cfg.ExplorerURL,
		log:         log,
	}, nil
}

// Address returns the paying wallet address.
func (p *Payer) Address() string {
	return p.from.Hex()
}

// Balance reads the wallet's token balance in human-readable units.
func (p *Payer) Balance(ctx context.Context) (string, error) {
	parsed, err := wallet.ERC20ABI()
	if err != nil {
		return "", err
	}

	data, err := parsed.Pack("balanceOf", p.from)
	if err != nil {
		return "", err
	}

	out, err := p.backend.CallContract(ctx, ethereum.CallMsg{To: &p.token, Data: data}, nil)
	if err != nil {
		return "", fmt.Errorf("balance query failed: %w", err)
	}

	results, err := parsed.Unpack("balanceOf", out)
	if err != nil || len(results) != 1 {
		return "", fmt.Errorf("unexpected balanceOf result: %w", err)
	}
	raw, ok := results[0].(*big.Int)
	if !ok {
		return "", fmt.Errorf("unexpected balanceOf result type %T", results[0])
	}

	return wallet.FormatUnits(raw, wallet.USDCDecimals), nil
}

// Pay transfers the given human-readable amount of USDC to the recipient
// and waits for the transaction to be mined. The returned receipt is
// only produced for a confirmed, successful transaction.
func (p *Payer) Pay(ctx context.Context, recipient, amount string) (*PaymentReceipt, error) {
	raw, err := wallet.ParseUnits(amount, wallet.USDCDecimals)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}

	balance, err := p.Balance(ctx)
	if err != nil {
		return nil, err
	}
	covers, err := wallet.AmountCovers(balance, amount)
	if err != nil {
		return nil, err
	}
	if !covers {
		return nil, fmt.Errorf("%w: required %s, available %s", ErrInsufficientBalance, amount, balance)
	}

	parsed, err := wallet.ERC20ABI()
	if err != nil {
		return nil, err
	}
	calldata, err := parsed.Pack("transfer", common.HexToAddress(recipient), raw)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transfer: %w", err)
	}

	chainID, err := p.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve chain id: %w", err)
	}
	nonce, err := p.backend.PendingNonceAt(ctx, p.from)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch nonce: %w", err)
	}
	gasPrice, err := p.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch gas price: %w", err)
	}

	gasLimit, err := p.backend.EstimateGas(ctx, ethereum.CallMsg{
		From: p.from,
		To:   &p.token,
		Data: calldata,
	})
	if err != nil {
		p.log.Warn("gas estimation failed, using default limit", map[string]any{
			"error":    err.Error(),
			"gasLimit": DefaultGasLimit,
		})
		gasLimit = DefaultGasLimit
	}

	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &p.token,
		Value:    big.NewInt(0),
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     calldata,
	})

	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(chainID), p.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := p.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("failed to broadcast transaction: %w", err)
	}

	p.log.Info("payment transaction sent", map[string]any{
		"txHash":    signed.Hash().Hex(),
		"recipient": recipient,
		"amount":    amount,
	})

	receipt, err := bind.WaitMined(ctx, p.backend, signed)
	if err != nil {
		return nil, fmt.Errorf("failed waiting for confirmation of %s: %w", signed.Hash().Hex(), err)
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("payment transaction %s reverted", signed.Hash().Hex())
	}

	out := &PaymentReceipt{
		TxHash:      receipt.TxHash.Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     fmt.Sprintf("%d", receipt.GasUsed),
	}
	if p.explorerURL != "" {
		out.ExplorerURL = wallet.TxExplorerURL(p.explorerURL, out.TxHash)
	}
	return out, nil
}
