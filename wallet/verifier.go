// Package wallet implements the server's payment side: the receiving
// wallet identity and on-chain verification of USDC payment proofs.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/vitwit/mcpay/types"
)

// Verifier judges payment proofs. Implementations must never return an
// error for a failed proof; every failure is a structured verdict with a
// reason from the closed set. Verified=true must only be produced for a
// confirmed transfer of at least the expected amount to Address().
type Verifier interface {
	// Verify checks the referenced transaction against the expected
	// human-readable amount.
	Verify(ctx context.Context, txHash, expectedAmount string) *types.VerificationVerdict

	// Address is the wallet address payments must be sent to.
	Address() string
}

// AddressFromKey derives the wallet address for a hex-encoded private key.
func AddressFromKey(privateKeyHex string) (string, *ecdsa.PrivateKey, error) {
	key, err := ethcrypto.HexToECDSA(trimHexPrefix(privateKeyHex))
	if err != nil {
		return "", nil, fmt.Errorf("invalid private key: %w", err)
	}
	return ethcrypto.PubkeyToAddress(key.PublicKey).Hex(), key, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0:2] == "0x" {
		return s[2:]
	}
	return s
}

// TxExplorerURL builds a block explorer link for a transaction.
func TxExplorerURL(base, txHash string) string {
	return fmt.Sprintf("%s/tx/%s", base, txHash)
}

// AddressExplorerURL builds a block explorer link for an address.
func AddressExplorerURL(base, address string) string {
	return fmt.Sprintf("%s/address/%s", base, address)
}
