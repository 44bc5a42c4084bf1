package tools

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/vitwit/mcpay/types"
)

// Payment terms shared by the paid built-ins.
const (
	PaymentAmount      = "0.10"
	PaymentCurrency    = "USDC"
	PaymentDescription = "Premium tier access keys for compute resources"
)

// DefaultRegistry returns the built-in tool set. network names the chain
// payments settle on, for the discovery catalog.
func DefaultRegistry(network string) *Registry {
	return NewRegistry(
		Capitalize(),
		FreeTierAccessKeys(),
		Hash(network),
		PaidTierAccessKeys(network),
	)
}

// Capitalize uppercases its input.
func Capitalize() *FreeTool {
	return NewFreeTool(types.ToolDescriptor{
		Name:        "capitalize",
		Description: "Converts input text to all uppercase letters",
		Usage:       "/capitalize your text here",
		Example:     "/capitalize hello world -> HELLO WORLD",
	}, func(input string) (Result, error) {
		return Result{
			Text: strings.ToUpper(input),
			Metadata: map[string]any{
				"tool": "capitalize",
			},
		}, nil
	})
}

// FreeTierAccessKeys issues short-lived demo keys derived from the
// current time.
func FreeTierAccessKeys() *FreeTool {
	return NewFreeTool(types.ToolDescriptor{
		Name:        "freetieraccesskeys",
		Description: "Generates free tier access keys for basic compute resources (valid 1 hour)",
		Usage:       "/freetieraccesskeys",
		Example:     "/freetieraccesskeys -> Free Tier Access Keys: <keys>",
	}, func(string) (Result, error) {
		now := time.Now().UTC()
		sum := sha256.Sum256([]byte(now.Format(time.RFC3339Nano)))
		keys := hex.EncodeToString(sum[:])

		return Result{
			Text: fmt.Sprintf("Free Tier Access Keys: %s\nValid for 1 hour. Use these keys to access basic compute resources.", keys),
			Metadata: map[string]any{
				"tool":       "freetieraccesskeys",
				"algorithm":  "sha256",
				"validUntil": now.Add(time.Hour).Format(time.RFC3339),
				"keyLength":  len(keys),
				"tier":       "free",
			},
		}, nil
	})
}

// Hash computes the SHA-1 hex digest of its input. Paid.
func Hash(network string) *PaidTool {
	return NewPaidTool(types.ToolDescriptor{
		Name:            "hash",
		Description:     fmt.Sprintf("Generates a SHA-1 hash of the input text (requires payment of %s %s)", PaymentAmount, PaymentCurrency),
		Usage:           "/hash your text here",
		Example:         "/hash hello world -> Payment required -> Pay 0.10 USDC -> /hash hello world --tx=0x123... -> 2aae6c35c94fcfb415dbe95f408b9ce91ee846ed",
		PaymentRequired: true,
		PaymentAmount:   PaymentAmount,
		PaymentCurrency: PaymentCurrency,
		PaymentNetwork:  network,
	}, func(input string) (Result, error) {
		sum := sha1.Sum([]byte(input))
		digest := hex.EncodeToString(sum[:])

		return Result{
			Text: digest,
			Metadata: map[string]any{
				"tool":      "hash",
				"algorithm": "sha1",
				"keyLength": len(digest),
			},
		}, nil
	})
}

// PaidTierAccessKeys issues premium keys with extended validity. Paid.
func PaidTierAccessKeys(network string) *PaidTool {
	return NewPaidTool(types.ToolDescriptor{
		Name:            "paidtieraccesskeys",
		Description:     fmt.Sprintf("%s (requires payment of %s %s)", PaymentDescription, PaymentAmount, PaymentCurrency),
		Usage:           "/paidtieraccesskeys",
		Example:         "/paidtieraccesskeys --tx=0x123... -> Premium Tier Access Keys: <keys>",
		PaymentRequired: true,
		PaymentAmount:   PaymentAmount,
		PaymentCurrency: PaymentCurrency,
		PaymentNetwork:  network,
	}, func(string) (Result, error) {
		now := time.Now().UTC()
		sum := sha256.Sum256([]byte(now.Format(time.RFC3339Nano)))
		keys := hex.EncodeToString(sum[:])

		return Result{
			Text: fmt.Sprintf("Premium Tier Access Keys: %s\nValid for 30 days. Use these keys to access premium compute resources with higher limits.", keys),
			Metadata: map[string]any{
				"tool":       "paidtieraccesskeys",
				"algorithm":  "sha256",
				"validUntil": now.Add(30 * 24 * time.Hour).Format(time.RFC3339),
				"keyLength":  len(keys),
				"tier":       "premium",
			},
		}, nil
	})
}
