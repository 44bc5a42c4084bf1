// Package config loads server configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/vitwit/mcpay/types"
)

// Verifier selection. "live" queries the chain over RPC, "fake" uses the
// deterministic in-memory verifier. Never decided at request time.
const (
	VerifierLive = "live"
	VerifierFake = "fake"
)

// Defaults for Base Sepolia.
const (
	DefaultListenAddr   = ":3001"
	DefaultRPCURL       = "https://sepolia.base.org"
	DefaultUSDCContract = "0x036CbD53842c5426634e7929541eC2318f3dCF7e"
	DefaultExplorerURL  = "https://sepolia.basescan.org"
	DefaultNetwork      = "Base Sepolia"
	DefaultTimeout      = 30 * time.Second
)

type Config struct {
	ListenAddr string `validate:"required"`

	RPCURL       string `validate:"required,url"`
	USDCContract string `validate:"required,len=42,startswith=0x"`
	ExplorerURL  string `validate:"required,url"`
	Network      string `validate:"required"`

	// PrivateKey is the server wallet's signing key as a hex string.
	// Optional: when empty the receiving address must be set explicitly
	// and the fake verifier is selected unless overridden.
	PrivateKey string

	// ReceivingAddress overrides the address derived from PrivateKey.
	ReceivingAddress string

	// VerifierMode is "live" or "fake".
	VerifierMode string `validate:"required,oneof=live fake"`

	// VerifyTimeout bounds every ledger query issued by the verifier.
	VerifyTimeout time.Duration `validate:"required"`

	// ReplayGuard rejects reuse of a payment proof across invocations.
	// Off by default to match the reference behavior.
	ReplayGuard bool

	LogLevel string `validate:"required,oneof=debug info warn error"`
}

// FromEnv builds a Config from MCPAY_* environment variables and
// validates it.
func FromEnv() (*Config, error) {
	cfg := &Config{
		ListenAddr:       envOr("MCPAY_LISTEN", DefaultListenAddr),
		RPCURL:           envOr("MCPAY_RPC_URL", DefaultRPCURL),
		USDCContract:     envOr("MCPAY_USDC_CONTRACT", DefaultUSDCContract),
		ExplorerURL:      envOr("MCPAY_EXPLORER_URL", DefaultExplorerURL),
		Network:          envOr("MCPAY_NETWORK", DefaultNetwork),
		PrivateKey:       os.Getenv("MCPAY_SERVER_PRIVATE_KEY"),
		ReceivingAddress: os.Getenv("MCPAY_RECEIVING_ADDRESS"),
		VerifierMode:     os.Getenv("MCPAY_VERIFIER"),
		LogLevel:         envOr("MCPAY_LOG_LEVEL", "info"),
		VerifyTimeout:    DefaultTimeout,
	}

	if raw := os.Getenv("MCPAY_VERIFY_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, types.Error{Code: types.ErrConfigError, Message: fmt.Sprintf("invalid MCPAY_VERIFY_TIMEOUT: %v", err)}
		}
		cfg.VerifyTimeout = d
	}

	if raw := os.Getenv("MCPAY_REPLAY_GUARD"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, types.Error{Code: types.ErrConfigError, Message: fmt.Sprintf("invalid MCPAY_REPLAY_GUARD: %v", err)}
		}
		cfg.ReplayGuard = b
	}

	// A signing key implies live verification; without one only the fake
	// verifier can run.
	if cfg.VerifierMode == "" {
		if cfg.PrivateKey != "" {
			cfg.VerifierMode = VerifierLive
		} else {
			cfg.VerifierMode = VerifierFake
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks structural constraints and the key/address pairing.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return types.Error{Code: types.ErrConfigError, Message: fmt.Sprintf("config validation failed: %v", err)}
	}

	if c.PrivateKey == "" && c.ReceivingAddress == "" {
		return types.Error{
			Code:    types.ErrConfigError,
			Message: "either MCPAY_SERVER_PRIVATE_KEY or MCPAY_RECEIVING_ADDRESS must be set",
		}
	}

	if c.VerifierMode == VerifierLive && c.PrivateKey == "" && c.ReceivingAddress == "" {
		return types.Error{
			Code:    types.ErrConfigError,
			Message: "live verifier requires a receiving address",
		}
	}

	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
