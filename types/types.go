package types

import (
	"fmt"
	"time"
)

// Role identifies who authored a message within a context.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn in a conversation. Messages are immutable once
// appended to a context.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Context is a server-held conversation session. The message sequence is
// append-only and ordered by arrival.
type Context struct {
	ID       string         `json:"id"`
	Created  time.Time      `json:"created"`
	Messages []Message      `json:"messages"`
	Metadata map[string]any `json:"metadata"`

	// LastProcessingMetadata holds the most recent tool outcome and is
	// overwritten on every processed user turn.
	LastProcessingMetadata map[string]any `json:"lastProcessingMetadata,omitempty"`
}

// PaymentRequirement describes the payment a paid tool demands before it
// will execute. It is embedded in the response metadata of a
// payment-required turn and consumed by the auto-pay client.
type PaymentRequirement struct {
	// Amount in human-readable form (e.g. "0.10"), not minor units.
	Amount string `json:"amount" validate:"required"`

	Currency string `json:"currency" validate:"required"`

	// Recipient is the server wallet address the transfer must target.
	Recipient string `json:"recipient" validate:"required"`

	Network string `json:"network" validate:"required"`

	// Message is a human-readable payment instruction.
	Message string `json:"message"`
}

// Reason is the closed set of verification failure reasons. An empty
// reason means the verdict is a success.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonNotFound       Reason = "Transaction not found or not confirmed"
	ReasonTxFailed       Reason = "Transaction failed"
	ReasonWrongContract  Reason = "Transaction not sent to USDC contract"
	ReasonNotTransfer    Reason = "Not a transfer transaction"
	ReasonWrongRecipient Reason = "Payment not sent to correct address"
	ReasonInsufficient   Reason = "Insufficient payment"
	ReasonVerifierError  Reason = "Verification error"

	// ReasonProofSpent is only produced when the replay guard is enabled.
	// The reference behavior allows a proof to be reused indefinitely.
	ReasonProofSpent Reason = "Payment proof already used"
)

// VerificationVerdict is the verifier's structured judgment on a payment
// proof. Verified=true is only set when a confirmed, successful transfer
// of at least the expected amount reached the expected recipient through
// the expected token contract. Callers must treat anything else as
// "not paid".
type VerificationVerdict struct {
	Verified bool   `json:"verified"`
	Reason   Reason `json:"reason,omitempty"`

	// Detail carries diagnostic text beyond the closed reason set, such
	// as the actual amount received on an insufficient payment.
	Detail string `json:"detail,omitempty"`

	// Transaction context, populated as far as resolution got. Present
	// on failures too, for debuggability.
	TxHash               string    `json:"txHash,omitempty"`
	ExplorerURL          string    `json:"explorerUrl,omitempty"`
	Amount               string    `json:"amount,omitempty"`
	RawAmount            string    `json:"rawAmount,omitempty"`
	SenderAddress        string    `json:"senderAddress,omitempty"`
	SenderExplorerURL    string    `json:"senderExplorerUrl,omitempty"`
	RecipientAddress     string    `json:"recipientAddress,omitempty"`
	RecipientExplorerURL string    `json:"recipientExplorerUrl,omitempty"`
	BlockNumber          uint64    `json:"blockNumber,omitempty"`
	GasUsed              string    `json:"gasUsed,omitempty"`
	GasPrice             string    `json:"gasPrice,omitempty"`
	Network              string    `json:"network,omitempty"`
	ContractAddress      string    `json:"contractAddress,omitempty"`
	Timestamp            time.Time `json:"timestamp,omitempty"`
}

// ToolDescriptor is the discovery record served by GET /tools.
type ToolDescriptor struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	Usage           string `json:"usage"`
	Example         string `json:"example"`
	PaymentRequired bool   `json:"paymentRequired,omitempty"`
	PaymentAmount   string `json:"paymentAmount,omitempty"`
	PaymentCurrency string `json:"paymentCurrency,omitempty"`
	PaymentNetwork  string `json:"paymentNetwork,omitempty"`
}

// Error is the structured error type used across the server.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e Error) Error() string {
	return e.Message
}

// Common error codes
const (
	ErrNotFound      = "NOT_FOUND"
	ErrInvalidInput  = "INVALID_INPUT"
	ErrToolFailed    = "TOOL_FAILED"
	ErrConfigError   = "CONFIG_ERROR"
	ErrPaymentFailed = "PAYMENT_FAILED"
)

// NotFound builds a NOT_FOUND error for the named resource.
func NotFound(resource, id string) Error {
	return Error{Code: ErrNotFound, Message: fmt.Sprintf("%s %s not found", resource, id)}
}
