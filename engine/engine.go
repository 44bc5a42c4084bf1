// Package engine drives the payment-gated tool invocation protocol: it
// parses commands out of user messages, consults the tool registry, and
// runs the request/verify/execute flow for paid tools.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vitwit/mcpay/logger"
	"github.com/vitwit/mcpay/metrics"
	"github.com/vitwit/mcpay/tools"
	"github.com/vitwit/mcpay/types"
	"github.com/vitwit/mcpay/wallet"
)

// Disposition tags the terminal state a dispatched turn reached.
type Disposition string

const (
	DispositionExecuted        Disposition = "executed"
	DispositionPaymentRequired Disposition = "payment_required"
	DispositionFailed          Disposition = "failed"
	DispositionUnknownTool     Disposition = "unknown_tool"
	DispositionEcho            Disposition = "echo"
)

// Turn is the engine's terminal result for one processed user message.
type Turn struct {
	Disposition Disposition
	Response    string
	Metadata    map[string]any
}

// Engine dispatches user messages. Stateless per call except for the
// optional replay guard; a payment proof is the only carrier of
// continuity between the payment-required turn and the verified turn.
type Engine struct {
	registry *tools.Registry
	verifier wallet.Verifier
	network  string
	log      logger.Logger
	rec      metrics.Recorder

	// guard is nil unless replay protection was enabled.
	guard *proofGuard
}

type Option func(*Engine)

func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(e *Engine) {
		e.rec = r
	}
}

// WithReplayGuard rejects payment proofs that were already claimed by an
// earlier invocation. Deviation from the reference, which allows
// indefinite reuse.
func WithReplayGuard() Option {
	return func(e *Engine) {
		e.guard = &proofGuard{spent: make(map[string]string)}
	}
}

func New(registry *tools.Registry, verifier wallet.Verifier, network string, opts ...Option) *Engine {
	e := &Engine{
		registry: registry,
		verifier: verifier,
		network:  network,
		log:      logger.NoopLogger{},
		rec:      metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Process handles one user message against a context snapshot and
// produces the assistant turn. Tool failures and verification failures
// become error-flagged turns, never returned errors.
func (e *Engine) Process(ctx context.Context, conv *types.Context, content string) *Turn {
	start := time.Now()

	cmd, isCommand := ParseCommand(content)
	if !isCommand {
		return e.echo(conv, content, start)
	}

	tool, ok := e.registry.Lookup(cmd.Name)
	if !ok {
		turn := &Turn{
			Disposition: DispositionUnknownTool,
			Response:    fmt.Sprintf("Unknown tool: %s. Available tools: %s", cmd.Name, strings.Join(e.registry.Names(), ", ")),
			Metadata: map[string]any{
				"error":            true,
				"processingTimeMs": elapsedMs(start),
			},
		}
		e.record(turn.Disposition, cmd.Name)
		return turn
	}

	var turn *Turn
	switch t := tool.(type) {
	case *tools.FreeTool:
		turn = e.runFree(t, cmd, start)
	case *tools.PaidTool:
		turn = e.runPaid(ctx, t, cmd, start)
	default:
		turn = &Turn{
			Disposition: DispositionFailed,
			Response:    fmt.Sprintf("Error using tool %s: unsupported tool kind", tool.Name()),
			Metadata:    map[string]any{"error": true, "toolName": tool.Name()},
		}
	}

	e.record(turn.Disposition, tool.Name())
	return turn
}

func (e *Engine) echo(conv *types.Context, content string, start time.Time) *Turn {
	turn := &Turn{
		Disposition: DispositionEcho,
		Response:    fmt.Sprintf("Processed: %s (Context ID: %s, Messages: %d)", content, conv.ID, len(conv.Messages)),
		Metadata: map[string]any{
			"model":            "demo-model-v1",
			"tokensUsed":       float64(len(content)) * 0.5,
			"processingTimeMs": elapsedMs(start),
		},
	}
	e.record(turn.Disposition, "")
	return turn
}

func (e *Engine) runFree(t *tools.FreeTool, cmd Command, start time.Time) *Turn {
	result, err := t.Run(cmd.Args)
	if err != nil {
		e.log.Error("tool execution failed", map[string]any{"tool": t.Name(), "error": err.Error()})
		return &Turn{
			Disposition: DispositionFailed,
			Response:    fmt.Sprintf("Error using tool %s: %v", t.Name(), err),
			Metadata: map[string]any{
				"error":    true,
				"toolName": t.Name(),
			},
		}
	}

	md := map[string]any{
		"toolName":         t.Name(),
		"processingTimeMs": elapsedMs(start),
	}
	for k, v := range result.Metadata {
		md[k] = v
	}

	return &Turn{
		Disposition: DispositionExecuted,
		Response:    fmt.Sprintf("Tool %s result: %s", t.Name(), result.Text),
		Metadata:    md,
	}
}

func (e *Engine) runPaid(ctx context.Context, t *tools.PaidTool, cmd Command, start time.Time) *Turn {
	if cmd.Proof == "" {
		return e.paymentRequired(t, cmd)
	}

	if e.guard != nil {
		if claimedBy, spent := e.guard.claim(cmd.Proof, t.Name()); spent {
			e.log.Warn("payment proof replay rejected", map[string]any{
				"tool":      t.Name(),
				"txHash":    cmd.Proof,
				"claimedBy": claimedBy,
			})
			return e.verificationFailed(t, &types.VerificationVerdict{
				TxHash: cmd.Proof,
				Reason: types.ReasonProofSpent,
			})
		}
	}

	verdict := e.verifier.Verify(ctx, cmd.Proof, t.Amount())
	if !verdict.Verified {
		if e.guard != nil {
			e.guard.release(cmd.Proof)
		}
		return e.verificationFailed(t, verdict)
	}

	result, err := t.Run(cmd.Args)
	if err != nil {
		e.log.Error("tool execution failed after verified payment", map[string]any{
			"tool":   t.Name(),
			"txHash": verdict.TxHash,
			"error":  err.Error(),
		})
		return &Turn{
			Disposition: DispositionFailed,
			Response:    fmt.Sprintf("Error using tool %s: %v", t.Name(), err),
			Metadata: map[string]any{
				"error":    true,
				"toolName": t.Name(),
				"txHash":   verdict.TxHash,
			},
		}
	}

	md := map[string]any{
		"toolName":             t.Name(),
		"paymentVerified":      true,
		"txHash":               verdict.TxHash,
		"explorerUrl":          verdict.ExplorerURL,
		"blockNumber":          verdict.BlockNumber,
		"gasUsed":              verdict.GasUsed,
		"network":              verdict.Network,
		"senderAddress":        verdict.SenderAddress,
		"senderExplorerUrl":    verdict.SenderExplorerURL,
		"recipientAddress":     verdict.RecipientAddress,
		"recipientExplorerUrl": verdict.RecipientExplorerURL,
		"paymentAmount":        verdict.Amount,
		"timestamp":            verdict.Timestamp.Format(time.RFC3339),
		"processingTimeMs":     elapsedMs(start),
	}
	for k, v := range result.Metadata {
		md[k] = v
	}

	txDetails := fmt.Sprintf("(TX: %s...)", truncate(verdict.TxHash, 10))
	if verdict.ExplorerURL != "" {
		txDetails = fmt.Sprintf("[View Transaction](%s)", verdict.ExplorerURL)
	}

	response := fmt.Sprintf(
		"✅ Tool %s result:\n\n```\n%s\n```\n\n**Transaction Details**\n- Amount: %s %s\n- Block: %d\n- Gas Used: %s\n- %s",
		t.Name(), result.Text, verdict.Amount, t.Currency(), verdict.BlockNumber, verdict.GasUsed, txDetails,
	)

	return &Turn{
		Disposition: DispositionExecuted,
		Response:    response,
		Metadata:    md,
	}
}

func (e *Engine) paymentRequired(t *tools.PaidTool, cmd Command) *Turn {
	recipient := e.verifier.Address()
	requirement := types.PaymentRequirement{
		Amount:    t.Amount(),
		Currency:  t.Currency(),
		Recipient: recipient,
		Network:   e.network,
		Message:   fmt.Sprintf("Please pay %s %s for %s.", t.Amount(), t.Currency(), tools.PaymentDescription),
	}

	resubmit := fmt.Sprintf("/%s %s --tx=YOUR_TX_HASH", t.Name(), cmd.Args)
	if cmd.Args == "" {
		resubmit = fmt.Sprintf("/%s --tx=YOUR_TX_HASH", t.Name())
	}

	response := fmt.Sprintf(
		"💰 This tool requires payment: %s %s to %s.\n\nPlease complete payment and resubmit with transaction hash using format:\n`%s`\n\nPayment goes to Wallet: `%s` on %s network.",
		t.Amount(), t.Currency(), recipient, resubmit, recipient, e.network,
	)

	return &Turn{
		Disposition: DispositionPaymentRequired,
		Response:    response,
		Metadata: map[string]any{
			"toolName":        t.Name(),
			"requiresPayment": true,
			"amount":          requirement.Amount,
			"currency":        requirement.Currency,
			"recipient":       requirement.Recipient,
			"network":         requirement.Network,
			"message":         requirement.Message,
		},
	}
}

func (e *Engine) verificationFailed(t *tools.PaidTool, verdict *types.VerificationVerdict) *Turn {
	reason := string(verdict.Reason)
	if verdict.Detail != "" {
		reason = reason + ": " + verdict.Detail
	}

	return &Turn{
		Disposition: DispositionFailed,
		Response:    fmt.Sprintf("❌ Payment verification failed: %s", reason),
		Metadata: map[string]any{
			"toolName":        t.Name(),
			"error":           true,
			"paymentVerified": false,
			"reason":          string(verdict.Reason),
			"txHash":          verdict.TxHash,
			"explorerUrl":     verdict.ExplorerURL,
		},
	}
}

func (e *Engine) record(d Disposition, tool string) {
	e.rec.IncCounter(string(d), map[string]string{"tool": tool})
}

// proofGuard is the spent-proof set. claim is first-writer-wins so two
// concurrent requests cannot both redeem one proof.
type proofGuard struct {
	mu    sync.Mutex
	spent map[string]string // proof -> tool that claimed it
}

func (g *proofGuard) claim(proof, tool string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if claimedBy, ok := g.spent[proof]; ok {
		return claimedBy, true
	}
	g.spent[proof] = tool
	return "", false
}

// release returns a claim taken optimistically before verification, so a
// rejected proof can be retried once the transaction confirms.
func (g *proofGuard) release(proof string) {
	g.mu.Lock()
	delete(g.spent, proof)
	g.mu.Unlock()
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
