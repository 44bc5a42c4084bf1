package autopay

import (
	"context"
	"fmt"

	"github.com/vitwit/mcpay/logger"
	"github.com/vitwit/mcpay/types"
)

// PaymentSender is the payer surface the agent needs; *Payer satisfies
// it and tests substitute a stub.
type PaymentSender interface {
	Address() string
	Balance(ctx context.Context) (string, error)
	Pay(ctx context.Context, recipient, amount string) (*PaymentReceipt, error)
}

// Agent drives a conversation and settles payment demands autonomously:
// when a command comes back payment-required, it pays the demanded
// amount on-chain and resubmits the command with the transaction hash.
type Agent struct {
	client *Client
	payer  PaymentSender
	log    logger.Logger
}

func NewAgent(client *Client, payer PaymentSender, log logger.Logger) *Agent {
	if log == nil {
		log = &logger.NoopLogger{}
	}
	return &Agent{client: client, payer: payer, log: log}
}

// Outcome reports one auto-paid exchange.
type Outcome struct {
	// PaymentRequired is true when the server demanded payment and the
	// agent settled it.
	PaymentRequired bool

	// Payment holds the confirmed transfer when PaymentRequired is true.
	Payment *PaymentReceipt

	// Result is the final server reply: the first reply when no payment
	// was demanded, otherwise the reply to the resubmitted command.
	Result *MessageResult
}

// Send posts the command and, if the server demands payment, pays and
// resubmits. The demanded terms are taken from the turn metadata the
// server records on the context.
func (a *Agent) Send(ctx context.Context, contextID, command string) (*Outcome, error) {
	result, err := a.client.SendMessage(ctx, contextID, command)
	if err != nil {
		return nil, err
	}

	requirement, demanded := paymentDemand(result)
	if !demanded {
		return &Outcome{Result: result}, nil
	}

	a.log.Info("payment required, settling autonomously", map[string]any{
		"contextId": contextID,
		"amount":    requirement.Amount,
		"currency":  requirement.Currency,
		"recipient": requirement.Recipient,
	})

	receipt, err := a.payer.Pay(ctx, requirement.Recipient, requirement.Amount)
	if err != nil {
		return nil, fmt.Errorf("autonomous payment failed: %w", err)
	}

	a.log.Info("payment confirmed, resubmitting command", map[string]any{
		"txHash":      receipt.TxHash,
		"blockNumber": receipt.BlockNumber,
	})

	final, err := a.client.SendMessage(ctx, contextID, fmt.Sprintf("%s --tx=%s", command, receipt.TxHash))
	if err != nil {
		return nil, fmt.Errorf("resubmission after payment %s failed: %w", receipt.TxHash, err)
	}

	return &Outcome{
		PaymentRequired: true,
		Payment:         receipt,
		Result:          final,
	}, nil
}

// paymentDemand extracts the payment terms from a payment-required
// reply. The server always writes them into the processing metadata, so
// no text scraping is needed.
func paymentDemand(result *MessageResult) (types.PaymentRequirement, bool) {
	if result.Context == nil {
		return types.PaymentRequirement{}, false
	}
	meta := result.Context.LastProcessingMetadata
	if meta == nil {
		return types.PaymentRequirement{}, false
	}
	if required, ok := meta["requiresPayment"].(bool); !ok || !required {
		return types.PaymentRequirement{}, false
	}

	req := types.PaymentRequirement{
		Amount:    stringField(meta, "amount"),
		Currency:  stringField(meta, "currency"),
		Recipient: stringField(meta, "recipient"),
		Network:   stringField(meta, "network"),
		Message:   stringField(meta, "message"),
	}
	if req.Amount == "" || req.Recipient == "" {
		return types.PaymentRequirement{}, false
	}
	return req, true
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
