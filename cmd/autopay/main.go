// autopay is a command-line client for the payment-gated tool server.
// It sends commands to a conversation and, when the server demands USDC
// payment, settles the payment on-chain and resubmits automatically.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vitwit/mcpay/autopay"
	"github.com/vitwit/mcpay/config"
	"github.com/vitwit/mcpay/logger"
)

var (
	serverURL   string
	rpcURL      string
	tokenAddr   string
	explorerURL string
	contextID   string
	logLevel    string
)

var rootCmd = &cobra.Command{
	Use:   "autopay",
	Short: "autopay - client agent that settles tool payments autonomously",
}

var sendCmd = &cobra.Command{
	Use:   "send [command...]",
	Short: "Send a command, paying for it on-chain if the server demands it",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSend,
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show the paying wallet's USDC balance",
	RunE:  runBalance,
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools the server offers",
	RunE:  runTools,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:3001", "Base URL of the tool server")
	rootCmd.PersistentFlags().StringVar(&rpcURL, "rpc-url", config.DefaultRPCURL, "Ethereum RPC endpoint")
	rootCmd.PersistentFlags().StringVar(&tokenAddr, "usdc-contract", config.DefaultUSDCContract, "USDC token contract address")
	rootCmd.PersistentFlags().StringVar(&explorerURL, "explorer-url", config.DefaultExplorerURL, "Block explorer base URL")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug|info|warn|error)")
	sendCmd.Flags().StringVar(&contextID, "context", "", "Existing context id (a new context is created when empty)")
	rootCmd.AddCommand(sendCmd, balanceCmd, toolsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newPayer(log logger.Logger) (*autopay.Payer, error) {
	key := os.Getenv("AUTOPAY_PRIVATE_KEY")
	if key == "" {
		return nil, fmt.Errorf("AUTOPAY_PRIVATE_KEY is not set")
	}

	return autopay.NewPayer(autopay.PayerConfig{
		RPCURL:        rpcURL,
		PrivateKeyHex: key,
		TokenContract: tokenAddr,
		ExplorerURL:   explorerURL,
		Logger:        log,
	})
}

func runSend(cmd *cobra.Command, args []string) error {
	log := logger.NewZapLogger(logLevel)
	ctx := context.Background()

	payer, err := newPayer(log)
	if err != nil {
		return err
	}

	client := autopay.NewClient(serverURL)
	agent := autopay.NewAgent(client, payer, log)

	id := contextID
	if id == "" {
		id, err = client.CreateContext(ctx, map[string]any{"client": "autopay-cli"})
		if err != nil {
			return fmt.Errorf("create context: %w", err)
		}
		fmt.Printf("Context: %s\n", id)
	}

	command := strings.Join(args, " ")
	fmt.Printf("Sending: %s\n", command)

	outcome, err := agent.Send(ctx, id, command)
	if err != nil {
		return err
	}

	if outcome.PaymentRequired {
		fmt.Println("\nPayment settled autonomously:")
		fmt.Printf("  Transaction: %s\n", outcome.Payment.TxHash)
		fmt.Printf("  Block:       %d\n", outcome.Payment.BlockNumber)
		fmt.Printf("  Gas used:    %s\n", outcome.Payment.GasUsed)
		if outcome.Payment.ExplorerURL != "" {
			fmt.Printf("  Explorer:    %s\n", outcome.Payment.ExplorerURL)
		}
	}

	fmt.Println("\nServer response:")
	fmt.Println(outcome.Result.Response)
	return nil
}

func runBalance(cmd *cobra.Command, args []string) error {
	log := logger.NewZapLogger(logLevel)

	payer, err := newPayer(log)
	if err != nil {
		return err
	}

	balance, err := payer.Balance(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("Wallet:  %s\n", payer.Address())
	fmt.Printf("Balance: %s USDC\n", balance)
	return nil
}

func runTools(cmd *cobra.Command, args []string) error {
	client := autopay.NewClient(serverURL)

	catalog, err := client.Tools(context.Background())
	if err != nil {
		return err
	}

	for name, tool := range catalog.Tools {
		fmt.Printf("%s - %s\n", name, tool.Description)
		fmt.Printf("  usage: %s\n", tool.Usage)
		if tool.PaymentRequired {
			fmt.Printf("  payment: %s %s on %s\n", tool.PaymentAmount, tool.PaymentCurrency, tool.PaymentNetwork)
		}
	}
	fmt.Println()
	fmt.Println(catalog.Usage)
	return nil
}
