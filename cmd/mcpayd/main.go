// mcpayd serves the payment-gated tool protocol over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vitwit/mcpay/api"
	"github.com/vitwit/mcpay/config"
	"github.com/vitwit/mcpay/engine"
	"github.com/vitwit/mcpay/logger"
	"github.com/vitwit/mcpay/metrics"
	"github.com/vitwit/mcpay/store"
	"github.com/vitwit/mcpay/tools"
	"github.com/vitwit/mcpay/wallet"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "mcpayd:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	log := logger.NewZapLogger(cfg.LogLevel)
	if zl, ok := log.(*logger.ZapLogger); ok {
		defer zl.Sync()
	}
	rec := metrics.NewPrometheusRecorder()

	verifier, err := buildVerifier(cfg, log, rec)
	if err != nil {
		return err
	}

	registry := tools.DefaultRegistry(cfg.Network)

	engineOpts := []engine.Option{
		engine.WithLogger(log),
		engine.WithMetrics(rec),
	}
	if cfg.ReplayGuard {
		engineOpts = append(engineOpts, engine.WithReplayGuard())
	}
	eng := engine.New(registry, verifier, cfg.Network, engineOpts...)

	srv := api.NewServer(store.NewMemoryStore(), eng, registry,
		api.WithLogger(log),
		api.WithMetricsHandler(promhttp.Handler()),
	)

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", map[string]any{
			"addr":     cfg.ListenAddr,
			"network":  cfg.Network,
			"verifier": cfg.VerifierMode,
			"wallet":   verifier.Address(),
		})
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info("shutting down", nil)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	return nil
}

func buildVerifier(cfg *config.Config, log logger.Logger, rec metrics.Recorder) (wallet.Verifier, error) {
	receiving := cfg.ReceivingAddress
	if receiving == "" {
		derived, _, err := wallet.AddressFromKey(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		receiving = derived
	}

	if cfg.VerifierMode == config.VerifierFake {
		log.Warn("using fake payment verifier, no chain state is checked", nil)
		return &wallet.FakeVerifier{
			ReceivingAddress: receiving,
			Network:          cfg.Network,
			ExplorerURL:      cfg.ExplorerURL,
		}, nil
	}

	return wallet.NewChainVerifier(wallet.ChainVerifierConfig{
		RPCURL:           cfg.RPCURL,
		ContractAddress:  cfg.USDCContract,
		ReceivingAddress: receiving,
		Network:          cfg.Network,
		ExplorerURL:      cfg.ExplorerURL,
		Timeout:          cfg.VerifyTimeout,
		Logger:           log,
		Metrics:          rec,
	})
}
