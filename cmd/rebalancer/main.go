package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/betbot/vaultbot/internal/domain"
	"github.com/betbot/vaultbot/internal/engine"
	"github.com/betbot/vaultbot/internal/history"
	"github.com/betbot/vaultbot/internal/ledger"
	"github.com/betbot/vaultbot/internal/metrics"
	"github.com/betbot/vaultbot/internal/recommend"
	"github.com/betbot/vaultbot/pkg/cache"
	"github.com/betbot/vaultbot/pkg/config"
	"github.com/betbot/vaultbot/pkg/logger"
	"github.com/betbot/vaultbot/pkg/secretstore"
	"github.com/betbot/vaultbot/pkg/shutdown"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "", "config file path (.yaml)")
	runNow := flag.Bool("run-now", false, "trigger one round immediately after start")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// Logger may not be configured yet; use a bare one.
		_ = logger.InitDefault()
		logger.Errorf("load config: %v", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{Level: cfg.Log.Level, OutputFile: cfg.Log.File}); err != nil {
		logger.Errorf("init logger: %v", err)
		os.Exit(1)
	}

	apiKey, err := resolveAPIKey(cfg)
	if err != nil {
		logger.Errorf("resolve ledger credentials: %v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	shutdownMgr := shutdown.NewManager()

	if cfg.Metrics.Listen != "" {
		if _, err := metrics.StartAsync(ctx, cfg.Metrics.Listen); err != nil {
			logger.Errorf("start metrics listener on %s: %v", cfg.Metrics.Listen, err)
		} else {
			logger.Infof("metrics listening on %s", cfg.Metrics.Listen)
		}
	}

	ledgerClient := ledger.NewHTTPClient(ledger.Options{
		BaseURL: cfg.Ledger.BaseURL,
		APIKey:  apiKey,
		Timeout: cfg.Ledger.Timeout,
	})

	recCache := cache.NewInMemoryCache[string, *domain.RecommendationSet](10 * time.Minute)
	shutdownMgr.OnShutdown(func(context.Context) { recCache.Close() })
	provider := recommend.NewHTTPProvider(recommend.Options{
		BaseURL: cfg.Recommend.BaseURL,
		Timeout: cfg.Recommend.Timeout,
		Cache:   recCache,
	})

	store, err := history.Open(cfg.History.DBPath)
	if err != nil {
		logger.Errorf("open history store: %v", err)
		os.Exit(1)
	}
	shutdownMgr.OnShutdown(func(context.Context) {
		if err := store.Close(); err != nil {
			logger.Errorf("close history store: %v", err)
		}
	})

	planner := engine.NewAllocationPlanner(engine.PlannerConfig{
		MaxActiveVaults:     cfg.Rebalance.MaxActiveVaults,
		HighPct:             cfg.Rebalance.HighPct,
		LowPct:              cfg.Rebalance.LowPct,
		DustThresholdUsd:    cfg.Rebalance.DustThresholdUsd,
		ReassignEmptyBucket: cfg.Rebalance.ReassignEmptyBucket,
	})
	executor := engine.NewTransferExecutor(ledgerClient, engine.ExecutorConfig{
		DryRun:            cfg.Rebalance.DryRun,
		MinDepositUsd:     cfg.Rebalance.MinDepositUsd,
		WithdrawBufferBps: cfg.Rebalance.WithdrawBufferBps,
	})
	orchestrator := engine.NewRebalanceOrchestrator(ledgerClient, provider, planner, executor, engine.OrchestratorConfig{
		Wallet:           cfg.Wallet.Address,
		DryRun:           cfg.Rebalance.DryRun,
		SettleDelay:      cfg.Rebalance.SettleDelay,
		TakeProfitRoePct: cfg.Rebalance.TakeProfitRoePct,
		MinExitRoePct:    cfg.Rebalance.MinExitRoePct,
	})
	scheduler := engine.NewRebalanceScheduler(ledgerClient, orchestrator, store, engine.SchedulerConfig{
		Enabled:  cfg.Rebalance.Enabled,
		Interval: cfg.Rebalance.Interval,
		Wallet:   cfg.Wallet.Address,
	})

	logger.WithFields(logrus.Fields{
		"wallet":   cfg.Wallet.Address,
		"dryRun":   cfg.Rebalance.DryRun,
		"interval": cfg.Rebalance.Interval,
	}).Info("vault rebalancer starting")

	scheduler.Start(ctx)
	if *runNow {
		go scheduler.RunOnce(ctx)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutdown signal received")
	cancel()

	// Let an in-flight round reach its next context checkpoint, then
	// flush and close everything under a deadline.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	shutdownMgr.Shutdown(shutdownCtx)
	logger.Info("vault rebalancer stopped")
}

// resolveAPIKey prefers the badger secret store when configured, falling
// back to the environment credential.
func resolveAPIKey(cfg *config.Config) (string, error) {
	if cfg.Wallet.SecretStorePath == "" {
		return cfg.Wallet.APIKey, nil
	}
	encKey, err := secretstore.ParseKey(os.Getenv("SECRET_STORE_KEY"))
	if err != nil {
		return "", err
	}
	store, err := secretstore.Open(secretstore.OpenOptions{
		Path:          cfg.Wallet.SecretStorePath,
		EncryptionKey: encKey,
		ReadOnly:      true,
	})
	if err != nil {
		return "", err
	}
	defer store.Close()

	val, found, err := store.GetString(secretstore.KeyLedgerAPIKey)
	if err != nil {
		return "", err
	}
	if found && val != "" {
		return val, nil
	}
	return cfg.Wallet.APIKey, nil
}
