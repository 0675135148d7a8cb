package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/quiverwallet/quiver/internal/app"
	"github.com/quiverwallet/quiver/internal/config"
	"github.com/quiverwallet/quiver/internal/logger"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(&logger.Config{
		LogFile:     cfg.LogFile,
		MaxSize:     100,
		MaxBackups:  3,
		MaxAge:      7,
		Compress:    true,
		Development: cfg.DebugLogging,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting wallet shell",
		zap.String("wallet_id", cfg.WalletID),
		zap.String("provider_mode", cfg.ProviderMode))

	runner, err := app.NewRunner(cfg, log.Logger)
	if err != nil {
		log.Fatal("Failed to initialize wallet shell", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := runner.Run(ctx); err != nil {
		log.Fatal("Wallet shell exited with error", zap.Error(err))
	}

	log.Info("Wallet shell stopped")
}
