package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"PDUFAScanner/internal/app"
	"PDUFAScanner/internal/config"
	"PDUFAScanner/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Bootstrap logger until the configured level is known.
	initialLogger, err := logging.New("info", "production")
	if err != nil {
		log.Fatal("failed to initialize logger: ", err)
	}

	cfg, err := config.Load(initialLogger)
	if err != nil {
		initialLogger.Fatal("invalid configuration", zap.Error(err))
	}
	_ = initialLogger.Sync()

	logger, err := logging.New(cfg.Logging.Level, cfg.Environment)
	if err != nil {
		initialLogger.Fatal("failed to create application logger", zap.Error(err))
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("build info",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("date", date),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger, version)
	if err != nil {
		logger.Error("failed to build application", zap.Error(err))
		os.Exit(1)
	}

	if err := application.Run(ctx); err != nil {
		logger.Error("application stopped", zap.Error(err))
		os.Exit(1)
	}
}
