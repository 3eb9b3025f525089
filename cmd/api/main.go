package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/markdave123-py/documind/internal/app"
	"github.com/markdave123-py/documind/internal/config"
	"github.com/markdave123-py/documind/internal/logger"
)

func main() {
	// SIGINT/SIGTERM cancel ctx for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zl := logger.New(cfg.LogFile, cfg.IsProduction())
	defer func() { _ = zl.Sync() }()

	application, err := app.NewApp(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("startup failed", zap.Error(err))
	}
	defer application.Close()

	zl.Info("DocuMind is running", zap.String("port", cfg.Port), zap.String("env", cfg.Env))
	if err := application.Run(ctx); err != nil {
		zl.Error("server stopped with error", zap.Error(err))
	}
	zl.Info("shut down cleanly")
}
