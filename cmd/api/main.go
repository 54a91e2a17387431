package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/markdave123-py/askdoc/internal/app"
	"github.com/markdave123-py/askdoc/internal/config"
	"github.com/markdave123-py/askdoc/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()
	if err := logger.InitLogger(logger.Options{Env: cfg.Env, Level: cfg.LogLevel, OutputPath: cfg.LogFile}); err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync()

	application, err := app.NewApp(ctx, cfg)
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
	defer application.Close()

	logger.Info("askdoc is running",
		zap.String("port", cfg.Port),
		zap.String("vector_store", cfg.VectorStore),
		zap.String("llm", cfg.LLMProvider))

	if err := application.Run(ctx); err != nil {
		logger.Error("server stopped", zap.Error(err))
		return
	}
	logger.Info("shut down cleanly")
}
