package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/example/babylog-bot/internal/app"
	"github.com/example/babylog-bot/internal/config"
	"github.com/example/babylog-bot/internal/logger"
)

func main() {
	// A missing .env file is fine, the environment may be set directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	zl, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer zl.Sync()

	if err := app.New(cfg, zl).Run(context.Background()); err != nil {
		zl.Fatal("application exited", zap.Error(err))
	}
}
