// Command webhook is the GitHub webhook receiver. It verifies event
// signatures and keeps star counts and repository names fresh in the
// projects table between full indexer runs.
package main

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/nexus-site/indexer/internal/config"
	"github.com/nexus-site/indexer/internal/logger"
	"github.com/nexus-site/indexer/internal/store"
	"github.com/nexus-site/indexer/internal/webhook"
)

func main() {
	cfg := config.LoadWebhook()

	zlog, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer zlog.Sync()

	st, err := store.New(cfg.DatabaseURL)
	if err != nil {
		zlog.Fatal("failed to connect to database", "error", err.Error())
	}

	app := fiber.New()
	webhook.NewHandler(st, cfg.WebhookSecret, zlog).Register(app)

	zlog.Info("webhook receiver starting", "port", cfg.WebhookPort)
	if err := app.Listen(":" + cfg.WebhookPort); err != nil {
		zlog.Fatal("server failed", "error", err.Error())
	}
}
