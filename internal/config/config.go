// Package config centralises all environment configuration for the indexer
// and the webhook receiver. It should be imported only by cmd/ (and test
// code); everything else receives an already-built Config instance.
package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Config holds every runtime option the binaries need.
// Keep it flat and simple—prefer primitive types over embedding structs.
type Config struct {
	// GitHub
	GitHubPAT      string
	GitHubUsername string

	// Data stores
	DatabaseURL  string
	QdrantURL    string
	QdrantAPIKey string

	// Embeddings
	EmbeddingProvider string
	VoyageAPIKey      string

	// Vertex AI (vertex embeddings + summarizer)
	GCPProjectID string
	GCPLocation  string

	// Webhook receiver
	WebhookSecret string
	WebhookPort   string

	// Logging
	LogMode string
}

// Load parses the environment (and an optional .env file) into Config.
// It terminates the process on missing critical variables so
// mis-configurations fail fast with the variable named.
func Load() Config {
	// godotenv.Load() is a no-op if .env doesn't exist—safe in production.
	_ = godotenv.Load()

	cfg := Config{
		GitHubPAT:         must("GITHUB_PAT"),
		GitHubUsername:    must("GITHUB_USERNAME"),
		DatabaseURL:       must("DATABASE_URL"),
		QdrantURL:         getEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantAPIKey:      os.Getenv("QDRANT_API_KEY"),
		EmbeddingProvider: getEnv("EMBEDDING_PROVIDER", "voyage"),
		VoyageAPIKey:      os.Getenv("VOYAGE_API_KEY"),
		GCPProjectID:      must("GCP_PROJECT_ID"),
		GCPLocation:       getEnv("GCP_LOCATION", "us-central1"),
		WebhookSecret:     os.Getenv("WEBHOOK_SECRET"),
		WebhookPort:       getEnv("WEBHOOK_PORT", "8787"),
		LogMode:           getEnv("LOG_MODE", "dev"),
	}

	// Only the active embedding provider's credentials are required.
	if cfg.EmbeddingProvider == "voyage" && cfg.VoyageAPIKey == "" {
		log.Fatalf("env var VOYAGE_API_KEY is required")
	}

	return cfg
}

// LoadWebhook parses only what the webhook receiver needs.
func LoadWebhook() Config {
	_ = godotenv.Load()

	return Config{
		DatabaseURL:   must("DATABASE_URL"),
		WebhookSecret: must("WEBHOOK_SECRET"),
		WebhookPort:   getEnv("WEBHOOK_PORT", "8787"),
		LogMode:       getEnv("LOG_MODE", "dev"),
	}
}

// must fetches a required env var or terminates the program.
func must(key string) string {
	val := os.Getenv(key)
	if val == "" {
		log.Fatalf("env var %s is required", key)
	}
	return val
}

// getEnv returns env[key] if set, otherwise defaultVal.
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
