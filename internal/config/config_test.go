package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("GITHUB_PAT", "pat")
	t.Setenv("GITHUB_USERNAME", "octocat")
	t.Setenv("DATABASE_URL", "postgres://localhost/portfolio")
	t.Setenv("GCP_PROJECT_ID", "my-project")
	t.Setenv("VOYAGE_API_KEY", "vk")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg := Load()

	assert.Equal(t, "pat", cfg.GitHubPAT)
	assert.Equal(t, "octocat", cfg.GitHubUsername)
	assert.Equal(t, "http://localhost:6333", cfg.QdrantURL)
	assert.Equal(t, "voyage", cfg.EmbeddingProvider)
	assert.Equal(t, "us-central1", cfg.GCPLocation)
	assert.Equal(t, "8787", cfg.WebhookPort)
	assert.Equal(t, "dev", cfg.LogMode)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("QDRANT_URL", "https://qdrant.example.com/")
	t.Setenv("EMBEDDING_PROVIDER", "vertex")
	t.Setenv("GCP_LOCATION", "europe-west1")
	t.Setenv("LOG_MODE", "prod")
	t.Setenv("VOYAGE_API_KEY", "")

	// With the vertex provider active, the Voyage key is optional.
	cfg := Load()

	assert.Equal(t, "https://qdrant.example.com/", cfg.QdrantURL)
	assert.Equal(t, "vertex", cfg.EmbeddingProvider)
	assert.Equal(t, "europe-west1", cfg.GCPLocation)
	assert.Equal(t, "prod", cfg.LogMode)
	assert.Empty(t, cfg.VoyageAPIKey)
}

func TestLoadWebhook(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/portfolio")
	t.Setenv("WEBHOOK_SECRET", "hook-secret")

	cfg := LoadWebhook()

	assert.Equal(t, "hook-secret", cfg.WebhookSecret)
	assert.Equal(t, "8787", cfg.WebhookPort)
	assert.Empty(t, cfg.GitHubPAT, "webhook receiver needs no GitHub credentials")
}
