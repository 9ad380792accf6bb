package embeddings

import (
	"context"
	"fmt"

	"github.com/nexus-site/indexer/internal/config"
)

// NewProvider builds the embedding provider named by the configuration.
func NewProvider(ctx context.Context, cfg config.Config) (Provider, error) {
	switch cfg.EmbeddingProvider {
	case "voyage":
		return NewVoyageProvider(cfg.VoyageAPIKey), nil
	case "vertex":
		return NewVertexProvider(ctx, cfg.GCPProjectID, cfg.GCPLocation)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
	}
}
