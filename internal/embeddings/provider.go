// Package embeddings turns text into fixed-dimension vectors via an
// external embedding API. Providers are identified by a stable name string
// ("voyage:voyage-code-3") that the pipeline records next to the vector
// collection, so vectors from incompatible models are never mixed.
package embeddings

import "context"

// Provider is a single embedding model behind an API.
type Provider interface {
	// Name identifies provider+model, e.g. "voyage:voyage-code-3".
	Name() string

	// Dimensions is the fixed length of every vector this provider returns.
	Dimensions() int

	// EmbedBatch embeds document texts in one external call, preserving
	// order and count. Failures propagate; callers own retry policy.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery embeds a search query. Kept separate from EmbedBatch
	// because providers embed queries and documents differently.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}
