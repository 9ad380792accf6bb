package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	voyageDefaultBaseURL = "https://api.voyageai.com"
	voyageModel          = "voyage-code-3"
	voyageDimensions     = 1024
)

// VoyageProvider embeds code through the Voyage AI embeddings API.
type VoyageProvider struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

// VoyageOption tweaks VoyageProvider construction.
type VoyageOption func(*VoyageProvider)

// WithVoyageBaseURL points the provider at a different host. Used in tests.
func WithVoyageBaseURL(url string) VoyageOption {
	return func(p *VoyageProvider) {
		p.baseURL = strings.TrimRight(url, "/")
	}
}

// NewVoyageProvider returns a provider for the voyage-code-3 model.
func NewVoyageProvider(apiKey string, opts ...VoyageOption) *VoyageProvider {
	p := &VoyageProvider{
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: voyageDefaultBaseURL,
		apiKey:  apiKey,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var _ Provider = (*VoyageProvider)(nil)

func (p *VoyageProvider) Name() string {
	return "voyage:" + voyageModel
}

func (p *VoyageProvider) Dimensions() int {
	return voyageDimensions
}

// EmbedBatch embeds document texts with input_type "document".
func (p *VoyageProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return p.embed(ctx, texts, "document")
}

// EmbedQuery embeds a search query with input_type "query" so it aligns
// with document embeddings.
func (p *VoyageProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.embed(ctx, []string{text}, "query")
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (p *VoyageProvider) embed(ctx context.Context, texts []string, inputType string) ([][]float32, error) {
	payload, err := json.Marshal(map[string]any{
		"input":      texts,
		"input_type": inputType,
		"model":      voyageModel,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("voyage embedding failed: %d %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("voyage embedding: decode response: %w", err)
	}
	if len(decoded.Data) != len(texts) {
		return nil, fmt.Errorf("voyage embedding: got %d embeddings for %d inputs", len(decoded.Data), len(texts))
	}

	vectors := make([][]float32, len(decoded.Data))
	for i, d := range decoded.Data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}
