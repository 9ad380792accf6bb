// Package vectors manages the single Qdrant collection of code-chunk
// vectors. Points are keyed by code-file id and carry a payload of
// {file_id, project_id, language} so searches can be scoped to one project
// and a whole project's vectors can be purged in one call.
package vectors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nexus-site/indexer/internal/logger"
)

const collectionName = "code_chunks"

// SearchResult is one similarity hit, ordered by descending score.
type SearchResult struct {
	ID        int64
	ProjectID int64
	Score     float64
}

// Store is the vector-store surface the pipeline and query layer consume.
type Store interface {
	EnsureCollection(ctx context.Context, dimensions int) error
	RecreateCollection(ctx context.Context, dimensions int) error
	UpsertCodeFile(ctx context.Context, fileID, projectID int64, language string, vector []float32) error
	DeleteCodeByProjectID(ctx context.Context, projectID int64) error
	SearchCodeFiles(ctx context.Context, vector []float32, limit int, projectIDFilter *int64) ([]SearchResult, error)
}

type qdrantStore struct {
	http    *http.Client
	baseURL string
	apiKey  string
	log     *logger.Logger
}

// NewQdrantStore returns a Store backed by a Qdrant instance at url.
// apiKey may be empty for unauthenticated local instances.
func NewQdrantStore(url, apiKey string, log *logger.Logger) Store {
	return &qdrantStore{
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: strings.TrimRight(url, "/"),
		apiKey:  apiKey,
		log:     log.With("service", "QdrantStore"),
	}
}

type envelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
}

// doJSON issues one request against the Qdrant REST API, decoding the
// envelope's result field into out when out is non-nil.
func (s *qdrantStore) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return fmt.Errorf("qdrant: encode request: %w", err)
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("qdrant: build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("qdrant: %s %s returned %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if out == nil {
		return nil
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("qdrant: decode response: %w", err)
	}
	return json.Unmarshal(env.Result, out)
}

func (s *qdrantStore) collectionExists(ctx context.Context) (bool, error) {
	var result struct {
		Collections []struct {
			Name string `json:"name"`
		} `json:"collections"`
	}
	if err := s.doJSON(ctx, http.MethodGet, "/collections", nil, &result); err != nil {
		return false, err
	}
	for _, c := range result.Collections {
		if c.Name == collectionName {
			return true, nil
		}
	}
	return false, nil
}

func (s *qdrantStore) createCollection(ctx context.Context, dimensions int) error {
	create := map[string]any{
		"vectors": map[string]any{
			"size":     dimensions,
			"distance": "Cosine",
		},
	}
	if err := s.doJSON(ctx, http.MethodPut, "/collections/"+collectionName, create, nil); err != nil {
		return err
	}

	// Secondary index so delete-by-project and scoped search stay fast.
	index := map[string]any{
		"field_name":   "project_id",
		"field_schema": "integer",
	}
	return s.doJSON(ctx, http.MethodPut, "/collections/"+collectionName+"/index", index, nil)
}

// EnsureCollection creates the collection if it does not exist. Idempotent.
func (s *qdrantStore) EnsureCollection(ctx context.Context, dimensions int) error {
	exists, err := s.collectionExists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if err := s.createCollection(ctx, dimensions); err != nil {
		return err
	}
	s.log.Info("created collection", "collection", collectionName, "dimensions", dimensions)
	return nil
}

// RecreateCollection unconditionally drops and recreates the collection.
// Used when the embedding provider changes.
func (s *qdrantStore) RecreateCollection(ctx context.Context, dimensions int) error {
	exists, err := s.collectionExists(ctx)
	if err != nil {
		return err
	}
	if exists {
		if err := s.doJSON(ctx, http.MethodDelete, "/collections/"+collectionName, nil, nil); err != nil {
			return err
		}
		s.log.Info("deleted existing collection", "collection", collectionName)
	}
	if err := s.createCollection(ctx, dimensions); err != nil {
		return err
	}
	s.log.Info("recreated collection", "collection", collectionName, "dimensions", dimensions)
	return nil
}

// UpsertCodeFile inserts or replaces one point, waiting for completion so
// the point is immediately visible to searches.
func (s *qdrantStore) UpsertCodeFile(ctx context.Context, fileID, projectID int64, language string, vector []float32) error {
	req := map[string]any{
		"points": []map[string]any{
			{
				"id":     fileID,
				"vector": vector,
				"payload": map[string]any{
					"file_id":    fileID,
					"project_id": projectID,
					"language":   language,
				},
			},
		},
	}
	return s.doJSON(ctx, http.MethodPut, "/collections/"+collectionName+"/points?wait=true", req, nil)
}

func projectIDFilter(projectID int64) map[string]any {
	return map[string]any{
		"must": []map[string]any{
			{"key": "project_id", "match": map[string]any{"value": projectID}},
		},
	}
}

// DeleteCodeByProjectID removes every point belonging to the project.
func (s *qdrantStore) DeleteCodeByProjectID(ctx context.Context, projectID int64) error {
	req := map[string]any{"filter": projectIDFilter(projectID)}
	return s.doJSON(ctx, http.MethodPost, "/collections/"+collectionName+"/points/delete?wait=true", req, nil)
}

// SearchCodeFiles runs a k-nearest-neighbor search, optionally scoped to
// one project.
func (s *qdrantStore) SearchCodeFiles(ctx context.Context, vector []float32, limit int, filterProjectID *int64) ([]SearchResult, error) {
	req := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	if filterProjectID != nil {
		req["filter"] = projectIDFilter(*filterProjectID)
	}

	var raw []struct {
		ID      int64   `json:"id"`
		Score   float64 `json:"score"`
		Payload struct {
			ProjectID int64 `json:"project_id"`
		} `json:"payload"`
	}
	if err := s.doJSON(ctx, http.MethodPost, "/collections/"+collectionName+"/points/search", req, &raw); err != nil {
		return nil, err
	}

	results := make([]SearchResult, len(raw))
	for i, item := range raw {
		results[i] = SearchResult{ID: item.ID, ProjectID: item.Payload.ProjectID, Score: item.Score}
	}
	return results, nil
}
