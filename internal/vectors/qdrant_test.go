package vectors

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-site/indexer/internal/logger"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   map[string]any
}

// qdrantFake records requests and answers GET /collections with a canned
// collection list.
type qdrantFake struct {
	t        *testing.T
	existing []string
	requests []recordedRequest
	search   []map[string]any
}

func (f *qdrantFake) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery}
		if r.Body != nil {
			var body map[string]any
			if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
				rec.Body = body
			}
		}
		f.requests = append(f.requests, rec)

		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/collections":
			names := make([]map[string]any, len(f.existing))
			for i, n := range f.existing {
				names[i] = map[string]any{"name": n}
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"result": map[string]any{"collections": names},
				"status": "ok",
			})
		case r.Method == http.MethodPost && r.URL.Path == "/collections/code_chunks/points/search":
			_ = json.NewEncoder(w).Encode(map[string]any{"result": f.search, "status": "ok"})
		default:
			_ = json.NewEncoder(w).Encode(map[string]any{"result": true, "status": "ok"})
		}
	}
}

func newFakeStore(t *testing.T, existing ...string) (*qdrantFake, Store) {
	t.Helper()
	fake := &qdrantFake{t: t, existing: existing}
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)
	return fake, NewQdrantStore(server.URL, "test-key", logger.NewNop())
}

func (f *qdrantFake) find(method, path string) *recordedRequest {
	for i := range f.requests {
		if f.requests[i].Method == method && f.requests[i].Path == path {
			return &f.requests[i]
		}
	}
	return nil
}

func TestEnsureCollectionCreatesWhenMissing(t *testing.T) {
	fake, store := newFakeStore(t)

	require.NoError(t, store.EnsureCollection(context.Background(), 1024))

	create := fake.find(http.MethodPut, "/collections/code_chunks")
	require.NotNil(t, create, "missing collection must be created")
	vectors := create.Body["vectors"].(map[string]any)
	assert.Equal(t, float64(1024), vectors["size"])
	assert.Equal(t, "Cosine", vectors["distance"])

	index := fake.find(http.MethodPut, "/collections/code_chunks/index")
	require.NotNil(t, index, "payload index on project_id must be created")
	assert.Equal(t, "project_id", index.Body["field_name"])
	assert.Equal(t, "integer", index.Body["field_schema"])
}

func TestEnsureCollectionIsIdempotent(t *testing.T) {
	fake, store := newFakeStore(t, "code_chunks")

	require.NoError(t, store.EnsureCollection(context.Background(), 1024))

	assert.Nil(t, fake.find(http.MethodPut, "/collections/code_chunks"))
	assert.Nil(t, fake.find(http.MethodDelete, "/collections/code_chunks"))
}

func TestRecreateCollectionDropsExisting(t *testing.T) {
	fake, store := newFakeStore(t, "code_chunks")

	require.NoError(t, store.RecreateCollection(context.Background(), 768))

	assert.NotNil(t, fake.find(http.MethodDelete, "/collections/code_chunks"))
	create := fake.find(http.MethodPut, "/collections/code_chunks")
	require.NotNil(t, create)
	vectors := create.Body["vectors"].(map[string]any)
	assert.Equal(t, float64(768), vectors["size"])
}

func TestUpsertCodeFilePointShape(t *testing.T) {
	fake, store := newFakeStore(t)

	err := store.UpsertCodeFile(context.Background(), 17, 3, "ts", []float32{0.1, 0.2})
	require.NoError(t, err)

	req := fake.find(http.MethodPut, "/collections/code_chunks/points")
	require.NotNil(t, req)
	assert.Equal(t, "wait=true", req.Query)

	points := req.Body["points"].([]any)
	require.Len(t, points, 1)
	point := points[0].(map[string]any)
	assert.Equal(t, float64(17), point["id"])

	payload := point["payload"].(map[string]any)
	assert.Equal(t, float64(17), payload["file_id"])
	assert.Equal(t, float64(3), payload["project_id"])
	assert.Equal(t, "ts", payload["language"])
}

func TestDeleteCodeByProjectIDFilter(t *testing.T) {
	fake, store := newFakeStore(t)

	require.NoError(t, store.DeleteCodeByProjectID(context.Background(), 3))

	req := fake.find(http.MethodPost, "/collections/code_chunks/points/delete")
	require.NotNil(t, req)
	assert.Equal(t, "wait=true", req.Query)

	filter := req.Body["filter"].(map[string]any)
	must := filter["must"].([]any)
	require.Len(t, must, 1)
	cond := must[0].(map[string]any)
	assert.Equal(t, "project_id", cond["key"])
	assert.Equal(t, float64(3), cond["match"].(map[string]any)["value"])
}

func TestSearchCodeFiles(t *testing.T) {
	t.Run("unscoped", func(t *testing.T) {
		fake, store := newFakeStore(t)
		fake.search = []map[string]any{
			{"id": 9, "score": 0.91, "payload": map[string]any{"project_id": 2}},
			{"id": 4, "score": 0.72, "payload": map[string]any{"project_id": 1}},
		}

		results, err := store.SearchCodeFiles(context.Background(), []float32{0.1}, 5, nil)
		require.NoError(t, err)

		req := fake.find(http.MethodPost, "/collections/code_chunks/points/search")
		require.NotNil(t, req)
		assert.Equal(t, float64(5), req.Body["limit"])
		assert.Equal(t, true, req.Body["with_payload"])
		_, hasFilter := req.Body["filter"]
		assert.False(t, hasFilter)

		require.Len(t, results, 2)
		assert.Equal(t, SearchResult{ID: 9, ProjectID: 2, Score: 0.91}, results[0])
		assert.Equal(t, SearchResult{ID: 4, ProjectID: 1, Score: 0.72}, results[1])
	})

	t.Run("scoped to project", func(t *testing.T) {
		fake, store := newFakeStore(t)
		fake.search = []map[string]any{
			{"id": 4, "score": 0.72, "payload": map[string]any{"project_id": 1}},
		}

		projectID := int64(1)
		results, err := store.SearchCodeFiles(context.Background(), []float32{0.1}, 5, &projectID)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, int64(1), results[0].ProjectID)

		req := fake.find(http.MethodPost, "/collections/code_chunks/points/search")
		require.NotNil(t, req)
		filter := req.Body["filter"].(map[string]any)
		must := filter["must"].([]any)
		cond := must[0].(map[string]any)
		assert.Equal(t, "project_id", cond["key"])
		assert.Equal(t, float64(1), cond["match"].(map[string]any)["value"])
	})
}

func TestQdrantErrorSurfacesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":{"error":"out of disk"}}`))
	}))
	t.Cleanup(server.Close)
	store := NewQdrantStore(server.URL, "", logger.NewNop())

	err := store.EnsureCollection(context.Background(), 1024)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "out of disk")
}
