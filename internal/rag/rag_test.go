package rag

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/nexus-site/indexer/internal/logger"
	"github.com/nexus-site/indexer/internal/store"
	"github.com/nexus-site/indexer/internal/vectors"
)

type fakeProvider struct {
	queries []string
	vector  []float32
}

func (f *fakeProvider) Name() string    { return "fake:embedder" }
func (f *fakeProvider) Dimensions() int { return 2 }

func (f *fakeProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, nil
}

func (f *fakeProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	f.queries = append(f.queries, text)
	return f.vector, nil
}

type fakeVectors struct {
	lastLimit  int
	lastFilter *int64
	results    []vectors.SearchResult
}

func (f *fakeVectors) EnsureCollection(ctx context.Context, dimensions int) error   { return nil }
func (f *fakeVectors) RecreateCollection(ctx context.Context, dimensions int) error { return nil }
func (f *fakeVectors) UpsertCodeFile(ctx context.Context, fileID, projectID int64, language string, vector []float32) error {
	return nil
}
func (f *fakeVectors) DeleteCodeByProjectID(ctx context.Context, projectID int64) error { return nil }

func (f *fakeVectors) SearchCodeFiles(ctx context.Context, vector []float32, limit int, projectIDFilter *int64) ([]vectors.SearchResult, error) {
	f.lastLimit = limit
	f.lastFilter = projectIDFilter
	return f.results, nil
}

func newRagStore(t *testing.T) store.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	s, err := store.NewWithDB(db)
	require.NoError(t, err)
	return s
}

func seedProject(t *testing.T, s store.Store, id int64, fullName string, isOwner bool) {
	t.Helper()
	summary := "Indexes repositories."
	owner := strings.Split(fullName, "/")[0]
	require.NoError(t, s.UpsertProject(context.Background(), &store.Project{
		ID:              id,
		FullName:        fullName,
		HTMLURL:         "https://github.com/" + fullName,
		OwnerLogin:      &owner,
		IsOwner:         isOwner,
		StargazersCount: 4,
		AISummary:       &summary,
		AITags:          []string{"Go", "API"},
	}))
}

func TestGetProjectDetailsNotFound(t *testing.T) {
	svc := NewService(newRagStore(t), &fakeVectors{}, &fakeProvider{}, "octocat", logger.NewNop())

	details, err := svc.GetProjectDetails(context.Background(), "acme/missing", "anything")
	require.NoError(t, err)
	assert.Nil(t, details, "unknown project resolves to nil details, nil error")
}

func TestGetProjectDetailsScopedSearch(t *testing.T) {
	st := newRagStore(t)
	seedProject(t, st, 1, "acme/demo", true)
	files, err := st.InsertCodeFiles(context.Background(), []store.CodeFile{
		{ProjectID: 1, Path: "src/index.ts", Language: "ts", Content: "export {};"},
		{ProjectID: 1, Path: "src/util.ts", Language: "ts", Content: "export const x = 1;"},
	})
	require.NoError(t, err)

	vec := &fakeVectors{results: []vectors.SearchResult{
		{ID: files[0].ID, ProjectID: 1, Score: 0.9},
		{ID: files[1].ID, ProjectID: 1, Score: 0.8},
	}}
	provider := &fakeProvider{vector: []float32{0.1, 0.2}}
	svc := NewService(st, vec, provider, "octocat", logger.NewNop())

	details, err := svc.GetProjectDetails(context.Background(), "acme/demo", "how does util work")
	require.NoError(t, err)
	require.NotNil(t, details)

	assert.Equal(t, []string{"how does util work"}, provider.queries)
	assert.Equal(t, 5, vec.lastLimit)
	require.NotNil(t, vec.lastFilter)
	assert.Equal(t, int64(1), *vec.lastFilter)

	require.Len(t, details.CodeSnippets, 2)
	assert.Equal(t, "acme/demo", details.CodeSnippets[0].ProjectName)
}

func TestGetProjectDetailsNoMatches(t *testing.T) {
	st := newRagStore(t)
	seedProject(t, st, 1, "acme/demo", true)
	svc := NewService(st, &fakeVectors{}, &fakeProvider{}, "octocat", logger.NewNop())

	details, err := svc.GetProjectDetails(context.Background(), "acme/demo", "anything")
	require.NoError(t, err)
	require.NotNil(t, details)
	assert.Empty(t, details.CodeSnippets)
}

func TestFormatProjectDetailsFenceFormat(t *testing.T) {
	owner := "acme"
	summary := "Indexes repositories."
	count := 12
	details := &ProjectDetails{
		Project: store.Project{
			ID:              1,
			FullName:        "acme/demo",
			HTMLURL:         "https://github.com/acme/demo",
			OwnerLogin:      &owner,
			IsOwner:         true,
			StargazersCount: 4,
			CommitCount:     &count,
			AISummary:       &summary,
			AITags:          []string{"Go", "API"},
		},
		CodeSnippets: []CodeSnippet{
			{
				CodeFile:    store.CodeFile{Path: "src/index.ts", Language: "ts", Content: "export {};"},
				ProjectName: "acme/demo",
			},
		},
	}

	svc := NewService(nil, nil, nil, "octocat", logger.NewNop())
	out := svc.FormatProjectDetails(details)

	assert.True(t, strings.HasPrefix(out, "## acme/demo\n"))
	assert.Contains(t, out, "- octocat owns this project\n")
	assert.Contains(t, out, "- Summary: Indexes repositories.\n")
	assert.Contains(t, out, "- Tags: Go, API\n")
	assert.Contains(t, out, "- Stars: 4 | Commits: 12\n")
	assert.Contains(t, out, "- Link: https://github.com/acme/demo\n")
	assert.Contains(t, out, "=== CODE SNIPPETS (COPY THESE EXACTLY IN YOUR RESPONSE) ===")
	assert.Contains(t, out, "\nsrc/index.ts:\n```ts|https://github.com/acme/demo/blob/main/src/index.ts\nexport {};\n```\n")
	assert.Contains(t, out, "REMINDER: Copy the code blocks above EXACTLY")
}

func TestFormatProjectDetailsContributedFork(t *testing.T) {
	owner := "upstream"
	details := &ProjectDetails{
		Project: store.Project{
			FullName:   "upstream/tool",
			HTMLURL:    "https://github.com/upstream/tool",
			OwnerLogin: &owner,
			IsOwner:    false,
			IsFork:     true,
		},
	}

	svc := NewService(nil, nil, nil, "octocat", logger.NewNop())
	out := svc.FormatProjectDetails(details)

	assert.Contains(t, out, "## upstream/tool (Fork)\n")
	assert.Contains(t, out, "- octocat contributed to this project (owned by upstream)\n")
	assert.Contains(t, out, "- Summary: No summary\n")
	assert.Contains(t, out, "- Tags: None\n")
	assert.Contains(t, out, "Commits: Unknown\n")
	assert.NotContains(t, out, "CODE SNIPPETS")
}

func TestGetAllProjectSummaries(t *testing.T) {
	st := newRagStore(t)
	seedProject(t, st, 1, "octocat/mine", true)
	seedProject(t, st, 2, "upstream/theirs", false)

	svc := NewService(st, &fakeVectors{}, &fakeProvider{}, "octocat", logger.NewNop())
	summaries, err := svc.GetAllProjectSummaries(context.Background())
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	byName := map[string]ProjectSummary{}
	for _, s := range summaries {
		byName[s.Name] = s
	}
	assert.True(t, byName["octocat/mine"].IsOwner)
	assert.False(t, byName["upstream/theirs"].IsOwner)
	assert.Equal(t, "Indexes repositories.", byName["octocat/mine"].Description)
	assert.Equal(t, []string{"Go", "API"}, byName["octocat/mine"].Tags)
}

func TestBuildSystemPrompt(t *testing.T) {
	svc := NewService(nil, nil, nil, "octocat", logger.NewNop())

	prompt := svc.BuildSystemPrompt([]ProjectSummary{
		{Name: "octocat/mine", Description: "Indexes repositories.", IsOwner: true, Tags: []string{"Go"}},
		{Name: "upstream/theirs", IsOwner: false},
	})

	assert.Contains(t, prompt, "You MUST always respond in English.")
	assert.Contains(t, prompt, "```language|URL")
	assert.Contains(t, prompt, "octocat owns 1 projects and contributed to 1 others.")
	assert.Contains(t, prompt, "- octocat/mine: Indexes repositories. [Go]")
	assert.Contains(t, prompt, "- upstream/theirs: No description")
}

func TestGetLatestIndexedTime(t *testing.T) {
	st := newRagStore(t)
	svc := NewService(st, &fakeVectors{}, &fakeProvider{}, "octocat", logger.NewNop())

	latest, err := svc.GetLatestIndexedTime(context.Background())
	require.NoError(t, err)
	assert.Nil(t, latest)

	indexed := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, st.UpsertProject(context.Background(), &store.Project{
		ID:            1,
		FullName:      "acme/demo",
		HTMLURL:       "https://github.com/acme/demo",
		LastIndexedAt: &indexed,
	}))

	latest, err = svc.GetLatestIndexedTime(context.Background())
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, latest.Equal(indexed))
}
