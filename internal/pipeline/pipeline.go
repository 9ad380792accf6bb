// Package pipeline orchestrates the repository indexing run: decide which
// repos changed, summarize them, persist metadata, re-embed code, and
// reconcile repositories that no longer exist upstream.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nexus-site/indexer/internal/embeddings"
	"github.com/nexus-site/indexer/internal/github"
	"github.com/nexus-site/indexer/internal/logger"
	"github.com/nexus-site/indexer/internal/store"
	"github.com/nexus-site/indexer/internal/summarizer"
	"github.com/nexus-site/indexer/internal/vectors"
)

const (
	embedBatchSize = 100
	embedTextLimit = 8000
)

// Options are the per-run switches.
type Options struct {
	// Force ignores the SHA-based skip check.
	Force bool
	// SummariesOnly skips file re-embedding entirely.
	SummariesOnly bool
	// RecreateCollection drops and rebuilds the vector collection.
	RecreateCollection bool
	// SingleRepo restricts the run to one "owner/repo" and suppresses
	// stale-repo cleanup.
	SingleRepo string
}

// Status is the terminal state of one repo's processing.
type Status string

const (
	StatusIndexed Status = "indexed"
	StatusSkipped Status = "skipped"
	StatusError   Status = "error"
)

// Result is one repo's outcome. Err is set only for StatusError.
type Result struct {
	FullName string
	Status   Status
	Err      error
}

// Report aggregates a whole run.
type Report struct {
	Indexed int
	Skipped int
	Errors  []Result
}

// Pipeline wires the collaborators together. All of them are interfaces so
// runs can be exercised hermetically in tests.
type Pipeline struct {
	github     github.API
	provider   embeddings.Provider
	summarizer summarizer.Summarizer
	vectors    vectors.Store
	store      store.Store
	username   string
	log        *logger.Logger
}

// New builds a Pipeline for the given GitHub account username.
func New(
	gh github.API,
	provider embeddings.Provider,
	summ summarizer.Summarizer,
	vec vectors.Store,
	st store.Store,
	username string,
	log *logger.Logger,
) *Pipeline {
	return &Pipeline{
		github:     gh,
		provider:   provider,
		summarizer: summ,
		vectors:    vec,
		store:      st,
		username:   username,
		log:        log.With("service", "IndexPipeline"),
	}
}

// Run executes one indexing run. Configuration and provider-mismatch
// problems fail the whole run; everything else is isolated per repo and
// reported in the returned Report.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Report, error) {
	if opts.RecreateCollection {
		if err := p.vectors.RecreateCollection(ctx, p.provider.Dimensions()); err != nil {
			return nil, err
		}
	}
	if err := p.vectors.EnsureCollection(ctx, p.provider.Dimensions()); err != nil {
		return nil, err
	}

	// Vectors produced by different embedding models are not comparable;
	// refuse to mix them unless the caller asked for a rebuild.
	storedProvider, err := p.store.GetMetadata(ctx, store.MetadataKeyEmbeddingProvider)
	if err != nil {
		return nil, err
	}
	if storedProvider != "" && storedProvider != p.provider.Name() && !opts.RecreateCollection {
		return nil, fmt.Errorf(
			"embedding provider changed: stored %s, current %s; use --recreate-collection to rebuild with the new provider",
			storedProvider, p.provider.Name(),
		)
	}
	if err := p.store.SetMetadata(ctx, store.MetadataKeyEmbeddingProvider, p.provider.Name()); err != nil {
		return nil, err
	}
	p.log.Info("using embeddings", "provider", p.provider.Name())

	var repos []github.Repo
	if opts.SingleRepo != "" {
		repo, err := p.github.GetRepo(ctx, opts.SingleRepo)
		if err != nil {
			return nil, err
		}
		repos = []github.Repo{repo}
	} else {
		repos, err = p.github.ListRepos(ctx)
		if err != nil {
			return nil, err
		}
	}
	p.log.Info("found repositories", "count", len(repos))

	// Every repo is processed concurrently; outbound pressure is bounded
	// by the GitHub client's semaphore, not by the fan-out.
	results := make([]Result, len(repos))
	var wg sync.WaitGroup
	for i, repo := range repos {
		wg.Add(1)
		go func(i int, repo github.Repo) {
			defer wg.Done()
			results[i] = p.indexRepo(ctx, repo, opts)
		}(i, repo)
	}
	wg.Wait()

	report := &Report{}
	for _, r := range results {
		switch r.Status {
		case StatusIndexed:
			report.Indexed++
		case StatusSkipped:
			report.Skipped++
		case StatusError:
			report.Errors = append(report.Errors, r)
		}
	}

	p.log.Info("run complete",
		"indexed", report.Indexed,
		"skipped", report.Skipped,
		"errors", len(report.Errors),
	)
	for _, r := range report.Errors {
		p.log.Error("repo failed", "repo", r.FullName, "error", r.Err.Error())
	}

	if opts.SingleRepo == "" {
		if err := p.cleanupStale(ctx, repos); err != nil {
			return report, err
		}
	}

	return report, nil
}

// indexRepo is the per-repo state machine: unchanged → skip; changed/new →
// summarize → persist → re-embed; any failure → errored. Errors never
// escape to sibling repos.
func (p *Pipeline) indexRepo(ctx context.Context, repo github.Repo, opts Options) Result {
	err := p.processRepo(ctx, repo, opts)
	switch {
	case err == nil:
		return Result{FullName: repo.FullName, Status: StatusIndexed}
	case errors.Is(err, errUnchanged):
		return Result{FullName: repo.FullName, Status: StatusSkipped}
	default:
		p.log.Error("indexing failed", "repo", repo.FullName, "error", err.Error())
		return Result{FullName: repo.FullName, Status: StatusError, Err: err}
	}
}

// errUnchanged marks the skip path internally; it is never surfaced.
var errUnchanged = errors.New("repository unchanged")

func (p *Pipeline) processRepo(ctx context.Context, repo github.Repo, opts Options) error {
	existing, err := p.store.GetProject(ctx, repo.ID)
	if err != nil {
		return err
	}

	currentSHA, err := p.github.GetDefaultBranchSHA(ctx, repo.FullName, repo.DefaultBranch)
	if err != nil {
		return err
	}

	if !opts.Force && existing != nil && existing.LastIndexedSHA != nil && *existing.LastIndexedSHA == currentSHA {
		p.log.Info("skipping unchanged repo", "repo", repo.FullName)
		return errUnchanged
	}

	p.log.Info("indexing repo", "repo", repo.FullName)

	commitCount, err := p.github.GetCommitCount(ctx, repo.FullName)
	if err != nil {
		return err
	}

	tree, err := p.github.GetTree(ctx, repo.FullName, currentSHA)
	if err != nil {
		return err
	}
	codePaths, keyPaths := github.ClassifyTree(tree)
	p.log.Info("classified tree", "repo", repo.FullName, "code_files", len(codePaths), "key_files", len(keyPaths))

	keyContents, err := p.github.GetFileContents(ctx, repo.FullName, keyPaths)
	if err != nil {
		return err
	}
	keyFiles := make([]summarizer.KeyFile, 0, len(keyPaths))
	for _, path := range keyPaths {
		if content, ok := keyContents[path]; ok {
			keyFiles = append(keyFiles, summarizer.KeyFile{Path: path, Content: content})
		}
	}

	summary, err := p.summarizer.Summarize(ctx, summarizer.Request{
		RepoName:    repo.FullName,
		Description: repo.Description,
		Language:    repo.Language,
		Topics:      repo.Topics,
		FilePaths:   codePaths,
		KeyFiles:    keyFiles,
	})
	if err != nil {
		return err
	}

	// The project row is the point after which the repo counts as indexed,
	// even if embedding below fails; see the known partial-failure window.
	now := time.Now()
	if err := p.store.UpsertProject(ctx, buildProject(repo, summary, commitCount, currentSHA, now, p.username)); err != nil {
		return err
	}

	if opts.SummariesOnly {
		return nil
	}
	return p.embedFiles(ctx, repo, codePaths)
}

func buildProject(repo github.Repo, summary summarizer.Summary, commitCount int, sha string, indexedAt time.Time, username string) *store.Project {
	project := &store.Project{
		ID:              repo.ID,
		FullName:        repo.FullName,
		HTMLURL:         repo.HTMLURL,
		Topics:          repo.Topics,
		IsFork:          repo.Fork,
		IsOwner:         strings.EqualFold(repo.Owner.Login, username),
		StargazersCount: repo.StargazersCount,
		CommitCount:     &commitCount,
		LastIndexedAt:   &indexedAt,
		LastIndexedSHA:  &sha,
	}
	if repo.Description != "" {
		project.Description = &repo.Description
	}
	if repo.Language != "" {
		project.Language = &repo.Language
	}
	if repo.Owner.Login != "" {
		project.OwnerLogin = &repo.Owner.Login
	}
	if summary.Summary != "" {
		project.AISummary = &summary.Summary
	}
	project.AITags = summary.Tags
	if !repo.CreatedAt.IsZero() {
		created := repo.CreatedAt
		project.CreatedAt = &created
	}
	if !repo.UpdatedAt.IsZero() {
		updated := repo.UpdatedAt
		project.UpdatedAt = &updated
	}
	if !repo.PushedAt.IsZero() {
		pushed := repo.PushedAt
		project.PushedAt = &pushed
	}
	return project
}

// embedFiles wipes the project's previous files and vectors, then
// re-fetches and re-embeds everything in concurrent batches. One batch's
// failure fails the repo but never cancels its sibling batches.
func (p *Pipeline) embedFiles(ctx context.Context, repo github.Repo, codePaths []string) error {
	if err := p.vectors.DeleteCodeByProjectID(ctx, repo.ID); err != nil {
		return err
	}
	if err := p.store.DeleteCodeFilesByProjectID(ctx, repo.ID); err != nil {
		return err
	}

	total := (len(codePaths) + embedBatchSize - 1) / embedBatchSize
	var completed int
	var mu sync.Mutex

	var g errgroup.Group
	for start := 0; start < len(codePaths); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(codePaths) {
			end = len(codePaths)
		}
		batch := codePaths[start:end]
		g.Go(func() error {
			if err := p.embedBatch(ctx, repo, batch); err != nil {
				return err
			}
			mu.Lock()
			completed++
			done := completed
			mu.Unlock()
			p.log.Info("indexed batch", "repo", repo.FullName, "batch", done, "total", total)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	p.log.Info("indexed files", "repo", repo.FullName, "count", len(codePaths))
	return nil
}

// embedBatch fetches one batch's contents, inserts fresh rows, embeds one
// text per successfully fetched file, and upserts one vector per row. Files
// whose content didn't resolve are excluded, never embedded as empty.
func (p *Pipeline) embedBatch(ctx context.Context, repo github.Repo, paths []string) error {
	contents, err := p.github.GetFileContents(ctx, repo.FullName, paths)
	if err != nil {
		return err
	}

	type batchFile struct {
		path     string
		language string
		content  string
	}
	files := make([]batchFile, 0, len(paths))
	rows := make([]store.CodeFile, 0, len(paths))
	for _, path := range paths {
		content, ok := contents[path]
		if !ok {
			continue
		}
		language := path[strings.LastIndex(path, ".")+1:]
		files = append(files, batchFile{path: path, language: language, content: content})
		rows = append(rows, store.CodeFile{
			ProjectID: repo.ID,
			Path:      path,
			Language:  language,
			Content:   content,
		})
	}
	if len(files) == 0 {
		return nil
	}

	inserted, err := p.store.InsertCodeFiles(ctx, rows)
	if err != nil {
		return err
	}

	texts := make([]string, len(files))
	for i, f := range files {
		content := f.content
		if len(content) > embedTextLimit {
			content = content[:embedTextLimit]
		}
		texts[i] = fmt.Sprintf("File: %s\n\n%s", f.path, content)
	}

	embedded, err := p.provider.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}
	if len(embedded) != len(inserted) {
		return fmt.Errorf("embedding count mismatch: %d vectors for %d files", len(embedded), len(inserted))
	}

	for i, row := range inserted {
		if err := p.vectors.UpsertCodeFile(ctx, row.ID, repo.ID, files[i].language, embedded[i]); err != nil {
			return err
		}
	}
	return nil
}

// cleanupStale prunes projects whose repo id no longer appears in the live
// listing: vectors first, then rows (cascading to code files).
func (p *Pipeline) cleanupStale(ctx context.Context, repos []github.Repo) error {
	liveIDs := make(map[int64]struct{}, len(repos))
	for _, r := range repos {
		liveIDs[r.ID] = struct{}{}
	}

	stored, err := p.store.ListProjects(ctx)
	if err != nil {
		return err
	}

	var stale []store.Project
	for _, project := range stored {
		if _, live := liveIDs[project.ID]; !live {
			stale = append(stale, project)
		}
	}
	if len(stale) == 0 {
		return nil
	}

	p.log.Info("cleaning up deleted repos", "count", len(stale))
	var g errgroup.Group
	for _, project := range stale {
		g.Go(func() error {
			p.log.Info("removing stale project", "repo", project.FullName)
			if err := p.vectors.DeleteCodeByProjectID(ctx, project.ID); err != nil {
				return err
			}
			return p.store.DeleteProject(ctx, project.ID)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	p.log.Info("cleaned up stale projects", "count", len(stale))
	return nil
}
