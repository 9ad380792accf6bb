// Package github is a GraphQL-first client for the slice of the GitHub API
// the index pipeline needs: repository listings, branch heads, trees, and
// batched file contents. The recursive tree fetch falls back to REST since
// GraphQL has no recursive-tree primitive.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/nexus-site/indexer/internal/logger"
)

// API is the surface the pipeline and query layer consume. *Client is the
// production implementation; tests substitute fakes.
type API interface {
	ListRepos(ctx context.Context) ([]Repo, error)
	GetRepo(ctx context.Context, fullName string) (Repo, error)
	GetDefaultBranchSHA(ctx context.Context, fullName, branch string) (string, error)
	GetCommitCount(ctx context.Context, fullName string) (int, error)
	GetTree(ctx context.Context, fullName, sha string) (Tree, error)
	GetFileContents(ctx context.Context, fullName string, paths []string) (map[string]string, error)
}

const (
	defaultBaseURL       = "https://api.github.com"
	defaultMaxConcurrent = 10
	fileContentBatchSize = 50
	rateLimitLogInterval = 10 * time.Second
)

// Client talks to the GitHub GraphQL and REST APIs with a bounded number of
// in-flight requests and surfaces rate-limit state as it goes.
type Client struct {
	http     *http.Client
	baseURL  string
	pat      string
	username string
	sem      *semaphore.Weighted
	log      *logger.Logger

	// Throttles rate-limit status logs. Instance state, not package state,
	// so multiple clients don't interfere.
	mu               sync.Mutex
	lastRateLimitLog time.Time
}

// Option tweaks Client construction.
type Option func(*Client)

// WithMaxConcurrent bounds the number of concurrent outbound requests.
func WithMaxConcurrent(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithBaseURL points the client at a different API host. Used in tests.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// NewClient returns a ready-to-use GitHub client authenticated with pat.
func NewClient(pat, username string, log *logger.Logger, opts ...Option) *Client {
	c := &Client{
		http:     &http.Client{Timeout: 30 * time.Second},
		baseURL:  defaultBaseURL,
		pat:      pat,
		username: username,
		sem:      semaphore.NewWeighted(defaultMaxConcurrent),
		log:      log.With("service", "GitHubClient"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ API = (*Client)(nil)

func parseRateLimit(h http.Header) *RateLimit {
	limit := h.Get("x-ratelimit-limit")
	remaining := h.Get("x-ratelimit-remaining")
	reset := h.Get("x-ratelimit-reset")
	if limit == "" || remaining == "" || reset == "" {
		return nil
	}

	limitN, err := strconv.Atoi(limit)
	if err != nil {
		return nil
	}
	remainingN, err := strconv.Atoi(remaining)
	if err != nil {
		return nil
	}
	resetUnix, err := strconv.ParseInt(reset, 10, 64)
	if err != nil {
		return nil
	}

	used, _ := strconv.Atoi(h.Get("x-ratelimit-used"))
	resource := h.Get("x-ratelimit-resource")
	if resource == "" {
		resource = "unknown"
	}

	return &RateLimit{
		Limit:     limitN,
		Remaining: remainingN,
		Used:      used,
		Reset:     time.Unix(resetUnix, 0),
		Resource:  resource,
	}
}

// maybeLogRateLimit logs quota state when it is getting low, or at most once
// per rateLimitLogInterval otherwise.
func (c *Client) maybeLogRateLimit(rl *RateLimit, context string) {
	if rl == nil {
		return
	}

	c.mu.Lock()
	now := time.Now()
	shouldLog := rl.Remaining < 100 ||
		rl.Remaining < rl.Limit/10 ||
		now.Sub(c.lastRateLimitLog) > rateLimitLogInterval
	if shouldLog {
		c.lastRateLimitLog = now
	}
	c.mu.Unlock()

	if shouldLog {
		c.log.Info("rate limit status",
			"context", context,
			"remaining", rl.Remaining,
			"limit", rl.Limit,
			"resets_in", time.Until(rl.Reset).Round(time.Second).String(),
		)
	}
}

// statusError turns a non-2xx response into the right error flavor: a 403
// with zero remaining quota is a rate-limit error, anything else is generic.
func statusError(kind string, status int, body string, rl *RateLimit) error {
	if status == http.StatusForbidden && rl != nil && rl.Remaining == 0 {
		return &RateLimitError{Status: status, RateLimit: *rl}
	}
	return &APIError{
		Status:    status,
		Message:   fmt.Sprintf("github: %s error: %d %s", kind, status, body),
		RateLimit: rl,
	}
}

type graphQLEnvelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// graphql POSTs one GraphQL query and decodes the data payload into out.
// Every call holds a semaphore slot for its full duration.
func (c *Client) graphql(ctx context.Context, query string, variables map[string]any, out any) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.sem.Release(1)

	payload, err := json.Marshal(map[string]any{"query": query, "variables": variables})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/graphql", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.pat)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	rl := parseRateLimit(resp.Header)
	c.maybeLogRateLimit(rl, "GraphQL")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return statusError("GraphQL", resp.StatusCode, strings.TrimSpace(string(body)), rl)
	}

	var envelope graphQLEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("github: decode GraphQL response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		msgs := make([]string, len(envelope.Errors))
		for i, e := range envelope.Errors {
			msgs[i] = e.Message
		}
		return &APIError{
			Status:    http.StatusBadRequest,
			Message:   "github: GraphQL errors: " + strings.Join(msgs, ", "),
			RateLimit: rl,
		}
	}

	return json.Unmarshal(envelope.Data, out)
}

// rest GETs a REST endpoint and decodes the JSON body into out, under the
// same semaphore as GraphQL calls.
func (c *Client) rest(ctx context.Context, path string, out any) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.sem.Release(1)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+c.pat)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	rl := parseRateLimit(resp.Header)
	c.maybeLogRateLimit(rl, "REST")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return statusError("REST", resp.StatusCode, strings.TrimSpace(string(body)), rl)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// repoNode mirrors the aliased repository selection used by listRepos and
// getRepo. Loosely-typed JSON stays here; callers only ever see Repo.
type repoNode struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	FullName    string `json:"full_name"`
	Description string `json:"description"`
	HTMLURL     string `json:"html_url"`
	Language    *struct {
		Name string `json:"name"`
	} `json:"language"`
	Topics struct {
		Nodes []struct {
			Topic struct {
				Name string `json:"name"`
			} `json:"topic"`
		} `json:"nodes"`
	} `json:"topics"`
	DefaultBranch *struct {
		Name string `json:"name"`
	} `json:"default_branch"`
	Fork            bool      `json:"fork"`
	StargazersCount int       `json:"stargazers_count"`
	Owner           Owner     `json:"owner"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	PushedAt        time.Time `json:"pushed_at"`
}

func (n repoNode) toRepo() Repo {
	repo := Repo{
		ID:              n.ID,
		Name:            n.Name,
		FullName:        n.FullName,
		Description:     n.Description,
		HTMLURL:         n.HTMLURL,
		DefaultBranch:   "main",
		Fork:            n.Fork,
		StargazersCount: n.StargazersCount,
		Owner:           n.Owner,
		CreatedAt:       n.CreatedAt,
		UpdatedAt:       n.UpdatedAt,
		PushedAt:        n.PushedAt,
	}
	if n.Language != nil {
		repo.Language = n.Language.Name
	}
	if n.DefaultBranch != nil {
		repo.DefaultBranch = n.DefaultBranch.Name
	}
	for _, t := range n.Topics.Nodes {
		repo.Topics = append(repo.Topics, t.Topic.Name)
	}
	return repo
}

const repoSelection = `
      id: databaseId
      name
      full_name: nameWithOwner
      description
      html_url: url
      stargazers_count: stargazerCount
      created_at: createdAt
      updated_at: updatedAt
      pushed_at: pushedAt
      language: primaryLanguage { name }
      topics: repositoryTopics(first: 20) { nodes { topic { name } } }
      default_branch: defaultBranchRef { name }
      fork: isFork
      owner { login ... on User { id: databaseId } ... on Organization { id: databaseId } }`

// ListRepos pages through the account's public repositories (owner and
// collaborator affiliations), preserving page and within-page order.
func (c *Client) ListRepos(ctx context.Context) ([]Repo, error) {
	query := `
    query($login: String!, $cursor: String) {
      user(login: $login) {
        repositories(first: 100, after: $cursor, ownerAffiliations: [OWNER, COLLABORATOR], privacy: PUBLIC) {
          pageInfo { hasNextPage endCursor }
          nodes {` + repoSelection + `
          }
        }
      }
    }`

	var repos []Repo
	var cursor *string

	for {
		var data struct {
			User struct {
				Repositories struct {
					PageInfo struct {
						HasNextPage bool    `json:"hasNextPage"`
						EndCursor   *string `json:"endCursor"`
					} `json:"pageInfo"`
					Nodes []repoNode `json:"nodes"`
				} `json:"repositories"`
			} `json:"user"`
		}

		vars := map[string]any{"login": c.username, "cursor": cursor}
		if err := c.graphql(ctx, query, vars, &data); err != nil {
			return nil, err
		}

		for _, node := range data.User.Repositories.Nodes {
			repos = append(repos, node.toRepo())
		}

		if !data.User.Repositories.PageInfo.HasNextPage {
			break
		}
		cursor = data.User.Repositories.PageInfo.EndCursor
	}

	return repos, nil
}

func splitFullName(fullName string) (owner, name string) {
	owner, name, _ = strings.Cut(fullName, "/")
	return owner, name
}

// GetRepo fetches a single repository's metadata by "owner/repo" name.
func (c *Client) GetRepo(ctx context.Context, fullName string) (Repo, error) {
	owner, name := splitFullName(fullName)
	query := `
    query($owner: String!, $name: String!) {
      repository(owner: $owner, name: $name) {` + repoSelection + `
      }
    }`

	var data struct {
		Repository *repoNode `json:"repository"`
	}
	if err := c.graphql(ctx, query, map[string]any{"owner": owner, "name": name}, &data); err != nil {
		return Repo{}, err
	}
	if data.Repository == nil {
		return Repo{}, fmt.Errorf("github: repository %s not found", fullName)
	}
	return data.Repository.toRepo(), nil
}

// GetDefaultBranchSHA resolves refs/heads/<branch> to its commit SHA.
func (c *Client) GetDefaultBranchSHA(ctx context.Context, fullName, branch string) (string, error) {
	owner, name := splitFullName(fullName)
	query := `
    query($owner: String!, $name: String!, $branch: String!) {
      repository(owner: $owner, name: $name) {
        ref(qualifiedName: $branch) {
          target { oid }
        }
      }
    }`

	var data struct {
		Repository struct {
			Ref *struct {
				Target struct {
					OID string `json:"oid"`
				} `json:"target"`
			} `json:"ref"`
		} `json:"repository"`
	}
	vars := map[string]any{"owner": owner, "name": name, "branch": "refs/heads/" + branch}
	if err := c.graphql(ctx, query, vars, &data); err != nil {
		return "", err
	}
	if data.Repository.Ref == nil || data.Repository.Ref.Target.OID == "" {
		return "", fmt.Errorf("github: branch %s not found in %s", branch, fullName)
	}
	return data.Repository.Ref.Target.OID, nil
}

// GetCommitCount returns the total commit count on the default branch.
func (c *Client) GetCommitCount(ctx context.Context, fullName string) (int, error) {
	owner, name := splitFullName(fullName)
	query := `
    query($owner: String!, $name: String!) {
      repository(owner: $owner, name: $name) {
        defaultBranchRef {
          target {
            ... on Commit {
              history { totalCount }
            }
          }
        }
      }
    }`

	var data struct {
		Repository struct {
			DefaultBranchRef *struct {
				Target struct {
					History struct {
						TotalCount int `json:"totalCount"`
					} `json:"history"`
				} `json:"target"`
			} `json:"defaultBranchRef"`
		} `json:"repository"`
	}
	if err := c.graphql(ctx, query, map[string]any{"owner": owner, "name": name}, &data); err != nil {
		return 0, err
	}
	if data.Repository.DefaultBranchRef == nil {
		return 0, nil
	}
	return data.Repository.DefaultBranchRef.Target.History.TotalCount, nil
}

// GetTree fetches the full recursive file tree at a commit via REST.
func (c *Client) GetTree(ctx context.Context, fullName, sha string) (Tree, error) {
	var tree Tree
	path := fmt.Sprintf("/repos/%s/git/trees/%s?recursive=1", fullName, sha)
	if err := c.rest(ctx, path, &tree); err != nil {
		return Tree{}, err
	}
	return tree, nil
}

// GetFileContents batch-fetches file text at HEAD, one aliased GraphQL query
// per fileContentBatchSize paths. Paths that don't resolve to text (binary
// blobs, paths removed mid-run) are omitted from the result.
func (c *Client) GetFileContents(ctx context.Context, fullName string, paths []string) (map[string]string, error) {
	results := make(map[string]string, len(paths))
	if len(paths) == 0 {
		return results, nil
	}

	owner, name := splitFullName(fullName)

	for start := 0; start < len(paths); start += fileContentBatchSize {
		end := start + fileContentBatchSize
		if end > len(paths) {
			end = len(paths)
		}
		batch := paths[start:end]

		var fields strings.Builder
		for i, path := range batch {
			escaped := strings.ReplaceAll(path, `"`, `\"`)
			fmt.Fprintf(&fields, "file_%d: object(expression: \"HEAD:%s\") { ... on Blob { text } }\n", i, escaped)
		}

		query := fmt.Sprintf(`
      query($owner: String!, $name: String!) {
        repository(owner: $owner, name: $name) {
          %s
        }
      }`, fields.String())

		var data struct {
			Repository map[string]*struct {
				Text *string `json:"text"`
			} `json:"repository"`
		}
		if err := c.graphql(ctx, query, map[string]any{"owner": owner, "name": name}, &data); err != nil {
			return nil, err
		}

		for i, path := range batch {
			file := data.Repository[fmt.Sprintf("file_%d", i)]
			if file != nil && file.Text != nil {
				results[path] = *file.Text
			}
		}
	}

	return results, nil
}
