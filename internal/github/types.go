package github

import "time"

// Owner identifies the account a repository belongs to.
type Owner struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
}

// Repo is the repository metadata snapshot the pipeline works from.
type Repo struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	FullName        string    `json:"full_name"` // "owner/repo"
	Description     string    `json:"description"`
	HTMLURL         string    `json:"html_url"`
	Language        string    `json:"language"`
	Topics          []string  `json:"topics"`
	DefaultBranch   string    `json:"default_branch"`
	Fork            bool      `json:"fork"`
	StargazersCount int       `json:"stargazers_count"`
	Owner           Owner     `json:"owner"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	PushedAt        time.Time `json:"pushed_at"`
}

// Tree is a full recursive git tree at one commit.
type Tree struct {
	SHA       string      `json:"sha"`
	Tree      []TreeEntry `json:"tree"`
	Truncated bool        `json:"truncated"`
}

// TreeEntry is a single node in a git tree. Type is "blob" or "tree".
type TreeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
	SHA  string `json:"sha"`
	Size int64  `json:"size,omitempty"`
}
