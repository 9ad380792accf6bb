package store

import (
	"time"

	"gorm.io/datatypes"
)

// Project is one GitHub repository known to the system. The primary key is
// GitHub's numeric repo id, so renames keep their row. GitHub's own
// timestamps are stored verbatim; auto time tracking is disabled on them.
type Project struct {
	ID              int64                       `gorm:"primaryKey" json:"id"`
	FullName        string                      `gorm:"index;not null" json:"full_name"`
	HTMLURL         string                      `gorm:"column:html_url;not null" json:"html_url"`
	Description     *string                     `json:"description"`
	Language        *string                     `gorm:"index" json:"language"`
	Topics          datatypes.JSONSlice[string] `json:"topics"`
	OwnerLogin      *string                     `gorm:"index" json:"owner_login"`
	IsFork          bool                        `gorm:"not null;default:false" json:"is_fork"`
	IsOwner         bool                        `gorm:"not null;default:true" json:"is_owner"`
	StargazersCount int                         `gorm:"not null" json:"stargazers_count"`
	CommitCount     *int                        `json:"commit_count"`
	AISummary       *string                     `gorm:"column:ai_summary" json:"ai_summary"`
	AITags          datatypes.JSONSlice[string] `gorm:"column:ai_tags" json:"ai_tags"`
	LastIndexedAt   *time.Time                  `json:"last_indexed_at"`
	LastIndexedSHA  *string                     `gorm:"column:last_indexed_sha" json:"last_indexed_sha"`
	CreatedAt       *time.Time                  `gorm:"autoCreateTime:false" json:"created_at"`
	UpdatedAt       *time.Time                  `gorm:"autoUpdateTime:false" json:"updated_at"`
	PushedAt        *time.Time                  `json:"pushed_at"`
}

func (Project) TableName() string { return "projects" }

// CodeFile is one indexed source file. Rows are store-generated and fully
// replaced on re-index, so ids are not stable across runs.
type CodeFile struct {
	ID        int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	ProjectID int64   `gorm:"index;not null" json:"project_id"`
	Project   Project `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Path      string  `gorm:"index;not null" json:"path"`
	Language  string  `gorm:"index" json:"language"`
	Content   string  `gorm:"not null" json:"content"`
}

func (CodeFile) TableName() string { return "code_files" }

// IndexerMetadata is a key/value row; today only "embedding_provider",
// which guards against mixing vectors from incompatible embedding models.
type IndexerMetadata struct {
	Key   string `gorm:"primaryKey" json:"key"`
	Value string `gorm:"not null" json:"value"`
}

func (IndexerMetadata) TableName() string { return "indexer_metadata" }

// MetadataKeyEmbeddingProvider names the provider that produced the vectors
// currently in the collection.
const MetadataKeyEmbeddingProvider = "embedding_provider"
