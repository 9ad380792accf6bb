// Package store is the durable relational record of projects, their indexed
// code files, and indexer bookkeeping. Production runs on Postgres; tests
// run the same code on in-memory sqlite.
package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// Store is the persistence surface the pipeline, query layer, and webhook
// receiver share.
type Store interface {
	GetProject(ctx context.Context, id int64) (*Project, error)
	GetProjectByFullName(ctx context.Context, fullName string) (*Project, error)
	ListProjects(ctx context.Context) ([]Project, error)
	UpsertProject(ctx context.Context, project *Project) error
	UpsertProjectRef(ctx context.Context, id int64, fullName, htmlURL string, stargazersCount int) error
	DeleteProject(ctx context.Context, id int64) error

	InsertCodeFiles(ctx context.Context, files []CodeFile) ([]CodeFile, error)
	GetCodeFilesByIDs(ctx context.Context, ids []int64) ([]CodeFile, error)
	DeleteCodeFilesByProjectID(ctx context.Context, projectID int64) error

	LatestIndexedAt(ctx context.Context) (*time.Time, error)
	GetMetadata(ctx context.Context, key string) (string, error)
	SetMetadata(ctx context.Context, key, value string) error
}

type gormStore struct {
	db *gorm.DB
}

// New opens a Postgres-backed store and runs migrations.
func New(databaseURL string) (Store, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	return NewWithDB(db)
}

// NewWithDB wraps an already-open gorm handle. Tests use this with sqlite.
func NewWithDB(db *gorm.DB) (Store, error) {
	if err := db.AutoMigrate(&Project{}, &CodeFile{}, &IndexerMetadata{}); err != nil {
		return nil, err
	}
	return &gormStore{db: db}, nil
}

func (s *gormStore) GetProject(ctx context.Context, id int64) (*Project, error) {
	var project Project
	err := s.db.WithContext(ctx).First(&project, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &project, nil
}

func (s *gormStore) GetProjectByFullName(ctx context.Context, fullName string) (*Project, error) {
	var project Project
	err := s.db.WithContext(ctx).First(&project, "full_name = ?", fullName).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &project, nil
}

func (s *gormStore) ListProjects(ctx context.Context) ([]Project, error) {
	var projects []Project
	if err := s.db.WithContext(ctx).Find(&projects).Error; err != nil {
		return nil, err
	}
	return projects, nil
}

// UpsertProject writes the full row as a unit: insert, or update every
// column on id conflict.
func (s *gormStore) UpsertProject(ctx context.Context, project *Project) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(project).Error
}

// UpsertProjectRef upserts only the minimal column subset the webhook
// receiver is trusted with, leaving AI fields and checkpoints untouched.
func (s *gormStore) UpsertProjectRef(ctx context.Context, id int64, fullName, htmlURL string, stargazersCount int) error {
	project := Project{
		ID:              id,
		FullName:        fullName,
		HTMLURL:         htmlURL,
		StargazersCount: stargazersCount,
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"full_name", "html_url", "stargazers_count"}),
		}).
		Create(&project).Error
}

// DeleteProject removes the project and, through the FK cascade, its code
// files.
func (s *gormStore) DeleteProject(ctx context.Context, id int64) error {
	tx := s.db.WithContext(ctx)
	if err := tx.Where("project_id = ?", id).Delete(&CodeFile{}).Error; err != nil {
		return err
	}
	return tx.Delete(&Project{}, "id = ?", id).Error
}

// InsertCodeFiles inserts the batch and returns it with generated ids set.
func (s *gormStore) InsertCodeFiles(ctx context.Context, files []CodeFile) ([]CodeFile, error) {
	if len(files) == 0 {
		return nil, nil
	}
	if err := s.db.WithContext(ctx).Create(&files).Error; err != nil {
		return nil, err
	}
	return files, nil
}

func (s *gormStore) GetCodeFilesByIDs(ctx context.Context, ids []int64) ([]CodeFile, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var files []CodeFile
	if err := s.db.WithContext(ctx).Find(&files, "id IN ?", ids).Error; err != nil {
		return nil, err
	}
	return files, nil
}

func (s *gormStore) DeleteCodeFilesByProjectID(ctx context.Context, projectID int64) error {
	return s.db.WithContext(ctx).Where("project_id = ?", projectID).Delete(&CodeFile{}).Error
}

// LatestIndexedAt returns the newest last_indexed_at across all projects,
// or nil if nothing has been indexed yet.
func (s *gormStore) LatestIndexedAt(ctx context.Context) (*time.Time, error) {
	projects, err := s.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	var latest *time.Time
	for i := range projects {
		t := projects[i].LastIndexedAt
		if t == nil {
			continue
		}
		if latest == nil || t.After(*latest) {
			latest = t
		}
	}
	return latest, nil
}

// GetMetadata returns the value for key, or "" when the key is absent.
func (s *gormStore) GetMetadata(ctx context.Context, key string) (string, error) {
	var row IndexerMetadata
	err := s.db.WithContext(ctx).First(&row, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return row.Value, nil
}

func (s *gormStore) SetMetadata(ctx context.Context, key, value string) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value"}),
		}).
		Create(&IndexerMetadata{Key: key, Value: value}).Error
}
