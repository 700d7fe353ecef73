// Package store persists knowledge facts.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/Farx1/esilvchatbot/backend/go/internal/models"
	"github.com/google/uuid"
)

var (
	// ErrStoreUnavailable wraps every storage failure. Callers fail the request on it.
	ErrStoreUnavailable = errors.New("fact store unavailable")
	// ErrFactNotFound is returned by Get, Update and Delete for unknown ids.
	ErrFactNotFound = errors.New("fact not found")
)

// ListOptions filters List.
type ListOptions struct {
	Category string
	Limit    int
	Offset   int
}

// Batch is one reconciliation: facts to retire and facts to insert.
type Batch struct {
	Retire []string
	Insert []*models.Fact
}

// BatchResult reports what a Batch actually changed.
type BatchResult struct {
	Retired     []*models.Fact // deleted, with their content before deletion
	Inserted    []*models.Fact
	Duplicates  []*models.Fact // inserts skipped because the content already exists
	AlreadyGone []string       // retire ids that no longer existed
}

// Store is the fact table.
//
// Search matches any keyword as a case-insensitive substring of question,
// answer or category and orders by confidence, then lastVerified, then
// createdAt, all descending.
type Store interface {
	Search(ctx context.Context, keywords []string, limit int) ([]*models.Fact, error)
	Get(ctx context.Context, id string) (*models.Fact, error)
	List(ctx context.Context, opts ListOptions) ([]*models.Fact, error)
	Create(ctx context.Context, fact *models.Fact) error
	Update(ctx context.Context, id string, patch models.FactPatch) (*models.Fact, error)
	Delete(ctx context.Context, id string) error
	BulkDelete(ctx context.Context, ids []string) (int64, error)
	// Apply runs a reconciliation batch. Deleting a missing fact and inserting
	// content that already exists are both no-ops reported in the result.
	Apply(ctx context.Context, batch Batch) (BatchResult, error)
	// ListStale returns facts last verified before the cutoff, oldest first.
	ListStale(ctx context.Context, before time.Time, limit int) ([]*models.Fact, error)
	Stats(ctx context.Context) (models.KnowledgeStats, error)
	Ping(ctx context.Context) error
}

// prepare validates f and fills the server-side fields.
func prepare(f *models.Fact, now time.Time) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	if f.Category == "" {
		f.Category = "general"
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	f.UpdatedAt = now
	if f.LastVerified == nil {
		lv := f.CreatedAt
		f.LastVerified = &lv
	}
	f.ContentHash = models.ContentHash(f.Question, f.Answer)
	return nil
}

// sameContent is the duplicate rule shared by both implementations.
func sameContent(existing, candidate *models.Fact) bool {
	if existing.ContentHash == candidate.ContentHash {
		return true
	}
	src := candidate.SourceURL()
	return src != "" && existing.SourceURL() == src && existing.Question == candidate.Question
}
