package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Farx1/esilvchatbot/backend/go/internal/models"
	"gorm.io/gorm"
)

// GormStore keeps facts in a relational database (MySQL in production, SQLite locally).
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

var _ Store = (*GormStore)(nil)

// NewGormStore wraps db. Call Migrate once at startup.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, now: time.Now}
}

// Migrate creates or updates the knowledge_base table.
func (s *GormStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&models.Fact{}); err != nil {
		return unavailable("migrate", err)
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}

// Search implements Store. Keywords come from the keyword extractor and
// never contain LIKE wildcards.
func (s *GormStore) Search(ctx context.Context, keywords []string, limit int) ([]*models.Fact, error) {
	if len(keywords) == 0 {
		return nil, nil
	}
	clauses := make([]string, 0, len(keywords))
	args := make([]interface{}, 0, 3*len(keywords))
	for _, kw := range keywords {
		pattern := "%" + strings.ToLower(kw) + "%"
		clauses = append(clauses, "LOWER(question) LIKE ? OR LOWER(answer) LIKE ? OR LOWER(category) LIKE ?")
		args = append(args, pattern, pattern, pattern)
	}

	var facts []*models.Fact
	q := s.db.WithContext(ctx).
		Where(strings.Join(clauses, " OR "), args...).
		Order("confidence DESC").
		Order("last_verified DESC").
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&facts).Error; err != nil {
		return nil, unavailable("search facts", err)
	}
	return facts, nil
}

// Get implements Store.
func (s *GormStore) Get(ctx context.Context, id string) (*models.Fact, error) {
	var fact models.Fact
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&fact).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFactNotFound
	}
	if err != nil {
		return nil, unavailable("get fact", err)
	}
	return &fact, nil
}

// List implements Store.
func (s *GormStore) List(ctx context.Context, opts ListOptions) ([]*models.Fact, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if opts.Category != "" {
		q = q.Where("category = ?", opts.Category)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	var facts []*models.Fact
	if err := q.Find(&facts).Error; err != nil {
		return nil, unavailable("list facts", err)
	}
	return facts, nil
}

// Create implements Store.
func (s *GormStore) Create(ctx context.Context, fact *models.Fact) error {
	if err := prepare(fact, s.now()); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(fact).Error; err != nil {
		return unavailable("create fact", err)
	}
	return nil
}

// Update implements Store.
func (s *GormStore) Update(ctx context.Context, id string, patch models.FactPatch) (*models.Fact, error) {
	var updated models.Fact
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&updated).Error; err != nil {
			return err
		}
		patch.Apply(&updated)
		if err := updated.Validate(); err != nil {
			return err
		}
		updated.UpdatedAt = s.now()
		return tx.Save(&updated).Error
	})
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, ErrFactNotFound
	case errors.Is(err, models.ErrInvalidFact):
		return nil, err
	case err != nil:
		return nil, unavailable("update fact", err)
	}
	return &updated, nil
}

// Delete implements Store.
func (s *GormStore) Delete(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Fact{})
	if result.Error != nil {
		return unavailable("delete fact", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrFactNotFound
	}
	return nil
}

// BulkDelete implements Store. Unknown ids are ignored.
func (s *GormStore) BulkDelete(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.Fact{})
	if result.Error != nil {
		return 0, unavailable("bulk delete facts", result.Error)
	}
	return result.RowsAffected, nil
}

// Apply implements Store in a single transaction.
func (s *GormStore) Apply(ctx context.Context, batch Batch) (BatchResult, error) {
	var res BatchResult
	now := s.now()
	for _, f := range batch.Insert {
		if err := prepare(f, now); err != nil {
			return res, err
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range batch.Retire {
			var old models.Fact
			err := tx.Where("id = ?", id).First(&old).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				res.AlreadyGone = append(res.AlreadyGone, id)
				continue
			}
			if err != nil {
				return err
			}
			result := tx.Where("id = ?", id).Delete(&models.Fact{})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				res.AlreadyGone = append(res.AlreadyGone, id)
				continue
			}
			res.Retired = append(res.Retired, &old)
		}

		for _, f := range batch.Insert {
			q := tx.Model(&models.Fact{}).Where("content_hash = ?", f.ContentHash)
			if src := f.SourceURL(); src != "" {
				q = q.Or("source = ? AND question = ?", src, f.Question)
			}
			var count int64
			if err := q.Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				res.Duplicates = append(res.Duplicates, f)
				continue
			}
			if err := tx.Create(f).Error; err != nil {
				return err
			}
			res.Inserted = append(res.Inserted, f)
		}
		return nil
	})
	if err != nil {
		return BatchResult{}, unavailable("apply batch", err)
	}
	return res, nil
}

// ListStale implements Store.
func (s *GormStore) ListStale(ctx context.Context, before time.Time, limit int) ([]*models.Fact, error) {
	q := s.db.WithContext(ctx).
		Where("last_verified < ? OR last_verified IS NULL", before).
		Order("last_verified ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var facts []*models.Fact
	if err := q.Find(&facts).Error; err != nil {
		return nil, unavailable("list stale facts", err)
	}
	return facts, nil
}

// Stats implements Store.
func (s *GormStore) Stats(ctx context.Context) (models.KnowledgeStats, error) {
	var stats models.KnowledgeStats
	err := s.db.WithContext(ctx).Model(&models.Fact{}).
		Select("category, COUNT(*) AS count, AVG(confidence) AS average_confidence").
		Group("category").
		Order("category").
		Scan(&stats.Categories).Error
	if err != nil {
		return stats, unavailable("knowledge stats", err)
	}
	for _, c := range stats.Categories {
		stats.Total += c.Count
	}
	return stats, nil
}

// Ping implements Store.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return unavailable("ping", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}
