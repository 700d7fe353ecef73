package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Farx1/esilvchatbot/backend/go/internal/models"
)

// FormStore 保存报名/联系表单。
type FormStore interface {
	Create(ctx context.Context, s *models.FormSubmission) error
	// List 按提交时间倒序返回，limit <= 0 表示不限。
	List(ctx context.Context, limit int) ([]*models.FormSubmission, error)
}

// GormFormStore 与知识库共用同一个数据库。
type GormFormStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormFormStore(db *gorm.DB) *GormFormStore {
	return &GormFormStore{db: db, now: time.Now}
}

// Migrate creates or updates the form_submissions table.
func (s *GormFormStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&models.FormSubmission{})
}

func (s *GormFormStore) Create(ctx context.Context, sub *models.FormSubmission) error {
	sub.ID, sub.CreatedAt = uuid.New().String(), s.now().UTC()
	return s.db.WithContext(ctx).Create(sub).Error
}

func (s *GormFormStore) List(ctx context.Context, limit int) ([]*models.FormSubmission, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	subs := []*models.FormSubmission{}
	if err := q.Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

// MemoryFormStore 用于没有配置数据库的本地运行，重启后丢失。
type MemoryFormStore struct {
	mu   sync.Mutex
	subs []models.FormSubmission
	now  func() time.Time
}

func NewMemoryFormStore() *MemoryFormStore {
	return &MemoryFormStore{now: time.Now}
}

func (s *MemoryFormStore) Create(_ context.Context, sub *models.FormSubmission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub.ID, sub.CreatedAt = uuid.New().String(), s.now().UTC()
	s.subs = append(s.subs, *sub)
	return nil
}

func (s *MemoryFormStore) List(_ context.Context, limit int) ([]*models.FormSubmission, error) {
	s.mu.Lock()
	out := make([]*models.FormSubmission, 0, len(s.subs))
	// 倒序遍历，同一时刻的提交后到的在前
	for i := len(s.subs) - 1; i >= 0; i-- {
		cp := s.subs[i]
		out = append(out, &cp)
	}
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
