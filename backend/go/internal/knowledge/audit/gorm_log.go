package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/Farx1/esilvchatbot/backend/go/internal/models"
	"gorm.io/gorm"
)

// GormLog 把审计记录写入 rag_updates 表。
type GormLog struct {
	db  *gorm.DB
	now func() time.Time
}

var _ Log = (*GormLog)(nil)

// NewGormLog 创建 GormLog，启动时需要调用一次 Migrate。
func NewGormLog(db *gorm.DB) *GormLog {
	return &GormLog{db: db, now: time.Now}
}

// Migrate 创建或更新 rag_updates 表。
func (l *GormLog) Migrate(ctx context.Context) error {
	return l.db.WithContext(ctx).AutoMigrate(&models.AuditEntry{})
}

// Append 写入一条记录。
func (l *GormLog) Append(ctx context.Context, entry *models.AuditEntry) error {
	if err := prepare(entry, l.now()); err != nil {
		return err
	}
	if err := l.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// List 按创建时间倒序返回记录。
func (l *GormLog) List(ctx context.Context, filter Filter) ([]*models.AuditEntry, error) {
	q := l.db.WithContext(ctx).Model(&models.AuditEntry{})
	if filter.Type != "" {
		q = q.Where("update_type = ?", filter.Type)
	}
	if filter.Trigger != "" {
		q = q.Where("triggered_by = ?", filter.Trigger)
	}
	var entries []*models.AuditEntry
	if err := q.Order("created_at DESC").Limit(limitOf(filter)).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return entries, nil
}

// Stats 统计各类型和各触发来源的记录数。
func (l *GormLog) Stats(ctx context.Context) (models.AuditStats, error) {
	stats := models.NewAuditStats()

	var byType []struct {
		UpdateType models.UpdateType
		Count      int64
	}
	if err := l.db.WithContext(ctx).Model(&models.AuditEntry{}).
		Select("update_type, COUNT(*) AS count").Group("update_type").Scan(&byType).Error; err != nil {
		return stats, fmt.Errorf("audit stats by type: %w", err)
	}
	for _, row := range byType {
		stats.ByType[row.UpdateType] = row.Count
		stats.Total += row.Count
	}

	var byTrigger []struct {
		TriggeredBy models.Trigger
		Count       int64
	}
	if err := l.db.WithContext(ctx).Model(&models.AuditEntry{}).
		Select("triggered_by, COUNT(*) AS count").Group("triggered_by").Scan(&byTrigger).Error; err != nil {
		return stats, fmt.Errorf("audit stats by trigger: %w", err)
	}
	for _, row := range byTrigger {
		stats.ByTrigger[row.TriggeredBy] = row.Count
	}
	return stats, nil
}
