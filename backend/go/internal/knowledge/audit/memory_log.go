package audit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Farx1/esilvchatbot/backend/go/internal/models"
)

// MemoryLog 是进程内的审计日志，用于 memory 驱动和测试。
type MemoryLog struct {
	mu      sync.RWMutex
	entries []models.AuditEntry
	now     func() time.Time
}

var _ Log = (*MemoryLog)(nil)

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{now: time.Now}
}

// WithClock 替换时钟。
func (l *MemoryLog) WithClock(now func() time.Time) *MemoryLog {
	l.now = now
	return l
}

func (l *MemoryLog) Append(_ context.Context, entry *models.AuditEntry) error {
	if err := prepare(entry, l.now()); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, *entry)
	return nil
}

func (l *MemoryLog) List(_ context.Context, filter Filter) ([]*models.AuditEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*models.AuditEntry, 0)
	for i := len(l.entries) - 1; i >= 0; i-- {
		e := l.entries[i]
		if filter.Type != "" && e.UpdateType != filter.Type {
			continue
		}
		if filter.Trigger != "" && e.TriggeredBy != filter.Trigger {
			continue
		}
		out = append(out, &e)
	}
	// 追加顺序已经是时间顺序，稳定排序只处理调用方显式设置的 CreatedAt
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit := limitOf(filter); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *MemoryLog) Stats(_ context.Context) (models.AuditStats, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := models.NewAuditStats()
	for _, e := range l.entries {
		stats.Total++
		stats.ByType[e.UpdateType]++
		stats.ByTrigger[e.TriggeredBy]++
	}
	return stats, nil
}

// Len 返回记录总数。
func (l *MemoryLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
