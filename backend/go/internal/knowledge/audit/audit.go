// Package audit 保存知识库的变更记录（rag_updates）。记录只追加，从不修改或删除。
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Farx1/esilvchatbot/backend/go/internal/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// DefaultListLimit 是 List 未指定数量时返回的条数。
const DefaultListLimit = 50

// ErrInvalidEntry 表示审计记录缺少动作类型或触发来源。
var ErrInvalidEntry = errors.New("invalid audit entry")

// Filter 用于筛选 List 的结果，零值表示不过滤。
type Filter struct {
	Type    models.UpdateType
	Trigger models.Trigger
	Limit   int
}

// Log 是审计日志。List 按创建时间倒序返回。
type Log interface {
	Append(ctx context.Context, entry *models.AuditEntry) error
	List(ctx context.Context, filter Filter) ([]*models.AuditEntry, error)
	Stats(ctx context.Context) (models.AuditStats, error)
}

// prepare 校验并补全服务端字段。
func prepare(e *models.AuditEntry, now time.Time) error {
	if e.UpdateType == "" || e.TriggeredBy == "" {
		return ErrInvalidEntry
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return nil
}

func limitOf(f Filter) int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

// Differences 把冲突差异序列化为 JSON 列，空列表返回 nil。
func Differences(diffs []string) datatypes.JSON {
	if len(diffs) == 0 {
		return nil
	}
	raw, err := json.Marshal(diffs)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

// FactEntry 为一次针对某条事实的变更构建审计记录。
// oldFact 或 newFact 可以为空（新增没有旧值，删除没有新值）。
func FactEntry(kind models.UpdateType, trigger models.Trigger, oldFact, newFact *models.Fact) *models.AuditEntry {
	e := &models.AuditEntry{UpdateType: kind, TriggeredBy: trigger}
	ref := newFact
	if ref == nil {
		ref = oldFact
	}
	if ref != nil {
		id := ref.ID
		e.EntryID = &id
		conf := ref.Confidence
		e.Confidence = &conf
		if src := ref.SourceURL(); src != "" {
			e.Source = &src
		}
	}
	if oldFact != nil {
		e.OldValue = models.Snippet(oldFact.Answer, snippetLimit)
	}
	if newFact != nil {
		e.NewValue = models.Snippet(newFact.Answer, snippetLimit)
	}
	return e
}

const snippetLimit = 200
