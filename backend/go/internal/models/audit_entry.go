package models

import (
	"time"

	"gorm.io/datatypes"
)

// UpdateType 是审计记录的动作类型。
type UpdateType string

const (
	UpdateDelete UpdateType = "delete"
	UpdateAdd    UpdateType = "add"
	UpdateUpdate UpdateType = "update"
	UpdateVerify UpdateType = "verify"
)

// Trigger 标识触发知识库变更的来源。
type Trigger string

const (
	TriggerScraper   Trigger = "scraper"   // 实时核实
	TriggerManual    Trigger = "manual"    // 人工编辑
	TriggerScheduled Trigger = "scheduled" // 定时复核
)

// AuditEntry 是一条不可变的知识库变更记录，只追加，从不修改或删除。
type AuditEntry struct {
	ID          string         `gorm:"primaryKey;size:36" json:"id"`
	UpdateType  UpdateType     `gorm:"size:16;index;not null" json:"updateType"`
	EntryID     *string        `gorm:"size:36;index" json:"entryId,omitempty"`
	OldValue    *string        `gorm:"type:text" json:"oldValue,omitempty"`
	NewValue    *string        `gorm:"type:text" json:"newValue,omitempty"`
	Source      *string        `gorm:"size:512" json:"source,omitempty"`
	Query       *string        `gorm:"type:text" json:"query,omitempty"`
	Confidence  *float64       `json:"confidence,omitempty"`
	Differences datatypes.JSON `json:"differences,omitempty"`
	TriggeredBy Trigger        `gorm:"size:16;index;not null" json:"triggeredBy"`
	CreatedAt   time.Time      `gorm:"index" json:"createdAt"`
}

// TableName 指定 GORM 使用的表名。
func (AuditEntry) TableName() string {
	return "rag_updates"
}

// AuditStats 汇总审计记录的数量。
type AuditStats struct {
	Total     int64                `json:"total"`
	ByType    map[UpdateType]int64 `json:"byType"`
	ByTrigger map[Trigger]int64    `json:"byTrigger"`
}

// NewAuditStats 返回所有已知类型和来源计数为 0 的统计。
func NewAuditStats() AuditStats {
	return AuditStats{
		ByType: map[UpdateType]int64{
			UpdateDelete: 0, UpdateAdd: 0, UpdateUpdate: 0, UpdateVerify: 0,
		},
		ByTrigger: map[Trigger]int64{
			TriggerScraper: 0, TriggerManual: 0, TriggerScheduled: 0,
		},
	}
}

// Snippet 截断文本，用作审计中的新旧值。
func Snippet(s string, limit int) *string {
	r := []rune(s)
	if len(r) > limit {
		s = string(r[:limit]) + "..."
	}
	return &s
}
