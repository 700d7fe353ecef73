package models

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidFact 表示事实缺少必填字段或取值越界。
var ErrInvalidFact = errors.New("invalid fact")

// Fact 是知识库中的一条问答记录，带有可信度和新鲜度元数据。
type Fact struct {
	ID           string     `gorm:"primaryKey;size:36" json:"id"`
	Question     string     `gorm:"type:text;not null" json:"question"`
	Answer       string     `gorm:"type:text;not null" json:"answer"`
	Category     string     `gorm:"size:64;index;not null" json:"category"`
	Confidence   float64    `gorm:"not null" json:"confidence"`
	Source       *string    `gorm:"size:512;index" json:"source,omitempty"`
	ContentHash  string     `gorm:"size:64;index" json:"-"`
	LastVerified *time.Time `gorm:"index" json:"lastVerified,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// TableName 指定 GORM 使用的表名。
func (Fact) TableName() string {
	return "knowledge_base"
}

// Validate 检查事实的不变量：问题和答案非空，置信度在 [0,1] 内。
func (f *Fact) Validate() error {
	if strings.TrimSpace(f.Question) == "" {
		return fmt.Errorf("%w: question is required", ErrInvalidFact)
	}
	if strings.TrimSpace(f.Answer) == "" {
		return fmt.Errorf("%w: answer is required", ErrInvalidFact)
	}
	if f.Confidence < 0 || f.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v outside [0,1]", ErrInvalidFact, f.Confidence)
	}
	return nil
}

// Text 返回用于冲突检测的文本。
func (f *Fact) Text() string {
	return f.Question + "\n" + f.Answer
}

// FreshnessAnchor 返回计算事实年龄的基准时间。
// 没有 LastVerified 时退回到创建时间。
func (f *Fact) FreshnessAnchor() time.Time {
	if f.LastVerified != nil {
		return *f.LastVerified
	}
	return f.CreatedAt
}

// AgeDays 返回事实距 now 的天数（小数）。
func (f *Fact) AgeDays(now time.Time) float64 {
	return now.Sub(f.FreshnessAnchor()).Hours() / 24
}

// SourceURL 返回来源字符串，没有来源时返回空串。
func (f *Fact) SourceURL() string {
	if f.Source == nil {
		return ""
	}
	return *f.Source
}

// ContentHash 计算问答内容的指纹，用于幂等插入。
// 大小写和首尾空白不影响结果。
func ContentHash(question, answer string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(question)) + "\x00" + strings.ToLower(strings.TrimSpace(answer))))
	return hex.EncodeToString(sum[:])
}

// FactPatch 描述一次部分更新，nil 字段保持不变。
type FactPatch struct {
	Question     *string    `json:"question,omitempty"`
	Answer       *string    `json:"answer,omitempty"`
	Category     *string    `json:"category,omitempty"`
	Confidence   *float64   `json:"confidence,omitempty"`
	Source       *string    `json:"source,omitempty"`
	LastVerified *time.Time `json:"lastVerified,omitempty"`
}

// Apply 把补丁应用到 f 上。LastVerified 只会前进，不会回退。
func (p FactPatch) Apply(f *Fact) {
	if p.Question != nil {
		f.Question = *p.Question
	}
	if p.Answer != nil {
		f.Answer = *p.Answer
	}
	if p.Category != nil {
		f.Category = *p.Category
	}
	if p.Confidence != nil {
		f.Confidence = *p.Confidence
	}
	if p.Source != nil {
		src := *p.Source
		f.Source = &src
	}
	if p.LastVerified != nil && (f.LastVerified == nil || p.LastVerified.After(*f.LastVerified)) {
		lv := *p.LastVerified
		f.LastVerified = &lv
	}
	if p.Question != nil || p.Answer != nil {
		f.ContentHash = ContentHash(f.Question, f.Answer)
	}
}

// CategoryStats 是按分类聚合的知识库统计。
type CategoryStats struct {
	Category          string  `json:"category"`
	Count             int64   `json:"count"`
	AverageConfidence float64 `json:"averageConfidence"`
}

// KnowledgeStats 是知识库的整体统计。
type KnowledgeStats struct {
	Total      int64           `json:"total"`
	Categories []CategoryStats `json:"categories"`
}
