package models

import "strings"

// VerifiedCandidate 是实时核实得到、尚未入库的事实。
type VerifiedCandidate struct {
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	URL        string   `json:"url"`
	Confidence float64  `json:"confidence"`
	Date       string   `json:"date,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

// Text 返回用于冲突检测的文本。
func (c VerifiedCandidate) Text() string {
	return c.Title + "\n" + c.Content
}

// ConflictTier 是冲突判定的置信档位。
type ConflictTier string

const (
	TierNone   ConflictTier = "none"
	TierLow    ConflictTier = "low"
	TierMedium ConflictTier = "medium"
	TierHigh   ConflictTier = "high"
)

// ConflictVerdict 是一次本地事实与核实结果比较的结论，只在单个请求内存在。
type ConflictVerdict struct {
	HasConflict bool         `json:"hasConflict"`
	Score       int          `json:"score"`
	Tier        ConflictTier `json:"tier"`
	Differences []string     `json:"differences,omitempty"`
}

// Summary 把差异描述拼接为一行。
func (v ConflictVerdict) Summary() string {
	return strings.Join(v.Differences, "; ")
}
