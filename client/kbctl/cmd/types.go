package cmd

import "time"

// 以下类型只包含 CLI 用到的 JSON 字段。

type fact struct {
	ID           string     `json:"id"`
	Question     string     `json:"question"`
	Answer       string     `json:"answer"`
	Category     string     `json:"category"`
	Confidence   float64    `json:"confidence"`
	Source       *string    `json:"source,omitempty"`
	LastVerified *time.Time `json:"lastVerified,omitempty"`
}

type categoryStats struct {
	Category          string  `json:"category"`
	Count             int64   `json:"count"`
	AverageConfidence float64 `json:"averageConfidence"`
}

type knowledgeStats struct {
	Total      int64           `json:"total"`
	Categories []categoryStats `json:"categories"`
}

type auditEntry struct {
	UpdateType  string    `json:"updateType"`
	TriggeredBy string    `json:"triggeredBy"`
	Query       *string   `json:"query,omitempty"`
	Source      *string   `json:"source,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

type auditStats struct {
	Total     int64            `json:"total"`
	ByType    map[string]int64 `json:"byType"`
	ByTrigger map[string]int64 `json:"byTrigger"`
}

// seedEntry 与服务端种子文件的字段一致，YAML 原样转成 JSON 提交。
type seedEntry struct {
	Question     string     `yaml:"question" json:"question"`
	Answer       string     `yaml:"answer" json:"answer"`
	Category     string     `yaml:"category" json:"category,omitempty"`
	Confidence   *float64   `yaml:"confidence" json:"confidence,omitempty"`
	Source       string     `yaml:"source" json:"source,omitempty"`
	LastVerified *time.Time `yaml:"lastVerified" json:"lastVerified,omitempty"`
}

type seedFile struct {
	Facts []seedEntry `yaml:"facts" json:"facts"`
}

type seedReport struct {
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
}

type scrapedItem struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Date  string `json:"date"`
}

type scrapeResult struct {
	Results          []scrapedItem `json:"results"`
	Count            int           `json:"count"`
	SavedToKB        bool          `json:"savedToKB"`
	NewArticles      int           `json:"newArticles"`
	ExistingArticles int           `json:"existingArticles"`
}
