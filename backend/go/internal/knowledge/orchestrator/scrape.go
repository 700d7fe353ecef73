package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/reconcile"
	"github.com/Farx1/esilvchatbot/backend/go/internal/models"
)

// ScrapedCategory 是手动抓取保存的事实所属的类别。
const ScrapedCategory = "web_scraped"

// ErrEmptyQuery 表示抓取请求没有给出查询。
var ErrEmptyQuery = errors.New("query is required")

// ScrapeRequest 是一次手动抓取。
type ScrapeRequest struct {
	Query    string    `json:"query"`
	AutoSave bool      `json:"autoSave"`
	AsOf     time.Time `json:"currentDate,omitempty"`
}

// ScrapeResult 是手动抓取的结果。Saved 仅在 AutoSave 时非空。
type ScrapeResult struct {
	Query      string                     `json:"query"`
	Candidates []models.VerifiedCandidate `json:"results"`
	Count      int                        `json:"count"`
	Saved      *reconcile.SaveReport      `json:"saved,omitempty"`
}

// Scrape 直接调用实时核实，不经过新鲜度策略，也不与本地事实比较。
// AutoSave 时结果以 manual 触发写入知识库，已存在的内容跳过。
func (o *Orchestrator) Scrape(ctx context.Context, req ScrapeRequest) (*ScrapeResult, error) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return nil, ErrEmptyQuery
	}
	asOf := req.AsOf
	if asOf.IsZero() {
		asOf = o.opts.Now()
	}

	vctx, cancel := context.WithTimeout(ctx, o.opts.BackgroundTimeout)
	defer cancel()
	cands, err := o.verify(vctx, req.Query, asOf)
	if err != nil {
		return nil, err
	}
	res := &ScrapeResult{Query: req.Query, Candidates: cands, Count: len(cands)}
	if res.Candidates == nil {
		res.Candidates = []models.VerifiedCandidate{}
	}
	if !req.AutoSave || o.reconciler == nil {
		return res, nil
	}

	rep, err := o.reconciler.Save(vctx, req.Query, ScrapedCategory, cands, models.TriggerManual)
	if err != nil {
		return nil, err
	}
	res.Saved = &rep
	return res, nil
}
