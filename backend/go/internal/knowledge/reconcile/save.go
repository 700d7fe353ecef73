package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/audit"
	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/store"
	"github.com/Farx1/esilvchatbot/backend/go/internal/models"
)

// SaveReport 描述一次手动保存核实结果的结果。
type SaveReport struct {
	Inserted     []*models.Fact `json:"inserted,omitempty"`
	Duplicates   int            `json:"duplicates"`
	AuditEntries int            `json:"auditEntries"`
}

// Save 把核实结果原样写入知识库，不与本地事实比较，也不淘汰任何事实。
// 内容相同或来源与标题相同的结果计为重复。category 为空时按查询和标题归类。
func (r *Reconciler) Save(ctx context.Context, query, category string, cands []models.VerifiedCandidate, trigger models.Trigger) (SaveReport, error) {
	var rep SaveReport
	if trigger == "" {
		trigger = models.TriggerManual
	}
	now := r.opts.Now()

	var batch store.Batch
	for _, c := range cands {
		if strings.TrimSpace(c.Title) == "" || strings.TrimSpace(c.Content) == "" {
			continue
		}
		verified := now
		f := &models.Fact{
			Question:     FactQuestion(c),
			Answer:       FactAnswer(c),
			Category:     category,
			Confidence:   c.Confidence,
			LastVerified: &verified,
			CreatedAt:    now,
		}
		if f.Category == "" {
			f.Category = Categorize(query, c.Title)
		}
		if f.Confidence <= 0 || f.Confidence > 1 {
			f.Confidence = r.opts.VerifiedConfidence
		}
		if c.URL != "" {
			src := c.URL
			f.Source = &src
		}
		batch.Insert = append(batch.Insert, f)
	}
	if len(batch.Insert) == 0 {
		return rep, nil
	}

	res, err := r.store.Apply(ctx, batch)
	if err != nil {
		return rep, fmt.Errorf("save verified candidates: %w", err)
	}
	rep.Inserted, rep.Duplicates = res.Inserted, len(res.Duplicates)
	for _, f := range res.Inserted {
		rep.AuditEntries += r.append(ctx, audit.FactEntry(models.UpdateAdd, trigger, nil, f), query)
	}

	r.logger.WithPayload(map[string]interface{}{
		"query":      query,
		"inserted":   len(res.Inserted),
		"duplicates": len(res.Duplicates),
		"trigger":    trigger,
	}).Info("Verified candidates saved")
	return rep, nil
}
