// Package reconcile 根据冲突判定更新知识库：淘汰过时事实、写入核实结果，并记录审计日志。
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/audit"
	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/freshness"
	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/keywords"
	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/store"
	"github.com/Farx1/esilvchatbot/backend/go/internal/models"
	"github.com/Farx1/esilvchatbot/backend/go/internal/observability"
	"github.com/Farx1/esilvchatbot/backend/go/pkg/logger"
)

// Options 配置 Reconciler。零值字段使用默认值。
type Options struct {
	Policy             freshness.Policy
	VerifiedConfidence float64
	LockTTL            time.Duration
	Locker             Locker
	Metrics            *observability.Metrics
	Now                func() time.Time
}

// Input 是一次对账所需的全部信息。
type Input struct {
	Query      string
	Class      freshness.Class
	Facts      []*models.Fact // 本次回答所依据的本地事实
	Candidates []models.VerifiedCandidate
	Verdict    models.ConflictVerdict
	Trigger    models.Trigger
}

// Outcome 描述对账实际做了什么。
type Outcome struct {
	Retired  []*models.Fact `json:"retired,omitempty"`
	Inserted []*models.Fact `json:"inserted,omitempty"`
	Verified *models.Fact   `json:"verified,omitempty"`
	// Skipped 表示同一主题的对账正在进行，本次未做任何修改。
	Skipped bool `json:"skipped,omitempty"`
	// AuditEntries 是成功写入的审计记录数。
	AuditEntries int `json:"auditEntries"`
}

// Reconciler 把核实结果合并进知识库。
type Reconciler struct {
	store  store.Store
	audit  audit.Log
	opts   Options
	logger *logger.Logger
}

func New(s store.Store, log audit.Log, l *logger.Logger, opts Options) *Reconciler {
	if opts.Policy == (freshness.Policy{}) {
		opts.Policy = freshness.DefaultPolicy()
	}
	if opts.VerifiedConfidence == 0 {
		opts.VerifiedConfidence = 0.95
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 2 * time.Minute
	}
	if opts.Locker == nil {
		opts.Locker = NewLocalLocker()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Reconciler{store: s, audit: log, opts: opts, logger: l}
}

// ShouldRetire 判断一条本地事实在冲突时是否应被淘汰：
// 没有 lastVerified、超过硬过期，或超过软过期且查询涉及易变信息。
func (r *Reconciler) ShouldRetire(f *models.Fact, class freshness.Class, now time.Time) bool {
	if f.LastVerified == nil {
		return true
	}
	age := f.AgeDays(now)
	switch {
	case age > r.opts.Policy.HardDays:
		return true
	case age >= r.opts.Policy.SoftDays && class.Volatile:
		return true
	default:
		return false
	}
}

// Reconcile 执行一次对账。存储失败返回错误，审计写入失败只记录日志。
func (r *Reconciler) Reconcile(ctx context.Context, in Input) (Outcome, error) {
	var out Outcome
	if in.Trigger == "" {
		in.Trigger = models.TriggerScraper
	}
	if len(in.Candidates) == 0 && !in.Verdict.HasConflict {
		return out, nil
	}

	unlock, ok, err := r.opts.Locker.TryLock(ctx, lockKey(in), r.opts.LockTTL)
	if err != nil {
		// 锁服务不可用时不阻塞对账，依赖幂等写入兜底
		r.logger.WithError(err).Warn("Reconcile lock unavailable, continuing without lock")
	} else if !ok {
		out.Skipped = true
		return out, nil
	} else {
		defer unlock()
	}

	now := r.opts.Now()
	if !in.Verdict.HasConflict && len(in.Facts) > 0 {
		return r.verify(ctx, in, now)
	}

	batch := store.Batch{Insert: r.buildFacts(in, now)}
	if in.Verdict.HasConflict {
		for _, f := range in.Facts {
			if r.ShouldRetire(f, in.Class, now) {
				batch.Retire = append(batch.Retire, f.ID)
			}
		}
	}
	if len(batch.Retire) == 0 && len(batch.Insert) == 0 {
		return out, nil
	}

	res, err := r.store.Apply(ctx, batch)
	if err != nil {
		return out, fmt.Errorf("apply reconciliation batch: %w", err)
	}
	out.Retired, out.Inserted = res.Retired, res.Inserted

	diffs := audit.Differences(in.Verdict.Differences)
	for _, f := range res.Retired {
		e := audit.FactEntry(models.UpdateDelete, in.Trigger, f, nil)
		e.Differences = diffs
		out.AuditEntries += r.append(ctx, e, in.Query)
	}
	for _, f := range res.Inserted {
		out.AuditEntries += r.append(ctx, audit.FactEntry(models.UpdateAdd, in.Trigger, nil, f), in.Query)
	}

	r.logger.WithPayload(map[string]interface{}{
		"query":       in.Query,
		"tier":        in.Verdict.Tier,
		"retired":     len(res.Retired),
		"inserted":    len(res.Inserted),
		"duplicates":  len(res.Duplicates),
		"alreadyGone": len(res.AlreadyGone),
	}).Info("Knowledge reconciled")
	return out, nil
}

// verify 在没有冲突时刷新主事实的 lastVerified。
func (r *Reconciler) verify(ctx context.Context, in Input, now time.Time) (Outcome, error) {
	var out Outcome
	primary := in.Facts[0]
	updated, err := r.store.Update(ctx, primary.ID, models.FactPatch{LastVerified: &now})
	if err != nil {
		if errors.Is(err, store.ErrFactNotFound) {
			return out, nil
		}
		return out, fmt.Errorf("mark fact verified: %w", err)
	}
	out.Verified = updated

	e := audit.FactEntry(models.UpdateVerify, in.Trigger, primary, updated)
	e.OldValue, e.NewValue = nil, nil
	if primary.LastVerified != nil {
		e.OldValue = models.Snippet(primary.LastVerified.UTC().Format(time.RFC3339), 64)
	}
	e.NewValue = models.Snippet(now.UTC().Format(time.RFC3339), 64)
	out.AuditEntries += r.append(ctx, e, in.Query)
	return out, nil
}

func (r *Reconciler) append(ctx context.Context, e *models.AuditEntry, query string) int {
	if query != "" {
		q := query
		e.Query = &q
	}
	if err := r.audit.Append(ctx, e); err != nil {
		r.logger.WithError(err).WithPayload(map[string]interface{}{"type": e.UpdateType}).Error("Failed to append audit entry")
		return 0
	}
	r.opts.Metrics.ReconcileAction(string(e.UpdateType), string(e.TriggeredBy))
	return 1
}

// buildFacts 把核实结果转换为待入库的事实。
func (r *Reconciler) buildFacts(in Input, now time.Time) []*models.Fact {
	facts := make([]*models.Fact, 0, len(in.Candidates))
	for _, c := range in.Candidates {
		if strings.TrimSpace(c.Title) == "" || strings.TrimSpace(c.Content) == "" {
			continue
		}
		verified := now
		f := &models.Fact{
			Question:     FactQuestion(c),
			Answer:       FactAnswer(c),
			Category:     Categorize(in.Query, c.Title),
			Confidence:   r.opts.VerifiedConfidence,
			LastVerified: &verified,
			CreatedAt:    now,
		}
		if c.URL != "" {
			src := c.URL
			f.Source = &src
		}
		facts = append(facts, f)
	}
	return facts
}

// FactQuestion 生成 "标题 (日期)" 形式的问题。
func FactQuestion(c models.VerifiedCandidate) string {
	date := c.Date
	if date == "" {
		date = "Date inconnue"
	}
	return fmt.Sprintf("%s (%s)", strings.TrimSpace(c.Title), date)
}

// FactAnswer 生成带标签和来源的答案。
func FactAnswer(c models.VerifiedCandidate) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(c.Content))
	if len(c.Tags) > 0 {
		sb.WriteString("\n\nTags: ")
		sb.WriteString(strings.Join(c.Tags, ", "))
	}
	if c.URL != "" {
		sb.WriteString("\n\nSource: ")
		sb.WriteString(c.URL)
	}
	return sb.String()
}

// lockKey 有本地事实时按事实 ID 加锁，否则按规范化后的查询词加锁。
func lockKey(in Input) string {
	if len(in.Facts) > 0 {
		ids := make([]string, 0, len(in.Facts))
		for _, f := range in.Facts {
			ids = append(ids, f.ID)
		}
		sort.Strings(ids)
		return "facts:" + strings.Join(ids, ",")
	}
	terms := keywords.Extract(in.Query)
	sort.Strings(terms)
	return "query:" + keywords.Render(terms)
}
