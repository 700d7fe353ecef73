// Package orchestrator 把关键词检索、新鲜度策略、实时核实、冲突检测与对账串成一次问答流程。
//
// 每个请求的状态依次为 LOCAL_ONLY -> VERIFYING -> RECONCILING -> ANSWERED，
// 终态总是 ANSWERED。只有同步核实会阻塞回答；后台核实在脱离请求的上下文中运行，
// 由 Orchestrator 跟踪，关闭服务时可以等待其结束。
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/conflict"
	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/freshness"
	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/keywords"
	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/reconcile"
	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/store"
	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/verifier"
	"github.com/Farx1/esilvchatbot/backend/go/internal/models"
	"github.com/Farx1/esilvchatbot/backend/go/internal/observability"
	"github.com/Farx1/esilvchatbot/backend/go/pkg/logger"
)

// State 是单个请求所处的阶段。
type State string

const (
	StateLocalOnly   State = "LOCAL_ONLY"
	StateVerifying   State = "VERIFYING"
	StateReconciling State = "RECONCILING"
	StateAnswered    State = "ANSWERED"
)

// AnswerSource 标明回答依据的事实来自哪里。
type AnswerSource string

const (
	SourceLocal    AnswerSource = "local"
	SourceVerified AnswerSource = "verified"
	SourceNone     AnswerSource = "none"
)

// Options 配置 Orchestrator。零值字段使用默认值。
type Options struct {
	TopK              int
	Policy            freshness.Policy
	VerifyTimeout     time.Duration
	BackgroundTimeout time.Duration
	Metrics           *observability.Metrics
	Now               func() time.Time
}

// Result 是一次查询的结果。Facts 是本次回答应当依据的权威事实。
type Result struct {
	Query      string                     `json:"query"`
	Keywords   []string                   `json:"keywords"`
	Decision   freshness.Decision         `json:"decision"`
	Source     AnswerSource               `json:"source"`
	Facts      []*models.Fact             `json:"facts"`
	Local      []*models.Fact             `json:"-"`
	Candidates []models.VerifiedCandidate `json:"candidates,omitempty"`
	Verdict    *models.ConflictVerdict    `json:"verdict,omitempty"`
	Outcome    *reconcile.Outcome         `json:"outcome,omitempty"`
	// Fallback 表示需要核实但核实失败，回答退回到本地事实。
	Fallback bool    `json:"fallback,omitempty"`
	Trace    []State `json:"trace"`
	// Task 仅在后台核实时非空。
	Task *Task `json:"-"`
}

// State 返回请求的终态。
func (r *Result) State() State {
	if len(r.Trace) == 0 {
		return StateLocalOnly
	}
	return r.Trace[len(r.Trace)-1]
}

// Orchestrator 组合知识库的各个组件。
type Orchestrator struct {
	store      store.Store
	extractor  *keywords.Extractor
	verifier   verifier.Verifier
	detector   *conflict.Detector
	reconciler *reconcile.Reconciler
	opts       Options
	logger     *logger.Logger

	mu     sync.Mutex
	closed bool
	tasks  sync.WaitGroup
}

// New 创建 Orchestrator。
func New(s store.Store, ext *keywords.Extractor, v verifier.Verifier, d *conflict.Detector, r *reconcile.Reconciler, l *logger.Logger, opts Options) *Orchestrator {
	if opts.TopK <= 0 {
		opts.TopK = 3
	}
	if opts.Policy == (freshness.Policy{}) {
		opts.Policy = freshness.DefaultPolicy()
	}
	if opts.VerifyTimeout <= 0 {
		opts.VerifyTimeout = 15 * time.Second
	}
	if opts.BackgroundTimeout <= 0 {
		opts.BackgroundTimeout = 2 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if ext == nil {
		ext = keywords.New(keywords.DefaultMaxTerms)
	}
	if v == nil {
		v = verifier.Disabled
	}
	if d == nil {
		d = conflict.NewDefault(opts.Now)
	}
	return &Orchestrator{
		store:      s,
		extractor:  ext,
		verifier:   v,
		detector:   d,
		reconciler: r,
		opts:       opts,
		logger:     l,
	}
}

// Search 只做本地检索，不触发核实。
func (o *Orchestrator) Search(ctx context.Context, query string, limit int) ([]string, []*models.Fact, error) {
	terms := o.extractor.Extract(query)
	if len(terms) == 0 {
		return terms, nil, nil
	}
	if limit <= 0 {
		limit = o.opts.TopK
	}
	facts, err := o.store.Search(ctx, terms, limit)
	if err != nil {
		return terms, nil, err
	}
	return terms, facts, nil
}

// Answer 执行一次完整的查询流程。
// 只有存储失败会返回错误；核实与对账的失败都退化为使用本地事实。
func (o *Orchestrator) Answer(ctx context.Context, query string) (*Result, error) {
	res := &Result{Query: query, Trace: []State{StateLocalOnly}}

	terms, local, err := o.Search(ctx, query, o.opts.TopK)
	if err != nil {
		return nil, fmt.Errorf("local retrieval: %w", err)
	}
	res.Keywords, res.Local = terms, local

	now := o.opts.Now()
	class := freshness.Classify(query)
	res.Decision = o.opts.Policy.Decide(local, class, now)
	o.opts.Metrics.Query(string(res.Decision.Mode))

	switch res.Decision.Mode {
	case freshness.ModeSync:
		o.answerSync(ctx, res, class, now)
	case freshness.ModeAsync:
		res.Source, res.Facts = sourceOf(local)
		res.Task = o.spawn(ctx, query, class, local, now)
	default:
		res.Source, res.Facts = sourceOf(local)
	}

	res.Trace = append(res.Trace, StateAnswered)
	o.logger.WithPayload(map[string]interface{}{
		"query":    query,
		"keywords": terms,
		"local":    len(local),
		"mode":     res.Decision.Mode,
		"reason":   res.Decision.Reason,
		"ageDays":  res.Decision.AgeDays,
		"source":   res.Source,
		"fallback": res.Fallback,
	}).Info("Knowledge query answered")
	return res, nil
}

// answerSync 阻塞等待核实结果，以核实结果作为回答依据。
func (o *Orchestrator) answerSync(ctx context.Context, res *Result, class freshness.Class, now time.Time) {
	res.Trace = append(res.Trace, StateVerifying)

	vctx, cancel := context.WithTimeout(ctx, o.opts.VerifyTimeout)
	cands, err := o.verify(vctx, res.Query, now)
	cancel()
	if err != nil || len(cands) == 0 {
		if err != nil {
			o.logger.WithError(err).WithPayload(map[string]interface{}{"query": res.Query}).Warn("Verification failed, falling back to local facts")
		}
		res.Fallback = true
		res.Source, res.Facts = sourceOf(res.Local)
		return
	}
	res.Candidates = cands
	res.Source, res.Facts = SourceVerified, CandidateFacts(res.Query, cands, now)

	res.Trace = append(res.Trace, StateReconciling)
	// 对账只是回答的副作用，请求被取消也要写完
	rctx, rcancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.BackgroundTimeout)
	defer rcancel()
	verdict, out, err := o.reconcile(rctx, res.Query, class, res.Local, cands, models.TriggerScraper)
	res.Verdict = &verdict
	if err != nil {
		o.logger.WithError(err).WithPayload(map[string]interface{}{"query": res.Query}).Error("Reconciliation failed")
		return
	}
	res.Outcome = &out
}

// Verify 核实任意问题并对账，供定时复核使用。
func (o *Orchestrator) Verify(ctx context.Context, query string, facts []*models.Fact, trigger models.Trigger) (models.ConflictVerdict, reconcile.Outcome, error) {
	now := o.opts.Now()
	cands, err := o.verify(ctx, query, now)
	if err != nil {
		return models.ConflictVerdict{}, reconcile.Outcome{}, err
	}
	if len(cands) == 0 {
		return models.ConflictVerdict{Tier: models.TierNone}, reconcile.Outcome{}, nil
	}
	return o.reconcile(ctx, query, freshness.Classify(query), facts, cands, trigger)
}

func (o *Orchestrator) verify(ctx context.Context, query string, now time.Time) ([]models.VerifiedCandidate, error) {
	start := time.Now()
	cands, err := o.verifier.Verify(ctx, verifier.Request{Query: query, AsOf: now})
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "unavailable"
		if !errors.Is(err, verifier.ErrVerificationUnavailable) {
			err = fmt.Errorf("%w: %v", verifier.ErrVerificationUnavailable, err)
		}
	case len(cands) == 0:
		outcome = "empty"
	}
	o.opts.Metrics.Verification(outcome, time.Since(start))
	return cands, err
}

func (o *Orchestrator) reconcile(ctx context.Context, query string, class freshness.Class, facts []*models.Fact, cands []models.VerifiedCandidate, trigger models.Trigger) (models.ConflictVerdict, reconcile.Outcome, error) {
	verdict := o.detector.CompareFacts(facts, cands)
	o.opts.Metrics.Conflict(string(verdict.Tier))
	out, err := o.reconciler.Reconcile(ctx, reconcile.Input{
		Query:      query,
		Class:      class,
		Facts:      facts,
		Candidates: cands,
		Verdict:    verdict,
		Trigger:    trigger,
	})
	return verdict, out, err
}

// CandidateFacts 把核实结果转换为临时事实，用于生成回答，不入库。
func CandidateFacts(query string, cands []models.VerifiedCandidate, now time.Time) []*models.Fact {
	facts := make([]*models.Fact, 0, len(cands))
	for _, c := range cands {
		src := c.URL
		lv := now
		f := &models.Fact{
			Question:     reconcile.FactQuestion(c),
			Answer:       reconcile.FactAnswer(c),
			Category:     reconcile.Categorize(query, c.Title),
			Confidence:   c.Confidence,
			LastVerified: &lv,
			CreatedAt:    now,
		}
		if src != "" {
			f.Source = &src
		}
		facts = append(facts, f)
	}
	return facts
}

func sourceOf(facts []*models.Fact) (AnswerSource, []*models.Fact) {
	if len(facts) == 0 {
		return SourceNone, nil
	}
	return SourceLocal, facts
}
