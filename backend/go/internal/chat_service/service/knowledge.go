package service

import (
	"context"
	"errors"
	"sort"

	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/audit"
	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/conflict"
	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/keywords"
	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/seed"
	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/store"
	"github.com/Farx1/esilvchatbot/backend/go/internal/models"
	"github.com/Farx1/esilvchatbot/backend/go/pkg/logger"
)

const conflictScanLimit = 10

// ConflictMatch 是 FindConflicts 的一条结果。
type ConflictMatch struct {
	Fact        *models.Fact           `json:"fact"`
	SharedTerms []string               `json:"sharedTerms"`
	Verdict     models.ConflictVerdict `json:"verdict"`
}

// KnowledgeService 是知识库的人工管理入口，所有修改都记录 manual 审计。
type KnowledgeService struct {
	store     store.Store
	audit     audit.Log
	extractor *keywords.Extractor
	detector  *conflict.Detector
	logger    *logger.Logger
}

func NewKnowledgeService(s store.Store, log audit.Log, ext *keywords.Extractor, d *conflict.Detector, l *logger.Logger) *KnowledgeService {
	return &KnowledgeService{store: s, audit: log, extractor: ext, detector: d, logger: l}
}

// Search 用关键词检索，结果按检索排序返回。search 为空时按分类列出。
func (k *KnowledgeService) Search(ctx context.Context, search string, opts store.ListOptions) ([]*models.Fact, error) {
	if search == "" {
		return k.store.List(ctx, opts)
	}
	terms := k.extractor.Extract(search)
	if len(terms) == 0 {
		return []*models.Fact{}, nil
	}
	return k.store.Search(ctx, terms, opts.Limit)
}

func (k *KnowledgeService) Get(ctx context.Context, id string) (*models.Fact, error) {
	return k.store.Get(ctx, id)
}

func (k *KnowledgeService) Create(ctx context.Context, f *models.Fact) (*models.Fact, error) {
	if err := k.store.Create(ctx, f); err != nil {
		return nil, err
	}
	k.record(ctx, audit.FactEntry(models.UpdateAdd, models.TriggerManual, nil, f))
	return f, nil
}

func (k *KnowledgeService) Update(ctx context.Context, id string, patch models.FactPatch) (*models.Fact, error) {
	old, err := k.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	updated, err := k.store.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	k.record(ctx, audit.FactEntry(models.UpdateUpdate, models.TriggerManual, old, updated))
	return updated, nil
}

func (k *KnowledgeService) Delete(ctx context.Context, id string) error {
	old, err := k.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := k.store.Delete(ctx, id); err != nil {
		return err
	}
	k.record(ctx, audit.FactEntry(models.UpdateDelete, models.TriggerManual, old, nil))
	return nil
}

// BulkCreate 批量写入，重复内容会被跳过。
func (k *KnowledgeService) BulkCreate(ctx context.Context, facts []*models.Fact) (seed.Report, error) {
	for _, f := range facts {
		if err := f.Validate(); err != nil {
			return seed.Report{}, err
		}
	}
	return seed.Import(ctx, k.store, k.audit, k.logger, facts)
}

// BulkDelete 删除多条事实，不存在的 id 被忽略。
func (k *KnowledgeService) BulkDelete(ctx context.Context, ids []string) (int64, error) {
	var existing []*models.Fact
	for _, id := range ids {
		f, err := k.store.Get(ctx, id)
		if errors.Is(err, store.ErrFactNotFound) {
			continue
		}
		if err != nil {
			return 0, err
		}
		existing = append(existing, f)
	}
	n, err := k.store.BulkDelete(ctx, ids)
	if err != nil {
		return 0, err
	}
	for _, f := range existing {
		k.record(ctx, audit.FactEntry(models.UpdateDelete, models.TriggerManual, f, nil))
	}
	return n, nil
}

func (k *KnowledgeService) Stats(ctx context.Context) (models.KnowledgeStats, error) {
	return k.store.Stats(ctx)
}

// FindConflicts 找出与新文本共享关键词的事实，并给出每条的冲突判定。
func (k *KnowledgeService) FindConflicts(ctx context.Context, text string) ([]ConflictMatch, error) {
	terms := k.extractor.Extract(text)
	if len(terms) == 0 {
		return []ConflictMatch{}, nil
	}
	facts, err := k.store.Search(ctx, terms, conflictScanLimit)
	if err != nil {
		return nil, err
	}

	textTerms := k.extractor.Terms(text)
	matches := make([]ConflictMatch, 0, len(facts))
	for _, f := range facts {
		matches = append(matches, ConflictMatch{
			Fact:        f,
			SharedTerms: intersect(textTerms, k.extractor.Terms(f.Text())),
			Verdict:     k.detector.Compare(f.Text(), text),
		})
	}
	// 冲突分数高的排在前面，分数相同保持检索顺序
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Verdict.Score > matches[j].Verdict.Score
	})
	return matches, nil
}

// record 写入人工审计，失败只记录日志。
func (k *KnowledgeService) record(ctx context.Context, e *models.AuditEntry) {
	if k.audit == nil {
		return
	}
	if err := k.audit.Append(ctx, e); err != nil {
		k.logger.WithError(err).WithPayload(map[string]interface{}{"type": e.UpdateType}).Error("Failed to append manual audit entry")
	}
}

func intersect(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, t := range b {
		set[t] = struct{}{}
	}
	out := []string{}
	for _, t := range a {
		if _, ok := set[t]; ok {
			out = append(out, t)
		}
	}
	return out
}
