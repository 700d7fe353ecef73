package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Farx1/esilvchatbot/backend/go/internal/models"
)

// MemoryStore is an in-process Store used for local runs and tests.
// Returned facts are copies; mutating them does not touch the store.
type MemoryStore struct {
	mu    sync.RWMutex
	facts map[string]*models.Fact
	now   func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{facts: make(map[string]*models.Fact), now: time.Now}
}

// WithClock overrides the clock used for createdAt/updatedAt.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

// Put stores f as-is, bypassing defaults. Tests use it to plant aged facts.
func (s *MemoryStore) Put(f *models.Fact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := clone(f)
	if cp.ContentHash == "" {
		cp.ContentHash = models.ContentHash(cp.Question, cp.Answer)
	}
	s.facts[cp.ID] = cp
}

// Len returns the number of stored facts.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.facts)
}

func clone(f *models.Fact) *models.Fact {
	cp := *f
	if f.Source != nil {
		src := *f.Source
		cp.Source = &src
	}
	if f.LastVerified != nil {
		lv := *f.LastVerified
		cp.LastVerified = &lv
	}
	return &cp
}

func matches(f *models.Fact, keywords []string) bool {
	q, a, c := strings.ToLower(f.Question), strings.ToLower(f.Answer), strings.ToLower(f.Category)
	for _, kw := range keywords {
		kw = strings.ToLower(kw)
		if strings.Contains(q, kw) || strings.Contains(a, kw) || strings.Contains(c, kw) {
			return true
		}
	}
	return false
}

// less orders by confidence, lastVerified, createdAt, all descending; a missing lastVerified sorts last.
func less(a, b *models.Fact) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	switch {
	case a.LastVerified != nil && b.LastVerified == nil:
		return true
	case a.LastVerified == nil && b.LastVerified != nil:
		return false
	case a.LastVerified != nil && !a.LastVerified.Equal(*b.LastVerified):
		return a.LastVerified.After(*b.LastVerified)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}

// Search implements Store.
func (s *MemoryStore) Search(_ context.Context, keywords []string, limit int) ([]*models.Fact, error) {
	if len(keywords) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	var out []*models.Fact
	for _, f := range s.facts {
		if matches(f, keywords) {
			out = append(out, clone(f))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (*models.Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.facts[id]
	if !ok {
		return nil, ErrFactNotFound
	}
	return clone(f), nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, opts ListOptions) ([]*models.Fact, error) {
	s.mu.RLock()
	var out []*models.Fact
	for _, f := range s.facts {
		if opts.Category == "" || f.Category == opts.Category {
			out = append(out, clone(f))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// Create implements Store.
func (s *MemoryStore) Create(_ context.Context, fact *models.Fact) error {
	if err := prepare(fact, s.now()); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.facts[fact.ID] = clone(fact)
	return nil
}

// Update implements Store.
func (s *MemoryStore) Update(_ context.Context, id string, patch models.FactPatch) (*models.Fact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.facts[id]
	if !ok {
		return nil, ErrFactNotFound
	}
	updated := clone(f)
	patch.Apply(updated)
	if err := updated.Validate(); err != nil {
		return nil, err
	}
	updated.UpdatedAt = s.now()
	s.facts[id] = updated
	return clone(updated), nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.facts[id]; !ok {
		return ErrFactNotFound
	}
	delete(s.facts, id)
	return nil
}

// BulkDelete implements Store.
func (s *MemoryStore) BulkDelete(_ context.Context, ids []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, id := range ids {
		if _, ok := s.facts[id]; ok {
			delete(s.facts, id)
			n++
		}
	}
	return n, nil
}

// Apply implements Store under a single write lock.
func (s *MemoryStore) Apply(_ context.Context, batch Batch) (BatchResult, error) {
	var res BatchResult
	now := s.now()
	for _, f := range batch.Insert {
		if err := prepare(f, now); err != nil {
			return res, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range batch.Retire {
		old, ok := s.facts[id]
		if !ok {
			res.AlreadyGone = append(res.AlreadyGone, id)
			continue
		}
		delete(s.facts, id)
		res.Retired = append(res.Retired, old)
	}
	for _, f := range batch.Insert {
		if s.hasContentLocked(f) {
			res.Duplicates = append(res.Duplicates, f)
			continue
		}
		s.facts[f.ID] = clone(f)
		res.Inserted = append(res.Inserted, f)
	}
	return res, nil
}

func (s *MemoryStore) hasContentLocked(f *models.Fact) bool {
	for _, existing := range s.facts {
		if sameContent(existing, f) {
			return true
		}
	}
	return false
}

// ListStale implements Store.
func (s *MemoryStore) ListStale(_ context.Context, before time.Time, limit int) ([]*models.Fact, error) {
	s.mu.RLock()
	var out []*models.Fact
	for _, f := range s.facts {
		if f.LastVerified == nil || f.LastVerified.Before(before) {
			out = append(out, clone(f))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].FreshnessAnchor().Before(out[j].FreshnessAnchor())
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Stats implements Store.
func (s *MemoryStore) Stats(_ context.Context) (models.KnowledgeStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sums := make(map[string]*models.CategoryStats)
	for _, f := range s.facts {
		c, ok := sums[f.Category]
		if !ok {
			c = &models.CategoryStats{Category: f.Category}
			sums[f.Category] = c
		}
		c.Count++
		c.AverageConfidence += f.Confidence
	}

	stats := models.KnowledgeStats{Total: int64(len(s.facts))}
	for _, c := range sums {
		c.AverageConfidence /= float64(c.Count)
		stats.Categories = append(stats.Categories, *c)
	}
	sort.Slice(stats.Categories, func(i, j int) bool {
		return stats.Categories[i].Category < stats.Categories[j].Category
	})
	return stats, nil
}

// Ping implements Store.
func (s *MemoryStore) Ping(context.Context) error { return nil }
