// Package sweep 定期复核超过硬过期时间的事实。
package sweep

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/reconcile"
	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/store"
	"github.com/Farx1/esilvchatbot/backend/go/internal/models"
	"github.com/Farx1/esilvchatbot/backend/go/pkg/logger"
)

// Verifier 核实一个问题并对账，由 orchestrator.Orchestrator 实现。
type Verifier interface {
	Verify(ctx context.Context, query string, facts []*models.Fact, trigger models.Trigger) (models.ConflictVerdict, reconcile.Outcome, error)
}

// Options 配置 Sweeper。
type Options struct {
	Interval    time.Duration // 0 表示关闭
	Batch       int
	HardDays    float64
	FactTimeout time.Duration
	// RetryAfter 内尝试过的事实不再重复复核，即使核实失败或没有结果。
	RetryAfter time.Duration
	Now        func() time.Time
}

// Report 汇总一轮复核。
type Report struct {
	Checked  int `json:"checked"`
	Retired  int `json:"retired"`
	Inserted int `json:"inserted"`
	Verified int `json:"verified"`
	Failed   int `json:"failed"`
}

// Sweeper 按批次复核过期事实，触发来源记为 scheduled。
type Sweeper struct {
	store    store.Store
	verifier Verifier
	opts     Options
	logger   *logger.Logger

	mu        sync.Mutex
	attempted map[string]time.Time // fact id -> 上次尝试时间
}

func New(s store.Store, v Verifier, l *logger.Logger, opts Options) *Sweeper {
	if opts.Batch <= 0 {
		opts.Batch = 20
	}
	if opts.HardDays <= 0 {
		opts.HardDays = 30
	}
	if opts.FactTimeout <= 0 {
		opts.FactTimeout = 30 * time.Second
	}
	if opts.RetryAfter <= 0 {
		opts.RetryAfter = 24 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Sweeper{store: s, verifier: v, opts: opts, logger: l, attempted: make(map[string]time.Time)}
}

// Enabled 报告是否配置了复核间隔。
func (s *Sweeper) Enabled() bool {
	return s.opts.Interval > 0
}

// Run 按间隔执行复核，直到 ctx 取消。间隔为 0 时立即返回。
func (s *Sweeper) Run(ctx context.Context) {
	if !s.Enabled() {
		s.logger.Info("Scheduled re-verification disabled")
		return
	}
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	s.logger.WithPayload(map[string]interface{}{"interval": s.opts.Interval.String(), "batch": s.opts.Batch}).Info("Scheduled re-verification started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping scheduled re-verification...")
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.WithError(err).Error("Scheduled re-verification failed")
			}
		}
	}
}

// SweepOnce 复核一批最旧的过期事实，跳过 RetryAfter 内已经尝试过的事实，
// 这样核实一直失败的事实不会占满每一轮的批次。只有列出事实失败时返回错误。
func (s *Sweeper) SweepOnce(ctx context.Context) (Report, error) {
	var rep Report
	now := s.opts.Now()
	cutoff := now.Add(-time.Duration(s.opts.HardDays * float64(24*time.Hour)))
	recent := s.recentAttempts(now)
	listed, err := s.store.ListStale(ctx, cutoff, s.opts.Batch+len(recent))
	if err != nil {
		return rep, err
	}
	stale := make([]*models.Fact, 0, s.opts.Batch)
	for _, f := range listed {
		if _, skip := recent[f.ID]; skip {
			continue
		}
		if len(stale) == s.opts.Batch {
			break
		}
		stale = append(stale, f)
	}

	for _, f := range stale {
		if ctx.Err() != nil {
			break
		}
		rep.Checked++
		s.markAttempted(f.ID, now)

		fctx, cancel := context.WithTimeout(ctx, s.opts.FactTimeout)
		_, out, err := s.verifier.Verify(fctx, f.Question, []*models.Fact{f}, models.TriggerScheduled)
		cancel()
		if err != nil {
			rep.Failed++
			if errors.Is(err, store.ErrStoreUnavailable) {
				return rep, err
			}
			s.logger.WithError(err).WithPayload(map[string]interface{}{"factId": f.ID}).Warn("Scheduled verification failed")
			continue
		}
		rep.Retired += len(out.Retired)
		rep.Inserted += len(out.Inserted)
		if out.Verified != nil {
			rep.Verified++
		}
	}

	if rep.Checked > 0 {
		s.logger.WithPayload(map[string]interface{}{
			"checked":  rep.Checked,
			"retired":  rep.Retired,
			"inserted": rep.Inserted,
			"verified": rep.Verified,
			"failed":   rep.Failed,
		}).Info("Scheduled re-verification round finished")
	}
	return rep, nil
}

// recentAttempts 返回 RetryAfter 内尝试过的事实，并清理过期的记录。
func (s *Sweeper) recentAttempts(now time.Time) map[string]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	recent := make(map[string]struct{}, len(s.attempted))
	for id, at := range s.attempted {
		if now.Sub(at) >= s.opts.RetryAfter {
			delete(s.attempted, id)
			continue
		}
		recent[id] = struct{}{}
	}
	return recent
}

func (s *Sweeper) markAttempted(id string, at time.Time) {
	s.mu.Lock()
	s.attempted[id] = at
	s.mu.Unlock()
}
