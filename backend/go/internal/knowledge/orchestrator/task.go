package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/freshness"
	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/reconcile"
	"github.com/Farx1/esilvchatbot/backend/go/internal/models"
)

// TaskResult 是后台核实任务的终态。
type TaskResult struct {
	Query      string
	Candidates int
	Verdict    models.ConflictVerdict
	Outcome    reconcile.Outcome
	Err        error
	Duration   time.Duration
}

// Task 是后台核实任务的句柄。调用方可以忽略它；结果总会被记录到日志。
type Task struct {
	done chan TaskResult
}

// Done 在任务结束时收到唯一一个结果。
func (t *Task) Done() <-chan TaskResult {
	return t.done
}

// Wait 等待任务结束或 ctx 取消。
func (t *Task) Wait(ctx context.Context) (TaskResult, error) {
	select {
	case r := <-t.done:
		return r, nil
	case <-ctx.Done():
		return TaskResult{}, ctx.Err()
	}
}

// spawn 启动后台核实。任务的上下文脱离请求，只受 BackgroundTimeout 约束。
// Orchestrator 关闭后不再启动新任务，返回 nil。
func (o *Orchestrator) spawn(ctx context.Context, query string, class freshness.Class, local []*models.Fact, now time.Time) *Task {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		o.logger.WithPayload(map[string]interface{}{"query": query}).Warn("Orchestrator closing, background verification skipped")
		return nil
	}
	o.tasks.Add(1)
	o.mu.Unlock()

	task := &Task{done: make(chan TaskResult, 1)}
	bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.BackgroundTimeout)
	o.opts.Metrics.TaskStarted()

	go func() {
		defer o.tasks.Done()
		defer o.opts.Metrics.TaskDone()
		defer cancel()

		start := time.Now()
		res := TaskResult{Query: query}
		defer func() {
			if p := recover(); p != nil {
				res.Err = errors.New("background verification panicked")
				o.logger.WithPayload(map[string]interface{}{"query": query, "panic": p}).Error("Background verification panicked")
			}
			res.Duration = time.Since(start)
			task.done <- res
			close(task.done)
		}()

		cands, err := o.verify(bctx, query, now)
		res.Candidates = len(cands)
		if err != nil {
			res.Err = err
			o.logger.WithError(err).WithPayload(map[string]interface{}{"query": query}).Warn("Background verification unavailable")
			return
		}
		if len(cands) == 0 {
			return
		}

		res.Verdict, res.Outcome, res.Err = o.reconcile(bctx, query, class, local, cands, models.TriggerScraper)
		if res.Err != nil {
			o.logger.WithError(res.Err).WithPayload(map[string]interface{}{"query": query}).Error("Background reconciliation failed")
			return
		}
		o.logger.WithPayload(map[string]interface{}{
			"query":    query,
			"tier":     res.Verdict.Tier,
			"retired":  len(res.Outcome.Retired),
			"inserted": len(res.Outcome.Inserted),
			"verified": res.Outcome.Verified != nil,
			"skipped":  res.Outcome.Skipped,
		}).Info("Background verification finished")
	}()
	return task
}

// Close 停止接受后台任务，并等待进行中的任务结束或 ctx 取消。
func (o *Orchestrator) Close(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	return o.Wait(ctx)
}

// Wait 等待当前所有后台任务结束。
func (o *Orchestrator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.tasks.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
