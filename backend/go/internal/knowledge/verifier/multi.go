package verifier

import (
	"context"
	"errors"

	"github.com/Farx1/esilvchatbot/backend/go/internal/models"
	"github.com/Farx1/esilvchatbot/backend/go/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// Multi 并行询问多个来源，按来源顺序合并结果并按 URL 去重。
// 只有全部来源都失败时才返回错误。
type Multi struct {
	sources []Verifier
	logger  *logger.Logger
}

var _ Verifier = (*Multi)(nil)

func NewMulti(l *logger.Logger, sources ...Verifier) *Multi {
	return &Multi{sources: sources, logger: l}
}

func (m *Multi) Verify(ctx context.Context, req Request) ([]models.VerifiedCandidate, error) {
	if len(m.sources) == 0 {
		return nil, unavailable("no verification source configured")
	}
	results := make([][]models.VerifiedCandidate, len(m.sources))
	errs := make([]error, len(m.sources))

	var g errgroup.Group
	for i, src := range m.sources {
		g.Go(func() error {
			results[i], errs[i] = src.Verify(ctx, req)
			return nil
		})
	}
	_ = g.Wait()

	var (
		out    []models.VerifiedCandidate
		seen   = map[string]bool{}
		failed []error
	)
	for i := range m.sources {
		if errs[i] != nil {
			failed = append(failed, errs[i])
			m.logger.WithError(errs[i]).WithPayload(map[string]interface{}{"source": i}).Warn("Verification source failed")
			continue
		}
		for _, c := range results[i] {
			if c.URL != "" && seen[c.URL] {
				continue
			}
			seen[c.URL] = true
			out = append(out, c)
		}
	}
	if len(failed) == len(m.sources) {
		return nil, errors.Join(append([]error{ErrVerificationUnavailable}, failed...)...)
	}
	return out, nil
}
