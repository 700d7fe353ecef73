// Package verifier 到学校官网实时核实问题，返回尚未入库的候选事实。
package verifier

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/keywords"
	"github.com/Farx1/esilvchatbot/backend/go/internal/models"
)

// ErrVerificationUnavailable 表示无法访问核实来源（网络错误、超时、熔断）。
// 调用方应退回到本地事实，而不是让请求失败。
var ErrVerificationUnavailable = errors.New("verification unavailable")

// Request 是一次核实请求。AsOf 用于判断"最近"以及缓存分桶。
type Request struct {
	Query string
	AsOf  time.Time
}

// Verifier 是实时核实能力。返回空列表不是错误。
type Verifier interface {
	Verify(ctx context.Context, req Request) ([]models.VerifiedCandidate, error)
}

// Func 让普通函数实现 Verifier。
type Func func(ctx context.Context, req Request) ([]models.VerifiedCandidate, error)

func (f Func) Verify(ctx context.Context, req Request) ([]models.VerifiedCandidate, error) {
	return f(ctx, req)
}

// Disabled 是关闭核实时使用的 Verifier，总是返回 ErrVerificationUnavailable。
var Disabled Verifier = Func(func(context.Context, Request) ([]models.VerifiedCandidate, error) {
	return nil, fmt.Errorf("%w: verifier disabled", ErrVerificationUnavailable)
})

func unavailable(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrVerificationUnavailable, fmt.Sprintf(format, args...))
}

var newsQueryPattern = regexp.MustCompile(`\b(actualites?|actus?|news|derniers?|dernieres?|recente?s?|nouveaux?|nouvelles?|nouveau|latest|recent)\b`)

// IsNewsQuery 判断查询是否在问学校的最新动态。
func IsNewsQuery(query string) bool {
	return newsQueryPattern.MatchString(strings.ToLower(keywords.Fold(query)))
}

// truncate 按字符截断，超出时追加省略号。
func truncate(s string, limit int) string {
	r := []rune(s)
	if limit <= 0 || len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}

var spaces = regexp.MustCompile(`\s+`)

func collapse(s string) string {
	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}
