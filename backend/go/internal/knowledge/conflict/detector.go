// Package conflict 比较本地事实和核实结果，用多个独立信号的加权和判断两者是否矛盾。
package conflict

import (
	"fmt"
	"strings"
	"time"

	"github.com/Farx1/esilvchatbot/backend/go/internal/models"
)

// Signal 把一个提取器和它的权重、判定规则组合在一起。
type Signal struct {
	Extractor TextSignalExtractor
	Weight    int
	// Diverges 判断两侧集合是否构成分歧，必须满足交换律。为空时使用 Disjoint。
	Diverges func(a, b []string) bool
}

// Disjoint 在两侧都非空且没有交集时成立。
func Disjoint(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	seen := make(map[string]struct{}, len(a))
	for _, x := range a {
		seen[x] = struct{}{}
	}
	for _, y := range b {
		if _, ok := seen[y]; ok {
			return false
		}
	}
	return true
}

// LowOverlap 在两侧都多于 minTerms 个词且 Jaccard 系数低于 ratio 时成立。
func LowOverlap(minTerms int, ratio float64) func(a, b []string) bool {
	return func(a, b []string) bool {
		if len(a) <= minTerms || len(b) <= minTerms {
			return false
		}
		return Jaccard(a, b) < ratio
	}
}

// Jaccard 计算两个集合的交并比。
func Jaccard(a, b []string) float64 {
	set := make(map[string]bool, len(a)+len(b))
	for _, x := range a {
		set[x] = false
	}
	inter := 0
	for _, y := range b {
		if seen, ok := set[y]; ok && !seen {
			inter++
			set[y] = true
		} else if !ok {
			set[y] = true
		}
	}
	if len(set) == 0 {
		return 1
	}
	return float64(inter) / float64(len(set))
}

// Detector 累加各信号的权重得到冲突分数。相同输入总是得到相同结果。
type Detector struct {
	signals []Signal
}

// New 用给定的信号创建 Detector。
func New(signals ...Signal) *Detector {
	return &Detector{signals: signals}
}

// NewDefault 返回默认的四个信号：人名 +3、近期日期 +2、大数字 +1、关键词重合度低 +1。
// now 决定哪些年份算作"近期"，为空时使用 time.Now。
func NewDefault(now func() time.Time) *Detector {
	return New(
		Signal{Extractor: EntityExtractor{}, Weight: 3},
		Signal{Extractor: DateExtractor{Now: now}, Weight: 2},
		Signal{Extractor: NumberExtractor{Min: 50}, Weight: 1},
		Signal{Extractor: KeywordExtractor{}, Weight: 1, Diverges: LowOverlap(3, 0.3)},
	)
}

// Compare 比较本地文本和核实文本。
func (d *Detector) Compare(local, verified string) models.ConflictVerdict {
	var v models.ConflictVerdict
	for _, s := range d.signals {
		a := s.Extractor.Extract(local)
		b := s.Extractor.Extract(verified)
		diverges := s.Diverges
		if diverges == nil {
			diverges = Disjoint
		}
		if !diverges(a, b) {
			continue
		}
		v.Score += s.Weight
		v.Differences = append(v.Differences, describe(s.Extractor.Name(), a, b))
	}
	v.HasConflict = v.Score > 0
	v.Tier = TierFor(v.Score)
	return v
}

// CompareFacts 把最多 K 条本地事实与全部核实结果分别拼接后比较。
func (d *Detector) CompareFacts(facts []*models.Fact, candidates []models.VerifiedCandidate) models.ConflictVerdict {
	local := make([]string, 0, len(facts))
	for _, f := range facts {
		local = append(local, f.Text())
	}
	verified := make([]string, 0, len(candidates))
	for _, c := range candidates {
		verified = append(verified, c.Text())
	}
	return d.Compare(strings.Join(local, "\n\n"), strings.Join(verified, "\n\n"))
}

// TierFor 把分数映射到置信档位。
func TierFor(score int) models.ConflictTier {
	switch {
	case score >= 3:
		return models.TierHigh
	case score == 2:
		return models.TierMedium
	case score == 1:
		return models.TierLow
	default:
		return models.TierNone
	}
}

func describe(name string, local, verified []string) string {
	const max = 5
	clip := func(s []string) string {
		if len(s) > max {
			return strings.Join(s[:max], ", ") + ", ..."
		}
		return strings.Join(s, ", ")
	}
	return fmt.Sprintf("%s differ: local [%s] vs verified [%s]", name, clip(local), clip(verified))
}
