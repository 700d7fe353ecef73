package freshness

import (
	"regexp"
	"strings"

	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/keywords"
)

// Class 是查询的语义类别，两个维度相互独立。
type Class struct {
	TimeSensitive bool `json:"timeSensitive"` // 询问最新、最近的信息
	Volatile      bool `json:"volatile"`      // 涉及人员、联系方式等易变信息
}

// Any 报告查询是否属于任一敏感类别。
func (c Class) Any() bool {
	return c.TimeSensitive || c.Volatile
}

// 词表使用去重音后的小写形式，与 keywords.Fold 的输出对齐。
var (
	timeSensitivePattern = wordPattern(
		"dernier", "derniere", "derniers", "dernieres",
		"recent", "recente", "recents", "recentes", "recemment",
		"nouveau", "nouvelle", "nouveaux", "nouvelles",
		"actualite", "actualites", "actu", "actus",
		"a jour", "mise a jour", "changement", "modification",
		"latest", "recently", "update", "updated", "new", "news", "current", "currently", "changed",
	)
	volatilePattern = wordPattern(
		"responsable", "responsables", "contact", "contacts", "directeur", "directrice", "direction",
		"chef", "manager", "personnel", "equipe", "qui est", "telephone", "tel", "email", "mail", "e-mail", "adresse",
		"director", "head", "staff", "team", "who is", "phone", "address",
	)
)

func wordPattern(words ...string) *regexp.Regexp {
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		quoted = append(quoted, regexp.QuoteMeta(w))
	}
	return regexp.MustCompile(`\b(` + strings.Join(quoted, "|") + `)\b`)
}

// Classify 检测查询属于哪些类别。纯函数。
func Classify(query string) Class {
	folded := strings.ToLower(keywords.Fold(query))
	return Class{
		TimeSensitive: timeSensitivePattern.MatchString(folded),
		Volatile:      volatilePattern.MatchString(folded),
	}
}
