// Package router 决定一条聊天消息交给哪个处理分支。
package router

import (
	"regexp"
	"strings"

	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/keywords"
	"github.com/Farx1/esilvchatbot/backend/go/internal/models"
)

func wordPattern(words ...string) *regexp.Regexp {
	return regexp.MustCompile(`\b(` + strings.Join(words, "|") + `)\b`)
}

var (
	// 报名、申请或留下联系方式
	formPattern = wordPattern(
		`m'?inscrire`, `inscri(s|re|ption)s?`, `candidat(ure|er)s?`, `postuler`, `coordonnees`,
		`formulaires?`, `telephone`, `e-?mail`, `adresse`, `rappel(er)?`, `recontacter`,
		`apply`, `register`, `sign ?up`, `enrol+`,
	)
	// 课程、招生、校园生活与新闻
	retrievalPattern = wordPattern(
		`majeures?`, `programmes?`, `cours`, `admissions?`, `frais`, `bourses?`, `campus`, `logements?`,
		`stages?`, `alternances?`, `carrieres?`, `salaires?`, `laboratoires?`, `recherche`, `diplomes?`,
		`alumni`, `associations?`, `concours`, `international`, `echanges?`, `double diplome`, `bachelor`,
		`master`, `msc`, `ingenieurs?`, `actualites?`, `actus?`, `news`, `evenements?`, `dernier(e|s|es)?`,
		`directeur`, `directrice`, `responsables?`, `contacts?`, `esilv`, `devinci`, `leonard de vinci`,
		`majors?`, `courses?`, `tuition`, `fees`, `scholarships?`, `housing`, `internships?`, `careers?`,
		`research`, `director`, `events?`, `latest`,
	)
)

// Route 按优先级选择分支：表单 > 检索 > 闲聊。
// 历史超过一轮时视为追问，交给检索分支。
func Route(message string, history []models.ConversationMessage) models.AgentKind {
	text := strings.ToLower(keywords.Fold(message))
	switch {
	case formPattern.MatchString(text):
		return models.AgentFormFilling
	case retrievalPattern.MatchString(text):
		return models.AgentRetrieval
	case len(history) > 1:
		return models.AgentRetrieval
	default:
		return models.AgentConversation
	}
}
