package reconcile

import (
	"regexp"
	"strings"

	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/keywords"
)

// 分类按顺序匹配，第一个命中的类别生效。
var categoryRules = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{"alumni", regexp.MustCompile(`\b(alumni|anciens? (eleves?|etudiants?)|diplomes?|graduates?)\b`)},
	{"careers", regexp.MustCompile(`\b(stages?|alternances?|carrieres?|emplois?|entreprises?|recrutement|salaires?|internships?|careers?|jobs?)\b`)},
	{"admissions", regexp.MustCompile(`\b(admissions?|concours|candidatures?|inscriptions?|postuler|puissance alpha|parcoursup|frais|bourses?)\b`)},
	{"research", regexp.MustCompile(`\b(recherche|laboratoires?|labos?|chaires?|publications?|research|lab|doctorats?|these)\b`)},
	{"contacts", regexp.MustCompile(`\b(contacts?|responsables?|directeur|directrice|direction|telephone|email|adresse|director|phone)\b`)},
}

// Categorize 根据查询和标题推断新事实的类别，默认为 "news"。
func Categorize(query, title string) string {
	text := strings.ToLower(keywords.Fold(query + " " + title))
	for _, rule := range categoryRules {
		if rule.pattern.MatchString(text) {
			return rule.name
		}
	}
	return "news"
}
