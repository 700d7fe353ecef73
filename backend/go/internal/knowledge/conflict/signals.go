package conflict

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/keywords"
)

// TextSignalExtractor 从文本中提取一类可比较的信号（人名、日期、数字、关键词）。
// 返回值是规范化后的集合，顺序无意义。
type TextSignalExtractor interface {
	Name() string
	Extract(text string) []string
}

// ---------- 人名 ----------

// EntityExtractor 提取类似人名的大写词组：带称谓前缀的名字，或连续两个以上首字母大写的词。
type EntityExtractor struct{}

var (
	tokenPattern = regexp.MustCompile(`\p{L}[\p{L}'’-]*|[^\p{L}\s]+|\n`)
	titleDot     = regexp.MustCompile(`\b(Dr|Mr|Mrs|Ms|Mme|Mlle|Pr|Prof|M)\.\s`)
)

var titles = setOf("dr", "mr", "mrs", "ms", "mme", "mlle", "pr", "prof", "professeur", "professor", "monsieur", "madame", "m")

// 这些大写词经常出现在名字旁边，但本身不是名字的一部分。
var nonNameWords = setOf(
	"the", "a", "an", "le", "la", "les", "l", "un", "une", "de", "du", "des", "et", "and", "of",
	"director", "directeur", "directrice", "direction", "head", "dean", "president", "responsable",
	"manager", "chef", "contact", "school", "ecole", "university", "universite", "campus",
	"new", "nouveau", "nouvelle", "welcome", "bienvenue", "source", "tags", "date", "inconnue",
	"january", "february", "march", "april", "may", "june", "july", "august", "september", "october", "november", "december",
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
	"lundi", "mardi", "mercredi", "jeudi", "vendredi", "samedi", "dimanche",
)

func (EntityExtractor) Name() string { return "names" }

func (EntityExtractor) Extract(text string) []string {
	text = titleDot.ReplaceAllString(text, "$1 ")
	out := map[string]struct{}{}

	var segment []string
	titled := false
	flush := func() {
		if len(segment) >= 2 || (titled && len(segment) >= 1) {
			out[strings.Join(segment, " ")] = struct{}{}
		}
		segment = segment[:0]
		titled = false
	}

	for _, tok := range tokenPattern.FindAllString(text, -1) {
		if !isCapitalized(tok) {
			flush()
			continue
		}
		norm := strings.ToLower(keywords.Fold(tok))
		if _, ok := titles[norm]; ok {
			flush()
			titled = true
			continue
		}
		if _, ok := nonNameWords[norm]; ok {
			flush()
			continue
		}
		segment = append(segment, norm)
	}
	flush()
	return sortedKeys(out)
}

// isCapitalized 判断是否为首字母大写、其余含小写字母的词（排除全大写缩写）。
func isCapitalized(tok string) bool {
	r := []rune(tok)
	if len(r) < 2 || !unicode.IsUpper(r[0]) {
		return false
	}
	for _, c := range r[1:] {
		if unicode.IsLower(c) {
			return true
		}
	}
	return false
}

// ---------- 日期 ----------

const monthNames = `janvier|f[ée]vrier|mars|avril|mai|juin|juillet|ao[ûu]t|septembre|octobre|novembre|d[ée]cembre|` +
	`january|february|march|april|may|june|july|august|september|october|november|december`

var (
	numericDate = regexp.MustCompile(`\b(\d{1,2})[/.-](\d{1,2})[/.-]((?:19|20)\d{2})\b`)
	isoDate     = regexp.MustCompile(`\b((?:19|20)\d{2})-(\d{1,2})-(\d{1,2})\b`)
	dayMonth    = regexp.MustCompile(`(?i)\b(\d{1,2})(?:er|st|nd|rd|th)?\s+(` + monthNames + `)\s+((?:19|20)\d{2})\b`)
	monthDay    = regexp.MustCompile(`(?i)\b(` + monthNames + `)\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+((?:19|20)\d{2})\b`)
	monthYear   = regexp.MustCompile(`(?i)\b(` + monthNames + `)\s+((?:19|20)\d{2})\b`)
	bareYear    = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
)

var monthIndex = map[string]int{
	"janvier": 1, "fevrier": 2, "mars": 3, "avril": 4, "mai": 5, "juin": 6,
	"juillet": 7, "aout": 8, "septembre": 9, "octobre": 10, "novembre": 11, "decembre": 12,
	"january": 1, "february": 2, "march": 3, "april": 4, "may": 5, "june": 6,
	"july": 7, "august": 8, "september": 9, "october": 10, "november": 11, "december": 12,
}

// DateExtractor 提取日期和年份，只保留当前年和上一年。
type DateExtractor struct {
	Now func() time.Time
}

func (DateExtractor) Name() string { return "dates" }

type dateMatch struct {
	span  []int
	year  int
	month int
	day   int
}

// findDates 返回所有完整日期（含年月）的位置，不含单独的年份。
func findDates(text string) []dateMatch {
	var out []dateMatch
	add := func(span []int, y, m, d int) {
		for _, prev := range out {
			if span[0] < prev.span[1] && prev.span[0] < span[1] {
				return
			}
		}
		out = append(out, dateMatch{span: span, year: y, month: m, day: d})
	}
	for _, m := range numericDate.FindAllStringSubmatchIndex(text, -1) {
		add(m[:2], atoi(text[m[6]:m[7]]), atoi(text[m[4]:m[5]]), atoi(text[m[2]:m[3]]))
	}
	for _, m := range isoDate.FindAllStringSubmatchIndex(text, -1) {
		add(m[:2], atoi(text[m[2]:m[3]]), atoi(text[m[4]:m[5]]), atoi(text[m[6]:m[7]]))
	}
	for _, m := range dayMonth.FindAllStringSubmatchIndex(text, -1) {
		add(m[:2], atoi(text[m[6]:m[7]]), month(text[m[4]:m[5]]), atoi(text[m[2]:m[3]]))
	}
	for _, m := range monthDay.FindAllStringSubmatchIndex(text, -1) {
		add(m[:2], atoi(text[m[6]:m[7]]), month(text[m[2]:m[3]]), atoi(text[m[4]:m[5]]))
	}
	for _, m := range monthYear.FindAllStringSubmatchIndex(text, -1) {
		add(m[:2], atoi(text[m[4]:m[5]]), month(text[m[2]:m[3]]), 0)
	}
	return out
}

func (e DateExtractor) Extract(text string) []string {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	current := now().Year()
	recent := func(y int) bool { return y == current || y == current-1 }

	out := map[string]struct{}{}
	dates := findDates(text)
	for _, d := range dates {
		if !recent(d.year) {
			continue
		}
		switch {
		case d.day > 0:
			out[fmtDate(d.year, d.month, d.day)] = struct{}{}
		default:
			out[strconv.Itoa(d.year)+"-"+pad(d.month)] = struct{}{}
		}
	}
	for _, span := range bareYear.FindAllStringIndex(text, -1) {
		if covered(span, dates) {
			continue
		}
		if y := atoi(text[span[0]:span[1]]); recent(y) {
			out[strconv.Itoa(y)] = struct{}{}
		}
	}
	return sortedKeys(out)
}

func fmtDate(y, m, d int) string {
	return strconv.Itoa(y) + "-" + pad(m) + "-" + pad(d)
}

func pad(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

func month(name string) int {
	return monthIndex[strings.ToLower(keywords.Fold(name))]
}

func covered(span []int, dates []dateMatch) bool {
	for _, d := range dates {
		if span[0] >= d.span[0] && span[1] <= d.span[1] {
			return true
		}
	}
	return false
}

// ---------- 数字 ----------

// NumberExtractor 提取大于 Min 的整数，忽略日期和年份。
// 阈值用来瞄准统计数据、薪资和百分比，而不是零散的小数字。
type NumberExtractor struct {
	Min int
}

var numberPattern = regexp.MustCompile(`\d{1,3}(?:[ \x{00A0}\x{202F},.]\d{3})+\b|\d+`)

func (NumberExtractor) Name() string { return "numbers" }

func (e NumberExtractor) Extract(text string) []string {
	dates := findDates(text)
	years := bareYear.FindAllStringIndex(text, -1)

	out := map[string]struct{}{}
	for _, span := range numberPattern.FindAllStringIndex(text, -1) {
		if covered(span, dates) || isYearSpan(span, years) {
			continue
		}
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, text[span[0]:span[1]])
		n, err := strconv.Atoi(digits)
		if err != nil || n <= e.Min {
			continue
		}
		out[strconv.Itoa(n)] = struct{}{}
	}
	return sortedKeys(out)
}

func isYearSpan(span []int, years [][]int) bool {
	for _, y := range years {
		if span[0] == y[0] && span[1] == y[1] {
			return true
		}
	}
	return false
}

// ---------- 关键词 ----------

// KeywordExtractor 复用检索时的关键词归一化，得到文本的词集合。
type KeywordExtractor struct{}

func (KeywordExtractor) Name() string { return "keywords" }

func (KeywordExtractor) Extract(text string) []string {
	return keywords.Terms(text)
}

// ---------- helpers ----------

func setOf(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
