// Package keywords turns free-text questions into a short list of
// normalized search terms.
package keywords

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultMaxTerms bounds the output of Extract.
const DefaultMaxTerms = 8

var defaultStopWords = []string{
	// français
	"les", "des", "une", "est", "sont", "qui", "que", "quoi", "quel", "quelle", "quels", "quelles",
	"comment", "pourquoi", "quand", "où", "combien", "pour", "par", "sur", "dans", "avec", "sans",
	"mon", "mes", "ton", "tes", "son", "ses", "notre", "nos", "votre", "vos", "leur", "leurs",
	"elle", "nous", "vous", "ils", "elles", "cet", "cette", "ces", "aux", "avez", "ont",
	"peux", "peut", "pouvez", "veux", "voudrais", "aimerais", "savoir", "dire", "plus", "moins",
	"très", "bien", "aussi", "mais", "donc", "car", "pas", "être", "avoir", "fait", "faire", "est-ce",
	"existe", "il", "y",
	// english
	"the", "and", "what", "which", "who", "whom", "whose", "when", "where", "why", "how",
	"are", "was", "were", "been", "does", "did", "can", "could", "would", "should", "will",
	"about", "your", "our", "their", "this", "that", "these", "those", "there", "here",
	"please", "tell", "know", "for", "with", "from", "any", "have", "has",
	// the institution itself
	"esilv", "école", "school",
}

// Extractor holds a stop-word set and an output bound.
type Extractor struct {
	stop     map[string]struct{}
	maxTerms int
}

// New builds an Extractor. maxTerms <= 0 selects DefaultMaxTerms.
func New(maxTerms int, extraStopWords ...string) *Extractor {
	if maxTerms <= 0 {
		maxTerms = DefaultMaxTerms
	}
	stop := make(map[string]struct{}, len(defaultStopWords)+len(extraStopWords))
	for _, w := range append(append([]string{}, defaultStopWords...), extraStopWords...) {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		stop[w] = struct{}{}
		stop[Fold(w)] = struct{}{}
	}
	return &Extractor{stop: stop, maxTerms: maxTerms}
}

var defaultExtractor = New(DefaultMaxTerms)

// Extract uses the default extractor.
func Extract(query string) []string {
	return defaultExtractor.Extract(query)
}

// Extract returns at most maxTerms terms in first-seen order. Each surviving
// token contributes itself, its singular or plural form and the accent-folded
// spelling of both.
func (e *Extractor) Extract(query string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(term string) bool {
		if _, dup := seen[term]; dup {
			return len(out) < e.maxTerms
		}
		seen[term] = struct{}{}
		out = append(out, term)
		return len(out) < e.maxTerms
	}

	for _, tok := range e.tokens(query) {
		for _, v := range variants(tok) {
			if !add(v) || !add(Fold(v)) {
				return out
			}
		}
	}
	return out
}

// Terms returns the uncapped set of folded, singular base terms of text.
// It is meant for comparing two texts rather than for searching.
func (e *Extractor) Terms(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, tok := range e.tokens(text) {
		base := singular(Fold(tok))
		if _, dup := seen[base]; dup {
			continue
		}
		seen[base] = struct{}{}
		out = append(out, base)
	}
	return out
}

// Terms uses the default extractor.
func Terms(text string) []string {
	return defaultExtractor.Terms(text)
}

// Render joins terms back into a query string.
func Render(terms []string) string {
	return strings.Join(terms, " ")
}

func (e *Extractor) tokens(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, text)

	var out []string
	for _, tok := range strings.Fields(cleaned) {
		if utf8.RuneCountInString(tok) <= 2 {
			continue
		}
		if e.isStop(tok) {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// isStop also rejects plurals of stop words ("écoles").
func (e *Extractor) isStop(tok string) bool {
	for _, form := range []string{tok, Fold(tok), singular(tok), singular(Fold(tok))} {
		if _, ok := e.stop[form]; ok {
			return true
		}
	}
	return false
}

// variants returns tok followed by its number-flipped form.
// Tokens containing digits, and words ending in "s" that are not plurals
// ("campus", "business"), have no variants.
func variants(tok string) []string {
	for _, r := range tok {
		if !unicode.IsLetter(r) {
			return []string{tok}
		}
	}
	if s := singular(tok); s != tok {
		return []string{tok, s}
	}
	if strings.HasSuffix(tok, "s") {
		return []string{tok}
	}
	return []string{tok, tok + "s"}
}

// singular strips a plural "s". The stripped form never ends in "s", "u" or
// "i", so singular is stable on its own output ("classes" -> "classe",
// "class", "campus" and "analysis" are kept).
func singular(tok string) string {
	if !strings.HasSuffix(tok, "s") || utf8.RuneCountInString(tok) <= 3 {
		return tok
	}
	base := strings.TrimSuffix(tok, "s")
	switch folded := Fold(base); {
	case strings.HasSuffix(folded, "s"), strings.HasSuffix(folded, "u"), strings.HasSuffix(folded, "i"):
		return tok
	}
	return base
}

// Fold strips diacritics: "récent" -> "recent".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return folded
}
