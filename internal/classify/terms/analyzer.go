// Package terms implements the term analyzer: it tokenizes a free-text
// product query, keeps known compound phrases intact, tags every token with a
// semantic category and derives the focused query strings retrieval works on.
package terms

import (
	"regexp"
	"strings"

	"github.com/turtacn/tariffwise/internal/classify/rules"
	"github.com/turtacn/tariffwise/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/tariffwise/pkg/types/classify"
)

var (
	// 500g, 1.5 kg, 33cl, 40%, 10 pcs
	measurementRe = regexp.MustCompile(`^\d+(\.\d+)?\s*(kg|g|mg|t|l|ml|cl|cm|mm|m|km|inch|in|ft|oz|lb|pcs|pc|%)?$`)
	punctRe       = regexp.MustCompile(`[,;:!?()\[\]{}"']`)
	spaceRe       = regexp.MustCompile(`\s+`)
)

var colorWords = map[string]struct{}{
	"red": {}, "blue": {}, "green": {}, "yellow": {}, "black": {},
	"white": {}, "grey": {}, "gray": {}, "brown": {}, "orange": {},
	"pink": {}, "purple": {}, "silver": {}, "golden": {},
}

// Analyzer tags query tokens using the rule dictionaries.
type Analyzer struct {
	rules  *rules.Provider
	logger logging.Logger
}

// NewAnalyzer builds a term analyzer on the given rule provider.
func NewAnalyzer(rp *rules.Provider, logger logging.Logger) *Analyzer {
	return &Analyzer{rules: rp, logger: logger.Named("terms")}
}

// Analyze normalizes and tags the query. It never fails: an unrecognizable
// query yields unknown tokens and a low confidence, and the caller decides
// what to do with that.
func (a *Analyzer) Analyze(query string) classify.TermAnalysis {
	rs := a.rules.Get()
	normalized := normalize(query)

	toks := a.tokenize(rs, normalized)

	analysis := classify.TermAnalysis{Tokens: toks}
	recognized := 0
	var primary, full []string
	for _, tok := range toks {
		if tok.Category != classify.TermUnknown {
			recognized++
		}
		switch tok.Category {
		case classify.TermProduct, classify.TermVariety, classify.TermProcessing:
			primary = append(primary, tok.Text)
			full = append(full, tok.Text)
		case classify.TermPackaging, classify.TermMeasurement:
			// dropped from both derived queries
		default:
			full = append(full, tok.Text)
		}
	}
	analysis.PrimaryQuery = strings.Join(primary, " ")
	analysis.FullQueryWithoutPackaging = strings.Join(full, " ")
	if len(toks) > 0 {
		analysis.Confidence = float64(recognized) / float64(len(toks))
	}

	a.logger.Debug("analyzed query",
		logging.String("query", query),
		logging.String("primary", analysis.PrimaryQuery),
		logging.Float64("confidence", analysis.Confidence))
	return analysis
}

// tokenize consumes the normalized query left to right, preferring the
// longest known compound phrase at each position before falling back to a
// single word.
func (a *Analyzer) tokenize(rs *rules.RuleSet, normalized string) []classify.TermToken {
	words := strings.Fields(normalized)
	var toks []classify.TermToken
	for i := 0; i < len(words); {
		if phrase, n, ok := matchPhrase(rs, words[i:]); ok {
			toks = append(toks, classify.TermToken{
				Text:     phrase.Text,
				Category: classify.TermCategory(phrase.Category),
			})
			i += n
			continue
		}
		w := words[i]
		i++
		if rs.IsStopword(w) {
			continue
		}
		toks = append(toks, classify.TermToken{Text: w, Category: categorize(rs, w)})
	}
	return toks
}

// matchPhrase tries every known compound phrase (longest first) against the
// word window starting at words[0].
func matchPhrase(rs *rules.RuleSet, words []string) (rules.CompoundPhrase, int, bool) {
	for _, ph := range rs.Terms.Phrases {
		parts := strings.Fields(ph.Text)
		if len(parts) > len(words) {
			continue
		}
		match := true
		for j, p := range parts {
			if words[j] != p {
				match = false
				break
			}
		}
		if match {
			return ph, len(parts), true
		}
	}
	return rules.CompoundPhrase{}, 0, false
}

func categorize(rs *rules.RuleSet, w string) classify.TermCategory {
	if measurementRe.MatchString(w) {
		return classify.TermMeasurement
	}
	if _, ok := colorWords[w]; ok {
		return classify.TermColor
	}
	switch {
	case contains(rs.Terms.Product, w):
		return classify.TermProduct
	case contains(rs.Terms.Variety, w):
		return classify.TermVariety
	case contains(rs.Terms.Processing, w):
		return classify.TermProcessing
	case contains(rs.Terms.Material, w):
		return classify.TermMaterial
	case contains(rs.Terms.Packaging, w):
		return classify.TermPackaging
	case contains(rs.Terms.Descriptive, w):
		return classify.TermDescriptive
	}
	// Naive singular fallback so "bolts" hits the "bolt" dictionary entry.
	if s, ok := singular(w); ok {
		return categorize(rs, s)
	}
	return classify.TermUnknown
}

func singular(w string) (string, bool) {
	switch {
	case strings.HasSuffix(w, "ies") && len(w) > 4:
		return w[:len(w)-3] + "y", true
	case strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") && len(w) > 3:
		return w[:len(w)-1], true
	}
	return "", false
}

func contains(list []string, w string) bool {
	for _, x := range list {
		if x == w {
			return true
		}
	}
	return false
}

func normalize(q string) string {
	q = strings.ToLower(strings.TrimSpace(q))
	q = punctRe.ReplaceAllString(q, " ")
	return spaceRe.ReplaceAllString(q, " ")
}
