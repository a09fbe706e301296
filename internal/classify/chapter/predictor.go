// Package chapter implements the chapter predictor: it maps a product query
// onto ranked two-digit tariff chapters before retrieval runs, applying
// functional overrides ("classify by function, not material") and resolving
// terms that span chapters.
package chapter

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/turtacn/tariffwise/internal/classify/rules"
	"github.com/turtacn/tariffwise/internal/config"
	"github.com/turtacn/tariffwise/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/tariffwise/pkg/types/classify"
)

// Keyword-table weights. Rule priority scales the include weight; excludes
// always count in full.
const (
	includeWeight = 20.0
	excludeWeight = 30.0
	phraseWeight  = 15.0

	// resolveBonus rewards the chapter a context indicator picked for an
	// otherwise ambiguous term.
	resolveBonus = 40.0

	// overrideConfidence is fixed for functional overrides.
	overrideConfidence = 0.95

	// topConfidence caps the normalized leader.
	topConfidence = 0.99

	// ambiguityGap: a leader this close to the runner-up is not trusted.
	ambiguityGap = 0.15

	maxPredictions = 5
)

// Result is the full prediction outcome. When Ambiguous is set the caller
// should ask the user instead of trusting Predictions[0].
type Result struct {
	Predictions []classify.ChapterPrediction
	Ambiguous   bool
	// AmbiguousTerm and Question are set when ambiguity comes from an
	// unresolved multi-chapter term rather than a narrow score gap.
	AmbiguousTerm string
	Question      string
}

// Predictor scores chapters against the rule tables.
type Predictor struct {
	rules   *rules.Provider
	scoring config.ScoringConfig
	logger  logging.Logger
}

// NewPredictor builds a chapter predictor.
func NewPredictor(rp *rules.Provider, scoring config.ScoringConfig, logger logging.Logger) *Predictor {
	return &Predictor{rules: rp, scoring: scoring, logger: logger.Named("chapter")}
}

// Predict ranks chapters for the query. A matching functional override
// returns a single pinned prediction and suppresses keyword scoring entirely.
func (p *Predictor) Predict(query string) Result {
	rs := p.rules.Get()
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return Result{}
	}

	if pred, ok := matchOverride(rs, q); ok {
		p.logger.Debug("functional override",
			logging.String("query", query), logging.String("chapter", pred.Chapter))
		return Result{Predictions: []classify.ChapterPrediction{pred}}
	}

	resolved, unresolved := disambiguate(rs, q)

	scores := make(map[string]float64, len(rs.Chapters))
	matched := make(map[string][]string, len(rs.Chapters))
	for _, cr := range rs.Chapters {
		s, kws := scoreChapter(cr, q)
		if ch, ok := resolved[cr.Chapter]; ok && ch {
			s += resolveBonus
		}
		if s > 0 {
			scores[cr.Chapter] = s
			matched[cr.Chapter] = kws
		}
	}

	preds := normalize(rs, scores, matched)

	res := Result{Predictions: preds}
	if unresolved != nil {
		res.Ambiguous = true
		res.AmbiguousTerm = unresolved.Term
		res.Question = unresolved.Question
		// Surface every chapter the term could mean, even when keyword
		// scoring favored one of them.
		res.Predictions = mergeAmbiguousChapters(rs, preds, unresolved)
	} else if len(preds) >= 2 && preds[0].Confidence-preds[1].Confidence < ambiguityGap {
		res.Ambiguous = true
	}
	return res
}

// Boost converts the prediction list into a per-candidate score adjustment.
// Override predictions are decisive: the pinned chapter gains a flat boost and
// every other chapter is penalized. Otherwise boost decays with prediction
// rank and is scaled by prediction confidence; chapters outside the
// prediction list take a small penalty.
func (p *Predictor) Boost(candidateChapter string, preds []classify.ChapterPrediction) float64 {
	if len(preds) == 0 {
		return 0
	}
	if preds[0].Override {
		if candidateChapter == preds[0].Chapter {
			return p.scoring.OverrideChapterBoost
		}
		return -p.scoring.OverrideChapterPenalty
	}
	for rank, pred := range preds {
		if pred.Chapter != candidateChapter {
			continue
		}
		base := p.scoring.RankBoostBase - p.scoring.RankBoostStep*float64(rank)
		if base < 0 {
			base = 0
		}
		return base * pred.Confidence
	}
	return -p.scoring.UnpredictedPenalty
}

func matchOverride(rs *rules.RuleSet, q string) (classify.ChapterPrediction, bool) {
	for _, ov := range rs.Overrides {
		for _, kw := range ov.Keywords {
			if containsKeyword(q, kw) {
				return classify.ChapterPrediction{
					Chapter:         ov.ForceChapter,
					Name:            rs.ChapterName(ov.ForceChapter),
					Confidence:      overrideConfidence,
					MatchedKeywords: []string{kw},
					Reason:          ov.Reason,
					Override:        true,
				}, true
			}
		}
	}
	return classify.ChapterPrediction{}, false
}

// disambiguate walks the ambiguous-term table. A term is settled when a
// context indicator fires (the indicated chapter gets a resolve bonus) or,
// failing that, when the query already carries some other chapter keyword
// that narrows the meaning. The first term nothing can settle is returned as
// unresolved.
func disambiguate(rs *rules.RuleSet, q string) (map[string]bool, *rules.AmbiguousTerm) {
	resolved := make(map[string]bool)
	var unresolved *rules.AmbiguousTerm
	for i := range rs.Ambiguous {
		at := &rs.Ambiguous[i]
		if !containsKeyword(q, at.Term) {
			continue
		}
		settled := false
		for j := range at.Indicators {
			if at.Indicators[j].Matches(q) {
				resolved[at.Indicators[j].Chapter] = true
				settled = true
				break
			}
		}
		if !settled && hasOtherChapterKeyword(rs, q, at.Term) {
			settled = true
		}
		if !settled && unresolved == nil {
			unresolved = at
		}
	}
	return resolved, unresolved
}

// hasOtherChapterKeyword reports whether the query contains any chapter
// include/exclude keyword besides the ambiguous term itself.
func hasOtherChapterKeyword(rs *rules.RuleSet, q, term string) bool {
	for _, cr := range rs.Chapters {
		for _, kw := range cr.Include {
			if kw != term && containsKeyword(q, kw) {
				return true
			}
		}
		for _, kw := range cr.Exclude {
			if kw != term && containsKeyword(q, kw) {
				return true
			}
		}
	}
	return false
}

func scoreChapter(cr rules.ChapterRule, q string) (float64, []string) {
	var score float64
	var kws []string
	for _, kw := range cr.Include {
		if containsKeyword(q, kw) {
			score += includeWeight * float64(cr.Priority) / 5.0
			kws = append(kws, kw)
		}
	}
	for _, kw := range cr.Exclude {
		if containsKeyword(q, kw) {
			score -= excludeWeight
		}
	}
	for _, ph := range cr.Phrases {
		if strings.Contains(q, ph) {
			score += phraseWeight
			kws = append(kws, ph)
		}
	}
	return score, kws
}

func normalize(rs *rules.RuleSet, scores map[string]float64, matched map[string][]string) []classify.ChapterPrediction {
	if len(scores) == 0 {
		return nil
	}
	chapters := make([]string, 0, len(scores))
	var sum float64
	for ch, s := range scores {
		chapters = append(chapters, ch)
		sum += s
	}
	sort.Slice(chapters, func(i, j int) bool {
		if scores[chapters[i]] != scores[chapters[j]] {
			return scores[chapters[i]] > scores[chapters[j]]
		}
		return chapters[i] < chapters[j]
	})
	if len(chapters) > maxPredictions {
		chapters = chapters[:maxPredictions]
	}

	// Share of total score, rescaled so the leader never claims more than
	// topConfidence.
	scale := 1.0
	if top := scores[chapters[0]] / sum; top > topConfidence {
		scale = topConfidence / top
	}
	preds := make([]classify.ChapterPrediction, 0, len(chapters))
	for _, ch := range chapters {
		preds = append(preds, classify.ChapterPrediction{
			Chapter:         ch,
			Name:            rs.ChapterName(ch),
			Confidence:      scores[ch] / sum * scale,
			MatchedKeywords: matched[ch],
			Reason:          fmt.Sprintf("keyword match score %.1f", scores[ch]),
		})
	}
	return preds
}

// mergeAmbiguousChapters makes sure every chapter of an unresolved term shows
// up in the prediction list so the caller can present real alternatives.
func mergeAmbiguousChapters(rs *rules.RuleSet, preds []classify.ChapterPrediction, at *rules.AmbiguousTerm) []classify.ChapterPrediction {
	present := make(map[string]bool, len(preds))
	for _, p := range preds {
		present[p.Chapter] = true
	}
	out := preds
	for _, ch := range at.Chapters {
		if present[ch] {
			continue
		}
		out = append(out, classify.ChapterPrediction{
			Chapter:    ch,
			Name:       rs.ChapterName(ch),
			Confidence: topConfidence / 2,
			Reason:     fmt.Sprintf("possible meaning of %q", at.Term),
		})
	}
	return out
}

// containsKeyword matches kw in q on word boundaries so "car" does not hit
// "carton". Multi-word keywords fall back to plain substring containment.
func containsKeyword(q, kw string) bool {
	kw = strings.ToLower(kw)
	if strings.ContainsRune(kw, ' ') || strings.ContainsRune(kw, '-') {
		return strings.Contains(q, kw)
	}
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(kw) + `s?\b`)
	return re.MatchString(q)
}
