package candidate

import (
	"sort"
	"strings"

	"github.com/turtacn/tariffwise/internal/classify/chapter"
	"github.com/turtacn/tariffwise/internal/classify/rules"
	"github.com/turtacn/tariffwise/internal/config"
	"github.com/turtacn/tariffwise/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/tariffwise/pkg/types/classify"
)

// Scorer computes the fused candidate score:
//
//	total = semantic(0..max) + keywordBonus(0..max) + contextBoost(0..max) + chapterBoost
//
// plus the function-over-material adjunct. Scoring is pure: the input slice
// is not mutated and a fixed input always yields the same scores.
type Scorer struct {
	rules     *rules.Provider
	scoring   config.ScoringConfig
	predictor *chapter.Predictor
	logger    logging.Logger
}

// NewScorer builds a candidate scorer.
func NewScorer(rp *rules.Provider, scoring config.ScoringConfig, predictor *chapter.Predictor, logger logging.Logger) *Scorer {
	return &Scorer{rules: rp, scoring: scoring, predictor: predictor, logger: logger.Named("scorer")}
}

// Score returns a new slice sorted by descending total score.
func (s *Scorer) Score(cands []classify.Candidate, query string, analysis classify.TermAnalysis, preds []classify.ChapterPrediction) []classify.Candidate {
	terms := meaningfulTerms(query, analysis)
	fnMode := s.functionMaterialMode(query)

	out := make([]classify.Candidate, len(cands))
	copy(out, cands)
	for i := range out {
		c := &out[i]
		semantic := c.Similarity * s.scoring.MaxSemanticScore

		contextBoost := c.Score
		if contextBoost > s.scoring.MaxContextBoost {
			contextBoost = s.scoring.MaxContextBoost
		}

		c.Score = semantic +
			s.keywordBonus(*c, terms) +
			contextBoost +
			s.predictor.Boost(c.Chapter(), preds) +
			s.functionAdjunct(*c, fnMode)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// keywordBonus rewards overlap between query terms and the candidate's
// keyword bag; conjunctive matches ("nuts AND bolts") earn extra on top.
func (s *Scorer) keywordBonus(c classify.Candidate, terms []string) float64 {
	if len(terms) == 0 {
		return 0
	}
	text := candidateText(c)
	matched := 0
	for _, t := range terms {
		if strings.Contains(text, t) {
			matched++
		}
	}
	bonus := s.scoring.KeywordMatchBonus * float64(matched)
	if matched >= 2 {
		bonus += s.scoring.MultiTermBonus
	}
	if matched == len(terms) {
		bonus += s.scoring.AllTermsBonus
	}
	if bonus > s.scoring.MaxKeywordBonus {
		bonus = s.scoring.MaxKeywordBonus
	}
	return bonus
}

type fnMaterialMode struct {
	active    bool
	functions []string
	materials []string
}

// functionMaterialMode detects whether the query names both a function-type
// and a material-type keyword. Only then does the adjunct apply: a query
// like "steel brake pads" must not classify as raw steel.
func (s *Scorer) functionMaterialMode(query string) fnMaterialMode {
	rs := s.rules.Get()
	q := strings.ToLower(query)
	var mode fnMaterialMode
	for _, kw := range rs.Rerank.FunctionKeywords {
		if strings.Contains(q, kw) {
			mode.functions = append(mode.functions, kw)
		}
	}
	for _, kw := range rs.Rerank.MaterialKeywords {
		if strings.Contains(q, kw) {
			mode.materials = append(mode.materials, kw)
		}
	}
	mode.active = len(mode.functions) > 0 && len(mode.materials) > 0
	return mode
}

func (s *Scorer) functionAdjunct(c classify.Candidate, mode fnMaterialMode) float64 {
	if !mode.active {
		return 0
	}
	text := candidateText(c)
	fn := containsAny(text, mode.functions)
	mat := containsAny(text, mode.materials)
	switch {
	case fn && mat:
		return s.scoring.BothMatchBoost
	case fn:
		return s.scoring.FunctionMatchBoost
	case mat:
		return -s.scoring.MaterialOnlyPenalty
	}
	return 0
}

func candidateText(c classify.Candidate) string {
	parts := make([]string, 0, 4)
	parts = append(parts, c.Description)
	parts = append(parts, strings.Join(c.Keywords, " "))
	parts = append(parts, strings.Join(c.CommonProducts, " "))
	parts = append(parts, strings.Join(c.Synonyms, " "))
	return strings.ToLower(strings.Join(parts, " "))
}

func containsAny(text string, kws []string) bool {
	for _, kw := range kws {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
