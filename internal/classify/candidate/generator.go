package candidate

import (
	"context"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/tariffwise/internal/classify/chapter"
	"github.com/turtacn/tariffwise/internal/config"
	"github.com/turtacn/tariffwise/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/tariffwise/pkg/errors"
	"github.com/turtacn/tariffwise/pkg/types/classify"
)

// GeneratorDeps wires the retrieval collaborators into the generator.
type GeneratorDeps struct {
	Embedder Embedder
	Vector   VectorSearcher
	Catalog  CatalogIndex
	Logger   logging.Logger
}

// Generator fuses the lexical, semantic and exact-keyword retrieval channels
// into one deduplicated candidate set.
type Generator struct {
	deps      GeneratorDeps
	retrieval config.RetrievalConfig
	scoring   config.ScoringConfig
	logger    logging.Logger
}

// NewGenerator builds a candidate generator.
func NewGenerator(deps GeneratorDeps, retrieval config.RetrievalConfig, scoring config.ScoringConfig) *Generator {
	return &Generator{
		deps:      deps,
		retrieval: retrieval,
		scoring:   scoring,
		logger:    deps.Logger.Named("generator"),
	}
}

// Generate runs the retrieval fan-out for one query. Channel failures
// degrade to the surviving channels; an error is returned only when every
// channel failed and nothing at all was retrieved.
func (g *Generator) Generate(ctx context.Context, query string, analysis classify.TermAnalysis, prediction chapter.Result) ([]classify.Candidate, error) {
	terms := meaningfulTerms(query, analysis)
	scope := scopeChapters(prediction, g.retrieval.ScopedChapters)
	overrideActive := len(prediction.Predictions) > 0 && prediction.Predictions[0].Override

	semanticOnly := len(terms) >= g.retrieval.SemanticOnlyTokens

	var (
		mu       sync.Mutex
		lexical  []classify.Candidate
		semantic []classify.Candidate
		exact    []classify.Candidate
		chanErrs []error
	)
	record := func(err error) {
		mu.Lock()
		chanErrs = append(chanErrs, err)
		mu.Unlock()
	}

	eg, egCtx := errgroup.WithContext(ctx)

	if !semanticOnly {
		eg.Go(func() error {
			cctx, cancel := context.WithTimeout(egCtx, g.retrieval.ChannelTimeout)
			defer cancel()
			entries, err := g.deps.Catalog.Lookup(cctx, terms)
			if err != nil {
				g.logger.Warn("lexical channel failed", logging.Err(err))
				record(apperrors.Wrap(err, apperrors.ErrCodeLexicalSearchFailed, "lookup"))
				return nil
			}
			mu.Lock()
			lexical = g.lexicalCandidates(entries, terms, scope)
			mu.Unlock()
			return nil
		})
	}

	eg.Go(func() error {
		cctx, cancel := context.WithTimeout(egCtx, g.retrieval.ChannelTimeout)
		defer cancel()
		hits, err := g.semanticChannel(cctx, query, analysis, scope, overrideActive)
		if err != nil {
			g.logger.Warn("semantic channel failed", logging.Err(err))
			record(err)
			return nil
		}
		mu.Lock()
		semantic = hits
		mu.Unlock()
		return nil
	})

	if len(scope) > 0 {
		eg.Go(func() error {
			cctx, cancel := context.WithTimeout(egCtx, g.retrieval.ChannelTimeout)
			defer cancel()
			entries, err := g.deps.Catalog.ScopedSubstring(cctx, terms, scope, g.retrieval.ScopedTopK)
			if err != nil {
				g.logger.Warn("exact-keyword channel failed", logging.Err(err))
				record(apperrors.Wrap(err, apperrors.ErrCodeLexicalSearchFailed, "scoped substring"))
				return nil
			}
			mu.Lock()
			exact = g.exactCandidates(entries)
			mu.Unlock()
			return nil
		})
	}

	_ = eg.Wait()

	merged := g.merge(lexical, semantic, exact)
	if len(merged) == 0 && len(chanErrs) > 0 {
		return nil, apperrors.Wrap(chanErrs[0], apperrors.ErrCodeCatalogUnavailable,
			"all retrieval channels failed")
	}

	g.logger.Debug("retrieval fan-in",
		logging.String("query", query),
		logging.Int("lexical", len(lexical)),
		logging.Int("semantic", len(semantic)),
		logging.Int("exact", len(exact)),
		logging.Int("merged", len(merged)))
	return merged, nil
}

// semanticChannel embeds the query and searches the vector store. With an
// active override the search is pinned to the forced chapter; otherwise a
// global pass is complemented by a scoped pass over the top predicted
// chapters so they keep minimum coverage.
func (g *Generator) semanticChannel(ctx context.Context, query string, analysis classify.TermAnalysis, scope []string, overrideActive bool) ([]classify.Candidate, error) {
	text := analysis.FullQueryWithoutPackaging
	if text == "" {
		text = query
	}
	vec, err := g.deps.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeEmbeddingFailed, "embed query")
	}

	var out []classify.Candidate
	if overrideActive {
		hits, err := g.deps.Vector.Search(ctx, vec, scope, g.retrieval.VectorTopK)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeVectorSearchFailed, "scoped search")
		}
		return vectorCandidates(hits), nil
	}

	hits, err := g.deps.Vector.Search(ctx, vec, nil, g.retrieval.VectorTopK)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeVectorSearchFailed, "global search")
	}
	out = vectorCandidates(hits)

	if len(scope) > 0 {
		scoped, err := g.deps.Vector.Search(ctx, vec, scope, g.retrieval.ScopedTopK)
		if err != nil {
			// Global pass already succeeded; the scoped complement is best
			// effort.
			g.logger.Warn("scoped vector pass failed", logging.Err(err))
			return out, nil
		}
		out = append(out, vectorCandidates(scoped)...)
	}
	return out, nil
}

// lexicalCandidates scores catalog entries against the query terms and
// applies the fuzzy-noise filter.
func (g *Generator) lexicalCandidates(entries []classify.CatalogEntry, terms, allowChapters []string) []classify.Candidate {
	allow := make(map[string]bool, len(allowChapters))
	for _, ch := range allowChapters {
		allow[ch] = true
	}
	var out []classify.Candidate
	for _, e := range entries {
		matchType, score, matchedTerms := g.matchEntry(e, terms)
		if matchType == "" {
			continue
		}
		if matchType == "fuzzy" && score < g.retrieval.FuzzyNoiseMinScore &&
			matchedTerms < g.retrieval.FuzzyNoiseMinTerms && !allow[e.Chapter] {
			continue
		}
		out = append(out, classify.Candidate{
			Code:           e.Code,
			Score:          score,
			MatchType:      matchType,
			Description:    e.Description,
			Source:         classify.SourceLexical,
			Keywords:       e.Keywords,
			CommonProducts: e.CommonProducts,
			Synonyms:       e.Synonyms,
		})
	}
	return out
}

// matchEntry finds the strongest match type between the query terms and the
// entry's indexed term bag. Exact beats substring beats fuzzy.
func (g *Generator) matchEntry(e classify.CatalogEntry, terms []string) (string, float64, int) {
	bag := entryBag(e)
	best := ""
	matched := 0
	for _, term := range terms {
		tm := ""
		for _, idx := range bag {
			switch {
			case term == idx:
				tm = "exact"
			case tm != "exact" && (strings.Contains(idx, term) || strings.Contains(term, idx)):
				tm = "substring"
			case tm == "" && similarity(term, idx) >= g.scoring.FuzzyMinSimilarity:
				tm = "fuzzy"
			}
			if tm == "exact" {
				break
			}
		}
		if tm == "" {
			continue
		}
		matched++
		if rankMatch(tm) > rankMatch(best) {
			best = tm
		}
	}
	switch best {
	case "exact":
		return best, g.scoring.ExactMatchScore, matched
	case "substring":
		return best, g.scoring.SubstringMatchScore, matched
	case "fuzzy":
		return best, g.scoring.FuzzyMatchScore, matched
	}
	return "", 0, 0
}

func (g *Generator) exactCandidates(entries []classify.CatalogEntry) []classify.Candidate {
	out := make([]classify.Candidate, 0, len(entries))
	for _, e := range entries {
		out = append(out, classify.Candidate{
			Code:           e.Code,
			Score:          g.scoring.ExactMatchScore,
			MatchType:      "exact",
			Description:    e.Description,
			Source:         classify.SourceLexical,
			Keywords:       e.Keywords,
			CommonProducts: e.CommonProducts,
			Synonyms:       e.Synonyms,
		})
	}
	return out
}

func vectorCandidates(hits []classify.VectorHit) []classify.Candidate {
	out := make([]classify.Candidate, 0, len(hits))
	for _, h := range hits {
		out = append(out, classify.Candidate{
			Code:        h.Code,
			MatchType:   "semantic",
			Description: h.Description,
			Source:      classify.SourceSemantic,
			Keywords:    h.Keywords,
			Similarity:  h.Similarity,
		})
	}
	return out
}

// merge deduplicates by code in channel order, first seen wins for
// description metadata. A code seen by both a lexical and a semantic channel
// becomes source "combined", keeping the lexical base score and the best
// similarity.
func (g *Generator) merge(groups ...[]classify.Candidate) []classify.Candidate {
	index := make(map[string]int)
	var out []classify.Candidate
	for _, group := range groups {
		for _, c := range group {
			i, seen := index[c.Code]
			if !seen {
				index[c.Code] = len(out)
				out = append(out, c)
				continue
			}
			prev := &out[i]
			if c.Similarity > prev.Similarity {
				prev.Similarity = c.Similarity
			}
			if c.Score > prev.Score {
				prev.Score = c.Score
				prev.MatchType = c.MatchType
			}
			if prev.Source != c.Source {
				prev.Source = classify.SourceCombined
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].Score > out[j].Score
	})
	if len(out) > g.retrieval.MaxCandidates {
		out = out[:g.retrieval.MaxCandidates]
	}
	return out
}

func rankMatch(t string) int {
	switch t {
	case "exact":
		return 3
	case "substring":
		return 2
	case "fuzzy":
		return 1
	}
	return 0
}

func entryBag(e classify.CatalogEntry) []string {
	bag := make([]string, 0, len(e.Keywords)+len(e.CommonProducts)+len(e.Synonyms))
	for _, lists := range [][]string{e.Keywords, e.CommonProducts, e.Synonyms} {
		for _, t := range lists {
			bag = append(bag, strings.ToLower(t))
		}
	}
	for _, w := range strings.Fields(strings.ToLower(e.Description)) {
		bag = append(bag, strings.Trim(w, ",.;:()"))
	}
	return bag
}

var connectives = map[string]struct{}{
	"and": {}, "or": {}, "of": {}, "the": {}, "for": {}, "with": {}, "in": {},
}

// meaningfulTerms extracts the query words retrieval should match on:
// recognized product, variety, processing and material tokens plus anything
// the analyzer could not place. Compound phrases are split back into their
// words so "nuts and bolts" can match each term independently.
func meaningfulTerms(query string, analysis classify.TermAnalysis) []string {
	toks := analysis.TermsOf(
		classify.TermProduct, classify.TermVariety,
		classify.TermProcessing, classify.TermMaterial,
		classify.TermUnknown,
	)
	if len(toks) == 0 {
		toks = strings.Fields(strings.ToLower(query))
	}
	var terms []string
	seen := map[string]struct{}{}
	for _, tok := range toks {
		for _, w := range strings.Fields(tok) {
			if _, skip := connectives[w]; skip {
				continue
			}
			if _, dup := seen[w]; dup {
				continue
			}
			seen[w] = struct{}{}
			terms = append(terms, w)
		}
	}
	return terms
}

// scopeChapters picks the chapters the scoped passes run against: the forced
// chapter under an override, otherwise the top predicted chapters.
func scopeChapters(prediction chapter.Result, n int) []string {
	preds := prediction.Predictions
	if len(preds) == 0 {
		return nil
	}
	if preds[0].Override {
		return []string{preds[0].Chapter}
	}
	if len(preds) > n {
		preds = preds[:n]
	}
	out := make([]string, 0, len(preds))
	for _, p := range preds {
		out = append(out, p.Chapter)
	}
	return out
}
