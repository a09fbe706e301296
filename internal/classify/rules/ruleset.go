// Package rules holds the declarative tariff knowledge the classification
// pipeline runs on: chapter keyword tables, functional overrides, ambiguous
// term resolutions, term dictionaries, finished-product reranking rules and
// differential feature catalogs.
//
// All tables ship as YAML under data/ and are parsed once into an explicit
// RuleSet that callers pass by reference. Nothing in this package mutates a
// RuleSet after Load returns, so a single instance is safe for concurrent use.
package rules

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	apperrors "github.com/turtacn/tariffwise/pkg/errors"
)

// ChapterRule scores a query against one HS chapter. Include and phrase
// matches push the chapter up, exclude matches push it down.
type ChapterRule struct {
	Chapter  string   `yaml:"chapter"`
	Name     string   `yaml:"name"`
	Priority int      `yaml:"priority"`
	Include  []string `yaml:"include"`
	Exclude  []string `yaml:"exclude"`
	Phrases  []string `yaml:"phrases"`
}

// FunctionalOverride forces a chapter when any of its keywords appears in the
// query. Overrides encode the "classify by function, not material" rule for
// goods like vehicle parts and machinery components.
type FunctionalOverride struct {
	Keywords     []string `yaml:"keywords"`
	ForceChapter string   `yaml:"force_chapter"`
	Reason       string   `yaml:"reason"`
}

// Indicator resolves an ambiguous term to a chapter when its pattern matches
// the surrounding query text.
type Indicator struct {
	Pattern string `yaml:"pattern"`
	Chapter string `yaml:"chapter"`

	re *regexp.Regexp
}

// Matches reports whether the indicator pattern matches the query.
func (ind *Indicator) Matches(query string) bool {
	if ind.re == nil {
		return false
	}
	return ind.re.MatchString(query)
}

// AmbiguousTerm is a single word that legitimately spans multiple chapters
// ("coffee" may be ch. 09 beans or ch. 21 instant extract). Indicators try to
// disambiguate from context; when none fires the term stays ambiguous and the
// engine asks the user.
type AmbiguousTerm struct {
	Term       string      `yaml:"term"`
	Chapters   []string    `yaml:"chapters"`
	Question   string      `yaml:"question"`
	Indicators []Indicator `yaml:"indicators"`
}

// CompoundPhrase is a multi-word token the term analyzer must keep together,
// such as "instant coffee" or "hex bolt".
type CompoundPhrase struct {
	Text     string `yaml:"text"`
	Category string `yaml:"category"`
}

// TermDictionary classifies single tokens into semantic categories and lists
// the compound phrases recognized before tokenization.
type TermDictionary struct {
	Phrases     []CompoundPhrase `yaml:"phrases"`
	Product     []string         `yaml:"product"`
	Variety     []string         `yaml:"variety"`
	Processing  []string         `yaml:"processing"`
	Material    []string         `yaml:"material"`
	Packaging   []string         `yaml:"packaging"`
	Descriptive []string         `yaml:"descriptive"`
	Stopwords   []string         `yaml:"stopwords"`
}

// FinishedProductRule boosts finished-good chapters and penalizes raw-material
// chapters when the query names a finished product.
type FinishedProductRule struct {
	Keyword      string   `yaml:"keyword"`
	Priority     int      `yaml:"priority"`
	Targets      []string `yaml:"targets"`
	RawMaterials []string `yaml:"raw_materials"`
	Boost        float64  `yaml:"boost"`
	Penalty      float64  `yaml:"penalty"`
}

// RerankRules groups everything the reranker and the function-over-material
// scorer adjustment need.
type RerankRules struct {
	FinishedProducts []FinishedProductRule `yaml:"finished_products"`
	FunctionKeywords []string              `yaml:"function_keywords"`
	MaterialKeywords []string              `yaml:"material_keywords"`
}

// TermGroup is one answer option of a category-term differential: a canonical
// value, its display label and the synonyms that identify it in candidate
// descriptions.
type TermGroup struct {
	Value   string   `yaml:"value"`
	Display string   `yaml:"display"`
	Terms   []string `yaml:"terms"`
}

// FeatureRule declares a distinguishing feature the differential analyzer can
// detect across candidates, e.g. material or processing state.
type FeatureRule struct {
	Feature        string      `yaml:"feature"`
	Category       string      `yaml:"category"`
	Importance     int         `yaml:"importance"`
	HierarchyLevel int         `yaml:"hierarchy_level"`
	Groups         []TermGroup `yaml:"groups"`
}

// DifferentialRules holds the feature catalog plus the question-category
// dependency graph used to order questions within a round.
type DifferentialRules struct {
	Features     []FeatureRule       `yaml:"features"`
	Dependencies map[string][]string `yaml:"dependencies"`
}

// RuleSet is the parsed, validated rule knowledge base. Treat as immutable.
type RuleSet struct {
	Chapters      []ChapterRule
	ChapterNames  map[string]string
	Overrides     []FunctionalOverride
	Ambiguous     []AmbiguousTerm
	Terms         TermDictionary
	Rerank        RerankRules
	Differentials DifferentialRules

	stopwords map[string]struct{}
	ambiguous map[string]*AmbiguousTerm
}

// IsStopword reports whether tok is on the stopword list.
func (rs *RuleSet) IsStopword(tok string) bool {
	_, ok := rs.stopwords[strings.ToLower(tok)]
	return ok
}

// AmbiguousTermFor returns the ambiguity entry for tok, or nil.
func (rs *RuleSet) AmbiguousTermFor(tok string) *AmbiguousTerm {
	return rs.ambiguous[strings.ToLower(tok)]
}

// ChapterName returns the human label for a two-digit chapter, or "".
func (rs *RuleSet) ChapterName(chapter string) string {
	return rs.ChapterNames[chapter]
}

func (rs *RuleSet) finalize() error {
	rs.stopwords = make(map[string]struct{}, len(rs.Terms.Stopwords))
	for _, w := range rs.Terms.Stopwords {
		rs.stopwords[strings.ToLower(w)] = struct{}{}
	}

	rs.ambiguous = make(map[string]*AmbiguousTerm, len(rs.Ambiguous))
	for i := range rs.Ambiguous {
		at := &rs.Ambiguous[i]
		rs.ambiguous[strings.ToLower(at.Term)] = at
		for j := range at.Indicators {
			ind := &at.Indicators[j]
			re, err := regexp.Compile("(?i)" + ind.Pattern)
			if err != nil {
				return apperrors.Wrap(err, apperrors.ErrCodeRuleSetInvalid,
					fmt.Sprintf("ambiguous term %q: bad indicator pattern %q", at.Term, ind.Pattern))
			}
			ind.re = re
		}
	}

	if rs.ChapterNames == nil {
		rs.ChapterNames = make(map[string]string, len(rs.Chapters))
	}
	for _, cr := range rs.Chapters {
		if _, ok := rs.ChapterNames[cr.Chapter]; !ok {
			rs.ChapterNames[cr.Chapter] = cr.Name
		}
	}

	// Longer phrases first, so greedy compound matching prefers the most
	// specific phrase.
	sort.SliceStable(rs.Terms.Phrases, func(i, j int) bool {
		return len(rs.Terms.Phrases[i].Text) > len(rs.Terms.Phrases[j].Text)
	})
	sort.SliceStable(rs.Rerank.FinishedProducts, func(i, j int) bool {
		return rs.Rerank.FinishedProducts[i].Priority > rs.Rerank.FinishedProducts[j].Priority
	})

	return rs.validate()
}

func (rs *RuleSet) validate() error {
	if len(rs.Chapters) == 0 {
		return apperrors.New(apperrors.ErrCodeRuleSetInvalid, "no chapter rules loaded")
	}
	seen := make(map[string]struct{}, len(rs.Chapters))
	for _, cr := range rs.Chapters {
		if len(cr.Chapter) != 2 {
			return apperrors.New(apperrors.ErrCodeRuleSetInvalid,
				fmt.Sprintf("chapter rule %q: chapter must be two digits", cr.Chapter))
		}
		if _, dup := seen[cr.Chapter]; dup {
			return apperrors.New(apperrors.ErrCodeRuleSetInvalid,
				fmt.Sprintf("duplicate chapter rule %q", cr.Chapter))
		}
		seen[cr.Chapter] = struct{}{}
		if cr.Priority < 1 || cr.Priority > 5 {
			return apperrors.New(apperrors.ErrCodeRuleSetInvalid,
				fmt.Sprintf("chapter rule %q: priority %d out of range 1..5", cr.Chapter, cr.Priority))
		}
	}
	for _, ov := range rs.Overrides {
		if len(ov.Keywords) == 0 || len(ov.ForceChapter) != 2 {
			return apperrors.New(apperrors.ErrCodeRuleSetInvalid,
				fmt.Sprintf("functional override %q: needs keywords and a two-digit chapter", ov.ForceChapter))
		}
	}
	for _, at := range rs.Ambiguous {
		if len(at.Chapters) < 2 {
			return apperrors.New(apperrors.ErrCodeRuleSetInvalid,
				fmt.Sprintf("ambiguous term %q: needs at least two chapters", at.Term))
		}
	}
	for _, fr := range rs.Differentials.Features {
		if fr.Feature == "" || len(fr.Groups) < 2 {
			return apperrors.New(apperrors.ErrCodeRuleSetInvalid,
				fmt.Sprintf("feature rule %q: needs a name and at least two groups", fr.Feature))
		}
	}
	return nil
}
