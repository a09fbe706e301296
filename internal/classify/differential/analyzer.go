// Package differential finds the attributes that actually separate a
// shortlist of candidate codes: price thresholds, numeric specifications,
// sibling-code varieties and category terms like material or processing
// state. Its output feeds the question orchestrator.
package differential

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/turtacn/tariffwise/internal/classify/rules"
	"github.com/turtacn/tariffwise/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/tariffwise/pkg/types/classify"
)

// Detector type names carried in Differential.Type.
const (
	TypePrice       = "price"
	TypeNumericSpec = "numeric_spec"
	TypeSibling     = "sibling_variety"
	TypeCategory    = "category_term"
)

// Analyzer runs the detectors over a candidate shortlist.
type Analyzer struct {
	rules  *rules.Provider
	logger logging.Logger
}

// NewAnalyzer builds a differential analyzer.
func NewAnalyzer(rp *rules.Provider, logger logging.Logger) *Analyzer {
	return &Analyzer{rules: rp, logger: logger.Named("differential")}
}

// Analyze returns the differentials that separate the candidates, most
// important first. Differentials the query text already resolves are
// dropped, as are degenerate ones that cannot eliminate anything.
func (a *Analyzer) Analyze(cands []classify.Candidate, query string) []classify.Differential {
	if len(cands) < 2 {
		return nil
	}
	q := strings.ToLower(query)

	var out []classify.Differential
	out = append(out, a.detectPrice(cands)...)
	out = append(out, a.detectNumericSpec(cands)...)
	out = append(out, a.detectSiblingVarieties(cands)...)
	out = append(out, a.detectCategoryTerms(cands)...)

	filtered := out[:0]
	for _, d := range out {
		if a.resolvedByQuery(d, q) {
			continue
		}
		if degenerate(d) {
			continue
		}
		finalize(&d)
		filtered = append(filtered, d)
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Importance > filtered[j].Importance
	})

	a.logger.Debug("differentials",
		logging.String("query", query),
		logging.Int("candidates", len(cands)),
		logging.Int("kept", len(filtered)))
	return filtered
}

// CategoryOf maps a differential back to its question category for
// dependency ordering. Detector-built differentials carry fixed categories;
// rule-based features carry the category declared in the rule table.
func (a *Analyzer) CategoryOf(d classify.Differential) string {
	switch d.Type {
	case TypePrice, TypeNumericSpec:
		return "specification"
	case TypeSibling:
		return "identity"
	}
	for _, fr := range a.rules.Get().Differentials.Features {
		if fr.Feature == d.Feature {
			return fr.Category
		}
	}
	return "specification"
}

// HierarchyLevelOf returns the rule-declared hierarchy level, defaulting to
// the deepest level for detector-built differentials.
func (a *Analyzer) HierarchyLevelOf(d classify.Differential) int {
	switch d.Type {
	case TypeSibling:
		return 1
	case TypePrice, TypeNumericSpec:
		return 3
	}
	for _, fr := range a.rules.Get().Differentials.Features {
		if fr.Feature == d.Feature {
			return fr.HierarchyLevel
		}
	}
	return 3
}

// resolvedByQuery drops a differential when exactly one option is already
// named by the query text: the user has answered it upfront.
func (a *Analyzer) resolvedByQuery(d classify.Differential, q string) bool {
	matches := 0
	for _, opt := range d.Options {
		if a.optionNamedInQuery(d, opt, q) {
			matches++
		}
	}
	return matches == 1
}

// optionNamedInQuery checks the option's canonical value and, for rule-table
// features, every synonym term of its group.
func (a *Analyzer) optionNamedInQuery(d classify.Differential, opt classify.DifferentialOption, q string) bool {
	if opt.Value != "" && strings.Contains(q, strings.ToLower(opt.Value)) {
		return true
	}
	if d.Type != TypeCategory {
		return false
	}
	for _, fr := range a.rules.Get().Differentials.Features {
		if fr.Feature != d.Feature {
			continue
		}
		for _, grp := range fr.Groups {
			if grp.Value != opt.Value {
				continue
			}
			for _, term := range grp.Terms {
				if strings.Contains(q, strings.ToLower(term)) {
					return true
				}
			}
		}
	}
	return false
}

// degenerate drops differentials that cannot eliminate candidates: fewer
// than two options, fewer than two affected codes, or every option selecting
// the same code set.
func degenerate(d classify.Differential) bool {
	if len(d.Options) < 2 {
		return true
	}
	affected := map[string]struct{}{}
	sets := map[string]struct{}{}
	for _, opt := range d.Options {
		if len(opt.MatchingCodes) == 0 {
			continue
		}
		key := codeSetKey(opt.MatchingCodes)
		sets[key] = struct{}{}
		for _, code := range opt.MatchingCodes {
			affected[code] = struct{}{}
		}
	}
	return len(affected) < 2 || len(sets) < 2
}

// finalize assigns the ID and rebuilds AffectedCodes as the exact union of
// the option code sets.
func finalize(d *classify.Differential) {
	d.ID = uuid.NewString()
	seen := map[string]struct{}{}
	d.AffectedCodes = d.AffectedCodes[:0]
	for _, opt := range d.Options {
		for _, code := range opt.MatchingCodes {
			if _, dup := seen[code]; dup {
				continue
			}
			seen[code] = struct{}{}
			d.AffectedCodes = append(d.AffectedCodes, code)
		}
	}
	sort.Strings(d.AffectedCodes)
}

func codeSetKey(codes []string) string {
	sorted := make([]string, len(codes))
	copy(sorted, codes)
	sort.Strings(sorted)
	return strings.Join(sorted, "|")
}
