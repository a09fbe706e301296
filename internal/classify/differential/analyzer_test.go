package differential

import (
	"sort"
	"strings"
	"testing"

	"github.com/turtacn/tariffwise/internal/classify/rules"
	"github.com/turtacn/tariffwise/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/tariffwise/pkg/types/classify"
)

func newTestAnalyzer(t *testing.T) *Analyzer {
	t.Helper()
	rs, err := rules.Load()
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}
	return NewAnalyzer(rules.NewProvider(rs, logging.NewNopLogger()), logging.NewNopLogger())
}

func TestAnalyzeCategoryTerms(t *testing.T) {
	a := newTestAnalyzer(t)

	cands := []classify.Candidate{
		{Code: "9401.61", Description: "seats with wooden frames"},
		{Code: "9401.71", Description: "seats with metal frames, of steel"},
		{Code: "9401.80", Description: "seats of plastic"},
	}

	diffs := a.Analyze(cands, "chair")

	var material *classify.Differential
	for i := range diffs {
		if diffs[i].Feature == "material" {
			material = &diffs[i]
		}
	}
	if material == nil {
		t.Fatalf("no material differential in %+v", diffs)
	}
	if len(material.Options) < 3 {
		t.Errorf("material options = %d, want wood/steel/plastic", len(material.Options))
	}
}

func TestAnalyzeSoundness(t *testing.T) {
	a := newTestAnalyzer(t)

	cands := []classify.Candidate{
		{Code: "0901.11", Description: "coffee, not roasted, not decaffeinated"},
		{Code: "0901.21", Description: "coffee, roasted, not decaffeinated"},
		{Code: "0901.22", Description: "coffee, roasted, decaffeinated"},
		{Code: "2101.11", Description: "instant coffee, of a thickness of 2 mm"},
	}

	for _, d := range a.Analyze(cands, "coffee") {
		union := map[string]bool{}
		seenSets := map[string]bool{}
		for _, opt := range d.Options {
			key := strings.Join(sortedCopy(opt.MatchingCodes), "|")
			if len(opt.MatchingCodes) > 0 && seenSets[key] {
				t.Errorf("differential %q has two options with identical code sets", d.Feature)
			}
			seenSets[key] = true
			for _, code := range opt.MatchingCodes {
				union[code] = true
			}
		}
		if len(union) != len(d.AffectedCodes) {
			t.Errorf("differential %q: affected codes %v != option union %v", d.Feature, d.AffectedCodes, union)
		}
		for _, code := range d.AffectedCodes {
			if !union[code] {
				t.Errorf("differential %q: affected code %s not in any option", d.Feature, code)
			}
		}
		if d.ID == "" {
			t.Errorf("differential %q: missing id", d.Feature)
		}
	}
}

func TestAnalyzeSiblingVarieties(t *testing.T) {
	a := newTestAnalyzer(t)

	cands := []classify.Candidate{
		{Code: "0808.10", Description: "apples, fresh"},
		{Code: "0808.30", Description: "pears, fresh"},
		{Code: "0808.40", Description: "quinces, fresh"},
	}

	diffs := a.Analyze(cands, "fresh fruit")

	var sibling *classify.Differential
	for i := range diffs {
		if diffs[i].Type == TypeSibling {
			sibling = &diffs[i]
		}
	}
	if sibling == nil {
		t.Fatalf("no sibling differential in %+v", diffs)
	}
	if len(sibling.Options) != 3 {
		t.Errorf("sibling options = %d, want 3", len(sibling.Options))
	}
	if sibling.Importance != siblingImportance {
		t.Errorf("importance = %v, want %v", sibling.Importance, siblingImportance)
	}
}

func TestAnalyzeQueryResolvedFilter(t *testing.T) {
	a := newTestAnalyzer(t)

	cands := []classify.Candidate{
		{Code: "0901.11", Description: "coffee, raw, not roasted"},
		{Code: "0901.21", Description: "coffee, roasted"},
	}

	// "roasted" already names exactly one processing-state option.
	for _, d := range a.Analyze(cands, "roasted coffee") {
		if d.Feature == "processing_state" {
			t.Errorf("query-resolved differential survived: %+v", d)
		}
	}
}

func TestAnalyzeFewCandidates(t *testing.T) {
	a := newTestAnalyzer(t)

	if got := a.Analyze([]classify.Candidate{{Code: "0901.11"}}, "coffee"); got != nil {
		t.Errorf("single candidate produced differentials: %+v", got)
	}
	if got := a.Analyze(nil, "coffee"); got != nil {
		t.Errorf("nil candidates produced differentials: %+v", got)
	}
}

func TestAnalyzeSortedByImportance(t *testing.T) {
	a := newTestAnalyzer(t)

	cands := []classify.Candidate{
		{Code: "0808.10", Description: "apples, fresh"},
		{Code: "0808.30", Description: "pears, dried"},
		{Code: "7318.15", Description: "bolts of steel"},
		{Code: "3926.90", Description: "articles of plastic"},
	}

	diffs := a.Analyze(cands, "goods")
	for i := 1; i < len(diffs); i++ {
		if diffs[i].Importance > diffs[i-1].Importance {
			t.Fatalf("differentials not sorted by importance: %v then %v",
				diffs[i-1].Importance, diffs[i].Importance)
		}
	}
}

func TestCategoryOf(t *testing.T) {
	a := newTestAnalyzer(t)

	if got := a.CategoryOf(classify.Differential{Type: TypeSibling}); got != "identity" {
		t.Errorf("sibling category = %q, want identity", got)
	}
	if got := a.CategoryOf(classify.Differential{Type: TypePrice}); got != "specification" {
		t.Errorf("price category = %q, want specification", got)
	}
	if got := a.CategoryOf(classify.Differential{Type: TypeCategory, Feature: "processing_state"}); got != "state" {
		t.Errorf("processing_state category = %q, want state", got)
	}
}

func sortedCopy(xs []string) []string {
	out := make([]string, len(xs))
	copy(out, xs)
	sort.Strings(out)
	return out
}
