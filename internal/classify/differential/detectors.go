package differential

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/turtacn/tariffwise/internal/classify/rules"
	"github.com/turtacn/tariffwise/pkg/types/classify"
)

// Detector importance for differentials that do not come from the rule
// table. Sibling varieties distinguish identity and rank highest.
const (
	siblingImportance = 75.0
	priceImportance   = 60.0
	numericImportance = 55.0
)

var (
	// "exceeding $2.13/kg", "not exceeding USD 1,000"
	priceRe = regexp.MustCompile(`(not\s+)?exceeding\s+(?:\$|usd\s*|eur\s*)([\d,.]+)`)

	// "exceeding 80 mm", "of a thickness of 4.75 mm or more"
	numericRe = regexp.MustCompile(`([\d.]+)\s*(mm|cm|m|kg|g|l|ml|%|v|w|kw|cc|hp)\b`)
)

// detectPrice groups candidates that split on a monetary threshold in their
// descriptions ("not exceeding $X" vs "exceeding $X").
func (a *Analyzer) detectPrice(cands []classify.Candidate) []classify.Differential {
	type side struct{ below, above []string }
	byThreshold := map[string]*side{}
	for _, c := range cands {
		for _, m := range priceRe.FindAllStringSubmatch(strings.ToLower(c.Description), -1) {
			threshold := m[2]
			s := byThreshold[threshold]
			if s == nil {
				s = &side{}
				byThreshold[threshold] = s
			}
			if m[1] != "" {
				s.below = appendUnique(s.below, c.Code)
			} else {
				s.above = appendUnique(s.above, c.Code)
			}
		}
	}

	thresholds := make([]string, 0, len(byThreshold))
	for t := range byThreshold {
		thresholds = append(thresholds, t)
	}
	sort.Strings(thresholds)

	var out []classify.Differential
	for _, t := range thresholds {
		s := byThreshold[t]
		if len(s.below) == 0 || len(s.above) == 0 {
			continue
		}
		out = append(out, classify.Differential{
			Feature:     "price",
			Type:        TypePrice,
			Distinction: classify.DistinctionNumeric,
			Importance:  priceImportance,
			Options: []classify.DifferentialOption{
				{Value: "below", DisplayText: fmt.Sprintf("Value not exceeding %s", t), MatchingCodes: s.below},
				{Value: "above", DisplayText: fmt.Sprintf("Value exceeding %s", t), MatchingCodes: s.above},
			},
		})
	}
	return out
}

// detectNumericSpec splits candidates on a measured dimension appearing with
// different values across descriptions, e.g. sheet thickness.
func (a *Analyzer) detectNumericSpec(cands []classify.Candidate) []classify.Differential {
	type hit struct {
		value float64
		codes []string
	}
	byUnit := map[string]map[float64][]string{}
	for _, c := range cands {
		for _, m := range numericRe.FindAllStringSubmatch(strings.ToLower(c.Description), -1) {
			v, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				continue
			}
			unit := m[2]
			if byUnit[unit] == nil {
				byUnit[unit] = map[float64][]string{}
			}
			byUnit[unit][v] = appendUnique(byUnit[unit][v], c.Code)
		}
	}

	units := make([]string, 0, len(byUnit))
	for u := range byUnit {
		units = append(units, u)
	}
	sort.Strings(units)

	var out []classify.Differential
	for _, unit := range units {
		values := byUnit[unit]
		if len(values) < 2 {
			continue
		}
		var hits []hit
		for v, codes := range values {
			hits = append(hits, hit{value: v, codes: codes})
		}
		sort.Slice(hits, func(i, j int) bool { return hits[i].value < hits[j].value })

		opts := make([]classify.DifferentialOption, 0, len(hits))
		for _, h := range hits {
			opts = append(opts, classify.DifferentialOption{
				Value:         strconv.FormatFloat(h.value, 'f', -1, 64),
				DisplayText:   fmt.Sprintf("%s %s", strconv.FormatFloat(h.value, 'f', -1, 64), unit),
				MatchingCodes: h.codes,
			})
		}
		out = append(out, classify.Differential{
			Feature:     "specification " + unit,
			Type:        TypeNumericSpec,
			Distinction: classify.DistinctionNumeric,
			Importance:  numericImportance,
			Options:     opts,
		})
	}
	return out
}

// detectSiblingVarieties finds candidates sharing a parent code where each
// child's description is itself the distinguishing label (named varieties).
func (a *Analyzer) detectSiblingVarieties(cands []classify.Candidate) []classify.Differential {
	byParent := map[string][]classify.Candidate{}
	for _, c := range cands {
		parent := classify.ParentOf(c.Code)
		if parent == "" {
			continue
		}
		byParent[parent] = append(byParent[parent], c)
	}

	parents := make([]string, 0, len(byParent))
	for p := range byParent {
		parents = append(parents, p)
	}
	sort.Strings(parents)

	var out []classify.Differential
	for _, parent := range parents {
		group := byParent[parent]
		if len(group) < 2 {
			continue
		}
		opts := make([]classify.DifferentialOption, 0, len(group))
		seen := map[string]bool{}
		for _, c := range group {
			label := varietyLabel(c.Description)
			if label == "" || seen[label] {
				continue
			}
			seen[label] = true
			opts = append(opts, classify.DifferentialOption{
				Value:         label,
				DisplayText:   c.Description,
				MatchingCodes: []string{c.Code},
			})
		}
		if len(opts) < 2 {
			continue
		}
		out = append(out, classify.Differential{
			Feature:     "variety under " + parent,
			Type:        TypeSibling,
			Distinction: classify.DistinctionMulti,
			Importance:  siblingImportance,
			Options:     opts,
		})
	}
	return out
}

// detectCategoryTerms applies the rule-table feature catalog: material,
// processing state, intended use and the rest.
func (a *Analyzer) detectCategoryTerms(cands []classify.Candidate) []classify.Differential {
	rs := a.rules.Get()
	var out []classify.Differential
	for _, fr := range rs.Differentials.Features {
		opts := make([]classify.DifferentialOption, 0, len(fr.Groups))
		for _, grp := range fr.Groups {
			var codes []string
			for _, c := range cands {
				if candidateMatchesGroup(c, grp) {
					codes = appendUnique(codes, c.Code)
				}
			}
			if len(codes) == 0 {
				continue
			}
			opts = append(opts, classify.DifferentialOption{
				Value:         grp.Value,
				DisplayText:   grp.Display,
				MatchingCodes: codes,
			})
		}
		if len(opts) < 2 {
			continue
		}
		distinction := classify.DistinctionMulti
		if len(opts) == 2 {
			distinction = classify.DistinctionBinary
		}
		out = append(out, classify.Differential{
			Feature:     fr.Feature,
			Type:        TypeCategory,
			Distinction: distinction,
			Importance:  float64(fr.Importance),
			Options:     opts,
		})
	}
	return out
}

func candidateMatchesGroup(c classify.Candidate, grp rules.TermGroup) bool {
	text := strings.ToLower(c.Description + " " + strings.Join(c.Keywords, " "))
	for _, term := range grp.Terms {
		if strings.Contains(text, strings.ToLower(term)) {
			return true
		}
	}
	return false
}

// varietyLabel extracts the leading clause of a sibling description as its
// answer label.
func varietyLabel(desc string) string {
	desc = strings.ToLower(strings.TrimSpace(desc))
	if i := strings.IndexAny(desc, ",;("); i > 0 {
		desc = desc[:i]
	}
	desc = strings.TrimSpace(desc)
	if len(desc) > 60 {
		return ""
	}
	return desc
}

func appendUnique(xs []string, x string) []string {
	for _, e := range xs {
		if e == x {
			return xs
		}
	}
	return append(xs, x)
}
