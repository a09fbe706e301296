package candidate

import (
	"sort"
	"strings"

	"github.com/turtacn/tariffwise/internal/classify/rules"
	"github.com/turtacn/tariffwise/internal/config"
	"github.com/turtacn/tariffwise/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/tariffwise/pkg/types/classify"
)

// Reranker pushes finished-good chapters above raw-material chapters when
// the query names a finished product: "wooden chair" is furniture, not sawn
// wood.
type Reranker struct {
	rules   *rules.Provider
	scoring config.ScoringConfig
	logger  logging.Logger
}

// NewReranker builds a reranker.
func NewReranker(rp *rules.Provider, scoring config.ScoringConfig, logger logging.Logger) *Reranker {
	return &Reranker{rules: rp, scoring: scoring, logger: logger.Named("reranker")}
}

// Rerank returns a new slice with finished-product adjustments applied and
// re-sorted by score. Only the single highest-priority matched rule applies.
func (r *Reranker) Rerank(cands []classify.Candidate, query string) []classify.Candidate {
	out := make([]classify.Candidate, len(cands))
	copy(out, cands)

	rule, ok := r.matchRule(query)
	if !ok {
		return out
	}
	targets := toSet(rule.Targets)
	raw := toSet(rule.RawMaterials)
	weight := float64(rule.Priority) / 10.0

	for i := range out {
		ch := out[i].Chapter()
		switch {
		case targets[ch]:
			out[i].Score += rule.Boost * weight
		case raw[ch]:
			out[i].Score -= rule.Penalty * weight
		}
		out[i].Score = clamp(out[i].Score, r.scoring.MinScore, r.scoring.MaxScore)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })

	r.logger.Debug("finished-product rerank applied",
		logging.String("keyword", rule.Keyword),
		logging.Int("priority", rule.Priority))
	return out
}

// matchRule scans the finished-product table, which is sorted by priority at
// load time, and picks the first rule whose keyword occurs in the query on a
// word boundary.
func (r *Reranker) matchRule(query string) (rules.FinishedProductRule, bool) {
	rs := r.rules.Get()
	q := " " + strings.ToLower(query) + " "
	for _, fp := range rs.Rerank.FinishedProducts {
		if matchesWord(q, fp.Keyword) {
			return fp, true
		}
	}
	return rules.FinishedProductRule{}, false
}

// matchesWord expects q padded with spaces; keywords match at word
// boundaries, tolerating a plural "s".
func matchesWord(q, kw string) bool {
	for _, suffix := range []string{" ", "s "} {
		if strings.Contains(q, " "+kw+suffix) {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func toSet(xs []string) map[string]bool {
	set := make(map[string]bool, len(xs))
	for _, x := range xs {
		set[x] = true
	}
	return set
}
