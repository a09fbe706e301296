// Package question turns differentials into clarifying questions and plans
// which of them to ask in which round. It is a state machine over rounds:
// critical questions first, then important, then only high-impact
// clarifications, with inter-question ordering resolved through the category
// dependency graph.
package question

import (
	"fmt"
	"strings"

	"github.com/turtacn/tariffwise/internal/classify/differential"
	"github.com/turtacn/tariffwise/internal/classify/rules"
	"github.com/turtacn/tariffwise/internal/config"
	"github.com/turtacn/tariffwise/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/tariffwise/pkg/types/classify"
)

// Orchestrator builds and schedules clarifying questions.
type Orchestrator struct {
	rules    *rules.Provider
	analyzer *differential.Analyzer
	cfg      config.QuestionConfig
	logger   logging.Logger
}

// NewOrchestrator builds a question orchestrator.
func NewOrchestrator(rp *rules.Provider, analyzer *differential.Analyzer, cfg config.QuestionConfig, logger logging.Logger) *Orchestrator {
	return &Orchestrator{rules: rp, analyzer: analyzer, cfg: cfg, logger: logger.Named("question")}
}

// RoundState is what the scheduler knows when picking a round's questions.
type RoundState struct {
	Round            int
	CandidateCount   int
	Confidence       float64
	Query            string
	AnsweredFeatures map[string]bool
}

// Build converts differentials into questions. Impact scales the
// differential's importance by how much of the candidate set it can touch.
func (o *Orchestrator) Build(diffs []classify.Differential, candidateCount int) []classify.SmartQuestion {
	deps := o.rules.Get().Differentials.Dependencies
	out := make([]classify.SmartQuestion, 0, len(diffs))
	for _, d := range diffs {
		category := o.analyzer.CategoryOf(d)
		impact := d.Importance
		if candidateCount > 0 {
			impact = d.Importance * float64(len(d.AffectedCodes)) / float64(candidateCount)
		}
		out = append(out, classify.SmartQuestion{
			ID:             d.ID,
			Text:           questionText(d),
			Differential:   d,
			Priority:       priorityFor(d.Importance),
			HierarchyLevel: o.analyzer.HierarchyLevelOf(d),
			Dependencies:   deps[category],
			SkipConditions: []classify.SkipCondition{
				classify.SkipIfAnswered,
				classify.SkipIfInDescription,
				classify.SkipIfFewCandidates,
				classify.SkipIfHighConfidence,
			},
			ImpactScore: impact,
		})
	}
	return out
}

// SelectForRound picks the questions to ask this round and returns the
// leftover for later rounds. Repeatedly feeding the leftover back in reaches
// an empty set in at most len(questions) rounds.
func (o *Orchestrator) SelectForRound(questions []classify.SmartQuestion, st RoundState) (selected, next []classify.SmartQuestion) {
	eligible := make([]classify.SmartQuestion, 0, len(questions))
	for _, q := range questions {
		if o.skip(q, st) {
			continue
		}
		eligible = append(eligible, q)
	}
	eligible = o.orderByDependencies(eligible)

	roundCap := o.cfg.PerRoundCap
	take := func(q classify.SmartQuestion) bool {
		switch {
		case st.Round <= 1:
			return q.Priority == classify.PriorityCritical ||
				(q.Priority == classify.PriorityImportant && len(selected) < roundCap)
		case st.Round == 2:
			return q.Priority == classify.PriorityImportant ||
				q.Priority == classify.PriorityClarifying
		default:
			return q.Priority == classify.PriorityClarifying &&
				q.ImpactScore >= o.cfg.HighImpactThreshold
		}
	}
	for _, q := range eligible {
		if len(selected) >= roundCap && q.Priority != classify.PriorityCritical {
			next = append(next, q)
			continue
		}
		if take(q) {
			selected = append(selected, q)
		} else if st.Round <= 2 {
			// Later rounds get another chance at it.
			next = append(next, q)
		}
	}

	o.logger.Debug("round planned",
		logging.Int("round", st.Round),
		logging.Int("selected", len(selected)),
		logging.Int("deferred", len(next)))
	return selected, next
}

// ReadyToClassify reports whether questioning can stop: nothing left to ask,
// a single survivor, high confidence with no critical question outstanding,
// or a near-final shortlist with nothing critical or important outstanding.
func (o *Orchestrator) ReadyToClassify(pending []classify.SmartQuestion, candidateCount int, confidence float64) bool {
	if len(pending) == 0 || candidateCount == 1 {
		return true
	}
	hasCritical := false
	hasImportant := false
	for _, q := range pending {
		switch q.Priority {
		case classify.PriorityCritical:
			hasCritical = true
		case classify.PriorityImportant:
			hasImportant = true
		}
	}
	if confidence >= o.cfg.HighConfidenceCutoff && !hasCritical {
		return true
	}
	if candidateCount <= o.cfg.FewCandidatesCutoff && !hasCritical && !hasImportant {
		return true
	}
	return false
}

func (o *Orchestrator) skip(q classify.SmartQuestion, st RoundState) bool {
	for _, cond := range q.SkipConditions {
		switch cond {
		case classify.SkipIfAnswered:
			if st.AnsweredFeatures[q.Differential.Feature] {
				return true
			}
		case classify.SkipIfInDescription:
			if answeredByQuery(q, st.Query) {
				return true
			}
		case classify.SkipIfFewCandidates:
			if st.CandidateCount > 0 && st.CandidateCount <= o.cfg.FewCandidatesCutoff &&
				q.Priority != classify.PriorityCritical {
				return true
			}
		case classify.SkipIfHighConfidence:
			if st.Confidence >= o.cfg.HighConfidenceCutoff &&
				q.Priority != classify.PriorityCritical {
				return true
			}
		}
	}
	return false
}

// orderByDependencies resolves the category dependency graph iteratively: a
// question is emitted once no still-pending question covers one of its
// dependency categories. Cycles give up after a bounded number of passes and
// keep the remaining questions in their incoming order.
func (o *Orchestrator) orderByDependencies(questions []classify.SmartQuestion) []classify.SmartQuestion {
	if len(questions) < 2 {
		return questions
	}
	pendingCats := map[string]int{}
	for _, q := range questions {
		pendingCats[o.analyzer.CategoryOf(q.Differential)]++
	}

	ordered := make([]classify.SmartQuestion, 0, len(questions))
	remaining := questions
	for pass := 0; pass < o.cfg.MaxDependencyPasses && len(remaining) > 0; pass++ {
		var deferred []classify.SmartQuestion
		moved := false
		for _, q := range remaining {
			blocked := false
			for _, dep := range q.Dependencies {
				if pendingCats[dep] > 0 {
					blocked = true
					break
				}
			}
			if blocked {
				deferred = append(deferred, q)
				continue
			}
			ordered = append(ordered, q)
			pendingCats[o.analyzer.CategoryOf(q.Differential)]--
			moved = true
		}
		remaining = deferred
		if !moved {
			break
		}
	}
	// Unresolvable cycle: stable order, no reordering games.
	return append(ordered, remaining...)
}

func priorityFor(importance float64) classify.QuestionPriority {
	switch {
	case importance >= 75:
		return classify.PriorityCritical
	case importance >= 60:
		return classify.PriorityImportant
	case importance >= 40:
		return classify.PriorityClarifying
	}
	return classify.PriorityOptional
}

// answeredByQuery mirrors the analyzer's query-resolution rule at selection
// time, for questions generated before the user amended the query.
func answeredByQuery(q classify.SmartQuestion, query string) bool {
	lq := strings.ToLower(query)
	matches := 0
	for _, opt := range q.Differential.Options {
		if opt.Value != "" && strings.Contains(lq, strings.ToLower(opt.Value)) {
			matches++
		}
	}
	return matches == 1
}

func questionText(d classify.Differential) string {
	switch d.Type {
	case differential.TypePrice:
		return "What is the unit value of the goods?"
	case differential.TypeNumericSpec:
		return fmt.Sprintf("What is the %s of the goods?", strings.TrimPrefix(d.Feature, "specification "))
	case differential.TypeSibling:
		return "Which of these best describes the goods?"
	}
	feature := strings.ReplaceAll(d.Feature, "_", " ")
	return fmt.Sprintf("What is the %s of the goods?", feature)
}
