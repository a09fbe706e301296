package candidate

import (
	"reflect"
	"testing"

	"github.com/turtacn/tariffwise/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/tariffwise/pkg/types/classify"
)

func newTestScorer(t *testing.T) (*Scorer, func(query string) (classify.TermAnalysis, []classify.ChapterPrediction)) {
	t.Helper()
	rp, an, pr, cfg := testPipeline(t)
	s := NewScorer(rp, cfg.Scoring, pr, logging.NewNopLogger())
	prep := func(query string) (classify.TermAnalysis, []classify.ChapterPrediction) {
		return an.Analyze(query), pr.Predict(query).Predictions
	}
	return s, prep
}

func TestScoreConjunctiveMonotonicity(t *testing.T) {
	s, prep := newTestScorer(t)
	query := "steel nuts and bolts"
	analysis, preds := prep(query)

	cands := []classify.Candidate{
		{Code: "7318.15", Description: "bolts and screws, of iron or steel"},
		{Code: "7318.16", Description: "nuts, of iron or steel"},
		{Code: "7318.00", Description: "steel nuts, bolts and washers"},
	}

	scored := s.Score(cands, query, analysis, preds)
	if scored[0].Code != "7318.00" {
		t.Fatalf("top candidate = %s, want the one matching all terms (7318.00)", scored[0].Code)
	}
	byCode := map[string]float64{}
	for _, c := range scored {
		byCode[c.Code] = c.Score
	}
	if byCode["7318.00"] <= byCode["7318.15"] || byCode["7318.00"] <= byCode["7318.16"] {
		t.Errorf("all-terms candidate must strictly outscore partial matches: %v", byCode)
	}
}

func TestScoreIdempotent(t *testing.T) {
	s, prep := newTestScorer(t)
	query := "roasted coffee beans"
	analysis, preds := prep(query)

	cands := []classify.Candidate{
		{Code: "0901.21", Description: "coffee, roasted", Similarity: 0.9, Score: 10, Keywords: []string{"coffee", "roasted"}},
		{Code: "0901.11", Description: "coffee, not roasted", Similarity: 0.7, Score: 5},
	}
	orig := make([]classify.Candidate, len(cands))
	copy(orig, cands)

	first := s.Score(cands, query, analysis, preds)
	second := s.Score(cands, query, analysis, preds)

	if !reflect.DeepEqual(first, second) {
		t.Error("scoring the same input twice gave different results")
	}
	if !reflect.DeepEqual(cands, orig) {
		t.Error("Score mutated its input slice")
	}
}

func TestScoreChapterBoostFavorsPredictedChapter(t *testing.T) {
	s, prep := newTestScorer(t)
	query := "instant coffee"
	analysis, preds := prep(query)

	cands := []classify.Candidate{
		{Code: "2101.11", Description: "extracts, essences and concentrates of coffee, instant coffee", Similarity: 0.6},
		{Code: "0901.21", Description: "coffee, roasted, instant brewing", Similarity: 0.6},
	}

	scored := s.Score(cands, query, analysis, preds)
	if scored[0].Chapter() != "21" {
		t.Fatalf("top chapter = %s, want 21 (predicted)", scored[0].Chapter())
	}
}

func TestScoreFunctionOverMaterial(t *testing.T) {
	s, prep := newTestScorer(t)
	// Both a function keyword (brake) and a material keyword (steel) present:
	// the raw-material candidate must take the penalty.
	query := "steel brake discs"
	analysis, preds := prep(query)

	cands := []classify.Candidate{
		{Code: "8708.30", Description: "brakes and parts thereof, for motor vehicles", Similarity: 0.5},
		{Code: "7208.10", Description: "flat-rolled products of steel, hot-rolled", Similarity: 0.5},
	}

	scored := s.Score(cands, query, analysis, preds)
	if scored[0].Code != "8708.30" {
		t.Fatalf("top candidate = %s, want the function match 8708.30", scored[0].Code)
	}
}

func TestScoreEmptyInput(t *testing.T) {
	s, prep := newTestScorer(t)
	analysis, preds := prep("coffee")
	if got := s.Score(nil, "coffee", analysis, preds); len(got) != 0 {
		t.Errorf("scoring nil candidates = %v, want empty", got)
	}
}
