package chapter

import (
	"testing"

	"github.com/turtacn/tariffwise/internal/classify/rules"
	"github.com/turtacn/tariffwise/internal/config"
	"github.com/turtacn/tariffwise/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/tariffwise/pkg/types/classify"
)

func newTestPredictor(t *testing.T) *Predictor {
	t.Helper()
	rs, err := rules.Load()
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}
	cfg := config.NewDefaultConfig()
	return NewPredictor(rules.NewProvider(rs, logging.NewNopLogger()), cfg.Scoring, logging.NewNopLogger())
}

func TestPredictFunctionalOverride(t *testing.T) {
	p := newTestPredictor(t)

	res := p.Predict("ceramic brake pads")

	if len(res.Predictions) != 1 {
		t.Fatalf("override should yield one prediction, got %d", len(res.Predictions))
	}
	pred := res.Predictions[0]
	if pred.Chapter != "87" || !pred.Override {
		t.Errorf("got chapter %s override=%v, want 87 override=true", pred.Chapter, pred.Override)
	}
	if pred.Confidence != 0.95 {
		t.Errorf("override confidence = %v, want 0.95", pred.Confidence)
	}
	if res.Ambiguous {
		t.Error("override must not be ambiguous")
	}
}

func TestPredictAmbiguousTermUnresolved(t *testing.T) {
	p := newTestPredictor(t)

	res := p.Predict("coffee")

	if !res.Ambiguous {
		t.Fatal("bare 'coffee' must be ambiguous")
	}
	if res.AmbiguousTerm != "coffee" || res.Question == "" {
		t.Errorf("got term=%q question=%q", res.AmbiguousTerm, res.Question)
	}
	chapters := map[string]bool{}
	for _, pred := range res.Predictions {
		chapters[pred.Chapter] = true
	}
	if !chapters["09"] || !chapters["21"] {
		t.Errorf("predictions %v must cover both 09 and 21", chapters)
	}
}

func TestPredictIndicatorResolvesAmbiguity(t *testing.T) {
	p := newTestPredictor(t)

	res := p.Predict("instant coffee 200g jar")

	if res.Ambiguous {
		t.Fatal("'instant coffee' should be resolved by context")
	}
	if len(res.Predictions) == 0 || res.Predictions[0].Chapter != "21" {
		t.Fatalf("top prediction = %+v, want chapter 21", res.Predictions)
	}
}

func TestPredictSteelFasteners(t *testing.T) {
	p := newTestPredictor(t)

	res := p.Predict("steel nuts and bolts")

	if res.Ambiguous {
		t.Fatal("steel context should resolve 'nuts'")
	}
	if len(res.Predictions) == 0 || res.Predictions[0].Chapter != "73" {
		t.Fatalf("top prediction = %+v, want chapter 73", res.Predictions)
	}
	for _, pred := range res.Predictions {
		if pred.Chapter == "08" {
			t.Error("edible-nuts chapter must not survive steel context")
		}
	}
}

func TestPredictEmptyQuery(t *testing.T) {
	p := newTestPredictor(t)

	res := p.Predict("  ")
	if len(res.Predictions) != 0 || res.Ambiguous {
		t.Errorf("empty query should predict nothing, got %+v", res)
	}
}

func TestPredictConfidenceNormalized(t *testing.T) {
	p := newTestPredictor(t)

	res := p.Predict("knitted cotton sweater")
	if len(res.Predictions) == 0 {
		t.Fatal("expected predictions")
	}
	top := res.Predictions[0].Confidence
	if top > 0.99 || top <= 0 {
		t.Errorf("top confidence %v outside (0, 0.99]", top)
	}
	for i := 1; i < len(res.Predictions); i++ {
		if res.Predictions[i].Confidence > res.Predictions[i-1].Confidence {
			t.Errorf("predictions not sorted by confidence at %d", i)
		}
	}
}

func TestBoostOverrideDominates(t *testing.T) {
	p := newTestPredictor(t)
	preds := []classify.ChapterPrediction{{Chapter: "87", Confidence: 0.95, Override: true}}

	if got := p.Boost("87", preds); got != 30 {
		t.Errorf("boost for pinned chapter = %v, want 30", got)
	}
	if got := p.Boost("69", preds); got != -20 {
		t.Errorf("boost for other chapter = %v, want -20", got)
	}
}

func TestBoostDecaysWithRank(t *testing.T) {
	p := newTestPredictor(t)
	preds := []classify.ChapterPrediction{
		{Chapter: "09", Confidence: 0.99},
		{Chapter: "21", Confidence: 0.5},
		{Chapter: "18", Confidence: 0.3},
		{Chapter: "10", Confidence: 0.2},
	}

	first := p.Boost("09", preds)
	second := p.Boost("21", preds)
	if first <= second {
		t.Errorf("rank-0 boost %v must exceed rank-1 boost %v", first, second)
	}
	// Rank 3 has zero base (15 - 5*3) and must not go negative.
	if got := p.Boost("10", preds); got != 0 {
		t.Errorf("rank-3 boost = %v, want 0", got)
	}
	if got := p.Boost("95", preds); got != -5 {
		t.Errorf("unpredicted boost = %v, want -5", got)
	}
}

func TestBoostNoPredictions(t *testing.T) {
	p := newTestPredictor(t)
	if got := p.Boost("09", nil); got != 0 {
		t.Errorf("boost with no predictions = %v, want 0", got)
	}
}
