package engine

import (
	"context"
	"testing"
	"time"

	"github.com/turtacn/tariffwise/internal/classify/candidate"
	"github.com/turtacn/tariffwise/internal/classify/chapter"
	"github.com/turtacn/tariffwise/internal/classify/conversation"
	"github.com/turtacn/tariffwise/internal/classify/differential"
	"github.com/turtacn/tariffwise/internal/classify/question"
	"github.com/turtacn/tariffwise/internal/classify/rules"
	"github.com/turtacn/tariffwise/internal/classify/terms"
	"github.com/turtacn/tariffwise/internal/config"
	"github.com/turtacn/tariffwise/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/tariffwise/pkg/errors"
	"github.com/turtacn/tariffwise/pkg/types/classify"
)

type stubEmbedder struct {
	calls int
	fail  bool
}

func (m *stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	m.calls++
	if m.fail {
		return nil, context.DeadlineExceeded
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type stubVector struct {
	hits []classify.VectorHit
}

func (m *stubVector) Search(_ context.Context, _ []float32, chapters []string, _ int) ([]classify.VectorHit, error) {
	if len(chapters) == 0 {
		return m.hits, nil
	}
	var out []classify.VectorHit
	for _, h := range m.hits {
		if classify.ChapterOf(h.Code) == chapters[0] {
			out = append(out, h)
		}
	}
	return out, nil
}

type stubCatalog struct {
	entries []classify.CatalogEntry
}

func (m *stubCatalog) Lookup(context.Context, []string) ([]classify.CatalogEntry, error) {
	return m.entries, nil
}

func (m *stubCatalog) ScopedSubstring(context.Context, []string, []string, int) ([]classify.CatalogEntry, error) {
	return nil, nil
}

type stubVerifier struct {
	result *classify.VerificationResult
	err    error
	calls  int
}

func (m *stubVerifier) Verify(context.Context, string, []classify.Candidate) (*classify.VerificationResult, error) {
	m.calls++
	return m.result, m.err
}

type testHarness struct {
	svc      *Service
	embedder *stubEmbedder
	vector   *stubVector
	catalog  *stubCatalog
	verifier *stubVerifier
	store    *conversation.MemoryStore
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	rs, err := rules.Load()
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}
	nop := logging.NewNopLogger()
	rp := rules.NewProvider(rs, nop)
	cfg := config.NewDefaultConfig()

	h := &testHarness{
		embedder: &stubEmbedder{},
		vector:   &stubVector{},
		catalog:  &stubCatalog{},
		verifier: &stubVerifier{},
	}
	h.store = conversation.NewMemoryStore(config.ConversationConfig{
		IdleTTL:       time.Minute,
		SweepInterval: time.Minute,
	}, nop)
	t.Cleanup(func() { _ = h.store.Close() })

	analyzer := terms.NewAnalyzer(rp, nop)
	predictor := chapter.NewPredictor(rp, cfg.Scoring, nop)
	generator := candidate.NewGenerator(candidate.GeneratorDeps{
		Embedder: h.embedder,
		Vector:   h.vector,
		Catalog:  h.catalog,
		Logger:   nop,
	}, cfg.Retrieval, cfg.Scoring)
	scorer := candidate.NewScorer(rp, cfg.Scoring, predictor, nop)
	reranker := candidate.NewReranker(rp, cfg.Scoring, nop)
	differ := differential.NewAnalyzer(rp, nop)
	orchestrator := question.NewOrchestrator(rp, differ, cfg.Question, nop)

	h.svc = NewService(Deps{
		Analyzer:  analyzer,
		Predictor: predictor,
		Generator: generator,
		Scorer:    scorer,
		Reranker:  reranker,
		Differ:    differ,
		Questions: orchestrator,
		Store:     h.store,
		Verifier:  h.verifier,
		Logger:    nop,
	}, cfg.Engine)
	return h
}

func TestClassifyHighConfidenceDirect(t *testing.T) {
	h := newHarness(t)
	h.vector.hits = []classify.VectorHit{
		{Code: "0901.21", Description: "coffee, roasted, not decaffeinated", Similarity: 0.93},
		{Code: "0902.10", Description: "green tea", Similarity: 0.40},
	}

	out, err := h.svc.Classify(context.Background(), "roasted arabica coffee")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if out.Type != classify.OutcomeResult {
		t.Fatalf("outcome = %s, want result (%+v)", out.Type, out)
	}
	if out.Result.Code != "0901.21" {
		t.Errorf("code = %s, want 0901.21", out.Result.Code)
	}
	if out.Result.Confidence < 80 {
		t.Errorf("confidence = %v, want high", out.Result.Confidence)
	}
}

func TestClassifyAmbiguousAsksBeforeSearch(t *testing.T) {
	h := newHarness(t)

	out, err := h.svc.Classify(context.Background(), "coffee")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if out.Type != classify.OutcomeQuestion {
		t.Fatalf("outcome = %s, want question", out.Type)
	}
	if h.embedder.calls != 0 {
		t.Error("search ran before the ambiguity question was answered")
	}
	if out.ConversationID == "" || out.Question == nil {
		t.Fatalf("incomplete question outcome: %+v", out)
	}

	chapters := map[string]bool{}
	for _, opt := range out.Question.Differential.Options {
		chapters[opt.Value] = true
	}
	if !chapters["09"] || !chapters["21"] {
		t.Errorf("disambiguation options %v must offer chapters 09 and 21", chapters)
	}
}

func TestAnswerChapterScopeResumesScoped(t *testing.T) {
	h := newHarness(t)
	h.vector.hits = []classify.VectorHit{
		{Code: "2101.11", Description: "instant coffee", Similarity: 0.91},
		{Code: "0901.21", Description: "coffee, roasted", Similarity: 0.90},
	}

	out, err := h.svc.Classify(context.Background(), "coffee")
	if err != nil || out.Type != classify.OutcomeQuestion {
		t.Fatalf("setup: %v %+v", err, out)
	}

	final, err := h.svc.AnswerQuestion(context.Background(), out.ConversationID, out.Question.ID, "21")
	if err != nil {
		t.Fatalf("AnswerQuestion: %v", err)
	}
	if final.Type != classify.OutcomeResult {
		t.Fatalf("outcome = %s, want result (%+v)", final.Type, final)
	}
	if classify.ChapterOf(final.Result.Code) != "21" {
		t.Errorf("code = %s, want chapter 21", final.Result.Code)
	}
}

func TestClassifyNoCandidates(t *testing.T) {
	h := newHarness(t)

	out, err := h.svc.Classify(context.Background(), "roasted coffee")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if out.Type != classify.OutcomeNeedMoreInfo {
		t.Fatalf("outcome = %s, want need-more-info", out.Type)
	}
	if out.Message == "" {
		t.Error("need-more-info outcome must carry a message")
	}
}

func TestClassifyMediumConfidenceVerified(t *testing.T) {
	h := newHarness(t)
	h.vector.hits = []classify.VectorHit{
		{Code: "0901.21", Description: "coffee, roasted", Similarity: 0.72},
		{Code: "2101.12", Description: "preparations with a basis of coffee", Similarity: 0.70},
	}
	h.verifier.result = &classify.VerificationResult{
		Code: "0901.21", Confidence: 0.88, Reasoning: "roasted wins",
	}

	out, err := h.svc.Classify(context.Background(), "roasted coffee")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if out.Type != classify.OutcomeResult {
		t.Fatalf("outcome = %s, want result (%+v)", out.Type, out)
	}
	if out.Result.Code != "0901.21" || out.Result.Confidence != 88 {
		t.Errorf("result = %+v, want verified 0901.21 at 88", out.Result)
	}
	if h.verifier.calls == 0 {
		t.Error("verifier was never consulted")
	}
}

func TestClassifyLowVerifierConfidenceAsksQuestion(t *testing.T) {
	h := newHarness(t)
	h.vector.hits = []classify.VectorHit{
		{Code: "9401.61", Description: "seats with wooden frames", Similarity: 0.72},
		{Code: "9401.71", Description: "seats with metal frames, of steel", Similarity: 0.71},
		{Code: "9401.80", Description: "seats of plastic", Similarity: 0.70},
	}
	h.verifier.result = &classify.VerificationResult{Code: "9401.61", Confidence: 0.4}

	out, err := h.svc.Classify(context.Background(), "chair")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if out.Type != classify.OutcomeQuestion {
		t.Fatalf("outcome = %s, want question (%+v)", out.Type, out)
	}
}

func TestAnswerNarrowsToSingleCandidate(t *testing.T) {
	h := newHarness(t)
	h.vector.hits = []classify.VectorHit{
		{Code: "9401.61", Description: "seats with wooden frames", Similarity: 0.72},
		{Code: "9401.71", Description: "seats with metal frames, of steel", Similarity: 0.71},
		{Code: "9401.80", Description: "seats of plastic", Similarity: 0.70},
	}
	h.verifier.result = &classify.VerificationResult{Code: "", Confidence: 0}

	out, err := h.svc.Classify(context.Background(), "chair")
	if err != nil || out.Type != classify.OutcomeQuestion {
		t.Fatalf("setup: %v %+v", err, out)
	}

	// Answer the material question with an option that selects one code.
	var value string
	for _, opt := range out.Question.Differential.Options {
		if len(opt.MatchingCodes) == 1 {
			value = opt.Value
			break
		}
	}
	if value == "" {
		t.Fatalf("no single-code option in %+v", out.Question.Differential.Options)
	}

	final, err := h.svc.AnswerQuestion(context.Background(), out.ConversationID, out.Question.ID, value)
	if err != nil {
		t.Fatalf("AnswerQuestion: %v", err)
	}
	if final.Type != classify.OutcomeResult {
		t.Fatalf("outcome = %s, want result (%+v)", final.Type, final)
	}
	if final.Result.Confidence < 95 {
		t.Errorf("single-candidate confidence = %v, want >= 95", final.Result.Confidence)
	}
}

func TestAnswerUnmatchedNeverEliminates(t *testing.T) {
	h := newHarness(t)
	h.vector.hits = []classify.VectorHit{
		{Code: "9401.61", Description: "seats with wooden frames", Similarity: 0.72},
		{Code: "9401.71", Description: "seats with metal frames, of steel", Similarity: 0.71},
		{Code: "9401.80", Description: "seats of plastic", Similarity: 0.70},
	}

	out, err := h.svc.Classify(context.Background(), "chair")
	if err != nil || out.Type != classify.OutcomeQuestion {
		t.Fatalf("setup: %v %+v", err, out)
	}
	before, err := h.store.Get(context.Background(), out.ConversationID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	next, err := h.svc.AnswerQuestion(context.Background(), out.ConversationID, out.Question.ID, "something else entirely")
	if err != nil {
		t.Fatalf("AnswerQuestion: %v", err)
	}

	if next.Type == classify.OutcomeQuestion {
		after, err := h.store.Get(context.Background(), out.ConversationID)
		if err != nil {
			t.Fatalf("Get after answer: %v", err)
		}
		if len(after.NarrowedCandidates) != len(before.NarrowedCandidates) {
			t.Errorf("unmatched answer eliminated candidates: %d -> %d",
				len(before.NarrowedCandidates), len(after.NarrowedCandidates))
		}
	} else if next.Type == classify.OutcomeNeedMoreInfo {
		t.Errorf("unmatched answer must not dead-end the conversation")
	}
}

func TestAnswerUnknownQuestion(t *testing.T) {
	h := newHarness(t)
	h.vector.hits = []classify.VectorHit{
		{Code: "9401.61", Description: "seats with wooden frames", Similarity: 0.72},
		{Code: "9401.71", Description: "seats with metal frames, of steel", Similarity: 0.71},
	}

	out, err := h.svc.Classify(context.Background(), "chair")
	if err != nil || out.Type != classify.OutcomeQuestion {
		t.Fatalf("setup: %v %+v", err, out)
	}

	_, err = h.svc.AnswerQuestion(context.Background(), out.ConversationID, "bogus-question-id", "steel")
	if err == nil {
		t.Fatal("expected an error for an unknown question id")
	}
}

func TestResetConversation(t *testing.T) {
	h := newHarness(t)
	h.vector.hits = []classify.VectorHit{
		{Code: "9401.61", Description: "seats with wooden frames", Similarity: 0.72},
		{Code: "9401.71", Description: "seats with metal frames, of steel", Similarity: 0.71},
	}

	out, err := h.svc.Classify(context.Background(), "chair")
	if err != nil || out.Type != classify.OutcomeQuestion {
		t.Fatalf("setup: %v %+v", err, out)
	}

	if err := h.svc.ResetConversation(context.Background(), out.ConversationID); err != nil {
		t.Fatalf("ResetConversation: %v", err)
	}
	_, err = h.svc.AnswerQuestion(context.Background(), out.ConversationID, out.Question.ID, "steel")
	if !apperrors.IsCode(err, apperrors.ErrCodeConversationNotFound) {
		t.Errorf("answer after reset: err = %v, want conversation-not-found", err)
	}

	// Resetting something already gone is not an error.
	if err := h.svc.ResetConversation(context.Background(), "never-existed"); err != nil {
		t.Errorf("reset of unknown conversation: %v", err)
	}
}

func TestClassifyEmptyQuery(t *testing.T) {
	h := newHarness(t)
	if _, err := h.svc.Classify(context.Background(), "   "); err == nil {
		t.Fatal("expected validation error for empty query")
	}
}
