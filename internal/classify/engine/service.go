package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/tariffwise/internal/classify/candidate"
	"github.com/turtacn/tariffwise/internal/classify/chapter"
	"github.com/turtacn/tariffwise/internal/classify/conversation"
	"github.com/turtacn/tariffwise/internal/classify/differential"
	"github.com/turtacn/tariffwise/internal/classify/question"
	"github.com/turtacn/tariffwise/internal/classify/terms"
	"github.com/turtacn/tariffwise/internal/config"
	"github.com/turtacn/tariffwise/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/tariffwise/pkg/errors"
	"github.com/turtacn/tariffwise/pkg/types/classify"
)

// Decision paths recorded in events and metrics.
const (
	pathDirect   = "direct"
	pathDominant = "dominant_chapter"
	pathVerified = "verified"
	pathAnswered = "answered"
	pathFallback = "fallback"
)

// chapterScopeType marks the synthetic disambiguation question asked before
// any search when the chapter predictor cannot settle an ambiguous term.
const chapterScopeType = "chapter_scope"

// Deps wires the pipeline stages and collaborators into the engine.
// Events, Audit and Metrics are optional.
type Deps struct {
	Analyzer  *terms.Analyzer
	Predictor *chapter.Predictor
	Generator *candidate.Generator
	Scorer    *candidate.Scorer
	Reranker  *candidate.Reranker
	Differ    *differential.Analyzer
	Questions *question.Orchestrator
	Store     conversation.Store
	Verifier  Verifier
	Events    EventPublisher
	Audit     AuditArchiver
	Metrics   Metrics
	Logger    logging.Logger
}

// Service is the classification decision engine.
type Service struct {
	deps   Deps
	cfg    config.EngineConfig
	logger logging.Logger
}

// NewService builds the engine.
func NewService(deps Deps, cfg config.EngineConfig) *Service {
	return &Service{deps: deps, cfg: cfg, logger: deps.Logger.Named("engine")}
}

// Classify runs one classification request end to end. Every failure path
// terminates in one of the three outcome shapes; an error return means the
// request itself was unusable, not that classification was inconclusive.
func (s *Service) Classify(ctx context.Context, query string) (classify.ClassifyOutcome, error) {
	started := time.Now()
	query = strings.TrimSpace(query)
	if query == "" {
		return classify.ClassifyOutcome{}, apperrors.NewValidationError("query", "must not be empty")
	}

	prediction := s.deps.Predictor.Predict(query)
	if prediction.Ambiguous && prediction.AmbiguousTerm != "" {
		// Genuinely ambiguous input: ask before any search runs.
		outcome, err := s.askChapterScope(ctx, query, prediction)
		s.observe("ambiguous", outcome, started)
		return outcome, err
	}

	outcome, err := s.classifyWithPrediction(ctx, "", query, nil, prediction, 1)
	if err != nil {
		return classify.ClassifyOutcome{}, err
	}
	s.observe("classify", outcome, started)
	return outcome, nil
}

// AnswerQuestion feeds a user's answer back into the conversation loop and
// returns the next outcome. An answer matching no offered option is treated
// as "other": it is recorded but never eliminates candidates.
func (s *Service) AnswerQuestion(ctx context.Context, conversationID, questionID, answer string) (classify.ClassifyOutcome, error) {
	started := time.Now()

	var asked *classify.SmartQuestion
	conv, err := s.deps.Store.Update(ctx, conversationID, func(c *classify.ConversationContext) error {
		for i := range c.PendingQuestions {
			if c.PendingQuestions[i].ID == questionID {
				q := c.PendingQuestions[i]
				asked = &q
				c.PendingQuestions = append(c.PendingQuestions[:i], c.PendingQuestions[i+1:]...)
				break
			}
		}
		if asked == nil {
			return apperrors.New(apperrors.ErrCodeQuestionNotFound, questionID)
		}

		opt, matched := matchOption(asked.Differential, answer)
		answered := classify.AnsweredQuestion{
			QuestionID:  questionID,
			Feature:     asked.Differential.Feature,
			OptionValue: answer,
			AnsweredAt:  time.Now(),
		}
		if matched {
			answered.OptionValue = opt.Value
			answered.MatchedCodes = opt.MatchingCodes
			if asked.Differential.Type != chapterScopeType {
				c.AccumulatedKeywords = appendKeyword(c.AccumulatedKeywords, opt.Value)
				c.NarrowedCandidates = narrow(c.NarrowedCandidates, opt.MatchingCodes)
			}
		}
		c.AnsweredQuestions = append(c.AnsweredQuestions, answered)
		c.Round++
		return nil
	})
	if err != nil {
		return classify.ClassifyOutcome{}, err
	}

	if asked.Differential.Type == chapterScopeType {
		outcome, err := s.resumeAfterChapterAnswer(ctx, conv, answer)
		s.observe("chapter_answer", outcome, started)
		return outcome, err
	}

	outcome, err := s.continueConversation(ctx, conv)
	if err != nil {
		return classify.ClassifyOutcome{}, err
	}
	s.observe("answer", outcome, started)
	return outcome, nil
}

// ResetConversation discards a conversation's pending state. Resetting an
// unknown or already-finished conversation succeeds.
func (s *Service) ResetConversation(ctx context.Context, conversationID string) error {
	return s.deps.Store.Delete(ctx, conversationID)
}

// classifyWithPrediction runs search → analyze for a fixed chapter
// prediction. conversationID is empty for fresh requests and carries over
// when a disambiguation answer restarts the pipeline.
func (s *Service) classifyWithPrediction(ctx context.Context, conversationID, query string, extraKeywords []string, prediction chapter.Result, round int) (classify.ClassifyOutcome, error) {
	searchQuery := query
	if len(extraKeywords) > 0 {
		searchQuery = query + " " + strings.Join(extraKeywords, " ")
	}
	analysis := s.deps.Analyzer.Analyze(searchQuery)

	cands, err := s.deps.Generator.Generate(ctx, searchQuery, analysis, prediction)
	if err != nil {
		s.logger.Warn("retrieval failed", logging.String("query", query), logging.Err(err))
		return needMoreInfo(conversationID, "search is temporarily unavailable, please try again"), nil
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveRetrieval(len(cands))
	}
	if len(cands) == 0 {
		return needMoreInfo(conversationID, "no matching tariff codes found, please describe the goods in more detail"), nil
	}

	cands = s.deps.Scorer.Score(cands, searchQuery, analysis, prediction.Predictions)
	cands = s.deps.Reranker.Rerank(cands, searchQuery)

	return s.decide(ctx, conversationID, query, analysis, cands, round)
}

// decide implements the analyze step over a ranked candidate list.
func (s *Service) decide(ctx context.Context, conversationID, query string, analysis classify.TermAnalysis, cands []classify.Candidate, round int) (classify.ClassifyOutcome, error) {
	top := cands[0]

	// High confidence: strong similarity with a clear gap.
	if top.Similarity >= s.cfg.HighSimilarity &&
		(len(cands) == 1 || top.Similarity-cands[1].Similarity >= s.cfg.HighSimilarityGap) {
		return s.finish(ctx, conversationID, query, cands, similarityConfidence(top.Similarity), pathDirect,
			fmt.Sprintf("strong semantic match (similarity %.2f)", top.Similarity))
	}

	// Dominant chapter: a specific query whose top results overwhelmingly
	// agree on one chapter. A one-word query never takes this shortcut, its
	// shortlist agreeing on a chapter still says nothing about the code.
	if specificQuery(analysis) {
		if ch, ok := dominantChapter(cands, s.cfg.DominantChapterTopN, s.cfg.DominantChapterShare); ok {
			best := firstInChapter(cands, ch)
			return s.finish(ctx, conversationID, query, promoteToFront(cands, best.Code), similarityConfidence(best.Similarity), pathDominant,
				fmt.Sprintf("top results converge on chapter %s", ch))
		}
	}

	// Medium confidence: let the completion service arbitrate.
	if top.Similarity >= s.cfg.MediumSimilarity {
		if outcome, ok := s.tryVerify(ctx, conversationID, query, cands, s.cfg.VerifyMinConfidence); ok {
			return outcome, nil
		}
	}

	return s.askOrFallback(ctx, conversationID, query, cands, round)
}

// askOrFallback generates clarifying questions; when none can be built it
// falls back to verification at reduced confidence, and failing that reports
// need-more-info. Never a silent guess.
func (s *Service) askOrFallback(ctx context.Context, conversationID, query string, cands []classify.Candidate, round int) (classify.ClassifyOutcome, error) {
	shortlist := cands
	if len(shortlist) > s.cfg.ShortlistSize {
		shortlist = shortlist[:s.cfg.ShortlistSize]
	}

	diffs := s.deps.Differ.Analyze(shortlist, query)
	questions := s.deps.Questions.Build(diffs, len(shortlist))
	selected, rest := s.deps.Questions.SelectForRound(questions, question.RoundState{
		Round:          round,
		CandidateCount: len(shortlist),
		Query:          query,
	})

	if len(selected) > 0 {
		conv := &classify.ConversationContext{
			ID:                 conversationID,
			Query:              query,
			NarrowedCandidates: shortlist,
			PendingQuestions:   append(selected[1:], rest...),
			Round:              round,
			CreatedAt:          time.Now(),
			UpdatedAt:          time.Now(),
		}
		first := selected[0]
		conv.PendingQuestions = append([]classify.SmartQuestion{}, conv.PendingQuestions...)
		id, err := s.persistConversation(ctx, conv)
		if err != nil {
			return classify.ClassifyOutcome{}, err
		}
		return classify.ClassifyOutcome{
			Type:           classify.OutcomeQuestion,
			ConversationID: id,
			Question:       &first,
		}, nil
	}

	// No askable question: verification at reduced confidence is the last
	// resort before giving up.
	if outcome, ok := s.tryVerify(ctx, conversationID, query, cands, 0); ok {
		return outcome, nil
	}
	return needMoreInfo(conversationID, "cannot narrow down the classification, please provide more details about the goods"), nil
}

// tryVerify consults the completion service. minConfidence zero means accept
// any parsable suggestion at the fallback confidence.
func (s *Service) tryVerify(ctx context.Context, conversationID, query string, cands []classify.Candidate, minConfidence float64) (classify.ClassifyOutcome, bool) {
	if s.deps.Verifier == nil {
		return classify.ClassifyOutcome{}, false
	}
	res, err := s.deps.Verifier.Verify(ctx, query, cands)
	if err != nil {
		s.logger.Warn("verification failed", logging.String("query", query), logging.Err(err))
		return classify.ClassifyOutcome{}, false
	}
	if res == nil || res.Code == "" || !codeInCandidates(res.Code, cands) {
		return classify.ClassifyOutcome{}, false
	}
	if minConfidence > 0 && res.Confidence < minConfidence {
		return classify.ClassifyOutcome{}, false
	}

	confidence := res.Confidence * 100
	if minConfidence == 0 {
		confidence = s.cfg.FallbackConfidence
	}
	reordered := promoteToFront(cands, res.Code)
	outcome, err := s.finish(ctx, conversationID, query, reordered, confidence, pathVerified, res.Reasoning)
	if err != nil {
		return classify.ClassifyOutcome{}, false
	}
	return outcome, true
}

// continueConversation is the post-answer analyze step: finish when the
// orchestrator says the shortlist is settled, otherwise ask the next
// question.
func (s *Service) continueConversation(ctx context.Context, conv *classify.ConversationContext) (classify.ClassifyOutcome, error) {
	cands := conv.NarrowedCandidates
	if len(cands) == 0 {
		return needMoreInfo(conv.ID, "no candidates match the given answers, please rephrase the description"), nil
	}
	if len(cands) == 1 {
		return s.finish(ctx, conv.ID, conv.Query, cands, s.cfg.SingleCandidateConfidence, pathAnswered,
			"answers narrowed the candidates to a single code")
	}

	confidence := s.shortlistConfidence(cands)
	pending := s.reviseQuestions(conv)
	if s.deps.Questions.ReadyToClassify(pending, len(cands), confidence) {
		return s.finish(ctx, conv.ID, conv.Query, cands, confidence, pathAnswered,
			"answers narrowed the candidates to a confident match")
	}

	next := pending[0]
	_, err := s.deps.Store.Update(ctx, conv.ID, func(c *classify.ConversationContext) error {
		c.PendingQuestions = pending[1:]
		return nil
	})
	if err != nil {
		return classify.ClassifyOutcome{}, err
	}
	return classify.ClassifyOutcome{
		Type:           classify.OutcomeQuestion,
		ConversationID: conv.ID,
		Question:       &next,
	}, nil
}

// reviseQuestions rebuilds the question plan against the narrowed shortlist,
// dropping questions about features the user already answered.
func (s *Service) reviseQuestions(conv *classify.ConversationContext) []classify.SmartQuestion {
	answered := make(map[string]bool, len(conv.AnsweredQuestions))
	for _, a := range conv.AnsweredQuestions {
		answered[a.Feature] = true
	}
	diffs := s.deps.Differ.Analyze(conv.NarrowedCandidates, conv.Query)
	questions := s.deps.Questions.Build(diffs, len(conv.NarrowedCandidates))
	selected, rest := s.deps.Questions.SelectForRound(questions, question.RoundState{
		Round:            conv.Round,
		CandidateCount:   len(conv.NarrowedCandidates),
		Confidence:       s.shortlistConfidence(conv.NarrowedCandidates),
		Query:            conv.Query,
		AnsweredFeatures: answered,
	})
	return append(selected, rest...)
}

// askChapterScope builds the pre-search disambiguation question for an
// ambiguous term and opens a conversation around it.
func (s *Service) askChapterScope(ctx context.Context, query string, prediction chapter.Result) (classify.ClassifyOutcome, error) {
	opts := make([]classify.DifferentialOption, 0, len(prediction.Predictions))
	for _, p := range prediction.Predictions {
		opts = append(opts, classify.DifferentialOption{
			Value:       p.Chapter,
			DisplayText: fmt.Sprintf("Chapter %s: %s", p.Chapter, p.Name),
		})
	}
	text := prediction.Question
	if text == "" {
		text = fmt.Sprintf("%q can mean different things, which fits best?", prediction.AmbiguousTerm)
	}
	q := classify.SmartQuestion{
		ID:   uuid.NewString(),
		Text: text,
		Differential: classify.Differential{
			ID:          uuid.NewString(),
			Feature:     "chapter",
			Type:        chapterScopeType,
			Distinction: classify.DistinctionMulti,
			Options:     opts,
		},
		Priority: classify.PriorityCritical,
	}
	conv := &classify.ConversationContext{
		Query:            query,
		PendingQuestions: []classify.SmartQuestion{q},
		Round:            1,
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}
	id, err := s.persistConversation(ctx, conv)
	if err != nil {
		return classify.ClassifyOutcome{}, err
	}
	return classify.ClassifyOutcome{
		Type:           classify.OutcomeQuestion,
		ConversationID: id,
		Question:       &q,
	}, nil
}

// resumeAfterChapterAnswer restarts the pipeline with the chapter the user
// picked pinned the way a functional override would be.
func (s *Service) resumeAfterChapterAnswer(ctx context.Context, conv *classify.ConversationContext, answer string) (classify.ClassifyOutcome, error) {
	ch := strings.TrimSpace(answer)
	if len(ch) != 2 {
		// "Other": nothing eliminated, run unscoped.
		return s.classifyWithPrediction(ctx, conv.ID, conv.Query, conv.AccumulatedKeywords, chapter.Result{}, conv.Round)
	}
	pinned := chapter.Result{Predictions: []classify.ChapterPrediction{{
		Chapter:    ch,
		Confidence: 0.95,
		Override:   true,
		Reason:     "user selected chapter",
	}}}
	return s.classifyWithPrediction(ctx, conv.ID, conv.Query, conv.AccumulatedKeywords, pinned, conv.Round)
}

// finish produces a terminal result, closes the conversation, and emits the
// audit trail and completion event.
func (s *Service) finish(ctx context.Context, conversationID, query string, cands []classify.Candidate, confidence float64, path, reasoning string) (classify.ClassifyOutcome, error) {
	top := cands[0]
	result := classify.ClassificationResult{
		Code:        top.Code,
		Description: top.Description,
		Confidence:  clampConfidence(confidence),
		Reasoning:   reasoning,
	}
	for _, alt := range cands[1:] {
		result.Alternatives = append(result.Alternatives, classify.Alternative{
			Code:        alt.Code,
			Description: alt.Description,
			Confidence:  clampConfidence(confidence * downweight(alt, top)),
		})
		if len(result.Alternatives) == 3 {
			break
		}
	}

	var answered []classify.AnsweredQuestion
	rounds := 1
	if conversationID != "" {
		if conv, err := s.deps.Store.Get(ctx, conversationID); err == nil {
			answered = conv.AnsweredQuestions
			rounds = conv.Round
		}
		if err := s.deps.Store.Delete(ctx, conversationID); err != nil {
			s.logger.Warn("conversation cleanup failed",
				logging.String("id", conversationID), logging.Err(err))
		}
	}

	s.emit(ctx, conversationID, query, result, answered, cands, rounds, path)

	s.logger.Info("classified",
		logging.String("query", query),
		logging.String("code", result.Code),
		logging.Float64("confidence", result.Confidence),
		logging.String("path", path))
	return classify.ClassifyOutcome{
		Type:           classify.OutcomeResult,
		ConversationID: conversationID,
		Result:         &result,
	}, nil
}

func (s *Service) persistConversation(ctx context.Context, conv *classify.ConversationContext) (string, error) {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
		if err := s.deps.Store.Create(ctx, conv); err != nil {
			return "", err
		}
		return conv.ID, nil
	}
	_, err := s.deps.Store.Update(ctx, conv.ID, func(c *classify.ConversationContext) error {
		c.NarrowedCandidates = conv.NarrowedCandidates
		c.PendingQuestions = conv.PendingQuestions
		c.Round = conv.Round
		return nil
	})
	return conv.ID, err
}

func (s *Service) emit(ctx context.Context, conversationID, query string, result classify.ClassificationResult, answered []classify.AnsweredQuestion, cands []classify.Candidate, rounds int, path string) {
	now := time.Now()
	if s.deps.Events != nil {
		ev := CompletedEvent{
			ConversationID: conversationID,
			Query:          query,
			Code:           result.Code,
			Confidence:     result.Confidence,
			Rounds:         rounds,
			Path:           path,
			CompletedAt:    now,
		}
		if err := s.deps.Events.PublishCompleted(ctx, ev); err != nil {
			s.logger.Warn("event publish failed", logging.Err(err))
		}
	}
	if s.deps.Audit != nil {
		rec := AuditRecord{
			ConversationID: conversationID,
			Query:          query,
			Result:         result,
			Answered:       answered,
			Candidates:     cands,
			CompletedAt:    now,
		}
		if err := s.deps.Audit.Archive(ctx, rec); err != nil {
			s.logger.Warn("audit archive failed", logging.Err(err))
		}
	}
}

// shortlistConfidence estimates confidence from the score spread of the
// narrowed shortlist: a clear leader approaches 90, a dead heat stays at 50.
func (s *Service) shortlistConfidence(cands []classify.Candidate) float64 {
	if len(cands) == 1 {
		return s.cfg.SingleCandidateConfidence
	}
	top, second := cands[0].Score, cands[1].Score
	if top <= 0 {
		return 50
	}
	ratio := second / top
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	return 90 - 40*ratio
}

func (s *Service) observe(path string, outcome classify.ClassifyOutcome, started time.Time) {
	if s.deps.Metrics == nil {
		return
	}
	s.deps.Metrics.ObserveClassification(path, outcome.Type, time.Since(started))
}

func matchOption(d classify.Differential, answer string) (classify.DifferentialOption, bool) {
	a := strings.ToLower(strings.TrimSpace(answer))
	for _, opt := range d.Options {
		if strings.EqualFold(opt.Value, a) || strings.EqualFold(opt.DisplayText, a) {
			return opt, true
		}
	}
	return classify.DifferentialOption{}, false
}

// narrow keeps only candidates selected by the answer. An empty selection
// (an "other" answer) keeps everything.
func narrow(cands []classify.Candidate, codes []string) []classify.Candidate {
	if len(codes) == 0 {
		return cands
	}
	keep := make(map[string]bool, len(codes))
	for _, c := range codes {
		keep[c] = true
	}
	out := cands[:0]
	for _, c := range cands {
		if keep[c.Code] {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		// The answer contradicts the shortlist; keep it rather than strand
		// the conversation with nothing.
		return cands
	}
	return out
}

func dominantChapter(cands []classify.Candidate, topN int, share float64) (string, bool) {
	if len(cands) < 2 {
		return "", false
	}
	n := topN
	if n > len(cands) {
		n = len(cands)
	}
	counts := map[string]int{}
	for _, c := range cands[:n] {
		counts[c.Chapter()]++
	}
	for ch, cnt := range counts {
		if float64(cnt)/float64(n) >= share {
			return ch, true
		}
	}
	return "", false
}

func firstInChapter(cands []classify.Candidate, ch string) classify.Candidate {
	for _, c := range cands {
		if c.Chapter() == ch {
			return c
		}
	}
	return cands[0]
}

func promoteToFront(cands []classify.Candidate, code string) []classify.Candidate {
	out := make([]classify.Candidate, 0, len(cands))
	for _, c := range cands {
		if c.Code == code {
			out = append([]classify.Candidate{c}, out...)
			continue
		}
		out = append(out, c)
	}
	return out
}

func codeInCandidates(code string, cands []classify.Candidate) bool {
	for _, c := range cands {
		if c.Code == code {
			return true
		}
	}
	return false
}

// specificQuery: at least two recognized content-bearing tokens and a
// majority of the query understood.
func specificQuery(analysis classify.TermAnalysis) bool {
	content := analysis.TermsOf(
		classify.TermProduct, classify.TermVariety,
		classify.TermProcessing, classify.TermMaterial,
	)
	return len(content) >= 2 && analysis.Confidence >= 0.5
}

func similarityConfidence(similarity float64) float64 {
	return clampConfidence(similarity * 100)
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func downweight(alt, top classify.Candidate) float64 {
	if top.Score <= 0 {
		return 0.5
	}
	r := alt.Score / top.Score
	if r < 0 {
		return 0
	}
	if r > 0.95 {
		return 0.95
	}
	return r
}

func appendKeyword(kws []string, kw string) []string {
	for _, k := range kws {
		if k == kw {
			return kws
		}
	}
	return append(kws, kw)
}

func needMoreInfo(conversationID, msg string) classify.ClassifyOutcome {
	return classify.ClassifyOutcome{
		Type:           classify.OutcomeNeedMoreInfo,
		ConversationID: conversationID,
		Message:        msg,
	}
}
