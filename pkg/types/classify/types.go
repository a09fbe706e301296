// Package classify defines the shared wire types of the classification
// pipeline: candidates, chapter predictions, differentials, clarifying
// questions, conversation state, and terminal results.  These types cross
// package boundaries (retrieval adapters, core pipeline, HTTP interface) and
// therefore live outside internal/.
package classify

import (
	"time"
)

// CandidateSource identifies the retrieval channel that produced a candidate.
type CandidateSource string

const (
	SourceLexical  CandidateSource = "lexical"
	SourceSemantic CandidateSource = "semantic"
	SourceCombined CandidateSource = "combined"
)

// Candidate is a tariff code proposed by retrieval.  Identity is Code;
// Score is mutated by the scorer and reranker, everything else is fixed at
// first sight (first-seen-wins on dedupe).
type Candidate struct {
	Code        string          `json:"code"`
	Score       float64         `json:"score"`
	MatchType   string          `json:"match_type"`
	Description string          `json:"description"`
	Source      CandidateSource `json:"source"`

	// Keyword bag carried from the catalog entry or vector hit, consumed by
	// the scorer's keyword-overlap pass.
	Keywords       []string `json:"keywords,omitempty"`
	CommonProducts []string `json:"common_products,omitempty"`
	Synonyms       []string `json:"synonyms,omitempty"`

	// Similarity is the raw semantic similarity in [0,1] when Source is
	// semantic or combined; zero for purely lexical candidates.
	Similarity float64 `json:"similarity,omitempty"`
}

// Chapter returns the top-level category (first two digits) of the code.
func (c Candidate) Chapter() string {
	return ChapterOf(c.Code)
}

// CatalogEntry is a validated catalog row at the collaborator boundary.
type CatalogEntry struct {
	Code           string   `json:"code"`
	Description    string   `json:"description"`
	Keywords       []string `json:"keywords"`
	CommonProducts []string `json:"common_products"`
	Synonyms       []string `json:"synonyms"`
	Chapter        string   `json:"chapter"`
	Heading        string   `json:"heading"`
}

// VectorHit is a single nearest-neighbour result from the vector store.
type VectorHit struct {
	Code        string   `json:"code"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
	Similarity  float64  `json:"similarity"`
}

// ChapterPrediction is one ranked chapter hypothesis for a query.
// A functional override is a prediction with Override=true and Confidence
// fixed at 0.95 that suppresses all others.
type ChapterPrediction struct {
	Chapter         string   `json:"chapter"`
	Name            string   `json:"name"`
	Confidence      float64  `json:"confidence"`
	MatchedKeywords []string `json:"matched_keywords"`
	Reason          string   `json:"reason"`
	Override        bool     `json:"override"`
}

// TermCategory is the semantic category assigned to a query token.
type TermCategory string

const (
	TermProduct     TermCategory = "product"
	TermVariety     TermCategory = "variety"
	TermProcessing  TermCategory = "processing"
	TermMaterial    TermCategory = "material"
	TermPackaging   TermCategory = "packaging"
	TermDescriptive TermCategory = "descriptive"
	TermMeasurement TermCategory = "measurement"
	TermColor       TermCategory = "color"
	TermUnknown     TermCategory = "unknown"
)

// TermToken is one recognised token (or compound phrase) of the query.
type TermToken struct {
	Text     string       `json:"text"`
	Category TermCategory `json:"category"`
}

// TermAnalysis is the output of the term analyzer: one tag per recognised
// token plus the two derived query strings used by retrieval.
type TermAnalysis struct {
	Tokens []TermToken `json:"tokens"`

	// PrimaryQuery contains variety, product, and processing terms only.
	PrimaryQuery string `json:"primary_query"`

	// FullQueryWithoutPackaging is the query with packaging and measurement
	// tokens removed.
	FullQueryWithoutPackaging string `json:"full_query_without_packaging"`

	// Confidence is the fraction of tokens recognised as a known category.
	Confidence float64 `json:"confidence"`
}

// TermsOf returns the texts of all tokens in the given categories.
func (a TermAnalysis) TermsOf(categories ...TermCategory) []string {
	var out []string
	for _, tok := range a.Tokens {
		for _, cat := range categories {
			if tok.Category == cat {
				out = append(out, tok.Text)
				break
			}
		}
	}
	return out
}

// DistinctionType describes the answer shape of a differential.
type DistinctionType string

const (
	DistinctionBinary  DistinctionType = "binary"
	DistinctionMulti   DistinctionType = "multi"
	DistinctionNumeric DistinctionType = "numeric"
	DistinctionOpen    DistinctionType = "open"
)

// DifferentialOption is one answerable value of a differential together with
// the candidate codes it selects.
type DifferentialOption struct {
	Value         string   `json:"value"`
	DisplayText   string   `json:"display_text"`
	MatchingCodes []string `json:"matching_codes"`
}

// Differential is an attribute that separates two or more shortlisted
// candidate codes.  Invariant: AffectedCodes equals the union of all
// Options[].MatchingCodes, and no two options map to an identical code set.
type Differential struct {
	ID           string               `json:"id"`
	Feature      string               `json:"feature"`
	Type         string               `json:"type"`
	Distinction  DistinctionType      `json:"distinction_type"`
	Options      []DifferentialOption `json:"options"`
	Importance   float64              `json:"importance"`
	AffectedCodes []string            `json:"affected_codes"`
}

// QuestionPriority orders clarifying questions across rounds.
type QuestionPriority string

const (
	PriorityCritical   QuestionPriority = "critical"
	PriorityImportant  QuestionPriority = "important"
	PriorityClarifying QuestionPriority = "clarifying"
	PriorityOptional   QuestionPriority = "optional"
)

// SkipCondition names a reason a question may be skipped at selection time.
type SkipCondition string

const (
	SkipIfAnswered        SkipCondition = "already_answered"
	SkipIfFewCandidates   SkipCondition = "few_candidates"
	SkipIfHighConfidence  SkipCondition = "high_confidence"
	SkipIfInDescription   SkipCondition = "in_description"
)

// SmartQuestion wraps a Differential with dialogue-planning metadata.
// Dependencies are category names (identity before state before quality…),
// never candidate-code references.
type SmartQuestion struct {
	ID             string           `json:"id"`
	Text           string           `json:"text"`
	Differential   Differential     `json:"differential"`
	Priority       QuestionPriority `json:"priority"`
	HierarchyLevel int              `json:"hierarchy_level"`
	Dependencies   []string         `json:"dependencies"`
	SkipConditions []SkipCondition  `json:"skip_conditions"`
	ImpactScore    float64          `json:"impact_score"`
}

// AnsweredQuestion records one resolved question within a conversation.
type AnsweredQuestion struct {
	QuestionID  string   `json:"question_id"`
	Feature     string   `json:"feature"`
	OptionValue string   `json:"option_value"`
	// MatchedCodes is empty when the answer matched no offered option; an
	// unmatched answer never eliminates candidates.
	MatchedCodes []string  `json:"matched_codes"`
	AnsweredAt   time.Time `json:"answered_at"`
}

// ConversationContext accumulates state for one classification session.
// It lives in a keyed store with idle eviction; per-key access is serialized
// by the store.
type ConversationContext struct {
	ID                  string             `json:"id"`
	Query               string             `json:"query"`
	AnsweredQuestions   []AnsweredQuestion `json:"answered_questions"`
	NarrowedCandidates  []Candidate        `json:"narrowed_candidates"`
	AccumulatedKeywords []string           `json:"accumulated_keywords"`
	PendingQuestions    []SmartQuestion    `json:"pending_questions"`
	Round               int                `json:"round"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
}

// Alternative is a runner-up code attached to a terminal result.
type Alternative struct {
	Code        string  `json:"code"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
}

// ClassificationResult is the terminal output of a classification session.
// Confidence is calibrated to [0,100].
type ClassificationResult struct {
	Code         string        `json:"code"`
	Description  string        `json:"description"`
	Confidence   float64       `json:"confidence"`
	Reasoning    string        `json:"reasoning"`
	Alternatives []Alternative `json:"alternatives,omitempty"`
}

// OutcomeType discriminates the classify result union.
type OutcomeType string

const (
	OutcomeResult       OutcomeType = "result"
	OutcomeQuestion     OutcomeType = "question"
	OutcomeNeedMoreInfo OutcomeType = "need_more_info"
)

// ClassifyOutcome is the result union produced by the decision engine:
// exactly one of Result, Question, or Message is populated according to Type.
type ClassifyOutcome struct {
	Type           OutcomeType           `json:"type"`
	ConversationID string                `json:"conversation_id"`
	Result         *ClassificationResult `json:"result,omitempty"`
	Question       *SmartQuestion        `json:"question,omitempty"`
	Message        string                `json:"message,omitempty"`
}

// VerificationResult is the structured suggestion returned by the
// completion-service collaborator.  Confidence is the service's self-reported
// estimate in [0,1].
type VerificationResult struct {
	Code       string  `json:"code"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}
