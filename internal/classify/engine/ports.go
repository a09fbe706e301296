// Package engine is the classification decision engine: it drives the
// search → analyze → {direct | question | verify | fail} state machine over
// the pipeline stages and owns the conversation loop.
package engine

import (
	"context"
	"time"

	"github.com/turtacn/tariffwise/pkg/types/classify"
)

// Verifier is the completion-service collaborator consulted on
// medium-confidence results. Its suggestion is best effort and never trusted
// below the configured confidence floor.
type Verifier interface {
	Verify(ctx context.Context, query string, cands []classify.Candidate) (*classify.VerificationResult, error)
}

// CompletedEvent is emitted after every terminal classification.
type CompletedEvent struct {
	ConversationID string    `json:"conversation_id"`
	Query          string    `json:"query"`
	Code           string    `json:"code"`
	Confidence     float64   `json:"confidence"`
	Rounds         int       `json:"rounds"`
	Path           string    `json:"path"`
	CompletedAt    time.Time `json:"completed_at"`
}

// EventPublisher pushes terminal classifications onto the event bus.
// Publishing is best effort; failures are logged, never surfaced.
type EventPublisher interface {
	PublishCompleted(ctx context.Context, ev CompletedEvent) error
}

// AuditRecord is the full decision trail archived for one classification.
type AuditRecord struct {
	ConversationID string                      `json:"conversation_id"`
	Query          string                      `json:"query"`
	Result         classify.ClassificationResult `json:"result"`
	Answered       []classify.AnsweredQuestion `json:"answered,omitempty"`
	Candidates     []classify.Candidate        `json:"candidates,omitempty"`
	CompletedAt    time.Time                   `json:"completed_at"`
}

// AuditArchiver stores the decision trail in object storage.
type AuditArchiver interface {
	Archive(ctx context.Context, rec AuditRecord) error
}

// Metrics abstracts the engine's counters away from the metrics backend.
type Metrics interface {
	ObserveClassification(path string, outcome classify.OutcomeType, elapsed time.Duration)
	ObserveRetrieval(candidates int)
}
