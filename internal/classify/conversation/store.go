// Package conversation persists per-session classification state. The store
// is keyed by conversation id; access to one key is serialized so concurrent
// follow-up requests for the same conversation never interleave their
// read-modify-write cycles, and idle entries are evicted after a bounded
// time.
package conversation

import (
	"context"

	"github.com/turtacn/tariffwise/pkg/types/classify"
)

// Store is the keyed conversation store.
type Store interface {
	// Create stores a new conversation. The id must not already exist.
	Create(ctx context.Context, conv *classify.ConversationContext) error

	// Get returns a copy of the conversation, or ErrCodeConversationNotFound.
	Get(ctx context.Context, id string) (*classify.ConversationContext, error)

	// Update runs fn on the conversation under the key's lock and persists
	// the result. fn sees a private copy; returning an error discards the
	// changes.
	Update(ctx context.Context, id string, fn func(*classify.ConversationContext) error) (*classify.ConversationContext, error)

	// Delete removes the conversation. Deleting a missing id is not an error.
	Delete(ctx context.Context, id string) error

	// Close stops background eviction.
	Close() error
}

// cloneContext deep-copies the slices so callers can never alias stored
// state.
func cloneContext(c *classify.ConversationContext) *classify.ConversationContext {
	cp := *c
	cp.AnsweredQuestions = append([]classify.AnsweredQuestion(nil), c.AnsweredQuestions...)
	cp.NarrowedCandidates = append([]classify.Candidate(nil), c.NarrowedCandidates...)
	cp.AccumulatedKeywords = append([]string(nil), c.AccumulatedKeywords...)
	cp.PendingQuestions = append([]classify.SmartQuestion(nil), c.PendingQuestions...)
	return &cp
}
