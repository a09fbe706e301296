package conversation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/turtacn/tariffwise/internal/config"
	"github.com/turtacn/tariffwise/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/tariffwise/pkg/errors"
	"github.com/turtacn/tariffwise/pkg/types/classify"
)

func newTestStore(t *testing.T, idleTTL time.Duration) *MemoryStore {
	t.Helper()
	s := NewMemoryStore(config.ConversationConfig{
		IdleTTL:       idleTTL,
		SweepInterval: 10 * time.Millisecond,
	}, logging.NewNopLogger())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMemoryStoreCreateGet(t *testing.T) {
	s := newTestStore(t, time.Minute)
	ctx := context.Background()

	conv := &classify.ConversationContext{ID: "c1", Query: "coffee", Round: 1}
	if err := s.Create(ctx, conv); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Create(ctx, conv); !apperrors.IsCode(err, apperrors.ErrCodeConversationConflict) {
		t.Errorf("duplicate Create error = %v, want conflict", err)
	}

	got, err := s.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Query != "coffee" || got.Round != 1 {
		t.Errorf("got %+v", got)
	}

	if _, err := s.Get(ctx, "missing"); !apperrors.IsCode(err, apperrors.ErrCodeConversationNotFound) {
		t.Errorf("missing Get error = %v, want not found", err)
	}
}

func TestMemoryStoreUpdateIsolation(t *testing.T) {
	s := newTestStore(t, time.Minute)
	ctx := context.Background()

	if err := s.Create(ctx, &classify.ConversationContext{ID: "c1"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, _ := s.Get(ctx, "c1")
	got.AccumulatedKeywords = append(got.AccumulatedKeywords, "tampered")

	fresh, _ := s.Get(ctx, "c1")
	if len(fresh.AccumulatedKeywords) != 0 {
		t.Error("mutating a returned copy leaked into the store")
	}

	// A failing update must not persist anything.
	_, err := s.Update(ctx, "c1", func(c *classify.ConversationContext) error {
		c.Round = 99
		return apperrors.New(apperrors.ErrCodeInvalidAnswer, "nope")
	})
	if err == nil {
		t.Fatal("expected update error")
	}
	fresh, _ = s.Get(ctx, "c1")
	if fresh.Round == 99 {
		t.Error("failed update persisted its changes")
	}
}

func TestMemoryStoreSerializesPerKey(t *testing.T) {
	s := newTestStore(t, time.Minute)
	ctx := context.Background()

	if err := s.Create(ctx, &classify.ConversationContext{ID: "c1"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	const workers = 16
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update(ctx, "c1", func(c *classify.ConversationContext) error {
				c.Round++
				return nil
			})
			if err != nil {
				t.Errorf("Update: %v", err)
			}
		}()
	}
	wg.Wait()

	got, _ := s.Get(ctx, "c1")
	if got.Round != workers {
		t.Errorf("round = %d after %d serialized increments", got.Round, workers)
	}
}

func TestMemoryStoreEvictsIdle(t *testing.T) {
	s := newTestStore(t, 20*time.Millisecond)
	ctx := context.Background()

	if err := s.Create(ctx, &classify.ConversationContext{ID: "c1"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Len() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("idle conversation was never evicted")
}

func TestMemoryStoreDelete(t *testing.T) {
	s := newTestStore(t, time.Minute)
	ctx := context.Background()

	_ = s.Create(ctx, &classify.ConversationContext{ID: "c1"})
	if err := s.Delete(ctx, "c1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "c1"); err != nil {
		t.Errorf("idempotent Delete returned %v", err)
	}
	if _, err := s.Get(ctx, "c1"); !apperrors.IsCode(err, apperrors.ErrCodeConversationNotFound) {
		t.Errorf("Get after Delete = %v, want not found", err)
	}
}
