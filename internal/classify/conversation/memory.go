package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/turtacn/tariffwise/internal/config"
	"github.com/turtacn/tariffwise/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/tariffwise/pkg/errors"
	"github.com/turtacn/tariffwise/pkg/types/classify"
)

type memoryEntry struct {
	mu       sync.Mutex
	conv     *classify.ConversationContext
	lastSeen time.Time
}

// MemoryStore keeps conversations in process memory with a sweeper that
// evicts entries idle longer than the configured TTL.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry

	idleTTL time.Duration
	logger  logging.Logger
	stop    chan struct{}
	done    chan struct{}
}

// NewMemoryStore builds the store and starts its eviction sweeper.
func NewMemoryStore(cfg config.ConversationConfig, logger logging.Logger) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]*memoryEntry),
		idleTTL: cfg.IdleTTL,
		logger:  logger.Named("conversation"),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.sweep(cfg.SweepInterval)
	return s
}

func (s *MemoryStore) Create(_ context.Context, conv *classify.ConversationContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[conv.ID]; exists {
		return apperrors.New(apperrors.ErrCodeConversationConflict, conv.ID)
	}
	s.entries[conv.ID] = &memoryEntry{conv: cloneContext(conv), lastSeen: time.Now()}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*classify.ConversationContext, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastSeen = time.Now()
	return cloneContext(e.conv), nil
}

func (s *MemoryStore) Update(_ context.Context, id string, fn func(*classify.ConversationContext) error) (*classify.ConversationContext, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	working := cloneContext(e.conv)
	if err := fn(working); err != nil {
		return nil, err
	}
	working.UpdatedAt = time.Now()
	e.conv = working
	e.lastSeen = time.Now()
	return cloneContext(working), nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}

// Close stops the sweeper. Stored conversations become unreachable.
func (s *MemoryStore) Close() error {
	close(s.stop)
	<-s.done
	return nil
}

// Len reports the live entry count.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemoryStore) entry(id string) (*memoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodeConversationNotFound, id)
	}
	return e, nil
}

func (s *MemoryStore) sweep(interval time.Duration) {
	defer close(s.done)
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.evictIdle()
		}
	}
}

func (s *MemoryStore) evictIdle() {
	cutoff := time.Now().Add(-s.idleTTL)
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for id, e := range s.entries {
		if e.lastSeen.Before(cutoff) {
			delete(s.entries, id)
			evicted++
		}
	}
	if evicted > 0 {
		s.logger.Debug("evicted idle conversations", logging.Int("count", evicted))
	}
}
