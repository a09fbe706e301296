package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/tariffwise/internal/config"
	"github.com/turtacn/tariffwise/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/tariffwise/pkg/errors"
	"github.com/turtacn/tariffwise/pkg/types/classify"
)

const (
	convKeyPrefix = "tariffwise:conv:"
	lockKeyPrefix = "tariffwise:convlock:"

	lockTTL       = 10 * time.Second
	lockRetryWait = 25 * time.Millisecond
)

// RedisStore persists conversations in Redis so follow-up requests can land
// on any replica. Idle eviction is Redis' own key TTL, refreshed on every
// access; per-key serialization uses a short-lived lock key.
type RedisStore struct {
	client  *redis.Client
	idleTTL time.Duration
	logger  logging.Logger
}

// NewRedisStore builds a Redis-backed conversation store.
func NewRedisStore(client *redis.Client, cfg config.ConversationConfig, logger logging.Logger) *RedisStore {
	return &RedisStore{client: client, idleTTL: cfg.IdleTTL, logger: logger.Named("conversation")}
}

func (s *RedisStore) Create(ctx context.Context, conv *classify.ConversationContext) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "marshal conversation")
	}
	ok, err := s.client.SetNX(ctx, convKeyPrefix+conv.ID, data, s.idleTTL).Result()
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "store conversation")
	}
	if !ok {
		return apperrors.New(apperrors.ErrCodeConversationConflict, conv.ID)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*classify.ConversationContext, error) {
	data, err := s.client.GetEx(ctx, convKeyPrefix+id, s.idleTTL).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.New(apperrors.ErrCodeConversationNotFound, id)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "load conversation")
	}
	var conv classify.ConversationContext
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "decode conversation")
	}
	return &conv, nil
}

func (s *RedisStore) Update(ctx context.Context, id string, fn func(*classify.ConversationContext) error) (*classify.ConversationContext, error) {
	if err := s.acquireLock(ctx, id); err != nil {
		return nil, err
	}
	defer s.releaseLock(id)

	conv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(conv); err != nil {
		return nil, err
	}
	conv.UpdatedAt = time.Now()

	data, err := json.Marshal(conv)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "marshal conversation")
	}
	if err := s.client.Set(ctx, convKeyPrefix+id, data, s.idleTTL).Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "store conversation")
	}
	return conv, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, convKeyPrefix+id).Err(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "delete conversation")
	}
	return nil
}

func (s *RedisStore) Close() error { return nil }

// acquireLock spins on SET NX until the per-conversation lock is ours or the
// context gives up.
func (s *RedisStore) acquireLock(ctx context.Context, id string) error {
	key := lockKeyPrefix + id
	for {
		ok, err := s.client.SetNX(ctx, key, 1, lockTTL).Result()
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInternal, "conversation lock")
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return apperrors.Wrap(ctx.Err(), apperrors.ErrCodeConversationConflict, id)
		case <-time.After(lockRetryWait):
		}
	}
}

func (s *RedisStore) releaseLock(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.client.Del(ctx, lockKeyPrefix+id).Err(); err != nil {
		s.logger.Warn("conversation lock release failed",
			logging.String("id", id), logging.Err(err))
	}
}
