package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfigValidates(t *testing.T) {
	cfg := NewDefaultConfig()
	require.NoError(t, cfg.Validate())
}

func TestApplyDefaultsPreservesSetValues(t *testing.T) {
	cfg := &Config{}
	cfg.Server.Port = 9999
	cfg.Scoring.ExactMatchScore = 42
	cfg.Conversation.IdleTTL = time.Minute

	ApplyDefaults(cfg)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 42.0, cfg.Scoring.ExactMatchScore)
	assert.Equal(t, time.Minute, cfg.Conversation.IdleTTL)
}

func TestScoringDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, 10.0, cfg.Scoring.ExactMatchScore)
	assert.Equal(t, 5.0, cfg.Scoring.SubstringMatchScore)
	assert.Equal(t, 3.0, cfg.Scoring.FuzzyMatchScore)
	assert.Equal(t, 0.75, cfg.Scoring.FuzzyMinSimilarity)
	assert.Equal(t, 2.0, cfg.Scoring.KeywordMatchBonus)
	assert.Equal(t, 3.0, cfg.Scoring.MultiTermBonus)
	assert.Equal(t, 5.0, cfg.Scoring.AllTermsBonus)
	assert.Equal(t, 30.0, cfg.Scoring.OverrideChapterBoost)
	assert.Equal(t, 20.0, cfg.Scoring.OverrideChapterPenalty)
}

func TestEngineDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, 0.8, cfg.Engine.DominantChapterShare)
	assert.Equal(t, 0.75, cfg.Engine.VerifyMinConfidence)
	assert.Equal(t, 95.0, cfg.Engine.SingleCandidateConfidence)
}

func TestValidateRejectsBadMode(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Server.Mode = "production"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.mode")
}

func TestValidateRequiresDatabaseHost(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Database.Host = ""
	require.Error(t, cfg.Validate())
}

func TestValidateRedisRequiredForRedisBackend(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Conversation.Backend = "redis"
	cfg.Redis.Addr = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis.addr")
}

func TestValidateKafkaBrokersOnlyWhenEnabled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Kafka.Enabled = false
	cfg.Kafka.Brokers = nil
	require.NoError(t, cfg.Validate())

	cfg.Kafka.Enabled = true
	require.Error(t, cfg.Validate())

	cfg.Kafka.Brokers = []string{"localhost:9092"}
	require.NoError(t, cfg.Validate())
}

func TestValidateBoundsChecks(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Engine.DominantChapterShare = 1.5
	require.Error(t, cfg.Validate())

	cfg = NewDefaultConfig()
	cfg.Scoring.FuzzyMinSimilarity = -0.1
	require.Error(t, cfg.Validate())

	cfg = NewDefaultConfig()
	cfg.Question.PerRoundCap = 0
	cfg.Question.PerRoundCap = -1
	require.Error(t, cfg.Validate())
}
