// Package config defines all configuration structures for tariffwise.
// No I/O or parsing logic lives here — only plain data types and validation.
package config

import (
	"fmt"
	"time"
)

// ServerConfig holds HTTP server tunables.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection parameters for the code catalog.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"db_name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int           `mapstructure:"max_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationPath   string        `mapstructure:"migration_path"`
}

// RedisConfig holds Redis connection parameters for the conversation store.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// MilvusConfig holds vector-store connection parameters.
type MilvusConfig struct {
	Addr           string        `mapstructure:"addr"`
	DBName         string        `mapstructure:"db_name"`
	Collection     string        `mapstructure:"collection"`
	EmbeddingDim   int           `mapstructure:"embedding_dim"`
	DefaultTopK    int           `mapstructure:"default_top_k"`
	SearchTimeout  time.Duration `mapstructure:"search_timeout"`
}

// OpenSearchConfig holds lexical-index connection parameters.
type OpenSearchConfig struct {
	Addresses          []string      `mapstructure:"addresses"`
	User               string        `mapstructure:"user"`
	Password           string        `mapstructure:"password"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	Index              string        `mapstructure:"index"`
	SearchTimeout      time.Duration `mapstructure:"search_timeout"`
}

// EmbeddingConfig holds embedding-service client parameters.
type EmbeddingConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// CompletionConfig holds completion-service (verification) client parameters.
type CompletionConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// KafkaConfig holds event-publisher parameters.
type KafkaConfig struct {
	Brokers        []string      `mapstructure:"brokers"`
	Topic          string        `mapstructure:"topic"`
	BatchTimeout   time.Duration `mapstructure:"batch_timeout"`
	RequiredAcks   int           `mapstructure:"required_acks"`
	Enabled        bool          `mapstructure:"enabled"`
}

// MinIOConfig holds audit-archive object-storage parameters.
type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Enabled   bool   `mapstructure:"enabled"`
}

// LogConfig holds structured-logging parameters.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // "debug" | "info" | "warn" | "error"
	Format string `mapstructure:"format"` // "json" | "console"
}

// ScoringConfig carries the ranking-formula constants.  The values are
// heuristic; they ship as configuration so they can be tuned without code
// changes.
type ScoringConfig struct {
	// Lexical pass base scores.
	ExactMatchScore     float64 `mapstructure:"exact_match_score"`     // 10
	SubstringMatchScore float64 `mapstructure:"substring_match_score"` // 5
	FuzzyMatchScore     float64 `mapstructure:"fuzzy_match_score"`     // 3
	FuzzyMinSimilarity  float64 `mapstructure:"fuzzy_min_similarity"`  // 0.75

	// Keyword-overlap bonuses.
	KeywordMatchBonus  float64 `mapstructure:"keyword_match_bonus"`  // 2 per term
	MultiTermBonus     float64 `mapstructure:"multi_term_bonus"`     // 3 when ≥2 terms match
	AllTermsBonus      float64 `mapstructure:"all_terms_bonus"`      // 5 when every term matches
	MaxKeywordBonus    float64 `mapstructure:"max_keyword_bonus"`    // 15
	MaxContextBoost    float64 `mapstructure:"max_context_boost"`    // 10
	MaxSemanticScore   float64 `mapstructure:"max_semantic_score"`   // 10

	// Function-over-material adjunct.
	FunctionMatchBoost     float64 `mapstructure:"function_match_boost"`      // 5
	BothMatchBoost         float64 `mapstructure:"both_match_boost"`          // 3
	MaterialOnlyPenalty    float64 `mapstructure:"material_only_penalty"`     // 3

	// Chapter boost.
	OverrideChapterBoost   float64 `mapstructure:"override_chapter_boost"`    // 30
	OverrideChapterPenalty float64 `mapstructure:"override_chapter_penalty"`  // 20
	RankBoostBase          float64 `mapstructure:"rank_boost_base"`           // 15
	RankBoostStep          float64 `mapstructure:"rank_boost_step"`           // 5
	UnpredictedPenalty     float64 `mapstructure:"unpredicted_penalty"`       // 5

	// Reranker clamp range.
	MinScore float64 `mapstructure:"min_score"` // -50
	MaxScore float64 `mapstructure:"max_score"` // 100
}

// RetrievalConfig carries candidate-generation tunables.
type RetrievalConfig struct {
	VectorTopK          int           `mapstructure:"vector_top_k"`           // 25
	ScopedTopK          int           `mapstructure:"scoped_top_k"`           // 10
	ScopedChapters      int           `mapstructure:"scoped_chapters"`        // 2
	SemanticOnlyTokens  int           `mapstructure:"semantic_only_tokens"`   // 3
	MaxCandidates       int           `mapstructure:"max_candidates"`         // 50
	ChannelTimeout      time.Duration `mapstructure:"channel_timeout"`        // 5s
	FuzzyNoiseMinTerms  int           `mapstructure:"fuzzy_noise_min_terms"`  // 2
	FuzzyNoiseMinScore  float64       `mapstructure:"fuzzy_noise_min_score"`  // 5
}

// EngineConfig carries decision-engine thresholds.
type EngineConfig struct {
	HighSimilarity        float64 `mapstructure:"high_similarity"`          // 0.82
	HighSimilarityGap     float64 `mapstructure:"high_similarity_gap"`      // 0.08
	DominantChapterShare  float64 `mapstructure:"dominant_chapter_share"`   // 0.8
	DominantChapterTopN   int     `mapstructure:"dominant_chapter_top_n"`   // 5
	MediumSimilarity      float64 `mapstructure:"medium_similarity"`        // 0.65
	VerifyMinConfidence   float64 `mapstructure:"verify_min_confidence"`    // 0.75
	FallbackConfidence    float64 `mapstructure:"fallback_confidence"`      // 55
	SingleCandidateConfidence float64 `mapstructure:"single_candidate_confidence"` // 95
	ShortlistSize         int     `mapstructure:"shortlist_size"`           // 8
}

// QuestionConfig carries question-orchestration tunables.
type QuestionConfig struct {
	PerRoundCap           int     `mapstructure:"per_round_cap"`            // 3
	HighImpactThreshold   float64 `mapstructure:"high_impact_threshold"`    // 60
	FewCandidatesCutoff   int     `mapstructure:"few_candidates_cutoff"`    // 2
	HighConfidenceCutoff  float64 `mapstructure:"high_confidence_cutoff"`   // 90
	MaxDependencyPasses   int     `mapstructure:"max_dependency_passes"`    // 10
}

// ConversationConfig carries conversation-store tunables.
type ConversationConfig struct {
	IdleTTL       time.Duration `mapstructure:"idle_ttl"`       // 30m
	SweepInterval time.Duration `mapstructure:"sweep_interval"` // 5m
	Backend       string        `mapstructure:"backend"`        // "memory" | "redis"
}

// RulesConfig locates the declarative rule resources.
type RulesConfig struct {
	// OverridePath, when set, points at a directory of YAML rule files that
	// replace the embedded defaults and are hot-reloaded on change.
	OverridePath string `mapstructure:"override_path"`
	WatchEnabled bool   `mapstructure:"watch_enabled"`
}

// Config is the root configuration structure for the whole service.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Milvus       MilvusConfig       `mapstructure:"milvus"`
	OpenSearch   OpenSearchConfig   `mapstructure:"opensearch"`
	Embedding    EmbeddingConfig    `mapstructure:"embedding"`
	Completion   CompletionConfig   `mapstructure:"completion"`
	Kafka        KafkaConfig        `mapstructure:"kafka"`
	MinIO        MinIOConfig        `mapstructure:"minio"`
	Log          LogConfig          `mapstructure:"log"`
	Scoring      ScoringConfig      `mapstructure:"scoring"`
	Retrieval    RetrievalConfig    `mapstructure:"retrieval"`
	Engine       EngineConfig       `mapstructure:"engine"`
	Question     QuestionConfig     `mapstructure:"question"`
	Conversation ConversationConfig `mapstructure:"conversation"`
	Rules        RulesConfig        `mapstructure:"rules"`
}

// Validate performs semantic validation of the fully-populated Config.
// It returns the first error encountered; callers should treat any error as
// fatal and refuse to start.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("config: server.mode %q is invalid; expected debug|release|test", c.Server.Mode)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("config: database.host is required")
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("config: database.port %d is out of range [1, 65535]", c.Database.Port)
	}
	if c.Database.User == "" {
		return fmt.Errorf("config: database.user is required")
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("config: database.db_name is required")
	}

	if c.Milvus.Addr == "" {
		return fmt.Errorf("config: milvus.addr is required")
	}
	if len(c.OpenSearch.Addresses) == 0 {
		return fmt.Errorf("config: opensearch.addresses must contain at least one address")
	}
	if c.Embedding.BaseURL == "" {
		return fmt.Errorf("config: embedding.base_url is required")
	}

	switch c.Conversation.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("config: conversation.backend %q is invalid; expected memory|redis", c.Conversation.Backend)
	}
	if c.Conversation.Backend == "redis" && c.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr is required when conversation.backend is redis")
	}
	if c.Conversation.IdleTTL <= 0 {
		return fmt.Errorf("config: conversation.idle_ttl must be positive")
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("config: kafka.brokers must contain at least one broker when kafka is enabled")
	}
	if c.MinIO.Enabled && c.MinIO.Endpoint == "" {
		return fmt.Errorf("config: minio.endpoint is required when minio is enabled")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	if c.Scoring.FuzzyMinSimilarity < 0 || c.Scoring.FuzzyMinSimilarity > 1 {
		return fmt.Errorf("config: scoring.fuzzy_min_similarity must be in [0,1]")
	}
	if c.Engine.DominantChapterShare <= 0 || c.Engine.DominantChapterShare > 1 {
		return fmt.Errorf("config: engine.dominant_chapter_share must be in (0,1]")
	}
	if c.Question.PerRoundCap < 1 {
		return fmt.Errorf("config: question.per_round_cap must be ≥ 1")
	}
	if c.Question.MaxDependencyPasses < 1 {
		return fmt.Errorf("config: question.max_dependency_passes must be ≥ 1")
	}

	return nil
}
