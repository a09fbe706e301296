// Package milvus implements the semantic retrieval channel on the Milvus
// vector store. Tariff codes are stored with their description embeddings;
// search returns nearest neighbours, optionally restricted to a chapter set.
package milvus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/turtacn/tariffwise/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/tariffwise/pkg/errors"
	"github.com/turtacn/tariffwise/pkg/types/classify"
)

// Field names of the tariff collection schema.
const (
	fieldID          = "id"
	fieldCode        = "code"
	fieldChapter     = "chapter"
	fieldDescription = "description"
	fieldKeywords    = "keywords"
	fieldEmbedding   = "embedding"
)

const defaultSearchEf = 64

// Config holds the vector-store connection and search settings.
type Config struct {
	Addr          string
	DBName        string
	Collection    string
	EmbeddingDim  int
	DefaultTopK   int
	SearchTimeout time.Duration
	ConnectTimeout time.Duration
}

// Searcher is the nearest-neighbour searcher over the tariff collection.
// It implements candidate.VectorSearcher.
type Searcher struct {
	mc     client.Client
	config Config
	logger logging.Logger
}

// NewSearcher dials Milvus and returns a searcher bound to the configured
// collection.
func NewSearcher(ctx context.Context, cfg Config, logger logging.Logger) (*Searcher, error) {
	if cfg.Addr == "" {
		return nil, errors.New(errors.ErrCodeValidation, "milvus: address is required")
	}
	if cfg.Collection == "" {
		return nil, errors.New(errors.ErrCodeValidation, "milvus: collection name is required")
	}
	if cfg.DefaultTopK == 0 {
		cfg.DefaultTopK = 25
	}
	if cfg.SearchTimeout == 0 {
		cfg.SearchTimeout = 5 * time.Second
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	mc, err := client.NewClient(dialCtx, client.Config{
		Address: cfg.Addr,
		DBName:  cfg.DBName,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeVectorSearchFailed, "milvus: connection failed")
	}

	return &Searcher{
		mc:     mc,
		config: cfg,
		logger: logger.Named("milvus"),
	}, nil
}

// Search returns the nearest tariff codes to vector. An empty chapters slice
// means a global search; otherwise results are restricted to codes whose
// first two digits are in chapters.
func (s *Searcher) Search(ctx context.Context, vector []float32, chapters []string, limit int) ([]classify.VectorHit, error) {
	if len(vector) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "milvus: empty query vector")
	}
	if limit <= 0 {
		limit = s.config.DefaultTopK
	}

	sp, err := entity.NewIndexHNSWSearchParam(defaultSearchEf)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeVectorSearchFailed, "milvus: invalid search params")
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.SearchTimeout)
	defer cancel()

	results, err := s.mc.Search(ctx,
		s.config.Collection,
		nil,
		chapterScopeExpr(chapters),
		[]string{fieldCode, fieldDescription, fieldKeywords},
		[]entity.Vector{entity.FloatVector(vector)},
		fieldEmbedding,
		entity.COSINE,
		limit,
		sp,
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeVectorSearchFailed, "milvus: search failed")
	}

	var hits []classify.VectorHit
	for _, res := range results {
		if res.Err != nil {
			return nil, errors.Wrap(res.Err, errors.ErrCodeVectorSearchFailed, "milvus: partial search failure")
		}
		converted, err := hitsFromColumns(res.Fields, res.Scores)
		if err != nil {
			return nil, err
		}
		hits = append(hits, converted...)
	}
	return hits, nil
}

// Healthy reports whether the collection is reachable.
func (s *Searcher) Healthy(ctx context.Context) error {
	_, err := s.mc.GetCollectionStatistics(ctx, s.config.Collection)
	return err
}

// Close releases the underlying connection.
func (s *Searcher) Close() error {
	return s.mc.Close()
}

// chapterScopeExpr builds the boolean filter expression for a chapter scope.
// Chapters are two-digit strings validated upstream; quoting is still
// restricted to digits as a guard.
func chapterScopeExpr(chapters []string) string {
	if len(chapters) == 0 {
		return ""
	}
	quoted := make([]string, 0, len(chapters))
	for _, ch := range chapters {
		if len(ch) != 2 || strings.Trim(ch, "0123456789") != "" {
			continue
		}
		quoted = append(quoted, fmt.Sprintf("%q", ch))
	}
	if len(quoted) == 0 {
		return ""
	}
	return fieldChapter + " in [" + strings.Join(quoted, ", ") + "]"
}

// hitsFromColumns converts one search result's output columns into vector
// hits. Scores come back as cosine similarity and are clamped to [0,1].
func hitsFromColumns(fields []entity.Column, scores []float32) ([]classify.VectorHit, error) {
	var (
		codes, descs, keywordBags []string
	)
	for _, col := range fields {
		vc, ok := col.(*entity.ColumnVarChar)
		if !ok {
			continue
		}
		switch col.Name() {
		case fieldCode:
			codes = vc.Data()
		case fieldDescription:
			descs = vc.Data()
		case fieldKeywords:
			keywordBags = vc.Data()
		}
	}
	if codes == nil {
		return nil, errors.New(errors.ErrCodeVectorSearchFailed, "milvus: result is missing the code column")
	}

	hits := make([]classify.VectorHit, 0, len(codes))
	for i, code := range codes {
		if i >= len(scores) {
			break
		}
		hit := classify.VectorHit{
			Code:       code,
			Similarity: clampUnit(float64(scores[i])),
		}
		if i < len(descs) {
			hit.Description = descs[i]
		}
		if i < len(keywordBags) && keywordBags[i] != "" {
			hit.Keywords = strings.Split(keywordBags[i], ",")
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
