package milvus

import (
	"context"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/turtacn/tariffwise/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/tariffwise/pkg/errors"
	"github.com/turtacn/tariffwise/pkg/types/classify"
)

const (
	maxCodeLength        = 16
	maxDescriptionLength = 2048
	maxKeywordsLength    = 1024

	hnswM              = 16
	hnswEfConstruction = 200
)

// EnsureCollection creates the tariff collection, its HNSW index, and loads
// it into memory. An existing collection is loaded as is.
func (s *Searcher) EnsureCollection(ctx context.Context) error {
	if s.config.EmbeddingDim <= 0 {
		return errors.New(errors.ErrCodeValidation, "milvus: embedding dimension must be positive")
	}

	exists, err := s.mc.HasCollection(ctx, s.config.Collection)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeVectorSearchFailed, "milvus: failed to check collection")
	}

	if !exists {
		schema := entity.NewSchema().
			WithName(s.config.Collection).
			WithDescription("tariff codes with description embeddings").
			WithField(entity.NewField().WithName(fieldID).WithDataType(entity.FieldTypeInt64).WithIsPrimaryKey(true).WithIsAutoID(true)).
			WithField(entity.NewField().WithName(fieldCode).WithDataType(entity.FieldTypeVarChar).WithMaxLength(maxCodeLength)).
			WithField(entity.NewField().WithName(fieldChapter).WithDataType(entity.FieldTypeVarChar).WithMaxLength(2)).
			WithField(entity.NewField().WithName(fieldDescription).WithDataType(entity.FieldTypeVarChar).WithMaxLength(maxDescriptionLength)).
			WithField(entity.NewField().WithName(fieldKeywords).WithDataType(entity.FieldTypeVarChar).WithMaxLength(maxKeywordsLength)).
			WithField(entity.NewField().WithName(fieldEmbedding).WithDataType(entity.FieldTypeFloatVector).WithDim(int64(s.config.EmbeddingDim)))

		if err := s.mc.CreateCollection(ctx, schema, 1); err != nil {
			return errors.Wrap(err, errors.ErrCodeVectorSearchFailed, "milvus: failed to create collection")
		}

		idx, err := entity.NewIndexHNSW(entity.COSINE, hnswM, hnswEfConstruction)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeVectorSearchFailed, "milvus: invalid index params")
		}
		if err := s.mc.CreateIndex(ctx, s.config.Collection, fieldEmbedding, idx, false); err != nil {
			return errors.Wrap(err, errors.ErrCodeVectorSearchFailed, "milvus: failed to create index")
		}
		s.logger.Info("tariff collection created",
			logging.String("collection", s.config.Collection),
			logging.Int("dim", s.config.EmbeddingDim))
	}

	if err := s.mc.LoadCollection(ctx, s.config.Collection, false); err != nil {
		return errors.Wrap(err, errors.ErrCodeVectorSearchFailed, "milvus: failed to load collection")
	}
	return nil
}

// InsertEntries writes catalog entries with their embeddings. Entries and
// vectors are parallel slices; mismatched lengths are rejected.
func (s *Searcher) InsertEntries(ctx context.Context, entries []classify.CatalogEntry, vectors [][]float32) (int, error) {
	if len(entries) != len(vectors) {
		return 0, errors.New(errors.ErrCodeValidation, "milvus: entries and vectors length mismatch")
	}
	if len(entries) == 0 {
		return 0, nil
	}

	codes := make([]string, 0, len(entries))
	chapters := make([]string, 0, len(entries))
	descs := make([]string, 0, len(entries))
	keywords := make([]string, 0, len(entries))
	embeds := make([][]float32, 0, len(entries))

	for i, entry := range entries {
		if entry.Code == "" || len(vectors[i]) != s.config.EmbeddingDim {
			continue
		}
		codes = append(codes, entry.Code)
		chapters = append(chapters, classify.ChapterOf(entry.Code))
		descs = append(descs, truncate(entry.Description, maxDescriptionLength))
		keywords = append(keywords, truncate(strings.Join(entry.Keywords, ","), maxKeywordsLength))
		embeds = append(embeds, vectors[i])
	}
	if len(codes) == 0 {
		return 0, nil
	}

	cols := []entity.Column{
		entity.NewColumnVarChar(fieldCode, codes),
		entity.NewColumnVarChar(fieldChapter, chapters),
		entity.NewColumnVarChar(fieldDescription, descs),
		entity.NewColumnVarChar(fieldKeywords, keywords),
		entity.NewColumnFloatVector(fieldEmbedding, s.config.EmbeddingDim, embeds),
	}
	if _, err := s.mc.Insert(ctx, s.config.Collection, "", cols...); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeVectorSearchFailed, "milvus: insert failed")
	}
	if err := s.mc.Flush(ctx, s.config.Collection, false); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeVectorSearchFailed, "milvus: flush failed")
	}
	return len(codes), nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
