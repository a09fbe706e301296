package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/opensearch-project/opensearch-go/v3/opensearchapi"

	"github.com/turtacn/tariffwise/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/tariffwise/pkg/errors"
	"github.com/turtacn/tariffwise/pkg/types/classify"
)

// catalogMapping declares the index shape: code and chapter are exact-match
// keys, the text fields drive lexical recall, and keywords carries a raw
// sub-field for the substring channel's wildcard queries.
const catalogMapping = `{
  "settings": {
    "number_of_shards": 1,
    "analysis": {
      "analyzer": {
        "catalog_text": {
          "type": "custom",
          "tokenizer": "standard",
          "filter": ["lowercase", "asciifolding"]
        }
      },
      "normalizer": {
        "catalog_keyword": {
          "type": "custom",
          "filter": ["lowercase"]
        }
      }
    }
  },
  "mappings": {
    "properties": {
      "code":        {"type": "keyword"},
      "chapter":     {"type": "keyword"},
      "heading":     {"type": "keyword"},
      "description": {"type": "text", "analyzer": "catalog_text"},
      "keywords": {
        "type": "text", "analyzer": "catalog_text",
        "fields": {"raw": {"type": "keyword", "normalizer": "catalog_keyword"}}
      },
      "common_products": {"type": "text", "analyzer": "catalog_text"},
      "synonyms":        {"type": "text", "analyzer": "catalog_text"}
    }
  }
}`

// Indexer writes catalog entries into the lexical index. It is used by the
// sync command, not by the request path.
type Indexer struct {
	client *Client
	index  string
	logger logging.Logger
}

// NewIndexer returns an indexer bound to the given index name.
func NewIndexer(client *Client, index string, logger logging.Logger) (*Indexer, error) {
	if index == "" {
		return nil, errors.New(errors.ErrCodeValidation, "opensearch: index name is required")
	}
	return &Indexer{client: client, index: index, logger: logger.Named("catalog-indexer")}, nil
}

// EnsureIndex creates the catalog index with its mapping. An index that
// already exists is left untouched.
func (ix *Indexer) EnsureIndex(ctx context.Context) error {
	_, err := ix.client.API().Indices.Create(ctx, opensearchapi.IndicesCreateReq{
		Index: ix.index,
		Body:  strings.NewReader(catalogMapping),
	})
	if err != nil {
		if strings.Contains(err.Error(), "resource_already_exists_exception") {
			return nil
		}
		return errors.Wrap(err, errors.ErrCodeInternal, "opensearch: failed to create catalog index")
	}
	ix.logger.Info("catalog index created", logging.String("index", ix.index))
	return nil
}

// IndexEntries writes entries one document per tariff code, keyed by code so
// re-syncing is idempotent. It returns the number of documents written and
// the first error encountered.
func (ix *Indexer) IndexEntries(ctx context.Context, entries []classify.CatalogEntry) (int, error) {
	start := time.Now()
	written := 0
	for _, entry := range entries {
		if entry.Code == "" {
			continue
		}
		doc := catalogDoc{
			Code:           entry.Code,
			Description:    entry.Description,
			Keywords:       entry.Keywords,
			CommonProducts: entry.CommonProducts,
			Synonyms:       entry.Synonyms,
			Chapter:        entry.Chapter,
			Heading:        entry.Heading,
		}
		body, err := json.Marshal(doc)
		if err != nil {
			return written, errors.Wrap(err, errors.ErrCodeSerialization, "opensearch: failed to encode catalog entry")
		}
		_, err = ix.client.API().Index(ctx, opensearchapi.IndexReq{
			Index:      ix.index,
			DocumentID: entry.Code,
			Body:       bytes.NewReader(body),
		})
		if err != nil {
			return written, errors.Wrap(err, errors.ErrCodeInternal, "opensearch: failed to index catalog entry "+entry.Code)
		}
		written++
	}
	ix.logger.Info("catalog entries indexed",
		logging.Int("count", written),
		logging.Duration("elapsed", time.Since(start)))
	return written, nil
}
