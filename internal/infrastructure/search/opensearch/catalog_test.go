package opensearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/tariffwise/internal/infrastructure/monitoring/logging"
)

const searchResponse = `{
  "took": 3,
  "timed_out": false,
  "hits": {
    "total": {"value": 2, "relation": "eq"},
    "hits": [
      {
        "_index": "tariff-catalog",
        "_id": "0901.21",
        "_score": 2.4,
        "_source": {
          "code": "0901.21",
          "description": "Coffee, roasted, not decaffeinated",
          "keywords": ["coffee", "roasted"],
          "chapter": "09",
          "heading": "0901"
        }
      },
      {
        "_index": "tariff-catalog",
        "_id": "2101.11",
        "_score": 1.1,
        "_source": {
          "code": "2101.11",
          "description": "Extracts, essences and concentrates of coffee",
          "keywords": ["coffee", "instant", "extract"],
          "chapter": "21",
          "heading": "2101"
        }
      }
    ]
  }
}`

func newTestSearcher(t *testing.T, handler func(body string)) (*CatalogSearcher, func()) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "_search") {
			w.WriteHeader(http.StatusOK)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		if handler != nil {
			handler(string(raw))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(searchResponse))
	}))

	client, err := NewClient(ClientConfig{
		Addresses:           []string{srv.URL},
		HealthCheckInterval: time.Hour,
	}, logging.NewNopLogger())
	require.NoError(t, err)

	searcher, err := NewCatalogSearcher(client, CatalogConfig{Index: "tariff-catalog"}, logging.NewNopLogger())
	require.NoError(t, err)

	return searcher, func() {
		_ = client.Close()
		srv.Close()
	}
}

func TestLookupParsesHits(t *testing.T) {
	var captured string
	searcher, done := newTestSearcher(t, func(body string) { captured = body })
	defer done()

	entries, err := searcher.Lookup(context.Background(), []string{"coffee", "roasted"})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "0901.21", entries[0].Code)
	assert.Equal(t, "09", entries[0].Chapter)
	assert.Contains(t, entries[1].Keywords, "instant")

	var query map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(captured), &query))
	assert.Contains(t, captured, `"fuzziness":"AUTO"`)
	assert.Contains(t, captured, "coffee")
	assert.Contains(t, captured, "roasted")
}

func TestLookupEmptyTerms(t *testing.T) {
	searcher, done := newTestSearcher(t, nil)
	defer done()

	entries, err := searcher.Lookup(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestScopedSubstringFiltersChapters(t *testing.T) {
	var captured string
	searcher, done := newTestSearcher(t, func(body string) { captured = body })
	defer done()

	_, err := searcher.ScopedSubstring(context.Background(), []string{"coffee"}, []string{"09", "21"}, 10)
	require.NoError(t, err)

	assert.Contains(t, captured, `"terms":{"chapter":["09","21"]}`)
	assert.Contains(t, captured, `"match_phrase"`)
	assert.Contains(t, captured, `"size":10`)
}

func TestScopedSubstringUnscoped(t *testing.T) {
	var captured string
	searcher, done := newTestSearcher(t, func(body string) { captured = body })
	defer done()

	_, err := searcher.ScopedSubstring(context.Background(), []string{"coffee"}, nil, 5)
	require.NoError(t, err)
	assert.NotContains(t, captured, `"filter"`)
}
