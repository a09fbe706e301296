package prometheus

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/tariffwise/pkg/types/classify"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestObserveClassification(t *testing.T) {
	m := NewMetrics()
	m.ObserveClassification("direct", classify.OutcomeResult, 120*time.Millisecond)
	m.ObserveClassification("direct", classify.OutcomeResult, 80*time.Millisecond)
	m.ObserveClassification("fallback", classify.OutcomeNeedMoreInfo, 40*time.Millisecond)

	body := scrape(t, m)
	assert.Contains(t, body, `tariffwise_classifications_total{outcome="result",path="direct"} 2`)
	assert.Contains(t, body, `tariffwise_classifications_total{outcome="need_more_info",path="fallback"} 1`)
	assert.Contains(t, body, "tariffwise_classification_duration_seconds_bucket")
}

func TestObserveRetrieval(t *testing.T) {
	m := NewMetrics()
	m.ObserveRetrieval(12)

	body := scrape(t, m)
	assert.Contains(t, body, "tariffwise_retrieval_candidates_count 1")
	assert.Contains(t, body, "tariffwise_retrieval_candidates_sum 12")
}

func TestObserveHTTPRequest(t *testing.T) {
	m := NewMetrics()
	m.ObserveHTTPRequest(http.MethodPost, "/api/v1/classify", http.StatusOK, 30*time.Millisecond)

	body := scrape(t, m)
	assert.Contains(t, body, `tariffwise_http_requests_total{method="POST",route="/api/v1/classify",status="200"} 1`)
}
