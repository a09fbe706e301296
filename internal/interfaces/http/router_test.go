package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/tariffwise/internal/classify/chapter"
	"github.com/turtacn/tariffwise/internal/classify/rules"
	"github.com/turtacn/tariffwise/internal/config"
	"github.com/turtacn/tariffwise/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/tariffwise/internal/interfaces/http/handlers"
	"github.com/turtacn/tariffwise/pkg/errors"
	"github.com/turtacn/tariffwise/pkg/types/classify"
)

type stubService struct {
	classifyFn func(ctx context.Context, query string) (classify.ClassifyOutcome, error)
	answerFn   func(ctx context.Context, conversationID, questionID, answer string) (classify.ClassifyOutcome, error)
	resetFn    func(ctx context.Context, conversationID string) error
}

func (s *stubService) Classify(ctx context.Context, query string) (classify.ClassifyOutcome, error) {
	return s.classifyFn(ctx, query)
}

func (s *stubService) AnswerQuestion(ctx context.Context, conversationID, questionID, answer string) (classify.ClassifyOutcome, error) {
	return s.answerFn(ctx, conversationID, questionID, answer)
}

func (s *stubService) ResetConversation(ctx context.Context, conversationID string) error {
	if s.resetFn == nil {
		return nil
	}
	return s.resetFn(ctx, conversationID)
}

func newTestRouter(t *testing.T, svc *stubService) *gin.Engine {
	t.Helper()

	rs, err := rules.Load()
	require.NoError(t, err)
	provider := rules.NewProvider(rs, logging.NewNopLogger())
	predictor := chapter.NewPredictor(provider, config.NewDefaultConfig().Scoring, logging.NewNopLogger())

	classifyHandler := handlers.NewClassifyHandler(svc, predictor, logging.NewNopLogger())
	healthHandler := handlers.NewHealthHandler([]handlers.DependencyCheck{
		{Name: "catalog", Check: func(context.Context) error { return nil }},
		{Name: "vector", Check: func(context.Context) error { return fmt.Errorf("connection refused") }},
	}, logging.NewNopLogger())

	return NewRouter(RouterConfig{
		Classify: classifyHandler,
		Health:   healthHandler,
		Logger:   logging.NewNopLogger(),
		Mode:     gin.TestMode,
	})
}

func doJSON(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestClassifyEndpoint(t *testing.T) {
	svc := &stubService{
		classifyFn: func(_ context.Context, query string) (classify.ClassifyOutcome, error) {
			assert.Equal(t, "roasted coffee", query)
			return classify.ClassifyOutcome{
				Type: classify.OutcomeResult,
				Result: &classify.ClassificationResult{
					Code:       "0901.21",
					Confidence: 93,
				},
			}, nil
		},
	}
	r := newTestRouter(t, svc)

	rec := doJSON(r, http.MethodPost, "/api/v1/classify", handlers.ClassifyRequest{Query: "roasted coffee"})
	require.Equal(t, http.StatusOK, rec.Code)

	var outcome classify.ClassifyOutcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outcome))
	assert.Equal(t, classify.OutcomeResult, outcome.Type)
	assert.Equal(t, "0901.21", outcome.Result.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestClassifyRejectsEmptyBody(t *testing.T) {
	r := newTestRouter(t, &stubService{})

	rec := doJSON(r, http.MethodPost, "/api/v1/classify", map[string]string{})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp handlers.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, errors.ErrCodeValidation.String(), resp.Code)
}

func TestAnswerEndpointMapsQuestionNotFound(t *testing.T) {
	svc := &stubService{
		answerFn: func(_ context.Context, conversationID, questionID, _ string) (classify.ClassifyOutcome, error) {
			assert.Equal(t, "conv-1", conversationID)
			assert.Equal(t, "q-9", questionID)
			return classify.ClassifyOutcome{}, errors.Newf(errors.ErrCodeQuestionNotFound,
				"question %s is not pending", questionID)
		},
	}
	r := newTestRouter(t, svc)

	rec := doJSON(r, http.MethodPost, "/api/v1/conversations/conv-1/answer",
		handlers.AnswerRequest{QuestionID: "q-9", Answer: "stainless steel"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAbandonConversationIsIdempotent(t *testing.T) {
	r := newTestRouter(t, &stubService{})

	rec := doJSON(r, http.MethodDelete, "/api/v1/conversations/never-existed", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestPredictChaptersEndpoint(t *testing.T) {
	r := newTestRouter(t, &stubService{})

	rec := doJSON(r, http.MethodGet, "/api/v1/chapters/predict?q=ceramic+brake+pads", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp handlers.ChapterPredictionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Predictions)
	assert.Equal(t, "87", resp.Predictions[0].Chapter)
}

func TestPredictChaptersRequiresQuery(t *testing.T) {
	r := newTestRouter(t, &stubService{})

	rec := doJSON(r, http.MethodGet, "/api/v1/chapters/predict", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	r := newTestRouter(t, &stubService{})

	rec := doJSON(r, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// One failing dependency degrades readiness.
	rec = doJSON(r, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}
