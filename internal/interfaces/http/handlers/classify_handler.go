package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/tariffwise/internal/classify/chapter"
	"github.com/turtacn/tariffwise/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/tariffwise/pkg/errors"
	"github.com/turtacn/tariffwise/pkg/types/classify"
)

// ClassifyService is the engine surface the HTTP layer consumes.
type ClassifyService interface {
	Classify(ctx context.Context, query string) (classify.ClassifyOutcome, error)
	AnswerQuestion(ctx context.Context, conversationID, questionID, answer string) (classify.ClassifyOutcome, error)
	ResetConversation(ctx context.Context, conversationID string) error
}

// ChapterPredictor previews chapter predictions without starting a session.
type ChapterPredictor interface {
	Predict(query string) chapter.Result
}

// ClassifyHandler serves the classification endpoints.
type ClassifyHandler struct {
	service   ClassifyService
	predictor ChapterPredictor
	logger    logging.Logger
}

// NewClassifyHandler wires the handler.
func NewClassifyHandler(service ClassifyService, predictor ChapterPredictor, logger logging.Logger) *ClassifyHandler {
	return &ClassifyHandler{
		service:   service,
		predictor: predictor,
		logger:    logger.Named("classify-handler"),
	}
}

// ClassifyRequest is the body of POST /api/v1/classify.
type ClassifyRequest struct {
	Query string `json:"query" binding:"required"`
}

// Classify starts a classification session.
// POST /api/v1/classify
func (h *ClassifyHandler) Classify(c *gin.Context) {
	var req ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.NewValidationError("query", "body must be JSON with a non-empty query field"))
		return
	}

	outcome, err := h.service.Classify(c.Request.Context(), req.Query)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

// AnswerRequest is the body of the answer endpoint.
type AnswerRequest struct {
	QuestionID string `json:"question_id" binding:"required"`
	Answer     string `json:"answer" binding:"required"`
}

// Answer resolves one pending question of a conversation.
// POST /api/v1/conversations/:id/answer
func (h *ClassifyHandler) Answer(c *gin.Context) {
	conversationID := c.Param("id")

	var req AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.NewValidationError("body", "question_id and answer are required"))
		return
	}

	outcome, err := h.service.AnswerQuestion(c.Request.Context(), conversationID, req.QuestionID, req.Answer)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

// Abandon deletes a conversation. Deleting an unknown or already-finished
// conversation succeeds: the caller's goal is absence.
// DELETE /api/v1/conversations/:id
func (h *ClassifyHandler) Abandon(c *gin.Context) {
	if err := h.service.ResetConversation(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ChapterPredictionResponse is the preview endpoint's body.
type ChapterPredictionResponse struct {
	Predictions []classify.ChapterPrediction `json:"predictions"`
	Ambiguous   bool                         `json:"ambiguous"`
	Question    string                       `json:"question,omitempty"`
}

// PredictChapters previews the chapter prediction for a query.
// GET /api/v1/chapters/predict?q=...
func (h *ClassifyHandler) PredictChapters(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		respondError(c, errors.NewValidationError("q", "query parameter is required"))
		return
	}

	result := h.predictor.Predict(query)
	c.JSON(http.StatusOK, ChapterPredictionResponse{
		Predictions: result.Predictions,
		Ambiguous:   result.Ambiguous,
		Question:    result.Question,
	})
}
