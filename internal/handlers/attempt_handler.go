package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eduline/quiz-service/internal/services"
	"github.com/eduline/quiz-service/internal/utils"
)

// AttemptHandler covers the attempt lifecycle: start, answer saves, submit,
// the countdown endpoint, and results.
type AttemptHandler struct {
	BaseHandler
	attemptService services.AttemptService
}

func NewAttemptHandler(attemptService services.AttemptService, logger utils.Logger) *AttemptHandler {
	return &AttemptHandler{
		BaseHandler:    NewBaseHandler(logger),
		attemptService: attemptService,
	}
}

// Start creates a new attempt for the quiz, or resumes the caller's
// in-progress one.
// POST /api/v1/quizzes/:id/attempts
func (h *AttemptHandler) Start(c *gin.Context) {
	quizID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	userID, err := GetUserIDFromContext(c)
	if err != nil {
		h.RespondWithError(c, http.StatusUnauthorized, "authentication required", err)
		return
	}

	attempt, err := h.attemptService.Start(c.Request.Context(), quizID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	status := http.StatusCreated
	if attempt.Resumed {
		status = http.StatusOK
	}
	h.RespondWithSuccess(c, status, "attempt started", attempt)
}

// SaveAnswer upserts one answer; clients call it on every change and on
// navigation. Repeats are harmless.
// PUT /api/v1/attempts/:id/answers
func (h *AttemptHandler) SaveAnswer(c *gin.Context) {
	attemptID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	userID, err := GetUserIDFromContext(c)
	if err != nil {
		h.RespondWithError(c, http.StatusUnauthorized, "authentication required", err)
		return
	}

	var req services.SaveAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if err := h.attemptService.SaveAnswer(c.Request.Context(), attemptID, userID, req); err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.RespondWithSuccess(c, http.StatusOK, "answer saved", nil)
}

// Submit finalizes the attempt. Submitting an already-closed attempt
// returns the existing summary with already_final set.
// POST /api/v1/attempts/:id/submit
func (h *AttemptHandler) Submit(c *gin.Context) {
	attemptID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	userID, err := GetUserIDFromContext(c)
	if err != nil {
		h.RespondWithError(c, http.StatusUnauthorized, "authentication required", err)
		return
	}

	var req services.SubmitAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		h.RespondWithError(c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	result, err := h.attemptService.Submit(c.Request.Context(), attemptID, userID, req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.RespondWithSuccess(c, http.StatusOK, "attempt submitted", result)
}

// TimeRemaining returns the seconds left, clamped at zero.
// GET /api/v1/attempts/:id/time-remaining
func (h *AttemptHandler) TimeRemaining(c *gin.Context) {
	attemptID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	userID, err := GetUserIDFromContext(c)
	if err != nil {
		h.RespondWithError(c, http.StatusUnauthorized, "authentication required", err)
		return
	}

	remaining, err := h.attemptService.TimeRemaining(c.Request.Context(), attemptID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.RespondWithSuccess(c, http.StatusOK, "time remaining", gin.H{
		"attempt_id":             attemptID,
		"time_remaining_seconds": remaining,
	})
}

// Results returns the attempt outcome. Students get per-answer detail only
// after release; graders see it immediately.
// GET /api/v1/attempts/:id/results
func (h *AttemptHandler) Results(c *gin.Context) {
	attemptID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	userID, err := GetUserIDFromContext(c)
	if err != nil {
		h.RespondWithError(c, http.StatusUnauthorized, "authentication required", err)
		return
	}

	results, err := h.attemptService.GetResults(c.Request.Context(), attemptID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.RespondWithSuccess(c, http.StatusOK, "attempt results", results)
}
