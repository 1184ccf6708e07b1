package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eduline/quiz-service/internal/services"
	"github.com/eduline/quiz-service/internal/utils"
)

// GradingHandler covers the teacher-side workflow: manual grades, the
// grading overview, and releasing results.
type GradingHandler struct {
	BaseHandler
	gradingService services.GradingService
}

func NewGradingHandler(gradingService services.GradingService, logger utils.Logger) *GradingHandler {
	return &GradingHandler{
		BaseHandler:    NewBaseHandler(logger),
		gradingService: gradingService,
	}
}

// GradeAnswer records manual marks for a short-answer response. Calling it
// again overwrites the previous grade.
// PUT /api/v1/answers/:id/grade
func (h *GradingHandler) GradeAnswer(c *gin.Context) {
	answerID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	graderID, err := GetUserIDFromContext(c)
	if err != nil {
		h.RespondWithError(c, http.StatusUnauthorized, "authentication required", err)
		return
	}

	var req services.GradeAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	result, err := h.gradingService.GradeAnswer(c.Request.Context(), answerID, graderID, req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.RespondWithSuccess(c, http.StatusOK, "answer graded", result)
}

// Overview shows the auto and manual score contributions and every answer's
// current marks, before or after release.
// GET /api/v1/attempts/:id/grading
func (h *GradingHandler) Overview(c *gin.Context) {
	attemptID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	teacherID, err := GetUserIDFromContext(c)
	if err != nil {
		h.RespondWithError(c, http.StatusUnauthorized, "authentication required", err)
		return
	}

	overview, err := h.gradingService.GradingOverview(c.Request.Context(), attemptID, teacherID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.RespondWithSuccess(c, http.StatusOK, "grading overview", overview)
}

// Release makes graded results visible to the student. One-way.
// POST /api/v1/attempts/:id/release
func (h *GradingHandler) Release(c *gin.Context) {
	attemptID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	teacherID, err := GetUserIDFromContext(c)
	if err != nil {
		h.RespondWithError(c, http.StatusUnauthorized, "authentication required", err)
		return
	}

	if err := h.gradingService.ReleaseResults(c.Request.Context(), attemptID, teacherID); err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.RespondWithSuccess(c, http.StatusOK, "results released", nil)
}
