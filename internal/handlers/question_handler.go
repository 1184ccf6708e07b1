package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/eduline/quiz-service/internal/models"
	"github.com/eduline/quiz-service/internal/repositories"
	"github.com/eduline/quiz-service/internal/services"
	"github.com/eduline/quiz-service/internal/utils"
)

type QuestionHandler struct {
	BaseHandler
	questionService services.QuestionService
}

func NewQuestionHandler(questionService services.QuestionService, logger utils.Logger) *QuestionHandler {
	return &QuestionHandler{
		BaseHandler:     NewBaseHandler(logger),
		questionService: questionService,
	}
}

// POST /api/v1/questions
func (h *QuestionHandler) Create(c *gin.Context) {
	userID, err := GetUserIDFromContext(c)
	if err != nil {
		h.RespondWithError(c, http.StatusUnauthorized, "authentication required", err)
		return
	}

	var req services.CreateQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	question, err := h.questionService.Create(c.Request.Context(), req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.RespondWithSuccess(c, http.StatusCreated, "question created", question)
}

// GET /api/v1/questions/:id
func (h *QuestionHandler) GetByID(c *gin.Context) {
	questionID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	question, err := h.questionService.GetByID(c.Request.Context(), questionID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.RespondWithSuccess(c, http.StatusOK, "question", question)
}

// PUT /api/v1/questions/:id
func (h *QuestionHandler) Update(c *gin.Context) {
	questionID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	userID, err := GetUserIDFromContext(c)
	if err != nil {
		h.RespondWithError(c, http.StatusUnauthorized, "authentication required", err)
		return
	}

	var req services.UpdateQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	question, err := h.questionService.Update(c.Request.Context(), questionID, req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.RespondWithSuccess(c, http.StatusOK, "question updated", question)
}

// DELETE /api/v1/questions/:id
func (h *QuestionHandler) Delete(c *gin.Context) {
	questionID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	userID, err := GetUserIDFromContext(c)
	if err != nil {
		h.RespondWithError(c, http.StatusUnauthorized, "authentication required", err)
		return
	}

	if err := h.questionService.Delete(c.Request.Context(), questionID, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.RespondWithSuccess(c, http.StatusOK, "question deleted", nil)
}

// GET /api/v1/questions
func (h *QuestionHandler) List(c *gin.Context) {
	filters := repositories.QuestionFilters{
		SortBy:    c.DefaultQuery("sort_by", "created_at"),
		SortOrder: c.DefaultQuery("sort_order", "desc"),
	}

	if qType := c.Query("type"); qType != "" {
		t := models.QuestionType(qType)
		filters.Type = &t
	}
	if search := c.Query("search"); search != "" {
		filters.Search = &search
	}
	if createdBy := c.Query("created_by"); createdBy != "" {
		filters.CreatedBy = &createdBy
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filters.Limit = limit
	}
	if offset, err := strconv.Atoi(c.DefaultQuery("offset", "0")); err == nil {
		filters.Offset = offset
	}

	questions, total, err := h.questionService.List(c.Request.Context(), filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.RespondWithSuccess(c, http.StatusOK, "questions", gin.H{
		"questions": questions,
		"total":     total,
	})
}
