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

// QuizHandler covers quiz CRUD, the publish/archive transitions, and the
// question set of a quiz.
type QuizHandler struct {
	BaseHandler
	quizService services.QuizService
}

func NewQuizHandler(quizService services.QuizService, logger utils.Logger) *QuizHandler {
	return &QuizHandler{
		BaseHandler: NewBaseHandler(logger),
		quizService: quizService,
	}
}

// POST /api/v1/quizzes
func (h *QuizHandler) Create(c *gin.Context) {
	userID, err := GetUserIDFromContext(c)
	if err != nil {
		h.RespondWithError(c, http.StatusUnauthorized, "authentication required", err)
		return
	}

	var req services.CreateQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	quiz, err := h.quizService.Create(c.Request.Context(), req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.RespondWithSuccess(c, http.StatusCreated, "quiz created", quiz)
}

// GET /api/v1/quizzes/:id
func (h *QuizHandler) GetByID(c *gin.Context) {
	quizID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	userID, _ := GetUserIDFromContext(c)

	quiz, err := h.quizService.GetByID(c.Request.Context(), quizID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.RespondWithSuccess(c, http.StatusOK, "quiz", quiz)
}

// PUT /api/v1/quizzes/:id
func (h *QuizHandler) Update(c *gin.Context) {
	quizID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	userID, err := GetUserIDFromContext(c)
	if err != nil {
		h.RespondWithError(c, http.StatusUnauthorized, "authentication required", err)
		return
	}

	var req services.UpdateQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	quiz, err := h.quizService.Update(c.Request.Context(), quizID, req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.RespondWithSuccess(c, http.StatusOK, "quiz updated", quiz)
}

// DELETE /api/v1/quizzes/:id
func (h *QuizHandler) Delete(c *gin.Context) {
	quizID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	userID, err := GetUserIDFromContext(c)
	if err != nil {
		h.RespondWithError(c, http.StatusUnauthorized, "authentication required", err)
		return
	}

	if err := h.quizService.Delete(c.Request.Context(), quizID, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.RespondWithSuccess(c, http.StatusOK, "quiz deleted", nil)
}

// GET /api/v1/quizzes
func (h *QuizHandler) List(c *gin.Context) {
	filters := repositories.QuizFilters{
		SortBy:    c.DefaultQuery("sort_by", "created_at"),
		SortOrder: c.DefaultQuery("sort_order", "desc"),
	}

	if status := c.Query("status"); status != "" {
		s := models.QuizStatus(status)
		filters.Status = &s
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

	quizzes, total, err := h.quizService.List(c.Request.Context(), filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.RespondWithSuccess(c, http.StatusOK, "quizzes", gin.H{
		"quizzes": quizzes,
		"total":   total,
	})
}

// POST /api/v1/quizzes/:id/publish
func (h *QuizHandler) Publish(c *gin.Context) {
	quizID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	userID, err := GetUserIDFromContext(c)
	if err != nil {
		h.RespondWithError(c, http.StatusUnauthorized, "authentication required", err)
		return
	}

	if err := h.quizService.Publish(c.Request.Context(), quizID, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.RespondWithSuccess(c, http.StatusOK, "quiz published", nil)
}

// POST /api/v1/quizzes/:id/archive
func (h *QuizHandler) Archive(c *gin.Context) {
	quizID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	userID, err := GetUserIDFromContext(c)
	if err != nil {
		h.RespondWithError(c, http.StatusUnauthorized, "authentication required", err)
		return
	}

	if err := h.quizService.Archive(c.Request.Context(), quizID, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.RespondWithSuccess(c, http.StatusOK, "quiz archived", nil)
}

// POST /api/v1/quizzes/:id/questions
func (h *QuizHandler) AddQuestion(c *gin.Context) {
	quizID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	userID, err := GetUserIDFromContext(c)
	if err != nil {
		h.RespondWithError(c, http.StatusUnauthorized, "authentication required", err)
		return
	}

	var req services.AddQuizQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if err := h.quizService.AddQuestion(c.Request.Context(), quizID, req, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.RespondWithSuccess(c, http.StatusCreated, "question added", nil)
}

// DELETE /api/v1/quizzes/:id/questions/:question_id
func (h *QuizHandler) RemoveQuestion(c *gin.Context) {
	quizID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	questionID, ok := parseUintParam(c, "question_id")
	if !ok {
		return
	}
	userID, err := GetUserIDFromContext(c)
	if err != nil {
		h.RespondWithError(c, http.StatusUnauthorized, "authentication required", err)
		return
	}

	if err := h.quizService.RemoveQuestion(c.Request.Context(), quizID, questionID, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.RespondWithSuccess(c, http.StatusOK, "question removed", nil)
}

// PUT /api/v1/quizzes/:id/questions/order
func (h *QuizHandler) ReorderQuestions(c *gin.Context) {
	quizID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	userID, err := GetUserIDFromContext(c)
	if err != nil {
		h.RespondWithError(c, http.StatusUnauthorized, "authentication required", err)
		return
	}

	var req struct {
		QuestionIDs []uint `json:"question_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if err := h.quizService.ReorderQuestions(c.Request.Context(), quizID, req.QuestionIDs, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.RespondWithSuccess(c, http.StatusOK, "questions reordered", nil)
}
