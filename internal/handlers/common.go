package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/eduline/quiz-service/internal/services"
	"github.com/eduline/quiz-service/internal/utils"
)

// ===== COMMON RESPONSE STRUCTURES =====

type ErrorResponse struct {
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	Code    string      `json:"code,omitempty"`
}

type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ===== BASE HANDLER =====

// BaseHandler provides shared logging and response helpers for handlers.
type BaseHandler struct {
	logger utils.Logger
}

func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{logger: logger}
}

func (h *BaseHandler) LogError(c *gin.Context, err error, message string, additionalFields ...interface{}) {
	fields := []interface{}{
		"request_id", c.GetHeader("X-Request-ID"),
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
	}
	if userID, exists := c.Get("user_id"); exists {
		fields = append(fields, "user_id", userID)
	}
	fields = append(fields, additionalFields...)
	h.logger.LogError(err, message, fields...)
}

func (h *BaseHandler) RespondWithError(c *gin.Context, statusCode int, message string, err error, details ...interface{}) {
	errorResp := ErrorResponse{Message: message}
	if len(details) > 0 {
		errorResp.Details = details[0]
	}
	if err != nil {
		h.LogError(c, err, message, "status_code", statusCode)
	}
	c.JSON(statusCode, errorResp)
}

func (h *BaseHandler) RespondWithSuccess(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, SuccessResponse{Message: message, Data: data})
}

// handleServiceError maps service-layer errors to HTTP status codes. The
// default branch hides internal detail behind a 500.
func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	var validationErr *services.ValidationError
	var businessErr *services.BusinessRuleError
	var permissionErr *services.PermissionError

	switch {
	case services.IsNotFound(err):
		h.RespondWithError(c, http.StatusNotFound, err.Error(), nil)

	case errors.Is(err, services.ErrQuizUnavailable):
		h.RespondWithError(c, http.StatusForbidden, err.Error(), nil)

	case services.IsConflict(err):
		h.RespondWithError(c, http.StatusConflict, err.Error(), nil)

	case errors.Is(err, services.ErrAttemptNotSubmitted),
		errors.Is(err, services.ErrResultsNotReleased):
		h.RespondWithError(c, http.StatusForbidden, err.Error(), nil)

	case errors.Is(err, services.ErrQuestionNotInQuiz),
		errors.Is(err, services.ErrInvalidAnswerFormat),
		errors.Is(err, services.ErrGradingNotAllowed):
		h.RespondWithError(c, http.StatusBadRequest, err.Error(), nil)

	case errors.As(err, &validationErr):
		h.RespondWithError(c, http.StatusBadRequest, "validation failed", nil, validationErr)

	case errors.As(err, &businessErr):
		h.RespondWithError(c, http.StatusUnprocessableEntity, businessErr.Message, nil, businessErr)

	case errors.As(err, &permissionErr), services.IsPermissionDenied(err):
		h.RespondWithError(c, http.StatusForbidden, "permission denied", nil)

	default:
		h.RespondWithError(c, http.StatusInternalServerError, "internal server error", err)
	}
}

// parseUintParam reads a numeric path parameter.
func parseUintParam(c *gin.Context, name string) (uint, bool) {
	value, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "invalid " + name + " parameter",
		})
		return 0, false
	}
	return uint(value), true
}
