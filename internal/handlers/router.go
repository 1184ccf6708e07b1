package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eduline/quiz-service/internal/config"
	"github.com/eduline/quiz-service/internal/models"
	"github.com/eduline/quiz-service/internal/repositories"
	"github.com/eduline/quiz-service/internal/services"
	"github.com/eduline/quiz-service/internal/utils"
)

// HandlerManager owns every HTTP handler and the auth middleware.
type HandlerManager struct {
	quiz     *QuizHandler
	question *QuestionHandler
	attempt  *AttemptHandler
	grading  *GradingHandler

	auth           *CasdoorAuthMiddleware
	serviceManager services.ServiceManager
	logger         utils.Logger
}

func NewHandlerManager(sm services.ServiceManager, userRepo repositories.UserRepository, casdoorCfg config.CasdoorConfig, logger utils.Logger) *HandlerManager {
	return &HandlerManager{
		quiz:           NewQuizHandler(sm.Quiz(), logger),
		question:       NewQuestionHandler(sm.Question(), logger),
		attempt:        NewAttemptHandler(sm.Attempt(), logger),
		grading:        NewGradingHandler(sm.Grading(), logger),
		auth:           NewCasdoorAuthMiddleware(casdoorCfg, userRepo),
		serviceManager: sm,
		logger:         logger,
	}
}

// SetupRoutes mounts the API. Authoring and grading routes require a
// teacher role; attempt routes need only an authenticated user.
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	router.GET("/health", hm.healthCheck)

	v1 := router.Group("/api/v1")
	v1.Use(hm.auth.AuthMiddleware())

	teacherOnly := hm.auth.RequireRoleMiddleware(models.RoleTeacher)

	quizzes := v1.Group("/quizzes")
	{
		quizzes.GET("", hm.quiz.List)
		quizzes.GET("/:id", hm.quiz.GetByID)
		quizzes.POST("", teacherOnly, hm.quiz.Create)
		quizzes.PUT("/:id", teacherOnly, hm.quiz.Update)
		quizzes.DELETE("/:id", teacherOnly, hm.quiz.Delete)
		quizzes.POST("/:id/publish", teacherOnly, hm.quiz.Publish)
		quizzes.POST("/:id/archive", teacherOnly, hm.quiz.Archive)

		quizzes.POST("/:id/questions", teacherOnly, hm.quiz.AddQuestion)
		quizzes.DELETE("/:id/questions/:question_id", teacherOnly, hm.quiz.RemoveQuestion)
		quizzes.PUT("/:id/questions/order", teacherOnly, hm.quiz.ReorderQuestions)

		quizzes.POST("/:id/attempts", hm.attempt.Start)
	}

	questions := v1.Group("/questions", teacherOnly)
	{
		questions.GET("", hm.question.List)
		questions.GET("/:id", hm.question.GetByID)
		questions.POST("", hm.question.Create)
		questions.PUT("/:id", hm.question.Update)
		questions.DELETE("/:id", hm.question.Delete)
	}

	attempts := v1.Group("/attempts")
	{
		attempts.PUT("/:id/answers", hm.attempt.SaveAnswer)
		attempts.POST("/:id/submit", hm.attempt.Submit)
		attempts.GET("/:id/time-remaining", hm.attempt.TimeRemaining)
		attempts.GET("/:id/results", hm.attempt.Results)

		attempts.GET("/:id/grading", teacherOnly, hm.grading.Overview)
		attempts.POST("/:id/release", teacherOnly, hm.grading.Release)
	}

	answers := v1.Group("/answers", teacherOnly)
	{
		answers.PUT("/:id/grade", hm.grading.GradeAnswer)
	}
}

func (hm *HandlerManager) healthCheck(c *gin.Context) {
	ctx := c.Request.Context()
	if err := hm.serviceManager.HealthCheck(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "unhealthy",
			"error":     err.Error(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "quiz-service",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
