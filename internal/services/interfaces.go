package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/eduline/quiz-service/internal/models"
	"github.com/eduline/quiz-service/internal/repositories"
)

// ===== REQUEST DTOs =====

type CreateQuizRequest struct {
	Title              string     `json:"title" validate:"required,max=255"`
	SubjectID          *uint      `json:"subject_id"`
	Description        *string    `json:"description"`
	TimeLimit          int        `json:"time_limit" validate:"required,min=1,max=480"`
	MaxAttempts        int        `json:"max_attempts" validate:"min=1,max=10"`
	PassingScore       float64    `json:"passing_score" validate:"min=0,max=100"`
	RandomizeQuestions bool       `json:"randomize_questions"`
	PracticeMode       bool       `json:"practice_mode"`
	ScheduledStart     *time.Time `json:"scheduled_start"`
	ScheduledEnd       *time.Time `json:"scheduled_end"`
}

type UpdateQuizRequest struct {
	Title              *string    `json:"title" validate:"omitempty,max=255"`
	Description        *string    `json:"description"`
	TimeLimit          *int       `json:"time_limit" validate:"omitempty,min=1,max=480"`
	MaxAttempts        *int       `json:"max_attempts" validate:"omitempty,min=1,max=10"`
	PassingScore       *float64   `json:"passing_score" validate:"omitempty,min=0,max=100"`
	RandomizeQuestions *bool      `json:"randomize_questions"`
	ScheduledStart     *time.Time `json:"scheduled_start"`
	ScheduledEnd       *time.Time `json:"scheduled_end"`
}

type AddQuizQuestionRequest struct {
	QuestionID uint `json:"question_id" validate:"required"`
	Order      int  `json:"order"`
	Points     *int `json:"points" validate:"omitempty,min=1,max=100"`
}

type CreateQuestionRequest struct {
	Type        models.QuestionType `json:"type" validate:"required"`
	Text        string              `json:"text" validate:"required"`
	Points      int                 `json:"points" validate:"min=1,max=100"`
	Content     json.RawMessage     `json:"content" validate:"required"`
	Explanation *string             `json:"explanation"`
}

type UpdateQuestionRequest struct {
	Text        *string         `json:"text"`
	Points      *int            `json:"points" validate:"omitempty,min=1,max=100"`
	Content     json.RawMessage `json:"content"`
	Explanation *string         `json:"explanation"`
}

type SaveAnswerRequest struct {
	QuestionID uint            `json:"question_id" validate:"required"`
	Answer     json.RawMessage `json:"answer" validate:"required"`
}

type SubmitAttemptRequest struct {
	TimeTakenSeconds int `json:"time_taken_seconds" validate:"min=0"`
}

type GradeAnswerRequest struct {
	MarksAwarded float64 `json:"marks_awarded" validate:"min=0"`
	Feedback     *string `json:"feedback"`
}

// ===== RESPONSE DTOs =====

// QuestionForAttempt is a question as served to a student mid-attempt:
// correct answers stripped, matching right column in the attempt's fixed
// shuffle order.
type QuestionForAttempt struct {
	ID      uint                `json:"id"`
	Type    models.QuestionType `json:"type"`
	Text    string              `json:"text"`
	Points  int                 `json:"points"`
	Order   int                 `json:"order"`
	Content json.RawMessage     `json:"content"`
}

type AttemptResponse struct {
	*models.QuizAttempt
	TimeRemainingSeconds int                  `json:"time_remaining_seconds"`
	CanSubmit            bool                 `json:"can_submit"`
	Resumed              bool                 `json:"resumed"`
	Questions            []QuestionForAttempt `json:"questions,omitempty"`
}

// SubmitResult is the finalized summary returned from Submit; a repeated
// Submit returns the same summary without re-grading.
type SubmitResult struct {
	AttemptID     uint                 `json:"attempt_id"`
	Status        models.AttemptStatus `json:"status"`
	EndReason     string               `json:"end_reason"`
	AutoScore     float64              `json:"auto_score"`
	ManualScore   *float64             `json:"manual_score,omitempty"`
	TotalScore    float64              `json:"total_score"`
	MaxScore      int                  `json:"max_score"`
	PendingManual int                  `json:"pending_manual"`
	AlreadyFinal  bool                 `json:"already_final"`
	SubmittedAt   *time.Time           `json:"submitted_at"`
}

// AnswerResult is the per-answer breakdown inside results and grading
// views. Correctness fields are omitted for students before release.
type AnswerResult struct {
	AnswerID     uint                `json:"answer_id"`
	QuestionID   uint                `json:"question_id"`
	QuestionText string              `json:"question_text"`
	Type         models.QuestionType `json:"type"`
	Value        json.RawMessage     `json:"value,omitempty"`
	IsCorrect    *bool               `json:"is_correct,omitempty"`
	MarksAwarded *float64            `json:"marks_awarded,omitempty"`
	MaxMarks     int                 `json:"max_marks"`
	Feedback     *string             `json:"feedback,omitempty"`
	ManualGraded bool                `json:"manual_graded"`
}

type AttemptResultsResponse struct {
	AttemptID   uint                 `json:"attempt_id"`
	QuizID      uint                 `json:"quiz_id"`
	Status      models.AttemptStatus `json:"status"`
	Released    bool                 `json:"released"`
	AutoScore   *float64             `json:"auto_score,omitempty"`
	ManualScore *float64             `json:"manual_score,omitempty"`
	TotalScore  *float64             `json:"total_score,omitempty"`
	MaxScore    int                  `json:"max_score"`
	Answers     []AnswerResult       `json:"answers,omitempty"`
}

// GradingOverviewResponse shows a teacher where a score came from: auto
// and manual contributions listed separately plus their sum.
type GradingOverviewResponse struct {
	AttemptID  uint                       `json:"attempt_id"`
	Stats      *repositories.GradingStats `json:"stats"`
	TotalScore float64                    `json:"total_score"`
	Released   bool                       `json:"released"`
	Answers    []AnswerResult             `json:"answers"`
}

type GradingResult struct {
	AnswerID     uint       `json:"answer_id"`
	QuestionID   uint       `json:"question_id"`
	MarksAwarded float64    `json:"marks_awarded"`
	MaxMarks     int        `json:"max_marks"`
	IsCorrect    bool       `json:"is_correct"`
	Feedback     *string    `json:"feedback,omitempty"`
	GradedAt     time.Time  `json:"graded_at"`
	GradedBy     *string    `json:"graded_by,omitempty"`
}

// ===== SERVICE INTERFACES =====

type QuizService interface {
	Create(ctx context.Context, req CreateQuizRequest, userID string) (*models.Quiz, error)
	GetByID(ctx context.Context, id uint, userID string) (*models.Quiz, error)
	Update(ctx context.Context, id uint, req UpdateQuizRequest, userID string) (*models.Quiz, error)
	Delete(ctx context.Context, id uint, userID string) error
	List(ctx context.Context, filters repositories.QuizFilters) ([]*models.Quiz, int64, error)
	Publish(ctx context.Context, id uint, userID string) error
	Archive(ctx context.Context, id uint, userID string) error
	AddQuestion(ctx context.Context, quizID uint, req AddQuizQuestionRequest, userID string) error
	RemoveQuestion(ctx context.Context, quizID, questionID uint, userID string) error
	ReorderQuestions(ctx context.Context, quizID uint, questionIDs []uint, userID string) error
}

type QuestionService interface {
	Create(ctx context.Context, req CreateQuestionRequest, userID string) (*models.Question, error)
	GetByID(ctx context.Context, id uint) (*models.Question, error)
	Update(ctx context.Context, id uint, req UpdateQuestionRequest, userID string) (*models.Question, error)
	Delete(ctx context.Context, id uint, userID string) error
	List(ctx context.Context, filters repositories.QuestionFilters) ([]*models.Question, int64, error)
}

type AttemptService interface {
	Start(ctx context.Context, quizID uint, userID string) (*AttemptResponse, error)
	SaveAnswer(ctx context.Context, attemptID uint, userID string, req SaveAnswerRequest) error
	Submit(ctx context.Context, attemptID uint, userID string, req SubmitAttemptRequest) (*SubmitResult, error)
	HandleTimeout(ctx context.Context, attemptID uint) (*SubmitResult, error)
	TimeRemaining(ctx context.Context, attemptID uint, userID string) (int, error)
	GetResults(ctx context.Context, attemptID uint, callerID string) (*AttemptResultsResponse, error)
}

type GradingService interface {
	GradeAnswer(ctx context.Context, answerID uint, graderID string, req GradeAnswerRequest) (*GradingResult, error)
	ReleaseResults(ctx context.Context, attemptID uint, teacherID string) error
	GradingOverview(ctx context.Context, attemptID uint, teacherID string) (*GradingOverviewResponse, error)
}

// ServiceManager wires all services behind one dependency root.
type ServiceManager interface {
	Quiz() QuizService
	Question() QuestionService
	Attempt() AttemptService
	Grading() GradingService

	Initialize(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
