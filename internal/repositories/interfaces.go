package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/eduline/quiz-service/internal/models"
)

// ===== QUIZ =====

type QuizRepository interface {
	Create(ctx context.Context, tx *gorm.DB, quiz *models.Quiz) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Quiz, error)
	GetByIDWithQuestions(ctx context.Context, tx *gorm.DB, id uint) (*models.Quiz, error)
	Update(ctx context.Context, tx *gorm.DB, quiz *models.Quiz) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error
	List(ctx context.Context, tx *gorm.DB, filters QuizFilters) ([]*models.Quiz, int64, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, id uint, status models.QuizStatus) error
}

type QuizQuestionRepository interface {
	Add(ctx context.Context, tx *gorm.DB, link *models.QuizQuestion) error
	Remove(ctx context.Context, tx *gorm.DB, quizID, questionID uint) error
	GetByQuiz(ctx context.Context, tx *gorm.DB, quizID uint) ([]*models.QuizQuestion, error)
	Reorder(ctx context.Context, tx *gorm.DB, quizID uint, questionIDs []uint) error
	CountByQuiz(ctx context.Context, tx *gorm.DB, quizID uint) (int64, error)
}

// ===== QUESTION =====

type QuestionRepository interface {
	Create(ctx context.Context, tx *gorm.DB, question *models.Question) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.Question, error)
	Update(ctx context.Context, tx *gorm.DB, question *models.Question) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error
	List(ctx context.Context, tx *gorm.DB, filters QuestionFilters) ([]*models.Question, int64, error)
}

// ===== ATTEMPT =====

type AttemptRepository interface {
	Create(ctx context.Context, tx *gorm.DB, attempt *models.QuizAttempt) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.QuizAttempt, error)
	GetByIDWithDetails(ctx context.Context, tx *gorm.DB, id uint) (*models.QuizAttempt, error)
	Update(ctx context.Context, tx *gorm.DB, attempt *models.QuizAttempt) error
	List(ctx context.Context, tx *gorm.DB, filters AttemptFilters) ([]*models.QuizAttempt, int64, error)
	GetActiveAttempt(ctx context.Context, tx *gorm.DB, userID string, quizID uint) (*models.QuizAttempt, error)
	CountByUserAndQuiz(ctx context.Context, tx *gorm.DB, userID string, quizID uint) (int64, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, id uint, status models.AttemptStatus) error
	GetExpired(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]*models.QuizAttempt, error)
}

type AnswerRepository interface {
	Upsert(ctx context.Context, tx *gorm.DB, answer *models.AttemptAnswer) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.AttemptAnswer, error)
	GetByIDWithDetails(ctx context.Context, tx *gorm.DB, id uint) (*models.AttemptAnswer, error)
	GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]*models.AttemptAnswer, error)
	GetByAttemptAndQuestion(ctx context.Context, tx *gorm.DB, attemptID, questionID uint) (*models.AttemptAnswer, error)
	Update(ctx context.Context, tx *gorm.DB, answer *models.AttemptAnswer) error
	UpdateBatch(ctx context.Context, tx *gorm.DB, answers []*models.AttemptAnswer) error
	GetGradingStats(ctx context.Context, tx *gorm.DB, attemptID uint) (*GradingStats, error)
	AreAllAnswersGraded(ctx context.Context, tx *gorm.DB, attemptID uint) (bool, error)
}

// ===== USER =====

// UserRepository is read-only; identity lives in the external provider.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetRole(ctx context.Context, id string) (models.UserRole, error)
}

// ===== FILTERS =====

type QuizFilters struct {
	Status    *models.QuizStatus
	SubjectID *uint
	CreatedBy *string
	Search    *string
	SortBy    string
	SortOrder string
	Limit     int
	Offset    int
}

type QuestionFilters struct {
	Type      *models.QuestionType
	CreatedBy *string
	Search    *string
	SortBy    string
	SortOrder string
	Limit     int
	Offset    int
}

type AttemptFilters struct {
	QuizID    *uint
	UserID    *string
	Status    *models.AttemptStatus
	DateFrom  *time.Time
	DateTo    *time.Time
	SortBy    string
	SortOrder string
	Limit     int
	Offset    int
}

// ===== STATS =====

// GradingStats separates auto and manual contributions so a teacher can
// audit where a total came from.
type GradingStats struct {
	AttemptID     uint    `json:"attempt_id"`
	TotalAnswers  int     `json:"total_answers"`
	AutoGraded    int     `json:"auto_graded"`
	ManualGraded  int     `json:"manual_graded"`
	PendingManual int     `json:"pending_manual"`
	AutoScore     float64 `json:"auto_score"`
	ManualScore   float64 `json:"manual_score"`
	MaxScore      int     `json:"max_score"`
}

// ===== AGGREGATE =====

type Repository interface {
	Quiz() QuizRepository
	QuizQuestion() QuizQuestionRepository
	Question() QuestionRepository
	Attempt() AttemptRepository
	Answer() AnswerRepository
	User() UserRepository

	WithTransaction(ctx context.Context, fn func(Repository) error) error
	Ping(ctx context.Context) error
	Close() error
}

// RepositoryManager owns repository lifecycle.
type RepositoryManager interface {
	Initialize() error
	GetRepository() Repository
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
