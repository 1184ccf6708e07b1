package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"gorm.io/gorm"

	"github.com/eduline/quiz-service/internal/events"
	"github.com/eduline/quiz-service/internal/repositories"
	"github.com/eduline/quiz-service/internal/validator"
)

// serviceManager wires every service over one repository and shares the
// validator and event publisher between them.
type serviceManager struct {
	quizService     QuizService
	questionService QuestionService
	attemptService  AttemptService
	gradingService  GradingService

	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	publisher events.EventPublisher

	mu          sync.RWMutex
	initialized bool
}

type ServiceConfig struct {
	DB        *gorm.DB
	Repo      repositories.Repository
	Logger    *slog.Logger
	Validator *validator.Validator
	Publisher events.EventPublisher
}

func NewServiceManager(config ServiceConfig) (ServiceManager, error) {
	if config.DB == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if config.Repo == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Validator == nil {
		config.Validator = validator.New()
	}

	sm := &serviceManager{
		repo:      config.Repo,
		db:        config.DB,
		logger:    config.Logger,
		publisher: config.Publisher,
	}

	sm.quizService = NewQuizService(config.Repo, config.DB, config.Logger, config.Validator, config.Publisher)
	sm.questionService = NewQuestionService(config.Repo, config.DB, config.Logger, config.Validator)
	sm.attemptService = NewAttemptService(config.Repo, config.DB, config.Logger, config.Validator, config.Publisher)
	sm.gradingService = NewGradingService(config.Repo, config.DB, config.Logger, config.Validator, config.Publisher)

	return sm, nil
}

func (sm *serviceManager) Quiz() QuizService         { return sm.quizService }
func (sm *serviceManager) Question() QuestionService { return sm.questionService }
func (sm *serviceManager) Attempt() AttemptService   { return sm.attemptService }
func (sm *serviceManager) Grading() GradingService   { return sm.gradingService }

func (sm *serviceManager) Initialize(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.initialized {
		return nil
	}
	if err := sm.repo.Ping(ctx); err != nil {
		return fmt.Errorf("repository not reachable: %w", err)
	}
	sm.initialized = true
	sm.logger.Info("service manager initialized")
	return nil
}

func (sm *serviceManager) HealthCheck(ctx context.Context) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		return fmt.Errorf("service manager not initialized")
	}
	return sm.repo.Ping(ctx)
}

func (sm *serviceManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.publisher != nil {
		if err := sm.publisher.Close(); err != nil {
			sm.logger.Error("failed to close event publisher", "error", err)
		}
	}
	sm.initialized = false
	sm.logger.Info("service manager shut down")
	return nil
}
