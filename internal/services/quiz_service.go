package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/eduline/quiz-service/internal/events"
	"github.com/eduline/quiz-service/internal/models"
	"github.com/eduline/quiz-service/internal/repositories"
	"github.com/eduline/quiz-service/internal/validator"
)

type quizService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
	publisher events.EventPublisher
}

func NewQuizService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, v *validator.Validator, publisher events.EventPublisher) QuizService {
	return &quizService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: v,
		publisher: publisher,
	}
}

func (s *quizService) Create(ctx context.Context, req CreateQuizRequest, userID string) (*models.Quiz, error) {
	if err := s.validator.ValidateStruct(&req); err != nil {
		return nil, NewValidationError("request", err.Error(), nil)
	}
	if req.ScheduledStart != nil && req.ScheduledEnd != nil && req.ScheduledEnd.Before(*req.ScheduledStart) {
		return nil, NewValidationError("scheduled_end", "scheduled end precedes scheduled start", req.ScheduledEnd)
	}

	maxAttempts := req.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 1
	}

	quiz := &models.Quiz{
		Title:              req.Title,
		SubjectID:          req.SubjectID,
		Description:        req.Description,
		Status:             models.QuizDraft,
		TimeLimit:          req.TimeLimit,
		MaxAttempts:        maxAttempts,
		PassingScore:       req.PassingScore,
		RandomizeQuestions: req.RandomizeQuestions,
		PracticeMode:       req.PracticeMode,
		ScheduledStart:     req.ScheduledStart,
		ScheduledEnd:       req.ScheduledEnd,
		CreatedBy:          userID,
	}

	if err := s.repo.Quiz().Create(ctx, nil, quiz); err != nil {
		return nil, fmt.Errorf("failed to create quiz: %w", err)
	}

	s.logger.Info("quiz created", "quiz_id", quiz.ID, "created_by", userID)
	return quiz, nil
}

// GetByID returns the quiz. Question payloads carry the answer key, so
// they are included only for the owner and graders; students get the quiz
// metadata and receive sanitized questions when they start an attempt.
func (s *quizService) GetByID(ctx context.Context, id uint, userID string) (*models.Quiz, error) {
	quiz, err := s.repo.Quiz().GetByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}

	// Drafts are visible only to their author.
	if quiz.Status == models.QuizDraft && quiz.CreatedBy != userID {
		return nil, ErrQuizNotFound
	}

	if quiz.CreatedBy != userID {
		role, err := s.repo.User().GetRole(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve caller role: %w", err)
		}
		if role != models.RoleTeacher && role != models.RoleAdmin {
			public := *quiz
			public.Questions = nil
			return &public, nil
		}
	}

	full, err := s.repo.Quiz().GetByIDWithQuestions(ctx, nil, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get quiz questions: %w", err)
	}
	return full, nil
}

func (s *quizService) Update(ctx context.Context, id uint, req UpdateQuizRequest, userID string) (*models.Quiz, error) {
	if err := s.validator.ValidateStruct(&req); err != nil {
		return nil, NewValidationError("request", err.Error(), nil)
	}

	quiz, err := s.getOwnedQuiz(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if quiz.Status == models.QuizArchived {
		return nil, ErrQuizNotEditable
	}

	if req.Title != nil {
		quiz.Title = *req.Title
	}
	if req.Description != nil {
		quiz.Description = req.Description
	}
	if req.TimeLimit != nil {
		quiz.TimeLimit = *req.TimeLimit
	}
	if req.MaxAttempts != nil {
		quiz.MaxAttempts = *req.MaxAttempts
	}
	if req.PassingScore != nil {
		quiz.PassingScore = *req.PassingScore
	}
	if req.RandomizeQuestions != nil {
		quiz.RandomizeQuestions = *req.RandomizeQuestions
	}
	if req.ScheduledStart != nil {
		quiz.ScheduledStart = req.ScheduledStart
	}
	if req.ScheduledEnd != nil {
		quiz.ScheduledEnd = req.ScheduledEnd
	}
	if quiz.ScheduledStart != nil && quiz.ScheduledEnd != nil && quiz.ScheduledEnd.Before(*quiz.ScheduledStart) {
		return nil, NewValidationError("scheduled_end", "scheduled end precedes scheduled start", quiz.ScheduledEnd)
	}

	if err := s.repo.Quiz().Update(ctx, nil, quiz); err != nil {
		return nil, fmt.Errorf("failed to update quiz: %w", err)
	}
	return quiz, nil
}

func (s *quizService) Delete(ctx context.Context, id uint, userID string) error {
	quiz, err := s.getOwnedQuiz(ctx, id, userID)
	if err != nil {
		return err
	}
	if quiz.Status == models.QuizPublished {
		return NewBusinessRuleError("no_delete_published", "published quizzes must be archived first")
	}
	if err := s.repo.Quiz().Delete(ctx, nil, id); err != nil {
		return fmt.Errorf("failed to delete quiz: %w", err)
	}
	s.logger.Info("quiz deleted", "quiz_id", id, "deleted_by", userID)
	return nil
}

func (s *quizService) List(ctx context.Context, filters repositories.QuizFilters) ([]*models.Quiz, int64, error) {
	return s.repo.Quiz().List(ctx, nil, filters)
}

// Publish makes the quiz available for attempts. A quiz with no questions
// cannot be published.
func (s *quizService) Publish(ctx context.Context, id uint, userID string) error {
	quiz, err := s.getOwnedQuiz(ctx, id, userID)
	if err != nil {
		return err
	}
	if quiz.Status != models.QuizDraft {
		return ErrQuizNotEditable
	}

	count, err := s.repo.QuizQuestion().CountByQuiz(ctx, nil, id)
	if err != nil {
		return fmt.Errorf("failed to count quiz questions: %w", err)
	}
	if count == 0 {
		return NewBusinessRuleError("publish_needs_questions", "quiz has no questions")
	}

	if err := s.repo.Quiz().UpdateStatus(ctx, nil, id, models.QuizPublished); err != nil {
		return fmt.Errorf("failed to publish quiz: %w", err)
	}
	s.logger.Info("quiz published", "quiz_id", id, "published_by", userID)
	return nil
}

func (s *quizService) Archive(ctx context.Context, id uint, userID string) error {
	quiz, err := s.getOwnedQuiz(ctx, id, userID)
	if err != nil {
		return err
	}
	if quiz.Status == models.QuizArchived {
		return ErrQuizNotEditable
	}
	if err := s.repo.Quiz().UpdateStatus(ctx, nil, id, models.QuizArchived); err != nil {
		return fmt.Errorf("failed to archive quiz: %w", err)
	}
	s.logger.Info("quiz archived", "quiz_id", id, "archived_by", userID)
	return nil
}

// AddQuestion links an existing question into the quiz. Editing the
// question set of a published quiz is not allowed.
func (s *quizService) AddQuestion(ctx context.Context, quizID uint, req AddQuizQuestionRequest, userID string) error {
	if err := s.validator.ValidateStruct(&req); err != nil {
		return NewValidationError("request", err.Error(), nil)
	}

	quiz, err := s.getOwnedQuiz(ctx, quizID, userID)
	if err != nil {
		return err
	}
	if quiz.Status != models.QuizDraft {
		return ErrQuizNotEditable
	}

	if _, err := s.repo.Question().GetByID(ctx, nil, req.QuestionID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrQuestionNotFound
		}
		return fmt.Errorf("failed to get question: %w", err)
	}

	order := req.Order
	if order == 0 {
		count, err := s.repo.QuizQuestion().CountByQuiz(ctx, nil, quizID)
		if err != nil {
			return fmt.Errorf("failed to count quiz questions: %w", err)
		}
		order = int(count) + 1
	}

	link := &models.QuizQuestion{
		QuizID:     quizID,
		QuestionID: req.QuestionID,
		Order:      order,
		Points:     req.Points,
	}
	if err := s.repo.QuizQuestion().Add(ctx, nil, link); err != nil {
		return fmt.Errorf("failed to add question to quiz: %w", err)
	}
	return nil
}

func (s *quizService) RemoveQuestion(ctx context.Context, quizID, questionID uint, userID string) error {
	quiz, err := s.getOwnedQuiz(ctx, quizID, userID)
	if err != nil {
		return err
	}
	if quiz.Status != models.QuizDraft {
		return ErrQuizNotEditable
	}
	if err := s.repo.QuizQuestion().Remove(ctx, nil, quizID, questionID); err != nil {
		return fmt.Errorf("failed to remove question from quiz: %w", err)
	}
	return nil
}

func (s *quizService) ReorderQuestions(ctx context.Context, quizID uint, questionIDs []uint, userID string) error {
	quiz, err := s.getOwnedQuiz(ctx, quizID, userID)
	if err != nil {
		return err
	}
	if quiz.Status != models.QuizDraft {
		return ErrQuizNotEditable
	}

	links, err := s.repo.QuizQuestion().GetByQuiz(ctx, nil, quizID)
	if err != nil {
		return fmt.Errorf("failed to get quiz questions: %w", err)
	}
	if len(questionIDs) != len(links) {
		return NewValidationError("question_ids", "reorder list must contain every quiz question exactly once", questionIDs)
	}
	existing := make(map[uint]bool, len(links))
	for _, link := range links {
		existing[link.QuestionID] = true
	}
	for _, id := range questionIDs {
		if !existing[id] {
			return fmt.Errorf("%w: question %d", ErrQuestionNotInQuiz, id)
		}
	}

	return s.repo.QuizQuestion().Reorder(ctx, nil, quizID, questionIDs)
}

func (s *quizService) getOwnedQuiz(ctx context.Context, id uint, userID string) (*models.Quiz, error) {
	quiz, err := s.repo.Quiz().GetByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}
	if quiz.CreatedBy != userID {
		role, err := s.repo.User().GetRole(ctx, userID)
		if err != nil || role != models.RoleAdmin {
			return nil, NewPermissionError(userID, id, "quiz", "modify", "quiz belongs to another user")
		}
	}
	return quiz, nil
}
