package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/eduline/quiz-service/internal/models"
	"github.com/eduline/quiz-service/internal/repositories"
	"github.com/eduline/quiz-service/internal/validator"
)

type questionService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
}

func NewQuestionService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, v *validator.Validator) QuestionService {
	return &questionService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: v,
	}
}

func (s *questionService) Create(ctx context.Context, req CreateQuestionRequest, userID string) (*models.Question, error) {
	if err := s.validator.ValidateStruct(&req); err != nil {
		return nil, NewValidationError("request", err.Error(), nil)
	}
	if err := s.validator.ValidateQuestionContent(req.Type, req.Content); err != nil {
		return nil, NewValidationError("content", err.Error(), nil)
	}

	points := req.Points
	if points == 0 {
		points = 10
	}

	question := &models.Question{
		Type:        req.Type,
		Text:        req.Text,
		Points:      points,
		Content:     []byte(req.Content),
		Explanation: req.Explanation,
		CreatedBy:   userID,
	}
	if err := s.repo.Question().Create(ctx, nil, question); err != nil {
		return nil, fmt.Errorf("failed to create question: %w", err)
	}

	s.logger.Info("question created",
		"question_id", question.ID,
		"type", question.Type,
		"created_by", userID)
	return question, nil
}

func (s *questionService) GetByID(ctx context.Context, id uint) (*models.Question, error) {
	question, err := s.repo.Question().GetByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("failed to get question: %w", err)
	}
	return question, nil
}

func (s *questionService) Update(ctx context.Context, id uint, req UpdateQuestionRequest, userID string) (*models.Question, error) {
	if err := s.validator.ValidateStruct(&req); err != nil {
		return nil, NewValidationError("request", err.Error(), nil)
	}

	question, err := s.getOwnedQuestion(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	if req.Text != nil {
		question.Text = *req.Text
	}
	if req.Points != nil {
		question.Points = *req.Points
	}
	if req.Explanation != nil {
		question.Explanation = req.Explanation
	}
	if len(req.Content) > 0 {
		if err := s.validator.ValidateQuestionContent(question.Type, req.Content); err != nil {
			return nil, NewValidationError("content", err.Error(), nil)
		}
		question.Content = []byte(req.Content)
	}

	if err := s.repo.Question().Update(ctx, nil, question); err != nil {
		return nil, fmt.Errorf("failed to update question: %w", err)
	}
	return question, nil
}

func (s *questionService) Delete(ctx context.Context, id uint, userID string) error {
	if _, err := s.getOwnedQuestion(ctx, id, userID); err != nil {
		return err
	}
	if err := s.repo.Question().Delete(ctx, nil, id); err != nil {
		return fmt.Errorf("failed to delete question: %w", err)
	}
	s.logger.Info("question deleted", "question_id", id, "deleted_by", userID)
	return nil
}

func (s *questionService) List(ctx context.Context, filters repositories.QuestionFilters) ([]*models.Question, int64, error) {
	return s.repo.Question().List(ctx, nil, filters)
}

func (s *questionService) getOwnedQuestion(ctx context.Context, id uint, userID string) (*models.Question, error) {
	question, err := s.repo.Question().GetByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("failed to get question: %w", err)
	}
	if question.CreatedBy != userID {
		role, err := s.repo.User().GetRole(ctx, userID)
		if err != nil || role != models.RoleAdmin {
			return nil, NewPermissionError(userID, id, "question", "modify", "question belongs to another user")
		}
	}
	return question, nil
}
