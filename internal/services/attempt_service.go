package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/eduline/quiz-service/internal/events"
	"github.com/eduline/quiz-service/internal/models"
	"github.com/eduline/quiz-service/internal/repositories"
	"github.com/eduline/quiz-service/internal/validator"
)

type attemptService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
	publisher events.EventPublisher

	// now is swappable in tests.
	now func() time.Time
}

func NewAttemptService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, v *validator.Validator, publisher events.EventPublisher) AttemptService {
	return &attemptService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: v,
		publisher: publisher,
		now:       time.Now,
	}
}

// Start opens a new attempt, or resumes the caller's in-progress one. The
// deadline is fixed here; every later time-remaining read derives from it.
func (s *attemptService) Start(ctx context.Context, quizID uint, userID string) (*AttemptResponse, error) {
	quiz, err := s.repo.Quiz().GetByIDWithQuestions(ctx, nil, quizID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}

	now := s.now()

	// Resume an active attempt instead of opening a second one.
	if active, err := s.repo.Attempt().GetActiveAttempt(ctx, nil, userID, quizID); err == nil {
		if active.DeadlineAt != nil && now.After(*active.DeadlineAt) {
			if _, err := s.HandleTimeout(ctx, active.ID); err != nil {
				s.logger.Error("failed to time out stale attempt",
					"attempt_id", active.ID, "error", err)
			}
		} else {
			return s.buildAttemptResponse(ctx, active, quiz, true)
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check active attempt: %w", err)
	}

	count, err := s.repo.Attempt().CountByUserAndQuiz(ctx, nil, userID, quizID)
	if err != nil {
		return nil, fmt.Errorf("failed to count attempts: %w", err)
	}

	check := s.validator.ValidateAttemptStart(quiz, count, now)
	if !check.CanStart {
		return nil, fmt.Errorf("%w: %s", ErrQuizUnavailable, check.Reason)
	}

	sessionData, err := buildSessionData(quiz, now.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to build session data: %w", err)
	}

	deadline := now.Add(time.Duration(quiz.TimeLimit) * time.Minute)
	attempt := &models.QuizAttempt{
		QuizID:         quizID,
		UserID:         userID,
		AttemptNumber:  int(count) + 1,
		Status:         models.AttemptInProgress,
		StartedAt:      &now,
		DeadlineAt:     &deadline,
		MaxScore:       quizMaxScore(quiz),
		TotalQuestions: len(quiz.Questions),
		SessionData:    sessionData,
	}

	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		return txRepo.Attempt().Create(ctx, nil, attempt)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create attempt: %w", err)
	}

	s.publishEvent(ctx, events.NewAttemptStartedEvent(attempt.ID, quizID, userID))

	s.logger.Info("attempt started",
		"attempt_id", attempt.ID,
		"quiz_id", quizID,
		"user_id", userID,
		"deadline", deadline)

	return s.buildAttemptResponse(ctx, attempt, quiz, false)
}

// SaveAnswer upserts a full answer value keyed by (attempt, question).
// Repeats and out-of-order arrivals are harmless; the last write wins.
func (s *attemptService) SaveAnswer(ctx context.Context, attemptID uint, userID string, req SaveAnswerRequest) error {
	attempt, err := s.getOwnedAttempt(ctx, attemptID, userID)
	if err != nil {
		return err
	}

	if attempt.IsClosed() {
		return ErrAttemptClosed
	}

	now := s.now()
	if attempt.DeadlineAt != nil && now.After(*attempt.DeadlineAt) {
		// The deadline passed but the sweeper hasn't caught this attempt
		// yet. Close it now and reject the write.
		go func() {
			if _, err := s.HandleTimeout(context.Background(), attemptID); err != nil {
				s.logger.Error("failed to time out attempt", "attempt_id", attemptID, "error", err)
			}
		}()
		return ErrAttemptClosed
	}

	question, err := s.questionInQuiz(ctx, attempt.QuizID, req.QuestionID)
	if err != nil {
		return err
	}
	if err := validateAnswerValue(question.Type, req.Answer); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAnswerFormat, err)
	}

	answer := &models.AttemptAnswer{
		AttemptID:      attemptID,
		QuestionID:     req.QuestionID,
		Value:          datatypes.JSON(req.Answer),
		LastModifiedAt: &now,
	}
	if err := s.repo.Answer().Upsert(ctx, nil, answer); err != nil {
		return fmt.Errorf("failed to save answer: %w", err)
	}
	return nil
}

// Submit finalizes the attempt and auto-grades objective answers exactly
// once. A second call is a no-op returning the existing summary.
func (s *attemptService) Submit(ctx context.Context, attemptID uint, userID string, req SubmitAttemptRequest) (*SubmitResult, error) {
	attempt, err := s.getOwnedAttempt(ctx, attemptID, userID)
	if err != nil {
		return nil, err
	}

	if attempt.IsClosed() {
		return s.summaryFor(ctx, attempt, true)
	}

	endReason := models.EndReasonSubmitted
	if attempt.DeadlineAt != nil && s.now().After(*attempt.DeadlineAt) {
		endReason = models.EndReasonTimeout
	}

	return s.finalize(ctx, attemptID, endReason, req.TimeTakenSeconds)
}

// HandleTimeout closes an expired attempt with whatever answers were saved,
// possibly none. Safe to call on an already-closed attempt.
func (s *attemptService) HandleTimeout(ctx context.Context, attemptID uint) (*SubmitResult, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, nil, attemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}

	if attempt.IsClosed() {
		return s.summaryFor(ctx, attempt, true)
	}

	timeTaken := 0
	if attempt.StartedAt != nil && attempt.DeadlineAt != nil {
		timeTaken = int(attempt.DeadlineAt.Sub(*attempt.StartedAt).Seconds())
	}

	return s.finalize(ctx, attemptID, models.EndReasonTimeout, timeTaken)
}

// TimeRemaining derives the countdown from the fixed deadline, clamped at
// zero. Hitting zero triggers the server-side timeout path.
func (s *attemptService) TimeRemaining(ctx context.Context, attemptID uint, userID string) (int, error) {
	attempt, err := s.getOwnedAttempt(ctx, attemptID, userID)
	if err != nil {
		return 0, err
	}

	if attempt.IsClosed() || attempt.DeadlineAt == nil {
		return 0, nil
	}

	remaining := int(attempt.DeadlineAt.Sub(s.now()).Seconds())
	if remaining <= 0 {
		go func() {
			if _, err := s.HandleTimeout(context.Background(), attemptID); err != nil {
				s.logger.Error("failed to time out attempt", "attempt_id", attemptID, "error", err)
			}
		}()
		return 0, nil
	}
	return remaining, nil
}

// GetResults gates per-answer detail behind the release flag for students;
// the owning teacher sees pre-release state for grading.
func (s *attemptService) GetResults(ctx context.Context, attemptID uint, callerID string) (*AttemptResultsResponse, error) {
	attempt, err := s.repo.Attempt().GetByIDWithDetails(ctx, nil, attemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}

	if !attempt.IsClosed() {
		return nil, ErrAttemptNotSubmitted
	}

	if callerID == attempt.UserID {
		if !attempt.IsReleased() {
			// Summary only: the student learns the attempt is finished
			// but sees no correctness or marks.
			return &AttemptResultsResponse{
				AttemptID: attempt.ID,
				QuizID:    attempt.QuizID,
				Status:    attempt.Status,
				Released:  false,
				MaxScore:  attempt.MaxScore,
			}, nil
		}
		return s.buildResultsResponse(attempt), nil
	}

	role, err := s.repo.User().GetRole(ctx, callerID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve caller role: %w", err)
	}
	if role != models.RoleTeacher && role != models.RoleAdmin {
		return nil, NewPermissionError(callerID, attemptID, "attempt", "view_results", "not the attempt owner or a grader")
	}

	return s.buildResultsResponse(attempt), nil
}
