package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/eduline/quiz-service/internal/events"
	"github.com/eduline/quiz-service/internal/models"
	"github.com/eduline/quiz-service/internal/repositories"
	"github.com/eduline/quiz-service/internal/validator"
)

type gradingService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
	publisher events.EventPublisher

	// now is swappable in tests.
	now func() time.Time
}

func NewGradingService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, v *validator.Validator, publisher events.EventPublisher) GradingService {
	return &gradingService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: v,
		publisher: publisher,
		now:       time.Now,
	}
}

// GradeAnswer records a teacher's marks for a short-answer response.
// Re-grading overwrites the previous marks, including after release; the
// updated score flows to the student without re-hiding results.
func (s *gradingService) GradeAnswer(ctx context.Context, answerID uint, graderID string, req GradeAnswerRequest) (*GradingResult, error) {
	if err := s.requireGrader(ctx, graderID); err != nil {
		return nil, err
	}

	answer, err := s.repo.Answer().GetByIDWithDetails(ctx, nil, answerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAnswerNotFound
		}
		return nil, fmt.Errorf("failed to get answer: %w", err)
	}

	if answer.Question.IsAutoGradeable() {
		return nil, fmt.Errorf("%w: question type %s is graded automatically", ErrGradingNotAllowed, answer.Question.Type)
	}
	if !answer.Attempt.IsClosed() {
		return nil, ErrAttemptNotSubmitted
	}

	if err := s.validator.ValidateMarks(req.MarksAwarded, answer.MaxMarks); err != nil {
		return nil, NewBusinessRuleError("marks_within_range", err.Error())
	}

	var result *GradingResult
	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		now := s.now().UTC()
		correct := req.MarksAwarded >= float64(answer.MaxMarks)

		answer.MarksAwarded = req.MarksAwarded
		answer.IsCorrect = &correct
		answer.IsGraded = true
		answer.GradedBy = &graderID
		answer.GradedAt = &now
		answer.Feedback = req.Feedback

		if err := txRepo.Answer().Update(ctx, nil, answer); err != nil {
			return fmt.Errorf("failed to update answer: %w", err)
		}

		if err := s.recomputeAttemptScores(ctx, txRepo, answer.AttemptID); err != nil {
			return err
		}

		result = &GradingResult{
			AnswerID:     answer.ID,
			QuestionID:   answer.QuestionID,
			MarksAwarded: answer.MarksAwarded,
			MaxMarks:     answer.MaxMarks,
			IsCorrect:    correct,
			Feedback:     answer.Feedback,
			GradedAt:     now,
			GradedBy:     &graderID,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("answer graded",
		"answer_id", answerID,
		"attempt_id", answer.AttemptID,
		"grader_id", graderID,
		"marks", req.MarksAwarded)

	return result, nil
}

// recomputeAttemptScores rebuilds the attempt's manual score from its
// answers and promotes the status to graded once nothing is pending.
// Released attempts keep their status; release is one-way.
func (s *gradingService) recomputeAttemptScores(ctx context.Context, txRepo repositories.Repository, attemptID uint) error {
	stats, err := txRepo.Answer().GetGradingStats(ctx, nil, attemptID)
	if err != nil {
		return fmt.Errorf("failed to compute grading stats: %w", err)
	}

	attempt, err := txRepo.Attempt().GetByID(ctx, nil, attemptID)
	if err != nil {
		return fmt.Errorf("failed to get attempt: %w", err)
	}

	manual := stats.ManualScore
	attempt.ManualScore = &manual
	if stats.PendingManual == 0 {
		attempt.IsGraded = true
		if attempt.Status == models.AttemptSubmitted {
			attempt.Status = models.AttemptGraded
		}
	}

	if err := txRepo.Attempt().Update(ctx, nil, attempt); err != nil {
		return fmt.Errorf("failed to update attempt: %w", err)
	}
	return nil
}

// ReleaseResults flips the one-way release gate; after this the student
// sees per-answer correctness and marks. Releasing twice is an error.
func (s *gradingService) ReleaseResults(ctx context.Context, attemptID uint, teacherID string) error {
	if err := s.requireGrader(ctx, teacherID); err != nil {
		return err
	}

	attempt, err := s.repo.Attempt().GetByID(ctx, nil, attemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAttemptNotFound
		}
		return fmt.Errorf("failed to get attempt: %w", err)
	}

	if !attempt.IsClosed() {
		return ErrAttemptNotSubmitted
	}
	if attempt.IsReleased() {
		return ErrAlreadyReleased
	}

	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		now := s.now().UTC()
		attempt.ReleasedAt = &now
		attempt.ReleasedBy = &teacherID
		attempt.Status = models.AttemptReleased
		return txRepo.Attempt().Update(ctx, nil, attempt)
	})
	if err != nil {
		return fmt.Errorf("failed to release results: %w", err)
	}

	if s.publisher != nil {
		event := events.NewResultsReleasedEvent(attempt.ID, attempt.UserID, teacherID)
		if err := s.publisher.PublishNotificationEvent(ctx, event); err != nil {
			s.logger.Error("failed to publish event", "event_type", event.Type, "error", err)
		}
	}

	s.logger.Info("results released",
		"attempt_id", attemptID,
		"released_by", teacherID)
	return nil
}

// GradingOverview returns the teacher-facing breakdown of an attempt:
// auto and manual contributions side by side, plus every answer with its
// current marks. Visible before release.
func (s *gradingService) GradingOverview(ctx context.Context, attemptID uint, teacherID string) (*GradingOverviewResponse, error) {
	if err := s.requireGrader(ctx, teacherID); err != nil {
		return nil, err
	}

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

	stats, err := s.repo.Answer().GetGradingStats(ctx, nil, attemptID)
	if err != nil {
		return nil, fmt.Errorf("failed to compute grading stats: %w", err)
	}
	stats.MaxScore = attempt.MaxScore

	answers := make([]AnswerResult, 0, len(attempt.Answers))
	for i := range attempt.Answers {
		a := &attempt.Answers[i]
		marks := a.MarksAwarded
		answers = append(answers, AnswerResult{
			AnswerID:     a.ID,
			QuestionID:   a.QuestionID,
			QuestionText: a.Question.Text,
			Type:         a.Question.Type,
			Value:        []byte(a.Value),
			IsCorrect:    a.IsCorrect,
			MarksAwarded: &marks,
			MaxMarks:     a.MaxMarks,
			Feedback:     a.Feedback,
			ManualGraded: a.IsManuallyGraded(),
		})
	}

	return &GradingOverviewResponse{
		AttemptID:  attemptID,
		Stats:      stats,
		TotalScore: attempt.TotalScore(),
		Released:   attempt.IsReleased(),
		Answers:    answers,
	}, nil
}

func (s *gradingService) requireGrader(ctx context.Context, userID string) error {
	role, err := s.repo.User().GetRole(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to resolve grader role: %w", err)
	}
	if !role.CanGrade() {
		return NewPermissionError(userID, 0, "attempt", "grade", "grading requires a teacher or admin role")
	}
	return nil
}
