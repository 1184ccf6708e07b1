package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/eduline/quiz-service/internal/cache"
	"github.com/eduline/quiz-service/internal/models"
	"github.com/eduline/quiz-service/internal/repositories"
)

type AttemptPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.Manager
}

func NewAttemptPostgreSQL(db *gorm.DB, cacheManager *cache.Manager) repositories.AttemptRepository {
	return &AttemptPostgreSQL{db: db, cacheManager: cacheManager}
}

func (a *AttemptPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return a.db
}

func (a *AttemptPostgreSQL) Create(ctx context.Context, tx *gorm.DB, attempt *models.QuizAttempt) error {
	db := a.getDB(tx)
	return db.WithContext(ctx).Create(attempt).Error
}

func (a *AttemptPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.QuizAttempt, error) {
	db := a.getDB(tx)
	// Active attempts are read on every tick of a session, so cache them
	// on the fast helper with a short TTL.
	cacheKey := fmt.Sprintf("attempt:%d", id)
	var attempt models.QuizAttempt

	err := a.cacheManager.Fast.CacheOrExecute(ctx, cacheKey, &attempt, cache.FastTTL, func() (interface{}, error) {
		var dbAttempt models.QuizAttempt
		if err := db.WithContext(ctx).First(&dbAttempt, id).Error; err != nil {
			return nil, err
		}
		return &dbAttempt, nil
	})
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) GetByIDWithDetails(ctx context.Context, tx *gorm.DB, id uint) (*models.QuizAttempt, error) {
	db := a.getDB(tx)
	var attempt models.QuizAttempt
	if err := db.WithContext(ctx).
		Preload("Quiz").
		Preload("Answers").
		Preload("Answers.Question").
		First(&attempt, id).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) Update(ctx context.Context, tx *gorm.DB, attempt *models.QuizAttempt) error {
	db := a.getDB(tx)
	if err := db.WithContext(ctx).Save(attempt).Error; err != nil {
		return err
	}
	return a.invalidate(ctx, attempt.ID)
}

func (a *AttemptPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.AttemptFilters) ([]*models.QuizAttempt, int64, error) {
	db := a.getDB(tx)
	var attempts []*models.QuizAttempt
	var total int64

	query := db.WithContext(ctx).Model(&models.QuizAttempt{})
	if filters.QuizID != nil {
		query = query.Where("quiz_id = ?", *filters.QuizID)
	}
	if filters.UserID != nil {
		query = query.Where("user_id = ?", *filters.UserID)
	}
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.DateFrom != nil {
		query = query.Where("created_at >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		query = query.Where("created_at <= ?", *filters.DateTo)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	if err := query.Preload("Quiz").Find(&attempts).Error; err != nil {
		return nil, 0, err
	}
	return attempts, total, nil
}

func (a *AttemptPostgreSQL) GetActiveAttempt(ctx context.Context, tx *gorm.DB, userID string, quizID uint) (*models.QuizAttempt, error) {
	db := a.getDB(tx)
	var attempt models.QuizAttempt
	if err := db.WithContext(ctx).
		Where("user_id = ? AND quiz_id = ? AND status = ?", userID, quizID, models.AttemptInProgress).
		First(&attempt).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) CountByUserAndQuiz(ctx context.Context, tx *gorm.DB, userID string, quizID uint) (int64, error) {
	db := a.getDB(tx)
	var count int64
	err := db.WithContext(ctx).
		Model(&models.QuizAttempt{}).
		Where("user_id = ? AND quiz_id = ?", userID, quizID).
		Count(&count).Error
	return count, err
}

func (a *AttemptPostgreSQL) UpdateStatus(ctx context.Context, tx *gorm.DB, id uint, status models.AttemptStatus) error {
	db := a.getDB(tx)
	if err := db.WithContext(ctx).
		Model(&models.QuizAttempt{}).
		Where("id = ?", id).
		Update("status", status).Error; err != nil {
		return err
	}
	return a.invalidate(ctx, id)
}

// GetExpired returns in-progress attempts whose deadline has passed, for
// the background timeout sweeper.
func (a *AttemptPostgreSQL) GetExpired(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]*models.QuizAttempt, error) {
	db := a.getDB(tx)
	var attempts []*models.QuizAttempt
	query := db.WithContext(ctx).
		Where("status = ? AND deadline_at IS NOT NULL AND deadline_at <= ?", models.AttemptInProgress, now)
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&attempts).Error; err != nil {
		return nil, fmt.Errorf("failed to get expired attempts: %w", err)
	}
	return attempts, nil
}

func (a *AttemptPostgreSQL) invalidate(ctx context.Context, id uint) error {
	return a.cacheManager.Fast.Delete(ctx, fmt.Sprintf("attempt:%d", id))
}

// ===== ANSWERS =====

type AnswerPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.Manager
}

func NewAnswerPostgreSQL(db *gorm.DB, cacheManager *cache.Manager) repositories.AnswerRepository {
	return &AnswerPostgreSQL{db: db, cacheManager: cacheManager}
}

func (a *AnswerPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return a.db
}

// Upsert writes a full answer value keyed by (attempt, question). Repeats
// overwrite the prior value, which is what makes autosave retries harmless.
func (a *AnswerPostgreSQL) Upsert(ctx context.Context, tx *gorm.DB, answer *models.AttemptAnswer) error {
	db := a.getDB(tx)

	existing, err := a.GetByAttemptAndQuestion(ctx, tx, answer.AttemptID, answer.QuestionID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return db.WithContext(ctx).Create(answer).Error
	}

	existing.Value = answer.Value
	existing.LastModifiedAt = answer.LastModifiedAt
	return db.WithContext(ctx).Save(existing).Error
}

func (a *AnswerPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.AttemptAnswer, error) {
	db := a.getDB(tx)
	var answer models.AttemptAnswer
	if err := db.WithContext(ctx).First(&answer, id).Error; err != nil {
		return nil, err
	}
	return &answer, nil
}

func (a *AnswerPostgreSQL) GetByIDWithDetails(ctx context.Context, tx *gorm.DB, id uint) (*models.AttemptAnswer, error) {
	db := a.getDB(tx)
	var answer models.AttemptAnswer
	if err := db.WithContext(ctx).
		Preload("Question").
		Preload("Attempt").
		First(&answer, id).Error; err != nil {
		return nil, err
	}
	return &answer, nil
}

func (a *AnswerPostgreSQL) GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]*models.AttemptAnswer, error) {
	db := a.getDB(tx)
	var answers []*models.AttemptAnswer
	if err := db.WithContext(ctx).
		Where("attempt_id = ?", attemptID).
		Preload("Question").
		Find(&answers).Error; err != nil {
		return nil, fmt.Errorf("failed to get answers for attempt: %w", err)
	}
	return answers, nil
}

func (a *AnswerPostgreSQL) GetByAttemptAndQuestion(ctx context.Context, tx *gorm.DB, attemptID, questionID uint) (*models.AttemptAnswer, error) {
	db := a.getDB(tx)
	var answer models.AttemptAnswer
	if err := db.WithContext(ctx).
		Where("attempt_id = ? AND question_id = ?", attemptID, questionID).
		First(&answer).Error; err != nil {
		return nil, err
	}
	return &answer, nil
}

func (a *AnswerPostgreSQL) Update(ctx context.Context, tx *gorm.DB, answer *models.AttemptAnswer) error {
	db := a.getDB(tx)
	return db.WithContext(ctx).Save(answer).Error
}

func (a *AnswerPostgreSQL) UpdateBatch(ctx context.Context, tx *gorm.DB, answers []*models.AttemptAnswer) error {
	if len(answers) == 0 {
		return nil
	}
	db := a.getDB(tx)
	return db.WithContext(ctx).Transaction(func(inner *gorm.DB) error {
		for _, answer := range answers {
			if err := inner.Save(answer).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GetGradingStats splits the score into auto and manual contributions.
// graded_by IS NULL distinguishes auto-graded rows.
func (a *AnswerPostgreSQL) GetGradingStats(ctx context.Context, tx *gorm.DB, attemptID uint) (*repositories.GradingStats, error) {
	db := a.getDB(tx)
	stats := &repositories.GradingStats{AttemptID: attemptID}

	row := db.WithContext(ctx).
		Model(&models.AttemptAnswer{}).
		Select(`COUNT(*) AS total_answers,
			COUNT(*) FILTER (WHERE is_graded AND graded_by IS NULL) AS auto_graded,
			COUNT(*) FILTER (WHERE is_graded AND graded_by IS NOT NULL) AS manual_graded,
			COUNT(*) FILTER (WHERE NOT is_graded) AS pending_manual,
			COALESCE(SUM(marks_awarded) FILTER (WHERE is_graded AND graded_by IS NULL), 0) AS auto_score,
			COALESCE(SUM(marks_awarded) FILTER (WHERE is_graded AND graded_by IS NOT NULL), 0) AS manual_score,
			COALESCE(SUM(max_marks), 0) AS max_score`).
		Where("attempt_id = ?", attemptID).
		Row()

	if err := row.Scan(&stats.TotalAnswers, &stats.AutoGraded, &stats.ManualGraded,
		&stats.PendingManual, &stats.AutoScore, &stats.ManualScore, &stats.MaxScore); err != nil {
		return nil, fmt.Errorf("failed to get grading stats: %w", err)
	}
	return stats, nil
}

func (a *AnswerPostgreSQL) AreAllAnswersGraded(ctx context.Context, tx *gorm.DB, attemptID uint) (bool, error) {
	db := a.getDB(tx)
	var allGraded bool
	err := db.WithContext(ctx).
		Model(&models.AttemptAnswer{}).
		Select("COALESCE(bool_and(is_graded), true)").
		Where("attempt_id = ?", attemptID).
		Scan(&allGraded).Error
	return allGraded, err
}
