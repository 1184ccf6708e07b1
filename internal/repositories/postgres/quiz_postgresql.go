package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/eduline/quiz-service/internal/cache"
	"github.com/eduline/quiz-service/internal/models"
	"github.com/eduline/quiz-service/internal/repositories"
)

type QuizPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.Manager
}

func NewQuizPostgreSQL(db *gorm.DB, cacheManager *cache.Manager) repositories.QuizRepository {
	return &QuizPostgreSQL{db: db, cacheManager: cacheManager}
}

func (q *QuizPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return q.db
}

func (q *QuizPostgreSQL) Create(ctx context.Context, tx *gorm.DB, quiz *models.Quiz) error {
	db := q.getDB(tx)
	return db.WithContext(ctx).Create(quiz).Error
}

func (q *QuizPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Quiz, error) {
	db := q.getDB(tx)
	cacheKey := fmt.Sprintf("id:%d", id)
	var quiz models.Quiz

	err := q.cacheManager.Quiz.CacheOrExecute(ctx, cacheKey, &quiz, cache.QuizTTL, func() (interface{}, error) {
		var dbQuiz models.Quiz
		if err := db.WithContext(ctx).First(&dbQuiz, id).Error; err != nil {
			return nil, err
		}
		return &dbQuiz, nil
	})
	if err != nil {
		return nil, err
	}
	return &quiz, nil
}

func (q *QuizPostgreSQL) GetByIDWithQuestions(ctx context.Context, tx *gorm.DB, id uint) (*models.Quiz, error) {
	db := q.getDB(tx)
	var quiz models.Quiz
	if err := db.WithContext(ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("quiz_questions.\"order\" ASC")
		}).
		Preload("Questions.Question").
		First(&quiz, id).Error; err != nil {
		return nil, err
	}
	return &quiz, nil
}

func (q *QuizPostgreSQL) Update(ctx context.Context, tx *gorm.DB, quiz *models.Quiz) error {
	db := q.getDB(tx)
	if err := db.WithContext(ctx).Save(quiz).Error; err != nil {
		return err
	}
	return q.invalidate(ctx, quiz.ID)
}

func (q *QuizPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	db := q.getDB(tx)
	if err := db.WithContext(ctx).Delete(&models.Quiz{}, id).Error; err != nil {
		return err
	}
	return q.invalidate(ctx, id)
}

func (q *QuizPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.QuizFilters) ([]*models.Quiz, int64, error) {
	db := q.getDB(tx)
	var quizzes []*models.Quiz
	var total int64

	query := db.WithContext(ctx).Model(&models.Quiz{})
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.SubjectID != nil {
		query = query.Where("subject_id = ?", *filters.SubjectID)
	}
	if filters.CreatedBy != nil {
		query = query.Where("created_by = ?", *filters.CreatedBy)
	}
	if filters.Search != nil && *filters.Search != "" {
		query = query.Where("title ILIKE ?", "%"+*filters.Search+"%")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	if err := query.Find(&quizzes).Error; err != nil {
		return nil, 0, err
	}
	return quizzes, total, nil
}

func (q *QuizPostgreSQL) UpdateStatus(ctx context.Context, tx *gorm.DB, id uint, status models.QuizStatus) error {
	db := q.getDB(tx)
	if err := db.WithContext(ctx).
		Model(&models.Quiz{}).
		Where("id = ?", id).
		Update("status", status).Error; err != nil {
		return err
	}
	return q.invalidate(ctx, id)
}

func (q *QuizPostgreSQL) invalidate(ctx context.Context, id uint) error {
	return q.cacheManager.Quiz.Delete(ctx, fmt.Sprintf("id:%d", id))
}

// ===== QUIZ-QUESTION LINKS =====

type QuizQuestionPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.Manager
}

func NewQuizQuestionPostgreSQL(db *gorm.DB, cacheManager *cache.Manager) repositories.QuizQuestionRepository {
	return &QuizQuestionPostgreSQL{db: db, cacheManager: cacheManager}
}

func (q *QuizQuestionPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return q.db
}

func (q *QuizQuestionPostgreSQL) Add(ctx context.Context, tx *gorm.DB, link *models.QuizQuestion) error {
	db := q.getDB(tx)
	return db.WithContext(ctx).Create(link).Error
}

func (q *QuizQuestionPostgreSQL) Remove(ctx context.Context, tx *gorm.DB, quizID, questionID uint) error {
	db := q.getDB(tx)
	return db.WithContext(ctx).
		Where("quiz_id = ? AND question_id = ?", quizID, questionID).
		Delete(&models.QuizQuestion{}).Error
}

func (q *QuizQuestionPostgreSQL) GetByQuiz(ctx context.Context, tx *gorm.DB, quizID uint) ([]*models.QuizQuestion, error) {
	db := q.getDB(tx)
	var links []*models.QuizQuestion
	if err := db.WithContext(ctx).
		Where("quiz_id = ?", quizID).
		Order("\"order\" ASC").
		Preload("Question").
		Find(&links).Error; err != nil {
		return nil, fmt.Errorf("failed to get quiz questions: %w", err)
	}
	return links, nil
}

// Reorder rewrites the order column to match the given question ID sequence.
func (q *QuizQuestionPostgreSQL) Reorder(ctx context.Context, tx *gorm.DB, quizID uint, questionIDs []uint) error {
	db := q.getDB(tx)
	return db.WithContext(ctx).Transaction(func(inner *gorm.DB) error {
		for i, questionID := range questionIDs {
			if err := inner.Model(&models.QuizQuestion{}).
				Where("quiz_id = ? AND question_id = ?", quizID, questionID).
				Update("order", i).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (q *QuizQuestionPostgreSQL) CountByQuiz(ctx context.Context, tx *gorm.DB, quizID uint) (int64, error) {
	db := q.getDB(tx)
	var count int64
	err := db.WithContext(ctx).
		Model(&models.QuizQuestion{}).
		Where("quiz_id = ?", quizID).
		Count(&count).Error
	return count, err
}
