package models

import (
	"time"
)

type QuizStatus string

const (
	QuizDraft     QuizStatus = "draft"
	QuizPublished QuizStatus = "published"
	QuizArchived  QuizStatus = "archived"
)

type Quiz struct {
	ID        uint       `json:"id" gorm:"primaryKey"`
	Title     string     `json:"title" gorm:"not null;size:255" validate:"required,max=255"`
	SubjectID *uint      `json:"subject_id" gorm:"index"`
	Status    QuizStatus `json:"status" gorm:"default:draft;index"`

	// Timing
	TimeLimit      int        `json:"time_limit" gorm:"not null" validate:"required,min=1,max=480"` // minutes
	ScheduledStart *time.Time `json:"scheduled_start"`
	ScheduledEnd   *time.Time `json:"scheduled_end"`

	// Attempt rules
	MaxAttempts        int     `json:"max_attempts" gorm:"default:1" validate:"min=1,max=10"`
	PassingScore       float64 `json:"passing_score" gorm:"default:60"` // percentage
	RandomizeQuestions bool    `json:"randomize_questions"`

	// Practice quizzes grade client-side and never enter the manual
	// grading / release workflow.
	PracticeMode bool `json:"practice_mode"`

	Description *string   `json:"description" gorm:"type:text"`
	CreatedBy   string    `json:"created_by" gorm:"not null;index;size:255"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Relations
	Questions []QuizQuestion `json:"questions" gorm:"foreignKey:QuizID"`
	Creator   User           `json:"creator" gorm:"foreignKey:CreatedBy"`
}

// QuizQuestion links a question into a quiz. Order is user-visible and
// significant; Points overrides the question's default point value.
type QuizQuestion struct {
	ID         uint `json:"id" gorm:"primaryKey"`
	QuizID     uint `json:"quiz_id" gorm:"not null;index;uniqueIndex:idx_quiz_question"`
	QuestionID uint `json:"question_id" gorm:"not null;index;uniqueIndex:idx_quiz_question"`

	Order  int  `json:"order" gorm:"not null"`
	Points *int `json:"points"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Quiz     Quiz     `json:"quiz" gorm:"foreignKey:QuizID"`
	Question Question `json:"question" gorm:"foreignKey:QuestionID"`
}

// EffectivePoints returns the point value this question carries inside the
// quiz, falling back to the question's own default.
func (qq *QuizQuestion) EffectivePoints() int {
	if qq.Points != nil {
		return *qq.Points
	}
	return qq.Question.Points
}

// IsOpenAt reports whether the quiz scheduling window is open at t. A nil
// bound is unbounded on that side.
func (q *Quiz) IsOpenAt(t time.Time) bool {
	if q.ScheduledStart != nil && t.Before(*q.ScheduledStart) {
		return false
	}
	if q.ScheduledEnd != nil && t.After(*q.ScheduledEnd) {
		return false
	}
	return true
}
