package models

import (
	"time"

	"gorm.io/datatypes"
)

type AttemptStatus string

const (
	AttemptNotStarted AttemptStatus = "not_started"
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptSubmitted  AttemptStatus = "submitted"
	AttemptGraded     AttemptStatus = "graded"
	AttemptReleased   AttemptStatus = "released"
)

const (
	EndReasonSubmitted = "submitted"
	EndReasonTimeout   = "timeout"
)

type QuizAttempt struct {
	ID            uint          `json:"id" gorm:"primaryKey"`
	QuizID        uint          `json:"quiz_id" gorm:"not null;index"`
	UserID        string        `json:"user_id" gorm:"not null;index;size:255"`
	AttemptNumber int           `json:"attempt_number" gorm:"not null"`
	Status        AttemptStatus `json:"status" gorm:"default:in_progress;index"`

	// Timing. DeadlineAt is fixed at start (StartedAt + time limit); the
	// remaining time is always derived from it, never stored.
	StartedAt   *time.Time `json:"started_at"`
	DeadlineAt  *time.Time `json:"deadline_at"`
	SubmittedAt *time.Time `json:"submitted_at"`
	TimeTaken   int        `json:"time_taken"` // seconds

	// Scoring. AutoScore is written once at submit; ManualScore stays nil
	// until the first teacher grade lands.
	AutoScore   float64  `json:"auto_score"`
	ManualScore *float64 `json:"manual_score"`
	MaxScore    int      `json:"max_score"`
	IsGraded    bool     `json:"is_graded"`

	// Progress
	CurrentQuestionIndex int `json:"current_question_index"`
	TotalQuestions       int `json:"total_questions"`

	// Per-attempt session state, e.g. the matching right-column shuffle
	// fixed at start. Shape: AttemptSessionData.
	SessionData datatypes.JSON `json:"session_data" gorm:"type:jsonb"`
	EndReason   *string        `json:"end_reason" gorm:"size:32"`

	ReleasedAt *time.Time `json:"released_at"`
	ReleasedBy *string    `json:"released_by" gorm:"size:255"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Quiz    Quiz            `json:"quiz" gorm:"foreignKey:QuizID"`
	User    User            `json:"user" gorm:"foreignKey:UserID"`
	Answers []AttemptAnswer `json:"answers" gorm:"foreignKey:AttemptID"`
}

// IsClosed reports whether the attempt no longer accepts answer writes.
func (a *QuizAttempt) IsClosed() bool {
	return a.Status != AttemptNotStarted && a.Status != AttemptInProgress
}

// IsReleased reports whether graded results are visible to the student.
func (a *QuizAttempt) IsReleased() bool {
	return a.ReleasedAt != nil
}

// TotalScore sums the auto and manual contributions.
func (a *QuizAttempt) TotalScore() float64 {
	total := a.AutoScore
	if a.ManualScore != nil {
		total += *a.ManualScore
	}
	return total
}

// AttemptSessionData is persisted in QuizAttempt.SessionData.
type AttemptSessionData struct {
	// QuestionOrder holds the question IDs in the order served to this
	// attempt (randomized when the quiz asks for it).
	QuestionOrder []uint `json:"question_order,omitempty"`
	// MatchingShuffles maps question ID to the right-item IDs in display
	// order, fixed once when the attempt starts.
	MatchingShuffles map[uint][]string `json:"matching_shuffles,omitempty"`
}

type AttemptAnswer struct {
	ID         uint `json:"id" gorm:"primaryKey"`
	AttemptID  uint `json:"attempt_id" gorm:"not null;index;uniqueIndex:idx_attempt_question"`
	QuestionID uint `json:"question_id" gorm:"not null;index;uniqueIndex:idx_attempt_question"`

	// Answer value as JSONB, shape depends on question type: a chosen
	// option ID, a []string per blank, a left->right ID map, or free text.
	Value datatypes.JSON `json:"value" gorm:"type:jsonb"`

	// Grading
	MarksAwarded float64    `json:"marks_awarded"`
	MaxMarks     int        `json:"max_marks"`
	IsCorrect    *bool      `json:"is_correct"` // nil until graded
	IsGraded     bool       `json:"is_graded"`
	GradedBy     *string    `json:"graded_by" gorm:"size:255"` // nil for auto-graded
	GradedAt     *time.Time `json:"graded_at"`
	Feedback     *string    `json:"feedback" gorm:"type:text"`

	LastModifiedAt *time.Time `json:"last_modified_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Attempt  QuizAttempt `json:"attempt" gorm:"foreignKey:AttemptID"`
	Question Question    `json:"question" gorm:"foreignKey:QuestionID"`
	Grader   *User       `json:"grader" gorm:"foreignKey:GradedBy"`
}

// IsManuallyGraded reports whether a teacher assigned the marks.
func (a *AttemptAnswer) IsManuallyGraded() bool {
	return a.GradedBy != nil
}

// ===== ANSWER VALUE SCHEMAS =====

// ChoiceAnswer is the submitted value for multiple-choice and true/false
// questions ("true"/"false" for the latter).
type ChoiceAnswer struct {
	SelectedOptionID string `json:"selected_option_id"`
}

// BlankAnswer carries one string per blank, positionally.
type BlankAnswer struct {
	Values []string `json:"values"`
}

// MatchingAnswer maps left-item ID to the chosen right-item ID. Keys are
// canonical item IDs, so the value is independent of display shuffle.
type MatchingAnswer struct {
	Pairs map[string]string `json:"pairs"`
}

// TextAnswer is the free-text value for short-answer questions.
type TextAnswer struct {
	Text string `json:"text"`
}
