package models

import (
	"time"

	"gorm.io/datatypes"
)

type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	TrueFalse      QuestionType = "true_false"
	FillBlank      QuestionType = "fill_blank"
	Matching       QuestionType = "matching"
	ShortAnswer    QuestionType = "short_answer"
)

type Question struct {
	ID     uint         `json:"id" gorm:"primaryKey"`
	Type   QuestionType `json:"type" gorm:"not null;index"`
	Text   string       `json:"text" gorm:"type:text;not null" validate:"required"`
	Points int          `json:"points" gorm:"default:10" validate:"min=1,max=100"`

	// Type-specific payload stored as JSONB. Shape is one of the
	// *Content structs below, selected by Type.
	Content datatypes.JSON `json:"content" gorm:"type:jsonb"`

	Explanation *string   `json:"explanation" gorm:"type:text"`
	CreatedBy   string    `json:"created_by" gorm:"not null;index;size:255"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Relations
	Creator User `json:"creator" gorm:"foreignKey:CreatedBy"`
}

// IsAutoGradeable reports whether the question type is graded by the server
// at submit time. Short answers wait for a teacher.
func (q *Question) IsAutoGradeable() bool {
	switch q.Type {
	case MultipleChoice, TrueFalse, FillBlank, Matching:
		return true
	default:
		return false
	}
}

// ===== QUESTION CONTENT SCHEMAS =====

type MultipleChoiceContent struct {
	Options         []ChoiceOption `json:"options" validate:"min=2,max=10"`
	CorrectOptionID string         `json:"correct_option_id" validate:"required"`
}

type ChoiceOption struct {
	ID    string `json:"id"`
	Text  string `json:"text" validate:"required"`
	Order int    `json:"order"`
}

type TrueFalseContent struct {
	CorrectAnswer bool `json:"correct_answer"`
}

// FillBlankContent holds an ordered blank list; student answers are matched
// positionally, one string per blank.
type FillBlankContent struct {
	Template string     `json:"template"` // "1/4 + 1/4 = {blank1}"
	Blanks   []BlankDef `json:"blanks" validate:"min=1"`
}

type BlankDef struct {
	AcceptedAnswers []string `json:"accepted_answers" validate:"min=1"`
	PlaceholderText *string  `json:"placeholder_text"`
}

// MatchingContent keeps the canonical left->right pairing in CorrectPairs.
// Display shuffling never touches it; grading always resolves through item
// IDs, not display positions.
type MatchingContent struct {
	LeftItems      []MatchItem `json:"left_items" validate:"min=2,max=10"`
	RightItems     []MatchItem `json:"right_items" validate:"min=2,max=10"`
	CorrectPairs   []MatchPair `json:"correct_pairs" validate:"min=2"`
	RandomizeRight bool        `json:"randomize_right"`
}

type MatchItem struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type MatchPair struct {
	LeftID  string `json:"left_id"`
	RightID string `json:"right_id"`
}

type ShortAnswerContent struct {
	SampleAnswer    *string `json:"sample_answer"`
	MaxLength       int     `json:"max_length" validate:"min=1,max=2000"`
	PlaceholderText *string `json:"placeholder_text"`
}
