package validator

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/eduline/quiz-service/internal/models"
)

// Validator wraps struct validation with quiz-domain business rules.
type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	return &Validator{validate: validator.New()}
}

// ValidateStruct runs tag-based validation on any request struct.
func (v *Validator) ValidateStruct(s interface{}) error {
	return v.validate.Struct(s)
}

// ValidationIssue is a single field-level problem.
type ValidationIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// CollectIssues converts validator errors into a serializable list.
func (v *Validator) CollectIssues(err error) []ValidationIssue {
	var issues []ValidationIssue
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			issues = append(issues, ValidationIssue{
				Field:   fe.Field(),
				Message: fmt.Sprintf("failed %s validation", fe.Tag()),
			})
		}
	}
	return issues
}

// ===== BUSINESS RULES =====

// AttemptStartCheck is the outcome of an availability check.
type AttemptStartCheck struct {
	CanStart bool
	Reason   string
}

// ValidateAttemptStart checks quiz status, scheduling window, and the
// attempt quota before a new attempt is allowed.
func (v *Validator) ValidateAttemptStart(quiz *models.Quiz, attemptCount int64, now time.Time) AttemptStartCheck {
	if quiz.Status != models.QuizPublished {
		return AttemptStartCheck{Reason: "quiz is not published"}
	}
	if !quiz.IsOpenAt(now) {
		return AttemptStartCheck{Reason: "quiz scheduling window is not open"}
	}
	if quiz.MaxAttempts > 0 && attemptCount >= int64(quiz.MaxAttempts) {
		return AttemptStartCheck{Reason: "maximum attempts reached"}
	}
	return AttemptStartCheck{CanStart: true}
}

// ValidateMarks ensures a manual grade stays within the question's point
// range.
func (v *Validator) ValidateMarks(marks float64, maxMarks int) error {
	if marks < 0 {
		return fmt.Errorf("marks must not be negative")
	}
	if marks > float64(maxMarks) {
		return fmt.Errorf("marks %.2f exceed question point value %d", marks, maxMarks)
	}
	return nil
}

// ValidateQuestionContent checks that a question's JSONB payload matches
// its declared type and is internally consistent.
func (v *Validator) ValidateQuestionContent(questionType models.QuestionType, content json.RawMessage) error {
	switch questionType {
	case models.MultipleChoice:
		var c models.MultipleChoiceContent
		if err := json.Unmarshal(content, &c); err != nil {
			return fmt.Errorf("invalid multiple-choice content: %w", err)
		}
		if err := v.validate.Struct(&c); err != nil {
			return err
		}
		for _, opt := range c.Options {
			if opt.ID == c.CorrectOptionID {
				return nil
			}
		}
		return fmt.Errorf("correct_option_id does not reference any option")

	case models.TrueFalse:
		var c models.TrueFalseContent
		if err := json.Unmarshal(content, &c); err != nil {
			return fmt.Errorf("invalid true-false content: %w", err)
		}
		return nil

	case models.FillBlank:
		var c models.FillBlankContent
		if err := json.Unmarshal(content, &c); err != nil {
			return fmt.Errorf("invalid fill-blank content: %w", err)
		}
		return v.validate.Struct(&c)

	case models.Matching:
		var c models.MatchingContent
		if err := json.Unmarshal(content, &c); err != nil {
			return fmt.Errorf("invalid matching content: %w", err)
		}
		if err := v.validate.Struct(&c); err != nil {
			return err
		}
		return validateMatchingPairs(&c)

	case models.ShortAnswer:
		var c models.ShortAnswerContent
		if err := json.Unmarshal(content, &c); err != nil {
			return fmt.Errorf("invalid short-answer content: %w", err)
		}
		return v.validate.Struct(&c)

	default:
		return fmt.Errorf("unsupported question type: %s", questionType)
	}
}

// validateMatchingPairs requires every pair to reference existing items
// and every left item to have exactly one pairing.
func validateMatchingPairs(c *models.MatchingContent) error {
	left := make(map[string]bool, len(c.LeftItems))
	for _, item := range c.LeftItems {
		left[item.ID] = true
	}
	right := make(map[string]bool, len(c.RightItems))
	for _, item := range c.RightItems {
		right[item.ID] = true
	}

	paired := make(map[string]bool, len(c.CorrectPairs))
	for _, pair := range c.CorrectPairs {
		if !left[pair.LeftID] {
			return fmt.Errorf("pair references unknown left item %q", pair.LeftID)
		}
		if !right[pair.RightID] {
			return fmt.Errorf("pair references unknown right item %q", pair.RightID)
		}
		if paired[pair.LeftID] {
			return fmt.Errorf("left item %q is paired more than once", pair.LeftID)
		}
		paired[pair.LeftID] = true
	}

	if len(paired) != len(c.LeftItems) {
		return fmt.Errorf("every left item needs exactly one pairing")
	}
	return nil
}
