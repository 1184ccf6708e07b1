package services

import (
	"errors"
	"fmt"
)

// ===== SENTINEL ERRORS =====

var (
	// Quiz lifecycle
	ErrQuizNotFound    = errors.New("quiz not found")
	ErrQuizNotEditable = errors.New("quiz cannot be edited in its current status")

	// Attempt lifecycle. ErrQuizUnavailable covers a closed scheduling
	// window, an unpublished quiz, and exhausted attempts alike.
	ErrQuizUnavailable     = errors.New("quiz is not available for attempts")
	ErrAttemptNotFound     = errors.New("attempt not found")
	ErrAttemptClosed       = errors.New("attempt is closed to further answers")
	ErrAttemptNotSubmitted = errors.New("attempt has not been submitted")
	ErrAttemptTimeExpired  = errors.New("attempt time has expired")

	// Grading and release
	ErrAnswerNotFound      = errors.New("answer not found")
	ErrGradingNotAllowed   = errors.New("answer cannot be graded manually")
	ErrGradingFailed       = errors.New("failed to persist grade")
	ErrResultsNotReleased  = errors.New("results have not been released")
	ErrAlreadyReleased     = errors.New("results already released")
	ErrQuestionNotFound    = errors.New("question not found")
	ErrQuestionNotInQuiz   = errors.New("question does not belong to this quiz")
	ErrUnauthorized        = errors.New("unauthorized access")
	ErrOwnershipViolation  = errors.New("resource is owned by another user")
	ErrInvalidAnswerFormat = errors.New("answer value does not match question type")
)

// ===== TYPED ERRORS =====

// ValidationError carries field-level validation failures.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string, value any) *ValidationError {
	return &ValidationError{Field: field, Message: message, Value: value}
}

// BusinessRuleError marks a request that is well-formed but violates a
// domain rule (e.g. marks above the question's point value).
type BusinessRuleError struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

func (e *BusinessRuleError) Error() string {
	return fmt.Sprintf("business rule %s violated: %s", e.Rule, e.Message)
}

func NewBusinessRuleError(rule, message string) *BusinessRuleError {
	return &BusinessRuleError{Rule: rule, Message: message}
}

// PermissionError records who tried what on which resource.
type PermissionError struct {
	UserID     string `json:"user_id"`
	ResourceID any    `json:"resource_id"`
	Resource   string `json:"resource"`
	Action     string `json:"action"`
	Reason     string `json:"reason"`
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("user %s cannot %s %s %v: %s", e.UserID, e.Action, e.Resource, e.ResourceID, e.Reason)
}

func NewPermissionError(userID string, resourceID any, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}

// ===== CLASSIFICATION HELPERS =====

func IsNotFound(err error) bool {
	return errors.Is(err, ErrQuizNotFound) ||
		errors.Is(err, ErrAttemptNotFound) ||
		errors.Is(err, ErrAnswerNotFound) ||
		errors.Is(err, ErrQuestionNotFound)
}

func IsPermissionDenied(err error) bool {
	var pe *PermissionError
	return errors.As(err, &pe) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrOwnershipViolation)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrAttemptClosed) ||
		errors.Is(err, ErrAlreadyReleased) ||
		errors.Is(err, ErrQuizNotEditable)
}
