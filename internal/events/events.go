package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	AttemptStarted        EventType = "attempt.started"
	AttemptSubmitted      EventType = "attempt.submitted"
	AttemptGraded         EventType = "attempt.graded"
	ManualGradingRequired EventType = "grading.manual_required"
	ResultsReleased       EventType = "results.released"
)

const eventSource = "quiz-service"

// NotificationEvent is the envelope published for every domain event.
type NotificationEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Source    string         `json:"source"`
	Version   string         `json:"version"`
	Data      map[string]any `json:"data"`
}

func newEvent(eventType EventType, data map[string]any) *NotificationEvent {
	return &NotificationEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Source:    eventSource,
		Version:   "1.0",
		Data:      data,
	}
}

func NewAttemptStartedEvent(attemptID, quizID uint, userID string) *NotificationEvent {
	return newEvent(AttemptStarted, map[string]any{
		"attempt_id": attemptID,
		"quiz_id":    quizID,
		"user_id":    userID,
	})
}

func NewAttemptSubmittedEvent(attemptID, quizID uint, userID, endReason string) *NotificationEvent {
	return newEvent(AttemptSubmitted, map[string]any{
		"attempt_id": attemptID,
		"quiz_id":    quizID,
		"user_id":    userID,
		"end_reason": endReason,
	})
}

func NewAttemptGradedEvent(attemptID uint, userID string, autoScore float64, maxScore int) *NotificationEvent {
	return newEvent(AttemptGraded, map[string]any{
		"attempt_id": attemptID,
		"user_id":    userID,
		"auto_score": autoScore,
		"max_score":  maxScore,
	})
}

func NewManualGradingRequiredEvent(attemptID, quizID uint, pendingAnswers int) *NotificationEvent {
	return newEvent(ManualGradingRequired, map[string]any{
		"attempt_id":      attemptID,
		"quiz_id":         quizID,
		"pending_answers": pendingAnswers,
	})
}

func NewResultsReleasedEvent(attemptID uint, userID, releasedBy string) *NotificationEvent {
	return newEvent(ResultsReleased, map[string]any{
		"attempt_id":  attemptID,
		"user_id":     userID,
		"released_by": releasedBy,
	})
}
