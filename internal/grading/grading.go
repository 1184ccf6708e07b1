// Package grading evaluates submitted answers against question content.
// Everything here is pure: no storage, no clock, no side effects, so the
// same code serves both server-side auto-grading at submit time and
// immediate feedback in practice sessions.
package grading

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"github.com/eduline/quiz-service/internal/models"
)

// ErrManualGradingRequired is returned for question types a teacher must
// grade by hand.
var ErrManualGradingRequired = errors.New("question type requires manual grading")

// Result is the outcome of evaluating one answer. Correctness is
// all-or-nothing for multi-part questions; MarksAwarded is either the full
// point value or zero.
type Result struct {
	Correct      bool    `json:"correct"`
	MarksAwarded float64 `json:"marks_awarded"`
	MaxMarks     int     `json:"max_marks"`
}

// Evaluate grades an answer value against a question, awarding points on an
// all-or-nothing basis. A nil or empty value is simply incorrect, not an
// error. Short-answer questions return ErrManualGradingRequired.
func Evaluate(question *models.Question, value json.RawMessage, points int) (Result, error) {
	result := Result{MaxMarks: points}

	if len(value) == 0 || string(value) == "null" {
		return result, nil
	}

	var (
		correct bool
		err     error
	)
	switch question.Type {
	case models.MultipleChoice:
		correct, err = evaluateMultipleChoice(question.Content, value)
	case models.TrueFalse:
		correct, err = evaluateTrueFalse(question.Content, value)
	case models.FillBlank:
		correct, err = evaluateFillBlank(question.Content, value)
	case models.Matching:
		correct, err = evaluateMatching(question.Content, value)
	case models.ShortAnswer:
		return result, ErrManualGradingRequired
	default:
		return result, fmt.Errorf("unsupported question type: %s", question.Type)
	}
	if err != nil {
		return result, err
	}

	result.Correct = correct
	if correct {
		result.MarksAwarded = float64(points)
	}
	return result, nil
}

func evaluateMultipleChoice(content []byte, value json.RawMessage) (bool, error) {
	var c models.MultipleChoiceContent
	if err := json.Unmarshal(content, &c); err != nil {
		return false, fmt.Errorf("failed to unmarshal question content: %w", err)
	}

	var answer models.ChoiceAnswer
	if err := json.Unmarshal(value, &answer); err != nil {
		return false, fmt.Errorf("failed to unmarshal answer value: %w", err)
	}

	return answer.SelectedOptionID != "" && answer.SelectedOptionID == c.CorrectOptionID, nil
}

func evaluateTrueFalse(content []byte, value json.RawMessage) (bool, error) {
	var c models.TrueFalseContent
	if err := json.Unmarshal(content, &c); err != nil {
		return false, fmt.Errorf("failed to unmarshal question content: %w", err)
	}

	var answer models.ChoiceAnswer
	if err := json.Unmarshal(value, &answer); err != nil {
		return false, fmt.Errorf("failed to unmarshal answer value: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(answer.SelectedOptionID)) {
	case "true":
		return c.CorrectAnswer, nil
	case "false":
		return !c.CorrectAnswer, nil
	default:
		return false, nil
	}
}

// evaluateFillBlank matches each submitted string positionally against its
// blank's accepted answers. Comparison is trimmed and case-insensitive,
// exact otherwise ("0.250" does not match "0.25"). All blanks must match.
func evaluateFillBlank(content []byte, value json.RawMessage) (bool, error) {
	var c models.FillBlankContent
	if err := json.Unmarshal(content, &c); err != nil {
		return false, fmt.Errorf("failed to unmarshal question content: %w", err)
	}

	var answer models.BlankAnswer
	if err := json.Unmarshal(value, &answer); err != nil {
		return false, fmt.Errorf("failed to unmarshal answer value: %w", err)
	}

	if len(c.Blanks) == 0 || len(answer.Values) != len(c.Blanks) {
		return false, nil
	}

	for i, blank := range c.Blanks {
		if !matchesAny(answer.Values[i], blank.AcceptedAnswers) {
			return false, nil
		}
	}
	return true, nil
}

// evaluateMatching compares the student's left->right ID pairs against the
// canonical pairing. Item IDs are stable across shuffles, so the display
// order of the right column never affects the verdict.
func evaluateMatching(content []byte, value json.RawMessage) (bool, error) {
	var c models.MatchingContent
	if err := json.Unmarshal(content, &c); err != nil {
		return false, fmt.Errorf("failed to unmarshal question content: %w", err)
	}

	var answer models.MatchingAnswer
	if err := json.Unmarshal(value, &answer); err != nil {
		return false, fmt.Errorf("failed to unmarshal answer value: %w", err)
	}

	if len(c.CorrectPairs) == 0 {
		return false, nil
	}

	for _, pair := range c.CorrectPairs {
		chosen, ok := answer.Pairs[pair.LeftID]
		if !ok || chosen != pair.RightID {
			return false, nil
		}
	}
	return true, nil
}

func matchesAny(submitted string, accepted []string) bool {
	for _, a := range accepted {
		if normalizedEqual(submitted, a) {
			return true
		}
	}
	return false
}

func normalizedEqual(s1, s2 string) bool {
	return strings.EqualFold(strings.TrimSpace(s1), strings.TrimSpace(s2))
}

// ShuffleRightItems returns the right-item IDs of a matching question in a
// randomized display order. Callers persist the result once per attempt and
// reuse it for every render of that session.
func ShuffleRightItems(content *models.MatchingContent, rng *rand.Rand) []string {
	ids := make([]string, len(content.RightItems))
	for i, item := range content.RightItems {
		ids[i] = item.ID
	}
	if content.RandomizeRight && rng != nil {
		rng.Shuffle(len(ids), func(i, j int) {
			ids[i], ids[j] = ids[j], ids[i]
		})
	}
	return ids
}
