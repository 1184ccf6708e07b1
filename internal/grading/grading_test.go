package grading

import (
	"encoding/json"
	"errors"
	"math/rand"
	"testing"

	"gorm.io/datatypes"

	"github.com/eduline/quiz-service/internal/models"
)

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func fillBlankQuestion(t *testing.T, blanks ...[]string) *models.Question {
	t.Helper()
	content := models.FillBlankContent{Template: "answer: {blank}"}
	for _, accepted := range blanks {
		content.Blanks = append(content.Blanks, models.BlankDef{AcceptedAnswers: accepted})
	}
	return &models.Question{
		Type:    models.FillBlank,
		Content: datatypes.JSON(mustJSON(t, content)),
	}
}

func TestEvaluateFillBlank(t *testing.T) {
	tests := []struct {
		name     string
		accepted []string
		values   []string
		correct  bool
	}{
		{"exact match", []string{"0.25"}, []string{"0.25"}, true},
		{"surrounding whitespace ignored", []string{"0.25"}, []string{"  0.25  "}, true},
		{"case insensitive", []string{"Paris"}, []string{"pARIS"}, true},
		{"no numeric equivalence", []string{"0.25"}, []string{"0.250"}, false},
		{"no fraction equivalence", []string{"0.25"}, []string{"1/4"}, false},
		{"second accepted answer", []string{"0.25", "1/4"}, []string{"1/4"}, true},
		{"empty value", []string{"0.25"}, []string{""}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := fillBlankQuestion(t, tt.accepted)
			value := mustJSON(t, models.BlankAnswer{Values: tt.values})

			result, err := Evaluate(q, value, 5)
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if result.Correct != tt.correct {
				t.Errorf("Correct = %v, want %v", result.Correct, tt.correct)
			}
			wantMarks := 0.0
			if tt.correct {
				wantMarks = 5
			}
			if result.MarksAwarded != wantMarks {
				t.Errorf("MarksAwarded = %v, want %v", result.MarksAwarded, wantMarks)
			}
		})
	}
}

func TestEvaluateFillBlankAllOrNothing(t *testing.T) {
	q := fillBlankQuestion(t, []string{"2"}, []string{"4"})
	value := mustJSON(t, models.BlankAnswer{Values: []string{"2", "5"}})

	result, err := Evaluate(q, value, 10)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if result.Correct {
		t.Error("one wrong blank must fail the whole question")
	}
	if result.MarksAwarded != 0 {
		t.Errorf("MarksAwarded = %v, want 0", result.MarksAwarded)
	}
}

func matchingQuestion(t *testing.T) *models.Question {
	t.Helper()
	content := models.MatchingContent{
		LeftItems: []models.MatchItem{
			{ID: "l1", Text: "France"},
			{ID: "l2", Text: "Japan"},
			{ID: "l3", Text: "Brazil"},
		},
		RightItems: []models.MatchItem{
			{ID: "r1", Text: "Paris"},
			{ID: "r2", Text: "Tokyo"},
			{ID: "r3", Text: "Brasilia"},
		},
		CorrectPairs: []models.MatchPair{
			{LeftID: "l1", RightID: "r1"},
			{LeftID: "l2", RightID: "r2"},
			{LeftID: "l3", RightID: "r3"},
		},
		RandomizeRight: true,
	}
	return &models.Question{
		Type:    models.Matching,
		Content: datatypes.JSON(mustJSON(t, content)),
	}
}

func TestEvaluateMatching(t *testing.T) {
	q := matchingQuestion(t)

	tests := []struct {
		name    string
		pairs   map[string]string
		correct bool
	}{
		{"all correct", map[string]string{"l1": "r1", "l2": "r2", "l3": "r3"}, true},
		{"one wrong", map[string]string{"l1": "r1", "l2": "r3", "l3": "r2"}, false},
		{"missing pair", map[string]string{"l1": "r1", "l2": "r2"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value := mustJSON(t, models.MatchingAnswer{Pairs: tt.pairs})
			result, err := Evaluate(q, value, 6)
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if result.Correct != tt.correct {
				t.Errorf("Correct = %v, want %v", result.Correct, tt.correct)
			}
		})
	}
}

// Grading goes through canonical item IDs, so the result must not depend
// on how the right column was displayed.
func TestEvaluateMatchingIgnoresDisplayOrder(t *testing.T) {
	q := matchingQuestion(t)
	value := mustJSON(t, models.MatchingAnswer{
		Pairs: map[string]string{"l1": "r1", "l2": "r2", "l3": "r3"},
	})

	var content models.MatchingContent
	if err := json.Unmarshal(q.Content, &content); err != nil {
		t.Fatalf("unmarshal content: %v", err)
	}

	for seed := int64(0); seed < 10; seed++ {
		ShuffleRightItems(&content, rand.New(rand.NewSource(seed)))
		result, err := Evaluate(q, value, 6)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if !result.Correct {
			t.Fatalf("seed %d: correct mapping graded wrong", seed)
		}
	}
}

func TestShuffleRightItemsIsPermutation(t *testing.T) {
	var content models.MatchingContent
	if err := json.Unmarshal(matchingQuestion(t).Content, &content); err != nil {
		t.Fatalf("unmarshal content: %v", err)
	}

	order := ShuffleRightItems(&content, rand.New(rand.NewSource(42)))
	if len(order) != len(content.RightItems) {
		t.Fatalf("shuffle returned %d items, want %d", len(order), len(content.RightItems))
	}
	seen := make(map[string]bool)
	for _, id := range order {
		seen[id] = true
	}
	for _, item := range content.RightItems {
		if !seen[item.ID] {
			t.Errorf("item %s missing from shuffle", item.ID)
		}
	}
}

func TestEvaluateMultipleChoice(t *testing.T) {
	content := models.MultipleChoiceContent{
		Options: []models.ChoiceOption{
			{ID: "a", Text: "4"},
			{ID: "b", Text: "5"},
		},
		CorrectOptionID: "a",
	}
	q := &models.Question{
		Type:    models.MultipleChoice,
		Content: datatypes.JSON(mustJSON(t, content)),
	}

	result, err := Evaluate(q, mustJSON(t, models.ChoiceAnswer{SelectedOptionID: "a"}), 3)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !result.Correct || result.MarksAwarded != 3 {
		t.Errorf("got %+v, want correct with full marks", result)
	}

	result, err = Evaluate(q, mustJSON(t, models.ChoiceAnswer{SelectedOptionID: "b"}), 3)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if result.Correct || result.MarksAwarded != 0 {
		t.Errorf("got %+v, want incorrect with zero marks", result)
	}
}

func TestEvaluateTrueFalse(t *testing.T) {
	q := &models.Question{
		Type:    models.TrueFalse,
		Content: datatypes.JSON(mustJSON(t, models.TrueFalseContent{CorrectAnswer: true})),
	}

	result, err := Evaluate(q, mustJSON(t, models.ChoiceAnswer{SelectedOptionID: "true"}), 2)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !result.Correct {
		t.Error("true must be correct")
	}

	result, err = Evaluate(q, mustJSON(t, models.ChoiceAnswer{SelectedOptionID: "false"}), 2)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if result.Correct {
		t.Error("false must be incorrect")
	}
}

func TestEvaluateShortAnswerNeedsManualGrading(t *testing.T) {
	q := &models.Question{
		Type:    models.ShortAnswer,
		Content: datatypes.JSON(mustJSON(t, models.ShortAnswerContent{MaxLength: 500})),
	}

	_, err := Evaluate(q, mustJSON(t, models.TextAnswer{Text: "free text"}), 10)
	if !errors.Is(err, ErrManualGradingRequired) {
		t.Fatalf("err = %v, want ErrManualGradingRequired", err)
	}
}

func TestEvaluateEmptyValueIsIncorrect(t *testing.T) {
	q := fillBlankQuestion(t, []string{"42"})

	for _, raw := range []json.RawMessage{nil, []byte(""), []byte("null")} {
		result, err := Evaluate(q, raw, 5)
		if err != nil {
			t.Fatalf("Evaluate(%q): %v", raw, err)
		}
		if result.Correct || result.MarksAwarded != 0 {
			t.Errorf("empty value %q graded %+v, want incorrect", raw, result)
		}
	}
}
