package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"gorm.io/datatypes"

	"github.com/eduline/quiz-service/internal/events"
	"github.com/eduline/quiz-service/internal/models"
	"github.com/eduline/quiz-service/internal/validator"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func marshal(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

// newAttemptFixture builds a published quiz with one multiple-choice, one
// fill-blank, and one short-answer question (5 points each).
func newAttemptFixture(t *testing.T) (*mockRepository, *attemptService, *events.MockEventPublisher, *models.Quiz) {
	t.Helper()
	repo := newMockRepository()
	repo.addUser("student-1", models.RoleStudent)
	repo.addUser("student-2", models.RoleStudent)
	repo.addUser("teacher-1", models.RoleTeacher)

	quiz := repo.addQuiz(&models.Quiz{
		Title:       "Fractions",
		Status:      models.QuizPublished,
		TimeLimit:   30,
		MaxAttempts: 3,
		CreatedBy:   "teacher-1",
	})

	mc := repo.addQuestion(&models.Question{
		Type:   models.MultipleChoice,
		Text:   "1/2 + 1/2 = ?",
		Points: 5,
		Content: datatypes.JSON(marshal(t, models.MultipleChoiceContent{
			Options: []models.ChoiceOption{
				{ID: "a", Text: "1"},
				{ID: "b", Text: "2"},
			},
			CorrectOptionID: "a",
		})),
	})
	fb := repo.addQuestion(&models.Question{
		Type:   models.FillBlank,
		Text:   "1/4 as a decimal",
		Points: 5,
		Content: datatypes.JSON(marshal(t, models.FillBlankContent{
			Template: "1/4 = {blank}",
			Blanks:   []models.BlankDef{{AcceptedAnswers: []string{"0.25"}}},
		})),
	})
	sa := repo.addQuestion(&models.Question{
		Type:   models.ShortAnswer,
		Text:   "Explain your reasoning",
		Points: 5,
		Content: datatypes.JSON(marshal(t, models.ShortAnswerContent{
			MaxLength: 500,
		})),
	})
	repo.linkQuestion(quiz.ID, mc, nil)
	repo.linkQuestion(quiz.ID, fb, nil)
	repo.linkQuestion(quiz.ID, sa, nil)

	publisher := events.NewMockEventPublisher(testLogger())
	svc := NewAttemptService(repo, nil, testLogger(), validator.New(), publisher).(*attemptService)
	return repo, svc, publisher, quiz
}

func setClock(svc *attemptService, at time.Time) {
	svc.now = func() time.Time { return at }
}

func TestStartFixesDeadline(t *testing.T) {
	_, svc, _, quiz := newAttemptFixture(t)
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	setClock(svc, start)

	resp, err := svc.Start(context.Background(), quiz.ID, "student-1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	wantDeadline := start.Add(30 * time.Minute)
	if resp.DeadlineAt == nil || !resp.DeadlineAt.Equal(wantDeadline) {
		t.Errorf("DeadlineAt = %v, want %v", resp.DeadlineAt, wantDeadline)
	}
	if resp.TimeRemainingSeconds != 1800 {
		t.Errorf("TimeRemainingSeconds = %d, want 1800", resp.TimeRemainingSeconds)
	}
	if resp.MaxScore != 15 {
		t.Errorf("MaxScore = %d, want 15", resp.MaxScore)
	}
	if len(resp.Questions) != 3 {
		t.Errorf("served %d questions, want 3", len(resp.Questions))
	}

	// Question payloads must not leak correct answers.
	for _, q := range resp.Questions {
		if string(q.Content) == "" {
			continue
		}
		var payload map[string]any
		if err := json.Unmarshal(q.Content, &payload); err != nil {
			t.Fatalf("question %d content: %v", q.ID, err)
		}
		for _, key := range []string{"correct_option_id", "correct_answer", "accepted_answers", "correct_pairs"} {
			if _, leaked := payload[key]; leaked {
				t.Errorf("question %d leaks %s", q.ID, key)
			}
		}
	}
}

func TestStartResumesActiveAttempt(t *testing.T) {
	_, svc, _, quiz := newAttemptFixture(t)
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	setClock(svc, start)

	first, err := svc.Start(context.Background(), quiz.ID, "student-1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	setClock(svc, start.Add(5*time.Minute))
	second, err := svc.Start(context.Background(), quiz.ID, "student-1")
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}

	if !second.Resumed {
		t.Error("second start did not resume")
	}
	if second.ID != first.ID {
		t.Errorf("resumed attempt %d, want %d", second.ID, first.ID)
	}
	// The countdown keeps running against the original deadline.
	if second.TimeRemainingSeconds != 1500 {
		t.Errorf("TimeRemainingSeconds = %d, want 1500", second.TimeRemainingSeconds)
	}
}

func TestStartRejectsUnavailableQuiz(t *testing.T) {
	repo, svc, _, _ := newAttemptFixture(t)
	setClock(svc, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	draft := repo.addQuiz(&models.Quiz{
		Title:     "Draft quiz",
		Status:    models.QuizDraft,
		TimeLimit: 10,
		CreatedBy: "teacher-1",
	})

	_, err := svc.Start(context.Background(), draft.ID, "student-1")
	if !errors.Is(err, ErrQuizUnavailable) {
		t.Fatalf("err = %v, want ErrQuizUnavailable", err)
	}
}

func submitFixtureAttempt(t *testing.T, svc *attemptService, quiz *models.Quiz, start time.Time) *AttemptResponse {
	t.Helper()
	setClock(svc, start)
	resp, err := svc.Start(context.Background(), quiz.ID, "student-1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	answers := []struct {
		questionID uint
		value      any
	}{
		{resp.Questions[0].ID, models.ChoiceAnswer{SelectedOptionID: "a"}},
		{resp.Questions[1].ID, models.BlankAnswer{Values: []string{" 0.25 "}}},
		{resp.Questions[2].ID, models.TextAnswer{Text: "because halves add up"}},
	}
	for _, a := range answers {
		req := SaveAnswerRequest{QuestionID: a.questionID, Answer: marshal(t, a.value)}
		if err := svc.SaveAnswer(context.Background(), resp.ID, "student-1", req); err != nil {
			t.Fatalf("SaveAnswer(%d): %v", a.questionID, err)
		}
	}
	return resp
}

func TestSubmitGradesObjectiveAnswers(t *testing.T) {
	_, svc, publisher, quiz := newAttemptFixture(t)
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	resp := submitFixtureAttempt(t, svc, quiz, start)

	setClock(svc, start.Add(10*time.Minute))
	result, err := svc.Submit(context.Background(), resp.ID, "student-1", SubmitAttemptRequest{TimeTakenSeconds: 600})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if result.AlreadyFinal {
		t.Error("first submit reported already final")
	}
	// MC and fill-blank are worth 5 each; whitespace is trimmed, so the
	// blank counts.
	if result.AutoScore != 10 {
		t.Errorf("AutoScore = %v, want 10", result.AutoScore)
	}
	if result.PendingManual != 1 {
		t.Errorf("PendingManual = %d, want 1", result.PendingManual)
	}
	if result.Status != models.AttemptSubmitted {
		t.Errorf("Status = %s, want %s", result.Status, models.AttemptSubmitted)
	}
	if result.TotalScore > float64(result.MaxScore) {
		t.Errorf("TotalScore %v exceeds MaxScore %d", result.TotalScore, result.MaxScore)
	}

	var sawSubmitted, sawManualRequired bool
	for _, event := range publisher.GetPublishedEvents() {
		switch event.Type {
		case events.AttemptSubmitted:
			sawSubmitted = true
		case events.ManualGradingRequired:
			sawManualRequired = true
		}
	}
	if !sawSubmitted || !sawManualRequired {
		t.Errorf("events submitted=%v manual=%v, want both", sawSubmitted, sawManualRequired)
	}
}

func TestSubmitIsIdempotent(t *testing.T) {
	_, svc, _, quiz := newAttemptFixture(t)
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	resp := submitFixtureAttempt(t, svc, quiz, start)

	setClock(svc, start.Add(10*time.Minute))
	first, err := svc.Submit(context.Background(), resp.ID, "student-1", SubmitAttemptRequest{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	second, err := svc.Submit(context.Background(), resp.ID, "student-1", SubmitAttemptRequest{})
	if err != nil {
		t.Fatalf("second Submit: %v", err)
	}
	if !second.AlreadyFinal {
		t.Error("second submit not flagged already final")
	}
	if second.AutoScore != first.AutoScore {
		t.Errorf("second submit changed AutoScore: %v -> %v", first.AutoScore, second.AutoScore)
	}
	if second.Status != first.Status {
		t.Errorf("second submit changed Status: %s -> %s", first.Status, second.Status)
	}
}

func TestSaveAnswerAfterCloseRejected(t *testing.T) {
	_, svc, _, quiz := newAttemptFixture(t)
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	resp := submitFixtureAttempt(t, svc, quiz, start)

	if _, err := svc.Submit(context.Background(), resp.ID, "student-1", SubmitAttemptRequest{}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	req := SaveAnswerRequest{
		QuestionID: resp.Questions[0].ID,
		Answer:     marshal(t, models.ChoiceAnswer{SelectedOptionID: "b"}),
	}
	err := svc.SaveAnswer(context.Background(), resp.ID, "student-1", req)
	if !errors.Is(err, ErrAttemptClosed) {
		t.Fatalf("err = %v, want ErrAttemptClosed", err)
	}
}

func TestSaveAnswerOwnership(t *testing.T) {
	_, svc, _, quiz := newAttemptFixture(t)
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	resp := submitFixtureAttempt(t, svc, quiz, start)

	req := SaveAnswerRequest{
		QuestionID: resp.Questions[0].ID,
		Answer:     marshal(t, models.ChoiceAnswer{SelectedOptionID: "a"}),
	}
	err := svc.SaveAnswer(context.Background(), resp.ID, "student-2", req)
	if !IsPermissionDenied(err) {
		t.Fatalf("err = %v, want permission denied", err)
	}
}

func TestTimeRemainingClampsAtZero(t *testing.T) {
	_, svc, _, quiz := newAttemptFixture(t)
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	setClock(svc, start)

	resp, err := svc.Start(context.Background(), quiz.ID, "student-1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	setClock(svc, start.Add(10*time.Minute))
	remaining, err := svc.TimeRemaining(context.Background(), resp.ID, "student-1")
	if err != nil {
		t.Fatalf("TimeRemaining: %v", err)
	}
	if remaining != 1200 {
		t.Errorf("remaining = %d, want 1200", remaining)
	}

	setClock(svc, start.Add(2*time.Hour))
	remaining, err = svc.TimeRemaining(context.Background(), resp.ID, "student-1")
	if err != nil {
		t.Fatalf("TimeRemaining past deadline: %v", err)
	}
	if remaining != 0 {
		t.Errorf("remaining = %d, want 0", remaining)
	}
}

func TestHandleTimeoutGradesSavedAnswers(t *testing.T) {
	_, svc, _, quiz := newAttemptFixture(t)
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	resp := submitFixtureAttempt(t, svc, quiz, start)

	setClock(svc, start.Add(time.Hour))
	result, err := svc.HandleTimeout(context.Background(), resp.ID)
	if err != nil {
		t.Fatalf("HandleTimeout: %v", err)
	}

	if result.EndReason != models.EndReasonTimeout {
		t.Errorf("EndReason = %s, want %s", result.EndReason, models.EndReasonTimeout)
	}
	if result.AutoScore != 10 {
		t.Errorf("AutoScore = %v, want 10", result.AutoScore)
	}
	// Time taken is capped at the quiz limit.
	if result.SubmittedAt == nil {
		t.Error("SubmittedAt not set")
	}

	// A timeout on an already-closed attempt is a no-op.
	again, err := svc.HandleTimeout(context.Background(), resp.ID)
	if err != nil {
		t.Fatalf("second HandleTimeout: %v", err)
	}
	if !again.AlreadyFinal {
		t.Error("second timeout not flagged already final")
	}
}

func TestResultsHiddenUntilReleased(t *testing.T) {
	repo, svc, _, quiz := newAttemptFixture(t)
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	resp := submitFixtureAttempt(t, svc, quiz, start)

	if _, err := svc.Submit(context.Background(), resp.ID, "student-1", SubmitAttemptRequest{}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// Student before release: summary only, no correctness.
	results, err := svc.GetResults(context.Background(), resp.ID, "student-1")
	if err != nil {
		t.Fatalf("GetResults: %v", err)
	}
	if results.Released {
		t.Error("results flagged released before release")
	}
	if len(results.Answers) != 0 {
		t.Errorf("student saw %d answers before release", len(results.Answers))
	}
	if results.TotalScore != nil {
		t.Error("student saw total score before release")
	}

	// The grading teacher sees detail immediately.
	teacherView, err := svc.GetResults(context.Background(), resp.ID, "teacher-1")
	if err != nil {
		t.Fatalf("GetResults as teacher: %v", err)
	}
	if len(teacherView.Answers) != 3 {
		t.Errorf("teacher saw %d answers, want 3", len(teacherView.Answers))
	}

	// Another student can see nothing at all.
	if _, err := svc.GetResults(context.Background(), resp.ID, "student-2"); !IsPermissionDenied(err) {
		t.Fatalf("other student err = %v, want permission denied", err)
	}

	// After release the owner gets the full breakdown.
	attempt, _ := repo.Attempt().GetByID(context.Background(), nil, resp.ID)
	now := start.Add(time.Hour)
	attempt.ReleasedAt = &now
	attempt.Status = models.AttemptReleased

	released, err := svc.GetResults(context.Background(), resp.ID, "student-1")
	if err != nil {
		t.Fatalf("GetResults after release: %v", err)
	}
	if !released.Released {
		t.Error("results not flagged released")
	}
	if len(released.Answers) != 3 {
		t.Errorf("student saw %d answers after release, want 3", len(released.Answers))
	}
}
