package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/eduline/quiz-service/internal/events"
	"github.com/eduline/quiz-service/internal/models"
	"github.com/eduline/quiz-service/internal/validator"
)

// newGradedFixture builds a submitted attempt with one auto-graded answer
// (5/5) and one pending short answer, and returns the pending answer's ID.
func newGradedFixture(t *testing.T) (*mockRepository, *gradingService, *events.MockEventPublisher, uint, uint) {
	t.Helper()
	repo, attemptSvc, publisher, quiz := newAttemptFixture(t)
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	resp := submitFixtureAttempt(t, attemptSvc, quiz, start)

	setClock(attemptSvc, start.Add(10*time.Minute))
	if _, err := attemptSvc.Submit(context.Background(), resp.ID, "student-1", SubmitAttemptRequest{}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	var pendingID uint
	answers, err := repo.Answer().GetByAttempt(context.Background(), nil, resp.ID)
	if err != nil {
		t.Fatalf("GetByAttempt: %v", err)
	}
	for _, answer := range answers {
		if !answer.IsGraded {
			pendingID = answer.ID
		}
	}
	if pendingID == 0 {
		t.Fatal("fixture has no pending answer")
	}

	svc := NewGradingService(repo, nil, testLogger(), validator.New(), publisher).(*gradingService)
	return repo, svc, publisher, resp.ID, pendingID
}

func TestGradeAnswerRecordsManualMarks(t *testing.T) {
	repo, svc, _, attemptID, answerID := newGradedFixture(t)

	feedback := "solid reasoning"
	result, err := svc.GradeAnswer(context.Background(), answerID, "teacher-1", GradeAnswerRequest{
		MarksAwarded: 4,
		Feedback:     &feedback,
	})
	if err != nil {
		t.Fatalf("GradeAnswer: %v", err)
	}

	if result.MarksAwarded != 4 {
		t.Errorf("MarksAwarded = %v, want 4", result.MarksAwarded)
	}
	if result.GradedBy == nil || *result.GradedBy != "teacher-1" {
		t.Errorf("GradedBy = %v, want teacher-1", result.GradedBy)
	}

	// The manual score lands on the attempt separately from the auto score,
	// and with nothing pending the attempt moves to graded.
	attempt, _ := repo.Attempt().GetByID(context.Background(), nil, attemptID)
	if attempt.AutoScore != 10 {
		t.Errorf("AutoScore = %v, want 10", attempt.AutoScore)
	}
	if attempt.ManualScore == nil || *attempt.ManualScore != 4 {
		t.Errorf("ManualScore = %v, want 4", attempt.ManualScore)
	}
	if attempt.TotalScore() != 14 {
		t.Errorf("TotalScore = %v, want 14", attempt.TotalScore())
	}
	if attempt.Status != models.AttemptGraded {
		t.Errorf("Status = %s, want %s", attempt.Status, models.AttemptGraded)
	}
}

func TestGradeAnswerStampsInjectedClock(t *testing.T) {
	_, svc, _, _, answerID := newGradedFixture(t)
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return at }

	result, err := svc.GradeAnswer(context.Background(), answerID, "teacher-1", GradeAnswerRequest{MarksAwarded: 3})
	if err != nil {
		t.Fatalf("GradeAnswer: %v", err)
	}
	if !result.GradedAt.Equal(at) {
		t.Errorf("GradedAt = %v, want %v", result.GradedAt, at)
	}
}

func TestGradeAnswerOverwrites(t *testing.T) {
	repo, svc, _, attemptID, answerID := newGradedFixture(t)

	if _, err := svc.GradeAnswer(context.Background(), answerID, "teacher-1", GradeAnswerRequest{MarksAwarded: 2}); err != nil {
		t.Fatalf("first grade: %v", err)
	}
	if _, err := svc.GradeAnswer(context.Background(), answerID, "teacher-1", GradeAnswerRequest{MarksAwarded: 5}); err != nil {
		t.Fatalf("regrade: %v", err)
	}

	attempt, _ := repo.Attempt().GetByID(context.Background(), nil, attemptID)
	if attempt.ManualScore == nil || *attempt.ManualScore != 5 {
		t.Errorf("ManualScore = %v, want 5 after regrade", attempt.ManualScore)
	}
}

func TestGradeAnswerRejectsMarksAboveMax(t *testing.T) {
	_, svc, _, _, answerID := newGradedFixture(t)

	_, err := svc.GradeAnswer(context.Background(), answerID, "teacher-1", GradeAnswerRequest{MarksAwarded: 6})
	var businessErr *BusinessRuleError
	if !errors.As(err, &businessErr) {
		t.Fatalf("err = %v, want BusinessRuleError", err)
	}
}

func TestGradeAnswerRequiresGraderRole(t *testing.T) {
	_, svc, _, _, answerID := newGradedFixture(t)

	_, err := svc.GradeAnswer(context.Background(), answerID, "student-1", GradeAnswerRequest{MarksAwarded: 3})
	if !IsPermissionDenied(err) {
		t.Fatalf("err = %v, want permission denied", err)
	}
}

func TestGradeAnswerRejectsAutoGradedQuestion(t *testing.T) {
	repo, svc, _, attemptID, _ := newGradedFixture(t)

	answers, _ := repo.Answer().GetByAttempt(context.Background(), nil, attemptID)
	var autoID uint
	for _, answer := range answers {
		if answer.IsGraded && answer.GradedBy == nil {
			autoID = answer.ID
			break
		}
	}

	_, err := svc.GradeAnswer(context.Background(), autoID, "teacher-1", GradeAnswerRequest{MarksAwarded: 1})
	if !errors.Is(err, ErrGradingNotAllowed) {
		t.Fatalf("err = %v, want ErrGradingNotAllowed", err)
	}
}

func TestReleaseResultsIsOneWay(t *testing.T) {
	repo, svc, publisher, attemptID, answerID := newGradedFixture(t)

	if _, err := svc.GradeAnswer(context.Background(), answerID, "teacher-1", GradeAnswerRequest{MarksAwarded: 3}); err != nil {
		t.Fatalf("GradeAnswer: %v", err)
	}

	if err := svc.ReleaseResults(context.Background(), attemptID, "teacher-1"); err != nil {
		t.Fatalf("ReleaseResults: %v", err)
	}

	attempt, _ := repo.Attempt().GetByID(context.Background(), nil, attemptID)
	if !attempt.IsReleased() {
		t.Error("attempt not released")
	}
	if attempt.Status != models.AttemptReleased {
		t.Errorf("Status = %s, want %s", attempt.Status, models.AttemptReleased)
	}

	// A second release is rejected; the gate never closes again.
	if err := svc.ReleaseResults(context.Background(), attemptID, "teacher-1"); !errors.Is(err, ErrAlreadyReleased) {
		t.Fatalf("second release err = %v, want ErrAlreadyReleased", err)
	}

	var sawReleased bool
	for _, event := range publisher.GetPublishedEvents() {
		if event.Type == events.ResultsReleased {
			sawReleased = true
		}
	}
	if !sawReleased {
		t.Error("no results.released event published")
	}
}

func TestReleaseRequiresGraderRole(t *testing.T) {
	_, svc, _, attemptID, _ := newGradedFixture(t)

	if err := svc.ReleaseResults(context.Background(), attemptID, "student-1"); !IsPermissionDenied(err) {
		t.Fatalf("err = %v, want permission denied", err)
	}
}

// Regrading after release updates the score without closing the gate.
func TestRegradeAfterReleaseKeepsResultsVisible(t *testing.T) {
	repo, svc, _, attemptID, answerID := newGradedFixture(t)

	if _, err := svc.GradeAnswer(context.Background(), answerID, "teacher-1", GradeAnswerRequest{MarksAwarded: 2}); err != nil {
		t.Fatalf("GradeAnswer: %v", err)
	}
	if err := svc.ReleaseResults(context.Background(), attemptID, "teacher-1"); err != nil {
		t.Fatalf("ReleaseResults: %v", err)
	}

	if _, err := svc.GradeAnswer(context.Background(), answerID, "teacher-1", GradeAnswerRequest{MarksAwarded: 5}); err != nil {
		t.Fatalf("regrade after release: %v", err)
	}

	attempt, _ := repo.Attempt().GetByID(context.Background(), nil, attemptID)
	if !attempt.IsReleased() {
		t.Error("release gate closed by regrade")
	}
	if attempt.Status != models.AttemptReleased {
		t.Errorf("Status = %s, want %s", attempt.Status, models.AttemptReleased)
	}
	if attempt.ManualScore == nil || *attempt.ManualScore != 5 {
		t.Errorf("ManualScore = %v, want 5", attempt.ManualScore)
	}
}

func TestGradingOverviewSeparatesContributions(t *testing.T) {
	_, svc, _, attemptID, answerID := newGradedFixture(t)

	if _, err := svc.GradeAnswer(context.Background(), answerID, "teacher-1", GradeAnswerRequest{MarksAwarded: 3}); err != nil {
		t.Fatalf("GradeAnswer: %v", err)
	}

	overview, err := svc.GradingOverview(context.Background(), attemptID, "teacher-1")
	if err != nil {
		t.Fatalf("GradingOverview: %v", err)
	}

	if overview.Stats.AutoGraded != 2 {
		t.Errorf("AutoGraded = %d, want 2", overview.Stats.AutoGraded)
	}
	if overview.Stats.ManualGraded != 1 {
		t.Errorf("ManualGraded = %d, want 1", overview.Stats.ManualGraded)
	}
	if overview.Stats.AutoScore != 10 {
		t.Errorf("AutoScore = %v, want 10", overview.Stats.AutoScore)
	}
	if overview.Stats.ManualScore != 3 {
		t.Errorf("ManualScore = %v, want 3", overview.Stats.ManualScore)
	}
	if overview.TotalScore != 13 {
		t.Errorf("TotalScore = %v, want 13", overview.TotalScore)
	}
	if len(overview.Answers) != 3 {
		t.Errorf("overview lists %d answers, want 3", len(overview.Answers))
	}
}
