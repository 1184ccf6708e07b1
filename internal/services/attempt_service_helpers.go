package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"

	"gorm.io/gorm"

	"github.com/eduline/quiz-service/internal/events"
	"github.com/eduline/quiz-service/internal/grading"
	"github.com/eduline/quiz-service/internal/models"
	"github.com/eduline/quiz-service/internal/repositories"
)

func (s *attemptService) getOwnedAttempt(ctx context.Context, attemptID uint, userID string) (*models.QuizAttempt, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, nil, attemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	if attempt.UserID != userID {
		return nil, NewPermissionError(userID, attemptID, "attempt", "access", "attempt belongs to another user")
	}
	return attempt, nil
}

func (s *attemptService) questionInQuiz(ctx context.Context, quizID, questionID uint) (*models.Question, error) {
	links, err := s.repo.QuizQuestion().GetByQuiz(ctx, nil, quizID)
	if err != nil {
		return nil, fmt.Errorf("failed to get quiz questions: %w", err)
	}
	for _, link := range links {
		if link.QuestionID == questionID {
			return &link.Question, nil
		}
	}
	return nil, ErrQuestionNotInQuiz
}

// validateAnswerValue rejects values whose shape does not fit the question
// type before they reach storage.
func validateAnswerValue(questionType models.QuestionType, value json.RawMessage) error {
	switch questionType {
	case models.MultipleChoice, models.TrueFalse:
		var v models.ChoiceAnswer
		return json.Unmarshal(value, &v)
	case models.FillBlank:
		var v models.BlankAnswer
		return json.Unmarshal(value, &v)
	case models.Matching:
		var v models.MatchingAnswer
		return json.Unmarshal(value, &v)
	case models.ShortAnswer:
		var v models.TextAnswer
		return json.Unmarshal(value, &v)
	default:
		return fmt.Errorf("unsupported question type: %s", questionType)
	}
}

// buildSessionData fixes the per-attempt randomness at start: question
// order and each matching question's right-column display order. Stored
// once so re-renders and resumes never reshuffle mid-session.
func buildSessionData(quiz *models.Quiz, seed int64) ([]byte, error) {
	rng := rand.New(rand.NewSource(seed))

	data := models.AttemptSessionData{
		MatchingShuffles: make(map[uint][]string),
	}

	order := make([]uint, len(quiz.Questions))
	for i, link := range quiz.Questions {
		order[i] = link.QuestionID
	}
	if quiz.RandomizeQuestions {
		rng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}
	data.QuestionOrder = order

	for _, link := range quiz.Questions {
		if link.Question.Type != models.Matching {
			continue
		}
		var content models.MatchingContent
		if err := json.Unmarshal(link.Question.Content, &content); err != nil {
			return nil, fmt.Errorf("invalid matching content for question %d: %w", link.QuestionID, err)
		}
		data.MatchingShuffles[link.QuestionID] = grading.ShuffleRightItems(&content, rng)
	}

	return json.Marshal(&data)
}

func quizMaxScore(quiz *models.Quiz) int {
	total := 0
	for _, link := range quiz.Questions {
		total += link.EffectivePoints()
	}
	return total
}

func (s *attemptService) buildAttemptResponse(ctx context.Context, attempt *models.QuizAttempt, quiz *models.Quiz, resumed bool) (*AttemptResponse, error) {
	var sessionData models.AttemptSessionData
	if len(attempt.SessionData) > 0 {
		if err := json.Unmarshal(attempt.SessionData, &sessionData); err != nil {
			return nil, fmt.Errorf("corrupt session data for attempt %d: %w", attempt.ID, err)
		}
	}

	linksByID := make(map[uint]*models.QuizQuestion, len(quiz.Questions))
	for i := range quiz.Questions {
		linksByID[quiz.Questions[i].QuestionID] = &quiz.Questions[i]
	}

	questions := make([]QuestionForAttempt, 0, len(sessionData.QuestionOrder))
	for i, questionID := range sessionData.QuestionOrder {
		link, ok := linksByID[questionID]
		if !ok {
			continue
		}
		content, err := sanitizeQuestionContent(&link.Question, sessionData.MatchingShuffles[questionID])
		if err != nil {
			return nil, err
		}
		questions = append(questions, QuestionForAttempt{
			ID:      link.QuestionID,
			Type:    link.Question.Type,
			Text:    link.Question.Text,
			Points:  link.EffectivePoints(),
			Order:   i,
			Content: content,
		})
	}

	remaining := 0
	if attempt.DeadlineAt != nil && !attempt.IsClosed() {
		remaining = int(attempt.DeadlineAt.Sub(s.now()).Seconds())
		if remaining < 0 {
			remaining = 0
		}
	}

	return &AttemptResponse{
		QuizAttempt:          attempt,
		TimeRemainingSeconds: remaining,
		CanSubmit:            !attempt.IsClosed(),
		Resumed:              resumed,
		Questions:            questions,
	}, nil
}

// sanitizeQuestionContent strips everything that would reveal the correct
// answer from the payload served during an attempt. Matching questions get
// their right column reordered to the attempt's stored shuffle.
func sanitizeQuestionContent(question *models.Question, matchingShuffle []string) (json.RawMessage, error) {
	switch question.Type {
	case models.MultipleChoice:
		var c models.MultipleChoiceContent
		if err := json.Unmarshal(question.Content, &c); err != nil {
			return nil, fmt.Errorf("invalid content for question %d: %w", question.ID, err)
		}
		return json.Marshal(map[string]any{"options": c.Options})

	case models.TrueFalse:
		return json.Marshal(map[string]any{})

	case models.FillBlank:
		var c models.FillBlankContent
		if err := json.Unmarshal(question.Content, &c); err != nil {
			return nil, fmt.Errorf("invalid content for question %d: %w", question.ID, err)
		}
		blanks := make([]map[string]any, len(c.Blanks))
		for i, blank := range c.Blanks {
			blanks[i] = map[string]any{"placeholder_text": blank.PlaceholderText}
		}
		return json.Marshal(map[string]any{"template": c.Template, "blanks": blanks})

	case models.Matching:
		var c models.MatchingContent
		if err := json.Unmarshal(question.Content, &c); err != nil {
			return nil, fmt.Errorf("invalid content for question %d: %w", question.ID, err)
		}
		rightByID := make(map[string]models.MatchItem, len(c.RightItems))
		for _, item := range c.RightItems {
			rightByID[item.ID] = item
		}
		right := make([]models.MatchItem, 0, len(c.RightItems))
		if len(matchingShuffle) > 0 {
			for _, id := range matchingShuffle {
				if item, ok := rightByID[id]; ok {
					right = append(right, item)
				}
			}
		} else {
			right = c.RightItems
		}
		return json.Marshal(map[string]any{
			"left_items":  c.LeftItems,
			"right_items": right,
		})

	case models.ShortAnswer:
		var c models.ShortAnswerContent
		if err := json.Unmarshal(question.Content, &c); err != nil {
			return nil, fmt.Errorf("invalid content for question %d: %w", question.ID, err)
		}
		return json.Marshal(map[string]any{
			"max_length":       c.MaxLength,
			"placeholder_text": c.PlaceholderText,
		})

	default:
		return nil, fmt.Errorf("unsupported question type: %s", question.Type)
	}
}

// finalize is the single path that closes an attempt and grades objective
// answers. Submit, timeout, and the sweeper all funnel through it; the
// in-transaction status check makes the transition happen at most once.
func (s *attemptService) finalize(ctx context.Context, attemptID uint, endReason string, timeTaken int) (*SubmitResult, error) {
	var result *SubmitResult

	err := s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		attempt, err := txRepo.Attempt().GetByIDWithDetails(ctx, nil, attemptID)
		if err != nil {
			return fmt.Errorf("failed to get attempt: %w", err)
		}

		// Lost the race against another finalizer; report the existing
		// outcome instead of grading twice.
		if attempt.IsClosed() {
			result = submitResultFromAttempt(attempt, true)
			return nil
		}

		links, err := txRepo.QuizQuestion().GetByQuiz(ctx, nil, attempt.QuizID)
		if err != nil {
			return fmt.Errorf("failed to get quiz questions: %w", err)
		}

		answersByQuestion := make(map[uint]*models.AttemptAnswer, len(attempt.Answers))
		for i := range attempt.Answers {
			answersByQuestion[attempt.Answers[i].QuestionID] = &attempt.Answers[i]
		}

		now := s.now()
		autoScore := 0.0
		pendingManual := 0
		var graded []*models.AttemptAnswer

		for _, link := range links {
			answer, ok := answersByQuestion[link.QuestionID]
			if !ok {
				continue // never answered; contributes nothing
			}

			points := link.EffectivePoints()
			answer.MaxMarks = points

			res, err := grading.Evaluate(&link.Question, json.RawMessage(answer.Value), points)
			if err != nil {
				if errors.Is(err, grading.ErrManualGradingRequired) {
					answer.IsGraded = false
					answer.MarksAwarded = 0
					pendingManual++
					graded = append(graded, answer)
					continue
				}
				return fmt.Errorf("failed to grade question %d: %w", link.QuestionID, err)
			}

			correct := res.Correct
			answer.IsCorrect = &correct
			answer.MarksAwarded = res.MarksAwarded
			answer.IsGraded = true
			answer.GradedAt = &now
			autoScore += res.MarksAwarded
			graded = append(graded, answer)
		}

		if err := txRepo.Answer().UpdateBatch(ctx, nil, graded); err != nil {
			return fmt.Errorf("failed to persist graded answers: %w", err)
		}

		attempt.Status = models.AttemptSubmitted
		if pendingManual == 0 {
			attempt.Status = models.AttemptGraded
			attempt.IsGraded = true
		}
		attempt.SubmittedAt = &now
		attempt.TimeTaken = timeTaken
		attempt.AutoScore = autoScore
		attempt.EndReason = &endReason

		if err := txRepo.Attempt().Update(ctx, nil, attempt); err != nil {
			return fmt.Errorf("failed to update attempt: %w", err)
		}

		result = submitResultFromAttempt(attempt, false)
		result.PendingManual = pendingManual
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.AlreadyFinal {
		s.emitFinalizeEvents(ctx, result)
		s.logger.Info("attempt finalized",
			"attempt_id", result.AttemptID,
			"end_reason", result.EndReason,
			"auto_score", result.AutoScore,
			"pending_manual", result.PendingManual)
	}

	return result, nil
}

func (s *attemptService) emitFinalizeEvents(ctx context.Context, result *SubmitResult) {
	attempt, err := s.repo.Attempt().GetByID(ctx, nil, result.AttemptID)
	if err != nil {
		s.logger.Error("failed to load attempt for events", "attempt_id", result.AttemptID, "error", err)
		return
	}

	s.publishEvent(ctx, events.NewAttemptSubmittedEvent(attempt.ID, attempt.QuizID, attempt.UserID, result.EndReason))
	if result.PendingManual > 0 {
		s.publishEvent(ctx, events.NewManualGradingRequiredEvent(attempt.ID, attempt.QuizID, result.PendingManual))
	} else {
		s.publishEvent(ctx, events.NewAttemptGradedEvent(attempt.ID, attempt.UserID, result.AutoScore, result.MaxScore))
	}
}

// publishEvent is best-effort; a broker outage must never fail the
// user-facing operation.
func (s *attemptService) publishEvent(ctx context.Context, event *events.NotificationEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishNotificationEvent(ctx, event); err != nil {
		s.logger.Error("failed to publish event", "event_type", event.Type, "error", err)
	}
}

func (s *attemptService) summaryFor(ctx context.Context, attempt *models.QuizAttempt, alreadyFinal bool) (*SubmitResult, error) {
	return submitResultFromAttempt(attempt, alreadyFinal), nil
}

func submitResultFromAttempt(attempt *models.QuizAttempt, alreadyFinal bool) *SubmitResult {
	endReason := ""
	if attempt.EndReason != nil {
		endReason = *attempt.EndReason
	}
	return &SubmitResult{
		AttemptID:    attempt.ID,
		Status:       attempt.Status,
		EndReason:    endReason,
		AutoScore:    attempt.AutoScore,
		ManualScore:  attempt.ManualScore,
		TotalScore:   attempt.TotalScore(),
		MaxScore:     attempt.MaxScore,
		AlreadyFinal: alreadyFinal,
		SubmittedAt:  attempt.SubmittedAt,
	}
}

func (s *attemptService) buildResultsResponse(attempt *models.QuizAttempt) *AttemptResultsResponse {
	answers := make([]AnswerResult, 0, len(attempt.Answers))
	for i := range attempt.Answers {
		a := &attempt.Answers[i]
		marks := a.MarksAwarded
		answers = append(answers, AnswerResult{
			AnswerID:     a.ID,
			QuestionID:   a.QuestionID,
			QuestionText: a.Question.Text,
			Type:         a.Question.Type,
			Value:        json.RawMessage(a.Value),
			IsCorrect:    a.IsCorrect,
			MarksAwarded: &marks,
			MaxMarks:     a.MaxMarks,
			Feedback:     a.Feedback,
			ManualGraded: a.IsManuallyGraded(),
		})
	}

	auto := attempt.AutoScore
	total := attempt.TotalScore()
	return &AttemptResultsResponse{
		AttemptID:   attempt.ID,
		QuizID:      attempt.QuizID,
		Status:      attempt.Status,
		Released:    attempt.IsReleased(),
		AutoScore:   &auto,
		ManualScore: attempt.ManualScore,
		TotalScore:  &total,
		MaxScore:    attempt.MaxScore,
		Answers:     answers,
	}
}
