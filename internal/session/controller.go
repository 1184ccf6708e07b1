package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eduline/quiz-service/internal/grading"
	"github.com/eduline/quiz-service/internal/models"
	"github.com/eduline/quiz-service/internal/services"
)

// Phase is the controller-side view of the attempt lifecycle.
type Phase string

const (
	PhaseNotStarted Phase = "not_started"
	PhaseInProgress Phase = "in_progress"
	PhaseSubmitted  Phase = "submitted"
)

var (
	ErrSessionNotStarted = errors.New("session has not been started")
	ErrSessionClosed     = errors.New("session is already submitted or closed")
	ErrNoSuchQuestion    = errors.New("question is not part of this session")
)

// Gateway is the server surface the controller talks to. Implementations
// wrap the HTTP client; tests substitute fakes.
type Gateway interface {
	SaveAnswer(ctx context.Context, attemptID uint, req services.SaveAnswerRequest) error
	SubmitAttempt(ctx context.Context, attemptID uint, req services.SubmitAttemptRequest) (*services.SubmitResult, error)
	GetAttemptResults(ctx context.Context, attemptID uint) (*services.AttemptResultsResponse, error)
}

// Config wires a Controller. Clock and TickInterval are swappable so tests
// can drive time by hand.
type Config struct {
	Gateway      Gateway
	Logger       *slog.Logger
	Clock        func() time.Time
	TickInterval time.Duration

	// OnTick receives the remaining seconds each interval, clamped at zero.
	OnTick func(remainingSeconds int)
	// OnAutoSubmit fires after the controller submits on its own because the
	// timer reached zero.
	OnAutoSubmit func(result *services.SubmitResult)
	// OnSaveError reports a failed background answer save. Saves never block
	// answering; the value stays locally and is retried on the next change
	// or included in the final submit state server-side.
	OnSaveError func(questionID uint, err error)
}

// Controller drives one quiz attempt from the client side: navigation,
// background answer saves, the countdown, and the single submit.
type Controller struct {
	gateway Gateway
	logger  *slog.Logger
	clock   func() time.Time

	tickInterval time.Duration
	onTick       func(int)
	onAutoSubmit func(*services.SubmitResult)
	onSaveError  func(uint, error)

	mu        sync.Mutex
	phase     Phase
	attemptID uint
	startedAt time.Time
	deadline  time.Time
	questions []services.QuestionForAttempt
	index     int
	answers   map[uint]json.RawMessage

	// practiceContent holds full question payloads for practice quizzes so
	// answers can be checked locally, without a round trip.
	practiceContent map[uint]*models.Question

	submitted    bool
	submitResult *services.SubmitResult

	stopTicker chan struct{}
	tickerDone chan struct{}
	saveWG     sync.WaitGroup
}

func NewController(config Config) (*Controller, error) {
	if config.Gateway == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	if config.TickInterval <= 0 {
		config.TickInterval = time.Second
	}

	return &Controller{
		gateway:      config.Gateway,
		logger:       config.Logger,
		clock:        config.Clock,
		tickInterval: config.TickInterval,
		onTick:       config.OnTick,
		onAutoSubmit: config.OnAutoSubmit,
		onSaveError:  config.OnSaveError,
		phase:        PhaseNotStarted,
		answers:      make(map[uint]json.RawMessage),
	}, nil
}

// Start binds the controller to a started (or resumed) attempt and begins
// the countdown. The deadline comes from the server; the controller never
// extends it.
func (c *Controller) Start(attempt *services.AttemptResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != PhaseNotStarted {
		return ErrSessionClosed
	}
	if attempt.DeadlineAt == nil {
		return fmt.Errorf("attempt carries no deadline")
	}

	c.attemptID = attempt.ID
	c.deadline = *attempt.DeadlineAt
	if attempt.StartedAt != nil {
		c.startedAt = *attempt.StartedAt
	}
	c.questions = attempt.Questions
	c.index = 0
	c.phase = PhaseInProgress

	c.stopTicker = make(chan struct{})
	c.tickerDone = make(chan struct{})
	go c.runTicker(c.stopTicker, c.tickerDone)

	c.logger.Info("session started",
		"attempt_id", c.attemptID,
		"questions", len(c.questions),
		"resumed", attempt.Resumed)
	return nil
}

// EnablePracticeGrading loads full question content so Answer can return
// immediate correctness feedback. Only meaningful for practice quizzes.
func (c *Controller) EnablePracticeGrading(questions []*models.Question) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.practiceContent = make(map[uint]*models.Question, len(questions))
	for _, q := range questions {
		c.practiceContent[q.ID] = q
	}
}

// Answer records the value locally and saves it in the background. In
// practice mode it also returns the graded result; otherwise the result is
// nil.
func (c *Controller) Answer(ctx context.Context, questionID uint, value json.RawMessage) (*grading.Result, error) {
	c.mu.Lock()
	if c.phase == PhaseNotStarted {
		c.mu.Unlock()
		return nil, ErrSessionNotStarted
	}
	if c.phase != PhaseInProgress {
		c.mu.Unlock()
		return nil, ErrSessionClosed
	}

	var question *services.QuestionForAttempt
	for i := range c.questions {
		if c.questions[i].ID == questionID {
			question = &c.questions[i]
			break
		}
	}
	if question == nil {
		c.mu.Unlock()
		return nil, ErrNoSuchQuestion
	}

	c.answers[questionID] = value
	attemptID := c.attemptID
	practice := c.practiceContent[questionID]
	points := question.Points
	c.mu.Unlock()

	// Background save; a failure is logged and surfaced through the
	// callback but never blocks the student.
	c.saveWG.Add(1)
	go func() {
		defer c.saveWG.Done()
		req := services.SaveAnswerRequest{QuestionID: questionID, Answer: value}
		if err := c.gateway.SaveAnswer(ctx, attemptID, req); err != nil {
			c.logger.Warn("answer save failed",
				"attempt_id", attemptID,
				"question_id", questionID,
				"error", err)
			if c.onSaveError != nil {
				c.onSaveError(questionID, err)
			}
		}
	}()

	if practice != nil {
		result, err := grading.Evaluate(practice, value, points)
		if err != nil {
			if errors.Is(err, grading.ErrManualGradingRequired) {
				return nil, nil
			}
			return nil, err
		}
		return &result, nil
	}
	return nil, nil
}

// Next advances to the following question, clamped at the last one.
func (c *Controller) Next() (*services.QuestionForAttempt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != PhaseInProgress {
		return nil, ErrSessionClosed
	}
	if c.index < len(c.questions)-1 {
		c.index++
	}
	return c.currentLocked()
}

// Previous moves back one question, clamped at the first.
func (c *Controller) Previous() (*services.QuestionForAttempt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != PhaseInProgress {
		return nil, ErrSessionClosed
	}
	if c.index > 0 {
		c.index--
	}
	return c.currentLocked()
}

// Current returns the question the session is positioned on.
func (c *Controller) Current() (*services.QuestionForAttempt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase == PhaseNotStarted {
		return nil, ErrSessionNotStarted
	}
	return c.currentLocked()
}

func (c *Controller) currentLocked() (*services.QuestionForAttempt, error) {
	if len(c.questions) == 0 {
		return nil, ErrNoSuchQuestion
	}
	q := c.questions[c.index]
	return &q, nil
}

// TimeRemaining derives the countdown from the fixed deadline, clamped at
// zero. It never counts up again.
func (c *Controller) TimeRemaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remainingLocked()
}

func (c *Controller) remainingLocked() int {
	if c.phase != PhaseInProgress {
		return 0
	}
	remaining := int(c.deadline.Sub(c.clock()).Seconds())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Submit finalizes the attempt. Exactly one submit reaches the server; a
// repeat call returns the result of the first.
func (c *Controller) Submit(ctx context.Context) (*services.SubmitResult, error) {
	return c.submit(ctx, false)
}

func (c *Controller) submit(ctx context.Context, auto bool) (*services.SubmitResult, error) {
	c.mu.Lock()
	if c.phase == PhaseNotStarted {
		c.mu.Unlock()
		return nil, ErrSessionNotStarted
	}
	if c.submitted {
		result := c.submitResult
		c.mu.Unlock()
		return result, nil
	}
	// Latch before the network call so a concurrent submit (manual racing
	// the timer) cannot fire twice.
	c.submitted = true
	attemptID := c.attemptID
	elapsed := 0
	if !c.startedAt.IsZero() {
		elapsed = int(c.clock().Sub(c.startedAt).Seconds())
		if max := int(c.deadline.Sub(c.startedAt).Seconds()); elapsed > max {
			elapsed = max
		}
	}
	c.phase = PhaseSubmitted
	c.mu.Unlock()

	c.saveWG.Wait()

	result, err := c.gateway.SubmitAttempt(ctx, attemptID, services.SubmitAttemptRequest{TimeTakenSeconds: elapsed})
	if err != nil {
		// Roll the latch back so the user can retry after a transient
		// failure; the server side is idempotent regardless. The countdown
		// must survive the rollback, so re-arm it if the ticker is gone.
		c.mu.Lock()
		c.submitted = false
		c.phase = PhaseInProgress
		if c.stopTicker == nil && c.clock().Before(c.deadline) {
			c.stopTicker = make(chan struct{})
			c.tickerDone = make(chan struct{})
			go c.runTicker(c.stopTicker, c.tickerDone)
		}
		c.mu.Unlock()
		return nil, fmt.Errorf("submit failed: %w", err)
	}

	c.mu.Lock()
	c.submitResult = result
	c.mu.Unlock()

	c.stopCountdown()

	c.logger.Info("session submitted",
		"attempt_id", attemptID,
		"auto", auto,
		"status", result.Status)
	return result, nil
}

// Results fetches the attempt results through the gateway. Before release
// the server returns a summary without correctness.
func (c *Controller) Results(ctx context.Context) (*services.AttemptResultsResponse, error) {
	c.mu.Lock()
	attemptID := c.attemptID
	phase := c.phase
	c.mu.Unlock()

	if phase == PhaseNotStarted {
		return nil, ErrSessionNotStarted
	}
	return c.gateway.GetAttemptResults(ctx, attemptID)
}

// Phase returns the controller's lifecycle phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Close stops the countdown and waits for in-flight saves. It does not
// submit; an abandoned attempt times out server-side.
func (c *Controller) Close() {
	c.stopCountdown()
	c.saveWG.Wait()
}

func (c *Controller) stopCountdown() {
	c.mu.Lock()
	stop := c.stopTicker
	done := c.tickerDone
	c.stopTicker = nil
	c.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// runTicker takes its channels as parameters so it never reads the mutable
// fields; stopCountdown may nil them while this goroutine is starting up.
func (c *Controller) runTicker(stop, done chan struct{}) {
	ticker := time.NewTicker(c.tickInterval)
	defer ticker.Stop()
	defer close(done)

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			inProgress := c.phase == PhaseInProgress
			remaining := c.remainingLocked()
			c.mu.Unlock()
			if !inProgress {
				// A submit is in flight; it either succeeds and stops the
				// countdown, or rolls back and ticking resumes.
				continue
			}
			if c.onTick != nil {
				c.onTick(remaining)
			}
			if remaining == 0 {
				// Run outside this goroutine: submit stops the ticker and
				// waits for it to exit.
				go c.autoSubmit()
				return
			}
		}
	}
}

// autoSubmit fires when the countdown hits zero. The submit latch makes it
// a no-op if the user submitted in the same instant.
func (c *Controller) autoSubmit() {
	c.mu.Lock()
	if c.submitted || c.phase != PhaseInProgress {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := c.submit(ctx, true)
	if err != nil {
		c.logger.Error("auto-submit failed", "attempt_id", c.attemptID, "error", err)
		return
	}
	if c.onAutoSubmit != nil {
		c.onAutoSubmit(result)
	}
}
