package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/eduline/quiz-service/internal/models"
	"github.com/eduline/quiz-service/internal/repositories"
)

// mockRepository is an in-memory repositories.Repository for service tests.
type mockRepository struct {
	mu sync.Mutex

	quizzes   map[uint]*models.Quiz
	questions map[uint]*models.Question
	links     map[uint][]*models.QuizQuestion // quizID -> links
	attempts  map[uint]*models.QuizAttempt
	answers   map[uint]*models.AttemptAnswer
	users     map[string]*models.User

	nextID uint
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		quizzes:   make(map[uint]*models.Quiz),
		questions: make(map[uint]*models.Question),
		links:     make(map[uint][]*models.QuizQuestion),
		attempts:  make(map[uint]*models.QuizAttempt),
		answers:   make(map[uint]*models.AttemptAnswer),
		users:     make(map[string]*models.User),
		nextID:    1,
	}
}

func (m *mockRepository) id() uint {
	id := m.nextID
	m.nextID++
	return id
}

func (m *mockRepository) Quiz() repositories.QuizRepository                 { return (*mockQuizRepo)(m) }
func (m *mockRepository) QuizQuestion() repositories.QuizQuestionRepository { return (*mockLinkRepo)(m) }
func (m *mockRepository) Question() repositories.QuestionRepository        { return (*mockQuestionRepo)(m) }
func (m *mockRepository) Attempt() repositories.AttemptRepository          { return (*mockAttemptRepo)(m) }
func (m *mockRepository) Answer() repositories.AnswerRepository            { return (*mockAnswerRepo)(m) }
func (m *mockRepository) User() repositories.UserRepository                { return (*mockUserRepo)(m) }

func (m *mockRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return fn(m)
}

func (m *mockRepository) Ping(ctx context.Context) error { return nil }
func (m *mockRepository) Close() error                   { return nil }

// ===== fixtures =====

func (m *mockRepository) addUser(id string, role models.UserRole) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id] = &models.User{ID: id, Role: role}
}

func (m *mockRepository) addQuiz(quiz *models.Quiz) *models.Quiz {
	m.mu.Lock()
	defer m.mu.Unlock()
	if quiz.ID == 0 {
		quiz.ID = m.id()
	}
	m.quizzes[quiz.ID] = quiz
	return quiz
}

func (m *mockRepository) addQuestion(q *models.Question) *models.Question {
	m.mu.Lock()
	defer m.mu.Unlock()
	if q.ID == 0 {
		q.ID = m.id()
	}
	m.questions[q.ID] = q
	return q
}

func (m *mockRepository) linkQuestion(quizID uint, q *models.Question, points *int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	link := &models.QuizQuestion{
		ID:         m.id(),
		QuizID:     quizID,
		QuestionID: q.ID,
		Order:      len(m.links[quizID]) + 1,
		Points:     points,
		Question:   *q,
	}
	m.links[quizID] = append(m.links[quizID], link)
	if quiz, ok := m.quizzes[quizID]; ok {
		quiz.Questions = append(quiz.Questions, *link)
	}
}

// ===== quiz repo =====

type mockQuizRepo mockRepository

func (r *mockQuizRepo) Create(ctx context.Context, tx *gorm.DB, quiz *models.Quiz) error {
	(*mockRepository)(r).addQuiz(quiz)
	return nil
}

func (r *mockQuizRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Quiz, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	quiz, ok := r.quizzes[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return quiz, nil
}

func (r *mockQuizRepo) GetByIDWithQuestions(ctx context.Context, tx *gorm.DB, id uint) (*models.Quiz, error) {
	return r.GetByID(ctx, tx, id)
}

func (r *mockQuizRepo) Update(ctx context.Context, tx *gorm.DB, quiz *models.Quiz) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.quizzes[quiz.ID] = quiz
	return nil
}

func (r *mockQuizRepo) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.quizzes, id)
	return nil
}

func (r *mockQuizRepo) List(ctx context.Context, tx *gorm.DB, filters repositories.QuizFilters) ([]*models.Quiz, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Quiz
	for _, q := range r.quizzes {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

func (r *mockQuizRepo) UpdateStatus(ctx context.Context, tx *gorm.DB, id uint, status models.QuizStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	quiz, ok := r.quizzes[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	quiz.Status = status
	return nil
}

// ===== quiz question repo =====

type mockLinkRepo mockRepository

func (r *mockLinkRepo) Add(ctx context.Context, tx *gorm.DB, link *models.QuizQuestion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	link.ID = (*mockRepository)(r).id()
	if q, ok := r.questions[link.QuestionID]; ok {
		link.Question = *q
	}
	r.links[link.QuizID] = append(r.links[link.QuizID], link)
	return nil
}

func (r *mockLinkRepo) Remove(ctx context.Context, tx *gorm.DB, quizID, questionID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	links := r.links[quizID]
	for i, link := range links {
		if link.QuestionID == questionID {
			r.links[quizID] = append(links[:i], links[i+1:]...)
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *mockLinkRepo) GetByQuiz(ctx context.Context, tx *gorm.DB, quizID uint) ([]*models.QuizQuestion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.links[quizID], nil
}

func (r *mockLinkRepo) Reorder(ctx context.Context, tx *gorm.DB, quizID uint, questionIDs []uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	order := make(map[uint]int, len(questionIDs))
	for i, id := range questionIDs {
		order[id] = i + 1
	}
	for _, link := range r.links[quizID] {
		link.Order = order[link.QuestionID]
	}
	return nil
}

func (r *mockLinkRepo) CountByQuiz(ctx context.Context, tx *gorm.DB, quizID uint) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.links[quizID])), nil
}

// ===== question repo =====

type mockQuestionRepo mockRepository

func (r *mockQuestionRepo) Create(ctx context.Context, tx *gorm.DB, q *models.Question) error {
	(*mockRepository)(r).addQuestion(q)
	return nil
}

func (r *mockQuestionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.questions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return q, nil
}

func (r *mockQuestionRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.Question, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Question
	for _, id := range ids {
		if q, ok := r.questions[id]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

func (r *mockQuestionRepo) Update(ctx context.Context, tx *gorm.DB, q *models.Question) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.questions[q.ID] = q
	return nil
}

func (r *mockQuestionRepo) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.questions, id)
	return nil
}

func (r *mockQuestionRepo) List(ctx context.Context, tx *gorm.DB, filters repositories.QuestionFilters) ([]*models.Question, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Question
	for _, q := range r.questions {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

// ===== attempt repo =====

type mockAttemptRepo mockRepository

func (r *mockAttemptRepo) Create(ctx context.Context, tx *gorm.DB, attempt *models.QuizAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	attempt.ID = (*mockRepository)(r).id()
	r.attempts[attempt.ID] = attempt
	return nil
}

func (r *mockAttemptRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.QuizAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	attempt, ok := r.attempts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return attempt, nil
}

func (r *mockAttemptRepo) GetByIDWithDetails(ctx context.Context, tx *gorm.DB, id uint) (*models.QuizAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	attempt, ok := r.attempts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	attempt.Answers = attempt.Answers[:0]
	var ids []uint
	for id := range r.answers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, answerID := range ids {
		answer := r.answers[answerID]
		if answer.AttemptID != attempt.ID {
			continue
		}
		if q, ok := r.questions[answer.QuestionID]; ok {
			answer.Question = *q
		}
		attempt.Answers = append(attempt.Answers, *answer)
	}
	return attempt, nil
}

func (r *mockAttemptRepo) Update(ctx context.Context, tx *gorm.DB, attempt *models.QuizAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts[attempt.ID] = attempt
	return nil
}

func (r *mockAttemptRepo) List(ctx context.Context, tx *gorm.DB, filters repositories.AttemptFilters) ([]*models.QuizAttempt, int64, error) {
	return nil, 0, fmt.Errorf("not implemented")
}

func (r *mockAttemptRepo) GetActiveAttempt(ctx context.Context, tx *gorm.DB, userID string, quizID uint) (*models.QuizAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, attempt := range r.attempts {
		if attempt.UserID == userID && attempt.QuizID == quizID && attempt.Status == models.AttemptInProgress {
			return attempt, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *mockAttemptRepo) CountByUserAndQuiz(ctx context.Context, tx *gorm.DB, userID string, quizID uint) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, attempt := range r.attempts {
		if attempt.UserID == userID && attempt.QuizID == quizID {
			count++
		}
	}
	return count, nil
}

func (r *mockAttemptRepo) UpdateStatus(ctx context.Context, tx *gorm.DB, id uint, status models.AttemptStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	attempt, ok := r.attempts[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	attempt.Status = status
	return nil
}

func (r *mockAttemptRepo) GetExpired(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]*models.QuizAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.QuizAttempt
	for _, attempt := range r.attempts {
		if attempt.Status == models.AttemptInProgress && attempt.DeadlineAt != nil && now.After(*attempt.DeadlineAt) {
			out = append(out, attempt)
		}
	}
	return out, nil
}

// ===== answer repo =====

type mockAnswerRepo mockRepository

func (r *mockAnswerRepo) Upsert(ctx context.Context, tx *gorm.DB, answer *models.AttemptAnswer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.answers {
		if existing.AttemptID == answer.AttemptID && existing.QuestionID == answer.QuestionID {
			existing.Value = answer.Value
			existing.LastModifiedAt = answer.LastModifiedAt
			return nil
		}
	}
	answer.ID = (*mockRepository)(r).id()
	r.answers[answer.ID] = answer
	return nil
}

func (r *mockAnswerRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.AttemptAnswer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	answer, ok := r.answers[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return answer, nil
}

func (r *mockAnswerRepo) GetByIDWithDetails(ctx context.Context, tx *gorm.DB, id uint) (*models.AttemptAnswer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	answer, ok := r.answers[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	if q, ok := r.questions[answer.QuestionID]; ok {
		answer.Question = *q
	}
	if attempt, ok := r.attempts[answer.AttemptID]; ok {
		answer.Attempt = *attempt
	}
	return answer, nil
}

func (r *mockAnswerRepo) GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]*models.AttemptAnswer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.AttemptAnswer
	for _, answer := range r.answers {
		if answer.AttemptID == attemptID {
			out = append(out, answer)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *mockAnswerRepo) GetByAttemptAndQuestion(ctx context.Context, tx *gorm.DB, attemptID, questionID uint) (*models.AttemptAnswer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, answer := range r.answers {
		if answer.AttemptID == attemptID && answer.QuestionID == questionID {
			return answer, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *mockAnswerRepo) Update(ctx context.Context, tx *gorm.DB, answer *models.AttemptAnswer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.answers[answer.ID] = answer
	return nil
}

func (r *mockAnswerRepo) UpdateBatch(ctx context.Context, tx *gorm.DB, answers []*models.AttemptAnswer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, answer := range answers {
		r.answers[answer.ID] = answer
	}
	return nil
}

func (r *mockAnswerRepo) GetGradingStats(ctx context.Context, tx *gorm.DB, attemptID uint) (*repositories.GradingStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &repositories.GradingStats{AttemptID: attemptID}
	for _, answer := range r.answers {
		if answer.AttemptID != attemptID {
			continue
		}
		stats.TotalAnswers++
		switch {
		case answer.IsGraded && answer.GradedBy == nil:
			stats.AutoGraded++
			stats.AutoScore += answer.MarksAwarded
		case answer.IsGraded:
			stats.ManualGraded++
			stats.ManualScore += answer.MarksAwarded
		default:
			stats.PendingManual++
		}
	}
	return stats, nil
}

func (r *mockAnswerRepo) AreAllAnswersGraded(ctx context.Context, tx *gorm.DB, attemptID uint) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, answer := range r.answers {
		if answer.AttemptID == attemptID && !answer.IsGraded {
			return false, nil
		}
	}
	return true, nil
}

// ===== user repo =====

type mockUserRepo mockRepository

func (r *mockUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s not found", id)
	}
	return user, nil
}

func (r *mockUserRepo) GetRole(ctx context.Context, id string) (models.UserRole, error) {
	user, err := r.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return user.Role, nil
}
