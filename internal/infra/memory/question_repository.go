package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"team-quiz-service/internal/domain"
	"team-quiz-service/internal/feed"
)

// QuestionRepository keeps the bank in memory, ordered by creation time.
type QuestionRepository struct {
	mu        sync.RWMutex
	questions map[string]domain.Question
	feed      *feed.Feed[[]domain.Question]
}

// NewQuestionRepository optionally seeds the bank (useful for tests/demos).
func NewQuestionRepository(seed ...domain.Question) *QuestionRepository {
	r := &QuestionRepository{
		questions: make(map[string]domain.Question, len(seed)),
		feed:      feed.New[[]domain.Question](),
	}
	for _, q := range seed {
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		r.questions[q.ID] = q
	}
	r.publishLocked()
	return r
}

func (r *QuestionRepository) Add(_ context.Context, q domain.Question) (domain.Question, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	q.Options = append([]string(nil), q.Options...)
	r.questions[q.ID] = q
	r.publishLocked()
	return q, nil
}

func (r *QuestionRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.questions[id]; !ok {
		return domain.ErrQuestionNotFound
	}
	delete(r.questions, id)
	r.publishLocked()
	return nil
}

// List returns the bank ordered by CreatedAt.
func (r *QuestionRepository) List(_ context.Context) ([]domain.Question, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked(), nil
}

func (r *QuestionRepository) Subscribe(_ context.Context) (<-chan []domain.Question, func(), error) {
	ch, cancel := r.feed.Subscribe()
	return ch, cancel, nil
}

func (r *QuestionRepository) publishLocked() {
	r.feed.Publish(r.snapshotLocked())
}

func (r *QuestionRepository) snapshotLocked() []domain.Question {
	qs := make([]domain.Question, 0, len(r.questions))
	for _, q := range r.questions {
		q.Options = append([]string(nil), q.Options...)
		qs = append(qs, q)
	}
	SortQuestions(qs)
	return qs
}

// SortQuestions orders by creation time, breaking ties by ID so the order is stable.
func SortQuestions(qs []domain.Question) {
	sort.SliceStable(qs, func(i, j int) bool {
		if !qs[i].CreatedAt.Equal(qs[j].CreatedAt) {
			return qs[i].CreatedAt.Before(qs[j].CreatedAt)
		}
		return qs[i].ID < qs[j].ID
	})
}
