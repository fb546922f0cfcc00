package app

import (
	"math/rand"
	"sync"
	"time"

	"team-quiz-service/internal/domain"
)

// Shuffler produces the per-team question order. It is used once per team, at
// registration; the resulting IDs are persisted and never re-derived.
type Shuffler struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewShuffler(src rand.Source) *Shuffler {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &Shuffler{rnd: rand.New(src)}
}

// Shuffle returns a uniformly random permutation of questions (Fisher-Yates, last
// index down to 1). The input slice is left untouched.
func (s *Shuffler) Shuffle(questions []domain.Question) []domain.Question {
	out := make([]domain.Question, len(questions))
	copy(out, questions)

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(out) - 1; i > 0; i-- {
		j := s.rnd.Intn(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// QuestionIDs extracts IDs in order.
func QuestionIDs(questions []domain.Question) []string {
	ids := make([]string, len(questions))
	for i, q := range questions {
		ids[i] = q.ID
	}
	return ids
}

// ProjectOrder maps a frozen ID order onto the current bank, dropping IDs that no
// longer exist. It never reorders or adds questions.
func ProjectOrder(order []string, bank []domain.Question) []domain.Question {
	byID := make(map[string]domain.Question, len(bank))
	for _, q := range bank {
		byID[q.ID] = q
	}
	out := make([]domain.Question, 0, len(order))
	for _, id := range order {
		if q, ok := byID[id]; ok {
			out = append(out, q)
		}
	}
	return out
}
