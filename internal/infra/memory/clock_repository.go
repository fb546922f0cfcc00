package memory

import (
	"context"
	"sync"

	"team-quiz-service/internal/domain"
	"team-quiz-service/internal/feed"
)

// ClockRepository holds the quiz clock document in memory.
type ClockRepository struct {
	mu    sync.RWMutex
	state domain.ClockState
	feed  *feed.Feed[domain.ClockState]
}

func NewClockRepository() *ClockRepository {
	r := &ClockRepository{feed: feed.New[domain.ClockState]()}
	r.feed.Publish(domain.ClockState{})
	return r
}

func (r *ClockRepository) Get(_ context.Context) (domain.ClockState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state, nil
}

// Set replaces the whole document.
func (r *ClockRepository) Set(_ context.Context, state domain.ClockState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = state
	r.feed.Publish(state)
	return nil
}

func (r *ClockRepository) Subscribe(_ context.Context) (<-chan domain.ClockState, func(), error) {
	ch, cancel := r.feed.Subscribe()
	return ch, cancel, nil
}
