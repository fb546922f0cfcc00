package memory

import (
	"context"
	"sync"
	"time"

	"team-quiz-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionStore. Records are kept
// encoded, exactly as a client-side store would hold them.
type SessionStore struct {
	mu      sync.Mutex
	records map[string][]byte
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		records: make(map[string][]byte),
	}
}

func (s *SessionStore) Save(_ context.Context, key string, team domain.Team, now time.Time) error {
	data, err := domain.EncodeSessionRecord(domain.NewSessionRecord(team, now))
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = data
	return nil
}

func (s *SessionStore) Load(_ context.Context, key string, now time.Time) (domain.Team, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.records[key]
	if !ok {
		return domain.Team{}, false, nil
	}
	rec, err := domain.DecodeSessionRecord(data)
	if err != nil || !rec.Valid(now) {
		delete(s.records, key)
		return domain.Team{}, false, nil
	}
	return rec.Team, true, nil
}

func (s *SessionStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}
