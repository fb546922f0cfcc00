package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"team-quiz-service/internal/domain"
)

// SessionStore keeps one encoded session record per client key. The Redis TTL
// matches the record's own expiry, and Load still checks the expiry so a clock skew
// between writer and reader can't extend a session.
type SessionStore struct {
	client *redis.Client
}

func NewSessionStore(client *redis.Client) *SessionStore {
	return &SessionStore{client: client}
}

func (s *SessionStore) Save(ctx context.Context, key string, team domain.Team, now time.Time) error {
	rec := domain.NewSessionRecord(team, now)
	data, err := domain.EncodeSessionRecord(rec)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(key), data, rec.ExpiresAt().Sub(now)).Err()
}

func (s *SessionStore) Load(ctx context.Context, key string, now time.Time) (domain.Team, bool, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Team{}, false, nil
	}
	if err != nil {
		return domain.Team{}, false, err
	}
	rec, err := domain.DecodeSessionRecord(data)
	if err != nil || !rec.Valid(now) {
		if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
			return domain.Team{}, false, fmt.Errorf("clear stale session: %w", err)
		}
		return domain.Team{}, false, nil
	}
	return rec.Team, true, nil
}

func (s *SessionStore) Clear(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

func (s *SessionStore) key(clientKey string) string {
	return "quiz:session:" + clientKey
}
