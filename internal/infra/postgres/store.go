package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"
)

// ChangeChannel is the NOTIFY channel the triggers publish table names on.
const ChangeChannel = "quiz_changes"

// Store bundles the repositories that share one pool and one change listener.
type Store struct {
	Teams     *TeamRepository
	Questions *QuestionRepository
	Clock     *ClockRepository

	pool *pgxpool.Pool
	log  *zap.Logger
}

func NewStore(pool *pgxpool.Pool, log *zap.Logger) *Store {
	return &Store{
		Teams:     NewTeamRepository(pool),
		Questions: NewQuestionRepository(pool),
		Clock:     NewClockRepository(pool),
		pool:      pool,
		log:       log,
	}
}

// Listen holds a dedicated connection on ChangeChannel and reloads the matching
// repository on every notification, so writes from other processes reach local
// subscribers. It reconnects until ctx is done.
func (s *Store) Listen(ctx context.Context) error {
	backoff := time.Second
	for {
		err := s.listenOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		s.log.Warn("change listener interrupted", zap.Error(err), zap.Duration("retry_in", backoff))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (s *Store) listenOnce(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+ChangeChannel); err != nil {
		return err
	}
	s.log.Info("listening for changes", zap.String("channel", ChangeChannel))

	// notifications sent while disconnected are lost
	s.refreshAll(ctx)

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		s.dispatch(ctx, n.Payload)
	}
}

func (s *Store) dispatch(ctx context.Context, table string) {
	var err error
	switch table {
	case "teams":
		err = s.Teams.feed.Refresh(ctx)
	case "questions":
		err = s.Questions.feed.Refresh(ctx)
	case "quiz_status":
		err = s.Clock.feed.Refresh(ctx)
	default:
		s.log.Debug("ignoring change notification", zap.String("payload", table))
		return
	}
	if err != nil {
		s.log.Warn("reload after change", zap.String("table", table), zap.Error(err))
	}
}

func (s *Store) refreshAll(ctx context.Context) {
	for _, table := range []string{"teams", "questions", "quiz_status"} {
		s.dispatch(ctx, table)
	}
}
