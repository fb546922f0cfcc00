// Package mongodb keeps teams, questions and the quiz clock in MongoDB and mirrors
// changes to subscribers through a change stream.
package mongodb

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	teamsCollection     = "teams"
	questionsCollection = "questions"
	quizCollection      = "quiz"
)

// DefaultPollInterval is used when the server can't open a change stream.
const DefaultPollInterval = 2 * time.Second

// Store bundles the repositories that share one database and one change watcher.
type Store struct {
	Teams     *TeamStore
	Questions *QuestionStore
	Clock     *ClockStore

	db           *mongo.Database
	log          *zap.Logger
	pollInterval time.Duration
}

// Connect opens a client for uri and pings it.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return client, nil
}

func New(db *mongo.Database, log *zap.Logger) *Store {
	return &Store{
		Teams:        NewTeamStore(db),
		Questions:    NewQuestionStore(db),
		Clock:        NewClockStore(db),
		db:           db,
		log:          log,
		pollInterval: DefaultPollInterval,
	}
}

// EnsureIndexes creates the indexes every listing relies on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	if err := s.Teams.EnsureIndexes(ctx); err != nil {
		return err
	}
	return s.Questions.EnsureIndexes(ctx)
}

// Watch follows the database change stream and reloads the affected store for every
// event. Standalone servers have no change streams, so it falls back to polling.
// It returns when ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	backoff := time.Second
	for {
		err := s.watchOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if isChangeStreamUnsupported(err) {
			s.log.Info("change streams unavailable, polling instead", zap.Duration("interval", s.pollInterval))
			return s.poll(ctx)
		}
		s.log.Warn("change stream interrupted", zap.Error(err), zap.Duration("retry_in", backoff))
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

type changeEvent struct {
	NS struct {
		Coll string `bson:"coll"`
	} `bson:"ns"`
}

func (s *Store) watchOnce(ctx context.Context) error {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"ns.coll": bson.M{"$in": bson.A{teamsCollection, questionsCollection, quizCollection}}}}},
	}
	cs, err := s.db.Watch(ctx, pipeline)
	if err != nil {
		return err
	}
	defer cs.Close(context.Background())

	// events between reconnects are lost
	s.refreshAll(ctx)

	for cs.Next(ctx) {
		var ev changeEvent
		if err := cs.Decode(&ev); err != nil {
			s.log.Warn("decode change event", zap.Error(err))
			continue
		}
		s.dispatch(ctx, ev.NS.Coll)
	}
	return cs.Err()
}

func (s *Store) poll(ctx context.Context) error {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.refreshAll(ctx)
		}
	}
}

func (s *Store) dispatch(ctx context.Context, coll string) {
	var err error
	switch coll {
	case teamsCollection:
		err = s.Teams.feed.Refresh(ctx)
	case questionsCollection:
		err = s.Questions.feed.Refresh(ctx)
	case quizCollection:
		err = s.Clock.feed.Refresh(ctx)
	default:
		return
	}
	if err != nil && ctx.Err() == nil {
		s.log.Warn("reload after change", zap.String("collection", coll), zap.Error(err))
	}
}

func (s *Store) refreshAll(ctx context.Context) {
	for _, coll := range []string{teamsCollection, questionsCollection, quizCollection} {
		s.dispatch(ctx, coll)
	}
}

func isChangeStreamUnsupported(err error) bool {
	var cmdErr mongo.CommandError
	if !errors.As(err, &cmdErr) {
		return false
	}
	// 40573: "The $changeStream stage is only supported on replica sets"
	return cmdErr.Code == 40573 || cmdErr.Name == "IllegalOperation"
}
