package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"team-quiz-service/internal/domain"
	"team-quiz-service/internal/feed"
)

const statusID = "status"

type statusDoc struct {
	ID         string     `bson:"_id"`
	Active     bool       `bson:"active"`
	StartTime  *time.Time `bson:"start_time,omitempty"`
	EndTime    *time.Time `bson:"end_time,omitempty"`
	DurationMS int64      `bson:"duration_ms"`
}

// ClockStore keeps the singleton status document in the quiz collection.
type ClockStore struct {
	c    *mongo.Collection
	feed *feed.Reloader[domain.ClockState]
}

func NewClockStore(db *mongo.Database) *ClockStore {
	s := &ClockStore{c: db.Collection(quizCollection)}
	s.feed = feed.NewReloader(s.Get)
	return s
}

func (s *ClockStore) Get(ctx context.Context) (domain.ClockState, error) {
	var doc statusDoc
	err := s.c.FindOne(ctx, bson.M{"_id": statusID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.ClockState{}, nil
	}
	if err != nil {
		return domain.ClockState{}, fmt.Errorf("get quiz status: %w", err)
	}
	state := domain.ClockState{
		Active:   doc.Active,
		Duration: time.Duration(doc.DurationMS) * time.Millisecond,
	}
	if doc.StartTime != nil {
		state.StartTime = *doc.StartTime
	}
	if doc.EndTime != nil {
		state.EndTime = *doc.EndTime
	}
	return state, nil
}

// Set replaces the whole document, so stopping drops the end time.
func (s *ClockStore) Set(ctx context.Context, state domain.ClockState) error {
	doc := statusDoc{
		ID:         statusID,
		Active:     state.Active,
		StartTime:  optionalTime(state.StartTime),
		EndTime:    optionalTime(state.EndTime),
		DurationMS: state.Duration.Milliseconds(),
	}
	_, err := s.c.ReplaceOne(ctx, bson.M{"_id": statusID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("set quiz status: %w", err)
	}
	_ = s.feed.Refresh(ctx)
	return nil
}

func (s *ClockStore) Subscribe(ctx context.Context) (<-chan domain.ClockState, func(), error) {
	return s.feed.Subscribe(ctx)
}
