package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"team-quiz-service/internal/domain"
	"team-quiz-service/internal/feed"
)

type questionDoc struct {
	ID            string    `bson:"_id"`
	Question      string    `bson:"question"`
	Options       []string  `bson:"options"`
	CorrectAnswer int       `bson:"correct_answer"`
	CreatedAt     time.Time `bson:"created_at"`
}

// QuestionStore implements app.QuestionRepository on the questions collection.
type QuestionStore struct {
	c    *mongo.Collection
	feed *feed.Reloader[[]domain.Question]
}

func NewQuestionStore(db *mongo.Database) *QuestionStore {
	s := &QuestionStore{c: db.Collection(questionsCollection)}
	s.feed = feed.NewReloader(s.List)
	return s
}

func (s *QuestionStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.c.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}},
		Options: options.Index().SetName("idx_questions_created"),
	})
	return err
}

func (s *QuestionStore) Add(ctx context.Context, q domain.Question) (domain.Question, error) {
	if q.ID == "" {
		q.ID = primitive.NewObjectID().Hex()
	}
	doc := questionDoc{
		ID:            q.ID,
		Question:      q.Question,
		Options:       nonNil(q.Options),
		CorrectAnswer: q.CorrectAnswer,
		CreatedAt:     q.CreatedAt,
	}
	if _, err := s.c.InsertOne(ctx, doc); err != nil {
		return domain.Question{}, fmt.Errorf("insert question: %w", err)
	}
	_ = s.feed.Refresh(ctx)
	return q, nil
}

func (s *QuestionStore) Delete(ctx context.Context, id string) error {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrQuestionNotFound
	}
	_ = s.feed.Refresh(ctx)
	return nil
}

// List returns the bank ordered by creation time.
func (s *QuestionStore) List(ctx context.Context) ([]domain.Question, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.c.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer cur.Close(ctx)

	var docs []questionDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	qs := make([]domain.Question, 0, len(docs))
	for _, d := range docs {
		qs = append(qs, domain.Question{
			ID:            d.ID,
			Question:      d.Question,
			Options:       d.Options,
			CorrectAnswer: d.CorrectAnswer,
			CreatedAt:     d.CreatedAt,
		})
	}
	return qs, nil
}

func (s *QuestionStore) Subscribe(ctx context.Context) (<-chan []domain.Question, func(), error) {
	return s.feed.Subscribe(ctx)
}
