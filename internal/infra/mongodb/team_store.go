package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"team-quiz-service/internal/domain"
	"team-quiz-service/internal/feed"
)

type teamDoc struct {
	ID            string         `bson:"_id"`
	Email         string         `bson:"email"`
	Password      string         `bson:"password"`
	TeamName      string         `bson:"team_name"`
	Members       []string       `bson:"members"`
	IPAddress     string         `bson:"ip_address"`
	RegisteredAt  time.Time      `bson:"registered_at"`
	LastLogin     *time.Time     `bson:"last_login,omitempty"`
	Answers       map[string]int `bson:"answers"`
	Score         int            `bson:"score"`
	Submitted     bool           `bson:"submitted"`
	SubmittedAt   *time.Time     `bson:"submitted_at,omitempty"`
	QuestionOrder []string       `bson:"question_order"`
}

func toTeamDoc(t domain.Team) teamDoc {
	return teamDoc{
		ID:            t.ID,
		Email:         t.Email,
		Password:      t.Password,
		TeamName:      t.TeamName,
		Members:       nonNil(t.Members),
		IPAddress:     t.IPAddress,
		RegisteredAt:  t.RegisteredAt,
		LastLogin:     optionalTime(t.LastLogin),
		Answers:       t.Answers.Clone(),
		Score:         t.Score,
		Submitted:     t.Submitted,
		SubmittedAt:   optionalTime(t.SubmittedAt),
		QuestionOrder: nonNil(t.QuestionOrder),
	}
}

func (d teamDoc) toDomain() domain.Team {
	t := domain.Team{
		ID:            d.ID,
		Email:         d.Email,
		Password:      d.Password,
		TeamName:      d.TeamName,
		Members:       d.Members,
		IPAddress:     d.IPAddress,
		RegisteredAt:  d.RegisteredAt,
		Answers:       domain.Answers(d.Answers).Clone(),
		Score:         d.Score,
		Submitted:     d.Submitted,
		QuestionOrder: d.QuestionOrder,
	}
	if d.LastLogin != nil {
		t.LastLogin = *d.LastLogin
	}
	if d.SubmittedAt != nil {
		t.SubmittedAt = *d.SubmittedAt
	}
	return t
}

// TeamStore implements app.TeamRepository on the teams collection.
type TeamStore struct {
	c    *mongo.Collection
	feed *feed.Reloader[[]domain.Team]
}

func NewTeamStore(db *mongo.Database) *TeamStore {
	s := &TeamStore{c: db.Collection(teamsCollection)}
	s.feed = feed.NewReloader(s.List)
	return s
}

func (s *TeamStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.c.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "registered_at", Value: 1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("idx_teams_registered"),
		},
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName("idx_teams_email"),
		},
	})
	return err
}

func (s *TeamStore) Create(ctx context.Context, team domain.Team) (domain.Team, error) {
	if team.ID == "" {
		team.ID = primitive.NewObjectID().Hex()
	}
	if team.Answers == nil {
		team.Answers = domain.Answers{}
	}
	if _, err := s.c.InsertOne(ctx, toTeamDoc(team)); err != nil {
		return domain.Team{}, fmt.Errorf("insert team: %w", err)
	}
	_ = s.feed.Refresh(ctx)
	return team, nil
}

func (s *TeamStore) Get(ctx context.Context, id string) (domain.Team, error) {
	var doc teamDoc
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Team{}, domain.ErrTeamNotFound
	}
	if err != nil {
		return domain.Team{}, fmt.Errorf("get team: %w", err)
	}
	return doc.toDomain(), nil
}

// List returns teams in registration order.
func (s *TeamStore) List(ctx context.Context) ([]domain.Team, error) {
	opts := options.Find().SetSort(bson.D{{Key: "registered_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.c.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer cur.Close(ctx)

	var docs []teamDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode teams: %w", err)
	}
	teams := make([]domain.Team, 0, len(docs))
	for _, d := range docs {
		teams = append(teams, d.toDomain())
	}
	return teams, nil
}

func (s *TeamStore) TouchLogin(ctx context.Context, id string, at time.Time) error {
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"last_login": at}})
	if err != nil {
		return fmt.Errorf("touch login: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrTeamNotFound
	}
	_ = s.feed.Refresh(ctx)
	return nil
}

func (s *TeamStore) SaveAnswers(ctx context.Context, id string, answers domain.Answers) error {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "submitted": false},
		bson.M{"$set": bson.M{"answers": map[string]int(answers.Clone())}},
	)
	if err != nil {
		return fmt.Errorf("save answers: %w", err)
	}
	if res.MatchedCount == 0 {
		exists, err := s.exists(ctx, id)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrTeamNotFound
		}
		return domain.ErrAlreadySubmitted
	}
	_ = s.feed.Refresh(ctx)
	return nil
}

// Submit writes the submission only if none was written before.
func (s *TeamStore) Submit(ctx context.Context, id string, sub domain.Submission) error {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "submitted": false},
		bson.M{"$set": bson.M{
			"answers":      map[string]int(sub.Answers.Clone()),
			"score":        sub.Score,
			"submitted":    true,
			"submitted_at": sub.SubmittedAt,
		}},
	)
	if err != nil {
		return fmt.Errorf("submit team: %w", err)
	}
	if res.MatchedCount == 0 {
		exists, err := s.exists(ctx, id)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrTeamNotFound
		}
		return nil
	}
	_ = s.feed.Refresh(ctx)
	return nil
}

func (s *TeamStore) Subscribe(ctx context.Context) (<-chan []domain.Team, func(), error) {
	return s.feed.Subscribe(ctx)
}

func (s *TeamStore) exists(ctx context.Context, id string) (bool, error) {
	n, err := s.c.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("check team: %w", err)
	}
	return n > 0, nil
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
