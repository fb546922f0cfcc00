package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"team-quiz-service/internal/domain"
	"team-quiz-service/internal/feed"
)

// TeamRepository is an in-memory implementation of app.TeamRepository.
type TeamRepository struct {
	mu    sync.RWMutex
	teams map[string]domain.Team
	feed  *feed.Feed[[]domain.Team]
}

func NewTeamRepository() *TeamRepository {
	r := &TeamRepository{
		teams: make(map[string]domain.Team),
		feed:  feed.New[[]domain.Team](),
	}
	r.feed.Publish([]domain.Team{})
	return r
}

func (r *TeamRepository) Create(_ context.Context, team domain.Team) (domain.Team, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if team.ID == "" {
		team.ID = uuid.NewString()
	}
	if team.Answers == nil {
		team.Answers = domain.Answers{}
	}
	team = cloneTeam(team)
	r.teams[team.ID] = team
	r.publishLocked()
	return cloneTeam(team), nil
}

func (r *TeamRepository) Get(_ context.Context, id string) (domain.Team, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	team, ok := r.teams[id]
	if !ok {
		return domain.Team{}, domain.ErrTeamNotFound
	}
	return cloneTeam(team), nil
}

// List returns teams in registration order.
func (r *TeamRepository) List(_ context.Context) ([]domain.Team, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked(), nil
}

func (r *TeamRepository) TouchLogin(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	team, ok := r.teams[id]
	if !ok {
		return domain.ErrTeamNotFound
	}
	team.LastLogin = at
	r.teams[id] = team
	r.publishLocked()
	return nil
}

func (r *TeamRepository) SaveAnswers(_ context.Context, id string, answers domain.Answers) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	team, ok := r.teams[id]
	if !ok {
		return domain.ErrTeamNotFound
	}
	if team.Submitted {
		return domain.ErrAlreadySubmitted
	}
	team.Answers = answers.Clone()
	r.teams[id] = team
	r.publishLocked()
	return nil
}

func (r *TeamRepository) Submit(_ context.Context, id string, sub domain.Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	team, ok := r.teams[id]
	if !ok {
		return domain.ErrTeamNotFound
	}
	if team.Submitted {
		return nil
	}
	team.Answers = sub.Answers.Clone()
	team.Score = sub.Score
	team.Submitted = true
	team.SubmittedAt = sub.SubmittedAt
	r.teams[id] = team
	r.publishLocked()
	return nil
}

func (r *TeamRepository) Subscribe(_ context.Context) (<-chan []domain.Team, func(), error) {
	ch, cancel := r.feed.Subscribe()
	return ch, cancel, nil
}

func (r *TeamRepository) publishLocked() {
	r.feed.Publish(r.snapshotLocked())
}

func (r *TeamRepository) snapshotLocked() []domain.Team {
	teams := make([]domain.Team, 0, len(r.teams))
	for _, t := range r.teams {
		teams = append(teams, cloneTeam(t))
	}
	sort.SliceStable(teams, func(i, j int) bool {
		if !teams[i].RegisteredAt.Equal(teams[j].RegisteredAt) {
			return teams[i].RegisteredAt.Before(teams[j].RegisteredAt)
		}
		return teams[i].ID < teams[j].ID
	})
	return teams
}

func cloneTeam(t domain.Team) domain.Team {
	t.Members = append([]string(nil), t.Members...)
	t.QuestionOrder = append([]string(nil), t.QuestionOrder...)
	t.Answers = t.Answers.Clone()
	return t
}
