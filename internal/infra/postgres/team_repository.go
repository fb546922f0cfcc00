package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"team-quiz-service/internal/domain"
	"team-quiz-service/internal/feed"
)

const teamColumns = `id, email, password, team_name, members, ip_address, registered_at, last_login,
	answers, score, submitted, submitted_at, question_order`

// TeamRepository stores teams in the teams table. JSON columns hold the member list,
// the answer map and the frozen question order.
type TeamRepository struct {
	pool *pgxpool.Pool
	feed *feed.Reloader[[]domain.Team]
}

func NewTeamRepository(pool *pgxpool.Pool) *TeamRepository {
	r := &TeamRepository{pool: pool}
	r.feed = feed.NewReloader(r.List)
	return r
}

func (r *TeamRepository) Create(ctx context.Context, team domain.Team) (domain.Team, error) {
	if team.ID == "" {
		team.ID = uuid.NewString()
	}
	if team.Answers == nil {
		team.Answers = domain.Answers{}
	}
	members, err := json.Marshal(nonNil(team.Members))
	if err != nil {
		return domain.Team{}, err
	}
	answers, err := json.Marshal(team.Answers)
	if err != nil {
		return domain.Team{}, err
	}
	order, err := json.Marshal(nonNil(team.QuestionOrder))
	if err != nil {
		return domain.Team{}, err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO teams (id, email, password, team_name, members, ip_address, registered_at, last_login,
			answers, score, submitted, submitted_at, question_order)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8, $9::jsonb, $10, $11, $12, $13::jsonb)`,
		team.ID, team.Email, team.Password, team.TeamName, string(members), team.IPAddress,
		team.RegisteredAt, nullTime(team.LastLogin), string(answers), team.Score, team.Submitted,
		nullTime(team.SubmittedAt), string(order),
	)
	if err != nil {
		return domain.Team{}, fmt.Errorf("insert team: %w", err)
	}
	r.refresh(ctx)
	return team, nil
}

func (r *TeamRepository) Get(ctx context.Context, id string) (domain.Team, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+teamColumns+` FROM teams WHERE id = $1`, id)
	team, err := scanTeam(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Team{}, domain.ErrTeamNotFound
	}
	if err != nil {
		return domain.Team{}, fmt.Errorf("get team: %w", err)
	}
	return team, nil
}

// List returns teams in registration order.
func (r *TeamRepository) List(ctx context.Context) ([]domain.Team, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+teamColumns+` FROM teams ORDER BY registered_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer rows.Close()

	teams := []domain.Team{}
	for rows.Next() {
		team, err := scanTeam(rows)
		if err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		teams = append(teams, team)
	}
	return teams, rows.Err()
}

func (r *TeamRepository) TouchLogin(ctx context.Context, id string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE teams SET last_login = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("touch login: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTeamNotFound
	}
	r.refresh(ctx)
	return nil
}

func (r *TeamRepository) SaveAnswers(ctx context.Context, id string, answers domain.Answers) error {
	data, err := json.Marshal(answers.Clone())
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE teams SET answers = $2::jsonb WHERE id = $1 AND NOT submitted`, id, string(data))
	if err != nil {
		return fmt.Errorf("save answers: %w", err)
	}
	if tag.RowsAffected() == 0 {
		exists, err := r.exists(ctx, id)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrTeamNotFound
		}
		return domain.ErrAlreadySubmitted
	}
	r.refresh(ctx)
	return nil
}

// Submit writes the submission only if none was written before.
func (r *TeamRepository) Submit(ctx context.Context, id string, sub domain.Submission) error {
	data, err := json.Marshal(sub.Answers.Clone())
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE teams SET answers = $2::jsonb, score = $3, submitted = TRUE, submitted_at = $4
		WHERE id = $1 AND NOT submitted`,
		id, string(data), sub.Score, sub.SubmittedAt)
	if err != nil {
		return fmt.Errorf("submit team: %w", err)
	}
	if tag.RowsAffected() == 0 {
		exists, err := r.exists(ctx, id)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrTeamNotFound
		}
		return nil
	}
	r.refresh(ctx)
	return nil
}

func (r *TeamRepository) Subscribe(ctx context.Context) (<-chan []domain.Team, func(), error) {
	return r.feed.Subscribe(ctx)
}

// refresh is a best-effort reload after a local write; the listener covers writes
// made by other processes.
func (r *TeamRepository) refresh(ctx context.Context) {
	_ = r.feed.Refresh(ctx)
}

func (r *TeamRepository) exists(ctx context.Context, id string) (bool, error) {
	var ok bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM teams WHERE id = $1)`, id).Scan(&ok); err != nil {
		return false, fmt.Errorf("check team: %w", err)
	}
	return ok, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTeam(row scanner) (domain.Team, error) {
	var (
		t                       domain.Team
		members, answers, order []byte
		lastLogin, submittedAt  *time.Time
	)
	err := row.Scan(&t.ID, &t.Email, &t.Password, &t.TeamName, &members, &t.IPAddress, &t.RegisteredAt,
		&lastLogin, &answers, &t.Score, &t.Submitted, &submittedAt, &order)
	if err != nil {
		return domain.Team{}, err
	}
	if err := json.Unmarshal(members, &t.Members); err != nil {
		return domain.Team{}, fmt.Errorf("decode members: %w", err)
	}
	if err := json.Unmarshal(answers, &t.Answers); err != nil {
		return domain.Team{}, fmt.Errorf("decode answers: %w", err)
	}
	if err := json.Unmarshal(order, &t.QuestionOrder); err != nil {
		return domain.Team{}, fmt.Errorf("decode question order: %w", err)
	}
	if t.Answers == nil {
		t.Answers = domain.Answers{}
	}
	if lastLogin != nil {
		t.LastLogin = *lastLogin
	}
	if submittedAt != nil {
		t.SubmittedAt = *submittedAt
	}
	return t, nil
}

func nullTime(t time.Time) *time.Time {
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
