package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"

	"team-quiz-service/internal/domain"
	"team-quiz-service/internal/feed"
)

// QuestionRepository stores the bank in the questions table.
type QuestionRepository struct {
	pool *pgxpool.Pool
	feed *feed.Reloader[[]domain.Question]
}

func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	r := &QuestionRepository{pool: pool}
	r.feed = feed.NewReloader(r.List)
	return r
}

func (r *QuestionRepository) Add(ctx context.Context, q domain.Question) (domain.Question, error) {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	options, err := json.Marshal(nonNil(q.Options))
	if err != nil {
		return domain.Question{}, err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO questions (id, question, options, correct_answer, created_at)
		VALUES ($1, $2, $3::jsonb, $4, $5)`,
		q.ID, q.Question, string(options), q.CorrectAnswer, q.CreatedAt)
	if err != nil {
		return domain.Question{}, fmt.Errorf("insert question: %w", err)
	}
	r.refresh(ctx)
	return q, nil
}

func (r *QuestionRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM questions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuestionNotFound
	}
	r.refresh(ctx)
	return nil
}

// List returns the bank ordered by creation time.
func (r *QuestionRepository) List(ctx context.Context) ([]domain.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, question, options, correct_answer, created_at FROM questions ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	qs := []domain.Question{}
	for rows.Next() {
		var (
			q       domain.Question
			options []byte
		)
		if err := rows.Scan(&q.ID, &q.Question, &options, &q.CorrectAnswer, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if err := json.Unmarshal(options, &q.Options); err != nil {
			return nil, fmt.Errorf("decode options: %w", err)
		}
		qs = append(qs, q)
	}
	return qs, rows.Err()
}

func (r *QuestionRepository) Subscribe(ctx context.Context) (<-chan []domain.Question, func(), error) {
	return r.feed.Subscribe(ctx)
}

// refresh is a best-effort reload after a local write; the listener covers writes
// made by other processes.
func (r *QuestionRepository) refresh(ctx context.Context) {
	_ = r.feed.Refresh(ctx)
}
