package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"team-quiz-service/internal/domain"
	"team-quiz-service/internal/feed"
)

const statusID = "status"

// ClockRepository keeps the singleton quiz_status row.
type ClockRepository struct {
	pool *pgxpool.Pool
	feed *feed.Reloader[domain.ClockState]
}

func NewClockRepository(pool *pgxpool.Pool) *ClockRepository {
	r := &ClockRepository{pool: pool}
	r.feed = feed.NewReloader(r.Get)
	return r
}

func (r *ClockRepository) Get(ctx context.Context) (domain.ClockState, error) {
	var (
		state      domain.ClockState
		start, end *time.Time
		durationMS int64
	)
	err := r.pool.QueryRow(ctx,
		`SELECT active, start_time, end_time, duration_ms FROM quiz_status WHERE id = $1`, statusID,
	).Scan(&state.Active, &start, &end, &durationMS)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ClockState{}, nil
	}
	if err != nil {
		return domain.ClockState{}, fmt.Errorf("get quiz status: %w", err)
	}
	if start != nil {
		state.StartTime = *start
	}
	if end != nil {
		state.EndTime = *end
	}
	state.Duration = time.Duration(durationMS) * time.Millisecond
	return state, nil
}

// Set replaces the whole row.
func (r *ClockRepository) Set(ctx context.Context, state domain.ClockState) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO quiz_status (id, active, start_time, end_time, duration_ms)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			active = EXCLUDED.active,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			duration_ms = EXCLUDED.duration_ms`,
		statusID, state.Active, nullTime(state.StartTime), nullTime(state.EndTime), state.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("set quiz status: %w", err)
	}
	r.refresh(ctx)
	return nil
}

func (r *ClockRepository) Subscribe(ctx context.Context) (<-chan domain.ClockState, func(), error) {
	return r.feed.Subscribe(ctx)
}

// refresh is a best-effort reload after a local write; the listener covers writes
// made by other processes.
func (r *ClockRepository) refresh(ctx context.Context) {
	_ = r.feed.Refresh(ctx)
}
