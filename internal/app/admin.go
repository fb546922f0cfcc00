package app

import (
	"context"
	"fmt"
	"time"

	"team-quiz-service/internal/domain"
)

// AdminService implements the administrator surface: clock control and question bank
// management. Callers decide who is allowed to use it; Authorize checks the shared
// passphrase.
type AdminService struct {
	questions  QuestionRepository
	teams      TeamRepository
	clock      ClockRepository
	passphrase string
	now        func() time.Time
}

func NewAdminService(questions QuestionRepository, teams TeamRepository, clock ClockRepository, passphrase string) *AdminService {
	return NewAdminServiceWithClock(questions, teams, clock, passphrase, time.Now)
}

// NewAdminServiceWithClock is used by tests for deterministic timestamps.
func NewAdminServiceWithClock(questions QuestionRepository, teams TeamRepository, clock ClockRepository, passphrase string, now func() time.Time) *AdminService {
	return &AdminService{
		questions:  questions,
		teams:      teams,
		clock:      clock,
		passphrase: passphrase,
		now:        now,
	}
}

// Authorize compares the passphrase. An unset passphrase never authorizes.
func (a *AdminService) Authorize(passphrase string) error {
	if a.passphrase == "" || passphrase != a.passphrase {
		return domain.ErrWrongPassphrase
	}
	return nil
}

// Start activates the clock for the given number of minutes from now.
func (a *AdminService) Start(ctx context.Context, minutes int) (domain.ClockState, error) {
	if minutes <= 0 {
		return domain.ClockState{}, domain.ErrInvalidDuration
	}
	now := a.now()
	d := time.Duration(minutes) * time.Minute
	state := domain.ClockState{
		Active:    true,
		StartTime: now,
		EndTime:   now.Add(d),
		Duration:  d,
	}
	if err := a.clock.Set(ctx, state); err != nil {
		return domain.ClockState{}, fmt.Errorf("start quiz: %w", err)
	}
	return state, nil
}

// Stop deactivates the clock and clears the end time.
func (a *AdminService) Stop(ctx context.Context) error {
	if err := a.clock.Set(ctx, domain.ClockState{Active: false}); err != nil {
		return fmt.Errorf("stop quiz: %w", err)
	}
	return nil
}

// AddQuestion validates and stores a new question stamped with the current time.
func (a *AdminService) AddQuestion(ctx context.Context, draft domain.QuestionDraft) (domain.Question, error) {
	if err := draft.Validate(); err != nil {
		return domain.Question{}, err
	}
	q, err := a.questions.Add(ctx, domain.Question{
		Question:      draft.Question,
		Options:       append([]string(nil), draft.Options...),
		CorrectAnswer: draft.CorrectAnswer,
		CreatedAt:     a.now(),
	})
	if err != nil {
		return domain.Question{}, fmt.Errorf("add question: %w", err)
	}
	return q, nil
}

// DeleteQuestion removes a question from the bank. Teams keep their frozen order;
// the missing ID is dropped when their quiz is rebuilt.
func (a *AdminService) DeleteQuestion(ctx context.Context, id string) error {
	if err := a.questions.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	return nil
}

// Questions lists the bank in creation order.
func (a *AdminService) Questions(ctx context.Context) ([]domain.Question, error) {
	qs, err := a.questions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	return qs, nil
}

// Clock returns the current clock document.
func (a *AdminService) Clock(ctx context.Context) (domain.ClockState, error) {
	state, err := a.clock.Get(ctx)
	if err != nil {
		return domain.ClockState{}, fmt.Errorf("read quiz clock: %w", err)
	}
	return state, nil
}

// Standings builds the leaderboard from a fresh team snapshot.
func (a *AdminService) Standings(ctx context.Context) (domain.Leaderboard, error) {
	teams, err := a.teams.List(ctx)
	if err != nil {
		return domain.Leaderboard{}, fmt.Errorf("list teams: %w", err)
	}
	qs, err := a.Questions(ctx)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return BuildLeaderboard(teams, len(qs), a.now()), nil
}
