package app

import (
	"context"
	"time"

	"team-quiz-service/internal/domain"
)

// TeamRepository persists registered teams. Subscribe pushes the full team list on
// every change; the caller must invoke the returned cancel function.
type TeamRepository interface {
	Create(ctx context.Context, team domain.Team) (domain.Team, error)
	Get(ctx context.Context, id string) (domain.Team, error)
	List(ctx context.Context) ([]domain.Team, error)
	TouchLogin(ctx context.Context, id string, at time.Time) error
	// SaveAnswers stores draft answers and fails with domain.ErrAlreadySubmitted once
	// the team has submitted.
	SaveAnswers(ctx context.Context, id string, answers domain.Answers) error
	// Submit records the final answers and score. The first submission wins; repeats
	// are accepted and leave the stored record untouched.
	Submit(ctx context.Context, id string, sub domain.Submission) error
	Subscribe(ctx context.Context) (<-chan []domain.Team, func(), error)
}

// QuestionRepository stores the question bank ordered by creation time.
type QuestionRepository interface {
	Add(ctx context.Context, q domain.Question) (domain.Question, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]domain.Question, error)
	Subscribe(ctx context.Context) (<-chan []domain.Question, func(), error)
}

// ClockRepository holds the singleton quiz clock document.
type ClockRepository interface {
	Get(ctx context.Context) (domain.ClockState, error)
	Set(ctx context.Context, state domain.ClockState) error
	Subscribe(ctx context.Context) (<-chan domain.ClockState, func(), error)
}

// SessionStore caches the logged-in team per client with a fixed expiry.
type SessionStore interface {
	Save(ctx context.Context, key string, team domain.Team, now time.Time) error
	// Load returns the team when a valid record exists; expired or malformed records
	// are cleared and reported as absent.
	Load(ctx context.Context, key string, now time.Time) (domain.Team, bool, error)
	Clear(ctx context.Context, key string) error
}

// IdentityLookup reports the client's network address or domain.UnknownAddress.
type IdentityLookup interface {
	LookupAddress(ctx context.Context) string
}

// Confirmer asks the user a blocking yes/no question.
type Confirmer interface {
	Confirm(ctx context.Context, prompt domain.Prompt) bool
}

// Notifier delivers non-blocking notices to the user.
type Notifier interface {
	Notify(notice domain.Notice)
}

// AlwaysConfirm accepts every prompt.
type AlwaysConfirm struct{}

func (AlwaysConfirm) Confirm(context.Context, domain.Prompt) bool { return true }

// DiscardNotices drops every notice.
type DiscardNotices struct{}

func (DiscardNotices) Notify(domain.Notice) {}

// StaticIdentity reports a fixed address.
type StaticIdentity string

func (s StaticIdentity) LookupAddress(context.Context) string {
	if s == "" {
		return domain.UnknownAddress
	}
	return string(s)
}
