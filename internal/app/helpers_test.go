package app_test

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"team-quiz-service/internal/app"
	"team-quiz-service/internal/domain"
	"team-quiz-service/internal/infra/memory"
)

const testPassphrase = "letmein"

var epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type countingTeams struct {
	*memory.TeamRepository
	mu      sync.Mutex
	submits int
}

func (r *countingTeams) Submit(ctx context.Context, id string, sub domain.Submission) error {
	r.mu.Lock()
	r.submits++
	r.mu.Unlock()
	return r.TeamRepository.Submit(ctx, id, sub)
}

func (r *countingTeams) submitCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.submits
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []domain.Notice
}

func (n *recordingNotifier) Notify(notice domain.Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
}

func (n *recordingNotifier) titled(title string) []domain.Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []domain.Notice
	for _, notice := range n.notices {
		if notice.Title == title {
			out = append(out, notice)
		}
	}
	return out
}

type scriptedConfirmer struct {
	mu      sync.Mutex
	answer  bool
	prompts []domain.Prompt
}

func (c *scriptedConfirmer) Confirm(_ context.Context, p domain.Prompt) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, p)
	return c.answer
}

func (c *scriptedConfirmer) asked() []domain.Prompt {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Prompt(nil), c.prompts...)
}

// fixture is one shared backend plus helpers to open clients against it.
type fixture struct {
	teams     *countingTeams
	questions *memory.QuestionRepository
	clock     *memory.ClockRepository
	sessions  *memory.SessionStore
	admin     *app.AdminService
	now       *fakeClock
}

func newFixture(t *testing.T, bank ...domain.Question) *fixture {
	t.Helper()
	now := &fakeClock{now: epoch}
	f := &fixture{
		teams:     &countingTeams{TeamRepository: memory.NewTeamRepository()},
		questions: memory.NewQuestionRepository(bank...),
		clock:     memory.NewClockRepository(),
		sessions:  memory.NewSessionStore(),
		now:       now,
	}
	f.admin = app.NewAdminServiceWithClock(f.questions, f.teams, f.clock, testPassphrase, now.Now)
	return f
}

type clientOpts struct {
	identity app.IdentityLookup
	confirm  app.Confirmer
	notify   app.Notifier
}

func (f *fixture) deps(opts clientOpts) app.Deps {
	return app.Deps{
		Teams:        f.teams,
		Questions:    f.questions,
		Clock:        f.clock,
		Sessions:     f.sessions,
		Identity:     opts.identity,
		Confirm:      opts.confirm,
		Notify:       opts.notify,
		Admin:        f.admin,
		Shuffler:     app.NewShuffler(rand.NewSource(7)),
		Now:          f.now.Now,
		TickInterval: -1,
	}
}

func (f *fixture) client(t *testing.T, key string, opts clientOpts) *app.Orchestrator {
	t.Helper()
	return startClient(t, key, f.deps(opts))
}

func startClient(t *testing.T, key string, deps app.Deps) *app.Orchestrator {
	t.Helper()
	o := app.NewOrchestrator(key, deps)
	t.Cleanup(o.Close)
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("start orchestrator: %v", err)
	}
	return o
}

var errStoreDown = errors.New("store unavailable")

// failingTeams fails the selected writes and passes everything else through.
type failingTeams struct {
	app.TeamRepository
	failCreate bool
	failTouch  bool
}

func (r *failingTeams) Create(ctx context.Context, team domain.Team) (domain.Team, error) {
	if r.failCreate {
		return domain.Team{}, errStoreDown
	}
	return r.TeamRepository.Create(ctx, team)
}

func (r *failingTeams) TouchLogin(ctx context.Context, id string, at time.Time) error {
	if r.failTouch {
		return errStoreDown
	}
	return r.TeamRepository.TouchLogin(ctx, id, at)
}

// fixedQuestions answers List with a snapshot taken at construction while
// subscriptions still follow the live repository, like a cache that missed a write.
type fixedQuestions struct {
	app.QuestionRepository
	list    []domain.Question
	listErr error
}

func (r *fixedQuestions) List(context.Context) ([]domain.Question, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	return append([]domain.Question(nil), r.list...), nil
}

// subscriptionCounter tracks how many subscriptions are open across wrapped repositories.
type subscriptionCounter struct {
	mu   sync.Mutex
	open int
}

func (c *subscriptionCounter) track(cancel func()) func() {
	c.mu.Lock()
	c.open++
	c.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			c.open--
			c.mu.Unlock()
			cancel()
		})
	}
}

func (c *subscriptionCounter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

type trackedTeams struct {
	app.TeamRepository
	counter *subscriptionCounter
}

func (r trackedTeams) Subscribe(ctx context.Context) (<-chan []domain.Team, func(), error) {
	ch, cancel, err := r.TeamRepository.Subscribe(ctx)
	if err != nil {
		return nil, nil, err
	}
	return ch, r.counter.track(cancel), nil
}

type trackedQuestions struct {
	app.QuestionRepository
	counter *subscriptionCounter
}

func (r trackedQuestions) Subscribe(ctx context.Context) (<-chan []domain.Question, func(), error) {
	ch, cancel, err := r.QuestionRepository.Subscribe(ctx)
	if err != nil {
		return nil, nil, err
	}
	return ch, r.counter.track(cancel), nil
}

type trackedClock struct {
	app.ClockRepository
	counter *subscriptionCounter
}

func (r trackedClock) Subscribe(ctx context.Context) (<-chan domain.ClockState, func(), error) {
	ch, cancel, err := r.ClockRepository.Subscribe(ctx)
	if err != nil {
		return nil, nil, err
	}
	return ch, r.counter.track(cancel), nil
}

func (f *fixture) startQuiz(t *testing.T, minutes int) {
	t.Helper()
	if _, err := f.admin.Start(context.Background(), minutes); err != nil {
		t.Fatalf("start quiz: %v", err)
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitClockActive(t *testing.T, o *app.Orchestrator, active bool) {
	t.Helper()
	eventually(t, "clock push", func() bool { return o.Snapshot().Clock.Active == active })
}

func question(id, text string, correct int, created time.Time) domain.Question {
	return domain.Question{
		ID:            id,
		Question:      text,
		Options:       []string{"a", "b", "c", "d"},
		CorrectAnswer: correct,
		CreatedAt:     created,
	}
}

func sampleBank() []domain.Question {
	return []domain.Question{
		question("q1", "first", 0, epoch.Add(-3*time.Hour)),
		question("q2", "second", 1, epoch.Add(-2*time.Hour)),
		question("q3", "third", 2, epoch.Add(-time.Hour)),
	}
}

func registration(email, team string) domain.Registration {
	return domain.Registration{
		Email:           email,
		Password:        "secret1",
		ConfirmPassword: "secret1",
		TeamName:        team,
		Members:         []string{"Ann", "Bo"},
	}
}

func (c *scriptedConfirmer) set(answer bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.answer = answer
}
